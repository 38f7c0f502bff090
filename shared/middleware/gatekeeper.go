package middleware

import (
	"net/http"
	"strings"

	"github.com/vasapolrittideah/secure-auth-api/shared/auth"
)

// SessionVerifier checks a session token's signature and expiry.
type SessionVerifier interface {
	Verify(token string) (*auth.SessionPayload, error)
}

// GatekeeperConfig classifies page routes by path prefix.
type GatekeeperConfig struct {
	// ProtectedPrefixes require a session; anonymous visitors go to LoginPath.
	ProtectedPrefixes []string
	// AuthOnlyPrefixes are for anonymous visitors; signed-in users go to HomePath.
	AuthOnlyPrefixes []string
	// BypassPrefixes are never inspected.
	BypassPrefixes []string
	LoginPath      string
	HomePath       string
}

// DefaultGatekeeperConfig returns the route layout of the web application.
func DefaultGatekeeperConfig() GatekeeperConfig {
	return GatekeeperConfig{
		ProtectedPrefixes: []string{"/dashboard"},
		AuthOnlyPrefixes:  []string{"/login", "/register", "/verify", "/forgot-password", "/reset-password"},
		BypassPrefixes:    []string{"/api", "/healthz", "/static", "/favicon.ico"},
		LoginPath:         "/login",
		HomePath:          "/dashboard",
	}
}

// NewGatekeeper returns a middleware that redirects page requests based on
// whether they carry a valid session cookie. It only checks the token's
// signature and expiry; handlers behind it must still authorise sensitive work.
func NewGatekeeper(verifier SessionVerifier, cfg GatekeeperConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path

			if hasAnyPrefix(path, cfg.BypassPrefixes) {
				next.ServeHTTP(w, r)
				return
			}

			isProtected := hasAnyPrefix(path, cfg.ProtectedPrefixes)
			isAuthOnly := hasAnyPrefix(path, cfg.AuthOnlyPrefixes)
			if !isProtected && !isAuthOnly {
				next.ServeHTTP(w, r)
				return
			}

			authenticated := false
			if token := auth.SessionToken(r); token != "" {
				if _, err := verifier.Verify(token); err == nil {
					authenticated = true
				}
			}

			switch {
			case isProtected && !authenticated:
				http.Redirect(w, r, cfg.LoginPath, http.StatusTemporaryRedirect)
			case isAuthOnly && authenticated:
				http.Redirect(w, r, cfg.HomePath, http.StatusTemporaryRedirect)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

func hasAnyPrefix(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
