package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/payload"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/secure-auth-api/shared/middleware"
	"github.com/vasapolrittideah/secure-auth-api/shared/ratelimit"
	"github.com/vasapolrittideah/secure-auth-api/shared/utilities"
	"github.com/vasapolrittideah/secure-auth-api/shared/validation"
)

const (
	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second

	internalErrorMessage = "Internal Server Error"
)

var errInvalidBody = errors.New("invalid request body")

type authHTTPHandler struct {
	authUsecase          usecase.AuthUsecase
	verificationUsecase  usecase.VerificationUsecase
	passwordResetUsecase usecase.PasswordResetUsecase
	validator            *validation.Validator
	secureCookies        bool
	logger               *zerolog.Logger
}

// RouterParams holds everything the HTTP router is built from.
type RouterParams struct {
	AuthUsecase          usecase.AuthUsecase
	VerificationUsecase  usecase.VerificationUsecase
	PasswordResetUsecase usecase.PasswordResetUsecase
	Sessions             middleware.SessionVerifier

	// Limiter throttles the credential endpoints. Nil disables limiting.
	Limiter *ratelimit.Limiter
	// ClientIP rewrites RemoteAddr from trusted proxy headers. Nil keeps the
	// connection's peer address.
	ClientIP *utilities.ClientIPResolver
	// WebRoot serves static pages from a directory when set.
	WebRoot       string
	SecureCookies bool
	Logger        *zerolog.Logger
}

// NewRouter builds the HTTP router of the auth service.
func NewRouter(p RouterParams) http.Handler {
	h := &authHTTPHandler{
		authUsecase:          p.AuthUsecase,
		verificationUsecase:  p.VerificationUsecase,
		passwordResetUsecase: p.PasswordResetUsecase,
		validator:            validation.New(),
		secureCookies:        p.SecureCookies,
		logger:               p.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	if p.ClientIP != nil {
		r.Use(p.ClientIP.Middleware)
	}
	r.Use(requestLogger(p.Logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(requestTimeout))
	r.Use(middleware.NewGatekeeper(p.Sessions, middleware.DefaultGatekeeperConfig()))

	r.Get("/healthz", healthz)

	r.Route("/api/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if p.Limiter != nil {
				r.Use(p.Limiter.Middleware(p.Logger))
			}
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/verify", h.VerifyEmail)
			r.Post("/forgot-password", h.RequestPasswordReset)
			r.Post("/reset-password", h.ResetPassword)
		})
		r.Post("/logout", h.Logout)
		r.Get("/me", h.Me)
	})

	if p.WebRoot != "" {
		r.Handle("/*", http.FileServer(http.Dir(p.WebRoot)))
	}

	return r
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	utilities.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger stores a logger carrying the request id in the request
// context and logs each completed request.
func requestLogger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqLogger := logger.With().
				Str("request_id", chimiddleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r.WithContext(reqLogger.WithContext(r.Context())))

			reqLogger.Info().
				Int("status", ww.Status()).
				Dur("duration", time.Since(start)).
				Msg("request completed")
		})
	}
}

func (h *authHTTPHandler) log(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return h.logger
}

// decode reads a JSON body into dst and validates it. It returns
// errInvalidBody for malformed JSON and validation.Errors for invalid fields.
func (h *authHTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return errInvalidBody
	}

	return h.validator.Struct(dst)
}

func writeError(w http.ResponseWriter, status int, message string, details any) {
	utilities.WriteJSON(w, status, payload.ErrorResponse{Error: message, Details: details})
}

// writeInternalError logs err and answers with a body that reveals nothing about it.
func (h *authHTTPHandler) writeInternalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.log(r).Error().Err(err).Msg(msg)
	writeError(w, http.StatusInternalServerError, internalErrorMessage, nil)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	utilities.WriteJSON(w, status, payload.MessageResponse{Message: message})
}

// validationDetails returns the per-field errors of err, or nil when err
// is not a validation failure.
func validationDetails(err error) any {
	var fieldErrs validation.Errors
	if errors.As(err, &fieldErrs) {
		return fieldErrs
	}
	return nil
}
