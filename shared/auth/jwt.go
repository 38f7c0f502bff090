package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is the fixed lifetime of a session token. There is no refresh.
const SessionTTL = 24 * time.Hour

// MinSecretLength is the shortest signing key accepted by NewJWTAuthenticator.
const MinSecretLength = 32

// ErrInvalidSession is returned for every token that fails verification,
// whatever the underlying reason.
var ErrInvalidSession = errors.New("invalid or expired session")

// SessionPayload is the data embedded in a session token.
type SessionPayload struct {
	UserID string
	Email  string
}

// SessionClaims are the JWT claims of a session token.
type SessionClaims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// JWTAuthenticator represents a JWT based authenticator.
type JWTAuthenticator struct {
	secret   []byte
	audience string
	issuer   string
	ttl      time.Duration
	now      func() time.Time
}

// NewJWTAuthenticator creates a new JWTAuthenticator instance.
// The secret is copied and never changes for the lifetime of the authenticator.
func NewJWTAuthenticator(secret, audience, issuer string) (*JWTAuthenticator, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", MinSecretLength)
	}

	return &JWTAuthenticator{
		secret:   []byte(secret),
		audience: audience,
		issuer:   issuer,
		ttl:      SessionTTL,
		now:      time.Now,
	}, nil
}

// Sign issues a session token for the given payload.
func (a *JWTAuthenticator) Sign(payload SessionPayload) (string, error) {
	now := a.now()
	claims := SessionClaims{
		UserID: payload.UserID,
		Email:  payload.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Audience:  jwt.ClaimStrings{a.audience},
			Subject:   payload.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenStr, err := token.SignedString(a.secret)
	if err != nil {
		return "", err
	}

	return tokenStr, nil
}

// Verify validates a session token and returns its payload.
// Malformed, forged, expired and wrongly-signed tokens all yield ErrInvalidSession.
func (a *JWTAuthenticator) Verify(tokenString string) (*SessionPayload, error) {
	if tokenString == "" {
		return nil, ErrInvalidSession
	}

	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return a.secret, nil
	},
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithAudience(a.audience),
		jwt.WithIssuer(a.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidSession
	}

	return &SessionPayload{
		UserID: claims.UserID,
		Email:  claims.Email,
	}, nil
}
