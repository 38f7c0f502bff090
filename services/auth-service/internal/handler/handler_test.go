package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/account"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/config"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/model"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/repository"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/tokenstore"
	"github.com/vasapolrittideah/secure-auth-api/services/auth-service/internal/usecase"
	"github.com/vasapolrittideah/secure-auth-api/shared/auth"
	"github.com/vasapolrittideah/secure-auth-api/shared/ratelimit"
	"github.com/vasapolrittideah/secure-auth-api/shared/security"
	"github.com/vasapolrittideah/secure-auth-api/shared/utilities"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct-horse"
)

var tokenInLink = regexp.MustCompile(`token=([0-9a-f]{64})`)

type captureMailer struct {
	mu     sync.Mutex
	bodies []string
}

func (m *captureMailer) SendHTML(_ context.Context, _ []string, _, htmlBody string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bodies = append(m.bodies, htmlBody)
	return nil
}

func (m *captureMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	require.NotEmpty(t, m.bodies)
	match := tokenInLink.FindStringSubmatch(m.bodies[len(m.bodies)-1])
	require.Len(t, match, 2)
	return match[1]
}

type testServer struct {
	router   http.Handler
	store    *repository.MemoryStore
	mailer   *captureMailer
	sessions *auth.JWTAuthenticator
}

const trustedProxy = "198.18.0.1"

func newTestServer(t *testing.T, limiter *ratelimit.Limiter) *testServer {
	t.Helper()

	logger := zerolog.Nop()
	cfg := &config.AuthServiceConfig{
		AppURL: "http://localhost:3000",
		Token: config.TokenConfig{
			VerificationTokenExpiresIn:  tokenstore.VerificationTokenTTL,
			PasswordResetTokenExpiresIn: tokenstore.PasswordResetTokenTTL,
		},
	}

	sessions, err := auth.NewJWTAuthenticator("0123456789abcdef0123456789abcdef", "secure-auth-web", "secure-auth-api")
	require.NoError(t, err)

	hasher := security.NewPasswordHasher(security.PasswordHasherConfig{
		MemoryCost:  8 * 1024,
		TimeCost:    1,
		Parallelism: 1,
		SaltLength:  16,
		HashLength:  16,
	}, &logger)

	store := repository.NewMemoryStore()
	accounts := account.New()
	verificationTokens := tokenstore.New(model.TokenKindVerification, tokenstore.VerificationTokenTTL)
	resetTokens := tokenstore.New(model.TokenKindPasswordReset, tokenstore.PasswordResetTokenTTL)
	mailer := &captureMailer{}

	clientIP, err := utilities.NewClientIPResolver([]string{trustedProxy})
	require.NoError(t, err)

	router := NewRouter(RouterParams{
		AuthUsecase: usecase.NewAuthUsecase(
			store, accounts, verificationTokens, hasher, sessions, mailer, cfg, &logger),
		VerificationUsecase: usecase.NewVerificationUsecase(store, accounts, verificationTokens),
		PasswordResetUsecase: usecase.NewPasswordResetUsecase(
			store, accounts, resetTokens, hasher, mailer, cfg, &logger),
		Sessions: sessions,
		Limiter:  limiter,
		ClientIP: clientIP,
		Logger:   &logger,
	})

	return &testServer{router: router, store: store, mailer: mailer, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == auth.SessionCookieName {
			return c
		}
	}
	return nil
}

func (s *testServer) registerAndVerify(t *testing.T) {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"token": s.mailer.lastToken(t)})
	require.Equal(t, http.StatusOK, rec.Code)
}

func (s *testServer) login(t *testing.T) *http.Cookie {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	return cookie
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegister(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Account created successfully. Please check your email to verify.", body["message"])
	assert.NotEmpty(t, body["userId"])
	assert.Nil(t, sessionCookie(rec))
}

func TestRegisterValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{name: "invalid email", body: map[string]string{"email": "not-an-email", "password": testPassword}},
		{name: "short password", body: map[string]string{"email": testEmail, "password": "short"}},
		{name: "mismatched confirmation", body: map[string]string{
			"email": testEmail, "password": testPassword, "confirmPassword": "something-else",
		}},
		{name: "malformed json", body: "{"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/auth/register", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "Validation failed", decodeBody(t, rec)["error"])
		})
	}

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": "bad", "password": testPassword})
	details, ok := decodeBody(t, rec)["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "email", details[0].(map[string]any)["field"])
	assert.Equal(t, "email", details[0].(map[string]any)["code"])
}

func TestRegisterConflictAndThrottle(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": testEmail, "password": testPassword})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "Please wait 1 minute before requesting another email.", decodeBody(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"token": s.mailer.lastToken(t)})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": testEmail, "password": testPassword})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "User with this email already exists", decodeBody(t, rec)["error"])
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerAndVerify(t)

	unknown := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "ghost@example.com", "password": testPassword})
	wrong := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": "wrong-password"})

	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, unknown.Body.String(), wrong.Body.String())
	assert.Nil(t, sessionCookie(unknown))
	assert.Nil(t, sessionCookie(wrong))
}

func TestLoginUnverified(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": testPassword})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "Account not verified", body["error"])
	assert.Equal(t, "Please check your email to verify your account before logging in.", body["details"])
	assert.Nil(t, sessionCookie(rec))
}

func TestLoginSetsSessionCookie(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerAndVerify(t)

	rec := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "Login successful", body["message"])
	user := body["user"].(map[string]any)
	assert.Equal(t, testEmail, user["email"])
	assert.Equal(t, true, user["isVerified"])
	assert.NotContains(t, rec.Body.String(), "password")

	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, 86400, cookie.MaxAge)

	payload, err := s.sessions.Verify(cookie.Value)
	require.NoError(t, err)
	assert.Equal(t, testEmail, payload.Email)
}

func TestMe(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerAndVerify(t)
	cookie := s.login(t)

	rec := s.do(t, http.MethodGet, "/api/auth/me", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["isAuthenticated"])
	assert.Equal(t, testEmail, body["user"].(map[string]any)["email"])

	rec = s.do(t, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Missing session cookie", decodeBody(t, rec)["error"])

	forged := &http.Cookie{Name: auth.SessionCookieName, Value: cookie.Value + "x"}
	rec = s.do(t, http.MethodGet, "/api/auth/me", nil, forged)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Invalid or expired token", decodeBody(t, rec)["error"])
	assert.Equal(t, false, decodeBody(t, rec)["isAuthenticated"])
}

func TestMeUserDeleted(t *testing.T) {
	s := newTestServer(t, nil)

	token, err := s.sessions.Sign(auth.SessionPayload{UserID: "gone", Email: testEmail})
	require.NoError(t, err)

	rec := s.do(t, http.MethodGet, "/api/auth/me", nil, &http.Cookie{Name: auth.SessionCookieName, Value: token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "User not found", decodeBody(t, rec)["error"])
}

func TestLogoutClearsCookie(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Logged out successfully", decodeBody(t, rec)["message"])

	setCookie := rec.Header().Get("Set-Cookie")
	assert.True(t, strings.HasPrefix(setCookie, auth.SessionCookieName+"=;"))
	assert.Contains(t, setCookie, "Max-Age=0")
}

func TestVerifyEmail(t *testing.T) {
	s := newTestServer(t, nil)

	rec := s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Missing or invalid token", decodeBody(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"token": "unknown"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid token", decodeBody(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/api/auth/register", map[string]string{"email": testEmail, "password": testPassword})
	require.Equal(t, http.StatusCreated, rec.Code)
	token := s.mailer.lastToken(t)

	rec = s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"token": token})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Email verified successfully", decodeBody(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"token": token})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyEmailExpired(t *testing.T) {
	s := newTestServer(t, nil)

	_, err := s.store.Tokens(model.TokenKindVerification).CreateToken(context.Background(), &model.Token{
		ID:         "t-1",
		Token:      "stale",
		Identifier: testEmail,
		ExpiresAt:  time.Now().Add(-time.Minute),
		CreatedAt:  time.Now().Add(-25 * time.Hour),
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"token": "stale"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Token has expired. Please request a new one.", decodeBody(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"token": "stale"})
	assert.Equal(t, "Invalid token", decodeBody(t, rec)["error"])
}

func TestVerifyEmailOrphanToken(t *testing.T) {
	s := newTestServer(t, nil)

	_, err := s.store.Tokens(model.TokenKindVerification).CreateToken(context.Background(), &model.Token{
		ID:         "t-1",
		Token:      "orphan",
		Identifier: "ghost@example.com",
		ExpiresAt:  time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/auth/verify", map[string]string{"token": "orphan"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "User associated with this token no longer exists", decodeBody(t, rec)["error"])
}

func TestForgotPasswordDoesNotRevealAccounts(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerAndVerify(t)

	known := s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": testEmail})
	unknown := s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "ghost@example.com"})

	assert.Equal(t, http.StatusOK, known.Code)
	assert.Equal(t, http.StatusOK, unknown.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())
	assert.Equal(t, "If an account exists, a reset email has been sent.", decodeBody(t, known)["message"])

	rec := s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid email address", decodeBody(t, rec)["error"])
}

func TestResetPassword(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerAndVerify(t)

	rec := s.do(t, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": testEmail})
	require.Equal(t, http.StatusOK, rec.Code)
	token := s.mailer.lastToken(t)

	rec = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token": token, "password": "brand-new-password", "confirmPassword": "does-not-match",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid data or passwords do not match", decodeBody(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token": token, "password": "brand-new-password", "confirmPassword": "brand-new-password",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Password reset successfully", decodeBody(t, rec)["message"])

	rec = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"token": token, "password": "another-password", "confirmPassword": "another-password",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Invalid or missing token", decodeBody(t, rec)["error"])

	rec = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": testEmail, "password": "brand-new-password"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGatekeeperRedirects(t *testing.T) {
	s := newTestServer(t, nil)
	s.registerAndVerify(t)
	cookie := s.login(t)

	rec := s.do(t, http.MethodGet, "/dashboard", nil)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	rec = s.do(t, http.MethodGet, "/login", nil, cookie)
	assert.Equal(t, http.StatusTemporaryRedirect, rec.Code)
	assert.Equal(t, "/dashboard", rec.Header().Get("Location"))

	// API routes are never redirected.
	rec = s.do(t, http.MethodGet, "/api/auth/me", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimitKeysOnResolvedClientAddress(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewLimiter(client, "auth", ratelimit.Config{Limit: 2, Window: time.Minute})
	s := newTestServer(t, limiter)

	login := func(remoteAddr, forwardedFor string) int {
		raw, err := json.Marshal(map[string]string{"email": "ghost@example.com", "password": testPassword})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(raw))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = remoteAddr
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		return rec.Code
	}

	// A direct client cannot dodge the limit by rotating the header.
	limited := 0
	for i := range 10 {
		if login("203.0.113.7:4321", fmt.Sprintf("10.0.0.%d", i)) == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 8, limited)

	// Behind the trusted proxy each forwarded client has its own window,
	// and entries the client prepended are ignored.
	for range 2 {
		assert.Equal(t, http.StatusUnauthorized, login(trustedProxy+":443", "6.6.6.6, 198.51.100.1"))
	}
	assert.Equal(t, http.StatusTooManyRequests, login(trustedProxy+":443", "7.7.7.7, 198.51.100.1"))
	assert.Equal(t, http.StatusUnauthorized, login(trustedProxy+":443", "198.51.100.2"))
}

func TestCredentialEndpointsAreRateLimited(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	limiter := ratelimit.NewLimiter(client, "auth", ratelimit.Config{Limit: 2, Window: time.Minute})
	s := newTestServer(t, limiter)

	body := map[string]string{"email": "ghost@example.com", "password": testPassword}
	for range 2 {
		rec := s.do(t, http.MethodPost, "/api/auth/login", body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := s.do(t, http.MethodPost, "/api/auth/login", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Session endpoints are not limited.
	rec = s.do(t, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
