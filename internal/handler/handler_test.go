package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeai/resumeai-go/internal/crypto"
	"github.com/resumeai/resumeai-go/internal/model"
	"github.com/resumeai/resumeai-go/internal/repository"
	"github.com/resumeai/resumeai-go/internal/service"
	"github.com/resumeai/resumeai-go/internal/session"
)

func newTestRouter(t *testing.T, transportName string) http.Handler {
	t.Helper()
	return newRouterWith(t, transportName, func(*RouterConfig) {})
}

func newRouterWith(t *testing.T, transportName string, mutate func(*RouterConfig)) http.Handler {
	t.Helper()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.Migrate(ctx, db, repository.DriverSQLite))

	transport, err := session.New(transportName, session.CookieOptions{SameSite: "strict"})
	require.NoError(t, err)

	users := repository.NewUserRepository(db, repository.DriverSQLite)
	svc := service.NewAuthService(users, crypto.NewTokenIssuer("test-secret", 30*24*time.Hour))

	cfg := RouterConfig{
		Auth:           NewAuthHandler(svc, transport, true),
		Health:         NewHealthHandler(db, "test"),
		Transport:      transport,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}
	mutate(&cfg)
	return NewRouter(cfg)
}

func do(t *testing.T, h http.Handler, method, path, body string, opts ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, o := range opts {
		o(req)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == session.CookieName {
			return c
		}
	}
	require.FailNowf(t, "missing session cookie", "no %q cookie in response", session.CookieName)
	return nil
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

const registerBody = `{"firstName":"A","lastName":"B","email":"a@b.com","password":"secret123"}`

func TestRegisterThenLogin(t *testing.T) {
	h := newTestRouter(t, "cookie")

	rec := do(t, h, http.MethodPost, "/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	registered := decode[model.AuthResponse](t, rec)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, "a@b.com", registered.User.Email)
	assert.NotContains(t, rec.Body.String(), "argon2id")

	rec = do(t, h, http.MethodPost, "/auth/login", `{"email":"A@B.com","password":"secret123"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	loggedIn := decode[model.AuthResponse](t, rec)
	assert.Equal(t, registered.User.ID, loggedIn.User.ID)

	c := sessionCookie(t, rec)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, "/", c.Path)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, loggedIn.Token, c.Value)
}

func TestRegisterErrors(t *testing.T) {
	h := newTestRouter(t, "cookie")
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/auth/register", registerBody).Code)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{"duplicate email", `{"firstName":"C","lastName":"D","email":"A@b.com","password":"secret123"}`, http.StatusBadRequest, "email already in use"},
		{"missing field", `{"firstName":"C","email":"c@d.com","password":"secret123"}`, http.StatusBadRequest, "lastName is required"},
		{"malformed json", `{"firstName":`, http.StatusBadRequest, "invalid request body"},
		{"empty body", ``, http.StatusBadRequest, "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, "/auth/register", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, decode[map[string]string](t, rec)["error"])
		})
	}
}

func TestRegisterBodyTooLarge(t *testing.T) {
	h := newTestRouter(t, "cookie")
	body := `{"firstName":"` + strings.Repeat("x", maxBodyBytes) + `"}`

	rec := do(t, h, http.MethodPost, "/auth/register", body)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestLoginFailures(t *testing.T) {
	h := newTestRouter(t, "cookie")
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/auth/register", registerBody).Code)

	wrong := do(t, h, http.MethodPost, "/auth/login", `{"email":"a@b.com","password":"nope-nope"}`)
	unknown := do(t, h, http.MethodPost, "/auth/login", `{"email":"x@y.com","password":"secret123"}`)
	missing := do(t, h, http.MethodPost, "/auth/login", `{"email":"a@b.com"}`)

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())
	assert.Equal(t, http.StatusBadRequest, missing.Code)
	assert.Empty(t, wrong.Result().Cookies())
}

func TestMeWithCookieTransport(t *testing.T) {
	h := newTestRouter(t, "cookie")
	rec := do(t, h, http.MethodPost, "/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	auth := decode[model.AuthResponse](t, rec)
	cookie := sessionCookie(t, rec)

	me := do(t, h, http.MethodGet, "/auth/me", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, me.Code)
	assert.Equal(t, auth.User.ID, decode[model.UserEnvelope](t, me).User.ID)

	// The cookie transport ignores the Authorization header.
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/auth/me", "", withBearer(auth.Token)).Code)
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/auth/me", "").Code)

	tampered := *cookie
	tampered.Value = cookie.Value[:len(cookie.Value)-4] + "AAAA"
	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodGet, "/auth/me", "", withCookie(&tampered)).Code)
}

func TestMeWithBearerTransport(t *testing.T) {
	h := newTestRouter(t, "bearer")
	rec := do(t, h, http.MethodPost, "/auth/register", registerBody)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Empty(t, rec.Result().Cookies(), "bearer transport sets no cookie")
	auth := decode[model.AuthResponse](t, rec)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/auth/me", "", withBearer(auth.Token)).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodGet, "/auth/me", "", withCookie(&http.Cookie{Name: session.CookieName, Value: auth.Token})).Code)
}

func TestLogout(t *testing.T) {
	h := newTestRouter(t, "cookie")
	rec := do(t, h, http.MethodPost, "/auth/register", registerBody)
	cookie := sessionCookie(t, rec)

	out := do(t, h, http.MethodGet, "/auth/logout", "", withCookie(cookie))
	require.Equal(t, http.StatusOK, out.Code)
	assert.Equal(t, "logged out successfully", decode[map[string]string](t, out)["message"])

	cleared := sessionCookie(t, out)
	assert.Empty(t, cleared.Value)
	assert.Less(t, cleared.MaxAge, 0)

	// Logging out without a session still succeeds.
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/auth/logout", "").Code)
}

func TestUpdateProfile(t *testing.T) {
	h := newTestRouter(t, "bearer")
	auth := decode[model.AuthResponse](t, do(t, h, http.MethodPost, "/auth/register", registerBody))
	other := `{"firstName":"C","lastName":"D","email":"c@d.com","password":"secret123"}`
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/auth/register", other).Code)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"rename", `{"firstName":"Alice"}`, http.StatusOK},
		{"email taken", `{"email":"c@d.com"}`, http.StatusBadRequest},
		{"new password without current", `{"newPassword":"brandnew123"}`, http.StatusBadRequest},
		{"new password with wrong current", `{"currentPassword":"nope-nope","newPassword":"brandnew123"}`, http.StatusBadRequest},
		{"new password with current", `{"currentPassword":"secret123","newPassword":"brandnew123"}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPut, "/users/profile", tt.body, withBearer(auth.Token))
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}

	me := decode[model.UserEnvelope](t, do(t, h, http.MethodGet, "/auth/me", "", withBearer(auth.Token)))
	assert.Equal(t, "Alice", me.User.FirstName)
	assert.Equal(t, "B", me.User.LastName)

	assert.Equal(t, http.StatusOK,
		do(t, h, http.MethodPost, "/auth/login", `{"email":"a@b.com","password":"brandnew123"}`).Code)
	assert.Equal(t, http.StatusUnauthorized,
		do(t, h, http.MethodPut, "/users/profile", `{"firstName":"X"}`).Code)
}

func TestHealth(t *testing.T) {
	h := newTestRouter(t, "cookie")

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]string](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["env"])
	assert.Equal(t, "up", body["database"])
}

type downPinger struct{}

func (downPinger) PingContext(context.Context) error { return errors.New("connection refused") }

func TestHealthDatabaseDown(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(downPinger{}, "test").HandleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "down", decode[map[string]string](t, rec)["database"])
}

func TestErrorWriterInternal(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)

	rec := httptest.NewRecorder()
	errorWriter{exposeDetail: true}.write(rec, req, errors.New("db exploded"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error","detail":"db exploded"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	errorWriter{}.write(rec, req, errors.New("db exploded"))
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestLoginRateLimitIgnoresForwardedHeaders(t *testing.T) {
	h := newRouterWith(t, "cookie", func(cfg *RouterConfig) {
		cfg.RateLimitRPS = 1
		cfg.RateLimitBurst = 5
	})

	limited := 0
	for i := 0; i < 20; i++ {
		rec := do(t, h, http.MethodPost, "/auth/login", `{}`, func(r *http.Request) {
			r.RemoteAddr = "203.0.113.7:40000"
			r.Header.Set("X-Forwarded-For", fmt.Sprintf("10.0.0.%d", i))
			r.Header.Set("X-Real-IP", fmt.Sprintf("10.0.1.%d", i))
			r.Header.Set("True-Client-IP", fmt.Sprintf("10.0.2.%d", i))
		})
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}

	assert.GreaterOrEqual(t, limited, 14, "rotating forwarded headers must not reset the limit")
}

func TestLoginRateLimitBehindTrustedProxy(t *testing.T) {
	h := newRouterWith(t, "cookie", func(cfg *RouterConfig) {
		cfg.RateLimitRPS = 1
		cfg.RateLimitBurst = 1
		cfg.TrustProxy = true
	})

	login := func(clientIP string) int {
		return do(t, h, http.MethodPost, "/auth/login", `{}`, func(r *http.Request) {
			r.RemoteAddr = "192.0.2.1:40000"
			r.Header.Set("X-Forwarded-For", clientIP)
		}).Code
	}

	assert.Equal(t, http.StatusBadRequest, login("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, login("198.51.100.1"))
	// Distinct clients behind the same proxy keep separate buckets.
	assert.Equal(t, http.StatusBadRequest, login("198.51.100.2"))
}
