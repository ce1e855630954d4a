package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resumeai/resumeai-go/internal/crypto"
	"github.com/resumeai/resumeai-go/internal/handler"
	"github.com/resumeai/resumeai-go/internal/repository"
	"github.com/resumeai/resumeai-go/internal/service"
	"github.com/resumeai/resumeai-go/internal/session"
)

func startServer(t *testing.T, transportName string) string {
	t.Helper()
	ctx := context.Background()

	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.Migrate(ctx, db, repository.DriverSQLite))

	transport, err := session.New(transportName, session.CookieOptions{})
	require.NoError(t, err)

	svc := service.NewAuthService(
		repository.NewUserRepository(db, repository.DriverSQLite),
		crypto.NewTokenIssuer("test-secret", time.Hour),
	)
	srv := httptest.NewServer(handler.NewRouter(handler.RouterConfig{
		Auth:           handler.NewAuthHandler(svc, transport, false),
		Health:         handler.NewHealthHandler(db, "test"),
		Transport:      transport,
		RateLimitRPS:   100,
		RateLimitBurst: 100,
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	prev := readPassword
	t.Cleanup(func() { readPassword = prev })
	readPassword = func(int) ([]byte, error) {
		require.NotEmpty(t, answers, "unexpected password prompt")
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
}

func TestSessionLifecycle(t *testing.T) {
	for _, transport := range []string{"cookie", "bearer"} {
		t.Run(transport, func(t *testing.T) {
			url := startServer(t, transport)
			sessionFile := filepath.Join(t.TempDir(), "session.json")

			exec := func(args ...string) (int, string, string) {
				var stdout, stderr bytes.Buffer
				global := []string{"-server", url, "-transport", transport, "-session", sessionFile}
				code := run(context.Background(), append(global, args...), &stdout, &stderr)
				return code, stdout.String(), stderr.String()
			}

			code, out, _ := exec("whoami")
			require.Equal(t, 0, code)
			assert.Contains(t, out, "Not logged in")

			stubPasswords(t, "secret123")
			code, out, errOut := exec("register", "-first", "A", "-last", "B", "-email", "a@b.com")
			require.Equal(t, 0, code, errOut)
			assert.Contains(t, out, "A B <a@b.com>")

			code, out, _ = exec("whoami")
			require.Equal(t, 0, code)
			assert.Contains(t, out, "<a@b.com>")

			code, out, errOut = exec("profile", "-first", "Alice")
			require.Equal(t, 0, code, errOut)
			assert.Contains(t, out, "Alice B")

			code, out, _ = exec("logout")
			require.Equal(t, 0, code)
			assert.Contains(t, out, "Logged out")

			code, out, _ = exec("whoami")
			require.Equal(t, 0, code)
			assert.Contains(t, out, "Not logged in")

			code, out, errOut = exec("login", "-email", "A@B.com", "-password", "secret123")
			require.Equal(t, 0, code, errOut)
			assert.Contains(t, out, "Alice B")

			code, _, errOut = exec("login", "-email", "a@b.com", "-password", "wrong-pass")
			assert.Equal(t, 1, code)
			assert.Contains(t, errOut, "invalid credentials")
		})
	}
}

func TestRegisterGeneratedPassword(t *testing.T) {
	url := startServer(t, "bearer")
	sessionFile := filepath.Join(t.TempDir(), "session.json")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{
		"-server", url, "-transport", "bearer", "-session", sessionFile,
		"register", "-first", "A", "-last", "B", "-email", "a@b.com", "-generate-password",
	}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var generated string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if after, ok := strings.CutPrefix(line, "Generated password: "); ok {
			generated = after
		}
	}
	require.Len(t, generated, crypto.DefaultGeneratedLength)

	stdout.Reset()
	code = run(context.Background(), []string{
		"-server", url, "-transport", "bearer", "-session", sessionFile,
		"login", "-email", "a@b.com", "-password", generated,
	}, &stdout, &stderr)
	assert.Equal(t, 0, code, stderr.String())
}

func TestRunUsageErrors(t *testing.T) {
	tests := [][]string{
		{},
		{"frobnicate"},
		{"-transport", "pigeon", "whoami"},
	}

	for _, args := range tests {
		var stdout, stderr bytes.Buffer
		code := run(context.Background(), append([]string{"-session", filepath.Join(t.TempDir(), "s.json")}, args...), &stdout, &stderr)
		assert.Equal(t, 2, code, args)
	}
}
