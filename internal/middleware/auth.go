package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/resumeai/resumeai-go/internal/session"
)

type contextKey string

const tokenKey contextKey = "sessionToken"

// RequireSession returns middleware that extracts the session token using the
// configured transport. Requests without a token are rejected with 401;
// verifying the token is left to the service.
func RequireSession(transport session.Transport) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := transport.Token(r)
			if token == "" {
				writeJSONError(w, http.StatusUnauthorized, "not authenticated")
				return
			}

			ctx := context.WithValue(r.Context(), tokenKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TokenFromContext returns the session token stored by RequireSession.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenKey).(string)
	return token, ok && token != ""
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
