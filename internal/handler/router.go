package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/resumeai/resumeai-go/internal/middleware"
	"github.com/resumeai/resumeai-go/internal/session"
)

// RouterConfig holds the dependencies of the HTTP surface.
type RouterConfig struct {
	Auth           *AuthHandler
	Health         *HealthHandler
	Transport      session.Transport
	RateLimitRPS   float64
	RateLimitBurst int
	// TrustProxy enables chi's RealIP. Off, the rate limiter keys on the peer address.
	TrustProxy bool
}

// NewRouter wires the routes and middleware stack.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.Logger)
	r.Use(chimw.Recoverer)

	r.Get("/health", cfg.Health.HandleHealth)

	r.Route("/auth", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
			r.Post("/register", cfg.Auth.HandleRegister)
			r.Post("/login", cfg.Auth.HandleLogin)
		})

		r.Get("/logout", cfg.Auth.HandleLogout)

		r.With(middleware.RequireSession(cfg.Transport)).Get("/me", cfg.Auth.HandleMe)
	})

	r.With(middleware.RequireSession(cfg.Transport)).Put("/users/profile", cfg.Auth.HandleUpdateProfile)

	return r
}
