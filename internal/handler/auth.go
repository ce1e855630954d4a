package handler

import (
	"net/http"

	"github.com/resumeai/resumeai-go/internal/middleware"
	"github.com/resumeai/resumeai-go/internal/model"
	"github.com/resumeai/resumeai-go/internal/service"
	"github.com/resumeai/resumeai-go/internal/session"
)

// AuthHandler handles HTTP requests for authentication.
type AuthHandler struct {
	service   *service.AuthService
	transport session.Transport
	errors    errorWriter
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc *service.AuthService, transport session.Transport, exposeDetail bool) *AuthHandler {
	return &AuthHandler{
		service:   svc,
		transport: transport,
		errors:    errorWriter{exposeDetail: exposeDetail},
	}
}

// HandleRegister handles POST /auth/register requests.
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Register(r.Context(), req)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	h.transport.Issue(w, resp.Token, resp.ExpiresAt)
	writeJSON(w, http.StatusCreated, resp)
}

// HandleLogin handles POST /auth/login requests.
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.service.Login(r.Context(), req)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	h.transport.Issue(w, resp.Token, resp.ExpiresAt)
	writeJSON(w, http.StatusOK, resp)
}

// HandleLogout handles GET /auth/logout requests. It succeeds with or without a session.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	h.service.Logout(r.Context(), h.transport.Token(r))
	h.transport.Clear(w)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out successfully"})
}

// HandleMe handles GET /auth/me requests.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())

	user, err := h.service.CurrentUser(r.Context(), token)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.UserEnvelope{User: user})
}

// HandleUpdateProfile handles PUT /users/profile requests.
func (h *AuthHandler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	token, _ := middleware.TokenFromContext(r.Context())

	var req model.UpdateProfileRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.UpdateProfile(r.Context(), token, req)
	if err != nil {
		h.errors.write(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, model.UserEnvelope{User: user})
}
