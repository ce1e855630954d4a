package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/resumeai/resumeai-go/internal/apperr"
	"github.com/resumeai/resumeai-go/internal/crypto"
	"github.com/resumeai/resumeai-go/internal/model"
	"github.com/resumeai/resumeai-go/internal/repository"
)

var (
	ErrInvalidCredentials       = apperr.Authentication("invalid credentials")
	ErrUnauthenticated          = apperr.Authentication("not authenticated")
	ErrEmailTaken               = apperr.Conflict("email already in use")
	ErrUserNotFound             = apperr.NotFound("user not found")
	ErrCurrentPasswordRequired  = apperr.Validation("current password is required to set a new password")
	ErrCurrentPasswordIncorrect = apperr.Validation("current password is incorrect")
)

// UserStore is the persistence the service depends on.
type UserStore interface {
	Create(ctx context.Context, user *model.User) error
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByID(ctx context.Context, id string) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
}

// TokenManager mints and verifies session tokens.
type TokenManager interface {
	Issue(userID string) (string, time.Time, error)
	Verify(token string) (string, error)
}

// AuthService handles authentication business logic.
type AuthService struct {
	users    UserStore
	tokens   TokenManager
	validate *validator.Validate
	now      func() time.Time
}

// NewAuthService creates a new AuthService.
func NewAuthService(users UserStore, tokens TokenManager) *AuthService {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	// The password tag enforces the policy defined in the crypto package.
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return crypto.PasswordLengthOK(fl.Field().String())
	})

	return &AuthService{
		users:    users,
		tokens:   tokens,
		validate: v,
		now:      time.Now,
	}
}

// Register creates a new user account and returns an auth token.
func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Email = normalizeEmail(req.Email)

	if err := s.validateStruct(req); err != nil {
		return model.AuthResponse{}, err
	}

	if _, err := s.users.GetByEmail(ctx, req.Email); err == nil {
		return model.AuthResponse{}, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return model.AuthResponse{}, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := crypto.HashPassword(req.Password)
	if err != nil {
		return model.AuthResponse{}, err
	}

	now := s.now().UTC()
	user := &model.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration.
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return model.AuthResponse{}, ErrEmailTaken
		}
		return model.AuthResponse{}, err
	}

	slog.Info("user registered", "user_id", user.ID)
	return s.authResponse(user)
}

// Login authenticates a user and returns an auth token.
func (s *AuthService) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	req.Email = normalizeEmail(req.Email)
	if err := s.validateStruct(req); err != nil {
		return model.AuthResponse{}, err
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			crypto.VerifyDummy(req.Password)
			return model.AuthResponse{}, ErrInvalidCredentials
		}
		return model.AuthResponse{}, err
	}

	match, err := crypto.VerifyPassword(req.Password, user.PasswordHash)
	if err != nil {
		// Indistinguishable from a wrong password.
		slog.ErrorContext(ctx, "stored password hash unreadable", "user_id", user.ID, "error", err)
		return model.AuthResponse{}, ErrInvalidCredentials
	}
	if !match {
		return model.AuthResponse{}, ErrInvalidCredentials
	}

	if crypto.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, req.Password)
	}

	return s.authResponse(user)
}

// upgradeHash re-hashes a password stored with an outdated scheme. Failures
// are logged and do not affect the login.
func (s *AuthService) upgradeHash(ctx context.Context, user *model.User, password string) {
	hash, err := crypto.HashPassword(password)
	if err != nil {
		slog.Warn("password rehash failed", "user_id", user.ID, "error", err)
		return
	}

	updated := *user
	updated.PasswordHash = hash
	updated.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, &updated); err != nil {
		slog.Warn("password rehash failed", "user_id", user.ID, "error", err)
		return
	}
	*user = updated
}

// Logout ends a session. The server keeps no session state, so this only
// records the event; clearing the client copy is up to the transport.
func (s *AuthService) Logout(ctx context.Context, token string) {
	if userID, err := s.tokens.Verify(token); err == nil {
		slog.InfoContext(ctx, "user logged out", "user_id", userID)
	}
}

// CurrentUser resolves a session token to the user it belongs to.
func (s *AuthService) CurrentUser(ctx context.Context, token string) (model.UserResponse, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return model.UserResponse{}, ErrUnauthenticated
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUnauthenticated
		}
		return model.UserResponse{}, err
	}

	return user.ToResponse(), nil
}

// UpdateProfile applies a partial update to the token owner's profile.
func (s *AuthService) UpdateProfile(ctx context.Context, token string, req model.UpdateProfileRequest) (model.UserResponse, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return model.UserResponse{}, ErrUnauthenticated
	}

	req.FirstName = trimmed(req.FirstName)
	req.LastName = trimmed(req.LastName)
	if req.Email != nil {
		e := normalizeEmail(*req.Email)
		req.Email = trimmed(&e)
	}
	if deref(req.NewPassword) == "" {
		req.NewPassword = nil
	}
	if err := s.validateStruct(req); err != nil {
		return model.UserResponse{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, ErrUserNotFound
		}
		return model.UserResponse{}, err
	}

	if v := deref(req.FirstName); v != "" {
		user.FirstName = v
	}
	if v := deref(req.LastName); v != "" {
		user.LastName = v
	}

	if email := deref(req.Email); email != "" && email != user.Email {
		if _, err := s.users.GetByEmail(ctx, email); err == nil {
			return model.UserResponse{}, ErrEmailTaken
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return model.UserResponse{}, fmt.Errorf("lookup email: %w", err)
		}
		user.Email = email
	}

	if newPassword := deref(req.NewPassword); newPassword != "" {
		current := deref(req.CurrentPassword)
		if current == "" {
			return model.UserResponse{}, ErrCurrentPasswordRequired
		}
		match, err := crypto.VerifyPassword(current, user.PasswordHash)
		if err != nil {
			return model.UserResponse{}, fmt.Errorf("verify password for %s: %w", user.ID, err)
		}
		if !match {
			return model.UserResponse{}, ErrCurrentPasswordIncorrect
		}
		hash, err := crypto.HashPassword(newPassword)
		if err != nil {
			return model.UserResponse{}, err
		}
		user.PasswordHash = hash
	}

	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateEmail):
			return model.UserResponse{}, ErrEmailTaken
		case errors.Is(err, repository.ErrUserNotFound):
			return model.UserResponse{}, ErrUserNotFound
		default:
			return model.UserResponse{}, err
		}
	}

	return user.ToResponse(), nil
}

func (s *AuthService) authResponse(user *model.User) (model.AuthResponse, error) {
	token, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return model.AuthResponse{}, fmt.Errorf("issue token: %w", err)
	}

	return model.AuthResponse{
		User:      user.ToResponse(),
		Token:     token,
		ExpiresAt: expiresAt,
	}, nil
}

// validateStruct turns the first validator failure into a field-specific ValidationError.
func (s *AuthService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return err
	}

	fe := fieldErrs[0]
	switch fe.Tag() {
	case "required":
		return apperr.Validation(fe.Field() + " is required")
	case "email":
		return apperr.Validation(fe.Field() + " must be a valid email address")
	case "min":
		return apperr.Validation(fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
	case "max":
		return apperr.Validation(fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
	case "password":
		if utf8.RuneCountInString(fieldString(fe.Value())) < crypto.MinPasswordLength {
			return apperr.Validation(fmt.Sprintf("%s must be at least %d characters", fe.Field(), crypto.MinPasswordLength))
		}
		return apperr.Validation(fmt.Sprintf("%s must be at most %d characters", fe.Field(), crypto.MaxPasswordLength))
	default:
		return apperr.Validation(fe.Field() + " is invalid")
	}
}

func fieldString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case *string:
		return deref(s)
	default:
		return ""
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// trimmed returns nil for absent or blank values so they count as unchanged.
func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" {
		return nil
	}
	return &t
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
