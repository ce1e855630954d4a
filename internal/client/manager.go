package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/resumeai/resumeai-go/internal/model"
)

// State is the client's view of whether it holds a valid session.
type State int

const (
	Anonymous State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "anonymous"
}

var ErrNotLoggedIn = errors.New("not logged in")

// Manager ties the API client to the persisted session.
type Manager struct {
	api   *Client
	store *FileStore
}

func NewManager(api *Client, store *FileStore) *Manager {
	return &Manager{api: api, store: store}
}

// Bootstrap restores a persisted session by probing the API. A session the
// server rejects with 401 is discarded. Any other failure is returned with
// the Anonymous state and the stored session is kept for the next attempt.
func (m *Manager) Bootstrap(ctx context.Context) (State, model.UserResponse, error) {
	sess, ok, err := m.store.Load()
	if err != nil {
		return Anonymous, model.UserResponse{}, err
	}
	if !ok {
		return Anonymous, model.UserResponse{}, nil
	}

	user, err := m.api.Me(ctx, sess.Token)
	if err != nil {
		if IsUnauthorized(err) {
			if clearErr := m.store.Clear(); clearErr != nil {
				return Anonymous, model.UserResponse{}, clearErr
			}
			return Anonymous, model.UserResponse{}, nil
		}
		return Anonymous, model.UserResponse{}, err
	}

	sess.User = user
	if err := m.store.Save(sess); err != nil {
		return Authenticated, user, fmt.Errorf("refresh stored session: %w", err)
	}
	return Authenticated, user, nil
}

func (m *Manager) Register(ctx context.Context, req model.RegisterRequest) (model.UserResponse, error) {
	resp, err := m.api.Register(ctx, req)
	if err != nil {
		return model.UserResponse{}, err
	}
	return resp.User, m.store.Save(Session{Token: resp.Token, User: resp.User})
}

func (m *Manager) Login(ctx context.Context, req model.LoginRequest) (model.UserResponse, error) {
	resp, err := m.api.Login(ctx, req)
	if err != nil {
		return model.UserResponse{}, err
	}
	return resp.User, m.store.Save(Session{Token: resp.Token, User: resp.User})
}

// Logout notifies the server and removes the local session even when the
// server cannot be reached.
func (m *Manager) Logout(ctx context.Context) error {
	sess, ok, loadErr := m.store.Load()

	var apiErr error
	if ok {
		apiErr = m.api.Logout(ctx, sess.Token)
	}

	return errors.Join(loadErr, apiErr, m.store.Clear())
}

func (m *Manager) UpdateProfile(ctx context.Context, req model.UpdateProfileRequest) (model.UserResponse, error) {
	sess, ok, err := m.store.Load()
	if err != nil {
		return model.UserResponse{}, err
	}
	if !ok {
		return model.UserResponse{}, ErrNotLoggedIn
	}

	user, err := m.api.UpdateProfile(ctx, sess.Token, req)
	if err != nil {
		if IsUnauthorized(err) {
			_ = m.store.Clear()
		}
		return model.UserResponse{}, err
	}

	sess.User = user
	return user, m.store.Save(sess)
}
