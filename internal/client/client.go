// Package client is a Go client for the account API. It keeps the session
// token on disk and restores it on start-up.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/resumeai/resumeai-go/internal/model"
	"github.com/resumeai/resumeai-go/internal/session"
)

var ErrRequestInFlight = errors.New("another request is already in progress")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("api error: %d %s", e.Status, e.Message)
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// Client talks to the account API. It runs one request at a time; a call
// made while another is in flight fails with ErrRequestInFlight.
type Client struct {
	baseURL   string
	transport string
	http      *http.Client
	busy      atomic.Bool
}

// New creates a Client. transport must match the server's SESSION_TRANSPORT.
// A nil httpClient means http.DefaultClient; deadlines come from the caller's context.
func New(baseURL, transport string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		http:      httpClient,
	}
}

func (c *Client) Register(ctx context.Context, req model.RegisterRequest) (model.AuthResponse, error) {
	var resp model.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/register", "", req, &resp)
	return resp, err
}

func (c *Client) Login(ctx context.Context, req model.LoginRequest) (model.AuthResponse, error) {
	var resp model.AuthResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", req, &resp)
	return resp, err
}

func (c *Client) Logout(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodGet, "/auth/logout", token, nil, nil)
}

func (c *Client) Me(ctx context.Context, token string) (model.UserResponse, error) {
	var env model.UserEnvelope
	err := c.do(ctx, http.MethodGet, "/auth/me", token, nil, &env)
	return env.User, err
}

func (c *Client) UpdateProfile(ctx context.Context, token string, req model.UpdateProfileRequest) (model.UserResponse, error) {
	var env model.UserEnvelope
	err := c.do(ctx, http.MethodPut, "/users/profile", token, req, &env)
	return env.User, err
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	if !c.busy.CompareAndSwap(false, true) {
		return ErrRequestInFlight
	}
	defer c.busy.Store(false)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.presentToken(req, token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
		return &APIError{Status: resp.StatusCode, Message: payload.Error}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) presentToken(req *http.Request, token string) {
	if token == "" {
		return
	}
	if c.transport == "bearer" {
		req.Header.Set("Authorization", "Bearer "+token)
		return
	}
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: token})
}
