// Package session carries session tokens between the API and its clients.
// A deployment uses exactly one Transport for every request.
package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// CookieName is the name of the session cookie.
const CookieName = "token"

// Transport reads and writes session tokens on HTTP exchanges.
type Transport interface {
	// Token extracts the presented token, or "" when none was presented.
	Token(r *http.Request) string
	// Issue hands a freshly minted token to the client.
	Issue(w http.ResponseWriter, token string, expiresAt time.Time)
	// Clear removes the client's copy of the token.
	Clear(w http.ResponseWriter)
	Name() string
}

// CookieOptions configures the session cookie.
type CookieOptions struct {
	Secure   bool
	SameSite string
	Domain   string
}

// New returns the transport with the given name ("cookie" or "bearer").
func New(name string, opts CookieOptions) (Transport, error) {
	switch name {
	case "cookie":
		return NewCookieTransport(opts), nil
	case "bearer":
		return BearerTransport{}, nil
	default:
		return nil, fmt.Errorf("unknown session transport %q", name)
	}
}

// CookieTransport keeps the token in an HTTP-only cookie.
type CookieTransport struct {
	secure   bool
	sameSite http.SameSite
	domain   string
	now      func() time.Time
}

func NewCookieTransport(opts CookieOptions) *CookieTransport {
	return &CookieTransport{
		secure:   opts.Secure,
		sameSite: parseSameSite(opts.SameSite),
		domain:   opts.Domain,
		now:      time.Now,
	}
}

func (t *CookieTransport) Name() string { return "cookie" }

func (t *CookieTransport) Token(r *http.Request) string {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func (t *CookieTransport) Issue(w http.ResponseWriter, token string, expiresAt time.Time) {
	maxAge := int(expiresAt.Sub(t.now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	http.SetCookie(w, t.cookie(token, maxAge, expiresAt))
}

// Clear overwrites the cookie with an already expired one.
func (t *CookieTransport) Clear(w http.ResponseWriter) {
	http.SetCookie(w, t.cookie("", -1, time.Unix(0, 0)))
}

func (t *CookieTransport) cookie(value string, maxAge int, expires time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    value,
		Path:     "/",
		Domain:   t.domain,
		MaxAge:   maxAge,
		Expires:  expires.UTC(),
		Secure:   t.secure,
		HttpOnly: true,
		SameSite: t.sameSite,
	}
}

func parseSameSite(s string) http.SameSite {
	switch strings.ToLower(s) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

// BearerTransport reads the token from the Authorization header. The client
// stores the token from the response body, so nothing is set or cleared.
type BearerTransport struct{}

func (BearerTransport) Name() string { return "bearer" }

func (BearerTransport) Token(r *http.Request) string {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

func (BearerTransport) Issue(http.ResponseWriter, string, time.Time) {}

func (BearerTransport) Clear(http.ResponseWriter) {}
