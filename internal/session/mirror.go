package session

import (
	"net/http"
	"sync"
)

const (
	// CookieName is the server-readable mirror of the active session id.
	CookieName = "current-session-id"

	// cookieMaxAge is 30 days in seconds.
	cookieMaxAge = 30 * 24 * 60 * 60
)

// Mirror is the side channel the store writes the active session id into so
// the request-routing layer, which runs outside the store's memory space,
// can read it. Set and Clear are synchronous from the store's perspective.
type Mirror interface {
	Set(sessionID string)
	Clear()
}

// CookieMirror implements Mirror over the browser cookie jar. The store
// records the desired cookie state synchronously; Apply reconciles it onto a
// response whenever the request's cookie disagrees, so the next navigation
// carries the up-to-date value.
type CookieMirror struct {
	mu      sync.Mutex
	id      string
	present bool
	secure  bool
}

// NewCookieMirror creates a cookie mirror. When secure is true the cookie is
// marked Secure, for production deployments behind TLS.
func NewCookieMirror(secure bool) *CookieMirror {
	return &CookieMirror{secure: secure}
}

func (c *CookieMirror) Set(sessionID string) {
	c.mu.Lock()
	c.id = sessionID
	c.present = true
	c.mu.Unlock()
}

func (c *CookieMirror) Clear() {
	c.mu.Lock()
	c.id = ""
	c.present = false
	c.mu.Unlock()
}

// Apply writes the mirror cookie onto the response when the request carries
// a stale or missing value, and deletes it when no session is active.
func (c *CookieMirror) Apply(w http.ResponseWriter, r *http.Request) {
	c.mu.Lock()
	id, present := c.id, c.present
	c.mu.Unlock()

	got, err := r.Cookie(CookieName)
	switch {
	case present && (err != nil || got.Value != id):
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    id,
			Path:     "/",
			MaxAge:   cookieMaxAge,
			SameSite: http.SameSiteLaxMode,
			Secure:   c.secure,
		})
	case !present && err == nil:
		// Deletion is a Max-Age=0 cookie.
		http.SetCookie(w, &http.Cookie{
			Name:     CookieName,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			SameSite: http.SameSiteLaxMode,
			Secure:   c.secure,
		})
	}
}

// Middleware reconciles the mirror cookie on every response.
func (c *CookieMirror) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c.Apply(w, r)
			next.ServeHTTP(w, r)
		})
	}
}
