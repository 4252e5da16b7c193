package session

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func applyMirror(t *testing.T, m *CookieMirror, requestCookie string) []*http.Cookie {
	t.Helper()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if requestCookie != "" {
		r.AddCookie(&http.Cookie{Name: CookieName, Value: requestCookie})
	}

	w := httptest.NewRecorder()
	m.Apply(w, r)
	return w.Result().Cookies()
}

func TestCookieMirrorSetsCookie(t *testing.T) {
	m := NewCookieMirror(false)
	m.Set("run-42")

	cookies := applyMirror(t, m, "")
	require.Len(t, cookies, 1)

	c := cookies[0]
	require.Equal(t, CookieName, c.Name)
	require.Equal(t, "run-42", c.Value)
	require.Equal(t, "/", c.Path)
	require.Equal(t, 2592000, c.MaxAge)
	require.Equal(t, http.SameSiteLaxMode, c.SameSite)
}

func TestCookieMirrorRewritesStaleCookie(t *testing.T) {
	m := NewCookieMirror(false)
	m.Set("run-43")

	cookies := applyMirror(t, m, "run-42")
	require.Len(t, cookies, 1)
	require.Equal(t, "run-43", cookies[0].Value)
}

func TestCookieMirrorNoopWhenInSync(t *testing.T) {
	m := NewCookieMirror(false)
	m.Set("run-42")

	cookies := applyMirror(t, m, "run-42")
	require.Empty(t, cookies)
}

func TestCookieMirrorDeletesCookie(t *testing.T) {
	m := NewCookieMirror(false)
	m.Clear()

	cookies := applyMirror(t, m, "run-42")
	require.Len(t, cookies, 1)
	// Max-Age=0 on the wire parses back as -1.
	require.Equal(t, -1, cookies[0].MaxAge)
	require.Empty(t, cookies[0].Value)
}

func TestCookieMirrorNoopWhenClearedAndAbsent(t *testing.T) {
	m := NewCookieMirror(false)

	cookies := applyMirror(t, m, "")
	require.Empty(t, cookies)
}

func TestCookieMirrorSecureFlag(t *testing.T) {
	m := NewCookieMirror(true)
	m.Set("run-42")

	cookies := applyMirror(t, m, "")
	require.Len(t, cookies, 1)
	require.True(t, cookies[0].Secure)
}
