package http

import (
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

// RequireToken gates API handlers on the same predicate the guard uses.
// Unlike the page guard it never redirects: API clients get a 401 JSON body.
func RequireToken(authenticated func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticated(r) {
				log.Debug().Str("path", r.URL.Path).Msg("unauthenticated API request")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}` + "\n"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Guard gates navigation by route class. Unauthenticated requests to
// protected paths are redirected to sign-in with the original path as
// callbackUrl; authenticated requests to auth pages go back to the root.
// The guard is stateless: every decision derives from the request's cookies,
// checked by the supplied predicate (typically the ordered token decode
// strategies).
func Guard(authenticated func(*http.Request) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch Classify(r.URL.Path) {
			case RoutePublic, RouteOther:
				next.ServeHTTP(w, r)

			case RouteAuth:
				if authenticated(r) {
					http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
					return
				}
				next.ServeHTTP(w, r)

			case RouteProtected:
				if !authenticated(r) {
					log.Debug().Str("path", r.URL.Path).Msg("unauthenticated, redirecting to sign-in")
					target := "/auth/signin?callbackUrl=" + url.QueryEscape(r.URL.Path)
					http.Redirect(w, r, target, http.StatusTemporaryRedirect)
					return
				}
				next.ServeHTTP(w, r)
			}
		})
	}
}
