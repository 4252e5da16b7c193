package auth

import (
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	httpmiddleware "github.com/plantsim/console/internal/http"
)

// Handler serves the sign-in and sign-out endpoints. It issues the signed
// token cookie the route guard checks on every navigation.
type Handler struct {
	creds  *Credentials
	issuer *Codec
	secure bool
	ttl    time.Duration
	log    zerolog.Logger
}

// NewHandler creates the auth endpoints. When secure is true the secure
// cookie variant is issued; sign-out always clears both variants.
func NewHandler(creds *Credentials, secret []byte, secure bool, ttl time.Duration, log zerolog.Logger) *Handler {
	cookieName := PlainTokenCookie
	if secure {
		cookieName = SecureTokenCookie
	}
	return &Handler{
		creds:  creds,
		issuer: NewCodec(cookieName, secret),
		secure: secure,
		ttl:    ttl,
		log:    log,
	}
}

// Register wires the auth endpoints onto the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/auth/signin", h.SignIn)
	mux.HandleFunc("POST /api/auth/signout", h.SignOut)
}

// SignIn validates operator credentials and issues the token cookie. It
// redirects to the callbackUrl carried by the sign-in form so the guard's
// round trip lands the operator back on the page they asked for.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	username := r.PostFormValue("username")
	password := r.PostFormValue("password")
	callback := sanitizeCallback(r.FormValue("callbackUrl"))

	op, ok := h.creds.Verify(username, password)
	if !ok {
		h.log.Warn().
			Str("username", username).
			Str("client_ip", httpmiddleware.ClientIPFromContext(r.Context())).
			Msg("sign-in failed")

		q := url.Values{"error": {"CredentialsSignin"}}
		if callback != "/" {
			q.Set("callbackUrl", callback)
		}
		http.Redirect(w, r, "/auth/signin?"+q.Encode(), http.StatusSeeOther)
		return
	}

	token, err := h.issuer.Encode(NewSessionClaims(op.Username, op.Name, h.ttl))
	if err != nil {
		h.log.Error().Err(err).Msg("failed to issue token")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.issuer.CookieName(),
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.ttl.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	h.log.Info().
		Str("username", op.Username).
		Str("client_ip", httpmiddleware.ClientIPFromContext(r.Context())).
		Msg("operator signed in")

	http.Redirect(w, r, callback, http.StatusSeeOther)
}

// SignOut deletes both token cookie variants and sends the operator back to
// the sign-in page.
func (h *Handler) SignOut(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{SecureTokenCookie, PlainTokenCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.secure,
			SameSite: http.SameSiteLaxMode,
		})
	}

	http.Redirect(w, r, "/auth/signin", http.StatusSeeOther)
}

// sanitizeCallback keeps redirects on this origin. Anything that is not a
// plain absolute path collapses to the root.
func sanitizeCallback(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") {
		return "/"
	}
	if strings.HasPrefix(raw, "//") || strings.Contains(raw, "\\") {
		return "/"
	}
	return raw
}
