package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// SecureTokenCookie is the token cookie issued behind TLS.
	SecureTokenCookie = "__Secure-plantsim.session-token"

	// PlainTokenCookie is the fallback token cookie for plain HTTP
	// deployments (development, lab networks).
	PlainTokenCookie = "plantsim.session-token"
)

var ErrInvalidToken = errors.New("auth: invalid token")

// Claims is the payload carried by an auth token.
type Claims struct {
	Operator string `json:"operator"`
	Name     string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies the auth token bound to one cookie name. The
// signing key is derived from the shared secret and the cookie name, so a
// token minted for the secure cookie never validates under the plain one.
type Codec struct {
	cookieName string
	key        []byte
}

// NewCodec creates a codec for the given cookie name.
func NewCodec(cookieName string, secret []byte) *Codec {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("plantsim console token|" + cookieName))
	return &Codec{cookieName: cookieName, key: mac.Sum(nil)}
}

// CookieName returns the cookie this codec reads and writes.
func (c *Codec) CookieName() string {
	return c.cookieName
}

// Encode mints a signed token.
func (c *Codec) Encode(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Decode verifies a signed token and returns its claims.
func (c *Codec) Decode(tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return c.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return claims, nil
}

// DecodeRequest reads this codec's cookie from a request and verifies it.
func (c *Codec) DecodeRequest(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(c.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrInvalidToken
	}
	return c.Decode(cookie.Value)
}

// DefaultStrategies returns the ordered decode strategies: the secure cookie
// first, then the plain one. The guard tries each in turn and stops at the
// first success.
func DefaultStrategies(secret []byte) []*Codec {
	return []*Codec{
		NewCodec(SecureTokenCookie, secret),
		NewCodec(PlainTokenCookie, secret),
	}
}

// Authenticate runs the strategies against a request. Missing cookies and
// decode failures count uniformly as unauthenticated, never as an error.
func Authenticate(r *http.Request, strategies []*Codec) *Claims {
	for _, codec := range strategies {
		if claims, err := codec.DecodeRequest(r); err == nil {
			return claims
		}
	}
	return nil
}

// NewSessionClaims builds the claims for a freshly signed-in operator.
func NewSessionClaims(username, name string, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		Operator: username,
		Name:     name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
}
