package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("token-test-secret-at-least-32-bytes!")

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(SecureTokenCookie, testSecret)

	token, err := codec.Encode(NewSessionClaims("op1", "Operator One", time.Hour))
	require.NoError(t, err)

	claims, err := codec.Decode(token)
	require.NoError(t, err)
	require.Equal(t, "op1", claims.Operator)
	require.Equal(t, "Operator One", claims.Name)
	require.Equal(t, "op1", claims.Subject)
}

func TestCodecKeysAreCookieScoped(t *testing.T) {
	secure := NewCodec(SecureTokenCookie, testSecret)
	plain := NewCodec(PlainTokenCookie, testSecret)

	token, err := secure.Encode(NewSessionClaims("op1", "", time.Hour))
	require.NoError(t, err)

	_, err = plain.Decode(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodecRejectsExpiredToken(t *testing.T) {
	codec := NewCodec(PlainTokenCookie, testSecret)

	token, err := codec.Encode(NewSessionClaims("op1", "", -time.Minute))
	require.NoError(t, err)

	_, err = codec.Decode(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestCodecRejectsGarbage(t *testing.T) {
	codec := NewCodec(PlainTokenCookie, testSecret)

	_, err := codec.Decode("not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticateOrderedFallback(t *testing.T) {
	strategies := DefaultStrategies(testSecret)

	secureToken, err := strategies[0].Encode(NewSessionClaims("secure-op", "", time.Hour))
	require.NoError(t, err)
	plainToken, err := strategies[1].Encode(NewSessionClaims("plain-op", "", time.Hour))
	require.NoError(t, err)

	t.Run("secure wins when both present", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: SecureTokenCookie, Value: secureToken})
		r.AddCookie(&http.Cookie{Name: PlainTokenCookie, Value: plainToken})

		claims := Authenticate(r, strategies)
		require.NotNil(t, claims)
		require.Equal(t, "secure-op", claims.Operator)
	})

	t.Run("falls back to plain", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: PlainTokenCookie, Value: plainToken})

		claims := Authenticate(r, strategies)
		require.NotNil(t, claims)
		require.Equal(t, "plain-op", claims.Operator)
	})

	t.Run("no cookies", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		require.Nil(t, Authenticate(r, strategies))
	})

	t.Run("invalid secure does not mask valid plain", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.AddCookie(&http.Cookie{Name: SecureTokenCookie, Value: "garbage"})
		r.AddCookie(&http.Cookie{Name: PlainTokenCookie, Value: plainToken})

		claims := Authenticate(r, strategies)
		require.NotNil(t, claims)
		require.Equal(t, "plain-op", claims.Operator)
	})
}
