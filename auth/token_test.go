package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestResolveTokenPrecedence(t *testing.T) {
	t.Setenv("KHYRIE_API_TOKEN", "from-api-env")
	t.Setenv("KHYRIE_TOKEN", "from-shared-env")

	resolution, err := ResolveToken("from-static")
	require.NoError(t, err)
	require.Equal(t, "from-static", resolution.Token)
	require.Equal(t, TokenSourceStatic, resolution.Source)

	resolution, err = ResolveToken("")
	require.NoError(t, err)
	require.Equal(t, "from-api-env", resolution.Token)
	require.Equal(t, TokenSourceAPIEnv, resolution.Source)

	t.Setenv("KHYRIE_API_TOKEN", "")
	resolution, err = ResolveToken("")
	require.NoError(t, err)
	require.Equal(t, "from-shared-env", resolution.Token)
	require.Equal(t, TokenSourceSharedEnv, resolution.Source)
}

func TestResolveTokenNoSources(t *testing.T) {
	t.Setenv("KHYRIE_API_TOKEN", "")
	t.Setenv("KHYRIE_TOKEN", "")

	_, err := ResolveToken("")
	require.ErrorIs(t, err, ErrNoToken)
}

func TestInspectReadsClaims(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{
		"sub": "user-42",
		"iss": "khyrie.identity",
		"exp": exp.Unix(),
	})

	claims, err := Inspect(token)
	require.NoError(t, err)
	require.Equal(t, "user-42", claims.Subject)
	require.Equal(t, "khyrie.identity", claims.Issuer)
	require.True(t, claims.ExpiresAt.Equal(exp), "exp claim should round-trip")
}

func TestInspectRejectsGarbage(t *testing.T) {
	_, err := Inspect("not-a-jwt")
	require.Error(t, err)
}

func TestCheckUsable(t *testing.T) {
	now := time.Now()

	fresh := signedToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(time.Hour).Unix()})
	require.NoError(t, CheckUsable(fresh, now))

	expired := signedToken(t, jwt.MapClaims{"sub": "u", "exp": now.Add(-time.Hour).Unix()})
	require.ErrorIs(t, CheckUsable(expired, now), ErrTokenExpired)

	// Opaque tokens are assumed usable; the server is the authority.
	require.NoError(t, CheckUsable("opaque-session-token", now))

	// No exp claim means no client-side expiry.
	eternal := signedToken(t, jwt.MapClaims{"sub": "u"})
	require.NoError(t, CheckUsable(eternal, now))
}
