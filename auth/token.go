// Package auth resolves and inspects the bearer token the offline core
// attaches to remote API calls. The token is minted by the Khyrie identity
// service; the client never verifies the signature, it only reads claims to
// avoid burning sync passes on a token the server will reject anyway.
package auth

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource identifies where a token was resolved from.
type TokenSource string

const (
	// TokenSourceAPIEnv is KHYRIE_API_TOKEN.
	TokenSourceAPIEnv TokenSource = "khyrie_api_token"
	// TokenSourceSharedEnv is KHYRIE_TOKEN.
	TokenSourceSharedEnv TokenSource = "khyrie_token"
	// TokenSourceStatic is a token handed in by the UI shell at init.
	TokenSourceStatic TokenSource = "static"
)

// TokenResolution contains the resolved token and its source.
type TokenResolution struct {
	Token  string
	Source TokenSource
}

// ErrNoToken is returned when no token could be resolved from any source.
var ErrNoToken = errors.New("no API token configured")

// ErrTokenExpired is returned when the resolved token's exp claim has passed.
var ErrTokenExpired = errors.New("API token expired")

// ResolveToken resolves the bearer token using deterministic precedence:
// 1) the static token (when non-empty), 2) KHYRIE_API_TOKEN, 3) KHYRIE_TOKEN.
func ResolveToken(static string) (TokenResolution, error) {
	if token := strings.TrimSpace(static); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceStatic}, nil
	}
	if token := strings.TrimSpace(os.Getenv("KHYRIE_API_TOKEN")); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceAPIEnv}, nil
	}
	if token := strings.TrimSpace(os.Getenv("KHYRIE_TOKEN")); token != "" {
		return TokenResolution{Token: token, Source: TokenSourceSharedEnv}, nil
	}
	return TokenResolution{}, ErrNoToken
}

// Claims is the subset of token claims the offline core cares about.
type Claims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
}

// Inspect decodes token claims without signature verification. Verification
// belongs to the server; the client only needs subject and expiry.
func Inspect(token string) (*Claims, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, errors.New("decode token: unexpected claims shape")
	}

	subject, _ := claims["sub"].(string)
	issuer, _ := claims["iss"].(string)

	out := &Claims{Subject: subject, Issuer: issuer}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out, nil
}

// CheckUsable reports whether the token is still worth attaching: a parseable
// token with a passed exp claim yields ErrTokenExpired. Opaque (non-JWT)
// tokens are assumed usable.
func CheckUsable(token string, now time.Time) error {
	claims, err := Inspect(token)
	if err != nil {
		return nil
	}
	if !claims.ExpiresAt.IsZero() && now.After(claims.ExpiresAt) {
		return ErrTokenExpired
	}
	return nil
}
