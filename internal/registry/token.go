package registry

import (
	"context"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2/clientcredentials"
)

// NewClientCredentialsSource wraps an OAuth2 client-credentials flow as a
// TokenSource, for registries that authenticate service clients rather
// than end users. There is no end user on this path, only the resolver
// itself, so the flow is two-legged.
func NewClientCredentialsSource(tokenURL, clientID, clientSecret string, scopes ...string) TokenSource {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		Scopes:       scopes,
	}
	return oauth2Source{cfg: cfg}
}

type oauth2Source struct {
	cfg *clientcredentials.Config
}

func (s oauth2Source) Token(ctx context.Context) (string, error) {
	tok, err := s.cfg.Token(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// TokenInspector checks a configured bearer token's "exp" claim and logs a
// warning when it is close to expiry. It does not validate the token's
// signature; the resolver has no reason to hold the registry's signing key.
type TokenInspector struct {
	warnWithin time.Duration
}

// NewTokenInspector builds a TokenInspector that warns when a token's
// expiry is within warnWithin.
func NewTokenInspector(warnWithin time.Duration) *TokenInspector {
	return &TokenInspector{warnWithin: warnWithin}
}

// Inspect parses token as an unverified JWT and logs a warning if its exp
// claim is within the configured window (or absent/unparsable, which is
// logged as informational, not an error — plenty of registries hand out
// opaque bearer tokens with no JWT structure at all).
func (i *TokenInspector) Inspect(token string) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	_, _, err := parser.ParseUnverified(token, claims)
	if err != nil {
		log.Printf("registry: configured token is not a JWT (or is malformed); skipping expiry check: %v", err)
		return
	}
	expVal, ok := claims["exp"]
	if !ok {
		log.Printf("registry: configured token has no exp claim; skipping expiry check")
		return
	}
	expFloat, ok := expVal.(float64)
	if !ok {
		log.Printf("registry: configured token exp claim has unexpected type %T", expVal)
		return
	}
	exp := time.Unix(int64(expFloat), 0)
	remaining := time.Until(exp)
	if remaining <= 0 {
		log.Printf("registry: configured token expired at %s", exp)
		return
	}
	if remaining <= i.warnWithin {
		log.Printf("registry: configured token expires in %s (at %s)", remaining.Round(time.Second), exp)
	}
}
