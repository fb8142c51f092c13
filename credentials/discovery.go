package credentials

import (
	"context"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
)

// DiscoverJWKSURL reads the jwks_uri of an OpenID issuer, for example
// https://securetoken.google.com/<project-id>.
func DiscoverJWKSURL(ctx context.Context, client *http.Client, issuer string) (string, error) {
	if client != nil {
		ctx = oidc.ClientContext(ctx, client)
	}

	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return "", fmt.Errorf("failed to discover issuer %s: %w", issuer, err)
	}

	var claims struct {
		JWKSURI string `json:"jwks_uri"`
	}
	if err := provider.Claims(&claims); err != nil {
		return "", fmt.Errorf("failed to read provider metadata: %w", err)
	}
	if claims.JWKSURI == "" {
		return "", fmt.Errorf("issuer %s publishes no jwks_uri", issuer)
	}

	return claims.JWKSURI, nil
}
