package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ingsis25/snippet-searcher/internal/ops"
)

// emailClaim is the provider's namespaced email claim. Auth0 puts custom
// claims under a URL-shaped namespace; the plain "email" claim is tried
// first for providers (and the devserver) that use the standard name.
const emailClaim = "https://snippet-searcher.api/email"

// identityFromToken reads sub and email out of a JWT access token WITHOUT
// verifying the signature. The client has no business holding the signing
// key — every backend verifies the token on its own; here the claims are
// only used to label the session.
func identityFromToken(accessToken string) (ops.Identity, error) {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(accessToken, claims); err != nil {
		return ops.Identity{}, fmt.Errorf("parsing access token: %w", err)
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return ops.Identity{}, fmt.Errorf("access token has no subject claim")
	}

	email := ""
	if v, ok := claims["email"].(string); ok {
		email = v
	} else if v, ok := claims[emailClaim].(string); ok {
		email = v
	}

	return ops.Identity{Sub: sub, Email: email}, nil
}
