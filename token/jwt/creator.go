package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/firestore-auth/token/keys"
)

// Audiences of the two Google APIs a self-signed token can be presented to
const (
	AudienceFirestore = "https://firestore.googleapis.com/google.firestore.v1.Firestore"
	AudienceIdentity  = "https://identitytoolkit.googleapis.com/google.identity.identitytoolkit.v1.IdentityToolkit"
)

// Claims is the payload of both the tokens this package signs and the
// Firebase ID tokens it verifies.
type Claims struct {
	jwtlib.RegisteredClaims
	UID      string `json:"uid,omitempty"`
	Scope    string `json:"scope,omitempty"`
	ClientID string `json:"client_id,omitempty"`
}

// NewFirestoreClaims builds the claims of a service account token accepted by
// the Firestore REST API, valid from now for validity.
func NewFirestoreClaims(clientEmail, clientID string, now time.Time, validity time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    clientEmail,
			Subject:   clientEmail,
			Audience:  jwtlib.ClaimStrings{AudienceFirestore},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(validity)),
		},
		ClientID: clientID,
	}
}

// NewIdentityClaims builds the custom token used to impersonate uid against
// the Identity Toolkit.
func NewIdentityClaims(clientEmail, uid string, now time.Time, validity time.Duration) Claims {
	return Claims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    clientEmail,
			Subject:   clientEmail,
			Audience:  jwtlib.ClaimStrings{AudienceIdentity},
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(validity)),
		},
		UID: uid,
	}
}

// ToMapClaims flattens the claims. A single audience is written as a plain
// string, which is what the Google endpoints expect.
func (c Claims) ToMapClaims() jwtlib.MapClaims {
	claims := jwtlib.MapClaims{}
	if c.Issuer != "" {
		claims["iss"] = c.Issuer
	}
	if c.Subject != "" {
		claims["sub"] = c.Subject
	}
	switch len(c.Audience) {
	case 0:
	case 1:
		claims["aud"] = c.Audience[0]
	default:
		claims["aud"] = []string(c.Audience)
	}
	if c.IssuedAt != nil {
		claims["iat"] = c.IssuedAt.Unix()
	}
	if c.ExpiresAt != nil {
		claims["exp"] = c.ExpiresAt.Unix()
	}
	if c.NotBefore != nil {
		claims["nbf"] = c.NotBefore.Unix()
	}
	if c.ID != "" {
		claims["jti"] = c.ID
	}
	if c.UID != "" {
		claims["uid"] = c.UID
	}
	if c.Scope != "" {
		claims["scope"] = c.Scope
	}
	if c.ClientID != "" {
		claims["client_id"] = c.ClientID
	}
	return claims
}

// Sign serializes claims into a compact RS256 token whose kid header names
// the signer's key. Identical claims produce identical tokens.
func Sign(claims Claims, signer keys.Signer) (string, error) {
	if claims.ExpiresAt != nil && claims.IssuedAt != nil && !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return "", fmt.Errorf("token expiry %v is not after issue time %v", claims.ExpiresAt.Time, claims.IssuedAt.Time)
	}

	signedToken, err := signer.Sign(claims.ToMapClaims())
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT token: %w", err)
	}
	return signedToken, nil
}
