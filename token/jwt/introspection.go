package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/jrsteele09/firestore-auth/token/keys"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

type verifyOptions struct {
	nowFunc func() time.Time
	leeway  time.Duration
}

type VerifyOption func(*verifyOptions)

// WithNow sets the clock used for the expiry check
func WithNow(now func() time.Time) VerifyOption {
	return func(o *verifyOptions) {
		o.nowFunc = now
	}
}

func WithLeeway(leeway time.Duration) VerifyOption {
	return func(o *verifyOptions) {
		o.leeway = leeway
	}
}

func (o verifyOptions) parser() *jwtlib.Parser {
	return jwtlib.NewParser(
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodRS256.Alg()}),
		jwtlib.WithStrictDecoding(),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(o.nowFunc),
		jwtlib.WithLeeway(o.leeway),
	)
}

// Verify checks a compact token against the key set and returns its claims.
//
// The checks run in a fixed order and the first failure decides the error:
// shape, header and payload (ErrMalformed), key id (ErrUnknownKeyID),
// signature (ErrInvalidSignature) and finally the claims (ErrExpired). The
// signature is always checked before any claim is trusted.
func Verify(token string, keySet *keys.KeySet, opts ...VerifyOption) (*Claims, error) {
	o := verifyOptions{nowFunc: NowTimeFunc}
	for _, opt := range opts {
		opt(&o)
	}
	parser := o.parser()

	// Route to a key first so an unknown kid is reported before the signature
	unverified, _, err := parser.ParseUnverified(token, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fberrors.ErrMalformed, err)
	}
	kid, _ := unverified.Header["kid"].(string)
	if _, ok := keySet.Lookup(kid); !ok {
		return nil, fmt.Errorf("%w: %q", fberrors.ErrUnknownKeyID, kid)
	}

	claims := &Claims{}
	_, err = parser.ParseWithClaims(token, claims, keySet.GetVerificationKey)
	switch {
	case err == nil:
		return claims, nil
	case errors.Is(err, fberrors.ErrUnknownKeyID):
		return nil, err
	case errors.Is(err, jwtlib.ErrTokenMalformed), errors.Is(err, jwtlib.ErrTokenSignatureInvalid),
		errors.Is(err, jwtlib.ErrTokenUnverifiable):
		// header and payload decoded above, so only the signature segment is left
		return nil, fmt.Errorf("%w: %w", fberrors.ErrInvalidSignature, err)
	case errors.Is(err, jwtlib.ErrTokenExpired), errors.Is(err, jwtlib.ErrTokenNotValidYet):
		return nil, fmt.Errorf("%w: %w", fberrors.ErrExpired, err)
	default:
		return nil, fmt.Errorf("%w: %w", fberrors.ErrMalformed, err)
	}
}

// ParseUnverified decodes the payload without checking anything. It is only
// used to read the expiry of a token this process just received from Google.
func ParseUnverified(token string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", fberrors.ErrMalformed, err)
	}
	return claims, nil
}

// KeyID returns the kid header of a token without verifying it
func KeyID(token string) (string, error) {
	parsed, _, err := jwtlib.NewParser().ParseUnverified(token, jwtlib.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("%w: %w", fberrors.ErrMalformed, err)
	}
	kid, _ := parsed.Header["kid"].(string)
	return kid, nil
}
