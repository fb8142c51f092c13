package sessions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jrsteele09/firestore-auth/credentials"
	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/jrsteele09/firestore-auth/token/exchange"
	"github.com/jrsteele09/firestore-auth/token/jwt"
	"github.com/rs/zerolog/log"
)

// UserSession impersonates a Firebase Auth user. Firestore security rules
// apply to every call made with it.
//
// A session is not safe for concurrent use, wrap it with Synchronized.
type UserSession struct {
	UserID string

	creds        *credentials.Credentials
	accessToken  string
	expiry       time.Time
	refreshToken string
	opts         settings
}

// UserSessionParams are the inputs NewUserSession tries, in order: access
// token, refresh token, user id.
type UserSessionParams struct {
	UserID       string
	AccessToken  string
	RefreshToken string
}

func (c *UserSession) ProjectID() string {
	return c.creds.ProjectID
}

// Bearer returns the access token, refreshing it once when it is within the
// margin of its expiry. A failed refresh fails the call and leaves the session
// as it was.
func (c *UserSession) Bearer(ctx context.Context) (string, error) {
	if !c.opts.stale(c.expiry) {
		return c.accessToken, nil
	}

	if c.refreshToken == "" {
		return "", fmt.Errorf("%w: user %s", fberrors.ErrTokenExpiredNoRefresh, c.UserID)
	}

	res, err := c.opts.exchange.RefreshAccessToken(ctx, c.refreshToken, c.creds.APIKey)
	if err != nil {
		log.Warn().Err(err).Str("user_id", c.UserID).Msg("Access token refresh failed")
		return "", fberrors.Wrapf(err, "failed to refresh access token")
	}

	c.accessToken = res.IDToken
	c.refreshToken = res.RefreshToken
	c.expiry = c.expiryOf(res.IDToken, res.ExpiresIn)

	log.Debug().Str("user_id", c.UserID).Str("token", tokenPrefix(c.accessToken)).Time("expiry", c.expiry).Msg("Access token refreshed")
	return c.accessToken, nil
}

func (c *UserSession) BearerUnchecked() string {
	return c.accessToken
}

// RefreshToken is empty for sessions that cannot renew themselves
func (c *UserSession) RefreshToken() string {
	return c.refreshToken
}

func (c *UserSession) Expiry() time.Time {
	return c.expiry
}

func (c *UserSession) Credentials() *credentials.Credentials {
	return c.creds
}

// expiryOf prefers the lifetime reported by the endpoint and falls back to
// the exp claim of the token.
func (c *UserSession) expiryOf(idToken string, expiresIn time.Duration) time.Time {
	if expiresIn > 0 {
		return c.opts.nowFunc().Add(expiresIn)
	}
	if claims, err := jwt.ParseUnverified(idToken); err == nil && claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return c.opts.nowFunc()
}

func newUserSession(creds *credentials.Credentials, options []Option) *UserSession {
	return &UserSession{
		creds: creds,
		opts: newSettings(func() *exchange.Client {
			return exchange.NewClient(exchange.WithHTTPClient(creds.HTTPClient()))
		}, options),
	}
}

// UserSessionByUserID signs a custom token for userID and exchanges it for an
// ID token. With withRefresh a refresh token is requested too; Google only
// keeps a limited number of them per user, so short lived processes should
// not ask for one.
func UserSessionByUserID(ctx context.Context, creds *credentials.Credentials, userID string, withRefresh bool, options ...Option) (*UserSession, error) {
	c := newUserSession(creds, options)
	c.UserID = userID

	claims := jwt.NewIdentityClaims(creds.ClientEmail, userID, c.opts.nowFunc(), c.opts.validity)
	customToken, err := jwt.Sign(claims, creds.Signer())
	if err != nil {
		return nil, fberrors.Wrapf(err, "failed to sign custom token")
	}

	res, err := c.opts.exchange.ExchangeCustomToken(ctx, customToken, creds.APIKey, withRefresh, userID)
	if err != nil {
		return nil, err
	}

	c.accessToken = res.IDToken
	c.refreshToken = res.RefreshToken
	c.expiry = c.expiryOf(res.IDToken, res.ExpiresIn)
	return c, nil
}

// UserSessionByRefreshToken creates a session from a persisted refresh token
func UserSessionByRefreshToken(ctx context.Context, creds *credentials.Credentials, refreshToken string, options ...Option) (*UserSession, error) {
	c := newUserSession(creds, options)

	res, err := c.opts.exchange.RefreshAccessToken(ctx, refreshToken, creds.APIKey)
	if err != nil {
		return nil, err
	}

	c.UserID = res.UserID
	c.accessToken = res.IDToken
	c.refreshToken = res.RefreshToken
	c.expiry = c.expiryOf(res.IDToken, res.ExpiresIn)
	return c, nil
}

// UserSessionByAccessToken verifies accessToken offline against the
// credentials' public keys. The session cannot renew itself. Errors match
// ErrInvalidToken and the specific verification error.
func UserSessionByAccessToken(creds *credentials.Credentials, accessToken string, options ...Option) (*UserSession, error) {
	c := newUserSession(creds, options)

	claims, err := jwt.Verify(accessToken, creds.KeySet(), jwt.WithNow(c.opts.nowFunc))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fberrors.ErrInvalidToken, err)
	}
	if len(claims.Audience) > 0 && !slices.Contains(claims.Audience, creds.ProjectID) {
		return nil, fmt.Errorf("%w: token audience %v does not include project %s", fberrors.ErrInvalidToken, []string(claims.Audience), creds.ProjectID)
	}

	c.UserID = claims.Subject
	c.accessToken = accessToken
	c.expiry = claims.ExpiresAt.Time
	return c, nil
}

// NewUserSession tries the access token, then the refresh token, then the user
// id, returning the first session that works. A working access token keeps the
// given refresh token so the session can renew itself later.
func NewUserSession(ctx context.Context, creds *credentials.Credentials, params UserSessionParams, options ...Option) (*UserSession, error) {
	if params.AccessToken == "" && params.RefreshToken == "" && params.UserID == "" {
		return nil, fberrors.ErrNoParameters
	}

	var errs []error
	if params.AccessToken != "" {
		c, err := UserSessionByAccessToken(creds, params.AccessToken, options...)
		if err == nil {
			c.refreshToken = params.RefreshToken
			return c, nil
		}
		errs = append(errs, err)
	}

	if params.RefreshToken != "" {
		c, err := UserSessionByRefreshToken(ctx, creds, params.RefreshToken, options...)
		if err == nil {
			return c, nil
		}
		errs = append(errs, err)
	}

	if params.UserID != "" {
		c, err := UserSessionByUserID(ctx, creds, params.UserID, true, options...)
		if err == nil {
			return c, nil
		}
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("%w: %w", fberrors.ErrNoParameters, errors.Join(errs...))
}

// UserSessionByOAuth2 signs in with a token issued by a federated provider.
// The Firebase account is created when it does not exist yet.
func UserSessionByOAuth2(ctx context.Context, creds *credentials.Credentials, providerToken string, provider exchange.Provider, requestURI string, withRefresh bool, options ...Option) (*UserSession, error) {
	c := newUserSession(creds, options)

	res, err := c.opts.exchange.SignInWithIdp(ctx, creds.APIKey, providerToken, provider, requestURI)
	if err != nil {
		return nil, err
	}

	return UserSessionByUserID(ctx, creds, res.LocalID, withRefresh, append(options, WithExchangeClient(c.opts.exchange))...)
}
