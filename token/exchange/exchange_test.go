package exchange_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/jrsteele09/firestore-auth/credentials"
	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/jrsteele09/firestore-auth/internal/googlefake"
	"github.com/jrsteele09/firestore-auth/token/exchange"
	"github.com/jrsteele09/firestore-auth/token/jwt"
	"github.com/jrsteele09/firestore-auth/token/keys"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	fake   *googlefake.Server
	creds  *credentials.Credentials
	client *exchange.Client
}

func setup(t *testing.T) *fixture {
	t.Helper()

	fake := googlefake.New(t)
	creds, err := credentials.Load(fake.ServiceAccountJSON(), fake.SystemKeySet())
	require.NoError(t, err)

	return &fixture{
		fake:  fake,
		creds: creds,
		client: exchange.NewClient(
			exchange.WithHTTPClient(fake.Client()),
			exchange.WithEndpoints(fake.Endpoints()),
		),
	}
}

func (f *fixture) customToken(t *testing.T, uid string) string {
	t.Helper()
	token, err := jwt.Sign(jwt.NewIdentityClaims(f.creds.ClientEmail, uid, time.Now(), time.Hour), f.creds.Signer())
	require.NoError(t, err)
	return token
}

func requireAPIError(t *testing.T, err error, code int) *fberrors.APIError {
	t.Helper()
	var apiErr *fberrors.APIError
	require.True(t, errors.As(err, &apiErr), "expected *APIError, got %v", err)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestExchangeCustomToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	t.Run("with refresh token", func(t *testing.T) {
		res, err := f.client.ExchangeCustomToken(ctx, f.customToken(t, "user-1"), f.creds.APIKey, true, "user-1")
		require.NoError(t, err)
		require.NotEmpty(t, res.IDToken)
		require.NotEmpty(t, res.RefreshToken)
		require.Equal(t, time.Hour, res.ExpiresIn)

		claims, err := jwt.Verify(res.IDToken, f.creds.KeySet())
		require.NoError(t, err)
		require.Equal(t, "user-1", claims.Subject)
	})

	t.Run("without refresh token", func(t *testing.T) {
		res, err := f.client.ExchangeCustomToken(ctx, f.customToken(t, "user-2"), f.creds.APIKey, false, "user-2")
		require.NoError(t, err)
		require.NotEmpty(t, res.IDToken)
		require.Empty(t, res.RefreshToken)
	})

	t.Run("rejected token", func(t *testing.T) {
		_, err := f.client.ExchangeCustomToken(ctx, "not-a-token", f.creds.APIKey, true, "user-3")
		apiErr := requireAPIError(t, err, http.StatusBadRequest)
		require.Equal(t, "user-3", apiErr.Context)
		require.Contains(t, apiErr.Message, "INVALID_CUSTOM_TOKEN")
	})

	t.Run("wrong api key", func(t *testing.T) {
		_, err := f.client.ExchangeCustomToken(ctx, f.customToken(t, "user-1"), "other-key", true, "user-1")
		requireAPIError(t, err, http.StatusBadRequest)
	})
}

func TestRefreshAccessToken(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	signIn, err := f.client.ExchangeCustomToken(ctx, f.customToken(t, "user-1"), f.creds.APIKey, true, "user-1")
	require.NoError(t, err)

	res, err := f.client.RefreshAccessToken(ctx, signIn.RefreshToken, f.creds.APIKey)
	require.NoError(t, err)
	require.Equal(t, "user-1", res.UserID)
	require.Equal(t, f.fake.ProjectID, res.ProjectID)
	require.Equal(t, signIn.RefreshToken, res.RefreshToken)
	require.NotEqual(t, signIn.IDToken, res.IDToken)
	require.Equal(t, 1, f.fake.Calls(googlefake.EndpointRefresh))

	t.Run("reply without refresh token keeps the old one", func(t *testing.T) {
		f.fake.OmitRefreshTokenInReplies(true)
		defer f.fake.OmitRefreshTokenInReplies(false)

		res, err := f.client.RefreshAccessToken(ctx, signIn.RefreshToken, f.creds.APIKey)
		require.NoError(t, err)
		require.Equal(t, signIn.RefreshToken, res.RefreshToken)
	})

	t.Run("unknown refresh token", func(t *testing.T) {
		_, err := f.client.RefreshAccessToken(ctx, "rt-unknown", f.creds.APIKey)
		apiErr := requireAPIError(t, err, http.StatusBadRequest)
		require.Contains(t, apiErr.Message, "INVALID_REFRESH_TOKEN")
	})

	t.Run("server error", func(t *testing.T) {
		f.fake.FailNext(googlefake.EndpointRefresh, http.StatusServiceUnavailable, "try later")
		_, err := f.client.RefreshAccessToken(ctx, signIn.RefreshToken, f.creds.APIKey)
		apiErr := requireAPIError(t, err, http.StatusServiceUnavailable)
		require.Equal(t, "try later", apiErr.Message)
	})
}

func TestNetworkError(t *testing.T) {
	f := setup(t)
	endpoints := f.fake.Endpoints()
	f.fake.Close()

	client := exchange.NewClient(exchange.WithEndpoints(endpoints), exchange.WithTimeout(time.Second))
	_, err := client.RefreshAccessToken(context.Background(), "rt", f.creds.APIKey)
	require.ErrorIs(t, err, fberrors.ErrNetwork)

	var apiErr *fberrors.APIError
	require.False(t, errors.As(err, &apiErr))
}

func TestSignInWithIdp(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.fake.RegisterIdpToken(string(exchange.ProviderGitHub), "gh-token", "github-user")

	res, err := f.client.SignInWithIdp(ctx, f.creds.APIKey, "gh-token", exchange.ProviderGitHub, "http://localhost")
	require.NoError(t, err)
	require.Equal(t, "github-user", res.LocalID)
	require.Equal(t, "github.com", res.ProviderID)
	require.True(t, res.IsNewUser)

	_, err = f.client.SignInWithIdp(ctx, f.creds.APIKey, "other-token", exchange.ProviderGitHub, "http://localhost")
	apiErr := requireAPIError(t, err, http.StatusBadRequest)
	require.Equal(t, "github.com", apiErr.Context)
}

func TestParseProvider(t *testing.T) {
	p, err := exchange.ParseProvider("google.com")
	require.NoError(t, err)
	require.Equal(t, exchange.ProviderGoogle, p)

	_, err = exchange.ParseProvider("myspace.com")
	require.Error(t, err)
}

func TestCreateSessionCookie(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	idToken := f.fake.IssueIDToken("user-1")

	cookie, err := f.client.CreateSessionCookie(ctx, f.creds.JSON(), f.creds.ProjectID, idToken, 24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, 1, f.fake.Calls(googlefake.EndpointOAuth2Token))

	systemKeys, err := keys.ParseJWKS(f.fake.SystemKeySet())
	require.NoError(t, err)
	claims, err := jwt.Verify(cookie, systemKeys)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, 24*time.Hour, claims.ExpiresAt.Sub(claims.IssuedAt.Time))

	t.Run("validity out of range", func(t *testing.T) {
		calls := f.fake.TotalCalls()
		_, err := f.client.CreateSessionCookie(ctx, f.creds.JSON(), f.creds.ProjectID, idToken, time.Minute)
		require.Error(t, err)
		_, err = f.client.CreateSessionCookie(ctx, f.creds.JSON(), f.creds.ProjectID, idToken, 15*24*time.Hour)
		require.Error(t, err)
		require.Equal(t, calls, f.fake.TotalCalls())
	})

	t.Run("malformed credentials", func(t *testing.T) {
		_, err := f.client.CreateSessionCookie(ctx, []byte(`{}`), f.creds.ProjectID, idToken, time.Hour)
		require.ErrorIs(t, err, fberrors.ErrMalformedCredentials)
	})

	t.Run("token endpoint failure", func(t *testing.T) {
		f.fake.FailNext(googlefake.EndpointOAuth2Token, http.StatusInternalServerError, "boom")
		_, err := f.client.CreateSessionCookie(ctx, f.creds.JSON(), f.creds.ProjectID, idToken, time.Hour)
		requireAPIError(t, err, http.StatusInternalServerError)
	})

	t.Run("invalid id token", func(t *testing.T) {
		_, err := f.client.CreateSessionCookie(ctx, f.creds.JSON(), f.creds.ProjectID, "garbage", time.Hour)
		requireAPIError(t, err, http.StatusBadRequest)
	})
}
