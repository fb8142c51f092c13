package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jrsteele09/firestore-auth/internal/rest"
	"github.com/rs/zerolog/log"
)

// SignInResult is the reply to a custom token exchange
type SignInResult struct {
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
}

// RefreshResult is the reply to a refresh token grant
type RefreshResult struct {
	IDToken      string
	RefreshToken string
	ExpiresIn    time.Duration
	UserID       string
	ProjectID    string
}

type customTokenRequest struct {
	Token             string `json:"token"`
	ReturnSecureToken bool   `json:"returnSecureToken"`
}

type customTokenResponse struct {
	Kind         string `json:"kind"`
	IDToken      string `json:"idToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    string `json:"expiresIn"`
}

type refreshTokenResponse struct {
	ExpiresIn    string `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	UserID       string `json:"user_id"`
	ProjectID    string `json:"project_id"`
}

// ExchangeCustomToken trades a signed custom token for a Firebase ID token and,
// when withRefresh is set, a refresh token. errContext is attached to any
// *APIError, usually the impersonated user id.
func (c *Client) ExchangeCustomToken(ctx context.Context, customToken, apiKey string, withRefresh bool, errContext string) (*SignInResult, error) {
	var resp customTokenResponse
	err := rest.Do(ctx, c.httpClient, rest.Request{
		Method:  http.MethodPost,
		URL:     rest.WithKey(c.identityToolkitURL+"/verifyCustomToken", apiKey),
		JSON:    customTokenRequest{Token: customToken, ReturnSecureToken: withRefresh},
		Context: errContext,
	}, &resp)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("context", errContext).Bool("refresh_token", resp.RefreshToken != "").Msg("Custom token exchanged")
	return &SignInResult{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    parseSeconds(resp.ExpiresIn),
	}, nil
}

// RefreshAccessToken exchanges a refresh token for a new ID token. If the reply
// carries no refresh token the one sent is kept.
func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken, apiKey string) (*RefreshResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	var resp refreshTokenResponse
	err := rest.Do(ctx, c.httpClient, rest.Request{
		Method:  http.MethodPost,
		URL:     rest.WithKey(c.secureTokenURL, apiKey),
		Form:    form,
		Context: "refresh token",
	}, &resp)
	if err != nil {
		return nil, err
	}

	if resp.RefreshToken == "" {
		resp.RefreshToken = refreshToken
	}

	return &RefreshResult{
		IDToken:      resp.IDToken,
		RefreshToken: resp.RefreshToken,
		ExpiresIn:    parseSeconds(resp.ExpiresIn),
		UserID:       resp.UserID,
		ProjectID:    resp.ProjectID,
	}, nil
}

// parseSeconds reads the decimal second counts Google returns as strings
func parseSeconds(s string) time.Duration {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func (r *SignInResult) String() string {
	return fmt.Sprintf("SignInResult{expires_in=%s refresh=%t}", r.ExpiresIn, r.RefreshToken != "")
}
