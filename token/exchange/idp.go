package exchange

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/jrsteele09/firestore-auth/internal/rest"
)

// Provider is a federated identity provider enabled in Firebase Auth
type Provider string

const (
	ProviderApple           Provider = "apple.com"
	ProviderAppleGameCenter Provider = "gc.apple.com"
	ProviderFacebook        Provider = "facebook.com"
	ProviderGitHub          Provider = "github.com"
	ProviderGoogle          Provider = "google.com"
	ProviderGooglePlayGames Provider = "playgames.google.com"
	ProviderLinkedIn        Provider = "linkedin.com"
	ProviderMicrosoft       Provider = "microsoft.com"
	ProviderTwitter         Provider = "twitter.com"
	ProviderYahoo           Provider = "yahoo.com"
)

var providers = map[Provider]struct{}{
	ProviderApple:           {},
	ProviderAppleGameCenter: {},
	ProviderFacebook:        {},
	ProviderGitHub:          {},
	ProviderGoogle:          {},
	ProviderGooglePlayGames: {},
	ProviderLinkedIn:        {},
	ProviderMicrosoft:       {},
	ProviderTwitter:         {},
	ProviderYahoo:           {},
}

// ParseProvider maps a provider id such as "github.com" to a Provider
func ParseProvider(id string) (Provider, error) {
	p := Provider(id)
	if _, ok := providers[p]; !ok {
		return "", fmt.Errorf("unsupported identity provider %q", id)
	}
	return p, nil
}

type signInWithIdpRequest struct {
	PostBody            string `json:"postBody"`
	RequestURI          string `json:"requestUri"`
	ReturnIdpCredential bool   `json:"returnIdpCredential"`
	ReturnSecureToken   bool   `json:"returnSecureToken"`
}

// IdpResult is the Firebase account linked to a provider sign-in. Accounts
// that do not exist yet are created by the endpoint.
type IdpResult struct {
	LocalID       string `json:"localId"`
	Email         string `json:"email"`
	DisplayName   string `json:"displayName"`
	FederatedID   string `json:"federatedId"`
	ProviderID    string `json:"providerId"`
	IDToken       string `json:"idToken"`
	RefreshToken  string `json:"refreshToken"`
	ExpiresIn     string `json:"expiresIn"`
	IsNewUser     bool   `json:"isNewUser"`
	OAuthIDToken  string `json:"oauthIdToken"`
	OAuthAccess   string `json:"oauthAccessToken"`
	RawUserInfo   string `json:"rawUserInfo"`
	NeedsConfirm  bool   `json:"needConfirmation"`
	EmailVerified bool   `json:"emailVerified"`
}

// SignInWithIdp signs in with an access token issued by provider
func (c *Client) SignInWithIdp(ctx context.Context, apiKey, providerToken string, provider Provider, requestURI string) (*IdpResult, error) {
	postBody := url.Values{}
	postBody.Set("access_token", providerToken)
	postBody.Set("providerId", string(provider))

	var resp IdpResult
	err := rest.Do(ctx, c.httpClient, rest.Request{
		Method: http.MethodPost,
		URL:    rest.WithKey(c.identityToolkitV1URL+"/accounts:signInWithIdp", apiKey),
		JSON: signInWithIdpRequest{
			PostBody:            postBody.Encode(),
			RequestURI:          requestURI,
			ReturnIdpCredential: true,
			ReturnSecureToken:   true,
		},
		Context: string(provider),
	}, &resp)
	if err != nil {
		return nil, err
	}
	if resp.LocalID == "" {
		return nil, fmt.Errorf("sign in with %s returned no local id", provider)
	}
	return &resp, nil
}
