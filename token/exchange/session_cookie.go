package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/jrsteele09/firestore-auth/internal/rest"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// Bounds accepted by the createSessionCookie endpoint
const (
	MinSessionCookieValidity = 5 * time.Minute
	MaxSessionCookieValidity = 14 * 24 * time.Hour
)

var sessionCookieScopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/identitytoolkit",
}

type createSessionCookieRequest struct {
	IDToken       string `json:"idToken"`
	ValidDuration int64  `json:"validDuration"`
}

type createSessionCookieResponse struct {
	SessionCookie string `json:"sessionCookie"`
}

// CreateSessionCookie turns an ID token into a long lived session cookie. The
// call is authorized with an OAuth2 access token minted from the service
// account key in credentialsJSON.
func (c *Client) CreateSessionCookie(ctx context.Context, credentialsJSON []byte, projectID, idToken string, validFor time.Duration) (string, error) {
	if validFor < MinSessionCookieValidity || validFor > MaxSessionCookieValidity {
		return "", fmt.Errorf("session cookie validity %s outside [%s, %s]", validFor, MinSessionCookieValidity, MaxSessionCookieValidity)
	}

	conf, err := google.JWTConfigFromJSON(credentialsJSON, sessionCookieScopes...)
	if err != nil {
		return "", fmt.Errorf("%w: %w", fberrors.ErrMalformedCredentials, err)
	}
	conf.TokenURL = c.googleTokenURL

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := conf.TokenSource(tokenCtx).Token()
	if err != nil {
		return "", tokenError(err)
	}

	var resp createSessionCookieResponse
	err = rest.Do(ctx, c.httpClient, rest.Request{
		Method: http.MethodPost,
		URL:    fmt.Sprintf("%s/projects/%s:createSessionCookie", c.identityToolkitV1URL, projectID),
		Bearer: token.AccessToken,
		JSON: createSessionCookieRequest{
			IDToken:       idToken,
			ValidDuration: int64(validFor / time.Second),
		},
		Context: "session cookie",
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.SessionCookie, nil
}

// tokenError maps an OAuth2 token endpoint failure onto the package errors
func tokenError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		msg := retrieveErr.ErrorDescription
		if msg == "" {
			msg = retrieveErr.ErrorCode
		}
		if msg == "" {
			msg = string(retrieveErr.Body)
		}
		return &fberrors.APIError{
			Code:    retrieveErr.Response.StatusCode,
			Message: msg,
			Context: "oauth2 token",
		}
	}
	return fberrors.Network(err, "oauth2 token")
}
