package users

import (
	"context"
	"net/http"
	"strings"

	"github.com/jrsteele09/firestore-auth/dto"
	"github.com/jrsteele09/firestore-auth/internal/config"
	"github.com/jrsteele09/firestore-auth/internal/rest"
	"github.com/jrsteele09/firestore-auth/sessions"
)

// Client reads and removes Firebase Auth accounts on behalf of a signed in
// user.
type Client struct {
	httpClient         *http.Client
	identityToolkitURL string
}

type ClientOption func(*Client)

func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

func WithIdentityToolkitURL(url string) ClientOption {
	return func(c *Client) {
		c.identityToolkitURL = strings.TrimRight(url, "/")
	}
}

func NewClient(options ...ClientOption) *Client {
	cfg := config.New()
	c := &Client{
		httpClient:         &http.Client{Timeout: cfg.GetHTTPTimeout()},
		identityToolkitURL: strings.TrimRight(cfg.GetIdentityToolkitURL(), "/"),
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// UserInfo returns the account behind the session's ID token
func UserInfo(ctx context.Context, c *Client, session *sessions.UserSession) (*dto.UserInfoResponse, error) {
	token, err := session.Bearer(ctx)
	if err != nil {
		return nil, err
	}

	var resp dto.UserInfoResponse
	err = rest.Do(ctx, c.httpClient, rest.Request{
		Method:  http.MethodPost,
		URL:     rest.WithKey(c.identityToolkitURL+"/getAccountInfo", session.Credentials().APIKey),
		JSON:    dto.IDTokenRequest{IDToken: token},
		Context: session.UserID,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// UserRemove deletes the account behind the session. The session is useless
// afterwards.
func UserRemove(ctx context.Context, c *Client, session *sessions.UserSession) error {
	token, err := session.Bearer(ctx)
	if err != nil {
		return err
	}

	return rest.Do(ctx, c.httpClient, rest.Request{
		Method:  http.MethodPost,
		URL:     rest.WithKey(c.identityToolkitURL+"/deleteAccount", session.Credentials().APIKey),
		Bearer:  token,
		JSON:    dto.IDTokenRequest{IDToken: token},
		Context: session.UserID,
	}, nil)
}
