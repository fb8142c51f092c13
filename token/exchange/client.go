package exchange

import (
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/firestore-auth/internal/config"
)

// Client talks to the Identity Toolkit and Secure Token endpoints. It holds
// no per-user state and can be shared between sessions.
type Client struct {
	httpClient           *http.Client
	identityToolkitURL   string
	identityToolkitV1URL string
	secureTokenURL       string
	googleTokenURL       string
}

type ClientOption func(*Client)

// WithHTTPClient replaces the HTTP client, for proxies or test servers
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTimeout bounds each round-trip. A timed out call fails with ErrNetwork.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		clone := *c.httpClient
		clone.Timeout = timeout
		c.httpClient = &clone
	}
}

// WithEndpoints points the client at different service roots
func WithEndpoints(endpoints config.EndpointConfig) ClientOption {
	return func(c *Client) {
		c.setEndpoints(endpoints)
	}
}

func NewClient(options ...ClientOption) *Client {
	cfg := config.New()
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.GetHTTPTimeout()},
	}
	c.setEndpoints(cfg)

	for _, opt := range options {
		opt(c)
	}
	return c
}

func (c *Client) setEndpoints(endpoints config.EndpointConfig) {
	c.identityToolkitURL = strings.TrimRight(endpoints.GetIdentityToolkitURL(), "/")
	c.identityToolkitV1URL = strings.TrimRight(endpoints.GetIdentityToolkitV1URL(), "/")
	c.secureTokenURL = endpoints.GetSecureTokenURL()
	c.googleTokenURL = endpoints.GetGoogleTokenURL()
}

// HTTPClient is the client used for all calls, shared with the document layer
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// IdentityToolkitURL is the v3 relying party root used by the user calls
func (c *Client) IdentityToolkitURL() string {
	return c.identityToolkitURL
}
