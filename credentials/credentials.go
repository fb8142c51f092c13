package credentials

import (
	"context"
	"crypto"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	fberrors "github.com/jrsteele09/firestore-auth/errors"
	"github.com/jrsteele09/firestore-auth/internal/config"
	"github.com/jrsteele09/firestore-auth/token/keys"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// serviceAccountFile is the JSON key file downloaded from the Firebase console,
// extended with the project's web API key.
type serviceAccountFile struct {
	Type         string `json:"type"`
	ProjectID    string `json:"project_id"`
	PrivateKeyID string `json:"private_key_id"`
	PrivateKey   string `json:"private_key"`
	ClientEmail  string `json:"client_email"`
	ClientID     string `json:"client_id"`
	APIKey       string `json:"api_key"`
}

// Credentials is a service account identity plus the public keys needed to
// verify Firebase tokens offline. It is shared by pointer between sessions
// and safe for concurrent use.
type Credentials struct {
	ProjectID    string
	PrivateKeyID string
	ClientEmail  string
	ClientID     string
	APIKey       string

	keyPair *keys.KeyPair
	keySet  atomic.Pointer[keys.KeySet]
	raw     []byte

	httpClient   *http.Client
	jwkBaseURL   string
	systemSigner string
	issuer       string
}

type Option func(*Credentials)

// WithHTTPClient sets the client used to download key sets
func WithHTTPClient(client *http.Client) Option {
	return func(c *Credentials) {
		c.httpClient = client
	}
}

func WithJWKBaseURL(url string) Option {
	return func(c *Credentials) {
		c.jwkBaseURL = strings.TrimRight(url, "/")
	}
}

// WithIssuerDiscovery locates the system signer key set through the OpenID
// configuration of issuer instead of the fixed JWK endpoint.
func WithIssuerDiscovery(issuer string) Option {
	return func(c *Credentials) {
		c.issuer = issuer
	}
}

// Load parses a service account key and any number of JWK set documents.
// No network I/O is performed. The credentials' own public key is always part
// of the resulting key set, so tokens signed with it verify offline.
func Load(keyJSON []byte, keySets ...[]byte) (*Credentials, error) {
	return load(keyJSON, keySets)
}

// LoadFromFile reads the service account key and the JWK sets from disk
func LoadFromFile(path string, keySetPaths ...string) (*Credentials, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fberrors.ErrMalformedCredentials, err)
	}

	sets := make([][]byte, 0, len(keySetPaths))
	for _, p := range keySetPaths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: key set %s: %w", fberrors.ErrMalformedCredentials, p, err)
		}
		sets = append(sets, data)
	}

	return load(keyJSON, sets)
}

// LoadWithDiscovery parses the service account key and synchronously
// downloads the system signer and service account key sets. Any download
// failure fails the call with ErrKeyFetchFailed.
func LoadWithDiscovery(ctx context.Context, keyJSON []byte, opts ...Option) (*Credentials, error) {
	c, err := load(keyJSON, nil, opts...)
	if err != nil {
		return nil, err
	}

	if err := c.RefreshPublicKeys(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func load(keyJSON []byte, keySets [][]byte, opts ...Option) (*Credentials, error) {
	var sa serviceAccountFile
	if err := json.Unmarshal(keyJSON, &sa); err != nil {
		return nil, fmt.Errorf("%w: %w", fberrors.ErrMalformedCredentials, err)
	}

	switch {
	case sa.PrivateKey == "":
		return nil, fmt.Errorf("%w: private_key is missing", fberrors.ErrMalformedCredentials)
	case sa.ClientEmail == "":
		return nil, fmt.Errorf("%w: client_email is missing", fberrors.ErrMalformedCredentials)
	case sa.ProjectID == "":
		return nil, fmt.Errorf("%w: project_id is missing", fberrors.ErrMalformedCredentials)
	}

	keyPair, err := keys.LoadKeyPairFromPEM(sa.PrivateKeyID, sa.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", fberrors.ErrMalformedCredentials, err)
	}

	cfg := config.New()
	c := &Credentials{
		ProjectID:    sa.ProjectID,
		PrivateKeyID: sa.PrivateKeyID,
		ClientEmail:  sa.ClientEmail,
		ClientID:     sa.ClientID,
		APIKey:       sa.APIKey,
		keyPair:      keyPair,
		raw:          keyJSON,
		httpClient:   &http.Client{Timeout: cfg.GetHTTPTimeout()},
		jwkBaseURL:   strings.TrimRight(cfg.GetJWKBaseURL(), "/"),
		systemSigner: cfg.GetSystemSignerAccount(),
	}
	for _, opt := range opts {
		opt(c)
	}

	sets := []*keys.KeySet{keyPair.KeySet()}
	for i, data := range keySets {
		set, err := keys.ParseJWKS(data)
		if err != nil {
			return nil, fmt.Errorf("%w: key set %d: %w", fberrors.ErrMalformedCredentials, i, err)
		}
		sets = append(sets, set)
	}
	c.keySet.Store(keys.Merge(sets...))

	return c, nil
}

// RefreshPublicKeys downloads both key sets again and swaps them in as one
// unit. On failure the current set stays in place.
func (c *Credentials) RefreshPublicKeys(ctx context.Context) error {
	systemURL := c.jwkBaseURL + "/" + c.systemSigner
	if c.issuer != "" {
		discovered, err := DiscoverJWKSURL(ctx, c.httpClient, c.issuer)
		if err != nil {
			log.Warn().Err(err).Str("issuer", c.issuer).Msg("JWKS discovery failed")
			return fmt.Errorf("%w: %w", fberrors.ErrKeyFetchFailed, err)
		}
		systemURL = discovered
	}

	accountURL := c.jwkBaseURL + "/" + c.ClientEmail

	var systemSet, accountSet *keys.KeySet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		set, err := keys.FetchJWKS(gctx, c.httpClient, systemURL)
		if err != nil {
			log.Warn().Err(err).Str("url", systemURL).Msg("Failed to fetch system key set")
			return err
		}
		systemSet = set
		return nil
	})
	g.Go(func() error {
		set, err := keys.FetchJWKS(gctx, c.httpClient, accountURL)
		if err != nil {
			log.Warn().Err(err).Str("url", accountURL).Msg("Failed to fetch service account key set")
			return err
		}
		accountSet = set
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%w: %w", fberrors.ErrKeyFetchFailed, err)
	}

	merged := keys.Merge(c.keyPair.KeySet(), accountSet, systemSet)
	c.keySet.Store(merged)

	log.Debug().Strs("kids", merged.KeyIDs()).Msg("Public keys refreshed")
	return nil
}

// PublicKey returns the verification key for kid
func (c *Credentials) PublicKey(kid string) (crypto.PublicKey, bool) {
	return c.keySet.Load().Lookup(kid)
}

// KeySet returns the current key set. The returned set is never modified.
func (c *Credentials) KeySet() *keys.KeySet {
	return c.keySet.Load()
}

// Signer signs tokens with the service account private key
func (c *Credentials) Signer() keys.Signer {
	return keys.NewKeyPairSigner(c.keyPair)
}

// JSON returns the service account key file the credentials were loaded from
func (c *Credentials) JSON() []byte {
	return c.raw
}

func (c *Credentials) HTTPClient() *http.Client {
	return c.httpClient
}
