package sessions

import (
	"context"
	"time"

	"github.com/jrsteele09/firestore-auth/internal/config"
	"github.com/jrsteele09/firestore-auth/token/exchange"
)

// Bearer is the capability every Firestore call needs: a project to address
// and a token to authorize with.
type Bearer interface {
	// ProjectID names the project used in REST paths
	ProjectID() string

	// Bearer returns a token that is not known to be expired, refreshing or
	// re-signing it first when needed.
	Bearer(ctx context.Context) (string, error)

	// BearerUnchecked returns the stored token as is. It never performs I/O.
	BearerUnchecked() string
}

var (
	_ Bearer = (*ServiceAccountSession)(nil)
	_ Bearer = (*UserSession)(nil)
)

type settings struct {
	nowFunc  func() time.Time
	margin   time.Duration
	validity time.Duration
	exchange *exchange.Client
}

type Option func(*settings)

// WithNowFunc replaces the clock used for expiry decisions
func WithNowFunc(now func() time.Time) Option {
	return func(s *settings) {
		s.nowFunc = now
	}
}

// WithMargin sets how long before expiry a token is already treated as stale
func WithMargin(margin time.Duration) Option {
	return func(s *settings) {
		s.margin = margin
	}
}

// WithValidity sets the lifetime of self-signed tokens
func WithValidity(validity time.Duration) Option {
	return func(s *settings) {
		s.validity = validity
	}
}

func WithExchangeClient(client *exchange.Client) Option {
	return func(s *settings) {
		s.exchange = client
	}
}

func newSettings(defaultExchange func() *exchange.Client, options []Option) settings {
	cfg := config.New()
	s := settings{
		nowFunc:  time.Now,
		margin:   cfg.GetExpiryMargin(),
		validity: cfg.GetTokenValidity(),
	}
	for _, opt := range options {
		opt(&s)
	}
	if s.exchange == nil && defaultExchange != nil {
		s.exchange = defaultExchange()
	}
	return s
}

// stale reports whether a token expiring at expiry must not be handed out
func (s settings) stale(expiry time.Time) bool {
	return !s.nowFunc().Before(expiry.Add(-s.margin))
}

func tokenPrefix(token string) string {
	if len(token) > 8 {
		return token[:8] + "..."
	}
	return token
}
