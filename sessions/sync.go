package sessions

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jrsteele09/firestore-auth/credentials"
	"github.com/jrsteele09/firestore-auth/token/exchange"
	"golang.org/x/oauth2"
)

type synchronized struct {
	mu     sync.Mutex
	bearer Bearer
}

// Synchronized serializes access to b so that concurrent callers trigger at
// most one refresh between them.
func Synchronized(b Bearer) Bearer {
	if s, ok := b.(*synchronized); ok {
		return s
	}
	return &synchronized{bearer: b}
}

func (s *synchronized) ProjectID() string {
	return s.bearer.ProjectID()
}

func (s *synchronized) Bearer(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bearer.Bearer(ctx)
}

func (s *synchronized) BearerUnchecked() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bearer.BearerUnchecked()
}

func (s *synchronized) Expiry() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.bearer.(expirer); ok {
		return e.Expiry()
	}
	return time.Time{}
}

type expirer interface {
	Expiry() time.Time
}

type tokenSource struct {
	ctx    context.Context
	bearer Bearer
}

// TokenSource adapts a session to golang.org/x/oauth2. Refresh decisions stay
// with the session, every Token call goes through Bearer.
func TokenSource(ctx context.Context, b Bearer) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, bearer: b}
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	token, err := t.bearer.Bearer(t.ctx)
	if err != nil {
		return nil, err
	}

	tok := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if e, ok := t.bearer.(expirer); ok {
		tok.Expiry = e.Expiry()
	}
	return tok, nil
}

// HTTPClient returns a client that adds the session's bearer token to every
// request it sends. base may be nil.
func HTTPClient(ctx context.Context, b Bearer, base http.RoundTripper) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: TokenSource(ctx, b),
			Base:   base,
		},
	}
}

// CreateSessionCookie exchanges a user's ID token for a session cookie valid
// for validFor, between five minutes and two weeks.
func CreateSessionCookie(ctx context.Context, creds *credentials.Credentials, idToken string, validFor time.Duration, options ...Option) (string, error) {
	s := newSettings(func() *exchange.Client {
		return exchange.NewClient(exchange.WithHTTPClient(creds.HTTPClient()))
	}, options)

	return s.exchange.CreateSessionCookie(ctx, creds.JSON(), creds.ProjectID, idToken, validFor)
}
