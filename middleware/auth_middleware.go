package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/jrsteele09/firestore-auth/credentials"
	"github.com/jrsteele09/firestore-auth/sessions"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeySession stores the *sessions.UserSession of the caller
	ContextKeySession ContextKey = "firebase_session"
	// ContextKeyUserID stores the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
)

// AuthQueryParam is read when the request carries no Authorization header
const AuthQueryParam = "auth"

// Guard turns Firebase ID tokens presented by HTTP callers into user sessions.
// Verified tokens are cached until they expire.
type Guard struct {
	creds       *credentials.Credentials
	cache       *ttlcache.Cache[string, *sessions.UserSession]
	sessionOpts []sessions.Option
	nowFunc     func() time.Time
}

type GuardOption func(*guardSettings)

type guardSettings struct {
	capacity    uint64
	sessionOpts []sessions.Option
	nowFunc     func() time.Time
}

// WithCapacity bounds the number of cached sessions
func WithCapacity(n uint64) GuardOption {
	return func(s *guardSettings) {
		s.capacity = n
	}
}

// WithSessionOptions is passed on to every session the guard creates
func WithSessionOptions(options ...sessions.Option) GuardOption {
	return func(s *guardSettings) {
		s.sessionOpts = append(s.sessionOpts, options...)
	}
}

func WithNowFunc(now func() time.Time) GuardOption {
	return func(s *guardSettings) {
		s.nowFunc = now
	}
}

func NewGuard(creds *credentials.Credentials, options ...GuardOption) *Guard {
	s := guardSettings{capacity: 10000, nowFunc: time.Now}
	for _, opt := range options {
		opt(&s)
	}

	cache := ttlcache.New(
		ttlcache.WithCapacity[string, *sessions.UserSession](s.capacity),
		ttlcache.WithDisableTouchOnHit[string, *sessions.UserSession](),
	)

	return &Guard{
		creds:       creds,
		cache:       cache,
		sessionOpts: append([]sessions.Option{sessions.WithNowFunc(s.nowFunc)}, s.sessionOpts...),
		nowFunc:     s.nowFunc,
	}
}

// RequireUserSession rejects requests without a valid Firebase ID token. The
// token is read from "Authorization: Bearer <token>" or the auth query
// parameter. A missing or malformed header is a 400, an invalid token a 401.
func (g *Guard) RequireUserSession() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(w, r)
			if !ok {
				return
			}

			session, err := g.Session(token)
			if err != nil {
				log.Debug().Err(err).Str("path", r.URL.Path).Msg("Rejected bearer token")
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				http.Error(w, `{"error":"invalid_token","error_description":"Invalid or expired token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySession, session)
			ctx = context.WithValue(ctx, ContextKeyUserID, session.UserID)
			next(w, r.WithContext(ctx))
		}
	}
}

// Session verifies token, serving repeated tokens from the cache
func (g *Guard) Session(token string) (*sessions.UserSession, error) {
	key := hashToken(token)
	if item := g.cache.Get(key); item != nil {
		return item.Value(), nil
	}

	session, err := sessions.UserSessionByAccessToken(g.creds, token, g.sessionOpts...)
	if err != nil {
		return nil, err
	}

	if ttl := session.Expiry().Sub(g.nowFunc()); ttl > 0 {
		g.cache.Set(key, session, ttl)
	}
	return session, nil
}

// CachedSessions is the number of verified tokens currently cached
func (g *Guard) CachedSessions() int {
	return g.cache.Len()
}

// SessionFromContext returns the session stored by RequireUserSession
func SessionFromContext(ctx context.Context) (*sessions.UserSession, bool) {
	session, ok := ctx.Value(ContextKeySession).(*sessions.UserSession)
	return session, ok
}

func bearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		if token := r.URL.Query().Get(AuthQueryParam); token != "" {
			return token, true
		}
		http.Error(w, `{"error":"invalid_request","error_description":"Missing Authorization header"}`, http.StatusBadRequest)
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		http.Error(w, `{"error":"invalid_request","error_description":"Invalid Authorization header format"}`, http.StatusBadRequest)
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		http.Error(w, `{"error":"invalid_request","error_description":"Empty token"}`, http.StatusBadRequest)
		return "", false
	}
	return token, true
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
