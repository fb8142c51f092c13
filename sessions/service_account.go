package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/firestore-auth/credentials"
	"github.com/jrsteele09/firestore-auth/token/jwt"
	"github.com/rs/zerolog/log"
)

// ServiceAccountSession authorizes as the service account itself. Its token
// is self-signed and re-signed locally when it gets close to expiry, so it
// never needs the network.
//
// A session is not safe for concurrent use, wrap it with Synchronized.
type ServiceAccountSession struct {
	creds  *credentials.Credentials
	token  string
	expiry time.Time
	opts   settings
}

func NewServiceAccountSession(creds *credentials.Credentials, options ...Option) (*ServiceAccountSession, error) {
	s := &ServiceAccountSession{
		creds: creds,
		opts:  newSettings(nil, options),
	}
	if err := s.sign(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *ServiceAccountSession) ProjectID() string {
	return s.creds.ProjectID
}

func (s *ServiceAccountSession) Bearer(ctx context.Context) (string, error) {
	if s.opts.stale(s.expiry) {
		if err := s.sign(); err != nil {
			return "", err
		}
		log.Debug().Time("expiry", s.expiry).Msg("Service account token re-signed")
	}
	return s.token, nil
}

func (s *ServiceAccountSession) BearerUnchecked() string {
	return s.token
}

// Expiry is the expiry of the current token
func (s *ServiceAccountSession) Expiry() time.Time {
	return s.expiry
}

func (s *ServiceAccountSession) Credentials() *credentials.Credentials {
	return s.creds
}

func (s *ServiceAccountSession) sign() error {
	claims := jwt.NewFirestoreClaims(s.creds.ClientEmail, s.creds.ClientID, s.opts.nowFunc(), s.opts.validity)
	token, err := jwt.Sign(claims, s.creds.Signer())
	if err != nil {
		return fmt.Errorf("failed to sign service account token: %w", err)
	}
	s.token = token
	s.expiry = claims.ExpiresAt.Time
	return nil
}
