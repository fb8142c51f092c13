package config

import "time"

type SessionConfig interface {
	GetTokenValidity() time.Duration
	GetExpiryMargin() time.Duration
	GetSessionCookieValidity() time.Duration
}

type Session struct{}

var _ SessionConfig = Session{}

// GetTokenValidity is the lifetime of self-signed tokens
func (Session) GetTokenValidity() time.Duration {
	return GetDuration("TOKEN_VALIDITY", time.Hour)
}

// GetExpiryMargin is subtracted from a token's expiry before it is treated as
// stale, so a request in flight does not race the expiry.
func (Session) GetExpiryMargin() time.Duration {
	return GetDuration("TOKEN_EXPIRY_MARGIN", time.Minute)
}

func (Session) GetSessionCookieValidity() time.Duration {
	return 14 * 24 * time.Hour
}
