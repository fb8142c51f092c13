package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/firestore-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := config.New()

	require.Equal(t, "https://firestore.googleapis.com/v1", cfg.GetFirestoreURL())
	require.Equal(t, "securetoken@system.gserviceaccount.com", cfg.GetSystemSignerAccount())
	require.Equal(t, 30*time.Second, cfg.GetHTTPTimeout())
	require.Equal(t, time.Hour, cfg.GetTokenValidity())
	require.Equal(t, time.Minute, cfg.GetExpiryMargin())
	require.Equal(t, 14*24*time.Hour, cfg.GetSessionCookieValidity())
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("FIRESTORE_URL", "http://localhost:8080/v1")
	t.Setenv("HTTP_TIMEOUT", "5s")
	t.Setenv("TOKEN_EXPIRY_MARGIN", "not-a-duration")
	t.Setenv("ENV", "PROD")

	cfg := config.New()
	require.Equal(t, "http://localhost:8080/v1", cfg.GetFirestoreURL())
	require.Equal(t, 5*time.Second, cfg.GetHTTPTimeout())
	require.Equal(t, time.Minute, cfg.GetExpiryMargin())
	require.Equal(t, "PROD", cfg.GetEnv())
}
