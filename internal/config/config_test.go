package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PUBDETECT_BACKEND_BASEURL", "http://backend:8000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, 8787, cfg.Relay.Port)
	assert.Equal(t, 3001, cfg.Gateway.Port)
	assert.Equal(t, 20*time.Second, cfg.Backend.Timeout)
	assert.Equal(t, int64(5<<20), cfg.Capture.MaxUploadBytes)
	assert.Equal(t, uint(320), cfg.Capture.PreviewWidth)
	assert.Equal(t, "pubdetect_sid", cfg.Session.CookieName)
	assert.Equal(t, "/predict/", cfg.Backend.PredictPath)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://fastapi:8000/")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/pub")
	t.Setenv("PUBDETECT_HTTP_PORT", "9090")
	t.Setenv("PUBDETECT_SESSION_TTL", "30m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://fastapi:8000/", cfg.Backend.BaseURL)
	assert.Equal(t, "postgres://u:p@db:5432/pub", cfg.Postgres.DSN)
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
}

func TestLoadRequiresBackend(t *testing.T) {
	t.Setenv("PUBDETECT_BACKEND_BASEURL", "")
	t.Setenv("BACKEND_URL", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrBackendRequired)
}

func TestLoadGatewayNeedsOnlyDSN(t *testing.T) {
	t.Setenv("PUBDETECT_BACKEND_BASEURL", "")
	t.Setenv("BACKEND_URL", "")
	t.Setenv("PUBDETECT_POSTGRES_DSN", "")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/pub")

	cfg, err := LoadGateway()
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@db:5432/pub", cfg.Postgres.DSN)
	assert.Empty(t, cfg.Backend.BaseURL)

	t.Setenv("DATABASE_URL", "")
	_, err = LoadGateway()
	assert.ErrorIs(t, err, ErrPostgresRequired)
}

func TestLoadDashboardRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("PUBDETECT_BACKEND_BASEURL", "http://backend:8000")
	t.Setenv("PUBDETECT_ENVIRONMENT", "production")
	t.Setenv("PUBDETECT_SESSION_SECRET", "")

	_, err := LoadDashboard()
	assert.ErrorIs(t, err, ErrInsecureSecret)

	t.Setenv("PUBDETECT_SESSION_SECRET", "change-me")
	_, err = LoadDashboard()
	assert.ErrorIs(t, err, ErrInsecureSecret)

	t.Setenv("PUBDETECT_SESSION_SECRET", "0d9f0c6b1e")
	cfg, err := LoadDashboard()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())

	t.Setenv("PUBDETECT_ENVIRONMENT", "development")
	t.Setenv("PUBDETECT_SESSION_SECRET", "")
	_, err = LoadDashboard()
	assert.NoError(t, err)
}

func TestLoadWorkerRequiresDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PUBDETECT_WORKER_POSTGRES_DSN", "")

	_, err := LoadWorker()
	assert.Error(t, err)

	t.Setenv("DATABASE_URL", "postgres://localhost/audit")
	cfg, err := LoadWorker()
	require.NoError(t, err)
	assert.Equal(t, "dashboard:audit", cfg.Redis.Stream)
	assert.Equal(t, 30*time.Second, cfg.Queues.ClaimInterval)
}
