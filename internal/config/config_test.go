package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"certEngine/internal/certificate"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("MINIO_ACCESS_KEY_ID", "key")
	t.Setenv("MINIO_SECRET_ACCESS_KEY", "secret")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, certificate.CanonicalPage, cfg.Certificate.Page())
	assert.Equal(t, 500*time.Millisecond, cfg.Certificate.BatchDelay)
	assert.Equal(t, 15*time.Second, cfg.Certificate.FetchTimeout)
	assert.Equal(t, certificate.DefaultBackgroundRef, cfg.Certificate.DefaultBackgroundRef())
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Empty(t, cfg.API.Origins())
}

func TestLoadFromEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("CERT_PAGE_WIDTH", "792")
	t.Setenv("CERT_PAGE_HEIGHT", "612")
	t.Setenv("CERT_BATCH_DELAY", "2s")
	t.Setenv("CERT_DEFAULT_BACKGROUND", "/srv/assets/bg.png")
	t.Setenv("POSTGRES_DB", "events")
	t.Setenv("API_ALLOWED_ORIGINS", " https://editor.example.com/, ,http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, certificate.PageSize{Width: 792, Height: 612}, cfg.Certificate.Page())
	assert.Equal(t, 2*time.Second, cfg.Certificate.BatchDelay)
	assert.Equal(t, "bundled:/srv/assets/bg.png", cfg.Certificate.DefaultBackgroundRef())
	assert.Contains(t, cfg.Database.DSN(), "dbname=events")
	assert.Equal(t, []string{"https://editor.example.com", "http://localhost:5173"}, cfg.API.Origins())
}

func TestLoadValidates(t *testing.T) {
	setRequired(t)
	t.Setenv("CERT_PAGE_WIDTH", "0")
	_, err := Load()
	assert.ErrorContains(t, err, "certificate page")

	t.Setenv("CERT_PAGE_WIDTH", "842")
	t.Setenv("WORKER_CONCURRENCY", "0")
	_, err = Load()
	assert.ErrorContains(t, err, "worker concurrency")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CERTENGINE_DOTENV_MARKER=loaded\n"), 0o600))
	t.Setenv("CERTENGINE_DOTENV_MARKER", "")
	require.NoError(t, os.Unsetenv("CERTENGINE_DOTENV_MARKER"))

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "loaded", os.Getenv("CERTENGINE_DOTENV_MARKER"))
}
