package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DSN", "postgres://localhost/pages")
	t.Setenv("WEBHOOK_SECRET", "whsec")
	t.Setenv("SESSION_SECRET", "sess")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, 5*time.Second, cfg.StoreTimeout)
	assert.Equal(t, 7*24*time.Hour, cfg.InitialLifetime)
	assert.False(t, cfg.RequireSession)
	assert.Empty(t, cfg.AdminFingerprints)
	assert.Empty(t, cfg.AdminToken)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
}

func TestLoad_EnvOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_FINGERPRINTS", " fp-one, ,fp-two ")
	t.Setenv("REQUIRE_SESSION", "true")
	t.Setenv("STORE_TIMEOUT", "750ms")
	t.Setenv("DB_DRIVER", "sqlite")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, []string{"fp-one", "fp-two"}, cfg.AdminFingerprints)
	assert.True(t, cfg.RequireSession)
	assert.Equal(t, 750*time.Millisecond, cfg.StoreTimeout)
	assert.Equal(t, "sqlite", cfg.DBDriver)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	content := "DSN=file:pages.db\nDB_DRIVER=sqlite\nWEBHOOK_SECRET=from-file\nSESSION_SECRET=s\nLISTEN_ADDR=127.0.0.1:9000\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.env"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "file:pages.db", cfg.DSN)
	assert.Equal(t, "from-file", cfg.WebhookSecret)
	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
}

func TestLoad_MissingRequired(t *testing.T) {
	tests := []struct {
		name  string
		unset string
	}{
		{name: "dsn", unset: "DSN"},
		{name: "webhook secret", unset: "WEBHOOK_SECRET"},
		{name: "session secret", unset: "SESSION_SECRET"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.unset, "")

			_, err := Load(t.TempDir())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.unset)
		})
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_DRIVER")
}

func TestLoad_AdminToken(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_TOKEN", "short")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_TOKEN")

	t.Setenv("ADMIN_TOKEN", "0123456789abcdef0123")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef0123", cfg.AdminToken)
}
