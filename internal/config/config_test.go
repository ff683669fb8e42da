package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/farum-coach/internal/config"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"FARUM_MODE", "FARUM_PORT", "FARUM_GCP_PROJECT", "FARUM_GCP_LOCATION", "FARUM_MODEL_NAME",
		"FARUM_STORAGE_BACKEND", "FARUM_SQLITE_PATH", "FARUM_USE_MOCK_LLM", "FARUM_LOG_LEVEL",
		"FARUM_DEV_AUTH_TOKEN", "FARUM_CONFIG",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	require.NoError(t, err)
	assert.Equal(t, config.ModeLocal, cfg.Mode)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, config.StorageMemory, cfg.StorageBackend)
	assert.True(t, cfg.UseMockLLM)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestFileThenEnv(t *testing.T) {
	clearEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
port = "9090"
storage_backend = "sqlite"
sqlite_path = "/tmp/farum.db"
log_level = "debug"
dev_auth_token = "dev"
`), 0o600))

	t.Setenv("FARUM_PORT", "7070")

	cfg, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, config.StorageSQLite, cfg.StorageBackend)
	assert.Equal(t, "/tmp/farum.db", cfg.SQLitePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "dev", cfg.DevAuthToken)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "gcp without project", env: map[string]string{"FARUM_MODE": "gcp"}},
		{name: "unknown storage", env: map[string]string{"FARUM_STORAGE_BACKEND": "postgres"}},
		{name: "firestore without project", env: map[string]string{"FARUM_STORAGE_BACKEND": "firestore"}},
		{name: "vertex without project", env: map[string]string{"FARUM_USE_MOCK_LLM": "false"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.LoadFile("")
			require.Error(t, err)
		})
	}
}

func TestMalformedFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("port = "), 0o600))

	_, err := config.LoadFile(path)
	require.Error(t, err)
}
