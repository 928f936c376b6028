package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fintrack/fintrack/internal/config"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, config.StoreMemory, cfg.Store.Backend)
	assert.Equal(t, config.MirrorNone, cfg.Audit.Mirror)
	assert.Equal(t, 24*time.Hour, cfg.Export.TokenTTL)
	assert.Equal(t, "fintrack", cfg.Database.Database)
	assert.True(t, cfg.UsesDevSecrets())
	assert.Equal(t, filepath.Join("data", "secure_exports"), filepath.Clean(cfg.SecureDir()))
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeYAML(t, `
app:
  port: "9090"
  data_dir: /var/lib/fintrack
store:
  backend: redis
redis:
  addr: redis:6379
export:
  temp_file_ttl: 2m
database:
  host: db.internal
  port: 6432
`)
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.App.Port)
	assert.Equal(t, config.StoreRedis, cfg.Store.Backend)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr, "env wins over yaml")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2*time.Minute, cfg.Export.TempFileTTL)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6432, cfg.Database.Port)
	assert.Equal(t, "fintrack", cfg.Database.User, "unset yaml fields keep defaults")
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"unknown backend", map[string]string{"STORE_BACKEND": "s3"}, "store.backend"},
		{"http mirror without url", map[string]string{"AUDIT_MIRROR": "http"}, "audit.mirror_url"},
		{"short master key", map[string]string{"MASTER_KEY": "short"}, "master_key"},
		{"bad number", map[string]string{"DB_PORT": "abc"}, "DB_PORT"},
		{"production dev secrets", map[string]string{"APP_ENV": "production"}, "jwt_signing_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestFromArgs(t *testing.T) {
	path := writeYAML(t, "app:\n  port: \"7070\"\n")

	cfg, err := config.FromArgs("api", []string{"-config", path})
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.App.Port)

	_, err = config.FromArgs("api", []string{"-config", filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestConfig_UsesPostgres(t *testing.T) {
	cfg := config.Default()
	assert.False(t, cfg.UsesPostgres())

	cfg.Audit.Mirror = config.MirrorPostgres
	assert.True(t, cfg.UsesPostgres())

	cfg = config.Default()
	cfg.Store.Backend = config.StorePostgres
	assert.True(t, cfg.UsesPostgres())
}
