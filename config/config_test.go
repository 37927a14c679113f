package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), false)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, ":9090", cfg.GRPC.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "main-room", cfg.Room.DefaultID)
	assert.Equal(t, "fibonacci", cfg.Room.Deck)
	assert.Equal(t, "poker-service", cfg.Logging.Service)
	assert.Equal(t, 30*time.Second, cfg.HTTP.RequestTimeout)
}

func TestLoad_RequiredFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), true)
	assert.Error(t, err)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":18080"
  requestTimeout: 5s
storage:
  driver: postgres
postgres:
  dsn: "postgres://localhost/poker"
  maxConns: 4
room:
  deck: classic
`)
	t.Setenv("GRPC_ADDR", ":19090")
	t.Setenv("ROOM_ID", "team-a")
	t.Setenv("HTTP_ALLOWED_ORIGINS", "http://a,http://b")

	cfg, err := Load(path, true)
	require.NoError(t, err)

	assert.Equal(t, ":18080", cfg.HTTP.Addr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, ":19090", cfg.GRPC.Addr)
	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, int32(4), cfg.Postgres.MaxConns)
	assert.Equal(t, "team-a", cfg.Room.DefaultID)
	assert.Equal(t, "classic", cfg.Room.Deck)
	assert.Equal(t, []string{"http://a", "http://b"}, cfg.HTTP.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"postgres without dsn", "storage:\n  driver: postgres\n"},
		{"unknown driver", "storage:\n  driver: redis\n"},
		{"unknown deck", "room:\n  deck: tshirt\n"},
		{"bad room id", "room:\n  defaultId: a/b\n"},
		{"broken yaml", "http: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body), true)
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_UsesConfigPath(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, "grpc:\n  addr: \":29090\"\n"))

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":29090", cfg.GRPC.Addr)
}
