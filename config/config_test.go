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

func TestLoadConfig_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("PORT", "")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8765", cfg.HTTP.Addr)
	assert.Empty(t, cfg.GRPC.Addr)
	assert.Equal(t, "coop-relay", cfg.Logging.Service)
	assert.Equal(t, "std", cfg.Logging.Backend)
	assert.Equal(t, int64(2_000_000), cfg.WS.ReadLimit)
	assert.Equal(t, 256, cfg.WS.SendBuffer)
	assert.Zero(t, cfg.PingInterval())

	w := cfg.WorldConfig()
	assert.Equal(t, 4200.0, w.Size)
	assert.Equal(t, 140*time.Millisecond, w.TickInterval)
	assert.Equal(t, 900.0, w.NearRadius)
	assert.Equal(t, 3, w.SpawnMin)
	assert.Equal(t, 8, w.SpawnMax)
}

func TestLoadConfig_FileAndPortOverride(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":1000"
grpc:
  addr: "127.0.0.1:9000"
ws:
  pingInterval: 15s
world:
  tickInterval: 50ms
  size: 1000
extensions:
  enabled: true
  dir: /srv/ext
`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("PORT", "9999")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, "9999", cfg.Port())
	assert.Equal(t, "127.0.0.1:9000", cfg.GRPC.Addr)
	assert.Equal(t, 15*time.Second, cfg.PingInterval())
	assert.Equal(t, 50*time.Millisecond, cfg.WorldConfig().TickInterval)
	assert.Equal(t, 1000.0, cfg.WorldConfig().Size)
	assert.True(t, cfg.Extensions.Enabled)
	assert.Equal(t, "/srv/ext", cfg.Extensions.Dir)
}

func TestLoadConfig_Errors(t *testing.T) {
	t.Setenv("PORT", "")

	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := LoadConfig()
	assert.Error(t, err, "explicit path must exist")

	t.Setenv("CONFIG_PATH", writeConfig(t, "http: [1, 2"))
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("CONFIG_PATH", writeConfig(t, "world:\n  spawnMin: 9\n  spawnMax: 2\n"))
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("CONFIG_PATH", writeConfig(t, "world:\n  bonusChance: 1.5\n"))
	_, err = LoadConfig()
	assert.Error(t, err)

	t.Setenv("CONFIG_PATH", writeConfig(t, ""))
	t.Setenv("PORT", "http")
	_, err = LoadConfig()
	assert.Error(t, err)
}
