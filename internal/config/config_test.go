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

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 600*time.Second, cfg.CacheTTL())
	assert.Equal(t, 60*time.Second, cfg.Timeout())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: "127.0.0.1:9000"
log_level: debug
folder_limit: 10
cache_enabled: false
cache_ttl_seconds: 30
timeout_seconds: 5
coalesce: false
servers:
  example.com: mail.example.net
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9000", cfg.Listen)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 993, cfg.IMAPPort, "unset keys keep their defaults")
	assert.Equal(t, 10, cfg.FolderLimit)
	assert.False(t, cfg.CacheEnabled)
	assert.False(t, cfg.Coalesce)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL())
	assert.Equal(t, 5*time.Second, cfg.Timeout())
	assert.Equal(t, map[string]string{"example.com": "mail.example.net"}, cfg.Servers)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv(EnvListen, ":7000")
	t.Setenv(EnvLogLevel, "warn")
	path := writeConfig(t, "listen: \":9000\"\nlog_level: debug\n")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.Listen)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadInvalid(t *testing.T) {
	cases := map[string]string{
		"bad yaml":       "listen: [",
		"bad log level":  "log_level: verbose\n",
		"bad port":       "imap_port: 70000\n",
		"empty host":     "servers:\n  example.com: \"\"\n",
		"negative limit": "folder_limit: -1\n",
	}

	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestDurationsDefaultWhenUnset(t *testing.T) {
	cfg := &Config{}

	assert.Equal(t, 600*time.Second, cfg.CacheTTL())
	assert.Equal(t, 60*time.Second, cfg.Timeout())
}
