package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfigWritesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "poold.json")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)

	_, err = os.Stat(path)
	require.NoError(t, err)

	cfg.Hasher = "mimc"
	cfg.Depth = 8
	require.NoError(t, SaveConfig(cfg, path))

	again, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "mimc", again.Hasher)
	assert.Equal(t, 8, again.Depth)
}

func TestLoadConfigRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poold.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]func(c *Config){
		"unknown hasher":  func(c *Config) { c.Hasher = "sha1" },
		"zero depth":      func(c *Config) { c.Depth = 0 },
		"deep tree":       func(c *Config) { c.Depth = 33 },
		"no history":      func(c *Config) { c.HistorySize = 0 },
		"huge history":    func(c *Config) { c.HistorySize = 1025 },
		"no program seed": func(c *Config) { c.ProgramSeed = "" },
		"no listen addr":  func(c *Config) { c.ListenAddr = "" },
		"bad log level":   func(c *Config) { c.LogLevel = "verbose" },
		"no timeout":      func(c *Config) { c.RequestTimeoutSeconds = 0 },
		"zero burst":      func(c *Config) { c.RateLimitBurst = 0 },
		"bad period":      func(c *Config) { c.RateLimitPeriod = "soon" },
		"negative period": func(c *Config) { c.RateLimitPeriod = "-1s" },
		"audit without path": func(c *Config) {
			c.EnableAudit = true
			c.AuditLogPath = ""
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestConfigPaths(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, filepath.Join("data", "ledger"), cfg.LedgerPath())
	assert.Equal(t, filepath.Join("data", "index"), cfg.IndexPath())
	assert.Empty(t, cfg.AuditPath())

	cfg.EnableAudit = true
	assert.Equal(t, "audit.log", cfg.AuditPath())

	cfg.DataDir = ""
	assert.Empty(t, cfg.LedgerPath())
	assert.Empty(t, cfg.IndexPath())
}
