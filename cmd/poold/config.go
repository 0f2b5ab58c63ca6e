// config.go - Configuration management for the pool daemon
package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"shieldedpool/internal/merkle"
	"shieldedpool/internal/pool"
)

// Config represents the daemon configuration
type Config struct {
	// Ledger
	DataDir     string `json:"data_dir"`
	ProgramSeed string `json:"program_seed"`
	Hasher      string `json:"hasher"`
	Depth       int    `json:"depth"`
	HistorySize int    `json:"history_size"`

	// Network
	ListenAddr            string `json:"listen_addr"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
	EnableFaucet          bool   `json:"enable_faucet"`

	// Logging
	LogLevel string `json:"log_level"`
	LogFile  string `json:"log_file"`

	// Security
	EnableAudit     bool   `json:"enable_audit"`
	AuditLogPath    string `json:"audit_log_path"`
	RateLimitBurst  int    `json:"rate_limit_burst"`
	RateLimitRefill int    `json:"rate_limit_refill"`
	RateLimitPeriod string `json:"rate_limit_period"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DataDir:               "data",
		ProgramSeed:           "shieldedpool/program/v1",
		Hasher:                merkle.DefaultHasher,
		Depth:                 pool.DefaultDepth,
		HistorySize:           pool.DefaultHistorySize,
		ListenAddr:            "127.0.0.1:8899",
		RequestTimeoutSeconds: 30,
		EnableFaucet:          false,
		LogLevel:              "info",
		LogFile:               "",
		EnableAudit:           true,
		AuditLogPath:          "audit.log",
		RateLimitBurst:        20,
		RateLimitRefill:       5,
		RateLimitPeriod:       "1s",
	}
}

// LoadConfig loads configuration from file or creates default
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); err == nil {
		file, err := os.Open(configPath)
		if err != nil {
			return nil, errors.Wrap(err, "failed to open config file")
		}
		defer file.Close()

		config := DefaultConfig()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, errors.Wrap(err, "failed to decode config file")
		}
		return config, nil
	}

	// Create default config and save it
	config := DefaultConfig()
	if err := SaveConfig(config, configPath); err != nil {
		return nil, errors.Wrap(err, "failed to save default config")
	}
	return config, nil
}

// SaveConfig saves configuration to file
func SaveConfig(config *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return errors.Wrap(err, "failed to create config directory")
	}

	file, err := os.Create(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to create config file")
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(config); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.ProgramSeed == "" {
		return errors.New("program_seed must be set")
	}
	if _, err := merkle.NewHasher(c.Hasher); err != nil {
		return err
	}
	if c.Depth < 1 || c.Depth > merkle.MaxDepth {
		return errors.Errorf("depth must be in [1, %d]", merkle.MaxDepth)
	}
	if c.HistorySize < 1 || c.HistorySize > pool.MaxHistorySize {
		return errors.Errorf("history_size must be in [1, %d]", pool.MaxHistorySize)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.ListenAddr == "" {
		return errors.New("listen_addr must be set")
	}
	if c.RequestTimeoutSeconds <= 0 {
		return errors.New("request_timeout_seconds must be positive")
	}
	if c.RateLimitBurst <= 0 || c.RateLimitRefill <= 0 {
		return errors.New("rate limits must be positive")
	}
	if _, err := c.RateLimitWindow(); err != nil {
		return err
	}
	if c.EnableAudit && c.AuditLogPath == "" {
		return errors.New("audit_log_path must be set when audit is enabled")
	}
	return nil
}

// RateLimitWindow parses the refill period.
func (c *Config) RateLimitWindow() (time.Duration, error) {
	d, err := time.ParseDuration(c.RateLimitPeriod)
	if err != nil {
		return 0, errors.Wrap(err, "invalid rate_limit_period")
	}
	if d <= 0 {
		return 0, errors.New("rate_limit_period must be positive")
	}
	return d, nil
}

// LedgerPath is where account state lives; empty keeps it in memory.
func (c *Config) LedgerPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "ledger")
}

// IndexPath is where the commitment log lives; empty keeps it in memory.
func (c *Config) IndexPath() string {
	if c.DataDir == "" {
		return ""
	}
	return filepath.Join(c.DataDir, "index")
}

// AuditPath returns the audit file, or "" when auditing is off.
func (c *Config) AuditPath() string {
	if !c.EnableAudit {
		return ""
	}
	return c.AuditLogPath
}
