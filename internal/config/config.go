package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/alexjbarnes/chatsync/internal/logging"
	"github.com/alexjbarnes/chatsync/internal/scheduler"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// stateFile is the bbolt database holding the local store and sync state.
const stateFile = "state.db"

// Config holds all environment-based configuration for chatsync.
type Config struct {
	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL"`

	// Directory holding the local database. Defaults to ~/.chatsync.
	DataDir string `env:"CHATSYNC_DATA_DIR"`

	// Root of the shared remote store (a synced folder, network mount, etc).
	RemoteDir string `env:"CHATSYNC_REMOTE_DIR"`

	// Device name recorded in lock markers. Defaults to system hostname.
	DeviceName string `env:"DEVICE_NAME"`

	PushFrequency   string        `env:"CHATSYNC_PUSH_FREQUENCY" envDefault:"instant"`
	UploadBatchSize int           `env:"CHATSYNC_UPLOAD_BATCH_SIZE" envDefault:"10"`
	WatchDebounce   time.Duration `env:"CHATSYNC_WATCH_DEBOUNCE" envDefault:"2s"`

	// MCP server settings. The key hash is required when MCP is enabled.
	EnableMCP     bool   `env:"ENABLE_MCP" envDefault:"false"`
	MCPListenAddr string `env:"MCP_LISTEN_ADDR" envDefault:":8090"`
	MCPAPIKeyHash string `env:"MCP_API_KEY_HASH"`

	// Empty disables the standalone metrics listener.
	MetricsAddr string `env:"METRICS_ADDR"`

	pushPolicy scheduler.Policy
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing credentials to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.DeviceName == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "chatsync"
		}

		cfg.DeviceName = hostname
	}

	if cfg.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return nil, err
		}

		cfg.DataDir = dir
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	// The remote store confines asset paths under its root by prefix
	// comparison, which needs absolute paths.
	for _, dir := range []*string{&cfg.DataDir, &cfg.RemoteDir} {
		abs, err := filepath.Abs(*dir)
		if err != nil {
			return nil, fmt.Errorf("resolving %s to absolute path: %w", *dir, err)
		}

		*dir = abs
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.RemoteDir == "" {
		return fmt.Errorf("CHATSYNC_REMOTE_DIR is required")
	}

	policy, err := scheduler.ParsePolicy(c.PushFrequency)
	if err != nil {
		return fmt.Errorf("CHATSYNC_PUSH_FREQUENCY: %w", err)
	}

	c.pushPolicy = policy

	if c.UploadBatchSize < 1 {
		return fmt.Errorf("CHATSYNC_UPLOAD_BATCH_SIZE must be positive, got %d", c.UploadBatchSize)
	}

	if c.WatchDebounce < 0 {
		return fmt.Errorf("CHATSYNC_WATCH_DEBOUNCE must not be negative")
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if c.EnableMCP && c.MCPAPIKeyHash == "" {
		return fmt.Errorf("MCP_API_KEY_HASH is required when MCP is enabled")
	}

	return nil
}

// DefaultDataDir returns ~/.chatsync.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".chatsync"), nil
}

// StatePath is the location of the local database file.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, stateFile)
}

// PushPolicy returns the parsed CHATSYNC_PUSH_FREQUENCY.
func (c *Config) PushPolicy() scheduler.Policy {
	return c.pushPolicy
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
