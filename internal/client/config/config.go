package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds runtime settings for the gophvault CLI.
type Config struct {
	DataDir           string
	StorageDriver     string
	HostKeyFile       string
	// BiometricPrompt enables the terminal presence prompt for biometric
	// unlock. It needs a HostKeyFile outside DataDir.
	BiometricPrompt   bool
	SaveDebounce      time.Duration
	AutoLockTimeout   time.Duration
	MaxFailedAttempts int
	LockoutDuration   time.Duration
	RecoveryWordCount int
	LogBackend        string
	LogLevel          string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir()
	c.StorageDriver = "sqlite"
	c.HostKeyFile = ""
	c.BiometricPrompt = false
	c.SaveDebounce = 500 * time.Millisecond
	c.AutoLockTimeout = 5 * time.Minute
	c.MaxFailedAttempts = 5
	c.LockoutDuration = 30 * time.Second
	c.RecoveryWordCount = 24
	c.LogBackend = "slog"
	c.LogLevel = "info"
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".gophvault"
	}
	return filepath.Join(dir, "gophvault")
}

// HostKeyPath is HostKeyFile, or host.key inside DataDir when unset.
func (c *Config) HostKeyPath() string {
	if c.HostKeyFile != "" {
		return c.HostKeyFile
	}
	return filepath.Join(c.DataDir, "host.key")
}

// Validate rejects settings the vault cannot run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case "sqlite", "bolt":
	default:
		errs = append(errs, fmt.Errorf("storage driver must be sqlite or bolt, got %q", c.StorageDriver))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data dir is empty"))
	}
	if c.MaxFailedAttempts < 1 {
		errs = append(errs, fmt.Errorf("max failed attempts must be positive, got %d", c.MaxFailedAttempts))
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, fmt.Errorf("lockout duration must be positive, got %s", c.LockoutDuration))
	}
	if c.BiometricPrompt {
		if err := c.validateHostKeyLocation(); err != nil {
			errs = append(errs, err)
		}
	}
	switch c.RecoveryWordCount {
	case 18, 21, 24:
	default:
		errs = append(errs, fmt.Errorf("recovery word count must be 18, 21 or 24, got %d", c.RecoveryWordCount))
	}
	return errors.Join(errs...)
}

// validateHostKeyLocation keeps the key that unwraps the biometric escrow
// off the data directory holding the escrow.
func (c *Config) validateHostKeyLocation() error {
	if c.HostKeyFile == "" {
		return errors.New("biometric prompt needs host_key_file outside the data dir")
	}
	dir, err := filepath.Abs(c.DataDir)
	if err != nil {
		return fmt.Errorf("resolve data dir: %w", err)
	}
	key, err := filepath.Abs(c.HostKeyFile)
	if err != nil {
		return fmt.Errorf("resolve host key file: %w", err)
	}
	rel, err := filepath.Rel(dir, key)
	if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return fmt.Errorf("host key file %s must not be inside the data dir", c.HostKeyFile)
	}
	return nil
}

// Load builds a Config from defaults, then the optional config file, then
// flags. Later sources take precedence over earlier ones.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	cfg.LoadDefaults()
	if err := parseFile(cfg, args); err != nil {
		return nil, err
	}
	if err := parseFlags(cfg, args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadConfig is Load over os.Args.
func LoadConfig() (*Config, error) {
	return Load(os.Args[1:])
}
