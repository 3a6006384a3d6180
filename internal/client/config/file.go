package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/flagx"
	"github.com/dmitrijs2005/gophvault/internal/timex"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of a config file. Unset fields leave the
// current value untouched.
type fileConfig struct {
	DataDir           string          `json:"data_dir" yaml:"data_dir"`
	StorageDriver     string          `json:"storage_driver" yaml:"storage_driver"`
	HostKeyFile       string          `json:"host_key_file" yaml:"host_key_file"`
	BiometricPrompt   *bool           `json:"biometric_prompt" yaml:"biometric_prompt"`
	SaveDebounce      *timex.Duration `json:"save_debounce" yaml:"save_debounce"`
	AutoLockTimeout   *timex.Duration `json:"auto_lock_timeout" yaml:"auto_lock_timeout"`
	MaxFailedAttempts *int            `json:"max_failed_attempts" yaml:"max_failed_attempts"`
	LockoutDuration   *timex.Duration `json:"lockout_duration" yaml:"lockout_duration"`
	RecoveryWordCount *int            `json:"recovery_word_count" yaml:"recovery_word_count"`
	LogBackend        string          `json:"log_backend" yaml:"log_backend"`
	LogLevel          string          `json:"log_level" yaml:"log_level"`
}

// parseFile overlays cfg with the file named by -c/-config, if any. Files
// ending in .yaml or .yml are read as YAML, everything else as JSON.
func parseFile(cfg *Config, args []string) error {
	path := flagx.ConfigFileFlag(args)
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &fc)
	default:
		err = json.Unmarshal(data, &fc)
	}
	if err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	fc.apply(cfg)
	return nil
}

func (fc *fileConfig) apply(cfg *Config) {
	setString(&cfg.DataDir, fc.DataDir)
	setString(&cfg.StorageDriver, fc.StorageDriver)
	setString(&cfg.HostKeyFile, fc.HostKeyFile)
	setString(&cfg.LogBackend, fc.LogBackend)
	setString(&cfg.LogLevel, fc.LogLevel)

	if fc.BiometricPrompt != nil {
		cfg.BiometricPrompt = *fc.BiometricPrompt
	}
	if fc.SaveDebounce != nil {
		cfg.SaveDebounce = fc.SaveDebounce.Duration
	}
	if fc.AutoLockTimeout != nil {
		cfg.AutoLockTimeout = fc.AutoLockTimeout.Duration
	}
	if fc.LockoutDuration != nil {
		cfg.LockoutDuration = fc.LockoutDuration.Duration
	}
	if fc.MaxFailedAttempts != nil {
		cfg.MaxFailedAttempts = *fc.MaxFailedAttempts
	}
	if fc.RecoveryWordCount != nil {
		cfg.RecoveryWordCount = *fc.RecoveryWordCount
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
