package models

import "time"

// TOTPConfig is an enrolled time-based second factor.
type TOTPConfig struct {
	Secret  string `json:"secret"`
	Issuer  string `json:"issuer"`
	Account string `json:"account"`
	Digits  int    `json:"digits"`
	Period  uint   `json:"period"`
}

// SecurityConfig is the persisted master credential record.
type SecurityConfig struct {
	PasswordHash      string      `json:"password_hash"`
	SaltRef           string      `json:"salt_ref"`
	SecondFactor      *TOTPConfig `json:"second_factor,omitempty"`
	RecoveryPhrase    []string    `json:"recovery_phrase,omitempty"`
	DuressHash        string      `json:"duress_hash,omitempty"`
	AutoLockTimeoutMs int64       `json:"auto_lock_timeout_ms"`
	BiometricEnabled  bool        `json:"biometric_enabled"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

func (s *SecurityConfig) AutoLockTimeout() time.Duration {
	return time.Duration(s.AutoLockTimeoutMs) * time.Millisecond
}

func (s *SecurityConfig) HasSecondFactor() bool { return s.SecondFactor != nil }

func (s *SecurityConfig) HasRecoveryPhrase() bool { return len(s.RecoveryPhrase) > 0 }

func (s *SecurityConfig) HasDuress() bool { return s.DuressHash != "" }
