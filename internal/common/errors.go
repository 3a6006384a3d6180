// Package common defines shared constants and sentinel errors used across
// the vault engine layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Credential errors. Every failed password, code or recovery-word check
	// is reported with this single error regardless of which branch failed.
	ErrInvalidCredential = errors.New("invalid credentials")

	// ErrRateLimited is matched by RateLimitedError.
	ErrRateLimited = errors.New("too many failed attempts")

	// Stored data failed its tamper-evidence check.
	ErrIntegrityViolation = errors.New("integrity violation: stored data was modified or corrupted")

	// The blob is unreadable under every known parameter generation.
	ErrDecryptionFailed = errors.New("wrong password or corrupted backup")

	// The persistence layer failed to open or respond.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// Vault lifecycle errors.
	ErrVaultLocked        = errors.New("vault is locked")
	ErrVaultNotConfigured = errors.New("vault is not set up")
	ErrAlreadyConfigured  = errors.New("vault is already set up")
	ErrWrongStep          = errors.New("unexpected unlock step")

	// ErrBiometricUnavailable is returned when the fast path is disabled,
	// either by configuration or because no host protector exists.
	ErrBiometricUnavailable = errors.New("biometric unlock unavailable")
)

// RateLimitedError reports a lockout together with the remaining wait.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	if e.Remaining <= 0 {
		return ErrRateLimited.Error()
	}
	return fmt.Sprintf("%s, retry in %s", ErrRateLimited, e.Remaining.Round(time.Second))
}

// Is lets errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
