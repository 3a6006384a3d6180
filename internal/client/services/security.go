package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/gophvault/internal/client/integrity"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/otp"
	"github.com/dmitrijs2005/gophvault/internal/client/recovery"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

// updateSecurityLocked applies mutate to the in-memory record and
// persists it. In duress mode nothing is changed and nil is returned.
func (s *vaultService) updateSecurityLocked(ctx context.Context, mutate func()) error {
	if s.vault.Duress {
		return nil
	}
	prev := s.vault.Security
	mutate()
	s.vault.Security.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.SaveJSON(ctx, integrity.RefSecurityConfig, s.vault.Security); err != nil {
		s.vault.Security = prev
		return err
	}
	return nil
}

func (s *vaultService) checkCurrentPasswordLocked(password []byte) error {
	if !cryptox.Equal(password, s.vault.Password.Bytes()) {
		return common.ErrInvalidCredential
	}
	return nil
}

// ChangeMasterPassword re-encrypts the collection under newPassword and
// rewrites the verification hash with the canonical salt, so an existing
// duress hash stays valid. If the escrow or the hash cannot be saved, the
// collection is written back under the old password. A crash between the
// two writes is repaired by self-healing on the next unlock.
func (s *vaultService) ChangeMasterPassword(ctx context.Context, oldPassword, newPassword []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if err := s.checkCurrentPasswordLocked(oldPassword); err != nil {
		return err
	}
	if len(newPassword) == 0 {
		return ErrEmptyPassword
	}
	if s.vault.Duress {
		return nil
	}
	if s.vault.Security.HasDuress() {
		same, err := s.hasher.VerifyPassword(ctx, newPassword, s.vault.Security.DuressHash)
		if err != nil {
			return err
		}
		if same {
			return ErrSamePassword
		}
	}

	salt, err := s.hasher.VerificationSalt(ctx)
	if err != nil {
		return err
	}
	res, err := s.hasher.HashPassword(ctx, newPassword, salt)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if err := s.persistLocked(ctx, newPassword); err != nil {
		return err
	}
	s.dirty = false
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}

	if err := s.commitPasswordLocked(ctx, newPassword, res.Hash); err != nil {
		if rerr := s.revertPasswordLocked(ctx); rerr != nil {
			s.log.Error(ctx, "vault could not be restored to the old password", "error", rerr)
			return errors.Join(err, rerr)
		}
		return err
	}

	buf := make([]byte, len(newPassword))
	copy(buf, newPassword)
	s.vault.Password.Destroy()
	s.vault.Password = memguard.NewBufferFromBytes(buf)
	s.armAutoLockLocked()

	s.log.Info(ctx, "master password changed")
	return nil
}

// commitPasswordLocked rewraps the biometric escrow and stores the new
// verification hash.
func (s *vaultService) commitPasswordLocked(ctx context.Context, password []byte, hash string) error {
	if err := s.saveEscrowLocked(ctx, password); err != nil {
		return err
	}
	return s.updateSecurityLocked(ctx, func() {
		s.vault.Security.PasswordHash = hash
	})
}

// revertPasswordLocked writes the collection and the escrow back under the
// password still held in memory.
func (s *vaultService) revertPasswordLocked(ctx context.Context) error {
	current := s.vault.Password.Bytes()
	if err := s.persistLocked(ctx, current); err != nil {
		return err
	}
	return s.saveEscrowLocked(ctx, current)
}

func (s *vaultService) saveEscrowLocked(ctx context.Context, password []byte) error {
	if !s.vault.Security.BiometricEnabled || s.protector == nil {
		return nil
	}
	escrow, err := s.protector.Wrap(password)
	if err != nil {
		return fmt.Errorf("rewrap biometric escrow: %w", err)
	}
	return s.store.SaveProtected(ctx, integrity.RefBiometric, escrow)
}

// BeginSecondFactor generates a TOTP secret. It is stored only once
// ConfirmSecondFactor sees a valid code for it.
func (s *vaultService) BeginSecondFactor(ctx context.Context, account string) (otp.Enrollment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return otp.Enrollment{}, err
	}
	if account == "" {
		account = "local"
	}
	e, err := otp.Generate(common.AppName, account)
	if err != nil {
		return otp.Enrollment{}, err
	}
	cfg := e.Config
	s.pendingTOTP = &cfg
	return e, nil
}

func (s *vaultService) ConfirmSecondFactor(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if s.pendingTOTP == nil {
		return ErrNoPendingEnrollment
	}
	if !otp.Validate(*s.pendingTOTP, code, s.clock.Now()) {
		return common.ErrInvalidCredential
	}

	pending := s.pendingTOTP
	if err := s.updateSecurityLocked(ctx, func() {
		s.vault.Security.SecondFactor = pending
	}); err != nil {
		return err
	}
	s.pendingTOTP = nil
	return nil
}

func (s *vaultService) DisableSecondFactor(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	return s.updateSecurityLocked(ctx, func() {
		s.vault.Security.SecondFactor = nil
	})
}

// WatchCode streams the enrolled second-factor code until ctx ends.
func (s *vaultService) WatchCode(ctx context.Context) (<-chan otp.Tick, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	if s.vault.Duress || s.vault.Security.SecondFactor == nil {
		return nil, ErrSecondFactorOff
	}
	return otp.Watch(ctx, s.clock, *s.vault.Security.SecondFactor), nil
}

// EnableRecoveryPhrase generates and stores a new recovery phrase,
// replacing any previous one.
func (s *vaultService) EnableRecoveryPhrase(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	phrase, err := recovery.Generate(s.opts.RecoveryWordCount)
	if err != nil {
		return nil, err
	}
	if err := s.updateSecurityLocked(ctx, func() {
		s.vault.Security.RecoveryPhrase = phrase
	}); err != nil {
		return nil, err
	}
	return phrase, nil
}

func (s *vaultService) DisableRecoveryPhrase(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	return s.updateSecurityLocked(ctx, func() {
		s.vault.Security.RecoveryPhrase = nil
	})
}

// SetDuressPassword stores the duress hash and encrypts decoy under the
// duress password. A nil decoy stores an empty collection.
func (s *vaultService) SetDuressPassword(ctx context.Context, password []byte, decoy *models.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if len(password) == 0 {
		return ErrEmptyPassword
	}
	if s.vault.Duress {
		return nil
	}
	if cryptox.Equal(password, s.vault.Password.Bytes()) {
		return ErrSamePassword
	}

	salt, err := s.hasher.VerificationSalt(ctx)
	if err != nil {
		return err
	}
	res, err := s.hasher.HashPassword(ctx, password, salt)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	if decoy == nil {
		decoy = models.NewCollection()
	}
	data, err := decoy.Marshal()
	if err != nil {
		return fmt.Errorf("encode decoy: %w", err)
	}
	blob, err := s.cipher.Encrypt(data, password)
	if err != nil {
		return fmt.Errorf("encrypt decoy: %w", err)
	}
	if err := s.store.SaveDecoy(ctx, blob); err != nil {
		return err
	}

	return s.updateSecurityLocked(ctx, func() {
		s.vault.Security.DuressHash = res.Hash
	})
}

func (s *vaultService) ClearDuressPassword(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if s.vault.Duress {
		return nil
	}
	if err := s.updateSecurityLocked(ctx, func() {
		s.vault.Security.DuressHash = ""
	}); err != nil {
		return err
	}
	return s.store.DeleteDecoy(ctx)
}

// EnableBiometric escrows the master password with the host protector.
func (s *vaultService) EnableBiometric(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if s.protector == nil || s.prompt == nil {
		return common.ErrBiometricUnavailable
	}
	if s.vault.Duress {
		return nil
	}

	token, err := s.protector.Wrap(s.vault.Password.Bytes())
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBiometricUnavailable, err)
	}
	if err := s.store.SaveProtected(ctx, integrity.RefBiometric, token); err != nil {
		return err
	}
	return s.updateSecurityLocked(ctx, func() {
		s.vault.Security.BiometricEnabled = true
	})
}

func (s *vaultService) DisableBiometric(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if s.vault.Duress {
		return nil
	}
	if err := s.updateSecurityLocked(ctx, func() {
		s.vault.Security.BiometricEnabled = false
	}); err != nil {
		return err
	}
	return s.store.DeleteProtected(ctx, integrity.RefBiometric)
}
