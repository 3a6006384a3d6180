package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/client/hasher"
	"github.com/dmitrijs2005/gophvault/internal/client/integrity"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/unlock"
	"github.com/dmitrijs2005/gophvault/internal/common"
)

// Setup creates a new vault: a fresh canonical salt, the verification
// hash and an empty primary collection. The vault stays locked.
func (s *vaultService) Setup(ctx context.Context, password []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(password) == 0 {
		return ErrEmptyPassword
	}
	_, err := unlock.LoadSecurity(ctx, s.store)
	if err == nil {
		return common.ErrAlreadyConfigured
	}
	if !errors.Is(err, common.ErrVaultNotConfigured) {
		return err
	}

	res, err := s.hasher.HashPassword(ctx, password, nil)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	data, err := models.NewCollection().Marshal()
	if err != nil {
		return err
	}
	blob, err := s.cipher.Encrypt(data, password)
	if err != nil {
		return fmt.Errorf("encrypt vault: %w", err)
	}
	if err := s.store.SaveProtected(ctx, integrity.RefVault, blob); err != nil {
		return err
	}

	cfg := models.SecurityConfig{
		PasswordHash:      res.Hash,
		SaltRef:           hasher.SaltRef,
		AutoLockTimeoutMs: s.opts.AutoLockTimeout.Milliseconds(),
		UpdatedAt:         s.clock.Now().UTC(),
	}
	if err := s.store.SaveJSON(ctx, integrity.RefSecurityConfig, cfg); err != nil {
		return err
	}

	s.log.Info(ctx, "vault created")
	return nil
}

// Unlock submits the master (or duress) password. An unlock already in
// progress is abandoned and restarted. An unlocked vault reports
// common.ErrWrongStep without looking at password.
func (s *vaultService) Unlock(ctx context.Context, password []byte) (UnlockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginUnlockLocked(); err != nil {
		return UnlockResult{Step: unlock.StepUnlocked, Unlocked: true, Duress: s.vault.Duress}, err
	}
	res, err := s.engine.SubmitPassword(ctx, s.session, password)
	return s.handleLocked(ctx, res, err)
}

// UnlockBiometric runs the presence prompt without holding the service
// lock, so timers and other callers are not blocked on the user.
func (s *vaultService) UnlockBiometric(ctx context.Context) (UnlockResult, error) {
	s.mu.Lock()
	if err := s.beginUnlockLocked(); err != nil {
		res := UnlockResult{Step: unlock.StepUnlocked, Unlocked: true, Duress: s.vault.Duress}
		s.mu.Unlock()
		return res, err
	}
	err := s.engine.CheckBiometric(ctx, s.session)
	s.mu.Unlock()
	if err != nil {
		return UnlockResult{Step: unlock.StepAwaitingPassword}, err
	}

	if err := s.engine.ConfirmPresence(ctx); err != nil {
		return UnlockResult{Step: unlock.StepAwaitingPassword}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.beginUnlockLocked(); err != nil {
		return UnlockResult{Step: unlock.StepUnlocked, Unlocked: true, Duress: s.vault.Duress}, err
	}
	res, err := s.engine.SubmitEscrow(ctx, s.session)
	return s.handleLocked(ctx, res, err)
}

// beginUnlockLocked refuses an unlocked vault and resets a half-finished
// session back to the password step.
func (s *vaultService) beginUnlockLocked() error {
	if s.vault != nil {
		return common.ErrWrongStep
	}
	if s.session.Step() != unlock.StepAwaitingPassword {
		s.session.Discard()
	}
	return nil
}

func (s *vaultService) SubmitSecondFactor(ctx context.Context, code string) (UnlockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.engine.SubmitSecondFactor(ctx, s.session, code)
	return s.handleLocked(ctx, res, err)
}

func (s *vaultService) SubmitRecoveryWords(ctx context.Context, answer string) (UnlockResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.engine.SubmitRecoveryWords(ctx, s.session, answer)
	return s.handleLocked(ctx, res, err)
}

func (s *vaultService) handleLocked(ctx context.Context, res unlock.Result, err error) (UnlockResult, error) {
	if err != nil {
		return UnlockResult{Step: s.session.Step(), Positions: s.session.Positions()}, err
	}
	if res.Vault == nil {
		return UnlockResult{Step: res.Step, Positions: res.Positions}, nil
	}

	s.vault = res.Vault
	s.session.Discard()
	s.armAutoLockLocked()
	return UnlockResult{Step: unlock.StepUnlocked, Unlocked: true, Duress: s.vault.Duress}, nil
}

// Lock flushes a pending save, then wipes the password and collection.
func (s *vaultService) Lock(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lockLocked(ctx)
}

func (s *vaultService) lockLocked(ctx context.Context) error {
	s.session.Discard()
	s.pendingTOTP = nil
	if s.vault == nil {
		return nil
	}

	err := s.flushLocked(ctx)
	if err != nil {
		s.log.Error(ctx, "pending save lost on lock", "error", err)
	}

	s.stopTimersLocked()
	s.vault.Password.Destroy()
	s.vault = nil
	s.store.Forget()
	s.log.Info(ctx, "vault locked")
	return err
}

func (s *vaultService) stopTimersLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	if s.lockTimer != nil {
		s.lockTimer.Stop()
		s.lockTimer = nil
	}
	s.lockGen++
	s.dirty = false
}

// Reset destroys every stored value, including the salt. Unsaved edits
// are dropped.
func (s *vaultService) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session.Discard()
	s.pendingTOTP = nil
	if s.vault != nil {
		s.stopTimersLocked()
		s.vault.Password.Destroy()
		s.vault = nil
	}
	s.store.Forget()

	if err := s.kv.ClearAll(ctx, common.Namespaces...); err != nil {
		return fmt.Errorf("reset vault: %w", err)
	}
	s.log.Warn(ctx, "vault reset, all data removed")
	return nil
}
