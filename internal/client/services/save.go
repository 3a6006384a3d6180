package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/client/integrity"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/common"
)

func (s *vaultService) requireUnlockedLocked() error {
	if s.vault == nil {
		return common.ErrVaultLocked
	}
	return nil
}

// Save replaces the unlocked collection and schedules a debounced write.
func (s *vaultService) Save(ctx context.Context, coll *models.Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if coll == nil {
		coll = models.NewCollection()
	}
	s.vault.Collection = coll.Clone()
	return s.changedLocked(ctx)
}

// Flush writes a pending save immediately.
func (s *vaultService) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked(ctx)
}

// changedLocked marks the collection dirty and restarts the debounce
// window. A zero debounce writes synchronously.
func (s *vaultService) changedLocked(ctx context.Context) error {
	s.dirty = true
	s.armAutoLockLocked()

	if s.opts.SaveDebounce == 0 {
		return s.flushLocked(ctx)
	}
	if s.saveTimer != nil {
		s.saveTimer.Stop()
	}
	s.saveTimer = s.clock.AfterFunc(s.opts.SaveDebounce, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		ctx := context.Background()
		if err := s.flushLocked(ctx); err != nil {
			s.log.Error(ctx, "debounced save failed", "error", err)
		}
	})
	return nil
}

func (s *vaultService) flushLocked(ctx context.Context) error {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
	if s.vault == nil || !s.dirty {
		return nil
	}
	if err := s.persistLocked(ctx, s.vault.Password.Bytes()); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// persistLocked encrypts the collection under password. In duress mode
// the decoy blob is written and the primary one is never touched.
func (s *vaultService) persistLocked(ctx context.Context, password []byte) error {
	data, err := s.vault.Collection.Marshal()
	if err != nil {
		return fmt.Errorf("encode collection: %w", err)
	}
	blob, err := s.cipher.Encrypt(data, password)
	common.WipeByteArray(data)
	if err != nil {
		return fmt.Errorf("encrypt collection: %w", err)
	}

	if s.vault.Duress {
		return s.store.SaveDecoy(ctx, blob)
	}
	return s.store.SaveProtected(ctx, integrity.RefVault, blob)
}
