package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
)

func (s *vaultService) AddEntry(ctx context.Context, env models.Envelope) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return models.Entry{}, err
	}
	if err := env.Validate(); err != nil {
		return models.Entry{}, err
	}
	e := s.vault.Collection.Add(env, s.clock.Now())
	if err := s.changedLocked(ctx); err != nil {
		return e, fmt.Errorf("saving error: %w", err)
	}
	return e, nil
}

func (s *vaultService) UpdateEntry(ctx context.Context, id string, env models.Envelope) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return models.Entry{}, err
	}
	if err := env.Validate(); err != nil {
		return models.Entry{}, err
	}
	e, err := s.vault.Collection.Update(id, env, s.clock.Now())
	if err != nil {
		return models.Entry{}, fmt.Errorf("error updating entry: %w", err)
	}
	if err := s.changedLocked(ctx); err != nil {
		return e, fmt.Errorf("saving error: %w", err)
	}
	return e, nil
}

func (s *vaultService) DeleteEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if err := s.vault.Collection.Delete(id); err != nil {
		return fmt.Errorf("error deleting entry: %w", err)
	}
	if err := s.changedLocked(ctx); err != nil {
		return fmt.Errorf("saving error: %w", err)
	}
	return nil
}

func (s *vaultService) GetEntry(ctx context.Context, id string) (models.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return models.Entry{}, err
	}
	s.armAutoLockLocked()
	e, err := s.vault.Collection.Get(id)
	if err != nil {
		return models.Entry{}, fmt.Errorf("error retrieving entry: %w", err)
	}
	return e, nil
}

func (s *vaultService) ListEntries(ctx context.Context) ([]models.Overview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return nil, err
	}
	s.armAutoLockLocked()
	return s.vault.Collection.List(), nil
}
