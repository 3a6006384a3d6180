package services

import (
	"context"
	"time"
)

// Touch records user activity and restarts the idle timer.
func (s *vaultService) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vault != nil {
		s.armAutoLockLocked()
	}
}

func (s *vaultService) armAutoLockLocked() {
	if s.lockTimer != nil {
		s.lockTimer.Stop()
		s.lockTimer = nil
	}
	s.lockGen++

	d := s.vault.Security.AutoLockTimeout()
	if d <= 0 {
		return
	}

	gen := s.lockGen
	s.lockTimer = s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		if s.vault == nil || s.lockGen != gen {
			s.mu.Unlock()
			return
		}
		ctx := context.Background()
		s.log.Info(ctx, "idle timeout reached, locking")
		_ = s.lockLocked(ctx)
		notify := s.opts.OnAutoLock
		s.mu.Unlock()

		if notify != nil {
			notify()
		}
	})
}

func (s *vaultService) SetAutoLockTimeout(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.requireUnlockedLocked(); err != nil {
		return err
	}
	if d < 0 {
		d = 0
	}
	if err := s.updateSecurityLocked(ctx, func() {
		s.vault.Security.AutoLockTimeoutMs = d.Milliseconds()
	}); err != nil {
		return err
	}
	s.armAutoLockLocked()
	return nil
}
