// Package ratelimit throttles failed unlock attempts per installation.
//
// State is kept in the ratelimit namespace of the KV store as
// deterministic CBOR so that lockouts survive restarts.
package ratelimit

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophvault/internal/clock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Status is the limiter verdict for one fingerprint.
type Status struct {
	Blocked   bool
	Remaining time.Duration
	Failures  int
}

// Limiter is consulted before every password attempt.
type Limiter interface {
	IsBlocked(ctx context.Context, fingerprint string) (Status, error)
	RecordFailure(ctx context.Context, fingerprint string) (Status, error)
	Reset(ctx context.Context, fingerprint string) error
}

// Policy blocks after MaxAttempts consecutive failures. Each further
// lockout doubles the previous one up to MaxLockout.
type Policy struct {
	MaxAttempts int
	Lockout     time.Duration
	MaxLockout  time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Lockout: 30 * time.Second, MaxLockout: time.Hour}
}

func (p Policy) lockoutFor(n int) time.Duration {
	d := p.Lockout
	for i := 1; i < n; i++ {
		d *= 2
		if p.MaxLockout > 0 && d >= p.MaxLockout {
			return p.MaxLockout
		}
	}
	return d
}

type state struct {
	Failures     int   `cbor:"1,keyasint"`
	Lockouts     int   `cbor:"2,keyasint"`
	BlockedUntil int64 `cbor:"3,keyasint"`
}

var encMode cbor.EncMode

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ratelimit: CBOR encoder initialization failed: " + err.Error())
	}
}

// Store is a Limiter persisted in a kv.Store.
type Store struct {
	mu     sync.Mutex
	store  kv.Store
	clk    clock.Clock
	policy Policy
}

func New(store kv.Store, clk clock.Clock, policy Policy) *Store {
	return &Store{store: store, clk: clk, policy: policy}
}

func (s *Store) load(ctx context.Context, fp string) (state, error) {
	raw, err := s.store.Get(ctx, common.NamespaceRateLimit, fp)
	if err != nil {
		return state{}, fmt.Errorf("load limiter state: %w", err)
	}
	var st state
	if len(raw) == 0 {
		return st, nil
	}
	if err := cbor.Unmarshal(raw, &st); err != nil {
		return state{}, fmt.Errorf("decode limiter state: %w", err)
	}
	return st, nil
}

func (s *Store) save(ctx context.Context, fp string, st state) error {
	raw, err := encMode.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode limiter state: %w", err)
	}
	if err := s.store.Put(ctx, common.NamespaceRateLimit, fp, raw); err != nil {
		return fmt.Errorf("save limiter state: %w", err)
	}
	return nil
}

func (s *Store) status(st state) Status {
	now := s.clk.Now().UnixMilli()
	if st.BlockedUntil > now {
		return Status{
			Blocked:   true,
			Remaining: time.Duration(st.BlockedUntil-now) * time.Millisecond,
			Failures:  st.Failures,
		}
	}
	return Status{Failures: st.Failures}
}

func (s *Store) IsBlocked(ctx context.Context, fp string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx, fp)
	if err != nil {
		return Status{}, err
	}
	return s.status(st), nil
}

func (s *Store) RecordFailure(ctx context.Context, fp string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx, fp)
	if err != nil {
		return Status{}, err
	}

	st.Failures++
	if s.policy.MaxAttempts > 0 && st.Failures >= s.policy.MaxAttempts {
		st.Lockouts++
		st.Failures = 0
		st.BlockedUntil = s.clk.Now().Add(s.policy.lockoutFor(st.Lockouts)).UnixMilli()
	}

	if err := s.save(ctx, fp, st); err != nil {
		return Status{}, err
	}
	return s.status(st), nil
}

func (s *Store) Reset(ctx context.Context, fp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(ctx, common.NamespaceRateLimit, fp); err != nil {
		return fmt.Errorf("reset limiter state: %w", err)
	}
	return nil
}

const installationKey = "installation_id"

// Fingerprint returns the limiter subject for this installation: the
// BLAKE3 digest of a random installation id created on first use.
func Fingerprint(ctx context.Context, store kv.Store) (string, error) {
	id, err := store.Get(ctx, common.NamespaceSettings, installationKey)
	if err != nil {
		return "", fmt.Errorf("load installation id: %w", err)
	}
	if len(id) == 0 {
		id = []byte(uuid.NewString())
		if err := store.Put(ctx, common.NamespaceSettings, installationKey, id); err != nil {
			return "", fmt.Errorf("save installation id: %w", err)
		}
	}
	sum := blake3.Sum256(id)
	return hex.EncodeToString(sum[:]), nil
}
