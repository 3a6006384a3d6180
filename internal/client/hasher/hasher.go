// Package hasher derives and verifies the master-password hash.
//
// Cost parameters are picked from the number of CPU cores. Verification
// walks an ordered chain of parameter sets: the current tier, the other
// adaptive tiers, then the legacy generations. Hashes made under any of
// them stay verifiable without a forced re-hash.
package hasher

import (
	"context"
	"encoding/base64"
	"fmt"
	"runtime"

	"github.com/dmitrijs2005/gophvault/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

const (
	SaltSize = 16

	saltKey = "canonical"

	// SaltRef names where the canonical salt lives.
	SaltRef = common.NamespaceSalt + "/" + saltKey
)

// fallbackSalt is used only when no canonical salt was ever persisted.
var fallbackSalt = []byte("gophvault.static")

var (
	TierHigh     = cryptox.Argon2Params{Time: 4, MemoryKiB: 128 * 1024, Threads: 4, KeyLen: 32}
	TierStandard = cryptox.Argon2Params{Time: 3, MemoryKiB: 64 * 1024, Threads: 2, KeyLen: 32}
	TierReduced  = cryptox.Argon2Params{Time: 2, MemoryKiB: 32 * 1024, Threads: 1, KeyLen: 32}
)

// Legacy lists earlier parameter generations, newest first.
var Legacy = []cryptox.Argon2Params{
	{Time: 3, MemoryKiB: 64 * 1024, Threads: 4, KeyLen: 32},
	{Time: 1, MemoryKiB: 64 * 1024, Threads: 4, KeyLen: 32},
}

// AdaptiveParams picks the cost tier for a machine with the given cores.
func AdaptiveParams(cores int) cryptox.Argon2Params {
	switch {
	case cores >= 8:
		return TierHigh
	case cores <= 2:
		return TierReduced
	default:
		return TierStandard
	}
}

type Result struct {
	Hash string
	Salt []byte
}

type Hasher struct {
	store kv.Store
	log   logging.Logger
	chain []cryptox.Argon2Params
}

type Option func(*Hasher)

// WithParams replaces the whole chain: current first, then fallbacks.
func WithParams(current cryptox.Argon2Params, fallbacks ...cryptox.Argon2Params) Option {
	return func(h *Hasher) {
		h.chain = buildChain(current, fallbacks)
	}
}

func New(store kv.Store, log logging.Logger, opts ...Option) *Hasher {
	current := AdaptiveParams(runtime.NumCPU())
	fallbacks := append([]cryptox.Argon2Params{TierHigh, TierStandard, TierReduced}, Legacy...)

	h := &Hasher{
		store: store,
		log:   log.With("component", "hasher"),
		chain: buildChain(current, fallbacks),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func buildChain(current cryptox.Argon2Params, fallbacks []cryptox.Argon2Params) []cryptox.Argon2Params {
	chain := []cryptox.Argon2Params{current}
	seen := map[cryptox.Argon2Params]bool{current: true}
	for _, p := range fallbacks {
		if !seen[p] {
			seen[p] = true
			chain = append(chain, p)
		}
	}
	return chain
}

// Current returns the parameters new hashes are made with.
func (h *Hasher) Current() cryptox.Argon2Params {
	return h.chain[0]
}

// HashPassword hashes password under the current parameters. With a nil
// salt a fresh one is generated and persisted as the canonical salt; a
// given salt is used as is and not persisted.
func (h *Hasher) HashPassword(ctx context.Context, password, salt []byte) (Result, error) {
	if salt == nil {
		fresh, err := cryptox.RandomBytes(SaltSize)
		if err != nil {
			return Result{}, err
		}
		if err := h.store.Put(ctx, common.NamespaceSalt, saltKey, fresh); err != nil {
			return Result{}, fmt.Errorf("persist salt: %w", err)
		}
		salt = fresh
	}

	digest, err := cryptox.Hash(password, salt, h.Current())
	if err != nil {
		return Result{}, err
	}
	return Result{Hash: base64.StdEncoding.EncodeToString(digest), Salt: salt}, nil
}

// CanonicalSalt returns the persisted salt, or nil when there is none.
func (h *Hasher) CanonicalSalt(ctx context.Context) ([]byte, error) {
	salt, err := h.store.Get(ctx, common.NamespaceSalt, saltKey)
	if err != nil {
		return nil, fmt.Errorf("load salt: %w", err)
	}
	if len(salt) == 0 {
		return nil, nil
	}
	return salt, nil
}

// VerificationSalt is the salt VerifyPassword hashes with: the canonical
// salt, or the fixed fallback when none was ever persisted.
func (h *Hasher) VerificationSalt(ctx context.Context) ([]byte, error) {
	salt, err := h.CanonicalSalt(ctx)
	if err != nil {
		return nil, err
	}
	if salt == nil {
		h.log.Warn(ctx, "no canonical salt persisted, using fallback salt")
		return fallbackSalt, nil
	}
	return salt, nil
}

// VerifyPassword reports whether password matches storedHash under any
// parameter set of the chain. Fallback attempts are not surfaced; only a
// storage failure or a cancelled context produce an error.
func (h *Hasher) VerifyPassword(ctx context.Context, password []byte, storedHash string) (bool, error) {
	want, err := base64.StdEncoding.DecodeString(storedHash)
	if err != nil || len(want) == 0 {
		return false, nil
	}

	salt, err := h.VerificationSalt(ctx)
	if err != nil {
		return false, err
	}

	return firstMatch(ctx, h.chain, func(p cryptox.Argon2Params) (bool, error) {
		got, err := cryptox.Hash(password, salt, p)
		if err != nil {
			return false, err
		}
		defer common.WipeByteArray(got)
		return cryptox.Equal(got, want), nil
	})
}

// firstMatch tries each parameter set in order and stops at the first hit.
func firstMatch[P any](ctx context.Context, chain []P, try func(P) (bool, error)) (bool, error) {
	for _, p := range chain {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		ok, err := try(p)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
