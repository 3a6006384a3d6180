// Package unlock implements the multi-step unlock protocol:
// master password, optional time-based code, optional recovery-phrase
// challenge, then decryption of the primary or decoy collection.
//
// The Engine holds no per-attempt state. Every transition takes the
// Session it advances, and callers serialize attempts.
package unlock

import (
	"context"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"github.com/dmitrijs2005/gophvault/internal/client/biometric"
	"github.com/dmitrijs2005/gophvault/internal/client/hasher"
	"github.com/dmitrijs2005/gophvault/internal/client/hostkey"
	"github.com/dmitrijs2005/gophvault/internal/client/integrity"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/otp"
	"github.com/dmitrijs2005/gophvault/internal/client/ratelimit"
	"github.com/dmitrijs2005/gophvault/internal/client/recovery"
	"github.com/dmitrijs2005/gophvault/internal/clock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

type PasswordHasher interface {
	HashPassword(ctx context.Context, password, salt []byte) (hasher.Result, error)
	VerifyPassword(ctx context.Context, password []byte, storedHash string) (bool, error)
	VerificationSalt(ctx context.Context) ([]byte, error)
}

type BlobCipher interface {
	Decrypt(blob string, password []byte) ([]byte, error)
}

// Deps wires an Engine. Protector and Prompt are optional; without
// either the biometric path reports common.ErrBiometricUnavailable.
type Deps struct {
	Hasher      PasswordHasher
	Cipher      BlobCipher
	Store       *integrity.Store
	Limiter     ratelimit.Limiter
	Fingerprint string
	Protector   hostkey.Protector
	Prompt      biometric.Prompt
	Clock       clock.Clock
	Log         logging.Logger
}

type Engine struct {
	hasher      PasswordHasher
	cipher      BlobCipher
	store       *integrity.Store
	limiter     ratelimit.Limiter
	fingerprint string
	protector   hostkey.Protector
	prompt      biometric.Prompt
	clock       clock.Clock
	log         logging.Logger
}

func New(d Deps) *Engine {
	return &Engine{
		hasher:      d.Hasher,
		cipher:      d.Cipher,
		store:       d.Store,
		limiter:     d.Limiter,
		fingerprint: d.Fingerprint,
		protector:   d.Protector,
		prompt:      d.Prompt,
		clock:       d.Clock,
		log:         d.Log.With("component", "unlock"),
	}
}

// Vault is the outcome of a completed unlock. It owns Password and must
// destroy it when locking.
type Vault struct {
	Collection *models.Collection
	Password   *memguard.LockedBuffer
	Duress     bool
	Security   models.SecurityConfig
}

// Result reports where a session stands after a transition.
type Result struct {
	Step      Step
	Positions [2]int
	Vault     *Vault
}

// LoadSecurity reads the master credential record.
func LoadSecurity(ctx context.Context, store *integrity.Store) (*models.SecurityConfig, error) {
	var cfg models.SecurityConfig
	found, err := store.LoadJSON(ctx, integrity.RefSecurityConfig, &cfg)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, common.ErrVaultNotConfigured
	}
	return &cfg, nil
}

func (e *Engine) checkLimiter(ctx context.Context) error {
	st, err := e.limiter.IsBlocked(ctx, e.fingerprint)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		e.log.Error(ctx, "rate limiter unavailable, refusing attempt", "error", err)
		return &common.RateLimitedError{}
	}
	if st.Blocked {
		return &common.RateLimitedError{Remaining: st.Remaining}
	}
	return nil
}

func (e *Engine) resetLimiter(ctx context.Context) {
	if err := e.limiter.Reset(ctx, e.fingerprint); err != nil {
		e.log.Warn(ctx, "failed to reset rate limiter", "error", err)
	}
}

// SubmitPassword runs the password step. The limiter is consulted before
// any cryptographic work. The master hash is tried first, then the
// duress hash, then self-healing by decrypting the primary blob.
func (e *Engine) SubmitPassword(ctx context.Context, sess *Session, password []byte) (Result, error) {
	if sess.step != StepAwaitingPassword {
		return Result{Step: sess.step}, common.ErrWrongStep
	}
	if err := e.checkLimiter(ctx); err != nil {
		return Result{Step: sess.step}, err
	}
	if len(password) == 0 {
		return Result{Step: sess.step}, common.ErrInvalidCredential
	}

	cfg, err := LoadSecurity(ctx, e.store)
	if err != nil {
		return Result{Step: sess.step}, err
	}

	ok, err := e.hasher.VerifyPassword(ctx, password, cfg.PasswordHash)
	if err != nil {
		return Result{Step: sess.step}, err
	}
	if ok {
		e.resetLimiter(ctx)
		sess.stash(password, false)
		return e.next(ctx, sess, cfg, StepAwaitingPassword)
	}

	if cfg.HasDuress() {
		ok, err = e.hasher.VerifyPassword(ctx, password, cfg.DuressHash)
		if err != nil {
			return Result{Step: sess.step}, err
		}
		if ok {
			e.resetLimiter(ctx)
			sess.stash(password, true)
			return e.next(ctx, sess, cfg, StepAwaitingPassword)
		}
	}

	healed, err := e.selfHeal(ctx, cfg, password)
	if err != nil {
		return Result{Step: sess.step}, err
	}
	if healed {
		e.resetLimiter(ctx)
		sess.stash(password, false)
		return e.next(ctx, sess, cfg, StepAwaitingPassword)
	}

	if err := ctx.Err(); err != nil {
		return Result{Step: sess.step}, err
	}
	if _, err := e.limiter.RecordFailure(ctx, e.fingerprint); err != nil {
		e.log.Error(ctx, "failed to record unlock failure", "error", err)
	}
	return Result{Step: sess.step}, common.ErrInvalidCredential
}

// selfHeal trusts a successful decryption of the primary blob over a
// failed hash comparison and rewrites the verification hash. Only an
// integrity violation or a cancelled context is returned as an error.
func (e *Engine) selfHeal(ctx context.Context, cfg *models.SecurityConfig, password []byte) (bool, error) {
	blob, found, err := e.store.LoadProtected(ctx, integrity.RefVault)
	if err != nil {
		if errors.Is(err, common.ErrIntegrityViolation) {
			return false, err
		}
		e.log.Warn(ctx, "primary blob unreadable during recovery check", "error", err)
		return false, nil
	}
	if !found {
		return false, nil
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	pt, err := e.cipher.Decrypt(blob, password)
	if err != nil {
		return false, nil
	}
	common.WipeByteArray(pt)

	salt, err := e.hasher.VerificationSalt(ctx)
	if err == nil {
		var res hasher.Result
		res, err = e.hasher.HashPassword(ctx, password, salt)
		if err == nil {
			cfg.PasswordHash = res.Hash
			cfg.UpdatedAt = e.clock.Now().UTC()
			err = e.store.SaveJSON(ctx, integrity.RefSecurityConfig, cfg)
		}
	}
	if err != nil {
		e.log.Error(ctx, "verification hash out of sync and could not be rewritten", "error", err)
	} else {
		e.log.Warn(ctx, "verification hash was out of sync with the vault key, rewritten")
	}
	return true, nil
}

// SubmitSecondFactor checks a time-based code. A wrong code keeps the
// session at this step and does not count against the limiter.
func (e *Engine) SubmitSecondFactor(ctx context.Context, sess *Session, code string) (Result, error) {
	if sess.step != StepAwaitingSecondFactor {
		return Result{Step: sess.step}, common.ErrWrongStep
	}
	cfg, err := LoadSecurity(ctx, e.store)
	if err != nil {
		return Result{Step: sess.step}, err
	}
	if cfg.SecondFactor == nil || !otp.Validate(*cfg.SecondFactor, code, e.clock.Now()) {
		return Result{Step: sess.step}, common.ErrInvalidCredential
	}
	return e.next(ctx, sess, cfg, StepAwaitingSecondFactor)
}

// SubmitRecoveryWords checks the two challenged words, given as one
// space-separated answer.
func (e *Engine) SubmitRecoveryWords(ctx context.Context, sess *Session, answer string) (Result, error) {
	if sess.step != StepAwaitingRecoveryWords {
		return Result{Step: sess.step}, common.ErrWrongStep
	}
	cfg, err := LoadSecurity(ctx, e.store)
	if err != nil {
		return Result{Step: sess.step}, err
	}
	if !recovery.Check(cfg.RecoveryPhrase, sess.positions, answer) {
		return Result{Step: sess.step, Positions: sess.positions}, common.ErrInvalidCredential
	}
	return e.next(ctx, sess, cfg, StepAwaitingRecoveryWords)
}

// SubmitBiometric confirms presence, unwraps the escrowed master
// password and feeds it to the password step.
func (e *Engine) SubmitBiometric(ctx context.Context, sess *Session) (Result, error) {
	if err := e.CheckBiometric(ctx, sess); err != nil {
		return Result{Step: sess.step}, err
	}
	if err := e.ConfirmPresence(ctx); err != nil {
		return Result{Step: sess.step}, err
	}
	return e.SubmitEscrow(ctx, sess)
}

// CheckBiometric reports whether the fast path can run for sess: a prompt
// and a protector are wired, biometric unlock is enabled and an escrow is
// stored.
func (e *Engine) CheckBiometric(ctx context.Context, sess *Session) error {
	_, err := e.escrow(ctx, sess)
	return err
}

// ConfirmPresence runs the biometric prompt. It may block on the user and
// touches no engine state.
func (e *Engine) ConfirmPresence(ctx context.Context) error {
	if e.prompt == nil {
		return common.ErrBiometricUnavailable
	}
	ok, err := e.prompt.Prompt(ctx, "Unlock "+common.AppName)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrBiometricUnavailable, err)
	}
	if !ok {
		return common.ErrInvalidCredential
	}
	return nil
}

// SubmitEscrow unwraps the escrowed master password and submits it. The
// caller must have confirmed presence first.
func (e *Engine) SubmitEscrow(ctx context.Context, sess *Session) (Result, error) {
	token, err := e.escrow(ctx, sess)
	if err != nil {
		return Result{Step: sess.step}, err
	}

	password, err := e.protector.Unwrap(token)
	if err != nil {
		e.log.Warn(ctx, "biometric escrow could not be unwrapped", "error", err)
		return Result{Step: sess.step}, common.ErrBiometricUnavailable
	}
	defer common.WipeByteArray(password)

	return e.SubmitPassword(ctx, sess, password)
}

func (e *Engine) escrow(ctx context.Context, sess *Session) (string, error) {
	if e.protector == nil || e.prompt == nil {
		return "", common.ErrBiometricUnavailable
	}
	if sess.step != StepAwaitingPassword {
		return "", common.ErrWrongStep
	}

	cfg, err := LoadSecurity(ctx, e.store)
	if err != nil {
		return "", err
	}
	if !cfg.BiometricEnabled {
		return "", common.ErrBiometricUnavailable
	}
	token, found, err := e.store.LoadProtected(ctx, integrity.RefBiometric)
	if err != nil {
		return "", err
	}
	if !found {
		return "", common.ErrBiometricUnavailable
	}
	return token, nil
}

// next moves past the step just completed to the first step still
// required by cfg, unlocking when none is left.
func (e *Engine) next(ctx context.Context, sess *Session, cfg *models.SecurityConfig, done Step) (Result, error) {
	if done < StepAwaitingSecondFactor && cfg.HasSecondFactor() {
		sess.step = StepAwaitingSecondFactor
		return Result{Step: sess.step}, nil
	}
	if done < StepAwaitingRecoveryWords && cfg.HasRecoveryPhrase() {
		positions, err := recovery.Challenge(len(cfg.RecoveryPhrase))
		if err != nil {
			sess.Discard()
			return Result{Step: sess.step}, err
		}
		sess.positions = positions
		sess.step = StepAwaitingRecoveryWords
		return Result{Step: sess.step, Positions: positions}, nil
	}
	return e.finish(ctx, sess, cfg)
}

// finish decrypts the primary collection, or the decoy one in duress
// mode, and moves the password buffer into the returned Vault.
func (e *Engine) finish(ctx context.Context, sess *Session, cfg *models.SecurityConfig) (Result, error) {
	var (
		blob  string
		found bool
		err   error
	)
	if sess.duress {
		blob, found, err = e.store.LoadDecoy(ctx)
	} else {
		blob, found, err = e.store.LoadProtected(ctx, integrity.RefVault)
	}
	if err != nil {
		sess.Discard()
		return Result{Step: sess.step}, err
	}

	coll := models.NewCollection()
	if found {
		pt, err := e.cipher.Decrypt(blob, sess.password.Bytes())
		if err != nil {
			sess.Discard()
			return Result{Step: sess.step}, err
		}
		coll, err = models.ParseCollection(pt)
		common.WipeByteArray(pt)
		if err != nil {
			sess.Discard()
			return Result{Step: sess.step}, fmt.Errorf("%w: %v", common.ErrDecryptionFailed, err)
		}
	}

	v := &Vault{
		Collection: coll,
		Password:   sess.release(),
		Duress:     sess.duress,
		Security:   *cfg,
	}
	sess.step = StepUnlocked
	e.log.Info(ctx, "vault unlocked")
	return Result{Step: StepUnlocked, Vault: v}, nil
}
