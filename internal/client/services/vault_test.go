package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/biometric"
	"github.com/dmitrijs2005/gophvault/internal/client/blobcipher"
	"github.com/dmitrijs2005/gophvault/internal/client/hasher"
	"github.com/dmitrijs2005/gophvault/internal/client/hostkey"
	"github.com/dmitrijs2005/gophvault/internal/client/integrity"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/otp"
	"github.com/dmitrijs2005/gophvault/internal/client/ratelimit"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophvault/internal/client/unlock"
	"github.com/dmitrijs2005/gophvault/internal/clock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	master = "CorrectHorse42!"
	duress = "Duress-Pass-9"
)

type env struct {
	kv        kv.Store
	store     *integrity.Store
	clock     *clock.FakeClock
	protector hostkey.Protector
	prompt    biometric.Prompt
	opts      Options
	autoLocks int
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store, err := kv.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	clk := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	e := &env{
		kv:    store,
		store: integrity.New(store, nil, clk, logging.Nop()),
		clock: clk,
		opts: Options{
			SaveDebounce:      DefaultSaveDebounce,
			AutoLockTimeout:   time.Hour,
			RecoveryWordCount: 18,
		},
	}
	e.opts.OnAutoLock = func() { e.autoLocks++ }
	return e
}

func (e *env) withBiometric(t *testing.T) *env {
	t.Helper()
	p, err := hostkey.LoadOrCreate(filepath.Join(t.TempDir(), "host.key"))
	require.NoError(t, err)
	e.protector = p
	e.prompt = biometric.PromptFunc(func(context.Context, string) (bool, error) { return true, nil })
	return e
}

// failingKV fails Put for one ref while err is set.
type failingKV struct {
	kv.Store

	mu  sync.Mutex
	ref integrity.Ref
	err error
}

func (f *failingKV) failPut(ref integrity.Ref, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ref, f.err = ref, err
}

func (f *failingKV) Put(ctx context.Context, namespace, key string, value []byte) error {
	f.mu.Lock()
	err := f.err
	match := namespace == f.ref.Namespace && key == f.ref.Key
	f.mu.Unlock()
	if err != nil && match {
		return err
	}
	return f.Store.Put(ctx, namespace, key, value)
}

// withFailingKV routes storage through a failingKV. Call before service.
func (e *env) withFailingKV() *failingKV {
	f := &failingKV{Store: e.kv}
	e.kv = f
	e.store = integrity.New(f, nil, e.clock, logging.Nop())
	return f
}

// service builds a fresh service over the same storage, as a restart would.
func (e *env) service() *vaultService {
	log := logging.Nop()
	svc := NewVaultService(Deps{
		KV:          e.kv,
		Hasher:      hasher.New(e.kv, log, hasher.WithParams(cryptox.Argon2Params{Time: 1, MemoryKiB: 64, Threads: 1, KeyLen: 32})),
		Cipher:      blobcipher.New(1000),
		Integrity:   e.store,
		Limiter:     ratelimit.New(e.kv, e.clock, ratelimit.Policy{MaxAttempts: 3, Lockout: time.Minute}),
		Fingerprint: "fp",
		Protector:   e.protector,
		Prompt:      e.prompt,
		Clock:       e.clock,
		Log:         log,
	}, e.opts)
	return svc.(*vaultService)
}

func (e *env) primaryBlob(t *testing.T) string {
	t.Helper()
	blob, found, err := e.store.LoadProtected(context.Background(), integrity.RefVault)
	require.NoError(t, err)
	require.True(t, found)
	return blob
}

func (e *env) decoyBlob(t *testing.T) string {
	t.Helper()
	blob, _, err := e.store.LoadDecoy(context.Background())
	require.NoError(t, err)
	return blob
}

func setupUnlocked(t *testing.T, e *env) *vaultService {
	t.Helper()
	ctx := context.Background()
	svc := e.service()
	require.NoError(t, svc.Setup(ctx, []byte(master)))
	res, err := svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	require.True(t, res.Unlocked)
	return svc
}

func addNote(t *testing.T, svc VaultService, title string) models.Entry {
	t.Helper()
	env, err := models.Wrap(title, nil, models.Note{Text: title + " text"})
	require.NoError(t, err)
	e, err := svc.AddEntry(context.Background(), env)
	require.NoError(t, err)
	return e
}

func titles(t *testing.T, svc VaultService) []string {
	t.Helper()
	list, err := svc.ListEntries(context.Background())
	require.NoError(t, err)
	out := []string{}
	for _, o := range list {
		out = append(out, o.Title)
	}
	return out
}

func TestSetup(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()

	ok, err := svc.IsConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, svc.Setup(ctx, nil), ErrEmptyPassword)
	require.NoError(t, svc.Setup(ctx, []byte(master)))
	assert.ErrorIs(t, svc.Setup(ctx, []byte("other")), common.ErrAlreadyConfigured)

	ok, err = svc.IsConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, svc.IsUnlocked())

	cfg, err := unlock.LoadSecurity(ctx, e.store)
	require.NoError(t, err)
	assert.Equal(t, hasher.SaltRef, cfg.SaltRef)
	assert.Equal(t, time.Hour.Milliseconds(), cfg.AutoLockTimeoutMs)
	assert.NotEmpty(t, cfg.PasswordHash)
}

func TestUnlock_BeforeSetup(t *testing.T) {
	_, err := newEnv(t).service().Unlock(context.Background(), []byte(master))
	assert.ErrorIs(t, err, common.ErrVaultNotConfigured)
}

func TestLockedOperationsRefused(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()
	require.NoError(t, svc.Setup(ctx, []byte(master)))

	_, err := svc.ListEntries(ctx)
	assert.ErrorIs(t, err, common.ErrVaultLocked)
	_, err = svc.AddEntry(ctx, models.Envelope{})
	assert.ErrorIs(t, err, common.ErrVaultLocked)
	assert.ErrorIs(t, svc.Save(ctx, models.NewCollection()), common.ErrVaultLocked)
	assert.ErrorIs(t, svc.ChangeMasterPassword(ctx, []byte(master), []byte("x")), common.ErrVaultLocked)
	_, err = svc.EnableRecoveryPhrase(ctx)
	assert.ErrorIs(t, err, common.ErrVaultLocked)
	assert.NoError(t, svc.Lock(ctx))
}

func TestEntries_DebouncedSave(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	initial := e.primaryBlob(t)

	addNote(t, svc, "first")
	assert.Equal(t, initial, e.primaryBlob(t), "not written before the debounce window")

	e.clock.Advance(300 * time.Millisecond)
	addNote(t, svc, "second")
	e.clock.Advance(300 * time.Millisecond)
	assert.Equal(t, initial, e.primaryBlob(t), "second edit restarted the window")

	e.clock.Advance(200 * time.Millisecond)
	assert.NotEqual(t, initial, e.primaryBlob(t))

	other := e.service()
	_, err := other.Unlock(context.Background(), []byte(master))
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, titles(t, other))
}

func TestEntries_CRUD(t *testing.T) {
	e := newEnv(t)
	e.opts.SaveDebounce = -1
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	created := addNote(t, svc, "note")
	got, err := svc.GetEntry(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)

	login, err := models.Wrap("login", nil, models.Login{Username: "u", Password: "p"})
	require.NoError(t, err)
	upd, err := svc.UpdateEntry(ctx, created.ID, login)
	require.NoError(t, err)
	assert.Equal(t, models.EntryTypeLogin, upd.Type)

	_, err = svc.UpdateEntry(ctx, "missing", login)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	_, err = svc.UpdateEntry(ctx, created.ID, models.Envelope{Type: models.EntryTypeNote, Details: []byte(`{}`)})
	assert.ErrorIs(t, err, models.ErrInvalidEntry)
	_, err = svc.AddEntry(ctx, models.Envelope{})
	assert.ErrorIs(t, err, models.ErrInvalidEntry)
	assert.ErrorIs(t, svc.DeleteEntry(ctx, "missing"), common.ErrorNotFound)
	_, err = svc.GetEntry(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, svc.DeleteEntry(ctx, created.ID))
	assert.Empty(t, titles(t, svc))
}

func TestSave_ReplacesCollection(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	coll := models.NewCollection()
	env, err := models.Wrap("imported", nil, models.Note{Text: "x"})
	require.NoError(t, err)
	coll.Add(env, e.clock.Now())

	require.NoError(t, svc.Save(ctx, coll))
	coll.Add(env, e.clock.Now())
	assert.Equal(t, []string{"imported"}, titles(t, svc), "caller's collection is copied")

	require.NoError(t, svc.Flush(ctx))
	require.NoError(t, svc.Lock(ctx))
	_, err = svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.Equal(t, []string{"imported"}, titles(t, svc))
}

func TestLock_FlushesPendingSave(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	addNote(t, svc, "unsaved")
	require.NoError(t, svc.Lock(ctx))
	assert.False(t, svc.IsUnlocked())
	assert.Equal(t, 0, e.clock.Pending(), "lock stops every timer")

	_, err := svc.ListEntries(ctx)
	assert.ErrorIs(t, err, common.ErrVaultLocked)

	_, err = svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.Equal(t, []string{"unsaved"}, titles(t, svc))
}

func TestAutoLock_ResetByActivity(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	require.NoError(t, svc.SetAutoLockTimeout(ctx, time.Minute))

	e.clock.Advance(50 * time.Second)
	svc.Touch()
	e.clock.Advance(50 * time.Second)
	assert.True(t, svc.IsUnlocked())

	addNote(t, svc, "late edit")
	e.clock.Advance(time.Minute)
	assert.False(t, svc.IsUnlocked())
	assert.Equal(t, 1, e.autoLocks)

	_, err := svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.Equal(t, []string{"late edit"}, titles(t, svc), "auto-lock flushed the pending save")
}

func TestAutoLock_Disabled(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	require.NoError(t, svc.SetAutoLockTimeout(context.Background(), 0))

	e.clock.Advance(24 * time.Hour)
	assert.True(t, svc.IsUnlocked())
}

func TestChangeMasterPassword(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()
	addNote(t, svc, "keep me")
	require.NoError(t, svc.SetDuressPassword(ctx, []byte(duress), nil))

	assert.ErrorIs(t, svc.ChangeMasterPassword(ctx, []byte("wrong"), []byte("new-pass")), common.ErrInvalidCredential)
	assert.ErrorIs(t, svc.ChangeMasterPassword(ctx, []byte(master), nil), ErrEmptyPassword)
	assert.ErrorIs(t, svc.ChangeMasterPassword(ctx, []byte(master), []byte(duress)), ErrSamePassword)
	require.NoError(t, svc.ChangeMasterPassword(ctx, []byte(master), []byte("new-pass")))
	require.NoError(t, svc.Lock(ctx))

	_, err := svc.Unlock(ctx, []byte(master))
	assert.ErrorIs(t, err, common.ErrInvalidCredential)

	res, err := svc.Unlock(ctx, []byte("new-pass"))
	require.NoError(t, err)
	assert.False(t, res.Duress)
	assert.Equal(t, []string{"keep me"}, titles(t, svc))
	require.NoError(t, svc.Lock(ctx))

	res, err = svc.Unlock(ctx, []byte(duress))
	require.NoError(t, err)
	assert.True(t, res.Duress, "duress hash survives a master change")
}

func TestChangeMasterPassword_KeepsOldPasswordWhenHashNotSaved(t *testing.T) {
	e := newEnv(t).withBiometric(t)
	store := e.withFailingKV()
	svc := setupUnlocked(t, e)
	ctx := context.Background()
	addNote(t, svc, "bank pin")
	require.NoError(t, svc.EnableBiometric(ctx))

	store.failPut(integrity.RefSecurityConfig, errors.New("disk full"))
	err := svc.ChangeMasterPassword(ctx, []byte(master), []byte("NewPass-77"))
	require.ErrorContains(t, err, "disk full")
	store.failPut(integrity.Ref{}, nil)
	require.NoError(t, svc.Lock(ctx))

	restarted := e.service()
	_, err = restarted.Unlock(ctx, []byte("NewPass-77"))
	assert.ErrorIs(t, err, common.ErrInvalidCredential)

	res, err := restarted.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.True(t, res.Unlocked)
	assert.Equal(t, []string{"bank pin"}, titles(t, restarted))
	require.NoError(t, restarted.Lock(ctx))

	res, err = restarted.UnlockBiometric(ctx)
	require.NoError(t, err)
	assert.True(t, res.Unlocked, "escrow is rewrapped with the old password")
}

func TestDuress_Isolation(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()
	addNote(t, svc, "real")

	assert.ErrorIs(t, svc.SetDuressPassword(ctx, []byte(master), nil), ErrSamePassword)

	decoy := models.NewCollection()
	env, err := models.Wrap("shopping list", nil, models.Note{Text: "milk"})
	require.NoError(t, err)
	decoy.Add(env, e.clock.Now())
	require.NoError(t, svc.SetDuressPassword(ctx, []byte(duress), decoy))
	require.NoError(t, svc.Lock(ctx))

	primary := e.primaryBlob(t)

	res, err := svc.Unlock(ctx, []byte(duress))
	require.NoError(t, err)
	assert.True(t, res.Duress)
	assert.Equal(t, []string{"shopping list"}, titles(t, svc))

	decoyBefore := e.decoyBlob(t)
	addNote(t, svc, "written under duress")
	require.NoError(t, svc.ChangeMasterPassword(ctx, []byte(duress), []byte("attacker-choice")))
	require.NoError(t, svc.DisableSecondFactor(ctx))
	require.NoError(t, svc.Lock(ctx))

	assert.Equal(t, primary, e.primaryBlob(t), "primary blob untouched")
	assert.NotEqual(t, decoyBefore, e.decoyBlob(t))

	_, err = svc.Unlock(ctx, []byte(duress))
	require.NoError(t, err)
	assert.Equal(t, []string{"shopping list", "written under duress"}, titles(t, svc))
	require.NoError(t, svc.Lock(ctx))

	_, err = svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.Equal(t, []string{"real"}, titles(t, svc))

	require.NoError(t, svc.ClearDuressPassword(ctx))
	require.NoError(t, svc.Lock(ctx))
	_, err = svc.Unlock(ctx, []byte(duress))
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
}

func TestSecondFactor_EnrollAndUnlock(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	assert.ErrorIs(t, svc.ConfirmSecondFactor(ctx, "123456"), ErrNoPendingEnrollment)
	_, err := svc.WatchCode(ctx)
	assert.ErrorIs(t, err, ErrSecondFactorOff)

	enrollment, err := svc.BeginSecondFactor(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, enrollment.URL, "otpauth://")

	good, err := otp.Code(enrollment.Config, e.clock.Now())
	require.NoError(t, err)
	bad := "000000"
	if bad == good {
		bad = "111111"
	}
	assert.ErrorIs(t, svc.ConfirmSecondFactor(ctx, bad), common.ErrInvalidCredential)
	require.NoError(t, svc.ConfirmSecondFactor(ctx, good))
	require.NoError(t, svc.Lock(ctx))

	res, err := svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.Equal(t, unlock.StepAwaitingSecondFactor, res.Step)
	assert.False(t, res.Unlocked)

	res, err = svc.SubmitSecondFactor(ctx, bad)
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
	assert.Equal(t, unlock.StepAwaitingSecondFactor, res.Step)

	res, err = svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.Equal(t, unlock.StepAwaitingSecondFactor, res.Step, "unlock restarts a pending attempt")

	res, err = svc.SubmitSecondFactor(ctx, good)
	require.NoError(t, err)
	assert.True(t, res.Unlocked)

	watchCtx, cancel := context.WithCancel(ctx)
	ticks, err := svc.WatchCode(watchCtx)
	require.NoError(t, err)
	tick := <-ticks
	assert.Equal(t, good, tick.Code)
	cancel()
	for range ticks {
	}

	require.NoError(t, svc.DisableSecondFactor(ctx))
	require.NoError(t, svc.Lock(ctx))
	res, err = svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.True(t, res.Unlocked)
}

func TestRecoveryPhrase_EnrollAndUnlock(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	phrase, err := svc.EnableRecoveryPhrase(ctx)
	require.NoError(t, err)
	assert.Len(t, phrase, 18)
	require.NoError(t, svc.Lock(ctx))

	res, err := svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	require.Equal(t, unlock.StepAwaitingRecoveryWords, res.Step)
	pos := res.Positions

	res, err = svc.SubmitRecoveryWords(ctx, phrase[pos[0]])
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
	assert.Equal(t, pos, res.Positions)

	res, err = svc.SubmitRecoveryWords(ctx, phrase[pos[0]]+" "+phrase[pos[1]])
	require.NoError(t, err)
	assert.True(t, res.Unlocked)

	require.NoError(t, svc.DisableRecoveryPhrase(ctx))
	require.NoError(t, svc.Lock(ctx))
	res, err = svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.True(t, res.Unlocked)
}

func TestBiometric_Unavailable(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	assert.ErrorIs(t, svc.EnableBiometric(ctx), common.ErrBiometricUnavailable)
	require.NoError(t, svc.Lock(ctx))
	_, err := svc.UnlockBiometric(ctx)
	assert.ErrorIs(t, err, common.ErrBiometricUnavailable)
}

func TestBiometric_EnrollUnlockAndRewrap(t *testing.T) {
	e := newEnv(t).withBiometric(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	require.NoError(t, svc.EnableBiometric(ctx))
	require.NoError(t, svc.Lock(ctx))

	res, err := svc.UnlockBiometric(ctx)
	require.NoError(t, err)
	assert.True(t, res.Unlocked)

	require.NoError(t, svc.ChangeMasterPassword(ctx, []byte(master), []byte("new-pass")))
	require.NoError(t, svc.Lock(ctx))
	res, err = svc.UnlockBiometric(ctx)
	require.NoError(t, err)
	assert.True(t, res.Unlocked, "escrow follows the new password")

	require.NoError(t, svc.DisableBiometric(ctx))
	require.NoError(t, svc.Lock(ctx))
	_, err = svc.UnlockBiometric(ctx)
	assert.ErrorIs(t, err, common.ErrBiometricUnavailable)
}

func TestBiometric_PromptRunsWithoutServiceLock(t *testing.T) {
	e := newEnv(t).withBiometric(t)
	ctx := context.Background()

	var svc *vaultService
	e.prompt = biometric.PromptFunc(func(context.Context, string) (bool, error) {
		done := make(chan error, 1)
		go func() {
			_, err := svc.Unlock(ctx, []byte(master))
			done <- err
		}()
		select {
		case err := <-done:
			return true, err
		case <-time.After(5 * time.Second):
			return false, errors.New("service lock held during prompt")
		}
	})
	svc = setupUnlocked(t, e)
	require.NoError(t, svc.EnableBiometric(ctx))
	require.NoError(t, svc.Lock(ctx))

	res, err := svc.UnlockBiometric(ctx)
	assert.ErrorIs(t, err, common.ErrWrongStep, "unlocked by password while the prompt was open")
	assert.True(t, res.Unlocked)
	assert.True(t, svc.IsUnlocked())
}

func TestBiometric_NoPromptDisablesFastPath(t *testing.T) {
	e := newEnv(t).withBiometric(t)
	e.prompt = nil
	svc := setupUnlocked(t, e)
	ctx := context.Background()

	assert.ErrorIs(t, svc.EnableBiometric(ctx), common.ErrBiometricUnavailable)
	require.NoError(t, svc.Lock(ctx))
	_, err := svc.UnlockBiometric(ctx)
	assert.ErrorIs(t, err, common.ErrBiometricUnavailable)
}

func TestUnlock_RateLimited(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()
	require.NoError(t, svc.Setup(ctx, []byte(master)))

	for i := 0; i < 3; i++ {
		_, err := svc.Unlock(ctx, []byte("nope"))
		assert.ErrorIs(t, err, common.ErrInvalidCredential)
	}
	_, err := svc.Unlock(ctx, []byte(master))
	assert.ErrorIs(t, err, common.ErrRateLimited)

	e.clock.Advance(time.Minute)
	res, err := svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.True(t, res.Unlocked)
}

func TestUnlock_SelfHealThroughService(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()
	require.NoError(t, svc.Setup(ctx, []byte(master)))

	cfg, err := unlock.LoadSecurity(ctx, e.store)
	require.NoError(t, err)
	cfg.PasswordHash = "c3RhbGU="
	require.NoError(t, e.store.SaveJSON(ctx, integrity.RefSecurityConfig, cfg))

	res, err := svc.Unlock(ctx, []byte(master))
	require.NoError(t, err)
	assert.True(t, res.Unlocked)

	healed, err := unlock.LoadSecurity(ctx, e.store)
	require.NoError(t, err)
	assert.NotEqual(t, "c3RhbGU=", healed.PasswordHash)
}

func TestUnlock_AlreadyUnlocked(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)

	ctx := context.Background()

	for _, pw := range []string{"anything", master} {
		res, err := svc.Unlock(ctx, []byte(pw))
		assert.ErrorIs(t, err, common.ErrWrongStep, pw)
		assert.True(t, res.Unlocked)
	}
	_, err := svc.UnlockBiometric(ctx)
	assert.ErrorIs(t, err, common.ErrWrongStep)
	assert.True(t, svc.IsUnlocked())
}

func TestUnlock_ConcurrentAttemptsSerialized(t *testing.T) {
	e := newEnv(t)
	svc := e.service()
	ctx := context.Background()
	require.NoError(t, svc.Setup(ctx, []byte(master)))

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Unlock(ctx, []byte(master))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, common.ErrWrongStep)
	}
	assert.Equal(t, 1, succeeded)
	assert.True(t, svc.IsUnlocked())
}

func TestReset(t *testing.T) {
	e := newEnv(t)
	svc := setupUnlocked(t, e)
	ctx := context.Background()
	addNote(t, svc, "gone")

	require.NoError(t, svc.Reset(ctx))
	assert.False(t, svc.IsUnlocked())
	assert.Equal(t, 0, e.clock.Pending())

	ok, err := svc.IsConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	salt, err := e.kv.Get(ctx, common.NamespaceSalt, "canonical")
	require.NoError(t, err)
	assert.Nil(t, salt)

	require.NoError(t, svc.Setup(ctx, []byte("fresh")))
	_, err = svc.Unlock(ctx, []byte("fresh"))
	require.NoError(t, err)
	assert.Empty(t, titles(t, svc))
}
