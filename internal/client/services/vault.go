// Package services contains application services for the GophVault CLI.
// VaultService owns the vault lifecycle: setup, the multi-step unlock,
// entry editing with debounced saves, security enrollments, auto-lock and
// reset. All methods are safe for concurrent use; unlock attempts and
// saves are serialized by one mutex.
package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/biometric"
	"github.com/dmitrijs2005/gophvault/internal/client/blobcipher"
	"github.com/dmitrijs2005/gophvault/internal/client/hasher"
	"github.com/dmitrijs2005/gophvault/internal/client/hostkey"
	"github.com/dmitrijs2005/gophvault/internal/client/integrity"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/otp"
	"github.com/dmitrijs2005/gophvault/internal/client/ratelimit"
	"github.com/dmitrijs2005/gophvault/internal/client/recovery"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophvault/internal/client/unlock"
	"github.com/dmitrijs2005/gophvault/internal/clock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

var (
	ErrSamePassword        = errors.New("duress password must differ from the master password")
	ErrEmptyPassword       = errors.New("password must not be empty")
	ErrNoPendingEnrollment = errors.New("no second factor enrollment in progress")
	ErrSecondFactorOff     = errors.New("second factor is not enabled")
)

const (
	DefaultSaveDebounce    = 500 * time.Millisecond
	DefaultAutoLockTimeout = 5 * time.Minute
)

// UnlockResult reports the outcome of one unlock step. Positions are
// zero-based and only set when Step is StepAwaitingRecoveryWords.
type UnlockResult struct {
	Step      unlock.Step
	Positions [2]int
	Unlocked  bool
	Duress    bool
}

// VaultService is the facade used by the CLI.
type VaultService interface {
	IsConfigured(ctx context.Context) (bool, error)
	IsUnlocked() bool
	Setup(ctx context.Context, password []byte) error

	Unlock(ctx context.Context, password []byte) (UnlockResult, error)
	UnlockBiometric(ctx context.Context) (UnlockResult, error)
	SubmitSecondFactor(ctx context.Context, code string) (UnlockResult, error)
	SubmitRecoveryWords(ctx context.Context, answer string) (UnlockResult, error)
	Lock(ctx context.Context) error
	Touch()

	ChangeMasterPassword(ctx context.Context, oldPassword, newPassword []byte) error
	Save(ctx context.Context, coll *models.Collection) error
	Flush(ctx context.Context) error

	AddEntry(ctx context.Context, env models.Envelope) (models.Entry, error)
	UpdateEntry(ctx context.Context, id string, env models.Envelope) (models.Entry, error)
	DeleteEntry(ctx context.Context, id string) error
	GetEntry(ctx context.Context, id string) (models.Entry, error)
	ListEntries(ctx context.Context) ([]models.Overview, error)

	BeginSecondFactor(ctx context.Context, account string) (otp.Enrollment, error)
	ConfirmSecondFactor(ctx context.Context, code string) error
	DisableSecondFactor(ctx context.Context) error
	WatchCode(ctx context.Context) (<-chan otp.Tick, error)
	EnableRecoveryPhrase(ctx context.Context) ([]string, error)
	DisableRecoveryPhrase(ctx context.Context) error
	SetDuressPassword(ctx context.Context, password []byte, decoy *models.Collection) error
	ClearDuressPassword(ctx context.Context) error
	EnableBiometric(ctx context.Context) error
	DisableBiometric(ctx context.Context) error
	SetAutoLockTimeout(ctx context.Context, d time.Duration) error

	Reset(ctx context.Context) error
}

// Options tunes the service. Zero values select the defaults.
type Options struct {
	SaveDebounce      time.Duration
	AutoLockTimeout   time.Duration
	RecoveryWordCount int
	// OnAutoLock is called after the idle timer locked the vault.
	OnAutoLock func()
}

// Deps wires the service. Protector and Prompt are optional; biometric
// unlock needs both.
type Deps struct {
	KV          kv.Store
	Hasher      *hasher.Hasher
	Cipher      *blobcipher.Cipher
	Integrity   *integrity.Store
	Limiter     ratelimit.Limiter
	Fingerprint string
	Protector   hostkey.Protector
	Prompt      biometric.Prompt
	Clock       clock.Clock
	Log         logging.Logger
}

type vaultService struct {
	mu sync.Mutex

	kv        kv.Store
	hasher    *hasher.Hasher
	cipher    *blobcipher.Cipher
	store     *integrity.Store
	protector hostkey.Protector
	prompt    biometric.Prompt
	clock     clock.Clock
	log       logging.Logger
	opts      Options

	engine  *unlock.Engine
	session *unlock.Session
	vault   *unlock.Vault

	dirty     bool
	saveTimer *clock.Timer

	lockTimer *clock.Timer
	lockGen   uint64

	pendingTOTP *models.TOTPConfig
}

func NewVaultService(d Deps, opts Options) VaultService {
	if opts.SaveDebounce < 0 {
		opts.SaveDebounce = 0
	}
	if opts.AutoLockTimeout == 0 {
		opts.AutoLockTimeout = DefaultAutoLockTimeout
	}
	if opts.RecoveryWordCount == 0 {
		opts.RecoveryWordCount = recovery.DefaultWordCount
	}

	return &vaultService{
		kv:        d.KV,
		hasher:    d.Hasher,
		cipher:    d.Cipher,
		store:     d.Integrity,
		protector: d.Protector,
		prompt:    d.Prompt,
		clock:     d.Clock,
		log:       d.Log.With("component", "vault"),
		opts:      opts,
		engine: unlock.New(unlock.Deps{
			Hasher:      d.Hasher,
			Cipher:      d.Cipher,
			Store:       d.Integrity,
			Limiter:     d.Limiter,
			Fingerprint: d.Fingerprint,
			Protector:   d.Protector,
			Prompt:      d.Prompt,
			Clock:       d.Clock,
			Log:         d.Log,
		}),
		session: unlock.NewSession(),
	}
}

func (s *vaultService) IsConfigured(ctx context.Context) (bool, error) {
	_, err := unlock.LoadSecurity(ctx, s.store)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, common.ErrVaultNotConfigured):
		return false, nil
	default:
		return false, err
	}
}

func (s *vaultService) IsUnlocked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vault != nil
}
