package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/client/biometric"
	"github.com/dmitrijs2005/gophvault/internal/client/blobcipher"
	"github.com/dmitrijs2005/gophvault/internal/client/config"
	"github.com/dmitrijs2005/gophvault/internal/client/hasher"
	"github.com/dmitrijs2005/gophvault/internal/client/hostkey"
	"github.com/dmitrijs2005/gophvault/internal/client/integrity"
	"github.com/dmitrijs2005/gophvault/internal/client/ratelimit"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/kv"
	"github.com/dmitrijs2005/gophvault/internal/client/services"
	"github.com/dmitrijs2005/gophvault/internal/clock"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

// Bootstrap opens storage under cfg and wires the vault service into a new
// App. The returned close function locks the vault and releases storage.
func Bootstrap(ctx context.Context, cfg *config.Config, in io.Reader, out, logOut io.Writer) (*App, func() error, error) {
	log, err := logging.New(cfg.LogBackend, cfg.LogLevel, logOut)
	if err != nil {
		return nil, nil, err
	}

	store, err := kv.Open(ctx, cfg.StorageDriver, cfg.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("error opening storage: %w", err)
	}

	var protector hostkey.Protector
	if p, err := hostkey.LoadOrCreate(cfg.HostKeyPath()); err != nil {
		log.Warn(ctx, "host key unavailable, biometric unlock disabled", "error", err)
	} else {
		protector = p
	}

	clk := clock.Real()
	fingerprint, err := ratelimit.Fingerprint(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("error reading installation id: %w", err)
	}

	policy := ratelimit.DefaultPolicy()
	policy.MaxAttempts = cfg.MaxFailedAttempts
	policy.Lockout = cfg.LockoutDuration

	app := NewApp(nil, in, out, log)

	// The terminal prompt only confirms presence, so it is wired on
	// explicit opt-in only. Without it biometric unlock is unavailable.
	var prompt biometric.Prompt
	if cfg.BiometricPrompt && protector != nil {
		prompt = biometric.NewTerminal(app.reader, out)
	}

	svc := services.NewVaultService(services.Deps{
		KV:          store,
		Hasher:      hasher.New(store, log),
		Cipher:      blobcipher.New(),
		Integrity:   integrity.New(store, protector, clk, log),
		Limiter:     ratelimit.New(store, clk, policy),
		Fingerprint: fingerprint,
		Protector:   protector,
		Prompt:      prompt,
		Clock:       clk,
		Log:         log,
	}, services.Options{
		SaveDebounce:      cfg.SaveDebounce,
		AutoLockTimeout:   cfg.AutoLockTimeout,
		RecoveryWordCount: cfg.RecoveryWordCount,
		OnAutoLock: func() {
			fmt.Fprintln(out, "\nVault locked after inactivity.")
		},
	})
	app.svc = svc

	closeFn := func() error {
		return errors.Join(svc.Lock(context.Background()), store.Close())
	}
	return app, closeFn, nil
}
