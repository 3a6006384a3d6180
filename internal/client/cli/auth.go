package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/client/services"
	"github.com/dmitrijs2005/gophvault/internal/client/unlock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

var (
	errPasswordMismatch = errors.New("passwords do not match")
	errNoPendingStep    = errors.New("no unlock step is waiting for this input")
	errResetAborted     = errors.New("reset aborted")
)

// newPassword asks for a password twice.
func (a *App) newPassword(prompt string) ([]byte, error) {
	pw, err := a.password(prompt)
	if err != nil {
		return nil, err
	}
	confirm, err := a.password("Repeat " + prompt)
	if err != nil {
		common.WipeByteArray(pw)
		return nil, err
	}
	defer common.WipeByteArray(confirm)

	if !cryptox.Equal(pw, confirm) {
		common.WipeByteArray(pw)
		return nil, errPasswordMismatch
	}
	return pw, nil
}

// Init creates a new vault.
func (a *App) Init(ctx context.Context) error {
	configured, err := a.svc.IsConfigured(ctx)
	if err != nil {
		return a.fail(err)
	}
	if configured {
		return a.fail(common.ErrAlreadyConfigured)
	}

	pw, err := a.newPassword("master password")
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(pw)

	if err := a.svc.Setup(ctx, pw); err != nil {
		return a.fail(err)
	}
	a.println("Vault created. Run 'unlock' to open it.")
	return nil
}

// Unlock starts the password step and walks through any further steps.
func (a *App) Unlock(ctx context.Context) error {
	if a.svc.IsUnlocked() {
		a.println("Vault is already unlocked.")
		return nil
	}

	pw, err := a.password("Master password")
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(pw)

	res, err := a.svc.Unlock(ctx, pw)
	return a.advance(ctx, res, err)
}

// Biometric unlocks with the host-bound fast path.
func (a *App) Biometric(ctx context.Context) error {
	if a.svc.IsUnlocked() {
		a.println("Vault is already unlocked.")
		return nil
	}
	res, err := a.svc.UnlockBiometric(ctx)
	return a.advance(ctx, res, err)
}

// Code resubmits the second factor after a failed attempt.
func (a *App) Code(ctx context.Context) error {
	if a.pending.Step != unlock.StepAwaitingSecondFactor {
		return a.fail(errNoPendingStep)
	}
	return a.advance(ctx, a.pending, nil)
}

// Words resubmits the recovery words after a failed attempt.
func (a *App) Words(ctx context.Context) error {
	if a.pending.Step != unlock.StepAwaitingRecoveryWords {
		return a.fail(errNoPendingStep)
	}
	return a.advance(ctx, a.pending, nil)
}

// advance prompts for every remaining unlock step until the vault opens or
// a step fails. A failed step stays pending for 'code' or 'words'.
func (a *App) advance(ctx context.Context, res services.UnlockResult, err error) error {
	for {
		a.pending = res
		if err != nil {
			if res.Step == unlock.StepAwaitingPassword {
				a.pending = services.UnlockResult{}
			}
			return a.fail(err)
		}

		switch res.Step {
		case unlock.StepUnlocked:
			a.pending = services.UnlockResult{}
			a.println("Vault unlocked.")
			return nil

		case unlock.StepAwaitingSecondFactor:
			code, rerr := a.text("Enter authenticator code")
			if rerr != nil {
				return a.fail(rerr)
			}
			res, err = a.svc.SubmitSecondFactor(ctx, code)

		case unlock.StepAwaitingRecoveryWords:
			prompt := fmt.Sprintf("Enter recovery words #%d and #%d separated by a space",
				res.Positions[0]+1, res.Positions[1]+1)
			answer, rerr := a.text(prompt)
			if rerr != nil {
				return a.fail(rerr)
			}
			res, err = a.svc.SubmitRecoveryWords(ctx, answer)

		default:
			return a.fail(fmt.Errorf("%w: %s", common.ErrWrongStep, res.Step))
		}
	}
}

// Lock closes the vault.
func (a *App) Lock(ctx context.Context) error {
	a.pending = services.UnlockResult{}
	if err := a.svc.Lock(ctx); err != nil {
		return a.fail(err)
	}
	a.println("Vault locked.")
	return nil
}

// ChangePassword re-keys the vault under a new master password.
func (a *App) ChangePassword(ctx context.Context) error {
	if !a.svc.IsUnlocked() {
		return a.fail(common.ErrVaultLocked)
	}

	current, err := a.password("Current master password")
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(current)

	next, err := a.newPassword("new master password")
	if err != nil {
		return a.fail(err)
	}
	defer common.WipeByteArray(next)

	if err := a.svc.ChangeMasterPassword(ctx, current, next); err != nil {
		return a.fail(err)
	}
	a.println("Master password changed.")
	return nil
}

// Reset erases every vault record after an explicit confirmation.
func (a *App) Reset(ctx context.Context) error {
	answer, err := a.text("This erases the vault and all settings. Type RESET to confirm")
	if err != nil {
		return a.fail(err)
	}
	if answer != "RESET" {
		return a.fail(errResetAborted)
	}

	a.pending = services.UnlockResult{}
	if err := a.svc.Reset(ctx); err != nil {
		return a.fail(err)
	}
	a.println("Vault erased.")
	return nil
}
