package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/common"
)

// codeWait bounds how long '2fa show' waits for the first code.
const codeWait = 5 * time.Second

func usage(text string) error {
	return fmt.Errorf("usage: %s", text)
}

func subcommand(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.ToLower(args[0])
}

// SecondFactor handles "2fa on|off|show".
func (a *App) SecondFactor(ctx context.Context, args []string) error {
	switch subcommand(args) {
	case "on":
		account := ""
		if len(args) > 1 {
			account = args[1]
		}
		enr, err := a.svc.BeginSecondFactor(ctx, account)
		if err != nil {
			return a.fail(err)
		}
		a.println("Add this key to your authenticator app:")
		a.printf("  secret: %s\n  url:    %s\n", enr.Config.Secret, enr.URL)

		code, err := a.text("Enter the current code to confirm")
		if err != nil {
			return a.fail(err)
		}
		if err := a.svc.ConfirmSecondFactor(ctx, code); err != nil {
			return a.fail(err)
		}
		a.println("Second factor enabled.")
		return nil

	case "off":
		if err := a.svc.DisableSecondFactor(ctx); err != nil {
			return a.fail(err)
		}
		a.println("Second factor disabled.")
		return nil

	case "show":
		ctx, cancel := context.WithTimeout(ctx, codeWait)
		defer cancel()

		ticks, err := a.svc.WatchCode(ctx)
		if err != nil {
			return a.fail(err)
		}
		tick, ok := <-ticks
		if !ok {
			return a.fail(ctx.Err())
		}
		a.printf("Code: %s (valid for %s)\n", tick.Code, tick.Remaining.Round(time.Second))
		return nil

	default:
		return a.fail(usage("2fa on [account] | off | show"))
	}
}

// Recovery handles "recovery on|off".
func (a *App) Recovery(ctx context.Context, args []string) error {
	switch subcommand(args) {
	case "on":
		phrase, err := a.svc.EnableRecoveryPhrase(ctx)
		if err != nil {
			return a.fail(err)
		}
		a.println("Write down these words in order. They will not be shown again:")
		for i, w := range phrase {
			a.printf("%2d. %s\n", i+1, w)
		}
		return nil

	case "off":
		if err := a.svc.DisableRecoveryPhrase(ctx); err != nil {
			return a.fail(err)
		}
		a.println("Recovery phrase disabled.")
		return nil

	default:
		return a.fail(usage("recovery on | off"))
	}
}

// Duress handles "duress set|clear". The decoy vault starts empty.
func (a *App) Duress(ctx context.Context, args []string) error {
	switch subcommand(args) {
	case "set":
		pw, err := a.newPassword("duress password")
		if err != nil {
			return a.fail(err)
		}
		defer common.WipeByteArray(pw)

		if err := a.svc.SetDuressPassword(ctx, pw, models.NewCollection()); err != nil {
			return a.fail(err)
		}
		a.println("Duress password set.")
		return nil

	case "clear":
		if err := a.svc.ClearDuressPassword(ctx); err != nil {
			return a.fail(err)
		}
		a.println("Duress password removed.")
		return nil

	default:
		return a.fail(usage("duress set | clear"))
	}
}

// BiometricSetting handles "biometric on|off".
func (a *App) BiometricSetting(ctx context.Context, args []string) error {
	switch subcommand(args) {
	case "on":
		if err := a.svc.EnableBiometric(ctx); err != nil {
			return a.fail(err)
		}
		a.println("Biometric unlock enabled.")
		return nil

	case "off":
		if err := a.svc.DisableBiometric(ctx); err != nil {
			return a.fail(err)
		}
		a.println("Biometric unlock disabled.")
		return nil

	default:
		return a.fail(usage("biometric on | off"))
	}
}

var errBadDuration = errors.New("duration must look like 90s or 5m; 0 disables auto-lock")

// AutoLock handles "autolock <duration>".
func (a *App) AutoLock(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return a.fail(usage("autolock <duration>"))
	}
	d, err := time.ParseDuration(args[0])
	if err != nil || d < 0 {
		return a.fail(errBadDuration)
	}
	if err := a.svc.SetAutoLockTimeout(ctx, d); err != nil {
		return a.fail(err)
	}
	if d == 0 {
		a.println("Auto-lock disabled.")
	} else {
		a.printf("Auto-lock after %s of inactivity.\n", d)
	}
	return nil
}
