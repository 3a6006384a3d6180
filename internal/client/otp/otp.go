// Package otp enrolls and validates the time-based second factor and
// streams the current code to a terminal watcher.
package otp

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/clock"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	DefaultPeriod = 30
	DefaultDigits = 6
	// Skew is the number of periods accepted on either side of now.
	Skew = 1
)

// Enrollment is a freshly generated, not yet confirmed second factor.
type Enrollment struct {
	Config models.TOTPConfig
	URL    string
}

// Generate creates a new TOTP secret for account.
func Generate(issuer, account string) (Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      DefaultPeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Enrollment{}, fmt.Errorf("generate totp secret: %w", err)
	}

	return Enrollment{
		Config: models.TOTPConfig{
			Secret:  key.Secret(),
			Issuer:  issuer,
			Account: account,
			Digits:  DefaultDigits,
			Period:  DefaultPeriod,
		},
		URL: key.URL(),
	}, nil
}

func opts(cfg models.TOTPConfig) totp.ValidateOpts {
	period := cfg.Period
	if period == 0 {
		period = DefaultPeriod
	}
	digits := otp.DigitsSix
	if cfg.Digits == 8 {
		digits = otp.DigitsEight
	}
	return totp.ValidateOpts{
		Period:    period,
		Skew:      Skew,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	}
}

// Code returns the code valid at t.
func Code(cfg models.TOTPConfig, t time.Time) (string, error) {
	code, err := totp.GenerateCodeCustom(cfg.Secret, t, opts(cfg))
	if err != nil {
		return "", fmt.Errorf("generate totp code: %w", err)
	}
	return code, nil
}

// Validate reports whether code is valid at t within one period of skew.
func Validate(cfg models.TOTPConfig, code string, t time.Time) bool {
	code = strings.TrimSpace(code)
	if code == "" {
		return false
	}
	ok, err := totp.ValidateCustom(code, cfg.Secret, t, opts(cfg))
	return err == nil && ok
}

// Tick is one emission of Watch.
type Tick struct {
	Code      string
	Remaining time.Duration
}

// Watch emits the current code immediately and again at every period
// boundary until ctx is cancelled. The returned channel is closed on exit.
func Watch(ctx context.Context, clk clock.Clock, cfg models.TOTPConfig) <-chan Tick {
	out := make(chan Tick, 1)
	period := time.Duration(opts(cfg).Period) * time.Second

	go func() {
		defer close(out)

		for {
			now := clk.Now()
			code, err := Code(cfg, now)
			if err != nil {
				return
			}
			remaining := period - time.Duration(now.UnixNano())%period

			select {
			case out <- Tick{Code: code, Remaining: remaining}:
			case <-ctx.Done():
				return
			}

			boundary := make(chan struct{})
			timer := clk.AfterFunc(remaining, func() { close(boundary) })
			select {
			case <-boundary:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}()

	return out
}
