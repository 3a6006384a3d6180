package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/client/services"
	"github.com/dmitrijs2005/gophvault/internal/client/unlock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

// App binds the shell commands to a VaultService.
type App struct {
	svc    services.VaultService
	reader *bufio.Reader
	out    io.Writer
	log    logging.Logger

	// pending is the last unlock step result while an unlock is in progress.
	pending services.UnlockResult
}

func NewApp(svc services.VaultService, in io.Reader, out io.Writer, log logging.Logger) *App {
	return &App{
		svc:    svc,
		reader: bufio.NewReader(in),
		out:    out,
		log:    log,
	}
}

// Run prints a greeting and serves commands until exit or EOF.
func (a *App) Run(ctx context.Context) {
	a.println("Welcome to " + common.AppName + " (type 'help' for commands)")

	configured, err := a.svc.IsConfigured(ctx)
	if err != nil {
		_ = a.fail(err)
	} else if !configured {
		a.println("No vault found. Run 'init' to create one.")
	}

	runREPL(ctx, a, a.status, a.reader, a.out)
}

func (a *App) isUnlocked() bool {
	return a.svc.IsUnlocked()
}

func (a *App) touch() {
	a.svc.Touch()
}

func (a *App) status() string {
	if a.svc.IsUnlocked() {
		return "unlocked"
	}
	switch a.pending.Step {
	case unlock.StepAwaitingSecondFactor:
		return "locked, code required"
	case unlock.StepAwaitingRecoveryWords:
		return "locked, recovery words required"
	default:
		return "locked"
	}
}

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// fail reports err to the user and returns it unchanged.
func (a *App) fail(err error) error {
	a.log.Debug(context.Background(), "command failed", "error", err)
	a.printf("error: %v\n", err)
	return err
}

func (a *App) text(prompt string) (string, error) {
	return GetSimpleText(a.reader, prompt, a.out)
}

func (a *App) password(prompt string) ([]byte, error) {
	return GetPassword(a.reader, prompt, a.out)
}
