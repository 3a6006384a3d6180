package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface is the command surface the REPL dispatches to. App satisfies
// it; tests provide a lightweight stub.
type execIface interface {
	isUnlocked() bool
	touch()

	Init(ctx context.Context) error
	Unlock(ctx context.Context) error
	Biometric(ctx context.Context) error
	Code(ctx context.Context) error
	Words(ctx context.Context) error
	Lock(ctx context.Context) error
	Reset(ctx context.Context) error

	List(ctx context.Context) error
	Show(ctx context.Context, args []string) error
	AddLogin(ctx context.Context) error
	AddNote(ctx context.Context) error
	AddCreditCard(ctx context.Context) error
	Delete(ctx context.Context, args []string) error

	ChangePassword(ctx context.Context) error
	SecondFactor(ctx context.Context, args []string) error
	Recovery(ctx context.Context, args []string) error
	Duress(ctx context.Context, args []string) error
	BiometricSetting(ctx context.Context, args []string) error
	AutoLock(ctx context.Context, args []string) error
}

const (
	helpLocked   = "Available commands: init, unlock, bio, code, words, reset, help, exit"
	helpUnlocked = "Available commands: (l)ist, show, addlogin, addnote, addcard, delete, passwd, " +
		"2fa on|off|show, recovery on|off, duress set|clear, biometric on|off, autolock <duration>, lock, exit"
)

// runREPL reads one command per line from r and dispatches it to a. The
// loop exits on EOF or when the user types "exit" or "quit". Handlers
// report their own errors, so results are ignored here.
func runREPL(ctx context.Context, a execIface, statusFn func() string, r *bufio.Reader, w io.Writer) {
	for {
		if ctx.Err() != nil {
			return
		}
		fmt.Fprintf(w, "gv (%s)> ", statusFn())

		line, err := readLine(r)
		if err != nil {
			fmt.Fprintln(w)
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		if a.isUnlocked() {
			a.touch()
		}

		switch cmd {
		case "help":
			if a.isUnlocked() {
				fmt.Fprintln(w, helpUnlocked)
			} else {
				fmt.Fprintln(w, helpLocked)
			}

		case "init":
			_ = a.Init(ctx)
		case "unlock":
			_ = a.Unlock(ctx)
		case "bio":
			_ = a.Biometric(ctx)
		case "code":
			_ = a.Code(ctx)
		case "words":
			_ = a.Words(ctx)
		case "lock":
			_ = a.Lock(ctx)
		case "reset":
			_ = a.Reset(ctx)

		case "l", "list":
			_ = a.List(ctx)
		case "show":
			_ = a.Show(ctx, args)
		case "addlogin":
			_ = a.AddLogin(ctx)
		case "addnote":
			_ = a.AddNote(ctx)
		case "addcard":
			_ = a.AddCreditCard(ctx)
		case "delete", "rm":
			_ = a.Delete(ctx, args)

		case "passwd":
			_ = a.ChangePassword(ctx)
		case "2fa":
			_ = a.SecondFactor(ctx, args)
		case "recovery":
			_ = a.Recovery(ctx, args)
		case "duress":
			_ = a.Duress(ctx, args)
		case "biometric":
			_ = a.BiometricSetting(ctx, args)
		case "autolock":
			_ = a.AutoLock(ctx, args)

		case "exit", "quit":
			fmt.Fprintln(w, "Bye!")
			return

		default:
			fmt.Fprintln(w, "Unknown command:", cmd)
		}
	}
}
