// Package biometric abstracts the user-presence check gating the
// biometric unlock path. No hardware driver ships here; the terminal
// confirmation is the local stand-in.
package biometric

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

var ErrCancelled = errors.New("biometric prompt cancelled")

// Prompt asks the platform to confirm user presence.
type Prompt interface {
	Prompt(ctx context.Context, reason string) (bool, error)
}

// PromptFunc adapts a function to Prompt.
type PromptFunc func(ctx context.Context, reason string) (bool, error)

func (f PromptFunc) Prompt(ctx context.Context, reason string) (bool, error) {
	return f(ctx, reason)
}

// Terminal confirms presence with a y/N question.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) Prompt(ctx context.Context, reason string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Fprintf(t.out, "%s. Confirm presence [y/N]: ", reason)

	line, err := t.in.ReadString('\n')
	if err != nil && (!errors.Is(err, io.EOF) || line == "") {
		return false, ErrCancelled
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}
