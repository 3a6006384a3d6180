package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/common"
)

var errTitleRequired = errors.New("title is required")

// inputEnvelope gathers the common envelope data (title, metadata) and
// obtains a typed payload via rest.
func inputEnvelope[T models.TypedEntry](
	ctx context.Context,
	a *App,
	rest func() (T, error),
) (models.Envelope, error) {
	var zero models.Envelope

	title, err := a.text("Enter title")
	if err != nil {
		return zero, fmt.Errorf("get title: %w", err)
	}
	if title == "" {
		return zero, errTitleRequired
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	payload, err := rest()
	if err != nil {
		return zero, err
	}

	md, err := GetMetadata(a.reader, a.out)
	if err != nil {
		return zero, err
	}
	metadata, err := models.MetadataFromString(md)
	if err != nil {
		return zero, err
	}

	return models.Wrap(title, metadata, payload)
}

// addEntry stores an envelope built by inputEnvelope.
func addEntry[T models.TypedEntry](ctx context.Context, a *App, rest func() (T, error)) error {
	if !a.svc.IsUnlocked() {
		return a.fail(common.ErrVaultLocked)
	}
	env, err := inputEnvelope(ctx, a, rest)
	if err != nil {
		return a.fail(err)
	}
	entry, err := a.svc.AddEntry(ctx, env)
	if err != nil {
		return a.fail(err)
	}
	a.printf("Added %s\n", entry.ID)
	return nil
}

// AddNote collects a note body and stores it as a new entry.
func (a *App) AddNote(ctx context.Context) error {
	return addEntry(ctx, a, a.noteDetails)
}

// AddLogin collects login credentials and stores them as a new entry.
func (a *App) AddLogin(ctx context.Context) error {
	return addEntry(ctx, a, a.loginDetails)
}

// AddCreditCard collects card fields and stores them as a new entry.
func (a *App) AddCreditCard(ctx context.Context) error {
	return addEntry(ctx, a, a.creditCardDetails)
}

func (a *App) noteDetails() (models.Note, error) {
	text, err := GetMultiline(a.reader, "Enter note text", a.out)
	if err != nil {
		return models.Note{}, err
	}
	return models.Note{Text: text}, nil
}

func (a *App) loginDetails() (models.Login, error) {
	var x models.Login
	var err error
	if x.Username, err = a.text("Enter username"); err != nil {
		return x, err
	}
	pw, err := a.password("Enter password")
	if err != nil {
		return x, err
	}
	x.Password = string(pw)
	common.WipeByteArray(pw)
	if x.URL, err = a.text("Enter URL"); err != nil {
		return x, err
	}
	return x, nil
}

func (a *App) creditCardDetails() (models.CreditCard, error) {
	var x models.CreditCard
	var err error
	if x.Number, err = a.text("Enter card number"); err != nil {
		return x, err
	}
	if x.Expiration, err = a.text("Enter expiration (MM/YY)"); err != nil {
		return x, err
	}
	if x.Holder, err = a.text("Enter card holder"); err != nil {
		return x, err
	}
	cvv, err := a.password("Enter CVV")
	if err != nil {
		return x, err
	}
	x.CVV = string(cvv)
	common.WipeByteArray(cvv)
	return x, nil
}

// List prints one line per entry.
func (a *App) List(ctx context.Context) error {
	items, err := a.svc.ListEntries(ctx)
	if err != nil {
		return a.fail(err)
	}
	if len(items) == 0 {
		a.println("No entries.")
		return nil
	}
	for _, item := range items {
		a.printf("%s  %-11s  %s\n", item.ID, item.Type, item.Title)
	}
	return nil
}

// entryID takes the id from args or asks for it.
func (a *App) entryID(args []string, prompt string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	return a.text(prompt)
}

// Show prints a single entry with its fields and metadata.
func (a *App) Show(ctx context.Context, args []string) error {
	id, err := a.entryID(args, "Enter record id to show")
	if err != nil {
		return a.fail(err)
	}

	entry, err := a.svc.GetEntry(ctx, id)
	if err != nil {
		return a.fail(err)
	}

	x, err := entry.Unwrap()
	if err != nil {
		return a.fail(err)
	}

	a.println(entry.Title)
	switch item := x.(type) {
	case models.Note:
		a.printf("Note: %s\n", item.Text)

	case models.CreditCard:
		a.printf("Number: %s\n", item.Number)
		a.printf("Expiration: %s\n", item.Expiration)
		a.printf("CVV: %s\n", item.CVV)
		a.printf("Holder: %s\n", item.Holder)

	case models.Login:
		a.printf("Username: %s\n", item.Username)
		a.printf("Password: %s\n", item.Password)
		a.printf("URL: %s\n", item.URL)

	default:
		a.printf("Details: %v\n", item)
	}

	for _, md := range entry.Metadata {
		a.printf("%s: %s\n", strings.TrimSpace(md.Name), strings.TrimSpace(md.Value))
	}
	return nil
}

// Delete removes an entry by id.
func (a *App) Delete(ctx context.Context, args []string) error {
	id, err := a.entryID(args, "Enter record id to delete")
	if err != nil {
		return a.fail(err)
	}
	if err := a.svc.DeleteEntry(ctx, id); err != nil {
		return a.fail(err)
	}
	a.printf("Deleted %s\n", id)
	return nil
}
