// Package models defines vault entry types, the secret collection and the
// persisted security configuration.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// EntryType classifies an entry kind.
type EntryType string

const (
	EntryTypeNote       EntryType = "note"
	EntryTypeLogin      EntryType = "login"
	EntryTypeCreditCard EntryType = "credit_card"
)

var (
	ErrIncorrectMetadata = errors.New("metadata item must be name=value")
	ErrInvalidEntry      = errors.New("invalid entry")
)

// Metadata is a free-form label attached to an entry.
type Metadata struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// MetadataFromString parses "name=value" lines. The value is everything
// after the first '=', so it may itself contain '='. Surrounding spaces
// are trimmed and the name must not be empty.
func MetadataFromString(lines []string) ([]Metadata, error) {
	data := make([]Metadata, 0, len(lines))
	for _, line := range lines {
		name, value, ok := strings.Cut(line, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("%w: %q", ErrIncorrectMetadata, line)
		}
		data = append(data, Metadata{Name: name, Value: strings.TrimSpace(value)})
	}
	return data, nil
}

// Overview is the listing view of an entry, without secret fields.
type Overview struct {
	ID    string    `json:"id"`
	Type  EntryType `json:"type"`
	Title string    `json:"title"`
}

// Envelope is the type-tagged payload of an entry.
type Envelope struct {
	Type     EntryType       `json:"type"`
	Title    string          `json:"title"`
	Metadata []Metadata      `json:"metadata,omitempty"`
	Details  json.RawMessage `json:"details"`
}

func Wrap[T TypedEntry](title string, md []Metadata, v T) (Envelope, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Type: v.GetType(), Title: title, Metadata: md, Details: b}, nil
}

// Unwrap decodes Details into the concrete type for e.Type. Unknown types
// decode into a generic map so entries written by newer versions survive.
func (e Envelope) Unwrap() (any, error) {
	switch e.Type {
	case EntryTypeLogin:
		return decode[Login](e.Details)
	case EntryTypeNote:
		return decode[Note](e.Details)
	case EntryTypeCreditCard:
		return decode[CreditCard](e.Details)
	default:
		return decode[map[string]any](e.Details)
	}
}

func decode[T any](data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Validate checks the title and the typed payload before an entry is
// stored.
func (e Envelope) Validate() error {
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEntry)
	}
	x, err := e.Unwrap()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	v, ok := x.(TypedEntry)
	if !ok {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEntry, e.Type)
	}
	if err := v.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

type TypedEntry interface {
	GetType() EntryType
	Validate() error
}

// Login stores credentials.
type Login struct {
	Username string `json:"username"`
	Password string `json:"password"`
	URL      string `json:"url"`
}

func (x Login) GetType() EntryType { return EntryTypeLogin }

func (x Login) Validate() error {
	if x.Username == "" && x.URL == "" {
		return errors.New("login needs a username or a URL")
	}
	return nil
}

// Note stores free-form text.
type Note struct {
	Text string `json:"text"`
}

func (x Note) GetType() EntryType { return EntryTypeNote }

func (x Note) Validate() error { return nil }

// CreditCard stores payment card details.
type CreditCard struct {
	Number     string `json:"number"`
	Expiration string `json:"expiration"`
	CVV        string `json:"cvv"`
	Holder     string `json:"holder"`
}

func (x CreditCard) GetType() EntryType { return EntryTypeCreditCard }

var (
	expirationRe = regexp.MustCompile(`^(0[1-9]|1[0-2])/[0-9]{2}$`)
	cvvRe        = regexp.MustCompile(`^[0-9]{3,4}$`)
)

func (x CreditCard) Validate() error {
	if !luhn(x.Number) {
		return errors.New("card number fails the checksum")
	}
	if x.Expiration != "" && !expirationRe.MatchString(x.Expiration) {
		return errors.New("expiration must be MM/YY")
	}
	if x.CVV != "" && !cvvRe.MatchString(x.CVV) {
		return errors.New("CVV must be 3 or 4 digits")
	}
	return nil
}

// luhn reports whether number passes the mod-10 check. Spaces and dashes
// are ignored; 12 to 19 digits are required.
func luhn(number string) bool {
	digits := make([]int, 0, len(number))
	for _, r := range number {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == ' ' || r == '-':
		default:
			return false
		}
	}
	if len(digits) < 12 || len(digits) > 19 {
		return false
	}

	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if (len(digits)-1-i)%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
