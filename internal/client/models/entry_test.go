package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataFromString(t *testing.T) {
	md, err := MetadataFromString([]string{"a=1", " name = value ", "query=x=y", "empty="})
	require.NoError(t, err)
	assert.Equal(t, []Metadata{
		{Name: "a", Value: "1"},
		{Name: "name", Value: "value"},
		{Name: "query", Value: "x=y"},
		{Name: "empty", Value: ""},
	}, md)

	md, err = MetadataFromString(nil)
	require.NoError(t, err)
	assert.Empty(t, md)
}

func TestMetadataFromString_Malformed(t *testing.T) {
	for _, line := range []string{"justname", "=value", "  =x"} {
		_, err := MetadataFromString([]string{"ok=1", line})
		assert.ErrorIs(t, err, ErrIncorrectMetadata, line)
	}
}

func TestWrapUnwrap(t *testing.T) {
	tests := []struct {
		name string
		wrap func() (Envelope, error)
		typ  EntryType
		want any
	}{
		{
			name: "login",
			wrap: func() (Envelope, error) {
				return Wrap("mail", []Metadata{{Name: "k", Value: "v"}}, Login{Username: "u", Password: "p", URL: "https://ex"})
			},
			typ:  EntryTypeLogin,
			want: Login{Username: "u", Password: "p", URL: "https://ex"},
		},
		{
			name: "note",
			wrap: func() (Envelope, error) { return Wrap("t", nil, Note{Text: "hello"}) },
			typ:  EntryTypeNote,
			want: Note{Text: "hello"},
		},
		{
			name: "credit card",
			wrap: func() (Envelope, error) {
				return Wrap("cc", nil, CreditCard{Number: "4111 1111 1111 1111", Expiration: "12/25", CVV: "123", Holder: "John"})
			},
			typ:  EntryTypeCreditCard,
			want: CreditCard{Number: "4111 1111 1111 1111", Expiration: "12/25", CVV: "123", Holder: "John"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := tt.wrap()
			require.NoError(t, err)
			assert.Equal(t, tt.typ, env.Type)

			got, err := env.Unwrap()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.NoError(t, env.Validate())
		})
	}
}

func TestUnwrap_UnknownTypeReturnsGenericMap(t *testing.T) {
	env := Envelope{Type: EntryType("passkey"), Title: "x", Details: []byte(`{"a":1}`)}
	out, err := env.Unwrap()
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, out)

	assert.ErrorIs(t, env.Validate(), ErrInvalidEntry, "unknown types cannot be added")
}

func TestUnwrap_CorruptDetails(t *testing.T) {
	env := Envelope{Type: EntryTypeLogin, Title: "x", Details: []byte(`{"username":`)}
	_, err := env.Unwrap()
	require.Error(t, err)
	assert.ErrorIs(t, env.Validate(), ErrInvalidEntry)
}

func TestEnvelope_Validate(t *testing.T) {
	wrap := func(title string, v TypedEntry) Envelope {
		env, err := Wrap(title, nil, v)
		require.NoError(t, err)
		return env
	}

	tests := []struct {
		name    string
		env     Envelope
		wantErr bool
	}{
		{name: "blank title", env: wrap("  ", Note{Text: "x"}), wantErr: true},
		{name: "empty note", env: wrap("n", Note{})},
		{name: "login with url only", env: wrap("l", Login{URL: "https://ex"})},
		{name: "login without username or url", env: wrap("l", Login{Password: "p"}), wantErr: true},
		{name: "valid card", env: wrap("c", CreditCard{Number: "5555-5555-5555-4444", Expiration: "01/30", CVV: "1234"})},
		{name: "card checksum", env: wrap("c", CreditCard{Number: "4111111111111112"}), wantErr: true},
		{name: "card letters", env: wrap("c", CreditCard{Number: "4111x11111111111"}), wantErr: true},
		{name: "card too short", env: wrap("c", CreditCard{Number: "0"}), wantErr: true},
		{name: "card expiration", env: wrap("c", CreditCard{Number: "4111111111111111", Expiration: "13/30"}), wantErr: true},
		{name: "card cvv", env: wrap("c", CreditCard{Number: "4111111111111111", CVV: "12"}), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEntry)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
