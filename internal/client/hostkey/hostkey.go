// Package hostkey models the host secret-protection facility: a capability
// that wraps small secrets (the integrity key, the biometric escrow) so they
// are not stored in the clear next to the vault.
//
// The shipped implementation seals to an age X25519 identity kept in a
// separate file with 0600 permissions. Installations without a host key
// pass a nil Protector; callers then store values unwrapped and the
// biometric fast path is disabled.
package hostkey

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
)

// Protector wraps and unwraps secrets with a key the vault files do not hold.
type Protector interface {
	Wrap(secret []byte) (string, error)
	Unwrap(token string) ([]byte, error)
}

var ErrUnwrap = errors.New("hostkey: unwrap failed")

type AgeProtector struct {
	identity *age.X25519Identity
}

func NewAgeProtector(identity *age.X25519Identity) *AgeProtector {
	return &AgeProtector{identity: identity}
}

// LoadOrCreate reads the identity at path, generating and writing a new one
// when the file does not exist yet.
func LoadOrCreate(path string) (*AgeProtector, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		identity, err := age.ParseX25519Identity(strings.TrimSpace(string(data)))
		if err != nil {
			return nil, fmt.Errorf("parsing host key %s: %w", path, err)
		}
		return NewAgeProtector(identity), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading host key: %w", err)
	}

	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generating host key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating host key dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(identity.String()+"\n"), 0o600); err != nil {
		return nil, fmt.Errorf("writing host key: %w", err)
	}
	return NewAgeProtector(identity), nil
}

// Wrap encrypts secret to the host identity and returns standard base64.
func (p *AgeProtector) Wrap(secret []byte) (string, error) {
	var out bytes.Buffer
	w, err := age.Encrypt(&out, p.identity.Recipient())
	if err != nil {
		return "", fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(secret); err != nil {
		return "", fmt.Errorf("writing to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing age encryption: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

// Unwrap reverses Wrap. Any failure is reported as ErrUnwrap.
func (p *AgeProtector) Unwrap(token string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrap, err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), p.identity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrap, err)
	}
	secret, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrap, err)
	}
	return secret, nil
}
