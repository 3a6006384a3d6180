// Package blobcipher encrypts the serialized secret collection into a
// self-describing "salt:iv:ciphertext" blob keyed by the master password.
package blobcipher

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

const (
	SaltSize = 16

	CurrentIterations = 600_000
	LegacyIterations  = 100_000
)

// DefaultGenerations lists PBKDF2 iteration counts, current first.
var DefaultGenerations = []int{CurrentIterations, LegacyIterations}

type Cipher struct {
	generations []int
}

// New returns a Cipher that encrypts with generations[0] and tries the
// rest on decryption. With no arguments DefaultGenerations is used.
func New(generations ...int) *Cipher {
	if len(generations) == 0 {
		generations = DefaultGenerations
	}
	return &Cipher{generations: generations}
}

// Encrypt seals plaintext under a key derived from password with a fresh
// salt and iv.
func (c *Cipher) Encrypt(plaintext, password []byte) (string, error) {
	salt, err := cryptox.RandomBytes(SaltSize)
	if err != nil {
		return "", err
	}
	iv, err := cryptox.RandomBytes(cryptox.NonceSize)
	if err != nil {
		return "", err
	}

	key, err := cryptox.DeriveKey(password, salt, c.generations[0])
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(key)

	ct, err := cryptox.Seal(key, iv, plaintext)
	if err != nil {
		return "", fmt.Errorf("seal: %w", err)
	}

	enc := base64.StdEncoding
	return enc.EncodeToString(salt) + ":" + enc.EncodeToString(iv) + ":" + enc.EncodeToString(ct), nil
}

// Decrypt opens blob with password, trying each iteration generation in
// order. Malformed input and a wrong password are indistinguishable.
func (c *Cipher) Decrypt(blob string, password []byte) ([]byte, error) {
	salt, iv, ct, ok := parse(blob)
	if !ok {
		return nil, common.ErrDecryptionFailed
	}

	for _, iterations := range c.generations {
		key, err := cryptox.DeriveKey(password, salt, iterations)
		if err != nil {
			return nil, common.ErrDecryptionFailed
		}
		pt, err := cryptox.Open(key, iv, ct)
		common.WipeByteArray(key)
		if err == nil {
			return pt, nil
		}
	}
	return nil, common.ErrDecryptionFailed
}

func parse(blob string) (salt, iv, ct []byte, ok bool) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, nil, nil, false
	}

	decoded := make([][]byte, 3)
	for i, p := range parts {
		b, err := base64.StdEncoding.DecodeString(p)
		if err != nil || len(b) == 0 {
			return nil, nil, nil, false
		}
		decoded[i] = b
	}
	if len(decoded[1]) != cryptox.NonceSize {
		return nil, nil, nil, false
	}
	return decoded[0], decoded[1], decoded[2], true
}
