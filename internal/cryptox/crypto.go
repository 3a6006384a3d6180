// Package cryptox is the primitive layer of the vault: password hashing,
// key derivation, authenticated encryption, message authentication and
// secure randomness. Functions are pure with respect to their inputs except
// for RandomBytes, which draws from crypto/rand.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length produced by DeriveKey.
	KeySize = 32
	// NonceSize is the standard GCM nonce length.
	NonceSize = 12
)

var (
	ErrAuthenticationFailed = errors.New("cryptox: message authentication failed")
	ErrInvalidParams        = errors.New("cryptox: invalid parameters")
)

// Argon2Params is one Argon2id cost configuration.
type Argon2Params struct {
	Time      uint32 `json:"t"`
	MemoryKiB uint32 `json:"m"`
	Threads   uint8  `json:"p"`
	KeyLen    uint32 `json:"l"`
}

func (p Argon2Params) valid() bool {
	return p.Time > 0 && p.MemoryKiB >= 8*uint32(p.Threads) && p.Threads > 0 && p.KeyLen >= 16
}

// Hash derives an Argon2id digest of password under salt and cost p.
//
// Parameters:
//   - password: candidate secret, not retained.
//   - salt: per-installation salt (16 bytes in practice).
//   - p: cost parameters; Time, Threads must be positive, memory must be at
//     least 8 KiB per thread and the output at least 16 bytes.
//
// Returns ErrInvalidParams instead of silently producing a weak digest.
func Hash(password, salt []byte, p Argon2Params) ([]byte, error) {
	if !p.valid() {
		return nil, fmt.Errorf("%w: argon2 %+v", ErrInvalidParams, p)
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("%w: empty salt", ErrInvalidParams)
	}
	return argon2.IDKey(password, salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen), nil
}

// DeriveKey derives a KeySize-byte symmetric key with PBKDF2-HMAC-SHA256.
func DeriveKey(password, salt []byte, iterations int) ([]byte, error) {
	if iterations <= 0 || len(salt) == 0 {
		return nil, fmt.Errorf("%w: pbkdf2 iterations=%d salt=%d bytes", ErrInvalidParams, iterations, len(salt))
	}
	return pbkdf2.Key(password, salt, iterations, KeySize, sha256.New), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptox: aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: cipher.NewGCM: %w", err)
	}
	return gcm, nil
}

// Seal encrypts plaintext with AES-GCM under key and iv.
//
// The key must be 16, 24 or 32 bytes and iv must be NonceSize bytes. The
// returned ciphertext carries the GCM tag appended. Reusing an iv with the
// same key breaks confidentiality, so callers draw iv from RandomBytes.
//
// Example:
//
//	key, _ := cryptox.DeriveKey(password, salt, 600_000)
//	iv, _ := cryptox.RandomBytes(cryptox.NonceSize)
//	ct, err := cryptox.Seal(key, iv, []byte("secret"))
func Seal(key, iv, plaintext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrInvalidParams, gcm.NonceSize())
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

// Open reverses Seal. A wrong key, iv or modified ciphertext yields
// ErrAuthenticationFailed.
func Open(key, iv, ciphertext []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != gcm.NonceSize() {
		return nil, fmt.Errorf("%w: iv must be %d bytes", ErrInvalidParams, gcm.NonceSize())
	}
	plaintext, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// HMAC returns HMAC-SHA256(key, message).
func HMAC(key, message []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(message)
	return mac.Sum(nil)
}

// Equal compares two digests in constant time.
func Equal(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

// RandomBytes returns n bytes from crypto/rand.
func RandomBytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length", ErrInvalidParams)
	}
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("cryptox: random: %w", err)
	}
	return b, nil
}
