// Package recovery generates BIP-39 recovery phrases and checks the
// two-word challenge answered during unlock.
package recovery

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

const DefaultWordCount = 24

var ErrWordCount = errors.New("recovery phrase must have 18, 21 or 24 words")

// entropy bits per supported phrase length
var entropyBits = map[int]int{
	18: 192,
	21: 224,
	24: 256,
}

// Generate returns a fresh phrase of words words. Only checksummed BIP-39
// lengths are produced; Check accepts a stored phrase of any length.
func Generate(words int) ([]string, error) {
	bits, ok := entropyBits[words]
	if !ok {
		return nil, ErrWordCount
	}
	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return nil, fmt.Errorf("recovery entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("recovery mnemonic: %w", err)
	}
	return strings.Fields(mnemonic), nil
}

// Valid reports whether phrase is a checksummed BIP-39 mnemonic.
func Valid(phrase []string) bool {
	return bip39.IsMnemonicValid(strings.Join(phrase, " "))
}

// Challenge picks two distinct ascending zero-based positions in a phrase
// of n words. n must be at least 2.
func Challenge(n int) ([2]int, error) {
	if n < 2 {
		return [2]int{}, ErrWordCount
	}
	a, err := randIndex(n)
	if err != nil {
		return [2]int{}, err
	}
	b, err := randIndex(n - 1)
	if err != nil {
		return [2]int{}, err
	}
	if b >= a {
		b++
	}
	if a > b {
		a, b = b, a
	}
	return [2]int{a, b}, nil
}

func randIndex(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, fmt.Errorf("recovery challenge: %w", err)
	}
	return int(v.Int64()), nil
}

// Check compares the answer against the words at positions. The answer
// must be exactly two space-separated words; case is ignored.
func Check(phrase []string, positions [2]int, answer string) bool {
	words := strings.Split(strings.TrimSpace(answer), " ")
	if len(words) != 2 {
		return false
	}
	for i, pos := range positions {
		if pos < 0 || pos >= len(phrase) {
			return false
		}
		if !strings.EqualFold(words[i], phrase[pos]) {
			return false
		}
	}
	return true
}
