package blobcipher

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	cheapCurrent = 1000
	cheapLegacy  = 200
)

func cheap() *Cipher { return New(cheapCurrent, cheapLegacy) }

func TestNew_Defaults(t *testing.T) {
	c := New()
	assert.Equal(t, []int{600_000, 100_000}, c.generations)
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	c := cheap()
	tests := []struct {
		name      string
		plaintext []byte
	}{
		{"json", []byte(`{"entries":[]}`)},
		{"empty", []byte{}},
		{"binary", []byte{0, 1, 2, 255}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := c.Encrypt(tt.plaintext, []byte("CorrectHorse42!"))
			require.NoError(t, err)

			pt, err := c.Decrypt(blob, []byte("CorrectHorse42!"))
			require.NoError(t, err)
			assert.Equal(t, len(tt.plaintext), len(pt))
			if len(tt.plaintext) > 0 {
				assert.Equal(t, tt.plaintext, pt)
			}
		})
	}
}

func TestEncrypt_BlobFormat(t *testing.T) {
	blob, err := cheap().Encrypt([]byte("hello"), []byte("pw"))
	require.NoError(t, err)

	parts := strings.Split(blob, ":")
	require.Len(t, parts, 3)

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, salt, SaltSize)

	iv, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Len(t, iv, 12)

	ct, err := base64.StdEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	assert.Len(t, ct, len("hello")+16)
}

func TestEncrypt_NonDeterministic(t *testing.T) {
	c := cheap()
	a, err := c.Encrypt([]byte("same"), []byte("pw"))
	require.NoError(t, err)
	b, err := c.Encrypt([]byte("same"), []byte("pw"))
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, strings.Split(a, ":")[0], strings.Split(b, ":")[0])
	assert.NotEqual(t, strings.Split(a, ":")[1], strings.Split(b, ":")[1])
}

func TestDecrypt_LegacyGeneration(t *testing.T) {
	legacy := New(cheapLegacy)
	blob, err := legacy.Encrypt([]byte("old data"), []byte("pw"))
	require.NoError(t, err)

	pt, err := cheap().Decrypt(blob, []byte("pw"))
	require.NoError(t, err)
	assert.Equal(t, []byte("old data"), pt)
}

func TestDecrypt_WrongPasswordEveryGeneration(t *testing.T) {
	for _, gen := range []int{cheapCurrent, cheapLegacy} {
		blob, err := New(gen).Encrypt([]byte("secret"), []byte("right"))
		require.NoError(t, err)

		_, err = cheap().Decrypt(blob, []byte("wrong"))
		assert.ErrorIs(t, err, common.ErrDecryptionFailed, "generation %d", gen)
	}
}

func TestDecrypt_UnknownGeneration(t *testing.T) {
	blob, err := New(300).Encrypt([]byte("secret"), []byte("pw"))
	require.NoError(t, err)

	_, err = cheap().Decrypt(blob, []byte("pw"))
	assert.ErrorIs(t, err, common.ErrDecryptionFailed)
}

func TestDecrypt_MalformedAndTampered(t *testing.T) {
	c := cheap()
	good, err := c.Encrypt([]byte("secret"), []byte("pw"))
	require.NoError(t, err)
	parts := strings.Split(good, ":")

	ct, err := base64.StdEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	ct[0] ^= 0xff
	tampered := parts[0] + ":" + parts[1] + ":" + base64.StdEncoding.EncodeToString(ct)

	tests := map[string]string{
		"empty":        "",
		"two parts":    parts[0] + ":" + parts[1],
		"four parts":   good + ":" + parts[2],
		"bad base64":   parts[0] + ":%%%:" + parts[2],
		"short iv":     parts[0] + ":" + base64.StdEncoding.EncodeToString([]byte("abc")) + ":" + parts[2],
		"empty salt":   ":" + parts[1] + ":" + parts[2],
		"tampered ct":  tampered,
		"swapped salt": parts[1] + ":" + parts[1] + ":" + parts[2],
	}
	for name, blob := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := c.Decrypt(blob, []byte("pw"))
			assert.ErrorIs(t, err, common.ErrDecryptionFailed)
			assert.Equal(t, common.ErrDecryptionFailed.Error(), err.Error())
		})
	}
}
