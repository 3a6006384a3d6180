package common

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWipeByteArray(t *testing.T) {
	buf := []byte("CorrectHorse42!")
	WipeByteArray(buf)
	assert.Equal(t, make([]byte, len("CorrectHorse42!")), buf)

	assert.NotPanics(t, func() { WipeByteArray(nil) })
}

func TestWipeByteArray_SubsliceOnly(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	WipeByteArray(buf[1:3])
	assert.Equal(t, []byte{1, 0, 0, 4}, buf)
}
