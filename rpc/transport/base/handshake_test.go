package base

import (
	"bytes"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScrambleVerifies(t *testing.T) {
	salt := bytes.Repeat([]byte{7}, 32)
	scramble := Scramble(salt, "secret")

	assert.Len(t, scramble, sha1.Size)
	assert.True(t, VerifyScramble(salt, scramble, "secret"))
	assert.False(t, VerifyScramble(salt, scramble, "wrong"))
	assert.False(t, VerifyScramble(bytes.Repeat([]byte{8}, 32), scramble, "secret"))
	assert.False(t, VerifyScramble(salt, scramble[:10], "secret"))
}

func TestScrambleUsesFirst20SaltBytes(t *testing.T) {
	salt := bytes.Repeat([]byte{1}, 20)
	longer := append(append([]byte{}, salt...), 9, 9, 9)

	assert.Equal(t, Scramble(salt, "pw"), Scramble(longer, "pw"))
}
