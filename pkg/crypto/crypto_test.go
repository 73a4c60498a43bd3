package crypto

import (
	"bytes"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockEncryptDecryptRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x2b}, 16)
	plain := []byte("0123456789abcdef")

	var enc, dec [16]byte
	EncryptBlock(key, plain, enc[:])
	DecryptBlock(key, enc[:], dec[:])

	assert.Equal(t, plain, dec[:])
	assert.NotEqual(t, plain, enc[:])
}

func TestCTRStreamRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	nonce := bytes.Repeat([]byte{0x22}, 16)

	for _, size := range []int{1, 15, 16, 17, 100, 255} {
		plain, err := GenerateRandomBytes(size)
		require.NoError(t, err)

		ct := make([]byte, size)
		CTRStream(key, nonce, plain, ct)
		out := make([]byte, size)
		CTRStream(key, nonce, ct, out)

		assert.Equal(t, plain, out, "size %d", size)
	}
}

func TestCTRStreamNonceMatters(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 16)
	plain := []byte("the same plaintext twice")

	a := make([]byte, len(plain))
	b := make([]byte, len(plain))
	CTRStream(key, bytes.Repeat([]byte{0x01}, 16), plain, a)
	CTRStream(key, bytes.Repeat([]byte{0x02}, 16), plain, b)

	assert.NotEqual(t, a, b)
}

func TestHMACSHA256KnownVector(t *testing.T) {
	// RFC 4231 test case 1
	key := bytes.Repeat([]byte{0x0b}, 20)
	msg := []byte("Hi There")

	mac := HMACSHA256(key, msg)
	expected, _ := hex.DecodeString("b0344c61d8db38535ca8afceaf0bf12b881dc200c9833da726e9376c2e32cff7")
	assert.Equal(t, expected, mac[:])
}

func TestTagEqual(t *testing.T) {
	a := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	b := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	c := []byte{1, 2, 3, 4, 5, 6, 7, 9}

	assert.True(t, TagEqual(a, b))
	assert.False(t, TagEqual(a, c))
	assert.False(t, TagEqual(a, a[:7]))
	assert.True(t, TagEqual(nil, nil))
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse")
	require.NoError(t, err)

	assert.True(t, VerifyPassword("correct horse", hash))
	assert.False(t, VerifyPassword("wrong", hash))
}
