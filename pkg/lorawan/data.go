package lorawan

import (
	"fmt"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/crypto"
)

// DataFrame represents a parsed authenticated-encrypted data frame.
//
// Wire layout:
//
//	[0..8)       SenderDevEUI
//	[8..24)      Nonce (SenderDevEUI || 8-byte random counter)
//	[24..24+N)   AES-128-CTR ciphertext, N = |plaintext|, no padding
//	[24+N..32+N) Tag = first 8 bytes of HMAC-SHA-256 over [0..24+N)
type DataFrame struct {
	SenderEUI  EUI64
	Nonce      [NonceLen]byte
	Ciphertext []byte

	raw []byte // full frame including tag
}

// NewDataNonce assembles the 16-byte CTR nonce for sender: the sender EUI
// followed by an 8-byte random counter.
func NewDataNonce(sender EUI64) ([NonceLen]byte, error) {
	var nonce [NonceLen]byte
	copy(nonce[0:8], sender[:])
	ctr, err := crypto.GenerateRandomBytes(8)
	if err != nil {
		return nonce, err
	}
	copy(nonce[8:16], ctr)
	return nonce, nil
}

// BuildDataFrame encrypts plaintext under appSKey with the given nonce and
// packages it as [sender | nonce | ciphertext | tag], authenticated under
// hmacKey. The returned buffer is owned by the caller.
func BuildDataFrame(hmacKey, appSKey AES128Key, sender EUI64, nonce [NonceLen]byte, plaintext []byte) []byte {
	buf := make([]byte, DataOverheadLen+len(plaintext))
	copy(buf[0:8], sender[:])
	copy(buf[8:24], nonce[:])
	crypto.CTRStream(appSKey[:], nonce[:], plaintext, buf[24:24+len(plaintext)])

	tag := crypto.HMACSHA256(hmacKey[:], buf[:24+len(plaintext)])
	copy(buf[24+len(plaintext):], tag[:TagLen])
	return buf
}

// ParseDataFrame splits a raw frame into its fields. Only structure is
// checked here; authenticity is the caller's next step via VerifyTag.
func ParseDataFrame(buf []byte) (*DataFrame, error) {
	if len(buf) <= DataOverheadLen {
		return nil, fmt.Errorf("data frame too short: %d", len(buf))
	}
	f := &DataFrame{raw: buf}
	copy(f.SenderEUI[:], buf[0:8])
	copy(f.Nonce[:], buf[8:24])
	f.Ciphertext = buf[24 : len(buf)-TagLen]
	return f, nil
}

// Tag returns the received 8-byte tag.
func (f *DataFrame) Tag() []byte {
	return f.raw[len(f.raw)-TagLen:]
}

// VerifyTag recomputes the HMAC over everything before the tag and compares
// in constant time.
func (f *DataFrame) VerifyTag(hmacKey AES128Key) bool {
	tag := crypto.HMACSHA256(hmacKey[:], f.raw[:len(f.raw)-TagLen])
	return crypto.TagEqual(tag[:TagLen], f.Tag())
}

// Decrypt returns the plaintext under appSKey. Verify the tag first.
func (f *DataFrame) Decrypt(appSKey AES128Key) []byte {
	plain := make([]byte, len(f.Ciphertext))
	crypto.CTRStream(appSKey[:], f.Nonce[:], f.Ciphertext, plain)
	return plain
}
