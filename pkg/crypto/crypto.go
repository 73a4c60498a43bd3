package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a password using bcrypt
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// VerifyPassword verifies a password against a hash
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateRandomBytes generates random bytes
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// EncryptBlock encrypts a single 16-byte block with AES-128 in ECB mode.
// Key and buffers must be exactly 16 bytes; a bad size is a caller bug.
func EncryptBlock(key, in, out []byte) {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	block.Encrypt(out, in)
}

// DecryptBlock decrypts a single 16-byte block with AES-128 in ECB mode.
func DecryptBlock(key, in, out []byte) {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	block.Decrypt(out, in)
}

// CTRStream applies AES-128-CTR over in, writing to out. The nonce is the
// full 16-byte initial counter block; the low counter bytes increment per
// block, matching the sender. Encryption and decryption are the same
// operation.
func CTRStream(key, nonce, in, out []byte) {
	block, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	iv := make([]byte, 16)
	copy(iv, nonce)
	cipher.NewCTR(block, iv).XORKeyStream(out, in)
}

// HMACSHA256 computes the full 32-byte HMAC-SHA-256 digest of msg under key.
func HMACSHA256(key, msg []byte) [32]byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(msg)
	var out [32]byte
	mac.Sum(out[:0])
	return out
}

// TagEqual compares two truncated authentication tags in constant time.
// Tags of unequal length never match.
func TagEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
