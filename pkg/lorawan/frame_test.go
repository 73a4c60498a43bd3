package lorawan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/crypto"
)

var (
	testHmacKey = AES128Key{}
	testAppKey  = AES128Key{}
	testAppSKey = AES128Key{0x10, 0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18, 0x19, 0x1a, 0x1b, 0x1c, 0x1d, 0x1e, 0x1f}
	testDevEUI  = EUI64{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	testAppEUI  = EUI64{0xa0, 0xa1, 0xa2, 0xa3, 0xa4, 0xa5, 0xa6, 0xa7}
)

func TestJoinRequestRoundTrip(t *testing.T) {
	req := JoinRequestPayload{
		DevEUI:   testDevEUI,
		AppEUI:   testAppEUI,
		DevNonce: 0xbeef,
	}

	buf := req.Marshal(testHmacKey)
	require.Len(t, buf, JoinRequestLen)

	parsed, err := ParseJoinRequest(testHmacKey, buf)
	require.NoError(t, err)
	assert.Equal(t, req, *parsed)
}

func TestJoinRequestBadMIC(t *testing.T) {
	req := JoinRequestPayload{DevEUI: testDevEUI, AppEUI: testAppEUI, DevNonce: 1}
	buf := req.Marshal(testHmacKey)
	buf[20] ^= 0x01

	_, err := ParseJoinRequest(testHmacKey, buf)
	assert.Error(t, err)
}

func TestJoinRequestBadLength(t *testing.T) {
	_, err := ParseJoinRequest(testHmacKey, make([]byte, 21))
	assert.Error(t, err)
}

func TestJoinAcceptRoundTrip(t *testing.T) {
	accept := JoinAcceptPayload{
		DevAddr:   0x11223344,
		JoinNonce: [3]byte{0xaa, 0xbb, 0xcc},
		NetID:     [3]byte{0x01, 0x23, 0x45},
		DevNonce:  0x1234,
	}

	buf := accept.Marshal(testAppKey)
	require.Len(t, buf, JoinAcceptLen)

	parsed, err := ParseJoinAccept(testAppKey, buf)
	require.NoError(t, err)
	assert.Equal(t, accept, *parsed)
}

// The gateway encrypts the accept with the AES decrypt primitive and the
// device reverses it with encrypt; the wire bytes must therefore differ
// from the plaintext and decrypt back exactly.
func TestJoinAcceptEncryptionInversion(t *testing.T) {
	plain := []byte("sixteen byte msg")

	wire := EncryptJoinAccept(testAppKey, plain)
	assert.NotEqual(t, plain, wire)

	var direct [16]byte
	crypto.DecryptBlock(testAppKey[:], plain, direct[:])
	assert.Equal(t, direct[:], wire)

	assert.Equal(t, plain, DecryptJoinAccept(testAppKey, wire))
}

func TestDeriveSessionKeyVector(t *testing.T) {
	joinNonce := [3]byte{0xaa, 0xbb, 0xcc}
	netID := [3]byte{0x01, 0x23, 0x45}
	devNonce := uint16(0x1234)

	key := DeriveSessionKey(KeyTypeApp, testAppKey, joinNonce, netID, devNonce)

	input := []byte{0x02, 0xaa, 0xbb, 0xcc, 0x01, 0x23, 0x45, 0x34, 0x12, 0, 0, 0, 0, 0, 0, 0}
	var expected [16]byte
	crypto.EncryptBlock(testAppKey[:], input, expected[:])
	assert.Equal(t, AES128Key(expected), key)
}

func TestDeriveSessionKeysDistinct(t *testing.T) {
	nwk, app := DeriveSessionKeys(testAppKey, [3]byte{1, 2, 3}, [3]byte{4, 5, 6}, 7)
	assert.NotEqual(t, nwk, app)
}

func TestDataFrameRoundTrip(t *testing.T) {
	plaintext := []byte{byte(TypeText), 'h', 'e', 'l', 'l', 'o'}
	nonce, err := NewDataNonce(testDevEUI)
	require.NoError(t, err)
	assert.Equal(t, testDevEUI[:], nonce[:8])

	buf := BuildDataFrame(testHmacKey, testAppSKey, testDevEUI, nonce, plaintext)
	require.Len(t, buf, DataOverheadLen+len(plaintext))

	frame, err := ParseDataFrame(buf)
	require.NoError(t, err)
	assert.Equal(t, testDevEUI, frame.SenderEUI)
	assert.Equal(t, nonce, frame.Nonce)
	assert.True(t, frame.VerifyTag(testHmacKey))
	assert.Equal(t, plaintext, frame.Decrypt(testAppSKey))
}

func TestDataFrameRejectsShort(t *testing.T) {
	_, err := ParseDataFrame(make([]byte, DataOverheadLen))
	assert.Error(t, err)
}

// Flipping any single bit ahead of the tag must invalidate the frame.
func TestDataFrameTagCoversEveryBit(t *testing.T) {
	plaintext := []byte{byte(TypeBytes), 1, 2, 3, 4, 5, 6, 7}
	nonce, err := NewDataNonce(testDevEUI)
	require.NoError(t, err)

	buf := BuildDataFrame(testHmacKey, testAppSKey, testDevEUI, nonce, plaintext)
	tagged := len(buf) - TagLen

	for i := 0; i < tagged; i++ {
		for bit := 0; bit < 8; bit++ {
			buf[i] ^= 1 << bit
			frame, err := ParseDataFrame(buf)
			require.NoError(t, err)
			assert.False(t, frame.VerifyTag(testHmacKey), "byte %d bit %d accepted", i, bit)
			buf[i] ^= 1 << bit
		}
	}

	frame, err := ParseDataFrame(buf)
	require.NoError(t, err)
	assert.True(t, frame.VerifyTag(testHmacKey))
}
