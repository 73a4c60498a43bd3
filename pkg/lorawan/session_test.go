package lorawan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(appKey AES128Key) SessionInfo {
	joinNonce := [3]byte{0xaa, 0xbb, 0xcc}
	netID := [3]byte{0x01, 0x23, 0x45}
	devNonce := uint16(0x4242)
	nwk, app := DeriveSessionKeys(appKey, joinNonce, netID, devNonce)
	return SessionInfo{
		DevAddr:   0x11223344,
		AppSKey:   app,
		NwkSKey:   nwk,
		JoinNonce: joinNonce,
		NetID:     netID,
		DevNonce:  devNonce,
	}
}

func TestSessionMarshalRoundTrip(t *testing.T) {
	appKey := AES128Key{9, 9, 9}
	session := testSession(appKey)

	blob := session.Marshal()
	require.Len(t, blob[:], SessionBlobLen)

	out, err := UnmarshalSession(appKey, blob[:])
	require.NoError(t, err)
	assert.Equal(t, session, out)
}

func TestSessionEncryptDecryptRoundTrip(t *testing.T) {
	appKey := AES128Key{1, 2, 3, 4}
	session := testSession(appKey)

	blob := EncryptSession(appKey, &session)
	assert.NotEqual(t, session.Marshal(), blob)

	out, err := DecryptSession(appKey, blob[:])
	require.NoError(t, err)
	assert.Equal(t, session, out)
}

func TestSessionDecryptRejectsWrongSize(t *testing.T) {
	appKey := AES128Key{}
	_, err := DecryptSession(appKey, make([]byte, 31))
	assert.Error(t, err)
	_, err = DecryptSession(appKey, make([]byte, 48))
	assert.Error(t, err)
}
