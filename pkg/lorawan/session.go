package lorawan

import (
	"encoding/binary"
	"fmt"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/crypto"
)

// SessionInfo holds the post-join state for one device: the assigned
// address, both session keys, and the nonces they were derived from.
type SessionInfo struct {
	DevAddr   DevAddr
	AppSKey   AES128Key
	NwkSKey   AES128Key
	JoinNonce [3]byte
	NetID     [3]byte
	DevNonce  uint16
}

// Serialised layout, 32 bytes:
//
//	[0..4)   devAddr   (little-endian uint32)
//	[4..20)  appSKey
//	[20..23) joinNonce
//	[23..26) netID
//	[26..28) devNonce  (little-endian uint16)
//	[28..32) zero
//
// NwkSKey is not stored; it is re-derived from the AppKey and the nonces on
// load, which keeps the at-rest blob at exactly two AES blocks.

// Marshal serialises the session into its fixed 32-byte form.
func (s *SessionInfo) Marshal() [SessionBlobLen]byte {
	var out [SessionBlobLen]byte
	binary.LittleEndian.PutUint32(out[0:4], uint32(s.DevAddr))
	copy(out[4:20], s.AppSKey[:])
	copy(out[20:23], s.JoinNonce[:])
	copy(out[23:26], s.NetID[:])
	binary.LittleEndian.PutUint16(out[26:28], s.DevNonce)
	return out
}

// UnmarshalSession reconstructs a session from its 32-byte serialised form,
// re-deriving NwkSKey under appKey.
func UnmarshalSession(appKey AES128Key, data []byte) (SessionInfo, error) {
	var s SessionInfo
	if len(data) != SessionBlobLen {
		return s, fmt.Errorf("invalid session blob length %d", len(data))
	}
	s.DevAddr = DevAddr(binary.LittleEndian.Uint32(data[0:4]))
	copy(s.AppSKey[:], data[4:20])
	copy(s.JoinNonce[:], data[20:23])
	copy(s.NetID[:], data[23:26])
	s.DevNonce = binary.LittleEndian.Uint16(data[26:28])
	s.NwkSKey = DeriveSessionKey(KeyTypeNwk, appKey, s.JoinNonce, s.NetID, s.DevNonce)
	return s, nil
}

// EncryptSession serialises and encrypts a session for persistence: the
// 32-byte form encrypted as two AES-ECB blocks under appKey.
func EncryptSession(appKey AES128Key, s *SessionInfo) [SessionBlobLen]byte {
	plain := s.Marshal()
	var out [SessionBlobLen]byte
	crypto.EncryptBlock(appKey[:], plain[0:16], out[0:16])
	crypto.EncryptBlock(appKey[:], plain[16:32], out[16:32])
	return out
}

// DecryptSession reverses EncryptSession. A blob of any length other than
// 32 bytes is rejected.
func DecryptSession(appKey AES128Key, blob []byte) (SessionInfo, error) {
	if len(blob) != SessionBlobLen {
		return SessionInfo{}, fmt.Errorf("invalid session blob length %d", len(blob))
	}
	var plain [SessionBlobLen]byte
	crypto.DecryptBlock(appKey[:], blob[0:16], plain[0:16])
	crypto.DecryptBlock(appKey[:], blob[16:32], plain[16:32])
	return UnmarshalSession(appKey, plain[:])
}
