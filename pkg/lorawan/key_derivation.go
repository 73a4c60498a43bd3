package lorawan

import (
	"encoding/binary"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/crypto"
)

// Session key types, first byte of the derivation block.
const (
	KeyTypeNwk byte = 0x01
	KeyTypeApp byte = 0x02
)

// DeriveSessionKey derives a session key per LoRaWAN 1.0:
//
//	key = aes128_encrypt(AppKey, keyType | JoinNonce | NetID | DevNonce | pad16)
func DeriveSessionKey(keyType byte, appKey AES128Key, joinNonce [3]byte, netID [3]byte, devNonce uint16) AES128Key {
	msg := make([]byte, 16)
	msg[0] = keyType
	copy(msg[1:4], joinNonce[:])
	copy(msg[4:7], netID[:])
	binary.LittleEndian.PutUint16(msg[7:9], devNonce)

	var key AES128Key
	crypto.EncryptBlock(appKey[:], msg, key[:])
	return key
}

// DeriveSessionKeys derives both session keys for one join exchange.
func DeriveSessionKeys(appKey AES128Key, joinNonce [3]byte, netID [3]byte, devNonce uint16) (nwkSKey, appSKey AES128Key) {
	nwkSKey = DeriveSessionKey(KeyTypeNwk, appKey, joinNonce, netID, devNonce)
	appSKey = DeriveSessionKey(KeyTypeApp, appKey, joinNonce, netID, devNonce)
	return nwkSKey, appSKey
}

// EncryptJoinAccept encrypts a join-accept payload on the gateway side.
// Per LoRaWAN convention this uses the AES decrypt primitive with the
// AppKey so the device can reverse it with a plain encrypt.
func EncryptJoinAccept(appKey AES128Key, plain []byte) []byte {
	out := make([]byte, len(plain))
	for i := 0; i+16 <= len(plain); i += 16 {
		crypto.DecryptBlock(appKey[:], plain[i:i+16], out[i:i+16])
	}
	return out
}

// DecryptJoinAccept decrypts a join-accept payload on the device side,
// reversing EncryptJoinAccept with the AES encrypt primitive.
func DecryptJoinAccept(appKey AES128Key, encrypted []byte) []byte {
	out := make([]byte, len(encrypted))
	for i := 0; i+16 <= len(encrypted); i += 16 {
		crypto.EncryptBlock(appKey[:], encrypted[i:i+16], out[i:i+16])
	}
	return out
}
