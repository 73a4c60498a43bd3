package lorawan

import (
	"encoding/binary"
	"fmt"

	"github.com/Matthew-a-smith/OpenEdgeStack/pkg/crypto"
)

// JoinRequestPayload represents a join request frame.
//
// Wire layout, 22 bytes:
//
//	[0..8)   DevEUI
//	[8..16)  AppEUI
//	[16..18) DevNonce (little-endian uint16)
//	[18..22) MIC = first 4 bytes of HMAC-SHA-256(HmacKey, bytes[0..18))
type JoinRequestPayload struct {
	DevEUI   EUI64
	AppEUI   EUI64
	DevNonce uint16
}

// Marshal builds the 22-byte join request, computing the MIC under hmacKey.
func (p *JoinRequestPayload) Marshal(hmacKey AES128Key) []byte {
	buf := make([]byte, JoinRequestLen)
	copy(buf[0:8], p.DevEUI[:])
	copy(buf[8:16], p.AppEUI[:])
	binary.LittleEndian.PutUint16(buf[16:18], p.DevNonce)
	mic := crypto.HMACSHA256(hmacKey[:], buf[:18])
	copy(buf[18:22], mic[:MICLen])
	return buf
}

// ParseJoinRequest parses and authenticates a 22-byte join request. The MIC
// is checked in constant time before any field is returned.
func ParseJoinRequest(hmacKey AES128Key, buf []byte) (*JoinRequestPayload, error) {
	if len(buf) != JoinRequestLen {
		return nil, fmt.Errorf("invalid join request length %d", len(buf))
	}
	mic := crypto.HMACSHA256(hmacKey[:], buf[:18])
	if !crypto.TagEqual(mic[:MICLen], buf[18:22]) {
		return nil, fmt.Errorf("join request MIC mismatch")
	}

	var p JoinRequestPayload
	copy(p.DevEUI[:], buf[0:8])
	copy(p.AppEUI[:], buf[8:16])
	p.DevNonce = binary.LittleEndian.Uint16(buf[16:18])
	return &p, nil
}

// JoinAcceptPayload represents a join accept frame.
//
// Plaintext layout, 16 bytes (encrypted as one ECB block with the AES
// decrypt primitive on the gateway, reversed with encrypt on the device):
//
//	[0..4)   DevAddr (little-endian uint32)
//	[4..7)   JoinNonce
//	[7..10)  NetID
//	[10..12) DevNonce echo (little-endian uint16)
//	[12..16) reserved, zero
type JoinAcceptPayload struct {
	DevAddr   DevAddr
	JoinNonce [3]byte
	NetID     [3]byte
	DevNonce  uint16
}

// Marshal builds the encrypted 16-byte join accept under appKey.
func (p *JoinAcceptPayload) Marshal(appKey AES128Key) []byte {
	plain := make([]byte, JoinAcceptLen)
	binary.LittleEndian.PutUint32(plain[0:4], uint32(p.DevAddr))
	copy(plain[4:7], p.JoinNonce[:])
	copy(plain[7:10], p.NetID[:])
	binary.LittleEndian.PutUint16(plain[10:12], p.DevNonce)
	return EncryptJoinAccept(appKey, plain)
}

// ParseJoinAccept decrypts and parses a 16-byte join accept under appKey.
// The caller must still match the DevNonce echo against its outstanding
// value; a wrong echo means the frame was not meant for this exchange.
func ParseJoinAccept(appKey AES128Key, buf []byte) (*JoinAcceptPayload, error) {
	if len(buf) != JoinAcceptLen {
		return nil, fmt.Errorf("invalid join accept length %d", len(buf))
	}
	plain := DecryptJoinAccept(appKey, buf)

	var p JoinAcceptPayload
	p.DevAddr = DevAddr(binary.LittleEndian.Uint32(plain[0:4]))
	copy(p.JoinNonce[:], plain[4:7])
	copy(p.NetID[:], plain[7:10])
	p.DevNonce = binary.LittleEndian.Uint16(plain[10:12])
	return &p, nil
}
