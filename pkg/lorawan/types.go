package lorawan

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// EUI64 represents an 8-byte Extended Unique Identifier
type EUI64 [8]byte

// String returns hex string representation
func (e EUI64) String() string {
	return hex.EncodeToString(e[:])
}

// MarshalJSON implements json.Marshaler
func (e EUI64) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (e *EUI64) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	return e.UnmarshalText([]byte(s))
}

// UnmarshalText parses the canonical lowercase-hex form.
func (e *EUI64) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != 8 {
		return fmt.Errorf("invalid EUI64 length")
	}
	copy(e[:], b)
	return nil
}

// ParseEUI64 parses the 16-character hex form of an EUI64.
func ParseEUI64(s string) (EUI64, error) {
	var e EUI64
	err := e.UnmarshalText([]byte(s))
	return e, err
}

// DevAddr represents a 32-bit device address assigned at join time
type DevAddr uint32

// String returns hex string representation
func (d DevAddr) String() string {
	return fmt.Sprintf("%08x", uint32(d))
}

// AES128Key represents a 128-bit AES key
type AES128Key [16]byte

// String returns hex string representation
func (k AES128Key) String() string {
	return hex.EncodeToString(k[:])
}

// UnmarshalText parses the 32-character hex form.
func (k *AES128Key) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != 16 {
		return fmt.Errorf("invalid AES128Key length")
	}
	copy(k[:], b)
	return nil
}

// DataType tags the payload carried by a data frame.
type DataType byte

const (
	TypeText   DataType = 0x01
	TypeBytes  DataType = 0x02
	TypeFloats DataType = 0x03
)

// Known reports whether b is a recognised data-type tag.
func (t DataType) Known() bool {
	return t == TypeText || t == TypeBytes || t == TypeFloats
}

// Frame sizes on the wire.
const (
	JoinRequestLen  = 22 // devEUI(8) + appEUI(8) + devNonce(2) + MIC(4)
	JoinAcceptLen   = 16 // one AES block
	DataOverheadLen = 32 // sender(8) + nonce(16) + tag(8)
	NonceLen        = 16
	TagLen          = 8
	MICLen          = 4
	SessionBlobLen  = 32 // encrypted SessionInfo at rest
)
