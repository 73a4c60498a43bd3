package lorawan

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"strconv"
	"strings"
)

// Region is one typed run inside a decrypted payload stream.
type Region struct {
	Type DataType
	Data []byte
}

// ScanRegions splits a decrypted payload into typed regions. The stream is
// a concatenation of dataType bytes each followed by that region's payload;
// a region runs until the next known type byte or the end of the stream.
func ScanRegions(plain []byte) []Region {
	var regions []Region
	i := 0
	for i < len(plain) {
		t := DataType(plain[i])
		i++
		start := i
		for i < len(plain) && !DataType(plain[i]).Known() {
			i++
		}
		regions = append(regions, Region{Type: t, Data: plain[start:i]})
	}
	return regions
}

// Text renders a TEXT region: byte 0x01 maps to ASCII space, other
// printable bytes pass through, the rest are skipped.
func (r Region) Text() string {
	var b strings.Builder
	for _, c := range r.Data {
		switch {
		case c == 0x01:
			b.WriteByte(' ')
		case c >= 0x20 && c < 0x7f:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Hex renders a BYTES region as a hex blob.
func (r Region) Hex() string {
	return hex.EncodeToString(r.Data)
}

// Floats decodes a FLOATS region as consecutive IEEE-754 little-endian
// singles. Tail bytes that do not form a full float are returned as the
// leftover count.
func (r Region) Floats() (vals []float32, leftover int) {
	n := len(r.Data) / 4
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(r.Data[i*4 : i*4+4])
		vals = append(vals, math.Float32frombits(bits))
	}
	return vals, len(r.Data) % 4
}

// Describe renders a region for logging.
func (r Region) Describe() string {
	switch r.Type {
	case TypeText:
		return "text: " + r.Text()
	case TypeBytes:
		return "bytes: " + r.Hex()
	case TypeFloats:
		vals, leftover := r.Floats()
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = strconv.FormatFloat(float64(v), 'f', 2, 32)
		}
		s := "floats: " + strings.Join(parts, " ")
		if leftover > 0 {
			s += " (+" + strconv.Itoa(leftover) + " leftover bytes)"
		}
		return s
	default:
		return "unknown type 0x" + strconv.FormatUint(uint64(r.Type), 16)
	}
}
