package lorawan

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanRegionsBatchedText(t *testing.T) {
	// Drained "hi" + "bye" as transmitted: type byte per record, no
	// length prefixes.
	plain := []byte{0x01, 'h', 'i', 0x01, 'b', 'y', 'e'}

	regions := ScanRegions(plain)
	require.Len(t, regions, 2)
	assert.Equal(t, TypeText, regions[0].Type)
	assert.Equal(t, "hi", regions[0].Text())
	assert.Equal(t, TypeText, regions[1].Type)
	assert.Equal(t, "bye", regions[1].Text())
}

func TestScanRegionsMixedTypes(t *testing.T) {
	floats := make([]byte, 8)
	binary.LittleEndian.PutUint32(floats[0:4], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(floats[4:8], math.Float32bits(-2.25))

	plain := []byte{0x02, 0xde, 0xad, 0x03}
	plain = append(plain, floats...)

	regions := ScanRegions(plain)
	require.Len(t, regions, 2)

	assert.Equal(t, TypeBytes, regions[0].Type)
	assert.Equal(t, "dead", regions[0].Hex())

	assert.Equal(t, TypeFloats, regions[1].Type)
	vals, leftover := regions[1].Floats()
	assert.Equal(t, []float32{1.5, -2.25}, vals)
	assert.Zero(t, leftover)
}

func TestTextDecodeMapsByteOneToSpace(t *testing.T) {
	r := Region{Type: TypeText, Data: []byte{'h', 0x01, 'i'}}
	assert.Equal(t, "h i", r.Text())
}

func TestTextDecodeSkipsNonPrintable(t *testing.T) {
	r := Region{Type: TypeText, Data: []byte{'h', 'i', 0x7f, '!'}}
	assert.Equal(t, "hi!", r.Text())
}

func TestFloatsLeftoverTail(t *testing.T) {
	r := Region{Type: TypeFloats, Data: make([]byte, 6)}
	vals, leftover := r.Floats()
	assert.Len(t, vals, 1)
	assert.Equal(t, 2, leftover)
}

func TestScanRegionsEmpty(t *testing.T) {
	assert.Empty(t, ScanRegions(nil))
}
