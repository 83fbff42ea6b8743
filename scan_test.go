package guwide

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func imageWith(base uintptr, size int, at map[int][]byte) *ByteMemory {
	data := make([]byte, size)
	for off, b := range at {
		copy(data[off:], b)
	}
	return &ByteMemory{Base: base, Data: data}
}

func TestScanModule(t *testing.T) {
	sig := []byte{0x39, 0x8E, 0xE3, 0x3F}
	mem := imageWith(0x7FF600000000, 0x1000, map[int][]byte{
		0x120: sig,
		0xFF0: sig,
	})
	mod := Module{BaseOfDll: 0x7FF600000000, SizeOfImage: 0x1000, Name: "a.dll"}

	addrs, err := ScanModule(mem, mod, ParsePattern("39 8E E3 3F"))
	require.NoError(t, err)
	assert.Equal(t, []uintptr{0x7FF600000120, 0x7FF600000FF0}, addrs)
}

func TestScanModuleNoMatch(t *testing.T) {
	mem := imageWith(0x1000, 0x100, nil)
	mod := Module{BaseOfDll: 0x1000, SizeOfImage: 0x100}

	addrs, err := ScanModule(mem, mod, ParsePattern("DE AD"))
	require.NoError(t, err)
	assert.Empty(t, addrs)
}

func TestScanImageStaysInBounds(t *testing.T) {
	// the signature straddles the declared image end; the scan must not
	// read beyond it even though the backing buffer is larger
	mem := imageWith(0x1000, 0x200, map[int][]byte{0xFE: {0xAA, 0xBB, 0xCC}})

	addrs, err := ScanImage(mem, 0x1000, 0x100, ParsePattern("AA BB CC"))
	require.NoError(t, err)
	assert.Empty(t, addrs)
	assert.Equal(t, 1, mem.Reads)
}

func TestScanImageReadFailure(t *testing.T) {
	mem := &ByteMemory{Base: 0x1000, Data: make([]byte, 0x10)}

	_, err := ScanImage(mem, 0x1000, 0x100, ParsePattern("AA"))
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestByteMemoryRoundTrip(t *testing.T) {
	mem := &ByteMemory{Base: 0x400000, Data: make([]byte, 32)}

	require.NoError(t, WriteF32(mem, 0x400010, 2.5))
	v, err := ReadF32(mem, 0x400010)
	require.NoError(t, err)
	assert.Equal(t, float32(2.5), v)

	assert.Equal(t, []byte{0x00, 0x00, 0x20, 0x40}, F32Bytes(2.5))

	mem.ReadOnly = true
	assert.ErrorIs(t, WriteU8(mem, 0x400000, 1), ErrReadOnly)

	_, err = ReadU32(mem, 0x400000+30)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
