package guwide

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternFind(t *testing.T) {
	buf := []byte{0x90, 0x41, 0xD1, 0xF8, 0x41, 0x8B, 0xC0, 0xC1, 0xE8, 0x1F, 0x90}

	p := ParsePattern("41 D1 F8 41 8B C0 C1 E8 1F")
	assert.Equal(t, 1, p.Find(buf))

	assert.Equal(t, -1, ParsePattern("DE AD BE EF").Find(buf))
}

func TestPatternWildcards(t *testing.T) {
	buf := []byte{0xC7, 0x87, 0x11, 0x22, 0x33, 0x44, 0xF3, 0x41}

	p := ParsePattern("C7 87 ?? ?? ?? ?? F3 41")
	assert.Equal(t, 0, p.Find(buf))
	assert.Equal(t, 8, p.Length())

	// wildcard never matches past the buffer end
	assert.Equal(t, -1, ParsePattern("F3 41 ??").Find(buf))
}

func TestPatternFindAll(t *testing.T) {
	buf := []byte{0xAA, 0xBB, 0x00, 0xAA, 0xBB, 0x00, 0xAA, 0xBB}

	offsets := ParsePattern("AA BB").FindAll(buf)
	assert.Equal(t, []int{0, 3, 6}, offsets)

	// ascending order with overlapping matches
	offsets = ParsePattern("AA ?? ??").FindAll([]byte{0xAA, 0xAA, 0xAA, 0xAA})
	assert.Equal(t, []int{0, 1}, offsets)

	assert.Empty(t, ParsePattern("CC").FindAll(buf))
	assert.Empty(t, Pattern{}.FindAll(buf))
}

func TestPatternString(t *testing.T) {
	p := ParsePattern("39 8e e3 3f")
	assert.Equal(t, "39 8E E3 3F", p.String())

	p = ParsePattern("C7 ? ?? 3F")
	assert.Equal(t, "C7 ?? ?? 3F", p.String())
}

func TestPatternFromBytes(t *testing.T) {
	var p Pattern
	p.FromBytes([]byte{0x01, 0x02})
	assert.Equal(t, 0, p.Find([]byte{0x01, 0x02, 0x03}))
}

func TestParsePatternBadToken(t *testing.T) {
	assert.Panics(t, func() { ParsePattern("ZZ 00") })
}
