package guwide

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHexDumpString(t *testing.T) {
	buf := append([]byte("hackGU_vol1.dll\x00"), 0xCC, 0x90)
	out := HexDumpString(buf, 0x7FF600001000)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], "7FF600001000:")
	assert.Contains(t, lines[0], "|hackGU_vol1.dll |")
	assert.Contains(t, lines[1], "cc 90")
}
