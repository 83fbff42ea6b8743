package guwide

import (
	"fmt"
	"strings"
)

// HexDumpString formats buffer as a hexdump, 16 bytes per line, with
// ascii chars on the right.
func HexDumpString(buffer []byte, ea uintptr) string {
	var sb strings.Builder
	for i := 0; i < len(buffer); i += 16 {
		fmt.Fprintf(&sb, "%19X:", uintptr(i)+ea)
		for j := 0; j < 16; j++ {
			if j == 8 {
				sb.WriteString(" ")
			}
			if i+j < len(buffer) {
				fmt.Fprintf(&sb, " %02x", buffer[i+j])
			} else {
				sb.WriteString("   ")
			}
		}

		sb.WriteString("     |")

		for j := 0; j < 16; j++ {
			if i+j < len(buffer) && buffer[i+j] >= 32 && buffer[i+j] <= 126 {
				fmt.Fprintf(&sb, "%c", buffer[i+j])
			} else {
				sb.WriteString(" ")
			}
		}

		sb.WriteString("|\n")
	}
	return sb.String()
}
