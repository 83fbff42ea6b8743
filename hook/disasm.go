package hook

import (
	"fmt"
	"strings"

	"golang.org/x/arch/x86/x86asm"
)

// DescribeSite decodes the leading instruction of a hook or patch site
// for the install log line. Sites are not always code (the aspect-ratio
// patch lands on an inline float constant), so decode failures degrade
// to a raw byte dump.
func DescribeSite(code []byte) string {
	inst, err := x86asm.Decode(code, 64)
	if err != nil {
		return fmt.Sprintf("% X", code)
	}
	return fmt.Sprintf("%s [%d bytes]", strings.ToLower(inst.String()), inst.Len)
}

// PatchSplitsInstruction reports whether a patch of length n would end
// in the middle of a decoded instruction. Only advisory: a split is
// logged, not refused, since the site may be data.
func PatchSplitsInstruction(code []byte, n int) bool {
	if n > len(code) {
		n = len(code)
	}
	cur := 0
	for cur < n {
		inst, err := x86asm.Decode(code[cur:], 64)
		if err != nil {
			return false
		}
		cur += inst.Len
	}
	return cur != n
}
