package guwide

import (
	"fmt"
	"strconv"
	"strings"
)

// Pattern is a byte signature with optional wildcard positions.
// Wildcards match any byte value.
type Pattern struct {
	data []int // -1 means wildcard
}

func (p Pattern) Length() int {
	return len(p.data)
}

func (p Pattern) String() string {
	s := ""
	for _, c := range p.data {
		if c == -1 {
			s += "?? "
		} else {
			s += fmt.Sprintf("%02X ", c)
		}
	}
	return strings.TrimSpace(s)
}

// Find returns the offset of the first match in buffer, or -1.
func (p Pattern) Find(buffer []byte) int {
	for i := 0; i+len(p.data) <= len(buffer); i++ {
		if p.matchAt(buffer, i) {
			return i
		}
	}
	return -1
}

// FindAll returns all match offsets in ascending order.
// An empty result is an expected outcome, not an error.
func (p Pattern) FindAll(buffer []byte) []int {
	var offsets []int
	if len(p.data) == 0 {
		return offsets
	}
	for i := 0; i+len(p.data) <= len(buffer); i++ {
		if p.matchAt(buffer, i) {
			offsets = append(offsets, i)
		}
	}
	return offsets
}

func (p Pattern) matchAt(buffer []byte, i int) bool {
	for j, c := range p.data {
		if c != -1 && int(buffer[i+j]) != c {
			return false
		}
	}
	return true
}

func (p *Pattern) FromHexString(s string) {
	p.data = []int{}
	for _, c := range strings.Fields(s) {
		if c == "?" || c == "??" {
			p.data = append(p.data, -1)
		} else {
			x, err := strconv.ParseUint(string(c), 16, 8)
			if err != nil {
				panic(err)
			}
			p.data = append(p.data, int(x))
		}
	}
}

// FromBytes builds a pattern of literal bytes only.
func (p *Pattern) FromBytes(b []byte) {
	p.data = make([]int, len(b))
	for i, c := range b {
		p.data[i] = int(c)
	}
}

// ParsePattern parses a space-separated hex signature like
// "C7 87 ?? ?? ?? ?? F3 41". Panics on malformed tokens: signatures
// are fixed table entries, not runtime input.
func ParsePattern(src string) Pattern {
	p := Pattern{}
	p.FromHexString(src)
	return p
}
