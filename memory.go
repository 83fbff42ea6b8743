package guwide

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

var (
	ErrOutOfRange = errors.New("address out of range")
	ErrReadOnly   = errors.New("memory is read only")
)

// Memory is an address space that can be read and written at absolute
// addresses. A live Process implements it; ByteMemory backs tests and
// offline images.
type Memory interface {
	ReadMemory(ea uintptr, size int) ([]byte, error)
	WriteMemory(ea uintptr, data []byte) error
}

func ReadU8(m Memory, ea uintptr) (uint8, error) {
	b, err := m.ReadMemory(ea, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func ReadU32(m Memory, ea uintptr) (uint32, error) {
	b, err := m.ReadMemory(ea, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func ReadU64(m Memory, ea uintptr) (uint64, error) {
	b, err := m.ReadMemory(ea, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func ReadF32(m Memory, ea uintptr) (float32, error) {
	v, err := ReadU32(m, ea)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(v), nil
}

func WriteU8(m Memory, ea uintptr, value uint8) error {
	return m.WriteMemory(ea, []byte{value})
}

func WriteU32(m Memory, ea uintptr, value uint32) error {
	buffer := make([]byte, 4)
	binary.LittleEndian.PutUint32(buffer, value)
	return m.WriteMemory(ea, buffer)
}

func WriteU64(m Memory, ea uintptr, value uint64) error {
	buffer := make([]byte, 8)
	binary.LittleEndian.PutUint64(buffer, value)
	return m.WriteMemory(ea, buffer)
}

func WriteF32(m Memory, ea uintptr, value float32) error {
	return WriteU32(m, ea, math.Float32bits(value))
}

// F32Bytes returns the little-endian IEEE-754 encoding of value.
func F32Bytes(value float32) []byte {
	buffer := make([]byte, 4)
	binary.LittleEndian.PutUint32(buffer, math.Float32bits(value))
	return buffer
}

// ByteMemory is a Memory over an in-process buffer mapped at Base.
// Used for offline images and as a stand-in target in tests.
type ByteMemory struct {
	Base     uintptr
	Data     []byte
	ReadOnly bool

	Reads  int // number of ReadMemory calls served
	Writes int // number of WriteMemory calls served
}

func (m *ByteMemory) ReadMemory(ea uintptr, size int) ([]byte, error) {
	if ea < m.Base || ea+uintptr(size) > m.Base+uintptr(len(m.Data)) {
		return nil, fmt.Errorf("%w: read %d bytes at %x", ErrOutOfRange, size, ea)
	}
	m.Reads++
	buffer := make([]byte, size)
	copy(buffer, m.Data[ea-m.Base:])
	return buffer, nil
}

func (m *ByteMemory) WriteMemory(ea uintptr, data []byte) error {
	if m.ReadOnly {
		return fmt.Errorf("%w: write %d bytes at %x", ErrReadOnly, len(data), ea)
	}
	if ea < m.Base || ea+uintptr(len(data)) > m.Base+uintptr(len(m.Data)) {
		return fmt.Errorf("%w: write %d bytes at %x", ErrOutOfRange, len(data), ea)
	}
	m.Writes++
	copy(m.Data[ea-m.Base:], data)
	return nil
}
