package guwide

import "fmt"

// ScanImage scans [base, base+size) of mem for pattern and returns all
// matching absolute addresses in ascending order. A result with no
// matches is not an error; scans must never reach past the declared
// image size, so the whole image is read in one bounded request.
func ScanImage(mem Memory, base uintptr, size uint32, pattern Pattern) ([]uintptr, error) {
	if pattern.Length() == 0 {
		return nil, nil
	}

	image, err := mem.ReadMemory(base, int(size))
	if err != nil {
		return nil, fmt.Errorf("read image at %x: %w", base, err)
	}

	var addrs []uintptr
	for _, off := range pattern.FindAll(image) {
		addrs = append(addrs, base+uintptr(off))
	}
	return addrs, nil
}

// ScanModule scans the module's loaded image. The bounds come from the
// module's declared SizeOfImage, never assumed.
func ScanModule(mem Memory, mod Module, pattern Pattern) ([]uintptr, error) {
	return ScanImage(mem, mod.BaseOfDll, mod.SizeOfImage, pattern)
}
