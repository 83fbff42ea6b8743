package guwide

type Module struct {
	BaseOfDll   uintptr // Base address of the module
	SizeOfImage uint32  // Size of the module, in bytes
	EntryPoint  uintptr // Entry point of the module

	Name string // Name of the module (not in windows.ModuleInfo)
}

// Offset converts an absolute address inside the module image to a
// module-relative offset. Only meaningful while this module instance
// remains loaded.
func (m Module) Offset(ea uintptr) uintptr {
	return ea - m.BaseOfDll
}

// Contains reports whether ea falls inside the module image.
func (m Module) Contains(ea uintptr) bool {
	return ea >= m.BaseOfDll && ea < m.BaseOfDll+uintptr(m.SizeOfImage)
}
