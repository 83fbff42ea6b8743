//go:build windows

package guwide

import (
	"fmt"

	"golang.org/x/sys/windows"
)

const (
	MEM_IMAGE   = 0x1000000
	MEM_MAPPED  = 0x40000
	MEM_PRIVATE = 0x20000
)

type Region struct {
	MBI     MEMORY_BASIC_INFORMATION
	Process *Process
	Module  *Module
}

func (r *Region) IsImage() bool {
	return r.MBI.Type == MEM_IMAGE
}

func (r *Region) IsMapped() bool {
	return r.MBI.Type == MEM_MAPPED
}

func (r *Region) IsPrivate() bool {
	return r.MBI.Type == MEM_PRIVATE
}

func (r *Region) IsCommitted() bool {
	return r.MBI.State == windows.MEM_COMMIT
}

func (r *Region) IsReadable() bool {
	return r.MBI.IsReadable()
}

func (r *Region) IsWritable() bool {
	return r.MBI.IsWritable()
}

func (r *Region) String() string {
	moduleName := ""
	if r.Module != nil {
		moduleName = r.Module.Name
	}

	return fmt.Sprintf(
		"ba:%12X size:%12X state:%8X type:%8X prot: %4X %s %s",
		r.MBI.BaseAddress, r.MBI.RegionSize, r.MBI.State, r.MBI.Type, r.MBI.Protect, prot2str(r.MBI.Protect), moduleName,
	)
}
