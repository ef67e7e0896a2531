//go:build windows

package detour

import (
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"
)

const (
	mprotectExec = windows.PAGE_EXECUTE
	mprotectRX   = windows.PAGE_EXECUTE_READ
	mprotectRWX  = windows.PAGE_EXECUTE_READWRITE
)

var winProt = map[Protection]uint32{
	ProtNone:             windows.PAGE_NOACCESS,
	ProtRead:             windows.PAGE_READONLY,
	ProtRead | ProtWrite: windows.PAGE_READWRITE,
	ProtExec:             windows.PAGE_EXECUTE,
	ProtRX:               windows.PAGE_EXECUTE_READ,
	ProtRWX:              windows.PAGE_EXECUTE_READWRITE,
}

func (m processMemory) Protect(addr uintptr, size int, prot Protection) error {
	flags, ok := winProt[prot]
	if !ok {
		// Windows has no write-only pages.
		flags = windows.PAGE_EXECUTE_READWRITE
	}

	pageStart, regionSize := pageSpan(addr, size, m.PageSize())

	var oldFlags uint32
	return windows.VirtualProtect(pageStart, regionSize, flags, &oldFlags)
}

func (processMemory) Query(addr uintptr) (Protection, error) {
	var info windows.MemoryBasicInformation
	err := windows.VirtualQuery(addr, &info, unsafe.Sizeof(info))
	if err != nil {
		return ProtNone, errors.WithStack(err)
	}
	if info.State != windows.MEM_COMMIT {
		return ProtNone, errors.Wrapf(ErrInvalidAddress, "%#x is not committed", addr)
	}

	for prot, flags := range winProt {
		if info.Protect&0xff == flags {
			return prot, nil
		}
	}
	return ProtNone, nil
}
