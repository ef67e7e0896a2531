//go:build unix && !linux

package detour

import (
	"os"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Query checks that addr is mapped and assumes the mapping is read/execute.
// Darwin and the BSDs have no procfs equivalent that is cheap to read from
// inside the process, but madvise fails with ENOMEM on unmapped pages.
func (processMemory) Query(addr uintptr) (Protection, error) {
	if addr == 0 {
		return ProtNone, ErrInvalidAddress
	}

	pageSize := os.Getpagesize()
	page := addr &^ uintptr(pageSize-1)
	mem := unsafe.Slice((*byte)(unsafe.Pointer(page)), pageSize)
	if err := unix.Madvise(mem, unix.MADV_NORMAL); err != nil {
		return ProtNone, errors.Wrapf(ErrInvalidAddress, "%#x is not mapped: %v", addr, err)
	}
	return ProtRX, nil
}
