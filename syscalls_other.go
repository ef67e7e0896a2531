//go:build !unix && !windows

package detour

import "github.com/pkg/errors"

const (
	mprotectExec = 0
	mprotectRX   = 0
	mprotectRWX  = 0
)

var errUnsupported = errors.New("memory protection is not supported on this platform")

func (processMemory) Protect(addr uintptr, size int, prot Protection) error {
	return errUnsupported
}

func (processMemory) Query(addr uintptr) (Protection, error) {
	return ProtNone, errUnsupported
}
