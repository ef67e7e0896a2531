package detour

import (
	"strings"

	"github.com/pkg/errors"
)

// Protection is a set of page access permissions.
type Protection int

const (
	ProtNone  Protection = 0
	ProtRead  Protection = 1
	ProtWrite Protection = 2
	ProtExec  Protection = 4

	ProtRX  = ProtRead | ProtExec
	ProtRWX = ProtRead | ProtWrite | ProtExec
)

func (p Protection) String() string {
	var b strings.Builder
	for _, f := range []struct {
		bit Protection
		c   byte
	}{{ProtRead, 'r'}, {ProtWrite, 'w'}, {ProtExec, 'x'}} {
		if p&f.bit != 0 {
			b.WriteByte(f.c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Memory gives a detour access to the code it patches.
//
// Read and Write are only ever called with a range that the detour has
// validated and reserved. Write is only called between Protect calls that make
// the range writable and restore it.
type Memory interface {
	PageSize() int

	// Query returns the current protection of the page containing addr.
	Query(addr uintptr) (Protection, error)

	// Protect sets the protection of every page overlapping
	// [addr, addr+size).
	Protect(addr uintptr, size int, prot Protection) error

	Read(addr uintptr, buf []byte) error
	Write(addr uintptr, data []byte) error
}

// pageSpan returns the start of the first page and the total length of whole
// pages covering [addr, addr+size).
func pageSpan(addr uintptr, size int, pageSize int) (uintptr, uintptr) {
	ps := uintptr(pageSize)
	start := addr &^ (ps - 1)
	end := (addr + uintptr(size) + ps - 1) &^ (ps - 1)
	return start, end - start
}

type pageProtection struct {
	page uintptr
	prot Protection
}

// guard holds a range writable for the duration of a single write. It never
// outlives the toggle that created it.
type guard struct {
	mem   Memory
	pages []pageProtection
}

// acquireGuard makes every page of [addr, addr+size) readable, writable and
// executable, remembering what each page was before. On failure any page that
// was already changed is restored.
func acquireGuard(mem Memory, addr uintptr, size int) (*guard, error) {
	pageSize := mem.PageSize()
	start, length := pageSpan(addr, size, pageSize)

	g := &guard{mem: mem}
	for page := start; page < start+length; page += uintptr(pageSize) {
		prev, err := mem.Query(page)
		if err != nil {
			g.release()
			return nil, errors.Wrapf(ErrProtection, "query %#x: %v", page, err)
		}

		if err := mem.Protect(page, pageSize, ProtRWX); err != nil {
			g.release()
			return nil, errors.Wrapf(ErrProtection, "mprotect %#x %v: %v", page, ProtRWX, err)
		}
		g.pages = append(g.pages, pageProtection{page: page, prot: prev})
	}

	return g, nil
}

// release restores the protection of every page in the guard. All pages are
// attempted even if one fails.
func (g *guard) release() error {
	var first error
	pageSize := g.mem.PageSize()
	for i := len(g.pages) - 1; i >= 0; i-- {
		p := g.pages[i]
		if err := g.mem.Protect(p.page, pageSize, p.prot); err != nil && first == nil {
			first = errors.Wrapf(ErrProtection, "restore %#x %v: %v", p.page, p.prot, err)
		}
	}
	g.pages = nil
	return first
}
