package detour

import (
	"fmt"
	"sync"
)

// fakeMemory is a sparse address space for exercising detours without
// touching real code.
type fakeMemory struct {
	mu       sync.Mutex
	pageSize int
	data     map[uintptr]byte
	prot     map[uintptr]Protection

	// protectErr, if set, is consulted before each Protect call.
	protectErr func(addr uintptr, prot Protection) error
	writeErr   error

	reads  int
	writes int
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{
		pageSize: 0x1000,
		data:     map[uintptr]byte{},
		prot:     map[uintptr]Protection{},
	}
}

func (m *fakeMemory) page(addr uintptr) uintptr {
	return addr &^ uintptr(m.pageSize-1)
}

// mapCode maps the pages covering code as read/execute and copies code to
// addr.
func (m *fakeMemory) mapCode(addr uintptr, code []byte) {
	m.mapPages(addr, len(code), ProtRX)

	m.mu.Lock()
	defer m.mu.Unlock()
	for i, b := range code {
		m.data[addr+uintptr(i)] = b
	}
}

func (m *fakeMemory) mapPages(addr uintptr, size int, prot Protection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	start, length := pageSpan(addr, size, m.pageSize)
	for p := start; p < start+length; p += uintptr(m.pageSize) {
		m.prot[p] = prot
	}
}

func (m *fakeMemory) bytesAt(addr uintptr, n int) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, n)
	for i := range buf {
		buf[i] = m.data[addr+uintptr(i)]
	}
	return buf
}

func (m *fakeMemory) protection(addr uintptr) Protection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prot[m.page(addr)]
}

func (m *fakeMemory) PageSize() int {
	return m.pageSize
}

func (m *fakeMemory) Query(addr uintptr) (Protection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prot, ok := m.prot[m.page(addr)]
	if !ok {
		return ProtNone, fmt.Errorf("%#x is not mapped", addr)
	}
	return prot, nil
}

func (m *fakeMemory) Protect(addr uintptr, size int, prot Protection) error {
	if m.protectErr != nil {
		if err := m.protectErr(addr, prot); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	start, length := pageSpan(addr, size, m.pageSize)
	for p := start; p < start+length; p += uintptr(m.pageSize) {
		if _, ok := m.prot[p]; !ok {
			return fmt.Errorf("%#x is not mapped", p)
		}
	}
	for p := start; p < start+length; p += uintptr(m.pageSize) {
		m.prot[p] = prot
	}
	return nil
}

func (m *fakeMemory) Read(addr uintptr, buf []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reads++
	for i := range buf {
		a := addr + uintptr(i)
		if _, ok := m.prot[m.page(a)]; !ok {
			return fmt.Errorf("%#x is not mapped", a)
		}
		buf[i] = m.data[a]
	}
	return nil
}

func (m *fakeMemory) Write(addr uintptr, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.writeErr != nil {
		return m.writeErr
	}

	for i := range data {
		a := addr + uintptr(i)
		if m.prot[m.page(a)]&ProtWrite == 0 {
			return fmt.Errorf("write to read-only page at %#x", a)
		}
	}

	m.writes++
	for i, b := range data {
		m.data[addr+uintptr(i)] = b
	}
	return nil
}

// fakeStubs allocates relay stubs from a fakeMemory.
type fakeStubs struct {
	mem   *fakeMemory
	next  uintptr
	live  map[uintptr]bool
	freed []uintptr
}

func newFakeStubs(mem *fakeMemory, base uintptr) *fakeStubs {
	return &fakeStubs{mem: mem, next: base, live: map[uintptr]bool{}}
}

func (s *fakeStubs) Allocate(size int) (uintptr, error) {
	addr := s.next
	s.next += uintptr((size + 15) &^ 15)
	s.mem.mapPages(addr, size, ProtRX)
	s.live[addr] = true
	return addr, nil
}

func (s *fakeStubs) Write(addr uintptr, code []byte) error {
	if !s.live[addr] {
		return fmt.Errorf("no stub at %#x", addr)
	}
	s.mem.mu.Lock()
	defer s.mem.mu.Unlock()
	for i, b := range code {
		s.mem.data[addr+uintptr(i)] = b
	}
	return nil
}

func (s *fakeStubs) Free(addr uintptr) {
	delete(s.live, addr)
	s.freed = append(s.freed, addr)
}

// nops returns n single byte x86 NOPs.
func nops(n int) []byte {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = 0x90
	}
	return buf
}
