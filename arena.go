package detour

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
)

// arena hands out executable memory for relay stubs. The pages are kept
// read/execute except while the arena itself is being changed.
type arena struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	mutable  bool
	blocks   map[uintptr][]byte
}

var stubArena = &arena{}

func (a *arena) init(startSize int) error {
	var err error
	a.initOnce.Do(func() {
		be := malloc.MmapBackend(malloc.MmapProt(mprotectExec), malloc.MmapFlags(map_32bit))
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		a.Arena = malloc.NewArena(uint64(startSize), malloc.Backend(be))
		if a.Arena == nil {
			err = errors.New("unable to initialize arena")
			return
		}
		a.blocks = map[uintptr][]byte{}
		a.mutable = true
	})
	if err == nil && a.Arena == nil {
		err = errors.New("arena failed to initialize")
	}
	return err
}

func (a *arena) beginMutate() error {
	if a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRWX)
	if err == nil {
		a.mutable = true
	}
	return err
}

func (a *arena) endMutate() error {
	if !a.mutable {
		return nil
	}

	err := a.mprotect(mprotectRX)
	if err == nil {
		a.mutable = false
	}
	return err
}

func (a *arena) Allocate(size int) (uintptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	err := a.init(max(size, os.Getpagesize()))
	if err != nil {
		return 0, fmt.Errorf("error initializing allocator: %w", err)
	}

	if err := a.beginMutate(); err != nil {
		return 0, err
	}
	defer a.endMutate()

	buf, err := malloc.MallocSlice[byte](a.Arena, size)
	if err != nil {
		return 0, err
	}

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	a.blocks[addr] = buf
	return addr, nil
}

func (a *arena) Write(addr uintptr, code []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.blocks[addr]
	if !ok || len(code) > len(buf) {
		return fmt.Errorf("no block of %d bytes at %#x", len(code), addr)
	}

	if err := a.beginMutate(); err != nil {
		return err
	}
	copy(buf, code)
	cacheflush(addr, len(code))

	return a.endMutate()
}

func (a *arena) Free(addr uintptr) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.blocks[addr]
	if !ok {
		return
	}

	if err := a.beginMutate(); err != nil {
		logger().WithError(err).Warn("unable to free relay stub")
		return
	}
	defer a.endMutate()

	malloc.FreeSlice(a.Arena, buf)
	delete(a.blocks, addr)
}
