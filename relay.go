package detour

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

// stubAllocator provides executable memory for relay stubs.
type stubAllocator interface {
	Allocate(size int) (uintptr, error)
	Write(addr uintptr, code []byte) error
	Free(addr uintptr)
}

// Relay is an Encoding for targets beyond the reach of a near jump. When the
// near encoding can't reach the target, a stub holding a far jump is
// allocated close to the source and the source jumps to the stub instead.
//
// The patch written at the source is always the near encoding's width.
type Relay struct {
	near  Encoding
	far   Encoding
	alloc stubAllocator

	mu    sync.Mutex
	stubs map[uintptr]uintptr // source -> stub
}

var _ ReleasingEncoding = (*Relay)(nil)

// NewRelay returns a Relay using the running architecture's near and far
// jumps and stubs from an executable arena.
func NewRelay() *Relay {
	if runtime.GOARCH == "arm64" {
		return newRelay(Branch26, AbsArm64, stubArena)
	}
	return newRelay(Rel32, Abs64, stubArena)
}

func newRelay(near, far Encoding, alloc stubAllocator) *Relay {
	return &Relay{
		near:  near,
		far:   far,
		alloc: alloc,
		stubs: map[uintptr]uintptr{},
	}
}

func (r *Relay) Name() string {
	return fmt.Sprintf("relay(%s,%s)", r.near.Name(), r.far.Name())
}

func (r *Relay) Arch() string { return r.near.Arch() }
func (r *Relay) Width() int   { return r.near.Width() }
func (r *Relay) Align() int   { return r.near.Align() }

// Encode returns ErrOverlap if source already has a stub. The stub belongs
// to a live detour and is left alone.
func (r *Relay) Encode(source, target uintptr) ([]byte, error) {
	if _, ok := r.Stub(source); ok {
		return nil, errors.Wrapf(ErrOverlap, "relay stub already in use for %#x", source)
	}

	patch, err := r.near.Encode(source, target)
	if err == nil || !errors.Is(err, ErrOutOfRange) {
		return patch, err
	}

	stub, err := r.alloc.Allocate(r.far.Width())
	if err != nil {
		return nil, errors.Wrap(err, "unable to allocate relay stub")
	}

	code, err := r.far.Encode(stub, target)
	if err != nil {
		r.alloc.Free(stub)
		return nil, err
	}
	if err := r.alloc.Write(stub, code); err != nil {
		r.alloc.Free(stub)
		return nil, errors.Wrap(err, "unable to write relay stub")
	}

	patch, err = r.near.Encode(source, stub)
	if err != nil {
		// The stub landed too far from the source as well.
		r.alloc.Free(stub)
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stubs[source]; ok {
		r.alloc.Free(stub)
		return nil, errors.Wrapf(ErrOverlap, "relay stub already in use for %#x", source)
	}
	r.stubs[source] = stub

	return patch, nil
}

// Stub returns the relay stub used for source, if there is one.
func (r *Relay) Stub(source uintptr) (uintptr, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stub, ok := r.stubs[source]
	return stub, ok
}

// Release frees the stub allocated for source.
func (r *Relay) Release(source uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if stub, ok := r.stubs[source]; ok {
		r.alloc.Free(stub)
		delete(r.stubs, source)
	}
}
