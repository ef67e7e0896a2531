package detour

import (
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// Reservation is a range of code claimed by a patch.
type Reservation struct {
	Start uintptr
	Size  int
	Owner string
}

func (r Reservation) end() uintptr {
	return r.Start + uintptr(r.Size)
}

// registry tracks every patched range in the process. It lives as long as
// the process does.
type registry struct {
	mu     sync.Mutex
	ranges map[uintptr]Reservation
}

var patches = &registry{}

func (r *registry) reserve(res Reservation) error {
	if res.Size <= 0 {
		return errors.Wrapf(ErrInvalidAddress, "reservation at %#x has size %d", res.Start, res.Size)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ranges == nil {
		r.ranges = map[uintptr]Reservation{}
	}

	for _, other := range r.ranges {
		if res.Start < other.end() && other.Start < res.end() {
			return errors.Wrapf(ErrOverlap, "%#x-%#x (%s) overlaps %#x-%#x (%s)",
				res.Start, res.end(), res.Owner, other.Start, other.end(), other.Owner)
		}
	}

	r.ranges[res.Start] = res
	return nil
}

func (r *registry) unreserve(start uintptr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ranges, start)
}

func (r *registry) active() []Reservation {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := make([]Reservation, 0, len(r.ranges))
	for _, res := range r.ranges {
		list = append(list, res)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Start < list[j].Start })
	return list
}

// Reserve claims [start, start+size) for owner. ErrOverlap is returned if any
// part of the range is already claimed.
//
// Every Detour reserves its range. Code that patches memory by other means
// can call Reserve to avoid colliding with detours.
func Reserve(start uintptr, size int, owner string) error {
	return patches.reserve(Reservation{Start: start, Size: size, Owner: owner})
}

// Unreserve releases the range starting at start.
func Unreserve(start uintptr) {
	patches.unreserve(start)
}

// Active returns every reserved range ordered by address.
func Active() []Reservation {
	return patches.active()
}
