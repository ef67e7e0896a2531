package detour

import (
	"reflect"
	"runtime"
	"sync"

	"github.com/pkg/errors"
)

var (
	redefinedMu sync.Mutex
	redefined   = map[uintptr]*Detour{}
)

// NewFunc prepares a detour from the Go function fn to newFn. The detour is
// disabled until Enable is called.
//
// Note that if fn has been inlined the detour will silently have no effect
// at the inlined call sites. If possible, add a noinline directive to
// work-around this problem:
//
//	//go:noinline
//	func myfunc() {
//		...
//	}
//
// newFn is entered by a jump, so its closure context is never set up. It
// must not capture variables.
func NewFunc[T any](fn, newFn T, opts ...Option) (*Detour, error) {
	return newFuncDetour(fn, newFn, 0, opts)
}

func newFuncDetour(fn, newFn any, skipIn int, opts []Option) (*Detour, error) {
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return nil, errors.Wrapf(ErrInvalidAddress, "not a function, kind: %v", fnv.Kind())
	}
	newFnv := reflect.ValueOf(newFn)
	if newFnv.Kind() != reflect.Func {
		return nil, errors.Wrapf(ErrInvalidAddress, "not a function, kind: %v", newFnv.Kind())
	}
	if diff := diffFuncs(fnv.Type(), newFnv.Type(), skipIn); diff != nil {
		return nil, diff.err()
	}

	entry := fnv.Pointer()
	opts = append([]Option{WithOwner(funcName(entry))}, opts...)
	return New(entry, newFnv.Pointer(), opts...)
}

func funcName(entry uintptr) string {
	if f := runtime.FuncForPC(entry); f != nil {
		return f.Name()
	}
	return "detour"
}

// Func redefines fn with newFn until Restore is called. An error will be
// returned if fn or newFn are not functions or if their signatures do not
// match. Redefining a function that was already redefined replaces the
// earlier definition.
func Func(fn, newFn any) error {
	return redefine(fn, newFn, 0)
}

// Method is like Func but allows the receiver (the first argument) of fn and
// newFn to differ. Pass method expressions:
//
//	detour.Method((*net.Resolver).LookupHost, (*myResolver).LookupHost)
func Method(fn, newFn any) error {
	return redefine(fn, newFn, 1)
}

func redefine(fn, newFn any, skipIn int, opts ...Option) error {
	redefinedMu.Lock()
	defer redefinedMu.Unlock()

	fnv := reflect.ValueOf(fn)
	if fnv.Kind() == reflect.Func {
		if d, ok := redefined[fnv.Pointer()]; ok {
			if err := d.Close(); err != nil {
				return err
			}
			delete(redefined, fnv.Pointer())
		}
	}

	d, err := newFuncDetour(fn, newFn, skipIn, opts)
	if err != nil {
		return err
	}
	if err := d.Enable(); err != nil {
		if cerr := d.Close(); cerr != nil {
			return errors.Wrapf(err, "close failed: %v", cerr)
		}
		return err
	}

	redefined[d.Source()] = d
	return nil
}

// Restore undoes Func or Method. It does nothing if fn isn't redefined.
func Restore(fn any) error {
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return errors.Wrapf(ErrInvalidAddress, "not a function, kind: %v", fnv.Kind())
	}

	redefinedMu.Lock()
	defer redefinedMu.Unlock()

	d, ok := redefined[fnv.Pointer()]
	if !ok {
		return nil
	}
	if err := d.Close(); err != nil {
		return err
	}
	delete(redefined, fnv.Pointer())
	return nil
}
