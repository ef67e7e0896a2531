//go:build amd64 || 386

// Package gohookdetour gives hooks made with github.com/brahma-adshonor/gohook
// the same lifecycle as a detour.Detour: created disabled, idempotent Enable
// and Disable, and Close to restore. Hooked ranges are reserved in the detour
// registry so the two kinds of patch can't overlap.
package gohookdetour

import (
	"reflect"
	"sync"

	"github.com/brahma-adshonor/gohook"
	"github.com/pboyd/detour"
	"github.com/pkg/errors"
)

// gohook writes at most a 64-bit absolute jump.
var reserveSize = detour.Abs64.Width()

// hookMu guards every call into gohook, which keeps its hooks in a global map
// with no locking of its own. It also guards the state of every Detour.
var hookMu sync.Mutex

// Detour is a gohook hook with the detour.Detour lifecycle.
type Detour struct {
	target      any
	replacement any
	source      uintptr
	enabled     bool
	closed      bool
}

// New prepares a hook from target to replacement. Both must be functions of
// the same type.
func New(target, replacement any) (*Detour, error) {
	tv := reflect.ValueOf(target)
	rv := reflect.ValueOf(replacement)
	if tv.Kind() != reflect.Func || rv.Kind() != reflect.Func {
		return nil, errors.Wrap(detour.ErrInvalidAddress, "target and replacement must be functions")
	}
	if tv.Type() != rv.Type() {
		return nil, errors.Wrapf(detour.ErrSignature, "%v != %v", tv.Type(), rv.Type())
	}
	if tv.Pointer() == 0 || tv.Pointer() == rv.Pointer() {
		return nil, errors.Wrapf(detour.ErrInvalidAddress, "source %#x, target %#x", tv.Pointer(), rv.Pointer())
	}

	source := tv.Pointer()
	if err := detour.Reserve(source, reserveSize, "gohook"); err != nil {
		return nil, err
	}

	return &Detour{
		target:      target,
		replacement: replacement,
		source:      source,
	}, nil
}

// Enable installs the hook. It does nothing if the hook is already installed.
func (d *Detour) Enable() error {
	hookMu.Lock()
	defer hookMu.Unlock()

	if d.closed {
		return errors.WithStack(detour.ErrClosed)
	}
	if d.enabled {
		return nil
	}
	if err := gohook.Hook(d.target, d.replacement, nil); err != nil {
		return errors.Wrap(detour.ErrProtection, err.Error())
	}
	d.enabled = true
	return nil
}

// Disable removes the hook. It does nothing if the hook isn't installed.
func (d *Detour) Disable() error {
	hookMu.Lock()
	defer hookMu.Unlock()

	if d.closed {
		return errors.WithStack(detour.ErrClosed)
	}
	return d.disable()
}

// disable must be called with hookMu held.
func (d *Detour) disable() error {
	if !d.enabled {
		return nil
	}
	if err := gohook.UnHook(d.target); err != nil {
		return errors.Wrap(detour.ErrProtection, err.Error())
	}
	d.enabled = false
	return nil
}

// Close removes the hook and releases the reserved range.
func (d *Detour) Close() error {
	hookMu.Lock()
	defer hookMu.Unlock()

	if d.closed {
		return nil
	}
	if err := d.disable(); err != nil {
		return err
	}
	d.closed = true
	detour.Unreserve(d.source)
	return nil
}

// Enabled reports whether the hook is installed.
func (d *Detour) Enabled() bool {
	hookMu.Lock()
	defer hookMu.Unlock()
	return d.enabled
}

// Source returns the entry address of the hooked function.
func (d *Detour) Source() uintptr {
	return d.source
}
