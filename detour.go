package detour

import (
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// toggleMu serializes every write to patched code in the process. One lock is
// shared by all detours; toggles are rare and short.
var toggleMu sync.Mutex

// patchRecord is the state of one patch. It is kept apart from Detour so the
// cleanup attached to a Detour can restore the code without keeping the
// Detour reachable.
type patchRecord struct {
	source   uintptr
	target   uintptr
	original []byte
	patch    []byte

	// enabled is only stored with toggleMu held.
	enabled atomic.Bool

	// closed is guarded by toggleMu.
	closed bool

	mem      Memory
	encoding Encoding
	log      logrus.FieldLogger
}

// Detour redirects calls from one function to another.
//
// A Detour starts out disabled. Enable writes a jump to the target over the
// start of the source; Disable puts the original bytes back. Both are
// idempotent and safe to call from multiple goroutines.
//
// The jump is written while other threads may be running. If a thread is
// executing within the first bytes of the source while they are replaced it
// can observe a torn instruction. Callers must make sure the source isn't
// running while it's toggled, or accept the risk. Writes that fit within an
// aligned 8-byte word are done with a single atomic store, which avoids
// tearing the jump itself.
type Detour struct {
	rec     *patchRecord
	cleanup runtime.Cleanup
}

// New prepares a detour from source to target. Nothing is written until
// Enable is called.
//
// The returned errors wrap ErrInvalidAddress, ErrOutOfRange, ErrOverlap or
// ErrInstructionBoundary.
//
// Outside Linux and Windows the protection of the source can't be read, so a
// mapped source is assumed to be read/execute.
func New(source, target uintptr, opts ...Option) (*Detour, error) {
	c := newConfig(opts)
	enc := c.encoding

	if source == 0 || target == 0 {
		return nil, errors.Wrapf(ErrInvalidAddress, "source %#x, target %#x", source, target)
	}
	if source == target {
		return nil, errors.Wrapf(ErrInvalidAddress, "source and target are both %#x", source)
	}
	if align := uintptr(enc.Align()); align > 1 && source%align != 0 {
		return nil, errors.Wrapf(ErrInvalidAddress, "source %#x is not %d-byte aligned", source, align)
	}

	patch, err := enc.Encode(source, target)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	release := func() {
		if re, ok := enc.(ReleasingEncoding); ok {
			re.Release(source)
		}
	}

	prot, err := c.memory.Query(source)
	if err != nil {
		release()
		return nil, errors.Wrapf(ErrInvalidAddress, "source %#x: %v", source, err)
	}
	if prot&ProtExec == 0 {
		release()
		return nil, errors.Wrapf(ErrInvalidAddress, "source %#x is not executable (%v)", source, prot)
	}

	log := c.logger.WithFields(logrus.Fields{
		"source":   fmt.Sprintf("%#x", source),
		"target":   fmt.Sprintf("%#x", target),
		"encoding": enc.Name(),
	})

	if c.boundaryCheck {
		patch, err = padToBoundary(c.memory, source, patch, enc.Arch())
		if err != nil {
			release()
			return nil, err
		}
		if len(patch) > enc.Width() {
			log.WithField("width", len(patch)).Warn("patch padded to instruction boundary")
		}
	}

	err = patches.reserve(Reservation{Start: source, Size: len(patch), Owner: c.owner})
	if err != nil {
		release()
		return nil, err
	}

	original := make([]byte, len(patch))
	if err := c.memory.Read(source, original); err != nil {
		patches.unreserve(source)
		release()
		return nil, errors.Wrapf(ErrInvalidAddress, "read %#x: %v", source, err)
	}

	rec := &patchRecord{
		source:   source,
		target:   target,
		original: original,
		patch:    patch,
		mem:      c.memory,
		encoding: enc,
		log:      log.WithField("width", len(patch)),
	}

	d := &Detour{rec: rec}
	d.cleanup = runtime.AddCleanup(d, (*patchRecord).abandon, rec)

	return d, nil
}

// padToBoundary extends patch with filler up to the end of the instruction
// it would otherwise split.
func padToBoundary(mem Memory, source uintptr, patch []byte, arch string) ([]byte, error) {
	code := make([]byte, len(patch)+maxInstLen)
	if err := mem.Read(source, code); err != nil {
		return nil, errors.Wrapf(ErrInvalidAddress, "read %#x: %v", source, err)
	}

	boundary, err := Boundary(code, arch, len(patch))
	if err != nil {
		return nil, err
	}

	for len(patch) < boundary {
		patch = append(patch, padByte(arch))
	}
	return patch, nil
}

// Enable installs the jump. It does nothing if the detour is already
// enabled. On error the source is left as it was.
func (d *Detour) Enable() error {
	return d.rec.toggle(true)
}

// Disable restores the original code. It does nothing if the detour is not
// enabled.
func (d *Detour) Disable() error {
	return d.rec.toggle(false)
}

// Close disables the detour and releases its range. After Close, Enable and
// Disable return ErrClosed. If the original code can't be restored the error
// is returned and the detour stays open.
func (d *Detour) Close() error {
	toggleMu.Lock()
	defer toggleMu.Unlock()

	if err := d.rec.close(); err != nil {
		return err
	}
	d.cleanup.Stop()
	return nil
}

// Enabled reports whether the jump is currently installed.
func (d *Detour) Enabled() bool {
	return d.rec.enabled.Load()
}

// Source returns the address being redirected.
func (d *Detour) Source() uintptr {
	return d.rec.source
}

// Target returns the address calls are redirected to.
func (d *Detour) Target() uintptr {
	return d.rec.target
}

// Encoding returns the encoding used for the jump.
func (d *Detour) Encoding() Encoding {
	return d.rec.encoding
}

// Original returns a copy of the bytes that were at the source when the
// detour was created.
func (d *Detour) Original() []byte {
	return append([]byte(nil), d.rec.original...)
}

// Patch returns a copy of the bytes written to the source when enabled.
func (d *Detour) Patch() []byte {
	return append([]byte(nil), d.rec.patch...)
}

// Dump returns a disassembly of the original and patched code.
func (d *Detour) Dump() string {
	r := d.rec
	arch := r.encoding.Arch()

	var b strings.Builder
	fmt.Fprintf(&b, "original:\n")
	if listing, err := Disassemble(r.original, r.source, arch); err == nil {
		b.WriteString(listing)
	}
	fmt.Fprintf(&b, "patch (%s):\n", r.encoding.Name())
	if listing, err := Disassemble(r.patch, r.source, arch); err == nil {
		b.WriteString(listing)
	}
	return b.String()
}

func (r *patchRecord) toggle(enable bool) error {
	toggleMu.Lock()
	defer toggleMu.Unlock()

	if r.closed {
		return errors.WithStack(ErrClosed)
	}
	if r.enabled.Load() == enable {
		return nil
	}

	code := r.original
	if enable {
		code = r.patch
	}

	written, err := r.write(code)
	if written {
		r.enabled.Store(enable)
	}
	if err != nil {
		return err
	}

	r.log.WithField("enabled", enable).Debug("detour toggled")
	return nil
}

// write copies code over the source. written reports whether the bytes were
// changed, which can be true even with an error if the protection couldn't be
// restored afterwards. Must be called with toggleMu held.
func (r *patchRecord) write(code []byte) (written bool, err error) {
	g, err := acquireGuard(r.mem, r.source, len(code))
	if err != nil {
		return false, err
	}

	if err := r.mem.Write(r.source, code); err != nil {
		g.release()
		return false, errors.Wrapf(err, "write %#x", r.source)
	}

	return true, g.release()
}

// close must be called with toggleMu held.
func (r *patchRecord) close() error {
	if r.closed {
		return nil
	}

	if r.enabled.Load() {
		written, err := r.write(r.original)
		if written {
			r.enabled.Store(false)
		}
		if err != nil {
			return err
		}
	}

	r.closed = true
	patches.unreserve(r.source)
	if re, ok := r.encoding.(ReleasingEncoding); ok {
		re.Release(r.source)
	}
	return nil
}

// abandon runs when a Detour is garbage collected without being closed.
// There is no caller to report to, so a failure is logged and the patch is
// left in place.
func (r *patchRecord) abandon() {
	toggleMu.Lock()
	defer toggleMu.Unlock()

	if err := r.close(); err != nil {
		r.log.WithError(err).Warn("unable to restore abandoned detour, leaving it in place")
	}
}
