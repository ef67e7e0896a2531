package detour

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrInvalidAddress is returned for a zero, misaligned, unmapped or
	// non-executable source, or when source and target are the same.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrOutOfRange is returned when an encoding cannot reach the target
	// from the source.
	ErrOutOfRange = errors.New("encoding out of range")

	// ErrProtection is returned when the memory protection of the patched
	// range cannot be changed.
	ErrProtection = errors.New("memory protection failure")

	// ErrOverlap is returned when a patch would overlap a range that is
	// already reserved.
	ErrOverlap = errors.New("overlapping patch")

	// ErrClosed is returned by operations on a closed detour.
	ErrClosed = errors.New("detour is closed")

	// ErrInstructionBoundary is returned when the code at the source cannot
	// be decoded to find an instruction boundary.
	ErrInstructionBoundary = errors.New("unable to find instruction boundary")

	// ErrSignature is returned when two functions do not have matching
	// signatures.
	ErrSignature = errors.New("function signatures do not match")
)

// RangeError describes a displacement that does not fit an encoding.
type RangeError struct {
	Encoding     string
	Source       uintptr
	Target       uintptr
	Displacement int64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("%s: displacement %d from %#x to %#x: %v",
		e.Encoding, e.Displacement, e.Source, e.Target, ErrOutOfRange)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}
