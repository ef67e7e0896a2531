package detour

import (
	"runtime"
)

// Encoding turns a (source, target) pair into the bytes written over the
// start of source.
//
// An encoding only guarantees that its bytes transfer control to target. It
// does not know where the instructions at source begin and end; overwriting
// part of an instruction is safe only if no thread can be executing it.
// [WithBoundaryCheck] pads the patch out to the next instruction boundary.
type Encoding interface {
	// Name identifies the encoding in errors and logs.
	Name() string

	// Arch is the GOARCH whose instruction set the encoding produces.
	Arch() string

	// Width is the number of bytes Encode returns.
	Width() int

	// Align is the required alignment of source.
	Align() int

	// Encode returns the patch bytes. An error wrapping ErrOutOfRange is
	// returned when target cannot be reached from source.
	Encode(source, target uintptr) ([]byte, error)
}

// ReleasingEncoding is an Encoding that holds resources for each source it
// encodes, such as a relay stub. Release is called once the patch for source
// is no longer needed.
type ReleasingEncoding interface {
	Encoding
	Release(source uintptr)
}

// DefaultEncoding returns the shortest jump for the running architecture.
func DefaultEncoding() Encoding {
	switch runtime.GOARCH {
	case "arm64":
		return Branch26
	default:
		return Rel32
	}
}

// padByte is the filler written after a patch that ends inside an
// instruction.
func padByte(arch string) byte {
	switch arch {
	case "amd64", "386":
		return opcodeINT3
	default:
		return 0
	}
}
