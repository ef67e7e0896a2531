package detour

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// maxInstLen is the longest x86 instruction. Reading this many bytes past a
// patch is always enough to find the boundary after it.
const maxInstLen = 15

// Boundary returns the offset of the first instruction boundary in code at or
// after width. code must start on an instruction boundary.
func Boundary(code []byte, arch string, width int) (int, error) {
	switch arch {
	case "amd64", "386":
		mode := 64
		if arch == "386" {
			mode = 32
		}

		off := 0
		for off < width {
			if off >= len(code) {
				return 0, errors.Wrapf(ErrInstructionBoundary, "ran out of code at offset %d", off)
			}
			inst, err := x86asm.Decode(code[off:], mode)
			if err != nil {
				return 0, errors.Wrapf(ErrInstructionBoundary, "decode error at offset %d: %v", off, err)
			}
			// Prefixes with nothing after them decode as Op 0.
			if inst.Op == 0 {
				return 0, errors.Wrapf(ErrInstructionBoundary, "incomplete instruction at offset %d", off)
			}
			off += inst.Len
		}
		return off, nil

	case "arm64":
		// Fixed width instructions.
		return (width + 3) &^ 3, nil
	}

	return 0, errors.Wrapf(ErrInstructionBoundary, "unsupported architecture %q", arch)
}

// Disassemble returns a listing of code as if it were located at addr. Bytes
// that don't decode are shown as "?".
func Disassemble(code []byte, addr uintptr, arch string) (string, error) {
	var buf bytes.Buffer

	switch arch {
	case "amd64", "386":
		mode := 64
		if arch == "386" {
			mode = 32
		}

		for i := 0; i < len(code); {
			instruction, err := x86asm.Decode(code[i:], mode)
			if err != nil {
				fmt.Fprintf(&buf, "0x%08x\t%-20s\t?\n", addr+uintptr(i), hex.EncodeToString(code[i:i+1]))
				i++
				continue
			}
			fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", addr+uintptr(i), hex.EncodeToString(code[i:i+instruction.Len]), instruction.String())

			i += instruction.Len
		}

	case "arm64":
		for i := 0; i < len(code)&^3; i += 4 {
			var asm string
			instruction, err := arm64asm.Decode(code[i:])
			if err == nil {
				asm = instruction.String()
			} else {
				asm = "?"
			}
			fmt.Fprintf(&buf, "0x%08x\t%-20s\t%s\n", addr+uintptr(i), hex.EncodeToString(code[i:i+4]), asm)
		}

	default:
		return "", errors.Errorf("unsupported architecture %q", arch)
	}

	return buf.String(), nil
}
