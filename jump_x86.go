package detour

import (
	"encoding/binary"
	"math"
	"runtime"
)

const (
	opcodeINT3   = 0xcc
	opcodeJMP    = 0xe9 // JMP rel32
	opcodeJMPabs = 0xff // JMP r/m64

	rel32Width = 5  // 1 byte opcode + 4 byte displacement
	abs64Width = 14 // 6 byte JMP [RIP+0] + 8 byte address
)

var (
	// Rel32 is the x86 near jump, E9 followed by a 32-bit displacement from
	// the end of the instruction.
	Rel32 Encoding = rel32{}

	// Abs64 is an x86-64 jump through an address stored immediately after
	// the instruction. It reaches any target and clobbers no register.
	Abs64 Encoding = abs64{}
)

type rel32 struct{}

func (rel32) Name() string { return "rel32" }

func (rel32) Arch() string {
	if runtime.GOARCH == "386" {
		return "386"
	}
	return "amd64"
}

func (rel32) Width() int { return rel32Width }
func (rel32) Align() int { return 1 }

func (e rel32) Encode(source, target uintptr) ([]byte, error) {
	// The displacement is relative to the next instruction.
	disp := int64(target) - int64(source) - rel32Width
	if disp < math.MinInt32 || disp > math.MaxInt32 {
		return nil, &RangeError{Encoding: e.Name(), Source: source, Target: target, Displacement: disp}
	}

	buf := make([]byte, rel32Width)
	buf[0] = opcodeJMP
	binary.LittleEndian.PutUint32(buf[1:], uint32(int32(disp)))
	return buf, nil
}

type abs64 struct{}

func (abs64) Name() string { return "abs64" }
func (abs64) Arch() string { return "amd64" }
func (abs64) Width() int   { return abs64Width }
func (abs64) Align() int   { return 1 }

// Encode returns:
//
//	JMP [RIP+0]
//	.quad target
func (abs64) Encode(source, target uintptr) ([]byte, error) {
	buf := make([]byte, abs64Width)
	buf[0] = opcodeJMPabs
	buf[1] = 0x25 // ModRM: mod=00 reg=4 (JMP) rm=101 (RIP+disp32)
	// buf[2:6] is the zero displacement.
	binary.LittleEndian.PutUint64(buf[6:], uint64(target))
	return buf, nil
}
