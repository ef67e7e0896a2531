package detour

import (
	"encoding/binary"
)

const (
	// -----------------------------------
	// | 000101 | ... 26 bit address ... |
	// -----------------------------------
	_B = uint32(5 << 26)

	// LDR X16, #8
	_LDR_X16_8 = uint32(0x58000050)

	// BR X16
	_BR_X16 = uint32(0xd61f0200)

	// B encodes a signed 26-bit instruction offset.
	maxBranchDistance = 1 << 27
)

var (
	// Branch26 is the arm64 B instruction. It reaches ±128MiB.
	Branch26 Encoding = branch26{}

	// AbsArm64 loads the target from a literal following the code and
	// branches to it. X16 is the intra-procedure-call scratch register.
	AbsArm64 Encoding = absArm64{}
)

type branch26 struct{}

func (branch26) Name() string { return "branch26" }
func (branch26) Arch() string { return "arm64" }
func (branch26) Width() int   { return 4 }
func (branch26) Align() int   { return 4 }

func (e branch26) Encode(source, target uintptr) ([]byte, error) {
	offset := int64(target) - int64(source)
	if offset < -maxBranchDistance || offset >= maxBranchDistance || offset&3 != 0 {
		return nil, &RangeError{Encoding: e.Name(), Source: source, Target: target, Displacement: offset}
	}

	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, _B|(uint32(offset>>2)&(1<<26-1)))
	return buf, nil
}

type absArm64 struct{}

func (absArm64) Name() string { return "absarm64" }
func (absArm64) Arch() string { return "arm64" }
func (absArm64) Width() int   { return 16 }
func (absArm64) Align() int   { return 4 }

// Encode returns:
//
//	LDR X16, #8
//	BR X16
//	.quad target
func (absArm64) Encode(source, target uintptr) ([]byte, error) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf, _LDR_X16_8)
	binary.LittleEndian.PutUint32(buf[4:], _BR_X16)
	binary.LittleEndian.PutUint64(buf[8:], uint64(target))
	return buf, nil
}
