package ir

import "math"

// NoRegister means no host register has been allocated for a value.
const NoRegister = -1

// Value is either a constant or the result of exactly one instruction.
type Value struct {
	Type Type

	// bits holds the immediate for constants of the integer and float
	// types, zero-extended into 64 bits.
	bits uint64

	// blk holds the referenced block for TypeBlock constants.
	blk *Block

	// Def is the instruction defining this value, nil for constants.
	Def *Instr

	// uses are the argument slots currently reading this value.
	uses []*Use

	// Reg is the host register allocated for this value, NoRegister until
	// register allocation runs.
	Reg int

	// Tag is scratch state for the optimization passes.
	Tag int64
}

// IsConstant returns true if the value is a constant.
func (v *Value) IsConstant() bool {
	return v.Def == nil
}

// Uses returns the argument slots currently reading this value.
func (v *Value) Uses() []*Use {
	return v.uses
}

// I8 returns the constant as an int8.
func (v *Value) I8() int8 { return int8(v.bits) }

// I16 returns the constant as an int16.
func (v *Value) I16() int16 { return int16(v.bits) }

// I32 returns the constant as an int32.
func (v *Value) I32() int32 { return int32(v.bits) }

// I64 returns the constant as an int64.
func (v *Value) I64() int64 { return int64(v.bits) }

// F32 returns the constant as a float32.
func (v *Value) F32() float32 { return math.Float32frombits(uint32(v.bits)) }

// F64 returns the constant as a float64.
func (v *Value) F64() float64 { return math.Float64frombits(v.bits) }

// Blk returns the referenced block of a TypeBlock constant.
func (v *Value) Blk() *Block { return v.blk }

// Bits returns a constant's raw bits, useful for reencoding float
// immediates without a round trip through the host float type.
func (v *Value) Bits() uint64 {
	if !v.IsConstant() {
		panic("BUG: Bits on non-constant value")
	}
	return v.bits
}

// ZextConstant returns the constant bits zero-extended to 64 bits.
func (v *Value) ZextConstant() uint64 {
	if !v.IsConstant() {
		panic("BUG: ZextConstant on non-constant value")
	}
	switch v.Type {
	case TypeI8:
		return uint64(uint8(v.bits))
	case TypeI16:
		return uint64(uint16(v.bits))
	case TypeI32:
		return uint64(uint32(v.bits))
	case TypeI64:
		return v.bits
	default:
		panic("BUG: ZextConstant on non-integer value")
	}
}

// truncate masks bits down to the width of the type so that constants
// always hold their canonical zero-extended form.
func truncate(t Type, bits uint64) uint64 {
	switch t {
	case TypeI8:
		return uint64(uint8(bits))
	case TypeI16:
		return uint64(uint16(bits))
	case TypeI32, TypeF32:
		return uint64(uint32(bits))
	default:
		return bits
	}
}

// removeUse unregisters a use node from the value's use list.
func (v *Value) removeUse(u *Use) {
	for i, it := range v.uses {
		if it == u {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
	panic("BUG: use not found on value")
}
