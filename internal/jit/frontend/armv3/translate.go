package armv3

import "github.com/kamui-emu/kamui/internal/jit/ir"

// Translators for the unconditional forms of the hot instruction
// classes. Anything predicated, flag-setting, or shifter-heavy runs
// through the fallback instead.

// data processing sub-opcodes
const (
	dpAND = iota
	dpEOR
	dpSUB
	dpRSB
	dpADD
	dpADC
	dpSBC
	dpRSC
	dpTST
	dpTEQ
	dpCMP
	dpCMN
	dpORR
	dpMOV
	dpBIC
	dpMVN
)

// ror rotates v right by n bits.
func ror(v uint32, n uint) uint32 {
	n &= 31
	return v>>n | v<<(32-n)
}

// ldReg reads a register operand; r15 reads as the fetch address plus
// eight.
func ldReg(u *ir.IR, addr uint32, n int) *ir.Value {
	if n == 15 {
		return u.AllocI32(int32(addr + 8))
	}
	return u.LoadContext(CtxR+n*4, ir.TypeI32)
}

func stReg(u *ir.IR, n int, v *ir.Value) {
	u.StoreContext(CtxR+n*4, v)
}

func trB(g *Guest, u *ir.IR, addr uint32, op uint32) {
	offset := int32(op<<8) >> 6 // sign-extended 24-bit offset, times 4
	dest := addr + 8 + uint32(offset)
	u.StoreContext(CtxR+15*4, u.AllocI32(int32(dest)))
	u.Branch(u.AllocI32(int32(dest)))
}

func trBL(g *Guest, u *ir.IR, addr uint32, op uint32) {
	stReg(u, 14, u.AllocI32(int32(addr+4)))
	trB(g, u, addr, op)
}

// trData handles register-operand (immediate shift of zero) and
// rotated-immediate forms with the S bit clear; everything else is
// punted to the fallback.
func trData(g *Guest, u *ir.IR, addr uint32, op uint32) {
	sbit := op&(1<<20) != 0
	rd := opRD32(op)
	code := int(op>>21) & 0xf

	// comparisons require flags and a flag-setting data op requires the
	// barrel shifter's carry; interpret those
	if sbit || rd == 15 {
		u.Fallback(fallbackEntry(Disasm(op)), addr, op)
		return
	}

	var op2 *ir.Value
	if op&(1<<25) != 0 {
		imm := ror(op&0xff, uint(op>>8&0xf)*2)
		op2 = u.AllocI32(int32(imm))
	} else {
		// register operand, only the no-op shift is inlined
		if op>>4&0xff != 0 {
			u.Fallback(fallbackEntry(Disasm(op)), addr, op)
			return
		}
		op2 = ldReg(u, addr, opRM32(op))
	}

	rn := func() *ir.Value { return ldReg(u, addr, opRN32(op)) }

	switch code {
	case dpAND:
		stReg(u, rd, u.And(rn(), op2))
	case dpEOR:
		stReg(u, rd, u.Xor(rn(), op2))
	case dpSUB:
		stReg(u, rd, u.Sub(rn(), op2))
	case dpRSB:
		stReg(u, rd, u.Sub(op2, rn()))
	case dpADD:
		stReg(u, rd, u.Add(rn(), op2))
	case dpORR:
		stReg(u, rd, u.Or(rn(), op2))
	case dpMOV:
		stReg(u, rd, op2)
	case dpBIC:
		stReg(u, rd, u.And(rn(), u.Not(op2)))
	case dpMVN:
		stReg(u, rd, u.Not(op2))
	default:
		// adc/sbc/rsc need the carry, tst/teq/cmp/cmn only set flags
		u.Fallback(fallbackEntry(Disasm(op)), addr, op)
	}
}

// trXfr handles ldr/str with an immediate offset, pre-indexed without
// writeback or post-indexed, for word and byte widths.
func trXfr(g *Guest, u *ir.IR, addr uint32, op uint32) {
	pre := op&(1<<24) != 0
	up := op&(1<<23) != 0
	byteWide := op&(1<<22) != 0
	writeback := op&(1<<21) != 0
	load := op&(1<<20) != 0
	rn, rd := opRN32(op), opRD32(op)
	imm := int32(op & 0xfff)

	if rd == 15 || rn == 15 || (pre && writeback) || (!pre && writeback) {
		u.Fallback(fallbackEntry(Disasm(op)), addr, op)
		return
	}

	base := ldReg(u, addr, rn)
	if !up {
		imm = -imm
	}

	ea := base
	if pre && imm != 0 {
		ea = u.Add(base, u.AllocI32(imm))
	}

	t := ir.TypeI32
	if byteWide {
		t = ir.TypeI8
	}

	if load {
		v := u.LoadGuest(ea, t)
		if byteWide {
			v = u.Zext(v, ir.TypeI32)
		}
		stReg(u, rd, v)
	} else {
		v := ldReg(u, addr, rd)
		if byteWide {
			v = u.Trunc(v, ir.TypeI8)
		}
		u.StoreGuest(ea, v)
	}

	if !pre {
		stReg(u, rn, u.Add(base, u.AllocI32(imm)))
	}
}
