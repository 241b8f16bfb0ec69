package armv3

import (
	"math/bits"

	"github.com/ebitengine/purego"

	"github.com/kamui-emu/kamui/internal/jit/guest"
)

// Interpreter fallbacks, one per instruction class. They evaluate the
// condition field themselves, so the translator can punt any
// predicated instruction here wholesale.

var entries = map[*Desc]uintptr{}

func fallbackEntry(d *Desc) uintptr {
	if entry, ok := entries[d]; ok {
		return entry
	}

	fb := d.Fallback
	goFn := func(data uintptr, addr, raw uint32) {
		fb(guestFromData(data), addr, raw)
	}
	entry := purego.NewCallback(func(data uintptr, addr, raw uint32) uintptr {
		goFn(data, addr, raw)
		return 0
	})

	entries[d] = entry
	guest.RegisterFallback(entry, goFn)
	return entry
}

func next(g *Guest, addr uint32) {
	ctx(g.Ctx).setPC(addr + 4)
}

// condPassed evaluates the instruction's condition field.
func condPassed(c ctx, op uint32) bool {
	cpsr := c.cpsr()
	n := cpsr&NMask != 0
	z := cpsr&ZMask != 0
	cf := cpsr&CMask != 0
	v := cpsr&VMask != 0

	switch opCond(op) {
	case CondEQ:
		return z
	case CondNE:
		return !z
	case CondCS:
		return cf
	case CondCC:
		return !cf
	case CondMI:
		return n
	case CondPL:
		return !n
	case CondVS:
		return v
	case CondVC:
		return !v
	case CondHI:
		return cf && !z
	case CondLS:
		return !cf || z
	case CondGE:
		return n == v
	case CondLT:
		return n != v
	case CondGT:
		return !z && n == v
	case CondLE:
		return z || n != v
	case CondAL:
		return true
	default:
		return false
	}
}

// rd reads a register, r15 reading as the fetch address plus eight.
func rd(c ctx, addr uint32, n int) uint32 {
	if n == 15 {
		return addr + 8
	}
	return c.reg(n)
}

func setNZ(c ctx, v uint32) {
	cpsr := c.cpsr() &^ uint32(NMask|ZMask)
	if v == 0 {
		cpsr |= ZMask
	}
	cpsr |= v & NMask
	c.setCPSR(cpsr)
}

func setC(c ctx, carry bool) {
	if carry {
		c.setCPSR(c.cpsr() | CMask)
	} else {
		c.setCPSR(c.cpsr() &^ uint32(CMask))
	}
}

func setV(c ctx, overflow bool) {
	if overflow {
		c.setCPSR(c.cpsr() | VMask)
	} else {
		c.setCPSR(c.cpsr() &^ uint32(VMask))
	}
}

// shifter computes the data processing operand two and its carry-out.
func shifter(c ctx, addr uint32, op uint32) (uint32, bool) {
	carry := c.cpsr()&CMask != 0

	// rotated immediate
	if op&(1<<25) != 0 {
		rot := uint(op>>8&0xf) * 2
		v := ror(op&0xff, rot)
		if rot != 0 {
			carry = v&NMask != 0
		}
		return v, carry
	}

	v := rd(c, addr, opRM32(op))
	kind := op >> 5 & 3

	var amount uint32
	if op&(1<<4) != 0 {
		// shift by register; r15 reads four bytes further along
		if opRM32(op) == 15 {
			v += 4
		}
		amount = c.reg(opRS32(op)) & 0xff
		if amount == 0 {
			return v, carry
		}
	} else {
		amount = op >> 7 & 0x1f
		if amount == 0 {
			// shift-by-zero encodes special forms
			switch kind {
			case 0:
				return v, carry
			case 1, 2: // lsr #32, asr #32
				amount = 32
			case 3: // rrx
				out := v&1 != 0
				v = v>>1 | boolBit(carry)<<31
				return v, out
			}
		}
	}

	switch kind {
	case 0: // lsl
		if amount > 32 {
			return 0, false
		}
		if amount == 32 {
			return 0, v&1 != 0
		}
		return v << amount, v&(1<<(32-amount)) != 0
	case 1: // lsr
		if amount > 32 {
			return 0, false
		}
		if amount == 32 {
			return 0, v&NMask != 0
		}
		return v >> amount, v&(1<<(amount-1)) != 0
	case 2: // asr
		if amount >= 32 {
			s := uint32(int32(v) >> 31)
			return s, s != 0
		}
		return uint32(int32(v) >> amount), v&(1<<(amount-1)) != 0
	default: // ror
		amount &= 31
		if amount == 0 {
			return v, v&NMask != 0
		}
		v = ror(v, uint(amount))
		return v, v&NMask != 0
	}
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// restoreCPSR copies spsr back into cpsr, switching modes. Used by
// flag-setting data ops with rd == 15.
func restoreCPSR(g *Guest) {
	c := ctx(g.Ctx)
	spsr := c.u32(CtxSPSR)
	g.switchMode(spsr & ModeMask)
	c.setCPSR(spsr)
}

func fbData(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	code := int(raw>>21) & 0xf
	sbit := raw&(1<<20) != 0
	rdest := opRD32(raw)
	op1 := rd(c, addr, opRN32(raw))
	op2, shiftCarry := shifter(c, addr, raw)
	carryIn := boolBit(c.cpsr()&CMask != 0)

	var res uint32
	wrote := true
	logical := false

	switch code {
	case dpAND:
		res = op1 & op2
		logical = true
	case dpEOR:
		res = op1 ^ op2
		logical = true
	case dpSUB:
		res = op1 - op2
		if sbit {
			setC(c, op1 >= op2)
			setV(c, (op1^op2)&(op1^res)&NMask != 0)
		}
	case dpRSB:
		res = op2 - op1
		if sbit {
			setC(c, op2 >= op1)
			setV(c, (op2^op1)&(op2^res)&NMask != 0)
		}
	case dpADD:
		res = op1 + op2
		if sbit {
			setC(c, res < op1)
			setV(c, ^(op1^op2)&(op1^res)&NMask != 0)
		}
	case dpADC:
		res = op1 + op2 + carryIn
		if sbit {
			setC(c, uint64(op1)+uint64(op2)+uint64(carryIn) > 0xffffffff)
			setV(c, ^(op1^op2)&(op1^res)&NMask != 0)
		}
	case dpSBC:
		res = op1 - op2 - (1 - carryIn)
		if sbit {
			setC(c, uint64(op1) >= uint64(op2)+uint64(1-carryIn))
			setV(c, (op1^op2)&(op1^res)&NMask != 0)
		}
	case dpRSC:
		res = op2 - op1 - (1 - carryIn)
		if sbit {
			setC(c, uint64(op2) >= uint64(op1)+uint64(1-carryIn))
			setV(c, (op2^op1)&(op2^res)&NMask != 0)
		}
	case dpTST:
		res = op1 & op2
		wrote = false
		logical = true
	case dpTEQ:
		res = op1 ^ op2
		wrote = false
		logical = true
	case dpCMP:
		res = op1 - op2
		wrote = false
		setC(c, op1 >= op2)
		setV(c, (op1^op2)&(op1^res)&NMask != 0)
	case dpCMN:
		res = op1 + op2
		wrote = false
		setC(c, res < op1)
		setV(c, ^(op1^op2)&(op1^res)&NMask != 0)
	case dpORR:
		res = op1 | op2
		logical = true
	case dpMOV:
		res = op2
		logical = true
	case dpBIC:
		res = op1 &^ op2
		logical = true
	case dpMVN:
		res = ^op2
		logical = true
	}

	if sbit || !wrote {
		setNZ(c, res)
		if logical {
			setC(c, shiftCarry)
		}
	}

	if wrote {
		if rdest == 15 {
			if sbit {
				restoreCPSR(g)
			}
			c.setPC(res)
			return
		}
		c.setReg(rdest, res)
	}
	next(g, addr)
}

func fbMUL(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	// mul/mla encode rd in bits 19..16
	rdest := opRN32(raw)
	res := c.reg(opRM32(raw)) * c.reg(opRS32(raw))
	if raw&(1<<21) != 0 {
		res += c.reg(opRD32(raw))
	}
	c.setReg(rdest, res)
	if raw&(1<<20) != 0 {
		setNZ(c, res)
	}
	next(g, addr)
}

func fbMULL(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	rdHi := opRN32(raw)
	rdLo := opRD32(raw)
	signed := raw&(1<<22) != 0
	acc := raw&(1<<21) != 0

	var hi, lo uint32
	if signed {
		prod := int64(int32(c.reg(opRM32(raw)))) * int64(int32(c.reg(opRS32(raw))))
		hi, lo = uint32(uint64(prod)>>32), uint32(uint64(prod))
	} else {
		hi, lo = bits.Mul32(c.reg(opRM32(raw)), c.reg(opRS32(raw)))
	}
	if acc {
		var carry uint32
		lo, carry = bits.Add32(lo, c.reg(rdLo), 0)
		hi, _ = bits.Add32(hi, c.reg(rdHi), carry)
	}
	c.setReg(rdLo, lo)
	c.setReg(rdHi, hi)
	if raw&(1<<20) != 0 {
		cpsr := c.cpsr() &^ uint32(NMask|ZMask)
		if hi == 0 && lo == 0 {
			cpsr |= ZMask
		}
		cpsr |= hi & NMask
		c.setCPSR(cpsr)
	}
	next(g, addr)
}

func fbSWP(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	ea := c.reg(opRN32(raw))
	src := c.reg(opRM32(raw))
	if raw&(1<<22) != 0 {
		old := uint32(g.R8(g.Space, ea))
		g.W8(g.Space, ea, uint8(src))
		c.setReg(opRD32(raw), old)
	} else {
		old := g.R32(g.Space, ea)
		g.W32(g.Space, ea, src)
		c.setReg(opRD32(raw), old)
	}
	next(g, addr)
}

func fbMRS(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	if raw&(1<<22) != 0 {
		c.setReg(opRD32(raw), c.u32(CtxSPSR))
	} else {
		c.setReg(opRD32(raw), c.cpsr())
	}
	next(g, addr)
}

func fbMSR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	var v uint32
	if raw&(1<<25) != 0 {
		v = ror(raw&0xff, uint(raw>>8&0xf)*2)
	} else {
		v = c.reg(opRM32(raw))
	}

	// field mask: flags always writable, control bits only outside usr
	var mask uint32
	if raw&(1<<19) != 0 {
		mask |= 0xf0000000
	}
	if raw&(1<<16) != 0 && c.cpsr()&ModeMask != ModeUsr {
		mask |= 0xff
	}

	if raw&(1<<22) != 0 {
		c.setU32(CtxSPSR, c.u32(CtxSPSR)&^mask|v&mask)
	} else {
		newCPSR := c.cpsr()&^mask | v&mask
		if newMode := newCPSR & ModeMask; newMode != c.cpsr()&ModeMask {
			g.switchMode(newMode)
		}
		c.setCPSR(c.cpsr()&^mask | v&mask)
	}
	next(g, addr)
}

func fbXfr(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	pre := raw&(1<<24) != 0
	up := raw&(1<<23) != 0
	byteWide := raw&(1<<22) != 0
	writeback := raw&(1<<21) != 0
	load := raw&(1<<20) != 0
	rn, rdest := opRN32(raw), opRD32(raw)

	var offset uint32
	if raw&(1<<25) != 0 {
		offset, _ = shifter(c, addr, raw&^(1<<25))
	} else {
		offset = raw & 0xfff
	}
	if !up {
		offset = -offset
	}

	base := rd(c, addr, rn)
	ea := base
	if pre {
		ea += offset
	}

	if load {
		var v uint32
		if byteWide {
			v = uint32(g.R8(g.Space, ea))
		} else {
			v = g.R32(g.Space, ea)
		}
		if !pre || writeback {
			c.setReg(rn, base+offset)
		}
		if rdest == 15 {
			c.setPC(v)
			return
		}
		c.setReg(rdest, v)
	} else {
		v := rd(c, addr, rdest)
		if rdest == 15 {
			v += 4 // stored pc reads ahead a further word
		}
		if byteWide {
			g.W8(g.Space, ea, uint8(v))
		} else {
			g.W32(g.Space, ea, v)
		}
		if !pre || writeback {
			c.setReg(rn, base+offset)
		}
	}
	next(g, addr)
}

func fbBlk(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	pre := raw&(1<<24) != 0
	up := raw&(1<<23) != 0
	writeback := raw&(1<<21) != 0
	load := raw&(1<<20) != 0
	rn := opRN32(raw)
	rlist := raw & 0xffff

	count := uint32(bits.OnesCount32(rlist))
	base := c.reg(rn)

	// normalize to an ascending walk from the lowest address
	ea := base
	if !up {
		ea -= count * 4
	}
	wb := ea
	if up {
		wb = base + count*4
	}
	if pre == up {
		ea += 4
	}

	loadedPC := false
	for i := 0; i < 16; i++ {
		if rlist&(1<<i) == 0 {
			continue
		}
		if load {
			v := g.R32(g.Space, ea)
			if i == 15 {
				c.setPC(v)
				loadedPC = true
			} else {
				c.setReg(i, v)
			}
		} else {
			v := c.reg(i)
			if i == 15 {
				v = addr + 12
			}
			g.W32(g.Space, ea, v)
		}
		ea += 4
	}

	if writeback {
		c.setReg(rn, wb)
	}
	if !loadedPC {
		next(g, addr)
	}
}

func fbB(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	if raw&(1<<24) != 0 {
		c.setReg(14, addr+4)
	}
	offset := int32(raw<<8) >> 6
	c.setPC(addr + 8 + uint32(offset))
}

func fbSWI(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	if !condPassed(c, raw) {
		next(g, addr)
		return
	}

	if g.SoftwareInterrupt != nil {
		g.SoftwareInterrupt()
		next(g, addr)
		return
	}
	g.exception(ModeSvc, 0x08, addr+4)
}
