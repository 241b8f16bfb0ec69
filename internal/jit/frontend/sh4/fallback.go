package sh4

import (
	"math"
	"runtime/cgo"

	"github.com/ebitengine/purego"

	"github.com/kamui-emu/kamui/internal/jit/guest"
)

// Interpreter fallbacks. One per opcode, sharing the table with the
// translators: emitted code calls the fallback's native entry point
// whenever an instruction has no translation (or was punted by one).
// Each fallback performs the instruction's full semantics, including
// the pc update and, for delayed branches, the delay slot.

// register registers the guest for native callbacks.
func (g *Guest) register() {
	if g.Data == 0 {
		g.Data = uintptr(cgo.NewHandle(g))
	}
}

func guestFromData(data uintptr) *Guest {
	return cgo.Handle(data).Value().(*Guest)
}

// entries caches the native entry point per descriptor.
var entries = map[*Desc]uintptr{}

// fallbackEntry returns the C-callable entry point for a descriptor's
// fallback, creating it on first use.
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

// execDelay interprets the delay slot of a branch at addr.
func execDelay(g *Guest, addr uint32) {
	raw := g.R16(g.Space, addr)
	if d := Disasm(raw); d != nil {
		d.Fallback(g, addr, uint32(raw))
	}
}

func sext8(v uint32) uint32  { return uint32(int32(int8(v))) }
func sext16(v uint32) uint32 { return uint32(int32(int16(v))) }

// next advances the pc past a non-branching instruction.
func next(g *Guest, addr uint32) {
	ctx(g.Ctx).setPC(addr + 2)
}

/*
 * data transfer
 */

func fbMOVI(g *Guest, addr, raw uint32) {
	ctx(g.Ctx).setReg(opRN(uint16(raw)), uint32(simm8(uint16(raw))))
	next(g, addr)
}

func fbMOVWLPC(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	ea := addr + 4 + opDisp8(op)*2
	ctx(g.Ctx).setReg(opRN(op), sext16(uint32(g.R16(g.Space, ea))))
	next(g, addr)
}

func fbMOVLLPC(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	ea := (addr+4)&^3 + opDisp8(op)*4
	ctx(g.Ctx).setReg(opRN(op), g.R32(g.Space, ea))
	next(g, addr)
}

func fbMOV(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRM(op)))
	next(g, addr)
}

func fbMOVBL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), sext8(uint32(g.R8(g.Space, c.reg(opRM(op))))))
	next(g, addr)
}

func fbMOVWL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), sext16(uint32(g.R16(g.Space, c.reg(opRM(op))))))
	next(g, addr)
}

func fbMOVLL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), g.R32(g.Space, c.reg(opRM(op))))
	next(g, addr)
}

func fbMOVBS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W8(g.Space, c.reg(opRN(op)), uint8(c.reg(opRM(op))))
	next(g, addr)
}

func fbMOVWS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W16(g.Space, c.reg(opRN(op)), uint16(c.reg(opRM(op))))
	next(g, addr)
}

func fbMOVLS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W32(g.Space, c.reg(opRN(op)), c.reg(opRM(op)))
	next(g, addr)
}

func fbMOVBP(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	v := sext8(uint32(g.R8(g.Space, c.reg(m))))
	c.setReg(m, c.reg(m)+1)
	c.setReg(n, v)
	next(g, addr)
}

func fbMOVWP(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	v := sext16(uint32(g.R16(g.Space, c.reg(m))))
	c.setReg(m, c.reg(m)+2)
	c.setReg(n, v)
	next(g, addr)
}

func fbMOVLP(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	v := g.R32(g.Space, c.reg(m))
	c.setReg(m, c.reg(m)+4)
	c.setReg(n, v)
	next(g, addr)
}

func fbMOVBM(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	ea := c.reg(n) - 1
	g.W8(g.Space, ea, uint8(c.reg(m)))
	c.setReg(n, ea)
	next(g, addr)
}

func fbMOVWM(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	ea := c.reg(n) - 2
	g.W16(g.Space, ea, uint16(c.reg(m)))
	c.setReg(n, ea)
	next(g, addr)
}

func fbMOVLM(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	ea := c.reg(n) - 4
	g.W32(g.Space, ea, c.reg(m))
	c.setReg(n, ea)
	next(g, addr)
}

func fbMOVBL4(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(0, sext8(uint32(g.R8(g.Space, c.reg(opRM(op))+opDisp4(op)))))
	next(g, addr)
}

func fbMOVWL4(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(0, sext16(uint32(g.R16(g.Space, c.reg(opRM(op))+opDisp4(op)*2))))
	next(g, addr)
}

func fbMOVLL4(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), g.R32(g.Space, c.reg(opRM(op))+opDisp4(op)*4))
	next(g, addr)
}

func fbMOVBS4(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W8(g.Space, c.reg(opRN(op))+opDisp4(op), uint8(c.reg(0)))
	next(g, addr)
}

func fbMOVWS4(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W16(g.Space, c.reg(opRN(op))+opDisp4(op)*2, uint16(c.reg(0)))
	next(g, addr)
}

func fbMOVLS4(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W32(g.Space, c.reg(opRN(op))+opDisp4(op)*4, c.reg(opRM(op)))
	next(g, addr)
}

func fbMOVBL0(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), sext8(uint32(g.R8(g.Space, c.reg(opRM(op))+c.reg(0)))))
	next(g, addr)
}

func fbMOVWL0(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), sext16(uint32(g.R16(g.Space, c.reg(opRM(op))+c.reg(0)))))
	next(g, addr)
}

func fbMOVLL0(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), g.R32(g.Space, c.reg(opRM(op))+c.reg(0)))
	next(g, addr)
}

func fbMOVBS0(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W8(g.Space, c.reg(opRN(op))+c.reg(0), uint8(c.reg(opRM(op))))
	next(g, addr)
}

func fbMOVWS0(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W16(g.Space, c.reg(opRN(op))+c.reg(0), uint16(c.reg(opRM(op))))
	next(g, addr)
}

func fbMOVLS0(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W32(g.Space, c.reg(opRN(op))+c.reg(0), c.reg(opRM(op)))
	next(g, addr)
}

func fbMOVBLG(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(0, sext8(uint32(g.R8(g.Space, c.u32(CtxGBR)+opDisp8(op)))))
	next(g, addr)
}

func fbMOVWLG(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(0, sext16(uint32(g.R16(g.Space, c.u32(CtxGBR)+opDisp8(op)*2))))
	next(g, addr)
}

func fbMOVLLG(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(0, g.R32(g.Space, c.u32(CtxGBR)+opDisp8(op)*4))
	next(g, addr)
}

func fbMOVBSG(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W8(g.Space, c.u32(CtxGBR)+opDisp8(op), uint8(c.reg(0)))
	next(g, addr)
}

func fbMOVWSG(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W16(g.Space, c.u32(CtxGBR)+opDisp8(op)*2, uint16(c.reg(0)))
	next(g, addr)
}

func fbMOVLSG(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W32(g.Space, c.u32(CtxGBR)+opDisp8(op)*4, c.reg(0))
	next(g, addr)
}

func fbMOVA(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	ctx(g.Ctx).setReg(0, (addr+4)&^3+opDisp8(op)*4)
	next(g, addr)
}

func fbMOVT(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.t())
	next(g, addr)
}

func fbSWAPB(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rm := c.reg(opRM(op))
	c.setReg(opRN(op), rm&0xffff0000|rm>>8&0xff|rm<<8&0xff00)
	next(g, addr)
}

func fbSWAPW(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rm := c.reg(opRM(op))
	c.setReg(opRN(op), rm>>16|rm<<16)
	next(g, addr)
}

func fbXTRCT(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRN(op))>>16|c.reg(opRM(op))<<16)
	next(g, addr)
}

/*
 * arithmetic
 */

func boolT(c ctx, v bool) {
	if v {
		c.setT(1)
	} else {
		c.setT(0)
	}
}

func fbADD(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRN(op))+c.reg(opRM(op)))
	next(g, addr)
}

func fbADDI(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRN(op))+uint32(simm8(op)))
	next(g, addr)
}

func fbADDC(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn, rm := c.reg(opRN(op)), c.reg(opRM(op))
	t1 := rn + rm
	sum := t1 + c.t()
	c.setReg(opRN(op), sum)
	boolT(c, t1 < rn || sum < t1)
	next(g, addr)
}

func fbADDV(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn, rm := int32(c.reg(opRN(op))), int32(c.reg(opRM(op)))
	sum := rn + rm
	c.setReg(opRN(op), uint32(sum))
	boolT(c, (rn >= 0) == (rm >= 0) && (sum >= 0) != (rn >= 0))
	next(g, addr)
}

func fbCMPEQI(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	boolT(c, int32(c.reg(0)) == simm8(op))
	next(g, addr)
}

func fbCMPEQ(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	boolT(c, c.reg(opRN(op)) == c.reg(opRM(op)))
	next(g, addr)
}

func fbCMPHS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	boolT(c, c.reg(opRN(op)) >= c.reg(opRM(op)))
	next(g, addr)
}

func fbCMPGE(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	boolT(c, int32(c.reg(opRN(op))) >= int32(c.reg(opRM(op))))
	next(g, addr)
}

func fbCMPHI(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	boolT(c, c.reg(opRN(op)) > c.reg(opRM(op)))
	next(g, addr)
}

func fbCMPGT(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	boolT(c, int32(c.reg(opRN(op))) > int32(c.reg(opRM(op))))
	next(g, addr)
}

func fbCMPPZ(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	boolT(c, int32(c.reg(opRN(uint16(raw)))) >= 0)
	next(g, addr)
}

func fbCMPPL(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	boolT(c, int32(c.reg(opRN(uint16(raw)))) > 0)
	next(g, addr)
}

func fbCMPSTR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	d := c.reg(opRN(op)) ^ c.reg(opRM(op))
	eq := d&0xff == 0 || d&0xff00 == 0 || d&0xff0000 == 0 || d&0xff000000 == 0
	boolT(c, eq)
	next(g, addr)
}

// getQ derives the divide-step Q bit from the packed q==m word.
func getQ(c ctx) uint32 {
	m := c.u32(CtxSRM) & 1
	if c.u32(CtxSRQM)>>31 != 0 {
		return m
	}
	return m ^ 1
}

func setQM(c ctx, q, m uint32) {
	c.setU32(CtxSRM, m)
	var qm uint32
	if q == m {
		qm = 1 << 31
	}
	c.setU32(CtxSRQM, qm)
}

func fbDIV0S(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	q := c.reg(opRN(op)) >> 31
	m := c.reg(opRM(op)) >> 31
	setQM(c, q, m)
	boolT(c, q != m)
	next(g, addr)
}

func fbDIV0U(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	setQM(c, 0, 0)
	c.setT(0)
	next(g, addr)
}

func fbDIV1(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	rn, rm := c.reg(n), c.reg(m)
	q := getQ(c)
	mbit := c.u32(CtxSRM) & 1

	oldQ := q
	q = rn >> 31
	rn = rn<<1 | c.t()

	tmp0 := rn
	if oldQ == mbit {
		rn -= rm
		if rn > tmp0 {
			q ^= 1
		}
	} else {
		rn += rm
		if rn < tmp0 {
			q ^= 1
		}
	}
	q ^= mbit

	c.setReg(n, rn)
	setQM(c, q, mbit)
	boolT(c, q == mbit)
	next(g, addr)
}

func fbDMULS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	prod := int64(int32(c.reg(opRN(op)))) * int64(int32(c.reg(opRM(op))))
	c.setU32(CtxMACH, uint32(uint64(prod)>>32))
	c.setU32(CtxMACL, uint32(uint64(prod)))
	next(g, addr)
}

func fbDMULU(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	prod := uint64(c.reg(opRN(op))) * uint64(c.reg(opRM(op)))
	c.setU32(CtxMACH, uint32(prod>>32))
	c.setU32(CtxMACL, uint32(prod))
	next(g, addr)
}

func fbDT(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	v := c.reg(opRN(op)) - 1
	c.setReg(opRN(op), v)
	boolT(c, v == 0)
	next(g, addr)
}

func fbEXTSB(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), sext8(c.reg(opRM(op))))
	next(g, addr)
}

func fbEXTSW(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), sext16(c.reg(opRM(op))))
	next(g, addr)
}

func fbEXTUB(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRM(op))&0xff)
	next(g, addr)
}

func fbEXTUW(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRM(op))&0xffff)
	next(g, addr)
}

func fbMACL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)

	a := int64(int32(g.R32(g.Space, c.reg(n))))
	c.setReg(n, c.reg(n)+4)
	b := int64(int32(g.R32(g.Space, c.reg(m))))
	c.setReg(m, c.reg(m)+4)

	mac := int64(uint64(c.u32(CtxMACH))<<32|uint64(c.u32(CtxMACL))) + a*b

	if c.u32(CtxSRS) != 0 {
		// saturate to 48 bits
		const hi = int64(0x00007fffffffffff)
		const lo = int64(-0x0000800000000000)
		if mac > hi {
			mac = hi
		} else if mac < lo {
			mac = lo
		}
	}

	c.setU32(CtxMACH, uint32(uint64(mac)>>32))
	c.setU32(CtxMACL, uint32(uint64(mac)))
	next(g, addr)
}

func fbMACW(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)

	a := int64(int16(g.R16(g.Space, c.reg(n))))
	c.setReg(n, c.reg(n)+2)
	b := int64(int16(g.R16(g.Space, c.reg(m))))
	c.setReg(m, c.reg(m)+2)

	if c.u32(CtxSRS) != 0 {
		// 32-bit saturating accumulate into macl, overflow flagged in mach
		sum := int64(int32(c.u32(CtxMACL))) + a*b
		if sum > math.MaxInt32 {
			sum = math.MaxInt32
			c.setU32(CtxMACH, 1)
		} else if sum < math.MinInt32 {
			sum = math.MinInt32
			c.setU32(CtxMACH, 1)
		}
		c.setU32(CtxMACL, uint32(sum))
	} else {
		mac := int64(uint64(c.u32(CtxMACH))<<32|uint64(c.u32(CtxMACL))) + a*b
		c.setU32(CtxMACH, uint32(uint64(mac)>>32))
		c.setU32(CtxMACL, uint32(uint64(mac)))
	}
	next(g, addr)
}

func fbMULL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setU32(CtxMACL, c.reg(opRN(op))*c.reg(opRM(op)))
	next(g, addr)
}

func fbMULS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setU32(CtxMACL, sext16(c.reg(opRN(op)))*sext16(c.reg(opRM(op))))
	next(g, addr)
}

func fbMULU(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setU32(CtxMACL, (c.reg(opRN(op))&0xffff)*(c.reg(opRM(op))&0xffff))
	next(g, addr)
}

func fbNEG(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), -c.reg(opRM(op)))
	next(g, addr)
}

func fbNEGC(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	tmp := -c.reg(opRM(op))
	r := tmp - c.t()
	c.setReg(opRN(op), r)
	boolT(c, tmp != 0 || tmp < c.t())
	next(g, addr)
}

func fbSUB(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRN(op))-c.reg(opRM(op)))
	next(g, addr)
}

func fbSUBC(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn, rm := c.reg(opRN(op)), c.reg(opRM(op))
	tmp := rn - rm
	r := tmp - c.t()
	c.setReg(opRN(op), r)
	boolT(c, rn < rm || tmp < c.t())
	next(g, addr)
}

func fbSUBV(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn, rm := int32(c.reg(opRN(op))), int32(c.reg(opRM(op)))
	diff := rn - rm
	c.setReg(opRN(op), uint32(diff))
	boolT(c, (rn >= 0) != (rm >= 0) && (diff >= 0) != (rn >= 0))
	next(g, addr)
}

/*
 * logic
 */

func fbAND(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRN(op))&c.reg(opRM(op)))
	next(g, addr)
}

func fbANDI(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(0, c.reg(0)&opImm8(uint16(raw)))
	next(g, addr)
}

func fbANDB(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	ea := c.u32(CtxGBR) + c.reg(0)
	g.W8(g.Space, ea, g.R8(g.Space, ea)&uint8(opImm8(op)))
	next(g, addr)
}

func fbNOT(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), ^c.reg(opRM(op)))
	next(g, addr)
}

func fbOR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRN(op))|c.reg(opRM(op)))
	next(g, addr)
}

func fbORI(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(0, c.reg(0)|opImm8(uint16(raw)))
	next(g, addr)
}

func fbORB(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	ea := c.u32(CtxGBR) + c.reg(0)
	g.W8(g.Space, ea, g.R8(g.Space, ea)|uint8(opImm8(op)))
	next(g, addr)
}

func fbTAS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	ea := c.reg(opRN(op))
	v := g.R8(g.Space, ea)
	boolT(c, v == 0)
	g.W8(g.Space, ea, v|0x80)
	next(g, addr)
}

func fbTST(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	boolT(c, c.reg(opRN(op))&c.reg(opRM(op)) == 0)
	next(g, addr)
}

func fbTSTI(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	boolT(c, c.reg(0)&opImm8(uint16(raw)) == 0)
	next(g, addr)
}

func fbTSTB(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	ea := c.u32(CtxGBR) + c.reg(0)
	boolT(c, uint32(g.R8(g.Space, ea))&opImm8(op) == 0)
	next(g, addr)
}

func fbXOR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), c.reg(opRN(op))^c.reg(opRM(op)))
	next(g, addr)
}

func fbXORI(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(0, c.reg(0)^opImm8(uint16(raw)))
	next(g, addr)
}

func fbXORB(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	ea := c.u32(CtxGBR) + c.reg(0)
	g.W8(g.Space, ea, g.R8(g.Space, ea)^uint8(opImm8(op)))
	next(g, addr)
}

/*
 * shifts
 */

func fbROTL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn := c.reg(opRN(op))
	c.setT(rn >> 31)
	c.setReg(opRN(op), rn<<1|rn>>31)
	next(g, addr)
}

func fbROTR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn := c.reg(opRN(op))
	c.setT(rn & 1)
	c.setReg(opRN(op), rn>>1|rn<<31)
	next(g, addr)
}

func fbROTCL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn := c.reg(opRN(op))
	t := rn >> 31
	c.setReg(opRN(op), rn<<1|c.t())
	c.setT(t)
	next(g, addr)
}

func fbROTCR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn := c.reg(opRN(op))
	t := rn & 1
	c.setReg(opRN(op), rn>>1|c.t()<<31)
	c.setT(t)
	next(g, addr)
}

// shiftDyn applies the shad/shld semantics: positive counts shift
// left, negative shift right by the negated count, with a count of
// -32 producing 0 (logical) or the sign fill (arithmetic).
func shiftDyn(v, n uint32, arith bool) uint32 {
	s := int32(n)
	switch {
	case s >= 0:
		return v << (s & 31)
	case s&31 == 0:
		if arith && int32(v) < 0 {
			return 0xffffffff
		}
		return 0
	case arith:
		return uint32(int32(v) >> ((-s) & 31))
	default:
		return v >> ((-s) & 31)
	}
}

func fbSHAD(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), shiftDyn(c.reg(opRN(op)), c.reg(opRM(op)), true))
	next(g, addr)
}

func fbSHLD(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setReg(opRN(op), shiftDyn(c.reg(opRN(op)), c.reg(opRM(op)), false))
	next(g, addr)
}

func fbSHAL(g *Guest, addr, raw uint32) { fbSHLL(g, addr, raw) }

func fbSHAR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn := c.reg(opRN(op))
	c.setT(rn & 1)
	c.setReg(opRN(op), uint32(int32(rn)>>1))
	next(g, addr)
}

func fbSHLL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn := c.reg(opRN(op))
	c.setT(rn >> 31)
	c.setReg(opRN(op), rn<<1)
	next(g, addr)
}

func fbSHLR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	rn := c.reg(opRN(op))
	c.setT(rn & 1)
	c.setReg(opRN(op), rn>>1)
	next(g, addr)
}

func fbShiftN(g *Guest, addr, raw uint32, left bool, n int) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	if left {
		c.setReg(opRN(op), c.reg(opRN(op))<<n)
	} else {
		c.setReg(opRN(op), c.reg(opRN(op))>>n)
	}
	next(g, addr)
}

func fbSHLL2(g *Guest, addr, raw uint32)  { fbShiftN(g, addr, raw, true, 2) }
func fbSHLR2(g *Guest, addr, raw uint32)  { fbShiftN(g, addr, raw, false, 2) }
func fbSHLL8(g *Guest, addr, raw uint32)  { fbShiftN(g, addr, raw, true, 8) }
func fbSHLR8(g *Guest, addr, raw uint32)  { fbShiftN(g, addr, raw, false, 8) }
func fbSHLL16(g *Guest, addr, raw uint32) { fbShiftN(g, addr, raw, true, 16) }
func fbSHLR16(g *Guest, addr, raw uint32) { fbShiftN(g, addr, raw, false, 16) }

/*
 * branches
 */

func fbBF(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	if c.t() == 0 {
		c.setPC(addr + 4 + uint32(simm8(op)*2))
	} else {
		c.setPC(addr + 2)
	}
}

func fbBFS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	taken := c.t() == 0
	execDelay(g, addr+2)
	if taken {
		c.setPC(addr + 4 + uint32(simm8(op)*2))
	} else {
		c.setPC(addr + 4)
	}
}

func fbBT(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	if c.t() != 0 {
		c.setPC(addr + 4 + uint32(simm8(op)*2))
	} else {
		c.setPC(addr + 2)
	}
}

func fbBTS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	taken := c.t() != 0
	execDelay(g, addr+2)
	if taken {
		c.setPC(addr + 4 + uint32(simm8(op)*2))
	} else {
		c.setPC(addr + 4)
	}
}

func fbBRA(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	execDelay(g, addr+2)
	c.setPC(addr + 4 + uint32(simm12(op)*2))
}

func fbBRAF(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	dest := c.reg(opRN(op)) + addr + 4
	execDelay(g, addr+2)
	c.setPC(dest)
}

func fbBSR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setU32(CtxPR, addr+4)
	execDelay(g, addr+2)
	c.setPC(addr + 4 + uint32(simm12(op)*2))
}

func fbBSRF(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	dest := c.reg(opRN(op)) + addr + 4
	c.setU32(CtxPR, addr+4)
	execDelay(g, addr+2)
	c.setPC(dest)
}

func fbJMP(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	dest := c.reg(opRN(op))
	execDelay(g, addr+2)
	c.setPC(dest)
}

func fbJSR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	dest := c.reg(opRN(op))
	c.setU32(CtxPR, addr+4)
	execDelay(g, addr+2)
	c.setPC(dest)
}

func fbRTS(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	dest := c.u32(CtxPR)
	execDelay(g, addr+2)
	c.setPC(dest)
}

func fbRTE(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	dest := c.u32(CtxSPC)
	g.storeSR(c.u32(CtxSSR))
	execDelay(g, addr+2)
	c.setPC(dest)
}

/*
 * system
 */

func fbCLRMAC(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxMACH, 0)
	c.setU32(CtxMACL, 0)
	next(g, addr)
}

func fbCLRS(g *Guest, addr, raw uint32) {
	ctx(g.Ctx).setU32(CtxSRS, 0)
	next(g, addr)
}

func fbCLRT(g *Guest, addr, raw uint32) {
	ctx(g.Ctx).setT(0)
	next(g, addr)
}

func fbSETS(g *Guest, addr, raw uint32) {
	ctx(g.Ctx).setU32(CtxSRS, 1)
	next(g, addr)
}

func fbSETT(g *Guest, addr, raw uint32) {
	ctx(g.Ctx).setT(1)
	next(g, addr)
}

func fbLDCSR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	g.storeSR(c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDCGBR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxGBR, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDCVBR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxVBR, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDCSSR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxSSR, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDCSPC(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxSPC, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDCDBR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxDBR, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDCRBANK(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	p := opRM(op) & 7
	c.setU32(CtxRALT+p*4, c.reg(opRN(op)))
	next(g, addr)
}

func fbLDCLGBR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	c.setU32(CtxGBR, g.R32(g.Space, c.reg(n)))
	c.setReg(n, c.reg(n)+4)
	next(g, addr)
}

func fbLDCLVBR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	c.setU32(CtxVBR, g.R32(g.Space, c.reg(n)))
	c.setReg(n, c.reg(n)+4)
	next(g, addr)
}

func fbLDSMACH(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxMACH, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDSMACL(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxMACL, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDSPR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxPR, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDSLPR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	c.setU32(CtxPR, g.R32(g.Space, c.reg(n)))
	c.setReg(n, c.reg(n)+4)
	next(g, addr)
}

func fbLDSFPSCR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	g.storeFPSCR(c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDSLFPSCR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	v := g.R32(g.Space, c.reg(n))
	c.setReg(n, c.reg(n)+4)
	g.storeFPSCR(v)
	next(g, addr)
}

func fbLDSFPUL(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxFPUL, c.reg(opRN(uint16(raw))))
	next(g, addr)
}

func fbLDSLFPUL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	c.setU32(CtxFPUL, g.R32(g.Space, c.reg(n)))
	c.setReg(n, c.reg(n)+4)
	next(g, addr)
}

func fbLDTLB(g *Guest, addr, raw uint32) {
	if g.LoadTLB != nil {
		g.LoadTLB()
	}
	next(g, addr)
}

func fbMOVCAL(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	g.W32(g.Space, c.reg(opRN(op)), c.reg(0))
	next(g, addr)
}

func fbNOP(g *Guest, addr, raw uint32) {
	next(g, addr)
}

func fbNOPAddr(g *Guest, addr, raw uint32) {
	next(g, addr)
}

func fbPREF(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	ea := c.reg(opRN(uint16(raw)))
	if g.Prefetch != nil && ea>>26 == 0x38 {
		// store queue window
		g.Prefetch(ea)
	}
	next(g, addr)
}

func fbSLEEP(g *Guest, addr, raw uint32) {
	if g.Sleep != nil {
		g.Sleep()
	}
	next(g, addr)
}

func fbSTCSR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), g.implodeSR())
	next(g, addr)
}

func fbSTCGBR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxGBR))
	next(g, addr)
}

func fbSTCVBR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxVBR))
	next(g, addr)
}

func fbSTCSSR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxSSR))
	next(g, addr)
}

func fbSTCSPC(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxSPC))
	next(g, addr)
}

func fbSTCSGR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxSGR))
	next(g, addr)
}

func fbSTCDBR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxDBR))
	next(g, addr)
}

func fbSTCL(g *Guest, addr, raw uint32, v uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	ea := c.reg(n) - 4
	g.W32(g.Space, ea, v)
	c.setReg(n, ea)
	next(g, addr)
}

func fbSTCLSR(g *Guest, addr, raw uint32) {
	fbSTCL(g, addr, raw, g.implodeSR())
}

func fbSTCLGBR(g *Guest, addr, raw uint32) {
	fbSTCL(g, addr, raw, ctx(g.Ctx).u32(CtxGBR))
}

func fbSTCLVBR(g *Guest, addr, raw uint32) {
	fbSTCL(g, addr, raw, ctx(g.Ctx).u32(CtxVBR))
}

func fbSTSMACH(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxMACH))
	next(g, addr)
}

func fbSTSMACL(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxMACL))
	next(g, addr)
}

func fbSTSPR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxPR))
	next(g, addr)
}

func fbSTSLPR(g *Guest, addr, raw uint32) {
	fbSTCL(g, addr, raw, ctx(g.Ctx).u32(CtxPR))
}

func fbSTSFPSCR(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxFPSCR))
	next(g, addr)
}

func fbSTSLFPSCR(g *Guest, addr, raw uint32) {
	fbSTCL(g, addr, raw, ctx(g.Ctx).u32(CtxFPSCR))
}

func fbSTSFPUL(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setReg(opRN(uint16(raw)), c.u32(CtxFPUL))
	next(g, addr)
}

func fbSTSLFPUL(g *Guest, addr, raw uint32) {
	fbSTCL(g, addr, raw, ctx(g.Ctx).u32(CtxFPUL))
}

func fbTRAPA(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxSSR, g.implodeSR())
	c.setU32(CtxSPC, addr+2)
	c.setU32(CtxSGR, c.reg(15))
	g.storeSR(g.implodeSR() | MDMask | RBMask | BLMask)
	c.setPC(c.u32(CtxVBR) + 0x100)
}

/*
 * fpu
 */

func f32bits(v float32) uint32 { return math.Float32bits(v) }
func f32from(v uint32) float32 { return math.Float32frombits(v) }
func f64from(v uint64) float64 { return math.Float64frombits(v) }

func fprDouble(c ctx) bool { return c.u32(CtxFPSCR)&PRMask != 0 }
func fprPair(c ctx) bool   { return c.u32(CtxFPSCR)&SZMask != 0 }

func fbFLDI0(g *Guest, addr, raw uint32) {
	ctx(g.Ctx).setFR(opRN(uint16(raw)), 0)
	next(g, addr)
}

func fbFLDI1(g *Guest, addr, raw uint32) {
	ctx(g.Ctx).setFR(opRN(uint16(raw)), f32bits(1))
	next(g, addr)
}

// pair64 reads the 64-bit fp register pair addressed by a 4-bit fmov
// operand: even encodings are dr pairs, odd encodings address the
// extended bank.
func pair64(c ctx, n int) uint64 {
	if n&1 != 0 {
		return c.u64(CtxXF + (n&^1)*4)
	}
	return c.dr(n)
}

func setPair64(c ctx, n int, v uint64) {
	if n&1 != 0 {
		c.setU64(CtxXF+(n&^1)*4, v)
	} else {
		c.setDR(n, v)
	}
}

func fbFMOV(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	if fprPair(c) {
		setPair64(c, n, pair64(c, m))
	} else {
		c.setFR(n, c.fr(m))
	}
	next(g, addr)
}

func fbFMOVLD(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	ea := c.reg(m)
	if fprPair(c) {
		setPair64(c, n, g.R64(g.Space, ea))
	} else {
		c.setFR(n, g.R32(g.Space, ea))
	}
	next(g, addr)
}

func fbFMOVST(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	ea := c.reg(n)
	if fprPair(c) {
		g.W64(g.Space, ea, pair64(c, m))
	} else {
		g.W32(g.Space, ea, c.fr(m))
	}
	next(g, addr)
}

func fbFMOVRS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	ea := c.reg(m)
	if fprPair(c) {
		setPair64(c, n, g.R64(g.Space, ea))
		c.setReg(m, ea+8)
	} else {
		c.setFR(n, g.R32(g.Space, ea))
		c.setReg(m, ea+4)
	}
	next(g, addr)
}

func fbFMOVSV(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	if fprPair(c) {
		ea := c.reg(n) - 8
		g.W64(g.Space, ea, pair64(c, m))
		c.setReg(n, ea)
	} else {
		ea := c.reg(n) - 4
		g.W32(g.Space, ea, c.fr(m))
		c.setReg(n, ea)
	}
	next(g, addr)
}

func fbFMOVIDX(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	ea := c.reg(m) + c.reg(0)
	if fprPair(c) {
		setPair64(c, n, g.R64(g.Space, ea))
	} else {
		c.setFR(n, g.R32(g.Space, ea))
	}
	next(g, addr)
}

func fbFMOVIDXST(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	ea := c.reg(n) + c.reg(0)
	if fprPair(c) {
		g.W64(g.Space, ea, pair64(c, m))
	} else {
		g.W32(g.Space, ea, c.fr(m))
	}
	next(g, addr)
}

func fbFBinary(g *Guest, addr, raw uint32,
	f32op func(a, b float32) float32, f64op func(a, b float64) float64) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	if fprDouble(c) {
		n, m = n&^1, m&^1
		r := f64op(f64from(c.dr(n)), f64from(c.dr(m)))
		c.setDR(n, math.Float64bits(r))
	} else {
		r := f32op(f32from(c.fr(n)), f32from(c.fr(m)))
		c.setFR(n, f32bits(r))
	}
	next(g, addr)
}

func fbFADD(g *Guest, addr, raw uint32) {
	fbFBinary(g, addr, raw,
		func(a, b float32) float32 { return a + b },
		func(a, b float64) float64 { return a + b })
}

func fbFSUB(g *Guest, addr, raw uint32) {
	fbFBinary(g, addr, raw,
		func(a, b float32) float32 { return a - b },
		func(a, b float64) float64 { return a - b })
}

func fbFMUL(g *Guest, addr, raw uint32) {
	fbFBinary(g, addr, raw,
		func(a, b float32) float32 { return a * b },
		func(a, b float64) float64 { return a * b })
}

func fbFDIV(g *Guest, addr, raw uint32) {
	fbFBinary(g, addr, raw,
		func(a, b float32) float32 { return a / b },
		func(a, b float64) float64 { return a / b })
}

func fbFCmp(g *Guest, addr, raw uint32, gt bool) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	var res bool
	if fprDouble(c) {
		a, b := f64from(c.dr(n&^1)), f64from(c.dr(m&^1))
		if gt {
			res = a > b
		} else {
			res = a == b
		}
	} else {
		a, b := f32from(c.fr(n)), f32from(c.fr(m))
		if gt {
			res = a > b
		} else {
			res = a == b
		}
	}
	boolT(c, res)
	next(g, addr)
}

func fbFCMPEQ(g *Guest, addr, raw uint32) { fbFCmp(g, addr, raw, false) }
func fbFCMPGT(g *Guest, addr, raw uint32) { fbFCmp(g, addr, raw, true) }

func fbFMAC(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n, m := opRN(op), opRM(op)
	r := f32from(c.fr(0))*f32from(c.fr(m)) + f32from(c.fr(n))
	c.setFR(n, f32bits(r))
	next(g, addr)
}

func fbFUnary(g *Guest, addr, raw uint32,
	f32op func(a float32) float32, f64op func(a float64) float64) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	if fprDouble(c) {
		n &^= 1
		c.setDR(n, math.Float64bits(f64op(f64from(c.dr(n)))))
	} else {
		c.setFR(n, f32bits(f32op(f32from(c.fr(n)))))
	}
	next(g, addr)
}

func fbFNEG(g *Guest, addr, raw uint32) {
	fbFUnary(g, addr, raw,
		func(a float32) float32 { return -a },
		func(a float64) float64 { return -a })
}

func fbFABS(g *Guest, addr, raw uint32) {
	fbFUnary(g, addr, raw,
		func(a float32) float32 { return float32(math.Abs(float64(a))) },
		math.Abs)
}

func fbFSQRT(g *Guest, addr, raw uint32) {
	fbFUnary(g, addr, raw,
		func(a float32) float32 { return float32(math.Sqrt(float64(a))) },
		math.Sqrt)
}

func fbFSRRA(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	c.setFR(n, f32bits(float32(1/math.Sqrt(float64(f32from(c.fr(n)))))))
	next(g, addr)
}

func fbFLDS(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setU32(CtxFPUL, c.fr(opRN(uint16(raw))))
	next(g, addr)
}

func fbFSTS(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	c.setFR(opRN(uint16(raw)), c.u32(CtxFPUL))
	next(g, addr)
}

func fbFLOAT(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	v := int32(c.u32(CtxFPUL))
	if fprDouble(c) {
		c.setDR(n&^1, math.Float64bits(float64(v)))
	} else {
		c.setFR(n, f32bits(float32(v)))
	}
	next(g, addr)
}

func fbFTRC(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := opRN(op)
	var v float64
	if fprDouble(c) {
		v = f64from(c.dr(n &^ 1))
	} else {
		v = float64(f32from(c.fr(n)))
	}
	switch {
	case v >= math.MaxInt32:
		c.setU32(CtxFPUL, math.MaxInt32)
	case v <= math.MinInt32:
		c.setU32(CtxFPUL, 0x80000000)
	default:
		c.setU32(CtxFPUL, uint32(int32(v)))
	}
	next(g, addr)
}

func fbFCNVDS(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setU32(CtxFPUL, f32bits(float32(f64from(c.dr(opRN(op)&^1)))))
	next(g, addr)
}

func fbFCNVSD(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	c.setDR(opRN(op)&^1, math.Float64bits(float64(f32from(c.u32(CtxFPUL)))))
	next(g, addr)
}

func fbFIPR(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := int(op>>8) & 0xc
	m := (int(op>>8) & 0x3) << 2
	var sum float32
	for i := 0; i < 4; i++ {
		sum += f32from(c.fr(n+i)) * f32from(c.fr(m+i))
	}
	c.setFR(n+3, f32bits(sum))
	next(g, addr)
}

func fbFTRV(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := (int(op>>8) & 0xc)
	var in, out [4]float32
	for i := 0; i < 4; i++ {
		in[i] = f32from(c.fr(n + i))
	}
	for row := 0; row < 4; row++ {
		var sum float32
		for col := 0; col < 4; col++ {
			sum += f32from(c.u32(CtxXF+((col*4+row)^1)*4)) * in[col]
		}
		out[row] = sum
	}
	for i := 0; i < 4; i++ {
		c.setFR(n+i, f32bits(out[i]))
	}
	next(g, addr)
}

func fbFSCA(g *Guest, addr, raw uint32) {
	op := uint16(raw)
	c := ctx(g.Ctx)
	n := (opRN(op) &^ 1)
	angle := float64(c.u32(CtxFPUL)&0xffff) * (2 * math.Pi / 65536)
	c.setFR(n, f32bits(float32(math.Sin(angle))))
	c.setFR(n+1, f32bits(float32(math.Cos(angle))))
	next(g, addr)
}

func fbFRCHG(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	g.storeFPSCR(c.u32(CtxFPSCR) ^ FRMask)
	next(g, addr)
}

func fbFSCHG(g *Guest, addr, raw uint32) {
	c := ctx(g.Ctx)
	g.storeFPSCR(c.u32(CtxFPSCR) ^ SZMask)
	next(g, addr)
}
