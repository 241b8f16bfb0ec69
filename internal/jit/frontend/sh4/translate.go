package sh4

import "github.com/kamui-emu/kamui/internal/jit/ir"

// Per-opcode translators. Each emits the IR expansion of one guest
// instruction at the current insert point. Delayed instructions write
// the insert point for their delay slot through the delay argument.

func ldGPR(u *ir.IR, n int) *ir.Value    { return u.LoadContext(CtxR+n*4, ir.TypeI32) }
func stGPR(u *ir.IR, n int, v *ir.Value) { u.StoreContext(CtxR+n*4, v) }

func ldT(u *ir.IR) *ir.Value    { return u.LoadContext(CtxSRT, ir.TypeI32) }
func stT(u *ir.IR, v *ir.Value) { u.StoreContext(CtxSRT, v) }

// stTB stores an i8 comparison result into the T word.
func stTB(u *ir.IR, b *ir.Value) { stT(u, u.Zext(b, ir.TypeI32)) }

func ldFR(u *ir.IR, n int) *ir.Value    { return u.LoadContext(CtxFR+(n^1)*4, ir.TypeF32) }
func stFR(u *ir.IR, n int, v *ir.Value) { u.StoreContext(CtxFR+(n^1)*4, v) }

func ldDR(u *ir.IR, n int) *ir.Value    { return u.LoadContext(CtxFR+n*4, ir.TypeF64) }
func stDR(u *ir.IR, n int, v *ir.Value) { u.StoreContext(CtxFR+n*4, v) }

// loadMem reads guest memory and widens the result to 32 bits, signed.
func loadMem(u *ir.IR, addr *ir.Value, t ir.Type) *ir.Value {
	v := u.LoadGuest(addr, t)
	if t != ir.TypeI32 {
		v = u.Sext(v, ir.TypeI32)
	}
	return v
}

// storeMem narrows v and writes it to guest memory.
func storeMem(u *ir.IR, addr, v *ir.Value, t ir.Type) {
	if t != ir.TypeI32 {
		v = u.Trunc(v, t)
	}
	u.StoreGuest(addr, v)
}

// reFallback punts an instruction the translator chose not to inline
// (typically a double-precision specialization) to its fallback.
func reFallback(u *ir.IR, addr uint32, op uint16) {
	u.Fallback(fallbackEntry(Disasm(op)), addr, uint32(op))
}

/*
 * data transfer
 */

func trMOVI(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.AllocI32(simm8(op)))
}

func trMOVWLPC(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	ea := addr + 4 + opDisp8(op)*2
	stGPR(u, opRN(op), loadMem(u, u.AllocI32(int32(ea)), ir.TypeI16))
}

func trMOVLLPC(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	ea := (addr+4)&^3 + opDisp8(op)*4
	stGPR(u, opRN(op), loadMem(u, u.AllocI32(int32(ea)), ir.TypeI32))
}

func trMOV(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), ldGPR(u, opRM(op)))
}

func trMOVBL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), loadMem(u, ldGPR(u, opRM(op)), ir.TypeI8))
}

func trMOVWL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), loadMem(u, ldGPR(u, opRM(op)), ir.TypeI16))
}

func trMOVLL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), loadMem(u, ldGPR(u, opRM(op)), ir.TypeI32))
}

func trMOVBS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	storeMem(u, ldGPR(u, opRN(op)), ldGPR(u, opRM(op)), ir.TypeI8)
}

func trMOVWS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	storeMem(u, ldGPR(u, opRN(op)), ldGPR(u, opRM(op)), ir.TypeI16)
}

func trMOVLS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	storeMem(u, ldGPR(u, opRN(op)), ldGPR(u, opRM(op)), ir.TypeI32)
}

func trMOVP(g *Guest, u *ir.IR, op uint16, t ir.Type) {
	n, m := opRN(op), opRM(op)
	ea := ldGPR(u, m)
	v := loadMem(u, ea, t)
	// write the incremented pointer before the destination so the loaded
	// value wins when n == m
	stGPR(u, m, u.Add(ea, u.AllocI32(int32(t.Size()))))
	stGPR(u, n, v)
}

func trMOVBP(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVP(g, u, op, ir.TypeI8)
}

func trMOVWP(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVP(g, u, op, ir.TypeI16)
}

func trMOVLP(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVP(g, u, op, ir.TypeI32)
}

func trMOVM(g *Guest, u *ir.IR, op uint16, t ir.Type) {
	n, m := opRN(op), opRM(op)
	v := ldGPR(u, m)
	ea := u.Sub(ldGPR(u, n), u.AllocI32(int32(t.Size())))
	storeMem(u, ea, v, t)
	stGPR(u, n, ea)
}

func trMOVBM(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVM(g, u, op, ir.TypeI8)
}

func trMOVWM(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVM(g, u, op, ir.TypeI16)
}

func trMOVLM(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVM(g, u, op, ir.TypeI32)
}

func trMOVBL4(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	ea := u.Add(ldGPR(u, opRM(op)), u.AllocI32(int32(opDisp4(op))))
	stGPR(u, 0, loadMem(u, ea, ir.TypeI8))
}

func trMOVWL4(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	ea := u.Add(ldGPR(u, opRM(op)), u.AllocI32(int32(opDisp4(op)*2)))
	stGPR(u, 0, loadMem(u, ea, ir.TypeI16))
}

func trMOVLL4(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	ea := u.Add(ldGPR(u, opRM(op)), u.AllocI32(int32(opDisp4(op)*4)))
	stGPR(u, opRN(op), loadMem(u, ea, ir.TypeI32))
}

func trMOVBS4(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	ea := u.Add(ldGPR(u, opRN(op)), u.AllocI32(int32(opDisp4(op))))
	storeMem(u, ea, ldGPR(u, 0), ir.TypeI8)
}

func trMOVWS4(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	ea := u.Add(ldGPR(u, opRN(op)), u.AllocI32(int32(opDisp4(op)*2)))
	storeMem(u, ea, ldGPR(u, 0), ir.TypeI16)
}

func trMOVLS4(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	ea := u.Add(ldGPR(u, opRN(op)), u.AllocI32(int32(opDisp4(op)*4)))
	storeMem(u, ea, ldGPR(u, opRM(op)), ir.TypeI32)
}

func trMOVL0(g *Guest, u *ir.IR, op uint16, t ir.Type) {
	ea := u.Add(ldGPR(u, opRM(op)), ldGPR(u, 0))
	stGPR(u, opRN(op), loadMem(u, ea, t))
}

func trMOVBL0(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVL0(g, u, op, ir.TypeI8)
}

func trMOVWL0(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVL0(g, u, op, ir.TypeI16)
}

func trMOVLL0(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVL0(g, u, op, ir.TypeI32)
}

func trMOVS0(g *Guest, u *ir.IR, op uint16, t ir.Type) {
	ea := u.Add(ldGPR(u, opRN(op)), ldGPR(u, 0))
	storeMem(u, ea, ldGPR(u, opRM(op)), t)
}

func trMOVBS0(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVS0(g, u, op, ir.TypeI8)
}

func trMOVWS0(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVS0(g, u, op, ir.TypeI16)
}

func trMOVLS0(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trMOVS0(g, u, op, ir.TypeI32)
}

func trMOVA(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, 0, u.AllocI32(int32((addr+4)&^3+opDisp8(op)*4)))
}

func trMOVT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), ldT(u))
}

func trSWAPB(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rm := ldGPR(u, opRM(op))
	hi := u.And(rm, u.AllocI32(int32(-0x10000)))
	b0 := u.And(u.Lshri(rm, 8), u.AllocI32(0xff))
	b1 := u.Shli(u.And(rm, u.AllocI32(0xff)), 8)
	stGPR(u, opRN(op), u.Or(hi, u.Or(b0, b1)))
}

func trSWAPW(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rm := ldGPR(u, opRM(op))
	stGPR(u, opRN(op), u.Or(u.Lshri(rm, 16), u.Shli(rm, 16)))
}

func trXTRCT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rn := ldGPR(u, opRN(op))
	rm := ldGPR(u, opRM(op))
	stGPR(u, opRN(op), u.Or(u.Lshri(rn, 16), u.Shli(rm, 16)))
}

/*
 * arithmetic
 */

func trADD(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Add(ldGPR(u, opRN(op)), ldGPR(u, opRM(op))))
}

func trADDI(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Add(ldGPR(u, opRN(op)), u.AllocI32(simm8(op))))
}

func trADDC(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rn := ldGPR(u, opRN(op))
	rm := ldGPR(u, opRM(op))
	t1 := u.Add(rn, rm)
	c1 := u.CmpULT(t1, rn)
	sum := u.Add(t1, ldT(u))
	c2 := u.CmpULT(sum, t1)
	stGPR(u, opRN(op), sum)
	stTB(u, u.Or(c1, c2))
}

func trCMPEQI(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stTB(u, u.CmpEQ(ldGPR(u, 0), u.AllocI32(simm8(op))))
}

func trCMP(g *Guest, u *ir.IR, op uint16, cond ir.Cond) {
	stTB(u, u.Cmp(ldGPR(u, opRN(op)), ldGPR(u, opRM(op)), cond))
}

func trCMPEQ(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trCMP(g, u, op, ir.CondEQ)
}

func trCMPHS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trCMP(g, u, op, ir.CondUGE)
}

func trCMPGE(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trCMP(g, u, op, ir.CondSGE)
}

func trCMPHI(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trCMP(g, u, op, ir.CondUGT)
}

func trCMPGT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trCMP(g, u, op, ir.CondSGT)
}

func trCMPPZ(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stTB(u, u.CmpSGE(ldGPR(u, opRN(op)), u.AllocI32(0)))
}

func trCMPPL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stTB(u, u.CmpSGT(ldGPR(u, opRN(op)), u.AllocI32(0)))
}

func trDIV0U(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stT(u, u.AllocI32(0))
	u.StoreContext(CtxSRM, u.AllocI32(0))
	u.StoreContext(CtxSRQM, u.AllocI32(int32(-0x80000000)))
}

func trDT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	v := u.Sub(ldGPR(u, opRN(op)), u.AllocI32(1))
	stGPR(u, opRN(op), v)
	stTB(u, u.CmpEQ(v, u.AllocI32(0)))
}

func trEXTSB(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Sext(u.Trunc(ldGPR(u, opRM(op)), ir.TypeI8), ir.TypeI32))
}

func trEXTSW(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Sext(u.Trunc(ldGPR(u, opRM(op)), ir.TypeI16), ir.TypeI32))
}

func trEXTUB(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.And(ldGPR(u, opRM(op)), u.AllocI32(0xff)))
}

func trEXTUW(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.And(ldGPR(u, opRM(op)), u.AllocI32(0xffff)))
}

func trMULL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxMACL, u.Smul(ldGPR(u, opRN(op)), ldGPR(u, opRM(op))))
}

func trMULS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	n := u.Sext(u.Trunc(ldGPR(u, opRN(op)), ir.TypeI16), ir.TypeI32)
	m := u.Sext(u.Trunc(ldGPR(u, opRM(op)), ir.TypeI16), ir.TypeI32)
	u.StoreContext(CtxMACL, u.Smul(n, m))
}

func trMULU(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	n := u.And(ldGPR(u, opRN(op)), u.AllocI32(0xffff))
	m := u.And(ldGPR(u, opRM(op)), u.AllocI32(0xffff))
	u.StoreContext(CtxMACL, u.Umul(n, m))
}

func trNEG(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Neg(ldGPR(u, opRM(op))))
}

func trSUB(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Sub(ldGPR(u, opRN(op)), ldGPR(u, opRM(op))))
}

/*
 * logic
 */

func trAND(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.And(ldGPR(u, opRN(op)), ldGPR(u, opRM(op))))
}

func trANDI(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, 0, u.And(ldGPR(u, 0), u.AllocI32(int32(opImm8(op)))))
}

func trNOT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Not(ldGPR(u, opRM(op))))
}

func trOR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Or(ldGPR(u, opRN(op)), ldGPR(u, opRM(op))))
}

func trORI(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, 0, u.Or(ldGPR(u, 0), u.AllocI32(int32(opImm8(op)))))
}

func trTST(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	v := u.And(ldGPR(u, opRN(op)), ldGPR(u, opRM(op)))
	stTB(u, u.CmpEQ(v, u.AllocI32(0)))
}

func trTSTI(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	v := u.And(ldGPR(u, 0), u.AllocI32(int32(opImm8(op))))
	stTB(u, u.CmpEQ(v, u.AllocI32(0)))
}

func trXOR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Xor(ldGPR(u, opRN(op)), ldGPR(u, opRM(op))))
}

func trXORI(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, 0, u.Xor(ldGPR(u, 0), u.AllocI32(int32(opImm8(op)))))
}

/*
 * shifts
 */

func trROTL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rn := ldGPR(u, opRN(op))
	msb := u.Lshri(rn, 31)
	stT(u, msb)
	stGPR(u, opRN(op), u.Or(u.Shli(rn, 1), msb))
}

func trROTR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rn := ldGPR(u, opRN(op))
	lsb := u.And(rn, u.AllocI32(1))
	stT(u, lsb)
	stGPR(u, opRN(op), u.Or(u.Lshri(rn, 1), u.Shli(lsb, 31)))
}

func trSHAD(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Ashd(ldGPR(u, opRN(op)), ldGPR(u, opRM(op))))
}

func trSHLD(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.Lshd(ldGPR(u, opRN(op)), ldGPR(u, opRM(op))))
}

func trSHAL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trSHLL(g, u, addr, op, flags, delay)
}

func trSHAR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rn := ldGPR(u, opRN(op))
	stT(u, u.And(rn, u.AllocI32(1)))
	stGPR(u, opRN(op), u.Ashri(rn, 1))
}

func trSHLL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rn := ldGPR(u, opRN(op))
	stT(u, u.Lshri(rn, 31))
	stGPR(u, opRN(op), u.Shli(rn, 1))
}

func trSHLR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	rn := ldGPR(u, opRN(op))
	stT(u, u.And(rn, u.AllocI32(1)))
	stGPR(u, opRN(op), u.Lshri(rn, 1))
}

func trSHLLN(g *Guest, u *ir.IR, op uint16, n int) {
	stGPR(u, opRN(op), u.Shli(ldGPR(u, opRN(op)), n))
}

func trSHLRN(g *Guest, u *ir.IR, op uint16, n int) {
	stGPR(u, opRN(op), u.Lshri(ldGPR(u, opRN(op)), n))
}

func trSHLL2(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trSHLLN(g, u, op, 2)
}

func trSHLR2(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trSHLRN(g, u, op, 2)
}

func trSHLL8(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trSHLLN(g, u, op, 8)
}

func trSHLR8(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trSHLRN(g, u, op, 8)
}

func trSHLL16(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trSHLLN(g, u, op, 16)
}

func trSHLR16(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trSHLRN(g, u, op, 16)
}

/*
 * branches. a delayed branch reads its operands, records the delay
 * slot's insert point, and only then stores the new pc: the slot's
 * side effects land in between.
 */

func trBF(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := addr + 4 + uint32(simm8(op)*2)
	cond := ldT(u)
	u.BranchFalse(cond, u.AllocI32(int32(dest)))
	u.Branch(u.AllocI32(int32(addr + 2)))
}

func trBT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := addr + 4 + uint32(simm8(op)*2)
	cond := ldT(u)
	u.BranchTrue(cond, u.AllocI32(int32(dest)))
	u.Branch(u.AllocI32(int32(addr + 2)))
}

func trBFS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := addr + 4 + uint32(simm8(op)*2)
	cond := ldT(u)
	*delay = u.GetInsertPoint()
	u.BranchFalse(cond, u.AllocI32(int32(dest)))
	u.Branch(u.AllocI32(int32(addr + 4)))
}

func trBTS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := addr + 4 + uint32(simm8(op)*2)
	cond := ldT(u)
	*delay = u.GetInsertPoint()
	u.BranchTrue(cond, u.AllocI32(int32(dest)))
	u.Branch(u.AllocI32(int32(addr + 4)))
}

func trBRA(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := addr + 4 + uint32(simm12(op)*2)
	*delay = u.GetInsertPoint()
	u.Branch(u.AllocI32(int32(dest)))
}

func trBRAF(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := u.Add(ldGPR(u, opRN(op)), u.AllocI32(int32(addr+4)))
	*delay = u.GetInsertPoint()
	u.Branch(dest)
}

func trBSR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := addr + 4 + uint32(simm12(op)*2)
	u.StoreContext(CtxPR, u.AllocI32(int32(addr+4)))
	*delay = u.GetInsertPoint()
	u.Branch(u.AllocI32(int32(dest)))
}

func trBSRF(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := u.Add(ldGPR(u, opRN(op)), u.AllocI32(int32(addr+4)))
	u.StoreContext(CtxPR, u.AllocI32(int32(addr+4)))
	*delay = u.GetInsertPoint()
	u.Branch(dest)
}

func trJMP(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := ldGPR(u, opRN(op))
	*delay = u.GetInsertPoint()
	u.Branch(dest)
}

func trJSR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := ldGPR(u, opRN(op))
	u.StoreContext(CtxPR, u.AllocI32(int32(addr+4)))
	*delay = u.GetInsertPoint()
	u.Branch(dest)
}

func trRTS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	dest := u.LoadContext(CtxPR, ir.TypeI32)
	*delay = u.GetInsertPoint()
	u.Branch(dest)
}

/*
 * system
 */

func trCLRMAC(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxMACH, u.AllocI32(0))
	u.StoreContext(CtxMACL, u.AllocI32(0))
}

func trCLRS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxSRS, u.AllocI32(0))
}

func trCLRT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stT(u, u.AllocI32(0))
}

func trSETS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxSRS, u.AllocI32(1))
}

func trSETT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stT(u, u.AllocI32(1))
}

// emitLoadSR rebuilds the full sr from the split context words.
func emitLoadSR(u *ir.IR) *ir.Value {
	sr := u.LoadContext(CtxSR, ir.TypeI32)
	sr = u.And(sr, u.AllocI32(int32(^uint32(MMask|QMask|SMask|TMask))))
	sr = u.Or(sr, ldT(u))
	sr = u.Or(sr, u.Shli(u.LoadContext(CtxSRS, ir.TypeI32), SBit))
	m := u.LoadContext(CtxSRM, ir.TypeI32)
	sr = u.Or(sr, u.Shli(m, MBit))
	qm := u.Lshri(u.LoadContext(CtxSRQM, ir.TypeI32), 31)
	q := u.Zext(u.CmpEQ(qm, m), ir.TypeI32)
	return u.Or(sr, u.Shli(q, QBit))
}

// emitStoreSR splits a full sr value into the context words and
// notifies the guest, which may swap register banks.
func emitStoreSR(g *Guest, u *ir.IR, v *ir.Value) {
	v = u.And(v, u.AllocI32(int32(SRMask)))

	old := emitLoadSR(u)
	u.StoreContext(CtxSR, v)
	stT(u, u.And(v, u.AllocI32(TMask)))
	u.StoreContext(CtxSRS, u.Lshri(u.And(v, u.AllocI32(SMask)), SBit))
	m := u.Lshri(u.And(v, u.AllocI32(MMask)), MBit)
	u.StoreContext(CtxSRM, m)
	q := u.Lshri(u.And(v, u.AllocI32(QMask)), QBit)
	qm := u.Shli(u.Zext(u.CmpEQ(q, m), ir.TypeI32), 31)
	u.StoreContext(CtxSRQM, qm)

	if g.SRUpdatedEntry != 0 {
		u.Call(u.AllocPtr(g.SRUpdatedEntry), u.AllocPtr(g.Data), old)
	}
}

func trLDCSR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	emitStoreSR(g, u, ldGPR(u, opRN(op)))
}

func trLDCGBR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxGBR, ldGPR(u, opRN(op)))
}

func trLDCVBR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxVBR, ldGPR(u, opRN(op)))
}

func trLDSMACH(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxMACH, ldGPR(u, opRN(op)))
}

func trLDSMACL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxMACL, ldGPR(u, opRN(op)))
}

func trLDSPR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxPR, ldGPR(u, opRN(op)))
}

func trLDSLPR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	n := opRN(op)
	ea := ldGPR(u, n)
	u.StoreContext(CtxPR, loadMem(u, ea, ir.TypeI32))
	stGPR(u, n, u.Add(ea, u.AllocI32(4)))
}

// emitStoreFPSCR replaces fpscr and notifies the guest, which may swap
// FPU banks.
func emitStoreFPSCR(g *Guest, u *ir.IR, v *ir.Value) {
	old := u.LoadContext(CtxFPSCR, ir.TypeI32)
	u.StoreContext(CtxFPSCR, u.And(v, u.AllocI32(FPSCRMask)))
	if g.FPSCRUpdatedEntry != 0 {
		u.Call(u.AllocPtr(g.FPSCRUpdatedEntry), u.AllocPtr(g.Data), old)
	}
}

func trLDSFPSCR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	emitStoreFPSCR(g, u, ldGPR(u, opRN(op)))
}

func trLDSFPUL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxFPUL, ldGPR(u, opRN(op)))
}

func trSTCGBR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.LoadContext(CtxGBR, ir.TypeI32))
}

func trSTCVBR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.LoadContext(CtxVBR, ir.TypeI32))
}

func trSTSMACH(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.LoadContext(CtxMACH, ir.TypeI32))
}

func trSTSMACL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.LoadContext(CtxMACL, ir.TypeI32))
}

func trSTSPR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.LoadContext(CtxPR, ir.TypeI32))
}

func trSTSLPR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	n := opRN(op)
	ea := u.Sub(ldGPR(u, n), u.AllocI32(4))
	storeMem(u, ea, u.LoadContext(CtxPR, ir.TypeI32), ir.TypeI32)
	stGPR(u, n, ea)
}

func trSTSFPSCR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.LoadContext(CtxFPSCR, ir.TypeI32))
}

func trSTSFPUL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stGPR(u, opRN(op), u.LoadContext(CtxFPUL, ir.TypeI32))
}

func trNOP(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
}

// cache maintenance has no observable effect on the memory model here
func trNOPAddr(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
}

/*
 * fpu. translations specialize on the compile-time fpscr precision and
 * size bits; odd register encodings under double precision fall back.
 */

func trFLDI0(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stFR(u, opRN(op), u.AllocF32(0))
}

func trFLDI1(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	stFR(u, opRN(op), u.AllocF32(1))
}

func trFMOV(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoubleSZ != 0 {
		reFallback(u, addr, op)
		return
	}
	stFR(u, opRN(op), ldFR(u, opRM(op)))
}

func trFMOVLD(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoubleSZ != 0 {
		reFallback(u, addr, op)
		return
	}
	v := u.LoadGuest(ldGPR(u, opRM(op)), ir.TypeI32)
	u.StoreContext(CtxFR+(opRN(op)^1)*4, v)
}

func trFMOVST(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoubleSZ != 0 {
		reFallback(u, addr, op)
		return
	}
	v := u.LoadContext(CtxFR+(opRM(op)^1)*4, ir.TypeI32)
	u.StoreGuest(ldGPR(u, opRN(op)), v)
}

func trFMOVRS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoubleSZ != 0 {
		reFallback(u, addr, op)
		return
	}
	m := opRM(op)
	ea := ldGPR(u, m)
	v := u.LoadGuest(ea, ir.TypeI32)
	stGPR(u, m, u.Add(ea, u.AllocI32(4)))
	u.StoreContext(CtxFR+(opRN(op)^1)*4, v)
}

func trFMOVSV(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoubleSZ != 0 {
		reFallback(u, addr, op)
		return
	}
	n := opRN(op)
	v := u.LoadContext(CtxFR+(opRM(op)^1)*4, ir.TypeI32)
	ea := u.Sub(ldGPR(u, n), u.AllocI32(4))
	u.StoreGuest(ea, v)
	stGPR(u, n, ea)
}

func trFMOVIDX(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoubleSZ != 0 {
		reFallback(u, addr, op)
		return
	}
	ea := u.Add(ldGPR(u, opRM(op)), ldGPR(u, 0))
	u.StoreContext(CtxFR+(opRN(op)^1)*4, u.LoadGuest(ea, ir.TypeI32))
}

func trFMOVIDXST(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoubleSZ != 0 {
		reFallback(u, addr, op)
		return
	}
	ea := u.Add(ldGPR(u, opRN(op)), ldGPR(u, 0))
	u.StoreGuest(ea, u.LoadContext(CtxFR+(opRM(op)^1)*4, ir.TypeI32))
}

func trFBinary(g *Guest, u *ir.IR, addr uint32, op uint16, flags int,
	emit func(a, b *ir.Value) *ir.Value) {
	n, m := opRN(op), opRM(op)
	if flags&DoublePR != 0 {
		if (n|m)&1 != 0 {
			reFallback(u, addr, op)
			return
		}
		stDR(u, n, emit(ldDR(u, n), ldDR(u, m)))
		return
	}
	stFR(u, n, emit(ldFR(u, n), ldFR(u, m)))
}

func trFADD(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFBinary(g, u, addr, op, flags, u.Fadd)
}

func trFSUB(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFBinary(g, u, addr, op, flags, u.Fsub)
}

func trFMUL(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFBinary(g, u, addr, op, flags, u.Fmul)
}

func trFDIV(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFBinary(g, u, addr, op, flags, u.Fdiv)
}

func trFCmp(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, cond ir.FCond) {
	n, m := opRN(op), opRM(op)
	if flags&DoublePR != 0 {
		if (n|m)&1 != 0 {
			reFallback(u, addr, op)
			return
		}
		stTB(u, u.Fcmp(ldDR(u, n), ldDR(u, m), cond))
		return
	}
	stTB(u, u.Fcmp(ldFR(u, n), ldFR(u, m), cond))
}

func trFCMPEQ(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFCmp(g, u, addr, op, flags, ir.FCondEQ)
}

func trFCMPGT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFCmp(g, u, addr, op, flags, ir.FCondGT)
}

func trFMAC(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoublePR != 0 {
		reFallback(u, addr, op)
		return
	}
	n, m := opRN(op), opRM(op)
	v := u.Fadd(u.Fmul(ldFR(u, 0), ldFR(u, m)), ldFR(u, n))
	stFR(u, n, v)
}

func trFUnary(g *Guest, u *ir.IR, addr uint32, op uint16, flags int,
	emit func(a *ir.Value) *ir.Value) {
	n := opRN(op)
	if flags&DoublePR != 0 {
		if n&1 != 0 {
			reFallback(u, addr, op)
			return
		}
		stDR(u, n, emit(ldDR(u, n)))
		return
	}
	stFR(u, n, emit(ldFR(u, n)))
}

func trFNEG(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFUnary(g, u, addr, op, flags, u.Fneg)
}

func trFABS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFUnary(g, u, addr, op, flags, u.Fabs)
}

func trFSQRT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	trFUnary(g, u, addr, op, flags, u.Sqrt)
}

func trFLDS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxFPUL, u.LoadContext(CtxFR+(opRN(op)^1)*4, ir.TypeI32))
}

func trFSTS(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	u.StoreContext(CtxFR+(opRN(op)^1)*4, u.LoadContext(CtxFPUL, ir.TypeI32))
}

func trFLOAT(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	n := opRN(op)
	fpul := u.LoadContext(CtxFPUL, ir.TypeI32)
	if flags&DoublePR != 0 {
		if n&1 != 0 {
			reFallback(u, addr, op)
			return
		}
		stDR(u, n, u.Itof(fpul, ir.TypeF64))
		return
	}
	stFR(u, n, u.Itof(fpul, ir.TypeF32))
}

func trFTRC(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	n := opRN(op)
	if flags&DoublePR != 0 {
		if n&1 != 0 {
			reFallback(u, addr, op)
			return
		}
		u.StoreContext(CtxFPUL, u.Ftoi(ldDR(u, n), ir.TypeI32))
		return
	}
	u.StoreContext(CtxFPUL, u.Ftoi(ldFR(u, n), ir.TypeI32))
}

func trFIPR(g *Guest, u *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint) {
	if flags&DoublePR != 0 {
		reFallback(u, addr, op)
		return
	}
	// fv registers are four-lane groups; the pair swizzle applies
	// identically to both operands, so the dot product is unaffected
	n := (int(op>>8) & 0xc)
	m := (int(op>>8) & 0x3) << 2
	a := u.LoadContext(CtxFR+n*4, ir.TypeV128)
	b := u.LoadContext(CtxFR+m*4, ir.TypeV128)
	stFR(u, n+3, u.Vdot(a, b))
}
