package x64

import (
	"github.com/kamui-emu/kamui/internal/jit/backend"
	"github.com/kamui-emu/kamui/internal/jit/ir"
)

// emitter assembles one unit. Register operands come pre-assigned by
// register allocation; constants are encoded as immediates or
// materialized into the reserved scratch registers rax/rcx/rdx and
// xmm0/xmm1.
type emitter struct {
	backend *Backend
	asm     *Asm
	fastmem bool
	cb      backend.EmitCallback

	blockOffsets map[*ir.Block]int
	fixups       []blockFixup
}

type blockFixup struct {
	fix    int
	target *ir.Block
}

// emitterDefs is the per-op descriptor table. Every op shares the
// dispatching Emit below; the result flags tell register allocation
// which ops are two-operand and want their result in arg0's register.
var emitterDefs = func() []backend.EmitterDef {
	defs := make([]backend.EmitterDef, ir.NumOps)
	emit := func(ctx interface{}, instr *ir.Instr) {
		ctx.(*emitter).emitInstr(instr)
	}
	for op := range defs {
		defs[op].Emit = emit
	}
	for _, op := range []ir.Op{
		ir.OpAdd, ir.OpSub, ir.OpAnd, ir.OpOr, ir.OpXor,
		ir.OpNeg, ir.OpNot, ir.OpAbs,
		ir.OpShl, ir.OpAshr, ir.OpLshr, ir.OpAshd, ir.OpLshd,
		ir.OpFadd, ir.OpFsub, ir.OpFmul, ir.OpFdiv,
		ir.OpFneg, ir.OpFabs,
		ir.OpVadd, ir.OpVmul, ir.OpVbroadcast,
	} {
		defs[op].ResFlags |= backend.ReuseArg0
	}
	return defs
}()

func hwInt(v *ir.Value) int { return regEnc[v.Reg] }
func hwXmm(v *ir.Value) int { return regEnc[v.Reg] }

func wide(v *ir.Value) bool { return v.Type == ir.TypeI64 }

func (e *emitter) emit(unit *ir.IR) error {
	g := e.backend.guest
	a := e.asm

	e.blockOffsets = map[*ir.Block]int{}
	e.fixups = e.fixups[:0]

	// total the unit's cycle and instruction counts off the markers
	totalCycles, totalInstrs := 0, 0
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			if instr.Op == ir.OpSourceInfo {
				totalCycles += int(instr.Arg(1).I32())
				totalInstrs++
			}
		}
	}

	// prologue: yield when the budget is spent, service pending
	// interrupts, then charge the whole block up front
	a.CmpMemImm(guestCtxReg, int32(g.OffsetCycles), 0)
	a.JccAddr(ccLE, e.backend.dispatchExit)
	a.CmpMemImm(guestCtxReg, int32(g.OffsetInterrupts), 0)
	a.JccAddr(ccNE, e.backend.dispatchInterrupt)
	a.SubMemImm(guestCtxReg, int32(g.OffsetCycles), uint32(totalCycles))
	a.AddMemImm(guestCtxReg, int32(g.OffsetInstrs), uint32(totalInstrs))

	for block := unit.Blocks(); block != nil; block = block.Next() {
		e.blockOffsets[block] = a.Len()
		if e.cb != nil {
			e.cb(backend.EmitBlock, blockGuestAddr(block), a.Addr())
		}
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			emitterDefs[instr.Op].Emit(e, instr)
		}
	}

	for _, f := range e.fixups {
		target, ok := e.blockOffsets[f.target]
		if !ok {
			panic("BUG: branch to unknown block")
		}
		if !a.Overflowed() {
			a.PatchTo(f.fix, target)
		}
	}

	if a.Overflowed() {
		return ErrCodeBufferFull
	}
	return nil
}

// blockGuestAddr digs the first guest marker out of a block.
func blockGuestAddr(block *ir.Block) uint32 {
	for instr := block.Head(); instr != nil; instr = instr.Next() {
		if instr.Op == ir.OpSourceInfo {
			return uint32(instr.Arg(0).I32())
		}
	}
	return 0
}

// intOperand materializes an integer operand into a register,
// borrowing scratch for constants.
func (e *emitter) intOperand(v *ir.Value, scratch int) int {
	if !v.IsConstant() {
		return hwInt(v)
	}
	if v.Type == ir.TypeI64 {
		e.asm.MovRegImm64(scratch, uint64(v.I64()))
	} else {
		e.asm.MovRegImm32(scratch, uint32(v.ZextConstant()))
	}
	return scratch
}

// xmmOperand materializes a float operand, borrowing scratch for
// constants via rax.
func (e *emitter) xmmOperand(v *ir.Value, scratch int) int {
	if !v.IsConstant() {
		return hwXmm(v)
	}
	double := v.Type == ir.TypeF64
	if double {
		e.asm.MovRegImm64(rax, uint64(v.Bits()))
	} else {
		e.asm.MovRegImm32(rax, uint32(v.Bits()))
	}
	e.asm.MovdXmmReg(double, scratch, rax)
	return scratch
}

// loadInt makes dst hold the value of v.
func (e *emitter) loadInt(dst int, v *ir.Value) {
	if v.IsConstant() {
		if v.Type == ir.TypeI64 {
			e.asm.MovRegImm64(dst, uint64(v.I64()))
		} else {
			e.asm.MovRegImm32(dst, uint32(v.ZextConstant()))
		}
		return
	}
	if hwInt(v) != dst {
		e.asm.MovRegReg(true, dst, hwInt(v))
	}
}

// binaryInt emits a two-operand alu op, honoring the reuse-arg0
// convention: the result register is loaded with arg0 first.
func (e *emitter) binaryInt(i *ir.Instr,
	rr func(w bool, dst, src int), ri func(w bool, dst int, imm uint32)) {
	a := e.asm
	dst := hwInt(i.Result)
	w := wide(i.Result)
	a0, a1 := i.Arg(0), i.Arg(1)

	// arg1 living in the destination register needs rescuing before
	// dst is overwritten with arg0
	if !a1.IsConstant() && hwInt(a1) == dst &&
		(a0.IsConstant() || hwInt(a0) != dst) {
		a.MovRegReg(true, rax, dst)
		e.loadInt(dst, a0)
		rr(w, dst, rax)
		return
	}

	e.loadInt(dst, a0)
	if a1.IsConstant() && a1.Type != ir.TypeI64 {
		ri(w, dst, uint32(a1.ZextConstant()))
	} else {
		rr(w, dst, e.intOperand(a1, rax))
	}
}

// binaryFloat emits a two-operand sse op with the same reuse
// convention.
func (e *emitter) binaryFloat(i *ir.Instr, op func(double bool, dst, src int)) {
	a := e.asm
	dst := hwXmm(i.Result)
	double := i.Result.Type == ir.TypeF64
	a0, a1 := i.Arg(0), i.Arg(1)

	if !a1.IsConstant() && hwXmm(a1) == dst &&
		(a0.IsConstant() || hwXmm(a0) != dst) {
		a.MovssRegReg(double, 0, dst) // xmm0 scratch
		e.loadFloat(dst, a0)
		op(double, dst, 0)
		return
	}

	e.loadFloat(dst, a0)
	op(double, dst, e.xmmOperand(a1, 0))
}

func (e *emitter) loadFloat(dst int, v *ir.Value) {
	if v.IsConstant() {
		double := v.Type == ir.TypeF64
		if double {
			e.asm.MovRegImm64(rax, v.Bits())
		} else {
			e.asm.MovRegImm32(rax, uint32(v.Bits()))
		}
		e.asm.MovdXmmReg(double, dst, rax)
		return
	}
	if hwXmm(v) != dst {
		if v.Type == ir.TypeV128 {
			e.asm.MovapsRegReg(dst, hwXmm(v))
		} else {
			e.asm.MovssRegReg(v.Type == ir.TypeF64, dst, hwXmm(v))
		}
	}
}

func (e *emitter) emitInstr(i *ir.Instr) {
	a := e.asm
	g := e.backend.guest

	switch i.Op {
	case ir.OpSourceInfo:
		if e.cb != nil {
			e.cb(backend.EmitInstr, uint32(i.Arg(0).I32()), a.Addr())
		}

	case ir.OpLabel:
		// a position, nothing to emit

	case ir.OpDebugBreak:
		a.Int3()

	case ir.OpAssertEq:
		// a mode assertion. the mismatch trap is ud2, which raises a
		// different signal than a fastmem fault, keeping the two
		// distinguishable in the handler
		lhs := e.intOperand(i.Arg(0), rax)
		rhs := e.intOperand(i.Arg(1), rcx)
		a.CmpRegReg(wide(i.Arg(0)), lhs, rhs)
		skip := a.Jcc(ccE)
		a.Ud2()
		a.Patch(skip)

	case ir.OpAssertLt:
		lhs := e.intOperand(i.Arg(0), rax)
		rhs := e.intOperand(i.Arg(1), rcx)
		a.CmpRegReg(wide(i.Arg(0)), lhs, rhs)
		skip := a.Jcc(ccL)
		a.Ud2()
		a.Patch(skip)

	case ir.OpCopy:
		if i.Result.Type.IsInt() {
			e.loadInt(hwInt(i.Result), i.Arg(0))
		} else {
			e.loadFloat(hwXmm(i.Result), i.Arg(0))
		}

	case ir.OpLoadHost:
		addr := e.intOperand(i.Arg(0), rax)
		a.MovRegMem(i.Result.Type.Size(), hwInt(i.Result), addr, 0)

	case ir.OpStoreHost:
		addr := e.intOperand(i.Arg(0), rax)
		v := e.intOperand(i.Arg(1), rcx)
		a.MovMemReg(i.Arg(1).Type.Size(), addr, 0, v)

	case ir.OpLoadFast:
		e.emitLoadGuest(i, true)

	case ir.OpStoreFast:
		e.emitStoreGuest(i, true)

	case ir.OpLoadGuest:
		e.emitLoadGuest(i, e.fastmem)

	case ir.OpStoreGuest:
		e.emitStoreGuest(i, e.fastmem)

	case ir.OpLoadContext:
		off := i.Arg(0).I32()
		switch {
		case i.Result.Type.IsInt():
			a.MovRegMem(i.Result.Type.Size(), hwInt(i.Result), guestCtxReg, off)
		case i.Result.Type.IsFloat():
			a.MovssRegMem(i.Result.Type == ir.TypeF64, hwXmm(i.Result), guestCtxReg, off)
		default:
			a.MovupsRegMem(hwXmm(i.Result), guestCtxReg, off)
		}

	case ir.OpStoreContext:
		off := i.Arg(0).I32()
		v := i.Arg(1)
		switch {
		case v.Type.IsInt():
			if v.IsConstant() && v.Type.Size() == 4 {
				a.MovMemImm32(guestCtxReg, off, uint32(v.ZextConstant()))
			} else {
				a.MovMemReg(v.Type.Size(), guestCtxReg, off, e.intOperand(v, rax))
			}
		case v.Type.IsFloat():
			a.MovssMemReg(v.Type == ir.TypeF64, guestCtxReg, off, e.xmmOperand(v, 0))
		default:
			a.MovupsMemReg(guestCtxReg, off, hwXmm(v))
		}

	case ir.OpLoadLocal:
		off := i.Arg(0).I32()
		if i.Result.Type.IsInt() {
			a.MovRegMem(i.Result.Type.Size(), hwInt(i.Result), rsp, off)
		} else if i.Result.Type.IsFloat() {
			a.MovssRegMem(i.Result.Type == ir.TypeF64, hwXmm(i.Result), rsp, off)
		} else {
			a.MovupsRegMem(hwXmm(i.Result), rsp, off)
		}

	case ir.OpStoreLocal:
		off := i.Arg(0).I32()
		v := i.Arg(1)
		if v.Type.IsInt() {
			a.MovMemReg(v.Type.Size(), rsp, off, e.intOperand(v, rax))
		} else if v.Type.IsFloat() {
			a.MovssMemReg(v.Type == ir.TypeF64, rsp, off, e.xmmOperand(v, 0))
		} else {
			a.MovupsMemReg(rsp, off, hwXmm(v))
		}

	case ir.OpFtoi:
		a.Cvttss2si(i.Arg(0).Type == ir.TypeF64, hwInt(i.Result), e.xmmOperand(i.Arg(0), 0))

	case ir.OpItof:
		a.Cvtsi2ss(i.Result.Type == ir.TypeF64, hwXmm(i.Result), e.intOperand(i.Arg(0), rax))

	case ir.OpSext:
		src := e.intOperand(i.Arg(0), rax)
		a.Movsx(i.Arg(0).Type.Size(), hwInt(i.Result), src)

	case ir.OpZext:
		src := e.intOperand(i.Arg(0), rax)
		a.Movzx(i.Arg(0).Type.Size(), hwInt(i.Result), src)

	case ir.OpTrunc:
		// narrow registers hold their value zero extended already
		e.loadInt(hwInt(i.Result), i.Arg(0))

	case ir.OpFext:
		a.Cvtss2sd(hwXmm(i.Result), e.xmmOperand(i.Arg(0), 0))

	case ir.OpFtrunc:
		a.Cvtsd2ss(hwXmm(i.Result), e.xmmOperand(i.Arg(0), 0))

	case ir.OpSelect:
		dst := hwInt(i.Result)
		cond := e.intOperand(i.Arg(0), rax)
		a.TestRegReg(false, cond, cond)
		e.loadInt(rcx, i.Arg(1))
		e.loadInt(dst, i.Arg(2))
		a.Cmovcc(ccNE, wide(i.Result), dst, rcx)

	case ir.OpCmp:
		lhs := e.intOperand(i.Arg(0), rax)
		rhs := e.intOperand(i.Arg(1), rcx)
		a.CmpRegReg(wide(i.Arg(0)), lhs, rhs)
		a.Setcc(intCond(ir.Cond(i.Arg(2).I32())), hwInt(i.Result))

	case ir.OpFcmp:
		a.Comiss(i.Arg(0).Type == ir.TypeF64,
			e.xmmOperand(i.Arg(0), 0), e.xmmOperand(i.Arg(1), 1))
		a.Setcc(floatCond(ir.FCond(i.Arg(2).I32())), hwInt(i.Result))

	case ir.OpAdd:
		e.binaryInt(i, e.asm.AddRegReg, e.asm.AddRegImm)

	case ir.OpSub:
		e.binaryInt(i, e.asm.SubRegReg, e.asm.SubRegImm)

	case ir.OpAnd:
		e.binaryInt(i, e.asm.AndRegReg, e.asm.AndRegImm)

	case ir.OpOr:
		e.binaryInt(i, e.asm.OrRegReg, e.asm.OrRegImm)

	case ir.OpXor:
		e.binaryInt(i, e.asm.XorRegReg, e.asm.XorRegImm)

	case ir.OpSmul, ir.OpUmul:
		// only the low half is kept, signed and unsigned agree
		dst := hwInt(i.Result)
		e.loadInt(rax, i.Arg(0))
		a.Imul(wide(i.Result), rax, e.intOperand(i.Arg(1), rcx))
		a.MovRegReg(true, dst, rax)

	case ir.OpDiv:
		dst := hwInt(i.Result)
		divisor := e.intOperand(i.Arg(1), rcx)
		e.loadInt(rax, i.Arg(0))
		a.Cdq()
		a.Idiv(wide(i.Result), divisor)
		a.MovRegReg(true, dst, rax)

	case ir.OpNeg:
		e.loadInt(hwInt(i.Result), i.Arg(0))
		a.Neg(wide(i.Result), hwInt(i.Result))

	case ir.OpNot:
		e.loadInt(hwInt(i.Result), i.Arg(0))
		a.Not(wide(i.Result), hwInt(i.Result))

	case ir.OpAbs:
		dst := hwInt(i.Result)
		signBit := byte(31)
		if wide(i.Result) {
			signBit = 63
		}
		e.loadInt(dst, i.Arg(0))
		a.MovRegReg(wide(i.Result), rax, dst)
		a.SarImm(wide(i.Result), rax, signBit)
		a.XorRegReg(wide(i.Result), dst, rax)
		a.SubRegReg(wide(i.Result), dst, rax)

	case ir.OpFadd:
		e.binaryFloat(i, e.asm.Addss)

	case ir.OpFsub:
		e.binaryFloat(i, e.asm.Subss)

	case ir.OpFmul:
		e.binaryFloat(i, e.asm.Mulss)

	case ir.OpFdiv:
		e.binaryFloat(i, e.asm.Divss)

	case ir.OpFneg:
		dst := hwXmm(i.Result)
		e.loadFloat(dst, i.Arg(0))
		e.signMask(i.Result.Type == ir.TypeF64, 1)
		a.Xorps(dst, 1)

	case ir.OpFabs:
		dst := hwXmm(i.Result)
		e.loadFloat(dst, i.Arg(0))
		e.absMask(i.Result.Type == ir.TypeF64, 1)
		a.Andps(dst, 1)

	case ir.OpSqrt:
		a.Sqrtss(i.Result.Type == ir.TypeF64, hwXmm(i.Result), e.xmmOperand(i.Arg(0), 0))

	case ir.OpVbroadcast:
		dst := hwXmm(i.Result)
		e.loadFloat(dst, i.Arg(0))
		a.Shufps(dst, dst, 0)

	case ir.OpVadd:
		dst := hwXmm(i.Result)
		e.loadFloat(dst, i.Arg(0))
		a.Addps(dst, hwXmm(i.Arg(1)))

	case ir.OpVmul:
		dst := hwXmm(i.Result)
		e.loadFloat(dst, i.Arg(0))
		a.Mulps(dst, hwXmm(i.Arg(1)))

	case ir.OpVdot:
		// lanewise product, then a movhlps/shufps horizontal sum
		dst := hwXmm(i.Result)
		a.MovapsRegReg(1, hwXmm(i.Arg(0)))
		a.Mulps(1, hwXmm(i.Arg(1)))
		a.MovapsRegReg(0, 1)
		a.Movhlps(0, 1)
		a.Addps(1, 0)
		a.MovapsRegReg(0, 1)
		a.Shufps(0, 0, 0x55)
		a.Addss(false, 1, 0)
		a.MovssRegReg(false, dst, 1)

	case ir.OpShl:
		e.emitShift(i, e.asm.ShlCL, e.asm.ShlImm)

	case ir.OpAshr:
		e.emitShift(i, e.asm.SarCL, e.asm.SarImm)

	case ir.OpLshr:
		e.emitShift(i, e.asm.ShrCL, e.asm.ShrImm)

	case ir.OpAshd:
		e.emitShiftDyn(i, true)

	case ir.OpLshd:
		e.emitShiftDyn(i, false)

	case ir.OpBranch:
		e.emitBranchTarget(i.Arg(0))

	case ir.OpBranchTrue:
		e.emitCondBranch(i, ccNE)

	case ir.OpBranchFalse:
		e.emitCondBranch(i, ccE)

	case ir.OpFallback:
		e.emitCallSaved(func() {
			a.MovRegImm64(rdi, uint64(g.Data))
			a.MovRegImm32(rsi, uint32(i.Arg(1).I32()))
			a.MovRegImm32(rdx, uint32(i.Arg(2).I32()))
			a.MovRegImm64(rax, uint64(i.Arg(0).I64()))
			a.CallReg(rax)
		})

	case ir.OpCall:
		e.emitCallSaved(func() {
			e.setupCallArgs(i)
			a.MovRegImm64(rax, uint64(i.Arg(0).I64()))
			a.CallReg(rax)
		})

	case ir.OpCallCond:
		cond := e.intOperand(i.Arg(3), rax)
		a.TestRegReg(false, cond, cond)
		skip := a.Jcc(ccE)
		e.emitCallSaved(func() {
			e.setupCallArgs(i)
			a.MovRegImm64(rax, uint64(i.Arg(0).I64()))
			a.CallReg(rax)
		})
		a.Patch(skip)

	default:
		panic("BUG: no emitter for op " + i.Op.String())
	}
}

// setupCallArgs loads up to two integer call arguments.
func (e *emitter) setupCallArgs(i *ir.Instr) {
	// load into scratch first in case an argument lives in rdi/rsi
	if a1 := i.Arg(1); a1 != nil {
		e.loadInt(rax, a1)
	}
	if a2 := i.Arg(2); a2 != nil {
		e.loadInt(rdx, a2)
	}
	if i.Arg(1) != nil {
		e.asm.MovRegReg(true, rdi, rax)
	}
	if i.Arg(2) != nil {
		e.asm.MovRegReg(true, rsi, rdx)
	}
}

// emitCallSaved brackets a native call with saves of the caller-saved
// allocatable registers.
func (e *emitter) emitCallSaved(body func()) {
	a := e.asm

	a.Push(rsi)
	a.Push(rdi)
	a.SubRegImm(true, rsp, 8*16)
	for n := 0; n < 8; n++ {
		a.MovupsMemReg(rsp, int32(n*16), 6+n)
	}

	body()

	for n := 0; n < 8; n++ {
		a.MovupsRegMem(6+n, rsp, int32(n*16))
	}
	a.AddRegImm(true, rsp, 8*16)
	a.Pop(rdi)
	a.Pop(rsi)
}

func (e *emitter) emitShift(i *ir.Instr,
	cl func(w bool, dst int), im func(w bool, dst int, n byte)) {
	a := e.asm
	dst := hwInt(i.Result)
	n := i.Arg(1)

	if n.IsConstant() {
		e.loadInt(dst, i.Arg(0))
		im(wide(i.Result), dst, byte(n.ZextConstant()&63))
		return
	}

	// the count moves to rcx before dst is loaded, in case the count
	// currently lives in dst
	a.MovRegReg(false, rcx, hwInt(n))
	e.loadInt(dst, i.Arg(0))
	cl(wide(i.Result), dst)
}

// emitShiftDyn emits the dynamic two-way shift: positive counts shift
// left, negative right, out-of-range counts saturate.
func (e *emitter) emitShiftDyn(i *ir.Instr, arith bool) {
	a := e.asm
	dst := hwInt(i.Result)

	e.loadInt(rcx, i.Arg(1))
	e.loadInt(dst, i.Arg(0))

	a.TestRegReg(false, rcx, rcx)
	neg := a.Jcc(ccS)

	// left shift, counts of 32+ clear the register
	a.CmpRegImm(false, rcx, 32)
	big := a.Jcc(ccAE)
	a.ShlCL(false, dst)
	done1 := a.Jmp()
	a.Patch(big)
	a.MovRegImm32(dst, 0)
	done2 := a.Jmp()

	// right shift by the negated count
	a.Patch(neg)
	a.Neg(false, rcx)
	a.CmpRegImm(false, rcx, 32)
	big2 := a.Jcc(ccAE)
	if arith {
		a.SarCL(false, dst)
	} else {
		a.ShrCL(false, dst)
	}
	done3 := a.Jmp()
	a.Patch(big2)
	if arith {
		a.SarImm(false, dst, 31)
	} else {
		a.MovRegImm32(dst, 0)
	}

	a.Patch(done1)
	a.Patch(done2)
	a.Patch(done3)
}

// emitBranchTarget emits the tail of a block: a direct jump to a
// sibling block, a linkable static branch for a constant pc, or a
// dynamic dispatch for a computed one.
func (e *emitter) emitBranchTarget(dst *ir.Value) {
	a := e.asm
	g := e.backend.guest

	switch {
	case dst.Type == ir.TypeBlock:
		e.fixups = append(e.fixups, blockFixup{fix: a.Jmp(), target: dst.Blk()})

	case dst.IsConstant():
		a.MovMemImm32(guestCtxReg, int32(g.OffsetPC), uint32(dst.ZextConstant()))
		// a call leaves the branch site on the stack for link_code; once
		// linked the call is patched into a direct jump
		a.CallAddr(e.backend.dispatchStatic)

	default:
		a.MovMemReg(4, guestCtxReg, int32(g.OffsetPC), hwInt(dst))
		a.JmpAddr(e.backend.dispatchDynamic)
	}
}

func (e *emitter) emitCondBranch(i *ir.Instr, cc byte) {
	a := e.asm
	g := e.backend.guest
	cond := i.Arg(0)
	dst := i.Arg(1)

	condReg := e.intOperand(cond, rax)
	a.TestRegReg(false, condReg, condReg)

	if dst.Type == ir.TypeBlock {
		e.fixups = append(e.fixups, blockFixup{fix: a.Jcc(cc), target: dst.Blk()})
		return
	}

	skip := a.Jcc(cc ^ 1) // inverted condition skips the taken path
	if dst.IsConstant() {
		a.MovMemImm32(guestCtxReg, int32(g.OffsetPC), uint32(dst.ZextConstant()))
		a.CallAddr(e.backend.dispatchStatic)
	} else {
		a.MovMemReg(4, guestCtxReg, int32(g.OffsetPC), hwInt(dst))
		a.JmpAddr(e.backend.dispatchDynamic)
	}
	a.Patch(skip)
}

// emitLoadGuest emits a guest load, straight off the linear view when
// fastmem allows, through the guest's accessors otherwise. A constant
// address resolves its backing at emit time: direct pages skip the
// callback even without fastmem.
func (e *emitter) emitLoadGuest(i *ir.Instr, fast bool) {
	a := e.asm
	g := e.backend.guest
	size := i.Result.Type.Size()

	if addr := i.Arg(0); addr.IsConstant() && g.Lookup != nil {
		if r := g.Lookup(g.Space, uint32(addr.ZextConstant())); r.Ptr != nil {
			a.MovRegImm64(rax, uint64(memBase(r.Ptr)))
			a.MovRegMem(size, hwInt(i.Result), rax, 0)
			return
		}
		fast = false
	}

	if fast {
		// a 32-bit register move zero extends, giving a clean index
		a.MovRegReg(false, rcx, e.intOperand(i.Arg(0), rcx))
		a.MovRegMemIndex(size, hwInt(i.Result), guestMemReg, rcx)
		return
	}

	dst := hwInt(i.Result)
	e.emitCallSaved(func() {
		a.MovRegReg(false, rsi, e.intOperand(i.Arg(0), rsi))
		a.MovRegImm64(rdi, uint64(g.Space))
		a.MovRegImm64(rax, uint64(e.backend.memEntries[sizeIndex(size)]))
		a.CallReg(rax)
		a.MovRegReg(true, rdx, rax)
	})
	a.MovRegReg(true, dst, rdx)
}

func (e *emitter) emitStoreGuest(i *ir.Instr, fast bool) {
	a := e.asm
	g := e.backend.guest
	size := i.Arg(1).Type.Size()

	if addr := i.Arg(0); addr.IsConstant() && g.Lookup != nil {
		if r := g.Lookup(g.Space, uint32(addr.ZextConstant())); r.Ptr != nil {
			v := e.intOperand(i.Arg(1), rdx)
			a.MovRegImm64(rax, uint64(memBase(r.Ptr)))
			a.MovMemReg(size, rax, 0, v)
			return
		}
		fast = false
	}

	if fast {
		v := e.intOperand(i.Arg(1), rdx)
		a.MovRegReg(false, rcx, e.intOperand(i.Arg(0), rcx))
		a.MovMemIndexReg(size, guestMemReg, rcx, v)
		return
	}

	e.emitCallSaved(func() {
		e.loadInt(rax, i.Arg(1))
		a.MovRegReg(false, rsi, e.intOperand(i.Arg(0), rsi))
		a.MovRegReg(true, rdx, rax)
		a.MovRegImm64(rdi, uint64(g.Space))
		a.MovRegImm64(rax, uint64(e.backend.memEntries[4+sizeIndex(size)]))
		a.CallReg(rax)
	})
}

func sizeIndex(size int) int {
	switch size {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	default:
		return 3
	}
}

// signMask loads the sign-bit mask into an xmm scratch.
func (e *emitter) signMask(double bool, xdst int) {
	if double {
		e.asm.MovRegImm64(rax, 1<<63)
	} else {
		e.asm.MovRegImm32(rax, 1<<31)
	}
	e.asm.MovdXmmReg(double, xdst, rax)
}

// absMask loads the everything-but-sign mask into an xmm scratch.
func (e *emitter) absMask(double bool, xdst int) {
	if double {
		e.asm.MovRegImm64(rax, 1<<63-1)
	} else {
		e.asm.MovRegImm32(rax, 1<<31-1)
	}
	e.asm.MovdXmmReg(double, xdst, rax)
}

func intCond(c ir.Cond) byte {
	switch c {
	case ir.CondEQ:
		return ccE
	case ir.CondNE:
		return ccNE
	case ir.CondSGE:
		return ccGE
	case ir.CondSGT:
		return ccG
	case ir.CondUGE:
		return ccAE
	case ir.CondUGT:
		return ccA
	case ir.CondSLE:
		return ccLE
	case ir.CondSLT:
		return ccL
	case ir.CondULE:
		return ccBE
	case ir.CondULT:
		return ccB
	default:
		panic("BUG: unknown integer condition")
	}
}

func floatCond(c ir.FCond) byte {
	switch c {
	case ir.FCondEQ:
		return ccE
	case ir.FCondNE:
		return ccNE
	case ir.FCondGE:
		return ccAE
	case ir.FCondGT:
		return ccA
	case ir.FCondLE:
		return ccBE
	case ir.FCondLT:
		return ccB
	default:
		panic("BUG: unknown float condition")
	}
}
