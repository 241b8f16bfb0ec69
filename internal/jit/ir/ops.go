package ir

// Typed helpers for emitting each op at the current insert point.

// SourceInfo emits the marker carrying the current guest address and
// per-instruction cycle cost.
func (ir *IR) SourceInfo(addr uint32, cycles int) {
	instr := ir.AppendInstr(OpSourceInfo, TypeVoid)
	ir.SetArg(instr, 0, ir.AllocI32(int32(addr)))
	ir.SetArg(instr, 1, ir.AllocI32(int32(cycles)))
}

// Fallback emits a call into the interpreter fallback fn for the raw
// guest instruction at addr.
func (ir *IR) Fallback(fn uintptr, addr, raw uint32) {
	instr := ir.AppendInstr(OpFallback, TypeVoid)
	ir.SetArg(instr, 0, ir.AllocPtr(fn))
	ir.SetArg(instr, 1, ir.AllocI32(int32(addr)))
	ir.SetArg(instr, 2, ir.AllocI32(int32(raw)))
}

// Label emits a branch target within the unit.
func (ir *IR) Label() *Instr {
	return ir.AppendInstr(OpLabel, TypeVoid)
}

// DebugBreak emits a trap into the debugger.
func (ir *IR) DebugBreak() {
	ir.AppendInstr(OpDebugBreak, TypeVoid)
}

// AssertEq emits a runtime assertion that a equals b.
func (ir *IR) AssertEq(a, b *Value) {
	checkSameType(a, b)
	instr := ir.AppendInstr(OpAssertEq, TypeVoid)
	ir.SetArg(instr, 0, a)
	ir.SetArg(instr, 1, b)
}

// AssertLt emits a runtime assertion that a is less than b.
func (ir *IR) AssertLt(a, b *Value) {
	checkSameType(a, b)
	instr := ir.AppendInstr(OpAssertLt, TypeVoid)
	ir.SetArg(instr, 0, a)
	ir.SetArg(instr, 1, b)
}

// Copy emits a copy of a into a fresh value.
func (ir *IR) Copy(a *Value) *Value {
	instr := ir.AppendInstr(OpCopy, a.Type)
	ir.SetArg(instr, 0, a)
	return instr.Result
}

// LoadHost reads host memory at the native pointer addr.
func (ir *IR) LoadHost(addr *Value, t Type) *Value {
	checkType(addr, TypeI64)
	instr := ir.AppendInstr(OpLoadHost, t)
	ir.SetArg(instr, 0, addr)
	return instr.Result
}

// StoreHost writes v to host memory at the native pointer addr.
func (ir *IR) StoreHost(addr, v *Value) {
	checkType(addr, TypeI64)
	instr := ir.AppendInstr(OpStoreHost, TypeVoid)
	ir.SetArg(instr, 0, addr)
	ir.SetArg(instr, 1, v)
}

// LoadGuest reads guest memory at addr through the guest's callbacks.
func (ir *IR) LoadGuest(addr *Value, t Type) *Value {
	checkType(addr, TypeI32)
	instr := ir.AppendInstr(OpLoadGuest, t)
	ir.SetArg(instr, 0, addr)
	return instr.Result
}

// StoreGuest writes v to guest memory at addr through the guest's
// callbacks.
func (ir *IR) StoreGuest(addr, v *Value) {
	checkType(addr, TypeI32)
	instr := ir.AppendInstr(OpStoreGuest, TypeVoid)
	ir.SetArg(instr, 0, addr)
	ir.SetArg(instr, 1, v)
}

// LoadFast reads guest memory at addr directly off of the linear view.
func (ir *IR) LoadFast(addr *Value, t Type) *Value {
	checkType(addr, TypeI32)
	instr := ir.AppendInstr(OpLoadFast, t)
	ir.SetArg(instr, 0, addr)
	return instr.Result
}

// StoreFast writes v to guest memory at addr directly into the linear
// view.
func (ir *IR) StoreFast(addr, v *Value) {
	checkType(addr, TypeI32)
	instr := ir.AppendInstr(OpStoreFast, TypeVoid)
	ir.SetArg(instr, 0, addr)
	ir.SetArg(instr, 1, v)
}

// LoadContext reads the guest context at the byte offset.
func (ir *IR) LoadContext(offset int, t Type) *Value {
	instr := ir.AppendInstr(OpLoadContext, t)
	ir.SetArg(instr, 0, ir.AllocI32(int32(offset)))
	return instr.Result
}

// StoreContext writes v to the guest context at the byte offset.
func (ir *IR) StoreContext(offset int, v *Value) {
	instr := ir.AppendInstr(OpStoreContext, TypeVoid)
	ir.SetArg(instr, 0, ir.AllocI32(int32(offset)))
	ir.SetArg(instr, 1, v)
}

// LoadLocal reads a stack spill slot.
func (ir *IR) LoadLocal(l *Local) *Value {
	instr := ir.AppendInstr(OpLoadLocal, l.Type)
	ir.SetArg(instr, 0, ir.AllocI32(int32(l.Offset)))
	return instr.Result
}

// StoreLocal writes v to a stack spill slot.
func (ir *IR) StoreLocal(l *Local, v *Value) {
	checkType(v, l.Type)
	instr := ir.AppendInstr(OpStoreLocal, TypeVoid)
	ir.SetArg(instr, 0, ir.AllocI32(int32(l.Offset)))
	ir.SetArg(instr, 1, v)
}

func (ir *IR) conv(op Op, v *Value, dst Type) *Value {
	instr := ir.AppendInstr(op, dst)
	ir.SetArg(instr, 0, v)
	return instr.Result
}

// Ftoi converts a float to an integer.
func (ir *IR) Ftoi(v *Value, dst Type) *Value {
	if !v.Type.IsFloat() || !dst.IsInt() {
		panic("BUG: ftoi wants float -> int")
	}
	return ir.conv(OpFtoi, v, dst)
}

// Itof converts an integer to a float.
func (ir *IR) Itof(v *Value, dst Type) *Value {
	if !v.Type.IsInt() || !dst.IsFloat() {
		panic("BUG: itof wants int -> float")
	}
	return ir.conv(OpItof, v, dst)
}

// Sext sign-extends an integer.
func (ir *IR) Sext(v *Value, dst Type) *Value {
	return ir.conv(OpSext, v, dst)
}

// Zext zero-extends an integer.
func (ir *IR) Zext(v *Value, dst Type) *Value {
	return ir.conv(OpZext, v, dst)
}

// Trunc truncates an integer.
func (ir *IR) Trunc(v *Value, dst Type) *Value {
	return ir.conv(OpTrunc, v, dst)
}

// Fext extends f32 to f64.
func (ir *IR) Fext(v *Value) *Value {
	checkType(v, TypeF32)
	return ir.conv(OpFext, v, TypeF64)
}

// Ftrunc truncates f64 to f32.
func (ir *IR) Ftrunc(v *Value) *Value {
	checkType(v, TypeF64)
	return ir.conv(OpFtrunc, v, TypeF32)
}

// Select produces t if cond is non-zero, else f.
func (ir *IR) Select(cond, t, f *Value) *Value {
	checkSameType(t, f)
	instr := ir.AppendInstr(OpSelect, t.Type)
	ir.SetArg(instr, 0, cond)
	ir.SetArg(instr, 1, t)
	ir.SetArg(instr, 2, f)
	return instr.Result
}

// Cmp compares two integers under cond, producing an i8 of 0 or 1.
func (ir *IR) Cmp(a, b *Value, cond Cond) *Value {
	checkSameType(a, b)
	instr := ir.AppendInstr(OpCmp, TypeI8)
	ir.SetArg(instr, 0, a)
	ir.SetArg(instr, 1, b)
	ir.SetArg(instr, 2, ir.AllocI32(int32(cond)))
	return instr.Result
}

// CmpEQ compares a == b.
func (ir *IR) CmpEQ(a, b *Value) *Value { return ir.Cmp(a, b, CondEQ) }

// CmpNE compares a != b.
func (ir *IR) CmpNE(a, b *Value) *Value { return ir.Cmp(a, b, CondNE) }

// CmpSGE compares a >= b, signed.
func (ir *IR) CmpSGE(a, b *Value) *Value { return ir.Cmp(a, b, CondSGE) }

// CmpSGT compares a > b, signed.
func (ir *IR) CmpSGT(a, b *Value) *Value { return ir.Cmp(a, b, CondSGT) }

// CmpUGE compares a >= b, unsigned.
func (ir *IR) CmpUGE(a, b *Value) *Value { return ir.Cmp(a, b, CondUGE) }

// CmpUGT compares a > b, unsigned.
func (ir *IR) CmpUGT(a, b *Value) *Value { return ir.Cmp(a, b, CondUGT) }

// CmpSLE compares a <= b, signed.
func (ir *IR) CmpSLE(a, b *Value) *Value { return ir.Cmp(a, b, CondSLE) }

// CmpSLT compares a < b, signed.
func (ir *IR) CmpSLT(a, b *Value) *Value { return ir.Cmp(a, b, CondSLT) }

// CmpULE compares a <= b, unsigned.
func (ir *IR) CmpULE(a, b *Value) *Value { return ir.Cmp(a, b, CondULE) }

// CmpULT compares a < b, unsigned.
func (ir *IR) CmpULT(a, b *Value) *Value { return ir.Cmp(a, b, CondULT) }

// Fcmp compares two floats under cond, producing an i8 of 0 or 1.
func (ir *IR) Fcmp(a, b *Value, cond FCond) *Value {
	checkSameType(a, b)
	instr := ir.AppendInstr(OpFcmp, TypeI8)
	ir.SetArg(instr, 0, a)
	ir.SetArg(instr, 1, b)
	ir.SetArg(instr, 2, ir.AllocI32(int32(cond)))
	return instr.Result
}

func (ir *IR) binary(op Op, a, b *Value) *Value {
	checkSameType(a, b)
	instr := ir.AppendInstr(op, a.Type)
	ir.SetArg(instr, 0, a)
	ir.SetArg(instr, 1, b)
	return instr.Result
}

func (ir *IR) unary(op Op, a *Value) *Value {
	instr := ir.AppendInstr(op, a.Type)
	ir.SetArg(instr, 0, a)
	return instr.Result
}

// Add produces a + b.
func (ir *IR) Add(a, b *Value) *Value { return ir.binary(OpAdd, a, b) }

// Sub produces a - b.
func (ir *IR) Sub(a, b *Value) *Value { return ir.binary(OpSub, a, b) }

// Smul produces a * b, signed.
func (ir *IR) Smul(a, b *Value) *Value { return ir.binary(OpSmul, a, b) }

// Umul produces a * b, unsigned.
func (ir *IR) Umul(a, b *Value) *Value { return ir.binary(OpUmul, a, b) }

// Div produces a / b.
func (ir *IR) Div(a, b *Value) *Value { return ir.binary(OpDiv, a, b) }

// Neg produces -a.
func (ir *IR) Neg(a *Value) *Value { return ir.unary(OpNeg, a) }

// Abs produces |a|.
func (ir *IR) Abs(a *Value) *Value { return ir.unary(OpAbs, a) }

// Fadd produces a + b.
func (ir *IR) Fadd(a, b *Value) *Value { return ir.binary(OpFadd, a, b) }

// Fsub produces a - b.
func (ir *IR) Fsub(a, b *Value) *Value { return ir.binary(OpFsub, a, b) }

// Fmul produces a * b.
func (ir *IR) Fmul(a, b *Value) *Value { return ir.binary(OpFmul, a, b) }

// Fdiv produces a / b.
func (ir *IR) Fdiv(a, b *Value) *Value { return ir.binary(OpFdiv, a, b) }

// Fneg produces -a.
func (ir *IR) Fneg(a *Value) *Value { return ir.unary(OpFneg, a) }

// Fabs produces |a|.
func (ir *IR) Fabs(a *Value) *Value { return ir.unary(OpFabs, a) }

// Sqrt produces the square root of a.
func (ir *IR) Sqrt(a *Value) *Value { return ir.unary(OpSqrt, a) }

// Vbroadcast splats the f32 a across four lanes.
func (ir *IR) Vbroadcast(a *Value) *Value {
	checkType(a, TypeF32)
	instr := ir.AppendInstr(OpVbroadcast, TypeV128)
	ir.SetArg(instr, 0, a)
	return instr.Result
}

// Vadd produces the lane-wise sum of a and b.
func (ir *IR) Vadd(a, b *Value) *Value { return ir.binary(OpVadd, a, b) }

// Vmul produces the lane-wise product of a and b.
func (ir *IR) Vmul(a, b *Value) *Value { return ir.binary(OpVmul, a, b) }

// Vdot produces the four-lane dot product of a and b as an f32.
func (ir *IR) Vdot(a, b *Value) *Value {
	checkSameType(a, b)
	instr := ir.AppendInstr(OpVdot, TypeF32)
	ir.SetArg(instr, 0, a)
	ir.SetArg(instr, 1, b)
	return instr.Result
}

// And produces a & b.
func (ir *IR) And(a, b *Value) *Value { return ir.binary(OpAnd, a, b) }

// Or produces a | b.
func (ir *IR) Or(a, b *Value) *Value { return ir.binary(OpOr, a, b) }

// Xor produces a ^ b.
func (ir *IR) Xor(a, b *Value) *Value { return ir.binary(OpXor, a, b) }

// Not produces ^a.
func (ir *IR) Not(a *Value) *Value { return ir.unary(OpNot, a) }

func (ir *IR) shift(op Op, a, n *Value) *Value {
	checkType(n, TypeI32)
	instr := ir.AppendInstr(op, a.Type)
	ir.SetArg(instr, 0, a)
	ir.SetArg(instr, 1, n)
	return instr.Result
}

// Shl produces a << n.
func (ir *IR) Shl(a, n *Value) *Value { return ir.shift(OpShl, a, n) }

// Shli produces a << n for an immediate n.
func (ir *IR) Shli(a *Value, n int) *Value { return ir.Shl(a, ir.AllocI32(int32(n))) }

// Ashr produces a >> n, arithmetic.
func (ir *IR) Ashr(a, n *Value) *Value { return ir.shift(OpAshr, a, n) }

// Ashri produces a >> n, arithmetic, for an immediate n.
func (ir *IR) Ashri(a *Value, n int) *Value { return ir.Ashr(a, ir.AllocI32(int32(n))) }

// Lshr produces a >> n, logical.
func (ir *IR) Lshr(a, n *Value) *Value { return ir.shift(OpLshr, a, n) }

// Lshri produces a >> n, logical, for an immediate n.
func (ir *IR) Lshri(a *Value, n int) *Value { return ir.Lshr(a, ir.AllocI32(int32(n))) }

// Ashd produces a dynamic arithmetic shift of a by n, left for positive
// n and right for negative.
func (ir *IR) Ashd(a, n *Value) *Value { return ir.shift(OpAshd, a, n) }

// Lshd produces a dynamic logical shift of a by n, left for positive n
// and right for negative.
func (ir *IR) Lshd(a, n *Value) *Value { return ir.shift(OpLshd, a, n) }

// Branch jumps to dst, either a block reference or a guest address.
func (ir *IR) Branch(dst *Value) {
	instr := ir.AppendInstr(OpBranch, TypeVoid)
	ir.SetArg(instr, 0, dst)
	ir.linkBlockRef(instr.Block, dst)
}

// BranchTrue jumps to dst if cond is non-zero.
func (ir *IR) BranchTrue(cond, dst *Value) {
	instr := ir.AppendInstr(OpBranchTrue, TypeVoid)
	ir.SetArg(instr, 0, cond)
	ir.SetArg(instr, 1, dst)
	ir.linkBlockRef(instr.Block, dst)
}

// BranchFalse jumps to dst if cond is zero.
func (ir *IR) BranchFalse(cond, dst *Value) {
	instr := ir.AppendInstr(OpBranchFalse, TypeVoid)
	ir.SetArg(instr, 0, cond)
	ir.SetArg(instr, 1, dst)
	ir.linkBlockRef(instr.Block, dst)
}

func (ir *IR) linkBlockRef(src *Block, dst *Value) {
	if dst.Type != TypeBlock {
		return
	}
	ir.AddEdge(src, dst.Blk())
}

// Call calls the native entry point fn with up to two integer
// arguments.
func (ir *IR) Call(fn *Value, args ...*Value) {
	if len(args) > 2 {
		panic("BUG: call supports at most two arguments")
	}
	instr := ir.AppendInstr(OpCall, TypeVoid)
	ir.SetArg(instr, 0, fn)
	for n, arg := range args {
		ir.SetArg(instr, n+1, arg)
	}
}

// CallCond calls the native entry point fn with up to two integer
// arguments if cond is non-zero.
func (ir *IR) CallCond(fn, cond *Value, args ...*Value) {
	if len(args) > 2 {
		panic("BUG: call supports at most two arguments")
	}
	instr := ir.AppendInstr(OpCallCond, TypeVoid)
	ir.SetArg(instr, 0, fn)
	for n, arg := range args {
		ir.SetArg(instr, n+1, arg)
	}
	ir.SetArg(instr, 3, cond)
}

func checkType(v *Value, t Type) {
	if v.Type != t {
		panic("BUG: unexpected value type " + v.Type.String())
	}
}

func checkSameType(a, b *Value) {
	if a.Type != b.Type {
		panic("BUG: mismatched value types " + a.Type.String() + " and " + b.Type.String())
	}
}
