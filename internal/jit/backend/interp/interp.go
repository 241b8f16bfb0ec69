// Package interp is an IR interpreter implementing the backend
// contract without emitting native code. It exists as a testing aid:
// the x64 backend is the reference for dispatch and ABI behavior, but
// end-to-end tests of the frontend, passes and driver can run guest
// code through this backend on any host.
package interp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/kamui-emu/kamui/internal/jit/backend"
	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/platform"
)

const (
	opdConst = iota
	opdValue
	opdBlock
)

type operand struct {
	kind  int
	typ   ir.Type
	bits  uint64
	index int
}

type instr struct {
	op     ir.Op
	args   [ir.MaxArgs]operand
	nargs  int
	result int // value slot, -1 for void
	typ    ir.Type
	cond   ir.Cond
}

type block struct {
	instrs []instr
}

// unit is one translated block in interpreter form. The IR is copied
// out at assemble time since the driver recycles its unit.
type unit struct {
	blocks     []block
	numValues  int
	localsSize int
	cycles     int32
	instrs     int32
}

// Backend implements backend.Backend by interpretation.
type Backend struct {
	guest *guest.Guest

	// fake host address space: units get synthetic, stable, disjoint
	// ranges so the driver's reverse lookup works unchanged
	units    map[uintptr]*unit
	nextAddr uintptr

	cache      []uintptr
	cacheMask  uint32
	cacheShift uint32

	running bool
}

var _ backend.Backend = (*Backend)(nil)

const compileSentinel = ^uintptr(0)

// unitSpacing is the synthetic host size of every assembled unit.
const unitSpacing = 0x100

// New returns an interpreter backend for the guest.
func New(g *guest.Guest) *Backend {
	shift := uint32(0)
	for g.AddrMask != 0 && g.AddrMask&(1<<shift) == 0 {
		shift++
	}
	b := &Backend{
		guest:      g,
		units:      map[uintptr]*unit{},
		nextAddr:   0x10000,
		cacheMask:  g.AddrMask,
		cacheShift: shift,
	}
	b.cache = make([]uintptr, (g.AddrMask>>shift)+1)
	for i := range b.cache {
		b.cache[i] = compileSentinel
	}
	return b
}

// interpRegisters is a synthetic descriptor table sized like a real
// ISA so register allocation exercises its spill paths.
var interpRegisters = func() []backend.RegisterDef {
	var defs []backend.RegisterDef
	for i := 0; i < 8; i++ {
		defs = append(defs, backend.RegisterDef{
			Name: fmt.Sprintf("i%d", i), ValueTypes: backend.MaskInt,
			Flags: backend.Allocate | backend.CalleeSave,
		})
	}
	for i := 0; i < 6; i++ {
		defs = append(defs, backend.RegisterDef{
			Name: fmt.Sprintf("f%d", i), ValueTypes: backend.MaskFloat,
			Flags: backend.Allocate | backend.CallerSave,
		})
	}
	for i := 0; i < 2; i++ {
		defs = append(defs, backend.RegisterDef{
			Name: fmt.Sprintf("v%d", i), ValueTypes: backend.MaskVector,
			Flags: backend.Allocate | backend.CallerSave,
		})
	}
	return defs
}()

// Registers implements backend.Backend.Registers.
func (b *Backend) Registers() []backend.RegisterDef {
	return interpRegisters
}

// Emitters implements backend.Backend.Emitters; the interpreter has no
// two-operand constraints, so any register reuse is fine.
func (b *Backend) Emitters() []backend.EmitterDef {
	return nil
}

// Reset implements backend.Backend.Reset.
func (b *Backend) Reset() {
	b.units = map[uintptr]*unit{}
	for i := range b.cache {
		b.cache[i] = compileSentinel
	}
}

// AssembleCode implements backend.Backend.AssembleCode by copying the
// unit into interpreter form.
func (b *Backend) AssembleCode(u *ir.IR, fastmem bool, cb backend.EmitCallback) (uintptr, int, error) {
	hostAddr := b.nextAddr
	b.nextAddr += unitSpacing

	out := &unit{localsSize: u.LocalsSize}
	valueSlots := map[*ir.Value]int{}

	slotOf := func(v *ir.Value) int {
		if s, ok := valueSlots[v]; ok {
			return s
		}
		s := out.numValues
		out.numValues++
		valueSlots[v] = s
		return s
	}

	blockIdx := map[*ir.Block]int{}
	n := 0
	for blk := u.Blocks(); blk != nil; blk = blk.Next() {
		blockIdx[blk] = n
		n++
	}

	for blk := u.Blocks(); blk != nil; blk = blk.Next() {
		if cb != nil {
			cb(backend.EmitBlock, 0, hostAddr)
		}
		var ib block
		for in := blk.Head(); in != nil; in = in.Next() {
			if in.Op == ir.OpSourceInfo {
				out.cycles += in.Arg(1).I32()
				out.instrs++
				if cb != nil {
					cb(backend.EmitInstr, uint32(in.Arg(0).I32()), hostAddr)
				}
				continue
			}

			ii := instr{op: in.Op, result: -1}
			for a := 0; a < ir.MaxArgs; a++ {
				arg := in.Arg(a)
				if arg == nil {
					continue
				}
				ii.nargs = a + 1
				switch {
				case arg.Type == ir.TypeBlock:
					ii.args[a] = operand{kind: opdBlock, typ: arg.Type, index: blockIdx[arg.Blk()]}
				case arg.IsConstant():
					ii.args[a] = operand{kind: opdConst, typ: arg.Type, bits: arg.Bits()}
				default:
					ii.args[a] = operand{kind: opdValue, typ: arg.Type, index: slotOf(arg)}
				}
			}
			if in.Result != nil {
				ii.result = slotOf(in.Result)
				ii.typ = in.Result.Type
			}
			ib.instrs = append(ib.instrs, ii)
		}
		out.blocks = append(out.blocks, ib)
	}

	b.units[hostAddr] = out
	return hostAddr, unitSpacing, nil
}

// DumpCode implements backend.Backend.DumpCode.
func (b *Backend) DumpCode(hostAddr uintptr, hostSize int, w io.Writer) {
	u := b.units[hostAddr]
	if u == nil {
		return
	}
	for bi, blk := range u.blocks {
		fmt.Fprintf(w, "blk%d:\n", bi)
		for _, in := range blk.instrs {
			fmt.Fprintf(w, "  %s\n", in.op)
		}
	}
}

// HandleException implements backend.Backend.HandleException; the
// interpreter never arms fastmem, so no fault is ever its own.
func (b *Backend) HandleException(*platform.ExceptionState) bool {
	return false
}

func (b *Backend) cacheSlot(addr uint32) *uintptr {
	return &b.cache[(addr&b.cacheMask)>>b.cacheShift]
}

// LookupCode implements backend.Backend.LookupCode.
func (b *Backend) LookupCode(addr uint32) uintptr {
	return *b.cacheSlot(addr)
}

// CacheCode implements backend.Backend.CacheCode.
func (b *Backend) CacheCode(addr uint32, code uintptr) {
	*b.cacheSlot(addr) = code
}

// InvalidateCode implements backend.Backend.InvalidateCode.
func (b *Backend) InvalidateCode(addr uint32) {
	*b.cacheSlot(addr) = compileSentinel
}

// PatchEdge implements backend.Backend.PatchEdge; dispatch here is
// always a table lookup, so there is nothing to patch.
func (b *Backend) PatchEdge(branchSite, dst uintptr) {}

// RestoreEdge implements backend.Backend.RestoreEdge.
func (b *Backend) RestoreEdge(branchSite uintptr, dstAddr uint32) {}

// RunCode implements backend.Backend.RunCode: the interpreter's
// dispatch loop.
func (b *Backend) RunCode(cycles int32) {
	g := b.guest
	c := g.Ctx

	binary.LittleEndian.PutUint32(c[g.OffsetCycles:], uint32(cycles))
	binary.LittleEndian.PutUint32(c[g.OffsetInstrs:], 0)

	b.running = true
	defer func() { b.running = false }()

	for {
		if int32(binary.LittleEndian.Uint32(c[g.OffsetCycles:])) <= 0 {
			return
		}
		if binary.LittleEndian.Uint32(c[g.OffsetInterrupts:]) != 0 {
			g.CheckInterrupts()
		}

		pc := binary.LittleEndian.Uint32(c[g.OffsetPC:])
		entry := *b.cacheSlot(pc)
		if entry == compileSentinel {
			g.CompileCode(pc)
			continue
		}

		u := b.units[entry]
		if u == nil {
			// a stale slot from an invalidated unit
			*b.cacheSlot(pc) = compileSentinel
			continue
		}
		b.execute(u)
	}
}

func (b *Backend) execute(u *unit) {
	g := b.guest
	c := g.Ctx

	remaining := int32(binary.LittleEndian.Uint32(c[g.OffsetCycles:]))
	binary.LittleEndian.PutUint32(c[g.OffsetCycles:], uint32(remaining-u.cycles))
	instrs := int32(binary.LittleEndian.Uint32(c[g.OffsetInstrs:]))
	binary.LittleEndian.PutUint32(c[g.OffsetInstrs:], uint32(instrs+u.instrs))

	values := make([]uint64, u.numValues)
	locals := make([]byte, u.localsSize)

	bi := 0
	for bi >= 0 && bi < len(u.blocks) {
		next := bi + 1
		jumped := false

	instrLoop:
		for _, in := range u.blocks[bi].instrs {
			get := func(n int) uint64 {
				o := &in.args[n]
				if o.kind == opdConst {
					return o.bits
				}
				return values[o.index]
			}

			switch in.op {
			case ir.OpLabel, ir.OpDebugBreak:

			case ir.OpAssertEq:
				if get(0) != get(1) {
					panic("assert_eq failed in interpreted code")
				}

			case ir.OpAssertLt:
				if int64(get(0)) >= int64(get(1)) {
					panic("assert_lt failed in interpreted code")
				}

			case ir.OpCopy:
				values[in.result] = get(0)

			case ir.OpFallback:
				fn := guest.LookupFallback(uintptr(get(0)))
				if fn == nil {
					panic("BUG: unregistered fallback entry")
				}
				fn(g.Data, uint32(get(1)), uint32(get(2)))

			case ir.OpLoadGuest, ir.OpLoadFast:
				addr := uint32(get(0))
				switch in.typ.Size() {
				case 1:
					values[in.result] = uint64(g.R8(g.Space, addr))
				case 2:
					values[in.result] = uint64(g.R16(g.Space, addr))
				case 4:
					values[in.result] = uint64(g.R32(g.Space, addr))
				default:
					values[in.result] = g.R64(g.Space, addr)
				}

			case ir.OpStoreGuest, ir.OpStoreFast:
				addr := uint32(get(0))
				v := get(1)
				switch in.args[1].typ.Size() {
				case 1:
					g.W8(g.Space, addr, uint8(v))
				case 2:
					g.W16(g.Space, addr, uint16(v))
				case 4:
					g.W32(g.Space, addr, uint32(v))
				default:
					g.W64(g.Space, addr, v)
				}

			case ir.OpLoadContext:
				values[in.result] = loadBytes(c[int32(get(0)):], in.typ)

			case ir.OpStoreContext:
				storeBytes(c[int32(get(0)):], in.args[1].typ, get(1))

			case ir.OpLoadLocal:
				values[in.result] = loadBytes(locals[int32(get(0)):], in.typ)

			case ir.OpStoreLocal:
				storeBytes(locals[int32(get(0)):], in.args[1].typ, get(1))

			case ir.OpFtoi:
				var f float64
				if in.args[0].typ == ir.TypeF64 {
					f = math.Float64frombits(get(0))
				} else {
					f = float64(math.Float32frombits(uint32(get(0))))
				}
				values[in.result] = truncType(in.typ, uint64(int64(f)))

			case ir.OpItof:
				v := int64(int32(get(0)))
				if in.args[0].typ == ir.TypeI64 {
					v = int64(get(0))
				}
				if in.typ == ir.TypeF64 {
					values[in.result] = math.Float64bits(float64(v))
				} else {
					values[in.result] = uint64(math.Float32bits(float32(v)))
				}

			case ir.OpSext:
				values[in.result] = truncType(in.typ, uint64(sext(in.args[0].typ, get(0))))

			case ir.OpZext, ir.OpTrunc:
				values[in.result] = truncType(in.typ, get(0))

			case ir.OpFext:
				values[in.result] = math.Float64bits(float64(math.Float32frombits(uint32(get(0)))))

			case ir.OpFtrunc:
				values[in.result] = uint64(math.Float32bits(float32(math.Float64frombits(get(0)))))

			case ir.OpSelect:
				if get(0) != 0 {
					values[in.result] = get(1)
				} else {
					values[in.result] = get(2)
				}

			case ir.OpCmp:
				values[in.result] = boolBits(intCompare(ir.Cond(get(2)), in.args[0].typ, get(0), get(1)))

			case ir.OpFcmp:
				values[in.result] = boolBits(floatCompare(ir.FCond(get(2)), in.args[0].typ, get(0), get(1)))

			case ir.OpAdd:
				values[in.result] = truncType(in.typ, get(0)+get(1))
			case ir.OpSub:
				values[in.result] = truncType(in.typ, get(0)-get(1))
			case ir.OpSmul:
				values[in.result] = truncType(in.typ, uint64(int64(sext(in.typ, get(0)))*int64(sext(in.typ, get(1)))))
			case ir.OpUmul:
				values[in.result] = truncType(in.typ, get(0)*get(1))
			case ir.OpDiv:
				values[in.result] = truncType(in.typ, uint64(int64(sext(in.typ, get(0)))/int64(sext(in.typ, get(1)))))
			case ir.OpNeg:
				values[in.result] = truncType(in.typ, -get(0))
			case ir.OpAbs:
				v := int64(sext(in.typ, get(0)))
				if v < 0 {
					v = -v
				}
				values[in.result] = truncType(in.typ, uint64(v))

			case ir.OpFadd:
				values[in.result] = floatBinary(in.typ, get(0), get(1), func(a, b float64) float64 { return a + b })
			case ir.OpFsub:
				values[in.result] = floatBinary(in.typ, get(0), get(1), func(a, b float64) float64 { return a - b })
			case ir.OpFmul:
				values[in.result] = floatBinary(in.typ, get(0), get(1), func(a, b float64) float64 { return a * b })
			case ir.OpFdiv:
				values[in.result] = floatBinary(in.typ, get(0), get(1), func(a, b float64) float64 { return a / b })
			case ir.OpFneg:
				values[in.result] = floatUnary(in.typ, get(0), func(a float64) float64 { return -a })
			case ir.OpFabs:
				values[in.result] = floatUnary(in.typ, get(0), math.Abs)
			case ir.OpSqrt:
				values[in.result] = floatUnary(in.typ, get(0), math.Sqrt)

			case ir.OpAnd:
				values[in.result] = get(0) & get(1)
			case ir.OpOr:
				values[in.result] = get(0) | get(1)
			case ir.OpXor:
				values[in.result] = get(0) ^ get(1)
			case ir.OpNot:
				values[in.result] = truncType(in.typ, ^get(0))
			case ir.OpShl:
				values[in.result] = truncType(in.typ, get(0)<<(get(1)&63))
			case ir.OpLshr:
				values[in.result] = truncType(in.typ, get(0)>>(get(1)&63))
			case ir.OpAshr:
				values[in.result] = truncType(in.typ, uint64(int64(sext(in.typ, get(0)))>>(get(1)&63)))

			case ir.OpAshd, ir.OpLshd:
				values[in.result] = truncType(in.typ, shiftDyn(get(0), uint32(get(1)), in.op == ir.OpAshd))

			case ir.OpVbroadcast, ir.OpVadd, ir.OpVmul, ir.OpVdot:
				panic("BUG: vector ops not supported by the interpreter backend")

			case ir.OpBranch:
				bi, jumped = b.branchTo(&in.args[0], values)
				break instrLoop

			case ir.OpBranchTrue:
				if get(0) != 0 {
					bi, jumped = b.branchTo(&in.args[1], values)
					break instrLoop
				}

			case ir.OpBranchFalse:
				if get(0) == 0 {
					bi, jumped = b.branchTo(&in.args[1], values)
					break instrLoop
				}

			case ir.OpCall, ir.OpCallCond:
				panic("BUG: native calls not supported by the interpreter backend")

			default:
				panic("BUG: no interpreter for op " + in.op.String())
			}
		}

		if !jumped {
			if bi >= 0 {
				bi = next
			}
		}
	}
}

// branchTo resolves a branch operand: block operands jump within the
// unit, anything else installs the next pc and ends execution.
func (b *Backend) branchTo(o *operand, values []uint64) (int, bool) {
	if o.kind == opdBlock {
		return o.index, true
	}
	g := b.guest
	var dest uint32
	if o.kind == opdConst {
		dest = uint32(o.bits)
	} else {
		dest = uint32(values[o.index])
	}
	binary.LittleEndian.PutUint32(g.Ctx[g.OffsetPC:], dest)
	return -1, true
}

func boolBits(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

func truncType(t ir.Type, v uint64) uint64 {
	switch t {
	case ir.TypeI8:
		return uint64(uint8(v))
	case ir.TypeI16:
		return uint64(uint16(v))
	case ir.TypeI32:
		return uint64(uint32(v))
	default:
		return v
	}
}

func sext(t ir.Type, v uint64) uint64 {
	switch t {
	case ir.TypeI8:
		return uint64(int64(int8(v)))
	case ir.TypeI16:
		return uint64(int64(int16(v)))
	case ir.TypeI32:
		return uint64(int64(int32(v)))
	default:
		return v
	}
}

func loadBytes(buf []byte, t ir.Type) uint64 {
	switch t.Size() {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(buf))
	case 4:
		return uint64(binary.LittleEndian.Uint32(buf))
	default:
		return binary.LittleEndian.Uint64(buf)
	}
}

func storeBytes(buf []byte, t ir.Type, v uint64) {
	switch t.Size() {
	case 1:
		buf[0] = uint8(v)
	case 2:
		binary.LittleEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(buf, uint32(v))
	default:
		binary.LittleEndian.PutUint64(buf, v)
	}
}

func intCompare(cond ir.Cond, t ir.Type, a, b uint64) bool {
	sa, sb := int64(sext(t, a)), int64(sext(t, b))
	switch cond {
	case ir.CondEQ:
		return a == b
	case ir.CondNE:
		return a != b
	case ir.CondSGE:
		return sa >= sb
	case ir.CondSGT:
		return sa > sb
	case ir.CondUGE:
		return a >= b
	case ir.CondUGT:
		return a > b
	case ir.CondSLE:
		return sa <= sb
	case ir.CondSLT:
		return sa < sb
	case ir.CondULE:
		return a <= b
	case ir.CondULT:
		return a < b
	default:
		panic("BUG: unknown integer condition")
	}
}

func floatCompare(cond ir.FCond, t ir.Type, a, b uint64) bool {
	var fa, fb float64
	if t == ir.TypeF64 {
		fa, fb = math.Float64frombits(a), math.Float64frombits(b)
	} else {
		fa = float64(math.Float32frombits(uint32(a)))
		fb = float64(math.Float32frombits(uint32(b)))
	}
	switch cond {
	case ir.FCondEQ:
		return fa == fb
	case ir.FCondNE:
		return fa != fb
	case ir.FCondGE:
		return fa >= fb
	case ir.FCondGT:
		return fa > fb
	case ir.FCondLE:
		return fa <= fb
	case ir.FCondLT:
		return fa < fb
	default:
		panic("BUG: unknown float condition")
	}
}

func floatBinary(t ir.Type, a, b uint64, f func(a, b float64) float64) uint64 {
	if t == ir.TypeF64 {
		return math.Float64bits(f(math.Float64frombits(a), math.Float64frombits(b)))
	}
	r := f(float64(math.Float32frombits(uint32(a))), float64(math.Float32frombits(uint32(b))))
	return uint64(math.Float32bits(float32(r)))
}

func floatUnary(t ir.Type, a uint64, f func(a float64) float64) uint64 {
	if t == ir.TypeF64 {
		return math.Float64bits(f(math.Float64frombits(a)))
	}
	return uint64(math.Float32bits(float32(f(float64(math.Float32frombits(uint32(a)))))))
}

func shiftDyn(v uint64, n uint32, arith bool) uint64 {
	s := int32(n)
	switch {
	case s >= 0:
		return v << (uint(s) & 31)
	case s&31 == 0:
		if arith && int32(v) < 0 {
			return 0xffffffff
		}
		return 0
	case arith:
		return uint64(uint32(int32(v) >> uint((-s)&31)))
	default:
		return uint64(uint32(v) >> uint((-s)&31))
	}
}
