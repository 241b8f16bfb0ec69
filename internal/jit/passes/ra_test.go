package passes

import (
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/backend"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

func testRegisters(ints, floats int) []backend.RegisterDef {
	var defs []backend.RegisterDef
	for i := 0; i < ints; i++ {
		defs = append(defs, backend.RegisterDef{
			Name: "r" + string(rune('0'+i)), ValueTypes: backend.MaskInt,
			Flags: backend.Allocate | backend.CalleeSave,
		})
	}
	for i := 0; i < floats; i++ {
		defs = append(defs, backend.RegisterDef{
			Name: "x" + string(rune('0'+i)), ValueTypes: backend.MaskFloat,
			Flags: backend.Allocate | backend.CallerSave,
		})
	}
	return defs
}

// checkComplete asserts the ra completeness property: every value with
// a live use is constant, has a host register, or reads from a local.
func checkComplete(t *testing.T, unit *ir.IR) {
	t.Helper()
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			if instr.Result == nil || len(instr.Result.Uses()) == 0 {
				continue
			}
			require.NotEqual(t, ir.NoRegister, instr.Result.Reg)
		}
	}
}

func TestRA_simple(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	x := unit.LoadContext(0x0, ir.TypeI32)
	y := unit.LoadContext(0x4, ir.TypeI32)
	sum := unit.Add(x, y)
	unit.StoreContext(0x8, sum)

	var ra RA
	ra.init(testRegisters(4, 2), nil)
	ra.Run(unit)

	checkComplete(t, unit)
	require.NotEqual(t, ir.NoRegister, x.Reg)
	require.NotEqual(t, ir.NoRegister, y.Reg)
}

func TestRA_reuseArg0(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	x := unit.LoadContext(0x0, ir.TypeI32)
	y := unit.LoadContext(0x4, ir.TypeI32)
	r := unit.Add(x, y)
	unit.StoreContext(0x8, r)
	// y lives past the add
	unit.StoreContext(0xc, y)

	var ra RA
	ra.init(testRegisters(4, 0), nil)
	ra.Run(unit)

	// x has no later use, so the add's result takes x's register
	require.Equal(t, x.Reg, r.Reg)
	require.NotEqual(t, y.Reg, r.Reg)
	checkComplete(t, unit)
}

func TestRA_reuseArg0HonorsEmitterFlags(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	x := unit.LoadContext(0x0, ir.TypeI32)
	y := unit.LoadContext(0x4, ir.TypeI32)
	r := unit.Add(x, y)
	unit.StoreContext(0x8, r)

	// an emitter table without the reuse flag on add forbids the
	// heuristic even though x is dead
	emitters := make([]backend.EmitterDef, ir.NumOps)

	var ra RA
	ra.init(testRegisters(4, 0), emitters)
	ra.Run(unit)

	require.NotEqual(t, x.Reg, r.Reg)
	checkComplete(t, unit)
}

func TestRA_typePartition(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	i := unit.LoadContext(0x0, ir.TypeI32)
	f := unit.LoadContext(0x10, ir.TypeF32)
	unit.StoreContext(0x4, i)
	unit.StoreContext(0x14, unit.Fadd(f, f))

	regs := testRegisters(2, 2)
	var ra RA
	ra.init(regs, nil)
	ra.Run(unit)

	require.Equal(t, backend.MaskInt, regs[i.Reg].ValueTypes)
	require.Equal(t, backend.MaskFloat, regs[f.Reg].ValueTypes)
}

func TestRA_spillsFurthestNextUse(t *testing.T) {
	// three int registers and four simultaneously live values whose next
	// uses are ordered v0 < v1 < v2: allocating the fourth must spill
	// exactly one value, the one with the furthest next use (v2)
	unit := ir.New()
	unit.AppendBlock()

	v0 := unit.LoadContext(0x0, ir.TypeI32)
	v1 := unit.LoadContext(0x4, ir.TypeI32)
	v2 := unit.LoadContext(0x8, ir.TypeI32)
	v3 := unit.LoadContext(0xc, ir.TypeI32)

	unit.StoreContext(0x10, v0)
	unit.StoreContext(0x14, v1)
	unit.StoreContext(0x18, v2)
	unit.StoreContext(0x1c, v3)

	var ra RA
	ra.init(testRegisters(3, 0), nil)
	ra.Run(unit)

	var stores, loads []*ir.Instr
	for _, instr := range instrs(unit) {
		switch instr.Op {
		case ir.OpStoreLocal:
			stores = append(stores, instr)
		case ir.OpLoadLocal:
			loads = append(loads, instr)
		}
	}
	require.Equal(t, 1, len(stores), "exactly one value is spilled")
	require.Equal(t, 1, len(loads))

	// the spilled value is v2
	require.Equal(t, v2, stores[0].Arg(1))

	// v2's consumer now reads the fill
	var consumer *ir.Instr
	for _, instr := range instrs(unit) {
		if instr.Op == ir.OpStoreContext && instr.Arg(0).I32() == 0x18 {
			consumer = instr
		}
	}
	require.NotNil(t, consumer)
	require.Equal(t, ir.OpLoadLocal, consumer.Arg(1).Def.Op)

	checkComplete(t, unit)
}

func TestRA_spillStoreAfterDef(t *testing.T) {
	// the spilled value had no realized use before the spill, so the
	// store_local must land immediately after its definition
	unit := ir.New()
	unit.AppendBlock()

	v0 := unit.LoadContext(0x0, ir.TypeI32)
	v1 := unit.LoadContext(0x4, ir.TypeI32)
	v2 := unit.LoadContext(0x8, ir.TypeI32)
	unit.StoreContext(0x10, v0)
	unit.StoreContext(0x14, v1)
	unit.StoreContext(0x18, v2)

	var ra RA
	ra.init(testRegisters(2, 0), nil)
	ra.Run(unit)

	// v1 is spilled when v2 is allocated; its spill store directly
	// follows its defining load
	def := v1.Def
	require.NotNil(t, def.Next())
	require.Equal(t, ir.OpStoreLocal, def.Next().Op)
	checkComplete(t, unit)
}
