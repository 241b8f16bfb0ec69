package ir

import (
	"strings"
	"testing"

	"github.com/kamui-emu/kamui/internal/testing/require"
)

// checkUseLists validates both directions of the use-list invariant:
// every argument slot holding a value appears exactly once in that
// value's use list, and every use node reads back the value it is
// registered on.
func checkUseLists(t *testing.T, unit *IR) {
	t.Helper()
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			for n := 0; n < MaxArgs; n++ {
				arg := instr.Arg(n)
				if arg == nil {
					continue
				}
				found := 0
				for _, u := range arg.Uses() {
					if u.Instr == instr && u.Slot == n {
						found++
					}
				}
				require.Equal(t, 1, found, "argument slot not registered exactly once")
			}
		}
	}
	// reverse direction: walk every value's uses
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			if instr.Result == nil {
				continue
			}
			for _, u := range instr.Result.Uses() {
				require.Equal(t, instr.Result, u.Instr.Arg(u.Slot))
			}
		}
	}
}

func TestBuilder_useListConsistency(t *testing.T) {
	unit := New()
	unit.AppendBlock()

	x := unit.LoadContext(0x10, TypeI32)
	y := unit.LoadContext(0x14, TypeI32)
	sum := unit.Add(x, y)
	sum2 := unit.Add(sum, x)
	unit.StoreContext(0x18, sum2)

	checkUseLists(t, unit)

	// x is used by both adds
	require.Equal(t, 2, len(x.Uses()))
	require.Equal(t, 1, len(sum.Uses()))
}

func TestBuilder_replaceUses(t *testing.T) {
	unit := New()
	unit.AppendBlock()

	x := unit.LoadContext(0x10, TypeI32)
	y := unit.Add(x, unit.AllocI32(1))
	unit.StoreContext(0x18, y)
	unit.StoreContext(0x1c, y)

	zero := unit.AllocI32(0)
	unit.ReplaceUses(y, zero)

	checkUseLists(t, unit)
	require.Equal(t, 0, len(y.Uses()))
	require.Equal(t, 2, len(zero.Uses()))

	// both stores read the constant now
	var stores []*Instr
	for instr := unit.Blocks().Head(); instr != nil; instr = instr.Next() {
		if instr.Op == OpStoreContext {
			stores = append(stores, instr)
		}
	}
	require.Equal(t, 2, len(stores))
	for _, st := range stores {
		require.Equal(t, zero, st.Arg(1))
	}
}

func TestBuilder_removeInstr(t *testing.T) {
	unit := New()
	unit.AppendBlock()

	x := unit.LoadContext(0x10, TypeI32)
	y := unit.Add(x, unit.AllocI32(1))
	load := x.Def

	unit.ReplaceUses(y, unit.AllocI32(0))
	unit.RemoveInstr(y.Def)
	require.Equal(t, 0, len(x.Uses()))

	unit.RemoveInstr(load)
	require.Nil(t, unit.Blocks().Head())
	checkUseLists(t, unit)
}

func TestBuilder_insertPoint(t *testing.T) {
	unit := New()
	unit.AppendBlock()

	unit.SourceInfo(0x8c001000, 1)
	point := unit.GetInsertPoint()
	unit.SourceInfo(0x8c001002, 1)

	// emit at the captured midpoint, the way a delay slot translation is
	unit.SetInsertPoint(point)
	unit.StoreContext(0x20, unit.AllocI32(7))

	var ops []Op
	for instr := unit.Blocks().Head(); instr != nil; instr = instr.Next() {
		ops = append(ops, instr.Op)
	}
	require.Equal(t, []Op{OpSourceInfo, OpStoreContext, OpSourceInfo}, ops)
}

func TestBuilder_edgeSymmetry(t *testing.T) {
	unit := New()
	b0 := unit.AppendBlock()
	b1 := unit.AppendBlock()
	b2 := unit.AppendBlock()

	unit.SetCurrentBlock(b0)
	cond := unit.LoadContext(0x0, TypeI32)
	unit.BranchTrue(cond, unit.AllocBlockRef(b1))
	unit.Branch(unit.AllocBlockRef(b2))

	for block := unit.Blocks(); block != nil; block = block.Next() {
		for _, edge := range block.Outgoing {
			found := false
			for _, mirror := range edge.Dst.Incoming {
				if mirror == edge {
					found = true
				}
			}
			require.True(t, found, "missing mirror edge")
		}
	}
	require.Equal(t, 2, len(b0.Outgoing))
	require.Equal(t, 1, len(b1.Incoming))
	require.Equal(t, 1, len(b2.Incoming))
}

func TestBuilder_locals(t *testing.T) {
	unit := New()
	unit.AppendBlock()

	a := unit.AllocLocal(TypeI32)
	b := unit.AllocLocal(TypeI64)
	c := unit.AllocLocal(TypeI8)

	require.Equal(t, 0, a.Offset)
	require.Equal(t, 8, b.Offset) // aligned up from 4
	require.Equal(t, 16, c.Offset)
	require.Equal(t, 17, unit.LocalsSize)
}

func TestBuilder_constants(t *testing.T) {
	unit := New()

	require.Equal(t, int32(-1), unit.AllocI32(-1).I32())
	require.Equal(t, uint64(0xff), unit.AllocI8(-1).ZextConstant())
	require.Equal(t, float32(1.5), unit.AllocF32(1.5).F32())
	require.Equal(t, 2.5, unit.AllocF64(2.5).F64())
	require.True(t, unit.AllocI32(0).IsConstant())
}

func TestWriter_roundTrip(t *testing.T) {
	unit := New()
	b0 := unit.AppendBlock()
	b1 := unit.AppendBlock()

	unit.SetCurrentBlock(b0)
	unit.SourceInfo(0x8c001000, 2)
	x := unit.LoadContext(0x100, TypeI32)
	y := unit.Add(x, unit.AllocI32(4))
	unit.StoreContext(0x104, y)
	f := unit.LoadContext(0x200, TypeF32)
	unit.StoreContext(0x204, unit.Fmul(f, unit.AllocF32(0.5)))
	cond := unit.CmpEQ(y, unit.AllocI32(0))
	unit.BranchTrue(cond, unit.AllocBlockRef(b1))

	unit.SetCurrentBlock(b1)
	unit.Branch(unit.AllocI32(0x1008))

	var buf strings.Builder
	require.NoError(t, NewWriter().Write(unit, &buf))

	parsed := New()
	require.NoError(t, NewReader().Read(strings.NewReader(buf.String()), parsed))

	var buf2 strings.Builder
	require.NoError(t, NewWriter().Write(parsed, &buf2))
	require.Equal(t, buf.String(), buf2.String())

	checkUseLists(t, parsed)

	// edges were reconstructed
	require.Equal(t, 1, len(parsed.Blocks().Outgoing))
}
