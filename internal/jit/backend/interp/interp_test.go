package interp

import (
	"encoding/binary"
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

func testGuest() *guest.Guest {
	return &guest.Guest{
		AddrMask:         0xfe,
		Ctx:              make([]byte, 512),
		OffsetPC:         0,
		OffsetCycles:     4,
		OffsetInstrs:     8,
		OffsetInterrupts: 12,
		CheckInterrupts:  func() {},
	}
}

func TestInterp_executeUnit(t *testing.T) {
	g := testGuest()
	b := New(g)

	g.CompileCode = func(pc uint32) {
		unit := ir.New()
		unit.AppendBlock()
		unit.SourceInfo(pc, 1)

		switch pc {
		case 0:
			v := unit.Add(unit.AllocI32(2), unit.AllocI32(3))
			unit.StoreContext(0x20, unit.Shli(v, 4))
			unit.Branch(unit.AllocI32(0x10))
		default:
			// spin here until the budget is gone
			unit.Branch(unit.AllocI32(int32(pc)))
		}

		host, _, err := b.AssembleCode(unit, false, nil)
		require.NoError(t, err)
		b.CacheCode(pc, host)
	}

	b.RunCode(20)

	require.Equal(t, uint32(80), binary.LittleEndian.Uint32(g.Ctx[0x20:]))
	require.Equal(t, uint32(0x10), binary.LittleEndian.Uint32(g.Ctx[0:]))
}

func TestInterp_intraUnitBranches(t *testing.T) {
	g := testGuest()
	b := New(g)

	g.CompileCode = func(pc uint32) {
		unit := ir.New()
		b0 := unit.AppendBlock()
		b1 := unit.AppendBlock()
		b2 := unit.AppendBlock()

		unit.SetCurrentBlock(b0)
		unit.SourceInfo(pc, 1)
		cond := unit.CmpEQ(unit.LoadContext(0x30, ir.TypeI32), unit.AllocI32(7))
		unit.BranchTrue(unit.Zext(cond, ir.TypeI32), unit.AllocBlockRef(b2))
		unit.Branch(unit.AllocBlockRef(b1))

		unit.SetCurrentBlock(b1)
		unit.StoreContext(0x34, unit.AllocI32(111))
		unit.Branch(unit.AllocI32(0x10))

		unit.SetCurrentBlock(b2)
		unit.StoreContext(0x34, unit.AllocI32(222))
		unit.Branch(unit.AllocI32(0x10))

		host, _, err := b.AssembleCode(unit, false, nil)
		require.NoError(t, err)
		b.CacheCode(pc, host)
	}

	binary.LittleEndian.PutUint32(g.Ctx[0x30:], 7)
	b.RunCode(1)

	require.Equal(t, uint32(222), binary.LittleEndian.Uint32(g.Ctx[0x34:]))
}

func TestInterp_invalidateResetsSlot(t *testing.T) {
	g := testGuest()
	b := New(g)

	compiles := 0
	g.CompileCode = func(pc uint32) {
		compiles++
		unit := ir.New()
		unit.AppendBlock()
		unit.SourceInfo(pc, 1)
		unit.Branch(unit.AllocI32(int32(pc)))
		host, _, err := b.AssembleCode(unit, false, nil)
		require.NoError(t, err)
		b.CacheCode(pc, host)
	}

	b.RunCode(2)
	require.Equal(t, 1, compiles)

	b.InvalidateCode(0)
	b.RunCode(2)
	require.Equal(t, 2, compiles)
}
