package passes

import (
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

func instrs(unit *ir.IR) []*ir.Instr {
	var out []*ir.Instr
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			out = append(out, instr)
		}
	}
	return out
}

func ops(unit *ir.IR) []ir.Op {
	var out []ir.Op
	for _, instr := range instrs(unit) {
		out = append(out, instr.Op)
	}
	return out
}

func TestLSE_redundantLoadAfterStore(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	zero := unit.AllocI32(0)
	unit.StoreContext(0x100, zero)
	v := unit.LoadContext(0x100, ir.TypeI32)
	unit.StoreContext(0x200, v)

	var lse LSE
	lse.Run(unit)

	require.Equal(t, []ir.Op{ir.OpStoreContext, ir.OpStoreContext}, ops(unit))

	// the surviving second store reads the constant directly
	second := instrs(unit)[1]
	require.Equal(t, zero, second.Arg(1))
}

func TestLSE_deadStore(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	unit.StoreContext(0x100, unit.AllocI32(5))
	seven := unit.AllocI32(7)
	unit.StoreContext(0x100, seven)
	unit.Branch(unit.AllocI32(0x1000))

	var lse LSE
	lse.Run(unit)

	require.Equal(t, []ir.Op{ir.OpStoreContext, ir.OpBranch}, ops(unit))
	require.Equal(t, seven, instrs(unit)[0].Arg(1))
}

func TestLSE_aliasingByWidth(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	unit.StoreContext(0x100, unit.AllocI64(0x1122334455667788))
	v := unit.LoadContext(0x100, ir.TypeI32)
	unit.StoreContext(0x200, v)

	var lse LSE
	lse.Run(unit)

	// different type, no forwarding: the load survives
	require.Equal(t, []ir.Op{ir.OpStoreContext, ir.OpLoadContext, ir.OpStoreContext}, ops(unit))
}

func TestLSE_widerReadOverNarrowerWrite(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	// an i32 store at 0x104 lands inside the span of an i64 read at
	// 0x100; the read must miss
	unit.StoreContext(0x104, unit.AllocI32(7))
	v := unit.LoadContext(0x100, ir.TypeI64)
	unit.StoreContext(0x200, v)

	var lse LSE
	lse.Run(unit)

	require.Equal(t, []ir.Op{ir.OpStoreContext, ir.OpLoadContext, ir.OpStoreContext}, ops(unit))
}

func TestLSE_fallbackIsBarrier(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	unit.StoreContext(0x100, unit.AllocI32(1))
	unit.Fallback(0xdead, 0x8c001000, 0x0009)
	v := unit.LoadContext(0x100, ir.TypeI32)
	unit.StoreContext(0x104, v)

	var lse LSE
	lse.Run(unit)

	// the fallback may observe and mutate the context: the first store
	// stays and the load is not forwarded
	require.Equal(t, []ir.Op{
		ir.OpStoreContext, ir.OpFallback, ir.OpLoadContext, ir.OpStoreContext,
	}, ops(unit))
}

func TestLSE_deadStoreJoinNeedsAllSuccessors(t *testing.T) {
	// blk0 stores 0x100 then branches to blk1 or blk2; only blk1
	// overwrites 0x100. The store in blk0 must survive.
	unit := ir.New()
	b0 := unit.AppendBlock()
	b1 := unit.AppendBlock()
	b2 := unit.AppendBlock()

	unit.SetCurrentBlock(b0)
	unit.StoreContext(0x100, unit.AllocI32(1))
	cond := unit.LoadContext(0x0, ir.TypeI8)
	unit.BranchTrue(cond, unit.AllocBlockRef(b1))
	unit.Branch(unit.AllocBlockRef(b2))

	unit.SetCurrentBlock(b1)
	unit.StoreContext(0x100, unit.AllocI32(2))
	unit.Branch(unit.AllocI32(0x2000))

	unit.SetCurrentBlock(b2)
	unit.StoreContext(0x200, unit.AllocI32(3))
	unit.Branch(unit.AllocI32(0x3000))

	var lse LSE
	lse.Run(unit)

	count := 0
	for instr := b0.Head(); instr != nil; instr = instr.Next() {
		if instr.Op == ir.OpStoreContext {
			count++
		}
	}
	require.Equal(t, 1, count, "store in blk0 must survive the partial join")
}

func TestLSE_forwardAcrossEdge(t *testing.T) {
	// a store in blk0 forwards to a load in its successor
	unit := ir.New()
	b0 := unit.AppendBlock()
	b1 := unit.AppendBlock()

	unit.SetCurrentBlock(b0)
	one := unit.AllocI32(1)
	unit.StoreContext(0x100, one)
	unit.Branch(unit.AllocBlockRef(b1))

	unit.SetCurrentBlock(b1)
	v := unit.LoadContext(0x100, ir.TypeI32)
	unit.StoreContext(0x104, v)
	unit.Branch(unit.AllocI32(0x2000))

	var lse LSE
	lse.Run(unit)

	for instr := b1.Head(); instr != nil; instr = instr.Next() {
		require.NotEqual(t, ir.OpLoadContext, instr.Op)
		if instr.Op == ir.OpStoreContext {
			require.Equal(t, one, instr.Arg(1))
		}
	}
}

// externally visible events (fallbacks, calls, guest memory traffic)
// must be untouched by lse in order and count.
func TestLSE_preservesExternalEvents(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	unit.StoreContext(0x100, unit.AllocI32(1))
	unit.Fallback(0x1000, 0x8c000000, 1)
	unit.StoreGuest(unit.AllocI32(0x1000), unit.AllocI32(2))
	unit.Fallback(0x2000, 0x8c000002, 2)
	unit.StoreContext(0x100, unit.AllocI32(3))

	var lse LSE
	lse.Run(unit)

	require.Equal(t, []ir.Op{
		ir.OpStoreContext, ir.OpFallback, ir.OpStoreGuest,
		ir.OpFallback, ir.OpStoreContext,
	}, ops(unit))
}
