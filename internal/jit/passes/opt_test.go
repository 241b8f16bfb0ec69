package passes

import (
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

func TestCprop_foldChain(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	a := unit.Add(unit.AllocI32(3), unit.AllocI32(4))
	b := unit.Shli(a, 1)
	unit.StoreContext(0x10, b)

	Cprop(unit)
	Dce(unit)

	all := instrs(unit)
	require.Equal(t, 1, len(all))
	require.Equal(t, ir.OpStoreContext, all[0].Op)
	require.Equal(t, int32(14), all[0].Arg(1).I32())
	require.True(t, all[0].Arg(1).IsConstant())
}

func TestCprop_determinism(t *testing.T) {
	// an ir of only foldable ops with constant inputs reduces entirely
	unit := ir.New()
	unit.AppendBlock()

	a := unit.And(unit.AllocI32(0xff0), unit.AllocI32(0x0ff))
	b := unit.Or(a, unit.AllocI32(0x100))
	c := unit.Xor(b, unit.AllocI32(0x0f0))
	d := unit.Sub(c, unit.AllocI32(1))
	e := unit.Umul(d, unit.AllocI32(2))
	f := unit.Lshr(e, unit.AllocI32(1))
	g := unit.Not(f)
	h := unit.Neg(g)
	unit.StoreContext(0x0, h)

	Cprop(unit)

	for _, instr := range instrs(unit) {
		require.Equal(t, ir.OpStoreContext, instr.Op, "everything but the store folds")
	}
	st := instrs(unit)[0]
	require.True(t, st.Arg(1).IsConstant())

	want := ^((((uint32(0xff0) & 0x0ff) | 0x100) ^ 0x0f0 - 1) * 2 >> 1)
	want = -want
	require.Equal(t, int32(want), st.Arg(1).I32())
}

func TestCprop_unary(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	v := unit.Not(unit.AllocI32(0))
	unit.StoreContext(0x0, v)

	Cprop(unit)

	st := instrs(unit)[0]
	require.Equal(t, ir.OpStoreContext, st.Op)
	require.Equal(t, int32(-1), st.Arg(1).I32())
}

func TestEsimp_identities(t *testing.T) {
	tests := []struct {
		name  string
		build func(unit *ir.IR, x *ir.Value) *ir.Value
		// wantX is true if the op simplifies to x itself, otherwise the
		// result must be the constant zero
		wantX bool
	}{
		{"xor_self", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Xor(x, x) }, false},
		{"and_self", func(u *ir.IR, x *ir.Value) *ir.Value { return u.And(x, x) }, true},
		{"or_self", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Or(x, x) }, true},
		{"and_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.And(x, u.AllocI32(0)) }, false},
		{"umul_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Umul(x, u.AllocI32(0)) }, false},
		{"smul_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Smul(x, u.AllocI32(0)) }, false},
		{"add_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Add(x, u.AllocI32(0)) }, true},
		{"sub_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Sub(x, u.AllocI32(0)) }, true},
		{"or_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Or(x, u.AllocI32(0)) }, true},
		{"xor_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Xor(x, u.AllocI32(0)) }, true},
		{"shl_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Shli(x, 0) }, true},
		{"lshr_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Lshri(x, 0) }, true},
		{"ashr_zero", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Ashri(x, 0) }, true},
		{"umul_one", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Umul(x, u.AllocI32(1)) }, true},
		{"smul_one", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Smul(x, u.AllocI32(1)) }, true},
		{"div_one", func(u *ir.IR, x *ir.Value) *ir.Value { return u.Div(x, u.AllocI32(1)) }, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			unit := ir.New()
			unit.AppendBlock()

			x := unit.LoadContext(0x10, ir.TypeI32)
			r := tc.build(unit, x)
			unit.StoreContext(0x20, r)

			Esimp(unit)

			st := instrs(unit)[len(instrs(unit))-1]
			require.Equal(t, ir.OpStoreContext, st.Op)
			if tc.wantX {
				require.Equal(t, x, st.Arg(1))
			} else {
				require.True(t, st.Arg(1).IsConstant())
				require.Equal(t, int32(0), st.Arg(1).I32())
			}
		})
	}
}

func TestDce_removesDeadChains(t *testing.T) {
	unit := ir.New()
	unit.AppendBlock()

	x := unit.LoadContext(0x10, ir.TypeI32)
	dead1 := unit.Add(x, unit.AllocI32(1))
	_ = unit.Add(dead1, unit.AllocI32(2)) // feeds nothing
	live := unit.Sub(x, unit.AllocI32(3))
	unit.StoreContext(0x20, live)

	Dce(unit)

	require.Equal(t, []ir.Op{ir.OpLoadContext, ir.OpSub, ir.OpStoreContext}, ops(unit))
}

func TestDce_idempotent(t *testing.T) {
	build := func() *ir.IR {
		unit := ir.New()
		unit.AppendBlock()
		x := unit.LoadContext(0x10, ir.TypeI32)
		a := unit.Add(x, unit.AllocI32(1))
		_ = unit.Xor(a, a)
		unit.StoreContext(0x20, x)
		return unit
	}

	once := build()
	Dce(once)

	twice := build()
	Dce(twice)
	Dce(twice)

	require.Equal(t, ops(once), ops(twice))
}
