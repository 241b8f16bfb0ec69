package jit

import (
	"encoding/binary"
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/backend/interp"
	"github.com/kamui-emu/kamui/internal/jit/frontend/sh4"
	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

// End-to-end: guest code compiled through the full frontend → passes
// pipeline and executed by the interpreter backend.

const e2eBase = 0x0

func buildSH4Guest(words ...uint16) *sh4.Guest {
	mem := make([]byte, 0x10000)
	for i, w := range words {
		binary.LittleEndian.PutUint16(mem[i*2:], w)
	}

	g := &sh4.Guest{
		Guest: &guest.Guest{
			Ctx:      make([]byte, sh4.CtxSize),
			Mem:      mem,
			AddrMask: 0xfffe,

			OffsetPC:         sh4.CtxPC,
			OffsetCycles:     sh4.CtxCycles,
			OffsetInstrs:     sh4.CtxInstrs,
			OffsetInterrupts: sh4.CtxIntr,

			CheckInterrupts: func() {},
		},
	}
	g.R8 = func(_ uintptr, addr uint32) uint8 { return mem[addr&0xffff] }
	g.R16 = func(_ uintptr, addr uint32) uint16 {
		return binary.LittleEndian.Uint16(mem[addr&0xffff:])
	}
	g.R32 = func(_ uintptr, addr uint32) uint32 {
		return binary.LittleEndian.Uint32(mem[addr&0xffff:])
	}
	g.R64 = func(_ uintptr, addr uint32) uint64 {
		return binary.LittleEndian.Uint64(mem[addr&0xffff:])
	}
	g.W8 = func(_ uintptr, addr uint32, v uint8) { mem[addr&0xffff] = v }
	g.W16 = func(_ uintptr, addr uint32, v uint16) {
		binary.LittleEndian.PutUint16(mem[addr&0xffff:], v)
	}
	g.W32 = func(_ uintptr, addr uint32, v uint32) {
		binary.LittleEndian.PutUint32(mem[addr&0xffff:], v)
	}
	g.W64 = func(_ uintptr, addr uint32, v uint64) {
		binary.LittleEndian.PutUint64(mem[addr&0xffff:], v)
	}
	return g
}

func runSH4(t *testing.T, g *sh4.Guest, cycles int32) *JIT {
	t.Helper()

	be := interp.New(g.Guest)
	fe := sh4.NewFrontend(g)
	j, err := New(Config{Tag: "sh4"}, g.Guest, fe, be)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	g.CompileCode = j.CompileBlock

	j.Run(cycles)
	return j
}

func ctxReg(g *sh4.Guest, n int) uint32 {
	return binary.LittleEndian.Uint32(g.Ctx[sh4.CtxR+n*4:])
}

func TestEndToEnd_arithmetic(t *testing.T) {
	// mov #5, r1; mov #7, r2; add r1, r2; shll2 r2; spin
	g := buildSH4Guest(
		0xe105, // mov #5, r1
		0xe207, // mov #7, r2
		0x321c, // add r1, r2
		0x4208, // shll2 r2
		0xaffe, // bra . (spin until the budget runs out)
		0x0009, // nop
	)

	j := runSH4(t, g, 200)

	require.Equal(t, uint32(5), ctxReg(g, 1))
	require.Equal(t, uint32(48), ctxReg(g, 2))

	// the guest-to-host map covers every non-delay-slot instruction of
	// the first block
	block := j.getBlock(0)
	require.NotNil(t, block)
	require.Equal(t, 5, len(block.AddrMap))
	require.Equal(t, uint32(0), block.AddrMap[0].GuestAddr)
	require.Equal(t, uint32(8), block.AddrMap[4].GuestAddr)
}

func TestEndToEnd_memoryAndBranches(t *testing.T) {
	// store 0x11223344 to 0x8000 via r3, reload it into r4, then take
	// a conditional branch on the comparison
	g := buildSH4Guest(
		0xd304, // mov.l @(4, pc), r3   ; loads the constant pool value
		0xe480, // mov #-128, r4
		0x4418, // shll8 r4
		0x2432, // mov.l r3, @r4
		0x6542, // mov.l @r4, r5
		0x3530, // cmp/eq r3, r5
		0x8b01, // bf +2 (not taken)
		0xe601, // mov #1, r6
		0xaffe, // bra .
		0x0009, // nop
		0x3344, // constant pool: 0x11223344
		0x1122,
	)

	runSH4(t, g, 500)

	require.Equal(t, uint32(0x11223344), ctxReg(g, 5))
	require.Equal(t, uint32(1), ctxReg(g, 6), "bf with T set falls through")
}

func TestEndToEnd_fallbackInstruction(t *testing.T) {
	// cmp/str has no translator: its interpreter fallback must run
	// inside the compiled block
	g := buildSH4Guest(
		0xe141, // mov #0x41, r1
		0xe241, // mov #0x41, r2
		0x212c, // cmp/str r2, r1
		0x0129, // movt r1
		0xaffe, // bra .
		0x0009, // nop
	)

	runSH4(t, g, 200)

	require.Equal(t, uint32(1), ctxReg(g, 1), "matching byte sets T")
}

func TestEndToEnd_delaySlot(t *testing.T) {
	// bra jumps over the mov #9; its delay slot mov #3 still executes
	g := buildSH4Guest(
		0xa001, // bra +2 (to 0x6)
		0xe303, // mov #3, r3 (delay slot)
		0xe309, // mov #9, r3 (skipped)
		0xaffe, // bra .
		0x0009, // nop
	)

	runSH4(t, g, 200)

	require.Equal(t, uint32(3), ctxReg(g, 3))
}

func TestEndToEnd_loop(t *testing.T) {
	// sum 1..10 with dt: r1 counter, r2 accumulator
	g := buildSH4Guest(
		0xe10a, // mov #10, r1
		0xe200, // mov #0, r2
		0x321c, // add r1, r2     <- loop head 0x4
		0x4110, // dt r1
		0x8bfc, // bf -4 (to 0x4)
		0xaffe, // bra .
		0x0009, // nop
	)

	runSH4(t, g, 2000)

	require.Equal(t, uint32(55), ctxReg(g, 2))
	require.Equal(t, uint32(0), ctxReg(g, 1))
}
