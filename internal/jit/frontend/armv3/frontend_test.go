package armv3

import (
	"encoding/binary"
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

const testBase = 0x00000000

func testGuest(words ...uint32) *Guest {
	mem := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(mem[i*4:], w)
	}
	g := &Guest{
		Guest: &guest.Guest{
			Ctx: make([]byte, CtxSize),
			R32: func(_ uintptr, addr uint32) uint32 {
				off := addr - testBase
				if int(off)+4 > len(mem) {
					return 0x07ffffff // undefined encoding
				}
				return binary.LittleEndian.Uint32(mem[off:])
			},
		},
	}
	ctx(g.Ctx).setCPSR(ModeSvc)
	return g
}

func TestAnalyze_terminators(t *testing.T) {
	tests := []struct {
		name  string
		words []uint32
		size  int
	}{
		{"branch ends block", []uint32{
			0xe0811002, // add r1, r1, r2
			0xeafffffe, // b .
			0xe0811002,
		}, 8},
		{"mov pc ends block", []uint32{
			0xe1a0f00e, // mov pc, lr
			0xe0811002,
		}, 4},
		{"ldm with pc ends block", []uint32{
			0xe8bd8000, // ldmia sp!, {pc}
			0xe0811002,
		}, 4},
		{"swi ends block", []uint32{
			0xef000042, // swi #0x42
			0xe0811002,
		}, 4},
		{"msr ends block", []uint32{
			0xe129f001, // msr cpsr, r1
			0xe0811002,
		}, 4},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFrontend(testGuest(tc.words...))
			require.Equal(t, tc.size, f.AnalyzeCode(testBase))
		})
	}
}

func TestTranslate_branch(t *testing.T) {
	f := NewFrontend(testGuest(
		0xea000002, // b +16 (pc+8+8)
	))
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	f.TranslateCode(testBase, size, unit)

	var branch *ir.Instr
	for instr := unit.Blocks().Head(); instr != nil; instr = instr.Next() {
		if instr.Op == ir.OpBranch {
			branch = instr
		}
	}
	require.NotNil(t, branch)
	require.Equal(t, int32(testBase+16), branch.Arg(0).I32())
}

func TestTranslate_predicatedGoesToFallback(t *testing.T) {
	f := NewFrontend(testGuest(
		0x00811002, // addeq r1, r1, r2
		0xea000000, // b
	))
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	f.TranslateCode(testBase, size, unit)

	require.Equal(t, 1, countOps(unit, ir.OpFallback))
}

func countOps(unit *ir.IR, op ir.Op) int {
	n := 0
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			if instr.Op == op {
				n++
			}
		}
	}
	return n
}

func TestTranslate_dataProcessing(t *testing.T) {
	f := NewFrontend(testGuest(
		0xe2811004, // add r1, r1, #4
		0xe1a0f00e, // mov pc, lr
	))
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	f.TranslateCode(testBase, size, unit)

	// the add is inlined, mov pc, lr interpreted
	foundAdd := false
	for instr := unit.Blocks().Head(); instr != nil; instr = instr.Next() {
		if instr.Op == ir.OpAdd {
			foundAdd = true
		}
	}
	require.True(t, foundAdd)
}

func TestFallback_dataFlags(t *testing.T) {
	g := testGuest(0xe0000000)
	c := ctx(g.Ctx)

	// subs r0, r1, r2 with r1 == r2 sets Z and C
	c.setReg(1, 7)
	c.setReg(2, 7)
	fbData(g, testBase, 0xe0510002)
	require.Equal(t, uint32(0), c.reg(0))
	require.True(t, c.cpsr()&ZMask != 0)
	require.True(t, c.cpsr()&CMask != 0)

	// cmp r1, #8 clears C (borrow), sets N
	fbData(g, testBase, 0xe3510008)
	require.True(t, c.cpsr()&CMask == 0)
	require.True(t, c.cpsr()&NMask != 0)
}

func TestFallback_conditionCodes(t *testing.T) {
	g := testGuest(0xe0000000)
	c := ctx(g.Ctx)

	// moveq r0, #1 with Z clear does nothing
	c.setCPSR(c.cpsr() &^ uint32(ZMask))
	fbData(g, testBase, 0x03a00001)
	require.Equal(t, uint32(0), c.reg(0))

	// with Z set it writes
	c.setCPSR(c.cpsr() | ZMask)
	fbData(g, testBase, 0x03a00001)
	require.Equal(t, uint32(1), c.reg(0))
}

func TestFallback_blockTransfer(t *testing.T) {
	store := map[uint32]uint32{}
	g := testGuest(0xe0000000)
	g.W32 = func(_ uintptr, addr uint32, v uint32) { store[addr] = v }
	g.R32 = func(_ uintptr, addr uint32) uint32 { return store[addr] }
	c := ctx(g.Ctx)

	c.setReg(13, 0x1000)
	c.setReg(0, 0xaa)
	c.setReg(1, 0xbb)

	// stmdb sp!, {r0, r1}
	fbBlk(g, testBase, 0xe92d0003)
	require.Equal(t, uint32(0xff8), c.reg(13))
	require.Equal(t, uint32(0xaa), store[0xff8])
	require.Equal(t, uint32(0xbb), store[0xffc])

	// ldmia sp!, {r2, r3}
	fbBlk(g, testBase, 0xe8bd000c)
	require.Equal(t, uint32(0x1000), c.reg(13))
	require.Equal(t, uint32(0xaa), c.reg(2))
	require.Equal(t, uint32(0xbb), c.reg(3))
}

func TestSwitchMode_banksRegisters(t *testing.T) {
	g := testGuest(0xe0000000)
	c := ctx(g.Ctx)

	c.setReg(13, 0x1111)
	g.switchMode(ModeIrq)
	c.setReg(13, 0x2222)
	g.switchMode(ModeSvc)

	require.Equal(t, uint32(0x1111), c.reg(13), "svc entered with its own bank")
	g.switchMode(ModeIrq)
	require.Equal(t, uint32(0x2222), c.reg(13), "irq r13 preserved")
}
