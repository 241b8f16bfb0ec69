package sh4

import (
	"encoding/binary"
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

var testBase uint32 = 0x8c000000

// testGuest builds a guest whose memory is the given instruction
// stream at testBase.
func testGuest(words ...uint16) *Guest {
	mem := make([]byte, len(words)*2)
	for i, w := range words {
		binary.LittleEndian.PutUint16(mem[i*2:], w)
	}
	g := &Guest{
		Guest: &guest.Guest{
			Ctx: make([]byte, CtxSize),
			R16: func(_ uintptr, addr uint32) uint16 {
				off := addr - testBase
				if int(off)+2 > len(mem) {
					return 0xfffd // undefined encoding
				}
				return binary.LittleEndian.Uint16(mem[off:])
			},
		},
	}
	g.R32 = func(_ uintptr, addr uint32) uint32 {
		lo := uint32(g.R16(0, addr))
		hi := uint32(g.R16(0, addr+2))
		return hi<<16 | lo
	}
	return g
}

func TestAnalyze_terminatesOnBranch(t *testing.T) {
	// add r1, r2; mov r3, r4; bra; nop (delay slot)
	f := NewFrontend(testGuest(
		0x321c, // add r1, r2
		0x6433, // mov r3, r4
		0xa004, // bra
		0x0009, // nop
		0x0009, // unreachable
	))
	require.Equal(t, 8, f.AnalyzeCode(testBase))
}

func TestAnalyze_delaySlotAlwaysIncluded(t *testing.T) {
	// rts; delay slot
	f := NewFrontend(testGuest(
		0x000b, // rts
		0x0009, // nop
	))
	require.Equal(t, 4, f.AnalyzeCode(testBase))
}

func TestAnalyze_terminatesOnFPSCRStore(t *testing.T) {
	f := NewFrontend(testGuest(
		0x321c, // add r1, r2
		0x4c6a, // lds r12, fpscr
		0x0009, // unreachable
	))
	require.Equal(t, 4, f.AnalyzeCode(testBase))
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

func TestTranslate_sourceInfoPerInstruction(t *testing.T) {
	f := NewFrontend(testGuest(
		0xe10a, // mov #10, r1
		0x312c, // add r2, r1
		0xa002, // bra
		0x0009, // nop
	))
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	f.TranslateCode(testBase, size, unit)

	// one marker per translated instruction; the delay slot folds into
	// its branch's expansion
	require.Equal(t, 3, countOps(unit, ir.OpSourceInfo))
}

func TestTranslate_delaySlotBeforeBranch(t *testing.T) {
	// bra with "mov #1, r3" in the delay slot: the r3 store must be
	// emitted before the pc-setting branch
	f := NewFrontend(testGuest(
		0xa002, // bra testBase+8
		0xe301, // mov #1, r3
	))
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	f.TranslateCode(testBase, size, unit)

	sawR3Store := false
	for instr := unit.Blocks().Head(); instr != nil; instr = instr.Next() {
		if instr.Op == ir.OpStoreContext && instr.Arg(0).I32() == int32(CtxR+3*4) {
			sawR3Store = true
		}
		if instr.Op == ir.OpBranch {
			require.True(t, sawR3Store, "delay slot effects must precede the branch")
			require.Equal(t, int32(testBase+8), instr.Arg(0).I32())
		}
	}
	require.True(t, sawR3Store)
}

func TestTranslate_synthesizedTerminator(t *testing.T) {
	// block ends by running off the analyzed range without setting pc
	g := testGuest(
		0xe10a, // mov #10, r1
		0x4c6a, // lds r12, fpscr (terminator, not a pc store)
	)
	f := NewFrontend(g)
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	require.Equal(t, 4, size)
	f.TranslateCode(testBase, size, unit)

	var last *ir.Instr
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			last = instr
		}
	}
	require.Equal(t, ir.OpBranch, last.Op)
	require.Equal(t, int32(testBase+4), last.Arg(0).I32())
}

func TestTranslate_fpscrSpecializationAssert(t *testing.T) {
	// fadd fr2, fr4 uses the fpscr state: an assert_eq guard must be
	// emitted at the head of the block
	f := NewFrontend(testGuest(
		0xf420, // fadd fr2, fr4
		0xa002, // bra
		0x0009, // nop
	))
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	f.TranslateCode(testBase, size, unit)

	require.Equal(t, 1, countOps(unit, ir.OpAssertEq))

	// the assert sits directly after the first source_info marker
	head := unit.Blocks().Head()
	require.Equal(t, ir.OpSourceInfo, head.Op)
	found := false
	for instr := head; instr != nil; instr = instr.Next() {
		if instr.Op == ir.OpAssertEq {
			found = true
			break
		}
		if instr.Op == ir.OpSourceInfo && instr != head {
			break
		}
	}
	require.True(t, found, "assert must precede the second guest instruction")
}

func TestTranslate_fallbackForUntranslated(t *testing.T) {
	// mac.l has no translator, so its expansion is a fallback call
	f := NewFrontend(testGuest(
		0x02ff, // mac.l @r15+, @r2+
		0xa002, // bra
		0x0009, // nop
	))
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	f.TranslateCode(testBase, size, unit)

	require.Equal(t, 1, countOps(unit, ir.OpFallback))
}

func TestTranslate_idleLoopScalesCycles(t *testing.T) {
	// mov.l @r1, r2; tst r2, r2; bt -4 : a canonical idle spin
	idle := []uint16{
		0x6212, // mov.l @r1, r2
		0x2228, // tst r2, r2
		0x89fc, // bt begin (disp -4)
	}
	f := NewFrontend(testGuest(idle...))
	unit := ir.New()
	size := f.AnalyzeCode(testBase)
	require.Equal(t, 6, size)
	f.TranslateCode(testBase, size, unit)

	// every source_info cycle count carries the idle scale
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			if instr.Op == ir.OpSourceInfo {
				cycles := instr.Arg(1).I32()
				require.Equal(t, int32(0), cycles%idleCycleScale)
			}
		}
	}

	// the same body without the load does not qualify
	f2 := NewFrontend(testGuest(
		0x6213, // mov r1, r2
		0x2228, // tst r2, r2
		0x89fc, // bt begin
	))
	require.False(t, f2.isIdleLoop(testBase))
}

func TestDisasm_decode(t *testing.T) {
	tests := []struct {
		op   uint16
		name string
	}{
		{0xe10a, "mov #imm, rn"},
		{0x321c, "add rm, rn"},
		{0xa004, "bra disp"},
		{0x000b, "rts"},
		{0x0009, "nop"},
		{0x4c6a, "lds rm, fpscr"},
		{0xf420, "fadd frm, frn"},
		{0x6212, "mov.l @rm, rn"},
		{0x8b03, "bf disp"},
		{0x4123, "stc.l vbr, @-rn"},
	}
	for _, tc := range tests {
		d := Disasm(tc.op)
		require.NotNil(t, d, tc.name)
		require.Equal(t, tc.name, d.Name)
	}
}

func TestFallback_basicALU(t *testing.T) {
	g := testGuest(0x0009)
	c := ctx(g.Ctx)

	c.setReg(1, 7)
	c.setReg(2, 5)
	fbADD(g, testBase, 0x312c) // add r2, r1
	require.Equal(t, uint32(12), c.reg(1))
	require.Equal(t, uint32(testBase+2), c.pc())

	fbCMPEQ(g, testBase, 0x3120) // cmp/eq r2, r1
	require.Equal(t, uint32(0), c.t())

	c.setReg(3, 0x80000000)
	fbSHLL(g, testBase, 0x4300) // shll r3
	require.Equal(t, uint32(1), c.t())
	require.Equal(t, uint32(0), c.reg(3))
}

func TestFallback_delayedBranch(t *testing.T) {
	// bra +4 with "mov #5, r1" in the delay slot
	g := testGuest(
		0xa002, // bra testBase+8
		0xe105, // mov #5, r1
	)
	c := ctx(g.Ctx)

	fbBRA(g, testBase, 0xa002)
	require.Equal(t, uint32(5), c.reg(1), "delay slot executed")
	require.Equal(t, uint32(testBase+8), c.pc())
}

func TestFallback_div1(t *testing.T) {
	// 100 / 7 via the canonical div0u + 32x div1 sequence
	g := testGuest(0x0009)
	c := ctx(g.Ctx)

	dividend := uint32(100)
	divisor := uint32(7)

	c.setReg(1, divisor)
	c.setReg(2, 0) // high word of dividend
	c.setReg(3, dividend)

	fbDIV0U(g, testBase, 0x0019)
	for i := 0; i < 32; i++ {
		// rotcl r3 (shift dividend into r2)
		fbROTCL(g, testBase, 0x4324)
		// div1 r1, r2
		fbDIV1(g, testBase, 0x3214)
	}
	// quotient = r3 rotated through carry once more
	fbROTCL(g, testBase, 0x4324)

	require.Equal(t, dividend/divisor, c.reg(3))
}
