package sh4

import (
	"fmt"

	"github.com/kamui-emu/kamui/internal/jit/ir"
)

// Instruction flags.
const (
	// FlagBranch marks instructions that transfer control.
	FlagBranch = 1 << iota
	// FlagCond marks conditional branches.
	FlagCond
	// FlagDelayed marks instructions with a delay slot.
	FlagDelayed
	// FlagLoad marks instructions reading guest memory.
	FlagLoad
	// FlagStore marks instructions writing guest memory.
	FlagStore
	// FlagCmp marks instructions writing the T bit.
	FlagCmp
	// FlagLoadPC marks instructions that read the current pc, requiring
	// it synced to the context before translation.
	FlagLoadPC
	// FlagStorePC marks instructions that set the pc; terminators.
	FlagStorePC
	// FlagStoreSR marks instructions replacing the status register.
	FlagStoreSR
	// FlagStoreFPSCR marks instructions replacing fpscr; terminators,
	// since the compile-time FPU assumptions may no longer hold.
	FlagStoreFPSCR
	// FlagUseFPSCR marks instructions whose translation specializes on
	// the fpscr precision/size bits.
	FlagUseFPSCR
)

// Translation specialization flags, derived from fpscr at compile
// time.
const (
	// DoublePR compiles FPU arithmetic for double precision.
	DoublePR = 1 << iota
	// DoubleSZ compiles FPU moves as 64-bit pairs.
	DoubleSZ
)

type translateFn func(g *Guest, unit *ir.IR, addr uint32, op uint16, flags int, delay *ir.InsertPoint)

type fallbackFn func(g *Guest, addr uint32, raw uint32)

// Desc is one row of the opcode table: decode pattern, timing, flags,
// the optional translator and the mandatory interpreter fallback.
type Desc struct {
	Name   string
	Code   string
	Cycles int
	Flags  int

	Translate translateFn
	Fallback  fallbackFn

	mask, bits uint16
}

// field accessors for the 16-bit instruction word
func opRN(op uint16) int        { return int(op>>8) & 0xf }
func opRM(op uint16) int        { return int(op>>4) & 0xf }
func opImm8(op uint16) uint32   { return uint32(op & 0xff) }
func opDisp4(op uint16) uint32  { return uint32(op & 0xf) }
func opDisp8(op uint16) uint32  { return uint32(op & 0xff) }
func opDisp12(op uint16) uint32 { return uint32(op & 0xfff) }

func simm8(op uint16) int32 { return int32(int8(op & 0xff)) }

func simm12(op uint16) int32 {
	v := int32(op & 0xfff)
	if v&0x800 != 0 {
		v -= 0x1000
	}
	return v
}

// lookup maps every possible instruction word to its descriptor, nil
// for invalid encodings. A flat array this size beats hashing the
// pattern every decode.
var lookup [0x10000]*Desc

func init() {
	for i := range descs {
		d := &descs[i]
		if len(d.Code) != 16 {
			panic("BUG: malformed instruction code " + d.Name)
		}
		for n := 0; n < 16; n++ {
			bit := uint16(1) << (15 - n)
			switch d.Code[n] {
			case '0':
				d.mask |= bit
			case '1':
				d.mask |= bit
				d.bits |= bit
			}
		}
	}
	for op := 0; op < 0x10000; op++ {
		for i := range descs {
			d := &descs[i]
			if uint16(op)&d.mask == d.bits {
				lookup[op] = d
				break
			}
		}
	}
}

// Disasm returns the descriptor for an instruction word, nil if the
// word decodes to nothing.
func Disasm(op uint16) *Desc {
	return lookup[op]
}

// Format renders one instruction for block dumps.
func Format(addr uint32, op uint16) string {
	d := lookup[op]
	if d == nil {
		return fmt.Sprintf("%08x: .word 0x%04x", addr, op)
	}
	return fmt.Sprintf("%08x: %-24s ; 0x%04x", addr, d.Name, op)
}

// branch type for idle loop analysis
const (
	branchNone = iota
	branchStatic
	branchCondStatic
	branchDynamic
)

// BranchInfo classifies a branching instruction and computes its
// static target when it has one.
func BranchInfo(addr uint32, op uint16) (kind int, target uint32) {
	d := lookup[op]
	if d == nil || d.Flags&FlagStorePC == 0 {
		return branchNone, 0
	}
	switch d.Code[:4] {
	case "1010": // bra
		return branchStatic, addr + 4 + uint32(simm12(op)*2)
	case "1011": // bsr
		return branchStatic, addr + 4 + uint32(simm12(op)*2)
	case "1000": // bt/bf and the delayed forms
		return branchCondStatic, addr + 4 + uint32(simm8(op)*2)
	}
	return branchDynamic, 0
}

var descs = []Desc{
	// data transfer
	{Name: "mov #imm, rn", Code: "1110nnnniiiiiiii", Cycles: 1, Translate: trMOVI, Fallback: fbMOVI},
	{Name: "mov.w @(disp, pc), rn", Code: "1001nnnndddddddd", Cycles: 1, Flags: FlagLoad | FlagLoadPC, Translate: trMOVWLPC, Fallback: fbMOVWLPC},
	{Name: "mov.l @(disp, pc), rn", Code: "1101nnnndddddddd", Cycles: 1, Flags: FlagLoad | FlagLoadPC, Translate: trMOVLLPC, Fallback: fbMOVLLPC},
	{Name: "mov rm, rn", Code: "0110nnnnmmmm0011", Cycles: 1, Translate: trMOV, Fallback: fbMOV},
	{Name: "mov.b @rm, rn", Code: "0110nnnnmmmm0000", Cycles: 1, Flags: FlagLoad, Translate: trMOVBL, Fallback: fbMOVBL},
	{Name: "mov.w @rm, rn", Code: "0110nnnnmmmm0001", Cycles: 1, Flags: FlagLoad, Translate: trMOVWL, Fallback: fbMOVWL},
	{Name: "mov.l @rm, rn", Code: "0110nnnnmmmm0010", Cycles: 1, Flags: FlagLoad, Translate: trMOVLL, Fallback: fbMOVLL},
	{Name: "mov.b rm, @rn", Code: "0010nnnnmmmm0000", Cycles: 1, Flags: FlagStore, Translate: trMOVBS, Fallback: fbMOVBS},
	{Name: "mov.w rm, @rn", Code: "0010nnnnmmmm0001", Cycles: 1, Flags: FlagStore, Translate: trMOVWS, Fallback: fbMOVWS},
	{Name: "mov.l rm, @rn", Code: "0010nnnnmmmm0010", Cycles: 1, Flags: FlagStore, Translate: trMOVLS, Fallback: fbMOVLS},
	{Name: "mov.b @rm+, rn", Code: "0110nnnnmmmm0100", Cycles: 1, Flags: FlagLoad, Translate: trMOVBP, Fallback: fbMOVBP},
	{Name: "mov.w @rm+, rn", Code: "0110nnnnmmmm0101", Cycles: 1, Flags: FlagLoad, Translate: trMOVWP, Fallback: fbMOVWP},
	{Name: "mov.l @rm+, rn", Code: "0110nnnnmmmm0110", Cycles: 1, Flags: FlagLoad, Translate: trMOVLP, Fallback: fbMOVLP},
	{Name: "mov.b rm, @-rn", Code: "0010nnnnmmmm0100", Cycles: 1, Flags: FlagStore, Translate: trMOVBM, Fallback: fbMOVBM},
	{Name: "mov.w rm, @-rn", Code: "0010nnnnmmmm0101", Cycles: 1, Flags: FlagStore, Translate: trMOVWM, Fallback: fbMOVWM},
	{Name: "mov.l rm, @-rn", Code: "0010nnnnmmmm0110", Cycles: 1, Flags: FlagStore, Translate: trMOVLM, Fallback: fbMOVLM},
	{Name: "mov.b @(disp, rm), r0", Code: "10000100mmmmdddd", Cycles: 1, Flags: FlagLoad, Translate: trMOVBL4, Fallback: fbMOVBL4},
	{Name: "mov.w @(disp, rm), r0", Code: "10000101mmmmdddd", Cycles: 1, Flags: FlagLoad, Translate: trMOVWL4, Fallback: fbMOVWL4},
	{Name: "mov.l @(disp, rm), rn", Code: "0101nnnnmmmmdddd", Cycles: 1, Flags: FlagLoad, Translate: trMOVLL4, Fallback: fbMOVLL4},
	{Name: "mov.b r0, @(disp, rn)", Code: "10000000nnnndddd", Cycles: 1, Flags: FlagStore, Translate: trMOVBS4, Fallback: fbMOVBS4},
	{Name: "mov.w r0, @(disp, rn)", Code: "10000001nnnndddd", Cycles: 1, Flags: FlagStore, Translate: trMOVWS4, Fallback: fbMOVWS4},
	{Name: "mov.l rm, @(disp, rn)", Code: "0001nnnnmmmmdddd", Cycles: 1, Flags: FlagStore, Translate: trMOVLS4, Fallback: fbMOVLS4},
	{Name: "mov.b @(r0, rm), rn", Code: "0000nnnnmmmm1100", Cycles: 1, Flags: FlagLoad, Translate: trMOVBL0, Fallback: fbMOVBL0},
	{Name: "mov.w @(r0, rm), rn", Code: "0000nnnnmmmm1101", Cycles: 1, Flags: FlagLoad, Translate: trMOVWL0, Fallback: fbMOVWL0},
	{Name: "mov.l @(r0, rm), rn", Code: "0000nnnnmmmm1110", Cycles: 1, Flags: FlagLoad, Translate: trMOVLL0, Fallback: fbMOVLL0},
	{Name: "mov.b rm, @(r0, rn)", Code: "0000nnnnmmmm0100", Cycles: 1, Flags: FlagStore, Translate: trMOVBS0, Fallback: fbMOVBS0},
	{Name: "mov.w rm, @(r0, rn)", Code: "0000nnnnmmmm0101", Cycles: 1, Flags: FlagStore, Translate: trMOVWS0, Fallback: fbMOVWS0},
	{Name: "mov.l rm, @(r0, rn)", Code: "0000nnnnmmmm0110", Cycles: 1, Flags: FlagStore, Translate: trMOVLS0, Fallback: fbMOVLS0},
	{Name: "mov.b @(disp, gbr), r0", Code: "11000100dddddddd", Cycles: 1, Flags: FlagLoad, Translate: nil, Fallback: fbMOVBLG},
	{Name: "mov.w @(disp, gbr), r0", Code: "11000101dddddddd", Cycles: 1, Flags: FlagLoad, Translate: nil, Fallback: fbMOVWLG},
	{Name: "mov.l @(disp, gbr), r0", Code: "11000110dddddddd", Cycles: 1, Flags: FlagLoad, Translate: nil, Fallback: fbMOVLLG},
	{Name: "mov.b r0, @(disp, gbr)", Code: "11000000dddddddd", Cycles: 1, Flags: FlagStore, Translate: nil, Fallback: fbMOVBSG},
	{Name: "mov.w r0, @(disp, gbr)", Code: "11000001dddddddd", Cycles: 1, Flags: FlagStore, Translate: nil, Fallback: fbMOVWSG},
	{Name: "mov.l r0, @(disp, gbr)", Code: "11000010dddddddd", Cycles: 1, Flags: FlagStore, Translate: nil, Fallback: fbMOVLSG},
	{Name: "mova @(disp, pc), r0", Code: "11000111dddddddd", Cycles: 1, Flags: FlagLoadPC, Translate: trMOVA, Fallback: fbMOVA},
	{Name: "movt rn", Code: "0000nnnn00101001", Cycles: 1, Translate: trMOVT, Fallback: fbMOVT},
	{Name: "swap.b rm, rn", Code: "0110nnnnmmmm1000", Cycles: 1, Translate: trSWAPB, Fallback: fbSWAPB},
	{Name: "swap.w rm, rn", Code: "0110nnnnmmmm1001", Cycles: 1, Translate: trSWAPW, Fallback: fbSWAPW},
	{Name: "xtrct rm, rn", Code: "0010nnnnmmmm1101", Cycles: 1, Translate: trXTRCT, Fallback: fbXTRCT},

	// arithmetic
	{Name: "add rm, rn", Code: "0011nnnnmmmm1100", Cycles: 1, Translate: trADD, Fallback: fbADD},
	{Name: "add #imm, rn", Code: "0111nnnniiiiiiii", Cycles: 1, Translate: trADDI, Fallback: fbADDI},
	{Name: "addc rm, rn", Code: "0011nnnnmmmm1110", Cycles: 1, Translate: trADDC, Fallback: fbADDC},
	{Name: "addv rm, rn", Code: "0011nnnnmmmm1111", Cycles: 1, Fallback: fbADDV},
	{Name: "cmp/eq #imm, r0", Code: "10001000iiiiiiii", Cycles: 1, Flags: FlagCmp, Translate: trCMPEQI, Fallback: fbCMPEQI},
	{Name: "cmp/eq rm, rn", Code: "0011nnnnmmmm0000", Cycles: 1, Flags: FlagCmp, Translate: trCMPEQ, Fallback: fbCMPEQ},
	{Name: "cmp/hs rm, rn", Code: "0011nnnnmmmm0010", Cycles: 1, Flags: FlagCmp, Translate: trCMPHS, Fallback: fbCMPHS},
	{Name: "cmp/ge rm, rn", Code: "0011nnnnmmmm0011", Cycles: 1, Flags: FlagCmp, Translate: trCMPGE, Fallback: fbCMPGE},
	{Name: "cmp/hi rm, rn", Code: "0011nnnnmmmm0110", Cycles: 1, Flags: FlagCmp, Translate: trCMPHI, Fallback: fbCMPHI},
	{Name: "cmp/gt rm, rn", Code: "0011nnnnmmmm0111", Cycles: 1, Flags: FlagCmp, Translate: trCMPGT, Fallback: fbCMPGT},
	{Name: "cmp/pz rn", Code: "0100nnnn00010001", Cycles: 1, Flags: FlagCmp, Translate: trCMPPZ, Fallback: fbCMPPZ},
	{Name: "cmp/pl rn", Code: "0100nnnn00010101", Cycles: 1, Flags: FlagCmp, Translate: trCMPPL, Fallback: fbCMPPL},
	{Name: "cmp/str rm, rn", Code: "0010nnnnmmmm1100", Cycles: 1, Flags: FlagCmp, Fallback: fbCMPSTR},
	{Name: "div0s rm, rn", Code: "0010nnnnmmmm0111", Cycles: 1, Flags: FlagCmp, Fallback: fbDIV0S},
	{Name: "div0u", Code: "0000000000011001", Cycles: 1, Flags: FlagCmp, Translate: trDIV0U, Fallback: fbDIV0U},
	{Name: "div1 rm, rn", Code: "0011nnnnmmmm0100", Cycles: 1, Flags: FlagCmp, Fallback: fbDIV1},
	{Name: "dmuls.l rm, rn", Code: "0011nnnnmmmm1101", Cycles: 2, Fallback: fbDMULS},
	{Name: "dmulu.l rm, rn", Code: "0011nnnnmmmm0101", Cycles: 2, Fallback: fbDMULU},
	{Name: "dt rn", Code: "0100nnnn00010000", Cycles: 1, Flags: FlagCmp, Translate: trDT, Fallback: fbDT},
	{Name: "exts.b rm, rn", Code: "0110nnnnmmmm1110", Cycles: 1, Translate: trEXTSB, Fallback: fbEXTSB},
	{Name: "exts.w rm, rn", Code: "0110nnnnmmmm1111", Cycles: 1, Translate: trEXTSW, Fallback: fbEXTSW},
	{Name: "extu.b rm, rn", Code: "0110nnnnmmmm1100", Cycles: 1, Translate: trEXTUB, Fallback: fbEXTUB},
	{Name: "extu.w rm, rn", Code: "0110nnnnmmmm1101", Cycles: 1, Translate: trEXTUW, Fallback: fbEXTUW},
	{Name: "mac.l @rm+, @rn+", Code: "0000nnnnmmmm1111", Cycles: 2, Flags: FlagLoad, Fallback: fbMACL},
	{Name: "mac.w @rm+, @rn+", Code: "0100nnnnmmmm1111", Cycles: 2, Flags: FlagLoad, Fallback: fbMACW},
	{Name: "mul.l rm, rn", Code: "0000nnnnmmmm0111", Cycles: 2, Translate: trMULL, Fallback: fbMULL},
	{Name: "muls.w rm, rn", Code: "0010nnnnmmmm1111", Cycles: 2, Translate: trMULS, Fallback: fbMULS},
	{Name: "mulu.w rm, rn", Code: "0010nnnnmmmm1110", Cycles: 2, Translate: trMULU, Fallback: fbMULU},
	{Name: "neg rm, rn", Code: "0110nnnnmmmm1011", Cycles: 1, Translate: trNEG, Fallback: fbNEG},
	{Name: "negc rm, rn", Code: "0110nnnnmmmm1010", Cycles: 1, Fallback: fbNEGC},
	{Name: "sub rm, rn", Code: "0011nnnnmmmm1000", Cycles: 1, Translate: trSUB, Fallback: fbSUB},
	{Name: "subc rm, rn", Code: "0011nnnnmmmm1010", Cycles: 1, Fallback: fbSUBC},
	{Name: "subv rm, rn", Code: "0011nnnnmmmm1011", Cycles: 1, Fallback: fbSUBV},

	// logic
	{Name: "and rm, rn", Code: "0010nnnnmmmm1001", Cycles: 1, Translate: trAND, Fallback: fbAND},
	{Name: "and #imm, r0", Code: "11001001iiiiiiii", Cycles: 1, Translate: trANDI, Fallback: fbANDI},
	{Name: "and.b #imm, @(r0, gbr)", Code: "11001101iiiiiiii", Cycles: 3, Flags: FlagLoad | FlagStore, Fallback: fbANDB},
	{Name: "not rm, rn", Code: "0110nnnnmmmm0111", Cycles: 1, Translate: trNOT, Fallback: fbNOT},
	{Name: "or rm, rn", Code: "0010nnnnmmmm1011", Cycles: 1, Translate: trOR, Fallback: fbOR},
	{Name: "or #imm, r0", Code: "11001011iiiiiiii", Cycles: 1, Translate: trORI, Fallback: fbORI},
	{Name: "or.b #imm, @(r0, gbr)", Code: "11001111iiiiiiii", Cycles: 3, Flags: FlagLoad | FlagStore, Fallback: fbORB},
	{Name: "tas.b @rn", Code: "0100nnnn00011011", Cycles: 4, Flags: FlagLoad | FlagStore, Fallback: fbTAS},
	{Name: "tst rm, rn", Code: "0010nnnnmmmm1000", Cycles: 1, Flags: FlagCmp, Translate: trTST, Fallback: fbTST},
	{Name: "tst #imm, r0", Code: "11001000iiiiiiii", Cycles: 1, Flags: FlagCmp, Translate: trTSTI, Fallback: fbTSTI},
	{Name: "tst.b #imm, @(r0, gbr)", Code: "11001100iiiiiiii", Cycles: 3, Flags: FlagLoad | FlagCmp, Fallback: fbTSTB},
	{Name: "xor rm, rn", Code: "0010nnnnmmmm1010", Cycles: 1, Translate: trXOR, Fallback: fbXOR},
	{Name: "xor #imm, r0", Code: "11001010iiiiiiii", Cycles: 1, Translate: trXORI, Fallback: fbXORI},
	{Name: "xor.b #imm, @(r0, gbr)", Code: "11001110iiiiiiii", Cycles: 3, Flags: FlagLoad | FlagStore, Fallback: fbXORB},

	// shifts
	{Name: "rotl rn", Code: "0100nnnn00000100", Cycles: 1, Flags: FlagCmp, Translate: trROTL, Fallback: fbROTL},
	{Name: "rotr rn", Code: "0100nnnn00000101", Cycles: 1, Flags: FlagCmp, Translate: trROTR, Fallback: fbROTR},
	{Name: "rotcl rn", Code: "0100nnnn00100100", Cycles: 1, Flags: FlagCmp, Fallback: fbROTCL},
	{Name: "rotcr rn", Code: "0100nnnn00100101", Cycles: 1, Flags: FlagCmp, Fallback: fbROTCR},
	{Name: "shad rm, rn", Code: "0100nnnnmmmm1100", Cycles: 1, Translate: trSHAD, Fallback: fbSHAD},
	{Name: "shal rn", Code: "0100nnnn00100000", Cycles: 1, Flags: FlagCmp, Translate: trSHAL, Fallback: fbSHAL},
	{Name: "shar rn", Code: "0100nnnn00100001", Cycles: 1, Flags: FlagCmp, Translate: trSHAR, Fallback: fbSHAR},
	{Name: "shld rm, rn", Code: "0100nnnnmmmm1101", Cycles: 1, Translate: trSHLD, Fallback: fbSHLD},
	{Name: "shll rn", Code: "0100nnnn00000000", Cycles: 1, Flags: FlagCmp, Translate: trSHLL, Fallback: fbSHLL},
	{Name: "shlr rn", Code: "0100nnnn00000001", Cycles: 1, Flags: FlagCmp, Translate: trSHLR, Fallback: fbSHLR},
	{Name: "shll2 rn", Code: "0100nnnn00001000", Cycles: 1, Translate: trSHLL2, Fallback: fbSHLL2},
	{Name: "shlr2 rn", Code: "0100nnnn00001001", Cycles: 1, Translate: trSHLR2, Fallback: fbSHLR2},
	{Name: "shll8 rn", Code: "0100nnnn00011000", Cycles: 1, Translate: trSHLL8, Fallback: fbSHLL8},
	{Name: "shlr8 rn", Code: "0100nnnn00011001", Cycles: 1, Translate: trSHLR8, Fallback: fbSHLR8},
	{Name: "shll16 rn", Code: "0100nnnn00101000", Cycles: 1, Translate: trSHLL16, Fallback: fbSHLL16},
	{Name: "shlr16 rn", Code: "0100nnnn00101001", Cycles: 1, Translate: trSHLR16, Fallback: fbSHLR16},

	// branches
	{Name: "bf disp", Code: "10001011dddddddd", Cycles: 2, Flags: FlagBranch | FlagCond | FlagStorePC, Translate: trBF, Fallback: fbBF},
	{Name: "bf/s disp", Code: "10001111dddddddd", Cycles: 2, Flags: FlagBranch | FlagCond | FlagDelayed | FlagStorePC, Translate: trBFS, Fallback: fbBFS},
	{Name: "bt disp", Code: "10001001dddddddd", Cycles: 2, Flags: FlagBranch | FlagCond | FlagStorePC, Translate: trBT, Fallback: fbBT},
	{Name: "bt/s disp", Code: "10001101dddddddd", Cycles: 2, Flags: FlagBranch | FlagCond | FlagDelayed | FlagStorePC, Translate: trBTS, Fallback: fbBTS},
	{Name: "bra disp", Code: "1010dddddddddddd", Cycles: 2, Flags: FlagBranch | FlagDelayed | FlagStorePC, Translate: trBRA, Fallback: fbBRA},
	{Name: "braf rn", Code: "0000nnnn00100011", Cycles: 2, Flags: FlagBranch | FlagDelayed | FlagStorePC | FlagLoadPC, Translate: trBRAF, Fallback: fbBRAF},
	{Name: "bsr disp", Code: "1011dddddddddddd", Cycles: 2, Flags: FlagBranch | FlagDelayed | FlagStorePC | FlagLoadPC, Translate: trBSR, Fallback: fbBSR},
	{Name: "bsrf rn", Code: "0000nnnn00000011", Cycles: 2, Flags: FlagBranch | FlagDelayed | FlagStorePC | FlagLoadPC, Translate: trBSRF, Fallback: fbBSRF},
	{Name: "jmp @rn", Code: "0100nnnn00101011", Cycles: 2, Flags: FlagBranch | FlagDelayed | FlagStorePC, Translate: trJMP, Fallback: fbJMP},
	{Name: "jsr @rn", Code: "0100nnnn00001011", Cycles: 2, Flags: FlagBranch | FlagDelayed | FlagStorePC | FlagLoadPC, Translate: trJSR, Fallback: fbJSR},
	{Name: "rts", Code: "0000000000001011", Cycles: 2, Flags: FlagBranch | FlagDelayed | FlagStorePC, Translate: trRTS, Fallback: fbRTS},
	{Name: "rte", Code: "0000000000101011", Cycles: 4, Flags: FlagBranch | FlagDelayed | FlagStorePC | FlagStoreSR, Fallback: fbRTE},

	// system
	{Name: "clrmac", Code: "0000000000101000", Cycles: 1, Translate: trCLRMAC, Fallback: fbCLRMAC},
	{Name: "clrs", Code: "0000000001001000", Cycles: 1, Translate: trCLRS, Fallback: fbCLRS},
	{Name: "clrt", Code: "0000000000001000", Cycles: 1, Translate: trCLRT, Fallback: fbCLRT},
	{Name: "ldc rm, sr", Code: "0100nnnn00001110", Cycles: 4, Flags: FlagStoreSR, Translate: trLDCSR, Fallback: fbLDCSR},
	{Name: "ldc rm, gbr", Code: "0100nnnn00011110", Cycles: 3, Translate: trLDCGBR, Fallback: fbLDCGBR},
	{Name: "ldc rm, vbr", Code: "0100nnnn00101110", Cycles: 1, Translate: trLDCVBR, Fallback: fbLDCVBR},
	{Name: "ldc rm, ssr", Code: "0100nnnn00111110", Cycles: 1, Fallback: fbLDCSSR},
	{Name: "ldc rm, spc", Code: "0100nnnn01001110", Cycles: 1, Fallback: fbLDCSPC},
	{Name: "ldc rm, dbr", Code: "0100nnnn11111010", Cycles: 1, Fallback: fbLDCDBR},
	{Name: "ldc rm, rp_bank", Code: "0100nnnn1ppp1110", Cycles: 1, Fallback: fbLDCRBANK},
	{Name: "ldc.l @rm+, gbr", Code: "0100nnnn00010111", Cycles: 3, Flags: FlagLoad, Fallback: fbLDCLGBR},
	{Name: "ldc.l @rm+, vbr", Code: "0100nnnn00100111", Cycles: 1, Flags: FlagLoad, Fallback: fbLDCLVBR},
	{Name: "lds rm, mach", Code: "0100nnnn00001010", Cycles: 1, Translate: trLDSMACH, Fallback: fbLDSMACH},
	{Name: "lds rm, macl", Code: "0100nnnn00011010", Cycles: 1, Translate: trLDSMACL, Fallback: fbLDSMACL},
	{Name: "lds rm, pr", Code: "0100nnnn00101010", Cycles: 1, Translate: trLDSPR, Fallback: fbLDSPR},
	{Name: "lds.l @rm+, pr", Code: "0100nnnn00100110", Cycles: 1, Flags: FlagLoad, Translate: trLDSLPR, Fallback: fbLDSLPR},
	{Name: "lds rm, fpscr", Code: "0100nnnn01101010", Cycles: 1, Flags: FlagStoreFPSCR, Translate: trLDSFPSCR, Fallback: fbLDSFPSCR},
	{Name: "lds.l @rm+, fpscr", Code: "0100nnnn01100110", Cycles: 1, Flags: FlagLoad | FlagStoreFPSCR, Fallback: fbLDSLFPSCR},
	{Name: "lds rm, fpul", Code: "0100nnnn01011010", Cycles: 1, Translate: trLDSFPUL, Fallback: fbLDSFPUL},
	{Name: "lds.l @rm+, fpul", Code: "0100nnnn01010110", Cycles: 1, Flags: FlagLoad, Fallback: fbLDSLFPUL},
	{Name: "ldtlb", Code: "0000000000111000", Cycles: 1, Fallback: fbLDTLB},
	{Name: "movca.l r0, @rn", Code: "0000nnnn11000011", Cycles: 1, Flags: FlagStore, Fallback: fbMOVCAL},
	{Name: "nop", Code: "0000000000001001", Cycles: 1, Translate: trNOP, Fallback: fbNOP},
	{Name: "ocbi @rn", Code: "0000nnnn10010011", Cycles: 1, Translate: trNOPAddr, Fallback: fbNOPAddr},
	{Name: "ocbp @rn", Code: "0000nnnn10100011", Cycles: 1, Translate: trNOPAddr, Fallback: fbNOPAddr},
	{Name: "ocbwb @rn", Code: "0000nnnn10110011", Cycles: 1, Translate: trNOPAddr, Fallback: fbNOPAddr},
	{Name: "pref @rn", Code: "0000nnnn10000011", Cycles: 1, Fallback: fbPREF},
	{Name: "sets", Code: "0000000001011000", Cycles: 1, Translate: trSETS, Fallback: fbSETS},
	{Name: "sett", Code: "0000000000011000", Cycles: 1, Translate: trSETT, Fallback: fbSETT},
	{Name: "sleep", Code: "0000000000011011", Cycles: 4, Flags: FlagStorePC, Fallback: fbSLEEP},
	{Name: "stc sr, rn", Code: "0000nnnn00000010", Cycles: 2, Fallback: fbSTCSR},
	{Name: "stc gbr, rn", Code: "0000nnnn00010010", Cycles: 2, Translate: trSTCGBR, Fallback: fbSTCGBR},
	{Name: "stc vbr, rn", Code: "0000nnnn00100010", Cycles: 2, Translate: trSTCVBR, Fallback: fbSTCVBR},
	{Name: "stc ssr, rn", Code: "0000nnnn00110010", Cycles: 2, Fallback: fbSTCSSR},
	{Name: "stc spc, rn", Code: "0000nnnn01000010", Cycles: 2, Fallback: fbSTCSPC},
	{Name: "stc sgr, rn", Code: "0000nnnn00111010", Cycles: 3, Fallback: fbSTCSGR},
	{Name: "stc dbr, rn", Code: "0000nnnn11111010", Cycles: 2, Fallback: fbSTCDBR},
	{Name: "stc.l sr, @-rn", Code: "0100nnnn00000011", Cycles: 2, Flags: FlagStore, Fallback: fbSTCLSR},
	{Name: "stc.l gbr, @-rn", Code: "0100nnnn00010011", Cycles: 2, Flags: FlagStore, Fallback: fbSTCLGBR},
	{Name: "stc.l vbr, @-rn", Code: "0100nnnn00100011", Cycles: 2, Flags: FlagStore, Fallback: fbSTCLVBR},
	{Name: "sts mach, rn", Code: "0000nnnn00001010", Cycles: 1, Translate: trSTSMACH, Fallback: fbSTSMACH},
	{Name: "sts macl, rn", Code: "0000nnnn00011010", Cycles: 1, Translate: trSTSMACL, Fallback: fbSTSMACL},
	{Name: "sts pr, rn", Code: "0000nnnn00101010", Cycles: 2, Translate: trSTSPR, Fallback: fbSTSPR},
	{Name: "sts.l pr, @-rn", Code: "0100nnnn00100010", Cycles: 2, Flags: FlagStore, Translate: trSTSLPR, Fallback: fbSTSLPR},
	{Name: "sts fpscr, rn", Code: "0000nnnn01101010", Cycles: 1, Translate: trSTSFPSCR, Fallback: fbSTSFPSCR},
	{Name: "sts.l fpscr, @-rn", Code: "0100nnnn01100010", Cycles: 1, Flags: FlagStore, Fallback: fbSTSLFPSCR},
	{Name: "sts fpul, rn", Code: "0000nnnn01011010", Cycles: 1, Translate: trSTSFPUL, Fallback: fbSTSFPUL},
	{Name: "sts.l fpul, @-rn", Code: "0100nnnn01010010", Cycles: 1, Flags: FlagStore, Fallback: fbSTSLFPUL},
	{Name: "trapa #imm", Code: "11000011iiiiiiii", Cycles: 7, Flags: FlagStorePC | FlagLoadPC, Fallback: fbTRAPA},

	// fpu
	{Name: "fldi0 frn", Code: "1111nnnn10001101", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFLDI0, Fallback: fbFLDI0},
	{Name: "fldi1 frn", Code: "1111nnnn10011101", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFLDI1, Fallback: fbFLDI1},
	{Name: "fmov frm, frn", Code: "1111nnnnmmmm1100", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFMOV, Fallback: fbFMOV},
	{Name: "fmov.s @rm, frn", Code: "1111nnnnmmmm1000", Cycles: 1, Flags: FlagLoad | FlagUseFPSCR, Translate: trFMOVLD, Fallback: fbFMOVLD},
	{Name: "fmov.s frm, @rn", Code: "1111nnnnmmmm1010", Cycles: 1, Flags: FlagStore | FlagUseFPSCR, Translate: trFMOVST, Fallback: fbFMOVST},
	{Name: "fmov.s @rm+, frn", Code: "1111nnnnmmmm1001", Cycles: 1, Flags: FlagLoad | FlagUseFPSCR, Translate: trFMOVRS, Fallback: fbFMOVRS},
	{Name: "fmov.s frm, @-rn", Code: "1111nnnnmmmm1011", Cycles: 1, Flags: FlagStore | FlagUseFPSCR, Translate: trFMOVSV, Fallback: fbFMOVSV},
	{Name: "fmov.s @(r0, rm), frn", Code: "1111nnnnmmmm0110", Cycles: 1, Flags: FlagLoad | FlagUseFPSCR, Translate: trFMOVIDX, Fallback: fbFMOVIDX},
	{Name: "fmov.s frm, @(r0, rn)", Code: "1111nnnnmmmm0111", Cycles: 1, Flags: FlagStore | FlagUseFPSCR, Translate: trFMOVIDXST, Fallback: fbFMOVIDXST},
	{Name: "fadd frm, frn", Code: "1111nnnnmmmm0000", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFADD, Fallback: fbFADD},
	{Name: "fsub frm, frn", Code: "1111nnnnmmmm0001", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFSUB, Fallback: fbFSUB},
	{Name: "fmul frm, frn", Code: "1111nnnnmmmm0010", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFMUL, Fallback: fbFMUL},
	{Name: "fdiv frm, frn", Code: "1111nnnnmmmm0011", Cycles: 11, Flags: FlagUseFPSCR, Translate: trFDIV, Fallback: fbFDIV},
	{Name: "fcmp/eq frm, frn", Code: "1111nnnnmmmm0100", Cycles: 1, Flags: FlagCmp | FlagUseFPSCR, Translate: trFCMPEQ, Fallback: fbFCMPEQ},
	{Name: "fcmp/gt frm, frn", Code: "1111nnnnmmmm0101", Cycles: 1, Flags: FlagCmp | FlagUseFPSCR, Translate: trFCMPGT, Fallback: fbFCMPGT},
	{Name: "fmac fr0, frm, frn", Code: "1111nnnnmmmm1110", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFMAC, Fallback: fbFMAC},
	{Name: "fneg frn", Code: "1111nnnn01001101", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFNEG, Fallback: fbFNEG},
	{Name: "fabs frn", Code: "1111nnnn01011101", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFABS, Fallback: fbFABS},
	{Name: "fsqrt frn", Code: "1111nnnn01101101", Cycles: 9, Flags: FlagUseFPSCR, Translate: trFSQRT, Fallback: fbFSQRT},
	{Name: "fsrra frn", Code: "1111nnnn01111101", Cycles: 1, Flags: FlagUseFPSCR, Fallback: fbFSRRA},
	{Name: "flds frm, fpul", Code: "1111nnnn00011101", Cycles: 1, Translate: trFLDS, Fallback: fbFLDS},
	{Name: "fsts fpul, frn", Code: "1111nnnn00001101", Cycles: 1, Translate: trFSTS, Fallback: fbFSTS},
	{Name: "float fpul, frn", Code: "1111nnnn00101101", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFLOAT, Fallback: fbFLOAT},
	{Name: "ftrc frn, fpul", Code: "1111nnnn00111101", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFTRC, Fallback: fbFTRC},
	{Name: "fcnvds drm, fpul", Code: "1111nnn010111101", Cycles: 1, Flags: FlagUseFPSCR, Fallback: fbFCNVDS},
	{Name: "fcnvsd fpul, drn", Code: "1111nnn010101101", Cycles: 1, Flags: FlagUseFPSCR, Fallback: fbFCNVSD},
	{Name: "fipr fvm, fvn", Code: "1111nnmm11101101", Cycles: 1, Flags: FlagUseFPSCR, Translate: trFIPR, Fallback: fbFIPR},
	{Name: "ftrv xmtrx, fvn", Code: "1111nn0111111101", Cycles: 1, Flags: FlagUseFPSCR, Fallback: fbFTRV},
	{Name: "fsca fpul, drn", Code: "1111nnn011111101", Cycles: 1, Flags: FlagUseFPSCR, Fallback: fbFSCA},
	{Name: "frchg", Code: "1111101111111101", Cycles: 1, Flags: FlagStoreFPSCR, Fallback: fbFRCHG},
	{Name: "fschg", Code: "1111001111111101", Cycles: 1, Flags: FlagStoreFPSCR, Fallback: fbFSCHG},
}
