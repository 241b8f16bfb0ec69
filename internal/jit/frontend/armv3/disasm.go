package armv3

import (
	"fmt"

	"github.com/kamui-emu/kamui/internal/jit/ir"
)

// Instruction class flags.
const (
	// FlagBranch marks b/bl.
	FlagBranch = 1 << iota
	// FlagData marks data processing ops; writing r15 sets the pc.
	FlagData
	// FlagPSR marks mrs/msr.
	FlagPSR
	// FlagXfr marks single data transfers; loading r15 sets the pc.
	FlagXfr
	// FlagBlk marks block transfers; a register list with r15 sets the
	// pc.
	FlagBlk
	// FlagSWI marks the software interrupt.
	FlagSWI
	// FlagMul marks multiplies.
	FlagMul
	// FlagSwp marks the atomic swap.
	FlagSwp
)

// Condition field values.
const (
	CondEQ = iota
	CondNE
	CondCS
	CondCC
	CondMI
	CondPL
	CondVS
	CondVC
	CondHI
	CondLS
	CondGE
	CondLT
	CondGT
	CondLE
	CondAL
	CondNV
)

type translateFn func(g *Guest, unit *ir.IR, addr uint32, op uint32)

type fallbackFn func(g *Guest, addr uint32, raw uint32)

// Desc is one row of the opcode table.
type Desc struct {
	Name   string
	Code   string // 12 chars covering bits 27..20 and 7..4
	Cycles int
	Flags  int

	Translate translateFn
	Fallback  fallbackFn

	mask, bits uint16
}

// field accessors
func opCond(op uint32) int { return int(op >> 28) }
func opRN32(op uint32) int { return int(op>>16) & 0xf }
func opRD32(op uint32) int { return int(op>>12) & 0xf }
func opRS32(op uint32) int { return int(op>>8) & 0xf }
func opRM32(op uint32) int { return int(op) & 0xf }

// key folds the decode bits 27..20 and 7..4 into a 12-bit table index.
func key(op uint32) uint16 {
	return uint16(op>>16&0xff0 | op>>4&0xf)
}

var lookup [0x1000]*Desc

func init() {
	for i := range descs {
		d := &descs[i]
		if len(d.Code) != 12 {
			panic("BUG: malformed instruction code " + d.Name)
		}
		for n := 0; n < 12; n++ {
			bit := uint16(1) << (11 - n)
			switch d.Code[n] {
			case '0':
				d.mask |= bit
			case '1':
				d.mask |= bit
				d.bits |= bit
			}
		}
	}
	for k := 0; k < 0x1000; k++ {
		for i := range descs {
			d := &descs[i]
			if uint16(k)&d.mask == d.bits {
				lookup[k] = d
				break
			}
		}
	}
}

// Disasm returns the descriptor for an instruction word, nil for
// undefined encodings.
func Disasm(op uint32) *Desc {
	return lookup[key(op)]
}

// Format renders one instruction for block dumps.
func Format(addr uint32, op uint32) string {
	d := Disasm(op)
	if d == nil {
		return fmt.Sprintf("%08x: .word 0x%08x", addr, op)
	}
	return fmt.Sprintf("%08x: %-16s ; 0x%08x", addr, d.Name, op)
}

// The decode patterns cover bits 27..20 then 7..4. Order matters: the
// first matching row wins, so the specific encodings (mul, swp, psr)
// come before the data processing rows that subsume their bit
// patterns.
var descs = []Desc{
	{Name: "mul", Code: "0000000S1001", Cycles: 2, Flags: FlagMul, Fallback: fbMUL},
	{Name: "mla", Code: "0000001S1001", Cycles: 2, Flags: FlagMul, Fallback: fbMUL},
	{Name: "mull", Code: "00001UUS1001", Cycles: 3, Flags: FlagMul, Fallback: fbMULL},
	{Name: "swp", Code: "000100001001", Cycles: 4, Flags: FlagSwp, Fallback: fbSWP},
	{Name: "swpb", Code: "000101001001", Cycles: 4, Flags: FlagSwp, Fallback: fbSWP},
	{Name: "mrs", Code: "00010s000000", Cycles: 1, Flags: FlagPSR, Fallback: fbMRS},
	{Name: "msr", Code: "00010s100000", Cycles: 1, Flags: FlagPSR, Fallback: fbMSR},
	{Name: "msr", Code: "00110s10UUUU", Cycles: 1, Flags: FlagPSR, Fallback: fbMSR},
	{Name: "data reg", Code: "000UUUUUUUU0", Cycles: 1, Flags: FlagData, Translate: trData, Fallback: fbData},
	{Name: "data rrx", Code: "000UUUUU0UU1", Cycles: 1, Flags: FlagData, Fallback: fbData},
	{Name: "data imm", Code: "001UUUUUUUUU", Cycles: 1, Flags: FlagData, Translate: trData, Fallback: fbData},
	{Name: "xfr imm", Code: "010UUUUUUUUU", Cycles: 2, Flags: FlagXfr, Translate: trXfr, Fallback: fbXfr},
	{Name: "xfr reg", Code: "011UUUUUUUU0", Cycles: 2, Flags: FlagXfr, Fallback: fbXfr},
	{Name: "blk", Code: "100UUUUUUUUU", Cycles: 3, Flags: FlagBlk, Fallback: fbBlk},
	{Name: "b", Code: "1010UUUUUUUU", Cycles: 3, Flags: FlagBranch, Translate: trB, Fallback: fbB},
	{Name: "bl", Code: "1011UUUUUUUU", Cycles: 3, Flags: FlagBranch, Translate: trBL, Fallback: fbB},
	{Name: "swi", Code: "1111UUUUUUUU", Cycles: 3, Flags: FlagSWI, Fallback: fbSWI},
}
