package armv3

import (
	"fmt"
	"io"

	"github.com/kamui-emu/kamui/internal/jit/frontend"
	"github.com/kamui-emu/kamui/internal/jit/ir"
)

// Frontend lifts armv3 instruction streams to IR.
type Frontend struct {
	guest *Guest
}

var _ frontend.Frontend = (*Frontend)(nil)

// NewFrontend returns a frontend bound to the guest.
func NewFrontend(g *Guest) *Frontend {
	g.register()
	return &Frontend{guest: g}
}

// setsPC reports whether an instruction changes the pc or the
// processor mode, ending the block.
func setsPC(d *Desc, op uint32) bool {
	switch {
	case d.Flags&FlagBranch != 0:
		return true
	case d.Flags&FlagData != 0 && opRD32(op) == 15:
		return true
	case d.Flags&FlagPSR != 0 && op&(1<<21) != 0:
		// msr; mrs (bit 21 clear) only reads a psr
		return true
	case d.Flags&FlagXfr != 0 && opRD32(op) == 15:
		return true
	case d.Flags&FlagBlk != 0 && op&(1<<15) != 0:
		return true
	case d.Flags&FlagSWI != 0:
		return true
	}
	return false
}

// AnalyzeCode implements frontend.Frontend.AnalyzeCode.
func (f *Frontend) AnalyzeCode(begin uint32) int {
	g := f.guest
	size := 0

	for {
		op := g.R32(g.Space, begin+uint32(size))
		d := Disasm(op)

		// end the block on an undefined encoding
		if d == nil {
			break
		}

		size += 4

		if setsPC(d, op) {
			break
		}
	}

	return size
}

// TranslateCode implements frontend.Frontend.TranslateCode.
func (f *Frontend) TranslateCode(begin uint32, size int, unit *ir.IR) {
	g := f.guest

	block := unit.AppendBlock()

	for offset := 0; offset < size; offset += 4 {
		addr := begin + uint32(offset)
		op := g.R32(g.Space, addr)
		d := Disasm(op)
		if d == nil {
			break
		}

		unit.SourceInfo(addr, d.Cycles)

		// predicated instructions and classes without a translator go
		// through the interpreter; the fallback evaluates the condition
		if d.Translate != nil && opCond(op) == CondAL {
			d.Translate(g, unit, addr, op)
		} else {
			unit.Fallback(fallbackEntry(d), addr, op)
		}

		// a pc-setting instruction needs nothing more: its translation
		// branched, or its fallback wrote the pc for dispatch to pick up.
		// running off the analyzed range appends the implicit fallthrough
		if !setsPC(d, op) && offset+4 >= size {
			unit.Branch(unit.AllocI32(int32(begin + uint32(size))))
		}
	}

	if block.Head() == nil {
		unit.SetCurrentBlock(block)
		unit.SourceInfo(begin, 1)
		unit.DebugBreak()
		unit.Branch(unit.AllocI32(int32(begin + uint32(size))))
	}
}

// DumpCode implements frontend.Frontend.DumpCode.
func (f *Frontend) DumpCode(begin uint32, size int, w io.Writer) {
	g := f.guest

	fmt.Fprintln(w, "#==--------------------------------------------------==#")
	fmt.Fprintln(w, "# armv3")
	fmt.Fprintln(w, "#==--------------------------------------------------==#")

	for offset := 0; offset < size; offset += 4 {
		addr := begin + uint32(offset)
		fmt.Fprintf(w, "# %s\n", Format(addr, g.R32(g.Space, addr)))
	}
}
