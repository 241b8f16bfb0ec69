package sh4

import (
	"fmt"
	"io"

	"github.com/kamui-emu/kamui/internal/jit/frontend"
	"github.com/kamui-emu/kamui/internal/jit/ir"
)

// Frontend lifts sh4 instruction streams to IR.
type Frontend struct {
	guest *Guest
}

var _ frontend.Frontend = (*Frontend)(nil)

// NewFrontend returns a frontend bound to the guest.
func NewFrontend(g *Guest) *Frontend {
	g.register()
	return &Frontend{guest: g}
}

func isTerminator(d *Desc) bool {
	// stop emitting once a branch is hit. if fpscr changed, also stop:
	// the compile-time fpu assumptions may be invalid
	return d.Flags&(FlagStorePC|FlagStoreFPSCR) != 0
}

// AnalyzeCode implements frontend.Frontend.AnalyzeCode.
func (f *Frontend) AnalyzeCode(begin uint32) int {
	g := f.guest
	size := 0

	for {
		data := g.R16(g.Space, begin+uint32(size))
		d := Disasm(data)

		// end the block on an invalid instruction
		if d == nil {
			break
		}

		size += 2

		if d.Flags&FlagDelayed != 0 {
			delayData := g.R16(g.Space, begin+uint32(size))
			delayDesc := Disasm(delayData)

			size += 2

			// delay slots can't have another delay slot; treat the stream
			// as malformed and end the block
			if delayDesc == nil || delayDesc.Flags&FlagDelayed != 0 {
				break
			}
		}

		if isTerminator(d) {
			break
		}
	}

	return size
}

// isIdleLoop looks ahead to see if the block is a short self-contained
// spin: its body reads memory, compares, and conditionally branches a
// short distance backwards. Such blocks only burn cycles waiting for
// an interrupt, so their cycle counts are scaled to yield sooner.
func (f *Frontend) isIdleLoop(begin uint32) bool {
	const idleMask = FlagLoad | FlagCond | FlagCmp

	g := f.guest
	idle := true
	allFlags := 0
	offset := uint32(0)

	for {
		addr := begin + offset
		data := g.R16(g.Space, addr)
		d := Disasm(data)
		if d == nil {
			return false
		}

		offset += 2
		allFlags |= d.Flags

		if d.Flags&FlagDelayed != 0 {
			delayData := g.R16(g.Space, begin+offset)
			if delayDesc := Disasm(delayData); delayDesc != nil {
				allFlags |= delayDesc.Flags
			}
			offset += 2
		}

		if isTerminator(d) {
			idle = idle && allFlags&idleMask == idleMask

			if d.Flags&FlagStorePC != 0 {
				kind, target := BranchInfo(addr, data)
				if kind == branchDynamic {
					return false
				}
				idle = idle && begin-target <= 32
			}

			return idle
		}
	}
}

// idleCycleScale multiplies each guest instruction's cycle cost inside
// an idle loop so the scheduler yields sooner.
const idleCycleScale = 8

// TranslateCode implements frontend.Frontend.TranslateCode.
func (f *Frontend) TranslateCode(begin uint32, size int, unit *ir.IR) {
	g := f.guest
	c := ctx(g.Ctx)

	offset := 0
	useFPSCR := false
	wasDelay := false

	block := unit.AppendBlock()

	// generate code specialized for the current fpscr state
	flags := 0
	if c.u32(CtxFPSCR)&PRMask != 0 {
		flags |= DoublePR
	}
	if c.u32(CtxFPSCR)&SZMask != 0 {
		flags |= DoubleSZ
	}

	cycleScale := 1
	if f.isIdleLoop(begin) {
		cycleScale = idleCycleScale
	}

	for offset < size {
		// if a branch and its delay slot were just emitted, rewind and
		// reconsider the slot as the loop's current instruction so the
		// end-of-block logic below sees it
		if wasDelay {
			offset -= 2
			wasDelay = false
		}

		addr := begin + uint32(offset)
		data := g.R16(g.Space, addr)
		d := Disasm(data)
		if d == nil {
			// analysis stopped here; synthesize a trailing branch below
			break
		}

		useFPSCR = useFPSCR || d.Flags&FlagUseFPSCR != 0

		// meta information for the current guest instruction; the backend
		// needs it to map guest instructions to host addresses
		unit.SourceInfo(addr, d.Cycles*cycleScale)

		// the pc is normally only written to the context at the end of
		// the block; sync it for instructions that read it
		if d.Flags&FlagLoadPC != 0 {
			unit.StoreContext(CtxPC, unit.AllocI32(int32(addr)))
		}

		if d.Translate != nil {
			// a delayed instruction's translator assigns delayPoint where
			// the slot's translation must be emitted
			var delayPoint ir.InsertPoint
			d.Translate(g, unit, addr, data, flags, &delayPoint)

			offset += 2

			if d.Flags&FlagDelayed != 0 {
				delayAddr := begin + uint32(offset)
				delayData := g.R16(g.Space, delayAddr)
				delayDesc := Disasm(delayData)
				if delayDesc == nil {
					// malformed slot, nothing to emit for it
					offset += 2
					wasDelay = true
					continue
				}

				useFPSCR = useFPSCR || delayDesc.Flags&FlagUseFPSCR != 0

				// move the insert point back into the middle of the branch's
				// expansion so the slot's side effects land before the
				// branch completes
				original := unit.GetInsertPoint()
				unit.SetInsertPoint(delayPoint)

				if delayDesc.Flags&FlagLoadPC != 0 {
					unit.StoreContext(CtxPC, unit.AllocI32(int32(delayAddr)))
				}

				if delayDesc.Translate != nil {
					delayDesc.Translate(g, unit, delayAddr, delayData, flags, nil)
				} else {
					unit.Fallback(fallbackEntry(delayDesc), delayAddr, uint32(delayData))
				}

				unit.SetInsertPoint(original)

				offset += 2
				wasDelay = true
			}
		} else {
			unit.Fallback(fallbackEntry(d), addr, uint32(data))

			offset += 2

			// the fallback executes the delay slot itself
			if d.Flags&FlagDelayed != 0 {
				offset += 2
				wasDelay = true
			}
		}

		// two possible block endings: an instruction that set the pc
		// needs nothing, dispatch picks the new pc up; otherwise an
		// unconditional branch to the next address is appended
		if isTerminator(d) || offset >= size {
			if d.Flags&FlagStorePC == 0 {
				tail := unit.Blocks()
				for tail.Next() != nil {
					tail = tail.Next()
				}
				unit.SetCurrentBlock(tail)
				unit.Branch(unit.AllocI32(int32(begin + uint32(offset))))
			}
		}
	}

	// nothing decoded at all: trap so the failure is visible instead of
	// emitting an empty unit
	if block.Head() == nil {
		unit.SetCurrentBlock(block)
		unit.SourceInfo(begin, 1)
		unit.DebugBreak()
		unit.Branch(unit.AllocI32(int32(begin + uint32(size))))
	}

	// if the block was specialized on the fpscr state, assert at entry
	// that the run-time state matches, placed right after the first
	// guest marker
	if useFPSCR {
		var after *ir.Instr
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			if instr.Op == ir.OpSourceInfo {
				after = instr
				break
			}
		}
		unit.SetCurrentInstr(after)

		actual := unit.LoadContext(CtxFPSCR, ir.TypeI32)
		actual = unit.And(actual, unit.AllocI32(PRMask|SZMask))
		expected := unit.AllocI32(int32(c.u32(CtxFPSCR) & (PRMask | SZMask)))
		unit.AssertEq(actual, expected)
	}
}

// DumpCode implements frontend.Frontend.DumpCode.
func (f *Frontend) DumpCode(begin uint32, size int, w io.Writer) {
	g := f.guest

	fmt.Fprintln(w, "#==--------------------------------------------------==#")
	fmt.Fprintln(w, "# sh4")
	fmt.Fprintln(w, "#==--------------------------------------------------==#")

	for offset := 0; offset < size; offset += 2 {
		addr := begin + uint32(offset)
		data := g.R16(g.Space, addr)
		fmt.Fprintf(w, "# %s\n", Format(addr, data))
	}
}
