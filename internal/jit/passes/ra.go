package passes

import (
	"container/heap"
	"sort"

	"github.com/kamui-emu/kamui/internal/jit/backend"
	"github.com/kamui-emu/kamui/internal/jit/ir"
)

// RA is a linear scan register allocator over a linearized ordering of
// the unit's instructions. Physical registers are partitioned by value
// type into three independently managed sets. When no register is
// free, the value whose next use is furthest away is spilled to a
// local.
type RA struct {
	registers []backend.RegisterDef
	emitters  []backend.EmitterDef

	intRegs    registerSet
	floatRegs  registerSet
	vectorRegs registerSet

	// intervals is keyed by register index.
	intervals []interval
}

// ordinals are spaced out to leave room for the load/store instructions
// inserted when a register is spilled.
const ordinalStride = 10

type interval struct {
	// instr defines the value currently occupying the register.
	instr *ir.Instr

	// reused defers retirement when a later instruction opportunistically
	// took the register for its own result.
	reused *ir.Instr

	// uses is the value's use list, sorted by ordinal; next indexes the
	// first use not yet reached.
	uses []*ir.Use
	next int

	reg int
}

func (it *interval) nextUse() *ir.Use {
	if it.next >= len(it.uses) {
		return nil
	}
	return it.uses[it.next]
}

type registerSet struct {
	free []int
	live liveHeap
}

// liveHeap orders live intervals by the ordinal of their next use,
// intervals with no next use first.
type liveHeap []*interval

func (h liveHeap) Len() int { return len(h) }
func (h liveHeap) Less(i, j int) bool {
	a, b := h[i].nextUse(), h[j].nextUse()
	if a == nil {
		return true
	}
	if b == nil {
		return false
	}
	return ordinal(a.Instr) < ordinal(b.Instr)
}
func (h liveHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *liveHeap) Push(x interface{}) { *h = append(*h, x.(*interval)) }
func (h *liveHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}

func ordinal(instr *ir.Instr) int {
	return int(instr.Tag)
}

func setOrdinal(instr *ir.Instr, n int) {
	instr.Tag = int64(n)
}

func (r *RA) init(registers []backend.RegisterDef, emitters []backend.EmitterDef) {
	r.registers = registers
	r.emitters = emitters
	r.intervals = make([]interval, len(registers))
}

func (r *RA) resetSets() {
	r.intRegs.free = r.intRegs.free[:0]
	r.intRegs.live = r.intRegs.live[:0]
	r.floatRegs.free = r.floatRegs.free[:0]
	r.floatRegs.live = r.floatRegs.live[:0]
	r.vectorRegs.free = r.vectorRegs.free[:0]
	r.vectorRegs.live = r.vectorRegs.live[:0]

	for i := range r.registers {
		def := &r.registers[i]
		if def.Flags&backend.Allocate == 0 {
			continue
		}
		switch def.ValueTypes {
		case backend.MaskInt:
			r.intRegs.free = append(r.intRegs.free, i)
		case backend.MaskFloat:
			r.floatRegs.free = append(r.floatRegs.free, i)
		case backend.MaskVector:
			r.vectorRegs.free = append(r.vectorRegs.free, i)
		default:
			panic("BUG: unsupported register value mask")
		}
	}
}

func (r *RA) set(t ir.Type) *registerSet {
	switch {
	case t.IsInt():
		return &r.intRegs
	case t.IsFloat():
		return &r.floatRegs
	case t.IsVector():
		return &r.vectorRegs
	default:
		panic("BUG: unexpected value type")
	}
}

// Run allocates a host register (or spill slot) for every instruction
// result in the unit.
func (r *RA) Run(unit *ir.IR) {
	r.resetSets()
	assignOrdinals(unit)

	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			result := instr.Result

			// only allocate registers for results; constants are encoded as
			// immediates or materialized into reserved scratch registers by
			// the backend
			if result == nil {
				continue
			}

			uses := result.Uses()
			sort.SliceStable(uses, func(i, j int) bool {
				return ordinal(uses[i].Instr) < ordinal(uses[j].Instr)
			})

			r.expireIntervals(instr)

			reg := r.reuseArgRegister(instr)
			if reg == ir.NoRegister {
				reg = r.allocFreeRegister(instr)
				if reg == ir.NoRegister {
					reg = r.allocBlockedRegister(unit, instr)
				}
			}

			if reg == ir.NoRegister {
				panic("BUG: failed to allocate register")
			}
			result.Reg = reg
		}
	}
}

// assignOrdinals numbers every instruction, leaving gaps so spill code
// can be inserted without renumbering.
func assignOrdinals(unit *ir.IR) {
	n := 0
	for block := unit.Blocks(); block != nil; block = block.Next() {
		for instr := block.Head(); instr != nil; instr = instr.Next() {
			setOrdinal(instr, n)
			n += ordinalStride
		}
	}
}

func (r *RA) expireIntervals(instr *ir.Instr) {
	r.expireSet(&r.intRegs, instr)
	r.expireSet(&r.floatRegs, instr)
	r.expireSet(&r.vectorRegs, instr)
}

func (r *RA) expireSet(set *registerSet, instr *ir.Instr) {
	for len(set.live) > 0 {
		it := set.live[0]

		// intervals are ordered by next use; once one fails to expire or
		// advance, they all will
		if next := it.nextUse(); next != nil && ordinal(next.Instr) >= ordinal(instr) {
			break
		}

		heap.Pop(&set.live)

		switch {
		case it.next+1 < len(it.uses):
			// more uses remain, advance and reinsert
			it.next++
			heap.Push(&set.live, it)

		case it.reused != nil:
			// the register was opportunistically taken by a later result,
			// requeue the interval for it now
			reused := it.reused
			it.instr = reused
			it.reused = nil
			it.uses = reused.Result.Uses()
			it.next = 0
			heap.Push(&set.live, it)

		default:
			set.free = append(set.free, it.reg)
		}
	}
}

// reuseArgRegister tries to assign arg0's register to the result, which
// two-operand host instructions want. It applies when arg0 has a
// register of a compatible type and no use after this instruction.
func (r *RA) reuseArgRegister(instr *ir.Instr) int {
	// the op must want its result in arg0's register; without a table
	// every op is assumed to
	if r.emitters != nil && r.emitters[instr.Op].ResFlags&backend.ReuseArg0 == 0 {
		return ir.NoRegister
	}

	arg0 := instr.Arg(0)
	if arg0 == nil || arg0.Reg == ir.NoRegister {
		return ir.NoRegister
	}

	preferred := arg0.Reg
	if r.registers[preferred].ValueTypes&(1<<instr.Result.Type) == 0 {
		return ir.NoRegister
	}

	it := &r.intervals[preferred]
	if it.instr == nil || it.instr.Result != arg0 {
		return ir.NoRegister
	}
	if it.next+1 < len(it.uses) {
		// used again later, not trivial to reuse
		return ir.NoRegister
	}

	// the live heap doesn't support removing an arbitrary interval, so
	// retirement is deferred: with no uses left the interval expires on
	// the next expire call and is immediately requeued for this result
	it.reused = instr
	return preferred
}

func (r *RA) allocFreeRegister(instr *ir.Instr) int {
	set := r.set(instr.Result.Type)

	n := len(set.free)
	if n == 0 {
		return ir.NoRegister
	}
	reg := set.free[n-1]
	set.free = set.free[:n-1]

	it := &r.intervals[reg]
	it.instr = instr
	it.reused = nil
	it.uses = instr.Result.Uses()
	it.next = 0
	it.reg = reg
	heap.Push(&set.live, it)

	return reg
}

// allocBlockedRegister spills the live value whose next use is
// furthest away, inserting a store after its last realized use and a
// load before its next, then claims the freed register.
func (r *RA) allocBlockedRegister(unit *ir.IR, instr *ir.Instr) int {
	insertPoint := unit.GetInsertPoint()
	set := r.set(instr.Result.Type)

	// pick the interval with the furthest next use
	tail := -1
	for i, it := range set.live {
		if it.nextUse() == nil {
			continue
		}
		if tail < 0 || ordinal(it.nextUse().Instr) > ordinal(set.live[tail].nextUse().Instr) {
			tail = i
		}
	}
	if tail < 0 {
		panic("BUG: register being spilled has no next use, why wasn't it expired?")
	}
	it := heap.Remove(&set.live, tail).(*interval)

	spilled := it.instr.Result
	nextUse := it.uses[it.next]
	var prevUse *ir.Use
	if it.next > 0 {
		prevUse = it.uses[it.next-1]
	}

	local := unit.AllocLocal(spilled.Type)

	// insert the fill immediately before the next use
	unit.SetInsertPoint(ir.InsertPoint{
		Block: nextUse.Instr.Block,
		Instr: nextUse.Instr.Prev(),
	})
	loadValue := unit.LoadLocal(local)
	loadInstr := loadValue.Def

	// give the load a valid ordinal between its neighbors
	loadOrdinal := ordinal(nextUse.Instr) - 1
	if prev := loadInstr.Prev(); prev != nil {
		loadOrdinal = ordinal(prev) + 1
	}
	setOrdinal(loadInstr, loadOrdinal)

	// rewrite every use from the next use forward to read the fill. the
	// use list was sorted when the spilled value was allocated. rewriting
	// mutates the list, so the remaining uses are snapshotted first
	future := append([]*ir.Use(nil), it.uses[it.next:]...)
	for _, u := range future {
		unit.ReplaceUse(u, loadValue)
	}

	// insert the spill after the last realized use, or after the
	// definition if there is none. this must happen after the future
	// uses were rewritten: registering the store's own use of the
	// spilled value would invalidate the sorted use list otherwise
	after := it.instr
	if prevUse != nil {
		after = prevUse.Instr
	}
	unit.SetCurrentInstr(after)
	unit.StoreLocal(local, spilled)

	// the spilled interval has expired; reuse it for the new result
	it.instr = instr
	it.reused = nil
	it.uses = instr.Result.Uses()
	it.next = 0
	heap.Push(&set.live, it)

	unit.SetInsertPoint(insertPoint)
	return it.reg
}
