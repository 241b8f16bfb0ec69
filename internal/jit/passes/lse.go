package passes

import "github.com/kamui-emu/kamui/internal/jit/ir"

// LSE is the load/store elimination pass. It tracks, per context byte
// offset, the value known to be live there, eliminating redundant
// context loads in a forward pass and dead context stores in a
// backward pass. External calls and fallbacks are absolute barriers.
type LSE struct {
	live []*lseState
	free []*lseState

	// available aliases the state at the top of the live stack.
	available *[ir.MaxContext]lseEntry
}

type lseEntry struct {
	// offset is the starting offset of the stored value covering this
	// index. Entries are installed for the value's whole byte range so
	// overlapping writes can tombstone it; only the index where offset
	// equals the entry's own position is valid for reuse.
	offset int
	value  *ir.Value
}

type lseState struct {
	available [ir.MaxContext]lseEntry
}

// Run runs both directions over the unit.
func (l *LSE) Run(unit *ir.IR) {
	l.eliminateLoads(unit)
	l.eliminateStores(unit)
}

func (l *LSE) pushState(copyFromPrev bool) {
	var state *lseState
	if n := len(l.free); n > 0 {
		state = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		state = &lseState{}
	}

	if copyFromPrev && l.available != nil {
		state.available = *l.available
	} else {
		state.available = [ir.MaxContext]lseEntry{}
	}

	l.live = append(l.live, state)
	l.available = &state.available
}

func (l *LSE) popState() {
	n := len(l.live)
	state := l.live[n-1]
	l.live = l.live[:n-1]
	l.free = append(l.free, state)

	if n > 1 {
		l.available = &l.live[n-2].available
	} else {
		l.available = nil
	}
}

func (l *LSE) clearAvailable() {
	*l.available = [ir.MaxContext]lseEntry{}
}

// eraseAvailable tombstones [offset, offset+size). An entry starting
// at or extending into the range is merged into the invalidation
// range, so a wider read over a narrower earlier write misses.
func (l *LSE) eraseAvailable(offset, size int) {
	begin := offset
	end := offset + size - 1

	if e := &l.available[begin]; e.value != nil {
		begin = e.offset
	}
	if e := &l.available[end]; e.value != nil {
		end = e.offset + e.value.Type.Size() - 1
	}

	for ; begin <= end; begin++ {
		l.available[begin] = lseEntry{}
	}
}

func (l *LSE) getAvailable(offset int) *ir.Value {
	e := &l.available[offset]
	if e.offset != offset {
		return nil
	}
	return e.value
}

func (l *LSE) setAvailable(offset int, v *ir.Value) {
	size := v.Type.Size()
	l.eraseAvailable(offset, size)
	for i := offset; i < offset+size; i++ {
		l.available[i] = lseEntry{offset: offset, value: v}
	}
}

// lseIsBarrier reports whether instr invalidates all available state:
// fallbacks, calls and guest memory accesses (which may reach MMIO
// callbacks) can mutate the context arbitrarily, labels can be reached
// from elsewhere, and branches out of the unit leave it.
func lseIsBarrier(instr *ir.Instr) bool {
	switch instr.Op {
	case ir.OpFallback, ir.OpCall, ir.OpCallCond, ir.OpLabel, ir.OpDebugBreak,
		ir.OpLoadGuest, ir.OpStoreGuest:
		return true
	case ir.OpBranch:
		return instr.Arg(0).Type != ir.TypeBlock
	case ir.OpBranchTrue, ir.OpBranchFalse:
		return instr.Arg(1).Type != ir.TypeBlock
	}
	return false
}

func (l *LSE) eliminateLoads(unit *ir.IR) {
	l.pushState(false)
	if head := unit.Blocks(); head != nil {
		l.eliminateLoadsBlock(unit, head)
	}
	l.popState()

	if len(l.live) != 0 {
		panic("BUG: lse state stack not empty")
	}
}

func (l *LSE) eliminateLoadsBlock(unit *ir.IR, block *ir.Block) {
	var next *ir.Instr
	for instr := block.Head(); instr != nil; instr = next {
		next = instr.Next()

		switch {
		case lseIsBarrier(instr):
			l.clearAvailable()

		case instr.Op == ir.OpLoadContext:
			offset := int(instr.Arg(0).I32())

			// reuse an available value of the same type and drop the load
			if existing := l.getAvailable(offset); existing != nil &&
				existing.Type == instr.Result.Type {
				unit.ReplaceUses(instr.Result, existing)
				unit.RemoveInstr(instr)
				continue
			}

			l.setAvailable(offset, instr.Result)

		case instr.Op == ir.OpStoreContext:
			offset := int(instr.Arg(0).I32())
			l.setAvailable(offset, instr.Arg(1))
		}
	}

	for _, edge := range block.Outgoing {
		l.pushState(true)
		l.eliminateLoadsBlock(unit, edge.Dst)
		l.popState()
	}
}

func (l *LSE) eliminateStores(unit *ir.IR) {
	l.pushState(false)
	if head := unit.Blocks(); head != nil {
		l.eliminateStoresBlock(unit, head)
	}
	l.popState()
}

func (l *LSE) eliminateStoresBlock(unit *ir.IR, block *ir.Block) {
	parent := l.available

	// process successors first, then join their states: an offset stays
	// available only if every successor agreed on the same entry
	for i, edge := range block.Outgoing {
		l.pushState(false)
		l.eliminateStoresBlock(unit, edge.Dst)

		child := l.available
		for n := 0; n < ir.MaxContext; n++ {
			if i == 0 {
				parent[n] = child[n]
			} else if parent[n] != child[n] {
				parent[n] = lseEntry{}
			}
		}

		l.popState()
	}

	var prev *ir.Instr
	for instr := block.Tail(); instr != nil; instr = prev {
		prev = instr.Prev()

		switch {
		case lseIsBarrier(instr):
			l.clearAvailable()

		case instr.Op == ir.OpLoadContext:
			offset := int(instr.Arg(0).I32())
			l.eraseAvailable(offset, instr.Result.Type.Size())

		case instr.Op == ir.OpStoreContext:
			// dead if a later store of equal or greater width fully
			// overwrites this offset
			offset := int(instr.Arg(0).I32())
			storeSize := instr.Arg(1).Type.Size()
			existingSize := 0
			if existing := l.getAvailable(offset); existing != nil {
				existingSize = existing.Type.Size()
			}

			if existingSize >= storeSize {
				unit.RemoveInstr(instr)
				continue
			}

			l.setAvailable(offset, instr.Arg(1))
		}
	}
}
