package ir

import "math"

// MaxContext is the size of the guest context window tracked by the
// optimization passes.
const MaxContext = 512

// InsertPoint is a position within the unit. New instructions are
// inserted after Instr in Block; a nil Instr inserts at the block head.
type InsertPoint struct {
	Block *Block
	Instr *Instr
}

// Local is a stack spill slot allocated by register allocation.
type Local struct {
	Type   Type
	Offset int
}

// MetaKind identifies a metadata table.
type MetaKind int

const (
	MetaAddr MetaKind = iota
	MetaCycles
	numMeta
)

// IR owns all the objects of a single translation unit. Objects are
// allocated from per-kind pools and live until the unit is reset.
type IR struct {
	instrPool pool[Instr]
	valuePool pool[Value]
	blockPool pool[Block]
	edgePool  pool[Edge]
	localPool pool[Local]

	blockHead, blockTail *Block

	cursor InsertPoint

	// LocalsSize is the total size of spill slots allocated so far.
	LocalsSize int

	meta [numMeta]map[interface{}]*Value
}

// New returns an empty unit.
func New() *IR {
	ir := &IR{
		instrPool: newPool[Instr](),
		valuePool: newPool[Value](),
		blockPool: newPool[Block](),
		edgePool:  newPool[Edge](),
		localPool: newPool[Local](),
	}
	for i := range ir.meta {
		ir.meta[i] = map[interface{}]*Value{}
	}
	return ir
}

// Reset must be called to reuse the unit for the next translation.
func (ir *IR) Reset() {
	ir.instrPool.reset()
	ir.valuePool.reset()
	ir.blockPool.reset()
	ir.edgePool.reset()
	ir.localPool.reset()
	ir.blockHead, ir.blockTail = nil, nil
	ir.cursor = InsertPoint{}
	ir.LocalsSize = 0
	for i := range ir.meta {
		for k := range ir.meta[i] {
			delete(ir.meta[i], k)
		}
	}
}

// Blocks returns the first block of the unit.
func (ir *IR) Blocks() *Block {
	return ir.blockHead
}

// GetInsertPoint returns the current insert point.
func (ir *IR) GetInsertPoint() InsertPoint {
	return ir.cursor
}

// SetInsertPoint restores a previously captured insert point.
func (ir *IR) SetInsertPoint(point InsertPoint) {
	ir.cursor = point
}

// SetCurrentBlock makes block the insert target, appending at its tail.
func (ir *IR) SetCurrentBlock(block *Block) {
	ir.cursor = InsertPoint{Block: block, Instr: block.tail}
}

// SetCurrentInstr makes instr the insert point; new instructions are
// inserted immediately after it.
func (ir *IR) SetCurrentInstr(instr *Instr) {
	ir.cursor = InsertPoint{Block: instr.Block, Instr: instr}
}

// AppendBlock adds a new block at the end of the unit and makes it the
// insert target.
func (ir *IR) AppendBlock() *Block {
	return ir.InsertBlock(ir.blockTail)
}

// InsertBlock adds a new block after the given block, nil inserting at
// the unit head, and makes it the insert target.
func (ir *IR) InsertBlock(after *Block) *Block {
	block := ir.blockPool.allocate()
	*block = Block{}

	block.prev = after
	if after != nil {
		block.next = after.next
		after.next = block
	} else {
		block.next = ir.blockHead
		ir.blockHead = block
	}
	if block.next != nil {
		block.next.prev = block
	} else {
		ir.blockTail = block
	}

	ir.SetCurrentBlock(block)
	return block
}

// RemoveBlock unlinks a block and tears down its edges.
func (ir *IR) RemoveBlock(block *Block) {
	for _, edge := range block.Outgoing {
		removeEdge(&edge.Dst.Incoming, edge)
	}
	block.Outgoing = block.Outgoing[:0]
	for _, edge := range block.Incoming {
		removeEdge(&edge.Src.Outgoing, edge)
	}
	block.Incoming = block.Incoming[:0]

	if block.prev != nil {
		block.prev.next = block.next
	} else {
		ir.blockHead = block.next
	}
	if block.next != nil {
		block.next.prev = block.prev
	} else {
		ir.blockTail = block.prev
	}
	block.prev, block.next = nil, nil

	if ir.cursor.Block == block {
		ir.cursor = InsertPoint{}
	}
}

// AddEdge records a control flow edge from src to dst, mirrored in both
// blocks' edge lists.
func (ir *IR) AddEdge(src, dst *Block) *Edge {
	edge := ir.edgePool.allocate()
	*edge = Edge{Src: src, Dst: dst}
	src.Outgoing = append(src.Outgoing, edge)
	dst.Incoming = append(dst.Incoming, edge)
	return edge
}

func removeEdge(edges *[]*Edge, edge *Edge) {
	for i, it := range *edges {
		if it == edge {
			*edges = append((*edges)[:i], (*edges)[i+1:]...)
			return
		}
	}
	panic("BUG: edge not found")
}

// AppendInstr allocates an instruction of the given op, inserts it at
// the current insert point, and advances the insert point past it. A
// non-void result type allocates the instruction's result value.
func (ir *IR) AppendInstr(op Op, resultType Type) *Instr {
	if ir.cursor.Block == nil {
		ir.AppendBlock()
	}

	instr := ir.instrPool.allocate()
	*instr = Instr{Op: op}

	if resultType != TypeVoid {
		result := ir.allocValue(resultType)
		result.Def = instr
		instr.Result = result
	}

	ir.cursor.Block.insertInstr(ir.cursor.Instr, instr)
	ir.cursor.Instr = instr
	return instr
}

// RemoveInstr unregisters the instruction's argument uses and unlinks
// it from its block.
func (ir *IR) RemoveInstr(instr *Instr) {
	for n := 0; n < MaxArgs; n++ {
		if instr.args[n] != nil {
			instr.args[n].removeUse(&instr.uses[n])
			instr.args[n] = nil
		}
	}
	if ir.cursor.Instr == instr {
		ir.cursor.Instr = instr.prev
	}
	instr.Block.removeInstr(instr)
}

// SetArg assigns v to argument slot n of instr, registering the use.
// This is the only legal way to write an argument slot.
func (ir *IR) SetArg(instr *Instr, n int, v *Value) {
	if instr.args[n] != nil {
		instr.args[n].removeUse(&instr.uses[n])
	}
	instr.args[n] = v
	instr.uses[n] = Use{Instr: instr, Slot: n}
	v.uses = append(v.uses, &instr.uses[n])
}

// ReplaceUse substitutes other into a single argument slot,
// transplanting the use node onto other's use list.
func (ir *IR) ReplaceUse(u *Use, other *Value) {
	current := u.Instr.args[u.Slot]
	if current == other {
		return
	}
	current.removeUse(u)
	u.Instr.args[u.Slot] = other
	other.uses = append(other.uses, u)
}

// ReplaceUses substitutes other for every use of v, transplanting the
// use nodes onto other's use list.
func (ir *IR) ReplaceUses(v, other *Value) {
	if v == other {
		return
	}
	for _, u := range v.uses {
		u.Instr.args[u.Slot] = other
	}
	other.uses = append(other.uses, v.uses...)
	v.uses = nil
}

func (ir *IR) allocValue(t Type) *Value {
	v := ir.valuePool.allocate()
	*v = Value{Type: t, Reg: NoRegister}
	return v
}

// AllocInt allocates an integer constant of the given type.
func (ir *IR) AllocInt(c int64, t Type) *Value {
	if !t.IsInt() {
		panic("BUG: AllocInt of non-integer type")
	}
	v := ir.allocValue(t)
	v.bits = truncate(t, uint64(c))
	return v
}

// AllocI8 allocates an i8 constant.
func (ir *IR) AllocI8(c int8) *Value { return ir.AllocInt(int64(c), TypeI8) }

// AllocI16 allocates an i16 constant.
func (ir *IR) AllocI16(c int16) *Value { return ir.AllocInt(int64(c), TypeI16) }

// AllocI32 allocates an i32 constant.
func (ir *IR) AllocI32(c int32) *Value { return ir.AllocInt(int64(c), TypeI32) }

// AllocI64 allocates an i64 constant.
func (ir *IR) AllocI64(c int64) *Value { return ir.AllocInt(c, TypeI64) }

// AllocPtr allocates an i64 constant holding a native address.
func (ir *IR) AllocPtr(c uintptr) *Value { return ir.AllocInt(int64(c), TypeI64) }

// AllocF32 allocates an f32 constant.
func (ir *IR) AllocF32(c float32) *Value {
	v := ir.allocValue(TypeF32)
	v.bits = uint64(math.Float32bits(c))
	return v
}

// AllocF64 allocates an f64 constant.
func (ir *IR) AllocF64(c float64) *Value {
	v := ir.allocValue(TypeF64)
	v.bits = math.Float64bits(c)
	return v
}

// AllocBlockRef allocates a constant referencing a block in this unit.
func (ir *IR) AllocBlockRef(block *Block) *Value {
	v := ir.allocValue(TypeBlock)
	v.blk = block
	return v
}

// AllocLocal allocates a stack spill slot for the given type.
func (ir *IR) AllocLocal(t Type) *Local {
	size := t.Size()
	offset := (ir.LocalsSize + size - 1) &^ (size - 1)
	ir.LocalsSize = offset + size

	l := ir.localPool.allocate()
	*l = Local{Type: t, Offset: offset}
	return l
}

// SetMeta attaches a metadata value of the given kind to a node.
func (ir *IR) SetMeta(obj interface{}, kind MetaKind, v *Value) {
	ir.meta[kind][obj] = v
}

// GetMeta returns the metadata value of the given kind for a node, nil
// if unset.
func (ir *IR) GetMeta(obj interface{}, kind MetaKind) *Value {
	return ir.meta[kind][obj]
}
