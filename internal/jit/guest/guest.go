// Package guest declares the adapter record each guest CPU supplies to
// the recompilation core. The record is passive: the core reads its
// callbacks and context-layout constants but never mutates it. It is
// the only place the core knows guest-specific things.
package guest

// MemRead reads guest memory through an MMIO region. The first
// argument is the guest's opaque address-space token, passed verbatim.
type MemRead func(space uintptr, addr uint32) uint32

// MemWrite writes guest memory through an MMIO region.
type MemWrite func(space uintptr, addr uint32, v uint32)

// Region describes how a guest address is backed, as returned by the
// Lookup callback. A non-nil Ptr means the address maps to host memory
// at a fixed offset and is eligible for fastmem codegen; otherwise the
// Read/Write callbacks service it.
type Region struct {
	Ptr    []byte
	Read   MemRead
	Write  MemWrite
	Offset uint32
}

// Guest is the adapter record supplied by each guest CPU.
type Guest struct {
	// AddrMask is the maximum guest address range needing a dispatcher
	// slot; the code table is sized from it.
	AddrMask uint32

	// Ctx is the guest context, a flat byte region. The core reads and
	// writes only the four offsets below directly; all other context
	// traffic goes through load_context/store_context IR ops whose
	// offsets originate in per-opcode translators.
	Ctx []byte

	// Mem is the base of the linear guest memory view used by fastmem.
	Mem []byte

	// Space is the opaque address-space token passed to the memory
	// callbacks.
	Space uintptr

	// Data is the opaque value passed as the first argument to every
	// native callback emitted code makes (fallbacks, runtime hooks).
	Data uintptr

	// Context byte offsets of the program counter, the remaining cycle
	// budget (signed 32-bit), the executed-instruction counter, and the
	// pending-interrupt mask.
	OffsetPC         int
	OffsetCycles     int
	OffsetInstrs     int
	OffsetInterrupts int

	// Primitive accessors keyed by width and direction.
	R8  func(space uintptr, addr uint32) uint8
	R16 func(space uintptr, addr uint32) uint16
	R32 func(space uintptr, addr uint32) uint32
	R64 func(space uintptr, addr uint32) uint64
	W8  func(space uintptr, addr uint32, v uint8)
	W16 func(space uintptr, addr uint32, v uint16)
	W32 func(space uintptr, addr uint32, v uint32)
	W64 func(space uintptr, addr uint32, v uint64)

	// Lookup resolves a guest address to its backing region.
	Lookup func(space uintptr, addr uint32) Region

	// Runtime callbacks invoked from the dispatcher thunks.
	CompileCode     func(addr uint32)
	LinkCode        func(branchSite uintptr, targetPC uint32)
	CheckInterrupts func()

	// Native entry points for the runtime callbacks, used when emitting
	// the dispatcher thunks. These are C-callable addresses of the three
	// callbacks above (the embedder obtains them via purego.NewCallback
	// or equivalent).
	CompileCodeEntry     uintptr
	LinkCodeEntry        uintptr
	CheckInterruptsEntry uintptr

	// Guest-specific hooks, nil when a guest has no use for them.
	SRUpdated    uintptr
	FPSCRUpdated uintptr
	ModeSwitch   uintptr
	LoadTLB      uintptr
	Prefetch     uintptr
	Sleep        uintptr
}
