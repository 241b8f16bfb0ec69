// Package backend declares the contract between the recompilation core
// and a native code backend: the register and emitter descriptor
// tables consumed by register allocation and assembly, and the compile
// and dispatch interfaces consumed by the driver.
package backend

import (
	"io"

	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/platform"
)

// Register descriptor flags.
const (
	// Allocate marks registers available to the register allocator.
	Allocate = 1 << iota
	// Reserved marks registers with a fixed role, never allocated.
	Reserved
	// CalleeSave marks registers preserved across native calls.
	CalleeSave
	// CallerSave marks registers clobbered by native calls.
	CallerSave
)

// Value type masks describing what a register can hold.
const (
	MaskInt    = 1<<ir.TypeI8 | 1<<ir.TypeI16 | 1<<ir.TypeI32 | 1<<ir.TypeI64
	MaskFloat  = 1<<ir.TypeF32 | 1<<ir.TypeF64
	MaskVector = 1 << ir.TypeV128
)

// RegisterDef describes one host register.
type RegisterDef struct {
	Name string

	// ValueTypes is a mask of the ir types the register can hold.
	ValueTypes int

	// Flags are the role flags above.
	Flags int
}

// Emitter argument and result constraint flags.
const (
	// ReuseArg0 signals the register allocator that the op prefers its
	// result in arg0's register, as required by two-operand binary ops.
	ReuseArg0 = 1 << iota
	// Optional marks an argument slot that may be empty.
	Optional
	// RegI64 allows the operand in an integer register.
	RegI64
	// RegF64 allows the operand in a float register.
	RegF64
	// RegV128 allows the operand in a vector register.
	RegV128
	// ImmI32 allows a 32-bit or smaller integer immediate.
	ImmI32
	// ImmI64 allows a 64-bit integer immediate.
	ImmI64
	// ImmF32 allows a 32-bit float immediate.
	ImmF32
	// ImmF64 allows a 64-bit float immediate.
	ImmF64
	// ImmBlk allows a block reference.
	ImmBlk
)

// EmitterDef describes how one ir op is assembled.
type EmitterDef struct {
	// Emit assembles one instruction. It is backend-specific; backends
	// downcast the opaque context they passed to AssembleCode.
	Emit func(ctx interface{}, instr *ir.Instr)

	ResFlags int
	ArgFlags [ir.MaxArgs]int
}

// Emit callback kinds passed to EmitCallback.
const (
	// EmitBlock reports the host address a block starts at.
	EmitBlock = iota
	// EmitInstr reports the host address a guest instruction starts at.
	EmitInstr
)

// EmitCallback maps guest blocks and instructions to host addresses
// during assembly.
type EmitCallback func(kind int, guestAddr uint32, hostAddr uintptr)

// Backend assembles IR to native code and owns run-time dispatch.
type Backend interface {
	// Registers returns the backend's register descriptor table. The
	// register allocator partitions the Allocate-flagged entries by value
	// type mask.
	Registers() []RegisterDef

	// Emitters returns the backend's per-op emitter descriptor table,
	// indexed by ir.Op. The register allocator consults the ReuseArg0
	// result flags. A nil table permits every reuse.
	Emitters() []EmitterDef

	// Reset discards all emitted code and resets the code buffer.
	Reset()

	// AssembleCode writes native code for the unit into the code buffer,
	// returning the host range written. It fails if the buffer is
	// exhausted.
	AssembleCode(unit *ir.IR, fastmem bool, cb EmitCallback) (hostAddr uintptr, hostSize int, err error)

	// DumpCode disassembles the host range for debugging.
	DumpCode(hostAddr uintptr, hostSize int, w io.Writer)

	// HandleException decides whether a host fault inside emitted code is
	// a fastmem miss the backend understands, rewriting the thread state
	// to resume on the slow path if so.
	HandleException(state *platform.ExceptionState) bool

	// RunCode enters the dispatch loop for up to the given cycle budget.
	RunCode(cycles int32)

	// LookupCode returns the code table entry for a guest address.
	LookupCode(addr uint32) uintptr

	// CacheCode publishes a block's host address in the code table.
	CacheCode(addr uint32, code uintptr)

	// InvalidateCode resets a guest address's code table entry back to
	// the compile thunk.
	InvalidateCode(addr uint32)

	// PatchEdge rewrites the branch at branchSite to jump directly to
	// dst.
	PatchEdge(branchSite, dst uintptr)

	// RestoreEdge rewrites a patched branch back to a call of the static
	// dispatch thunk.
	RestoreEdge(branchSite uintptr, dstAddr uint32)
}
