// Package x64 is the x86-64 backend: it assembles IR units into the
// code buffer, owns the dispatcher and its thunks, and recovers from
// fastmem faults raised by its own emitted code.
package x64

import (
	"errors"
	"fmt"
	"io"
	"math/bits"

	"github.com/ebitengine/purego"

	"github.com/kamui-emu/kamui/internal/jit/backend"
	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/platform"
)

// The code buffer is bounded so conditional branches reach anywhere
// inside it without trampolines, and page-aligned so it can be
// protected as a unit.
const codeBufferSize = 8 << 20

// Fixed machine registers: the guest context and the guest memory
// base live in r14/r15 for the whole run.
const (
	guestCtxReg = r14
	guestMemReg = r15
)

// stackSize is the spill area reserved by the enter thunk; locals are
// addressed off rsp.
const stackSize = 1024

// ErrCodeBufferFull is returned when assembly runs out of buffer.
var ErrCodeBufferFull = errors.New("x64: code buffer exhausted")

// registers is the canonical descriptor table. The allocatable set
// leans on callee-saved registers so emitted calls clobber as little
// as possible; rsi/rdi trade that for two more slots and are saved
// around calls by the call emitters.
var registers = []backend.RegisterDef{
	{Name: "rbx", ValueTypes: backend.MaskInt, Flags: backend.Allocate | backend.CalleeSave},
	{Name: "rbp", ValueTypes: backend.MaskInt, Flags: backend.Allocate | backend.CalleeSave},
	{Name: "r12", ValueTypes: backend.MaskInt, Flags: backend.Allocate | backend.CalleeSave},
	{Name: "r13", ValueTypes: backend.MaskInt, Flags: backend.Allocate | backend.CalleeSave},
	{Name: "rsi", ValueTypes: backend.MaskInt, Flags: backend.Allocate | backend.CallerSave},
	{Name: "rdi", ValueTypes: backend.MaskInt, Flags: backend.Allocate | backend.CallerSave},
	{Name: "xmm6", ValueTypes: backend.MaskFloat, Flags: backend.Allocate | backend.CallerSave},
	{Name: "xmm7", ValueTypes: backend.MaskFloat, Flags: backend.Allocate | backend.CallerSave},
	{Name: "xmm8", ValueTypes: backend.MaskFloat, Flags: backend.Allocate | backend.CallerSave},
	{Name: "xmm9", ValueTypes: backend.MaskFloat, Flags: backend.Allocate | backend.CallerSave},
	{Name: "xmm10", ValueTypes: backend.MaskFloat, Flags: backend.Allocate | backend.CallerSave},
	{Name: "xmm11", ValueTypes: backend.MaskFloat, Flags: backend.Allocate | backend.CallerSave},
	{Name: "xmm12", ValueTypes: backend.MaskVector, Flags: backend.Allocate | backend.CallerSave},
	{Name: "xmm13", ValueTypes: backend.MaskVector, Flags: backend.Allocate | backend.CallerSave},
	{Name: "rax", ValueTypes: backend.MaskInt, Flags: backend.Reserved},
	{Name: "rcx", ValueTypes: backend.MaskInt, Flags: backend.Reserved},
	{Name: "rdx", ValueTypes: backend.MaskInt, Flags: backend.Reserved},
	{Name: "r14", ValueTypes: backend.MaskInt, Flags: backend.Reserved},
	{Name: "r15", ValueTypes: backend.MaskInt, Flags: backend.Reserved},
	{Name: "xmm0", ValueTypes: backend.MaskFloat, Flags: backend.Reserved},
	{Name: "xmm1", ValueTypes: backend.MaskVector, Flags: backend.Reserved},
}

// regEnc maps descriptor indices to hardware encodings.
var regEnc = []int{
	rbx, rbp, r12, r13, rsi, rdi,
	6, 7, 8, 9, 10, 11, 12, 13,
	rax, rcx, rdx, r14, r15,
	0, 1,
}

// Backend implements backend.Backend for x86-64.
type Backend struct {
	guest *guest.Guest

	buf  []byte
	base uintptr

	// emitted thunks
	dispatchDynamic   uintptr
	dispatchStatic    uintptr
	dispatchCompile   uintptr
	dispatchInterrupt uintptr
	dispatchEnter     uintptr
	dispatchExit      uintptr

	// thunksSize is the cursor after the thunks; Reset rewinds here.
	thunksSize int
	cursor     int

	// direct-mapped code table indexed by masked guest pc
	cache      []uintptr
	cacheMask  uint32
	cacheShift uint32

	// native entry points wrapping the guest's memory callbacks
	memEntries [8]uintptr
}

var _ backend.Backend = (*Backend)(nil)

// New maps the code buffer, emits the dispatcher thunks, and builds
// the code table.
func New(g *guest.Guest) (*Backend, error) {
	buf, err := platform.MapCodeBuffer(codeBufferSize)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		guest: g,
		buf:   buf,
		base:  bufBase(buf),
	}

	b.cacheMask = g.AddrMask
	b.cacheShift = uint32(bits.TrailingZeros32(g.AddrMask))
	b.cache = make([]uintptr, (g.AddrMask>>b.cacheShift)+1)

	b.makeMemEntries()
	b.emitThunks()

	for i := range b.cache {
		b.cache[i] = b.dispatchCompile
	}
	return b, nil
}

// makeMemEntries wraps the guest's slow-path memory accessors as
// C-callable entry points for emitted code.
func (b *Backend) makeMemEntries() {
	g := b.guest
	b.memEntries[0] = purego.NewCallback(func(space uintptr, addr uint32) uintptr {
		return uintptr(g.R8(space, addr))
	})
	b.memEntries[1] = purego.NewCallback(func(space uintptr, addr uint32) uintptr {
		return uintptr(g.R16(space, addr))
	})
	b.memEntries[2] = purego.NewCallback(func(space uintptr, addr uint32) uintptr {
		return uintptr(g.R32(space, addr))
	})
	b.memEntries[3] = purego.NewCallback(func(space uintptr, addr uint32) uintptr {
		return uintptr(g.R64(space, addr))
	})
	b.memEntries[4] = purego.NewCallback(func(space uintptr, addr uint32, v uint32) uintptr {
		g.W8(space, addr, uint8(v))
		return 0
	})
	b.memEntries[5] = purego.NewCallback(func(space uintptr, addr uint32, v uint32) uintptr {
		g.W16(space, addr, uint16(v))
		return 0
	})
	b.memEntries[6] = purego.NewCallback(func(space uintptr, addr uint32, v uint32) uintptr {
		g.W32(space, addr, v)
		return 0
	})
	b.memEntries[7] = purego.NewCallback(func(space uintptr, addr uint32, v uint64) uintptr {
		g.W64(space, addr, v)
		return 0
	})
}

// Registers implements backend.Backend.Registers.
func (b *Backend) Registers() []backend.RegisterDef {
	return registers
}

// Emitters implements backend.Backend.Emitters.
func (b *Backend) Emitters() []backend.EmitterDef {
	return emitterDefs
}

// Reset implements backend.Backend.Reset.
func (b *Backend) Reset() {
	b.cursor = b.thunksSize
	for i := range b.cache {
		b.cache[i] = b.dispatchCompile
	}
}

// AssembleCode implements backend.Backend.AssembleCode.
func (b *Backend) AssembleCode(unit *ir.IR, fastmem bool, cb backend.EmitCallback) (uintptr, int, error) {
	a := newAsm(b.buf[b.cursor:], b.base+uintptr(b.cursor))
	e := &emitter{backend: b, asm: a, fastmem: fastmem, cb: cb}

	if err := e.emit(unit); err != nil {
		return 0, 0, err
	}

	hostAddr := b.base + uintptr(b.cursor)
	size := a.Len()
	b.cursor += size
	return hostAddr, size, nil
}

// DumpCode implements backend.Backend.DumpCode.
func (b *Backend) DumpCode(hostAddr uintptr, hostSize int, w io.Writer) {
	off := int(hostAddr - b.base)
	code := b.buf[off : off+hostSize]
	dumpCode(code, uint64(hostAddr), w)
}

// RunCode implements backend.Backend.RunCode.
func (b *Backend) RunCode(cycles int32) {
	purego.SyscallN(b.dispatchEnter, uintptr(cycles))
}

func (b *Backend) cacheSlot(addr uint32) *uintptr {
	return &b.cache[(addr&b.cacheMask)>>b.cacheShift]
}

// LookupCode implements backend.Backend.LookupCode.
func (b *Backend) LookupCode(addr uint32) uintptr {
	return *b.cacheSlot(addr)
}

// CacheCode implements backend.Backend.CacheCode.
func (b *Backend) CacheCode(addr uint32, code uintptr) {
	slot := b.cacheSlot(addr)
	if *slot != b.dispatchCompile {
		panic(fmt.Sprintf("BUG: code table slot for %08x already filled", addr))
	}
	*slot = code
}

// InvalidateCode implements backend.Backend.InvalidateCode.
func (b *Backend) InvalidateCode(addr uint32) {
	*b.cacheSlot(addr) = b.dispatchCompile
}

// PatchEdge implements backend.Backend.PatchEdge: the call at the
// branch site becomes a direct jump to the destination block.
func (b *Backend) PatchEdge(branchSite, dst uintptr) {
	off := int(branchSite - b.base)
	a := newAsm(b.buf[off:off+branchCallSize], branchSite)
	a.JmpAddr(dst)
}

// RestoreEdge implements backend.Backend.RestoreEdge: the direct jump
// goes back to a call of the static dispatch thunk.
func (b *Backend) RestoreEdge(branchSite uintptr, dstAddr uint32) {
	off := int(branchSite - b.base)
	a := newAsm(b.buf[off:off+branchCallSize], branchSite)
	a.CallAddr(b.dispatchStatic)
}

// contains reports whether a host address falls inside the emitted
// code range.
func (b *Backend) contains(pc uintptr) bool {
	return pc >= b.base && pc < b.base+uintptr(b.cursor)
}
