package x64

import (
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/jit/passes"
	"github.com/kamui-emu/kamui/internal/platform"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

func testGuest() *guest.Guest {
	mmio := map[uint32]uint32{}
	g := &guest.Guest{
		AddrMask: 0xfffe,
		Ctx:      make([]byte, 512),
		Mem:      make([]byte, 0x10000),

		OffsetPC:         0,
		OffsetCycles:     4,
		OffsetInstrs:     8,
		OffsetInterrupts: 12,

		R8:  func(_ uintptr, addr uint32) uint8 { return uint8(mmio[addr]) },
		R16: func(_ uintptr, addr uint32) uint16 { return uint16(mmio[addr]) },
		R32: func(_ uintptr, addr uint32) uint32 { return mmio[addr] },
		R64: func(_ uintptr, addr uint32) uint64 { return uint64(mmio[addr]) },
		W8:  func(_ uintptr, addr uint32, v uint8) { mmio[addr] = uint32(v) },
		W16: func(_ uintptr, addr uint32, v uint16) { mmio[addr] = uint32(v) },
		W32: func(_ uintptr, addr uint32, v uint32) { mmio[addr] = v },
		W64: func(_ uintptr, addr uint32, v uint64) { mmio[addr] = uint32(v) },
	}
	return g
}

func testBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := New(testGuest())
	require.NoError(t, err)
	return b
}

func TestBackend_thunksEmitted(t *testing.T) {
	b := testBackend(t)

	require.True(t, b.dispatchDynamic != 0)
	require.True(t, b.dispatchStatic != 0)
	require.True(t, b.dispatchCompile != 0)
	require.True(t, b.dispatchInterrupt != 0)
	require.True(t, b.dispatchEnter != 0)
	require.True(t, b.dispatchExit != 0)
	require.True(t, b.thunksSize > 0)

	// every code table slot starts at the compile thunk
	for _, slot := range b.cache {
		require.Equal(t, b.dispatchCompile, slot)
	}
}

func TestBackend_cacheOps(t *testing.T) {
	b := testBackend(t)

	require.Equal(t, b.dispatchCompile, b.LookupCode(0x1000))

	b.CacheCode(0x1000, 0xbeef)
	require.Equal(t, uintptr(0xbeef), b.LookupCode(0x1000))

	b.InvalidateCode(0x1000)
	require.Equal(t, b.dispatchCompile, b.LookupCode(0x1000))
}

func buildUnit(b *Backend) *ir.IR {
	unit := ir.New()
	unit.AppendBlock()
	unit.SourceInfo(0x1000, 1)
	x := unit.LoadContext(0x20, ir.TypeI32)
	y := unit.Add(x, unit.AllocI32(3))
	unit.StoreContext(0x24, y)
	unit.SourceInfo(0x1002, 1)
	unit.Branch(unit.AllocI32(0x2000))

	p := passes.New(b.Registers(), b.Emitters())
	p.Run(unit)
	return unit
}

func TestBackend_assembleProducesCode(t *testing.T) {
	b := testBackend(t)

	var instrs []uint32
	host, size, err := b.AssembleCode(buildUnit(b), false,
		func(kind int, guestAddr uint32, hostAddr uintptr) {
			instrs = append(instrs, guestAddr)
		})
	require.NoError(t, err)
	require.True(t, size > 0)
	require.True(t, host >= b.base+uintptr(b.thunksSize))

	// both guest markers reported, plus the block callback
	require.Equal(t, 3, len(instrs))
	require.Equal(t, uint32(0x1000), instrs[1])
	require.Equal(t, uint32(0x1002), instrs[2])

	// the next assembly lands after this one
	host2, _, err := b.AssembleCode(buildUnit(b), false, nil)
	require.NoError(t, err)
	require.True(t, host2 >= host+uintptr(size))

	// reset rewinds to just past the thunks
	b.Reset()
	host3, _, err := b.AssembleCode(buildUnit(b), false, nil)
	require.NoError(t, err)
	require.Equal(t, host, host3)
}

func TestBackend_handleExceptionFastmemLoad(t *testing.T) {
	b := testBackend(t)
	g := b.guest

	// emit the fastmem idiom at a known spot and fault it
	host := b.base + uintptr(b.cursor)
	a := newAsm(b.buf[b.cursor:], host)
	a.MovRegMemIndex(4, rbx, guestMemReg, rcx)
	b.cursor += a.Len()

	g.W32(g.Space, 0x00c00000, 0) // seed mmio
	g.W32(g.Space, 0x00c00004, 0xcafebabe)

	state := &platform.ExceptionState{
		PC: host,
		Thread: platform.ThreadState{
			Rip: uint64(host),
			Rcx: 0x00c00004,
		},
	}
	require.True(t, b.HandleException(state))
	require.Equal(t, uint64(0xcafebabe), state.Thread.Rbx)
	require.True(t, state.Thread.Rip > uint64(host), "resumes past the faulting instruction")
}

func TestBackend_handleExceptionFastmemStore(t *testing.T) {
	b := testBackend(t)
	g := b.guest

	host := b.base + uintptr(b.cursor)
	a := newAsm(b.buf[b.cursor:], host)
	a.MovMemIndexReg(4, guestMemReg, rcx, rbx)
	b.cursor += a.Len()

	state := &platform.ExceptionState{
		PC: host,
		Thread: platform.ThreadState{
			Rip: uint64(host),
			Rcx: 0x00c00010,
			Rbx: 0x12345678,
		},
	}
	require.True(t, b.HandleException(state))
	require.Equal(t, uint32(0x12345678), g.R32(g.Space, 0x00c00010))
}

func TestBackend_handleExceptionRejectsForeign(t *testing.T) {
	b := testBackend(t)

	// a fault outside the code buffer is not ours
	state := &platform.ExceptionState{PC: 0x1}
	require.False(t, b.HandleException(state))

	// an access through a non-fastmem idiom is not ours either
	host := b.base + uintptr(b.cursor)
	a := newAsm(b.buf[b.cursor:], host)
	a.MovRegMem(4, rax, rbx, 0)
	b.cursor += a.Len()

	state = &platform.ExceptionState{PC: host, Thread: platform.ThreadState{Rip: uint64(host)}}
	require.False(t, b.HandleException(state))
}

func TestBackend_patchAndRestoreEdge(t *testing.T) {
	b := testBackend(t)

	// lay down a call to static dispatch the way a block tail does
	site := b.base + uintptr(b.cursor)
	a := newAsm(b.buf[b.cursor:], site)
	a.CallAddr(b.dispatchStatic)
	b.cursor += a.Len()

	dst := b.base + uintptr(b.cursor) + 0x40
	b.PatchEdge(site, dst)
	require.Equal(t, byte(0xe9), b.buf[site-b.base], "patched into a direct jmp")

	b.RestoreEdge(site, 0x2000)
	require.Equal(t, byte(0xe8), b.buf[site-b.base], "restored to a call")
}
