package jit

import (
	"errors"
	"io"
	"testing"

	"github.com/kamui-emu/kamui/internal/jit/backend"
	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/platform"
	"github.com/kamui-emu/kamui/internal/testing/require"
)

// fakeFrontend lifts every address to a one-instruction block ending
// in a static branch to addr+0x1000.
type fakeFrontend struct{}

func (fakeFrontend) AnalyzeCode(begin uint32) int { return 2 }

func (fakeFrontend) TranslateCode(begin uint32, size int, unit *ir.IR) {
	unit.AppendBlock()
	unit.SourceInfo(begin, 1)
	unit.Branch(unit.AllocI32(int32(begin + 0x1000)))
}

func (fakeFrontend) DumpCode(begin uint32, size int, w io.Writer) {}

var errAssemble = errors.New("assemble failed")

type patchCall struct {
	site uintptr
	dst  uintptr
}

// fakeBackend records the dispatch-facing calls the driver makes.
type fakeBackend struct {
	cache      map[uint32]uintptr
	nextHost   uintptr
	fastmemLog []bool
	patches    []patchCall
	restores   []uintptr
	resets     int
	failNext   int
	handles    bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{cache: map[uint32]uintptr{}, nextHost: 0x100000}
}

func (f *fakeBackend) Registers() []backend.RegisterDef {
	return []backend.RegisterDef{
		{Name: "a", ValueTypes: backend.MaskInt, Flags: backend.Allocate},
		{Name: "b", ValueTypes: backend.MaskInt, Flags: backend.Allocate},
		{Name: "c", ValueTypes: backend.MaskInt, Flags: backend.Allocate},
		{Name: "x", ValueTypes: backend.MaskFloat, Flags: backend.Allocate},
		{Name: "v", ValueTypes: backend.MaskVector, Flags: backend.Allocate},
	}
}

func (f *fakeBackend) Emitters() []backend.EmitterDef { return nil }

func (f *fakeBackend) Reset() {
	f.resets++
	f.cache = map[uint32]uintptr{}
}

func (f *fakeBackend) AssembleCode(unit *ir.IR, fastmem bool, cb backend.EmitCallback) (uintptr, int, error) {
	if f.failNext > 0 {
		f.failNext--
		return 0, 0, errAssemble
	}
	f.fastmemLog = append(f.fastmemLog, fastmem)
	host := f.nextHost
	f.nextHost += 0x100
	return host, 0x100, nil
}

func (f *fakeBackend) DumpCode(hostAddr uintptr, hostSize int, w io.Writer) {}

func (f *fakeBackend) HandleException(*platform.ExceptionState) bool { return f.handles }

func (f *fakeBackend) RunCode(int32) {}

func (f *fakeBackend) LookupCode(addr uint32) uintptr { return f.cache[addr] }

func (f *fakeBackend) CacheCode(addr uint32, code uintptr) { f.cache[addr] = code }

func (f *fakeBackend) InvalidateCode(addr uint32) { delete(f.cache, addr) }

func (f *fakeBackend) PatchEdge(site, dst uintptr) {
	f.patches = append(f.patches, patchCall{site, dst})
}

func (f *fakeBackend) RestoreEdge(site uintptr, dst uint32) {
	f.restores = append(f.restores, site)
}

func testJIT(t *testing.T, fb *fakeBackend) *JIT {
	t.Helper()
	g := &guest.Guest{Ctx: make([]byte, 64), AddrMask: 0x00fffffe}
	j, err := New(Config{Tag: "test", Fastmem: true}, g, fakeFrontend{}, fb)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestCompileBlock_registersBlock(t *testing.T) {
	fb := newFakeBackend()
	j := testJIT(t, fb)

	j.CompileBlock(0x1000)

	block := j.getBlock(0x1000)
	require.NotNil(t, block)
	require.Equal(t, block.HostAddr, fb.cache[0x1000])
	require.True(t, block.Fastmem)

	// reverse lookup resolves addresses inside the block
	require.Equal(t, block, j.lookupBlockReverse(block.HostAddr+0x10))
	require.Nil(t, j.lookupBlockReverse(block.HostAddr+0x100))
}

func TestAddEdge_patchesOnce(t *testing.T) {
	fb := newFakeBackend()
	j := testJIT(t, fb)

	// block A ends in `branch 0x2000`, block B is its destination
	j.CompileBlock(0x1000)
	j.CompileBlock(0x2000)
	a := j.getBlock(0x1000)
	b := j.getBlock(0x2000)

	site := a.HostAddr + 0x20
	j.AddEdge(site, 0x2000)

	require.Equal(t, 1, len(fb.patches), "first resolution patches the branch")
	require.Equal(t, patchCall{site, b.HostAddr}, fb.patches[0])

	// a second resolution of the same branch does not re-patch: the
	// direct jump no longer reaches dispatch at all
	j.AddEdge(site, 0x2000)
	require.Equal(t, 1, len(fb.patches))
}

func TestAddEdge_ignoresStaleAndUnresolved(t *testing.T) {
	fb := newFakeBackend()
	j := testJIT(t, fb)

	j.CompileBlock(0x1000)
	a := j.getBlock(0x1000)

	// destination not compiled yet
	j.AddEdge(a.HostAddr+0x20, 0x2000)
	require.Equal(t, 0, len(fb.patches))

	// stale source: dispatcher slot no longer points at the block
	fb.cache[0x1000] = 0xdead
	j.AddEdge(a.HostAddr+0x20, 0x2000)
	require.Equal(t, 0, len(fb.patches))
}

func TestInvalidateBlocks_restoresEdges(t *testing.T) {
	fb := newFakeBackend()
	j := testJIT(t, fb)

	j.CompileBlock(0x1000)
	j.CompileBlock(0x2000)
	a := j.getBlock(0x1000)

	site := a.HostAddr + 0x20
	j.AddEdge(site, 0x2000)
	require.Equal(t, 1, len(fb.patches))

	j.InvalidateBlocks()

	// dispatcher slots reset, the patched branch rewritten back to
	// static dispatch, block records kept
	require.Equal(t, uintptr(0), fb.cache[0x1000])
	require.Equal(t, []uintptr{site}, fb.restores)
	require.NotNil(t, j.getBlock(0x1000))
	require.Equal(t, 0, fb.resets, "invalidate must not reset the code buffer")
}

func TestFreeBlocks_resetsBackend(t *testing.T) {
	fb := newFakeBackend()
	j := testJIT(t, fb)

	j.CompileBlock(0x1000)
	j.FreeBlocks()

	require.Nil(t, j.getBlock(0x1000))
	require.Equal(t, 1, fb.resets)
}

func TestCompileBlock_overflowResetsAndRetries(t *testing.T) {
	fb := newFakeBackend()
	j := testJIT(t, fb)

	j.CompileBlock(0x1000)

	fb.failNext = 1
	j.CompileBlock(0x2000)

	// everything was freed so the retry compiles against an empty
	// buffer
	require.Nil(t, j.getBlock(0x1000))
	require.Nil(t, j.getBlock(0x2000))
	require.Equal(t, 1, fb.resets)

	j.CompileBlock(0x2000)
	require.NotNil(t, j.getBlock(0x2000))
}

func TestCompileBlock_persistentOverflowAborts(t *testing.T) {
	fb := newFakeBackend()
	j := testJIT(t, fb)

	fb.failNext = 2
	defer func() {
		require.NotNil(t, recover(), "a block that can never fit must abort")
	}()
	j.CompileBlock(0x1000)
	j.CompileBlock(0x1000)
}

func TestFastmemRecovery(t *testing.T) {
	fb := newFakeBackend()
	fb.handles = true
	j := testJIT(t, fb)

	j.CompileBlock(0x1000)
	a := j.getBlock(0x1000)
	require.True(t, a.Fastmem)

	// a fault inside the block's code range is handled by the backend:
	// the block is invalidated and flagged
	state := &platform.ExceptionState{PC: a.HostAddr + 8}
	require.True(t, j.handleException(state))
	require.False(t, a.Fastmem)
	require.Equal(t, uintptr(0), fb.cache[0x1000], "dispatcher slot reset to the compile thunk")

	// the next compile of the same pc runs without fastmem
	j.CompileBlock(0x1000)
	require.False(t, fb.fastmemLog[len(fb.fastmemLog)-1])
	require.True(t, fb.fastmemLog[0], "first compile had fastmem enabled")
}

func TestHandleException_ignoresForeignFaults(t *testing.T) {
	fb := newFakeBackend()
	fb.handles = true
	j := testJIT(t, fb)

	j.CompileBlock(0x1000)

	state := &platform.ExceptionState{PC: 0x42}
	require.False(t, j.handleException(state), "fault outside any block propagates")
}
