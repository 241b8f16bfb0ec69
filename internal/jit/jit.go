// Package jit is the driver of the recompilation engine: it owns the
// block registry and edge graph, compiles guest blocks on demand
// through a frontend/pass/backend pipeline, links blocks together, and
// routes host faults raised by emitted code.
package jit

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/kamui-emu/kamui/internal/jit/backend"
	"github.com/kamui-emu/kamui/internal/jit/frontend"
	"github.com/kamui-emu/kamui/internal/jit/guest"
	"github.com/kamui-emu/kamui/internal/jit/ir"
	"github.com/kamui-emu/kamui/internal/jit/passes"
	"github.com/kamui-emu/kamui/internal/platform"
)

// Block is one compiled guest block.
type Block struct {
	GuestAddr uint32
	HostAddr  uintptr
	HostSize  int

	// Fastmem records whether the block may assume direct memory
	// access; cleared when a fastmem fault proves otherwise.
	Fastmem bool

	// AddrMap maps each guest instruction to its first host byte, in
	// emission order.
	AddrMap []AddrMapping

	inEdges  []*Edge
	outEdges []*Edge
}

// AddrMapping is one guest-to-host address pair.
type AddrMapping struct {
	GuestAddr uint32
	HostAddr  uintptr
}

// Edge records a direct host-level jump from one block's tail to
// another block's entry.
type Edge struct {
	src, dst   *Block
	branchSite uintptr
	patched    bool
}

// Config carries the driver options.
type Config struct {
	// Tag names the guest in the perf map.
	Tag string

	// PerfMap appends a line per compiled block to the process perf
	// map.
	PerfMap bool

	// Fastmem enables direct-memory codegen for new blocks.
	Fastmem bool

	// DumpIR writes each block's optimized IR in the text format, nil
	// disables.
	DumpIR io.Writer
}

// JIT drives compilation and dispatch for one guest CPU.
type JIT struct {
	cfg      Config
	guest    *guest.Guest
	frontend frontend.Frontend
	backend  backend.Backend
	passes   *passes.Passes

	unit     *ir.IR
	irWriter *ir.Writer

	// blocks maps guest addresses; hostIndex orders the same blocks by
	// host address for reverse lookup from a faulting pc.
	blocks    map[uint32]*Block
	hostIndex []*Block

	excHandle *platform.Handle
	perfMap   *os.File

	// compileFailed tracks a buffer-exhaustion reset; a second
	// consecutive failure means a single block exceeds the buffer.
	compileFailed bool
}

// New wires a driver to its guest, frontend and backend, installing
// the process fault handler.
func New(cfg Config, g *guest.Guest, fe frontend.Frontend, be backend.Backend) (*JIT, error) {
	j := &JIT{
		cfg:      cfg,
		guest:    g,
		frontend: fe,
		backend:  be,
		passes:   passes.New(be.Registers(), be.Emitters()),
		unit:     ir.New(),
		irWriter: ir.NewWriter(),
		blocks:   map[uint32]*Block{},
	}

	j.excHandle = platform.AddExceptionHandler(j.handleException)

	if cfg.PerfMap {
		path := fmt.Sprintf("/tmp/perf-%d.map", os.Getpid())
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			j.excHandle.Remove()
			return nil, fmt.Errorf("jit: open perf map: %w", err)
		}
		j.perfMap = f
	}

	return j, nil
}

// Close tears down the driver. All blocks are freed; no emitted code
// may be running.
func (j *JIT) Close() error {
	j.FreeBlocks()
	j.excHandle.Remove()
	if j.perfMap != nil {
		return j.perfMap.Close()
	}
	return nil
}

// Run enters emitted code for up to the given number of guest cycles.
func (j *JIT) Run(cycles int32) {
	j.backend.RunCode(cycles)
}

// getBlock returns the block compiled at a guest address, nil if
// none.
func (j *JIT) getBlock(addr uint32) *Block {
	return j.blocks[addr]
}

// lookupBlockReverse finds the block whose emitted code contains a
// host address.
func (j *JIT) lookupBlockReverse(host uintptr) *Block {
	n := sort.Search(len(j.hostIndex), func(i int) bool {
		return j.hostIndex[i].HostAddr > host
	})
	if n == 0 {
		return nil
	}
	block := j.hostIndex[n-1]
	if host < block.HostAddr || host >= block.HostAddr+uintptr(block.HostSize) {
		return nil
	}
	return block
}

// isStale reports whether the dispatcher no longer points at the
// block.
func (j *JIT) isStale(block *Block) bool {
	return j.backend.LookupCode(block.GuestAddr) != block.HostAddr
}

// patchEdges patches every unpatched edge touching the block into a
// direct jump.
func (j *JIT) patchEdges(block *Block) {
	for _, edge := range block.inEdges {
		if !edge.patched {
			edge.patched = true
			j.backend.PatchEdge(edge.branchSite, edge.dst.HostAddr)
		}
	}
	for _, edge := range block.outEdges {
		if !edge.patched {
			edge.patched = true
			j.backend.PatchEdge(edge.branchSite, edge.dst.HostAddr)
		}
	}
}

// restoreEdges rewrites the block's patched incoming branches to go
// back through static dispatch.
func (j *JIT) restoreEdges(block *Block) {
	for _, edge := range block.inEdges {
		if edge.patched {
			edge.patched = false
			j.backend.RestoreEdge(edge.branchSite, edge.dst.GuestAddr)
		}
	}
}

// invalidateBlock unlinks a block from dispatch and tears down its
// edges. The block record itself survives: the code may still be
// executing and the fastmem flag is carried into the recompile.
func (j *JIT) invalidateBlock(block *Block) {
	j.backend.InvalidateCode(block.GuestAddr)

	j.restoreEdges(block)

	for _, edge := range block.inEdges {
		removeEdge(&edge.src.outEdges, edge)
	}
	block.inEdges = block.inEdges[:0]

	for _, edge := range block.outEdges {
		removeEdge(&edge.dst.inEdges, edge)
	}
	block.outEdges = block.outEdges[:0]
}

func removeEdge(edges *[]*Edge, edge *Edge) {
	for i, it := range *edges {
		if it == edge {
			*edges = append((*edges)[:i], (*edges)[i+1:]...)
			return
		}
	}
}

// freeBlock invalidates a block and drops it from the lookup tables.
func (j *JIT) freeBlock(block *Block) {
	j.invalidateBlock(block)

	delete(j.blocks, block.GuestAddr)
	for i, it := range j.hostIndex {
		if it == block {
			j.hostIndex = append(j.hostIndex[:i], j.hostIndex[i+1:]...)
			break
		}
	}
}

// InvalidateBlocks unlinks every block from dispatch without freeing
// anything. Safe to call while emitted code is executing: the running
// block stays valid until it returns to dispatch.
func (j *JIT) InvalidateBlocks() {
	// restore every patched edge first: invalidateBlock only restores a
	// block's incoming edges, which an earlier invalidation of the
	// source block would already have removed
	for _, block := range j.hostIndex {
		j.restoreEdges(block)
	}
	for _, block := range j.hostIndex {
		j.invalidateBlock(block)
	}
}

// FreeBlocks invalidates and frees every block and resets the
// backend's code buffer. Only safe when no emitted code is on the
// call stack.
func (j *JIT) FreeBlocks() {
	for _, block := range j.blocks {
		j.invalidateBlock(block)
	}
	j.blocks = map[uint32]*Block{}
	j.hostIndex = j.hostIndex[:0]

	j.backend.Reset()
}

// CompileBlock translates, optimizes and assembles the block at a
// guest address, publishing it in the dispatcher. Invoked by the
// compile thunk through the guest's CompileCode callback.
func (j *JIT) CompileBlock(addr uint32) {
	fastmem := j.cfg.Fastmem

	// a block invalidated by a fastmem fault leaves its record behind
	// so the recompile inherits the disabled flag
	if existing := j.getBlock(addr); existing != nil {
		fastmem = existing.Fastmem
		j.freeBlock(existing)
	}

	block := &Block{GuestAddr: addr, Fastmem: fastmem}

	j.unit.Reset()
	size := j.frontend.AnalyzeCode(addr)
	j.frontend.TranslateCode(addr, size, j.unit)

	j.passes.Run(j.unit)

	if j.cfg.DumpIR != nil {
		fmt.Fprintf(j.cfg.DumpIR, "# %s 0x%08x\n", j.cfg.Tag, addr)
		if err := j.irWriter.Write(j.unit, j.cfg.DumpIR); err != nil {
			panic("BUG: ir dump failed: " + err.Error())
		}
	}

	host, hostSize, err := j.backend.AssembleCode(j.unit, fastmem,
		func(kind int, guestAddr uint32, hostAddr uintptr) {
			if kind == backend.EmitInstr {
				block.AddrMap = append(block.AddrMap,
					AddrMapping{GuestAddr: guestAddr, HostAddr: hostAddr})
			}
		})
	if err != nil {
		// the buffer overflowed: free everything and let dispatch retry
		// against an empty buffer. a block that still doesn't fit can
		// never compile
		if j.compileFailed {
			panic("jit: single block exceeds the code buffer")
		}
		j.compileFailed = true
		j.FreeBlocks()
		return
	}
	j.compileFailed = false

	block.HostAddr = host
	block.HostSize = hostSize

	j.blocks[addr] = block
	n := sort.Search(len(j.hostIndex), func(i int) bool {
		return j.hostIndex[i].HostAddr > host
	})
	j.hostIndex = append(j.hostIndex, nil)
	copy(j.hostIndex[n+1:], j.hostIndex[n:])
	j.hostIndex[n] = block

	j.backend.CacheCode(addr, host)

	if j.perfMap != nil {
		fmt.Fprintf(j.perfMap, "%x %x %s_0x%08x\n",
			host, hostSize, j.cfg.Tag, addr)
	}
}

// AddEdge records a direct branch between two compiled blocks and
// patches it in. Invoked by the static dispatch thunk through the
// guest's LinkCode callback with the branch site and the destination
// pc.
func (j *JIT) AddEdge(branchSite uintptr, dstPC uint32) {
	src := j.lookupBlockReverse(branchSite)
	dst := j.getBlock(dstPC)

	if src == nil || j.isStale(src) || dst == nil || j.isStale(dst) {
		return
	}

	// a branch site resolves at most once; once patched it never
	// reenters dispatch, so a duplicate means a racing re-resolution
	for _, edge := range src.outEdges {
		if edge.branchSite == branchSite {
			return
		}
	}

	edge := &Edge{src: src, dst: dst, branchSite: branchSite}
	src.outEdges = append(src.outEdges, edge)
	dst.inEdges = append(dst.inEdges, edge)

	j.patchEdges(src)
}

// handleException routes a host fault raised inside emitted code. It
// runs in signal context.
func (j *JIT) handleException(state *platform.ExceptionState) bool {
	block := j.lookupBlockReverse(state.PC)
	if block == nil {
		return false
	}

	if !j.backend.HandleException(state) {
		return false
	}

	// recompile without fastmem the next time dispatch reaches this pc.
	// the block record stays in the lookup maps: the code is still
	// executing and may fault again before it returns to dispatch
	block.Fastmem = false
	j.invalidateBlock(block)

	return true
}
