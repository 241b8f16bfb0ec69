package sh4

import "encoding/binary"

// Byte offsets into the sh4 guest context. The context is a flat byte
// region; emitted code addresses it through load_context/store_context
// ops carrying these offsets, and the interpreter fallbacks go through
// the accessors below.
const (
	CtxR      = 0 // r0..r15, 4 bytes each
	CtxPC     = 64
	CtxPR     = 68
	CtxSR     = 72
	CtxSRT    = 76
	CtxSRS    = 80
	CtxSRM    = 84
	CtxSRQM   = 88
	CtxGBR    = 92
	CtxVBR    = 96
	CtxSSR    = 100
	CtxSPC    = 104
	CtxDBR    = 108
	CtxSGR    = 112
	CtxMACH   = 116
	CtxMACL   = 120
	CtxFPSCR  = 124
	CtxFPUL   = 128
	CtxFR     = 136 // fr0..fr15, see the swizzle note below
	CtxXF     = 200 // xf0..xf15
	CtxRALT   = 264 // r0..r7 alternate bank
	CtxCycles = 296
	CtxInstrs = 300
	CtxIntr   = 304

	CtxSize = 312
)

// Status register bits.
const (
	TMask  = 1 << 0
	SMask  = 1 << 1
	QMask  = 1 << 8
	MMask  = 1 << 9
	FDMask = 1 << 15
	BLMask = 1 << 28
	RBMask = 1 << 29
	MDMask = 1 << 30

	SBit = 1
	QBit = 8
	MBit = 9

	SRMask = 0x700083f3
)

// FPSCR bits.
const (
	RMMask    = 0x3
	DNMask    = 1 << 18
	PRMask    = 1 << 19
	SZMask    = 1 << 20
	FRMask    = 1 << 21
	FPSCRMask = 0x003fffff
)

// The 32-bit halves of each double-precision FPU register pair are
// stored swizzled (fr[n^1]) so that 64-bit context accesses read a
// full pair in host order.

type ctx []byte

func (c ctx) u32(off int) uint32       { return binary.LittleEndian.Uint32(c[off:]) }
func (c ctx) setU32(off int, v uint32) { binary.LittleEndian.PutUint32(c[off:], v) }
func (c ctx) u64(off int) uint64       { return binary.LittleEndian.Uint64(c[off:]) }
func (c ctx) setU64(off int, v uint64) { binary.LittleEndian.PutUint64(c[off:], v) }

func (c ctx) reg(n int) uint32       { return c.u32(CtxR + n*4) }
func (c ctx) setReg(n int, v uint32) { c.setU32(CtxR+n*4, v) }
func (c ctx) fr(n int) uint32        { return c.u32(CtxFR + (n^1)*4) }
func (c ctx) setFR(n int, v uint32)  { c.setU32(CtxFR+(n^1)*4, v) }
func (c ctx) dr(n int) uint64        { return c.u64(CtxFR + n*4) }
func (c ctx) setDR(n int, v uint64)  { c.setU64(CtxFR+n*4, v) }
func (c ctx) pc() uint32             { return c.u32(CtxPC) }
func (c ctx) setPC(v uint32)         { c.setU32(CtxPC, v) }
func (c ctx) t() uint32              { return c.u32(CtxSRT) }
func (c ctx) setT(v uint32)          { c.setU32(CtxSRT, v) }
