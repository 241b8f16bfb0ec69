package armv3

import "encoding/binary"

// Byte offsets into the armv3 guest context.
const (
	CtxR    = 0 // r0..r15, r15 is the pc
	CtxCPSR = 64
	CtxSPSR = 68 // spsr of the current mode

	// banked register storage. usr and fiq park r8..r14, the other
	// privileged modes park r13 and r14.
	CtxRUsr = 72
	CtxRFiq = 100
	CtxRIrq = 128
	CtxRSvc = 136
	CtxRAbt = 144
	CtxRUnd = 152

	// parked spsr per privileged mode: fiq, irq, svc, abt, und
	CtxSPSRFiq = 160
	CtxSPSRIrq = 164
	CtxSPSRSvc = 168
	CtxSPSRAbt = 172
	CtxSPSRUnd = 176

	CtxCycles = 180
	CtxInstrs = 184
	CtxIntr   = 188

	CtxSize = 192
)

// CPSR bits.
const (
	VMask = 1 << 28
	CMask = 1 << 29
	ZMask = 1 << 30
	NMask = 1 << 31

	IMask = 1 << 7
	FMask = 1 << 6

	ModeMask = 0x1f

	ModeUsr = 0x10
	ModeFiq = 0x11
	ModeIrq = 0x12
	ModeSvc = 0x13
	ModeAbt = 0x17
	ModeUnd = 0x1b
	ModeSys = 0x1f
)

type ctx []byte

func (c ctx) u32(off int) uint32       { return binary.LittleEndian.Uint32(c[off:]) }
func (c ctx) setU32(off int, v uint32) { binary.LittleEndian.PutUint32(c[off:], v) }

func (c ctx) reg(n int) uint32       { return c.u32(CtxR + n*4) }
func (c ctx) setReg(n int, v uint32) { c.setU32(CtxR+n*4, v) }
func (c ctx) pc() uint32             { return c.reg(15) }
func (c ctx) setPC(v uint32)         { c.setReg(15, v) }
func (c ctx) cpsr() uint32           { return c.u32(CtxCPSR) }
func (c ctx) setCPSR(v uint32)       { c.setU32(CtxCPSR, v) }
