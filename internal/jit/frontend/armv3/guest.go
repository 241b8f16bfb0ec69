// Package armv3 is the frontend for the RISC guest CPU: block
// analysis and translation of its 32-bit instruction stream to IR,
// with an interpreter fallback per opcode class.
package armv3

import (
	"runtime/cgo"

	"github.com/kamui-emu/kamui/internal/jit/guest"
)

// Guest extends the generic adapter with this guest's hooks.
type Guest struct {
	*guest.Guest

	// SwitchMode runs after a cpsr write changes the processor mode, the
	// banked registers having been swapped already.
	SwitchMode func(newMode uint32)

	// SoftwareInterrupt services swi when the embedder wants to
	// high-level emulate it; nil takes the architectural exception.
	SoftwareInterrupt func()

	SwitchModeEntry        uintptr
	SoftwareInterruptEntry uintptr
}

func (g *Guest) register() {
	if g.Data == 0 {
		g.Data = uintptr(cgo.NewHandle(g))
	}
}

func guestFromData(data uintptr) *Guest {
	return cgo.Handle(data).Value().(*Guest)
}

// bank returns the context offset of a privileged mode's r13/r14
// storage.
func bank(mode uint32) int {
	switch mode {
	case ModeIrq:
		return CtxRIrq
	case ModeSvc:
		return CtxRSvc
	case ModeAbt:
		return CtxRAbt
	case ModeUnd:
		return CtxRUnd
	default:
		return CtxRUsr + 5*4 // r13/r14 slots of the usr bank
	}
}

// spsrSlot returns the parked spsr offset of a privileged mode, -1 for
// modes without one.
func spsrSlot(mode uint32) int {
	switch mode {
	case ModeFiq:
		return CtxSPSRFiq
	case ModeIrq:
		return CtxSPSRIrq
	case ModeSvc:
		return CtxSPSRSvc
	case ModeAbt:
		return CtxSPSRAbt
	case ModeUnd:
		return CtxSPSRUnd
	default:
		return -1
	}
}

// switchMode swaps the banked registers when the cpsr mode field
// changes.
func (g *Guest) switchMode(newMode uint32) {
	c := ctx(g.Ctx)
	oldMode := c.cpsr() & ModeMask
	if oldMode == newMode {
		return
	}

	// park the old mode's registers. fiq banks r8..r14; every other
	// mode shares r8..r12 with usr and banks only r13/r14.
	if oldMode == ModeFiq {
		for i := 8; i <= 14; i++ {
			c.setU32(CtxRFiq+(i-8)*4, c.reg(i))
		}
	} else {
		if newMode == ModeFiq {
			for i := 8; i <= 12; i++ {
				c.setU32(CtxRUsr+(i-8)*4, c.reg(i))
			}
		}
		off := bank(oldMode)
		c.setU32(off, c.reg(13))
		c.setU32(off+4, c.reg(14))
	}

	// unpark the new mode's registers
	if newMode == ModeFiq {
		for i := 8; i <= 14; i++ {
			c.setReg(i, c.u32(CtxRFiq+(i-8)*4))
		}
	} else {
		if oldMode == ModeFiq {
			for i := 8; i <= 12; i++ {
				c.setReg(i, c.u32(CtxRUsr+(i-8)*4))
			}
		}
		off := bank(newMode)
		c.setReg(13, c.u32(off))
		c.setReg(14, c.u32(off+4))
	}

	// park the live spsr and load the new mode's
	if slot := spsrSlot(oldMode); slot >= 0 {
		c.setU32(slot, c.u32(CtxSPSR))
	}
	if slot := spsrSlot(newMode); slot >= 0 {
		c.setU32(CtxSPSR, c.u32(slot))
	}

	c.setCPSR(c.cpsr()&^uint32(ModeMask) | newMode)

	if g.SwitchMode != nil {
		g.SwitchMode(newMode)
	}
}

// exception takes an architectural exception: the new mode's r14 gets
// the return address, its spsr the old cpsr, and the pc the vector.
func (g *Guest) exception(mode, vector, ret uint32) {
	c := ctx(g.Ctx)
	old := c.cpsr()
	g.switchMode(mode)
	c.setReg(14, ret)
	c.setU32(CtxSPSR, old)
	c.setCPSR(c.cpsr() | IMask)
	c.setPC(vector)
}
