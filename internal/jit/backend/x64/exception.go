package x64

import (
	"golang.org/x/arch/x86/x86asm"

	"github.com/kamui-emu/kamui/internal/platform"
)

// HandleException implements backend.Backend.HandleException.
//
// Fastmem accesses are emitted as moves through [r15 + rcx] with the
// guest address zero extended into rcx. When such an access faults the
// address was MMIO after all: the handler performs the access through
// the guest's accessors, deposits the result, and resumes past the
// faulting instruction. The driver then flags the block to recompile
// without fastmem. Mode-assertion failures trap with ud2 and arrive as
// SIGILL, never here, so the two trap kinds stay distinguishable.
//
// This runs in signal context on the faulting thread: no allocation,
// and the guest accessors it calls must honor the same constraint.
func (b *Backend) HandleException(state *platform.ExceptionState) bool {
	if !b.contains(state.PC) {
		return false
	}

	off := int(state.PC - b.base)
	end := off + 15
	if end > len(b.buf) {
		end = len(b.buf)
	}
	inst, err := x86asm.Decode(b.buf[off:end], 64)
	if err != nil {
		return false
	}

	var mem x86asm.Mem
	var other x86asm.Arg
	var load bool

	switch inst.Op {
	case x86asm.MOV, x86asm.MOVZX:
		if m, ok := inst.Args[1].(x86asm.Mem); ok {
			mem, other, load = m, inst.Args[0], true
		} else if m, ok := inst.Args[0].(x86asm.Mem); ok {
			mem, other, load = m, inst.Args[1], false
		} else {
			return false
		}
	default:
		return false
	}

	// only the fastmem idiom is recoverable
	if mem.Base != x86asm.R15 || mem.Index != x86asm.RCX || mem.Disp != 0 {
		return false
	}

	g := b.guest
	addr := uint32(state.Thread.Rcx)
	size := inst.MemBytes

	if load {
		reg, ok := other.(x86asm.Reg)
		if !ok {
			return false
		}
		slot := regSlot(&state.Thread, reg)
		if slot == nil {
			return false
		}
		switch size {
		case 1:
			*slot = uint64(g.R8(g.Space, addr))
		case 2:
			*slot = uint64(g.R16(g.Space, addr))
		case 4:
			*slot = uint64(g.R32(g.Space, addr))
		default:
			*slot = g.R64(g.Space, addr)
		}
	} else {
		var v uint64
		switch src := other.(type) {
		case x86asm.Reg:
			slot := regSlot(&state.Thread, src)
			if slot == nil {
				return false
			}
			v = *slot
		case x86asm.Imm:
			v = uint64(src)
		default:
			return false
		}
		switch size {
		case 1:
			g.W8(g.Space, addr, uint8(v))
		case 2:
			g.W16(g.Space, addr, uint16(v))
		case 4:
			g.W32(g.Space, addr, uint32(v))
		default:
			g.W64(g.Space, addr, v)
		}
	}

	state.Thread.Rip += uint64(inst.Len)
	return true
}

// regSlot maps a decoded register operand, at any width, onto the
// thread state.
func regSlot(t *platform.ThreadState, reg x86asm.Reg) *uint64 {
	switch reg {
	case x86asm.RAX, x86asm.EAX, x86asm.AX, x86asm.AL:
		return &t.Rax
	case x86asm.RCX, x86asm.ECX, x86asm.CX, x86asm.CL:
		return &t.Rcx
	case x86asm.RDX, x86asm.EDX, x86asm.DX, x86asm.DL:
		return &t.Rdx
	case x86asm.RBX, x86asm.EBX, x86asm.BX, x86asm.BL:
		return &t.Rbx
	case x86asm.RSP, x86asm.ESP:
		return &t.Rsp
	case x86asm.RBP, x86asm.EBP:
		return &t.Rbp
	case x86asm.RSI, x86asm.ESI, x86asm.SI, x86asm.SIB:
		return &t.Rsi
	case x86asm.RDI, x86asm.EDI, x86asm.DI, x86asm.DIB:
		return &t.Rdi
	case x86asm.R8, x86asm.R8L:
		return &t.R8
	case x86asm.R9, x86asm.R9L:
		return &t.R9
	case x86asm.R10, x86asm.R10L:
		return &t.R10
	case x86asm.R11, x86asm.R11L:
		return &t.R11
	case x86asm.R12, x86asm.R12L:
		return &t.R12
	case x86asm.R13, x86asm.R13L:
		return &t.R13
	case x86asm.R14, x86asm.R14L:
		return &t.R14
	case x86asm.R15, x86asm.R15L:
		return &t.R15
	default:
		return nil
	}
}
