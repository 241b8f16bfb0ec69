package x64

import "unsafe"

// The dispatcher thunks, emitted once at the head of the code buffer.
// Compiled blocks end by calling the static dispatch thunk (so the
// branch site is recoverable from the return address, and later
// patchable into a direct jump) or by jumping to the dynamic thunk.

// branchCallSize is the size of the call/jmp rel32 at a block's branch
// site, the unit PatchEdge and RestoreEdge rewrite.
const branchCallSize = 5

func bufBase(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}

func (b *Backend) emitThunks() {
	g := b.guest
	a := newAsm(b.buf, b.base)

	// dynamic dispatch: index the code table by the masked pc and jump
	// through the slot
	a.Align(32)
	b.dispatchDynamic = a.Addr()

	a.MovRegImm64(rax, uint64(uintptr(unsafe.Pointer(&b.cache[0]))))
	a.MovRegMem(4, rcx, guestCtxReg, int32(g.OffsetPC))
	a.AndRegImm(false, rcx, b.cacheMask)
	a.ShrImm(false, rcx, byte(b.cacheShift))
	a.JmpMemIndex8(rax, rcx)

	// static dispatch: called from a block's tail. the return address
	// is the branch site; link_code patches it into a direct jump, and
	// execution continues through dynamic dispatch this first time
	a.Align(32)
	b.dispatchStatic = a.Addr()

	a.MovRegImm64(rdi, uint64(g.Data))
	a.Pop(rsi)
	a.SubRegImm(true, rsi, branchCallSize)
	a.MovRegMem(4, rdx, guestCtxReg, int32(g.OffsetPC))
	a.MovRegImm64(rax, uint64(g.LinkCodeEntry))
	a.CallReg(rax)
	a.JmpAddr(b.dispatchDynamic)

	// compile thunk: the default code table entry. compiles the block
	// for the current pc, which fills the slot, then retries through
	// dynamic dispatch
	a.Align(32)
	b.dispatchCompile = a.Addr()

	a.MovRegImm64(rdi, uint64(g.Data))
	a.MovRegMem(4, rsi, guestCtxReg, int32(g.OffsetPC))
	a.MovRegImm64(rax, uint64(g.CompileCodeEntry))
	a.CallReg(rax)
	a.JmpAddr(b.dispatchDynamic)

	// interrupt thunk: lets the guest service the pending interrupt,
	// then dispatches to whatever pc it installed
	a.Align(32)
	b.dispatchInterrupt = a.Addr()

	a.MovRegImm64(rdi, uint64(g.Data))
	a.MovRegImm64(rax, uint64(g.CheckInterruptsEntry))
	a.CallReg(rax)
	a.JmpAddr(b.dispatchDynamic)

	// enter: the host entry point. saves the callee-saved registers,
	// reserves the spill area, installs the fixed context and memory
	// base registers, seeds the run state and falls into dispatch
	a.Align(32)
	b.dispatchEnter = a.Addr()

	a.Push(rbx)
	a.Push(rbp)
	a.Push(r12)
	a.Push(r13)
	a.Push(r14)
	a.Push(r15)
	// six pushes plus the return address leave rsp 8 bytes off 16-byte
	// alignment; the extra 8 bytes reserved here restore it
	a.SubRegImm(true, rsp, stackSize+8)

	a.MovRegImm64(guestCtxReg, uint64(ctxBase(g.Ctx)))
	a.MovRegImm64(guestMemReg, uint64(memBase(g.Mem)))

	a.MovMemReg(4, guestCtxReg, int32(g.OffsetCycles), rdi)
	a.MovMemImm32(guestCtxReg, int32(g.OffsetInstrs), 0)

	a.JmpAddr(b.dispatchDynamic)

	// exit: unwinds the enter frame
	a.Align(32)
	b.dispatchExit = a.Addr()

	a.AddRegImm(true, rsp, stackSize+8)
	a.Pop(r15)
	a.Pop(r14)
	a.Pop(r13)
	a.Pop(r12)
	a.Pop(rbp)
	a.Pop(rbx)
	a.Ret()

	a.Align(32)
	if a.Overflowed() {
		panic("BUG: thunks overflow the code buffer")
	}
	b.thunksSize = a.Len()
	b.cursor = b.thunksSize
}

func ctxBase(ctx []byte) uintptr {
	return uintptr(unsafe.Pointer(&ctx[0]))
}

func memBase(mem []byte) uintptr {
	if len(mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&mem[0]))
}
