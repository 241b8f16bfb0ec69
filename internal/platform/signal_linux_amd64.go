package platform

import (
	"unsafe"

	"github.com/ebitengine/purego"
	"golang.org/x/sys/unix"
)

// The SIGSEGV hook is installed with rt_sigaction directly rather than
// os/signal: the Go runtime's signal delivery cannot rewrite the
// faulting thread's mcontext, which is exactly what fastmem recovery
// requires. The handler itself is a purego-created native callback so
// the kernel can invoke it on the signal stack.

const (
	saSiginfo  = 0x4
	saOnstack  = 0x08000000
	saRestorer = 0x04000000
)

type sigactionT struct {
	handler  uintptr
	flags    uint64
	restorer uintptr
	mask     uint64
}

var (
	signalHandlerCB uintptr
	oldAction       sigactionT
)

// offsets into the amd64 ucontext_t's mcontext gregs array
const (
	regR8 = iota
	regR9
	regR10
	regR11
	regR12
	regR13
	regR14
	regR15
	regRdi
	regRsi
	regRbp
	regRbx
	regRdx
	regRax
	regRcx
	regRsp
	regRip
)

type siginfoT struct {
	signo int32
	errno int32
	code  int32
	_     int32
	addr  uintptr
}

type ucontextT struct {
	flags    uint64
	link     uintptr
	stack    [3]uint64
	gregs    [23]uint64
	fpregs   uintptr
	reserved [8]uint64
}

func handleSigsegv(sig uintptr, infoPtr uintptr, ucontextPtr uintptr) uintptr {
	info := (*siginfoT)(unsafe.Pointer(infoPtr))
	ucontext := (*ucontextT)(unsafe.Pointer(ucontextPtr))

	state := ExceptionState{
		PC:        uintptr(ucontext.gregs[regRip]),
		FaultAddr: info.addr,
		Thread: ThreadState{
			Rax: ucontext.gregs[regRax], Rcx: ucontext.gregs[regRcx],
			Rdx: ucontext.gregs[regRdx], Rbx: ucontext.gregs[regRbx],
			Rsp: ucontext.gregs[regRsp], Rbp: ucontext.gregs[regRbp],
			Rsi: ucontext.gregs[regRsi], Rdi: ucontext.gregs[regRdi],
			R8: ucontext.gregs[regR8], R9: ucontext.gregs[regR9],
			R10: ucontext.gregs[regR10], R11: ucontext.gregs[regR11],
			R12: ucontext.gregs[regR12], R13: ucontext.gregs[regR13],
			R14: ucontext.gregs[regR14], R15: ucontext.gregs[regR15],
			Rip: ucontext.gregs[regRip],
		},
	}

	if !dispatchException(&state) {
		// not ours, restore the previous disposition and re-raise so the
		// fault escalates to the process default
		rtSigaction(unix.SIGSEGV, &oldAction, nil)
		return 0
	}

	ucontext.gregs[regRax] = state.Thread.Rax
	ucontext.gregs[regRcx] = state.Thread.Rcx
	ucontext.gregs[regRdx] = state.Thread.Rdx
	ucontext.gregs[regRbx] = state.Thread.Rbx
	ucontext.gregs[regRsp] = state.Thread.Rsp
	ucontext.gregs[regRbp] = state.Thread.Rbp
	ucontext.gregs[regRsi] = state.Thread.Rsi
	ucontext.gregs[regRdi] = state.Thread.Rdi
	ucontext.gregs[regR8] = state.Thread.R8
	ucontext.gregs[regR9] = state.Thread.R9
	ucontext.gregs[regR10] = state.Thread.R10
	ucontext.gregs[regR11] = state.Thread.R11
	ucontext.gregs[regR12] = state.Thread.R12
	ucontext.gregs[regR13] = state.Thread.R13
	ucontext.gregs[regR14] = state.Thread.R14
	ucontext.gregs[regR15] = state.Thread.R15
	ucontext.gregs[regRip] = state.Thread.Rip
	return 0
}

func installSignalHandler() {
	if signalHandlerCB == 0 {
		signalHandlerCB = purego.NewCallback(handleSigsegv)
	}
	action := sigactionT{
		handler: signalHandlerCB,
		flags:   saSiginfo | saOnstack,
	}
	rtSigaction(unix.SIGSEGV, &action, &oldAction)
}

func removeSignalHandler() {
	rtSigaction(unix.SIGSEGV, &oldAction, nil)
}

func rtSigaction(sig unix.Signal, act, old *sigactionT) {
	_, _, errno := unix.RawSyscall6(unix.SYS_RT_SIGACTION,
		uintptr(sig),
		uintptr(unsafe.Pointer(act)),
		uintptr(unsafe.Pointer(old)),
		8, // sizeof(sigset_t) the kernel expects
		0, 0)
	if errno != 0 {
		panic("BUG: rt_sigaction failed: " + errno.Error())
	}
}
