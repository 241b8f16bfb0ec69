// Package platform wraps the OS facilities the recompilation core
// needs: executable memory, page protection, and interception of host
// memory faults raised by emitted code.
package platform

import "sync"

// ThreadState is the faulting thread's register file as seen by the
// fault handler. Handlers may rewrite it; the updated state is applied
// before the thread resumes.
type ThreadState struct {
	Rax, Rcx, Rdx, Rbx uint64
	Rsp, Rbp, Rsi, Rdi uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
	Rip                uint64
}

// ExceptionState describes one host memory fault.
type ExceptionState struct {
	// PC is the faulting instruction address.
	PC uintptr

	// FaultAddr is the inaccessible address.
	FaultAddr uintptr

	// Thread is the faulting thread's register state.
	Thread ThreadState
}

// ExceptionHandler inspects a fault and returns true if it handled it.
// Handlers run in signal context: they must not allocate, take locks
// shared with non-handler code, or re-enter the JIT.
type ExceptionHandler func(*ExceptionState) bool

type handlerEntry struct {
	handler ExceptionHandler
}

var (
	handlersMu sync.Mutex
	handlers   []*handlerEntry
)

// AddExceptionHandler registers a process-wide fault handler. The
// first registration installs the OS signal hook.
func AddExceptionHandler(h ExceptionHandler) *Handle {
	handlersMu.Lock()
	defer handlersMu.Unlock()

	entry := &handlerEntry{handler: h}
	handlers = append(handlers, entry)

	if len(handlers) == 1 {
		installSignalHandler()
	}
	return &Handle{entry: entry}
}

// Handle identifies a registered fault handler.
type Handle struct {
	entry *handlerEntry
}

// Remove unregisters the handler.
func (h *Handle) Remove() {
	handlersMu.Lock()
	defer handlersMu.Unlock()

	for i, entry := range handlers {
		if entry == h.entry {
			handlers = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	if len(handlers) == 0 {
		removeSignalHandler()
	}
}

// dispatchException walks the registered handlers. It runs on the
// faulting thread in signal context and therefore takes no locks; the
// handler slice is only appended to under the mutex and the race with
// an in-flight registration is benign (the new handler is simply not
// consulted for the current fault).
func dispatchException(state *ExceptionState) bool {
	for _, entry := range handlers {
		if entry.handler(state) {
			return true
		}
	}
	return false
}
