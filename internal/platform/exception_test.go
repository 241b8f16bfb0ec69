package platform

import (
	"testing"

	"github.com/kamui-emu/kamui/internal/testing/require"
)

func TestExceptionHandlers_dispatchOrder(t *testing.T) {
	var calls []int

	h1 := AddExceptionHandler(func(*ExceptionState) bool {
		calls = append(calls, 1)
		return false
	})
	defer h1.Remove()

	h2 := AddExceptionHandler(func(*ExceptionState) bool {
		calls = append(calls, 2)
		return true
	})
	defer h2.Remove()

	h3 := AddExceptionHandler(func(*ExceptionState) bool {
		calls = append(calls, 3)
		return true
	})
	defer h3.Remove()

	require.True(t, dispatchException(&ExceptionState{}))

	// handlers run in registration order and dispatch stops at the
	// first one that handles the fault
	require.Equal(t, []int{1, 2}, calls)
}

func TestExceptionHandlers_removal(t *testing.T) {
	called := false
	h := AddExceptionHandler(func(*ExceptionState) bool {
		called = true
		return true
	})
	h.Remove()

	require.False(t, dispatchException(&ExceptionState{}))
	require.False(t, called)
}

func TestExceptionHandlers_mutatesThreadState(t *testing.T) {
	h := AddExceptionHandler(func(state *ExceptionState) bool {
		state.Thread.Rip += 4
		return true
	})
	defer h.Remove()

	state := &ExceptionState{Thread: ThreadState{Rip: 0x1000}}
	require.True(t, dispatchException(state))
	require.Equal(t, uint64(0x1004), state.Thread.Rip)
}
