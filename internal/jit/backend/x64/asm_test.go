package x64

import (
	"bytes"
	"testing"

	"github.com/kamui-emu/kamui/internal/testing/require"
)

func testAsm() *Asm {
	return newAsm(make([]byte, 256), 0x1000)
}

func emitted(a *Asm) []byte {
	return a.buf[:a.off]
}

func TestAsm_movImmediates(t *testing.T) {
	a := testAsm()
	a.MovRegImm32(rax, 0x12345678)
	require.True(t, bytes.Equal([]byte{0xb8, 0x78, 0x56, 0x34, 0x12}, emitted(a)))

	a = testAsm()
	a.MovRegImm64(r14, 0x1122334455667788)
	require.True(t, bytes.Equal([]byte{
		0x49, 0xbe, 0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
	}, emitted(a)))
}

func TestAsm_movRegReg(t *testing.T) {
	a := testAsm()
	a.MovRegReg(true, rbx, rax) // mov rbx, rax
	require.True(t, bytes.Equal([]byte{0x48, 0x89, 0xc3}, emitted(a)))
}

func TestAsm_alu(t *testing.T) {
	a := testAsm()
	a.AddRegReg(false, rcx, rdx) // add ecx, edx
	require.True(t, bytes.Equal([]byte{0x01, 0xd1}, emitted(a)))

	a = testAsm()
	a.SubRegImm(true, rsp, 0x418) // sub rsp, 0x418
	require.True(t, bytes.Equal([]byte{0x48, 0x81, 0xec, 0x18, 0x04, 0x00, 0x00}, emitted(a)))

	a = testAsm()
	a.ShlImm(false, rcx, 2) // shl ecx, 2
	require.True(t, bytes.Equal([]byte{0xc1, 0xe1, 0x02}, emitted(a)))
}

func TestAsm_contextAccess(t *testing.T) {
	// the context register is r14, so context loads need REX.B
	a := testAsm()
	a.MovRegMem(4, rax, r14, 0x40) // mov eax, [r14+0x40]
	require.True(t, bytes.Equal([]byte{0x41, 0x8b, 0x46, 0x40}, emitted(a)))

	a = testAsm()
	a.MovMemReg(4, r14, 8, rsi) // mov [r14+8], esi
	require.True(t, bytes.Equal([]byte{0x41, 0x89, 0x76, 0x08}, emitted(a)))
}

func TestAsm_byteRegisterNeedsREX(t *testing.T) {
	// setcc on rsi must carry the bare REX prefix or it would encode dh
	a := testAsm()
	a.Setcc(ccE, rsi)
	require.True(t, bytes.Equal([]byte{0x40, 0x0f, 0x94, 0xc6}, emitted(a)))
}

func TestAsm_pushPopTraps(t *testing.T) {
	a := testAsm()
	a.Push(rbx)
	a.Push(r12)
	a.Pop(r12)
	a.Pop(rbx)
	a.Ret()
	a.Int3()
	a.Ud2()
	require.True(t, bytes.Equal([]byte{
		0x53, 0x41, 0x54, 0x41, 0x5c, 0x5b, 0xc3, 0xcc, 0x0f, 0x0b,
	}, emitted(a)))
}

func TestAsm_jumpFixup(t *testing.T) {
	a := testAsm()
	fix := a.Jcc(ccNE) // 6 bytes
	a.Int3()           // 1 byte skipped over
	a.Patch(fix)

	// rel32 = target(7) - (fix(2)+4) = 1
	require.True(t, bytes.Equal([]byte{
		0x0f, 0x85, 0x01, 0x00, 0x00, 0x00, 0xcc,
	}, emitted(a)))
}

func TestAsm_absoluteJump(t *testing.T) {
	a := testAsm()
	a.JmpAddr(0x1000 + 16) // jmp forward 16 bytes from base
	// rel32 = 0x1010 - (0x1000+5) = 0xb
	require.True(t, bytes.Equal([]byte{0xe9, 0x0b, 0x00, 0x00, 0x00}, emitted(a)))
}

func TestAsm_overflow(t *testing.T) {
	a := newAsm(make([]byte, 4), 0)
	a.MovRegImm64(rax, 1)
	require.True(t, a.Overflowed())
}

func TestAsm_fastmemIdiom(t *testing.T) {
	// the load recognized by the exception handler:
	// mov eax, [r15+rcx]
	a := testAsm()
	a.MovRegMemIndex(4, rax, r15, rcx)
	require.True(t, bytes.Equal([]byte{0x41, 0x8b, 0x04, 0x0f}, emitted(a)))
}
