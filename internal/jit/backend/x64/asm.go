package x64

import "encoding/binary"

// Host register encodings.
const (
	rax = 0
	rcx = 1
	rdx = 2
	rbx = 3
	rsp = 4
	rbp = 5
	rsi = 6
	rdi = 7
	r8  = 8
	r9  = 9
	r10 = 10
	r11 = 11
	r12 = 12
	r13 = 13
	r14 = 14
	r15 = 15
)

// Condition codes for jcc/setcc (the low nibble of the 0x8x / 0x9x
// opcode).
const (
	ccO  = 0x0
	ccB  = 0x2
	ccAE = 0x3
	ccE  = 0x4
	ccNE = 0x5
	ccBE = 0x6
	ccA  = 0x7
	ccS  = 0x8
	ccNS = 0x9
	ccL  = 0xc
	ccGE = 0xd
	ccLE = 0xe
	ccG  = 0xf
)

// Asm is a minimal x86-64 encoder writing into a caller-provided
// buffer. The cursor only moves forward; Addr exposes the absolute
// address of the next instruction for the dispatch tables.
type Asm struct {
	buf  []byte
	base uintptr
	off  int
}

func newAsm(buf []byte, base uintptr) *Asm {
	return &Asm{buf: buf, base: base}
}

// Addr returns the absolute address of the emit cursor.
func (a *Asm) Addr() uintptr { return a.base + uintptr(a.off) }

// Len returns the number of bytes emitted.
func (a *Asm) Len() int { return a.off }

// Overflowed reports whether the last emit ran out of buffer.
func (a *Asm) Overflowed() bool { return a.off > len(a.buf) }

func (a *Asm) byte(b ...byte) {
	if a.off+len(b) > len(a.buf) {
		a.off = len(a.buf) + 1
		return
	}
	copy(a.buf[a.off:], b)
	a.off += len(b)
}

func (a *Asm) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	a.byte(b[:]...)
}

func (a *Asm) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	a.byte(b[:]...)
}

// rex emits a REX prefix. w selects 64-bit width, r and b extend the
// modrm reg and rm fields.
func (a *Asm) rex(w bool, reg, rm int) {
	b := byte(0x40)
	if w {
		b |= 8
	}
	if reg >= 8 {
		b |= 4
	}
	if rm >= 8 {
		b |= 1
	}
	if b != 0x40 || w {
		a.byte(b)
	}
}

func (a *Asm) rexIf(w bool, reg, rm int) {
	b := byte(0x40)
	if w {
		b |= 8
	}
	if reg >= 8 {
		b |= 4
	}
	if rm >= 8 {
		b |= 1
	}
	if b != 0x40 {
		a.byte(b)
	}
}

// rexByte emits the REX prefix for an instruction whose rm field is a
// byte register: rsp..rdi are only addressable as byte registers with
// a REX prefix present.
func (a *Asm) rexByte(reg, rm int) {
	b := byte(0x40)
	if reg >= 8 {
		b |= 4
	}
	if rm >= 8 {
		b |= 1
	}
	if b != 0x40 || rm >= 4 || reg >= 4 {
		a.byte(b)
	}
}

func (a *Asm) modrmReg(reg, rm int) {
	a.byte(0xc0 | byte(reg&7)<<3 | byte(rm&7))
}

// modrmMem encodes [base + disp] with the right disp width. rsp and
// r12 bases need a SIB byte, rbp and r13 always need a displacement.
func (a *Asm) modrmMem(reg, base int, disp int32) {
	regBits := byte(reg&7) << 3
	rmBits := byte(base & 7)
	needSIB := base&7 == rsp

	switch {
	case disp == 0 && base&7 != rbp:
		a.byte(0x00 | regBits | rmBits)
		if needSIB {
			a.byte(0x24)
		}
	case disp >= -128 && disp <= 127:
		a.byte(0x40 | regBits | rmBits)
		if needSIB {
			a.byte(0x24)
		}
		a.byte(byte(disp))
	default:
		a.byte(0x80 | regBits | rmBits)
		if needSIB {
			a.byte(0x24)
		}
		a.u32(uint32(disp))
	}
}

// modrmIndex encodes [base + index*1 + 0].
func (a *Asm) modrmIndex(reg, base, index int) {
	a.byte(0x00|byte(reg&7)<<3|0x4, byte(index&7)<<3|byte(base&7))
	if base&7 == rbp || base&7 == r13&7 {
		// rbp/r13 bases require mod=01 with a zero disp
		a.buf[a.off-2] = 0x40 | byte(reg&7)<<3 | 0x4
		a.byte(0)
	}
}

func (a *Asm) rexIndex(w bool, reg, base, index int) {
	b := byte(0x40)
	if w {
		b |= 8
	}
	if reg >= 8 {
		b |= 4
	}
	if index >= 8 {
		b |= 2
	}
	if base >= 8 {
		b |= 1
	}
	if b != 0x40 || w {
		a.byte(b)
	}
}

/*
 * moves
 */

// MovRegImm32 emits mov r32, imm32 (zero extends).
func (a *Asm) MovRegImm32(reg int, imm uint32) {
	a.rexIf(false, 0, reg)
	a.byte(0xb8 + byte(reg&7))
	a.u32(imm)
}

// MovRegImm64 emits movabs r64, imm64.
func (a *Asm) MovRegImm64(reg int, imm uint64) {
	a.rex(true, 0, reg)
	a.byte(0xb8 + byte(reg&7))
	a.u64(imm)
}

// MovRegReg emits mov dst, src.
func (a *Asm) MovRegReg(w bool, dst, src int) {
	a.rex(w, src, dst)
	a.byte(0x89)
	a.modrmReg(src, dst)
}

// MovRegMem emits mov reg, [base+disp] at the given width in bytes.
// Narrow loads zero extend.
func (a *Asm) MovRegMem(size, reg, base int, disp int32) {
	switch size {
	case 1:
		a.rexIf(false, reg, base)
		a.byte(0x0f, 0xb6) // movzx r32, m8
	case 2:
		a.rexIf(false, reg, base)
		a.byte(0x0f, 0xb7) // movzx r32, m16
	case 4:
		a.rexIf(false, reg, base)
		a.byte(0x8b)
	case 8:
		a.rex(true, reg, base)
		a.byte(0x8b)
	}
	a.modrmMem(reg, base, disp)
}

// MovMemReg emits mov [base+disp], reg at the given width.
func (a *Asm) MovMemReg(size, base int, disp int32, reg int) {
	switch size {
	case 1:
		a.rexByte(reg, base)
		a.byte(0x88)
	case 2:
		a.byte(0x66)
		a.rexIf(false, reg, base)
		a.byte(0x89)
	case 4:
		a.rexIf(false, reg, base)
		a.byte(0x89)
	case 8:
		a.rex(true, reg, base)
		a.byte(0x89)
	}
	a.modrmMem(reg, base, disp)
}

// MovMemImm32 emits mov dword [base+disp], imm32.
func (a *Asm) MovMemImm32(base int, disp int32, imm uint32) {
	a.rexIf(false, 0, base)
	a.byte(0xc7)
	a.modrmMem(0, base, disp)
	a.u32(imm)
}

// MovRegMemIndex emits mov reg, [base+index] at the given width.
func (a *Asm) MovRegMemIndex(size, reg, base, index int) {
	switch size {
	case 1:
		a.rexIndex(false, reg, base, index)
		a.byte(0x0f, 0xb6)
	case 2:
		a.rexIndex(false, reg, base, index)
		a.byte(0x0f, 0xb7)
	case 4:
		a.rexIndex(false, reg, base, index)
		a.byte(0x8b)
	case 8:
		a.rexIndex(true, reg, base, index)
		a.byte(0x8b)
	}
	a.modrmIndex(reg, base, index)
}

// MovMemIndexReg emits mov [base+index], reg at the given width.
func (a *Asm) MovMemIndexReg(size, base, index, reg int) {
	switch size {
	case 1:
		a.rexIndex(false, reg, base, index)
		a.byte(0x88)
	case 2:
		a.byte(0x66)
		a.rexIndex(false, reg, base, index)
		a.byte(0x89)
	case 4:
		a.rexIndex(false, reg, base, index)
		a.byte(0x89)
	case 8:
		a.rexIndex(true, reg, base, index)
		a.byte(0x89)
	}
	a.modrmIndex(reg, base, index)
}

// Movsx emits a sign extending move from a narrower register.
func (a *Asm) Movsx(srcSize, dst, src int) {
	switch srcSize {
	case 1:
		a.rexByte(dst, src)
		a.byte(0x0f, 0xbe)
	case 2:
		a.rexIf(false, dst, src)
		a.byte(0x0f, 0xbf)
	case 4:
		a.rex(true, dst, src)
		a.byte(0x63) // movsxd
	}
	a.modrmReg(dst, src)
}

// Movzx emits a zero extending move from a narrower register.
func (a *Asm) Movzx(srcSize, dst, src int) {
	switch srcSize {
	case 1:
		a.rexByte(dst, src)
		a.byte(0x0f, 0xb6)
	case 2:
		a.rexIf(false, dst, src)
		a.byte(0x0f, 0xb7)
	case 4:
		a.MovRegReg(false, dst, src)
	}
	a.modrmRegIf(srcSize != 4, dst, src)
}

func (a *Asm) modrmRegIf(cond bool, reg, rm int) {
	if cond {
		a.modrmReg(reg, rm)
	}
}

/*
 * alu
 */

func (a *Asm) alu(opc byte, w bool, dst, src int) {
	a.rex(w, src, dst)
	a.byte(opc)
	a.modrmReg(src, dst)
}

// AddRegReg emits add dst, src.
func (a *Asm) AddRegReg(w bool, dst, src int) { a.alu(0x01, w, dst, src) }

// SubRegReg emits sub dst, src.
func (a *Asm) SubRegReg(w bool, dst, src int) { a.alu(0x29, w, dst, src) }

// AndRegReg emits and dst, src.
func (a *Asm) AndRegReg(w bool, dst, src int) { a.alu(0x21, w, dst, src) }

// OrRegReg emits or dst, src.
func (a *Asm) OrRegReg(w bool, dst, src int) { a.alu(0x09, w, dst, src) }

// XorRegReg emits xor dst, src.
func (a *Asm) XorRegReg(w bool, dst, src int) { a.alu(0x31, w, dst, src) }

// CmpRegReg emits cmp dst, src.
func (a *Asm) CmpRegReg(w bool, dst, src int) { a.alu(0x39, w, dst, src) }

// TestRegReg emits test dst, src.
func (a *Asm) TestRegReg(w bool, dst, src int) { a.alu(0x85, w, dst, src) }

func (a *Asm) aluImm(ext byte, w bool, dst int, imm uint32) {
	a.rex(w, 0, dst)
	a.byte(0x81)
	a.modrmReg(int(ext), dst)
	a.u32(imm)
}

// AddRegImm emits add dst, imm32.
func (a *Asm) AddRegImm(w bool, dst int, imm uint32) { a.aluImm(0, w, dst, imm) }

// SubRegImm emits sub dst, imm32.
func (a *Asm) SubRegImm(w bool, dst int, imm uint32) { a.aluImm(5, w, dst, imm) }

// AndRegImm emits and dst, imm32.
func (a *Asm) AndRegImm(w bool, dst int, imm uint32) { a.aluImm(4, w, dst, imm) }

// OrRegImm emits or dst, imm32.
func (a *Asm) OrRegImm(w bool, dst int, imm uint32) { a.aluImm(1, w, dst, imm) }

// XorRegImm emits xor dst, imm32.
func (a *Asm) XorRegImm(w bool, dst int, imm uint32) { a.aluImm(6, w, dst, imm) }

// CmpRegImm emits cmp dst, imm32.
func (a *Asm) CmpRegImm(w bool, dst int, imm uint32) { a.aluImm(7, w, dst, imm) }

// CmpMemImm emits cmp dword [base+disp], imm32.
func (a *Asm) CmpMemImm(base int, disp int32, imm uint32) {
	a.rexIf(false, 0, base)
	a.byte(0x81)
	a.modrmMem(7, base, disp)
	a.u32(imm)
}

// SubMemImm emits sub dword [base+disp], imm32.
func (a *Asm) SubMemImm(base int, disp int32, imm uint32) {
	a.rexIf(false, 0, base)
	a.byte(0x81)
	a.modrmMem(5, base, disp)
	a.u32(imm)
}

// AddMemImm emits add dword [base+disp], imm32.
func (a *Asm) AddMemImm(base int, disp int32, imm uint32) {
	a.rexIf(false, 0, base)
	a.byte(0x81)
	a.modrmMem(0, base, disp)
	a.u32(imm)
}

// Neg emits neg dst.
func (a *Asm) Neg(w bool, dst int) {
	a.rex(w, 0, dst)
	a.byte(0xf7)
	a.modrmReg(3, dst)
}

// Not emits not dst.
func (a *Asm) Not(w bool, dst int) {
	a.rex(w, 0, dst)
	a.byte(0xf7)
	a.modrmReg(2, dst)
}

// Imul emits imul dst, src.
func (a *Asm) Imul(w bool, dst, src int) {
	a.rex(w, dst, src)
	a.byte(0x0f, 0xaf)
	a.modrmReg(dst, src)
}

// Idiv emits idiv src; dividend in rdx:rax, quotient to rax.
func (a *Asm) Idiv(w bool, src int) {
	a.rex(w, 0, src)
	a.byte(0xf7)
	a.modrmReg(7, src)
}

// Cdq sign extends eax into edx.
func (a *Asm) Cdq() { a.byte(0x99) }

func (a *Asm) shiftCL(ext byte, w bool, dst int) {
	a.rex(w, 0, dst)
	a.byte(0xd3)
	a.modrmReg(int(ext), dst)
}

// ShlCL emits shl dst, cl.
func (a *Asm) ShlCL(w bool, dst int) { a.shiftCL(4, w, dst) }

// ShrCL emits shr dst, cl.
func (a *Asm) ShrCL(w bool, dst int) { a.shiftCL(5, w, dst) }

// SarCL emits sar dst, cl.
func (a *Asm) SarCL(w bool, dst int) { a.shiftCL(7, w, dst) }

func (a *Asm) shiftImm(ext byte, w bool, dst int, n byte) {
	a.rex(w, 0, dst)
	a.byte(0xc1)
	a.modrmReg(int(ext), dst)
	a.byte(n)
}

// ShlImm emits shl dst, n.
func (a *Asm) ShlImm(w bool, dst int, n byte) { a.shiftImm(4, w, dst, n) }

// ShrImm emits shr dst, n.
func (a *Asm) ShrImm(w bool, dst int, n byte) { a.shiftImm(5, w, dst, n) }

// SarImm emits sar dst, n.
func (a *Asm) SarImm(w bool, dst int, n byte) { a.shiftImm(7, w, dst, n) }

// Setcc emits setcc dst8 for a condition code.
func (a *Asm) Setcc(cc byte, dst int) {
	a.rexByte(0, dst)
	a.byte(0x0f, 0x90|cc)
	a.modrmReg(0, dst)
}

// Cmovcc emits cmovcc dst, src.
func (a *Asm) Cmovcc(cc byte, w bool, dst, src int) {
	a.rex(w, dst, src)
	a.byte(0x0f, 0x40|cc)
	a.modrmReg(dst, src)
}

/*
 * sse
 */

func (a *Asm) sse(prefix byte, opc byte, xdst, xsrc int) {
	if prefix != 0 {
		a.byte(prefix)
	}
	a.rexIf(false, xdst, xsrc)
	a.byte(0x0f, opc)
	a.modrmReg(xdst, xsrc)
}

// MovssRegMem emits movss xmm, [base+disp]; double selects movsd.
func (a *Asm) MovssRegMem(double bool, xreg, base int, disp int32) {
	if double {
		a.byte(0xf2)
	} else {
		a.byte(0xf3)
	}
	a.rexIf(false, xreg, base)
	a.byte(0x0f, 0x10)
	a.modrmMem(xreg, base, disp)
}

// MovssMemReg emits movss [base+disp], xmm.
func (a *Asm) MovssMemReg(double bool, base int, disp int32, xreg int) {
	if double {
		a.byte(0xf2)
	} else {
		a.byte(0xf3)
	}
	a.rexIf(false, xreg, base)
	a.byte(0x0f, 0x11)
	a.modrmMem(xreg, base, disp)
}

// MovupsRegMem emits movups xmm, [base+disp].
func (a *Asm) MovupsRegMem(xreg, base int, disp int32) {
	a.rexIf(false, xreg, base)
	a.byte(0x0f, 0x10)
	a.modrmMem(xreg, base, disp)
}

// MovupsMemReg emits movups [base+disp], xmm.
func (a *Asm) MovupsMemReg(base int, disp int32, xreg int) {
	a.rexIf(false, xreg, base)
	a.byte(0x0f, 0x11)
	a.modrmMem(xreg, base, disp)
}

// MovssRegReg copies between xmm registers at scalar width.
func (a *Asm) MovssRegReg(double bool, xdst, xsrc int) {
	if double {
		a.sse(0xf2, 0x10, xdst, xsrc)
	} else {
		a.sse(0xf3, 0x10, xdst, xsrc)
	}
}

// MovapsRegReg copies a full vector register.
func (a *Asm) MovapsRegReg(xdst, xsrc int) { a.sse(0, 0x28, xdst, xsrc) }

// MovdXmmReg emits movd xmm, r32 (movq for w).
func (a *Asm) MovdXmmReg(w bool, xdst, src int) {
	a.byte(0x66)
	a.rex(w, xdst, src)
	a.byte(0x0f, 0x6e)
	a.modrmReg(xdst, src)
}

// MovdRegXmm emits movd r32, xmm (movq for w).
func (a *Asm) MovdRegXmm(w bool, dst, xsrc int) {
	a.byte(0x66)
	a.rex(w, xsrc, dst)
	a.byte(0x0f, 0x7e)
	a.modrmReg(xsrc, dst)
}

func (a *Asm) sseArith(double bool, opc byte, xdst, xsrc int) {
	if double {
		a.sse(0xf2, opc, xdst, xsrc)
	} else {
		a.sse(0xf3, opc, xdst, xsrc)
	}
}

// Addss emits addss/addsd dst, src.
func (a *Asm) Addss(double bool, xdst, xsrc int) { a.sseArith(double, 0x58, xdst, xsrc) }

// Subss emits subss/subsd dst, src.
func (a *Asm) Subss(double bool, xdst, xsrc int) { a.sseArith(double, 0x5c, xdst, xsrc) }

// Mulss emits mulss/mulsd dst, src.
func (a *Asm) Mulss(double bool, xdst, xsrc int) { a.sseArith(double, 0x59, xdst, xsrc) }

// Divss emits divss/divsd dst, src.
func (a *Asm) Divss(double bool, xdst, xsrc int) { a.sseArith(double, 0x5e, xdst, xsrc) }

// Sqrtss emits sqrtss/sqrtsd dst, src.
func (a *Asm) Sqrtss(double bool, xdst, xsrc int) { a.sseArith(double, 0x51, xdst, xsrc) }

// Addps emits addps dst, src.
func (a *Asm) Addps(xdst, xsrc int) { a.sse(0, 0x58, xdst, xsrc) }

// Mulps emits mulps dst, src.
func (a *Asm) Mulps(xdst, xsrc int) { a.sse(0, 0x59, xdst, xsrc) }

// Movhlps emits movhlps dst, src.
func (a *Asm) Movhlps(xdst, xsrc int) { a.sse(0, 0x12, xdst, xsrc) }

// Shufps emits shufps dst, src, imm.
func (a *Asm) Shufps(xdst, xsrc int, imm byte) {
	a.sse(0, 0xc6, xdst, xsrc)
	a.byte(imm)
}

// Xorps emits xorps dst, src.
func (a *Asm) Xorps(xdst, xsrc int) { a.sse(0, 0x57, xdst, xsrc) }

// Andps emits andps dst, src.
func (a *Asm) Andps(xdst, xsrc int) { a.sse(0, 0x54, xdst, xsrc) }

// Comiss emits comiss/comisd dst, src.
func (a *Asm) Comiss(double bool, xdst, xsrc int) {
	if double {
		a.byte(0x66)
	}
	a.rexIf(false, xdst, xsrc)
	a.byte(0x0f, 0x2f)
	a.modrmReg(xdst, xsrc)
}

// Cvttss2si emits cvttss2si/cvttsd2si dst, xmm.
func (a *Asm) Cvttss2si(double bool, dst, xsrc int) {
	if double {
		a.byte(0xf2)
	} else {
		a.byte(0xf3)
	}
	a.rexIf(false, dst, xsrc)
	a.byte(0x0f, 0x2c)
	a.modrmReg(dst, xsrc)
}

// Cvtsi2ss emits cvtsi2ss/cvtsi2sd xmm, r32.
func (a *Asm) Cvtsi2ss(double bool, xdst, src int) {
	if double {
		a.byte(0xf2)
	} else {
		a.byte(0xf3)
	}
	a.rexIf(false, xdst, src)
	a.byte(0x0f, 0x2a)
	a.modrmReg(xdst, src)
}

// Cvtss2sd emits cvtss2sd xmm, xmm.
func (a *Asm) Cvtss2sd(xdst, xsrc int) { a.sse(0xf3, 0x5a, xdst, xsrc) }

// Cvtsd2ss emits cvtsd2ss xmm, xmm.
func (a *Asm) Cvtsd2ss(xdst, xsrc int) { a.sse(0xf2, 0x5a, xdst, xsrc) }

/*
 * flow
 */

// Push emits push reg.
func (a *Asm) Push(reg int) {
	a.rexIf(false, 0, reg)
	a.byte(0x50 + byte(reg&7))
}

// Pop emits pop reg.
func (a *Asm) Pop(reg int) {
	a.rexIf(false, 0, reg)
	a.byte(0x58 + byte(reg&7))
}

// Ret emits ret.
func (a *Asm) Ret() { a.byte(0xc3) }

// Int3 emits a debugger trap.
func (a *Asm) Int3() { a.byte(0xcc) }

// Ud2 emits an invalid opcode trap.
func (a *Asm) Ud2() { a.byte(0x0f, 0x0b) }

// CallReg emits call reg.
func (a *Asm) CallReg(reg int) {
	a.rexIf(false, 0, reg)
	a.byte(0xff)
	a.modrmReg(2, reg)
}

// JmpReg emits jmp reg.
func (a *Asm) JmpReg(reg int) {
	a.rexIf(false, 0, reg)
	a.byte(0xff)
	a.modrmReg(4, reg)
}

// JmpMemIndex8 emits jmp qword [base + index*8].
func (a *Asm) JmpMemIndex8(base, index int) {
	a.rexIndex(false, 4, base, index)
	a.byte(0xff, 0x24, 0xc0|byte(index&7)<<3|byte(base&7))
	if base&7 == rbp {
		// needs explicit zero displacement
		a.buf[a.off-2] = 0x64
		a.byte(0)
	}
}

// JmpAddr emits jmp rel32 to an absolute target.
func (a *Asm) JmpAddr(target uintptr) {
	a.byte(0xe9)
	rel := int64(target) - int64(a.Addr()+4)
	a.u32(uint32(int32(rel)))
}

// CallAddr emits call rel32 to an absolute target.
func (a *Asm) CallAddr(target uintptr) {
	a.byte(0xe8)
	rel := int64(target) - int64(a.Addr()+4)
	a.u32(uint32(int32(rel)))
}

// Jcc emits jcc rel32, returning the fixup offset of the rel32 field.
func (a *Asm) Jcc(cc byte) int {
	a.byte(0x0f, 0x80|cc)
	fix := a.off
	a.u32(0)
	return fix
}

// Jmp emits jmp rel32, returning the fixup offset.
func (a *Asm) Jmp() int {
	a.byte(0xe9)
	fix := a.off
	a.u32(0)
	return fix
}

// JccAddr emits jcc rel32 to an absolute target.
func (a *Asm) JccAddr(cc byte, target uintptr) {
	a.byte(0x0f, 0x80|cc)
	rel := int64(target) - int64(a.Addr()+4)
	a.u32(uint32(int32(rel)))
}

// Patch resolves a fixup produced by Jcc/Jmp to land on the current
// cursor.
func (a *Asm) Patch(fix int) {
	a.PatchTo(fix, a.off)
}

// PatchTo resolves a fixup to an arbitrary emitted offset.
func (a *Asm) PatchTo(fix, target int) {
	if fix+4 > len(a.buf) {
		return // overflowed, the unit is discarded anyway
	}
	rel := int32(target - (fix + 4))
	binary.LittleEndian.PutUint32(a.buf[fix:], uint32(rel))
}

// Align pads with int3 to the given power-of-two boundary.
func (a *Asm) Align(n int) {
	for a.off%n != 0 && a.off < len(a.buf) {
		a.byte(0xcc)
	}
}
