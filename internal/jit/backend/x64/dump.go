package x64

import (
	"fmt"
	"io"

	"golang.org/x/arch/x86/x86asm"
)

// dumpCode disassembles emitted machine code for debugging.
func dumpCode(code []byte, pc uint64, w io.Writer) {
	for len(code) > 0 {
		inst, err := x86asm.Decode(code, 64)
		if err != nil {
			fmt.Fprintf(w, "%016x: .byte 0x%02x\n", pc, code[0])
			code = code[1:]
			pc++
			continue
		}
		fmt.Fprintf(w, "%016x: %s\n", pc, x86asm.GNUSyntax(inst, pc, nil))
		code = code[inst.Len:]
		pc += uint64(inst.Len)
	}
}
