// Package frontend declares the contract between the recompilation
// core and a guest frontend: analysis of a block's extent and lifting
// of its instructions to IR.
package frontend

import (
	"io"

	"github.com/kamui-emu/kamui/internal/jit/ir"
)

// Frontend lifts guest instruction streams into IR.
type Frontend interface {
	// AnalyzeCode walks forward from begin until a terminator, returning
	// the byte extent of the block. Delay slots are always included.
	AnalyzeCode(begin uint32) (size int)

	// TranslateCode emits IR for the analyzed range into the unit,
	// including a source_info marker per guest instruction.
	TranslateCode(begin uint32, size int, unit *ir.IR)

	// DumpCode disassembles the range for debugging.
	DumpCode(begin uint32, size int, w io.Writer)
}
