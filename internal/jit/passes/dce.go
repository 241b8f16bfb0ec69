package passes

import "github.com/kamui-emu/kamui/internal/jit/ir"

// Dce removes instructions whose result has no uses. A single reverse
// sweep per block removes chains of dead instructions that only feed
// each other.
func Dce(unit *ir.IR) {
	for block := unit.Blocks(); block != nil; block = block.Next() {
		var prev *ir.Instr
		for instr := block.Tail(); instr != nil; instr = prev {
			prev = instr.Prev()

			if instr.Result == nil {
				continue
			}

			if len(instr.Result.Uses()) == 0 {
				unit.RemoveInstr(instr)
			}
		}
	}
}
