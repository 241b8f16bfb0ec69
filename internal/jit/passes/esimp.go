package passes

import "github.com/kamui-emu/kamui/internal/jit/ir"

// Esimp removes algebraic identities. Commutative ops are
// pre-canonicalized by the frontends with the constant on the right.
func Esimp(unit *ir.IR) {
	for block := unit.Blocks(); block != nil; block = block.Next() {
		esimpBlock(unit, block)
	}
}

func esimpBlock(unit *ir.IR, block *ir.Block) {
	var next *ir.Instr
	for instr := block.Head(); instr != nil; instr = next {
		next = instr.Next()

		arg0, arg1 := instr.Arg(0), instr.Arg(1)

		// bitwise identities with identical inputs
		if arg0 != nil && arg0 == arg1 {
			switch instr.Op {
			case ir.OpXor:
				unit.ReplaceUses(instr.Result, unit.AllocInt(0, instr.Result.Type))
				continue
			case ir.OpAnd, ir.OpOr:
				unit.ReplaceUses(instr.Result, arg0)
				continue
			}
		}

		if arg1 == nil || !arg1.IsConstant() || !arg1.Type.IsInt() {
			continue
		}
		rhs := arg1.ZextConstant()

		switch {
		// ops where an argument of 0 always results in 0
		case rhs == 0 && (instr.Op == ir.OpAnd || instr.Op == ir.OpSmul ||
			instr.Op == ir.OpUmul):
			unit.ReplaceUses(instr.Result, unit.AllocInt(0, instr.Result.Type))

		// ops where 0 is an identity
		case rhs == 0 && (instr.Op == ir.OpAdd || instr.Op == ir.OpSub ||
			instr.Op == ir.OpOr || instr.Op == ir.OpXor ||
			instr.Op == ir.OpShl || instr.Op == ir.OpLshr ||
			instr.Op == ir.OpAshr):
			unit.ReplaceUses(instr.Result, arg0)

		// ops where 1 is an identity
		case rhs == 1 && (instr.Op == ir.OpUmul || instr.Op == ir.OpSmul ||
			instr.Op == ir.OpDiv):
			unit.ReplaceUses(instr.Result, arg0)
		}
	}
}
