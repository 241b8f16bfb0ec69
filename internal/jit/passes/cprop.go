package passes

import "github.com/kamui-emu/kamui/internal/jit/ir"

// Cprop folds instructions whose arguments are all integer constants
// into a single constant of the result type. Floating point folding is
// deliberately not performed to avoid host rounding divergence.
func Cprop(unit *ir.IR) {
	for block := unit.Blocks(); block != nil; block = block.Next() {
		cpropBlock(unit, block)
	}
}

func cpropBlock(unit *ir.IR, block *ir.Block) {
	var next *ir.Instr
	for instr := block.Head(); instr != nil; instr = next {
		next = instr.Next()

		if instr.Result == nil || !instr.Result.Type.IsInt() {
			continue
		}

		arg0, arg1 := instr.Arg(0), instr.Arg(1)

		// fold constant binary ops
		if arg0 != nil && arg1 != nil &&
			arg0.IsConstant() && arg1.IsConstant() &&
			arg0.Type.IsInt() && arg1.Type.IsInt() {
			lhs := arg0.ZextConstant()
			rhs := arg1.ZextConstant()

			var folded uint64
			switch instr.Op {
			case ir.OpAdd:
				folded = lhs + rhs
			case ir.OpSub:
				folded = lhs - rhs
			case ir.OpUmul:
				folded = lhs * rhs
			case ir.OpDiv:
				if rhs == 0 {
					continue
				}
				folded = lhs / rhs
			case ir.OpAnd:
				folded = lhs & rhs
			case ir.OpOr:
				folded = lhs | rhs
			case ir.OpXor:
				folded = lhs ^ rhs
			case ir.OpShl:
				folded = lhs << rhs
			case ir.OpLshr:
				folded = lhs >> rhs
			default:
				continue
			}

			unit.ReplaceUses(instr.Result, unit.AllocInt(int64(folded), instr.Result.Type))
			unit.RemoveInstr(instr)
			continue
		}

		// fold constant unary ops
		if arg0 != nil && arg1 == nil && arg0.IsConstant() && arg0.Type.IsInt() {
			arg := arg0.ZextConstant()

			var folded uint64
			switch instr.Op {
			case ir.OpNeg:
				folded = 0 - arg
			case ir.OpNot:
				folded = ^arg
			default:
				continue
			}

			unit.ReplaceUses(instr.Result, unit.AllocInt(int64(folded), instr.Result.Type))
			unit.RemoveInstr(instr)
		}
	}
}
