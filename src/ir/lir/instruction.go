package lir

import (
	"fmt"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Instruction represents a single IR instruction. Instructions are built by
// the Make factories and owned by the basic block they are appended to.
type Instruction struct {
	Op      Opcode    // Operation performed by the instruction.
	Type    string    // Operation type: "i32", "i1" or "void".
	Def     Operand   // Result register; the absent operand if the instruction defines nothing.
	Ops     []Operand // Ordered operand uses.
	Pred    CmpPred   // Comparison predicate. Only used by ICmp.
	Callee  string    // Called function name. Only used by Call.
	Nsw     bool      // No-signed-wrap flag on arithmetic instructions.
	Align   int       // Memory alignment: 4 for i32, 1 for i1.
	Index   int       // Global linear order number assigned by the allocator.
	BlockId int       // Id of the owning basic block.
}

// ---------------------------
// ----- Factory methods -----
// ---------------------------

// MakeAlloca creates a stack allocation instruction: %def = alloca type, align N.
func MakeAlloca(def Operand, typ string, align int) Instruction {
	return Instruction{Op: Alloca, Def: def, Type: typ, Align: align, Index: -1, BlockId: -1}
}

// MakeLoad creates a load instruction: %def = load type, ptr %ptr, align N.
func MakeLoad(def Operand, typ string, ptr Operand, align int) Instruction {
	return Instruction{Op: Load, Def: def, Type: typ, Ops: []Operand{ptr}, Align: align,
		Index: -1, BlockId: -1}
}

// MakeStore creates a store instruction: store type value, ptr %ptr, align N.
func MakeStore(typ string, value, ptr Operand, align int) Instruction {
	return Instruction{Op: Store, Type: typ, Ops: []Operand{value, ptr}, Align: align,
		Index: -1, BlockId: -1}
}

// MakeBinOp creates a binary arithmetic instruction: %def = op nsw type lhs, rhs.
func MakeBinOp(op Opcode, def Operand, typ string, lhs, rhs Operand) Instruction {
	return Instruction{Op: op, Def: def, Type: typ, Ops: []Operand{lhs, rhs}, Nsw: true,
		Align: 4, Index: -1, BlockId: -1}
}

// MakeICmp creates an integer comparison: %def = icmp pred type lhs, rhs.
func MakeICmp(pred CmpPred, def Operand, typ string, lhs, rhs Operand) Instruction {
	return Instruction{Op: ICmp, Def: def, Type: typ, Ops: []Operand{lhs, rhs}, Pred: pred,
		Align: 4, Index: -1, BlockId: -1}
}

// MakeBr creates an unconditional branch: br label %target.
func MakeBr(target Operand) Instruction {
	return Instruction{Op: Br, Ops: []Operand{target}, Align: 4, Index: -1, BlockId: -1}
}

// MakeCondBr creates a conditional branch: br i1 %cond, label %true, label %false.
func MakeCondBr(cond, trueTarget, falseTarget Operand) Instruction {
	return Instruction{Op: CondBr, Ops: []Operand{cond, trueTarget, falseTarget}, Align: 4,
		Index: -1, BlockId: -1}
}

// MakeRet creates a valued return: ret type value.
func MakeRet(typ string, value Operand) Instruction {
	return Instruction{Op: Ret, Type: typ, Ops: []Operand{value}, Align: 4, Index: -1, BlockId: -1}
}

// MakeRetVoid creates a valueless return: ret void.
func MakeRetVoid() Instruction {
	return Instruction{Op: RetVoid, Type: "void", Align: 4, Index: -1, BlockId: -1}
}

// MakeCall creates a function call: %def = call retType @callee(args...).
func MakeCall(def Operand, retType, callee string, args []Operand) Instruction {
	return Instruction{Op: Call, Def: def, Type: retType, Callee: callee, Ops: args, Align: 4,
		Index: -1, BlockId: -1}
}

// ---------------------------
// ----- Derived queries -----
// ---------------------------

// DefReg returns the virtual register id the instruction writes, or -1 if
// the instruction defines nothing.
func (i *Instruction) DefReg() int {
	if i.Def.IsVReg() {
		return i.Def.RegId()
	}
	return -1
}

// UseRegs returns the virtual register ids the instruction reads, in operand
// order. The positions of register uses differ per opcode.
func (i *Instruction) UseRegs() []int {
	var res []int
	switch i.Op {
	case Alloca, Br, RetVoid:
		// No register uses.
	case Load, Ret:
		if len(i.Ops) > 0 && i.Ops[0].IsVReg() {
			res = append(res, i.Ops[0].RegId())
		}
	case CondBr:
		// Ops[0] is the condition; Ops[1] and Ops[2] are labels.
		if len(i.Ops) > 0 && i.Ops[0].IsVReg() {
			res = append(res, i.Ops[0].RegId())
		}
	default:
		// Store, arithmetic, ICmp and Call read every register operand.
		for _, e1 := range i.Ops {
			if e1.IsVReg() {
				res = append(res, e1.RegId())
			}
		}
	}
	return res
}

// IsTerminator returns true if the instruction ends a basic block.
func (i *Instruction) IsTerminator() bool {
	return i.Op == Br || i.Op == CondBr || i.Op == Ret || i.Op == RetVoid
}

// IsCall returns true if the instruction is a function call.
func (i *Instruction) IsCall() bool {
	return i.Op == Call
}

// BranchTargets returns the labels a terminating branch may transfer control
// to: one for Br, two for CondBr, none otherwise.
func (i *Instruction) BranchTargets() []string {
	var targets []string
	switch i.Op {
	case Br:
		if len(i.Ops) > 0 && i.Ops[0].IsLabel() {
			targets = append(targets, i.Ops[0].LabelName())
		}
	case CondBr:
		if len(i.Ops) > 1 && i.Ops[1].IsLabel() {
			targets = append(targets, i.Ops[1].LabelName())
		}
		if len(i.Ops) > 2 && i.Ops[2].IsLabel() {
			targets = append(targets, i.Ops[2].LabelName())
		}
	}
	return targets
}

// BranchCondReg returns the condition register id of a conditional branch,
// or -1 for any other instruction.
func (i *Instruction) BranchCondReg() int {
	if i.Op == CondBr && len(i.Ops) > 0 && i.Ops[0].IsVReg() {
		return i.Ops[0].RegId()
	}
	return -1
}

// PosDef returns the position on the linear time axis where the
// instruction's definition takes effect. Every instruction owns two
// positions: an even definition point and an odd use point.
func (i *Instruction) PosDef() int {
	return i.Index * 2
}

// PosUse returns the position on the linear time axis where the
// instruction's operands are read.
func (i *Instruction) PosUse() int {
	return i.Index*2 + 1
}

// String serializes the instruction to one LLVM IR text line.
func (i *Instruction) String() string {
	switch i.Op {
	case Alloca:
		return fmt.Sprintf("%s = alloca %s, align %d", i.Def, i.Type, i.Align)
	case Load:
		return fmt.Sprintf("%s = load %s, ptr %s, align %d", i.Def, i.Type, i.Ops[0], i.Align)
	case Store:
		return fmt.Sprintf("store %s %s, ptr %s, align %d", i.Type, i.Ops[0], i.Ops[1], i.Align)
	case Add, Sub, Mul, SDiv, SRem:
		nsw := ""
		if i.Nsw {
			nsw = " nsw"
		}
		return fmt.Sprintf("%s = %s%s %s %s, %s", i.Def, i.Op, nsw, i.Type, i.Ops[0], i.Ops[1])
	case ICmp:
		return fmt.Sprintf("%s = icmp %s %s %s, %s", i.Def, i.Pred, i.Type, i.Ops[0], i.Ops[1])
	case Br:
		return fmt.Sprintf("br label %s", i.Ops[0])
	case CondBr:
		return fmt.Sprintf("br i1 %s, label %s, label %s", i.Ops[0], i.Ops[1], i.Ops[2])
	case Ret:
		return fmt.Sprintf("ret %s %s", i.Type, i.Ops[0])
	case RetVoid:
		return "ret void"
	case Call:
		sb := strings.Builder{}
		if !i.Def.IsNone() {
			sb.WriteString(fmt.Sprintf("%s = ", i.Def))
		}
		sb.WriteString(fmt.Sprintf("call %s @%s(", i.Type, i.Callee))
		for i1, e1 := range i.Ops {
			if i1 > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString("i32 noundef ")
			sb.WriteString(e1.String())
		}
		sb.WriteRune(')')
		return sb.String()
	}
	return "unknown"
}
