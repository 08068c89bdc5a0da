package riscv

import (
	"fmt"
	"strconv"
	"toycc/src/ir/lir"
)

// ---------------------
// ----- Functions -----
// ---------------------

// generateInst dispatches one IR instruction to its lowering.
func (g *generator) generateInst(inst *lir.Instruction) {
	switch inst.Op {
	case lir.Alloca:
		g.genAlloca(inst)
	case lir.Store:
		g.genStore(inst)
	case lir.Load:
		g.genLoad(inst)
	case lir.Add, lir.Sub, lir.Mul, lir.SDiv, lir.SRem:
		g.genBinOp(inst)
	case lir.ICmp:
		g.genICmp(inst)
	case lir.CondBr:
		g.genCondBr(inst)
	case lir.Br:
		g.genBr(inst)
	case lir.Ret, lir.RetVoid:
		g.genRet(inst)
	case lir.Call:
		g.genCall(inst)
	}
}

// genAlloca reserves local variable space and records the slot offset. The
// cursor stays 4-byte aligned; no assembly is emitted.
func (g *generator) genAlloca(inst *lir.Instruction) {
	size := 4
	if inst.Type == "i1" {
		size = 1
	}
	g.stackOffset += size
	if g.stackOffset%4 != 0 {
		g.stackOffset += 4 - g.stackOffset%4
	}
	g.allocaOffsets[inst.DefReg()] = g.stackOffset
}

// genStore lowers a store to sw, or sb for i1 slots.
func (g *generator) genStore(inst *lir.Instruction) {
	// Ops[0] = value, Ops[1] = alloca pointer.
	valReg := g.resolveUse(inst.Ops[0])
	offset := g.getAllocaOffset(inst.Ops[1].RegId())

	op := "sw"
	if inst.Type == "i1" {
		op = "sb"
	}
	g.w.Ins2(op, valReg, fmt.Sprintf("-%d(s0)", offset))
}

// genLoad lowers a load to lw, or lb for i1 slots, writing the spilled
// definition back if necessary.
func (g *generator) genLoad(inst *lir.Instruction) {
	// Ops[0] = alloca pointer.
	defReg := g.resolveDef(inst.Def)
	offset := g.getAllocaOffset(inst.Ops[0].RegId())

	op := "lw"
	if inst.Type == "i1" {
		op = "lb"
	}
	g.w.Ins2(op, defReg, fmt.Sprintf("-%d(s0)", offset))
	g.spillDefIfNeeded(inst)
}

// genBinOp lowers binary arithmetic. Additions with either operand an
// immediate, and subtractions with an immediate right operand, fold into
// addi when the immediate fits the signed 12-bit range; everything else
// takes the three operand register form.
func (g *generator) genBinOp(inst *lir.Instruction) {
	defReg := g.resolveDef(inst.Def)

	inAddiRange := func(v int) bool { return v >= minImm && v <= maxImm }

	if inst.Op == lir.Add && inst.Ops[1].IsImm() && inAddiRange(inst.Ops[1].ImmValue()) {
		lhsReg := g.resolveUse(inst.Ops[0])
		g.w.Ins2imm("addi", defReg, lhsReg, inst.Ops[1].ImmValue())
		g.spillDefIfNeeded(inst)
		return
	}
	if inst.Op == lir.Add && inst.Ops[0].IsImm() && inAddiRange(inst.Ops[0].ImmValue()) {
		rhsReg := g.resolveUse(inst.Ops[1])
		g.w.Ins2imm("addi", defReg, rhsReg, inst.Ops[0].ImmValue())
		g.spillDefIfNeeded(inst)
		return
	}
	if inst.Op == lir.Sub && inst.Ops[1].IsImm() && inAddiRange(-inst.Ops[1].ImmValue()) {
		lhsReg := g.resolveUse(inst.Ops[0])
		g.w.Ins2imm("addi", defReg, lhsReg, -inst.Ops[1].ImmValue())
		g.spillDefIfNeeded(inst)
		return
	}

	lhsReg := g.resolveUse(inst.Ops[0])
	rhsReg := g.resolveUse(inst.Ops[1])

	var op string
	switch inst.Op {
	case lir.Add:
		op = "add"
	case lir.Sub:
		op = "sub"
	case lir.Mul:
		op = "mul"
	case lir.SDiv:
		op = "div"
	default:
		op = "rem"
	}
	g.w.Ins3(op, defReg, lhsReg, rhsReg)
	g.spillDefIfNeeded(inst)
}

// genICmp synthesises the comparison as a value and caches the operands so
// that a following conditional branch can fuse into a direct branch.
func (g *generator) genICmp(inst *lir.Instruction) {
	lhsReg := g.resolveUse(inst.Ops[0])
	rhsReg := g.resolveUse(inst.Ops[1])
	defReg := g.resolveDef(inst.Def)

	g.cmpMap[inst.DefReg()] = cmpInfo{pred: inst.Pred, lhsReg: lhsReg, rhsReg: rhsReg}

	switch inst.Pred {
	case lir.EQ:
		g.w.Ins3("sub", defReg, lhsReg, rhsReg)
		g.w.Ins2("seqz", defReg, defReg)
	case lir.NE:
		g.w.Ins3("sub", defReg, lhsReg, rhsReg)
		g.w.Ins2("snez", defReg, defReg)
	case lir.SLT:
		g.w.Ins3("slt", defReg, lhsReg, rhsReg)
	case lir.SGT:
		g.w.Ins3("slt", defReg, rhsReg, lhsReg)
	case lir.SLE:
		g.w.Ins3("slt", defReg, rhsReg, lhsReg)
		g.w.Ins2imm("xori", defReg, defReg, 1)
	case lir.SGE:
		g.w.Ins3("slt", defReg, lhsReg, rhsReg)
		g.w.Ins2imm("xori", defReg, defReg, 1)
	}
	g.spillDefIfNeeded(inst)
}

// genCondBr lowers a conditional branch. A condition produced by a cached
// comparison fuses into the matching direct branch; anything else falls
// back to bnez against the materialised condition.
func (g *generator) genCondBr(inst *lir.Instruction) {
	// Ops[0] = condition, Ops[1] = true label, Ops[2] = false label.
	trueLabel := g.mangleLabel(inst.Ops[1].LabelName())
	falseLabel := g.mangleLabel(inst.Ops[2].LabelName())

	condVreg := -1
	if inst.Ops[0].IsVReg() {
		condVreg = inst.Ops[0].RegId()
	}

	if cmp, ok := g.cmpMap[condVreg]; ok {
		var brOp string
		switch cmp.pred {
		case lir.EQ:
			brOp = "beq"
		case lir.NE:
			brOp = "bne"
		case lir.SLT:
			brOp = "blt"
		case lir.SGT:
			brOp = "bgt"
		case lir.SLE:
			brOp = "ble"
		case lir.SGE:
			brOp = "bge"
		}
		g.w.Ins3(brOp, cmp.lhsReg, cmp.rhsReg, trueLabel)
		g.w.Ins1("j", falseLabel)
		delete(g.cmpMap, condVreg)
		return
	}

	condReg := g.resolveUse(inst.Ops[0])
	g.w.Ins2("bnez", condReg, trueLabel)
	g.w.Ins1("j", falseLabel)
}

// genBr lowers an unconditional branch to a jump.
func (g *generator) genBr(inst *lir.Instruction) {
	g.w.Ins1("j", g.mangleLabel(inst.Ops[0].LabelName()))
}

// genRet moves the return value into a0, emits the shared epilogue
// placeholder and returns.
func (g *generator) genRet(inst *lir.Instruction) {
	if inst.Op == lir.Ret && len(inst.Ops) > 0 {
		valReg := g.resolveUse(inst.Ops[0])
		if valReg != "a0" {
			g.w.Ins2("mv", "a0", valReg)
		}
	}
	g.w.Write("%s\n", g.epiloguePlaceholder())
	g.w.Write("    ret\n")
}

// li emits a load immediate into the given register.
func (g *generator) li(reg string, val int) {
	g.w.Ins2("li", reg, strconv.Itoa(val))
}
