package riscv

import (
	"fmt"
	"sort"
	"toycc/src/backend/regfile"
	"toycc/src/ir/lir"
)

// ---------------------
// ----- Functions -----
// ---------------------

// genCall lowers a function call:
//
//  1. save the occupied caller saved registers above the outgoing argument
//     area, skipping the call result's own register;
//  2. store arguments beyond the eighth into the outgoing argument area at
//     sp+0, sp+4, ...;
//  3. move the first eight arguments into a0-a7, sourcing caller saved
//     registers from their save slots because step 1 may already have run
//     over them — this sidesteps the parallel move problem entirely;
//  4. call;
//  5. move a0 into the result register before restoring, so the restore
//     cannot clobber the return value;
//  6. restore the caller saved registers.
func (g *generator) genCall(inst *lir.Instruction) {
	// The call result's register is excluded from save/restore.
	defPhysReg := -1
	if inst.Def.IsVReg() {
		if phys, ok := g.alloc.VregToPhys[inst.Def.RegId()]; ok {
			defPhysReg = phys
		}
	}

	// Gather the caller saved registers to preserve, in ascending id order.
	var savedRegs []int
	seen := map[int]bool{}
	for _, phys := range g.alloc.VregToPhys {
		if g.ri.IsCallerSaved(phys) && !g.allocator.IsSpillTempReg(phys) &&
			phys != defPhysReg && !seen[phys] {
			seen[phys] = true
			savedRegs = append(savedRegs, phys)
		}
	}
	sort.Ints(savedRegs)

	// Save them above the outgoing argument area.
	regToSaveOffset := make(map[int]int, len(savedRegs))
	saveOffset := g.callArgAreaSize
	for _, reg := range savedRegs {
		g.w.Ins2("sw", g.ri.Name(reg), fmt.Sprintf("%d(sp)", saveOffset))
		regToSaveOffset[reg] = saveOffset
		saveOffset += 4
	}

	// Stack arguments: index 8 and beyond go to sp+0, sp+4, ...
	for i1 := regfile.ArgRegs; i1 < len(inst.Ops); i1++ {
		argOffset := (i1 - regfile.ArgRegs) * 4
		op := inst.Ops[i1]
		switch {
		case op.IsImm():
			tmp := g.ri.Name(g.allocator.AllocateSpillTempReg())
			g.li(tmp, op.ImmValue())
			g.w.Ins2("sw", tmp, fmt.Sprintf("%d(sp)", argOffset))
		case op.IsVReg():
			vreg := op.RegId()
			if phys, ok := g.alloc.VregToPhys[vreg]; ok {
				if off, saved := regToSaveOffset[phys]; saved {
					// The source register was saved in step 1; go through
					// its save slot.
					tmp := g.ri.Name(g.allocator.AllocateSpillTempReg())
					g.w.Ins2("lw", tmp, fmt.Sprintf("%d(sp)", off))
					g.w.Ins2("sw", tmp, fmt.Sprintf("%d(sp)", argOffset))
				} else {
					g.w.Ins2("sw", g.ri.Name(phys), fmt.Sprintf("%d(sp)", argOffset))
				}
			} else if slot, ok := g.alloc.VregToStack[vreg]; ok {
				tmp := g.ri.Name(g.allocator.AllocateSpillTempReg())
				if slot > 0 {
					g.w.Ins2("lw", tmp, fmt.Sprintf("%d(s0)", slot-4))
				} else {
					g.w.Ins2("lw", tmp, fmt.Sprintf("%d(sp)", g.spillSlotToSpOffset(slot)))
				}
				g.w.Ins2("sw", tmp, fmt.Sprintf("%d(sp)", argOffset))
			}
		}
	}

	// Register arguments: move into a0-a7. Caller saved sources load from
	// their save slots; callee saved sources cannot have been clobbered and
	// move directly.
	for i1 := 0; i1 < len(inst.Ops) && i1 < regfile.ArgRegs; i1++ {
		target := fmt.Sprintf("a%d", i1)
		op := inst.Ops[i1]
		switch {
		case op.IsImm():
			g.li(target, op.ImmValue())
		case op.IsBoolLit():
			val := 0
			if op.BoolValue() {
				val = 1
			}
			g.li(target, val)
		case op.IsVReg():
			vreg := op.RegId()
			if phys, ok := g.alloc.VregToPhys[vreg]; ok {
				if off, saved := regToSaveOffset[phys]; saved {
					g.w.Ins2("lw", target, fmt.Sprintf("%d(sp)", off))
				} else if src := g.ri.Name(phys); src != target {
					g.w.Ins2("mv", target, src)
				}
			} else if slot, ok := g.alloc.VregToStack[vreg]; ok {
				if slot > 0 {
					g.w.Ins2("lw", target, fmt.Sprintf("%d(s0)", slot-4))
				} else {
					g.w.Ins2("lw", target, fmt.Sprintf("%d(sp)", g.spillSlotToSpOffset(slot)))
				}
			}
		}
	}

	g.w.Ins1("call", inst.Callee)

	// Result from a0, before the restores can overwrite it.
	defReg := g.resolveDef(inst.Def)
	if defReg != "a0" {
		g.w.Ins2("mv", defReg, "a0")
	}

	saveOffset = g.callArgAreaSize
	for _, reg := range savedRegs {
		g.w.Ins2("lw", g.ri.Name(reg), fmt.Sprintf("%d(sp)", saveOffset))
		saveOffset += 4
	}

	g.spillDefIfNeeded(inst)
}
