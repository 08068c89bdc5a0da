// RISC-V has a downward growing stack that is always 16-bytes aligned.

// Package riscv generates RV32I assembly from an IR module, one function at
// a time, driven by the per-function register allocation result.
package riscv

import (
	"fmt"
	"strconv"
	"toycc/src/backend/regalloc"
	"toycc/src/backend/regfile"
	"toycc/src/ir/lir"
	"toycc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// cmpInfo caches the operands of a lowered comparison so that a following
// conditional branch on its result can fuse into a direct branch.
type cmpInfo struct {
	pred   lir.CmpPred // Comparison predicate.
	lhsReg string      // Resolved left operand register.
	rhsReg string      // Resolved right operand register.
}

// emitError aborts code generation through a panic that GenRiscv converts
// back into an error.
type emitError string

// generator holds the per-module and per-function code generation state.
type generator struct {
	w          *util.Writer
	ri         *regfile.RegInfo
	allocators map[string]*regalloc.LinearScanAllocator
	allocs     map[string]*regalloc.AllocationResult

	// Per-function state, reset by resetFunctionState.
	cur             string              // Current function name.
	alloc           *regalloc.AllocationResult
	allocator       *regalloc.LinearScanAllocator
	allocaOffsets   map[int]int // Alloca result vreg -> local variable area offset.
	stackOffset     int         // Local variable area cursor.
	totalStackSize  int         // Final frame size, multiple of 16.
	frameOverhead   int         // ra + s0 + callee saved bytes at the frame top.
	callSaveSize    int         // Worst case caller saved save area bytes.
	callArgAreaSize int         // Worst case outgoing stack argument bytes.
	cmpMap          map[int]cmpInfo
	lastDefReg      string // Register name resolveDef returned last.
}

// ---------------------
// ----- Constants -----
// ---------------------

// maxImm and minImm bound the signed 12-bit immediate of addi.
const maxImm = 2047
const minImm = -2048

// stackAlign defines the size of any increment of the stack.
const stackAlign = 16

// ---------------------
// ----- Functions -----
// ---------------------

// GenRiscv generates RV32I assembly for the whole module and returns it as
// text. Register allocation runs up front for every function; emission
// failures surface as errors.
func GenRiscv(opt util.Options, m *lir.Module) (s string, err error) {
	g := &generator{
		w:          &util.Writer{},
		ri:         regfile.CreateRegisterFile(),
		allocators: make(map[string]*regalloc.LinearScanAllocator, len(m.Functions)),
		allocs:     make(map[string]*regalloc.AllocationResult, len(m.Functions)),
	}

	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(emitError); ok {
				err = fmt.Errorf("%s", string(e))
				return
			}
			panic(r)
		}
	}()

	g.w.Write("    .text\n")

	// Pre-compute register allocation for every function.
	for _, f := range m.Functions {
		a := regalloc.NewLinearScanAllocator(g.ri)
		res, err := a.Allocate(f)
		if err != nil {
			return "", err
		}
		g.allocators[f.Name] = a
		g.allocs[f.Name] = res
	}

	for _, f := range m.Functions {
		g.generateFunction(f)
	}
	util.Log.Debugw("generated assembly", "functions", len(m.Functions))
	return g.w.String(), nil
}

// resetFunctionState clears all per-function generator state.
func (g *generator) resetFunctionState() {
	g.allocaOffsets = make(map[int]int, 8)
	g.cmpMap = make(map[int]cmpInfo, 4)
	g.stackOffset = 0
	g.totalStackSize = 0
	g.frameOverhead = 0
	g.callSaveSize = 0
	g.callArgAreaSize = 0
	g.lastDefReg = ""
}

// generateFunction emits the complete assembly of one function: directives
// and label, a prologue placeholder, every basic block, then the back-filled
// frame code once the frame size is known.
func (g *generator) generateFunction(f *lir.Function) {
	g.resetFunctionState()
	g.cur = f.Name
	g.alloc = g.allocs[f.Name]
	g.allocator = g.allocators[f.Name]

	// Frame overhead must be known before lowering so that alloca offsets
	// can skip the ra/s0/callee-saved area.
	g.frameOverhead = 8 + len(g.alloc.CalleeSavedRegs)*4

	// Worst case caller saved save area around calls: every caller saved
	// register the allocator occupies, spill temporaries excluded.
	cs := 0
	seen := map[int]bool{}
	for _, phys := range g.alloc.VregToPhys {
		if g.ri.IsCallerSaved(phys) && !g.allocator.IsSpillTempReg(phys) && !seen[phys] {
			seen[phys] = true
			cs++
		}
	}
	g.callSaveSize = cs * 4

	// Worst case outgoing stack argument area over all calls.
	maxStackArgs := 0
	for _, bb := range f.Blocks {
		for _, inst := range bb.Insts {
			if inst.Op == lir.Call && len(inst.Ops) > regfile.ArgRegs {
				if n := len(inst.Ops) - regfile.ArgRegs; n > maxStackArgs {
					maxStackArgs = n
				}
			}
		}
	}
	g.callArgAreaSize = maxStackArgs * 4

	g.w.Write("    .globl %s\n", f.Name)
	g.w.Label(f.Name)
	g.w.Write("%s\n", g.prologuePlaceholder())

	for i1, bb := range f.Blocks {
		if i1 > 0 {
			g.w.Label(g.mangleLabel(bb.Name))
		}
		for _, inst := range bb.Insts {
			g.generateInst(inst)
		}
	}

	g.calculateStackFrame()
	g.updateStackFramePlaceholders()

	g.w.Write("    .size %s, .-%s\n\n", f.Name, f.Name)
}

// mangleLabel prefixes a block label with the function name, guaranteeing
// labels never collide between functions.
func (g *generator) mangleLabel(block string) string {
	return "." + g.cur + "_" + block
}

// prologuePlaceholder returns the placeholder line substituted by the final
// prologue once the frame size is known.
func (g *generator) prologuePlaceholder() string {
	return "__PROLOGUE_PLACEHOLDER_" + g.cur + "__"
}

// epiloguePlaceholder returns the placeholder line substituted by the final
// epilogue. Every return site shares the same placeholder text.
func (g *generator) epiloguePlaceholder() string {
	return "__EPILOGUE_PLACEHOLDER_" + g.cur + "__"
}

// ------------------------------
// ----- Operand resolution -----
// ------------------------------

// resolveUse materialises a use operand into a physical register name.
// Immediates and boolean literals are loaded into a spill temporary;
// spilled registers and stack parameters are reloaded from their slots.
func (g *generator) resolveUse(op lir.Operand) string {
	switch {
	case op.IsImm():
		tmp := g.ri.Name(g.allocator.AllocateSpillTempReg())
		g.w.Ins2("li", tmp, strconv.Itoa(op.ImmValue()))
		return tmp
	case op.IsBoolLit():
		tmp := g.ri.Name(g.allocator.AllocateSpillTempReg())
		val := "0"
		if op.BoolValue() {
			val = "1"
		}
		g.w.Ins2("li", tmp, val)
		return tmp
	case op.IsVReg():
		vreg := op.RegId()
		if phys, ok := g.alloc.VregToPhys[vreg]; ok {
			return g.ri.Name(phys)
		}
		if slot, ok := g.alloc.VregToStack[vreg]; ok {
			tmp := g.ri.Name(g.allocator.AllocateSpillTempReg())
			if slot > 0 {
				// Positive offset: parameter in the caller's outgoing
				// argument area, at or above the frame pointer.
				g.w.Ins2("lw", tmp, fmt.Sprintf("%d(s0)", slot-4))
			} else {
				g.w.Ins2("lw", tmp, fmt.Sprintf("%d(sp)", g.spillSlotToSpOffset(slot)))
			}
			return tmp
		}
		// Registers in unreachable blocks carry no interval and receive no
		// allocation.
		return "a0"
	}
	return "zero"
}

// resolveDef resolves the definition operand to its target register name.
// A spilled definition is computed in a spill temporary and written back by
// spillDefIfNeeded.
func (g *generator) resolveDef(op lir.Operand) string {
	if !op.IsVReg() {
		g.lastDefReg = "a0"
		return g.lastDefReg
	}
	vreg := op.RegId()
	if phys, ok := g.alloc.VregToPhys[vreg]; ok {
		g.lastDefReg = g.ri.Name(phys)
		return g.lastDefReg
	}
	g.lastDefReg = g.ri.Name(g.allocator.AllocateSpillTempReg())
	return g.lastDefReg
}

// getAllocaOffset returns the frame pointer relative offset of an alloca
// slot, past the ra/s0/callee-saved area at the frame top.
func (g *generator) getAllocaOffset(vreg int) int {
	off, ok := g.allocaOffsets[vreg]
	if !ok {
		panic(emitError(fmt.Sprintf("function %s: %%%d is not an alloca slot", g.cur, vreg)))
	}
	return off + g.frameOverhead
}

// spillSlotToSpOffset converts a negative allocator spill slot to a
// positive sp relative offset. The frame bottom holds, from sp upwards, the
// outgoing argument area, the caller saved save area, then the spill slots.
func (g *generator) spillSlotToSpOffset(slot int) int {
	return g.callArgAreaSize + g.callSaveSize + (-slot) - 4
}

// spillDefIfNeeded writes a spilled definition from the spill temporary
// resolveDef chose back to its stack slot.
func (g *generator) spillDefIfNeeded(inst *lir.Instruction) {
	dr := inst.DefReg()
	if dr < 0 {
		return
	}
	slot, ok := g.alloc.VregToStack[dr]
	if !ok || slot >= 0 {
		return
	}
	if _, isAlloca := g.allocaOffsets[dr]; isAlloca {
		return
	}
	g.w.Ins2("sw", g.lastDefReg, fmt.Sprintf("%d(sp)", g.spillSlotToSpOffset(slot)))
}

// ----------------------------
// ----- Stack frame -----------
// ----------------------------

// calculateStackFrame computes the total frame size: local variables,
// ra/s0, callee saved registers, spill slots, the caller saved save area
// and the outgoing argument area, rounded up to 16 bytes.
func (g *generator) calculateStackFrame() {
	spillSize := 0
	for _, slot := range g.alloc.VregToStack {
		if slot < 0 && -slot > spillSize {
			spillSize = -slot
		}
	}
	frameOverhead := 8 + len(g.alloc.CalleeSavedRegs)*4
	g.totalStackSize = g.stackOffset + frameOverhead + spillSize + g.callSaveSize + g.callArgAreaSize
	g.totalStackSize = (g.totalStackSize + stackAlign - 1) &^ (stackAlign - 1)
}

// updateStackFramePlaceholders substitutes the prologue and epilogue
// placeholder lines with the final frame code. Every return site shares the
// same epilogue text.
func (g *generator) updateStackFramePlaceholders() {
	f := g.totalStackSize

	prologue := fmt.Sprintf("    addi sp, sp, -%d\n", f)
	prologue += fmt.Sprintf("    sw ra, %d(sp)\n", f-4)
	prologue += fmt.Sprintf("    sw s0, %d(sp)\n", f-8)
	prologue += fmt.Sprintf("    addi s0, sp, %d\n", f)
	offset := f - 12
	for _, reg := range g.alloc.CalleeSavedRegs {
		prologue += fmt.Sprintf("    sw %s, %d(sp)\n", g.ri.Name(reg), offset)
		offset -= 4
	}
	g.w.Replace(g.prologuePlaceholder()+"\n", prologue)

	epilogue := ""
	offset = f - 12
	for _, reg := range g.alloc.CalleeSavedRegs {
		epilogue += fmt.Sprintf("    lw %s, %d(sp)\n", g.ri.Name(reg), offset)
		offset -= 4
	}
	epilogue += fmt.Sprintf("    lw ra, %d(sp)\n", f-4)
	epilogue += fmt.Sprintf("    lw s0, %d(sp)\n", f-8)
	epilogue += fmt.Sprintf("    addi sp, sp, %d\n", f)
	g.w.Replace(g.epiloguePlaceholder()+"\n", epilogue)
}
