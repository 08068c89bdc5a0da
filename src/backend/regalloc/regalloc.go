// Package regalloc implements a linear scan register allocator over the
// live intervals of a function's virtual registers, targeting the RV32I
// integer register file.
package regalloc

import (
	"fmt"
	"sort"
	"toycc/src/backend/regfile"
	"toycc/src/ir/lir"
	"toycc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// AllocationResult is the allocator's output for one function.
type AllocationResult struct {
	VregToPhys          map[int]int  // vreg -> physical register id.
	VregToStack         map[int]int  // vreg -> byte offset: negative spill slots, positive stack parameters.
	ParamVregToLocation map[int]int  // parameter vreg -> register id or positive stack offset.
	UsedPhysRegs        map[int]bool // Every physical register the function occupies.
	CalleeSavedRegs     []int        // Occupied callee saved registers, ascending by id.
}

// LinearScanAllocator assigns each virtual register of a function either a
// physical register or a spill slot by walking the live intervals in start
// order.
type LinearScanAllocator struct {
	regInfo *regfile.RegInfo

	isPhysRegUsed  [32]bool // Occupancy marker per physical register.
	free           []int    // Free allocatable registers, ordered by priority.
	allocatedVregs map[int]bool
	active         []*lir.LiveInterval // Live intervals currently holding a register, by ascending end.
	result         AllocationResult
	nextSpillSlot  int

	spillTempCounter bool // Alternates t0/t1 hand-out.
}

// ---------------------
// ----- Functions -----
// ---------------------

// NewLinearScanAllocator returns an allocator over the given register file.
func NewLinearScanAllocator(ri *regfile.RegInfo) *LinearScanAllocator {
	a := &LinearScanAllocator{regInfo: ri}
	a.initializeFreeRegs()
	return a
}

// Allocate performs register allocation for Function f.
func (a *LinearScanAllocator) Allocate(f *lir.Function) (*AllocationResult, error) {
	a.result = AllocationResult{
		VregToPhys:          make(map[int]int),
		VregToStack:         make(map[int]int),
		ParamVregToLocation: make(map[int]int),
		UsedPhysRegs:        make(map[int]bool),
	}
	a.active = a.active[:0]
	a.nextSpillSlot = 0
	a.allocatedVregs = make(map[int]bool)
	a.isPhysRegUsed = [32]bool{}
	a.initializeFreeRegs()

	// 1. Bind parameters to argument registers or caller stack slots.
	a.processParameters(f.ParamVregs)

	// 2. Liveness analysis.
	la := lir.LivenessAnalysis{}
	if err := la.Run(f); err != nil {
		return nil, err
	}

	// 3. Number the instructions in reverse post-order.
	a.assignInstrPositions(f)

	// 4. Build live intervals.
	intervals := lir.NewIntervalBuilder(f, false).Build()
	a.dumpIntervals(f.Name, intervals)

	// 5. Scan.
	a.runLinearScan(intervals)

	// 6. Collect occupancy for prologue/epilogue synthesis.
	for i1 := 0; i1 < 32; i1++ {
		if a.isPhysRegUsed[i1] {
			a.result.UsedPhysRegs[i1] = true
			if a.regInfo.IsCalleeSaved(i1) {
				a.result.CalleeSavedRegs = append(a.result.CalleeSavedRegs, i1)
			}
		}
	}
	sort.Ints(a.result.CalleeSavedRegs)

	a.checkInvariants(intervals)
	return &a.result, nil
}

// processParameters binds parameter vregs: the first eight to a0-a7, the
// rest to the caller's stack at positive byte offsets 4, 8, ...
func (a *LinearScanAllocator) processParameters(paramVregs []int) {
	for i1, vreg := range paramVregs {
		if i1 < regfile.ArgRegs {
			argReg := regfile.A0 + i1
			a.result.VregToPhys[vreg] = argReg
			a.result.ParamVregToLocation[vreg] = argReg
			a.isPhysRegUsed[argReg] = true
			a.removeFree(argReg)
			a.allocatedVregs[vreg] = true
		} else {
			stackOffset := (i1 - regfile.ArgRegs + 1) * 4
			a.result.VregToStack[vreg] = stackOffset
			a.result.ParamVregToLocation[vreg] = stackOffset
			a.allocatedVregs[vreg] = true
		}
	}
}

// assignInstrPositions walks the blocks in RPO and assigns every
// instruction a dense linear index, recording its owning block.
func (a *LinearScanAllocator) assignInstrPositions(f *lir.Function) {
	pos := 0
	for _, bb := range f.RpoOrder {
		for _, inst := range bb.Insts {
			inst.Index = pos
			inst.BlockId = bb.Id
			pos++
		}
	}
}

// runLinearScan processes the intervals in ascending start order: expire
// finished intervals, skip pre-bound parameters, hand out a free register,
// or spill.
func (a *LinearScanAllocator) runLinearScan(intervals map[int]*lir.LiveInterval) {
	sorted := make([]*lir.LiveInterval, 0, len(intervals))
	for _, iv := range intervals {
		sorted = append(sorted, iv)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start() < sorted[j].Start() })

	for _, iv := range sorted {
		a.expireOldIntervals(iv.Start())

		if a.allocatedVregs[iv.Vreg] {
			// Pre-bound parameter. Stack parameters hold no register, so
			// only register-bound parameters join the active list.
			if phys, ok := a.result.VregToPhys[iv.Vreg]; ok {
				iv.PhysReg = phys
				a.insertActive(iv)
			}
			continue
		}

		if len(a.free) == 0 {
			a.spillAtInterval(iv)
		} else {
			a.allocatePhysicalReg(iv)
			a.allocatedVregs[iv.Vreg] = true
		}
	}
}

// expireOldIntervals frees the registers of every active interval ending
// before the given start position. Active is ordered by end position, so
// the scan stops at the first interval still live.
func (a *LinearScanAllocator) expireOldIntervals(curStart int) {
	i1 := 0
	for ; i1 < len(a.active); i1++ {
		if a.active[i1].End() >= curStart {
			break
		}
		a.freePhysReg(a.active[i1].PhysReg)
	}
	a.active = a.active[i1:]
}

// allocatePhysicalReg pops the highest priority free register for the
// interval and inserts it into the active list.
func (a *LinearScanAllocator) allocatePhysicalReg(iv *lir.LiveInterval) {
	reg := a.allocatePhysReg()
	iv.PhysReg = reg
	a.result.VregToPhys[iv.Vreg] = reg
	a.insertActive(iv)
}

// spillAtInterval spills either the active interval with the latest end or,
// when nothing active outlives it, the current interval itself. Stealing a
// register from a longer-lived interval approximates the furthest next use
// heuristic.
func (a *LinearScanAllocator) spillAtInterval(iv *lir.LiveInterval) {
	if len(a.active) > 0 {
		spillIdx := 0
		for i1 := 1; i1 < len(a.active); i1++ {
			if a.active[i1].End() > a.active[spillIdx].End() {
				spillIdx = i1
			}
		}
		spill := a.active[spillIdx]

		if spill.End() > iv.End() {
			phys := spill.PhysReg

			spill.PhysReg = -1
			spill.SpillSlot = a.allocateSpillSlot()
			delete(a.result.VregToPhys, spill.Vreg)
			a.result.VregToStack[spill.Vreg] = spill.SpillSlot

			a.active = append(a.active[:spillIdx], a.active[spillIdx+1:]...)

			iv.PhysReg = phys
			a.result.VregToPhys[iv.Vreg] = phys
			a.insertActive(iv)
			return
		}
	}
	iv.SpillSlot = a.allocateSpillSlot()
	a.result.VregToStack[iv.Vreg] = iv.SpillSlot
}

// allocateSpillSlot hands out a fresh 4-byte slot at the next negative
// offset: -4, -8, ...
func (a *LinearScanAllocator) allocateSpillSlot() int {
	a.nextSpillSlot++
	return -a.nextSpillSlot * 4
}

// initializeFreeRegs fills the free pool with every allocatable register in
// priority order.
func (a *LinearScanAllocator) initializeFreeRegs() {
	a.free = append(a.free[:0], a.regInfo.Allocatable...)
}

// allocatePhysReg pops the highest priority register from the free pool.
func (a *LinearScanAllocator) allocatePhysReg() int {
	if len(a.free) == 0 {
		panic("register allocator: free pool exhausted")
	}
	reg := a.free[0]
	a.free = a.free[1:]
	a.isPhysRegUsed[reg] = true
	return reg
}

// freePhysReg returns a register to the free pool, keeping priority order.
func (a *LinearScanAllocator) freePhysReg(id int) {
	if id < 0 || a.regInfo.IsReserved(id) {
		return
	}
	i1 := sort.Search(len(a.free), func(i int) bool { return !a.regInfo.Less(a.free[i], id) })
	a.free = append(a.free, 0)
	copy(a.free[i1+1:], a.free[i1:])
	a.free[i1] = id
}

// removeFree removes a register from the free pool, if present.
func (a *LinearScanAllocator) removeFree(id int) {
	for i1, e1 := range a.free {
		if e1 == id {
			a.free = append(a.free[:i1], a.free[i1+1:]...)
			return
		}
	}
}

// insertActive inserts an interval into the active list, ordered by
// ascending end position.
func (a *LinearScanAllocator) insertActive(iv *lir.LiveInterval) {
	i1 := sort.Search(len(a.active), func(i int) bool { return a.active[i].End() >= iv.End() })
	a.active = append(a.active, nil)
	copy(a.active[i1+1:], a.active[i1:])
	a.active[i1] = iv
}

// AllocateSpillTempReg alternates between the two reserved spill
// temporaries so that the two operands of one instruction never collide.
func (a *LinearScanAllocator) AllocateSpillTempReg() int {
	a.spillTempCounter = !a.spillTempCounter
	if a.spillTempCounter {
		return regfile.T0
	}
	return regfile.T1
}

// IsSpillTempReg reports whether the register id is a reserved spill
// temporary.
func (a *LinearScanAllocator) IsSpillTempReg(id int) bool {
	return id == regfile.T0 || id == regfile.T1
}

// Result returns the most recent allocation result.
func (a *LinearScanAllocator) Result() *AllocationResult {
	return &a.result
}

// checkInvariants asserts that every interval received exactly one home and
// that no virtual register landed on a spill temporary.
func (a *LinearScanAllocator) checkInvariants(intervals map[int]*lir.LiveInterval) {
	for vreg := range intervals {
		_, inPhys := a.result.VregToPhys[vreg]
		_, inStack := a.result.VregToStack[vreg]
		if inPhys == inStack {
			panic(fmt.Sprintf("register allocator: vreg %%%d has %v register and %v stack slot",
				vreg, inPhys, inStack))
		}
		if phys, ok := a.result.VregToPhys[vreg]; ok && a.IsSpillTempReg(phys) {
			panic(fmt.Sprintf("register allocator: vreg %%%d assigned spill temporary %s",
				vreg, a.regInfo.Name(phys)))
		}
	}
}

// dumpIntervals logs every live interval at debug level.
func (a *LinearScanAllocator) dumpIntervals(fname string, intervals map[int]*lir.LiveInterval) {
	vregs := make([]int, 0, len(intervals))
	for v := range intervals {
		vregs = append(vregs, v)
	}
	sort.Ints(vregs)
	for _, v := range vregs {
		util.Log.Debugw("live interval", "function", fname, "vreg", v,
			"ranges", intervals[v].Ranges)
	}
}
