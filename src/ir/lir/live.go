package lir

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// LivenessAnalysis computes, for every basic block of a function, the
// defSet/useSet/liveIn/liveOut virtual register sets that interval
// construction consumes.
type LivenessAnalysis struct{}

// ---------------------
// ----- Functions -----
// ---------------------

// Run performs the complete liveness analysis flow on Function f: build the
// control flow graph, compute upward-exposed use and def sets, establish the
// reverse post-order, and iterate the data-flow equations to a fixed point.
func (la *LivenessAnalysis) Run(f *Function) error {
	if err := f.BuildCFG(); err != nil {
		return err
	}
	la.computeUseDefSets(f)
	f.RpoOrder = BuildRPO(f.EntryBlock())
	la.solveIteratively(f)
	return nil
}

// computeUseDefSets scans every block in program order. A register read
// before any local definition joins the block's useSet; every written
// register joins the defSet.
func (la *LivenessAnalysis) computeUseDefSets(f *Function) {
	for _, e1 := range f.Blocks {
		e1.UseSet = make(map[int]bool)
		e1.DefSet = make(map[int]bool)
		e1.LiveIn = make(map[int]bool)
		e1.LiveOut = make(map[int]bool)

		localDef := make(map[int]bool)
		for _, e2 := range e1.Insts {
			// Uses before defs: the use of an instruction reads values that
			// exist before its own definition takes effect.
			for _, u := range e2.UseRegs() {
				if !localDef[u] {
					e1.UseSet[u] = true
				}
			}
			if d := e2.DefReg(); d != -1 {
				e1.DefSet[d] = true
				localDef[d] = true
			}
		}
	}
}

// BuildRPO produces the reverse post-order of the graph reachable from
// entry. The traversal uses an explicit stack so that arbitrarily deep
// control flow cannot overflow the call stack. Successors are pushed in
// reverse, preserving the left-to-right visit order of a recursive DFS.
func BuildRPO(entry *BasicBlock) []*BasicBlock {
	var order []*BasicBlock
	if entry == nil {
		return order
	}

	type frame struct {
		bb        *BasicBlock
		processed bool
	}
	visited := make(map[*BasicBlock]bool)
	stk := []frame{{bb: entry}}

	for len(stk) > 0 {
		top := stk[len(stk)-1]
		stk = stk[:len(stk)-1]
		if top.processed {
			order = append(order, top.bb)
			continue
		}
		if visited[top.bb] {
			continue
		}
		visited[top.bb] = true
		stk = append(stk, frame{bb: top.bb, processed: true})
		for i1 := len(top.bb.Succs) - 1; i1 >= 0; i1-- {
			if succ := top.bb.Succs[i1]; !visited[succ] {
				stk = append(stk, frame{bb: succ})
			}
		}
	}

	// Reverse the post-order.
	for i1, j1 := 0, len(order)-1; i1 < j1; i1, j1 = i1+1, j1-1 {
		order[i1], order[j1] = order[j1], order[i1]
	}
	return order
}

// solveIteratively repeats the backward data-flow equations
//
//	liveOut(B) = ∪ liveIn(S) over successors S
//	liveIn(B)  = useSet(B) ∪ (liveOut(B) \ defSet(B))
//
// over the blocks in reverse RPO until no set changes. Termination follows
// from the sets growing monotonically within a finite lattice.
func (la *LivenessAnalysis) solveIteratively(f *Function) {
	changed := true
	for changed {
		changed = false
		for i1 := len(f.RpoOrder) - 1; i1 >= 0; i1-- {
			bb := f.RpoOrder[i1]

			newLiveOut := make(map[int]bool)
			for _, succ := range bb.Succs {
				for v := range succ.LiveIn {
					newLiveOut[v] = true
				}
			}

			newLiveIn := make(map[int]bool, len(bb.UseSet))
			for v := range bb.UseSet {
				newLiveIn[v] = true
			}
			for v := range newLiveOut {
				if !bb.DefSet[v] {
					newLiveIn[v] = true
				}
			}

			if !sameSet(newLiveIn, bb.LiveIn) || !sameSet(newLiveOut, bb.LiveOut) {
				bb.LiveIn = newLiveIn
				bb.LiveOut = newLiveOut
				changed = true
			}
		}
	}
}

// sameSet reports whether two register sets hold the same members.
func sameSet(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}
