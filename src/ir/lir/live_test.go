package lir

import (
	"testing"
)

// helperAnalyze lowers source and runs liveness on every function.
func helperAnalyze(t *testing.T, src string) *Module {
	t.Helper()
	m := helperBuild(t, src)
	la := LivenessAnalysis{}
	for _, f := range m.Functions {
		if err := la.Run(f); err != nil {
			t.Fatalf("%s: liveness failed: %s", f.Name, err)
		}
	}
	return m
}

// TestUseDefSets verifies the upward-exposed use computation: a register
// defined before its local use never enters the useSet.
func TestUseDefSets(t *testing.T) {
	m := helperAnalyze(t, `int f(int a) {
    int x = a + 1;
    return x + a;
}`)
	f := m.GetFunction("f")
	entry := f.EntryBlock()

	// Every def of the block must be in defSet.
	for _, inst := range entry.Insts {
		if d := inst.DefReg(); d != -1 && !entry.DefSet[d] {
			t.Errorf("%%%d defined but missing from defSet", d)
		}
	}
	// The parameter register is used by the first store before any local
	// definition of it, so it must be upward exposed.
	if !entry.UseSet[0] {
		t.Error("parameter %0 missing from useSet")
	}
	// Locally defined-then-used registers must not be upward exposed.
	for _, inst := range entry.Insts {
		if d := inst.DefReg(); d != -1 && entry.UseSet[d] {
			t.Errorf("%%%d is defined locally before use but sits in useSet", d)
		}
	}
}

// TestRPO verifies that the reverse post-order starts at the entry and
// covers every reachable block exactly once.
func TestRPO(t *testing.T) {
	m := helperAnalyze(t, `int main() {
    int i = 0;
    while (i < 3) {
        if (i == 1) { i = i + 2; } else { i = i + 1; }
    }
    return i;
}`)
	f := m.GetFunction("main")
	if len(f.RpoOrder) != len(f.Blocks) {
		t.Fatalf("RPO covers %d of %d blocks", len(f.RpoOrder), len(f.Blocks))
	}
	if f.RpoOrder[0] != f.EntryBlock() {
		t.Error("RPO does not start at the entry block")
	}
	seen := make(map[*BasicBlock]bool)
	for _, bb := range f.RpoOrder {
		if seen[bb] {
			t.Errorf("block %s appears twice in RPO", bb.Name)
		}
		seen[bb] = true
	}
	// Every block but the entry must come after at least one of its
	// predecessors; a loop header's back edge comes from a later block, but
	// its entry edge does not.
	pos := make(map[*BasicBlock]int)
	for i1, bb := range f.RpoOrder {
		pos[bb] = i1
	}
	for _, bb := range f.RpoOrder[1:] {
		before := false
		for _, pred := range bb.Preds {
			if pos[pred] < pos[bb] {
				before = true
				break
			}
		}
		if !before {
			t.Errorf("block %s precedes all of its predecessors in RPO", bb.Name)
		}
	}
}

// TestLivenessSoundness verifies that every use is covered by the block's
// liveIn set or a local definition earlier in the block.
func TestLivenessSoundness(t *testing.T) {
	m := helperAnalyze(t, `int fib(int n) {
    if (n <= 1) { return n; }
    return fib(n - 1) + fib(n - 2);
}

int main() {
    int i = 0;
    int s = 0;
    while (i < 10) {
        s = s + fib(i);
        i = i + 1;
    }
    return s;
}`)
	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			local := make(map[int]bool)
			for _, inst := range bb.Insts {
				for _, u := range inst.UseRegs() {
					if !bb.LiveIn[u] && !local[u] && !helperIsParam(f, u) {
						t.Errorf("%s %s: use of %%%d not covered by liveIn or local def",
							f.Name, bb.Name, u)
					}
				}
				if d := inst.DefReg(); d != -1 {
					local[d] = true
				}
			}
		}
	}
}

// TestLoopLiveness verifies that the slot register of a variable written in
// the loop body and read by the loop condition is live into and out of the
// condition block.
func TestLoopLiveness(t *testing.T) {
	m := helperAnalyze(t, `int main() {
    int i = 0;
    while (i < 10) {
        i = i + 1;
    }
    return i;
}`)
	f := m.GetFunction("main")

	// Find the alloca slot register of i: the pointer of the condition load.
	var cond *BasicBlock
	for _, bb := range f.Blocks {
		if bb.Name == "while_cond_0" {
			cond = bb
		}
	}
	if cond == nil {
		t.Fatal("while_cond_0 block not found")
	}
	slot := -1
	for _, inst := range cond.Insts {
		if inst.Op == Load {
			slot = inst.Ops[0].RegId()
			break
		}
	}
	if slot == -1 {
		t.Fatal("condition block performs no load")
	}

	// The slot register is created in the entry block and read on every
	// loop iteration: it must be live into and out of the condition block.
	if !cond.LiveIn[slot] {
		t.Errorf("slot %%%d not live into the condition block", slot)
	}
	if !cond.LiveOut[slot] {
		t.Errorf("slot %%%d not live out of the condition block", slot)
	}
}

// helperIsParam reports whether the register id is one of the function's
// parameter registers.
func helperIsParam(f *Function, vreg int) bool {
	for _, v := range f.ParamVregs {
		if v == vreg {
			return true
		}
	}
	return false
}
