package lir

import (
	"testing"
)

// TestAddRangeMerging exercises the range merging primitive: inserted
// ranges stay sorted, disjoint and non-adjacent.
func TestAddRangeMerging(t *testing.T) {
	iv := NewLiveInterval(1)

	iv.AddRange(10, 12)
	iv.AddRange(0, 2)
	iv.AddRange(20, 22)
	if len(iv.Ranges) != 3 {
		t.Fatalf("expected 3 disjoint ranges, got %v", iv.Ranges)
	}

	// Overlap merges.
	iv.AddRange(11, 15)
	if len(iv.Ranges) != 3 || iv.Ranges[1] != (LiveRange{Start: 10, End: 15}) {
		t.Errorf("overlap merge failed: %v", iv.Ranges)
	}

	// Adjacency merges: 2+1 == 3.
	iv.AddRange(3, 5)
	if len(iv.Ranges) != 3 || iv.Ranges[0] != (LiveRange{Start: 0, End: 5}) {
		t.Errorf("adjacency merge failed: %v", iv.Ranges)
	}

	// A bridging range collapses everything into one.
	iv.AddRange(4, 21)
	if len(iv.Ranges) != 1 || iv.Ranges[0] != (LiveRange{Start: 0, End: 22}) {
		t.Errorf("bridging merge failed: %v", iv.Ranges)
	}

	if iv.Start() != 0 || iv.End() != 22 {
		t.Errorf("expected [0, 22], got [%d, %d]", iv.Start(), iv.End())
	}
	if !iv.Contains(13) || iv.Contains(23) {
		t.Error("containment check failed after merging")
	}
}

// helperNumber assigns linear instruction indices in RPO, the way the
// allocator does before interval construction.
func helperNumber(f *Function) {
	pos := 0
	for _, bb := range f.RpoOrder {
		for _, inst := range bb.Insts {
			inst.Index = pos
			inst.BlockId = bb.Id
			pos++
		}
	}
}

// TestIntervalCoverage verifies that for every def and use of a register,
// the register's interval covers the corresponding position, in both
// construction modes.
func TestIntervalCoverage(t *testing.T) {
	m := helperAnalyze(t, `int fib(int n) {
    if (n <= 1) { return n; }
    return fib(n - 1) + fib(n - 2);
}

int main() {
    int i = 0;
    int s = 0;
    while (i < 10) {
        if (i == 5) { i = i + 1; continue; }
        s = s + fib(i);
        i = i + 1;
    }
    return s;
}`)
	for _, f := range m.Functions {
		helperNumber(f)
		for _, simplified := range []bool{false, true} {
			intervals := NewIntervalBuilder(f, simplified).Build()
			for _, bb := range f.RpoOrder {
				for _, inst := range bb.Insts {
					if d := inst.DefReg(); d != -1 {
						iv := intervals[d]
						if iv == nil || !iv.Contains(inst.PosDef()) {
							t.Errorf("%s (simplified=%v): interval of %%%d misses def at %d",
								f.Name, simplified, d, inst.PosDef())
						}
					}
					for _, u := range inst.UseRegs() {
						iv := intervals[u]
						if iv == nil || !iv.Contains(inst.PosUse()) {
							t.Errorf("%s (simplified=%v): interval of %%%d misses use at %d",
								f.Name, simplified, u, inst.PosUse())
						}
					}
				}
			}
		}
	}
}

// TestIntervalSpansLoop verifies that in precise mode the loop-carried slot
// register is live through the whole loop, not only at its reference
// points.
func TestIntervalSpansLoop(t *testing.T) {
	m := helperAnalyze(t, `int main() {
    int i = 0;
    while (i < 10) { i = i + 1; }
    return i;
}`)
	f := m.GetFunction("main")
	helperNumber(f)
	intervals := NewIntervalBuilder(f, false).Build()

	var body *BasicBlock
	for _, bb := range f.Blocks {
		if bb.Name == "while_body_0" {
			body = bb
		}
	}
	if body == nil {
		t.Fatal("while_body_0 block not found")
	}

	// The alloca slot of i is live across every instruction of the body.
	slot := -1
	for _, inst := range body.Insts {
		if inst.Op == Load {
			slot = inst.Ops[0].RegId()
		}
	}
	if slot == -1 {
		t.Fatal("loop body performs no load")
	}
	iv := intervals[slot]
	if iv == nil {
		t.Fatalf("no interval for slot %%%d", slot)
	}
	for _, inst := range body.Insts {
		if !iv.Contains(inst.PosDef()) {
			t.Errorf("slot %%%d not live at body position %d", slot, inst.PosDef())
		}
	}
}
