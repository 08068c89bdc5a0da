package riscv

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"toycc/src/frontend"
	"toycc/src/ir/lir"
	"toycc/src/util"
)

// helperCompile compiles ToyC source all the way to RV32I assembly text.
func helperCompile(t *testing.T, src string) string {
	t.Helper()
	root, err := frontend.Parse(src)
	if err != nil {
		t.Fatalf("parse failed: %s", err)
	}
	m, err := lir.GenLIR(util.Options{}, root)
	if err != nil {
		t.Fatalf("lowering failed: %s", err)
	}
	asm, err := GenRiscv(util.Options{Target: "riscv32-unknown-elf"}, m)
	if err != nil {
		t.Fatalf("code generation failed: %s", err)
	}
	return asm
}

// helperFunction cuts the assembly of one function out of the module text:
// from its label to its .size directive.
func helperFunction(t *testing.T, asm, name string) string {
	t.Helper()
	start := strings.Index(asm, name+":\n")
	if start < 0 {
		t.Fatalf("function label %q not found in assembly:\n%s", name, asm)
	}
	end := strings.Index(asm[start:], ".size "+name)
	if end < 0 {
		t.Fatalf(".size directive of %q not found", name)
	}
	return asm[start : start+end]
}

// helperFrameSize extracts the sp decrement of the function's prologue.
func helperFrameSize(t *testing.T, fn string) int {
	t.Helper()
	for _, line := range strings.Split(fn, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "addi sp, sp, -") {
			n, err := strconv.Atoi(strings.TrimPrefix(line, "addi sp, sp, -"))
			if err != nil {
				t.Fatalf("cannot parse frame size from %q", line)
			}
			return n
		}
	}
	t.Fatalf("no prologue sp decrement found:\n%s", fn)
	return 0
}

// TestReturnZero covers the smallest program: main gets a 16-byte frame,
// moves zero into a0 and returns.
func TestReturnZero(t *testing.T) {
	asm := helperCompile(t, "int main() { return 0; }")

	if !strings.Contains(asm, "    .text\n") {
		t.Error("missing .text directive")
	}
	if !strings.Contains(asm, "    .globl main\n") {
		t.Error("missing .globl main directive")
	}

	fn := helperFunction(t, asm, "main")
	if f := helperFrameSize(t, fn); f != 16 {
		t.Errorf("expected 16-byte frame, got %d", f)
	}
	if !strings.Contains(fn, "mv a0, ") && !strings.Contains(fn, "li a0, 0") {
		t.Errorf("return value never reaches a0:\n%s", fn)
	}
	if !strings.Contains(fn, "    ret\n") {
		t.Errorf("missing ret:\n%s", fn)
	}
	if !strings.Contains(fn, "sw ra, ") || !strings.Contains(fn, "lw ra, ") {
		t.Errorf("prologue/epilogue do not preserve ra:\n%s", fn)
	}
}

// TestCallArguments covers the two-function scenario: add sources its
// parameters from a0/a1, main materialises the literal arguments in a0/a1
// and calls.
func TestCallArguments(t *testing.T) {
	asm := helperCompile(t, `int add(int a, int b) {
    return a + b;
}
int main() {
    return add(3, 4);
}`)

	add := helperFunction(t, asm, "add")
	if !strings.Contains(add, "sw a0, ") || !strings.Contains(add, "sw a1, ") {
		t.Errorf("add does not spill its a0/a1 parameters:\n%s", add)
	}
	if !strings.Contains(add, "add ") {
		t.Errorf("add emits no add instruction:\n%s", add)
	}

	main := helperFunction(t, asm, "main")
	li0 := strings.Index(main, "li a0, 3")
	li1 := strings.Index(main, "li a1, 4")
	call := strings.Index(main, "call add")
	if li0 < 0 || li1 < 0 || call < 0 {
		t.Fatalf("argument setup or call missing:\n%s", main)
	}
	if li0 > call || li1 > call {
		t.Errorf("arguments are materialised after the call:\n%s", main)
	}
}

// TestBranchFusion covers the recursive scenario: the n<=1 comparison fuses
// into a direct ble, ra is preserved, and s0 (a callee saved register) is
// saved for the frame chain.
func TestBranchFusion(t *testing.T) {
	asm := helperCompile(t, `int fib(int n) {
    if (n <= 1) { return n; }
    return fib(n - 1) + fib(n - 2);
}`)

	fib := helperFunction(t, asm, "fib")
	if !strings.Contains(fib, "ble ") {
		t.Errorf("n<=1 did not fuse into ble:\n%s", fib)
	}
	if !strings.Contains(fib, "sw ra, ") {
		t.Errorf("recursive function does not save ra:\n%s", fib)
	}
	if !strings.Contains(fib, "sw s0, ") {
		t.Errorf("prologue does not save s0:\n%s", fib)
	}
	if strings.Count(fib, "call fib") != 2 {
		t.Errorf("expected two recursive calls:\n%s", fib)
	}
}

// TestLoopStructure covers the while/continue scenario: three loop blocks,
// continue jumping to the condition block, and an addi increment.
func TestLoopStructure(t *testing.T) {
	asm := helperCompile(t, `int main() {
    int i = 0;
    int s = 0;
    while (i < 10) {
        if (i == 5) { i = i + 1; continue; }
        s = s + i;
        i = i + 1;
    }
    return s;
}`)

	main := helperFunction(t, asm, "main")
	for _, label := range []string{
		".main_while_cond_0:", ".main_while_body_0:", ".main_while_end_0:",
	} {
		if !strings.Contains(main, label) {
			t.Errorf("missing loop label %s:\n%s", label, main)
		}
	}
	// Body bottom and continue both jump back to the condition block.
	if strings.Count(main, "j .main_while_cond_0") < 2 {
		t.Errorf("continue does not jump to the loop condition:\n%s", main)
	}
	if !strings.Contains(main, "addi ") || !strings.Contains(main, ", 1") {
		t.Errorf("i+1 did not fold into addi:\n%s", main)
	}
}

// TestShortCircuit covers the && scenario: an i1 stack slot written with
// sb/read with lb, and a conditional branch that skips the right hand side.
func TestShortCircuit(t *testing.T) {
	asm := helperCompile(t, `int f(int a, int b) {
    if (a > 0 && b > 0) { return 1; }
    return 0;
}`)

	f := helperFunction(t, asm, "f")
	if !strings.Contains(f, "sb ") || !strings.Contains(f, "lb ") {
		t.Errorf("short-circuit result does not live in an i1 slot:\n%s", f)
	}
	// The a>0 comparison fuses into bgt whose false arm jumps past the
	// b>0 evaluation.
	if !strings.Contains(f, "bgt ") {
		t.Errorf("a>0 did not fuse into bgt:\n%s", f)
	}
	rhs := strings.Index(f, ".f_land_rhs_0:")
	skip := strings.Index(f, "j .f_land_false_0")
	if rhs < 0 || skip < 0 {
		t.Fatalf("short-circuit blocks missing:\n%s", f)
	}
	if skip > rhs {
		t.Errorf("false arm does not precede rhs evaluation:\n%s", f)
	}
}

// TestSpillCode covers the register pressure scenario: spills materialise
// as sw/lw traffic against sp and the spill temporaries stay reserved.
func TestSpillCode(t *testing.T) {
	sb := strings.Builder{}
	sb.WriteString("int h(")
	for i1 := 0; i1 < 25; i1++ {
		if i1 > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "int p%d", i1)
	}
	sb.WriteString(") { return p0; }\nint g(int x) {\n    return h(")
	for i1 := 0; i1 < 25; i1++ {
		if i1 > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "x + %d", i1)
	}
	sb.WriteString(");\n}\n")

	asm := helperCompile(t, sb.String())
	g := helperFunction(t, asm, "g")

	if !strings.Contains(g, "(sp)") {
		t.Errorf("no sp-relative spill traffic:\n%s", g)
	}
	swSp := strings.Count(g, "sw t0, ") + strings.Count(g, "sw t1, ")
	lwSp := strings.Count(g, "lw t0, ") + strings.Count(g, "lw t1, ")
	if swSp == 0 || lwSp == 0 {
		t.Errorf("spill temporaries never store/reload:\n%s", g)
	}
	// Outgoing stack arguments for indices 8..24 start at sp+0.
	if !strings.Contains(g, ", 0(sp)") {
		t.Errorf("first stack argument not at sp+0:\n%s", g)
	}
	if !strings.Contains(g, "call h") {
		t.Errorf("call missing:\n%s", g)
	}
}

// TestFrameBalance verifies for several programs that every epilogue
// restores exactly the bytes the prologue reserved and that frames are
// 16-byte aligned.
func TestFrameBalance(t *testing.T) {
	srcs := []string{
		"int main() { return 0; }",
		`int f(int a, int b) { if (a > 0 && b > 0) { return 1; } return 0; }
int main() { return f(1, 2); }`,
		`int fib(int n) { if (n <= 1) { return n; } return fib(n - 1) + fib(n - 2); }
int main() { return fib(10); }`,
	}
	for _, src := range srcs {
		asm := helperCompile(t, src)
		for _, fn := range helperFunctions(asm) {
			f := helperFrameSize(t, fn)
			if f%16 != 0 {
				t.Errorf("frame size %d not a multiple of 16:\n%s", f, fn)
			}
			decs := strings.Count(fn, fmt.Sprintf("addi sp, sp, -%d", f))
			incs := strings.Count(fn, fmt.Sprintf("addi sp, sp, %d", f))
			if decs != 1 {
				t.Errorf("expected exactly one prologue decrement, got %d:\n%s", decs, fn)
			}
			if incs < 1 {
				t.Errorf("no epilogue increment matching frame size %d:\n%s", f, fn)
			}
			rets := strings.Count(fn, "    ret\n")
			if incs != rets {
				t.Errorf("%d returns but %d epilogues:\n%s", rets, incs, fn)
			}
		}
	}
}

// TestNoPlaceholdersRemain verifies that prologue and epilogue placeholders
// are fully substituted.
func TestNoPlaceholdersRemain(t *testing.T) {
	asm := helperCompile(t, `int fib(int n) { if (n <= 1) { return n; } return fib(n - 1) + fib(n - 2); }
int main() { return fib(10); }`)
	if strings.Contains(asm, "PLACEHOLDER") {
		t.Errorf("unsubstituted placeholder in output:\n%s", asm)
	}
}

// helperFunctions splits the module text into per-function sections.
func helperFunctions(asm string) []string {
	var res []string
	parts := strings.Split(asm, "    .globl ")
	for _, e1 := range parts[1:] {
		if i1 := strings.Index(e1, ".size "); i1 > 0 {
			res = append(res, e1[:i1])
		}
	}
	return res
}
