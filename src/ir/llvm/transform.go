// Package llvm provides means to lower the syntax tree through the system
// installed LLVM runtime instead of the native backend. Selected by the -ll
// command line flag.
package llvm

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

import (
	"tinygo.org/x/go-llvm"
)

import (
	ast "toycc/src/ir"
	"toycc/src/util"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// loop holds the branch targets of one enclosing while statement.
type loop struct {
	head llvm.BasicBlock // Condition block; target of continue.
	end  llvm.BasicBlock // Exit block; target of break.
}

// funcWrapper pairs a declared LLVM function with its syntax tree node.
type funcWrapper struct {
	ll   llvm.Value
	node *ast.Node
}

// ---------------------
// ----- Constants -----
// ---------------------

const mapSize = 16 // Predefined size for a decently sized symbol table hash table.

// -------------------
// ----- globals -----
// -------------------

// i defines the integer type used for every ToyC value.
var i = llvm.Int32Type()

// ---------------------
// ----- functions -----
// ---------------------

// GenLLVM generates LLVM IR from the root node of the syntax tree and
// compiles it to an object file using the system LLVM.
func GenLLVM(opt util.Options, root *ast.Node) error {
	if root == nil {
		return errors.New("syntax tree node is <nil>")
	}
	if len(root.Children) < 1 {
		return errors.New("syntax tree node has no children")
	}

	ctx := llvm.NewContext()
	defer ctx.Dispose()

	// Builder constructs LLVM IR instructions on basic block level.
	b := ctx.NewBuilder()
	defer b.Dispose()

	// Set module name equal file name without file extension.
	m := ctx.NewModule(filepath.Base(opt.Src))
	defer m.Dispose()

	// Declare every function before generating bodies, so calls resolve
	// regardless of definition order.
	funcs := make([]funcWrapper, 0, len(root.Children))
	for _, e1 := range root.Children {
		if e1.Typ != ast.FUNCTION {
			return fmt.Errorf("expected node of type FUNCTION, got %s", e1.String())
		}
		fun, err := genFuncHeader(m, e1)
		if err != nil {
			return err
		}
		funcs = append(funcs, funcWrapper{ll: fun, node: e1})
	}
	for _, e1 := range funcs {
		if err := genFuncBody(b, m, e1.ll, e1.node); err != nil {
			return err
		}
	}

	if opt.Verbose {
		fmt.Println("LLVM IR:")
		m.Dump()
	}

	// Initialise LLVM code generation.
	llvm.InitializeAllTargetInfos()
	llvm.InitializeAllTargetMCs()
	llvm.InitializeAllAsmParsers()
	llvm.InitializeAllAsmPrinters()

	t, err := llvm.GetTargetFromTriple(opt.Target)
	if err != nil {
		return err
	}
	tm := t.CreateTargetMachine(opt.Target, "generic-rv32", "",
		llvm.CodeGenLevelNone,
		llvm.RelocDefault,
		llvm.CodeModelDefault)
	defer tm.Dispose()

	td := tm.CreateTargetData()
	defer td.Dispose()

	m.SetDataLayout(td.String())
	m.SetTarget(tm.Triple())

	// Compile target and store in memory.
	buf, err := tm.EmitToMemoryBuffer(m, llvm.ObjectFile)
	if err != nil {
		return err
	} else if buf.IsNil() {
		return errors.New("could not emit compiled code to memory")
	}

	out := opt.Out
	if len(out) < 1 {
		out = fmt.Sprintf("./%s.o", strings.TrimSuffix(filepath.Base(opt.Src), filepath.Ext(opt.Src)))
	}
	if fd, err := os.OpenFile(out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0755); err != nil {
		return err
	} else {
		defer func() {
			if err := fd.Close(); err != nil {
				fmt.Println(err)
			}
		}()
		if _, err2 := fd.Write(buf.Bytes()); err2 != nil {
			return err2
		}
	}
	return nil
}

// genFuncHeader generates the LLVM IR declaration of a function: its name,
// parameters and return type.
func genFuncHeader(m llvm.Module, n *ast.Node) (llvm.Value, error) {
	name := n.Data.(string)
	ret := i
	if n.Children[0].Data.(string) == "void" {
		ret = llvm.VoidType()
	}

	params := n.Children[1]
	atyp := make([]llvm.Type, len(params.Children))
	for i1 := range params.Children {
		atyp[i1] = i
	}
	ftyp := llvm.FunctionType(ret, atyp, false)

	if !m.NamedFunction(name).IsNil() {
		return llvm.Value{}, fmt.Errorf("duplicate declaration, function %q already declared", name)
	}
	fun := llvm.AddFunction(m, name, ftyp)

	for i1, e1 := range fun.Params() {
		e1.SetName(params.Children[i1].Data.(string))
	}
	return fun, nil
}

// genFuncBody generates the LLVM IR definition of a function. Parameters
// are spilled to stack slots, mirroring the native lowering.
func genFuncBody(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node) error {
	st := util.Stack{} // Scope stack.
	ls := util.Stack{} // Loop stack for break/continue.

	bb := llvm.AddBasicBlock(fun, "entry")
	b.SetInsertPointAtEnd(bb)

	fscope := make(map[string]llvm.Value, mapSize)
	for _, e1 := range fun.Params() {
		alloc := b.CreateAlloca(e1.Type(), "")
		b.CreateStore(e1, alloc)
		fscope[e1.Name()] = alloc
	}
	st.Push(fscope)
	defer st.Pop()

	ret, err := genStmt(b, m, fun, n.Children[2], &st, &ls)
	if err != nil {
		return err
	}

	// Complete a missing return.
	if !ret {
		if n.Children[0].Data.(string) == "void" {
			b.CreateRetVoid()
		} else {
			b.CreateRet(llvm.ConstInt(i, 0, true))
		}
	}
	return nil
}

// genStmt generates LLVM IR for one statement. The returned flag is set if
// the statement terminated the current basic block with a return or branch.
func genStmt(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node, st, ls *util.Stack) (bool, error) {
	switch n.Typ {
	case ast.BLOCK:
		st.Push(make(map[string]llvm.Value, mapSize))
		defer st.Pop()
		for _, e1 := range n.Children {
			ret, err := genStmt(b, m, fun, e1, st, ls)
			if err != nil || ret {
				return ret, err
			}
		}
		return false, nil
	case ast.DECLARATION:
		val, err := genExpr(b, m, fun, n.Children[0], st, ls)
		if err != nil {
			return false, err
		}
		alloc := b.CreateAlloca(i, n.Data.(string))
		b.CreateStore(val, alloc)
		st.Peek().(map[string]llvm.Value)[n.Data.(string)] = alloc
		return false, nil
	case ast.ASSIGNMENT_STATEMENT:
		val, err := genExpr(b, m, fun, n.Children[0], st, ls)
		if err != nil {
			return false, err
		}
		slot, err := findVariable(n.Data.(string), st)
		if err != nil {
			return false, err
		}
		b.CreateStore(val, slot)
		return false, nil
	case ast.IF_STATEMENT:
		return genIf(b, m, fun, n, st, ls)
	case ast.WHILE_STATEMENT:
		return genWhile(b, m, fun, n, st, ls)
	case ast.RETURN_STATEMENT:
		if len(n.Children) > 0 {
			val, err := genExpr(b, m, fun, n.Children[0], st, ls)
			if err != nil {
				return false, err
			}
			b.CreateRet(val)
		} else {
			b.CreateRetVoid()
		}
		return true, nil
	case ast.BREAK_STATEMENT:
		if ls.Size() < 1 {
			return false, errors.New("break statement outside loop")
		}
		b.CreateBr(ls.Peek().(loop).end)
		return true, nil
	case ast.CONTINUE_STATEMENT:
		if ls.Size() < 1 {
			return false, errors.New("continue statement outside loop")
		}
		b.CreateBr(ls.Peek().(loop).head)
		return true, nil
	default:
		// Expression statement: evaluate and discard.
		_, err := genExpr(b, m, fun, n, st, ls)
		return false, err
	}
}

// genIf generates an if statement with then/else/merge blocks.
func genIf(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node, st, ls *util.Stack) (bool, error) {
	cond, err := genCond(b, m, fun, n.Children[0], st, ls)
	if err != nil {
		return false, err
	}

	thn := llvm.AddBasicBlock(fun, "then")
	els := llvm.AddBasicBlock(fun, "else")
	conv := llvm.AddBasicBlock(fun, "endif")
	b.CreateCondBr(cond, thn, els)

	b.SetInsertPointAtEnd(thn)
	ret1, err := genStmt(b, m, fun, n.Children[1], st, ls)
	if err != nil {
		return false, err
	}
	if !ret1 {
		b.CreateBr(conv)
	}

	b.SetInsertPointAtEnd(els)
	ret2 := false
	if len(n.Children) > 2 {
		if ret2, err = genStmt(b, m, fun, n.Children[2], st, ls); err != nil {
			return false, err
		}
	}
	if !ret2 {
		b.CreateBr(conv)
	}

	b.SetInsertPointAtEnd(conv)
	return false, nil
}

// genWhile generates a while loop with head/body/exit blocks and registers
// the loop on the label stack for break and continue.
func genWhile(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node, st, ls *util.Stack) (bool, error) {
	head := llvm.AddBasicBlock(fun, "while_cond")
	body := llvm.AddBasicBlock(fun, "while_body")
	conv := llvm.AddBasicBlock(fun, "while_end")

	ls.Push(loop{head: head, end: conv})
	defer ls.Pop()

	b.CreateBr(head)
	b.SetInsertPointAtEnd(head)
	cond, err := genCond(b, m, fun, n.Children[0], st, ls)
	if err != nil {
		return false, err
	}
	b.CreateCondBr(cond, body, conv)

	b.SetInsertPointAtEnd(body)
	ret, err := genStmt(b, m, fun, n.Children[1], st, ls)
	if err != nil {
		return false, err
	}
	if !ret {
		b.CreateBr(head)
	}

	b.SetInsertPointAtEnd(conv)
	return false, nil
}

// genCond generates an i1 condition from a ToyC expression by comparing its
// i32 value against zero.
func genCond(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node, st, ls *util.Stack) (llvm.Value, error) {
	val, err := genExpr(b, m, fun, n, st, ls)
	if err != nil {
		return llvm.Value{}, err
	}
	return b.CreateICmp(llvm.IntNE, val, llvm.ConstInt(i, 0, true), ""), nil
}

// genExpr generates LLVM IR for an expression. Every ToyC value is i32;
// comparison results are zero extended back to i32.
func genExpr(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node, st, ls *util.Stack) (llvm.Value, error) {
	switch n.Typ {
	case ast.INTEGER_DATA:
		return llvm.ConstInt(i, uint64(uint32(int32(n.Data.(int)))), true), nil
	case ast.IDENTIFIER_DATA:
		slot, err := findVariable(n.Data.(string), st)
		if err != nil {
			return llvm.Value{}, err
		}
		return b.CreateLoad(slot, ""), nil
	case ast.CALL_EXPRESSION:
		name := n.Data.(string)
		target := m.NamedFunction(name)
		if target.IsNil() {
			return llvm.Value{}, fmt.Errorf("undeclared function %q", name)
		}
		args := make([]llvm.Value, len(n.Children))
		for i1, e1 := range n.Children {
			arg, err := genExpr(b, m, fun, e1, st, ls)
			if err != nil {
				return llvm.Value{}, err
			}
			args[i1] = arg
		}
		return b.CreateCall(target, args, ""), nil
	case ast.EXPRESSION:
		if len(n.Children) == 1 {
			return genUnary(b, m, fun, n, st, ls)
		}
		return genBinary(b, m, fun, n, st, ls)
	}
	return llvm.Value{}, fmt.Errorf("cannot generate expression for %s", n.String())
}

// genUnary generates a unary expression.
func genUnary(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node, st, ls *util.Stack) (llvm.Value, error) {
	op1, err := genExpr(b, m, fun, n.Children[0], st, ls)
	if err != nil {
		return llvm.Value{}, err
	}
	switch n.Data.(string) {
	case "-":
		return b.CreateSub(llvm.ConstInt(i, 0, true), op1, ""), nil
	case "!":
		cmp := b.CreateICmp(llvm.IntEQ, op1, llvm.ConstInt(i, 0, true), "")
		return b.CreateZExt(cmp, i, ""), nil
	}
	return op1, nil
}

// genBinary generates a binary expression. The short-circuit operators
// lower to the same block structure as the native backend: an i1 stack slot
// written by both arms and loaded in the merge block.
func genBinary(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node, st, ls *util.Stack) (llvm.Value, error) {
	op := n.Data.(string)
	if op == "&&" || op == "||" {
		return genLogical(b, m, fun, n, st, ls)
	}

	op1, err := genExpr(b, m, fun, n.Children[0], st, ls)
	if err != nil {
		return llvm.Value{}, err
	}
	op2, err := genExpr(b, m, fun, n.Children[1], st, ls)
	if err != nil {
		return llvm.Value{}, err
	}

	switch op {
	case "+":
		return b.CreateAdd(op1, op2, ""), nil
	case "-":
		return b.CreateSub(op1, op2, ""), nil
	case "*":
		return b.CreateMul(op1, op2, ""), nil
	case "/":
		return b.CreateSDiv(op1, op2, ""), nil
	case "%":
		return b.CreateSRem(op1, op2, ""), nil
	}

	var pred llvm.IntPredicate
	switch op {
	case "==":
		pred = llvm.IntEQ
	case "!=":
		pred = llvm.IntNE
	case "<":
		pred = llvm.IntSLT
	case ">":
		pred = llvm.IntSGT
	case "<=":
		pred = llvm.IntSLE
	case ">=":
		pred = llvm.IntSGE
	default:
		return llvm.Value{}, fmt.Errorf("operator %q not defined for ToyC", op)
	}
	cmp := b.CreateICmp(pred, op1, op2, "")
	return b.CreateZExt(cmp, i, ""), nil
}

// genLogical generates '&&' and '||' with short-circuit evaluation.
func genLogical(b llvm.Builder, m llvm.Module, fun llvm.Value, n *ast.Node, st, ls *util.Stack) (llvm.Value, error) {
	slot := b.CreateAlloca(llvm.Int1Type(), "")

	lhs, err := genCond(b, m, fun, n.Children[0], st, ls)
	if err != nil {
		return llvm.Value{}, err
	}

	rhsBB := llvm.AddBasicBlock(fun, "rhs")
	shortBB := llvm.AddBasicBlock(fun, "short")
	endBB := llvm.AddBasicBlock(fun, "end")

	short := llvm.ConstInt(llvm.Int1Type(), 0, false)
	if n.Data.(string) == "&&" {
		b.CreateCondBr(lhs, rhsBB, shortBB)
	} else {
		short = llvm.ConstInt(llvm.Int1Type(), 1, false)
		b.CreateCondBr(lhs, shortBB, rhsBB)
	}

	b.SetInsertPointAtEnd(shortBB)
	b.CreateStore(short, slot)
	b.CreateBr(endBB)

	b.SetInsertPointAtEnd(rhsBB)
	rhs, err := genCond(b, m, fun, n.Children[1], st, ls)
	if err != nil {
		return llvm.Value{}, err
	}
	b.CreateStore(rhs, slot)
	b.CreateBr(endBB)

	b.SetInsertPointAtEnd(endBB)
	res := b.CreateLoad(slot, "")
	return b.CreateZExt(res, i, ""), nil
}

// findVariable resolves a name to its stack slot by scanning the scope
// stack from the innermost scope outwards.
func findVariable(name string, st *util.Stack) (llvm.Value, error) {
	for i1 := 1; i1 <= st.Size(); i1++ {
		if scope, ok := st.Get(i1).(map[string]llvm.Value); ok {
			if slot, ok := scope[name]; ok {
				return slot, nil
			}
		}
	}
	return llvm.Value{}, fmt.Errorf("undefined variable %q", name)
}
