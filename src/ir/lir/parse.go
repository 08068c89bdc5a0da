// parse.go reconstructs an in-memory Module from its textual serialization.
// The text format is a debugging representation, so the parser is strict:
// any line it cannot understand aborts parsing with an error.

package lir

import (
	"fmt"
	"strconv"
	"strings"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// moduleParser holds the state of one ParseModule run.
type moduleParser struct {
	m       *Module
	f       *Function   // Function currently being parsed, <nil> at module level.
	bb      *BasicBlock // Block instructions are appended to.
	maxVreg int         // Highest virtual register id seen in the current function.
	line    int         // Current line number, for diagnostics.
}

// ---------------------
// ----- Functions -----
// ---------------------

// ParseModule parses serialized IR text into a Module.
func ParseModule(src string) (*Module, error) {
	p := &moduleParser{m: CreateModule("")}
	for _, raw := range strings.Split(src, "\n") {
		p.line++
		s := strings.TrimSpace(raw)
		if len(s) == 0 || strings.HasPrefix(s, ";") {
			continue
		}
		if err := p.parseLine(s); err != nil {
			return nil, err
		}
	}
	if p.f != nil {
		return nil, fmt.Errorf("line %d: unterminated function %q", p.line, p.f.Name)
	}
	return p.m, nil
}

// errorf formats a parse error carrying the current line number.
func (p *moduleParser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("line %d: %s", p.line, fmt.Sprintf(format, args...))
}

// parseLine dispatches one non-empty line of IR text.
func (p *moduleParser) parseLine(s string) error {
	switch {
	case strings.HasPrefix(s, "source_filename"):
		if name, ok := unquoteAssignment(s); ok {
			p.m.SourceFile = name
			p.m.Name = name
		}
		return nil
	case strings.HasPrefix(s, "target triple"):
		if name, ok := unquoteAssignment(s); ok {
			p.m.TargetTriple = name
		}
		return nil
	case strings.HasPrefix(s, "define"):
		return p.parseDefine(s)
	case s == "}":
		if p.f == nil {
			return p.errorf("unexpected '}'")
		}
		p.f.MaxVregId = p.maxVreg
		p.m.Functions = append(p.m.Functions, p.f)
		p.f = nil
		p.bb = nil
		return nil
	case p.f == nil:
		return p.errorf("instruction outside function: %q", s)
	case strings.HasSuffix(s, ":"):
		name := strings.TrimSuffix(s, ":")
		p.bb = p.f.CreateBlock(name)
		return nil
	default:
		return p.parseInst(s)
	}
}

// unquoteAssignment extracts the quoted right hand side of a line of the
// form `key = "value"`.
func unquoteAssignment(s string) (string, bool) {
	i1 := strings.Index(s, "\"")
	i2 := strings.LastIndex(s, "\"")
	if i1 < 0 || i2 <= i1 {
		return "", false
	}
	return s[i1+1 : i2], true
}

// parseDefine parses a function header:
// define dso_local <ret> @<name>(<params>) #0 {
func (p *moduleParser) parseDefine(s string) error {
	if p.f != nil {
		return p.errorf("nested function definition")
	}
	at := strings.Index(s, "@")
	open := strings.Index(s, "(")
	closing := strings.LastIndex(s, ")")
	if at < 0 || open < at || closing < open {
		return p.errorf("malformed function header: %q", s)
	}

	retType := "i32"
	if strings.Contains(s[:at], " void ") {
		retType = "void"
	}
	f := &Function{
		Name:       s[at+1 : open],
		ReturnType: retType,
		BlockMap:   make(map[string]*BasicBlock, 8),
	}

	params := strings.TrimSpace(s[open+1 : closing])
	if len(params) > 0 {
		for i1, e1 := range strings.Split(params, ",") {
			fields := strings.Fields(e1)
			if len(fields) == 0 {
				return p.errorf("malformed parameter list: %q", params)
			}
			name := strings.TrimPrefix(fields[len(fields)-1], "%")
			f.Params = append(f.Params, FuncParam{Name: name, Type: "i32"})
			f.ParamVregs = append(f.ParamVregs, i1)
		}
	}

	p.f = f
	p.maxVreg = len(f.Params) - 1
	p.bb = f.CreateBlock("entry")
	return nil
}

// parseOperand parses one textual operand: "%7" is a virtual register,
// "%label" a label, "true"/"false" a boolean literal and a bare number an
// immediate.
func (p *moduleParser) parseOperand(tok string) (Operand, error) {
	tok = strings.TrimSuffix(tok, ",")
	switch {
	case strings.HasPrefix(tok, "%"):
		name := tok[1:]
		if id, err := strconv.Atoi(name); err == nil {
			p.noteVreg(id)
			return VReg(id), nil
		}
		return Label(name), nil
	case tok == "true":
		return BoolLit(true), nil
	case tok == "false":
		return BoolLit(false), nil
	default:
		v, err := strconv.Atoi(tok)
		if err != nil {
			return None(), p.errorf("malformed operand: %q", tok)
		}
		return Imm(v), nil
	}
}

// noteVreg tracks the highest virtual register id of the current function.
func (p *moduleParser) noteVreg(id int) {
	if id > p.maxVreg {
		p.maxVreg = id
	}
}

// parseInst parses one instruction line and appends it to the current block.
func (p *moduleParser) parseInst(s string) error {
	def := None()
	rest := s
	if i1 := strings.Index(s, " = "); i1 > 0 {
		d, err := p.parseOperand(s[:i1])
		if err != nil {
			return err
		}
		if !d.IsVReg() {
			return p.errorf("malformed definition: %q", s)
		}
		def = d
		rest = s[i1+3:]
	}

	fields := strings.Fields(strings.ReplaceAll(rest, ",", " "))
	if len(fields) == 0 {
		return p.errorf("empty instruction")
	}

	switch fields[0] {
	case "alloca":
		// alloca <type> align <N>
		if len(fields) < 4 {
			return p.errorf("malformed alloca: %q", s)
		}
		align, err := strconv.Atoi(fields[3])
		if err != nil {
			return p.errorf("malformed alignment: %q", fields[3])
		}
		p.bb.Append(MakeAlloca(def, fields[1], align))
		return nil

	case "load":
		// load <type> ptr <ptr> align <N>
		if len(fields) < 6 {
			return p.errorf("malformed load: %q", s)
		}
		ptr, err := p.parseOperand(fields[3])
		if err != nil {
			return err
		}
		align, err := strconv.Atoi(fields[5])
		if err != nil {
			return p.errorf("malformed alignment: %q", fields[5])
		}
		p.bb.Append(MakeLoad(def, fields[1], ptr, align))
		return nil

	case "store":
		// store <type> <value> ptr <ptr> align <N>
		if len(fields) < 7 {
			return p.errorf("malformed store: %q", s)
		}
		val, err := p.parseOperand(fields[2])
		if err != nil {
			return err
		}
		ptr, err := p.parseOperand(fields[4])
		if err != nil {
			return err
		}
		align, err := strconv.Atoi(fields[6])
		if err != nil {
			return p.errorf("malformed alignment: %q", fields[6])
		}
		p.bb.Append(MakeStore(fields[1], val, ptr, align))
		return nil

	case "add", "sub", "mul", "sdiv", "srem":
		// <op> [nsw] <type> <lhs> <rhs>
		opc, err := ArithOpcode(fields[0])
		if err != nil {
			return p.errorf("%s", err)
		}
		rest := fields[1:]
		nsw := false
		if len(rest) > 0 && rest[0] == "nsw" {
			nsw = true
			rest = rest[1:]
		}
		if len(rest) < 3 {
			return p.errorf("malformed arithmetic instruction: %q", s)
		}
		lhs, err := p.parseOperand(rest[1])
		if err != nil {
			return err
		}
		rhs, err := p.parseOperand(rest[2])
		if err != nil {
			return err
		}
		inst := MakeBinOp(opc, def, rest[0], lhs, rhs)
		inst.Nsw = nsw
		p.bb.Append(inst)
		return nil

	case "icmp":
		// icmp <pred> <type> <lhs> <rhs>
		if len(fields) < 5 {
			return p.errorf("malformed icmp: %q", s)
		}
		pred, err := ParseCmpPred(fields[1])
		if err != nil {
			return p.errorf("%s", err)
		}
		lhs, err := p.parseOperand(fields[3])
		if err != nil {
			return err
		}
		rhs, err := p.parseOperand(fields[4])
		if err != nil {
			return err
		}
		p.bb.Append(MakeICmp(pred, def, fields[2], lhs, rhs))
		return nil

	case "br":
		// br label <L>  |  br i1 <cond> label <T> label <F>
		if len(fields) >= 3 && fields[1] == "label" {
			target, err := p.parseOperand(fields[2])
			if err != nil {
				return err
			}
			p.bb.Append(MakeBr(target))
			return nil
		}
		if len(fields) >= 7 && fields[1] == "i1" {
			cond, err := p.parseOperand(fields[2])
			if err != nil {
				return err
			}
			trueTarget, err := p.parseOperand(fields[4])
			if err != nil {
				return err
			}
			falseTarget, err := p.parseOperand(fields[6])
			if err != nil {
				return err
			}
			p.bb.Append(MakeCondBr(cond, trueTarget, falseTarget))
			return nil
		}
		return p.errorf("malformed branch: %q", s)

	case "ret":
		if len(fields) >= 2 && fields[1] == "void" {
			p.bb.Append(MakeRetVoid())
			return nil
		}
		if len(fields) >= 3 {
			val, err := p.parseOperand(fields[2])
			if err != nil {
				return err
			}
			p.bb.Append(MakeRet(fields[1], val))
			return nil
		}
		return p.errorf("malformed return: %q", s)

	case "call":
		return p.parseCall(def, rest)
	}
	return p.errorf("cannot parse instruction: %q", s)
}

// parseCall parses a call instruction body:
// call <ret> @<callee>(<type> noundef <arg>, ...)
func (p *moduleParser) parseCall(def Operand, rest string) error {
	at := strings.Index(rest, "@")
	open := strings.Index(rest, "(")
	closing := strings.LastIndex(rest, ")")
	if at < 0 || open < at || closing < open {
		return p.errorf("malformed call: %q", rest)
	}
	retType := strings.TrimSpace(strings.TrimPrefix(rest[:at], "call"))
	callee := rest[at+1 : open]

	var args []Operand
	argText := strings.TrimSpace(rest[open+1 : closing])
	if len(argText) > 0 {
		for _, e1 := range strings.Split(argText, ",") {
			fields := strings.Fields(e1)
			if len(fields) == 0 {
				return p.errorf("malformed call argument list: %q", argText)
			}
			arg, err := p.parseOperand(fields[len(fields)-1])
			if err != nil {
				return err
			}
			args = append(args, arg)
		}
	}
	p.bb.Append(MakeCall(def, retType, callee, args))
	return nil
}
