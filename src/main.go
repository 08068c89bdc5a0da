package main

import (
	"fmt"
	"os"
	"strings"
	"toycc/src/backend"
	"toycc/src/frontend"
	"toycc/src/ir"
	"toycc/src/ir/lir"
	"toycc/src/ir/llvm"
	"toycc/src/util"
)

func main() {
	// Parse command line arguments and project configuration.
	opt, err := util.ParseArgs()
	if err != nil {
		fmt.Printf("Command line argument error: %s\n", err)
		os.Exit(1)
	}

	if err := util.InitLogger(opt.Verbose); err != nil {
		fmt.Printf("Could not initialise logger: %s\n", err)
		os.Exit(1)
	}

	// Read source code.
	src, err := util.ReadSource(opt)
	if err != nil {
		fmt.Printf("Could not read source code: %s\n", err)
		os.Exit(1)
	}

	var root *ir.Node
	var m *lir.Module

	if opt.IRInput {
		// A .ll input skips the frontend and feeds the IR parser directly.
		if m, err = lir.ParseModule(src); err != nil {
			fmt.Printf("IR error: %s\n", err)
			os.Exit(1)
		}
	} else {
		// Generate syntax tree by lexing and parsing source code.
		if root, err = frontend.Parse(src); err != nil {
			fmt.Fprintf(os.Stderr, "Syntax error: %s\n", err)
			os.Exit(1)
		}

		// If -ll flag was passed: lower through the system LLVM and exit.
		if opt.LLVM {
			if err := llvm.GenLLVM(opt, root); err != nil {
				fmt.Printf("Error reported by LLVM: %s\n", err)
				os.Exit(1)
			}
			os.Exit(0)
		}

		// Lower the syntax tree into the intermediate representation.
		if m, err = lir.GenLIR(opt, root); err != nil {
			fmt.Printf("Source code error: %s\n", err)
			os.Exit(1)
		}
	}

	// Assemble the requested output stages.
	sb := strings.Builder{}
	if opt.EmitAST {
		if root != nil {
			sb.WriteString("=== Abstract Syntax Tree ===\n")
			for _, e1 := range root.Children {
				sb.WriteString(e1.Dump())
				sb.WriteRune('\n')
			}
			sb.WriteRune('\n')
		} else {
			sb.WriteString("AST not available for IR input\n\n")
		}
	}
	if opt.EmitIR {
		sb.WriteString(m.String())
	}
	if opt.EmitASM {
		asm, err := backend.GenerateAssembler(opt, m)
		if err != nil {
			fmt.Printf("Code generation error: %s\n", err)
			os.Exit(1)
		}
		sb.WriteString(asm)
	}

	if err := util.WriteOutput(opt, sb.String()); err != nil {
		fmt.Printf("Could not write output: %s\n", err)
		os.Exit(1)
	}
}
