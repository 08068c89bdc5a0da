package util

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// Options holds the compiler configuration assembled from command line
// arguments and an optional toycc.toml project file.
type Options struct {
	Src      string // Path to source file. Empty means read from stdin.
	Out      string // Path to output file. Empty means write to stdout.
	EmitAST  bool   // Set true if compiler should print the syntax tree.
	EmitIR   bool   // Set true if compiler should print the intermediate representation.
	EmitASM  bool   // Set true if compiler should print RISC-V assembly.
	LLVM     bool   // Set true if compiler should use the LLVM framework for code generation.
	Verbose  bool   // Set true if compiler should log statistical data.
	Target   string // Output target triple.
	IRInput  bool   // Set true if the input file is serialized IR (.ll) rather than ToyC source.
}

// ---------------------
// ----- Constants -----
// ---------------------

const appVersion = "toycc 1.0"

// defaultTarget defines the only supported code generation target.
const defaultTarget = "riscv32-unknown-elf"

// ---------------------
// ----- functions -----
// ---------------------

// ParseArgs parses command line arguments into an Options structure. The
// input file is recognised by its extension (.c, .tc or .ll); a .ll file
// bypasses the frontend and is fed to the IR parser.
func ParseArgs() (Options, error) {
	opt := Options{Target: defaultTarget}
	args := os.Args[1:]
	for i1 := 0; i1 < len(args); i1++ {
		switch args[i1] {
		case "-h", "--h", "-help", "--help":
			printHelp()
			os.Exit(0)
		case "-v", "--v", "-version", "--version":
			fmt.Println(appVersion)
			os.Exit(0)
		case "--ast":
			opt.EmitAST = true
		case "--ir":
			opt.EmitIR = true
		case "--asm":
			opt.EmitASM = true
		case "--all":
			opt.EmitAST = true
			opt.EmitIR = true
			opt.EmitASM = true
		case "-ll":
			opt.LLVM = true
		case "-vb":
			opt.Verbose = true
		case "-o":
			if i1+1 >= len(args) {
				return opt, fmt.Errorf("got flag %s but no argument", args[i1])
			}
			if strings.HasPrefix(args[i1+1], "-") {
				return opt, fmt.Errorf("expected output path, got new flag %s", args[i1+1])
			}
			opt.Out = args[i1+1]
			i1++
		default:
			if strings.HasSuffix(args[i1], ".c") || strings.HasSuffix(args[i1], ".tc") ||
				strings.HasSuffix(args[i1], ".ll") {
				opt.Src = args[i1]
				opt.IRInput = strings.HasSuffix(args[i1], ".ll")
				continue
			}
			return opt, fmt.Errorf("unexpected argument: %s", args[i1])
		}
	}

	// Merge defaults from a toycc.toml file, if one governs the source.
	if err := mergeConfig(&opt); err != nil {
		return opt, err
	}

	// Assembly is the default output mode.
	if !opt.EmitAST && !opt.EmitIR && !opt.EmitASM {
		opt.EmitASM = true
	}
	return opt, nil
}

// printHelp prints a helpful usage message to stdout.
func printHelp() {
	fmt.Println("usage: toycc <input.[c|tc|ll]> [options]")
	w := tabwriter.NewWriter(os.Stdout, 6, 1, 1, 0, 0)
	_, _ = fmt.Fprintln(w, "--ast\tPrint the abstract syntax tree.")
	_, _ = fmt.Fprintln(w, "--ir\tPrint the intermediate representation.")
	_, _ = fmt.Fprintln(w, "--asm\tPrint RISC-V assembly. This is the default output mode.")
	_, _ = fmt.Fprintln(w, "--all\tPrint syntax tree, intermediate representation and assembly.")
	_, _ = fmt.Fprintln(w, "-o\tPath and name of the output file. Defaults to stdout.")
	_, _ = fmt.Fprintln(w, "-ll\tUse the system LLVM to generate output code.")
	_, _ = fmt.Fprintln(w, "-vb\tVerbose mode: log compiler statistics.")
	_, _ = fmt.Fprintln(w, "-h, -help\tPrints this help message and exits the application.")
	_, _ = fmt.Fprintln(w, "-v, -version\tPrints application version and exits the application.")
	_ = w.Flush()
}
