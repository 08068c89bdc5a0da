// config.go locates and decodes an optional toycc.toml project file that
// supplies defaults for command line options that were not given explicitly.

package util

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// ProjectConfig mirrors the toycc.toml file layout.
type ProjectConfig struct {
	Build BuildConfig `toml:"build"`
}

// BuildConfig holds the [build] table of a project file.
type BuildConfig struct {
	Output  string `toml:"output"`  // Default output path.
	Emit    string `toml:"emit"`    // Default emit mode: "ast", "ir", "asm" or "all".
	Target  string `toml:"target"`  // Target triple.
	Verbose bool   `toml:"verbose"` // Verbose logging.
}

// ---------------------
// ----- Constants -----
// ---------------------

// configFileName defines the project file name searched for upwards from the
// source file's directory.
const configFileName = "toycc.toml"

// ---------------------
// ----- functions -----
// ---------------------

// mergeConfig looks for a toycc.toml file governing the source file and
// fills in options that were left at their zero value by ParseArgs. A target
// triple named in the file replaces the built-in default target.
// A missing project file is not an error.
func mergeConfig(opt *Options) error {
	path := findConfigFile(opt.Src)
	if len(path) < 1 {
		return nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg := ProjectConfig{}
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return err
	}

	if len(opt.Out) < 1 {
		opt.Out = cfg.Build.Output
	}
	if !opt.EmitAST && !opt.EmitIR && !opt.EmitASM {
		switch cfg.Build.Emit {
		case "ast":
			opt.EmitAST = true
		case "ir":
			opt.EmitIR = true
		case "asm":
			opt.EmitASM = true
		case "all":
			opt.EmitAST = true
			opt.EmitIR = true
			opt.EmitASM = true
		}
	}
	if len(cfg.Build.Target) > 0 {
		opt.Target = cfg.Build.Target
	}
	if cfg.Build.Verbose {
		opt.Verbose = true
	}
	return nil
}

// findConfigFile walks from the source file's directory towards the
// filesystem root looking for a toycc.toml file. An empty string is returned
// if no project file exists.
func findConfigFile(src string) string {
	dir := "."
	if len(src) > 0 {
		dir = filepath.Dir(src)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		path := filepath.Join(dir, configFileName)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
