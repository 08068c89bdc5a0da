// Package backend dispatches assembler generation to the target specific
// code generator.
package backend

import (
	"fmt"
	"strings"
	"toycc/src/backend/riscv"
	"toycc/src/ir/lir"
	"toycc/src/util"
)

// ---------------------
// ----- Functions -----
// ---------------------

// GenerateAssembler generates output assembly for the IR module based on
// the target defined by opt.
func GenerateAssembler(opt util.Options, m *lir.Module) (string, error) {
	if strings.HasPrefix(opt.Target, "riscv32") {
		return riscv.GenRiscv(opt, m)
	}
	return "", fmt.Errorf("unsupported output target %q", opt.Target)
}
