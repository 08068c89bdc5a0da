package lir

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// BasicBlock represents a maximal straight-line instruction sequence ending
// in exactly one terminator. Blocks are owned by their Function; the Succs
// and Preds cross-references are non-owning and are rebuilt by BuildCFG.
type BasicBlock struct {
	Id    int            // Dense block number within the function.
	Name  string         // Label name, unique within the function.
	Insts []*Instruction // Instructions in program order.

	Succs []*BasicBlock // Successor blocks, computed by BuildCFG.
	Preds []*BasicBlock // Predecessor blocks, computed by BuildCFG.

	// Liveness analysis results.
	DefSet  map[int]bool // Virtual registers defined in this block.
	UseSet  map[int]bool // Virtual registers used before any local definition.
	LiveIn  map[int]bool // Virtual registers live on block entry.
	LiveOut map[int]bool // Virtual registers live on block exit.
}

// ---------------------
// ----- Functions -----
// ---------------------

// Append adds an instruction to the end of the block and records the
// block's id on it.
func (b *BasicBlock) Append(inst Instruction) *Instruction {
	p := &inst
	p.BlockId = b.Id
	b.Insts = append(b.Insts, p)
	return p
}

// FirstPos returns the definition position of the block's first instruction,
// or -1 for an empty block.
func (b *BasicBlock) FirstPos() int {
	if len(b.Insts) == 0 {
		return -1
	}
	return b.Insts[0].PosDef()
}

// LastPos returns the use position of the block's last instruction, or -1
// for an empty block.
func (b *BasicBlock) LastPos() int {
	if len(b.Insts) == 0 {
		return -1
	}
	return b.Insts[len(b.Insts)-1].PosUse()
}

// Terminator returns the block's final instruction if it is a terminator,
// else <nil>.
func (b *BasicBlock) Terminator() *Instruction {
	if len(b.Insts) == 0 {
		return nil
	}
	last := b.Insts[len(b.Insts)-1]
	if last.IsTerminator() {
		return last
	}
	return nil
}
