// Package regfile describes the RV32I integer register file for the
// register allocator and the code generator.
package regfile

import "sort"

// ----------------------------
// ----- Type definitions -----
// ----------------------------

// PhysReg describes one physical register of the target.
type PhysReg struct {
	Id          int    // Register number x0-x31.
	Name        string // ABI name, like "a0" or "s1".
	CallerSaved bool   // The caller preserves the register across calls.
	CalleeSaved bool   // The callee preserves the register.
	Reserved    bool   // Never handed out by the allocator.
	Priority    int    // Allocation preference; lower is preferred.
}

// RegInfo holds the static register descriptions of the target and the
// priority-ordered set of allocatable registers.
type RegInfo struct {
	PhysRegs    []PhysReg // All 32 registers, indexed by id.
	Allocatable []int     // Non-reserved register ids, by ascending priority then id.
}

// ---------------------
// ----- Constants -----
// ---------------------

// Fixed-role register ids.
const (
	Zero = 0  // x0, hardwired zero.
	Ra   = 1  // x1, return address.
	Sp   = 2  // x2, stack pointer.
	S0   = 8  // x8, frame pointer.
	T0   = 5  // x5, first spill temporary.
	T1   = 6  // x6, second spill temporary.
	A0   = 10 // x10, first argument and return value register.
)

// ArgRegs is the number of arguments passed in registers a0-a7.
const ArgRegs = 8

// ---------------------
// ----- Functions -----
// ---------------------

// CreateRegisterFile builds the RV32I register description:
//   - x0(zero), x1(ra), x2(sp), x3(gp), x4(tp) and x8(s0/fp) are reserved;
//   - x5(t0) and x6(t1) are reserved as spill temporaries;
//   - x10-x17(a0-a7) are caller saved and preferred, priorities 0-7;
//   - x7(t2), x28-x31(t3-t6) are caller saved temporaries, priorities 20-24;
//   - x9(s1), x18-x27(s2-s11) are callee saved, priorities 40-50.
func CreateRegisterFile() *RegInfo {
	ri := &RegInfo{PhysRegs: make([]PhysReg, 32)}

	// id, name, callerSaved, calleeSaved, reserved, priority
	ri.PhysRegs[0] = PhysReg{0, "zero", false, false, true, 999}
	ri.PhysRegs[1] = PhysReg{1, "ra", false, false, true, 999}
	ri.PhysRegs[2] = PhysReg{2, "sp", false, false, true, 999}
	ri.PhysRegs[3] = PhysReg{3, "gp", false, false, true, 999}
	ri.PhysRegs[4] = PhysReg{4, "tp", false, false, true, 999}
	ri.PhysRegs[5] = PhysReg{5, "t0", true, false, true, 999}
	ri.PhysRegs[6] = PhysReg{6, "t1", true, false, true, 999}
	ri.PhysRegs[7] = PhysReg{7, "t2", true, false, false, 20}
	ri.PhysRegs[8] = PhysReg{8, "s0", false, false, true, 999}
	ri.PhysRegs[9] = PhysReg{9, "s1", false, true, false, 50}
	ri.PhysRegs[10] = PhysReg{10, "a0", true, false, false, 0}
	ri.PhysRegs[11] = PhysReg{11, "a1", true, false, false, 1}
	ri.PhysRegs[12] = PhysReg{12, "a2", true, false, false, 2}
	ri.PhysRegs[13] = PhysReg{13, "a3", true, false, false, 3}
	ri.PhysRegs[14] = PhysReg{14, "a4", true, false, false, 4}
	ri.PhysRegs[15] = PhysReg{15, "a5", true, false, false, 5}
	ri.PhysRegs[16] = PhysReg{16, "a6", true, false, false, 6}
	ri.PhysRegs[17] = PhysReg{17, "a7", true, false, false, 7}
	ri.PhysRegs[18] = PhysReg{18, "s2", false, true, false, 40}
	ri.PhysRegs[19] = PhysReg{19, "s3", false, true, false, 41}
	ri.PhysRegs[20] = PhysReg{20, "s4", false, true, false, 42}
	ri.PhysRegs[21] = PhysReg{21, "s5", false, true, false, 43}
	ri.PhysRegs[22] = PhysReg{22, "s6", false, true, false, 44}
	ri.PhysRegs[23] = PhysReg{23, "s7", false, true, false, 45}
	ri.PhysRegs[24] = PhysReg{24, "s8", false, true, false, 46}
	ri.PhysRegs[25] = PhysReg{25, "s9", false, true, false, 47}
	ri.PhysRegs[26] = PhysReg{26, "s10", false, true, false, 48}
	ri.PhysRegs[27] = PhysReg{27, "s11", false, true, false, 49}
	ri.PhysRegs[28] = PhysReg{28, "t3", true, false, false, 21}
	ri.PhysRegs[29] = PhysReg{29, "t4", true, false, false, 22}
	ri.PhysRegs[30] = PhysReg{30, "t5", true, false, false, 23}
	ri.PhysRegs[31] = PhysReg{31, "t6", true, false, false, 24}

	for i1 := range ri.PhysRegs {
		if !ri.PhysRegs[i1].Reserved {
			ri.Allocatable = append(ri.Allocatable, i1)
		}
	}
	sort.Sort(ByPriority{Ids: ri.Allocatable, Info: ri})
	return ri
}

// IsReserved reports whether the register never takes part in allocation.
func (ri *RegInfo) IsReserved(id int) bool {
	return ri.PhysRegs[id].Reserved
}

// IsCallerSaved reports whether the caller preserves the register.
func (ri *RegInfo) IsCallerSaved(id int) bool {
	return ri.PhysRegs[id].CallerSaved
}

// IsCalleeSaved reports whether the callee preserves the register.
func (ri *RegInfo) IsCalleeSaved(id int) bool {
	return ri.PhysRegs[id].CalleeSaved
}

// Name returns the ABI name of the register with the given id.
func (ri *RegInfo) Name(id int) string {
	if id < 0 || id >= len(ri.PhysRegs) {
		return "invalid"
	}
	return ri.PhysRegs[id].Name
}

// Less orders register ids by ascending priority, then by id.
func (ri *RegInfo) Less(a, b int) bool {
	if ri.PhysRegs[a].Priority != ri.PhysRegs[b].Priority {
		return ri.PhysRegs[a].Priority < ri.PhysRegs[b].Priority
	}
	return a < b
}

// ByPriority sorts a slice of register ids with RegInfo.Less.
type ByPriority struct {
	Ids  []int
	Info *RegInfo
}

func (s ByPriority) Len() int           { return len(s.Ids) }
func (s ByPriority) Swap(i, j int)      { s.Ids[i], s.Ids[j] = s.Ids[j], s.Ids[i] }
func (s ByPriority) Less(i, j int) bool { return s.Info.Less(s.Ids[i], s.Ids[j]) }
