package riscv

import "fmt"

// Opcode is the 7-bit major opcode, bits [6:0] of an instruction word.
type Opcode uint32

const (
	OpLoad    Opcode = 0x03 // 000_0011
	OpMiscMem Opcode = 0x0F // 000_1111
	OpImm     Opcode = 0x13 // 001_0011
	OpAUIPC   Opcode = 0x17 // 001_0111
	OpStore   Opcode = 0x23 // 010_0011
	OpReg     Opcode = 0x33 // 011_0011
	OpLUI     Opcode = 0x37 // 011_0111
	OpBranch  Opcode = 0x63 // 110_0011
	OpJALR    Opcode = 0x67 // 110_0111
	OpJAL     Opcode = 0x6F // 110_1111
	OpSystem  Opcode = 0x73 // 111_0011
)

var opcodeNames = map[Opcode]string{
	OpLoad:    "LOAD",
	OpMiscMem: "MISC-MEM",
	OpImm:     "OP-IMM",
	OpAUIPC:   "AUIPC",
	OpStore:   "STORE",
	OpReg:     "OP",
	OpLUI:     "LUI",
	OpBranch:  "BRANCH",
	OpJALR:    "JALR",
	OpJAL:     "JAL",
	OpSystem:  "SYSTEM",
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("opcode(0x%02x)", uint32(op))
}

// LoadFunct3 selects the width and signedness of a LOAD.
type LoadFunct3 uint32

const (
	LB  LoadFunct3 = 0 // 000
	LH  LoadFunct3 = 1 // 001
	LW  LoadFunct3 = 2 // 010
	LBU LoadFunct3 = 4 // 100
	LHU LoadFunct3 = 5 // 101
)

// StoreFunct3 selects the width of a STORE.
type StoreFunct3 uint32

const (
	SB StoreFunct3 = 0 // 000
	SH StoreFunct3 = 1 // 001
	SW StoreFunct3 = 2 // 010
)

// BranchFunct3 selects the comparison of a BRANCH.
type BranchFunct3 uint32

const (
	BEQ  BranchFunct3 = 0 // 000
	BNE  BranchFunct3 = 1 // 001
	BLT  BranchFunct3 = 4 // 100
	BGE  BranchFunct3 = 5 // 101
	BLTU BranchFunct3 = 6 // 110
	BGEU BranchFunct3 = 7 // 111
)

// ALUFunct3 selects the operation of OP and OP-IMM.
// SUB and SRA share their funct3 with ADD and SRL and are selected by Funct7Alt.
type ALUFunct3 uint32

const (
	ADD  ALUFunct3 = 0 // 000, ADD/SUB/ADDI
	SLL  ALUFunct3 = 1 // 001, SLL/SLLI
	SLT  ALUFunct3 = 2 // 010, SLT/SLTI
	SLTU ALUFunct3 = 3 // 011, SLTU/SLTIU
	XOR  ALUFunct3 = 4 // 100, XOR/XORI
	SR   ALUFunct3 = 5 // 101, SRL/SRA/SRLI/SRAI
	OR   ALUFunct3 = 6 // 110, OR/ORI
	AND  ALUFunct3 = 7 // 111, AND/ANDI
)

// MiscMemFunct3 selects the ordering instruction of MISC-MEM.
type MiscMemFunct3 uint32

const (
	FENCE  MiscMemFunct3 = 0 // 000
	FENCEI MiscMemFunct3 = 1 // 001, Zifencei
)

// SystemFunct3 selects the SYSTEM instruction group. Only PRIV exists without Zicsr.
type SystemFunct3 uint32

const PRIV SystemFunct3 = 0

// Funct12 is the I-type immediate field of a PRIV instruction.
type Funct12 uint32

const (
	ECALL  Funct12 = 0
	EBREAK Funct12 = 1
)

const (
	Funct7Base = 0x00 // 000_0000
	Funct7Alt  = 0x20 // 010_0000, SUB and SRA
)

// Register ABI indices used by the environment-call convention.
const (
	RegZero = 0
	RegRA   = 1
	RegSP   = 2
	RegA0   = 10
	RegA1   = 11
	RegA2   = 12
	RegA7   = 17
)

const (
	SysRead      = 63
	SysWrite     = 64
	SysExit      = 93
	SysExitGroup = 94

	FdStdin  = 0
	FdStdout = 1
	FdStderr = 2

	EBADF = 9
)

const (
	ErrUnknownOpCode    = uint32(0xf001c0de)
	ErrUnknownFunct3    = uint32(0xf001f3)
	ErrUnknownFunct7    = uint32(0xf001f7)
	ErrUnknownFunct12   = uint32(0xf001f12)
	ErrNotAlignedAddr   = uint32(0xbad10ad0)
	ErrMemoryOutOfRange = uint32(0xbadadd0)
	ErrInvalidRegister  = uint32(0xbad4e9)
	ErrInvalidSyscall   = uint32(0xf001ca11)
	ErrBadWitnessLength = uint32(0xbad5ee)
	ErrBadMemoryRoot    = uint32(0xbadf00d)
)
