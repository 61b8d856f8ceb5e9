package fast

import (
	"encoding/binary"
	"fmt"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// VMState is the architectural state of one hart. Memory is owned separately, see Memory.
type VMState struct {
	PC uint32 `json:"pc"`

	Registers [32]uint32 `json:"registers"`

	Step uint64 `json:"step"`

	// Set by an environment-call handler, never by the base instruction set.
	ExitCode uint8 `json:"exit"`
	Exited   bool  `json:"exited"`
}

func NewVMState() *VMState {
	return &VMState{}
}

// Reset zeroes the register file, the program counter and the step counter.
func (s *VMState) Reset() {
	*s = VMState{}
}

func (s *VMState) getPC() U32 {
	return s.PC
}

func (s *VMState) setPC(pc U32) {
	s.PC = pc
}

func (s *VMState) loadRegister(reg U32) U32 {
	if reg >= U32(len(s.Registers)) {
		panic(fmt.Errorf("invalid register %d (code %x)", reg, riscv.ErrInvalidRegister))
	}
	return s.Registers[reg]
}

// writeRegister is the only write path into the register file: writes to x0 are discarded.
func (s *VMState) writeRegister(reg U32, v U32) {
	if reg >= U32(len(s.Registers)) {
		panic(fmt.Errorf("invalid register %d (code %x)", reg, riscv.ErrInvalidRegister))
	}
	if reg == 0 {
		return
	}
	s.Registers[reg] = v
}

// Register returns the value of register x[reg].
func (s *VMState) Register(reg uint32) uint32 {
	return s.loadRegister(reg)
}

// SetRegister writes register x[reg]; writes to x0 are discarded.
func (s *VMState) SetRegister(reg uint32, v uint32) {
	s.writeRegister(reg, v)
}

const (
	stateSizeMemRoot   = 32
	stateSizePC        = 4
	stateSizeStep      = 8
	stateSizeExitCode  = 1
	stateSizeExited    = 1
	stateSizeRegisters = 4 * 32
)

const (
	StateOffsetMemRoot   = 0
	StateOffsetPC        = StateOffsetMemRoot + stateSizeMemRoot
	StateOffsetStep      = StateOffsetPC + stateSizePC
	StateOffsetExitCode  = StateOffsetStep + stateSizeStep
	StateOffsetExited    = StateOffsetExitCode + stateSizeExitCode
	StateOffsetRegisters = StateOffsetExited + stateSizeExited
	StateWitnessSize     = StateOffsetRegisters + stateSizeRegisters
)

// EncodeWitness encodes the state, big endian, behind the root of the memory it runs on.
func (s *VMState) EncodeWitness(memRoot [32]byte) StateWitness {
	out := make([]byte, 0, StateWitnessSize)
	out = append(out, memRoot[:]...)
	out = binary.BigEndian.AppendUint32(out, s.PC)
	out = binary.BigEndian.AppendUint64(out, s.Step)
	out = append(out, s.ExitCode)
	if s.Exited {
		out = append(out, 1)
	} else {
		out = append(out, 0)
	}
	for _, r := range s.Registers {
		out = binary.BigEndian.AppendUint32(out, r)
	}
	return out
}
