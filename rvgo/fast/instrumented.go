package fast

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// Merkleizer is implemented by memories that can commit to their contents.
type Merkleizer interface {
	MerkleRoot() [32]byte
}

// InstrumentedState is the CPU core of one hart: it owns the architectural state
// and reaches memory and the environment only through a Memory.
// It is not safe for concurrent use.
type InstrumentedState struct {
	state *VMState
	mem   Memory

	log      log.Logger
	syscalls SyscallHandler

	// sub-word loads narrow from the high end of a big-endian word
	bigEndian bool
}

type Option func(*InstrumentedState)

func WithLogger(l log.Logger) Option {
	return func(m *InstrumentedState) {
		m.log = l
	}
}

// WithSyscalls dispatches ECALLs to h after the memory has been notified.
// Without a handler an ECALL has no architectural effect.
func WithSyscalls(h SyscallHandler) Option {
	return func(m *InstrumentedState) {
		m.syscalls = h
	}
}

func NewInstrumentedState(state *VMState, mem Memory, opts ...Option) *InstrumentedState {
	m := &InstrumentedState{
		state: state,
		mem:   mem,
		log:   log.Root(),

		bigEndian: isBigEndian(mem),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *InstrumentedState) State() *VMState {
	return m.state
}

func (m *InstrumentedState) Memory() Memory {
	return m.mem
}

// Reset zeroes the register file and the program counter.
func (m *InstrumentedState) Reset() {
	m.state.Reset()
	m.log.Debug("Reset", "pc", HexU32(m.state.PC))
}

// SetPC sets the address of the next instruction to fetch.
func (m *InstrumentedState) SetPC(pc uint32) {
	m.state.setPC(pc)
	m.log.Debug("Set PC", "pc", HexU32(pc))
}

// Step executes exactly one instruction.
// A fault is reported as a *riscv.Fault; the step still completes and the PC moves past
// the faulting instruction, so the caller may keep stepping.
func (m *InstrumentedState) Step() error {
	s := m.state
	if s.Exited {
		return nil
	}
	pc := s.PC
	err := m.riscvStep()
	s.Step++
	if err != nil {
		ctx := []any{"step", s.Step - 1, "pc", HexU32(pc), "err", err}
		if f, ok := riscv.AsFault(err); ok {
			ctx = append(ctx, "code", HexU32(f.Code()))
		}
		m.log.Error("Instruction fault", ctx...)
	}
	return err
}

// EncodeWitness encodes the current state, committing to the memory if it supports merkleization.
func (m *InstrumentedState) EncodeWitness() StateWitness {
	var root [32]byte
	if mk, ok := m.mem.(Merkleizer); ok {
		root = mk.MerkleRoot()
	}
	return m.state.EncodeWitness(root)
}
