package fast

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// testLogger formats every record down to trace level, then drops it.
func testLogger() log.Logger {
	return log.NewLogger(log.LogfmtHandlerWithLevel(io.Discard, log.LevelTrace))
}

// newTestState loads the program at address 0 of a fresh 1 MiB little-endian memory.
func newTestState(t *testing.T, words ...uint32) (*InstrumentedState, *FlatMemory) {
	return newTestStateAt(t, 0, words...)
}

func newTestStateAt(t *testing.T, addr uint32, words ...uint32) (*InstrumentedState, *FlatMemory) {
	return newOrderedTestState(t, binary.LittleEndian, addr, words...)
}

func newOrderedTestState(t *testing.T, order binary.ByteOrder, addr uint32, words ...uint32) (*InstrumentedState, *FlatMemory) {
	mem := NewFlatMemory(DefaultMemorySize, WithByteOrder(order), WithMemoryLogger(testLogger()))
	require.NoError(t, mem.Load(riscv.Program(order, words...), addr))
	inst := NewInstrumentedState(NewVMState(), mem, WithLogger(testLogger()))
	inst.SetPC(addr)
	return inst, mem
}

// recordingMemory counts environment notifications on top of a FlatMemory.
type recordingMemory struct {
	*FlatMemory
	ecalls  int
	ebreaks int
}

func (m *recordingMemory) ECall() {
	m.ecalls++
	m.FlatMemory.ECall()
}

func (m *recordingMemory) EBreak() {
	m.ebreaks++
	m.FlatMemory.EBreak()
}
