package main

import (
	"encoding/binary"
	"os"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/rv32sim/rv32sim/rvgo/fast"
	"github.com/rv32sim/rv32sim/rvgo/riscv"
	"github.com/rv32sim/rv32sim/rvgo/slow"
)

func main() {
	l := log.NewLogger(log.LogfmtHandlerWithLevel(os.Stderr, log.LevelInfo))

	program := riscv.Program(binary.LittleEndian,
		riscv.Addi(1, 0, 5),
		riscv.Addi(2, 0, 7),
		riscv.Add(3, 1, 2),
	)
	mem := fast.NewFlatMemory(fast.DefaultMemorySize, fast.WithMemoryLogger(l))
	if err := mem.Load(program, 0); err != nil {
		l.Crit("failed to load program", "err", err)
	}

	// run through agreed instruction steps the fast way
	vm := fast.NewInstrumentedState(fast.NewVMState(), mem, fast.WithLogger(l))
	vm.Reset()
	vm.SetPC(0)
	instructionStep := len(program)/4 - 1
	for i := 0; i < instructionStep; i++ {
		if err := vm.Step(); err != nil {
			l.Crit("step failed", "step", i, "err", err)
		}
	}

	// Now run through the last step twice: fast, and slow on a copy of the memory.
	verifyMem := mem.Clone()
	pre := vm.EncodeWitness()
	l.Info("pre-state", "witness", hexutil.Bytes(pre))
	if err := vm.Step(); err != nil {
		l.Crit("step failed", "err", err)
	}
	post, err := slow.Step(pre, verifyMem)
	if err != nil {
		l.Crit("slow step failed", "err", err)
	}
	postHash, err := fast.StateWitness(post).StateHash()
	if err != nil {
		l.Crit("invalid post-state", "err", err)
	}
	fastHash, err := vm.EncodeWitness().StateHash()
	if err != nil {
		l.Crit("invalid post-state", "err", err)
	}
	if postHash != fastHash {
		l.Crit("post-state mismatch", "fast", fastHash, "slow", postHash)
	}
	s := vm.State()
	l.Info("post-state", "hash", postHash, "pc", fast.HexU32(s.PC), "x3", s.Register(3))
}
