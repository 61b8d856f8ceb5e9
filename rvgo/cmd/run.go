package cmd

import (
	"bytes"
	"debug/elf"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/pkg/profile"
	"github.com/urfave/cli/v2"

	"github.com/rv32sim/rv32sim/rvgo/fast"
	"github.com/rv32sim/rv32sim/rvgo/riscv"
	"github.com/rv32sim/rv32sim/rvgo/slow"
)

// breakpointMemory records EBREAK notifications, to stop the run loop.
type breakpointMemory struct {
	fast.StateMemory
	hit bool
}

func (m *breakpointMemory) EBreak() {
	m.hit = true
	m.StateMemory.EBreak()
}

// restoreCheckpoint resumes from a checkpoint with the memory it was taken with.
// Memory flags given explicitly must agree with the checkpoint.
func restoreCheckpoint(ctx *cli.Context, path string, l log.Logger) (*fast.VMState, fast.StateMemory, error) {
	c, err := fast.LoadCheckpoint(path)
	if err != nil {
		return nil, nil, err
	}
	order, err := c.Order()
	if err != nil {
		return nil, nil, err
	}
	if ctx.IsSet(RunByteOrderFlag.Name) {
		flagOrder, err := fast.ParseByteOrder(ctx.String(RunByteOrderFlag.Name))
		if err != nil {
			return nil, nil, err
		}
		if flagOrder != order {
			return nil, nil, fmt.Errorf("--%s %s conflicts with the %s-endian checkpoint %q",
				RunByteOrderFlag.Name, fast.ByteOrderName(flagOrder), fast.ByteOrderName(order), path)
		}
	}
	kind := "paged"
	if c.FlatSize != 0 {
		kind = "flat"
	}
	if ctx.IsSet(RunMemoryFlag.Name) && ctx.String(RunMemoryFlag.Name) != kind {
		return nil, nil, fmt.Errorf("--%s %s conflicts with the %s memory of checkpoint %q",
			RunMemoryFlag.Name, ctx.String(RunMemoryFlag.Name), kind, path)
	}
	if ctx.IsSet(RunMemSizeFlag.Name) && ctx.Uint64(RunMemSizeFlag.Name) != uint64(c.FlatSize) {
		return nil, nil, fmt.Errorf("--%s %d conflicts with the memory size %d of checkpoint %q",
			RunMemSizeFlag.Name, ctx.Uint64(RunMemSizeFlag.Name), c.FlatSize, path)
	}
	mem, err := c.Restore(fast.WithMemoryLogger(l))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to restore memory of checkpoint %q: %w", path, err)
	}
	return c.State, mem, nil
}

// loadProgram builds the initial state and memory from the --bin, --elf or --checkpoint input.
func loadProgram(ctx *cli.Context, l log.Logger) (*fast.VMState, fast.StateMemory, fast.SortedSymbols, error) {
	inputs := 0
	for _, f := range []string{RunBinFlag.Name, RunELFFlag.Name, RunCheckpointFlag.Name} {
		if ctx.IsSet(f) {
			inputs++
		}
	}
	if inputs != 1 {
		return nil, nil, nil, fmt.Errorf("expected exactly one of --%s, --%s or --%s", RunBinFlag.Name, RunELFFlag.Name, RunCheckpointFlag.Name)
	}

	if path := ctx.Path(RunCheckpointFlag.Name); path != "" {
		state, mem, err := restoreCheckpoint(ctx, path, l)
		return state, mem, nil, err
	}

	order, err := fast.ParseByteOrder(ctx.String(RunByteOrderFlag.Name))
	if err != nil {
		return nil, nil, nil, err
	}
	memOpts := []fast.MemoryOption{fast.WithByteOrder(order), fast.WithMemoryLogger(l)}

	var mem fast.StateMemory
	switch kind := ctx.String(RunMemoryFlag.Name); kind {
	case "flat":
		size := ctx.Uint64(RunMemSizeFlag.Name)
		if size > 1<<32 {
			return nil, nil, nil, fmt.Errorf("memory size %d exceeds the 32-bit address space", size)
		}
		if size == 1<<32 {
			size-- // the last byte is lost to keep the size in a uint32
		}
		mem = fast.NewFlatMemory(uint32(size), memOpts...)
	case "paged":
		mem = fast.NewPagedMemory(memOpts...)
	default:
		return nil, nil, nil, fmt.Errorf("unknown memory kind %q, expected flat or paged", kind)
	}

	state := fast.NewVMState()
	if path := ctx.Path(RunELFFlag.Name); path != "" {
		f, err := elf.Open(path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to open ELF file %q: %w", path, err)
		}
		defer f.Close()
		entry, err := fast.LoadELF(f, mem)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to load ELF data into memory: %w", err)
		}
		state.PC = entry
		symbols, err := fast.Symbols(f)
		if err != nil {
			l.Warn("No symbols available", "err", err)
		}
		return state, mem, symbols, nil
	}

	path := ctx.Path(RunBinFlag.Name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to read binary %q: %w", path, err)
	}
	if n := ctx.Uint64(RunLengthFlag.Name); n != 0 && n < uint64(len(data)) {
		data = data[:n]
	}
	offset := ctx.Uint64(RunOffsetFlag.Name)
	if offset >= 1<<32 {
		return nil, nil, nil, fmt.Errorf("load offset %#x exceeds the 32-bit address space", offset)
	}
	if err := mem.Load(data, uint32(offset)); err != nil {
		return nil, nil, nil, err
	}
	state.PC = uint32(offset)
	return state, mem, nil, nil
}

// verifier re-executes steps with the slow implementation, on its own copy of the memory.
type verifier struct {
	mem slow.MemoryOracle
}

func newVerifier(mem fast.StateMemory) (*verifier, error) {
	switch m := mem.(type) {
	case *fast.FlatMemory:
		return &verifier{mem: m.Clone()}, nil
	case *fast.PagedMemory:
		return &verifier{mem: m.Clone()}, nil
	default:
		return nil, fmt.Errorf("cannot verify steps on memory of type %T", mem)
	}
}

func (v *verifier) check(pre []byte, post fast.StateWitness, fastErr error) error {
	slowPost, slowErr := slow.Step(pre, v.mem)
	if slowPost == nil {
		return fmt.Errorf("slow step failed: %w", slowErr)
	}
	if !bytes.Equal(slowPost, post) {
		return fmt.Errorf("post-state mismatch: fast %x, slow %x", []byte(post), slowPost)
	}
	if (fastErr == nil) != (slowErr == nil) {
		return fmt.Errorf("outcome mismatch: fast err %v, slow err %v", fastErr, slowErr)
	}
	return nil
}

func Run(ctx *cli.Context) error {
	if ctx.Bool(RunPProfCPU.Name) {
		defer profile.Start(profile.NoShutdownHook, profile.ProfilePath("."), profile.CPUProfile).Stop()
	}

	lvl, err := ParseLevel(ctx.String(LogLevelFlag.Name))
	if err != nil {
		return err
	}
	l := Logger(ctx.App.ErrWriter, lvl)

	state, loaded, symbols, err := loadProgram(ctx, l)
	if err != nil {
		return err
	}
	mem := &breakpointMemory{StateMemory: loaded}

	opts := []fast.Option{fast.WithLogger(l)}
	if ctx.Bool(RunSyscallsFlag.Name) {
		outLog := &LoggingWriter{Name: "program std-out", Log: l}
		errLog := &LoggingWriter{Name: "program std-err", Log: l}
		opts = append(opts, fast.WithSyscalls(&fast.LinuxSyscalls{Stdout: outLog, Stderr: errLog}))
	}
	us := fast.NewInstrumentedState(state, mem, opts...)
	if ctx.IsSet(RunPCFlag.Name) {
		pc := ctx.Uint64(RunPCFlag.Name)
		if pc >= 1<<32 {
			return fmt.Errorf("pc %#x exceeds the 32-bit address space", pc)
		}
		us.SetPC(uint32(pc))
	}

	var verify *verifier
	if ctx.Bool(RunVerifyFlag.Name) {
		if ctx.Bool(RunSyscallsFlag.Name) {
			return errors.New("steps with system calls cannot be verified")
		}
		if verify, err = newVerifier(loaded); err != nil {
			return err
		}
	}

	stopAt := ctx.Generic(RunStopAtFlag.Name).(*StepMatcherFlag).Matcher()
	infoAt := ctx.Generic(RunInfoAtFlag.Name).(*StepMatcherFlag).Matcher()
	maxSteps := ctx.Uint64(RunStepsFlag.Name)
	stopAtEBreak := ctx.Bool(RunStopAtEBreakFlag.Name)
	stopOnFault := ctx.Bool(RunStopOnFaultFlag.Name)

	start := time.Now()
	startStep := state.Step
	faults := 0

	for !state.Exited {
		if state.Step%100 == 0 { // don't do the ctx err check (includes lock) too often
			if err := ctx.Context.Err(); err != nil {
				return err
			}
		}

		step := state.Step
		if maxSteps != 0 && step-startStep >= maxSteps {
			l.Info("Step budget exhausted", "steps", maxSteps)
			break
		}

		if infoAt(state) {
			delta := time.Since(start)
			fields := []any{
				"step", step,
				"pc", fast.HexU32(state.PC),
				"ips", float64(step-startStep) / (float64(delta) / float64(time.Second)),
			}
			if insn, err := mem.Read32(state.PC); err == nil {
				fields = append(fields, "insn", fast.HexU32(insn))
			}
			if pm, ok := loaded.(*fast.PagedMemory); ok {
				fields = append(fields, "pages", pm.PageCount(), "mem", pm.Usage())
			}
			if symbols != nil {
				fields = append(fields, "name", symbols.LookupSymbol(state.PC))
			}
			l.Info("processing", fields...)
		}

		if stopAt(state) {
			break
		}

		var pre fast.StateWitness
		if verify != nil {
			pre = us.EncodeWitness()
		}
		pc := state.PC
		err := us.Step()
		if verify != nil {
			if verr := verify.check(pre, us.EncodeWitness(), err); verr != nil {
				return fmt.Errorf("verification failed at step %d (PC: %08x): %w", step, pc, verr)
			}
		}
		if err != nil {
			if _, isFault := riscv.AsFault(err); !isFault || stopOnFault {
				return fmt.Errorf("failed at step %d (PC: %08x): %w", step, pc, err)
			}
			faults++
		}

		if stopAtEBreak && mem.hit {
			l.Info("Stopped at breakpoint", "step", step, "pc", fast.HexU32(pc))
			break
		}
	}

	stateHash, err := us.EncodeWitness().StateHash()
	if err != nil {
		return fmt.Errorf("failed to hash final state: %w", err)
	}
	l.Info("Execution finished",
		"steps", state.Step-startStep,
		"pc", fast.HexU32(state.PC),
		"exited", state.Exited,
		"exit", state.ExitCode,
		"faults", faults,
		"stateHash", stateHash,
	)
	_, _ = fmt.Fprintln(ctx.App.Writer, stateHash.Hex())

	if out := ctx.Path(RunOutputFlag.Name); out != "" {
		c, err := fast.NewCheckpoint(state, loaded)
		if err != nil {
			return err
		}
		if err := fast.WriteCheckpoint(out, c, OutFilePerm); err != nil {
			return fmt.Errorf("failed to write state output: %w", err)
		}
	}
	return nil
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run a RV32I program",
	Description: "Run a RV32I program from a raw binary, an ELF file or a checkpoint. See flags to match when to stop, and to output a checkpoint.",
	Action:      Run,
	Flags: []cli.Flag{
		RunBinFlag,
		RunELFFlag,
		RunCheckpointFlag,
		RunOffsetFlag,
		RunLengthFlag,
		RunPCFlag,
		RunMemoryFlag,
		RunMemSizeFlag,
		RunByteOrderFlag,
		RunStepsFlag,
		RunStopAtFlag,
		RunStopAtEBreakFlag,
		RunStopOnFaultFlag,
		RunSyscallsFlag,
		RunVerifyFlag,
		RunInfoAtFlag,
		RunOutputFlag,
		LogLevelFlag,
		RunPProfCPU,
	},
}
