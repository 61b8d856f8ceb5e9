package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/rv32sim/rv32sim/rvgo/fast"
)

const EnvVarPrefix = "RVSIM"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var OutFilePerm = os.FileMode(0o644)

var (
	RunBinFlag = &cli.PathFlag{
		Name:    "bin",
		Usage:   "path of a raw binary image to load",
		EnvVars: prefixEnvVars("BIN"),
	}
	RunELFFlag = &cli.PathFlag{
		Name:    "elf",
		Usage:   "path of a 32-bit RISC-V ELF executable to load",
		EnvVars: prefixEnvVars("ELF"),
	}
	RunCheckpointFlag = &cli.PathFlag{
		Name:    "checkpoint",
		Usage:   "path of a checkpoint to resume from (.json or .json.gz), with the memory kind, size and byte order it was written with",
		EnvVars: prefixEnvVars("CHECKPOINT"),
	}
	RunOffsetFlag = &cli.Uint64Flag{
		Name:    "offset",
		Usage:   "address the raw binary is loaded at",
		EnvVars: prefixEnvVars("OFFSET"),
	}
	RunLengthFlag = &cli.Uint64Flag{
		Name:    "length",
		Usage:   "number of bytes of the raw binary to load, 0 to load all of it",
		EnvVars: prefixEnvVars("LENGTH"),
	}
	RunPCFlag = &cli.Uint64Flag{
		Name:    "pc",
		Usage:   "initial program counter. Defaults to the load offset, the ELF entry point or the checkpoint pc",
		EnvVars: prefixEnvVars("PC"),
	}
	RunMemoryFlag = &cli.StringFlag{
		Name:    "memory",
		Usage:   "backing store: flat (fixed size, starting at 0) or paged (sparse, full 32-bit space)",
		Value:   "flat",
		EnvVars: prefixEnvVars("MEMORY"),
	}
	RunMemSizeFlag = &cli.Uint64Flag{
		Name:    "mem-size",
		Usage:   "size in bytes of the flat memory",
		Value:   fast.DefaultMemorySize,
		EnvVars: prefixEnvVars("MEM_SIZE"),
	}
	RunByteOrderFlag = &cli.StringFlag{
		Name:    "byte-order",
		Usage:   "byte order of instruction and data words: little or big",
		Value:   "little",
		EnvVars: prefixEnvVars("BYTE_ORDER"),
	}
	RunStepsFlag = &cli.Uint64Flag{
		Name:    "steps",
		Usage:   "maximum number of instructions to execute, 0 for no limit",
		EnvVars: prefixEnvVars("STEPS"),
	}
	RunStopAtFlag = &cli.GenericFlag{
		Name:    "stop-at",
		Usage:   "step pattern to stop at: " + patternHelp,
		Value:   MustStepMatcherFlag(""),
		EnvVars: prefixEnvVars("STOP_AT"),
	}
	RunStopAtEBreakFlag = &cli.BoolFlag{
		Name:    "stop-at-ebreak",
		Usage:   "stop after executing an EBREAK",
		EnvVars: prefixEnvVars("STOP_AT_EBREAK"),
	}
	RunStopOnFaultFlag = &cli.BoolFlag{
		Name:    "stop-on-fault",
		Usage:   "stop with an error at the first faulting instruction, instead of logging it and continuing",
		EnvVars: prefixEnvVars("STOP_ON_FAULT"),
	}
	RunSyscallsFlag = &cli.BoolFlag{
		Name:    "syscalls",
		Usage:   "dispatch ECALLs as Linux system calls (exit, exit_group, read, write)",
		EnvVars: prefixEnvVars("SYSCALLS"),
	}
	RunVerifyFlag = &cli.BoolFlag{
		Name:    "verify",
		Usage:   "re-execute every step with the slow reference implementation and compare the post-states",
		EnvVars: prefixEnvVars("VERIFY"),
	}
	RunInfoAtFlag = &cli.GenericFlag{
		Name:    "info-at",
		Usage:   "step pattern to print info at: " + patternHelp,
		Value:   MustStepMatcherFlag("%100000"),
		EnvVars: prefixEnvVars("INFO_AT"),
	}
	RunOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path of the checkpoint to write when the run ends (.gz to compress)",
		TakesFile: true,
		EnvVars:   prefixEnvVars("OUTPUT"),
	}
	RunPProfCPU = &cli.BoolFlag{
		Name:    "pprof.cpu",
		Usage:   "enable pprof cpu profiling",
		EnvVars: prefixEnvVars("PPROF_CPU"),
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log.level",
		Usage:   "lowest log level to output: trace, debug, info, warn, error or crit",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
	}

	LoadELFPathFlag = &cli.PathFlag{
		Name:      "path",
		Usage:     "path of the ELF file to load",
		TakesFile: true,
		Required:  true,
	}
	LoadELFOutFlag = &cli.PathFlag{
		Name:     "out",
		Usage:    "output checkpoint path (.gz to compress)",
		Value:    "state.json",
		Required: false,
	}

	WitnessInputFlag = &cli.PathFlag{
		Name:      "input",
		Usage:     "path of the checkpoint to encode",
		TakesFile: true,
		Required:  true,
	}
	WitnessOutputFlag = &cli.PathFlag{
		Name:      "output",
		Usage:     "path to write the witness and state hash JSON to, \"-\" for stdout. Not written if empty",
		TakesFile: true,
	}
)
