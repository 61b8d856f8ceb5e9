package cmd

import (
	"debug/elf"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/rv32sim/rv32sim/rvgo/fast"
)

func LoadELF(ctx *cli.Context) error {
	elfPath := ctx.Path(LoadELFPathFlag.Name)
	elfProgram, err := elf.Open(elfPath)
	if err != nil {
		return fmt.Errorf("failed to open ELF file %q: %w", elfPath, err)
	}
	defer elfProgram.Close()
	mem := fast.NewPagedMemory()
	entry, err := fast.LoadELF(elfProgram, mem)
	if err != nil {
		return fmt.Errorf("failed to load ELF data into VM state: %w", err)
	}
	state := fast.NewVMState()
	state.PC = entry
	c, err := fast.NewCheckpoint(state, mem)
	if err != nil {
		return err
	}
	return fast.WriteCheckpoint(ctx.Path(LoadELFOutFlag.Name), c, OutFilePerm)
}

var LoadELFCommand = &cli.Command{
	Name:        "load-elf",
	Usage:       "Load ELF file into a JSON checkpoint",
	Description: "Load the segments of a 32-bit RISC-V ELF file into paged memory, and write it with the entry point as a checkpoint",
	Action:      LoadELF,
	Flags: []cli.Flag{
		LoadELFPathFlag,
		LoadELFOutFlag,
	},
}
