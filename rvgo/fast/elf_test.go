package fast

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// buildELF32 assembles a minimal executable with a single PT_LOAD segment at vaddr.
func buildELF32(t *testing.T, machine elf.Machine, vaddr uint32, code []byte, bss uint32) *elf.File {
	const ehsize, phentsize = 52, 32
	hdr := elf.Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     vaddr,
		Phoff:     ehsize,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     1,
		Shentsize: 40,
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	prog := elf.Prog32{
		Type:   uint32(elf.PT_LOAD),
		Off:    ehsize + phentsize,
		Vaddr:  vaddr,
		Paddr:  vaddr,
		Filesz: uint32(len(code)),
		Memsz:  uint32(len(code)) + bss,
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Align:  4,
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, hdr))
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, prog))
	buf.Write(code)
	f, err := elf.NewFile(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return f
}

func TestLoadELF(t *testing.T) {
	code := riscv.Program(binary.LittleEndian,
		riscv.Addi(1, 0, 5),
		riscv.Addi(2, 0, 7),
		riscv.Add(3, 1, 2),
	)
	f := buildELF32(t, elf.EM_RISCV, 0x1000, code, 16)

	mem := NewPagedMemory(WithMemoryLogger(testLogger()))
	require.NoError(t, mem.Write32(0x1000+uint32(len(code)), 0xFFFF_FFFF))
	entry, err := LoadELF(f, mem)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1000), entry)

	v, err := mem.Read32(0x1000 + uint32(len(code)))
	require.NoError(t, err)
	require.Equal(t, uint32(0), v, "bss is zeroed")

	inst := NewInstrumentedState(NewVMState(), mem, WithLogger(testLogger()))
	inst.SetPC(entry)
	for i := 0; i < 3; i++ {
		require.NoError(t, inst.Step())
	}
	require.Equal(t, uint32(12), inst.State().Registers[3])
	require.Equal(t, uint32(0x100C), inst.State().PC)
}

func TestLoadELFRejects(t *testing.T) {
	t.Run("machine", func(t *testing.T) {
		f := buildELF32(t, elf.EM_MIPS, 0x1000, []byte{0, 0, 0, 0}, 0)
		_, err := LoadELF(f, NewPagedMemory())
		require.ErrorContains(t, err, "not RISC-V")
	})
	t.Run("does not fit", func(t *testing.T) {
		f := buildELF32(t, elf.EM_RISCV, 0x1000, []byte{0, 0, 0, 0}, 0)
		_, err := LoadELF(f, NewFlatMemory(0x800))
		require.ErrorIs(t, err, riscv.ErrMemoryFault)
	})
	t.Run("bss does not fit", func(t *testing.T) {
		f := buildELF32(t, elf.EM_RISCV, 0x100, []byte{1, 2, 3, 4}, 0xFFFF_0000)
		mem := NewFlatMemory(0x800)
		_, err := LoadELF(f, mem)
		require.ErrorIs(t, err, riscv.ErrMemoryFault)
		v, err := mem.Read32(0x100)
		require.NoError(t, err)
		require.Zero(t, v, "nothing is loaded")
	})
}

func TestLoadELFLargeBSS(t *testing.T) {
	code := riscv.Program(binary.LittleEndian, riscv.Addi(1, 0, 5))
	f := buildELF32(t, elf.EM_RISCV, 0x1000, code, 64<<20)
	mem := NewPagedMemory(WithMemoryLogger(testLogger()))
	_, err := LoadELF(f, mem)
	require.NoError(t, err)
	require.Equal(t, 1, mem.PageCount(), "the bss of a fresh memory needs no pages")
}

func TestFindSymbol(t *testing.T) {
	syms := SortedSymbols{
		{Name: "_start", Value: 0x100, Size: 0x10},
		{Name: "main", Value: 0x200, Size: 0x40},
	}
	require.Equal(t, "!start", syms.LookupSymbol(0x10))
	require.Equal(t, "_start", syms.LookupSymbol(0x104))
	require.Equal(t, "!gap", syms.LookupSymbol(0x180))
	require.Equal(t, "main", syms.LookupSymbol(0x23C))
}
