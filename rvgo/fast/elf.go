package fast

import (
	"debug/elf"
	"fmt"
	"io"
	"sort"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// LoadELF loads the PT_LOAD segments of a 32-bit RISC-V ELF file into mem
// and returns the entry point.
func LoadELF(f *elf.File, mem Memory) (entry uint32, err error) {
	if f.Class != elf.ELFCLASS32 {
		return 0, fmt.Errorf("ELF is not 32-bit, but got %s", f.Class)
	}
	if f.Machine != elf.EM_RISCV {
		return 0, fmt.Errorf("ELF is not RISC-V, but got %q", f.Machine.String())
	}

	for i, prog := range f.Progs {
		if prog.Type == 0x70000003 {
			// RISC-V reuses the MIPS_ABIFLAGS program type to type its segment with the `.riscv.attributes` section.
			// See: https://github.com/riscv-non-isa/riscv-elf-psabi-doc/blob/master/riscv-elf.adoc#attributes
			// This section has 0 mem size because it is not loaded into memory.
			continue
		}
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Filesz > prog.Memsz {
			return 0, fmt.Errorf("invalid PT_LOAD program segment %d, file size (%d) > mem size (%d)", i, prog.Filesz, prog.Memsz)
		}
		end := prog.Vaddr + prog.Memsz
		if end > 1<<32 {
			return 0, fmt.Errorf("program segment %d [%x, %x) exceeds the 32-bit address space", i, prog.Vaddr, end)
		}
		if b, ok := mem.(Bounded); ok && end > uint64(b.Size()) {
			return 0, fmt.Errorf("program segment %d [%x, %x) does not fit in %d bytes of memory: %w",
				i, prog.Vaddr, end, b.Size(), riscv.MemoryFault(uint32(prog.Vaddr)))
		}
		data := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(io.NewSectionReader(prog, 0, int64(prog.Filesz)), data); err != nil {
			return 0, fmt.Errorf("failed to read program segment %d: %w", i, err)
		}
		if err := mem.Load(data, uint32(prog.Vaddr)); err != nil {
			return 0, fmt.Errorf("failed to load program segment %d: %w", i, err)
		}
		// the zeroed tail is the .bss part of the segment
		if err := zeroRange(mem, uint32(prog.Vaddr+prog.Filesz), prog.Memsz-prog.Filesz); err != nil {
			return 0, fmt.Errorf("failed to clear .bss of program segment %d: %w", i, err)
		}
	}
	return uint32(f.Entry), nil
}

// zeroRange clears n bytes from addr, one page at a time.
func zeroRange(mem Memory, addr uint32, n uint64) error {
	for n > 0 {
		c := min(n, PageSize)
		if err := mem.Load(zeroPage[:c], addr); err != nil {
			return err
		}
		addr += uint32(c)
		n -= c
	}
	return nil
}

type SortedSymbols []elf.Symbol

// FindSymbol finds the symbol that intersects with the given addr, or nil if none exists
func (s SortedSymbols) FindSymbol(addr uint32) elf.Symbol {
	// find first symbol with higher start. Or n if no such symbol exists
	i := sort.Search(len(s), func(i int) bool {
		return s[i].Value > uint64(addr)
	})
	if i == 0 {
		return elf.Symbol{Name: "!start", Value: 0}
	}
	out := &s[i-1]
	if out.Value+out.Size < uint64(addr) { // addr may be pointing to a gap between symbols
		return elf.Symbol{Name: "!gap", Value: uint64(addr)}
	}
	return *out
}

// LookupSymbol returns the name of the symbol containing addr.
func (s SortedSymbols) LookupSymbol(addr uint32) string {
	return s.FindSymbol(addr).Name
}

func Symbols(f *elf.File) (SortedSymbols, error) {
	symbols, err := f.Symbols()
	if err != nil {
		return nil, fmt.Errorf("failed to read symbols data: %w", err)
	}
	// not every ELF has sorted symbols.
	out := make(SortedSymbols, len(symbols))
	copy(out, symbols)
	sort.Slice(out, func(i, j int) bool {
		return out[i].Value < out[j].Value
	})
	return out, nil
}
