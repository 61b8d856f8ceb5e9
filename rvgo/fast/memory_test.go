package fast

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

func TestFlatMemoryReadWrite(t *testing.T) {
	t.Run("little endian", func(t *testing.T) {
		m := NewFlatMemory(64)
		require.NoError(t, m.Write32(8, 0x1122_3344))
		require.Equal(t, []byte{0x44, 0x33, 0x22, 0x11}, m.ram[8:12])
		v, err := m.Read32(8)
		require.NoError(t, err)
		require.Equal(t, uint32(0x1122_3344), v)
	})
	t.Run("big endian", func(t *testing.T) {
		m := NewFlatMemory(64, WithByteOrder(binary.BigEndian))
		require.NoError(t, m.Write32(8, 0x1122_3344))
		require.Equal(t, []byte{0x11, 0x22, 0x33, 0x44}, m.ram[8:12])
		require.NoError(t, m.Write16(12, 0xAABB))
		require.Equal(t, []byte{0xAA, 0xBB}, m.ram[12:14])
		v, err := m.Read32(8)
		require.NoError(t, err)
		require.Equal(t, uint32(0x1122_3344), v)
	})
	t.Run("narrow writes", func(t *testing.T) {
		m := NewFlatMemory(64)
		require.NoError(t, m.Write32(0, 0xFFFF_FFFF))
		require.NoError(t, m.Write8(0, 0x12))
		require.NoError(t, m.Write16(2, 0x3456))
		v, err := m.Read32(0)
		require.NoError(t, err)
		require.Equal(t, uint32(0x3456_FF12), v)
	})
	t.Run("unaligned", func(t *testing.T) {
		m := NewFlatMemory(64)
		require.NoError(t, m.Write32(3, 0xAABB_CCDD))
		v, err := m.Read32(3)
		require.NoError(t, err)
		require.Equal(t, uint32(0xAABB_CCDD), v)
	})
}

func TestFlatMemoryBounds(t *testing.T) {
	const size = 64
	m := NewFlatMemory(size)

	_, err := m.Read32(size - 4)
	require.NoError(t, err, "last word is in range")
	_, err = m.Read32(size - 3)
	require.ErrorIs(t, err, riscv.ErrMemoryFault)
	f, _ := riscv.AsFault(err)
	require.Equal(t, uint32(size-3), f.Value)

	require.NoError(t, m.Write8(size-1, 1))
	require.ErrorIs(t, m.Write8(size, 1), riscv.ErrMemoryFault)
	require.ErrorIs(t, m.Write16(size-1, 1), riscv.ErrMemoryFault)
	require.ErrorIs(t, m.Write32(0xFFFF_FFFF, 1), riscv.ErrMemoryFault, "no wrap around")
	_, err = m.Read32(0xFFFF_FFFE)
	require.ErrorIs(t, err, riscv.ErrMemoryFault)
}

func TestFlatMemoryLoad(t *testing.T) {
	m := NewFlatMemory(16)
	require.NoError(t, m.Load([]byte{1, 2, 3, 4}, 12), "exactly fits")
	require.Equal(t, []byte{1, 2, 3, 4}, m.ram[12:])

	err := m.Load([]byte{9, 9, 9, 9, 9}, 12)
	require.ErrorIs(t, err, riscv.ErrMemoryFault)
	require.Equal(t, []byte{1, 2, 3, 4}, m.ram[12:], "untouched on failure")

	require.NoError(t, m.Load(nil, 16), "empty load at the end")
}

func TestReadMemoryRange(t *testing.T) {
	t.Run("flat", func(t *testing.T) {
		m := NewFlatMemory(32)
		require.NoError(t, m.Load([]byte("hello"), 4))
		dat, err := io.ReadAll(m.ReadMemoryRange(4, 5))
		require.NoError(t, err)
		require.Equal(t, []byte("hello"), dat)

		_, err = io.ReadAll(m.ReadMemoryRange(30, 5))
		require.ErrorIs(t, err, riscv.ErrMemoryFault)
	})
	t.Run("paged", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Load([]byte("hello"), PageSize-2))
		dat, err := io.ReadAll(m.ReadMemoryRange(PageSize-4, 9))
		require.NoError(t, err)
		require.Equal(t, append([]byte{0, 0}, []byte("hello\x00\x00")...), dat)

		dat, err = io.ReadAll(m.ReadMemoryRange(0x8000_0000, 3))
		require.NoError(t, err)
		require.Equal(t, []byte{0, 0, 0}, dat, "unallocated memory reads as zero")

		_, err = io.ReadAll(m.ReadMemoryRange(0xFFFF_FFFE, 4))
		require.ErrorIs(t, err, riscv.ErrMemoryFault)
	})
}

func TestPagedMemoryReadWrite(t *testing.T) {
	t.Run("large random", func(t *testing.T) {
		m := NewPagedMemory()
		data := make([]byte, 20_000)
		_, err := rand.Read(data)
		require.NoError(t, err)
		require.NoError(t, m.Load(data, 0x1_0000-1))
		dat, err := io.ReadAll(m.ReadMemoryRange(0x1_0000-1, 20_000))
		require.NoError(t, err)
		require.Equal(t, data, dat)
	})
	t.Run("cross page", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Write32(PageSize-2, 0xAABB_CCDD))
		require.Equal(t, 2, m.PageCount())
		v, err := m.Read32(PageSize - 2)
		require.NoError(t, err)
		require.Equal(t, uint32(0xAABB_CCDD), v)
	})
	t.Run("unallocated read", func(t *testing.T) {
		m := NewPagedMemory()
		v, err := m.Read32(0x1234_5678)
		require.NoError(t, err)
		require.Equal(t, uint32(0), v)
		require.Equal(t, 0, m.PageCount(), "reads do not allocate")
	})
	t.Run("top of address space", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Write32(0xFFFF_FFFC, 0x0102_0304))
		require.NoError(t, m.Write8(0xFFFF_FFFF, 0xFF))
		v, err := m.Read32(0xFFFF_FFFC)
		require.NoError(t, err)
		require.Equal(t, uint32(0xFF02_0304), v)
		require.ErrorIs(t, m.Write16(0xFFFF_FFFF, 1), riscv.ErrMemoryFault)
		require.ErrorIs(t, m.Load([]byte{1, 2}, 0xFFFF_FFFF), riscv.ErrMemoryFault)
		_, err = m.Read32(0xFFFF_FFFD)
		require.ErrorIs(t, err, riscv.ErrMemoryFault)
	})
	t.Run("zero writes", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Load(make([]byte, 3*PageSize), 0x1_0000))
		require.NoError(t, m.Write32(0x2_0000, 0))
		require.Equal(t, 0, m.PageCount(), "zeroes need no pages")
		require.NoError(t, m.Write8(0x2_0000, 1))
		require.NoError(t, m.Write8(0x2_0000, 0))
		require.Equal(t, 1, m.PageCount(), "allocated pages are kept")
	})
	t.Run("cache after realloc", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Write8(0x10, 1))
		_, err := m.Read32(0x10)
		require.NoError(t, err)
		m.AllocPage(0)
		v, err := m.Read32(0x10)
		require.NoError(t, err)
		require.Equal(t, uint32(0), v, "cache must not serve the replaced page")
	})
}

func TestMemoryMerkleRoot(t *testing.T) {
	empty := zeroHashes[memoryTreeHeight]
	t.Run("empty", func(t *testing.T) {
		require.Equal(t, empty, NewPagedMemory().MerkleRoot(), "fully zeroed memory should have expected zero hash")
		require.Equal(t, empty, NewFlatMemory(DefaultMemorySize).MerkleRoot())
	})
	t.Run("empty page", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Write8(0xF000, 0))
		require.Equal(t, empty, m.MerkleRoot(), "fully zeroed memory should have expected zero hash")
	})
	t.Run("single page", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Write8(0xF000, 1))
		require.NotEqual(t, empty, m.MerkleRoot(), "non-zero memory")
	})
	t.Run("random few pages", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Write8(PageSize*3, 1))
		require.NoError(t, m.Write8(PageSize*5, 42))
		require.NoError(t, m.Write8(PageSize*6, 123))
		p3 := m.pages[3].MerkleRoot()
		p5 := m.pages[5].MerkleRoot()
		p6 := m.pages[6].MerkleRoot()
		z := zeroHashes[PageAddrSize-5]
		node := HashPair(
			HashPair(
				HashPair(z, z),  // 0,1
				HashPair(z, p3), // 2,3
			),
			HashPair(
				HashPair(z, p5), // 4,5
				HashPair(p6, z), // 6,7
			),
		)
		for i := PageAddrSize - 5 + 3; i < memoryTreeHeight; i++ {
			node = HashPair(node, zeroHashes[i])
		}
		require.Equal(t, node, m.MerkleRoot(), "expecting manual page combination to match the tree")
	})
	t.Run("invalidate page", func(t *testing.T) {
		m := NewPagedMemory()
		require.NoError(t, m.Write8(0xF000, 0))
		require.Equal(t, empty, m.MerkleRoot(), "zero at first")
		require.NoError(t, m.Write8(0xF004, 1))
		require.NotEqual(t, empty, m.MerkleRoot(), "non-zero")
		require.NoError(t, m.Write8(0xF004, 0))
		require.Equal(t, empty, m.MerkleRoot(), "zero again")
	})
	t.Run("flat equals paged", func(t *testing.T) {
		flat := NewFlatMemory(DefaultMemorySize)
		paged := NewPagedMemory()
		data := make([]byte, 3*PageSize+17)
		_, err := rand.Read(data)
		require.NoError(t, err)
		for _, m := range []Memory{flat, paged} {
			require.NoError(t, m.Load(data, 0x2_0010))
			require.NoError(t, m.Write32(0x8, 0xDEAD_BEEF))
		}
		require.Equal(t, paged.MerkleRoot(), flat.MerkleRoot())
	})
}

func TestPagedMemoryJSON(t *testing.T) {
	m := NewPagedMemory()
	require.NoError(t, m.Write32(0x1_3370, 0x1234_5678))
	require.NoError(t, m.Write8(0x8000_0000, 0xAB))
	dat, err := json.Marshal(m)
	require.NoError(t, err)

	var res PagedMemory
	require.NoError(t, json.Unmarshal(dat, &res))
	require.Equal(t, m.MerkleRoot(), res.MerkleRoot())
	require.Equal(t, 2, res.PageCount())
	v, err := res.Read32(0x1_3370)
	require.NoError(t, err)
	require.Equal(t, uint32(0x1234_5678), v)

	t.Run("duplicate page", func(t *testing.T) {
		var dup PagedMemory
		err := json.Unmarshal([]byte(`[{"index":1,"data":"0x`+zeroPageHex()+`"},{"index":1,"data":"0x`+zeroPageHex()+`"}]`), &dup)
		require.ErrorContains(t, err, "duplicate page")
	})
	t.Run("short page", func(t *testing.T) {
		var bad PagedMemory
		require.Error(t, json.Unmarshal([]byte(`[{"index":1,"data":"0x00"}]`), &bad))
	})
}

func zeroPageHex() string {
	return string(bytes.Repeat([]byte("00"), PageSize))
}

func TestPagedMemoryBinary(t *testing.T) {
	m := NewPagedMemory()
	require.NoError(t, m.Write32(0x1_3370, 0x1234_5678))
	require.NoError(t, m.Write8(0xFFFF_FFFF, 0x7F))
	var buf bytes.Buffer
	require.NoError(t, m.Serialize(&buf))
	require.Equal(t, 4+2*(4+PageSize), buf.Len())

	res := NewPagedMemory()
	require.NoError(t, res.Deserialize(&buf))
	require.Equal(t, m.MerkleRoot(), res.MerkleRoot())
	v, err := res.Read32(0xFFFF_FFFC)
	require.NoError(t, err)
	require.Equal(t, uint32(0x7F00_0000), v)

	require.Error(t, res.Deserialize(bytes.NewReader([]byte{0, 0, 0, 1, 0, 0})), "truncated input")
}

func TestPagedMemoryUsage(t *testing.T) {
	m := NewPagedMemory()
	require.Equal(t, "0 B", m.Usage())
	require.NoError(t, m.Write8(0, 1))
	require.Equal(t, "4.0 KiB", m.Usage())
	for i := uint32(1); i < 512; i++ {
		require.NoError(t, m.Write8(i*PageSize, 1))
	}
	require.Equal(t, "2.0 MiB", m.Usage())
}

func TestMemoryCopies(t *testing.T) {
	flat := NewFlatMemory(4*PageSize, WithByteOrder(binary.BigEndian))
	require.NoError(t, flat.Write32(PageSize+8, 0x0102_0304))

	paged := flat.ToPaged()
	require.Equal(t, 1, paged.PageCount(), "zero pages are not copied")
	require.Equal(t, flat.MerkleRoot(), paged.MerkleRoot())
	v, err := paged.Read32(PageSize + 8)
	require.NoError(t, err)
	require.Equal(t, uint32(0x0102_0304), v, "byte order carries over")

	flatCopy := flat.Clone()
	pagedCopy := paged.Clone()
	require.NoError(t, flat.Write8(0, 1))
	require.NoError(t, paged.Write8(0, 1))
	require.NotEqual(t, flat.MerkleRoot(), flatCopy.MerkleRoot())
	require.NotEqual(t, paged.MerkleRoot(), pagedCopy.MerkleRoot())
	require.Equal(t, flatCopy.MerkleRoot(), pagedCopy.MerkleRoot())
}
