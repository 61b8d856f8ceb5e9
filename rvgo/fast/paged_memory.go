package fast

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// PagedMemory is a sparse memory over the full 32-bit address space.
// Pages are allocated on first write; unallocated pages read as zero.
// It is not safe for concurrent use.
type PagedMemory struct {
	// pageIndex -> page
	pages map[uint32]*Page

	order binary.ByteOrder
	log   log.Logger

	// two caches: we often read instructions from one page, and do memory things with another page.
	// this prevents map lookups each instruction
	lastPageKeys [2]uint32
	lastPage     [2]*Page
}

var _ Memory = (*PagedMemory)(nil)

// page keys are 20 bits, so the max uint32 never matches a page.
const invalidPageKey = ^uint32(0)

func NewPagedMemory(opts ...MemoryOption) *PagedMemory {
	cfg := newMemoryConfig(opts)
	return &PagedMemory{
		pages:        make(map[uint32]*Page),
		order:        cfg.order,
		log:          cfg.log,
		lastPageKeys: [2]uint32{invalidPageKey, invalidPageKey},
	}
}

func (m *PagedMemory) PageCount() int {
	return len(m.pages)
}

func (m *PagedMemory) pageLookup(pageIndex uint32) (*Page, bool) {
	// hit caches
	if pageIndex == m.lastPageKeys[0] {
		return m.lastPage[0], true
	}
	if pageIndex == m.lastPageKeys[1] {
		return m.lastPage[1], true
	}
	p, ok := m.pages[pageIndex]

	// only cache existing pages.
	if ok {
		m.lastPageKeys[1] = m.lastPageKeys[0]
		m.lastPage[1] = m.lastPage[0]
		m.lastPageKeys[0] = pageIndex
		m.lastPage[0] = p
	}

	return p, ok
}

func (m *PagedMemory) AllocPage(pageIndex uint32) *Page {
	p := new(Page)
	m.pages[pageIndex] = p
	// the caches only hold existing pages, a realloc of a cached key must not keep the old page
	for i := range m.lastPageKeys {
		if m.lastPageKeys[i] == pageIndex {
			m.lastPage[i] = p
		}
	}
	return p
}

// checkRange fails with a memory fault if [addr, addr+n) wraps past the top of the address space.
func (m *PagedMemory) checkRange(addr uint32, n uint64) error {
	if uint64(addr)+n > 1<<32 {
		m.log.Error("Memory access out of range", "addr", HexU32(addr), "size", n)
		return riscv.MemoryFault(addr)
	}
	return nil
}

// setBytes writes dat at addr, allocating pages as needed. The range must have been checked.
// Zeroes written to unallocated pages do not allocate them.
func (m *PagedMemory) setBytes(addr uint32, dat []byte) {
	for len(dat) > 0 {
		pageIndex := addr >> PageAddrSize
		p, ok := m.pageLookup(pageIndex)
		if !ok {
			if n := min(len(dat), PageSize-int(addr&PageAddrMask)); allZero(dat[:n]) {
				dat = dat[n:]
				addr += uint32(n)
				continue
			}
			p = m.AllocPage(pageIndex)
		}
		n := copy(p[addr&PageAddrMask:], dat)
		dat = dat[n:]
		addr += uint32(n)
	}
}

func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

// getBytes fills dest from addr. The range must have been checked.
func (m *PagedMemory) getBytes(addr uint32, dest []byte) {
	for len(dest) > 0 {
		pageAddr := addr & PageAddrMask
		var n int
		if p, ok := m.pageLookup(addr >> PageAddrSize); ok {
			n = copy(dest, p[pageAddr:])
		} else {
			n = copy(dest, zeroPage[pageAddr:])
		}
		dest = dest[n:]
		addr += uint32(n)
	}
}

func (m *PagedMemory) Read32(addr uint32) (uint32, error) {
	if err := m.checkRange(addr, 4); err != nil {
		return 0, err
	}
	var b [4]byte
	m.getBytes(addr, b[:])
	v := m.order.Uint32(b[:])
	m.log.Trace("Read32", "addr", HexU32(addr), "value", HexU32(v))
	return v, nil
}

func (m *PagedMemory) Write8(addr uint32, v uint8) error {
	m.setBytes(addr, []byte{v})
	m.log.Trace("Write8", "addr", HexU32(addr), "value", HexU32(v))
	return nil
}

func (m *PagedMemory) Write16(addr uint32, v uint16) error {
	if err := m.checkRange(addr, 2); err != nil {
		return err
	}
	var b [2]byte
	m.order.PutUint16(b[:], v)
	m.setBytes(addr, b[:])
	m.log.Trace("Write16", "addr", HexU32(addr), "value", HexU32(v))
	return nil
}

func (m *PagedMemory) Write32(addr uint32, v uint32) error {
	if err := m.checkRange(addr, 4); err != nil {
		return err
	}
	var b [4]byte
	m.order.PutUint32(b[:], v)
	m.setBytes(addr, b[:])
	m.log.Trace("Write32", "addr", HexU32(addr), "value", HexU32(v))
	return nil
}

func (m *PagedMemory) ECall() {
	m.log.Debug("Environment call")
}

func (m *PagedMemory) EBreak() {
	m.log.Debug("Environment breakpoint")
}

func (m *PagedMemory) Load(data []byte, addr uint32) error {
	if err := m.checkRange(addr, uint64(len(data))); err != nil {
		return fmt.Errorf("failed to load %d bytes at 0x%08x: %w", len(data), addr, err)
	}
	m.setBytes(addr, data)
	m.log.Debug("Loaded byte array", "addr", HexU32(addr), "size", len(data))
	return nil
}

func (m *PagedMemory) MerkleRoot() [32]byte {
	return merkleRoot(m.pages)
}

type pageEntry struct {
	Index uint32 `json:"index"`
	Data  *Page  `json:"data"`
}

func (m *PagedMemory) MarshalJSON() ([]byte, error) {
	pages := make([]pageEntry, 0, len(m.pages))
	for k, p := range m.pages {
		pages = append(pages, pageEntry{
			Index: k,
			Data:  p,
		})
	}
	sort.Slice(pages, func(i, j int) bool {
		return pages[i].Index < pages[j].Index
	})
	return json.Marshal(pages)
}

func (m *PagedMemory) UnmarshalJSON(data []byte) error {
	var pages []pageEntry
	if err := json.Unmarshal(data, &pages); err != nil {
		return err
	}
	m.reset()
	for i, p := range pages {
		if _, ok := m.pages[p.Index]; ok {
			return fmt.Errorf("cannot load duplicate page, entry %d, page index %d", i, p.Index)
		}
		if p.Index > PageKeyMask {
			return fmt.Errorf("page index %d of entry %d out of range", p.Index, i)
		}
		if p.Data == nil {
			return fmt.Errorf("missing data of page entry %d", i)
		}
		*m.AllocPage(p.Index) = *p.Data
	}
	return nil
}

// reset drops all pages. A zero PagedMemory, e.g. one decoded from JSON, gets its defaults here.
func (m *PagedMemory) reset() {
	m.pages = make(map[uint32]*Page)
	m.lastPageKeys = [2]uint32{invalidPageKey, invalidPageKey}
	m.lastPage = [2]*Page{nil, nil}
	if m.order == nil {
		m.order = binary.LittleEndian
	}
	if m.log == nil {
		m.log = log.Root()
	}
}

// Configure applies opts to the memory, e.g. after it was restored from a checkpoint.
func (m *PagedMemory) Configure(opts ...MemoryOption) {
	cfg := newMemoryConfig(opts)
	m.order = cfg.order
	m.log = cfg.log
}

func (m *PagedMemory) ByteOrder() binary.ByteOrder {
	return m.order
}

// Clone returns an independent copy of the memory.
func (m *PagedMemory) Clone() *PagedMemory {
	out := NewPagedMemory(WithByteOrder(m.order), WithMemoryLogger(m.log))
	for k, p := range m.pages {
		cp := *p
		out.pages[k] = &cp
	}
	return out
}

// ToFlat copies the memory into a new FlatMemory of the given capacity, with the same configuration.
// It fails if any data lies beyond the capacity.
func (m *PagedMemory) ToFlat(size uint32) (*FlatMemory, error) {
	out := NewFlatMemory(size, WithByteOrder(m.order), WithMemoryLogger(m.log))
	for k, p := range m.pages {
		addr := uint64(k) << PageAddrSize
		n := uint64(PageSize)
		if addr+n > uint64(size) {
			n = max(uint64(size), addr) - addr
			var tail Page
			copy(tail[n:], p[n:])
			if !tail.IsZero() {
				return nil, fmt.Errorf("page %d holds data beyond the flat memory capacity %d", k, size)
			}
		}
		if n > 0 {
			copy(out.ram[addr:addr+n], p[:n])
		}
	}
	return out, nil
}

// Serialize writes the memory in a simple binary format which can be read again using Deserialize
// The format is a simple concatenation of fields, with prefixed item count for repeating items and using big endian
// encoding for numbers.
//
// len(PageCount)    uint32
// For each page (order is arbitrary):
//
//	page index          uint32
//	page Data           [PageSize]byte
func (m *PagedMemory) Serialize(out io.Writer) error {
	if err := binary.Write(out, binary.BigEndian, uint32(m.PageCount())); err != nil {
		return err
	}
	for pageIndex, page := range m.pages {
		if err := binary.Write(out, binary.BigEndian, pageIndex); err != nil {
			return err
		}
		if _, err := out.Write(page[:]); err != nil {
			return err
		}
	}
	return nil
}

func (m *PagedMemory) Deserialize(in io.Reader) error {
	var pageCount uint32
	if err := binary.Read(in, binary.BigEndian, &pageCount); err != nil {
		return err
	}
	m.reset()
	for i := uint32(0); i < pageCount; i++ {
		var pageIndex uint32
		if err := binary.Read(in, binary.BigEndian, &pageIndex); err != nil {
			return err
		}
		if pageIndex > PageKeyMask {
			return fmt.Errorf("page index %d out of range", pageIndex)
		}
		page := m.AllocPage(pageIndex)
		if _, err := io.ReadFull(in, page[:]); err != nil {
			return err
		}
	}
	return nil
}

type memReader struct {
	m     *PagedMemory
	addr  uint32
	count uint32
}

func (r *memReader) Read(dest []byte) (n int, err error) {
	if r.count == 0 {
		return 0, io.EOF
	}

	start := r.addr & PageAddrMask
	end := uint32(PageSize)
	if uint64(start)+uint64(r.count) < uint64(end) {
		end = start + r.count
	}
	p, ok := r.m.pageLookup(r.addr >> PageAddrSize)
	if ok {
		n = copy(dest, p[start:end])
	} else {
		n = copy(dest, zeroPage[start:end]) // default to zeroes
	}
	r.addr += uint32(n)
	r.count -= uint32(n)
	return n, nil
}

func (m *PagedMemory) ReadMemoryRange(addr uint32, count uint32) io.Reader {
	if err := m.checkRange(addr, uint64(count)); err != nil {
		return &errReader{err: err}
	}
	return &memReader{m: m, addr: addr, count: count}
}

func (m *PagedMemory) Usage() string {
	total := uint64(len(m.pages)) * PageSize
	const unit = 1024
	if total < unit {
		return fmt.Sprintf("%d B", total)
	}
	div, exp := uint64(unit), 0
	for n := total / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	// KiB, MiB, GiB, ...
	return fmt.Sprintf("%.1f %ciB", float64(total)/float64(div), "KMGTPE"[exp])
}
