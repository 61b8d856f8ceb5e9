package fast

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// Memory is the execution environment interface of the hart:
// byte-addressable storage plus environment-call notifications.
// Every access is bounds checked; out-of-range addresses fail with a riscv.FaultMemory fault.
type Memory interface {
	Read32(addr uint32) (uint32, error)
	Write8(addr uint32, v uint8) error
	Write16(addr uint32, v uint16) error
	Write32(addr uint32, v uint32) error
	// ECall notifies the environment of an ECALL. The default is a diagnostic no-op.
	ECall()
	// EBreak notifies the environment of an EBREAK. The default is a diagnostic no-op.
	EBreak()
	// Load copies data verbatim into memory starting at addr.
	Load(data []byte, addr uint32) error
}

// RangeReader is implemented by memories that can stream a byte range,
// e.g. for the write system call.
type RangeReader interface {
	ReadMemoryRange(addr uint32, count uint32) io.Reader
}

// Ordered is implemented by memories that report the byte order they pack values in.
// Memories that do not are taken to be little-endian.
type Ordered interface {
	ByteOrder() binary.ByteOrder
}

// Bounded is implemented by memories that end before the 32-bit address space does.
type Bounded interface {
	Size() uint32
}

// StateMemory is a backing store that can be run, checkpointed and committed to.
type StateMemory interface {
	Memory
	RangeReader
	Merkleizer
	Ordered
}

var (
	_ StateMemory = (*FlatMemory)(nil)
	_ StateMemory = (*PagedMemory)(nil)
)

// ParseByteOrder parses "little" or "big" (also "le" and "be"). The empty string is little-endian.
func ParseByteOrder(s string) (binary.ByteOrder, error) {
	switch s {
	case "", "little", "le":
		return binary.LittleEndian, nil
	case "big", "be":
		return binary.BigEndian, nil
	default:
		return nil, fmt.Errorf("unknown byte order %q, expected little or big", s)
	}
}

// ByteOrderName is the inverse of ParseByteOrder.
func ByteOrderName(order binary.ByteOrder) string {
	if order == binary.BigEndian {
		return "big"
	}
	return "little"
}

// isBigEndian reports whether mem packs values most significant byte first.
func isBigEndian(mem Memory) bool {
	o, ok := mem.(Ordered)
	return ok && o.ByteOrder() == binary.BigEndian
}

// DefaultMemorySize is the capacity of a FlatMemory unless configured otherwise.
const DefaultMemorySize = 1 << 20

type MemoryOption func(*memoryConfig)

type memoryConfig struct {
	order binary.ByteOrder
	log   log.Logger
}

// WithByteOrder sets the byte order used to pack and unpack 16 and 32 bit values,
// for instruction fetch as well as data loads and stores. Defaults to little-endian.
func WithByteOrder(order binary.ByteOrder) MemoryOption {
	return func(c *memoryConfig) {
		c.order = order
	}
}

// WithMemoryLogger sets the logger memory accesses are traced to.
func WithMemoryLogger(l log.Logger) MemoryOption {
	return func(c *memoryConfig) {
		c.log = l
	}
}

func newMemoryConfig(opts []MemoryOption) memoryConfig {
	cfg := memoryConfig{
		order: binary.LittleEndian,
		log:   log.Root(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// FlatMemory is a fixed-size contiguous address space starting at address 0.
// It is not safe for concurrent use.
type FlatMemory struct {
	ram   []byte
	order binary.ByteOrder
	log   log.Logger
}

var _ Memory = (*FlatMemory)(nil)

func NewFlatMemory(size uint32, opts ...MemoryOption) *FlatMemory {
	cfg := newMemoryConfig(opts)
	return &FlatMemory{
		ram:   make([]byte, size),
		order: cfg.order,
		log:   cfg.log,
	}
}

func (m *FlatMemory) Size() uint32 {
	return uint32(len(m.ram))
}

func (m *FlatMemory) ByteOrder() binary.ByteOrder {
	return m.order
}

// span returns the n bytes at addr, or a memory fault if any of them is out of range.
func (m *FlatMemory) span(addr uint32, n uint32) ([]byte, error) {
	end := uint64(addr) + uint64(n)
	if end > uint64(len(m.ram)) {
		m.log.Error("Memory access out of range", "addr", HexU32(addr), "size", n, "capacity", len(m.ram))
		return nil, riscv.MemoryFault(addr)
	}
	return m.ram[addr:end], nil
}

func (m *FlatMemory) Read32(addr uint32) (uint32, error) {
	b, err := m.span(addr, 4)
	if err != nil {
		return 0, err
	}
	v := m.order.Uint32(b)
	m.log.Trace("Read32", "addr", HexU32(addr), "value", HexU32(v))
	return v, nil
}

func (m *FlatMemory) Write8(addr uint32, v uint8) error {
	b, err := m.span(addr, 1)
	if err != nil {
		return err
	}
	b[0] = v
	m.log.Trace("Write8", "addr", HexU32(addr), "value", HexU32(v))
	return nil
}

func (m *FlatMemory) Write16(addr uint32, v uint16) error {
	b, err := m.span(addr, 2)
	if err != nil {
		return err
	}
	m.order.PutUint16(b, v)
	m.log.Trace("Write16", "addr", HexU32(addr), "value", HexU32(v))
	return nil
}

func (m *FlatMemory) Write32(addr uint32, v uint32) error {
	b, err := m.span(addr, 4)
	if err != nil {
		return err
	}
	m.order.PutUint32(b, v)
	m.log.Trace("Write32", "addr", HexU32(addr), "value", HexU32(v))
	return nil
}

func (m *FlatMemory) ECall() {
	m.log.Debug("Environment call")
}

func (m *FlatMemory) EBreak() {
	m.log.Debug("Environment breakpoint")
}

// Load copies data to addr. Nothing is written if the data does not fit.
func (m *FlatMemory) Load(data []byte, addr uint32) error {
	if uint64(len(data)) > uint64(^uint32(0)) {
		return fmt.Errorf("cannot load %d bytes into a 32-bit address space", len(data))
	}
	b, err := m.span(addr, uint32(len(data)))
	if err != nil {
		return fmt.Errorf("failed to load %d bytes at 0x%08x: %w", len(data), addr, err)
	}
	copy(b, data)
	m.log.Debug("Loaded byte array", "addr", HexU32(addr), "size", len(data))
	return nil
}

// ReadMemoryRange streams count bytes from addr. Reading past the capacity fails with a memory fault.
func (m *FlatMemory) ReadMemoryRange(addr uint32, count uint32) io.Reader {
	b, err := m.span(addr, count)
	if err != nil {
		return &errReader{err: err}
	}
	return bytes.NewReader(b)
}

// nonZeroPages returns copies of the pages of the memory that hold any data.
func (m *FlatMemory) nonZeroPages() map[uint32]*Page {
	pages := make(map[uint32]*Page)
	for addr := 0; addr < len(m.ram); addr += PageSize {
		var p Page
		if n := copy(p[:], m.ram[addr:]); n == 0 || p.IsZero() {
			continue
		}
		pages[uint32(addr>>PageAddrSize)] = &p
	}
	return pages
}

// MerkleRoot merkleizes the memory as if it were the low pages of a PagedMemory.
func (m *FlatMemory) MerkleRoot() [32]byte {
	return merkleRoot(m.nonZeroPages())
}

// ToPaged copies the memory contents into a new PagedMemory with the same configuration.
func (m *FlatMemory) ToPaged() *PagedMemory {
	p := NewPagedMemory(WithByteOrder(m.order), WithMemoryLogger(m.log))
	p.pages = m.nonZeroPages()
	return p
}

// Clone returns an independent copy of the memory.
func (m *FlatMemory) Clone() *FlatMemory {
	ram := make([]byte, len(m.ram))
	copy(ram, m.ram)
	return &FlatMemory{ram: ram, order: m.order, log: m.log}
}

type errReader struct {
	err error
}

func (r *errReader) Read([]byte) (int, error) {
	return 0, r.err
}
