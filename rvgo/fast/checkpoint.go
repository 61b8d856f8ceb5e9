package fast

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/ethereum-optimism/optimism/op-service/ioutil"
	"github.com/ethereum-optimism/optimism/op-service/jsonutil"
)

// Checkpoint is a resumable snapshot of a hart and its memory.
type Checkpoint struct {
	State  *VMState     `json:"state"`
	Memory *PagedMemory `json:"memory"`
	// ByteOrder is "little" or "big"; empty is little.
	ByteOrder string `json:"byteOrder,omitempty"`
	// FlatSize is the capacity of the FlatMemory the snapshot was taken from, 0 if it was paged.
	FlatSize uint32 `json:"flatSize,omitempty"`
}

// NewCheckpoint snapshots state and mem. The memory is not copied.
func NewCheckpoint(state *VMState, mem Memory) (*Checkpoint, error) {
	switch m := mem.(type) {
	case *PagedMemory:
		return &Checkpoint{State: state, Memory: m, ByteOrder: ByteOrderName(m.order)}, nil
	case *FlatMemory:
		return &Checkpoint{State: state, Memory: m.ToPaged(), ByteOrder: ByteOrderName(m.order), FlatSize: m.Size()}, nil
	default:
		return nil, fmt.Errorf("cannot checkpoint memory of type %T", mem)
	}
}

// Order returns the byte order the checkpointed memory was run with.
func (c *Checkpoint) Order() (binary.ByteOrder, error) {
	return ParseByteOrder(c.ByteOrder)
}

// Restore rebuilds the memory the checkpoint was taken from: a FlatMemory of the recorded
// capacity, or the PagedMemory itself. The recorded byte order takes precedence over opts.
func (c *Checkpoint) Restore(opts ...MemoryOption) (StateMemory, error) {
	order, err := c.Order()
	if err != nil {
		return nil, err
	}
	c.Memory.Configure(append(opts, WithByteOrder(order))...)
	if c.FlatSize == 0 {
		return c.Memory, nil
	}
	return c.Memory.ToFlat(c.FlatSize)
}

// LoadCheckpoint reads a JSON checkpoint, gzip-compressed if the path ends in ".gz".
func LoadCheckpoint(path string) (*Checkpoint, error) {
	c, err := jsonutil.LoadJSON[Checkpoint](path)
	if err != nil {
		return nil, err
	}
	if c.State == nil {
		return nil, errors.New("checkpoint has no state")
	}
	if _, err := c.Order(); err != nil {
		return nil, fmt.Errorf("invalid checkpoint %q: %w", path, err)
	}
	if c.Memory == nil {
		c.Memory = NewPagedMemory()
	}
	return c, nil
}

// WriteCheckpoint atomically writes c as JSON to path, gzip-compressed if the path ends in ".gz".
func WriteCheckpoint(path string, c *Checkpoint, perm os.FileMode) error {
	if err := jsonutil.WriteJSON(c, ioutil.ToAtomicFile(path, perm)); err != nil {
		return fmt.Errorf("failed to write checkpoint %q: %w", path, err)
	}
	return nil
}
