package fast

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

type StateWitness []byte

const (
	VMStatusValid      = 0
	VMStatusInvalid    = 1
	VMStatusPanic      = 2
	VMStatusUnfinished = 3
)

func vmStatus(exited bool, exitCode uint8) uint8 {
	if !exited {
		return VMStatusUnfinished
	}
	switch exitCode {
	case 0:
		return VMStatusValid
	case 1:
		return VMStatusInvalid
	default:
		return VMStatusPanic
	}
}

// StateHash is the keccak256 hash of the witness, with the first byte replaced by the VM status.
func (sw StateWitness) StateHash() (common.Hash, error) {
	if len(sw) != StateWitnessSize {
		return common.Hash{}, fmt.Errorf("invalid state witness length %d, expected %d", len(sw), StateWitnessSize)
	}
	hash := crypto.Keccak256Hash(sw)
	hash[0] = vmStatus(sw[StateOffsetExited] == 1, sw[StateOffsetExitCode])
	return hash, nil
}

// MemRoot returns the memory merkle root the witness commits to.
func (sw StateWitness) MemRoot() (out [32]byte) {
	copy(out[:], sw[StateOffsetMemRoot:StateOffsetMemRoot+stateSizeMemRoot])
	return
}

// DecodeWitness restores the architectural state from a witness.
func DecodeWitness(sw StateWitness) (*VMState, error) {
	if len(sw) != StateWitnessSize {
		return nil, fmt.Errorf("invalid state witness length %d, expected %d", len(sw), StateWitnessSize)
	}
	if sw[StateOffsetExited] > 1 {
		return nil, fmt.Errorf("invalid exited flag %d", sw[StateOffsetExited])
	}
	s := &VMState{
		PC:       binary.BigEndian.Uint32(sw[StateOffsetPC:]),
		Step:     binary.BigEndian.Uint64(sw[StateOffsetStep:]),
		ExitCode: sw[StateOffsetExitCode],
		Exited:   sw[StateOffsetExited] == 1,
	}
	for i := range s.Registers {
		s.Registers[i] = binary.BigEndian.Uint32(sw[StateOffsetRegisters+4*i:])
	}
	return s, nil
}
