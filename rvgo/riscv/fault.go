package riscv

import (
	"errors"
	"fmt"
)

// FaultKind enumerates the faults an instruction can raise.
type FaultKind uint8

const (
	FaultInvalidOpcode FaultKind = iota + 1
	FaultInvalidFunct3
	FaultInvalidFunct7
	FaultInvalidFunct12
	FaultMisalignedTarget
	FaultMemory
)

func (k FaultKind) String() string {
	switch k {
	case FaultInvalidOpcode:
		return "invalid opcode"
	case FaultInvalidFunct3:
		return "invalid funct3"
	case FaultInvalidFunct7:
		return "invalid funct7"
	case FaultInvalidFunct12:
		return "invalid funct12"
	case FaultMisalignedTarget:
		return "instruction address misaligned"
	case FaultMemory:
		return "memory fault"
	default:
		return fmt.Sprintf("fault(%d)", uint8(k))
	}
}

// Code returns the numeric error code reported for the fault kind.
func (k FaultKind) Code() uint32 {
	switch k {
	case FaultInvalidOpcode:
		return ErrUnknownOpCode
	case FaultInvalidFunct3:
		return ErrUnknownFunct3
	case FaultInvalidFunct7:
		return ErrUnknownFunct7
	case FaultInvalidFunct12:
		return ErrUnknownFunct12
	case FaultMisalignedTarget:
		return ErrNotAlignedAddr
	case FaultMemory:
		return ErrMemoryOutOfRange
	default:
		return 0
	}
}

// Fault is raised by decoding or executing a single instruction.
// Value is the offending field, target or address, depending on Kind.
type Fault struct {
	Kind  FaultKind
	Value uint32
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: 0x%x", f.Kind, f.Value)
}

// Code returns the numeric error code of the fault.
func (f *Fault) Code() uint32 {
	return f.Kind.Code()
}

// Is matches any fault of the same kind, so the Err* sentinels work with errors.Is.
func (f *Fault) Is(target error) bool {
	var t *Fault
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == f.Kind
}

var (
	ErrInvalidOpcode    = &Fault{Kind: FaultInvalidOpcode}
	ErrInvalidFunct3    = &Fault{Kind: FaultInvalidFunct3}
	ErrInvalidFunct7    = &Fault{Kind: FaultInvalidFunct7}
	ErrInvalidFunct12   = &Fault{Kind: FaultInvalidFunct12}
	ErrMisalignedTarget = &Fault{Kind: FaultMisalignedTarget}
	ErrMemoryFault      = &Fault{Kind: FaultMemory}
)

func InvalidOpcode(opcode uint32) *Fault {
	return &Fault{Kind: FaultInvalidOpcode, Value: opcode}
}

func InvalidFunct3(funct3 uint32) *Fault {
	return &Fault{Kind: FaultInvalidFunct3, Value: funct3}
}

func InvalidFunct7(funct7 uint32) *Fault {
	return &Fault{Kind: FaultInvalidFunct7, Value: funct7}
}

func InvalidFunct12(funct12 uint32) *Fault {
	return &Fault{Kind: FaultInvalidFunct12, Value: funct12}
}

func InstructionAddressMisaligned(target uint32) *Fault {
	return &Fault{Kind: FaultMisalignedTarget, Value: target}
}

func MemoryFault(addr uint32) *Fault {
	return &Fault{Kind: FaultMemory, Value: addr}
}

// AsFault returns the fault wrapped in err, if any.
func AsFault(err error) (*Fault, bool) {
	var f *Fault
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}
