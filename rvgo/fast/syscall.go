package fast

import (
	"fmt"
	"io"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// SyscallHandler dispatches an ECALL, reading its arguments from and writing its results to the state.
type SyscallHandler interface {
	Syscall(s *VMState, mem Memory) error
}

type UnrecognizedSyscallErr struct {
	SyscallNum uint32
}

func (e *UnrecognizedSyscallErr) Error() string {
	return fmt.Sprintf("unrecognized system call: %d (code %x)", e.SyscallNum, riscv.ErrInvalidSyscall)
}

// LinuxSyscalls implements the few Linux system calls a freestanding program needs
// to report output and exit. The call number is passed in a7, arguments in a0-a2;
// the result is returned in a0 and an error code in a1.
type LinuxSyscalls struct {
	Stdout io.Writer
	Stderr io.Writer
}

var _ SyscallHandler = (*LinuxSyscalls)(nil)

func (h *LinuxSyscalls) Syscall(s *VMState, mem Memory) error {
	loadRegister := s.loadRegister
	writeRegister := s.writeRegister

	a7 := loadRegister(riscv.RegA7)
	switch a7 {
	case riscv.SysExit, riscv.SysExitGroup: // no multi-thread support, so both exit the program.
		a0 := loadRegister(riscv.RegA0)
		s.ExitCode = uint8(a0)
		s.Exited = true
		// program stops here, no need to change registers.
	case riscv.SysRead:
		fd := loadRegister(riscv.RegA0) // A0 = fd
		var n, errCode U32
		switch fd {
		case riscv.FdStdin:
			n = 0 // never read anything from stdin
		default:
			n = u32Mask() // -1 (reading error)
			errCode = riscv.EBADF
		}
		writeRegister(riscv.RegA0, n)
		writeRegister(riscv.RegA1, errCode)
	case riscv.SysWrite:
		fd := loadRegister(riscv.RegA0)    // A0 = fd
		addr := loadRegister(riscv.RegA1)  // A1 = *buf addr
		count := loadRegister(riscv.RegA2) // A2 = count
		var n, errCode U32
		var out io.Writer
		switch fd {
		case riscv.FdStdout:
			out = h.Stdout
		case riscv.FdStderr:
			out = h.Stderr
		}
		rr, ok := mem.(RangeReader)
		if out == nil || !ok {
			n = u32Mask() // -1 (writing error)
			errCode = riscv.EBADF
		} else {
			if _, err := io.Copy(out, rr.ReadMemoryRange(addr, count)); err != nil {
				return fmt.Errorf("fd %d writing err: %w", fd, err)
			}
			n = count // write completes fully in single instruction step
		}
		writeRegister(riscv.RegA0, n)
		writeRegister(riscv.RegA1, errCode)
	default:
		return &UnrecognizedSyscallErr{SyscallNum: a7}
	}
	return nil
}
