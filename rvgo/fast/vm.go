package fast

import (
	"fmt"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

// riscvStep runs a single fetch-decode-execute cycle.
// Control transfers set the PC to their target; everything else, faults included, advances it by 4.
func (m *InstrumentedState) riscvStep() (outErr error) {
	s := m.state
	pc := s.getPC()
	defer func() {
		if err := recover(); err != nil {
			s.setPC(add32(pc, toU32(4)))
			outErr = fmt.Errorf("step at pc %08x: %v", pc, err)
		}
	}()

	nextPC, err := m.execute(pc)
	if err != nil {
		nextPC = add32(pc, toU32(4))
	}
	m.log.Trace("PC", "from", HexU32(pc), "to", HexU32(nextPC))
	s.setPC(nextPC)
	return err
}

// checkTarget rejects control-transfer targets that are not 4-byte aligned.
func checkTarget(target U32) error {
	if !iszero32(and32(target, toU32(3))) {
		return riscv.InstructionAddressMisaligned(target)
	}
	return nil
}

// execute runs the instruction at pc and returns the address of the next instruction.
// State is only changed once the instruction is known to succeed, with the exception
// of memory writes, which are the last effect of a store.
func (m *InstrumentedState) execute(pc U32) (U32, error) {
	loadRegister := m.state.loadRegister
	writeRegister := m.state.writeRegister
	mem := m.mem

	instr, err := mem.Read32(pc) // raw instruction
	if err != nil {
		return 0, fmt.Errorf("failed to fetch instruction: %w", err)
	}

	// these fields are ignored if not applicable to the instruction type / opcode
	opcode := parseOpcode(instr)
	rd := parseRd(instr) // destination register index
	funct3 := parseFunct3(instr)
	rs1 := parseRs1(instr) // source register 1 index
	rs2 := parseRs2(instr) // source register 2 index
	funct7 := parseFunct7(instr)

	m.log.Trace("Decoded", "pc", HexU32(pc), "instr", HexU32(instr), "opcode", riscv.Opcode(opcode),
		"rd", rd, "funct3", funct3, "rs1", rs1, "rs2", rs2, "funct7", funct7)

	nextPC := add32(pc, toU32(4))

	switch riscv.Opcode(opcode) {
	case riscv.OpLoad:
		// LB, LH, LW, LBU, LHU
		var signBit, mask U32
		signed := true
		switch riscv.LoadFunct3(funct3) {
		case riscv.LB:
			signBit, mask = toU32(7), toU32(0xFF)
		case riscv.LH:
			signBit, mask = toU32(15), shortToU32(0xFFFF)
		case riscv.LW:
			signBit, mask = toU32(31), u32Mask()
		case riscv.LBU:
			signBit, mask, signed = toU32(7), toU32(0xFF), false
		case riscv.LHU:
			signBit, mask, signed = toU32(15), shortToU32(0xFFFF), false
		default:
			return 0, riscv.InvalidFunct3(funct3)
		}
		imm := parseImmTypeI(instr)
		memIndex := add32(loadRegister(rs1), imm)
		word, err := mem.Read32(memIndex)
		if err != nil {
			return 0, err
		}
		if m.bigEndian { // the addressed bytes are the most significant ones
			word = shr32(sub32(toU32(31), signBit), word)
		}
		rdValue := and32(word, mask)
		if signed {
			rdValue = signExtend32(rdValue, signBit)
		}
		writeRegister(rd, rdValue)
	case riscv.OpStore:
		// SB, SH, SW
		imm := parseImmTypeS(instr)
		value := loadRegister(rs2)
		memIndex := add32(loadRegister(rs1), imm)
		var err error
		switch riscv.StoreFunct3(funct3) {
		case riscv.SB:
			err = mem.Write8(memIndex, uint8(value))
		case riscv.SH:
			err = mem.Write16(memIndex, uint16(value))
		case riscv.SW:
			err = mem.Write32(memIndex, value)
		default:
			return 0, riscv.InvalidFunct3(funct3)
		}
		if err != nil {
			return 0, err
		}
	case riscv.OpBranch:
		rs1Value := loadRegister(rs1)
		rs2Value := loadRegister(rs2)
		var branchHit U32
		switch riscv.BranchFunct3(funct3) {
		case riscv.BEQ:
			branchHit = eq32(rs1Value, rs2Value)
		case riscv.BNE:
			branchHit = and32(not32(eq32(rs1Value, rs2Value)), toU32(1))
		case riscv.BLT:
			branchHit = slt32(rs1Value, rs2Value)
		case riscv.BGE:
			branchHit = and32(not32(slt32(rs1Value, rs2Value)), toU32(1))
		case riscv.BLTU:
			branchHit = lt32(rs1Value, rs2Value)
		case riscv.BGEU:
			branchHit = and32(not32(lt32(rs1Value, rs2Value)), toU32(1))
		default:
			return 0, riscv.InvalidFunct3(funct3)
		}
		if iszero32(branchHit) {
			break
		}
		target := add32(pc, parseImmTypeB(instr))
		if err := checkTarget(target); err != nil {
			return 0, err
		}
		// nothing to write to rd register
		return target, nil
	case riscv.OpImm:
		rs1Value := loadRegister(rs1)
		imm := parseImmTypeI(instr)
		shamt := and32(imm, toU32(0x1F)) // lower 5 bits, unsigned
		var rdValue U32
		switch riscv.ALUFunct3(funct3) {
		case riscv.ADD: // ADDI
			rdValue = add32(rs1Value, imm)
		case riscv.SLL: // SLLI
			if funct7 != riscv.Funct7Base {
				return 0, riscv.InvalidFunct7(funct7)
			}
			rdValue = shl32(shamt, rs1Value)
		case riscv.SLT: // SLTI
			rdValue = slt32(rs1Value, imm)
		case riscv.SLTU: // SLTIU
			rdValue = lt32(rs1Value, imm)
		case riscv.XOR: // XORI
			rdValue = xor32(rs1Value, imm)
		case riscv.SR: // SRLI / SRAI, selected by bit 10 of the immediate
			switch funct7 {
			case riscv.Funct7Base:
				rdValue = shr32(shamt, rs1Value)
			case riscv.Funct7Alt:
				rdValue = sar32(shamt, rs1Value)
			default:
				return 0, riscv.InvalidFunct7(funct7)
			}
		case riscv.OR: // ORI
			rdValue = or32(rs1Value, imm)
		case riscv.AND: // ANDI
			rdValue = and32(rs1Value, imm)
		default:
			return 0, riscv.InvalidFunct3(funct3)
		}
		writeRegister(rd, rdValue)
	case riscv.OpReg:
		f3 := riscv.ALUFunct3(funct3)
		switch funct7 {
		case riscv.Funct7Base:
		case riscv.Funct7Alt:
			if f3 != riscv.ADD && f3 != riscv.SR {
				return 0, riscv.InvalidFunct7(funct7)
			}
		default:
			return 0, riscv.InvalidFunct7(funct7)
		}
		alt := funct7 == riscv.Funct7Alt
		rs1Value := loadRegister(rs1)
		rs2Value := loadRegister(rs2)
		shamt := and32(rs2Value, toU32(0x1F)) // only the low 5 bits are considered in RV32I
		var rdValue U32
		switch f3 {
		case riscv.ADD: // ADD / SUB
			if alt {
				rdValue = sub32(rs1Value, rs2Value)
			} else {
				rdValue = add32(rs1Value, rs2Value)
			}
		case riscv.SLL:
			rdValue = shl32(shamt, rs1Value)
		case riscv.SLT:
			rdValue = slt32(rs1Value, rs2Value)
		case riscv.SLTU:
			rdValue = lt32(rs1Value, rs2Value)
		case riscv.XOR:
			rdValue = xor32(rs1Value, rs2Value)
		case riscv.SR: // SRL / SRA
			if alt {
				rdValue = sar32(shamt, rs1Value) // arithmetic: sign bit is extended
			} else {
				rdValue = shr32(shamt, rs1Value) // logical: fill with zeroes
			}
		case riscv.OR:
			rdValue = or32(rs1Value, rs2Value)
		case riscv.AND:
			rdValue = and32(rs1Value, rs2Value)
		default:
			return 0, riscv.InvalidFunct3(funct3)
		}
		writeRegister(rd, rdValue)
	case riscv.OpLUI: // Load upper immediate
		writeRegister(rd, parseImmTypeU(instr))
	case riscv.OpAUIPC: // Add upper immediate to PC
		writeRegister(rd, add32(pc, parseImmTypeU(instr)))
	case riscv.OpJAL: // Jump and link
		target := add32(pc, parseImmTypeJ(instr))
		if err := checkTarget(target); err != nil {
			return 0, err
		}
		writeRegister(rd, nextPC)
		return target, nil
	case riscv.OpJALR: // Jump and link register
		if funct3 != 0 {
			return 0, riscv.InvalidFunct3(funct3)
		}
		imm := parseImmTypeI(instr)
		target := and32(add32(loadRegister(rs1), imm), not32(toU32(1))) // least significant bit is set to 0
		if err := checkTarget(target); err != nil {
			return 0, err
		}
		writeRegister(rd, nextPC)
		return target, nil
	case riscv.OpMiscMem:
		switch riscv.MiscMemFunct3(funct3) {
		case riscv.FENCE, riscv.FENCEI:
			// This VM doesn't have a pipeline, caches, nor additional harts, so this is a no-op.
			m.log.Debug("Fence", "pc", HexU32(pc), "funct3", funct3)
		default:
			return 0, riscv.InvalidFunct3(funct3)
		}
	case riscv.OpSystem:
		if riscv.SystemFunct3(funct3) != riscv.PRIV {
			return 0, riscv.InvalidFunct3(funct3) // no Zicsr
		}
		switch funct12 := parseFunct12(instr); riscv.Funct12(funct12) {
		case riscv.ECALL:
			mem.ECall()
			if m.syscalls != nil {
				if err := m.syscalls.Syscall(m.state, mem); err != nil {
					return 0, fmt.Errorf("environment call failed: %w", err)
				}
			}
		case riscv.EBREAK:
			mem.EBreak()
		default:
			return 0, riscv.InvalidFunct12(funct12)
		}
	default:
		return 0, riscv.InvalidOpcode(opcode)
	}
	return nextPC, nil
}
