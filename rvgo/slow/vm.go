package slow

import (
	"encoding/binary"
	"fmt"

	"github.com/rv32sim/rv32sim/rvgo/riscv"
)

func decodeU32BE(v []byte) (out U32) {
	if len(v) != 4 {
		panic("bad u32 decode")
	}
	(*U256)(&out).SetUint64(uint64(binary.BigEndian.Uint32(v)))
	return
}

func encodeU32BE(v U32) []byte {
	var dest [4]byte
	binary.BigEndian.PutUint32(dest[:], v.val())
	return dest[:]
}

const (
	stateSizeMemRoot   = 32
	stateSizePC        = 4
	stateSizeStep      = 8
	stateSizeExitCode  = 1
	stateSizeExited    = 1
	stateSizeRegisters = 4 * 32
)

const (
	stateOffsetMemRoot   = 0
	stateOffsetPC        = stateOffsetMemRoot + stateSizeMemRoot
	stateOffsetStep      = stateOffsetPC + stateSizePC
	stateOffsetExitCode  = stateOffsetStep + stateSizeStep
	stateOffsetExited    = stateOffsetExitCode + stateSizeExitCode
	stateOffsetRegisters = stateOffsetExited + stateSizeExited
	stateSize            = stateOffsetRegisters + stateSizeRegisters
)

// MemoryOracle is the memory the witness commits to. Its merkle root must match the root in the witness.
type MemoryOracle interface {
	Read32(addr uint32) (uint32, error)
	Write8(addr uint32, v uint8) error
	Write16(addr uint32, v uint16) error
	Write32(addr uint32, v uint32) error
	ECall()
	EBreak()
	MerkleRoot() [32]byte
	ByteOrder() binary.ByteOrder
}

// Step executes one instruction on the state encoded in witness and returns the encoded post-state.
// Instruction faults are returned alongside a valid post-state, like the fast package does;
// a malformed witness or a memory that does not match it reverts, returning no post-state.
func Step(witness []byte, mem MemoryOracle) (post []byte, outErr error) {
	var revertCode uint32
	defer func() {
		if errInterface := recover(); errInterface != nil {
			post = nil
			if err, ok := errInterface.(error); ok {
				outErr = fmt.Errorf("revert: %w", err)
			} else {
				outErr = fmt.Errorf("revert: %v", err) // nolint:errorlint
			}
		}
		if revertCode != 0 {
			outErr = fmt.Errorf("revert %x: %w", revertCode, outErr)
		}
	}()

	revertWithCode := func(code uint32, err error) {
		revertCode = code
		panic(err)
	}

	//
	// Yul32 - functions to do 32 bit math - see yul32.go
	//

	//
	// State loading
	//
	if len(witness) != stateSize {
		revertWithCode(riscv.ErrBadWitnessLength, fmt.Errorf("invalid state witness length %d, expected %d", len(witness), stateSize))
	}
	stateData := make([]byte, stateSize)
	copy(stateData, witness)

	//
	// State access
	//
	readState := func(offset uint64, length uint64) []byte {
		return stateData[offset : offset+length]
	}
	writeState := func(offset uint64, length uint64, data []byte) {
		if uint64(len(data)) != length {
			panic("unexpected input length")
		}
		copy(stateData[offset:offset+length], data)
	}
	getMemRoot := func() [32]byte {
		return *(*[32]byte)(readState(stateOffsetMemRoot, stateSizeMemRoot))
	}
	setMemRoot := func(v [32]byte) {
		writeState(stateOffsetMemRoot, stateSizeMemRoot, v[:])
	}

	getPC := func() U32 {
		return decodeU32BE(readState(stateOffsetPC, stateSizePC))
	}
	setPC := func(pc U32) {
		writeState(stateOffsetPC, stateSizePC, encodeU32BE(pc))
	}

	getExited := func() (exited bool) {
		return stateData[stateOffsetExited] != 0
	}

	getStep := func() uint64 {
		return binary.BigEndian.Uint64(readState(stateOffsetStep, stateSizeStep))
	}
	setStep := func(v uint64) {
		binary.BigEndian.PutUint64(stateData[stateOffsetStep:stateOffsetStep+stateSizeStep], v)
	}

	loadRegister := func(reg U32) U32 {
		if !iszero32(lt32(toU32(31), reg)) {
			revertWithCode(riscv.ErrInvalidRegister, fmt.Errorf("cannot load invalid register: %d", reg.val()))
		}
		offset := add32(toU32(stateOffsetRegisters), shl32(toU32(2), reg))
		return decodeU32BE(readState(uint64(offset.val()), 4))
	}
	writeRegister := func(reg U32, v U32) {
		if iszero32(reg) { // reg 0 must stay 0
			return
		}
		if !iszero32(lt32(toU32(31), reg)) {
			revertWithCode(riscv.ErrInvalidRegister, fmt.Errorf("unknown register %d, cannot write %x", reg.val(), v.val()))
		}
		offset := add32(toU32(stateOffsetRegisters), shl32(toU32(2), reg))
		writeState(uint64(offset.val()), 4, encodeU32BE(v))
	}

	if getMemRoot() != mem.MerkleRoot() {
		revertWithCode(riscv.ErrBadMemoryRoot, fmt.Errorf("memory root %x does not match witness root %x", mem.MerkleRoot(), getMemRoot()))
	}

	if getExited() { // early exit if we can
		return stateData, nil
	}

	//
	// Memory functions
	//
	bigEndian := mem.ByteOrder() == binary.BigEndian
	read32 := func(addr U32) (U32, error) {
		v, err := mem.Read32(addr.val())
		return wordToU32(v), err
	}

	checkTarget := func(target U32) error {
		if !iszero32(and32(target, toU32(3))) {
			return riscv.InstructionAddressMisaligned(target.val())
		}
		return nil
	}

	//
	// Instruction execution
	//
	execute := func(pc U32) (U32, error) {
		instr, err := read32(pc) // raw instruction
		if err != nil {
			return U32{}, fmt.Errorf("failed to fetch instruction: %w", err)
		}

		// these fields are ignored if not applicable to the instruction type / opcode
		opcode := parseOpcode(instr)
		rd := parseRd(instr) // destination register index
		funct3 := parseFunct3(instr)
		rs1 := parseRs1(instr) // source register 1 index
		rs2 := parseRs2(instr) // source register 2 index
		funct7 := parseFunct7(instr)

		nextPC := add32(pc, toU32(4))

		switch riscv.Opcode(opcode.val()) {
		case riscv.OpLoad:
			var signBit, mask U32
			signed := true
			switch riscv.LoadFunct3(funct3.val()) {
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
				return U32{}, riscv.InvalidFunct3(funct3.val())
			}
			imm := parseImmTypeI(instr)
			memIndex := add32(loadRegister(rs1), imm)
			word, err := read32(memIndex)
			if err != nil {
				return U32{}, err
			}
			if bigEndian { // the addressed bytes are the most significant ones
				word = shr32(sub32(toU32(31), signBit), word)
			}
			rdValue := and32(word, mask)
			if signed {
				rdValue = signExtend32(rdValue, signBit)
			}
			writeRegister(rd, rdValue)
		case riscv.OpStore:
			imm := parseImmTypeS(instr)
			value := loadRegister(rs2).val()
			memIndex := add32(loadRegister(rs1), imm).val()
			var err error
			switch riscv.StoreFunct3(funct3.val()) {
			case riscv.SB:
				err = mem.Write8(memIndex, uint8(value))
			case riscv.SH:
				err = mem.Write16(memIndex, uint16(value))
			case riscv.SW:
				err = mem.Write32(memIndex, value)
			default:
				return U32{}, riscv.InvalidFunct3(funct3.val())
			}
			if err != nil {
				return U32{}, err
			}
		case riscv.OpBranch:
			rs1Value := loadRegister(rs1)
			rs2Value := loadRegister(rs2)
			var branchHit U32
			switch riscv.BranchFunct3(funct3.val()) {
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
				return U32{}, riscv.InvalidFunct3(funct3.val())
			}
			if iszero32(branchHit) {
				break
			}
			target := add32(pc, parseImmTypeB(instr))
			if err := checkTarget(target); err != nil {
				return U32{}, err
			}
			return target, nil
		case riscv.OpImm:
			rs1Value := loadRegister(rs1)
			imm := parseImmTypeI(instr)
			shamt := and32(imm, toU32(0x1F))
			var rdValue U32
			switch riscv.ALUFunct3(funct3.val()) {
			case riscv.ADD: // ADDI
				rdValue = add32(rs1Value, imm)
			case riscv.SLL: // SLLI
				if funct7.val() != riscv.Funct7Base {
					return U32{}, riscv.InvalidFunct7(funct7.val())
				}
				rdValue = shl32(shamt, rs1Value)
			case riscv.SLT: // SLTI
				rdValue = slt32(rs1Value, imm)
			case riscv.SLTU: // SLTIU
				rdValue = lt32(rs1Value, imm)
			case riscv.XOR: // XORI
				rdValue = xor32(rs1Value, imm)
			case riscv.SR: // SRLI / SRAI
				switch funct7.val() {
				case riscv.Funct7Base:
					rdValue = shr32(shamt, rs1Value)
				case riscv.Funct7Alt:
					rdValue = sar32(shamt, rs1Value)
				default:
					return U32{}, riscv.InvalidFunct7(funct7.val())
				}
			case riscv.OR: // ORI
				rdValue = or32(rs1Value, imm)
			case riscv.AND: // ANDI
				rdValue = and32(rs1Value, imm)
			default:
				return U32{}, riscv.InvalidFunct3(funct3.val())
			}
			writeRegister(rd, rdValue)
		case riscv.OpReg:
			f3 := riscv.ALUFunct3(funct3.val())
			switch funct7.val() {
			case riscv.Funct7Base:
			case riscv.Funct7Alt:
				if f3 != riscv.ADD && f3 != riscv.SR {
					return U32{}, riscv.InvalidFunct7(funct7.val())
				}
			default:
				return U32{}, riscv.InvalidFunct7(funct7.val())
			}
			alt := funct7.val() == riscv.Funct7Alt
			rs1Value := loadRegister(rs1)
			rs2Value := loadRegister(rs2)
			shamt := and32(rs2Value, toU32(0x1F))
			var rdValue U32
			switch f3 {
			case riscv.ADD:
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
			case riscv.SR:
				if alt {
					rdValue = sar32(shamt, rs1Value)
				} else {
					rdValue = shr32(shamt, rs1Value)
				}
			case riscv.OR:
				rdValue = or32(rs1Value, rs2Value)
			case riscv.AND:
				rdValue = and32(rs1Value, rs2Value)
			default:
				return U32{}, riscv.InvalidFunct3(funct3.val())
			}
			writeRegister(rd, rdValue)
		case riscv.OpLUI:
			writeRegister(rd, parseImmTypeU(instr))
		case riscv.OpAUIPC:
			writeRegister(rd, add32(pc, parseImmTypeU(instr)))
		case riscv.OpJAL:
			target := add32(pc, parseImmTypeJ(instr))
			if err := checkTarget(target); err != nil {
				return U32{}, err
			}
			writeRegister(rd, nextPC)
			return target, nil
		case riscv.OpJALR:
			if !iszero32(funct3) {
				return U32{}, riscv.InvalidFunct3(funct3.val())
			}
			imm := parseImmTypeI(instr)
			target := and32(add32(loadRegister(rs1), imm), not32(toU32(1)))
			if err := checkTarget(target); err != nil {
				return U32{}, err
			}
			writeRegister(rd, nextPC)
			return target, nil
		case riscv.OpMiscMem:
			switch riscv.MiscMemFunct3(funct3.val()) {
			case riscv.FENCE, riscv.FENCEI: // no-op
			default:
				return U32{}, riscv.InvalidFunct3(funct3.val())
			}
		case riscv.OpSystem:
			if riscv.SystemFunct3(funct3.val()) != riscv.PRIV {
				return U32{}, riscv.InvalidFunct3(funct3.val())
			}
			switch funct12 := parseFunct12(instr); riscv.Funct12(funct12.val()) {
			case riscv.ECALL:
				mem.ECall()
			case riscv.EBREAK:
				mem.EBreak()
			default:
				return U32{}, riscv.InvalidFunct12(funct12.val())
			}
		default:
			return U32{}, riscv.InvalidOpcode(opcode.val())
		}
		return nextPC, nil
	}

	pc := getPC()
	nextPC, err := execute(pc)
	if err != nil {
		nextPC = add32(pc, toU32(4))
	}
	setPC(nextPC)
	setStep(getStep() + 1)
	setMemRoot(mem.MerkleRoot())
	return stateData, err
}
