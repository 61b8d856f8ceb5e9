package riscv

import "encoding/binary"

// Instruction encoders, the inverse of the decoder. Immediates are taken as
// signed values and truncated to the width of their format.

func EncodeR(op Opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return funct7&0x7F<<25 | rs2&0x1F<<20 | rs1&0x1F<<15 | funct3&0x7<<12 | rd&0x1F<<7 | uint32(op)&0x7F
}

func EncodeI(op Opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return uint32(imm)&0xFFF<<20 | rs1&0x1F<<15 | funct3&0x7<<12 | rd&0x1F<<7 | uint32(op)&0x7F
}

func EncodeS(op Opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	v := uint32(imm)
	return v>>5&0x7F<<25 | rs2&0x1F<<20 | rs1&0x1F<<15 | funct3&0x7<<12 | v&0x1F<<7 | uint32(op)&0x7F
}

// EncodeB encodes a branch. The offset must be even; bit 0 is dropped.
func EncodeB(op Opcode, funct3, rs1, rs2 uint32, offset int32) uint32 {
	v := uint32(offset)
	return v>>12&1<<31 | v>>5&0x3F<<25 | rs2&0x1F<<20 | rs1&0x1F<<15 | funct3&0x7<<12 |
		v>>1&0xF<<8 | v>>11&1<<7 | uint32(op)&0x7F
}

// EncodeU encodes an upper immediate; the low 12 bits of imm are dropped.
func EncodeU(op Opcode, rd, imm uint32) uint32 {
	return imm&0xFFFFF000 | rd&0x1F<<7 | uint32(op)&0x7F
}

// EncodeJ encodes a jump. The offset must be even; bit 0 is dropped.
func EncodeJ(op Opcode, rd uint32, offset int32) uint32 {
	v := uint32(offset)
	return v>>20&1<<31 | v>>1&0x3FF<<21 | v>>11&1<<20 | v>>12&0xFF<<12 | rd&0x1F<<7 | uint32(op)&0x7F
}

// Shorthands for the instructions programs and tests are written in.

func Addi(rd, rs1 uint32, imm int32) uint32 { return EncodeI(OpImm, rd, uint32(ADD), rs1, imm) }

func Add(rd, rs1, rs2 uint32) uint32 { return EncodeR(OpReg, rd, uint32(ADD), rs1, rs2, Funct7Base) }

func Sub(rd, rs1, rs2 uint32) uint32 { return EncodeR(OpReg, rd, uint32(ADD), rs1, rs2, Funct7Alt) }

func Lui(rd, imm uint32) uint32 { return EncodeU(OpLUI, rd, imm) }

func Jal(rd uint32, offset int32) uint32 { return EncodeJ(OpJAL, rd, offset) }

func Jalr(rd, rs1 uint32, imm int32) uint32 { return EncodeI(OpJALR, rd, 0, rs1, imm) }

func Ecall() uint32 { return EncodeI(OpSystem, 0, uint32(PRIV), 0, int32(ECALL)) }

func Ebreak() uint32 { return EncodeI(OpSystem, 0, uint32(PRIV), 0, int32(EBREAK)) }

// Program packs instruction words into a memory image in the given byte order.
func Program(order binary.ByteOrder, words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		order.PutUint32(out[4*i:], w)
	}
	return out
}
