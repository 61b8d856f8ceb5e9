package fast

// Functions to parse the instruction field values from the RV32I instruction formats.
// These should 1:1 match with the same definitions in the slow package.

func parseImmTypeI(instr U32) U32 {
	return signExtend32(shr32(toU32(20), instr), toU32(11))
}

func parseImmTypeS(instr U32) U32 {
	return signExtend32(or32(shl32(toU32(5), shr32(toU32(25), instr)), and32(shr32(toU32(7), instr), toU32(0x1F))), toU32(11))
}

// parseImmTypeB returns the branch offset in bytes, bit 0 always clear.
func parseImmTypeB(instr U32) U32 {
	return signExtend32(
		or32(
			or32(
				shl32(toU32(1), and32(shr32(toU32(8), instr), toU32(0xF))),
				shl32(toU32(5), and32(shr32(toU32(25), instr), toU32(0x3F))),
			),
			or32(
				shl32(toU32(11), and32(shr32(toU32(7), instr), toU32(1))),
				shl32(toU32(12), shr32(toU32(31), instr)),
			),
		),
		toU32(12),
	)
}

// parseImmTypeU returns the upper immediate in place, low 12 bits clear.
func parseImmTypeU(instr U32) U32 {
	return and32(instr, shl32(toU32(12), shr32(toU32(12), u32Mask())))
}

// parseImmTypeJ returns the jump offset in bytes, bit 0 always clear.
func parseImmTypeJ(instr U32) U32 {
	return signExtend32(
		or32(
			or32(
				shl32(toU32(1), and32(shr32(toU32(21), instr), shortToU32(0x3FF))),
				shl32(toU32(11), and32(shr32(toU32(20), instr), toU32(1))),
			),
			or32(
				shl32(toU32(12), and32(shr32(toU32(12), instr), toU32(0xFF))),
				shl32(toU32(20), shr32(toU32(31), instr)),
			),
		),
		toU32(20),
	)
}

func parseOpcode(instr U32) U32 {
	return and32(instr, toU32(0x7F))
}

func parseRd(instr U32) U32 {
	return and32(shr32(toU32(7), instr), toU32(0x1F))
}

func parseFunct3(instr U32) U32 {
	return and32(shr32(toU32(12), instr), toU32(0x7))
}

func parseRs1(instr U32) U32 {
	return and32(shr32(toU32(15), instr), toU32(0x1F))
}

func parseRs2(instr U32) U32 {
	return and32(shr32(toU32(20), instr), toU32(0x1F))
}

func parseFunct7(instr U32) U32 {
	return shr32(toU32(25), instr)
}

// parseFunct12 returns the raw, unextended I-type immediate field.
func parseFunct12(instr U32) U32 {
	return shr32(toU32(20), instr)
}
