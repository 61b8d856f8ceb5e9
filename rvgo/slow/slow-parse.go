package slow

// Exported decoders, for differential testing against the fast package.

func Val(v U32) uint32 {
	return v.val()
}

func ParseImmTypeI(instr uint32) U32 {
	return parseImmTypeI(wordToU32(instr))
}

func ParseImmTypeS(instr uint32) U32 {
	return parseImmTypeS(wordToU32(instr))
}

func ParseImmTypeB(instr uint32) U32 {
	return parseImmTypeB(wordToU32(instr))
}

func ParseImmTypeU(instr uint32) U32 {
	return parseImmTypeU(wordToU32(instr))
}

func ParseImmTypeJ(instr uint32) U32 {
	return parseImmTypeJ(wordToU32(instr))
}

func ParseOpcode(instr uint32) U32 {
	return parseOpcode(wordToU32(instr))
}

func ParseRd(instr uint32) U32 {
	return parseRd(wordToU32(instr))
}

func ParseFunct3(instr uint32) U32 {
	return parseFunct3(wordToU32(instr))
}

func ParseRs1(instr uint32) U32 {
	return parseRs1(wordToU32(instr))
}

func ParseRs2(instr uint32) U32 {
	return parseRs2(wordToU32(instr))
}

func ParseFunct7(instr uint32) U32 {
	return parseFunct7(wordToU32(instr))
}

func ParseFunct12(instr uint32) U32 {
	return parseFunct12(wordToU32(instr))
}
