package fast

// Fast equivalent of the 32-bit yul functions of slow-mode.
// Shift helpers take the shift amount first, like their yul counterparts.

type U32 = uint32

func toU32(v uint8) U32 { return uint32(v) }

func shortToU32(v uint16) U32 {
	return uint32(v)
}

func u32Mask() U32 { // max uint32
	return 0xFFFF_FFFF
}

// signExtend32 treats bit as the sign bit of v and copies it into every higher bit.
func signExtend32(v U32, bit U32) U32 {
	switch and32(v, shl32(bit, 1)) {
	case 0:
		// fill with zeroes, by masking
		return and32(v, shr32(sub32(31, bit), u32Mask()))
	default:
		// fill with ones, by or-ing
		return or32(v, shl32(bit, shr32(bit, u32Mask())))
	}
}

func add32(x, y U32) U32 {
	return x + y
}

func sub32(x, y U32) U32 {
	return x - y
}

func not32(x U32) U32 {
	return ^x
}

func lt32(x, y U32) U32 {
	if x < y {
		return 1
	} else {
		return 0
	}
}

func slt32(x, y U32) U32 {
	if int32(x) < int32(y) {
		return 1
	} else {
		return 0
	}
}

func eq32(x, y U32) U32 {
	if x == y {
		return 1
	} else {
		return 0
	}
}

func iszero32(x U32) bool {
	return x == 0
}

func and32(x, y U32) U32 {
	return x & y
}

func or32(x, y U32) U32 {
	return x | y
}

func xor32(x, y U32) U32 {
	return x ^ y
}

func shl32(x, y U32) U32 {
	return y << x
}

func shr32(x, y U32) U32 {
	return y >> x
}

func sar32(x, y U32) U32 {
	return uint32(int32(y) >> x)
}
