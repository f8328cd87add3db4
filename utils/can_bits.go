package utils

// Little-endian (Intel) bit helpers over a payload packed into a uint64,
// byte 0 in the low bits.

func bitMask(bitLen int) uint64 {
	if bitLen >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bitLen) - 1
}

func getBits(payload uint64, startBit, bitLen int) uint64 {
	if bitLen <= 0 || bitLen > 64 || startBit < 0 || startBit >= 64 {
		return 0
	}
	return (payload >> startBit) & bitMask(bitLen)
}

func setBits(payload uint64, startBit, bitLen int, value uint64) uint64 {
	if bitLen <= 0 || bitLen > 64 || startBit < 0 || startBit >= 64 {
		return payload
	}
	mask := bitMask(bitLen)
	payload &^= mask << startBit
	payload |= (value & mask) << startBit
	return payload
}

// signExtend interprets the low bitLen bits of u as a two's complement value.
func signExtend(u uint64, bitLen int, signed bool) int64 {
	if !signed || bitLen >= 64 {
		return int64(u)
	}
	signBit := uint64(1) << (bitLen - 1)
	if u&signBit == 0 {
		return int64(u)
	}
	return int64(u | ^bitMask(bitLen))
}

func truncateRaw(raw int64, bitLen int) uint64 {
	return uint64(raw) & bitMask(bitLen)
}

func clampRaw(raw int64, bitLen int, signed bool) int64 {
	if bitLen <= 0 || bitLen > 63 {
		return raw
	}
	if !signed {
		hi := int64((uint64(1) << bitLen) - 1)
		if raw < 0 {
			return 0
		}
		if raw > hi {
			return hi
		}
		return raw
	}
	lo := -int64(uint64(1) << (bitLen - 1))
	hi := int64((uint64(1) << (bitLen - 1)) - 1)
	if raw < lo {
		return lo
	}
	if raw > hi {
		return hi
	}
	return raw
}
