package audio

// G.711 codec tables. Decode is a straight 256-entry lookup; encode is a
// full 16-bit lookup built once at init so the per-frame hot path is
// table reads only.

var ulawToLinear [256]int16
var alawToLinear [256]int16
var linearToUlaw [65536]uint8
var linearToAlaw [65536]uint8

func init() {
	for i := 0; i < 256; i++ {
		ulawToLinear[i] = decodeULawByte(uint8(i))
		alawToLinear[i] = decodeALawByte(uint8(i))
	}
	for i := -32768; i <= 32767; i++ {
		linearToUlaw[uint16(int16(i))] = encodeULawByte(int16(i))
		linearToAlaw[uint16(int16(i))] = encodeALawByte(int16(i))
	}
}

func decodeULawByte(u uint8) int16 {
	u = ^u
	sign := int16(1)
	if u&0x80 != 0 {
		sign = -1
		u &= 0x7F
	}
	exponent := int((u >> 4) & 0x07)
	mantissa := int(u & 0x0F)
	sample := int16(((2*mantissa + 33) << uint(exponent)) - 33)
	return sign * sample
}

func encodeULawByte(sample int16) uint8 {
	const bias = 0x84
	const clip = 32635

	if sample == -32768 {
		// -sample would wrap; the magnitude clips anyway.
		sample = -32767
	}
	sign := uint8(0)
	if sample < 0 {
		sign = 0x80
		sample = -sample
	}
	if sample > clip {
		sample = clip
	}
	sample += bias

	exponent := 7
	mask := int16(0x4000)
	for exponent > 0 {
		if sample&mask != 0 {
			break
		}
		exponent--
		mask >>= 1
	}

	mantissa := (sample >> (uint(exponent) + 3)) & 0x0F
	return ^(sign | uint8(exponent<<4) | uint8(mantissa))
}

func decodeALawByte(a uint8) int16 {
	a ^= 0x55
	sign := int16(1)
	if a&0x80 != 0 {
		a &= 0x7F
	} else {
		sign = -1
	}
	exponent := int((a >> 4) & 0x07)
	mantissa := int(a & 0x0F)
	var sample int16
	if exponent == 0 {
		sample = int16(mantissa<<4 | 0x08)
	} else {
		sample = int16((mantissa<<4 | 0x108) << uint(exponent-1))
	}
	return sign * sample
}

func encodeALawByte(sample int16) uint8 {
	const clip = 32635

	if sample == -32768 {
		sample = -32767
	}
	sign := uint8(0x80)
	if sample < 0 {
		sign = 0
		sample = -sample
	}
	if sample > clip {
		sample = clip
	}

	var out uint8
	if sample < 256 {
		out = uint8(sample >> 4)
	} else {
		exponent := 7
		mask := int16(0x4000)
		for exponent > 0 {
			if sample&mask != 0 {
				break
			}
			exponent--
			mask >>= 1
		}
		mantissa := uint8((sample >> (uint(exponent) + 3)) & 0x0F)
		out = uint8(exponent<<4) | mantissa
	}
	return (sign | out) ^ 0x55
}

// DecodeULaw expands G.711 u-law bytes to 16-bit linear PCM samples.
func DecodeULaw(payload []byte) []int16 {
	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = ulawToLinear[b]
	}
	return out
}

// EncodeULaw compresses 16-bit linear PCM samples to G.711 u-law bytes.
func EncodeULaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = linearToUlaw[uint16(s)]
	}
	return out
}

// DecodeALaw expands G.711 a-law bytes to 16-bit linear PCM samples.
func DecodeALaw(payload []byte) []int16 {
	out := make([]int16, len(payload))
	for i, b := range payload {
		out[i] = alawToLinear[b]
	}
	return out
}

// EncodeALaw compresses 16-bit linear PCM samples to G.711 a-law bytes.
func EncodeALaw(samples []int16) []byte {
	out := make([]byte, len(samples))
	for i, s := range samples {
		out[i] = linearToAlaw[uint16(s)]
	}
	return out
}
