package audio

// Resampling between the telephony leg (8 kHz) and the AI leg (24 kHz).
// The rates are an exact 1:3 ratio, so upsampling is linear interpolation
// with two inserted points per input sample and downsampling averages each
// group of three samples before decimating. Neither path changes total
// duration: n samples at 8 kHz become exactly 3n at 24 kHz and vice versa.

const rateRatio = AIRate / TelephonyRate // 3

// Upsample8to24 converts 8 kHz samples to 24 kHz by linear interpolation.
func Upsample8to24(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	out := make([]int16, len(in)*rateRatio)
	for i, s := range in {
		next := s
		if i+1 < len(in) {
			next = in[i+1]
		}
		a := int32(s)
		b := int32(next)
		out[i*3] = s
		out[i*3+1] = int16(a + (b-a)/3)
		out[i*3+2] = int16(a + 2*(b-a)/3)
	}
	return out
}

// Downsample24to8 converts 24 kHz samples to 8 kHz. Each output sample is
// the mean of three consecutive inputs, which doubles as a crude low-pass
// filter against aliasing. Trailing samples that do not fill a full group
// are averaged over what remains.
func Downsample24to8(in []int16) []int16 {
	if len(in) == 0 {
		return nil
	}
	n := (len(in) + rateRatio - 1) / rateRatio
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		start := i * rateRatio
		end := start + rateRatio
		if end > len(in) {
			end = len(in)
		}
		var sum int32
		for _, s := range in[start:end] {
			sum += int32(s)
		}
		out[i] = int16(sum / int32(end-start))
	}
	return out
}
