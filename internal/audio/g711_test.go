package audio

import "testing"

func TestULawSilence(t *testing.T) {
	if got := encodeULawByte(0); got != 0xFF {
		t.Errorf("encodeULawByte(0) = %#x, want 0xff", got)
	}
	if got := decodeULawByte(0xFF); got != 0 {
		t.Errorf("decodeULawByte(0xff) = %d, want 0", got)
	}
}

// Companding is lossy, but encode(decode(byte)) must be stable: a value
// that has already been through the codec maps back to the same byte.
func TestULawEncodeDecodeStable(t *testing.T) {
	for b := 0; b < 256; b++ {
		sample := decodeULawByte(uint8(b))
		got := encodeULawByte(sample)
		// 0x7F and 0xFF both decode to zero; either is an acceptable
		// re-encoding of silence.
		if got != uint8(b) && sample != 0 {
			t.Errorf("ulaw byte %#x decoded to %d, re-encoded to %#x", b, sample, got)
		}
	}
}

func TestALawEncodeDecodeStable(t *testing.T) {
	for b := 0; b < 256; b++ {
		sample := decodeALawByte(uint8(b))
		got := encodeALawByte(sample)
		if got != uint8(b) && sample != 0 {
			t.Errorf("alaw byte %#x decoded to %d, re-encoded to %#x", b, sample, got)
		}
	}
}

// -32768 has no int16 negation; it must encode as a full-scale negative
// byte, not wrap into garbage.
func TestG711FullScaleNegative(t *testing.T) {
	if got, want := encodeULawByte(-32768), encodeULawByte(-32767); got != want {
		t.Errorf("encodeULawByte(-32768) = %#x, want %#x", got, want)
	}
	if rt := decodeULawByte(encodeULawByte(-32768)); rt > -30000 {
		t.Errorf("ulaw -32768 round-tripped to %d, want full-scale negative", rt)
	}
	if got, want := encodeALawByte(-32768), encodeALawByte(-32767); got != want {
		t.Errorf("encodeALawByte(-32768) = %#x, want %#x", got, want)
	}
	if rt := decodeALawByte(encodeALawByte(-32768)); rt > -30000 {
		t.Errorf("alaw -32768 round-tripped to %d, want full-scale negative", rt)
	}

	// The init-built lookup tables take the same path.
	if got, want := EncodeULaw([]int16{-32768})[0], encodeULawByte(-32767); got != want {
		t.Errorf("EncodeULaw table entry for -32768 = %#x, want %#x", got, want)
	}
	if got, want := EncodeALaw([]int16{-32768})[0], encodeALawByte(-32767); got != want {
		t.Errorf("EncodeALaw table entry for -32768 = %#x, want %#x", got, want)
	}
}

func TestULawQuantizationError(t *testing.T) {
	tests := []int16{0, 1, -1, 100, -100, 1000, -1000, 8000, -8000, 30000, -30000}
	for _, sample := range tests {
		rt := decodeULawByte(encodeULawByte(sample))
		diff := int32(sample) - int32(rt)
		if diff < 0 {
			diff = -diff
		}
		// u-law segments double in step size; worst case near full scale
		// is a step of 1024, so half-step error stays under that.
		if diff > 1024 {
			t.Errorf("sample %d round-tripped to %d (error %d)", sample, rt, diff)
		}
	}
}

func TestDecodeEncodeULawSlices(t *testing.T) {
	payload := []byte{0xFF, 0x7F, 0x00, 0x80, 0xA3}
	samples := DecodeULaw(payload)
	if len(samples) != len(payload) {
		t.Fatalf("DecodeULaw returned %d samples, want %d", len(samples), len(payload))
	}
	back := EncodeULaw(samples)
	if len(back) != len(payload) {
		t.Fatalf("EncodeULaw returned %d bytes, want %d", len(back), len(payload))
	}
	for i := range back {
		if samples[i] != 0 && back[i] != payload[i] {
			t.Errorf("byte %d: %#x re-encoded as %#x", i, payload[i], back[i])
		}
	}
}
