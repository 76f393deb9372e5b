package audio

import (
	"fmt"
	"time"
)

// Leg identifies which side of the bridge a frame originated from.
type Leg int

const (
	LegCaller    Leg = iota // telephony side (the human caller)
	LegAssistant            // AI streaming side
)

func (l Leg) String() string {
	switch l {
	case LegCaller:
		return "caller"
	case LegAssistant:
		return "assistant"
	default:
		return "unknown"
	}
}

// Encoding identifies the audio codec and container of a frame payload.
type Encoding int

const (
	// EncodingULaw is G.711 u-law, 8 kHz, mono, 1 byte per sample.
	// This is the most common telephony provider native format.
	EncodingULaw Encoding = iota
	// EncodingALaw is G.711 a-law, 8 kHz, mono, 1 byte per sample.
	EncodingALaw
	// EncodingPCM16 is linear PCM, signed 16-bit little-endian, 24 kHz,
	// mono. This is the AI streaming service's native format.
	EncodingPCM16
)

func (e Encoding) String() string {
	switch e {
	case EncodingULaw:
		return "ulaw/8000"
	case EncodingALaw:
		return "alaw/8000"
	case EncodingPCM16:
		return "pcm16/24000"
	default:
		return "unknown"
	}
}

// Sample rates for the two legs.
const (
	TelephonyRate = 8000
	AIRate        = 24000
)

// Frame is an immutable unit of audio crossing the bridge. Seq is assigned
// by the originating leg and is strictly increasing per leg; the bridge
// drops anything that arrives out of order.
type Frame struct {
	Encoding   Encoding
	SampleRate int
	Channels   int
	Leg        Leg
	Seq        uint64
	Timestamp  time.Time
	Payload    []byte
}

// Samples returns the number of audio samples carried by the frame.
func (f Frame) Samples() int {
	switch f.Encoding {
	case EncodingULaw, EncodingALaw:
		return len(f.Payload)
	case EncodingPCM16:
		return len(f.Payload) / 2
	default:
		return 0
	}
}

// Duration returns the wall-clock duration of audio in the frame.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// Validate checks that the frame's declared format matches its payload.
func (f Frame) Validate() error {
	if f.Channels != 1 {
		return fmt.Errorf("unsupported channel count %d", f.Channels)
	}
	switch f.Encoding {
	case EncodingULaw, EncodingALaw:
		if f.SampleRate != TelephonyRate {
			return fmt.Errorf("g711 frame with sample rate %d, want %d", f.SampleRate, TelephonyRate)
		}
	case EncodingPCM16:
		if f.SampleRate != AIRate {
			return fmt.Errorf("pcm16 frame with sample rate %d, want %d", f.SampleRate, AIRate)
		}
		if len(f.Payload)%2 != 0 {
			return fmt.Errorf("pcm16 payload has odd length %d", len(f.Payload))
		}
	default:
		return fmt.Errorf("unknown encoding %d", f.Encoding)
	}
	return nil
}
