package audio

import (
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// Transcoder converts frames between the telephony leg's native codec and
// the AI leg's linear wideband format. Implementations are stateless and
// safe for concurrent use; one instance is shared by both bridge directions.
type Transcoder interface {
	// Name identifies the telephony codec this transcoder handles.
	Name() string
	// ToAI converts a telephony-leg frame to the AI leg's format.
	ToAI(f Frame) (Frame, error)
	// ToTelephony converts an AI-leg frame to the telephony leg's format.
	ToTelephony(f Frame) (Frame, error)
}

// G711Transcoder bridges G.711 8 kHz narrowband and PCM16 24 kHz wideband.
// ALaw selects a-law companding; the default is u-law.
type G711Transcoder struct {
	ALaw bool
}

func (t *G711Transcoder) Name() string {
	if t.ALaw {
		return "pcma"
	}
	return "pcmu"
}

func (t *G711Transcoder) telephonyEncoding() Encoding {
	if t.ALaw {
		return EncodingALaw
	}
	return EncodingULaw
}

func (t *G711Transcoder) ToAI(f Frame) (Frame, error) {
	if f.Encoding != t.telephonyEncoding() {
		return Frame{}, fmt.Errorf("transcoding to ai: unexpected encoding %s", f.Encoding)
	}
	var narrow []int16
	if t.ALaw {
		narrow = DecodeALaw(f.Payload)
	} else {
		narrow = DecodeULaw(f.Payload)
	}
	wide := Upsample8to24(narrow)

	payload := make([]byte, len(wide)*2)
	for i, s := range wide {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(s))
	}
	return Frame{
		Encoding:   EncodingPCM16,
		SampleRate: AIRate,
		Channels:   1,
		Leg:        f.Leg,
		Seq:        f.Seq,
		Timestamp:  f.Timestamp,
		Payload:    payload,
	}, nil
}

func (t *G711Transcoder) ToTelephony(f Frame) (Frame, error) {
	if f.Encoding != EncodingPCM16 {
		return Frame{}, fmt.Errorf("transcoding to telephony: unexpected encoding %s", f.Encoding)
	}
	if len(f.Payload)%2 != 0 {
		return Frame{}, fmt.Errorf("transcoding to telephony: odd pcm16 payload length %d", len(f.Payload))
	}
	wide := make([]int16, len(f.Payload)/2)
	for i := range wide {
		wide[i] = int16(binary.LittleEndian.Uint16(f.Payload[i*2:]))
	}
	narrow := Downsample24to8(wide)

	var payload []byte
	if t.ALaw {
		payload = EncodeALaw(narrow)
	} else {
		payload = EncodeULaw(narrow)
	}
	return Frame{
		Encoding:   t.telephonyEncoding(),
		SampleRate: TelephonyRate,
		Channels:   1,
		Leg:        f.Leg,
		Seq:        f.Seq,
		Timestamp:  f.Timestamp,
		Payload:    payload,
	}, nil
}

// Transcoders are registered per telephony codec name so the bridge can be
// assembled for whatever format a provider negotiates, rather than
// hardcoding one codec path.
var (
	registryMu sync.RWMutex
	registry   = map[string]Transcoder{}
)

// RegisterTranscoder makes a transcoder available under its codec name.
// Registering the same name twice replaces the earlier entry.
func RegisterTranscoder(t Transcoder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[t.Name()] = t
}

// LookupTranscoder returns the transcoder for a codec name.
func LookupTranscoder(name string) (Transcoder, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	t, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no transcoder registered for codec %q", name)
	}
	return t, nil
}

// RegisteredCodecs lists the codec names with a registered transcoder.
func RegisteredCodecs() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterTranscoder(&G711Transcoder{})
	RegisterTranscoder(&G711Transcoder{ALaw: true})
}
