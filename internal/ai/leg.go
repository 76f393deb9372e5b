package ai

import (
	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/dispatch"
)

// Leg is the session's view of the AI streaming service. One Leg exists per
// call; it is not shared across sessions.
type Leg interface {
	// SendAudio forwards one caller audio frame (PCM16 24 kHz) upstream.
	SendAudio(f audio.Frame) error
	// Speak asks the service to synthesize and stream a specific utterance
	// (greeting, fallback, closing line) without model inference.
	Speak(text string) error
	// SendFunctionResult injects a function result into the model context.
	SendFunctionResult(res dispatch.Result) error
	// CancelResponse aborts the in-flight assistant response (barge-in).
	CancelResponse() error
	// Events delivers the tagged event stream in arrival order. The channel
	// closes after a final ClosedEvent.
	Events() <-chan Event
	// Close tears the leg down. Safe to call more than once.
	Close() error
}
