// Package ai implements the streaming leg to the conversational AI
// service: a duplex websocket accepting caller audio and emitting a tagged
// event stream of transcripts, audio deltas, and function-call requests.
package ai

import "encoding/json"

// Event is one tagged event from the AI leg. The session consumes these in
// arrival order from Leg.Events().
type Event interface {
	eventType() string
}

// SpeechStartedEvent: the service detected the caller starting to speak.
type SpeechStartedEvent struct{}

func (SpeechStartedEvent) eventType() string { return "speech_started" }

// SpeechStoppedEvent: the service detected end of caller speech. This is
// what moves the session from listening to thinking; end-of-speech
// detection is delegated entirely to the AI leg.
type SpeechStoppedEvent struct{}

func (SpeechStoppedEvent) eventType() string { return "speech_stopped" }

// TranscriptDeltaEvent carries partial transcript text for a turn in
// progress.
type TranscriptDeltaEvent struct {
	Speaker string
	Text    string
}

func (TranscriptDeltaEvent) eventType() string { return "transcript_delta" }

// TranscriptFinalEvent carries the committed text of a completed turn.
type TranscriptFinalEvent struct {
	Speaker string
	Text    string
}

func (TranscriptFinalEvent) eventType() string { return "transcript_final" }

// AudioDeltaEvent carries a chunk of synthesized assistant audio
// (PCM16 LE, 24 kHz mono). Seq increases strictly within a session.
type AudioDeltaEvent struct {
	Seq  uint64
	Data []byte
}

func (AudioDeltaEvent) eventType() string { return "audio_delta" }

// FunctionCallEvent: the model requests a function invocation. The session
// must answer with SendFunctionResult before the conversation advances.
type FunctionCallEvent struct {
	ID   string
	Name string
	Args json.RawMessage
}

func (FunctionCallEvent) eventType() string { return "function_call" }

// ResponseDoneEvent: the current assistant response finished streaming.
type ResponseDoneEvent struct{}

func (ResponseDoneEvent) eventType() string { return "response_done" }

// SessionErrorEvent: the service reported a fatal session error.
type SessionErrorEvent struct {
	Code    string
	Message string
}

func (SessionErrorEvent) eventType() string { return "session_error" }

// ClosedEvent is synthesized locally when the websocket closes; it is
// always the last event on the channel before it is closed.
type ClosedEvent struct {
	Err error
}

func (ClosedEvent) eventType() string { return "closed" }
