// Package telephony implements the provider-facing side of the bridge:
// the webhook contract for call lifecycle notifications and the duplex
// media-stream websocket carrying the caller's audio.
package telephony

// Direction of a call from the platform's perspective.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status values delivered by the provider's call-status webhook.
type Status string

const (
	StatusRinging   Status = "ringing"
	StatusAnswered  Status = "answered"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Valid reports whether s is a status this bridge understands.
func (s Status) Valid() bool {
	switch s {
	case StatusRinging, StatusAnswered, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IncomingCall is the call-initiated webhook payload.
type IncomingCall struct {
	CallID    string    `json:"call_id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Direction Direction `json:"direction"`
	Codec     string    `json:"codec"` // provider codec name, e.g. "pcmu"
}

// StatusEvent is a call-status webhook payload, keyed by the same call id
// as the initiating webhook and the media stream.
type StatusEvent struct {
	CallID string `json:"call_id"`
	Status Status `json:"status"`
}
