package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/internal/audio"
)

// streamMessage is the provider's media-stream wire format. Audio rides in
// base64 u-law chunks with a per-stream sequence number.
type streamMessage struct {
	Event string        `json:"event"` // "start", "media", "stop"
	Start *streamStart  `json:"start,omitempty"`
	Media *mediaPayload `json:"media,omitempty"`
}

type streamStart struct {
	CallID     string `json:"call_id"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type mediaPayload struct {
	Chunk   uint64 `json:"chunk"`
	Payload string `json:"payload"`
}

// MediaStream is one provider media websocket, the telephony leg of a call.
// Inbound caller audio is decoded onto In(); outbound assistant audio is
// consumed from the channel given to StartWriter and encoded back to the
// provider.
type MediaStream struct {
	conn   *websocket.Conn
	callID string
	logger *slog.Logger

	in      chan audio.Frame
	writeMu sync.Mutex

	outSeq atomic.Uint64

	closed    atomic.Bool
	closeOnce sync.Once
	readDone  chan struct{}
	writeDone chan struct{}
}

// Accept wraps an upgraded provider websocket. It consumes the stream's
// initial "start" message and validates the call id matches the URL route.
func Accept(conn *websocket.Conn, callID string, logger *slog.Logger) (*MediaStream, error) {
	var start streamMessage
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	if err := conn.ReadJSON(&start); err != nil {
		return nil, fmt.Errorf("reading stream start: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	if start.Event != "start" || start.Start == nil {
		return nil, fmt.Errorf("expected start message, got %q", start.Event)
	}
	if start.Start.CallID != callID {
		return nil, fmt.Errorf("stream call id %q does not match route %q", start.Start.CallID, callID)
	}

	return &MediaStream{
		conn:      conn,
		callID:    callID,
		logger:    logger.With("subsystem", "media-stream", "call_id", callID),
		in:        make(chan audio.Frame, 64),
		readDone:  make(chan struct{}),
		writeDone: make(chan struct{}),
	}, nil
}

// CallID returns the provider call identifier for this stream.
func (s *MediaStream) CallID() string {
	return s.callID
}

// In delivers decoded caller frames. The channel closes when the provider
// disconnects or Close is called.
func (s *MediaStream) In() <-chan audio.Frame {
	return s.in
}

// Start launches the read loop. Call once, after wiring In() downstream.
func (s *MediaStream) Start() {
	go s.readLoop()
}

// StartWriter launches the write loop consuming assistant audio (u-law
// telephony frames) from out. The loop exits when out is closed.
func (s *MediaStream) StartWriter(out <-chan audio.Frame) {
	go s.writeLoop(out)
}

func (s *MediaStream) readLoop() {
	defer close(s.readDone)
	defer close(s.in)

	var seq uint64
	for {
		var msg streamMessage
		if err := s.conn.ReadJSON(&msg); err != nil {
			if !s.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Debug("media stream read ended", "error", err)
			}
			return
		}

		switch msg.Event {
		case "media":
			if msg.Media == nil {
				continue
			}
			payload, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
			if err != nil {
				s.logger.Warn("undecodable media payload", "error", err)
				continue
			}
			if msg.Media.Chunk != 0 {
				seq = msg.Media.Chunk
			} else {
				seq++
			}
			frame := audio.Frame{
				Encoding:   audio.EncodingULaw,
				SampleRate: audio.TelephonyRate,
				Channels:   1,
				Leg:        audio.LegCaller,
				Seq:        seq,
				Timestamp:  time.Now(),
				Payload:    payload,
			}
			select {
			case s.in <- frame:
			default:
				// The bridge is not draining; shedding is safer than
				// building unbounded latency into a live call.
				s.logger.Warn("inbound frame dropped, bridge backlogged", "seq", seq)
			}
		case "stop":
			s.logger.Info("provider ended media stream")
			return
		default:
			s.logger.Debug("ignoring stream event", "event", msg.Event)
		}
	}
}

func (s *MediaStream) writeLoop(out <-chan audio.Frame) {
	defer close(s.writeDone)

	for f := range out {
		if f.Encoding != audio.EncodingULaw && f.Encoding != audio.EncodingALaw {
			s.logger.Warn("dropping non-g711 outbound frame", "encoding", f.Encoding.String())
			continue
		}
		msg := streamMessage{
			Event: "media",
			Media: &mediaPayload{
				Chunk:   s.outSeq.Add(1),
				Payload: base64.StdEncoding.EncodeToString(f.Payload),
			},
		}
		if err := s.writeJSON(msg); err != nil {
			if !s.closed.Load() {
				s.logger.Debug("media stream write ended", "error", err)
			}
			// Drain the rest so the bridge never blocks on a dead leg.
			for range out {
			}
			return
		}
	}
}

// Clear asks the provider to discard assistant audio it has buffered for
// playback but not yet played. Sent on barge-in so suppression takes effect
// at the caller's ear, not just inside the bridge.
func (s *MediaStream) Clear() {
	if s.closed.Load() {
		return
	}
	if err := s.writeJSON(streamMessage{Event: "clear"}); err != nil {
		s.logger.Debug("clear message failed", "error", err)
	}
}

func (s *MediaStream) writeJSON(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// Close tears down the websocket. Safe to call more than once.
func (s *MediaStream) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.writeMu.Lock()
		_ = s.conn.WriteJSON(streamMessage{Event: "stop"})
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		s.writeMu.Unlock()
		_ = s.conn.Close()
	})
	<-s.readDone
}

// marshalStart is used by tests and outbound tooling to produce a valid
// start message for a call.
func marshalStart(callID string) ([]byte, error) {
	return json.Marshal(streamMessage{
		Event: "start",
		Start: &streamStart{CallID: callID, Encoding: "audio/x-mulaw", SampleRate: audio.TelephonyRate},
	})
}
