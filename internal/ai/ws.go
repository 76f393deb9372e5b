package ai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/dispatch"
)

const defaultConnectTimeout = 15 * time.Second

// SessionConfig is the per-call configuration sent in the hello message.
type SessionConfig struct {
	CallID       string
	Model        string
	VoiceID      string
	SystemPrompt string
	Functions    []dispatch.FunctionSchema
}

// WSLeg is the websocket implementation of Leg.
type WSLeg struct {
	conn   *websocket.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	events  chan Event

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// Dial connects to the AI realtime endpoint and sends the session hello
// carrying the persona, voice, and function schemas.
func Dial(ctx context.Context, endpoint, apiKey string, cfg SessionConfig, logger *slog.Logger) (*WSLeg, error) {
	dialCtx, cancel := context.WithTimeout(ctx, defaultConnectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)

	conn, resp, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing ai leg: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing ai leg: %w", err)
	}

	l := &WSLeg{
		conn:   conn,
		logger: logger.With("subsystem", "ai-leg", "call_id", cfg.CallID),
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}

	hello := map[string]any{
		"type":          "session.start",
		"call_id":       cfg.CallID,
		"model":         cfg.Model,
		"voice":         cfg.VoiceID,
		"instructions":  cfg.SystemPrompt,
		"functions":     cfg.Functions,
		"input_format":  "pcm16/24000",
		"output_format": "pcm16/24000",
	}
	if err := l.sendJSON(hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sending session start: %w", err)
	}

	go l.readLoop()
	l.logger.Info("ai leg connected", "model", cfg.Model, "voice", cfg.VoiceID)
	return l, nil
}

func (l *WSLeg) Events() <-chan Event {
	return l.events
}

func (l *WSLeg) SendAudio(f audio.Frame) error {
	if f.Encoding != audio.EncodingPCM16 {
		return fmt.Errorf("ai leg wants pcm16 frames, got %s", f.Encoding)
	}
	return l.sendJSON(map[string]any{
		"type":  "input_audio.append",
		"seq":   f.Seq,
		"audio": base64.StdEncoding.EncodeToString(f.Payload),
	})
}

func (l *WSLeg) Speak(text string) error {
	return l.sendJSON(map[string]any{
		"type": "response.speak",
		"text": text,
	})
}

func (l *WSLeg) SendFunctionResult(res dispatch.Result) error {
	msg := map[string]any{
		"type":          "function_result",
		"invocation_id": res.InvocationID,
		"name":          res.Name,
		"ok":            res.OK,
	}
	if res.OK {
		msg["payload"] = res.Payload
	} else {
		msg["error_code"] = res.ErrorCode
		msg["error_message"] = res.ErrorMessage
	}
	return l.sendJSON(msg)
}

func (l *WSLeg) CancelResponse() error {
	return l.sendJSON(map[string]any{"type": "response.cancel"})
}

func (l *WSLeg) sendJSON(v any) error {
	if l.closed.Load() {
		return fmt.Errorf("ai leg is closed")
	}
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteJSON(v)
}

// Close tears down the websocket and waits for the read loop to exit.
func (l *WSLeg) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		l.writeMu.Lock()
		_ = l.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(2*time.Second))
		l.writeMu.Unlock()
		_ = l.conn.Close()
	})
	<-l.done
	return nil
}

func (l *WSLeg) readLoop() {
	defer close(l.done)
	defer close(l.events)

	var audioSeq uint64
	for {
		_, data, err := l.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || l.closed.Load() {
				l.emit(ClosedEvent{})
			} else {
				l.logger.Warn("ai leg read failed", "error", err)
				l.emit(ClosedEvent{Err: err})
			}
			return
		}

		event, err := decodeServerFrame(data, &audioSeq)
		if err != nil {
			l.logger.Warn("undecodable ai event", "error", err)
			continue
		}
		if event != nil {
			l.emit(event)
		}
	}
}

// emit delivers without blocking the read loop; the session's event buffer
// is generous, so drops indicate a stuck consumer and are logged.
func (l *WSLeg) emit(e Event) {
	select {
	case l.events <- e:
	default:
		l.logger.Warn("ai event dropped, consumer not keeping up", "event", e.eventType())
	}
}

func decodeServerFrame(data []byte, audioSeq *uint64) (Event, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decoding event envelope: %w", err)
	}

	switch envelope.Type {
	case "input_audio.speech_started":
		return SpeechStartedEvent{}, nil
	case "input_audio.speech_stopped":
		return SpeechStoppedEvent{}, nil
	case "transcript.delta":
		var msg struct {
			Speaker string `json:"speaker"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding transcript delta: %w", err)
		}
		return TranscriptDeltaEvent{Speaker: msg.Speaker, Text: msg.Text}, nil
	case "transcript.final":
		var msg struct {
			Speaker string `json:"speaker"`
			Text    string `json:"text"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding transcript final: %w", err)
		}
		return TranscriptFinalEvent{Speaker: msg.Speaker, Text: msg.Text}, nil
	case "response.audio.delta":
		var msg struct {
			Audio string `json:"audio"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding audio delta: %w", err)
		}
		payload, err := base64.StdEncoding.DecodeString(msg.Audio)
		if err != nil {
			return nil, fmt.Errorf("decoding audio payload: %w", err)
		}
		*audioSeq++
		return AudioDeltaEvent{Seq: *audioSeq, Data: payload}, nil
	case "response.function_call":
		var msg struct {
			ID        string          `json:"invocation_id"`
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding function call: %w", err)
		}
		return FunctionCallEvent{ID: msg.ID, Name: msg.Name, Args: msg.Arguments}, nil
	case "response.done":
		return ResponseDoneEvent{}, nil
	case "error":
		var msg struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("decoding error event: %w", err)
		}
		return SessionErrorEvent{Code: msg.Code, Message: msg.Message}, nil
	case "session.started", "ping":
		// Acknowledgements the session does not act on.
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown event type %q", envelope.Type)
	}
}
