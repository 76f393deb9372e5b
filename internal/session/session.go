// Package session drives one call's conversation lifecycle: greeting the
// caller, alternating listening and response turns with the AI leg,
// executing model function calls, and tearing the call down exactly once.
package session

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/voxbridge/voxbridge/internal/ai"
	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/dispatch"
	"github.com/voxbridge/voxbridge/internal/telephony"
	"github.com/voxbridge/voxbridge/internal/transcript"
	"github.com/voxbridge/voxbridge/internal/vad"
)

// State is the session lifecycle state.
type State int32

const (
	StateInitiated State = iota
	StateGreeting
	StateListening
	StateThinking
	StateResponding
	StateFunctionPending
	StateTransferring
	StateEnding
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StateGreeting:
		return "greeting"
	case StateListening:
		return "listening"
	case StateThinking:
		return "thinking"
	case StateResponding:
		return "responding"
	case StateFunctionPending:
		return "function_pending"
	case StateTransferring:
		return "transferring"
	case StateEnding:
		return "ending"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Call outcomes recorded at termination.
const (
	OutcomeCompleted      = "completed"
	OutcomeCallerHangup   = "caller_hangup"
	OutcomeTransferred    = "transferred"
	OutcomeAIDisconnected = "ai_disconnected"
	OutcomeFailed         = "failed"
)

// Config holds the per-session tunables. Zero values take defaults.
type Config struct {
	Greeting        string
	FallbackPhrase  string
	ClosingPhrase   string
	ThinkingTimeout time.Duration
	MaxModelRetries int
	MaxTurns        int
	MaxCallDuration time.Duration
	TransferNumber  string
}

func (c *Config) withDefaults() {
	if c.ThinkingTimeout == 0 {
		c.ThinkingTimeout = 10 * time.Second
	}
	if c.MaxModelRetries == 0 {
		c.MaxModelRetries = 2
	}
	if c.FallbackPhrase == "" {
		c.FallbackPhrase = "Sorry, give me just a moment."
	}
	if c.ClosingPhrase == "" {
		c.ClosingPhrase = "Thanks for calling. Goodbye!"
	}
	if c.MaxTurns == 0 {
		c.MaxTurns = 40
	}
	if c.MaxCallDuration == 0 {
		c.MaxCallDuration = 10 * time.Minute
	}
}

// Info identifies the call the session is handling.
type Info struct {
	CallID    string
	OrgID     int64
	From      string
	To        string
	Direction string
}

// CallControl is the telephony provider's call-manipulation surface.
type CallControl interface {
	Transfer(ctx context.Context, callID, target string) error
	Hangup(ctx context.Context, callID string) error
}

// audioGate is the media-path suppression control (the bridge).
type audioGate interface {
	Suppress()
	Resume()
}

// speechMonitor is the barge-in detector surface the session drives.
type speechMonitor interface {
	AISpeakingStarted()
	AISpeakingStopped()
	MarkSuppressed()
	Signals() <-chan vad.Signal
}

// Stats are the session's lifetime counters.
type Stats struct {
	Turns         int
	BargeIns      int
	Invocations   int
	FallbacksUsed int
	DroppedAudio  uint64
}

// Session is the per-call conversation driver. All state transitions
// happen on the Run goroutine; accessors use atomics.
type Session struct {
	info   Info
	cfg    Config
	logger *slog.Logger

	leg        ai.Leg
	gate       audioGate
	monitor    speechMonitor
	recorder   *transcript.Recorder
	dispatcher *dispatch.Dispatcher
	control    CallControl

	// aiAudio feeds synthesized assistant frames into the bridge.
	aiAudio chan<- audio.Frame
	// callerAudio delivers transcoded caller frames bound for the leg.
	callerAudio <-chan audio.Frame
	// status receives provider call-status callbacks.
	status chan telephony.StatusEvent

	state      atomic.Int32
	outcome    atomic.Value // string
	terminated bool

	turns            atomic.Int64
	bargeIns         atomic.Int64
	invocations      atomic.Int64
	fallbacks        int
	droppedAudio     atomic.Uint64
	startedAt        time.Time
	assistantPartial string
	aiSpeaking       bool
	done             chan struct{}
}

// New assembles a session. Run must be called exactly once.
func New(info Info, cfg Config, leg ai.Leg, gate audioGate, monitor speechMonitor,
	recorder *transcript.Recorder, dispatcher *dispatch.Dispatcher,
	control CallControl, aiAudio chan<- audio.Frame, callerAudio <-chan audio.Frame,
	logger *slog.Logger) *Session {
	cfg.withDefaults()
	s := &Session{
		info:        info,
		cfg:         cfg,
		logger:      logger.With("subsystem", "session", "call_id", info.CallID),
		leg:         leg,
		gate:        gate,
		monitor:     monitor,
		recorder:    recorder,
		dispatcher:  dispatcher,
		control:     control,
		aiAudio:     aiAudio,
		callerAudio: callerAudio,
		status:      make(chan telephony.StatusEvent, 4),
		startedAt:   time.Now(),
		done:        make(chan struct{}),
	}
	s.outcome.Store("")
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Outcome returns the recorded outcome, empty until termination.
func (s *Session) Outcome() string { return s.outcome.Load().(string) }

// Turns returns the completed caller turn count.
func (s *Session) Turns() int { return int(s.turns.Load()) }

// Done closes when the session has terminated.
func (s *Session) Done() <-chan struct{} { return s.done }

// Stats returns lifetime counters. Turn and fallback counts are exact only
// after Done().
func (s *Session) Stats() Stats {
	return Stats{
		Turns:         int(s.turns.Load()),
		BargeIns:      int(s.bargeIns.Load()),
		Invocations:   int(s.invocations.Load()),
		FallbacksUsed: s.fallbacks,
		DroppedAudio:  s.droppedAudio.Load(),
	}
}

// NotifyStatus delivers a provider call-status callback to the session.
func (s *Session) NotifyStatus(ev telephony.StatusEvent) {
	select {
	case s.status <- ev:
	case <-s.done:
	}
}

func (s *Session) setState(next State) {
	prev := State(s.state.Swap(int32(next)))
	if prev != next {
		s.logger.Debug("state transition", "from", prev.String(), "to", next.String())
	}
}

// Run drives the session until termination. It owns all state transitions.
func (s *Session) Run(ctx context.Context) {
	defer close(s.done)

	go s.pumpCallerAudio()

	s.setState(StateGreeting)
	if err := s.leg.Speak(s.cfg.Greeting); err != nil {
		s.logger.Error("greeting failed", "error", err)
		s.terminate(ctx, OutcomeFailed)
		return
	}

	thinking := time.NewTimer(s.cfg.ThinkingTimeout)
	stopTimer(thinking)
	defer stopTimer(thinking)

	callTimer := time.NewTimer(s.cfg.MaxCallDuration)
	defer callTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.terminate(ctx, OutcomeFailed)
			return

		case ev, ok := <-s.leg.Events():
			if !ok {
				s.finishDisconnected(ctx)
				return
			}
			if s.handleLegEvent(ctx, ev, thinking) {
				return
			}

		case sig := <-s.monitor.Signals():
			s.handleSignal(sig)

		case st := <-s.status:
			if st.Status == telephony.StatusCompleted || st.Status == telephony.StatusFailed {
				s.logger.Info("caller hung up", "status", string(st.Status))
				s.terminate(ctx, OutcomeCallerHangup)
				return
			}

		case <-thinking.C:
			if s.handleThinkingTimeout(ctx, thinking) {
				return
			}

		case <-callTimer.C:
			s.logger.Info("call duration limit reached")
			s.wrapUp()
		}
	}
}

// handleLegEvent processes one AI event; returns true when the session has
// terminated.
func (s *Session) handleLegEvent(ctx context.Context, ev ai.Event, thinking *time.Timer) bool {
	switch e := ev.(type) {
	case ai.SpeechStartedEvent:
		// Caller speech onset; the local detector handles barge-in.

	case ai.SpeechStoppedEvent:
		if s.State() == StateListening {
			s.turns.Add(1)
			s.setState(StateThinking)
			resetTimer(thinking, s.cfg.ThinkingTimeout)
		}

	case ai.TranscriptDeltaEvent:
		if e.Speaker == "assistant" {
			s.assistantPartial += e.Text
		}

	case ai.TranscriptFinalEvent:
		s.appendFinalTranscript(e)

	case ai.AudioDeltaEvent:
		s.handleAudioDelta(e, thinking)

	case ai.ResponseDoneEvent:
		return s.handleResponseDone(ctx)

	case ai.FunctionCallEvent:
		s.handleFunctionCall(ctx, e, thinking)

	case ai.SessionErrorEvent:
		s.logger.Warn("ai session error", "code", e.Code, "message", e.Message)
		if s.escalateOrRetry(ctx, thinking) {
			return true
		}

	case ai.ClosedEvent:
		s.finishDisconnected(ctx)
		return true
	}
	return false
}

func (s *Session) appendFinalTranscript(e ai.TranscriptFinalEvent) {
	speaker := transcript.SpeakerCaller
	if e.Speaker == "assistant" {
		if !s.aiSpeaking {
			// A late final for a turn that was cancelled or already closed
			// out; the truncated entry from the barge-in covers it.
			s.logger.Debug("discarding stray assistant transcript", "chars", len(e.Text))
			return
		}
		speaker = transcript.SpeakerAssistant
		s.assistantPartial = ""
	}
	if err := s.recorder.Append(transcript.Entry{
		Speaker:   speaker,
		Text:      e.Text,
		Timestamp: time.Now(),
	}); err != nil {
		s.logger.Warn("transcript append failed", "error", err)
	}
}

func (s *Session) handleAudioDelta(e ai.AudioDeltaEvent, thinking *time.Timer) {
	switch s.State() {
	case StateThinking, StateFunctionPending:
		stopTimer(thinking)
		s.setState(StateResponding)
	case StateGreeting, StateEnding, StateResponding:
		// Synthesized speech outside a model turn; keep state.
	default:
		// Late audio after cancel; forward anyway, the gate discards it.
	}
	if !s.aiSpeaking {
		s.aiSpeaking = true
		s.monitor.AISpeakingStarted()
	}

	f := audio.Frame{
		Encoding:   audio.EncodingPCM16,
		SampleRate: audio.AIRate,
		Channels:   1,
		Leg:        audio.LegAssistant,
		Seq:        e.Seq,
		Timestamp:  time.Now(),
		Payload:    e.Data,
	}
	select {
	case s.aiAudio <- f:
	default:
		s.droppedAudio.Add(1)
	}
}

func (s *Session) handleResponseDone(ctx context.Context) bool {
	s.aiSpeaking = false
	s.monitor.AISpeakingStopped()
	switch s.State() {
	case StateEnding:
		s.terminate(ctx, OutcomeCompleted)
		return true
	case StateGreeting, StateResponding:
		s.enterListening()
	}
	return false
}

func (s *Session) handleFunctionCall(ctx context.Context, e ai.FunctionCallEvent, thinking *time.Timer) {
	s.setState(StateFunctionPending)
	s.invocations.Add(1)

	res := s.dispatcher.Dispatch(ctx, dispatch.Invocation{
		ID:        e.ID,
		Name:      e.Name,
		Args:      e.Args,
		Timestamp: time.Now(),
	})
	if err := s.leg.SendFunctionResult(res); err != nil {
		s.logger.Error("sending function result failed", "error", err)
	}

	if res.Transfer != nil {
		s.doTransfer(ctx, res.Transfer)
		return
	}
	// The model speaks next; hold in function_pending until audio arrives.
	resetTimer(thinking, s.cfg.ThinkingTimeout)
}

func (s *Session) doTransfer(ctx context.Context, req *dispatch.TransferRequest) {
	target := req.Target
	if target == "" {
		target = s.cfg.TransferNumber
	}
	if target == "" {
		s.logger.Warn("transfer requested with no target configured")
		s.speakAndListen("I'm sorry, I can't transfer you right now.")
		return
	}

	s.setState(StateTransferring)
	s.logger.Info("transferring call", "target", target, "reason", req.Reason)
	if err := s.control.Transfer(ctx, s.info.CallID, target); err != nil {
		s.logger.Error("transfer failed", "error", err)
		s.speakAndListen("I'm sorry, I couldn't complete the transfer.")
		return
	}
	s.terminate(ctx, OutcomeTransferred)
}

func (s *Session) speakAndListen(text string) {
	if err := s.leg.Speak(text); err != nil {
		s.logger.Error("speak failed", "error", err)
	}
	s.setState(StateResponding)
}

func (s *Session) handleThinkingTimeout(ctx context.Context, thinking *time.Timer) bool {
	st := s.State()
	if st != StateThinking && st != StateFunctionPending {
		return false
	}
	s.logger.Warn("model response timed out", "state", st.String())
	return s.escalateOrRetry(ctx, thinking)
}

// escalateOrRetry speaks the fallback phrase for a slow or failed model
// turn, escalating to a human transfer once retries are spent. Returns true
// when the session has terminated.
func (s *Session) escalateOrRetry(ctx context.Context, thinking *time.Timer) bool {
	s.fallbacks++
	if s.fallbacks > s.cfg.MaxModelRetries {
		if s.cfg.TransferNumber != "" {
			s.doTransfer(ctx, &dispatch.TransferRequest{Reason: "assistant unavailable"})
			return s.State() == StateTerminated
		}
		s.wrapUp()
		return false
	}
	stopTimer(thinking)
	s.speakAndListen(s.cfg.FallbackPhrase)
	return false
}

// enterListening returns to listening unless a conversation limit has been
// reached, in which case the closing line is spoken and the session ends
// after it finishes playing.
func (s *Session) enterListening() {
	if int(s.turns.Load()) >= s.cfg.MaxTurns {
		s.logger.Info("turn limit reached", "turns", s.turns.Load())
		s.wrapUp()
		return
	}
	if time.Since(s.startedAt) >= s.cfg.MaxCallDuration {
		s.logger.Info("duration limit reached")
		s.wrapUp()
		return
	}
	s.setState(StateListening)
}

func (s *Session) wrapUp() {
	if s.State() == StateEnding || s.State() == StateTerminated {
		return
	}
	s.setState(StateEnding)
	if err := s.leg.Speak(s.cfg.ClosingPhrase); err != nil {
		s.logger.Error("closing phrase failed", "error", err)
	}
}

func (s *Session) handleSignal(sig vad.Signal) {
	switch sig {
	case vad.SignalInterrupt:
		// Never in ending: a caller talking over the closing phrase must
		// not revive a session a limit already decided to finish.
		st := s.State()
		if st != StateResponding && st != StateGreeting {
			return
		}
		s.bargeIns.Add(1)
		s.logger.Info("barge-in detected", "state", st.String())
		s.gate.Suppress()
		if err := s.leg.CancelResponse(); err != nil {
			s.logger.Warn("cancel response failed", "error", err)
		}
		s.monitor.MarkSuppressed()
		s.aiSpeaking = false
		if s.assistantPartial != "" {
			if err := s.recorder.AppendTruncated(s.assistantPartial, time.Now()); err != nil {
				s.logger.Warn("truncated append failed", "error", err)
			}
			s.assistantPartial = ""
		}
		s.setState(StateListening)

	case vad.SignalResume:
		s.gate.Resume()
	}
}

func (s *Session) finishDisconnected(ctx context.Context) {
	if s.State() == StateEnding {
		s.terminate(ctx, OutcomeCompleted)
		return
	}
	s.terminate(ctx, OutcomeAIDisconnected)
}

// terminate runs the teardown sequence once: close the AI leg, hang up the
// provider call, finalize the transcript.
func (s *Session) terminate(ctx context.Context, outcome string) {
	if s.terminated {
		return
	}
	s.terminated = true
	s.outcome.Store(outcome)
	s.setState(StateTerminated)

	if err := s.leg.Close(); err != nil {
		s.logger.Debug("closing ai leg", "error", err)
	}
	if outcome != OutcomeCallerHangup {
		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.control.Hangup(hctx, s.info.CallID); err != nil {
			s.logger.Warn("hangup failed", "error", err)
		}
		cancel()
	}

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.recorder.Finalize(fctx); err != nil {
		s.logger.Error("finalizing transcript failed", "error", err)
	}

	s.logger.Info("session terminated", "outcome", outcome,
		"turns", s.turns.Load(), "barge_ins", s.bargeIns.Load(),
		"duration", time.Since(s.startedAt).Round(time.Second))
}

// pumpCallerAudio forwards transcoded caller frames to the AI leg until the
// bridge closes the channel or the session ends.
func (s *Session) pumpCallerAudio() {
	for {
		select {
		case f, ok := <-s.callerAudio:
			if !ok {
				return
			}
			if err := s.leg.SendAudio(f); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
