// Package vad implements caller voice-activity detection for barge-in.
//
// While the assistant is speaking, the detector watches the energy of the
// caller leg's audio. Sustained caller speech interrupts the assistant:
// the detector signals the session, which suppresses outbound assistant
// audio and cancels the in-flight response. Short bursts (coughs, clicks,
// line noise) below the sustained-speech duration are debounced away.
package vad

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/audio"
)

// State is the barge-in state for one session. It is transient and never
// persisted.
type State int

const (
	// StateListening: the assistant is not speaking; nothing to suppress.
	StateListening State = iota
	// StateAISpeaking: assistant audio is streaming to the caller and the
	// detector is watching for interruption.
	StateAISpeaking
	// StateHumanDetected: sustained caller speech was detected during
	// assistant output. Assistant audio must not reach the caller for the
	// remainder of the turn.
	StateHumanDetected
	// StateSuppressed: the interrupted turn is cancelled and the detector
	// is waiting for the caller to go quiet before declaring Listening.
	StateSuppressed
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "listening"
	case StateAISpeaking:
		return "ai_speaking"
	case StateHumanDetected:
		return "human_detected"
	case StateSuppressed:
		return "suppressed"
	default:
		return "unknown"
	}
}

// Signal is emitted to the session when the detector changes its verdict.
type Signal int

const (
	// SignalInterrupt: the caller barged in; suppress assistant audio and
	// cancel the current response. Emitted at most once per assistant turn.
	SignalInterrupt Signal = iota
	// SignalResume: the caller has been quiet for the resume delay after a
	// barge-in; normal turn-taking may continue.
	SignalResume
)

// Config holds the tuning constants. These are deployment-tunable, so they
// come from runtime configuration rather than being baked in.
type Config struct {
	// SpeechThreshold is the smoothed RMS level (0..32767) above which the
	// caller is considered to be speaking.
	SpeechThreshold float64
	// SilenceThreshold is the smoothed RMS level below which the caller is
	// considered quiet. Kept lower than SpeechThreshold for hysteresis.
	SilenceThreshold float64
	// SustainedSpeech is how long caller speech must persist before a
	// barge-in is declared.
	SustainedSpeech time.Duration
	// ResumeDelay is how long the caller must stay quiet after a barge-in
	// before the detector returns to listening.
	ResumeDelay time.Duration
}

// Detector evaluates caller audio energy against the barge-in thresholds.
// It implements audio.FrameTap; assistant-leg frames are ignored.
//
// Time is driven by audio time (frame durations), not wall clock, so the
// detector behaves identically under test and under jittery delivery.
type Detector struct {
	cfg    Config
	logger *slog.Logger

	mu          sync.Mutex
	state       State
	energy      float64 // smoothed RMS estimate
	speechRun   time.Duration
	silenceRun  time.Duration
	interrupted bool // an interrupt was already signalled this turn

	signals chan Signal
}

// energyAlpha is the smoothing factor for the rolling RMS estimate. Higher
// reacts faster; 0.5 settles within a few 20ms frames.
const energyAlpha = 0.5

// New creates a detector in the listening state.
func New(cfg Config, logger *slog.Logger) *Detector {
	return &Detector{
		cfg:     cfg,
		logger:  logger.With("subsystem", "barge-in"),
		state:   StateListening,
		signals: make(chan Signal, 4),
	}
}

// Signals delivers barge-in verdicts to the session. The channel is
// buffered; the detector never blocks on it.
func (d *Detector) Signals() <-chan Signal {
	return d.signals
}

// State returns the current barge-in state.
func (d *Detector) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// AISpeakingStarted marks the beginning of an assistant turn. Energy
// accumulators reset so speech from a previous turn cannot carry over.
func (d *Detector) AISpeakingStarted() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = StateAISpeaking
	d.speechRun = 0
	d.silenceRun = 0
	d.interrupted = false
}

// AISpeakingStopped marks a normal (uninterrupted) end of an assistant turn.
// No-op if a barge-in already moved the detector out of AISpeaking.
func (d *Detector) AISpeakingStopped() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateAISpeaking {
		d.state = StateListening
	}
}

// MarkSuppressed acknowledges that the session has gated assistant audio
// and cancelled the interrupted response. HumanDetected → Suppressed.
func (d *Detector) MarkSuppressed() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateHumanDetected {
		d.state = StateSuppressed
	}
}

// Observe consumes one caller-leg frame. Called from the bridge's relay
// goroutine; must stay cheap and non-blocking.
func (d *Detector) Observe(f audio.Frame) {
	if f.Leg != audio.LegCaller {
		return
	}
	rms := frameRMS(f)
	dur := f.Duration()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.energy = energyAlpha*rms + (1-energyAlpha)*d.energy

	switch d.state {
	case StateAISpeaking:
		if d.energy >= d.cfg.SpeechThreshold {
			d.speechRun += dur
			if d.speechRun >= d.cfg.SustainedSpeech && !d.interrupted {
				d.state = StateHumanDetected
				d.interrupted = true
				d.logger.Info("barge-in detected",
					"energy", int(d.energy),
					"speech_run", d.speechRun,
				)
				d.emit(SignalInterrupt)
			}
		} else {
			d.speechRun = 0
		}
	case StateHumanDetected, StateSuppressed:
		if d.energy <= d.cfg.SilenceThreshold {
			d.silenceRun += dur
			if d.silenceRun >= d.cfg.ResumeDelay {
				d.state = StateListening
				d.silenceRun = 0
				d.logger.Debug("caller quiet, resuming")
				d.emit(SignalResume)
			}
		} else {
			d.silenceRun = 0
		}
	}
}

// emit delivers a signal without blocking. Caller holds d.mu.
func (d *Detector) emit(s Signal) {
	select {
	case d.signals <- s:
	default:
		d.logger.Warn("barge-in signal dropped, consumer not keeping up", "signal", s)
	}
}

// frameRMS computes the root-mean-square level of a frame's samples.
func frameRMS(f audio.Frame) float64 {
	var samples []int16
	switch f.Encoding {
	case audio.EncodingULaw:
		samples = audio.DecodeULaw(f.Payload)
	case audio.EncodingALaw:
		samples = audio.DecodeALaw(f.Payload)
	default:
		return 0
	}
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}
