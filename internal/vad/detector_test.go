package vad

import (
	"log/slog"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/internal/audio"
)

func testConfig() Config {
	return Config{
		SpeechThreshold:  1000,
		SilenceThreshold: 500,
		SustainedSpeech:  300 * time.Millisecond,
		ResumeDelay:      1500 * time.Millisecond,
	}
}

// loudFrame is 20ms of constant-amplitude caller speech, well above the
// speech threshold.
func loudFrame(seq uint64) audio.Frame {
	samples := make([]int16, 160)
	for i := range samples {
		samples[i] = 8000
	}
	return audio.Frame{
		Encoding:   audio.EncodingULaw,
		SampleRate: audio.TelephonyRate,
		Channels:   1,
		Leg:        audio.LegCaller,
		Seq:        seq,
		Timestamp:  time.Now(),
		Payload:    audio.EncodeULaw(samples),
	}
}

// quietFrame is 20ms of u-law silence.
func quietFrame(seq uint64) audio.Frame {
	payload := make([]byte, 160)
	for i := range payload {
		payload[i] = 0xFF
	}
	return audio.Frame{
		Encoding:   audio.EncodingULaw,
		SampleRate: audio.TelephonyRate,
		Channels:   1,
		Leg:        audio.LegCaller,
		Seq:        seq,
		Timestamp:  time.Now(),
		Payload:    payload,
	}
}

func drainSignal(d *Detector) (Signal, bool) {
	select {
	case s := <-d.Signals():
		return s, true
	default:
		return 0, false
	}
}

// 200ms of caller speech during an assistant turn is below the sustained
// threshold and must not trigger suppression.
func TestShortBurstDoesNotInterrupt(t *testing.T) {
	d := New(testConfig(), slog.Default())
	d.AISpeakingStarted()

	seq := uint64(1)
	for i := 0; i < 10; i++ { // 10 × 20ms = 200ms
		d.Observe(loudFrame(seq))
		seq++
	}
	for i := 0; i < 5; i++ {
		d.Observe(quietFrame(seq))
		seq++
	}

	if s, ok := drainSignal(d); ok {
		t.Fatalf("unexpected signal %v for a 200ms burst", s)
	}
	if got := d.State(); got != StateAISpeaking {
		t.Errorf("state = %v, want ai_speaking", got)
	}
}

// 400ms of caller speech must interrupt, and the interrupt must fire within
// 300ms of speech onset (i.e. before the burst even ends).
func TestSustainedSpeechInterrupts(t *testing.T) {
	d := New(testConfig(), slog.Default())
	d.AISpeakingStarted()

	var interruptAt time.Duration = -1
	seq := uint64(1)
	for i := 0; i < 20; i++ { // 20 × 20ms = 400ms
		d.Observe(loudFrame(seq))
		seq++
		if interruptAt < 0 {
			if s, ok := drainSignal(d); ok {
				if s != SignalInterrupt {
					t.Fatalf("got signal %v, want interrupt", s)
				}
				interruptAt = time.Duration(i+1) * 20 * time.Millisecond
			}
		}
	}

	if interruptAt < 0 {
		t.Fatal("no interrupt after 400ms of sustained speech")
	}
	// One extra frame of slack for the energy estimate to settle.
	if interruptAt > 320*time.Millisecond {
		t.Errorf("interrupt fired at %v, want within 300ms of onset", interruptAt)
	}
	if got := d.State(); got != StateHumanDetected {
		t.Errorf("state = %v, want human_detected", got)
	}
}

func TestInterruptFiresOncePerTurn(t *testing.T) {
	d := New(testConfig(), slog.Default())
	d.AISpeakingStarted()

	seq := uint64(1)
	for i := 0; i < 40; i++ {
		d.Observe(loudFrame(seq))
		seq++
	}

	count := 0
	for {
		if _, ok := drainSignal(d); !ok {
			break
		}
		count++
	}
	if count != 1 {
		t.Errorf("got %d interrupt signals, want exactly 1", count)
	}
}

func TestResumeAfterCallerGoesQuiet(t *testing.T) {
	d := New(testConfig(), slog.Default())
	d.AISpeakingStarted()

	seq := uint64(1)
	for i := 0; i < 20; i++ {
		d.Observe(loudFrame(seq))
		seq++
	}
	if s, ok := drainSignal(d); !ok || s != SignalInterrupt {
		t.Fatal("expected an interrupt first")
	}
	d.MarkSuppressed()
	if got := d.State(); got != StateSuppressed {
		t.Fatalf("state = %v, want suppressed", got)
	}

	// 1500ms resume delay plus slack for the energy estimate to decay.
	for i := 0; i < 90; i++ {
		d.Observe(quietFrame(seq))
		seq++
	}

	if s, ok := drainSignal(d); !ok || s != SignalResume {
		t.Fatalf("expected resume signal, got (%v, %v)", s, ok)
	}
	if got := d.State(); got != StateListening {
		t.Errorf("state = %v, want listening", got)
	}
}

func TestAssistantFramesIgnored(t *testing.T) {
	d := New(testConfig(), slog.Default())
	d.AISpeakingStarted()

	f := loudFrame(1)
	f.Leg = audio.LegAssistant
	for i := 0; i < 30; i++ {
		d.Observe(f)
	}
	if _, ok := drainSignal(d); ok {
		t.Error("assistant-leg frames triggered barge-in")
	}
}

func TestNormalTurnEndReturnsToListening(t *testing.T) {
	d := New(testConfig(), slog.Default())
	d.AISpeakingStarted()
	d.AISpeakingStopped()
	if got := d.State(); got != StateListening {
		t.Errorf("state = %v, want listening", got)
	}
}
