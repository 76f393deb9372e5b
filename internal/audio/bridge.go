package audio

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// FrameTap observes frames as they enter the bridge, before transcoding.
// The barge-in detector hangs off this to watch caller energy while the
// assistant is speaking. Observe must not block.
type FrameTap interface {
	Observe(f Frame)
}

// BridgeStats is a snapshot of the bridge's forwarding counters.
type BridgeStats struct {
	FramesCallerToAI uint64
	FramesAIToCaller uint64
	BytesCallerToAI  uint64
	BytesAIToCaller  uint64
	FramesDropped    uint64 // out-of-order sequence or transcode failure
	FramesSuppressed uint64 // assistant frames gated by barge-in
	SequenceGaps     uint64
}

// Bridge relays audio between the telephony leg and the AI leg, transcoding
// in both directions. Each direction runs in its own goroutine; the bridge
// holds no conversation state and the two directions never synchronize with
// each other.
//
// Ordering: frames carry a per-leg strictly increasing sequence number.
// A frame whose sequence is not greater than the last one seen on its leg
// is dropped and logged as a non-fatal gap, never reordered or replayed.
//
// Shutdown: when a leg's input channel closes, its pump drains what has
// already arrived, then closes the opposite leg's output channel so the
// consumer unblocks instead of waiting on a dead stream.
type Bridge struct {
	transcoder Transcoder
	logger     *slog.Logger

	callerIn <-chan Frame
	toAI     chan<- Frame
	aiIn     <-chan Frame
	// toCaller is held bidirectionally so Suppress can drain frames that
	// were queued before the gate closed.
	toCaller chan Frame

	tap     FrameTap
	flusher func()

	// suppressed gates the assistant→caller direction only.
	suppressed atomic.Bool

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	framesCallerToAI atomic.Uint64
	framesAIToCaller atomic.Uint64
	bytesCallerToAI  atomic.Uint64
	bytesAIToCaller  atomic.Uint64
	framesDropped    atomic.Uint64
	framesSuppressed atomic.Uint64
	sequenceGaps     atomic.Uint64
}

// NewBridge wires a bridge between the two legs. callerIn/aiIn are owned by
// the legs; toAI/toCaller are owned by the bridge and closed when the
// corresponding source direction ends.
func NewBridge(transcoder Transcoder, callerIn <-chan Frame, toAI chan<- Frame, aiIn <-chan Frame, toCaller chan Frame, logger *slog.Logger) *Bridge {
	return &Bridge{
		transcoder: transcoder,
		logger:     logger.With("subsystem", "media-bridge"),
		callerIn:   callerIn,
		toAI:       toAI,
		aiIn:       aiIn,
		toCaller:   toCaller,
		done:       make(chan struct{}),
	}
}

// SetTap attaches a frame observer. Must be called before Start.
func (b *Bridge) SetTap(tap FrameTap) {
	b.tap = tap
}

// SetFlusher attaches a callback asking the telephony leg to discard audio
// it has already buffered for playback. Invoked on Suppress. Must be called
// before Start.
func (b *Bridge) SetFlusher(flush func()) {
	b.flusher = flush
}

// Start launches both relay directions. Non-blocking.
func (b *Bridge) Start() {
	b.wg.Add(2)
	go b.pump("caller→ai", b.callerIn, b.toAI, b.transcoder.ToAI, false)
	go b.pump("ai→caller", b.aiIn, b.toCaller, b.transcoder.ToTelephony, true)
	b.logger.Debug("bridge started", "codec", b.transcoder.Name())
}

// Stop signals both pumps to exit and waits for them. Output channels are
// closed by the pumps themselves.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
	b.wg.Wait()
	stats := b.Stats()
	b.logger.Info("bridge stopped",
		"frames_caller_to_ai", stats.FramesCallerToAI,
		"frames_ai_to_caller", stats.FramesAIToCaller,
		"frames_dropped", stats.FramesDropped,
		"frames_suppressed", stats.FramesSuppressed,
		"sequence_gaps", stats.SequenceGaps,
	)
}

// Suppress stops forwarding assistant audio to the caller leg. Frames
// arriving while suppressed are counted and discarded, never queued, and
// frames already queued on the caller leg are drained so nothing spoken
// before the interrupt keeps playing after it.
func (b *Bridge) Suppress() {
	if b.suppressed.Swap(true) {
		return
	}
	drained := 0
drain:
	for {
		select {
		case _, ok := <-b.toCaller:
			if !ok {
				break drain
			}
			drained++
		default:
			break drain
		}
	}
	if drained > 0 {
		b.framesSuppressed.Add(uint64(drained))
	}
	if b.flusher != nil {
		b.flusher()
	}
	b.logger.Debug("assistant audio suppressed", "drained", drained)
}

// Resume re-enables assistant audio forwarding.
func (b *Bridge) Resume() {
	if b.suppressed.Swap(false) {
		b.logger.Debug("assistant audio resumed")
	}
}

// Suppressed reports whether assistant audio is currently gated.
func (b *Bridge) Suppressed() bool {
	return b.suppressed.Load()
}

// Stats returns a snapshot of the forwarding counters.
func (b *Bridge) Stats() BridgeStats {
	return BridgeStats{
		FramesCallerToAI: b.framesCallerToAI.Load(),
		FramesAIToCaller: b.framesAIToCaller.Load(),
		BytesCallerToAI:  b.bytesCallerToAI.Load(),
		BytesAIToCaller:  b.bytesAIToCaller.Load(),
		FramesDropped:    b.framesDropped.Load(),
		FramesSuppressed: b.framesSuppressed.Load(),
		SequenceGaps:     b.sequenceGaps.Load(),
	}
}

func (b *Bridge) pump(direction string, src <-chan Frame, dst chan<- Frame, convert func(Frame) (Frame, error), gated bool) {
	defer b.wg.Done()
	defer close(dst)

	var lastSeq uint64
	seen := false

	for {
		var f Frame
		var ok bool
		select {
		case <-b.done:
			return
		case f, ok = <-src:
			if !ok {
				b.logger.Debug("source leg closed", "direction", direction)
				return
			}
		}

		if seen && f.Seq <= lastSeq {
			b.framesDropped.Add(1)
			b.sequenceGaps.Add(1)
			b.logger.Warn("out-of-order frame dropped",
				"direction", direction,
				"seq", f.Seq,
				"last_seq", lastSeq,
			)
			continue
		}
		if seen && f.Seq != lastSeq+1 {
			// Forward gap: upstream lost frames. Non-fatal, keep relaying.
			b.sequenceGaps.Add(1)
			b.logger.Debug("sequence gap",
				"direction", direction,
				"seq", f.Seq,
				"last_seq", lastSeq,
			)
		}
		lastSeq = f.Seq
		seen = true

		if b.tap != nil {
			b.tap.Observe(f)
		}

		if gated && b.suppressed.Load() {
			b.framesSuppressed.Add(1)
			continue
		}

		out, err := convert(f)
		if err != nil {
			b.framesDropped.Add(1)
			b.logger.Warn("transcode failed",
				"direction", direction,
				"seq", f.Seq,
				"error", err,
			)
			continue
		}

		select {
		case <-b.done:
			return
		case dst <- out:
		}

		if gated {
			b.framesAIToCaller.Add(1)
			b.bytesAIToCaller.Add(uint64(len(out.Payload)))
		} else {
			b.framesCallerToAI.Add(1)
			b.bytesCallerToAI.Add(uint64(len(out.Payload)))
		}
	}
}
