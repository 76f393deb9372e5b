// Package transcript accumulates the ordered conversation record for one
// call and hands the finalized transcript to persistent storage exactly
// once at call end.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Speaker identifies who produced a transcript entry.
type Speaker string

const (
	SpeakerCaller    Speaker = "caller"
	SpeakerAssistant Speaker = "assistant"
)

// Entry is one conversational turn. Entries are immutable once appended.
type Entry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Sentiment string    `json:"sentiment,omitempty"`
	// Truncated marks an assistant turn cut short by barge-in. Text holds
	// only what was actually spoken before the cutoff.
	Truncated bool `json:"truncated,omitempty"`
}

// Transcript is the finalized record handed to storage.
type Transcript struct {
	CallID    string    `json:"call_id"`
	OrgID     int64     `json:"org_id"`
	Entries   []Entry   `json:"entries"`
	Summary   string    `json:"summary"`
	Sentiment string    `json:"sentiment"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Store receives the finalized transcript. Implemented by the persistence
// layer; the recorder calls it exactly once per call.
type Store interface {
	SaveTranscript(ctx context.Context, t *Transcript) error
}

// ErrFinalized is returned when appending to an already finalized recorder.
var ErrFinalized = errors.New("transcript already finalized")

// Recorder owns the transcript for one session's lifetime. Appends must
// arrive in conversational order; the recorder enforces non-decreasing
// timestamps by clamping rather than reordering.
type Recorder struct {
	callID string
	orgID  int64
	store  Store
	logger *slog.Logger

	mu        sync.Mutex
	entries   []Entry
	startedAt time.Time
	finalized bool
}

// NewRecorder creates a recorder for one call.
func NewRecorder(callID string, orgID int64, store Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		callID:    callID,
		orgID:     orgID,
		store:     store,
		logger:    logger.With("subsystem", "transcript", "call_id", callID),
		startedAt: time.Now(),
	}
}

// Append adds a completed turn. Timestamps earlier than the previous entry
// are clamped forward so the stored order always matches append order.
func (r *Recorder) Append(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalized {
		return ErrFinalized
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if n := len(r.entries); n > 0 && e.Timestamp.Before(r.entries[n-1].Timestamp) {
		e.Timestamp = r.entries[n-1].Timestamp
	}
	r.entries = append(r.entries, e)
	return nil
}

// AppendTruncated records an assistant turn that barge-in cut short. Only
// the partial text actually spoken is stored.
func (r *Recorder) AppendTruncated(partial string, ts time.Time) error {
	return r.Append(Entry{
		Speaker:   SpeakerAssistant,
		Text:      partial,
		Timestamp: ts,
		Truncated: true,
	})
}

// Len returns the number of entries appended so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns a copy of the entries appended so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Finalize computes the summary and overall sentiment, hands the transcript
// to the store, and seals the recorder. Safe to call more than once; only
// the first call persists anything.
func (r *Recorder) Finalize(ctx context.Context) error {
	r.mu.Lock()
	if r.finalized {
		r.mu.Unlock()
		return nil
	}
	r.finalized = true
	t := &Transcript{
		CallID:    r.callID,
		OrgID:     r.orgID,
		Entries:   r.entries,
		Summary:   summarize(r.entries),
		Sentiment: overallSentiment(r.entries),
		StartedAt: r.startedAt,
		EndedAt:   time.Now(),
	}
	r.mu.Unlock()

	if err := r.store.SaveTranscript(ctx, t); err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}
	r.logger.Info("transcript finalized",
		"entries", len(t.Entries),
		"sentiment", t.Sentiment,
	)
	return nil
}

// summarize produces a short closing summary from the recorded turns.
// A model-written summary can replace this downstream; the recorder only
// guarantees that some summary is always present.
func summarize(entries []Entry) string {
	if len(entries) == 0 {
		return "No conversation recorded."
	}
	var callerTurns, assistantTurns int
	var firstCaller string
	for _, e := range entries {
		switch e.Speaker {
		case SpeakerCaller:
			callerTurns++
			if firstCaller == "" {
				firstCaller = e.Text
			}
		case SpeakerAssistant:
			assistantTurns++
		}
	}
	if firstCaller == "" {
		return fmt.Sprintf("Call with %d assistant turns and no caller speech.", assistantTurns)
	}
	const maxLead = 120
	if len(firstCaller) > maxLead {
		firstCaller = firstCaller[:maxLead] + "…"
	}
	return fmt.Sprintf("Caller opened with: %q. %d caller and %d assistant turns.",
		firstCaller, callerTurns, assistantTurns)
}

// overallSentiment aggregates per-entry sentiment tags by majority among
// tagged caller turns. Untagged calls report "neutral".
func overallSentiment(entries []Entry) string {
	counts := map[string]int{}
	for _, e := range entries {
		if e.Speaker == SpeakerCaller && e.Sentiment != "" {
			counts[strings.ToLower(e.Sentiment)]++
		}
	}
	best := "neutral"
	bestN := 0
	for s, n := range counts {
		if n > bestN {
			best, bestN = s, n
		}
	}
	return best
}
