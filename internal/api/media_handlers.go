package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/voxbridge/voxbridge/internal/ai"
	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/dispatch"
	"github.com/voxbridge/voxbridge/internal/session"
	"github.com/voxbridge/voxbridge/internal/store"
	"github.com/voxbridge/voxbridge/internal/telephony"
	"github.com/voxbridge/voxbridge/internal/transcript"
	"github.com/voxbridge/voxbridge/internal/vad"
)

// Barge-in energy thresholds on the smoothed RMS estimate. The gap between
// the two gives hysteresis against flutter around a single level.
const (
	speechThreshold  = 1000
	silenceThreshold = 500
)

// frameChanDepth buffers roughly a second of 20ms frames per direction.
const frameChanDepth = 64

var mediaUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The provider connects server-to-server; there is no browser origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleMediaStream accepts the provider's media websocket for a call
// announced via the incoming-call webhook, assembles the full media and
// conversation pipeline, and blocks until the session ends.
func (s *Server) handleMediaStream(w http.ResponseWriter, r *http.Request) {
	callID := chi.URLParam(r, "callID")
	pc, ok := s.takePending(callID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown or expired call")
		return
	}

	conn, err := mediaUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("media websocket upgrade failed", "call_id", callID, "error", err)
		return
	}

	stream, err := telephony.Accept(conn, callID, s.logger)
	if err != nil {
		s.logger.Warn("media stream handshake failed", "call_id", callID, "error", err)
		conn.Close()
		return
	}

	transcoder, err := audio.LookupTranscoder(pc.call.Codec)
	if err != nil {
		// Validated at webhook time; a mismatch here means the registration
		// was tampered with.
		s.logger.Error("transcoder lookup failed", "call_id", callID, "codec", pc.call.Codec, "error", err)
		stream.Close()
		return
	}

	ctx := r.Context()
	org := pc.org

	toAI := make(chan audio.Frame, frameChanDepth)
	aiIn := make(chan audio.Frame, frameChanDepth)
	toCaller := make(chan audio.Frame, frameChanDepth)

	detector := vad.New(vad.Config{
		SpeechThreshold:  speechThreshold,
		SilenceThreshold: silenceThreshold,
		SustainedSpeech:  s.cfg.BargeInSpeechWindow,
		ResumeDelay:      s.cfg.BargeInResumeDelay,
	}, s.logger)

	bridge := audio.NewBridge(transcoder, stream.In(), toAI, aiIn, toCaller, s.logger)
	bridge.SetTap(detector)
	bridge.SetFlusher(stream.Clear)

	leg, err := s.dialer(ctx, ai.SessionConfig{
		CallID:       callID,
		Model:        s.cfg.AIModel,
		VoiceID:      org.VoiceID,
		SystemPrompt: org.SystemPrompt,
		Functions:    dispatch.Schemas(),
	})
	if err != nil {
		s.logger.Error("dialing ai leg failed", "call_id", callID, "error", err)
		stream.Close()
		return
	}

	// The recorder needs outcome and turn counters that only exist once the
	// session does, so the store binding reads them through a closure.
	var sess *session.Session
	bound := &store.BoundStore{
		Store: s.transcripts,
		Meta: func() store.CallMeta {
			meta := store.CallMeta{
				From:      pc.call.From,
				To:        pc.call.To,
				Direction: string(pc.call.Direction),
			}
			if sess != nil {
				meta.TurnCount = sess.Turns()
				meta.Outcome = sess.Outcome()
			}
			return meta
		},
	}
	recorder := transcript.NewRecorder(callID, org.ID, bound, s.logger)

	dispatcher := dispatch.New(org.ID, callID,
		store.NewLeads(s.repos.Leads),
		store.NewCalendar(s.repos.Appts, s.repos.Orgs),
		s.crm, s.logger)

	sess = session.New(
		session.Info{
			CallID:    callID,
			OrgID:     org.ID,
			From:      pc.call.From,
			To:        pc.call.To,
			Direction: string(pc.call.Direction),
		},
		session.Config{
			Greeting:        pc.greeting,
			ThinkingTimeout: s.cfg.ThinkingTimeout,
			MaxModelRetries: s.cfg.MaxModelRetries,
			MaxTurns:        org.MaxTurns,
			MaxCallDuration: time.Duration(org.MaxCallSeconds) * time.Second,
			TransferNumber:  org.TransferNumber,
		},
		leg, bridge, detector, recorder, dispatcher, s.control,
		aiIn, toAI, s.logger)

	if err := s.manager.Add(sess); err != nil {
		if errors.Is(err, session.ErrSessionExists) {
			s.logger.Warn("duplicate media stream for call", "call_id", callID)
		} else {
			s.logger.Error("registering session failed", "call_id", callID, "error", err)
		}
		leg.Close()
		stream.Close()
		return
	}

	s.trackBridge(callID, bridge)
	bridge.Start()
	stream.StartWriter(toCaller)
	stream.Start()

	sess.Run(ctx)

	stats := sess.Stats()
	s.totals.RecordSessionEnd(stats.BargeIns, stats.Invocations, stats.FallbacksUsed)
	s.untrackBridge(callID)
	s.manager.Remove(callID)
	bridge.Stop()
	stream.Close()

	s.logger.Info("media stream closed",
		"call_id", callID,
		"outcome", sess.Outcome(),
		"turns", stats.Turns,
		"barge_ins", stats.BargeIns,
	)
}
