package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/voxbridge/voxbridge/internal/api/middleware"
	"github.com/voxbridge/voxbridge/internal/audio"
	"github.com/voxbridge/voxbridge/internal/database/models"
	"github.com/voxbridge/voxbridge/internal/telephony"
)

// pendingTTL is how long an announced call may wait for its media stream
// before the registration is dropped.
const pendingTTL = 2 * time.Minute

// pendingCall carries per-call context from the incoming-call webhook to
// the media-stream handler.
type pendingCall struct {
	org      *models.Organization
	call     telephony.IncomingCall
	greeting string
	created  time.Time
}

// incomingCallResponse tells the provider where to open the media stream.
type incomingCallResponse struct {
	Action    string `json:"action"`
	StreamURL string `json:"stream_url"`
}

// handleIncomingCall receives the provider's call-initiated webhook,
// resolves the organization for the dialed number, and answers with the
// media stream URL the provider should connect to.
func (s *Server) handleIncomingCall(w http.ResponseWriter, r *http.Request) {
	var in telephony.IncomingCall
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.CallID == "" || in.From == "" || in.To == "" {
		writeError(w, http.StatusBadRequest, "call_id, from, and to are required")
		return
	}
	if signed := middleware.WebhookCallIDFromContext(r.Context()); signed != "" && signed != in.CallID {
		writeError(w, http.StatusUnauthorized, "signature does not match call")
		return
	}
	if in.Direction == "" {
		in.Direction = telephony.DirectionInbound
	}
	if in.Codec == "" {
		in.Codec = "pcmu"
	}
	if _, err := audio.LookupTranscoder(in.Codec); err != nil {
		s.logger.Warn("rejecting call with unsupported codec", "call_id", in.CallID, "codec", in.Codec)
		writeError(w, http.StatusUnprocessableEntity, "unsupported codec")
		return
	}

	org, err := s.repos.Orgs.GetByInboundNumber(r.Context(), in.To)
	if err != nil {
		s.logger.Error("organization lookup failed", "call_id", in.CallID, "error", err)
		writeError(w, http.StatusInternalServerError, "organization lookup failed")
		return
	}
	if org == nil {
		s.logger.Warn("call to unprovisioned number", "call_id", in.CallID, "to", in.To)
		writeError(w, http.StatusNotFound, "no organization for dialed number")
		return
	}

	greeting := org.Greeting
	if !org.OpenAt(time.Now()) && org.AfterHoursGreeting != "" {
		greeting = org.AfterHoursGreeting
	}

	s.pendMu.Lock()
	now := time.Now()
	for id, pc := range s.pending {
		if now.Sub(pc.created) > pendingTTL {
			delete(s.pending, id)
		}
	}
	s.pending[in.CallID] = &pendingCall{org: org, call: in, greeting: greeting, created: now}
	s.pendMu.Unlock()

	s.logger.Info("incoming call accepted",
		"call_id", in.CallID,
		"org_id", org.ID,
		"from", in.From,
		"to", in.To,
	)
	writeJSON(w, http.StatusOK, incomingCallResponse{
		Action:    "stream",
		StreamURL: "/media/" + in.CallID,
	})
}

// handleCallStatus receives call-status webhooks and forwards them to the
// live session. Status for a finished or unknown call is acknowledged and
// dropped.
func (s *Server) handleCallStatus(w http.ResponseWriter, r *http.Request) {
	var ev telephony.StatusEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if ev.CallID == "" || !ev.Status.Valid() {
		writeError(w, http.StatusBadRequest, "call_id and a known status are required")
		return
	}
	if signed := middleware.WebhookCallIDFromContext(r.Context()); signed != "" && signed != ev.CallID {
		writeError(w, http.StatusUnauthorized, "signature does not match call")
		return
	}

	if ev.Status == telephony.StatusCompleted || ev.Status == telephony.StatusFailed {
		// The call may end before its media stream ever connected.
		s.pendMu.Lock()
		delete(s.pending, ev.CallID)
		s.pendMu.Unlock()
	}

	if sess, ok := s.manager.Get(ev.CallID); ok {
		sess.NotifyStatus(ev)
	} else {
		s.logger.Debug("status for inactive call", "call_id", ev.CallID, "status", ev.Status)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

// takePending removes and returns the pending registration for callID.
func (s *Server) takePending(callID string) (*pendingCall, bool) {
	s.pendMu.Lock()
	defer s.pendMu.Unlock()
	pc, ok := s.pending[callID]
	if !ok {
		return nil, false
	}
	delete(s.pending, callID)
	if time.Since(pc.created) > pendingTTL {
		return nil, false
	}
	return pc, true
}
