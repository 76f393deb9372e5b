package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

// organizationRequest is the JSON request body for creating/updating an
// organization.
type organizationRequest struct {
	Name               string `json:"name"`
	Greeting           string `json:"greeting"`
	AfterHoursGreeting string `json:"after_hours_greeting"`
	SystemPrompt       string `json:"system_prompt"`
	VoiceID            string `json:"voice_id"`
	BusinessHours      string `json:"business_hours"`
	TransferNumber     string `json:"transfer_number"`
	MaxCallSeconds     *int   `json:"max_call_seconds"`
	MaxTurns           *int   `json:"max_turns"`
	RetentionDays      *int   `json:"retention_days"`
}

// organizationResponse is the JSON response for a single organization.
type organizationResponse struct {
	ID                 int64  `json:"id"`
	Name               string `json:"name"`
	Greeting           string `json:"greeting"`
	AfterHoursGreeting string `json:"after_hours_greeting"`
	SystemPrompt       string `json:"system_prompt"`
	VoiceID            string `json:"voice_id"`
	BusinessHours      string `json:"business_hours"`
	TransferNumber     string `json:"transfer_number"`
	MaxCallSeconds     int    `json:"max_call_seconds"`
	MaxTurns           int    `json:"max_turns"`
	RetentionDays      int    `json:"retention_days"`
	CreatedAt          string `json:"created_at"`
}

func toOrganizationResponse(o *models.Organization) organizationResponse {
	return organizationResponse{
		ID:                 o.ID,
		Name:               o.Name,
		Greeting:           o.Greeting,
		AfterHoursGreeting: o.AfterHoursGreeting,
		SystemPrompt:       o.SystemPrompt,
		VoiceID:            o.VoiceID,
		BusinessHours:      o.BusinessHours,
		TransferNumber:     o.TransferNumber,
		MaxCallSeconds:     o.MaxCallSeconds,
		MaxTurns:           o.MaxTurns,
		RetentionDays:      o.RetentionDays,
		CreatedAt:          o.CreatedAt.Format(time.RFC3339),
	}
}

// validateOrganizationRequest checks required fields and value sanity.
func validateOrganizationRequest(req organizationRequest) string {
	if req.Name == "" {
		return "name is required"
	}
	if req.Greeting == "" {
		return "greeting is required"
	}
	// Business-hours evaluation fails open on a bad window; catch the
	// obvious shape error here instead.
	if req.BusinessHours != "" && len(req.BusinessHours) < len("H:M-H:M") {
		return "business_hours must be HH:MM-HH:MM"
	}
	if req.MaxCallSeconds != nil && *req.MaxCallSeconds < 0 {
		return "max_call_seconds must be non-negative"
	}
	if req.MaxTurns != nil && *req.MaxTurns < 0 {
		return "max_turns must be non-negative"
	}
	if req.RetentionDays != nil && *req.RetentionDays < 0 {
		return "retention_days must be non-negative"
	}
	return ""
}

// parseIDParam returns the {id} route parameter as an int64.
func parseIDParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// handleListOrgs returns organizations with pagination.
func (s *Server) handleListOrgs(w http.ResponseWriter, r *http.Request) {
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	orgs, err := s.repos.Orgs.List(r.Context())
	if err != nil {
		slog.Error("list organizations: failed to query", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]organizationResponse, len(orgs))
	for i := range orgs {
		all[i] = toOrganizationResponse(&orgs[i])
	}

	total := len(all)
	start := min(pg.Offset, total)
	end := min(start+pg.Limit, total)

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  all[start:end],
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// handleCreateOrg creates a new organization.
func (s *Server) handleCreateOrg(w http.ResponseWriter, r *http.Request) {
	var req organizationRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateOrganizationRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	org := &models.Organization{
		Name:               req.Name,
		Greeting:           req.Greeting,
		AfterHoursGreeting: req.AfterHoursGreeting,
		SystemPrompt:       req.SystemPrompt,
		VoiceID:            req.VoiceID,
		BusinessHours:      req.BusinessHours,
		TransferNumber:     req.TransferNumber,
		MaxCallSeconds:     600,
		MaxTurns:           40,
		RetentionDays:      90,
	}
	if req.MaxCallSeconds != nil {
		org.MaxCallSeconds = *req.MaxCallSeconds
	}
	if req.MaxTurns != nil {
		org.MaxTurns = *req.MaxTurns
	}
	if req.RetentionDays != nil {
		org.RetentionDays = *req.RetentionDays
	}

	if err := s.repos.Orgs.Create(r.Context(), org); err != nil {
		slog.Error("create organization: failed to insert", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	created, err := s.repos.Orgs.GetByID(r.Context(), org.ID)
	if err != nil || created == nil {
		slog.Error("create organization: failed to re-fetch", "error", err, "org_id", org.ID)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("organization created", "org_id", created.ID, "name", created.Name)
	writeJSON(w, http.StatusCreated, toOrganizationResponse(created))
}

// handleGetOrg returns a single organization by ID.
func (s *Server) handleGetOrg(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	org, err := s.repos.Orgs.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("get organization: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	writeJSON(w, http.StatusOK, toOrganizationResponse(org))
}

// handleUpdateOrg updates an existing organization.
func (s *Server) handleUpdateOrg(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	existing, err := s.repos.Orgs.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("update organization: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	var req organizationRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if errMsg := validateOrganizationRequest(req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	existing.Name = req.Name
	existing.Greeting = req.Greeting
	existing.AfterHoursGreeting = req.AfterHoursGreeting
	existing.SystemPrompt = req.SystemPrompt
	existing.VoiceID = req.VoiceID
	existing.BusinessHours = req.BusinessHours
	existing.TransferNumber = req.TransferNumber
	if req.MaxCallSeconds != nil {
		existing.MaxCallSeconds = *req.MaxCallSeconds
	}
	if req.MaxTurns != nil {
		existing.MaxTurns = *req.MaxTurns
	}
	if req.RetentionDays != nil {
		existing.RetentionDays = *req.RetentionDays
	}

	if err := s.repos.Orgs.Update(r.Context(), existing); err != nil {
		slog.Error("update organization: failed to update", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("organization updated", "org_id", id)
	writeJSON(w, http.StatusOK, toOrganizationResponse(existing))
}

// handleDeleteOrg removes an organization.
func (s *Server) handleDeleteOrg(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	org, err := s.repos.Orgs.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("delete organization: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	if err := s.repos.Orgs.Delete(r.Context(), id); err != nil {
		slog.Error("delete organization: failed to delete", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("organization deleted", "org_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// inboundNumberRequest is the JSON request body for provisioning a number.
type inboundNumberRequest struct {
	Number string `json:"number"`
}

// inboundNumberResponse is the JSON response for a provisioned number.
type inboundNumberResponse struct {
	ID        int64  `json:"id"`
	OrgID     int64  `json:"org_id"`
	Number    string `json:"number"`
	CreatedAt string `json:"created_at"`
}

func toInboundNumberResponse(n *models.InboundNumber) inboundNumberResponse {
	return inboundNumberResponse{
		ID:        n.ID,
		OrgID:     n.OrgID,
		Number:    n.Number,
		CreatedAt: n.CreatedAt.Format(time.RFC3339),
	}
}

// handleListNumbers returns the numbers provisioned for an organization.
func (s *Server) handleListNumbers(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	nums, err := s.repos.Numbers.ListByOrg(r.Context(), id)
	if err != nil {
		slog.Error("list numbers: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	out := make([]inboundNumberResponse, len(nums))
	for i := range nums {
		out[i] = toInboundNumberResponse(&nums[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCreateNumber provisions an inbound number for an organization.
func (s *Server) handleCreateNumber(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}

	var req inboundNumberRequest
	if errMsg := readJSON(r, &req); errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}
	if req.Number == "" {
		writeError(w, http.StatusBadRequest, "number is required")
		return
	}

	org, err := s.repos.Orgs.GetByID(r.Context(), id)
	if err != nil {
		slog.Error("create number: failed to query org", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if org == nil {
		writeError(w, http.StatusNotFound, "organization not found")
		return
	}

	existing, err := s.repos.Numbers.GetByNumber(r.Context(), req.Number)
	if err != nil {
		slog.Error("create number: failed to check existing", "error", err, "number", req.Number)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "number already provisioned")
		return
	}

	num := &models.InboundNumber{OrgID: id, Number: req.Number}
	if err := s.repos.Numbers.Create(r.Context(), num); err != nil {
		slog.Error("create number: failed to insert", "error", err, "number", req.Number)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("inbound number provisioned", "org_id", id, "number", req.Number)
	writeJSON(w, http.StatusCreated, toInboundNumberResponse(num))
}

// handleDeleteNumber removes a provisioned number.
func (s *Server) handleDeleteNumber(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid number id")
		return
	}

	if err := s.repos.Numbers.Delete(r.Context(), id); err != nil {
		slog.Error("delete number: failed to delete", "error", err, "number_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	slog.Info("inbound number deleted", "number_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// callRecordResponse is the JSON response for a finished call.
type callRecordResponse struct {
	ID              int64  `json:"id"`
	CallID          string `json:"call_id"`
	OrgID           int64  `json:"org_id"`
	FromNumber      string `json:"from_number"`
	ToNumber        string `json:"to_number"`
	Direction       string `json:"direction"`
	StartedAt       string `json:"started_at"`
	EndedAt         string `json:"ended_at,omitempty"`
	DurationSeconds int    `json:"duration_seconds"`
	TurnCount       int    `json:"turn_count"`
	Outcome         string `json:"outcome"`
	Summary         string `json:"summary,omitempty"`
	Sentiment       string `json:"sentiment,omitempty"`
}

func toCallRecordResponse(c *models.CallRecord) callRecordResponse {
	resp := callRecordResponse{
		ID:              c.ID,
		CallID:          c.CallID,
		OrgID:           c.OrgID,
		FromNumber:      c.FromNumber,
		ToNumber:        c.ToNumber,
		Direction:       c.Direction,
		StartedAt:       c.StartedAt.Format(time.RFC3339),
		DurationSeconds: c.DurationSeconds,
		TurnCount:       c.TurnCount,
		Outcome:         c.Outcome,
		Summary:         c.Summary,
		Sentiment:       c.Sentiment,
	}
	if c.EndedAt != nil {
		resp.EndedAt = c.EndedAt.Format(time.RFC3339)
	}
	return resp
}

// handleListCalls returns the most recent finished calls for an organization.
// The full transcript is available per call via the record, not the list.
func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	recs, err := s.repos.Records.ListByOrg(r.Context(), id, pg.Offset+pg.Limit)
	if err != nil {
		slog.Error("list calls: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]callRecordResponse, len(recs))
	for i := range recs {
		all[i] = toCallRecordResponse(&recs[i])
	}

	total := len(all)
	start := min(pg.Offset, total)

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  all[start:],
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}

// leadResponse is the JSON response for a captured lead.
type leadResponse struct {
	ID        int64  `json:"id"`
	OrgID     int64  `json:"org_id"`
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
	Email     string `json:"email,omitempty"`
	Reason    string `json:"reason,omitempty"`
	Urgency   string `json:"urgency"`
	CRMSynced bool   `json:"crm_synced"`
	CreatedAt string `json:"created_at"`
}

func toLeadResponse(l *models.Lead) leadResponse {
	return leadResponse{
		ID:        l.ID,
		OrgID:     l.OrgID,
		CallID:    l.CallID,
		Name:      l.Name,
		Phone:     l.Phone,
		Email:     l.Email,
		Reason:    l.Reason,
		Urgency:   l.Urgency,
		CRMSynced: l.CRMSynced,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	}
}

// handleListLeads returns the leads captured for an organization.
func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid organization id")
		return
	}
	pg, errMsg := parsePagination(r)
	if errMsg != "" {
		writeError(w, http.StatusBadRequest, errMsg)
		return
	}

	leads, err := s.repos.Leads.ListByOrg(r.Context(), id)
	if err != nil {
		slog.Error("list leads: failed to query", "error", err, "org_id", id)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	all := make([]leadResponse, len(leads))
	for i := range leads {
		all[i] = toLeadResponse(&leads[i])
	}

	total := len(all)
	start := min(pg.Offset, total)
	end := min(start+pg.Limit, total)

	writeJSON(w, http.StatusOK, PaginatedResponse{
		Items:  all[start:end],
		Total:  total,
		Limit:  pg.Limit,
		Offset: pg.Offset,
	})
}
