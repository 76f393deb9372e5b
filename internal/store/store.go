// Package store binds the persistence repositories to the collaborator
// interfaces the call core consumes: lead capture, calendar booking and
// availability, and transcript archival.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/voxbridge/voxbridge/internal/database"
	"github.com/voxbridge/voxbridge/internal/database/models"
	"github.com/voxbridge/voxbridge/internal/dispatch"
	"github.com/voxbridge/voxbridge/internal/transcript"
)

// Leads implements dispatch.LeadStore over the lead repository.
type Leads struct {
	repo database.LeadRepository
}

// NewLeads creates the lead-store collaborator.
func NewLeads(repo database.LeadRepository) *Leads {
	return &Leads{repo: repo}
}

func (s *Leads) CreateLead(ctx context.Context, orgID int64, callID string, lead dispatch.Lead) (int64, error) {
	urgency := lead.Urgency
	if urgency == "" {
		urgency = "normal"
	}
	rec := &models.Lead{
		OrgID:   orgID,
		CallID:  callID,
		Name:    lead.Name,
		Phone:   lead.Phone,
		Email:   lead.Email,
		Reason:  lead.Reason,
		Urgency: urgency,
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

// Calendar implements dispatch.Calendar over the appointment repository,
// computing open slots from the organization's business hours minus what
// is already booked.
type Calendar struct {
	appts database.AppointmentRepository
	orgs  database.OrganizationRepository
	// SlotMinutes is the booking grid; 30-minute slots by default.
	SlotMinutes int
}

// NewCalendar creates the calendar collaborator.
func NewCalendar(appts database.AppointmentRepository, orgs database.OrganizationRepository) *Calendar {
	return &Calendar{appts: appts, orgs: orgs, SlotMinutes: 30}
}

func (c *Calendar) CreateAppointment(ctx context.Context, orgID int64, callID string, appt dispatch.Appointment) (int64, error) {
	duration := appt.DurationMinutes
	if duration == 0 {
		duration = c.SlotMinutes
	}

	// Reject double-booking of an exact slot; overlapping longer bookings
	// are left to the availability check.
	existing, err := c.appts.ListByOrgDate(ctx, orgID, appt.Date)
	if err != nil {
		return 0, err
	}
	for _, e := range existing {
		if e.Time == appt.Time {
			return 0, fmt.Errorf("slot %s on %s is already booked", appt.Time, appt.Date)
		}
	}

	rec := &models.Appointment{
		OrgID:           orgID,
		CallID:          callID,
		Date:            appt.Date,
		Time:            appt.Time,
		Purpose:         appt.Purpose,
		DurationMinutes: duration,
	}
	if err := c.appts.Create(ctx, rec); err != nil {
		return 0, err
	}
	return rec.ID, nil
}

func (c *Calendar) Availability(ctx context.Context, orgID int64, date string) ([]string, error) {
	org, err := c.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, err
	}

	openFrom, openTo := 9*60, 17*60
	if org != nil && org.BusinessHours != "" {
		var fh, fm, th, tm int
		if n, err := fmt.Sscanf(org.BusinessHours, "%d:%d-%d:%d", &fh, &fm, &th, &tm); err == nil && n == 4 {
			openFrom, openTo = fh*60+fm, th*60+tm
		}
	}

	booked := map[string]bool{}
	existing, err := c.appts.ListByOrgDate(ctx, orgID, date)
	if err != nil {
		return nil, err
	}
	for _, a := range existing {
		booked[a.Time] = true
	}

	var slots []string
	for m := openFrom; m+c.SlotMinutes <= openTo; m += c.SlotMinutes {
		slot := fmt.Sprintf("%02d:%02d", m/60, m%60)
		if !booked[slot] {
			slots = append(slots, slot)
		}
	}
	return slots, nil
}

// Transcripts implements transcript.Store, writing the finalized
// transcript into the call record created for the call.
type Transcripts struct {
	records database.CallRecordRepository
	logger  *slog.Logger
}

// NewTranscripts creates the transcript-storage collaborator.
func NewTranscripts(records database.CallRecordRepository, logger *slog.Logger) *Transcripts {
	return &Transcripts{records: records, logger: logger.With("subsystem", "transcript-store")}
}

// CallMeta carries the call facts the recorder does not know about.
type CallMeta struct {
	From      string
	To        string
	Direction string
	TurnCount int
	Outcome   string
}

// SaveTranscriptWithMeta persists the finalized transcript as a call record
// carrying the session's outcome and counters.
func (s *Transcripts) SaveTranscriptWithMeta(ctx context.Context, t *transcript.Transcript, meta CallMeta) error {
	entries, err := json.Marshal(t.Entries)
	if err != nil {
		return fmt.Errorf("marshaling transcript entries: %w", err)
	}
	ended := t.EndedAt
	rec := &models.CallRecord{
		CallID:          t.CallID,
		OrgID:           t.OrgID,
		FromNumber:      meta.From,
		ToNumber:        meta.To,
		Direction:       meta.Direction,
		StartedAt:       t.StartedAt,
		EndedAt:         &ended,
		DurationSeconds: int(t.EndedAt.Sub(t.StartedAt) / time.Second),
		TurnCount:       meta.TurnCount,
		Outcome:         meta.Outcome,
		Transcript:      string(entries),
		Summary:         t.Summary,
		Sentiment:       t.Sentiment,
	}
	if err := s.records.Create(ctx, rec); err != nil {
		return fmt.Errorf("saving call record: %w", err)
	}
	s.logger.Info("call record saved", "call_id", t.CallID, "outcome", meta.Outcome)
	return nil
}

// BoundStore wraps Transcripts with per-call metadata so it satisfies the
// recorder's one-method transcript.Store interface.
type BoundStore struct {
	Store *Transcripts
	Meta  func() CallMeta
}

func (b *BoundStore) SaveTranscript(ctx context.Context, t *transcript.Transcript) error {
	return b.Store.SaveTranscriptWithMeta(ctx, t, b.Meta())
}
