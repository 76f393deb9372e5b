package store

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/internal/database/models"
	"github.com/voxbridge/voxbridge/internal/dispatch"
	"github.com/voxbridge/voxbridge/internal/transcript"
)

type fakeLeadRepo struct {
	created []*models.Lead
}

func (f *fakeLeadRepo) Create(ctx context.Context, l *models.Lead) error {
	l.ID = int64(len(f.created) + 1)
	f.created = append(f.created, l)
	return nil
}
func (f *fakeLeadRepo) GetByID(ctx context.Context, id int64) (*models.Lead, error) { return nil, nil }
func (f *fakeLeadRepo) ListByOrg(ctx context.Context, orgID int64) ([]models.Lead, error) {
	return nil, nil
}
func (f *fakeLeadRepo) ListUnsynced(ctx context.Context, limit int) ([]models.Lead, error) {
	return nil, nil
}
func (f *fakeLeadRepo) MarkSynced(ctx context.Context, id int64) error { return nil }

type fakeApptRepo struct {
	existing []models.Appointment
	created  []*models.Appointment
}

func (f *fakeApptRepo) Create(ctx context.Context, a *models.Appointment) error {
	a.ID = int64(len(f.created) + 1)
	f.created = append(f.created, a)
	return nil
}
func (f *fakeApptRepo) ListByOrgDate(ctx context.Context, orgID int64, date string) ([]models.Appointment, error) {
	return f.existing, nil
}

type fakeOrgRepo struct {
	org *models.Organization
}

func (f *fakeOrgRepo) Create(ctx context.Context, o *models.Organization) error { return nil }
func (f *fakeOrgRepo) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	return f.org, nil
}
func (f *fakeOrgRepo) GetByInboundNumber(ctx context.Context, number string) (*models.Organization, error) {
	return f.org, nil
}
func (f *fakeOrgRepo) List(ctx context.Context) ([]models.Organization, error) { return nil, nil }
func (f *fakeOrgRepo) Update(ctx context.Context, o *models.Organization) error { return nil }
func (f *fakeOrgRepo) Delete(ctx context.Context, id int64) error               { return nil }

type fakeRecordRepo struct {
	created []*models.CallRecord
}

func (f *fakeRecordRepo) Create(ctx context.Context, r *models.CallRecord) error {
	r.ID = int64(len(f.created) + 1)
	f.created = append(f.created, r)
	return nil
}
func (f *fakeRecordRepo) GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error) {
	return nil, nil
}
func (f *fakeRecordRepo) ListByOrg(ctx context.Context, orgID int64, limit int) ([]models.CallRecord, error) {
	return nil, nil
}
func (f *fakeRecordRepo) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	return nil, nil
}
func (f *fakeRecordRepo) DeleteOlderThan(ctx context.Context, orgID int64, days int) (int64, error) {
	return 0, nil
}

func TestLeadsDefaultUrgency(t *testing.T) {
	repo := &fakeLeadRepo{}
	s := NewLeads(repo)

	id, err := s.CreateLead(context.Background(), 1, "call-1", dispatch.Lead{
		Name: "Ada", Phone: "+15550001111", Reason: "quote",
	})
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
	if got := repo.created[0].Urgency; got != "normal" {
		t.Errorf("urgency = %q, want normal", got)
	}
}

func TestCalendarAvailabilityExcludesBooked(t *testing.T) {
	appts := &fakeApptRepo{existing: []models.Appointment{
		{Date: "2026-09-01", Time: "10:00"},
		{Date: "2026-09-01", Time: "14:30"},
	}}
	orgs := &fakeOrgRepo{org: &models.Organization{ID: 1, BusinessHours: "09:00-17:00"}}
	c := NewCalendar(appts, orgs)

	slots, err := c.Availability(context.Background(), 1, "2026-09-01")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	// 09:00-17:00 on a 30-minute grid is 16 slots, two booked.
	if len(slots) != 14 {
		t.Fatalf("len(slots) = %d, want 14", len(slots))
	}
	for _, s := range slots {
		if s == "10:00" || s == "14:30" {
			t.Errorf("booked slot %s offered as available", s)
		}
	}
	if slots[0] != "09:00" {
		t.Errorf("first slot = %s, want 09:00", slots[0])
	}
	if last := slots[len(slots)-1]; last != "16:30" {
		t.Errorf("last slot = %s, want 16:30", last)
	}
}

func TestCalendarAvailabilityDefaultHours(t *testing.T) {
	c := NewCalendar(&fakeApptRepo{}, &fakeOrgRepo{})

	slots, err := c.Availability(context.Background(), 1, "2026-09-01")
	if err != nil {
		t.Fatalf("Availability: %v", err)
	}
	if len(slots) != 16 {
		t.Errorf("len(slots) = %d, want 16 for default 09:00-17:00", len(slots))
	}
}

func TestCalendarRejectsDoubleBooking(t *testing.T) {
	appts := &fakeApptRepo{existing: []models.Appointment{{Date: "2026-09-01", Time: "10:00"}}}
	c := NewCalendar(appts, &fakeOrgRepo{})

	_, err := c.CreateAppointment(context.Background(), 1, "call-1", dispatch.Appointment{
		Date: "2026-09-01", Time: "10:00", Purpose: "consult",
	})
	if err == nil {
		t.Fatal("expected double-booking error")
	}
	if len(appts.created) != 0 {
		t.Errorf("appointment persisted despite conflict")
	}
}

func TestCalendarBooksOpenSlot(t *testing.T) {
	appts := &fakeApptRepo{}
	c := NewCalendar(appts, &fakeOrgRepo{})

	id, err := c.CreateAppointment(context.Background(), 1, "call-1", dispatch.Appointment{
		Date: "2026-09-01", Time: "11:00", Purpose: "consult",
	})
	if err != nil {
		t.Fatalf("CreateAppointment: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}
	if got := appts.created[0].DurationMinutes; got != 30 {
		t.Errorf("default duration = %d, want 30", got)
	}
}

func TestTranscriptsSaveBuildsRecord(t *testing.T) {
	records := &fakeRecordRepo{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ts := NewTranscripts(records, logger)

	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	tr := &transcript.Transcript{
		CallID:    "call-1",
		OrgID:     1,
		StartedAt: started,
		EndedAt:   started.Add(95 * time.Second),
		Summary:   "caller asked about pricing",
		Sentiment: "positive",
		Entries: []transcript.Entry{
			{Speaker: transcript.SpeakerCaller, Text: "hi", Timestamp: started},
		},
	}

	bound := &BoundStore{Store: ts, Meta: func() CallMeta {
		return CallMeta{From: "+15550001111", To: "+15552223333", Direction: "inbound", TurnCount: 3, Outcome: "completed"}
	}}
	if err := bound.SaveTranscript(context.Background(), tr); err != nil {
		t.Fatalf("SaveTranscript: %v", err)
	}

	if len(records.created) != 1 {
		t.Fatalf("records created = %d, want 1", len(records.created))
	}
	rec := records.created[0]
	if rec.DurationSeconds != 95 {
		t.Errorf("duration = %d, want 95", rec.DurationSeconds)
	}
	if rec.Outcome != "completed" || rec.TurnCount != 3 {
		t.Errorf("meta not carried: outcome=%q turns=%d", rec.Outcome, rec.TurnCount)
	}
	if rec.Transcript == "" || rec.Summary == "" {
		t.Errorf("transcript body or summary missing")
	}
}
