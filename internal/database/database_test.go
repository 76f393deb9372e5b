package database

import (
	"context"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestOrg(t *testing.T, db *DB) *models.Organization {
	t.Helper()
	org := &models.Organization{
		Name:          "Acme Plumbing",
		Greeting:      "Thanks for calling Acme.",
		SystemPrompt:  "You answer for a plumbing company.",
		VoiceID:       "alloy",
		BusinessHours: "09:00-17:00",
	}
	if err := NewOrganizationRepository(db).Create(context.Background(), org); err != nil {
		t.Fatalf("creating org: %v", err)
	}
	return org
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	db.Close()

	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open: %v", err)
	}
	db.Close()
}

func TestOrganizationRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	repo := NewOrganizationRepository(db)

	org := createTestOrg(t, db)
	if org.ID == 0 {
		t.Fatal("org id not assigned")
	}

	got, err := repo.GetByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got == nil || got.Name != "Acme Plumbing" || got.BusinessHours != "09:00-17:00" {
		t.Errorf("GetByID = %+v", got)
	}

	got.TransferNumber = "+15550009999"
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("Update: %v", err)
	}
	got, err = repo.GetByID(ctx, org.ID)
	if err != nil {
		t.Fatalf("GetByID after update: %v", err)
	}
	if got.TransferNumber != "+15550009999" {
		t.Errorf("transfer number = %q after update", got.TransferNumber)
	}
}

func TestOrganizationLookupByInboundNumber(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	org := createTestOrg(t, db)

	numRepo := NewInboundNumberRepository(db)
	if err := numRepo.Create(ctx, &models.InboundNumber{OrgID: org.ID, Number: "+15552223333"}); err != nil {
		t.Fatalf("creating number: %v", err)
	}

	got, err := NewOrganizationRepository(db).GetByInboundNumber(ctx, "+15552223333")
	if err != nil {
		t.Fatalf("GetByInboundNumber: %v", err)
	}
	if got == nil || got.ID != org.ID {
		t.Errorf("GetByInboundNumber = %+v, want org %d", got, org.ID)
	}

	missing, err := NewOrganizationRepository(db).GetByInboundNumber(ctx, "+10000000000")
	if err != nil {
		t.Fatalf("GetByInboundNumber missing: %v", err)
	}
	if missing != nil {
		t.Errorf("unknown number resolved to org %d", missing.ID)
	}
}

func TestLeadSyncCycle(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	org := createTestOrg(t, db)
	repo := NewLeadRepository(db)

	lead := &models.Lead{
		OrgID: org.ID, CallID: "call-1", Name: "Ada",
		Phone: "+15550001111", Urgency: "high",
	}
	if err := repo.Create(ctx, lead); err != nil {
		t.Fatalf("Create: %v", err)
	}

	unsynced, err := repo.ListUnsynced(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnsynced: %v", err)
	}
	if len(unsynced) != 1 || unsynced[0].ID != lead.ID {
		t.Fatalf("ListUnsynced = %+v", unsynced)
	}

	if err := repo.MarkSynced(ctx, lead.ID); err != nil {
		t.Fatalf("MarkSynced: %v", err)
	}
	unsynced, err = repo.ListUnsynced(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnsynced after sync: %v", err)
	}
	if len(unsynced) != 0 {
		t.Errorf("lead still unsynced after MarkSynced")
	}

	got, err := repo.GetByID(ctx, lead.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !got.CRMSynced {
		t.Errorf("CRMSynced = false after MarkSynced")
	}
}

func TestAppointmentsByOrgDate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	org := createTestOrg(t, db)
	repo := NewAppointmentRepository(db)

	for _, tm := range []string{"14:00", "09:30"} {
		appt := &models.Appointment{
			OrgID: org.ID, CallID: "call-1", Date: "2026-09-01",
			Time: tm, Purpose: "estimate", DurationMinutes: 30,
		}
		if err := repo.Create(ctx, appt); err != nil {
			t.Fatalf("Create %s: %v", tm, err)
		}
	}

	appts, err := repo.ListByOrgDate(ctx, org.ID, "2026-09-01")
	if err != nil {
		t.Fatalf("ListByOrgDate: %v", err)
	}
	if len(appts) != 2 {
		t.Fatalf("len(appts) = %d, want 2", len(appts))
	}
	if appts[0].Time != "09:30" || appts[1].Time != "14:00" {
		t.Errorf("appointments not ordered by time: %s, %s", appts[0].Time, appts[1].Time)
	}

	other, err := repo.ListByOrgDate(ctx, org.ID, "2026-09-02")
	if err != nil {
		t.Fatalf("ListByOrgDate other date: %v", err)
	}
	if len(other) != 0 {
		t.Errorf("appointments leaked across dates")
	}
}

func TestCallRecordRetention(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	org := createTestOrg(t, db)
	repo := NewCallRecordRepository(db)

	old := time.Now().UTC().AddDate(0, 0, -120)
	recent := time.Now().UTC().Add(-time.Hour)
	for i, started := range []time.Time{old, recent} {
		ended := started.Add(2 * time.Minute)
		rec := &models.CallRecord{
			CallID: "call-" + string(rune('a'+i)), OrgID: org.ID,
			FromNumber: "+15550001111", ToNumber: "+15552223333",
			Direction: "inbound", StartedAt: started, EndedAt: &ended,
			DurationSeconds: 120, Outcome: "completed",
			Transcript: "[]", Sentiment: "neutral",
		}
		if err := repo.Create(ctx, rec); err != nil {
			t.Fatalf("Create: %v", err)
		}
	}

	deleted, err := repo.DeleteOlderThan(ctx, org.ID, 90)
	if err != nil {
		t.Fatalf("DeleteOlderThan: %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}

	recs, err := repo.ListByOrg(ctx, org.ID, 10)
	if err != nil {
		t.Fatalf("ListByOrg: %v", err)
	}
	if len(recs) != 1 || recs[0].CallID != "call-b" {
		t.Errorf("surviving records = %+v", recs)
	}
}
