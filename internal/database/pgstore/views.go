package pgstore

import (
	"context"

	"github.com/voxbridge/voxbridge/internal/database"
	"github.com/voxbridge/voxbridge/internal/database/models"
)

// The repository interfaces each declare a Create method, so the Store
// exposes them through per-entity views.

// Organizations returns the store as an OrganizationRepository.
func (s *Store) Organizations() database.OrganizationRepository { return s }

// Leads returns a LeadRepository view.
func (s *Store) Leads() database.LeadRepository { return leadView{s} }

// Appointments returns an AppointmentRepository view.
func (s *Store) Appointments() database.AppointmentRepository { return apptView{s} }

// CallRecords returns a CallRecordRepository view.
func (s *Store) CallRecords() database.CallRecordRepository { return recordView{s} }

// Numbers returns an InboundNumberRepository view.
func (s *Store) Numbers() database.InboundNumberRepository { return numberView{s} }

type leadView struct{ s *Store }

func (v leadView) Create(ctx context.Context, lead *models.Lead) error {
	return v.s.CreateLead(ctx, lead)
}
func (v leadView) GetByID(ctx context.Context, id int64) (*models.Lead, error) {
	return v.s.GetLeadByID(ctx, id)
}
func (v leadView) ListByOrg(ctx context.Context, orgID int64) ([]models.Lead, error) {
	return v.s.ListLeadsByOrg(ctx, orgID)
}
func (v leadView) ListUnsynced(ctx context.Context, limit int) ([]models.Lead, error) {
	return v.s.ListUnsynced(ctx, limit)
}
func (v leadView) MarkSynced(ctx context.Context, id int64) error {
	return v.s.MarkSynced(ctx, id)
}

type apptView struct{ s *Store }

func (v apptView) Create(ctx context.Context, appt *models.Appointment) error {
	return v.s.CreateAppointment(ctx, appt)
}
func (v apptView) ListByOrgDate(ctx context.Context, orgID int64, date string) ([]models.Appointment, error) {
	return v.s.ListByOrgDate(ctx, orgID, date)
}

type numberView struct{ s *Store }

func (v numberView) Create(ctx context.Context, num *models.InboundNumber) error {
	return v.s.CreateNumber(ctx, num)
}
func (v numberView) GetByNumber(ctx context.Context, number string) (*models.InboundNumber, error) {
	return v.s.GetNumber(ctx, number)
}
func (v numberView) ListByOrg(ctx context.Context, orgID int64) ([]models.InboundNumber, error) {
	return v.s.ListNumbersByOrg(ctx, orgID)
}
func (v numberView) Delete(ctx context.Context, id int64) error {
	return v.s.DeleteNumber(ctx, id)
}

type recordView struct{ s *Store }

func (v recordView) Create(ctx context.Context, rec *models.CallRecord) error {
	return v.s.CreateCallRecord(ctx, rec)
}
func (v recordView) GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error) {
	return v.s.GetByCallID(ctx, callID)
}
func (v recordView) ListByOrg(ctx context.Context, orgID int64, limit int) ([]models.CallRecord, error) {
	return v.s.ListCallRecordsByOrg(ctx, orgID, limit)
}
func (v recordView) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	return v.s.CountByOutcome(ctx)
}
func (v recordView) DeleteOlderThan(ctx context.Context, orgID int64, days int) (int64, error) {
	return v.s.DeleteOlderThan(ctx, orgID, days)
}
