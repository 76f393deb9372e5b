package database

import (
	"context"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

// OrganizationRepository manages tenant voice configuration.
type OrganizationRepository interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByID(ctx context.Context, id int64) (*models.Organization, error)
	GetByInboundNumber(ctx context.Context, number string) (*models.Organization, error)
	List(ctx context.Context) ([]models.Organization, error)
	Update(ctx context.Context, org *models.Organization) error
	Delete(ctx context.Context, id int64) error
}

// LeadRepository manages captured leads.
type LeadRepository interface {
	Create(ctx context.Context, lead *models.Lead) error
	GetByID(ctx context.Context, id int64) (*models.Lead, error)
	ListByOrg(ctx context.Context, orgID int64) ([]models.Lead, error)
	ListUnsynced(ctx context.Context, limit int) ([]models.Lead, error)
	MarkSynced(ctx context.Context, id int64) error
}

// AppointmentRepository manages bookings.
type AppointmentRepository interface {
	Create(ctx context.Context, appt *models.Appointment) error
	ListByOrgDate(ctx context.Context, orgID int64, date string) ([]models.Appointment, error)
}

// CallRecordRepository manages finished-call records.
type CallRecordRepository interface {
	Create(ctx context.Context, rec *models.CallRecord) error
	GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error)
	ListByOrg(ctx context.Context, orgID int64, limit int) ([]models.CallRecord, error)
	CountByOutcome(ctx context.Context) (map[string]int64, error)
	DeleteOlderThan(ctx context.Context, orgID int64, days int) (int64, error)
}

// InboundNumberRepository maps provider numbers to organizations.
type InboundNumberRepository interface {
	Create(ctx context.Context, num *models.InboundNumber) error
	GetByNumber(ctx context.Context, number string) (*models.InboundNumber, error)
	ListByOrg(ctx context.Context, orgID int64) ([]models.InboundNumber, error)
	Delete(ctx context.Context, id int64) error
}
