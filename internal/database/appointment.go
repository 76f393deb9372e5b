package database

import (
	"context"
	"fmt"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

// apptRepo implements AppointmentRepository.
type apptRepo struct {
	db *DB
}

// NewAppointmentRepository creates an AppointmentRepository.
func NewAppointmentRepository(db *DB) AppointmentRepository {
	return &apptRepo{db: db}
}

func (r *apptRepo) Create(ctx context.Context, appt *models.Appointment) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO appointments (org_id, call_id, date, time, purpose, duration_minutes)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		appt.OrgID, appt.CallID, appt.Date, appt.Time, appt.Purpose, appt.DurationMinutes,
	)
	if err != nil {
		return fmt.Errorf("inserting appointment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	appt.ID = id
	return nil
}

func (r *apptRepo) ListByOrgDate(ctx context.Context, orgID int64, date string) ([]models.Appointment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, call_id, date, time, purpose, duration_minutes, created_at
		 FROM appointments WHERE org_id = ? AND date = ? ORDER BY time`, orgID, date)
	if err != nil {
		return nil, fmt.Errorf("listing appointments: %w", err)
	}
	defer rows.Close()

	var appts []models.Appointment
	for rows.Next() {
		var a models.Appointment
		if err := rows.Scan(&a.ID, &a.OrgID, &a.CallID, &a.Date, &a.Time,
			&a.Purpose, &a.DurationMinutes, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning appointment: %w", err)
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}
