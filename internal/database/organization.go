package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

// orgRepo implements OrganizationRepository.
type orgRepo struct {
	db *DB
}

// NewOrganizationRepository creates an OrganizationRepository.
func NewOrganizationRepository(db *DB) OrganizationRepository {
	return &orgRepo{db: db}
}

const orgColumns = `id, name, greeting, after_hours_greeting, system_prompt,
 voice_id, business_hours, transfer_number, max_call_seconds, max_turns,
 retention_days, created_at`

func (r *orgRepo) Create(ctx context.Context, org *models.Organization) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO organizations (name, greeting, after_hours_greeting,
		 system_prompt, voice_id, business_hours, transfer_number,
		 max_call_seconds, max_turns, retention_days)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		org.Name, org.Greeting, org.AfterHoursGreeting, org.SystemPrompt,
		org.VoiceID, org.BusinessHours, org.TransferNumber,
		org.MaxCallSeconds, org.MaxTurns, org.RetentionDays,
	)
	if err != nil {
		return fmt.Errorf("inserting organization: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	org.ID = id
	return nil
}

func (r *orgRepo) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = ?`, id))
}

func (r *orgRepo) GetByInboundNumber(ctx context.Context, number string) (*models.Organization, error) {
	return r.scanOne(r.db.QueryRowContext(ctx,
		`SELECT o.id, o.name, o.greeting, o.after_hours_greeting,
		 o.system_prompt, o.voice_id, o.business_hours, o.transfer_number,
		 o.max_call_seconds, o.max_turns, o.retention_days, o.created_at
		 FROM organizations o
		 JOIN inbound_numbers n ON n.org_id = o.id
		 WHERE n.number = ?`, number))
}

func (r *orgRepo) List(ctx context.Context) ([]models.Organization, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organizations ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var o models.Organization
		if err := scanOrg(rows, &o); err != nil {
			return nil, err
		}
		orgs = append(orgs, o)
	}
	return orgs, rows.Err()
}

func (r *orgRepo) Update(ctx context.Context, org *models.Organization) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE organizations SET name = ?, greeting = ?,
		 after_hours_greeting = ?, system_prompt = ?, voice_id = ?,
		 business_hours = ?, transfer_number = ?, max_call_seconds = ?,
		 max_turns = ?, retention_days = ? WHERE id = ?`,
		org.Name, org.Greeting, org.AfterHoursGreeting, org.SystemPrompt,
		org.VoiceID, org.BusinessHours, org.TransferNumber,
		org.MaxCallSeconds, org.MaxTurns, org.RetentionDays, org.ID,
	)
	if err != nil {
		return fmt.Errorf("updating organization: %w", err)
	}
	return nil
}

func (r *orgRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting organization: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row rowScanner, o *models.Organization) error {
	return row.Scan(&o.ID, &o.Name, &o.Greeting, &o.AfterHoursGreeting,
		&o.SystemPrompt, &o.VoiceID, &o.BusinessHours, &o.TransferNumber,
		&o.MaxCallSeconds, &o.MaxTurns, &o.RetentionDays, &o.CreatedAt)
}

func (r *orgRepo) scanOne(row *sql.Row) (*models.Organization, error) {
	var o models.Organization
	if err := scanOrg(row, &o); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning organization: %w", err)
	}
	return &o, nil
}
