package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

// leadRepo implements LeadRepository.
type leadRepo struct {
	db *DB
}

// NewLeadRepository creates a LeadRepository.
func NewLeadRepository(db *DB) LeadRepository {
	return &leadRepo{db: db}
}

const leadColumns = `id, org_id, call_id, name, phone, email, reason,
 urgency, crm_synced, created_at`

func (r *leadRepo) Create(ctx context.Context, lead *models.Lead) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO leads (org_id, call_id, name, phone, email, reason, urgency)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		lead.OrgID, lead.CallID, lead.Name, lead.Phone, lead.Email,
		lead.Reason, lead.Urgency,
	)
	if err != nil {
		return fmt.Errorf("inserting lead: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	lead.ID = id
	return nil
}

func (r *leadRepo) GetByID(ctx context.Context, id int64) (*models.Lead, error) {
	var l models.Lead
	err := scanLead(r.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = ?`, id), &l)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning lead: %w", err)
	}
	return &l, nil
}

func (r *leadRepo) ListByOrg(ctx context.Context, orgID int64) ([]models.Lead, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE org_id = ? ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (r *leadRepo) ListUnsynced(ctx context.Context, limit int) ([]models.Lead, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE crm_synced = 0 ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unsynced leads: %w", err)
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (r *leadRepo) MarkSynced(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE leads SET crm_synced = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("marking lead synced: %w", err)
	}
	return nil
}

func scanLead(row rowScanner, l *models.Lead) error {
	return row.Scan(&l.ID, &l.OrgID, &l.CallID, &l.Name, &l.Phone, &l.Email,
		&l.Reason, &l.Urgency, &l.CRMSynced, &l.CreatedAt)
}

func collectLeads(rows *sql.Rows) ([]models.Lead, error) {
	var leads []models.Lead
	for rows.Next() {
		var l models.Lead
		if err := scanLead(rows, &l); err != nil {
			return nil, fmt.Errorf("scanning lead: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}
