package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

// inboundNumberRepo implements InboundNumberRepository.
type inboundNumberRepo struct {
	db *DB
}

// NewInboundNumberRepository creates an InboundNumberRepository.
func NewInboundNumberRepository(db *DB) InboundNumberRepository {
	return &inboundNumberRepo{db: db}
}

func (r *inboundNumberRepo) Create(ctx context.Context, num *models.InboundNumber) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO inbound_numbers (org_id, number) VALUES (?, ?)`,
		num.OrgID, num.Number)
	if err != nil {
		return fmt.Errorf("inserting inbound number: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	num.ID = id
	return nil
}

func (r *inboundNumberRepo) GetByNumber(ctx context.Context, number string) (*models.InboundNumber, error) {
	var n models.InboundNumber
	err := r.db.QueryRowContext(ctx,
		`SELECT id, org_id, number, created_at FROM inbound_numbers WHERE number = ?`,
		number).Scan(&n.ID, &n.OrgID, &n.Number, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning inbound number: %w", err)
	}
	return &n, nil
}

func (r *inboundNumberRepo) ListByOrg(ctx context.Context, orgID int64) ([]models.InboundNumber, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, org_id, number, created_at FROM inbound_numbers
		 WHERE org_id = ? ORDER BY number`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing inbound numbers: %w", err)
	}
	defer rows.Close()

	var nums []models.InboundNumber
	for rows.Next() {
		var n models.InboundNumber
		if err := rows.Scan(&n.ID, &n.OrgID, &n.Number, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning inbound number: %w", err)
		}
		nums = append(nums, n)
	}
	return nums, rows.Err()
}

func (r *inboundNumberRepo) Delete(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM inbound_numbers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting inbound number: %w", err)
	}
	return nil
}
