package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

// callRecordRepo implements CallRecordRepository.
type callRecordRepo struct {
	db *DB
}

// NewCallRecordRepository creates a CallRecordRepository.
func NewCallRecordRepository(db *DB) CallRecordRepository {
	return &callRecordRepo{db: db}
}

const callRecordColumns = `id, call_id, org_id, from_number, to_number,
 direction, started_at, ended_at, duration_seconds, turn_count, outcome,
 transcript, summary, sentiment`

func (r *callRecordRepo) Create(ctx context.Context, rec *models.CallRecord) error {
	result, err := r.db.ExecContext(ctx,
		`INSERT INTO call_records (call_id, org_id, from_number, to_number,
		 direction, started_at, ended_at, duration_seconds, turn_count,
		 outcome, transcript, summary, sentiment)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.CallID, rec.OrgID, rec.FromNumber, rec.ToNumber, rec.Direction,
		rec.StartedAt, rec.EndedAt, rec.DurationSeconds, rec.TurnCount,
		rec.Outcome, rec.Transcript, rec.Summary, rec.Sentiment,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting last insert id: %w", err)
	}
	rec.ID = id
	return nil
}

func (r *callRecordRepo) GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error) {
	var rec models.CallRecord
	err := scanCallRecord(r.db.QueryRowContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records WHERE call_id = ?`, callID), &rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning call record: %w", err)
	}
	return &rec, nil
}

func (r *callRecordRepo) ListByOrg(ctx context.Context, orgID int64, limit int) ([]models.CallRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records
		 WHERE org_id = ? ORDER BY started_at DESC LIMIT ?`, orgID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing call records: %w", err)
	}
	defer rows.Close()

	var recs []models.CallRecord
	for rows.Next() {
		var rec models.CallRecord
		if err := scanCallRecord(rows, &rec); err != nil {
			return nil, fmt.Errorf("scanning call record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *callRecordRepo) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT outcome, COUNT(*) FROM call_records GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("counting call records: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, fmt.Errorf("scanning outcome count: %w", err)
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// DeleteOlderThan removes call records past the org's retention window.
// Returns the number of records deleted.
func (r *callRecordRepo) DeleteOlderThan(ctx context.Context, orgID int64, days int) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM call_records
		 WHERE org_id = ? AND started_at < datetime('now', ?)`,
		orgID, fmt.Sprintf("-%d days", days))
	if err != nil {
		return 0, fmt.Errorf("deleting expired call records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted records: %w", err)
	}
	return n, nil
}

func scanCallRecord(row rowScanner, rec *models.CallRecord) error {
	return row.Scan(&rec.ID, &rec.CallID, &rec.OrgID, &rec.FromNumber,
		&rec.ToNumber, &rec.Direction, &rec.StartedAt, &rec.EndedAt,
		&rec.DurationSeconds, &rec.TurnCount, &rec.Outcome,
		&rec.Transcript, &rec.Summary, &rec.Sentiment)
}
