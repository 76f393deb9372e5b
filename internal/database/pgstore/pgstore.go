// Package pgstore provides a PostgreSQL implementation of the voxbridge
// repositories for hosted deployments where SQLite's single-writer model
// is not enough.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/voxbridge/voxbridge/internal/database/models"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store implements the database repository interfaces using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New opens a PostgreSQL connection and runs pending migrations.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgresql: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging postgresql: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	slog.Info("postgresql store opened")
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate runs all pending SQL migration files in order.
func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version := strings.TrimSuffix(entry.Name(), ".sql")

		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count)
		if err != nil {
			return fmt.Errorf("checking migration %s: %w", version, err)
		}
		if count > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", version, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %s: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("executing migration %s: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES ($1)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %s: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %s: %w", version, err)
		}

		slog.Info("applied migration", "version", version)
	}

	return nil
}

// --- OrganizationRepository ---

const orgColumns = `id, name, greeting, after_hours_greeting, system_prompt,
 voice_id, business_hours, transfer_number, max_call_seconds, max_turns,
 retention_days, created_at`

func (s *Store) Create(ctx context.Context, org *models.Organization) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO organizations (name, greeting, after_hours_greeting,
		 system_prompt, voice_id, business_hours, transfer_number,
		 max_call_seconds, max_turns, retention_days)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`,
		org.Name, org.Greeting, org.AfterHoursGreeting, org.SystemPrompt,
		org.VoiceID, org.BusinessHours, org.TransferNumber,
		org.MaxCallSeconds, org.MaxTurns, org.RetentionDays,
	).Scan(&org.ID)
	if err != nil {
		return fmt.Errorf("inserting organization: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id int64) (*models.Organization, error) {
	var org models.Organization
	err := scanOrg(s.db.QueryRowContext(ctx,
		`SELECT `+orgColumns+` FROM organizations WHERE id = $1`, id), &org)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning organization: %w", err)
	}
	return &org, nil
}

func (s *Store) GetByInboundNumber(ctx context.Context, number string) (*models.Organization, error) {
	var org models.Organization
	err := scanOrg(s.db.QueryRowContext(ctx,
		`SELECT o.id, o.name, o.greeting, o.after_hours_greeting,
		 o.system_prompt, o.voice_id, o.business_hours, o.transfer_number,
		 o.max_call_seconds, o.max_turns, o.retention_days, o.created_at
		 FROM organizations o
		 JOIN inbound_numbers n ON n.org_id = o.id
		 WHERE n.number = $1`, number), &org)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning organization: %w", err)
	}
	return &org, nil
}

func (s *Store) List(ctx context.Context) ([]models.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orgColumns+` FROM organizations ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("listing organizations: %w", err)
	}
	defer rows.Close()

	var orgs []models.Organization
	for rows.Next() {
		var org models.Organization
		if err := scanOrg(rows, &org); err != nil {
			return nil, fmt.Errorf("scanning organization: %w", err)
		}
		orgs = append(orgs, org)
	}
	return orgs, rows.Err()
}

func (s *Store) Update(ctx context.Context, org *models.Organization) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE organizations SET name = $1, greeting = $2,
		 after_hours_greeting = $3, system_prompt = $4, voice_id = $5,
		 business_hours = $6, transfer_number = $7, max_call_seconds = $8,
		 max_turns = $9, retention_days = $10 WHERE id = $11`,
		org.Name, org.Greeting, org.AfterHoursGreeting, org.SystemPrompt,
		org.VoiceID, org.BusinessHours, org.TransferNumber,
		org.MaxCallSeconds, org.MaxTurns, org.RetentionDays, org.ID)
	if err != nil {
		return fmt.Errorf("updating organization: %w", err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM organizations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting organization: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row rowScanner, org *models.Organization) error {
	return row.Scan(&org.ID, &org.Name, &org.Greeting, &org.AfterHoursGreeting,
		&org.SystemPrompt, &org.VoiceID, &org.BusinessHours, &org.TransferNumber,
		&org.MaxCallSeconds, &org.MaxTurns, &org.RetentionDays, &org.CreatedAt)
}

// --- LeadRepository ---

const leadColumns = `id, org_id, call_id, name, phone, email, reason,
 urgency, crm_synced, created_at`

func (s *Store) CreateLead(ctx context.Context, lead *models.Lead) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO leads (org_id, call_id, name, phone, email, reason, urgency)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		lead.OrgID, lead.CallID, lead.Name, lead.Phone, lead.Email,
		lead.Reason, lead.Urgency,
	).Scan(&lead.ID)
	if err != nil {
		return fmt.Errorf("inserting lead: %w", err)
	}
	return nil
}

func (s *Store) GetLeadByID(ctx context.Context, id int64) (*models.Lead, error) {
	var l models.Lead
	err := scanLead(s.db.QueryRowContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE id = $1`, id), &l)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning lead: %w", err)
	}
	return &l, nil
}

func (s *Store) ListLeadsByOrg(ctx context.Context, orgID int64) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE org_id = $1 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("listing leads: %w", err)
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *Store) ListUnsynced(ctx context.Context, limit int) ([]models.Lead, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+leadColumns+` FROM leads WHERE NOT crm_synced ORDER BY id LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unsynced leads: %w", err)
	}
	defer rows.Close()
	return collectLeads(rows)
}

func (s *Store) MarkSynced(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE leads SET crm_synced = TRUE WHERE id = $1`, id)
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

// --- AppointmentRepository ---

func (s *Store) CreateAppointment(ctx context.Context, appt *models.Appointment) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO appointments (org_id, call_id, date, time, purpose, duration_minutes)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		appt.OrgID, appt.CallID, appt.Date, appt.Time, appt.Purpose, appt.DurationMinutes,
	).Scan(&appt.ID)
	if err != nil {
		return fmt.Errorf("inserting appointment: %w", err)
	}
	return nil
}

func (s *Store) ListByOrgDate(ctx context.Context, orgID int64, date string) ([]models.Appointment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, call_id, date, time, purpose, duration_minutes, created_at
		 FROM appointments WHERE org_id = $1 AND date = $2 ORDER BY time`, orgID, date)
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

// --- InboundNumberRepository ---

func (s *Store) CreateNumber(ctx context.Context, num *models.InboundNumber) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO inbound_numbers (org_id, number) VALUES ($1, $2) RETURNING id`,
		num.OrgID, num.Number).Scan(&num.ID)
	if err != nil {
		return fmt.Errorf("inserting inbound number: %w", err)
	}
	return nil
}

func (s *Store) GetNumber(ctx context.Context, number string) (*models.InboundNumber, error) {
	var n models.InboundNumber
	err := s.db.QueryRowContext(ctx,
		`SELECT id, org_id, number, created_at FROM inbound_numbers WHERE number = $1`,
		number).Scan(&n.ID, &n.OrgID, &n.Number, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning inbound number: %w", err)
	}
	return &n, nil
}

func (s *Store) ListNumbersByOrg(ctx context.Context, orgID int64) ([]models.InboundNumber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, org_id, number, created_at FROM inbound_numbers
		 WHERE org_id = $1 ORDER BY number`, orgID)
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

func (s *Store) DeleteNumber(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM inbound_numbers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting inbound number: %w", err)
	}
	return nil
}

// --- CallRecordRepository ---

const callRecordColumns = `id, call_id, org_id, from_number, to_number,
 direction, started_at, ended_at, duration_seconds, turn_count, outcome,
 transcript, summary, sentiment`

func (s *Store) CreateCallRecord(ctx context.Context, rec *models.CallRecord) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO call_records (call_id, org_id, from_number, to_number,
		 direction, started_at, ended_at, duration_seconds, turn_count,
		 outcome, transcript, summary, sentiment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING id`,
		rec.CallID, rec.OrgID, rec.FromNumber, rec.ToNumber, rec.Direction,
		rec.StartedAt, rec.EndedAt, rec.DurationSeconds, rec.TurnCount,
		rec.Outcome, rec.Transcript, rec.Summary, rec.Sentiment,
	).Scan(&rec.ID)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}
	return nil
}

func (s *Store) GetByCallID(ctx context.Context, callID string) (*models.CallRecord, error) {
	var rec models.CallRecord
	err := scanCallRecord(s.db.QueryRowContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records WHERE call_id = $1`, callID), &rec)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning call record: %w", err)
	}
	return &rec, nil
}

func (s *Store) ListCallRecordsByOrg(ctx context.Context, orgID int64, limit int) ([]models.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records
		 WHERE org_id = $1 ORDER BY started_at DESC LIMIT $2`, orgID, limit)
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

func (s *Store) CountByOutcome(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
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

func (s *Store) DeleteOlderThan(ctx context.Context, orgID int64, days int) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM call_records
		 WHERE org_id = $1 AND started_at < NOW() - ($2 || ' days')::interval`,
		orgID, days)
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
