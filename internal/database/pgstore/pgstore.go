// Package pgstore implements the call ledger repository on PostgreSQL for
// deployments that already run one. The zero-config default is the SQLite
// store in internal/database; this store is selected by configuring a
// database URL.
package pgstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/voiceops/voiceops/internal/database"
	"github.com/voiceops/voiceops/internal/database/models"

	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const callRecordColumns = `id, call_id, from_number, to_number, direction, started_at, ended_at,
	 duration_seconds, status, trunk_id, room_name, participant_identity, project_id, metadata, created_at`

// Store implements database.CallRecordRepository on PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ database.CallRecordRepository = (*Store)(nil)

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

	slog.Info("postgresql ledger opened")
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
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_migrations WHERE version = $1", version).Scan(&count); err != nil {
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

// Create inserts a new ledger row.
func (s *Store) Create(ctx context.Context, rec *models.CallRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_records (id, call_id, from_number, to_number, direction, started_at,
		 ended_at, duration_seconds, status, trunk_id, room_name, participant_identity,
		 project_id, metadata, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.CallID, rec.FromNumber, rec.ToNumber, rec.Direction, rec.StartedAt,
		rec.EndedAt, rec.DurationSeconds, rec.Status, rec.TrunkID, rec.RoomName,
		rec.ParticipantIdentity, rec.ProjectID, rec.Metadata, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}
	return nil
}

// GetScoped returns the record matching the id within the caller's scope, or nil.
func (s *Store) GetScoped(ctx context.Context, idOrCallID string, filter database.CallRecordFilter) (*models.CallRecord, error) {
	query := `SELECT ` + callRecordColumns + ` FROM call_records
		 WHERE (id = $1 OR call_id = $1) AND metadata LIKE $2`
	args := []any{idOrCallID, "%" + filter.OwnerMarker + "%"}
	if filter.ProjectID != "" {
		query += " AND project_id = $3"
		args = append(args, filter.ProjectID)
	}
	query += " LIMIT 1"

	row := s.db.QueryRowContext(ctx, query, args...)
	var rec models.CallRecord
	err := row.Scan(&rec.ID, &rec.CallID, &rec.FromNumber, &rec.ToNumber, &rec.Direction,
		&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds, &rec.Status, &rec.TrunkID,
		&rec.RoomName, &rec.ParticipantIdentity, &rec.ProjectID, &rec.Metadata, &rec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning call record: %w", err)
	}
	return &rec, nil
}

// MarkActive transitions ringing -> active; any other state is untouched.
func (s *Store) MarkActive(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_records SET status = $1 WHERE id = $2 AND status = $3`,
		models.CallStatusActive, id, models.CallStatusRinging,
	)
	if err != nil {
		return false, fmt.Errorf("marking call active: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// End terminates a record; the status precondition makes repeats a no-op.
func (s *Store) End(ctx context.Context, id string, endedAt time.Time, durationSeconds int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_records SET status = $1, ended_at = $2, duration_seconds = $3
		 WHERE id = $4 AND status <> $1`,
		models.CallStatusEnded, endedAt, durationSeconds, id,
	)
	if err != nil {
		return false, fmt.Errorf("ending call record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking rows affected: %w", err)
	}
	return n > 0, nil
}

// List returns scope-matching records, newest first, bounded by the limit.
func (s *Store) List(ctx context.Context, filter database.CallRecordFilter) ([]models.CallRecord, error) {
	query := `SELECT ` + callRecordColumns + ` FROM call_records WHERE metadata LIKE $1`
	args := []any{"%" + filter.OwnerMarker + "%"}
	if filter.ProjectID != "" {
		query += " AND project_id = $2 ORDER BY started_at DESC LIMIT $3"
	} else {
		query += " ORDER BY started_at DESC LIMIT $2"
	}
	if filter.ProjectID != "" {
		args = append(args, filter.ProjectID)
	}
	args = append(args, filter.Limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing call records: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// ListUnfinished returns ringing and active records, oldest first.
func (s *Store) ListUnfinished(ctx context.Context) ([]models.CallRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records
		 WHERE status <> $1 ORDER BY started_at ASC`, models.CallStatusEnded)
	if err != nil {
		return nil, fmt.Errorf("listing unfinished call records: %w", err)
	}
	defer rows.Close()
	return collect(rows)
}

// CountByStatus returns ledger row counts grouped by status.
func (s *Store) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, "status")
}

// CountByDirection returns ledger row counts grouped by direction.
func (s *Store) CountByDirection(ctx context.Context) (map[string]int64, error) {
	return s.countBy(ctx, "direction")
}

func (s *Store) countBy(ctx context.Context, column string) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM call_records GROUP BY `+column)
	if err != nil {
		return nil, fmt.Errorf("counting call records by %s: %w", column, err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var key string
		var n int64
		if err := rows.Scan(&key, &n); err != nil {
			return nil, fmt.Errorf("scanning count row: %w", err)
		}
		counts[key] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating count rows: %w", err)
	}
	return counts, nil
}

func collect(rows *sql.Rows) ([]models.CallRecord, error) {
	var recs []models.CallRecord
	for rows.Next() {
		var rec models.CallRecord
		if err := rows.Scan(&rec.ID, &rec.CallID, &rec.FromNumber, &rec.ToNumber, &rec.Direction,
			&rec.StartedAt, &rec.EndedAt, &rec.DurationSeconds, &rec.Status, &rec.TrunkID,
			&rec.RoomName, &rec.ParticipantIdentity, &rec.ProjectID, &rec.Metadata, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning call record row: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating call record rows: %w", err)
	}
	return recs, nil
}
