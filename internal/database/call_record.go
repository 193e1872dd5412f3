package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/voiceops/voiceops/internal/database/models"
)

const callRecordColumns = `id, call_id, from_number, to_number, direction, started_at, ended_at,
	 duration_seconds, status, trunk_id, room_name, participant_identity, project_id, metadata, created_at`

// callRecordRepo implements CallRecordRepository on SQLite.
type callRecordRepo struct {
	db *DB
}

// NewCallRecordRepository creates a CallRecordRepository backed by the
// SQLite ledger.
func NewCallRecordRepository(db *DB) CallRecordRepository {
	return &callRecordRepo{db: db}
}

// Create inserts a new ledger row.
func (r *callRecordRepo) Create(ctx context.Context, rec *models.CallRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO call_records (id, call_id, from_number, to_number, direction, started_at,
		 ended_at, duration_seconds, status, trunk_id, room_name, participant_identity,
		 project_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CallID, rec.FromNumber, rec.ToNumber, rec.Direction, rec.StartedAt,
		rec.EndedAt, rec.DurationSeconds, rec.Status, rec.TrunkID, rec.RoomName,
		rec.ParticipantIdentity, rec.ProjectID, rec.Metadata, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting call record: %w", err)
	}
	return nil
}

// GetScoped returns the record matching the id (ledger id or gateway call
// id) within the caller's scope, or nil.
func (r *callRecordRepo) GetScoped(ctx context.Context, idOrCallID string, filter CallRecordFilter) (*models.CallRecord, error) {
	query := `SELECT ` + callRecordColumns + ` FROM call_records
		 WHERE (id = ? OR call_id = ?) AND metadata LIKE ?`
	args := []any{idOrCallID, idOrCallID, "%" + filter.OwnerMarker + "%"}
	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	query += " LIMIT 1"

	return scanCallRecord(r.db.QueryRowContext(ctx, query, args...))
}

// MarkActive transitions ringing -> active; any other state is untouched.
func (r *callRecordRepo) MarkActive(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE call_records SET status = ? WHERE id = ? AND status = ?`,
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

// End terminates a record. The status precondition makes a repeated end a
// no-op: the first call's ended_at and duration are never overwritten.
func (r *callRecordRepo) End(ctx context.Context, id string, endedAt time.Time, durationSeconds int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE call_records SET status = ?, ended_at = ?, duration_seconds = ?
		 WHERE id = ? AND status <> ?`,
		models.CallStatusEnded, endedAt, durationSeconds, id, models.CallStatusEnded,
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
func (r *callRecordRepo) List(ctx context.Context, filter CallRecordFilter) ([]models.CallRecord, error) {
	query := `SELECT ` + callRecordColumns + ` FROM call_records WHERE metadata LIKE ?`
	args := []any{"%" + filter.OwnerMarker + "%"}
	if filter.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, filter.ProjectID)
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, filter.Limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing call records: %w", err)
	}
	defer rows.Close()
	return collectCallRecords(rows)
}

// ListUnfinished returns ringing and active records, oldest first.
func (r *callRecordRepo) ListUnfinished(ctx context.Context) ([]models.CallRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+callRecordColumns+` FROM call_records
		 WHERE status <> ? ORDER BY started_at ASC`, models.CallStatusEnded)
	if err != nil {
		return nil, fmt.Errorf("listing unfinished call records: %w", err)
	}
	defer rows.Close()
	return collectCallRecords(rows)
}

// CountByStatus returns ledger row counts grouped by status.
func (r *callRecordRepo) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return r.countBy(ctx, "status")
}

// CountByDirection returns ledger row counts grouped by direction.
func (r *callRecordRepo) CountByDirection(ctx context.Context) (map[string]int64, error) {
	return r.countBy(ctx, "direction")
}

func (r *callRecordRepo) countBy(ctx context.Context, column string) (map[string]int64, error) {
	// column is one of two compile-time constants, never user input.
	rows, err := r.db.QueryContext(ctx,
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

func scanCallRecord(row *sql.Row) (*models.CallRecord, error) {
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

func collectCallRecords(rows *sql.Rows) ([]models.CallRecord, error) {
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
