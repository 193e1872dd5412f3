package database

import (
	"context"
	"time"

	"github.com/voiceops/voiceops/internal/database/models"
)

// CallRecordFilter specifies scope filtering and pagination for ledger
// list queries. OwnerMarker is the encoded-scope substring produced by
// scope.OwnerMarker; matching happens in SQL with LIKE so rows never need
// re-parsing.
type CallRecordFilter struct {
	OwnerMarker string
	ProjectID   string // empty means all projects the owner has
	Limit       int
}

// CallRecordRepository manages the call ledger. Both the SQLite and
// PostgreSQL stores implement it.
type CallRecordRepository interface {
	Create(ctx context.Context, rec *models.CallRecord) error

	// GetScoped looks a record up by ledger id or gateway call id,
	// restricted to rows whose metadata matches the owner marker (and
	// project, when given). Returns nil when nothing matches: a record
	// outside the caller's scope is indistinguishable from one that does
	// not exist.
	GetScoped(ctx context.Context, idOrCallID string, filter CallRecordFilter) (*models.CallRecord, error)

	// MarkActive transitions a ringing record to active. Returns false
	// without modifying anything if the record is not in ringing state.
	MarkActive(ctx context.Context, id string) (bool, error)

	// End terminates a record, setting status, ended_at and the final
	// duration. Guarded by a status precondition so a second call on an
	// already-ended record is a no-op and reports false.
	End(ctx context.Context, id string, endedAt time.Time, durationSeconds int) (bool, error)

	// List returns scope-matching records newest-first.
	List(ctx context.Context, filter CallRecordFilter) ([]models.CallRecord, error)

	// ListUnfinished returns ringing/active records, oldest-first. Not
	// used by request paths; it exists for a future reconciliation sweep
	// against the gateway's live call list.
	ListUnfinished(ctx context.Context) ([]models.CallRecord, error)

	// CountByStatus and CountByDirection feed the metrics collector.
	CountByStatus(ctx context.Context) (map[string]int64, error)
	CountByDirection(ctx context.Context) (map[string]int64, error)
}
