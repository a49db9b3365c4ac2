package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrStoreConflict = errors.New("applied set store conflicts with the expected shape")

// Record is one applied migration.
type Record struct {
	ID        string    `db:"migration_id" json:"migrationId"`
	Version   string    `db:"version" json:"version"`
	AppliedAt time.Time `db:"applied_at" json:"appliedAt"`
}

// Tracker persists which migration ids were applied. The backing store is the single source of truth
// and is read fresh on every run.
type Tracker interface {
	// EnsureStore provisions the store; safe to call on every run.
	EnsureStore(ctx context.Context) error

	// LoadAppliedIDs reads every recorded id. A store that does not exist yet reads as empty.
	LoadAppliedIDs(ctx context.Context) (map[string]struct{}, error)

	// RecordApplied writes one record. It is never retried.
	RecordApplied(ctx context.Context, id, versionLabel string) error

	Records(ctx context.Context) ([]Record, error)
}

type StoreConflictError struct {
	Resource string
	Reason   string
}

func (e *StoreConflictError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrStoreConflict, e.Resource, e.Reason)
}

func (e *StoreConflictError) Unwrap() error {
	return ErrStoreConflict
}

func idSet(records []Record) map[string]struct{} {
	ids := make(map[string]struct{}, len(records))
	for _, r := range records {
		ids[r.ID] = struct{}{}
	}

	return ids
}
