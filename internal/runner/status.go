package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/bfbechlin/appwrite-ctl/internal/ledger"
)

const (
	StatusApplied = "APPLIED"
	StatusPending = "PENDING"
)

type StatusEntry struct {
	Label          string
	Ordinal        int
	ID             string
	Description    string
	RequiresBackup bool
	Applied        bool
	AppliedAt      time.Time
}

func (e StatusEntry) State() string {
	if e.Applied {
		return StatusApplied
	}

	return StatusPending
}

// Status lists every version against the applied set. It only reads: the store is not provisioned,
// nothing is pushed and no script runs.
func (r *Runner) Status(ctx context.Context) ([]StatusEntry, error) {
	plan, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	records, err := r.tracker.Records(ctx)
	if err != nil {
		return nil, fmt.Errorf("load applied set: %w", err)
	}

	byID := make(map[string]ledger.Record, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
	}

	entries := make([]StatusEntry, 0, len(plan))
	for _, p := range plan {
		entry := StatusEntry{
			Label:          p.version.Label,
			Ordinal:        p.version.Ordinal,
			ID:             p.migration.ID,
			Description:    p.migration.Description,
			RequiresBackup: p.migration.RequiresBackup,
		}

		if rec, ok := byID[p.migration.ID]; ok {
			entry.Applied = true
			entry.AppliedAt = rec.AppliedAt
		}

		entries = append(entries, entry)
	}

	return entries, nil
}
