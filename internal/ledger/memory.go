package ledger

import (
	"context"
	"sync"
	"time"
)

// Memory keeps records in process. Used by tests and dry runs.
type Memory struct {
	lock    sync.RWMutex
	records []Record

	// FailRecord makes RecordApplied fail with this error when set.
	FailRecord error
}

var _ Tracker = (*Memory)(nil)

func NewMemory(records ...Record) *Memory {
	return &Memory{records: records}
}

func (m *Memory) EnsureStore(context.Context) error {
	return nil
}

func (m *Memory) LoadAppliedIDs(ctx context.Context) (map[string]struct{}, error) {
	records, err := m.Records(ctx)
	if err != nil {
		return nil, err
	}

	return idSet(records), nil
}

func (m *Memory) RecordApplied(_ context.Context, id, versionLabel string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if m.FailRecord != nil {
		return m.FailRecord
	}

	m.records = append(m.records, Record{ID: id, Version: versionLabel, AppliedAt: time.Now().UTC()})
	return nil
}

func (m *Memory) Records(context.Context) ([]Record, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out, nil
}
