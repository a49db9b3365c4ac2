package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/bfbechlin/appwrite-ctl/pkg/sqldb"
	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/jmoiron/sqlx"
)

const DefaultSQLTable = "appwrite_migrations"

type SQLConfig struct {
	DB    *sqlx.DB `validate:"required"`
	Table string   `validate:"omitempty,sqlident"`
}

// SQL keeps the applied set in a relational table. MySQL DSNs need parseTime=true.
type SQL struct {
	db    *sqlx.DB
	table string
}

var _ Tracker = (*SQL)(nil)

func NewSQL(cfg SQLConfig) (*SQL, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("sql ledger config: %w", err)
	}

	table := cfg.Table
	if table == "" {
		table = DefaultSQLTable
	}

	return &SQL{db: cfg.DB, table: table}, nil
}

func (s *SQL) EnsureStore(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	migration_id VARCHAR(255) NOT NULL PRIMARY KEY,
	version VARCHAR(64) NOT NULL,
	applied_at TIMESTAMP NOT NULL
)`, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}

	// an older table with the same name but other columns
	probe := fmt.Sprintf("SELECT migration_id, version, applied_at FROM %s WHERE 1=0", s.table)
	rows, err := s.db.QueryxContext(ctx, probe)
	if err != nil {
		return &StoreConflictError{Resource: s.table, Reason: err.Error()}
	}

	return rows.Close()
}

func (s *SQL) LoadAppliedIDs(ctx context.Context) (map[string]struct{}, error) {
	records, err := s.Records(ctx)
	if err != nil {
		return nil, err
	}

	return idSet(records), nil
}

func (s *SQL) Records(ctx context.Context) ([]Record, error) {
	exist, err := s.tableExists(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0)
	if !exist {
		return records, nil
	}

	query := fmt.Sprintf("SELECT migration_id, version, applied_at FROM %s ORDER BY applied_at, migration_id", s.table)
	if err = s.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list applied migrations: %w", err)
	}

	for i := range records {
		records[i].AppliedAt = records[i].AppliedAt.UTC()
	}

	return records, nil
}

func (s *SQL) RecordApplied(ctx context.Context, id, versionLabel string) error {
	query := s.db.Rebind(fmt.Sprintf("INSERT INTO %s (migration_id, version, applied_at) VALUES (?, ?, ?)", s.table))
	if _, err := s.db.ExecContext(ctx, query, id, versionLabel, time.Now().UTC()); err != nil {
		return fmt.Errorf("record migration %s: %w", id, err)
	}

	return nil
}

func (s *SQL) tableExists(ctx context.Context) (bool, error) {
	var (
		query string
		args  []interface{}
	)

	switch sqldb.Driver(s.db.DriverName()) {
	case sqldb.Postgres:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1"
		args = []interface{}{s.table}
	case sqldb.Mysql:
		query = "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?"
		args = []interface{}{s.table}
	default:
		query = "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?"
		args = []interface{}{s.table}
	}

	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, fmt.Errorf("check table %s: %w", s.table, err)
	}

	return n > 0, nil
}
