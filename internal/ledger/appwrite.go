package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/bfbechlin/appwrite-ctl/internal/readiness"
	"github.com/bfbechlin/appwrite-ctl/internal/snapshot"
	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
	"github.com/bfbechlin/appwrite-ctl/pkg/validator"
	"github.com/satori/uuid"
	"github.com/yusufsyaifudin/ylog"
)

const (
	DefaultDatabaseID = "system"
	DefaultTableID    = "migrations"

	columnMigrationID = "migrationId"
	columnVersion     = "version"
	columnAppliedAt   = "appliedAt"

	pageSize = 100
)

type column struct {
	key  string
	typ  string
	size int
}

var storeColumns = []column{
	{key: columnMigrationID, typ: "string", size: 255},
	{key: columnVersion, typ: "string", size: 64},
	{key: columnAppliedAt, typ: "datetime"},
}

// TablesAPI is the part of appwrite.TablesDB the ledger needs.
type TablesAPI interface {
	GetDatabase(ctx context.Context, databaseID string) (appwrite.Database, error)
	CreateDatabase(ctx context.Context, databaseID, name string) (appwrite.Database, error)
	GetTable(ctx context.Context, databaseID, tableID string) (appwrite.Table, error)
	CreateTable(ctx context.Context, databaseID, tableID, name string) (appwrite.Table, error)
	ListColumns(ctx context.Context, databaseID, tableID string) ([]appwrite.Column, error)
	CreateStringColumn(ctx context.Context, databaseID, tableID, key string, size int, required bool) (appwrite.Column, error)
	CreateDatetimeColumn(ctx context.Context, databaseID, tableID, key string, required bool) (appwrite.Column, error)
	ListRows(ctx context.Context, databaseID, tableID string, queries ...string) (appwrite.RowList, error)
	CreateRow(ctx context.Context, databaseID, tableID, rowID string, data interface{}) (appwrite.Row, error)
}

var _ TablesAPI = (*appwrite.TablesDB)(nil)

type Waiter interface {
	Wait(ctx context.Context, pairs []snapshot.Pair) readiness.Report
}

type AppwriteConfig struct {
	Tables     TablesAPI `validate:"required"`
	Waiter     Waiter    `validate:"required"`
	DatabaseID string    `validate:"omitempty,resourceid"`
	TableID    string    `validate:"omitempty,resourceid"`
}

// Appwrite keeps the applied set as rows of a table in the project itself.
type Appwrite struct {
	tables     TablesAPI
	waiter     Waiter
	databaseID string
	tableID    string
}

var _ Tracker = (*Appwrite)(nil)

func NewAppwrite(cfg AppwriteConfig) (*Appwrite, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("appwrite ledger config: %w", err)
	}

	a := &Appwrite{
		tables:     cfg.Tables,
		waiter:     cfg.Waiter,
		databaseID: cfg.DatabaseID,
		tableID:    cfg.TableID,
	}

	if a.databaseID == "" {
		a.databaseID = DefaultDatabaseID
	}

	if a.tableID == "" {
		a.tableID = DefaultTableID
	}

	return a, nil
}

func (a *Appwrite) EnsureStore(ctx context.Context) error {
	if err := a.ensureDatabase(ctx); err != nil {
		return err
	}

	if err := a.ensureTable(ctx); err != nil {
		return err
	}

	created, err := a.ensureColumns(ctx)
	if err != nil {
		return err
	}

	if len(created) == 0 {
		return nil
	}

	report := a.waiter.Wait(ctx, []snapshot.Pair{{
		DatabaseID: a.databaseID,
		TableID:    a.tableID,
		Name:       "Migrations",
		ColumnKeys: created,
	}})

	if !report.Converged() {
		res := report.Abandoned()[0]
		return fmt.Errorf("applied set columns of %s/%s not available: %s", a.databaseID, a.tableID, res.Reason)
	}

	return nil
}

func (a *Appwrite) ensureDatabase(ctx context.Context) error {
	_, err := a.tables.GetDatabase(ctx, a.databaseID)
	if err == nil {
		return nil
	}

	if !appwrite.IsNotFound(err) {
		return fmt.Errorf("get database %s: %w", a.databaseID, err)
	}

	ylog.Info(ctx, "creating applied set database", ylog.KV("database", a.databaseID))
	_, err = a.tables.CreateDatabase(ctx, a.databaseID, "System")
	if err != nil && !appwrite.IsConflict(err) {
		return fmt.Errorf("create database %s: %w", a.databaseID, err)
	}

	return nil
}

func (a *Appwrite) ensureTable(ctx context.Context) error {
	_, err := a.tables.GetTable(ctx, a.databaseID, a.tableID)
	if err == nil {
		return nil
	}

	if !appwrite.IsNotFound(err) {
		return fmt.Errorf("get table %s/%s: %w", a.databaseID, a.tableID, err)
	}

	ylog.Info(ctx, "creating applied set table", ylog.KV("table", a.tableID))
	_, err = a.tables.CreateTable(ctx, a.databaseID, a.tableID, "Migrations")
	if err != nil && !appwrite.IsConflict(err) {
		return fmt.Errorf("create table %s/%s: %w", a.databaseID, a.tableID, err)
	}

	return nil
}

// ensureColumns creates the missing columns and returns their keys.
func (a *Appwrite) ensureColumns(ctx context.Context) (created []string, err error) {
	existing, err := a.tables.ListColumns(ctx, a.databaseID, a.tableID)
	if err != nil {
		err = fmt.Errorf("list columns of %s/%s: %w", a.databaseID, a.tableID, err)
		return
	}

	byKey := make(map[string]appwrite.Column, len(existing))
	for _, c := range existing {
		byKey[c.Key] = c
	}

	resource := fmt.Sprintf("%s/%s", a.databaseID, a.tableID)
	for _, want := range storeColumns {
		got, exist := byKey[want.key]
		if exist {
			if got.Type != want.typ {
				err = &StoreConflictError{
					Resource: resource,
					Reason:   fmt.Sprintf("column %s has type %s, want %s", want.key, got.Type, want.typ),
				}
				return
			}

			if want.size > 0 && got.Size < want.size {
				err = &StoreConflictError{
					Resource: resource,
					Reason:   fmt.Sprintf("column %s has size %d, want at least %d", want.key, got.Size, want.size),
				}
				return
			}

			continue
		}

		switch want.typ {
		case "datetime":
			_, err = a.tables.CreateDatetimeColumn(ctx, a.databaseID, a.tableID, want.key, true)
		default:
			_, err = a.tables.CreateStringColumn(ctx, a.databaseID, a.tableID, want.key, want.size, true)
		}

		if err != nil {
			err = fmt.Errorf("create column %s on %s: %w", want.key, resource, err)
			return
		}

		ylog.Info(ctx, "created applied set column", ylog.KV("table", resource), ylog.KV("column", want.key))
		created = append(created, want.key)
	}

	return
}

func (a *Appwrite) LoadAppliedIDs(ctx context.Context) (map[string]struct{}, error) {
	records, err := a.Records(ctx)
	if err != nil {
		return nil, err
	}

	return idSet(records), nil
}

func (a *Appwrite) Records(ctx context.Context) ([]Record, error) {
	records := make([]Record, 0)
	cursor := ""
	for {
		queries := []string{appwrite.Limit(pageSize)}
		if cursor != "" {
			queries = append(queries, appwrite.CursorAfter(cursor))
		}

		page, err := a.tables.ListRows(ctx, a.databaseID, a.tableID, queries...)
		if appwrite.IsNotFound(err) {
			return records, nil
		}

		if err != nil {
			return nil, fmt.Errorf("list applied migrations: %w", err)
		}

		for _, row := range page.Rows {
			records = append(records, Record{
				ID:        row.String(columnMigrationID),
				Version:   row.String(columnVersion),
				AppliedAt: parseTime(row.String(columnAppliedAt)),
			})
		}

		if len(page.Rows) < pageSize {
			return records, nil
		}

		cursor = page.Rows[len(page.Rows)-1].ID
	}
}

func (a *Appwrite) RecordApplied(ctx context.Context, id, versionLabel string) error {
	data := map[string]interface{}{
		columnMigrationID: id,
		columnVersion:     versionLabel,
		columnAppliedAt:   time.Now().UTC().Format(time.RFC3339Nano),
	}

	_, err := a.tables.CreateRow(ctx, a.databaseID, a.tableID, uuid.NewV4().String(), data)
	if err != nil {
		return fmt.Errorf("record migration %s: %w", id, err)
	}

	return nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}

	return t.UTC()
}
