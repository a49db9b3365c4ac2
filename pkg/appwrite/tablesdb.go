package appwrite

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/segmentio/encoding/json"
)

// Column lifecycle states reported by the API.
const (
	ColumnAvailable  = "available"
	ColumnProcessing = "processing"
	ColumnDeleting   = "deleting"
	ColumnStuck      = "stuck"
	ColumnFailed     = "failed"
)

type Database struct {
	ID      string `json:"$id"`
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}

type Table struct {
	ID         string `json:"$id"`
	DatabaseID string `json:"databaseId"`
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
}

type Column struct {
	Key      string `json:"key"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Required bool   `json:"required"`
	Array    bool   `json:"array,omitempty"`
	Size     int    `json:"size,omitempty"`
	Format   string `json:"format,omitempty"`
}

type ColumnList struct {
	Total   int      `json:"total"`
	Columns []Column `json:"columns"`
}

// Row is a table row. System fields are split out, user columns land in Data.
type Row struct {
	ID         string                 `json:"$id"`
	TableID    string                 `json:"$tableId"`
	DatabaseID string                 `json:"$databaseId"`
	CreatedAt  string                 `json:"$createdAt"`
	UpdatedAt  string                 `json:"$updatedAt"`
	Data       map[string]interface{} `json:"-"`
}

func (r *Row) UnmarshalJSON(b []byte) error {
	raw := map[string]interface{}{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	str := func(k string) string {
		s, _ := raw[k].(string)
		return s
	}

	r.ID = str("$id")
	r.TableID = str("$tableId")
	r.DatabaseID = str("$databaseId")
	r.CreatedAt = str("$createdAt")
	r.UpdatedAt = str("$updatedAt")
	r.Data = make(map[string]interface{}, len(raw))
	for k, v := range raw {
		if strings.HasPrefix(k, "$") {
			continue
		}

		r.Data[k] = v
	}

	return nil
}

// String returns the string value of column key, or "" when absent or not a string.
func (r Row) String(key string) string {
	s, _ := r.Data[key].(string)
	return s
}

type RowList struct {
	Total int   `json:"total"`
	Rows  []Row `json:"rows"`
}

// ColumnPageSize is the page size ListColumns asks for. The server default is 25.
const ColumnPageSize = 100

// TablesDB wraps the /tablesdb endpoints.
type TablesDB struct {
	client *Client
}

func NewTablesDB(client *Client) *TablesDB {
	return &TablesDB{client: client}
}

func databasePath(databaseID string) string {
	return "/tablesdb/" + url.PathEscape(databaseID)
}

func tablePath(databaseID, tableID string) string {
	return databasePath(databaseID) + "/tables/" + url.PathEscape(tableID)
}

func (t *TablesDB) GetDatabase(ctx context.Context, databaseID string) (out Database, err error) {
	err = t.client.Call(ctx, http.MethodGet, databasePath(databaseID), nil, nil, &out)
	return
}

func (t *TablesDB) CreateDatabase(ctx context.Context, databaseID, name string) (out Database, err error) {
	body := map[string]interface{}{
		"databaseId": databaseID,
		"name":       name,
		"enabled":    true,
	}

	err = t.client.Call(ctx, http.MethodPost, "/tablesdb", nil, body, &out)
	return
}

func (t *TablesDB) GetTable(ctx context.Context, databaseID, tableID string) (out Table, err error) {
	err = t.client.Call(ctx, http.MethodGet, tablePath(databaseID, tableID), nil, nil, &out)
	return
}

func (t *TablesDB) CreateTable(ctx context.Context, databaseID, tableID, name string) (out Table, err error) {
	body := map[string]interface{}{
		"tableId": tableID,
		"name":    name,
		"enabled": true,
	}

	err = t.client.Call(ctx, http.MethodPost, databasePath(databaseID)+"/tables", nil, body, &out)
	return
}

// ListColumns returns every column of the table, paging until Total is reached.
func (t *TablesDB) ListColumns(ctx context.Context, databaseID, tableID string) ([]Column, error) {
	columns := make([]Column, 0)
	for {
		q := url.Values{"queries[]": []string{Limit(ColumnPageSize), Offset(len(columns))}}

		var out ColumnList
		err := t.client.Call(ctx, http.MethodGet, tablePath(databaseID, tableID)+"/columns", q, nil, &out)
		if err != nil {
			return nil, err
		}

		columns = append(columns, out.Columns...)
		if len(out.Columns) == 0 || len(columns) >= out.Total {
			return columns, nil
		}
	}
}

func (t *TablesDB) CreateStringColumn(ctx context.Context, databaseID, tableID, key string, size int, required bool) (out Column, err error) {
	body := map[string]interface{}{
		"key":      key,
		"size":     size,
		"required": required,
	}

	err = t.client.Call(ctx, http.MethodPost, tablePath(databaseID, tableID)+"/columns/string", nil, body, &out)
	return
}

func (t *TablesDB) CreateDatetimeColumn(ctx context.Context, databaseID, tableID, key string, required bool) (out Column, err error) {
	body := map[string]interface{}{
		"key":      key,
		"required": required,
	}

	err = t.client.Call(ctx, http.MethodPost, tablePath(databaseID, tableID)+"/columns/datetime", nil, body, &out)
	return
}

// ListRows lists rows; queries are built with Limit, CursorAfter, Equal and friends.
func (t *TablesDB) ListRows(ctx context.Context, databaseID, tableID string, queries ...string) (out RowList, err error) {
	var q url.Values
	if len(queries) > 0 {
		q = url.Values{"queries[]": queries}
	}

	err = t.client.Call(ctx, http.MethodGet, tablePath(databaseID, tableID)+"/rows", q, nil, &out)
	return
}

func (t *TablesDB) GetRow(ctx context.Context, databaseID, tableID, rowID string) (out Row, err error) {
	err = t.client.Call(ctx, http.MethodGet, tablePath(databaseID, tableID)+"/rows/"+url.PathEscape(rowID), nil, nil, &out)
	return
}

func (t *TablesDB) CreateRow(ctx context.Context, databaseID, tableID, rowID string, data interface{}) (out Row, err error) {
	if rowID == "" {
		err = fmt.Errorf("create row in %s/%s: empty row id", databaseID, tableID)
		return
	}

	body := map[string]interface{}{
		"rowId": rowID,
		"data":  data,
	}

	err = t.client.Call(ctx, http.MethodPost, tablePath(databaseID, tableID)+"/rows", nil, body, &out)
	return
}

func (t *TablesDB) UpdateRow(ctx context.Context, databaseID, tableID, rowID string, data interface{}) (out Row, err error) {
	body := map[string]interface{}{
		"data": data,
	}

	err = t.client.Call(ctx, http.MethodPatch, tablePath(databaseID, tableID)+"/rows/"+url.PathEscape(rowID), nil, body, &out)
	return
}

func (t *TablesDB) DeleteRow(ctx context.Context, databaseID, tableID, rowID string) error {
	return t.client.Call(ctx, http.MethodDelete, tablePath(databaseID, tableID)+"/rows/"+url.PathEscape(rowID), nil, nil, nil)
}
