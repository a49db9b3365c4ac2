package appwrite_test

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTablesDB_ListColumns(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tablesdb/main/tables/users/columns", r.URL.Path)
		_, _ = w.Write([]byte(`{"total":2,"columns":[
			{"key":"email","type":"string","status":"available","size":255,"required":true},
			{"key":"age","type":"integer","status":"processing","required":false}
		]}`))
	})

	columns, err := appwrite.NewTablesDB(client).ListColumns(context.Background(), "main", "users")
	require.NoError(t, err)
	require.Len(t, columns, 2)
	assert.Equal(t, appwrite.ColumnAvailable, columns[0].Status)
	assert.Equal(t, 255, columns[0].Size)
	assert.Equal(t, appwrite.ColumnProcessing, columns[1].Status)
}

func TestTablesDB_ListColumnsPages(t *testing.T) {
	const total = 130

	var pages [][]string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		queries := r.URL.Query()["queries[]"]
		pages = append(pages, queries)

		offset := 0
		for _, raw := range queries {
			var q struct {
				Method string `json:"method"`
				Values []int  `json:"values"`
			}
			if assert.NoError(t, json.Unmarshal([]byte(raw), &q)) && q.Method == "offset" {
				offset = q.Values[0]
			}
		}

		columns := make([]appwrite.Column, 0, appwrite.ColumnPageSize)
		for i := offset; i < total && i < offset+appwrite.ColumnPageSize; i++ {
			columns = append(columns, appwrite.Column{Key: fmt.Sprintf("c%d", i), Status: appwrite.ColumnAvailable})
		}

		b, err := json.Marshal(map[string]interface{}{"total": total, "columns": columns})
		assert.NoError(t, err)
		_, _ = w.Write(b)
	})

	columns, err := appwrite.NewTablesDB(client).ListColumns(context.Background(), "main", "wide")
	require.NoError(t, err)
	require.Len(t, columns, total)
	assert.Equal(t, "c0", columns[0].Key)
	assert.Equal(t, "c129", columns[total-1].Key)

	assert.Equal(t, [][]string{
		{appwrite.Limit(appwrite.ColumnPageSize), appwrite.Offset(0)},
		{appwrite.Limit(appwrite.ColumnPageSize), appwrite.Offset(100)},
	}, pages)
}

func TestTablesDB_ListRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/tablesdb/system/tables/migrations/rows", r.URL.Path)
		assert.Equal(t, []string{appwrite.Limit(100), appwrite.CursorAfter("row-1")}, r.URL.Query()["queries[]"])

		_, _ = w.Write([]byte(`{"total":1,"rows":[
			{"$id":"row-2","$tableId":"migrations","$databaseId":"system","$createdAt":"2024-01-01T00:00:00.000+00:00","migrationId":"A","version":"v1"}
		]}`))
	})

	out, err := appwrite.NewTablesDB(client).ListRows(context.Background(), "system", "migrations",
		appwrite.Limit(100), appwrite.CursorAfter("row-1"))
	require.NoError(t, err)
	require.Len(t, out.Rows, 1)

	row := out.Rows[0]
	assert.Equal(t, "row-2", row.ID)
	assert.Equal(t, "migrations", row.TableID)
	assert.Equal(t, "A", row.String("migrationId"))
	assert.Equal(t, "v1", row.String("version"))
	assert.NotContains(t, row.Data, "$id")
}

func TestTablesDB_CreateRow(t *testing.T) {
	t.Run("empty id", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("no request expected")
		})

		_, err := appwrite.NewTablesDB(client).CreateRow(context.Background(), "db", "t", "", nil)
		assert.Error(t, err)
	})

	t.Run("ok", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)

			var body struct {
				RowID string            `json:"rowId"`
				Data  map[string]string `json:"data"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "r1", body.RowID)
			assert.Equal(t, "B", body.Data["migrationId"])

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"$id":"r1","migrationId":"B"}`))
		})

		row, err := appwrite.NewTablesDB(client).CreateRow(context.Background(), "db", "t", "r1",
			map[string]string{"migrationId": "B"})
		require.NoError(t, err)
		assert.Equal(t, "r1", row.ID)
	})
}

func TestQueries(t *testing.T) {
	assert.JSONEq(t, `{"method":"limit","values":[25]}`, appwrite.Limit(25))
	assert.JSONEq(t, `{"method":"cursorAfter","values":["abc"]}`, appwrite.CursorAfter("abc"))
	assert.JSONEq(t, `{"method":"equal","attribute":"migrationId","values":["A","B"]}`, appwrite.Equal("migrationId", "A", "B"))
	assert.JSONEq(t, `{"method":"orderAsc","attribute":"appliedAt"}`, appwrite.OrderAsc("appliedAt"))
}
