package appwrite_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bfbechlin/appwrite-ctl/pkg/appwrite"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *appwrite.Client {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := appwrite.NewClient(appwrite.Config{
		Endpoint:  srv.URL + "/v1",
		ProjectID: "project-1",
		APIKey:    "secret",
	})
	require.NoError(t, err)
	return client
}

func TestNewClient(t *testing.T) {
	t.Run("missing fields", func(t *testing.T) {
		c, err := appwrite.NewClient(appwrite.Config{})
		assert.Nil(t, c)
		assert.Error(t, err)
	})

	t.Run("bad endpoint", func(t *testing.T) {
		c, err := appwrite.NewClient(appwrite.Config{Endpoint: "not a url", ProjectID: "p", APIKey: "k"})
		assert.Nil(t, c)
		assert.Error(t, err)
	})

	t.Run("ok", func(t *testing.T) {
		c, err := appwrite.NewClient(appwrite.Config{Endpoint: "https://cloud.appwrite.io/v1/", ProjectID: "p", APIKey: "k"})
		require.NoError(t, err)
		assert.Equal(t, "https://cloud.appwrite.io/v1", c.Endpoint())
		assert.Equal(t, "p", c.ProjectID())
	})
}

func TestClient_Call(t *testing.T) {
	t.Run("headers and body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/things", r.URL.Path)
			assert.Equal(t, "project-1", r.Header.Get("X-Appwrite-Project"))
			assert.Equal(t, "secret", r.Header.Get("X-Appwrite-Key"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			b, _ := io.ReadAll(r.Body)
			assert.JSONEq(t, `{"name":"x"}`, string(b))

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"$id":"abc"}`))
		})

		var out struct {
			ID string `json:"$id"`
		}
		err := client.Call(context.Background(), http.MethodPost, "/things", nil, map[string]string{"name": "x"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "abc", out.ID)
	})

	t.Run("api error", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"message": "Database not found",
				"code":    404,
				"type":    "database_not_found",
			})
		})

		err := client.Call(context.Background(), http.MethodGet, "/tablesdb/x", nil, nil, nil)
		require.Error(t, err)
		assert.True(t, appwrite.IsNotFound(err))
		assert.False(t, appwrite.IsServerError(err))

		var apiErr *appwrite.Error
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, "database_not_found", apiErr.Type)
	})

	t.Run("non json error body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("upstream down"))
		})

		err := client.Call(context.Background(), http.MethodGet, "/health", nil, nil, nil)
		require.Error(t, err)
		assert.True(t, appwrite.IsServerError(err))
		assert.Contains(t, err.Error(), "upstream down")
	})
}

func TestStatusCode(t *testing.T) {
	assert.Equal(t, 0, appwrite.StatusCode(errors.New("plain")))
	assert.Equal(t, 409, appwrite.StatusCode(&appwrite.Error{Code: 409}))
	assert.True(t, appwrite.IsConflict(&appwrite.Error{Code: 409}))
}
