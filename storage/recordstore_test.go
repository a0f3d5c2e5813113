package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"groupage/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testStore(t *testing.T, handler http.Handler) (*RecordStore, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rs, err := NewRecordStore(Config{
		BaseURL:           srv.URL,
		APIKey:            "key-test",
		BaseID:            "appBase",
		Table:             "annonces",
		RequestsPerSecond: 1000,
		Burst:             100,
	}, zap.NewNop().Sugar())
	require.NoError(t, err)
	return rs, srv
}

func TestRecordStore_ListActive(t *testing.T) {
	var gotFormula, gotAuth string

	rs, _ := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFormula = r.URL.Query().Get("filterByFormula")
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "/v0/appBase/annonces", r.URL.Path)

		json.NewEncoder(w).Encode(map[string]interface{}{
			"records": []map[string]interface{}{
				{
					"id":          "rec001",
					"createdTime": "2024-01-05T10:00:00Z",
					"fields": map[string]interface{}{
						"reference":    "ann-abc",
						"status":       "published",
						"request_type": "offer",
						"expires_at":   "2024-03-16T00:00:00Z",
					},
				},
			},
		})
	}))

	records, err := rs.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "rec001", records[0].ID)
	assert.Equal(t, "ann-abc", records[0].Reference)
	assert.Equal(t, core.StatusPublished, records[0].Status)
	// created_at field absent: falls back to the store's record timestamp
	assert.Equal(t, "2024-01-05T10:00:00Z", records[0].CreatedAt)

	assert.Equal(t, `AND({status} = 'published', {expires_at} != '')`, gotFormula)
	assert.Equal(t, "Bearer key-test", gotAuth)
}

func TestRecordStore_ListPagination(t *testing.T) {
	calls := 0
	rs, _ := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		switch r.URL.Query().Get("offset") {
		case "":
			fmt.Fprint(w, `{"records":[{"id":"rec1","fields":{"status":"published"}}],"offset":"page2"}`)
		case "page2":
			fmt.Fprint(w, `{"records":[{"id":"rec2","fields":{"status":"expired"}}]}`)
		default:
			t.Errorf("unexpected offset %q", r.URL.Query().Get("offset"))
		}
	}))

	records, err := rs.ListAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	require.Len(t, records, 2)
	assert.Equal(t, "rec1", records[0].ID)
	assert.Equal(t, "rec2", records[1].ID)
}

func TestRecordStore_ListFailureIsFatal(t *testing.T) {
	rs, _ := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))

	_, err := rs.ListActive(context.Background())
	require.Error(t, err)

	var se *StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)
}

func TestRecordStore_Patch(t *testing.T) {
	rs, _ := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/v0/appBase/annonces/rec001", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body struct {
			Fields map[string]interface{} `json:"fields"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "expired", body.Fields["status"])

		fmt.Fprint(w, `{"id":"rec001","fields":{"reference":"ann-abc","status":"expired","expired_at":"2024-03-16T00:00:01Z"}}`)
	}))

	updated, err := rs.Patch(context.Background(), "rec001", core.FieldPatch{
		"status":     "expired",
		"expired_at": "2024-03-16T00:00:01Z",
	})
	require.NoError(t, err)
	assert.Equal(t, core.StatusExpired, updated.Status)
	assert.Equal(t, "rec001", updated.ID)
}

func TestRecordStore_PatchError(t *testing.T) {
	rs, _ := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "record not found", http.StatusNotFound)
	}))

	_, err := rs.Patch(context.Background(), "recMissing", core.FieldPatch{"status": "expired"})
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRecordStore_GetByReference(t *testing.T) {
	rs, _ := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, `{reference} = 'ann-abc'`, r.URL.Query().Get("filterByFormula"))
		fmt.Fprint(w, `{"records":[{"id":"rec001","fields":{"reference":"ann-abc","status":"published"}}]}`)
	}))

	a, err := rs.GetByReference(context.Background(), "ann-abc")
	require.NoError(t, err)
	assert.Equal(t, "rec001", a.ID)
}

func TestRecordStore_GetByReferenceNotFound(t *testing.T) {
	rs, _ := testStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"records":[]}`)
	}))

	_, err := rs.GetByReference(context.Background(), "ann-nope")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestRecordStore_ConfigValidation(t *testing.T) {
	logger := zap.NewNop().Sugar()

	_, err := NewRecordStore(Config{BaseID: "b", Table: "t"}, logger)
	assert.Error(t, err)

	_, err = NewRecordStore(Config{BaseURL: "http://store"}, logger)
	assert.Error(t, err)
}

func TestEscapeFormulaValue(t *testing.T) {
	assert.Equal(t, `ann\'x`, escapeFormulaValue("ann'x"))
}
