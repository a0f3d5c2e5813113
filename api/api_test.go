package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"groupage/core"
	"groupage/service"
	"groupage/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// memStore is a minimal in-memory AnnouncementStore for handler tests.
type memStore struct {
	records map[string]*core.Announcement
	listErr error
}

func (m *memStore) ListActive(context.Context) ([]core.Announcement, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []core.Announcement
	for _, r := range m.records {
		if r.Status == core.StatusPublished && r.ExpiresAt != "" {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) ListPublished(context.Context) ([]core.Announcement, error) {
	var out []core.Announcement
	for _, r := range m.records {
		if r.Status == core.StatusPublished {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memStore) ListAll(context.Context) ([]core.Announcement, error) {
	var out []core.Announcement
	for _, r := range m.records {
		out = append(out, *r)
	}
	return out, nil
}

func (m *memStore) GetByReference(_ context.Context, reference string) (*core.Announcement, error) {
	for _, r := range m.records {
		if r.Reference == reference {
			cp := *r
			return &cp, nil
		}
	}
	return nil, &storage.StoreError{Op: "get", StatusCode: http.StatusNotFound, Body: "no record for reference"}
}

func (m *memStore) Patch(_ context.Context, id string, fields core.FieldPatch) (*core.Announcement, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("unknown record %s", id)
	}
	for name, value := range fields {
		s, _ := value.(string)
		switch name {
		case "status":
			rec.Status = core.Status(s)
		case "expires_at":
			rec.ExpiresAt = s
		case "expired_at":
			rec.ExpiredAt = s
		case "expiration_reason":
			rec.ExpirationReason = core.ExpirationReason(s)
		case "validation_token":
			rec.ValidationToken = s
		case "description":
			rec.Description = s
		}
	}
	cp := *rec
	return &cp, nil
}

func testServer(store *memStore) *Server {
	logger := zap.NewNop().Sugar()
	srv := NewServer(
		service.NewTransitionService(store, logger),
		service.NewSweeperService(store, logger, service.WithPacing(10, 0)),
		service.NewMigratorService(store, logger, service.WithMigratorPacing(10, 0)),
		service.NewAuditorService(store, logger),
		logger,
	)
	srv.now = func() time.Time {
		return time.Date(2024, 3, 16, 0, 0, 1, 0, time.UTC)
	}
	return srv
}

func seedStore() *memStore {
	return &memStore{records: map[string]*core.Announcement{
		"rec1": {
			ID:              "rec1",
			Reference:       "ann-pending",
			Status:          core.StatusPendingValidation,
			RequestType:     core.RequestTypeOffer,
			ValidationToken: "secret-v",
			DeleteToken:     "secret-d",
		},
		"rec2": {
			ID:          "rec2",
			Reference:   "ann-live",
			Status:      core.StatusPublished,
			RequestType: core.RequestTypeOffer,
			DeleteToken: "secret-d",
			ExpiresAt:   "2024-03-16T00:00:00Z",
		},
		"rec3": {
			ID:          "rec3",
			Reference:   "ann-gone",
			Status:      core.StatusExpired,
			RequestType: core.RequestTypeOffer,
			DeleteToken: "secret-d",
			ExpiredAt:   "2024-03-01T00:00:00Z",
		},
	}}
}

func doRequest(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)
	return rr
}

func TestValidateEndpoint(t *testing.T) {
	store := seedStore()
	srv := testServer(store)

	rr := doRequest(t, srv, http.MethodPost, "/api/announcements/ann-pending/validate?token=secret-v", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var view map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &view))
	assert.Equal(t, "published", view["status"])
	// Tokens never leave the engine.
	assert.NotContains(t, rr.Body.String(), "secret-v")
	assert.NotContains(t, rr.Body.String(), "secret-d")

	assert.Equal(t, core.StatusPublished, store.records["rec1"].Status)
	assert.Empty(t, store.records["rec1"].ValidationToken)
}

func TestValidateEndpoint_WrongTokenIs404(t *testing.T) {
	srv := testServer(seedStore())

	rr := doRequest(t, srv, http.MethodPost, "/api/announcements/ann-pending/validate?token=guess", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestValidateEndpoint_UnknownReferenceIs404(t *testing.T) {
	srv := testServer(seedStore())

	rr := doRequest(t, srv, http.MethodPost, "/api/announcements/ann-nope/validate?token=x", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDeleteEndpoint(t *testing.T) {
	store := seedStore()
	srv := testServer(store)

	rr := doRequest(t, srv, http.MethodDelete, "/api/announcements/ann-live?token=secret-d", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, core.StatusDeleted, store.records["rec2"].Status)
}

func TestDeleteEndpoint_AlreadyExpiredIs410(t *testing.T) {
	srv := testServer(seedStore())

	rr := doRequest(t, srv, http.MethodDelete, "/api/announcements/ann-gone?token=secret-d", "")
	assert.Equal(t, http.StatusGone, rr.Code)
}

func TestEditEndpoint(t *testing.T) {
	store := seedStore()
	srv := testServer(store)

	rr := doRequest(t, srv, http.MethodPatch, "/api/announcements/ann-live?token=secret-d",
		`{"description":"conteneur 20 pieds, Le Havre vers Fort-de-France"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "conteneur 20 pieds, Le Havre vers Fort-de-France", store.records["rec2"].Description)
}

func TestEditEndpoint_ImmutableFieldIs422(t *testing.T) {
	srv := testServer(seedStore())

	rr := doRequest(t, srv, http.MethodPatch, "/api/announcements/ann-live?token=secret-d",
		`{"status":"published"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestEditEndpoint_BadBodyIs400(t *testing.T) {
	srv := testServer(seedStore())

	rr := doRequest(t, srv, http.MethodPatch, "/api/announcements/ann-live?token=secret-d", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSweepJobEndpoint(t *testing.T) {
	store := seedStore()
	srv := testServer(store)

	rr := doRequest(t, srv, http.MethodPost, "/api/jobs/sweep", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var summary service.SweepSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Processed)
	assert.Equal(t, 1, summary.Expired)
	assert.Equal(t, core.StatusExpired, store.records["rec2"].Status)
}

func TestSweepJobEndpoint_StoreDownIs502(t *testing.T) {
	store := seedStore()
	store.listErr = errors.New("store unavailable")
	srv := testServer(store)

	rr := doRequest(t, srv, http.MethodPost, "/api/jobs/sweep", "")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
}

func TestAuditJobEndpoint(t *testing.T) {
	srv := testServer(seedStore())

	rr := doRequest(t, srv, http.MethodPost, "/api/jobs/audit", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var report service.AuditReport
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &report))
	assert.Equal(t, 3, report.Scanned)
}

func TestMigrateJobEndpoint(t *testing.T) {
	srv := testServer(seedStore())

	rr := doRequest(t, srv, http.MethodPost, "/api/jobs/migrate", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var summary service.MigrationSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Scanned)
	assert.Equal(t, 1, summary.AlreadySet)
}

func TestHealthEndpoint(t *testing.T) {
	srv := testServer(seedStore())

	rr := doRequest(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}
