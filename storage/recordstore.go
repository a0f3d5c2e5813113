// Package storage implements the client for the external tabular record
// store that holds all announcement records. The engine owns no state
// outside this store.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"groupage/core"
	"groupage/metrics"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout = 15 * time.Second
	// maxResponseSize bounds list responses to protect against memory exhaustion
	maxResponseSize = 20 * 1024 * 1024 // 20MB
)

// Filter formulas understood by the store's list endpoint.
const (
	formulaActive    = `AND({status} = 'published', {expires_at} != '')`
	formulaPublished = `{status} = 'published'`
)

// StoreError is a non-success response from the record store.
type StoreError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a store-level 404.
func IsNotFound(err error) bool {
	var se *StoreError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// Config holds the connection settings for the record store.
type Config struct {
	BaseURL string
	APIKey  string
	BaseID  string
	Table   string
	Timeout time.Duration
	// RequestsPerSecond paces all calls; the store enforces its own rate
	// limit and replies 429 past it.
	RequestsPerSecond float64
	Burst             int
}

// RecordStore talks to the external store over HTTP. It performs no local
// caching: every batch run re-lists from the store. Transient failures are
// not retried within a run; the next scheduled run is the retry.
type RecordStore struct {
	baseURL string
	apiKey  string
	baseID  string
	table   string
	client  *http.Client
	limiter *rate.Limiter
	logger  *zap.SugaredLogger
}

// NewRecordStore creates a record store client.
func NewRecordStore(cfg Config, logger *zap.SugaredLogger) (*RecordStore, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("record store base URL is required")
	}
	if cfg.BaseID == "" || cfg.Table == "" {
		return nil, fmt.Errorf("record store base id and table are required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}

	return &RecordStore{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		baseID:  cfg.BaseID,
		table:   cfg.Table,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
	}, nil
}

// record is the store's wire representation: an opaque id plus a field map.
type record struct {
	ID          string            `json:"id"`
	CreatedTime string            `json:"createdTime,omitempty"`
	Fields      core.Announcement `json:"fields"`
}

type listResponse struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

type patchRequest struct {
	Fields core.FieldPatch `json:"fields"`
}

// ListActive returns published records that carry an expires_at, the
// sweeper's candidate set.
func (rs *RecordStore) ListActive(ctx context.Context) ([]core.Announcement, error) {
	return rs.list(ctx, "active", formulaActive)
}

// ListPublished returns all published records, the backfill's candidate set.
func (rs *RecordStore) ListPublished(ctx context.Context) ([]core.Announcement, error) {
	return rs.list(ctx, "published", formulaPublished)
}

// ListAll returns every record regardless of status, for the auditor.
func (rs *RecordStore) ListAll(ctx context.Context) ([]core.Announcement, error) {
	return rs.list(ctx, "all", "")
}

// GetByReference looks up a single record by its engine-assigned reference.
func (rs *RecordStore) GetByReference(ctx context.Context, reference string) (*core.Announcement, error) {
	formula := fmt.Sprintf(`{reference} = '%s'`, escapeFormulaValue(reference))
	records, err := rs.list(ctx, "get", formula)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &StoreError{Op: "get", StatusCode: http.StatusNotFound, Body: "no record for reference"}
	}
	return &records[0], nil
}

// Patch applies a partial field update to a single record and returns the
// updated announcement.
func (rs *RecordStore) Patch(ctx context.Context, id string, fields core.FieldPatch) (*core.Announcement, error) {
	if id == "" {
		return nil, fmt.Errorf("patch: record id is required")
	}

	body, err := json.Marshal(patchRequest{Fields: fields})
	if err != nil {
		return nil, fmt.Errorf("patch %s: marshal fields: %w", id, err)
	}

	endpoint := fmt.Sprintf("%s/v0/%s/%s/%s", rs.baseURL, rs.baseID, url.PathEscape(rs.table), url.PathEscape(id))
	data, err := rs.do(ctx, "patch", http.MethodPatch, endpoint, body)
	if err != nil {
		return nil, err
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("patch %s: decode response: %w", id, err)
	}
	return announcementFrom(rec), nil
}

// list pages through the store's list endpoint until the offset cursor runs
// out. An empty formula lists everything.
func (rs *RecordStore) list(ctx context.Context, op, formula string) ([]core.Announcement, error) {
	var out []core.Announcement
	offset := ""

	for {
		endpoint := fmt.Sprintf("%s/v0/%s/%s", rs.baseURL, rs.baseID, url.PathEscape(rs.table))
		params := url.Values{}
		if formula != "" {
			params.Set("filterByFormula", formula)
		}
		if offset != "" {
			params.Set("offset", offset)
		}
		if len(params) > 0 {
			endpoint += "?" + params.Encode()
		}

		data, err := rs.do(ctx, op, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}

		var page listResponse
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("list %s: decode response: %w", op, err)
		}

		for _, rec := range page.Records {
			out = append(out, *announcementFrom(rec))
		}

		if page.Offset == "" {
			return out, nil
		}
		offset = page.Offset
	}
}

// do executes a single paced HTTP request. No retry loop here: a transient
// failure surfaces to the caller and the next scheduled run retries.
func (rs *RecordStore) do(ctx context.Context, op, method, endpoint string, body []byte) ([]byte, error) {
	if err := rs.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s: rate limiter: %w", op, err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	if rs.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+rs.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := rs.client.Do(req)
	metrics.StoreRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.StoreRequestErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		metrics.StoreRequestErrors.WithLabelValues(op).Inc()
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.StoreRequestErrors.WithLabelValues(op).Inc()
		rs.logger.Warnw("Record store request failed",
			"operation", op,
			"status", resp.StatusCode,
		)
		return nil, &StoreError{Op: op, StatusCode: resp.StatusCode, Body: truncate(string(data), 200)}
	}

	return data, nil
}

// announcementFrom lifts a wire record into the domain model, preferring
// the explicit created_at field over the store's own record timestamp.
func announcementFrom(rec record) *core.Announcement {
	a := rec.Fields
	a.ID = rec.ID
	if a.CreatedAt == "" {
		a.CreatedAt = rec.CreatedTime
	}
	return &a
}

func escapeFormulaValue(v string) string {
	return strings.ReplaceAll(v, "'", `\'`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
