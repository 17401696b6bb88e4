package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/herald/internal/audit"
	"github.com/mattjoyce/herald/internal/auth"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/gateway"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeStats is a fixed StatsSource.
type fakeStats struct {
	stats gateway.Stats
}

func (f fakeStats) Snapshot() gateway.Stats { return f.stats }

// fakeAudit returns canned records or an error.
type fakeAudit struct {
	records []audit.Record
	err     error

	gotLimit int
}

func (f *fakeAudit) Recent(_ context.Context, limit int) ([]audit.Record, error) {
	f.gotLimit = limit
	return f.records, f.err
}

func newTestServer(auditReader AuditReader, stats StatsSource) *Server {
	return New(Config{
		Listen: "127.0.0.1:0",
		APIKey: "test-admin-key",
		Tokens: []auth.TokenConfig{
			{Token: "events-token", Scopes: []string{"events:ro"}},
			{Token: "audit-token", Scopes: []string{"audit:ro"}},
		},
	}, events.NewHub(32), auditReader, stats, testLogger())
}

func doRequest(s *Server, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.setupRoutes().ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsUnauthenticated(t *testing.T) {
	s := newTestServer(nil, fakeStats{stats: gateway.Stats{Delivered: 7, Rejected: 2, Listeners: 3}})

	rec := doRequest(s, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, uint64(7), resp.Delivered)
	assert.Equal(t, uint64(2), resp.Rejected)
	assert.Equal(t, 3, resp.Listeners)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(&fakeAudit{}, nil)

	for _, path := range []string{"/events", "/audit/recent", "/openapi.json"} {
		rec := doRequest(s, http.MethodGet, path, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "path %s", path)
	}
}

func TestInvalidTokenRejected(t *testing.T) {
	s := newTestServer(&fakeAudit{}, nil)

	rec := doRequest(s, http.MethodGet, "/audit/recent", "wrong-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScopeEnforcement(t *testing.T) {
	s := newTestServer(&fakeAudit{}, nil)

	// events token cannot read the audit trail.
	rec := doRequest(s, http.MethodGet, "/audit/recent", "events-token")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// audit token can.
	rec = doRequest(s, http.MethodGet, "/audit/recent", "audit-token")
	assert.Equal(t, http.StatusOK, rec.Code)

	// legacy key is admin.
	rec = doRequest(s, http.MethodGet, "/audit/recent", "test-admin-key")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuditRecentReturnsRecords(t *testing.T) {
	reader := &fakeAudit{records: []audit.Record{
		{ID: "r-1", Kind: audit.KindDelivered, EventType: "message", Endpoint: "/slack/events", ReceivedAt: time.Now().UTC()},
	}}
	s := newTestServer(reader, nil)

	rec := doRequest(s, http.MethodGet, "/audit/recent?limit=10", "audit-token")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 10, reader.gotLimit)

	var resp AuditRecentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "message", resp.Records[0].EventType)
}

func TestAuditRecentLimitValidation(t *testing.T) {
	reader := &fakeAudit{}
	s := newTestServer(reader, nil)

	rec := doRequest(s, http.MethodGet, "/audit/recent?limit=nope", "audit-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(s, http.MethodGet, "/audit/recent?limit=-1", "audit-token")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Oversized limits are capped, not rejected.
	rec = doRequest(s, http.MethodGet, "/audit/recent?limit=9999", "audit-token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, maxAuditLimit, reader.gotLimit)
}

func TestAuditRecentWhenDisabled(t *testing.T) {
	s := newTestServer(nil, nil)

	rec := doRequest(s, http.MethodGet, "/audit/recent", "audit-token")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditRecentStoreFailure(t *testing.T) {
	s := newTestServer(&fakeAudit{err: errors.New("db locked")}, nil)

	rec := doRequest(s, http.MethodGet, "/audit/recent", "audit-token")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "db locked")
}

func TestOpenAPIDocServed(t *testing.T) {
	s := newTestServer(nil, nil)

	rec := doRequest(s, http.MethodGet, "/openapi.json", "test-admin-key")
	require.Equal(t, http.StatusOK, rec.Code)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	assert.Equal(t, "3.1.0", doc["openapi"])

	paths, ok := doc["paths"].(map[string]any)
	require.True(t, ok)
	for _, p := range []string{"/healthz", "/events", "/audit/recent", "/openapi.json"} {
		assert.Contains(t, paths, p)
	}
}
