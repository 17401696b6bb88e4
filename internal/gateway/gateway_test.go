package gateway

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/herald"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/events"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRecorder captures audit calls without a database.
type fakeRecorder struct {
	mu         sync.Mutex
	deliveries []string
	rejections []string
}

func (f *fakeRecorder) RecordDelivery(_ context.Context, eventType, _ string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deliveries = append(f.deliveries, eventType)
	return "rec-1", nil
}

func (f *fakeRecorder) RecordRejection(_ context.Context, reason, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejections = append(f.rejections, reason)
	return "rec-2", nil
}

func testConfig() *config.Config {
	cfg := config.Defaults()
	cfg.Gateway.SigningSecret = testSecret
	cfg.Gateway.EventsPath = "/slack/events"
	return cfg
}

func signedRequest(path string, body []byte) *http.Request {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set(herald.TimestampHeader, timestamp)
	req.Header.Set(herald.SignatureHeader, herald.Sign([]byte(testSecret), timestamp, body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestGatewayObservesDelivery(t *testing.T) {
	hub := events.NewHub(32)
	recorder := &fakeRecorder{}

	gw, err := New(testConfig(), hub, recorder, testLogger())
	require.NoError(t, err)

	received := make(chan any, 1)
	gw.On("app_mention", func(_ context.Context, event any) error {
		received <- event
		return nil
	})

	body := []byte(`{"type":"event_callback","event":{"type":"app_mention","text":"hi"}}`)
	rec := httptest.NewRecorder()
	gw.Adapter().Handler().ServeHTTP(rec, signedRequest("/slack/events", body))

	assert.Equal(t, http.StatusOK, rec.Code)

	select {
	case envelope := <-received:
		m := envelope.(map[string]any)
		assert.Equal(t, "event_callback", m["type"])
	default:
		t.Fatal("listener never ran")
	}

	stats := gw.Snapshot()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Zero(t, stats.Rejected)
	assert.Equal(t, 1, stats.Listeners)

	assert.Equal(t, []string{"app_mention"}, recorder.deliveries)

	published := hub.SnapshotSince(0, "delivery.")
	require.Len(t, published, 1)
	assert.Equal(t, "delivery.completed", published[0].Type)
	assert.Contains(t, string(published[0].Data), `"endpoint":"/slack/events"`)
}

func TestGatewayObservesRejection(t *testing.T) {
	hub := events.NewHub(32)
	recorder := &fakeRecorder{}

	gw, err := New(testConfig(), hub, recorder, testLogger())
	require.NoError(t, err)

	var verr *herald.VerificationError
	gw.On(herald.EventError, func(_ context.Context, event any) error {
		verr = event.(*herald.VerificationError)
		return nil
	})

	body := []byte(`{"type":"event_callback","event":{"type":"app_mention"}}`)
	req := httptest.NewRequest("POST", "/slack/events", bytes.NewReader(body))
	req.Header.Set(herald.TimestampHeader, "1")
	req.Header.Set(herald.SignatureHeader, herald.Sign([]byte(testSecret), "1", body))

	rec := httptest.NewRecorder()
	gw.Adapter().Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	require.NotNil(t, verr)
	assert.Equal(t, herald.ReasonInvalidTimestamp, verr.Reason)

	stats := gw.Snapshot()
	assert.Zero(t, stats.Delivered)
	assert.Equal(t, uint64(1), stats.Rejected)

	assert.Equal(t, []string{herald.ReasonInvalidTimestamp}, recorder.rejections)

	published := hub.SnapshotSince(0, "delivery.rejected")
	require.Len(t, published, 1)
	assert.Contains(t, string(published[0].Data), herald.ReasonInvalidTimestamp)
}

func TestGatewayRunsWithoutRecorder(t *testing.T) {
	hub := events.NewHub(32)

	gw, err := New(testConfig(), hub, nil, testLogger())
	require.NoError(t, err)

	body := []byte(`{"type":"event_callback","event":{"type":"message"}}`)
	rec := httptest.NewRecorder()
	gw.Adapter().Handler().ServeHTTP(rec, signedRequest("/slack/events", body))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, uint64(1), gw.Snapshot().Delivered)
}

func TestGatewayServesConfiguredOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.OptionsPath = "/slack/options"
	cfg.Gateway.Options = []config.MenuOption{{Text: "Alpha", Value: "a"}}

	gw, err := New(cfg, events.NewHub(32), nil, testLogger())
	require.NoError(t, err)

	payload := `payload=%7B%22type%22%3A%22block_suggestion%22%7D`
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest("POST", "/slack/options", bytes.NewReader([]byte(payload)))
	req.Header.Set(herald.TimestampHeader, timestamp)
	req.Header.Set(herald.SignatureHeader, herald.Sign([]byte(testSecret), timestamp, []byte(payload)))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec := httptest.NewRecorder()
	gw.Adapter().Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"Alpha"`)
	assert.Contains(t, rec.Body.String(), `"value":"a"`)
}

func TestNewRejectsInvalidAdapterConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Gateway.SigningSecret = ""

	_, err := New(cfg, events.NewHub(32), nil, testLogger())
	assert.Error(t, err)
}
