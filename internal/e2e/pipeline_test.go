package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/herald"
	"github.com/mattjoyce/herald/internal/audit"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/events"
	"github.com/mattjoyce/herald/internal/gateway"
	"github.com/mattjoyce/herald/internal/log"
	"github.com/mattjoyce/herald/internal/storage"
)

const testSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func signedPost(t *testing.T, url, path string, body []byte) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url+path, bytes.NewReader(body))
	require.NoError(t, err)
	ts := fmt.Sprintf("%d", time.Now().Unix())
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(herald.TimestampHeader, ts)
	req.Header.Set(herald.SignatureHeader, herald.Sign([]byte(testSecret), ts, body))
	return req
}

// TestVerifyDispatchObserveAudit drives the full pipeline: a signed event
// callback goes through signature verification, listener dispatch, hub
// publication, audit recording, and sink forwarding. A tampered request is
// rejected and audited without reaching listeners.
func TestVerifyDispatchObserveAudit(t *testing.T) {
	log.Setup("error")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	db, err := storage.OpenSQLite(ctx, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer db.Close()
	store := audit.NewStore(db)

	hub := events.NewHub(64)
	sub, cancelSub := hub.Subscribe("delivery.")
	defer cancelSub()

	// Downstream sink capturing forwarded envelopes.
	forwarded := make(chan map[string]any, 1)
	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		forwarded <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer sink.Close()

	cfg := config.Defaults()
	cfg.Gateway.SigningSecret = testSecret
	cfg.Gateway.EventsPath = "/slack/events"
	cfg.Gateway.Forwards = []config.ForwardConfig{
		{Name: "capture", URL: sink.URL, Timeout: 2 * time.Second},
	}

	gw, err := gateway.New(cfg, hub, store, log.Get())
	require.NoError(t, err)

	var mu sync.Mutex
	var received []map[string]any
	gw.On("app_mention", func(ctx context.Context, event any) error {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, event.(map[string]any))
		return nil
	})

	srv := httptest.NewServer(gw.Adapter().Handler())
	defer srv.Close()

	// 1. A valid signed callback is delivered end to end.
	body := []byte(`{"type":"event_callback","event":{"type":"app_mention","text":"hello"}}`)
	resp, err := http.DefaultClient.Do(signedPost(t, srv.URL, "/slack/events", body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(herald.PoweredByHeader))

	mu.Lock()
	require.Len(t, received, 1)
	assert.Equal(t, "event_callback", received[0]["type"])
	mu.Unlock()

	select {
	case ev := <-sub:
		assert.Equal(t, "delivery.completed", ev.Type)
		var data map[string]any
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, "app_mention", data["type"])
		assert.Equal(t, "/slack/events", data["endpoint"])
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery.completed event on the hub")
	}

	select {
	case envelope := <-forwarded:
		assert.Equal(t, "app_mention", envelope["type"])
		assert.NotEmpty(t, envelope["delivery_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("forward sink never received the envelope")
	}

	// 2. A tampered signature is rejected and never reaches listeners.
	req := signedPost(t, srv.URL, "/slack/events", body)
	req.Header.Set(herald.SignatureHeader, "v0=deadbeef")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	mu.Lock()
	assert.Len(t, received, 1)
	mu.Unlock()

	select {
	case ev := <-sub:
		assert.Equal(t, "delivery.rejected", ev.Type)
		var data map[string]any
		require.NoError(t, json.Unmarshal(ev.Data, &data))
		assert.Equal(t, herald.ReasonInvalidSignature, data["reason"])
	case <-time.After(2 * time.Second):
		t.Fatal("no delivery.rejected event on the hub")
	}

	// 3. Both outcomes landed in the audit trail, newest first.
	records, err := store.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, audit.KindRejected, records[0].Kind)
	assert.Equal(t, herald.ReasonInvalidSignature, records[0].Reason)
	assert.Equal(t, audit.KindDelivered, records[1].Kind)
	assert.Equal(t, "app_mention", records[1].EventType)
	assert.Equal(t, "/slack/events", records[1].Endpoint)
	assert.Equal(t, 1, records[1].ListenerCount)

	// 4. Counters match what went through.
	stats := gw.Snapshot()
	assert.Equal(t, uint64(1), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Rejected)
	assert.Equal(t, 1, stats.Listeners)
}

// TestStaleTimestampRejected covers the replay window end to end.
func TestStaleTimestampRejected(t *testing.T) {
	log.Setup("error")
	hub := events.NewHub(16)

	cfg := config.Defaults()
	cfg.Gateway.SigningSecret = testSecret
	cfg.Gateway.EventsPath = "/slack/events"

	gw, err := gateway.New(cfg, hub, nil, log.Get())
	require.NoError(t, err)

	srv := httptest.NewServer(gw.Adapter().Handler())
	defer srv.Close()

	body := []byte(`{"type":"event_callback","event":{"type":"message"}}`)
	ts := fmt.Sprintf("%d", time.Now().Add(-10*time.Minute).Unix())
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/slack/events", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(herald.TimestampHeader, ts)
	req.Header.Set(herald.SignatureHeader, herald.Sign([]byte(testSecret), ts, body))

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	stats := gw.Snapshot()
	assert.Equal(t, uint64(0), stats.Delivered)
	assert.Equal(t, uint64(1), stats.Rejected)
}
