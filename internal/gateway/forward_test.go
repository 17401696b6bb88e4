package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/herald/internal/config"
)

func TestForwardSinkDeliversEvent(t *testing.T) {
	t.Parallel()

	var got forwardBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink := NewForwardSink(config.ForwardConfig{
		Name: "downstream",
		URL:  srv.URL,
	}, testLogger())

	err := sink.Deliver(context.Background(), "d-1", "message", map[string]any{"text": "hi"})
	require.NoError(t, err)

	assert.Equal(t, "d-1", got.DeliveryID)
	assert.Equal(t, "message", got.Type)
}

func TestForwardSinkReportsBadStatus(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	sink := NewForwardSink(config.ForwardConfig{Name: "downstream", URL: srv.URL}, testLogger())

	err := sink.Deliver(context.Background(), "d-1", "message", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestForwardSinkMatchesEventTypes(t *testing.T) {
	t.Parallel()

	all := NewForwardSink(config.ForwardConfig{Name: "all", URL: "http://example.invalid"}, testLogger())
	assert.True(t, all.Matches("message"))
	assert.True(t, all.Matches("app_mention"))

	some := NewForwardSink(config.ForwardConfig{
		Name:       "some",
		URL:        "http://example.invalid",
		EventTypes: []string{"message"},
	}, testLogger())
	assert.True(t, some.Matches("message"))
	assert.False(t, some.Matches("app_mention"))
}

func TestForwardSinkTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sink := NewForwardSink(config.ForwardConfig{
		Name:    "slow",
		URL:     srv.URL,
		Timeout: 50 * time.Millisecond,
	}, testLogger())

	err := sink.Deliver(context.Background(), "d-1", "message", nil)
	assert.Error(t, err)
}
