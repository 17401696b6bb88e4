package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/mattjoyce/herald/internal/config"
)

// ForwardSink POSTs dispatched events to a downstream HTTP endpoint. One
// request per dispatch, no retries; failures are the caller's to log.
type ForwardSink struct {
	name       string
	url        string
	eventTypes map[string]struct{}
	client     *http.Client
	logger     *slog.Logger
}

// forwardBody is the JSON document POSTed to a sink.
type forwardBody struct {
	DeliveryID string `json:"delivery_id"`
	Type       string `json:"type"`
	Event      any    `json:"event"`
}

// NewForwardSink builds a sink from config.
func NewForwardSink(fc config.ForwardConfig, logger *slog.Logger) *ForwardSink {
	timeout := fc.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	var types map[string]struct{}
	if len(fc.EventTypes) > 0 {
		types = make(map[string]struct{}, len(fc.EventTypes))
		for _, t := range fc.EventTypes {
			types[t] = struct{}{}
		}
	}

	return &ForwardSink{
		name:       fc.Name,
		url:        fc.URL,
		eventTypes: types,
		client:     &http.Client{Timeout: timeout},
		logger:     logger.With("component", "forward", "sink", fc.Name),
	}
}

// Name identifies the sink in logs and errors.
func (s *ForwardSink) Name() string { return s.name }

// Matches reports whether the sink wants events of the given type. A sink
// with no configured types takes everything.
func (s *ForwardSink) Matches(eventType string) bool {
	if s.eventTypes == nil {
		return true
	}
	_, ok := s.eventTypes[eventType]
	return ok
}

// Deliver POSTs one event to the sink.
func (s *ForwardSink) Deliver(ctx context.Context, deliveryID, eventType string, event any) error {
	body, err := json.Marshal(forwardBody{
		DeliveryID: deliveryID,
		Type:       eventType,
		Event:      event,
	})
	if err != nil {
		return fmt.Errorf("encode forward body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("forward to %s: %w", s.name, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("forward to %s: unexpected status %d", s.name, resp.StatusCode)
	}

	s.logger.Debug("event forwarded", "delivery_id", deliveryID, "type", eventType)
	return nil
}
