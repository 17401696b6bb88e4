package gateway

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/mattjoyce/herald"
	"github.com/mattjoyce/herald/internal/events"
)

// observingEmitter wraps the listener registry so every dispatch is
// observable: it mints a delivery ID, publishes to the activity hub, records
// the audit row, fans out to forward sinks, and only then hands the event to
// the registered listeners.
type observingEmitter struct {
	inner    *herald.Registry
	hub      *events.Hub
	recorder Recorder
	sinks    []*ForwardSink
	logger   *slog.Logger

	delivered atomic.Uint64
	rejected  atomic.Uint64
}

func newObservingEmitter(inner *herald.Registry, hub *events.Hub, recorder Recorder, sinks []*ForwardSink, logger *slog.Logger) *observingEmitter {
	return &observingEmitter{
		inner:    inner,
		hub:      hub,
		recorder: recorder,
		sinks:    sinks,
		logger:   logger.With("component", "emitter"),
	}
}

func (e *observingEmitter) Emit(ctx context.Context, eventType string, event any) error {
	deliveryID := uuid.NewString()
	endpoint, _ := herald.EndpointFromContext(ctx)

	if verr, ok := event.(*herald.VerificationError); ok && eventType == herald.EventError {
		e.observeRejection(ctx, deliveryID, verr)
		return e.inner.Emit(ctx, eventType, event)
	}

	e.observeDelivery(ctx, deliveryID, eventType, endpoint)
	e.forward(deliveryID, eventType, event)
	return e.inner.Emit(ctx, eventType, event)
}

func (e *observingEmitter) observeRejection(ctx context.Context, deliveryID string, verr *herald.VerificationError) {
	e.rejected.Add(1)
	e.logger.Warn("delivery rejected",
		"delivery_id", deliveryID,
		"reason", verr.Reason,
		"endpoint", verr.Endpoint,
	)

	e.hub.Publish("delivery.rejected", map[string]any{
		"delivery_id": deliveryID,
		"reason":      verr.Reason,
		"endpoint":    verr.Endpoint,
	})

	if e.recorder == nil {
		return
	}
	if _, err := e.recorder.RecordRejection(ctx, verr.Reason, verr.Endpoint); err != nil {
		e.logger.Error("failed to record rejection", "delivery_id", deliveryID, "error", err)
	}
}

func (e *observingEmitter) observeDelivery(ctx context.Context, deliveryID, eventType, endpoint string) {
	listenerCount := len(e.inner.Listeners(eventType))

	e.delivered.Add(1)
	e.logger.Info("delivery completed",
		"delivery_id", deliveryID,
		"type", eventType,
		"endpoint", endpoint,
		"listeners", listenerCount,
	)

	e.hub.Publish("delivery.completed", map[string]any{
		"delivery_id": deliveryID,
		"type":        eventType,
		"endpoint":    endpoint,
		"listeners":   listenerCount,
	})

	if e.recorder == nil {
		return
	}
	if _, err := e.recorder.RecordDelivery(ctx, eventType, endpoint, listenerCount); err != nil {
		e.logger.Error("failed to record delivery", "delivery_id", deliveryID, "error", err)
	}
}

// forward fans the event out to matching sinks. Fire-and-forget: forwarding
// never delays the HTTP response and is never retried.
func (e *observingEmitter) forward(deliveryID, eventType string, event any) {
	for _, sink := range e.sinks {
		if !sink.Matches(eventType) {
			continue
		}
		go func(sink *ForwardSink) {
			if err := sink.Deliver(context.Background(), deliveryID, eventType, event); err != nil {
				e.logger.Error("forward failed",
					"delivery_id", deliveryID,
					"sink", sink.Name(),
					"error", err,
				)
			}
		}(sink)
	}
}
