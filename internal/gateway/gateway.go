// Package gateway composes the herald library into the standalone service:
// it builds the adapter from application config, observes every dispatch for
// the activity hub and the audit trail, and forwards events to configured
// downstream sinks.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/mattjoyce/herald"
	"github.com/mattjoyce/herald/internal/config"
	"github.com/mattjoyce/herald/internal/events"
)

// Recorder persists verification outcomes. audit.Store satisfies it; a nil
// Recorder disables the audit trail.
type Recorder interface {
	RecordDelivery(ctx context.Context, eventType, endpoint string, listenerCount int) (string, error)
	RecordRejection(ctx context.Context, reason, endpoint string) (string, error)
}

// Stats is a point-in-time snapshot of gateway activity counters.
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Rejected  uint64 `json:"rejected"`
	Listeners int    `json:"listeners"`
	StartedAt time.Time
}

// Gateway runs the event adapter with observation wired in.
type Gateway struct {
	cfg       *config.Config
	adapter   *herald.Adapter
	registry  *herald.Registry
	emitter   *observingEmitter
	logger    *slog.Logger
	listeners atomic.Int64
	startedAt time.Time
}

// New builds a gateway from application config. The recorder may be nil when
// the audit trail is disabled.
func New(cfg *config.Config, hub *events.Hub, recorder Recorder, logger *slog.Logger) (*Gateway, error) {
	registry := herald.NewRegistry()

	sinks := make([]*ForwardSink, 0, len(cfg.Gateway.Forwards))
	for _, fc := range cfg.Gateway.Forwards {
		sinks = append(sinks, NewForwardSink(fc, logger))
	}

	emitter := newObservingEmitter(registry, hub, recorder, sinks, logger)

	adapter, err := herald.New(herald.Config{
		SigningSecret:   cfg.Gateway.SigningSecret,
		EventsPath:      cfg.Gateway.EventsPath,
		InteractivePath: cfg.Gateway.InteractivePath,
		OptionsPath:     cfg.Gateway.OptionsPath,
		Tolerance:       cfg.Gateway.Tolerance,
		MaxBodySize:     cfg.Gateway.MaxBodySize,
		Listen:          cfg.Gateway.Listen,
		Registry:        registry,
		Emitter:         emitter,
		Options:         staticOptions(cfg.Gateway.Options),
		Logger:          logger.With("component", "gateway"),
	})
	if err != nil {
		return nil, fmt.Errorf("build event adapter: %w", err)
	}

	return &Gateway{
		cfg:      cfg,
		adapter:  adapter,
		registry: registry,
		emitter:  emitter,
		logger:   logger.With("component", "gateway"),
	}, nil
}

// On registers a listener for eventType.
func (g *Gateway) On(eventType string, fn herald.Listener) {
	g.listeners.Add(1)
	g.registry.On(eventType, fn)
}

// Adapter exposes the underlying library adapter, mainly for tests and for
// binding routes onto an external router.
func (g *Gateway) Adapter() *herald.Adapter {
	return g.adapter
}

// Start runs the gateway's HTTP server until ctx is cancelled (blocking).
func (g *Gateway) Start(ctx context.Context) error {
	g.startedAt = time.Now()
	g.emitter.hub.Publish("gateway.started", map[string]any{
		"listen":    g.cfg.Gateway.Listen,
		"endpoints": g.endpointPaths(),
	})
	return g.adapter.Start(ctx)
}

// Snapshot returns current activity counters.
func (g *Gateway) Snapshot() Stats {
	return Stats{
		Delivered: g.emitter.delivered.Load(),
		Rejected:  g.emitter.rejected.Load(),
		Listeners: int(g.listeners.Load()),
		StartedAt: g.startedAt,
	}
}

func (g *Gateway) endpointPaths() []string {
	var out []string
	for _, p := range []string{g.cfg.Gateway.EventsPath, g.cfg.Gateway.InteractivePath, g.cfg.Gateway.OptionsPath} {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// staticOptions converts the configured option list into a provider. A nil
// provider is returned when no options are configured so library defaults
// apply.
func staticOptions(opts []config.MenuOption) herald.OptionsProvider {
	if len(opts) == 0 {
		return nil
	}
	out := make([]herald.Option, 0, len(opts))
	for _, o := range opts {
		out = append(out, herald.PlainTextOption(o.Text, o.Value))
	}
	return herald.StaticOptions(out...)
}
