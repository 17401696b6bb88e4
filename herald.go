package herald

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Request and response headers used by the platform.
const (
	SignatureHeader = "X-Slack-Signature"
	TimestampHeader = "X-Slack-Request-Timestamp"
	PoweredByHeader = "X-Slack-Powered-By"
)

// Default values
const (
	DefaultListen      = "127.0.0.1:3000"
	DefaultMaxBodySize = 1048576 // 1 MB
)

// notFoundText is the body served to GET probes of the endpoints.
const notFoundText = "These are not the slackbots you're looking for."

// Emitter dispatches an event payload to its listeners. *Registry is the
// default implementation; wrapping it lets callers observe deliveries.
type Emitter interface {
	Emit(ctx context.Context, eventType string, event any) error
}

// RouteBinder registers handlers on an existing HTTP router. Both *chi.Mux
// and *http.ServeMux satisfy it.
type RouteBinder interface {
	Handle(pattern string, handler http.Handler)
}

// Config holds event adapter configuration.
type Config struct {
	// SigningSecret is the shared secret used to verify request signatures.
	// Required. Never logged.
	SigningSecret string

	// EventsPath is the URL path for Events API callbacks and the URL
	// verification handshake (e.g. "/slack/events"). Empty disables the
	// endpoint.
	EventsPath string

	// InteractivePath is the URL path for interactive component payloads.
	// Empty disables the endpoint.
	InteractivePath string

	// OptionsPath is the URL path for external select menu option requests.
	// Empty disables the endpoint.
	OptionsPath string

	// Tolerance is the maximum accepted request timestamp skew
	// (default: DefaultTolerance).
	Tolerance time.Duration

	// MaxBodySize is the maximum allowed request body size in bytes
	// (default: 1MB)
	MaxBodySize int64

	// Listen is the address for Start's built-in server
	// (default: "127.0.0.1:3000"). Unused when routes are bound to an
	// external router instead.
	Listen string

	// Registry receives listener registrations made through On. A fresh
	// registry is created when nil.
	Registry *Registry

	// Emitter dispatches events to listeners (default: Registry). A custom
	// emitter can wrap the registry to observe or fan out deliveries.
	Emitter Emitter

	// Options computes the response for the options endpoint. When nil the
	// endpoint answers with an empty list.
	Options OptionsProvider

	// Logger receives request and dispatch logs (default: slog.Default()).
	// Payload contents and secrets are excluded from log output.
	Logger *slog.Logger
}

// Adapter verifies inbound platform callbacks and dispatches them to
// listeners by event type.
type Adapter struct {
	config    Config
	secret    []byte
	registry  *Registry
	emitter   Emitter
	options   OptionsProvider
	logger    *slog.Logger
	poweredBy string
	server    *http.Server
}

// New creates an event adapter from config.
func New(config Config) (*Adapter, error) {
	if config.SigningSecret == "" {
		return nil, fmt.Errorf("signing secret is required")
	}
	if config.EventsPath == "" && config.InteractivePath == "" && config.OptionsPath == "" {
		return nil, fmt.Errorf("at least one endpoint path is required")
	}

	// Apply defaults
	if config.Tolerance == 0 {
		config.Tolerance = DefaultTolerance
	}
	if config.MaxBodySize == 0 {
		config.MaxBodySize = DefaultMaxBodySize
	}
	if config.Listen == "" {
		config.Listen = DefaultListen
	}

	registry := config.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	emitter := config.Emitter
	if emitter == nil {
		emitter = registry
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Adapter{
		config:    config,
		secret:    []byte(config.SigningSecret),
		registry:  registry,
		emitter:   emitter,
		options:   config.Options,
		logger:    logger,
		poweredBy: PoweredBy(),
	}, nil
}

// On registers a listener for eventType on the adapter's registry.
func (a *Adapter) On(eventType string, fn Listener) {
	a.registry.On(eventType, fn)
}

// BindRoutes registers the configured endpoints on r. Use this to serve the
// adapter from an existing router instead of Start's built-in server.
func (a *Adapter) BindRoutes(r RouteBinder) {
	if p := a.config.EventsPath; p != "" {
		r.Handle(p, a.endpoint(p, a.handleEvents))
	}
	if p := a.config.InteractivePath; p != "" {
		r.Handle(p, a.handleForm(p, a.respondInteractive))
	}
	if p := a.config.OptionsPath; p != "" {
		r.Handle(p, a.handleForm(p, a.respondOptions))
	}
}

// Handler returns an http.Handler serving the configured endpoints with the
// adapter's middleware stack.
func (a *Adapter) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.loggingMiddleware)
	r.Use(middleware.Recoverer)

	a.BindRoutes(r)

	return r
}

// Start runs the adapter's own HTTP server (blocking) until ctx is cancelled
// or the server fails.
func (a *Adapter) Start(ctx context.Context) error {
	a.server = &http.Server{
		Addr:         a.config.Listen,
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	a.logger.Info("event adapter starting", "listen", a.config.Listen, "endpoints", a.endpointCount())

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		a.logger.Info("event adapter shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("event adapter shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("event adapter error: %w", err)
	}
}

func (a *Adapter) endpointCount() int {
	n := 0
	for _, p := range []string{a.config.EventsPath, a.config.InteractivePath, a.config.OptionsPath} {
		if p != "" {
			n++
		}
	}
	return n
}

// loggingMiddleware logs HTTP requests (excludes sensitive payloads).
func (a *Adapter) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		// Log request (no body content for security)
		a.logger.Info("adapter request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type endpointKey struct{}

// EndpointFromContext returns the configured endpoint path that received the
// request behind a dispatched event. Custom emitters wrapping the registry
// can use it to attribute deliveries.
func EndpointFromContext(ctx context.Context) (string, bool) {
	path, ok := ctx.Value(endpointKey{}).(string)
	return path, ok
}

// endpoint wraps a payload handler with the checks shared by every route:
// method filtering, body size limit, replay window, and signature
// verification. The wrapped handler only runs for verified POST bodies.
func (a *Adapter) endpoint(path string, handle func(http.ResponseWriter, *http.Request, []byte)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r = r.WithContext(context.WithValue(r.Context(), endpointKey{}, path))
		if r.Method == http.MethodGet {
			respondNotFound(w)
			return
		}
		if r.Method != http.MethodPost {
			respondEmpty(w, http.StatusMethodNotAllowed)
			return
		}

		// Enforce body size limit
		limited := io.LimitReader(r.Body, a.config.MaxBodySize+1)
		body, err := io.ReadAll(limited)
		if err != nil {
			respondEmpty(w, http.StatusInternalServerError)
			return
		}
		if int64(len(body)) > a.config.MaxBodySize {
			respondEmpty(w, http.StatusRequestEntityTooLarge)
			return
		}

		// Replay window first, then signature, both over the raw body
		timestamp := r.Header.Get(TimestampHeader)
		if !IsFresh(timestamp, time.Now(), a.config.Tolerance) {
			a.reject(r.Context(), w, http.StatusForbidden, &VerificationError{
				Reason:   ReasonInvalidTimestamp,
				Message:  "Invalid request timestamp",
				Endpoint: path,
			})
			return
		}

		if !VerifySignature(a.secret, timestamp, body, r.Header.Get(SignatureHeader)) {
			a.reject(r.Context(), w, http.StatusForbidden, &VerificationError{
				Reason:   ReasonInvalidSignature,
				Message:  "Invalid request signature",
				Endpoint: path,
			})
			return
		}

		handle(w, r, body)
	})
}

// handleEvents processes the events endpoint: URL verification challenges
// and event callback dispatch.
func (a *Adapter) handleEvents(w http.ResponseWriter, r *http.Request, body []byte) {
	path := a.config.EventsPath

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		a.reject(r.Context(), w, http.StatusBadRequest, malformedPayload(path))
		return
	}

	// URL verification handshake: echo the challenge, no dispatch
	if raw, ok := payload["challenge"]; ok {
		challenge, ok := raw.(string)
		if !ok {
			a.reject(r.Context(), w, http.StatusBadRequest, malformedPayload(path))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, challenge)
		return
	}

	if raw, ok := payload["event"]; ok {
		event, ok := raw.(map[string]any)
		if !ok {
			a.reject(r.Context(), w, http.StatusBadRequest, malformedPayload(path))
			return
		}
		eventType, ok := event["type"].(string)
		if !ok || eventType == "" {
			a.reject(r.Context(), w, http.StatusBadRequest, malformedPayload(path))
			return
		}

		// Listeners receive the full callback envelope, not the inner event
		a.dispatch(r.Context(), eventType, payload)
		a.respondBranded(w)
		return
	}

	// Neither a challenge nor an event callback
	respondEmpty(w, http.StatusOK)
}

// handleForm wraps endpoint for the form-encoded routes (interactive and
// options). Both decode the "payload" form field, dispatch under its type,
// and differ only in how they respond.
func (a *Adapter) handleForm(path string, respond func(http.ResponseWriter, *http.Request, map[string]any)) http.Handler {
	return a.endpoint(path, func(w http.ResponseWriter, r *http.Request, body []byte) {
		payload, present, err := formPayload(body)
		if !present {
			respondEmpty(w, http.StatusOK)
			return
		}
		if err != nil {
			a.reject(r.Context(), w, http.StatusBadRequest, malformedPayload(path))
			return
		}

		payloadType, ok := payload["type"].(string)
		if !ok || payloadType == "" {
			a.reject(r.Context(), w, http.StatusBadRequest, malformedPayload(path))
			return
		}

		a.dispatch(r.Context(), payloadType, payload)
		respond(w, r, payload)
	})
}

// respondInteractive acknowledges a dispatched interactive payload.
func (a *Adapter) respondInteractive(w http.ResponseWriter, _ *http.Request, _ map[string]any) {
	a.respondBranded(w)
}

// respondOptions serves the option list for a dispatched options request as
// a JSON array.
func (a *Adapter) respondOptions(w http.ResponseWriter, r *http.Request, payload map[string]any) {
	opts := []Option{}
	if a.options != nil {
		if provided := a.options(r.Context(), payload); provided != nil {
			opts = provided
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set(PoweredByHeader, a.poweredBy)
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(opts)
}

// formPayload extracts and decodes the "payload" form field used by the
// interactive and options endpoints. present is false when the field is
// absent; err reports a body that is not valid form encoding or a field
// value that is not valid JSON.
func formPayload(body []byte) (payload map[string]any, present bool, err error) {
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, true, err
	}

	raw := form.Get("payload")
	if raw == "" {
		return nil, false, nil
	}

	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil, true, err
	}
	return payload, true, nil
}

// dispatch emits an event to its listeners and logs listener failures.
func (a *Adapter) dispatch(ctx context.Context, eventType string, event map[string]any) {
	if err := a.emitter.Emit(ctx, eventType, event); err != nil {
		a.logger.Error("event listeners failed", "type", eventType, "error", err)
	}
}

// reject surfaces a verification failure to error listeners and answers the
// sender with an empty response. The log line carries the reason but never
// the signature or body.
func (a *Adapter) reject(ctx context.Context, w http.ResponseWriter, status int, verr *VerificationError) {
	a.logger.Warn("request verification failed",
		"endpoint", verr.Endpoint,
		"reason", verr.Reason,
	)

	if err := a.emitter.Emit(ctx, EventError, verr); err != nil {
		a.logger.Error("error listeners failed", "error", err)
	}

	respondEmpty(w, status)
}

func malformedPayload(endpoint string) *VerificationError {
	return &VerificationError{
		Reason:   ReasonMalformedPayload,
		Message:  "Malformed request payload",
		Endpoint: endpoint,
	}
}

// respondEmpty writes an empty response with the given status.
func respondEmpty(w http.ResponseWriter, status int) {
	w.WriteHeader(status)
}

// respondBranded writes an empty 200 response with the powered-by header.
func (a *Adapter) respondBranded(w http.ResponseWriter) {
	w.Header().Set(PoweredByHeader, a.poweredBy)
	w.WriteHeader(http.StatusOK)
}

func respondNotFound(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	io.WriteString(w, notFoundText)
}
