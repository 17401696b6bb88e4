// Package herald receives signed event callbacks from Slack-style messaging
// platforms, verifies them, and dispatches them to registered listeners.
//
// An Adapter exposes up to three HTTP endpoints: events (Events API callbacks
// and the URL verification handshake), interactive (component interaction
// payloads), and options (external select menu data). Every request passes
// the same checks before any payload is examined: the request timestamp must
// be inside the replay tolerance and the v0 HMAC-SHA256 signature must match
// the raw body.
//
// # Security Model
//
//   - HMAC-SHA256 signatures compared in constant time (crypto/hmac)
//   - Replay window enforced on the X-Slack-Request-Timestamp header
//   - Rejected requests answered with an empty 403 and surfaced to listeners
//     registered under EventError
//   - Body size limits enforced before verification
//   - Signing secrets and payload contents never logged
//
// # Request Flow
//
//  1. HTTP POST arrives at a configured path (GET probes get a 404)
//  2. Body read up to MaxBodySize (reject with 413 if larger)
//  3. Timestamp checked against the replay tolerance (reject with 403 if stale)
//  4. Signature computed over "v0:<timestamp>:<body>" and compared (403 if wrong)
//  5. Payload decoded and dispatched to listeners for its event type
//  6. 200 returned with the X-Slack-Powered-By header
//
// # Example Usage
//
//	adapter, err := herald.New(herald.Config{
//		SigningSecret: os.Getenv("SLACK_SIGNING_SECRET"),
//		EventsPath:    "/slack/events",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	adapter.On("app_mention", func(ctx context.Context, event any) error {
//		// event is the full callback envelope, not just the inner event
//		return nil
//	})
//
//	if err := adapter.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Routes can also be bound to an existing router with BindRoutes; both
// *chi.Mux and *http.ServeMux satisfy the RouteBinder interface.
package herald
