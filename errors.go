package herald

// Verification failure reasons carried by VerificationError.
const (
	ReasonInvalidTimestamp = "invalid_timestamp"
	ReasonInvalidSignature = "invalid_signature"
	ReasonMalformedPayload = "malformed_payload"
)

// VerificationError describes a request that failed verification before
// dispatch. Values of this type are emitted to listeners registered under
// EventError; the HTTP response to the sender stays empty.
type VerificationError struct {
	// Reason is one of the Reason* constants.
	Reason string

	// Message is a human-readable description.
	Message string

	// Endpoint is the URL path that received the rejected request.
	Endpoint string
}

// Error returns the message, or a generic description when none is set.
func (e *VerificationError) Error() string {
	if e.Message == "" {
		return "request verification failed"
	}
	return e.Message
}
