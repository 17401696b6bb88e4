package herald

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// signaturePrefix is the version prefix on v0 signature headers.
const signaturePrefix = "v0="

// Sign computes the v0 signature header value for a request: "v0=" followed
// by the lowercase hex HMAC-SHA256 of "v0:<timestamp>:<body>" keyed with
// secret. It is exported so that clients and tests can build valid requests.
func Sign(secret []byte, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signatureHeader is the valid v0 signature
// of body for the given timestamp.
//
// Comparison is constant time (crypto/hmac). A missing, truncated, or
// otherwise malformed header is reported as invalid, never as an error.
func VerifySignature(secret []byte, timestamp string, body []byte, signatureHeader string) bool {
	if len(secret) == 0 || signatureHeader == "" {
		return false
	}
	expected := Sign(secret, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
