package herald

import (
	"strings"
	"testing"
)

func TestVerifySignature_RoundTrip(t *testing.T) {
	secret := []byte("8f742231b10e8888abcd99yyyzzz85a5")
	timestamp := "1531420618"
	body := []byte(`{"type":"event_callback","event":{"type":"app_mention"}}`)

	signature := Sign(secret, timestamp, body)

	if !strings.HasPrefix(signature, "v0=") {
		t.Errorf("Sign() = %q, want v0= prefix", signature)
	}
	if len(signature) != len("v0=")+64 {
		t.Errorf("Sign() length = %d, want %d", len(signature), len("v0=")+64)
	}

	if !VerifySignature(secret, timestamp, body, signature) {
		t.Error("VerifySignature() = false for signature produced by Sign()")
	}
}

func TestVerifySignature_Mismatch(t *testing.T) {
	secret := []byte("8f742231b10e8888abcd99yyyzzz85a5")
	timestamp := "1531420618"
	body := []byte(`{"type":"event_callback"}`)
	signature := Sign(secret, timestamp, body)

	tests := []struct {
		name      string
		secret    []byte
		timestamp string
		body      []byte
		header    string
	}{
		{"tampered body", secret, timestamp, []byte(`{"type":"tampered"}`), signature},
		{"tampered timestamp", secret, "1531420619", body, signature},
		{"wrong secret", []byte("other-secret"), timestamp, body, signature},
		{"truncated header", secret, timestamp, body, signature[:len(signature)-2]},
		{"missing prefix", secret, timestamp, body, strings.TrimPrefix(signature, "v0=")},
		{"uppercase hex", secret, timestamp, body, strings.ToUpper(signature)},
		{"empty header", secret, timestamp, body, ""},
		{"garbage header", secret, timestamp, body, "v0=not-hex-at-all"},
		{"empty secret", nil, timestamp, body, signature},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if VerifySignature(tt.secret, tt.timestamp, tt.body, tt.header) {
				t.Error("VerifySignature() = true, want false")
			}
		})
	}
}

func TestSign_DependsOnTimestampAndBody(t *testing.T) {
	secret := []byte("secret")

	a := Sign(secret, "1700000000", []byte("body"))
	b := Sign(secret, "1700000001", []byte("body"))
	c := Sign(secret, "1700000000", []byte("body2"))

	if a == b {
		t.Error("signatures for different timestamps should differ")
	}
	if a == c {
		t.Error("signatures for different bodies should differ")
	}
	if got := Sign(secret, "1700000000", []byte("body")); got != a {
		t.Errorf("Sign() not deterministic: %q != %q", got, a)
	}
}
