// Package ingress implements the Ingress Dispatcher (§4.1): authenticated,
// replay-protected receipt of signals over HTTP, dispatched by type. The
// HMAC verification here is the reverse of the request-signing idiom in the
// secondary reference example this core draws on for its exchange client
// (same algorithm — HMAC-SHA256 over a canonical message, constant-time
// compare — applied to verifying an inbound signature instead of producing
// an outbound one).
package ingress

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 over body using secret (§6:
// "HMAC-SHA-256 over the exact serialized payload; hex-encoded").
func Sign(secret []byte, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signatureHex against the HMAC of body using secret, in
// constant time (§4.1, §6).
func Verify(secret []byte, body []byte, signatureHex string) bool {
	expected := Sign(secret, body)
	return hmac.Equal([]byte(expected), []byte(signatureHex))
}
