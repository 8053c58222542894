// Package crypto signs requests for the venue's REST API and seals the API
// credentials at rest.
package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"time"
)

// TimestampLayout is the ISO-8601 UTC millisecond format the venue expects
// in OK-ACCESS-TIMESTAMP.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Header names used by the venue's signed REST API.
const (
	HeaderAccessKey        = "OK-ACCESS-KEY"
	HeaderAccessSign       = "OK-ACCESS-SIGN"
	HeaderAccessTimestamp  = "OK-ACCESS-TIMESTAMP"
	HeaderAccessPassphrase = "OK-ACCESS-PASSPHRASE"
	HeaderSimulatedTrading = "x-simulated-trading"
)

// HMACAuth holds the credentials required for HMAC-authenticated requests
// against the OKX v5 REST API.
type HMACAuth struct {
	Key        string // API key
	Secret     string // API secret, used raw as the HMAC key
	Passphrase string // API passphrase
	Simulated  bool   // demo trading account
}

// Headers returns the HTTP headers for a signed request. The signature is
// base64(HMAC-SHA256(secret, timestamp+method+requestPath+body)), where
// requestPath includes the query string.
//
// Returned header keys:
//   - OK-ACCESS-KEY
//   - OK-ACCESS-SIGN
//   - OK-ACCESS-TIMESTAMP
//   - OK-ACCESS-PASSPHRASE
//   - x-simulated-trading (demo only)
func (h *HMACAuth) Headers(method, requestPath, body string) map[string]string {
	return h.HeadersAt(method, requestPath, body, time.Now())
}

// HeadersAt is like Headers but lets the caller supply the signing time
// (useful for deterministic testing).
func (h *HMACAuth) HeadersAt(method, requestPath, body string, at time.Time) map[string]string {
	ts := at.UTC().Format(TimestampLayout)

	headers := map[string]string{
		HeaderAccessKey:        h.Key,
		HeaderAccessSign:       Sign(h.Secret, ts, method, requestPath, body),
		HeaderAccessTimestamp:  ts,
		HeaderAccessPassphrase: h.Passphrase,
	}
	if h.Simulated {
		headers[HeaderSimulatedTrading] = "1"
	}
	return headers
}

// Sign computes the request signature for the given prehash parts.
func Sign(secret, timestamp, method, requestPath, body string) string {
	return hmacSHA256Base64([]byte(secret), timestamp+method+requestPath+body)
}

// Valid reports whether all three credentials are present.
func (h *HMACAuth) Valid() bool {
	return h != nil && h.Key != "" && h.Secret != "" && h.Passphrase != ""
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// hmacSHA256Base64 computes HMAC-SHA256 of message using key and returns the
// result as a base64 standard-encoded string.
func hmacSHA256Base64(key []byte, message string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s, simulated=%t}", redact(h.Key), redact(h.Secret), h.Simulated)
}
