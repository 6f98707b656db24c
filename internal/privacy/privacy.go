// Package privacy provides one-way hashing of personal identifiers and
// recursive redaction of sensitive values. Hashed identifiers replace raw
// phone numbers in log fields and cache/counter keys; redaction scrubs
// structured payloads before they reach the logger.
//
// Contract:
//   - Same input and salt always produce the same 16-hex-character digest
//     prefix within a process lifetime.
//   - The mapping is never reversible.
//   - Empty input hashes to the literal "unknown".
package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// RedactedPlaceholder replaces values whose key matches the sensitive list.
const RedactedPlaceholder = "[REDACTED]"

// DefaultSalt is the development fallback. Production startup must refuse it
// (see config validation).
const DefaultSalt = "default-salt-CHANGE-IN-PRODUCTION"

// sensitiveKeys are matched case-insensitively as substrings of map keys.
// Covers credentials, auth headers, the provider message SID, and the
// sender/recipient phone fields of the webhook payload.
var sensitiveKeys = []string{
	"password",
	"token",
	"secret",
	"authorization",
	"api_key",
	"apikey",
	"auth",
	"cookie",
	"messagesid",
	"accountsid",
	"from",
	"to",
	"phone",
	"waid",
}

// Hasher derives stable, non-reversible identifiers from PII strings using a
// process-wide salt. The zero value is not usable; construct with New.
type Hasher struct {
	salt []byte
}

// New returns a Hasher keyed with salt. An empty salt falls back to
// DefaultSalt so development setups still produce stable keys.
func New(salt string) *Hasher {
	if salt == "" {
		salt = DefaultSalt
	}
	return &Hasher{salt: []byte(salt)}
}

// HashIdentifier maps a PII string (phone number, profile name) to the first
// 16 hex characters of its keyed SHA-256 digest. Empty input returns
// "unknown".
func (h *Hasher) HashIdentifier(s string) string {
	if s == "" {
		return "unknown"
	}
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(s))
	return hex.EncodeToString(mac.Sum(nil))[:16]
}

// Redact walks v and replaces every value whose map key matches the
// sensitive-key list with RedactedPlaceholder. Maps and slices are copied;
// scalars are returned unchanged. The input is never mutated.
func Redact(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = RedactedPlaceholder
				continue
			}
			out[k] = Redact(val)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, val := range t {
			if isSensitiveKey(k) {
				out[k] = RedactedPlaceholder
				continue
			}
			out[k] = val
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = Redact(val)
		}
		return out
	default:
		return v
	}
}

// isSensitiveKey reports whether a map key names a value that must never be
// logged verbatim.
func isSensitiveKey(k string) bool {
	lk := strings.ToLower(k)
	for _, s := range sensitiveKeys {
		if lk == s || strings.Contains(lk, s) {
			return true
		}
	}
	return false
}
