package sms

import (
	"crypto/sha256"
	"encoding/hex"
)

// identityPrefixLen caps how much of the body feeds the hash. OTP payloads
// differ within their first line, so 32 characters is plenty while keeping
// the hash input bounded.
const identityPrefixLen = 32

// Identity derives the deterministic content identifier for a message:
// SHA-256 over sender, timestamp and the body prefix, truncated to the
// first 8 bytes and rendered as 16 lowercase hex characters. Identical
// inputs always produce the identical identity, so re-parsing the same raw
// response is idempotent. Truncating to 64 bits trades collision margin for
// storage size; at gateway message volumes that margin is ample.
func Identity(sender, timestamp, body string) string {
	if len(body) > identityPrefixLen {
		body = body[:identityPrefixLen]
	}

	h := sha256.New()
	h.Write([]byte(sender))
	h.Write([]byte("|"))
	h.Write([]byte(timestamp))
	h.Write([]byte("|"))
	h.Write([]byte(body))

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8])
}
