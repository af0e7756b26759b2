// Package sms parses the SIM module's text-mode listing protocol into
// structured messages and derives stable content identifiers for
// deduplication.
package sms

// Message is one parsed SMS. Produced fresh per Parse call and never
// mutated afterwards. When Valid is false the other fields are best-effort
// partials and must not be forwarded or persisted.
type Message struct {
	ID        string // content hash, 16 hex chars; empty when invalid
	Index     int    // storage index on the SIM, -1 when unknown
	Sender    string // phone number of sender
	Body      string // message content (OTP text)
	Timestamp string // timestamp string as reported by the SIM module
	Valid     bool
}
