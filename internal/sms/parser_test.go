package sms

import (
	"strings"
	"testing"
)

// A realistic text-mode listing: echo, header with quoted alpha field,
// body, end-of-list marker.
const rawSingle = "AT+CMGL=\"REC UNREAD\"\r\n" +
	"+CMGL: 3,\"REC UNREAD\",\"+919876543210\",\"\",\"24/01/15,10:30:00+22\"\r\n" +
	"Your OTP is 482913. Valid for 10 minutes.\r\n" +
	"\r\nOK\r\n"

const rawDouble = "+CMGL: 1,\"REC UNREAD\",\"+15550001111\",\"\",\"24/02/01,09:00:00+00\"\r\n" +
	"first message body\r\n" +
	"+CMGL: 2,\"REC UNREAD\",\"+15550002222\",\"\",\"24/02/01,09:05:00+00\"\r\n" +
	"second message body\r\n" +
	"\r\nOK\r\n"

func TestParseSingleMessage(t *testing.T) {
	msg := Parse(rawSingle)

	if !msg.Valid {
		t.Fatal("Parse() Valid = false, want true")
	}
	if msg.Sender != "+919876543210" {
		t.Errorf("Sender = %q, want %q", msg.Sender, "+919876543210")
	}
	if msg.Timestamp != "24/01/15,10:30:00+22" {
		t.Errorf("Timestamp = %q, want %q", msg.Timestamp, "24/01/15,10:30:00+22")
	}
	if msg.Body != "Your OTP is 482913. Valid for 10 minutes." {
		t.Errorf("Body = %q", msg.Body)
	}
	if msg.Index != 3 {
		t.Errorf("Index = %d, want 3", msg.Index)
	}
	if len(msg.ID) != 16 {
		t.Errorf("ID = %q, want 16 hex chars", msg.ID)
	}
}

func TestParseFirstEntryOnly(t *testing.T) {
	msg := Parse(rawDouble)

	if !msg.Valid {
		t.Fatal("Parse() Valid = false, want true")
	}
	if msg.Sender != "+15550001111" {
		t.Errorf("Sender = %q, want first entry's sender", msg.Sender)
	}
	if msg.Body != "first message body" {
		t.Errorf("Body = %q, want first entry's body only", msg.Body)
	}
	if strings.Contains(msg.Body, "second") {
		t.Errorf("Body leaked into the second entry: %q", msg.Body)
	}
}

func TestParseInvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"empty input", ""},
		{"no listing marker", "\r\nOK\r\n"},
		{"error response", "\r\nERROR\r\n"},
		{"header without newline", "+CMGL: 1,\"REC UNREAD\",\"+15550001111\""},
		{"header without body", "+CMGL: 1,\"REC UNREAD\",\"+15550001111\",\"\",\"24/02/01,09:00:00+00\"\r\n\r\nOK\r\n"},
		{"no sender quotes", "+CMGL: 1\r\nsome body\r\nOK\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := Parse(tt.raw)
			if msg.Valid {
				t.Errorf("Parse(%q) Valid = true, want false", tt.raw)
			}
			if msg.ID != "" {
				t.Errorf("invalid message carries ID %q", msg.ID)
			}
		})
	}
}

func TestParseMissingMarkerYieldsEmptyFields(t *testing.T) {
	msg := Parse("\r\nOK\r\n")

	if msg.Valid {
		t.Fatal("Valid = true, want false")
	}
	if msg.Sender != "" || msg.Body != "" {
		t.Errorf("partial fields = (%q, %q), want empty", msg.Sender, msg.Body)
	}
	if msg.Index != -1 {
		t.Errorf("Index = %d, want -1", msg.Index)
	}
}

// Headers without a quoted alpha field carry fewer than eight quotes; the
// timestamp comes back empty but the message still parses.
func TestParseUnquotedAlphaField(t *testing.T) {
	raw := "+CMGL: 7,\"REC UNREAD\",\"+15550001111\",,\"24/02/01,09:00:00+00\"\r\n" +
		"hello\r\n\r\nOK\r\n"

	msg := Parse(raw)
	if !msg.Valid {
		t.Fatal("Valid = false, want true")
	}
	if msg.Timestamp != "" {
		t.Errorf("Timestamp = %q, want empty for six-quote header", msg.Timestamp)
	}
	if msg.Index != 7 {
		t.Errorf("Index = %d, want 7", msg.Index)
	}
}

func TestParseBodyRunsToEndWithoutMarkers(t *testing.T) {
	raw := "+CMGL: 1,\"REC UNREAD\",\"+15550001111\",\"\",\"24/02/01,09:00:00+00\"\n" +
		"body without terminator"

	msg := Parse(raw)
	if !msg.Valid {
		t.Fatal("Valid = false, want true")
	}
	if msg.Body != "body without terminator" {
		t.Errorf("Body = %q", msg.Body)
	}
}

func TestParseIdempotent(t *testing.T) {
	first := Parse(rawSingle)
	for i := 0; i < 5; i++ {
		again := Parse(rawSingle)
		if again != first {
			t.Fatalf("Parse() not idempotent: %+v vs %+v", again, first)
		}
	}
}
