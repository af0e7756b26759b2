package sms

import (
	"strconv"
	"strings"
)

// Markers in the modem's text-mode listing response.
const (
	listMarker    = "+CMGL:"
	endOfListMark = "\r\nOK"
)

// Parse extracts the first listing entry from a raw AT+CMGL response.
// Malformed input never fails hard: anything that cannot be located yields
// Valid=false with whatever partial fields were found.
//
// Expected shape (text mode):
//
//	+CMGL: <index>,<stat>,<sender>,<alpha>,<timestamp>\r\n
//	<message body>\r\n
//
// Only the first entry is parsed per call. A backlog of N unread messages
// drains over N polls, which bounds the time spent inside a single poll.
func Parse(raw string) Message {
	msg := Message{Index: -1}

	headerStart := strings.Index(raw, listMarker)
	if headerStart == -1 {
		return msg
	}

	headerEnd := strings.IndexByte(raw[headerStart:], '\n')
	if headerEnd == -1 {
		return msg
	}
	headerEnd += headerStart

	header := raw[headerStart:headerEnd]

	msg.Index = parseListIndex(header)
	msg.Sender = parseSender(header)
	msg.Timestamp = parseTimestamp(header)

	// Body runs from the line after the header to the next listing entry,
	// or to the end-of-list marker, or to the end of input.
	bodyStart := headerEnd + 1
	bodyEnd := strings.Index(raw[bodyStart:], listMarker)
	if bodyEnd == -1 {
		bodyEnd = strings.Index(raw[bodyStart:], endOfListMark)
	}
	if bodyEnd == -1 {
		bodyEnd = len(raw) - bodyStart
	}
	msg.Body = strings.TrimSpace(raw[bodyStart : bodyStart+bodyEnd])

	if msg.Sender != "" && msg.Body != "" {
		msg.Valid = true
		msg.ID = Identity(msg.Sender, msg.Timestamp, msg.Body)
	}

	return msg
}

// parseListIndex reads the integer between the marker and the first comma.
// Returns -1 when the header is too mangled to carry one.
func parseListIndex(header string) int {
	rest := strings.TrimSpace(strings.TrimPrefix(header, listMarker))
	comma := strings.IndexByte(rest, ',')
	if comma == -1 {
		return -1
	}
	idx, err := strconv.Atoi(strings.TrimSpace(rest[:comma]))
	if err != nil {
		return -1
	}
	return idx
}

// parseSender returns the sender number, the field between the third and
// fourth quote characters (index and stat precede it, stat is quoted).
func parseSender(header string) string {
	first := strings.IndexByte(header, '"')
	if first == -1 {
		return ""
	}
	second := indexQuote(header, first+1)
	senderStart := indexQuote(header, second+1)
	senderEnd := indexQuote(header, senderStart+1)
	if senderStart == -1 || senderEnd == -1 {
		return ""
	}
	return header[senderStart+1 : senderEnd]
}

// parseTimestamp returns the content between the 7th and 8th quote
// characters. Counting quotes rather than commas tolerates protocol fields
// past the sender that carry quotes of their own; headers without a quoted
// alpha field simply yield an empty timestamp.
func parseTimestamp(header string) string {
	tsEnd, tsStart := -1, -1
	quoteCount := 0
	for i := 0; i < len(header); i++ {
		if header[i] == '"' {
			quoteCount++
			if quoteCount == 7 {
				tsEnd = i
			}
			if quoteCount == 8 {
				tsStart = i
				break
			}
		}
	}
	if tsEnd > 0 && tsStart > tsEnd {
		return header[tsEnd+1 : tsStart]
	}
	return ""
}

// indexQuote finds the next '"' at or after from; -1 when absent or when
// from is already out of range (propagates a previous -1 cleanly).
func indexQuote(s string, from int) int {
	if from < 0 || from > len(s) {
		return -1
	}
	i := strings.IndexByte(s[from:], '"')
	if i == -1 {
		return -1
	}
	return from + i
}
