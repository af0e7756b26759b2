package modem

import (
	"fmt"
	"strings"
	"time"
)

// AT command set for SMS handling (SIM800L / SIM7600 text mode).

// Session wraps a Transport with the SMS-related command sequences.
type Session struct {
	transport   Transport
	cmdTimeout  time.Duration
	listTimeout time.Duration
	log         func(string, ...interface{})
}

// NewSession creates a Session. cmdTimeout covers short commands,
// listTimeout the potentially larger AT+CMGL listing exchange.
func NewSession(t Transport, cmdTimeout, listTimeout time.Duration, logger func(string, ...interface{})) *Session {
	if logger == nil {
		logger = func(string, ...interface{}) {}
	}
	if cmdTimeout <= 0 {
		cmdTimeout = 2 * time.Second
	}
	if listTimeout <= 0 {
		listTimeout = 5 * time.Second
	}
	return &Session{
		transport:   t,
		cmdTimeout:  cmdTimeout,
		listTimeout: listTimeout,
		log:         logger,
	}
}

// Ping checks the module answers at all.
func (s *Session) Ping() error {
	resp, err := s.transport.Exchange("AT", s.cmdTimeout)
	if err != nil {
		return err
	}
	if !strings.Contains(resp, "OK") {
		return fmt.Errorf("modem not responding: %q", strings.TrimSpace(resp))
	}
	return nil
}

// ListUnread puts the module in text mode and lists unread messages. The
// raw response is returned for the parser; no response structure is
// interpreted here.
func (s *Session) ListUnread() (string, error) {
	if _, err := s.transport.Exchange("AT+CMGF=1", s.cmdTimeout); err != nil {
		return "", err
	}
	return s.transport.Exchange(`AT+CMGL="REC UNREAD"`, s.listTimeout)
}

// Delete removes the message at the given SIM storage index.
func (s *Session) Delete(index int) error {
	_, err := s.transport.Exchange(fmt.Sprintf("AT+CMGD=%d", index), s.cmdTimeout)
	if err != nil {
		return err
	}
	s.log("[AT] deleted SMS at index %d", index)
	return nil
}
