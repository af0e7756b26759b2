package service

import (
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"sms-gateway/internal/dedup"
	"sms-gateway/internal/health"
	"sms-gateway/internal/modem"
	"sms-gateway/internal/pipeline"
	"sms-gateway/internal/sms"
)

const rawListing = "+CMGL: 3,\"REC UNREAD\",\"+919876543210\",\"\",\"24/01/15,10:30:00+22\"\nYour OTP is 482913.\r\nOK"

// scriptedModem is a pipeline.Lister with a settable response or error.
type scriptedModem struct {
	response string
	err      error
	deleted  []int
}

func (m *scriptedModem) ListUnread() (string, error) { return m.response, m.err }

func (m *scriptedModem) Delete(index int) error {
	m.deleted = append(m.deleted, index)
	return nil
}

// deadTransport fails every exchange, like an unplugged serial port.
type deadTransport struct{}

func (deadTransport) Exchange(string, time.Duration) (string, error) {
	return "", fmt.Errorf("serial timeout")
}

func (deadTransport) Close() error { return nil }

type memKV struct {
	values map[string]string
}

func (f *memKV) GetString(key string) (string, error) { return f.values[key], nil }

func (f *memKV) PutString(key, value string) error {
	f.values[key] = value
	return nil
}

func (f *memKV) GetInt(key string) (int, error) {
	var v int
	fmt.Sscanf(f.values[key], "%d", &v)
	return v, nil
}

func (f *memKV) PutInt(key string, value int) error {
	return f.PutString(key, fmt.Sprintf("%d", value))
}

// newTestService builds a Service around the polling path only; the
// hardware-backed members stay nil and pollOnce must tolerate that.
func newTestService(t *testing.T, mdm pipeline.Lister, deliver pipeline.DeliverFunc) *Service {
	t.Helper()
	logger := log.New(os.Stdout, "TEST: ", log.LstdFlags)

	ring, err := dedup.Open(&memKV{values: map[string]string{}}, 5, logger)
	if err != nil {
		t.Fatalf("dedup.Open error = %v", err)
	}

	s := &Service{
		Logger:  logger,
		Health:  health.New(),
		Dedup:   ring,
		Session: modem.NewSession(deadTransport{}, 10*time.Millisecond, 10*time.Millisecond, nil),
	}
	s.Pipeline = pipeline.New(mdm, ring, deliver, logger)
	return s
}

// A broker outage with a pending message must not feed the SIM recovery
// ladder; the message waits on the SIM and goes out once delivery works.
func TestBrokerOutageDoesNotEscalateModemRecovery(t *testing.T) {
	mdm := &scriptedModem{response: rawListing}
	brokerUp := false
	var delivered int
	s := newTestService(t, mdm, func(sms.Message) error {
		if !brokerUp {
			return fmt.Errorf("broker not connected")
		}
		delivered++
		return nil
	})

	now := time.Now()
	for i := 0; i < 10; i++ {
		s.pollOnce(now.Add(time.Duration(i) * 5 * time.Second))
	}

	if s.Health.IsTerminal() {
		t.Fatalf("health = %s, broker outage marked the SIM module dead", s.Health.State)
	}
	if s.Health.State != health.StateNormal {
		t.Errorf("health = %s, want %s", s.Health.State, health.StateNormal)
	}
	if s.pollFailures != 0 {
		t.Errorf("pollFailures = %d, delivery failures must not count", s.pollFailures)
	}
	if len(mdm.deleted) != 0 {
		t.Errorf("deleted %v, undeliverable message must stay on the SIM", mdm.deleted)
	}

	brokerUp = true
	s.pollOnce(now.Add(time.Minute))

	if delivered != 1 {
		t.Fatalf("delivered = %d, pending message not forwarded after broker recovery", delivered)
	}
	if len(mdm.deleted) != 1 {
		t.Errorf("deleted %v, want the message removed after delivery", mdm.deleted)
	}
}

func TestModemFailuresEscalateToRecovery(t *testing.T) {
	mdm := &scriptedModem{err: fmt.Errorf("serial timeout")}
	s := newTestService(t, mdm, func(sms.Message) error { return nil })

	now := time.Now()
	for i := 0; i < maxPollFailures; i++ {
		s.pollOnce(now)
	}

	if !s.Health.IsRecovering() {
		t.Fatalf("health = %s, want %s after %d modem failures",
			s.Health.State, health.StateRecovering, maxPollFailures)
	}
	if s.Health.RecoveryAttempts != 1 {
		t.Errorf("RecoveryAttempts = %d, want 1", s.Health.RecoveryAttempts)
	}
}

func TestModemRecoveryClearsOnSuccess(t *testing.T) {
	mdm := &scriptedModem{err: fmt.Errorf("serial timeout")}
	s := newTestService(t, mdm, func(sms.Message) error { return nil })

	now := time.Now()
	for i := 0; i < maxPollFailures; i++ {
		s.pollOnce(now)
	}
	if !s.Health.IsRecovering() {
		t.Fatalf("health = %s, want recovering", s.Health.State)
	}

	// The modem comes back with an empty listing.
	mdm.err = nil
	mdm.response = "\r\nOK\r\n"
	s.pollOnce(now.Add(5 * time.Second))

	if s.Health.State != health.StateNormal {
		t.Errorf("health = %s, want %s after a clean poll", s.Health.State, health.StateNormal)
	}
	if s.pollFailures != 0 {
		t.Errorf("pollFailures = %d, want 0 after a clean poll", s.pollFailures)
	}
}
