// Package pipeline drains unread messages from the SIM module and relays
// each one exactly once: query, parse, dedup check, deliver-or-skip,
// persist, delete from the modem. One listing entry is handled per poll; a
// backlog drains across successive polls.
package pipeline

import (
	"errors"
	"fmt"
	"log"

	"sms-gateway/internal/dedup"
	"sms-gateway/internal/sms"
)

// Lister is the modem-side surface the pipeline needs.
type Lister interface {
	ListUnread() (string, error)
	Delete(index int) error
}

// ModemFailure marks an error raised by the modem exchange itself, as
// opposed to trouble downstream of a successful listing. Only these feed
// the service's power-key recovery ladder; delivery and persistence
// failures stay on the retry path.
type ModemFailure struct {
	Err error
}

func (e *ModemFailure) Error() string {
	return fmt.Sprintf("modem query failed: %v", e.Err)
}

func (e *ModemFailure) Unwrap() error {
	return e.Err
}

// IsModemFailure reports whether err originated in the modem exchange.
func IsModemFailure(err error) bool {
	var mf *ModemFailure
	return errors.As(err, &mf)
}

// DeliverFunc forwards a message to the broker transport. A nil error means
// the broker accepted it.
type DeliverFunc func(msg sms.Message) error

// Pipeline wires the parser, the dedup ring and the delivery callback.
type Pipeline struct {
	modem   Lister
	store   *dedup.Store
	deliver DeliverFunc
	logger  *log.Logger

	forwarded int
	skipped   int
}

// New creates a Pipeline.
func New(modem Lister, store *dedup.Store, deliver DeliverFunc, logger *log.Logger) *Pipeline {
	return &Pipeline{
		modem:   modem,
		store:   store,
		deliver: deliver,
		logger:  logger,
	}
}

// Poll processes at most one unread message. A malformed or absent modem
// response is "nothing to do", not an error. Delivery failure leaves the
// message on the SIM for the next poll. A dedup write failure after a
// successful delivery is reported: the message went out without a durable
// record and would be re-forwarded if power is lost before the next insert
// succeeds.
func (p *Pipeline) Poll() error {
	raw, err := p.modem.ListUnread()
	if err != nil {
		return &ModemFailure{Err: err}
	}

	msg := sms.Parse(raw)
	if !msg.Valid {
		return nil
	}

	if p.store.IsDuplicate(msg.ID) {
		p.skipped++
		p.deleteFromModem(msg.Index)
		return nil
	}

	if err := p.deliver(msg); err != nil {
		return fmt.Errorf("delivery failed for %s: %v", msg.ID, err)
	}
	p.forwarded++
	p.logger.Printf("[SMS] forwarded %s from %s", msg.ID, msg.Sender)

	if err := p.store.Insert(msg.ID); err != nil {
		// Forwarded without a durable record; duplicate risk on reboot.
		p.logger.Printf("[SMS] WARNING: %v", err)
		p.deleteFromModem(msg.Index)
		return err
	}

	p.deleteFromModem(msg.Index)
	return nil
}

// Forwarded returns the number of messages delivered since boot.
func (p *Pipeline) Forwarded() int {
	return p.forwarded
}

// Skipped returns the number of duplicates suppressed since boot.
func (p *Pipeline) Skipped() int {
	return p.skipped
}

func (p *Pipeline) deleteFromModem(index int) {
	if index < 0 {
		return
	}
	if err := p.modem.Delete(index); err != nil {
		p.logger.Printf("[SMS] failed to delete index %d from SIM: %v", index, err)
	}
}
