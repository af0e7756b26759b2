// Package wifi keeps the WiFi link alive. A non-blocking Tick drives a
// reconnection state machine with exponential backoff; the underlying link
// is reached only through the narrow Network capability, so the state
// machine is testable without radio hardware.
package wifi

import (
	"fmt"
	"log"
	"time"
)

// State is the connection state, owned exclusively by the Controller.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
)

// RSSISentinel is reported as signal strength while the link is down.
const RSSISentinel = -127

// Timing of the blocking windows. Both must stay well under the external
// watchdog deadline; that contract is the caller's to keep.
const (
	initialPollInterval = 500 * time.Millisecond
	probePollInterval   = 100 * time.Millisecond
	DefaultProbeTimeout = 5 * time.Second
)

// Network is the link capability consumed by the Controller. Connect starts
// an association attempt and may return before the link is up; IsConnected
// reports the observed status.
type Network interface {
	Connect() error
	Disconnect() error
	IsConnected() bool
	SignalStrength() int // dBm
}

// StateCallback is invoked synchronously on every state transition with the
// new state and the reconnect attempt count of the current outage.
type StateCallback func(state State, attempts int)

// Controller owns the connection state machine.
type Controller struct {
	network Network
	backoff Backoff
	logger  *log.Logger

	probeTimeout time.Duration

	state           State
	callback        StateCallback
	currentDelay    time.Duration
	lastAttempt     time.Time
	attempts        int // attempts in the current outage, reset on connect
	totalReconnects int // cumulative since boot, never reset
}

// NewController creates a Controller in the disconnected state.
func NewController(network Network, backoff Backoff, probeTimeout time.Duration, logger *log.Logger) *Controller {
	if probeTimeout <= 0 {
		probeTimeout = DefaultProbeTimeout
	}
	return &Controller{
		network:      network,
		backoff:      backoff,
		logger:       logger,
		probeTimeout: probeTimeout,
		state:        StateDisconnected,
		currentDelay: backoff.Initial,
	}
}

// InitialConnect blocks while establishing the first connection, polling
// the link status every 500ms. maxAttempts bounds the number of polls;
// zero or negative means poll forever. Failure is non-fatal to the
// controller: the caller decides whether to retry, reboot or run degraded,
// and Tick keeps retrying either way.
func (c *Controller) InitialConnect(maxAttempts int) error {
	c.logger.Printf("[WiFi] connecting...")
	c.setState(StateConnecting)

	if err := c.network.Connect(); err != nil {
		c.logger.Printf("[WiFi] connect request failed: %v", err)
	}

	attempts := 0
	for !c.network.IsConnected() {
		time.Sleep(initialPollInterval)
		attempts++

		if maxAttempts > 0 && attempts >= maxAttempts {
			c.logger.Printf("[WiFi] initial connection failed after %d attempts", attempts)
			c.setState(StateFailed)
			return fmt.Errorf("initial connection failed after %d attempts", attempts)
		}
	}

	c.logger.Printf("[WiFi] connected, RSSI %d dBm", c.network.SignalStrength())
	c.setState(StateConnected)
	c.resetBackoff()
	return nil
}

// Tick maintains the connection. It must be called on every iteration of
// the host loop. It never fails; a down link is handled purely by backoff
// retry. The only blocking path is a bounded reconnection probe, and that
// runs at most once per backoff window.
func (c *Controller) Tick(now time.Time) {
	if c.network.IsConnected() {
		if c.state != StateConnected {
			c.logger.Printf("[WiFi] reconnected, RSSI %d dBm (after %d attempts)",
				c.network.SignalStrength(), c.attempts)
			c.setState(StateConnected)
			c.resetBackoff()
		}
		return
	}

	if c.state == StateConnected {
		c.logger.Printf("[WiFi] connection lost, starting reconnection")
		c.setState(StateReconnecting)
		c.currentDelay = c.backoff.Initial
		c.lastAttempt = now
		return
	}

	if now.Sub(c.lastAttempt) >= c.currentDelay {
		c.attemptReconnect(now)
	}
}

// Observe registers the single state observer. Registering again replaces
// the previous observer.
func (c *Controller) Observe(cb StateCallback) {
	c.callback = cb
}

// State returns the current connection state.
func (c *Controller) State() State {
	return c.state
}

// CurrentBackoff returns the delay before the next reconnection attempt.
func (c *Controller) CurrentBackoff() time.Duration {
	return c.currentDelay
}

// SignalStrength returns the link RSSI in dBm, or RSSISentinel while down.
func (c *Controller) SignalStrength() int {
	if !c.network.IsConnected() {
		return RSSISentinel
	}
	return c.network.SignalStrength()
}

// TotalReconnectAttempts returns the cumulative attempt count since boot.
func (c *Controller) TotalReconnectAttempts() int {
	return c.totalReconnects
}

// attemptReconnect performs one bounded reconnection probe and recomputes
// the backoff delay for the next one.
func (c *Controller) attemptReconnect(now time.Time) {
	c.attempts++
	c.totalReconnects++

	c.logger.Printf("[WiFi] reconnect attempt #%d (backoff %v)", c.attempts, c.currentDelay)

	if err := c.network.Disconnect(); err != nil {
		c.logger.Printf("[WiFi] disconnect before retry failed: %v", err)
	}
	if err := c.network.Connect(); err != nil {
		c.logger.Printf("[WiFi] connect request failed: %v", err)
	}

	// Bounded wait for the association to come up.
	probeStart := time.Now()
	deadline := probeStart.Add(c.probeTimeout)
	for !c.network.IsConnected() && time.Now().Before(deadline) {
		time.Sleep(probePollInterval)
	}

	// The next backoff window is measured from the probe's end. Stamping
	// its start would let a probe longer than the delay swallow the
	// spacing entirely.
	c.lastAttempt = now.Add(time.Since(probeStart))
	c.currentDelay = c.backoff.Next(c.attempts)
}

func (c *Controller) resetBackoff() {
	c.currentDelay = c.backoff.Initial
	c.attempts = 0
}

func (c *Controller) setState(next State) {
	if c.state == next {
		return
	}
	c.state = next
	if c.callback != nil {
		c.callback(next, c.attempts)
	}
}
