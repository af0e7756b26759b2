package health

import (
	"fmt"
	"time"
)

// Constants for SIM module health states
const (
	MaxRecoveryAttempts = 5
	RecoveryCooldown    = 2 * time.Minute

	StateNormal           = "normal"
	StateRecovering       = "recovering"
	StatePermanentFailure = "permanent-failure-needs-replacement"
)

// Health tracks the SIM module's recovery state. The WiFi link has its own
// backoff machinery and is never represented here.
type Health struct {
	RecoveryAttempts int
	LastRecoveryTime time.Time
	State            string
}

// New creates a new Health instance
func New() *Health {
	return &Health{
		State: StateNormal,
	}
}

// StartRecovery marks the module as recovering
func (h *Health) StartRecovery() {
	h.State = StateRecovering
	h.RecoveryAttempts++
	h.LastRecoveryTime = time.Now()
}

// MarkNormal marks the module as healthy and clears the attempt counter
func (h *Health) MarkNormal() {
	h.State = StateNormal
	h.RecoveryAttempts = 0
}

// MarkFailed marks the module as beyond recovery
func (h *Health) MarkFailed() {
	h.State = StatePermanentFailure
}

// IsRecovering returns true while a recovery is in progress
func (h *Health) IsRecovering() bool {
	return h.State == StateRecovering
}

// IsTerminal returns true if the module is considered dead
func (h *Health) IsTerminal() bool {
	return h.State == StatePermanentFailure
}

// CanRecover returns true if another recovery attempt is allowed
func (h *Health) CanRecover() bool {
	return h.RecoveryAttempts < MaxRecoveryAttempts
}

// CooldownOver reports whether enough time has passed since the last
// recovery to reset the attempt counter
func (h *Health) CooldownOver(now time.Time) bool {
	return !h.LastRecoveryTime.IsZero() && now.Sub(h.LastRecoveryTime) >= RecoveryCooldown
}

// String returns a string representation of the health
func (h *Health) String() string {
	return fmt.Sprintf("Health{State: %s, RecoveryAttempts: %d}", h.State, h.RecoveryAttempts)
}
