// Package watchdog satisfies the external liveness-signal obligation. Under
// systemd it pets the service watchdog (WatchdogSec=); the supervisor kills
// and restarts the gateway if the main loop stalls. A persisted counter
// tracks how often a run ended without a clean stop, which the backend
// reads from telemetry as a hardware degradation signal.
package watchdog

import (
	"log"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"sms-gateway/internal/store"
)

// Store namespace and keys.
const (
	Namespace     = "wdt_stats"
	keyResetCount = "rst_count"
	keyCleanStop  = "clean_stop"
)

// Watchdog feeds the systemd watchdog and owns the unclean-restart counter.
type Watchdog struct {
	kv       store.KV
	interval time.Duration
	lastFeed time.Time
	resets   int
	logger   *log.Logger
}

// New reads the systemd watchdog interval from the environment (zero when
// not running under a watchdog) and reconciles the unclean-restart counter.
// The stop marker is cleared by Stop; finding it still cleared at startup
// means the previous run died hard.
func New(kv store.KV, logger *log.Logger) (*Watchdog, error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return nil, err
	}

	w := &Watchdog{
		kv:       kv,
		interval: interval,
		logger:   logger,
	}

	marker, err := kv.GetString(keyCleanStop)
	if err != nil {
		return nil, err
	}
	w.resets, err = kv.GetInt(keyResetCount)
	if err != nil {
		return nil, err
	}

	if marker == "no" {
		w.resets++
		if err := kv.PutInt(keyResetCount, w.resets); err != nil {
			return nil, err
		}
		logger.Printf("[WDT] unclean restart detected, total: %d", w.resets)
	}
	if err := kv.PutString(keyCleanStop, "no"); err != nil {
		return nil, err
	}

	if interval > 0 {
		logger.Printf("[WDT] systemd watchdog armed, interval %v", interval)
	} else {
		logger.Printf("[WDT] no systemd watchdog configured")
	}

	return w, nil
}

// Feed notifies the supervisor that the loop is alive. Cheap to call every
// iteration; the notification is sent at half the watchdog interval. Never
// fails: a lost notification simply lets the supervisor act.
func (w *Watchdog) Feed(now time.Time) {
	if w.interval <= 0 {
		return
	}
	if now.Sub(w.lastFeed) < w.interval/2 {
		return
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyWatchdog); err != nil {
		w.logger.Printf("[WDT] notify failed: %v", err)
	}
	w.lastFeed = now
}

// ResetCount returns the number of unclean restarts recorded.
func (w *Watchdog) ResetCount() int {
	return w.resets
}

// Stop records a clean shutdown.
func (w *Watchdog) Stop() error {
	return w.kv.PutString(keyCleanStop, "yes")
}
