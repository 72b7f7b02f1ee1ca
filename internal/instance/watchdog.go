package instance

import (
	"log"
	"sync/atomic"
	"time"
)

// startWatchdog arms one idle countdown actor. At most one actor per kind is
// live at a time; re-arming while one is active is a reset, not a new actor
// (the live countdown observes the activity at its next tick and resets
// itself).
func (in *Instance) startWatchdog(kind string, seconds int, armed *atomic.Bool) {
	if !armed.CompareAndSwap(false, true) {
		return
	}

	done := in.currentPumpDone()
	go in.runWatchdog(kind, seconds, armed, done)
}

// runWatchdog counts down from the configured number of ticks. Any tick at
// which players are online or the instance has left Running resets the
// countdown to its full value. On expiry it sends the stop command,
// best-effort. The actor exits when the process generation it was armed for
// ends.
func (in *Instance) runWatchdog(kind string, seconds int, armed *atomic.Bool, done <-chan struct{}) {
	defer armed.Store(false)

	log.Printf("[Watchdog %s] %s: armed (%ds)", in.Name(), kind, seconds)
	remaining := seconds
	for {
		select {
		case <-done:
			return
		case <-time.After(in.tick):
		}

		if in.players.Count() > 0 || in.Status() != StateRunning {
			remaining = seconds
			continue
		}

		remaining--
		if remaining > 0 {
			continue
		}

		log.Printf("[Watchdog %s] %s: idle timeout expired, stopping server", in.Name(), kind)
		if err := in.Stop(); err != nil {
			log.Printf("[Watchdog %s] %s: stop failed: %v", in.Name(), kind, err)
		}
		return
	}
}
