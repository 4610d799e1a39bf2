package session

import (
	"log/slog"
	"time"
)

// Timeoutable is the capability the timeout sweep needs on top of
// Closable: a way to tell the peer it is being disconnected before the
// registry closes its connection out from under it.
type Timeoutable interface {
	Closable
	NotifyTimeout()
}

// StartTimeoutSweep periodically evicts every session that has exceeded
// the registry's configured max connection time (spec §4.1
// "is_timed_out"). Each timed-out session is sent a DISCONNECT frame
// before removal, matching the handshake-time WAIT behavior of is_full.
// Snapshot happens under the registry's own lock; notification and
// removal happen outside it. StartTimeoutSweep blocks until stop is
// closed.
func StartTimeoutSweep[T Timeoutable](stop <-chan struct{}, registry *Registry[T], period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for key, s := range registry.Snapshot() {
				if !registry.IsTimedOut(key) {
					continue
				}
				s.NotifyTimeout()
				slog.Info("session timed out, removing", "key", key)
				_ = registry.Remove(key)
			}
		}
	}
}
