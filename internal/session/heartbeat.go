package session

import (
	"log/slog"
	"time"

	"github.com/streamcast/streamcast/internal/metrics"
)

// Pingable is the capability the listener heartbeat needs on top of
// Closable: a way to probe liveness without a full send.
type Pingable interface {
	Closable
	Ping() error
}

// StartHeartbeat runs the periodic listener heartbeat (spec §4.1): every
// interval (15s by default in internal/config) it sends a ping to every
// registered listener and removes any whose ping send fails. No reply is
// awaited.
// Snapshot happens under the registry's own lock; the pings themselves
// happen outside it, so a slow or dead listener cannot stall the others.
// StartHeartbeat blocks until stop is closed.
func StartHeartbeat[T Pingable](stop <-chan struct{}, registry *Registry[T], interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			for key, s := range registry.Snapshot() {
				if err := s.Ping(); err != nil {
					slog.Info("listener heartbeat failed, removing", "key", key, "error", err)
					metrics.HeartbeatFailures.Inc()
					_ = registry.Remove(key)
				}
			}
		}
	}
}
