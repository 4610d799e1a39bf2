package session

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/streamcast/streamcast/internal/metrics"
)

// Listener is a passive Listener Session (spec §3, §4.7): identified by
// its own id, it follows exactly one speaker uid and receives every
// translation message broadcast for that speaker.
type Listener struct {
	ID      string
	Follows string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// NewListener wraps conn as a Listener following speakerUID.
func NewListener(id, speakerUID string, conn *websocket.Conn) *Listener {
	return &Listener{ID: id, Follows: speakerUID, conn: conn}
}

func (l *Listener) Close() error {
	return l.conn.Close()
}

// Ping is used by the heartbeat loop; a failed ping removes the listener.
func (l *Listener) Ping() error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteJSON(map[string]string{"ping": "ping"})
}

// Send writes an arbitrary JSON payload, serialized against concurrent
// writers of this connection (spec §5 "Sending on a connection").
func (l *Listener) Send(v any) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()
	return l.conn.WriteJSON(v)
}

// NotifyTimeout sends the DISCONNECT frame before the timeout sweep
// forcibly removes this listener (spec §4.1 "is_timed_out").
func (l *Listener) NotifyTimeout() {
	_ = l.Send(map[string]string{"uid": l.ID, "message": "DISCONNECT"})
}

// Broadcaster fans a translation message out to every listener following
// a given speaker uid (spec §4.7 "Listener Fan-out"): snapshot under the
// registry's lock, send outside it, remove any listener whose send fails.
type Broadcaster struct {
	registry *Registry[*Listener]
}

// NewBroadcaster wraps a listener registry for fan-out.
func NewBroadcaster(registry *Registry[*Listener]) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Broadcast sends message to every listener currently following
// speakerUID.
func (b *Broadcaster) Broadcast(speakerUID string, message any) {
	for key, l := range b.registry.Snapshot() {
		if l.Follows != speakerUID {
			continue
		}
		if err := l.Send(message); err != nil {
			metrics.BroadcastFailures.Inc()
			_ = b.registry.Remove(key)
		}
	}
}
