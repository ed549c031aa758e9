package ws

import (
	"sync"
	"time"

	"voicetask-server-go/internal/platform/logging"
)

// Hub tracks every live voice session so that shutdown and the stale sweep
// can reach all of them. Sessions register themselves after the upgrade and
// unregister when their run loop exits.
type Hub struct {
	logger   *logging.Logger
	sessions sync.Map // client id -> *Session
}

func NewHub(logger *logging.Logger) *Hub {
	return &Hub{logger: logger}
}

// Register makes the session reachable for broadcast shutdown and sweeping.
// Registering a nil session is a no-op.
func (h *Hub) Register(session *Session) {
	if session == nil {
		return
	}
	if prev, loaded := h.sessions.Swap(session.ID(), session); loaded {
		// Same client id reconnected before the old session unregistered.
		// The old session loses; close it so its capture pipeline stops.
		if old, ok := prev.(*Session); ok && old != session {
			old.Close(ErrServerShutdown)
		}
	}
}

// Unregister forgets the session with the given client id.
func (h *Hub) Unregister(id string) {
	if id == "" {
		return
	}
	h.sessions.Delete(id)
}

// Get looks up a live session by client id.
func (h *Hub) Get(id string) (*Session, bool) {
	value, ok := h.sessions.Load(id)
	if !ok {
		return nil, false
	}
	session, ok := value.(*Session)
	return session, ok
}

// Count reports the number of live sessions.
func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// CloseAll terminates every live session with the given reason and empties
// the hub. A nil reason defaults to server shutdown.
func (h *Hub) CloseAll(reason error) {
	if reason == nil {
		reason = ErrServerShutdown
	}
	h.sessions.Range(func(key, value any) bool {
		h.sessions.Delete(key)
		if session, ok := value.(*Session); ok {
			session.Close(reason)
		}
		return true
	})
}

// SweepStale closes every session whose connection has been silent for
// longer than timeout and returns how many were reaped. A non-positive
// timeout disables the sweep.
func (h *Hub) SweepStale(timeout time.Duration) int {
	if timeout <= 0 {
		return 0
	}
	reaped := 0
	h.sessions.Range(func(key, value any) bool {
		session, ok := value.(*Session)
		if !ok || !session.idle(timeout) {
			return true
		}
		h.sessions.Delete(key)
		session.Close(ErrStaleConnection)
		reaped++
		if h.logger != nil {
			h.logger.WarnTag("WS", "reaped stale session %s, last activity %s ago",
				session.ID(), time.Since(session.conn.GetLastActiveTime()).Round(time.Second))
		}
		return true
	})
	return reaped
}
