package ws

import (
	"context"
	"sync/atomic"
	"time"

	"voicetask-server-go/internal/platform/logging"
)

const defaultCloseTimeout = 5 * time.Second

// SessionHandler is the protocol layer driven by a Session. Handle blocks
// on the read loop until the client disconnects or the session is closed;
// Close must be safe to call while Handle is still running.
type SessionHandler interface {
	Handle()
	Close()
	GetSessionID() string
}

// Session ties one websocket connection to its protocol handler and owns
// the teardown ordering between the two. The session context is cancelled
// with the close reason, so anything derived from it can inspect the cause.
type Session struct {
	id      string
	handler SessionHandler
	conn    *Connection
	logger  *logging.Logger

	ctx    context.Context
	cancel context.CancelCauseFunc
	closed atomic.Bool
}

func NewSession(parent context.Context, handler SessionHandler, conn *Connection, logger *logging.Logger) *Session {
	ctx, cancel := context.WithCancelCause(parent)
	return &Session{
		id:      handler.GetSessionID(),
		handler: handler,
		conn:    conn,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// ID returns the client id this session was registered under.
func (s *Session) ID() string { return s.id }

// Context returns the session-scoped context. It is cancelled with the
// close reason once the session ends.
func (s *Session) Context() context.Context { return s.ctx }

// Run drives the handler to completion, then tears the session down and
// reports the outcome through onDone. Meant to be launched on its own
// goroutine by the router.
func (s *Session) Run(onDone func(error)) {
	var runErr error
	defer func() {
		s.Close(runErr)
		if onDone != nil {
			onDone(runErr)
		}
	}()
	s.handler.Handle()
}

// Close shuts the session down exactly once: cancel the context, give the
// handler a bounded window to drain, then drop the socket. Safe to call
// from any goroutine, including while Run is still inside Handle.
func (s *Session) Close(reason error) {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	if reason == nil {
		reason = ErrServerShutdown
	}
	s.cancel(reason)

	s.stopHandler(reason)

	if s.conn != nil {
		if err := s.conn.Close(); err != nil && s.logger != nil {
			s.logger.WarnTag("WS", "session %s socket close failed: %v", s.id, err)
		}
	}
}

// stopHandler calls handler.Close with a deadline. A handler stuck past the
// deadline is abandoned; its goroutine exits when the socket drops.
func (s *Session) stopHandler(reason error) {
	if s.handler == nil {
		return
	}

	deadline, cancel := context.WithTimeoutCause(context.Background(), defaultCloseTimeout, reason)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.handler.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-deadline.Done():
		if s.logger != nil {
			s.logger.WarnTag("WS", "session %s handler did not stop in %s: %v",
				s.id, defaultCloseTimeout, context.Cause(deadline))
		}
	}
}

// idle reports whether the underlying connection has seen no traffic for
// longer than timeout. Used by the hub's stale sweep.
func (s *Session) idle(timeout time.Duration) bool {
	return s.conn != nil && s.conn.IsStale(timeout)
}
