package ws

import "errors"

var (
	// ErrHandshakeTimeout is the cancel cause when a client does not finish
	// the websocket upgrade within the handshake window.
	ErrHandshakeTimeout = errors.New("websocket handshake timed out")

	// ErrServerShutdown is the close reason given to sessions when the voice
	// transport itself is stopping.
	ErrServerShutdown = errors.New("voice transport shutting down")

	// ErrStaleConnection is the close reason for clients that stopped sending
	// audio or control frames long enough to trip the stale sweep.
	ErrStaleConnection = errors.New("voice connection idle past stale timeout")

	// ErrConnectionClosed is returned by writes against a connection that has
	// already been torn down.
	ErrConnectionClosed = errors.New("voice connection already closed")
)
