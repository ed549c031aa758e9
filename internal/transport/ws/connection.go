package ws

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// maxFrameBytes bounds a single inbound frame. Audio chunks arrive at most
// two seconds at a time, so even 48kHz stereo PCM stays well under this.
const maxFrameBytes = 1 << 20

// Connection wraps a gorilla socket with serialized writes and an activity
// clock. Reads stay single-goroutine (the session read loop); writes come
// from both the read loop and pipeline callbacks, hence the mutex.
type Connection struct {
	id     string
	socket *websocket.Conn

	writeMu sync.Mutex
	closed  atomic.Bool
	lastAct atomic.Int64 // unix nanos of the most recent read or write
}

func NewConnection(id string, socket *websocket.Conn) *Connection {
	socket.SetReadLimit(maxFrameBytes)
	c := &Connection{
		id:     id,
		socket: socket,
	}
	c.markActive()
	return c
}

// GetID returns the client id negotiated during the upgrade.
func (c *Connection) GetID() string { return c.id }

// WriteMessage sends one frame to the client, serialized against other
// writers. Fails fast with ErrConnectionClosed after Close.
func (c *Connection) WriteMessage(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.closed.Load() {
		return ErrConnectionClosed
	}
	if err := c.socket.WriteMessage(messageType, data); err != nil {
		return err
	}
	c.markActive()
	return nil
}

// ReadMessage blocks for the next frame from the client and refreshes the
// activity clock on success.
func (c *Connection) ReadMessage() (int, []byte, error) {
	messageType, payload, err := c.socket.ReadMessage()
	if err != nil {
		return messageType, payload, err
	}
	c.markActive()
	return messageType, payload, nil
}

// Close drops the socket. Idempotent; later calls return nil.
func (c *Connection) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.socket.Close()
}

// IsClosed reports whether Close has run.
func (c *Connection) IsClosed() bool {
	return c.closed.Load()
}

// GetLastActiveTime returns when the client last sent or received a frame.
func (c *Connection) GetLastActiveTime() time.Time {
	return time.Unix(0, c.lastAct.Load())
}

// IsStale reports whether the connection has been silent longer than
// timeout. Non-positive timeouts never mark a connection stale.
func (c *Connection) IsStale(timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return time.Since(c.GetLastActiveTime()) > timeout
}

func (c *Connection) markActive() {
	c.lastAct.Store(time.Now().UnixNano())
}
