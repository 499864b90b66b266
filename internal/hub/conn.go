// internal/hub/conn.go
package hub

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// DefaultSendBuffer is the outbound queue depth of a connection.
const DefaultSendBuffer = 32

var (
	ErrConnClosed = errors.New("connection closed")
	ErrSendFull   = errors.New("send buffer full")
)

// Conn is one live websocket client as seen by the registry. Outbound frames are
// queued on OutChan and drained by the connection's write pump.
type Conn struct {
	ID     uuid.UUID
	UserID uuid.UUID
	Remote string

	OutChan chan []byte

	mu     sync.Mutex
	closed bool
}

func NewConn(userID uuid.UUID, remote string, buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultSendBuffer
	}
	return &Conn{
		ID:      uuid.New(),
		UserID:  userID,
		Remote:  remote,
		OutChan: make(chan []byte, buffer),
	}
}

// Send queues data without blocking. It fails if the connection was closed or its
// queue is full; a slow reader never stalls the caller.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.OutChan <- data:
		return nil
	default:
		return ErrSendFull
	}
}

// Close marks the connection closed and closes OutChan so the write pump exits.
// Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.OutChan)
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
