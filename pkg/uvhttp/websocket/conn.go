package websocket

import (
	"io"
	"sync"
)

// Conn is the WebSocket-mode augmentation of a connection: the opaque
// handle handlers receive, able to send messages and initiate a close.
// It does not own the socket; conn.Conn does, and passes its
// underlying writer in here.
type Conn struct {
	w    io.Writer
	mu   sync.Mutex // serializes frame writes the same way conn.Conn's write queue FIFOs them
	SubProtocol string

	closed bool
}

// NewConn wraps w (the connection's write path) for WebSocket framing.
func NewConn(w io.Writer) *Conn {
	return &Conn{w: w}
}

// Send writes a complete text or binary message.
func (c *Conn) Send(opcode byte, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return io.ErrClosedPipe
	}
	return WriteMessage(c.w, opcode, payload)
}

// SendText is a convenience wrapper over Send(OpcodeText, ...).
func (c *Conn) SendText(s string) error {
	return c.Send(OpcodeText, []byte(s))
}

// writePong automatically answers a ping with the same payload, per
// spec.md §4.7's control-frame handling.
func (c *Conn) writePong(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	return WriteFrame(c.w, true, OpcodePong, payload)
}

// Close sends a close frame (echoing/translating the given status code and
// reason) and marks the Conn closed; the owning Connection transitions to
// Closing afterward.
func (c *Conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	payload := make([]byte, 2+len(reason))
	payload[0] = byte(code >> 8)
	payload[1] = byte(code)
	copy(payload[2:], reason)
	return WriteFrame(c.w, true, OpcodeClose, payload)
}

// Closed reports whether Close has already been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
