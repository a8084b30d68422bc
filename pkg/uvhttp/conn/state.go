// Package conn implements the per-connection state machine of spec.md §4.1:
// one byte stream from accept to close, feeding bytes to the HTTP parser,
// serializing outgoing bytes, and enforcing idle/request timeouts and the
// per-connection request quota. Grounded on shockwave's
// pkg/shockwave/http11/connection.go, reworked from its lock-free
// single-loop design to one goroutine per connection (see the architecture
// note in conn.go).
package conn

// State is one node of the connection state machine.
type State int32

const (
	// Reading is the initial state: waiting for/consuming request bytes.
	Reading State = iota
	// ProcessingRequest: request fully parsed, handler running synchronously.
	ProcessingRequest
	// Writing: response bytes are being flushed to the transport.
	Writing
	// UpgradedWebSocket: the HTTP handler performed a successful WebSocket
	// upgrade; the connection is now framed per RFC 6455 instead of HTTP/1.1.
	UpgradedWebSocket
	// Closing: draining or discarding queued writes before the transport closes.
	Closing
	// Closed is terminal.
	Closed
)

func (s State) String() string {
	switch s {
	case Reading:
		return "reading"
	case ProcessingRequest:
		return "processing_request"
	case Writing:
		return "writing"
	case UpgradedWebSocket:
		return "upgraded_websocket"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseReason distinguishes a graceful drain from an abrupt drop (spec.md
// §4.1's close(reason) contract).
type CloseReason int

const (
	// CloseGraceful closes the transport and leaves the write queue as is.
	CloseGraceful CloseReason = iota
	// CloseAbort drops any queued writes immediately.
	CloseAbort
	// CloseIdle is a graceful close triggered by the keepalive idle timeout.
	CloseIdle
	// CloseRequestTimeout is a graceful close triggered by a stuck handler.
	CloseRequestTimeout
)
