package conn

import (
	"net"
	"time"
)

// Transport is the narrow byte-stream surface a Conn needs. Any net.Conn
// satisfies it; tests substitute a pipe or an in-memory double. This
// replaces the source's three-way libuv/mock/benchmark network-interface
// split (spec.md §9) with one interface and two implementations.
type Transport interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
	SetDeadline(t time.Time) error
	RemoteAddr() net.Addr
}

var _ Transport = (net.Conn)(nil)
