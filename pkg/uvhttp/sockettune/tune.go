// Package sockettune applies TCP socket options to accepted connections.
// Grounded on shockwave/pkg/shockwave/socket/tuning.go's Config/Apply shape,
// reworked to go through net.TCPConn's portable setter methods instead of
// raw syscall.SetsockoptInt calls, so there is no platform-specific file
// split (tuning_linux.go/tuning_darwin.go in the teacher) to maintain: the
// teacher's TCP_QUICKACK/TCP_DEFER_ACCEPT/TCP_FASTOPEN knobs have no stdlib
// equivalent and are dropped rather than re-implemented with build tags,
// since spec.md never asks for them.
package sockettune

import (
	"net"
	"time"
)

// Config mirrors the portable subset of shockwave/socket.Config.
type Config struct {
	NoDelay         bool
	RecvBuffer      int
	SendBuffer      int
	KeepAlive       bool
	KeepAlivePeriod time.Duration
}

// DefaultConfig matches shockwave/socket.DefaultConfig's HTTP-workload
// recommendation: disable Nagle, enable keepalive, 256KiB buffers.
func DefaultConfig() Config {
	return Config{
		NoDelay:         true,
		RecvBuffer:      256 * 1024,
		SendBuffer:      256 * 1024,
		KeepAlive:       true,
		KeepAlivePeriod: 30 * time.Second,
	}
}

// Apply tunes conn per cfg. Non-TCP connections (e.g. a net.Pipe() used in
// tests, or a TLS-wrapped listener's *tls.Conn) are left untouched.
func Apply(conn net.Conn, cfg Config) error {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		return nil
	}
	if cfg.NoDelay {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return err
		}
	}
	if cfg.RecvBuffer > 0 {
		_ = tcpConn.SetReadBuffer(cfg.RecvBuffer)
	}
	if cfg.SendBuffer > 0 {
		_ = tcpConn.SetWriteBuffer(cfg.SendBuffer)
	}
	if cfg.KeepAlive {
		_ = tcpConn.SetKeepAlive(true)
		if cfg.KeepAlivePeriod > 0 {
			_ = tcpConn.SetKeepAlivePeriod(cfg.KeepAlivePeriod)
		}
	}
	return nil
}
