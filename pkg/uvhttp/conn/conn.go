package conn

import (
	"bufio"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/yourusername/uvhttp/pkg/uvhttp/buffer"
	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
	"github.com/yourusername/uvhttp/pkg/uvhttp/staticfile"
)

// Architecture note: spec.md §5 describes a single-threaded event loop in
// which read/write/timer are the only suspension points and a Connection's
// write(chunk) call enqueues bytes for a later completion callback. This
// package instead gives every Connection its own goroutine (see
// SPEC_FULL.md §1): Serve blocks directly on Transport.Read/Write, so the
// FIFO write queue's job shrinks from "drive an async write loop" to
// "account for back-pressure" — a blocking Write already serializes
// output and a large pending Body naturally stalls the same goroutine
// that would otherwise start the next Read, which is the effect the
// high/low water mark was after.

// Handler processes one fully-parsed request and returns the response to
// send. It must not block indefinitely: RequestTimeout sets the transport
// deadline before the handler runs, but the handler is not interrupted; a
// handler that returns after the deadline gets its response write failed,
// and the connection then closes.
type Handler func(req *http11.Request) *http11.Response

// Upgrader takes over a connection's byte stream after a 101 response has
// been flushed, running the WebSocket frame loop until it returns. br
// retains any bytes already buffered past the HTTP response boundary.
type Upgrader func(transport Transport, br *bufio.Reader, req *http11.Request) error

// Config bounds a Connection's behavior; see spec.md §4.9/§6 for the
// recommended defaults.
type Config struct {
	ReadBufferSize     int
	Limits             http11.Limits
	MaxRequestsPerConn int
	KeepaliveTimeout   time.Duration
	RequestTimeout     time.Duration
	HighWaterMark      int64 // back-pressure thresholds; Conn itself never reads them
	LowWaterMark       int64

	// OnPanic, if set, is called with the recovered value and stack trace
	// when a handler panics; invokeHandler still answers the client with a
	// 500 and keeps the connection alive either way.
	OnPanic func(remoteAddr string, recovered any, stack []byte)
}

// DefaultConfig mirrors spec.md §4.9's recommended defaults.
func DefaultConfig() Config {
	return Config{
		ReadBufferSize:     8 * 1024,
		Limits:             http11.DefaultLimits(),
		MaxRequestsPerConn: 100,
		KeepaliveTimeout:   30 * time.Second,
		RequestTimeout:     60 * time.Second,
		HighWaterMark:      256 * 1024,
		LowWaterMark:       64 * 1024,
	}
}

// Conn owns one byte stream from accept to close and drives it through the
// Reading/ProcessingRequest/Writing/UpgradedWebSocket/Closing/Closed state
// machine of spec.md §4.1.
type Conn struct {
	transport Transport
	br        *bufio.Reader
	parser    *http11.Parser
	handler   Handler
	upgrader  Upgrader
	cfg       Config

	state        atomic.Int32
	lastActivity atomic.Int64

	writeQueue *buffer.Queue

	closeOnce sync.Once
	closed    atomic.Bool

	requestCount int
}

// New wraps transport in a Conn that will call handler for each parsed
// request. upgrader may be nil if the connection never serves WebSocket
// routes.
func New(transport Transport, cfg Config, handler Handler, upgrader Upgrader) *Conn {
	c := &Conn{
		transport:  transport,
		br:         bufio.NewReaderSize(transport, cfg.ReadBufferSize),
		parser:     http11.NewParser(cfg.Limits),
		handler:    handler,
		upgrader:   upgrader,
		cfg:        cfg,
		writeQueue: buffer.NewQueue(),
	}
	c.state.Store(int32(Reading))
	c.touch()
	return c
}

// State returns the connection's current state.
func (c *Conn) State() State { return State(c.state.Load()) }

func (c *Conn) setState(s State) {
	c.state.Store(int32(s))
	c.touch()
}

func (c *Conn) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

// IdleFor reports how long the connection has sat without activity.
func (c *Conn) IdleFor() time.Duration {
	return time.Since(time.Unix(0, c.lastActivity.Load()))
}

// RemoteAddr returns the transport's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.transport.RemoteAddr() }

// RequestCount returns how many requests this connection has completed.
func (c *Conn) RequestCount() int { return c.requestCount }

// Serve runs the connection's lifecycle until it closes, returning the
// error (if any) that ended it. A clean EOF between requests returns nil.
func (c *Conn) Serve() error {
	defer c.Close(CloseGraceful)

	for {
		if c.closed.Load() {
			return nil
		}

		c.setState(Reading)
		if err := c.transport.SetDeadline(time.Now().Add(c.cfg.KeepaliveTimeout)); err != nil {
			return err
		}

		req, err := c.parser.Parse(c.br, c.remoteAddrString())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			c.writeParseError(err)
			return err
		}

		c.setState(ProcessingRequest)
		c.requestCount++
		if c.cfg.RequestTimeout > 0 {
			if err := c.transport.SetDeadline(time.Now().Add(c.cfg.RequestTimeout)); err != nil {
				return err
			}
		}

		resp := c.invokeHandler(req)
		if resp == nil {
			resp = http11.NewResponse()
			resp.SetStatus(500)
		}

		c.setState(Writing)
		decision := c.decideKeepAlive(req)

		if resp.BodyFilePath != "" {
			header := resp.BuildHeader(decision)
			if err := c.write(header); err != nil {
				return err
			}
			if err := c.writeBodyFile(resp.BodyFilePath, resp.Body); err != nil {
				return err
			}
		} else {
			wire := resp.Build(decision)
			if err := c.write(wire); err != nil {
				return err
			}
		}

		if resp.Status == 101 && c.upgrader != nil {
			c.setState(UpgradedWebSocket)
			return c.upgrader(c.transport, c.br, req)
		}

		if !decision.KeepAlive() {
			return nil
		}
	}
}

// invokeHandler calls the connection's Handler, recovering from a panic so
// that one misbehaving handler cannot take down the goroutine running every
// other live connection. Grounded on bolt/middleware/recovery.go's
// defer/recover-into-500 shape, adapted from a middleware chain into a
// single call site since uvhttp has no middleware stack (spec.md Non-goals).
func (c *Conn) invokeHandler(req *http11.Request) (resp *http11.Response) {
	defer func() {
		if r := recover(); r != nil {
			if c.cfg.OnPanic != nil {
				c.cfg.OnPanic(c.remoteAddrString(), r, debug.Stack())
			}
			resp = http11.NewResponse()
			http11.WriteJSONError(resp, 500, "internal server error", "")
		}
	}()
	return c.handler(req)
}

func (c *Conn) remoteAddrString() string {
	if addr := c.transport.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return ""
}

// decideKeepAlive applies spec.md §4.4's three-part rule: HTTP/1.1,
// request did not ask to close, and the per-connection quota still has
// room.
func (c *Conn) decideKeepAlive(req *http11.Request) http11.KeepAliveDecision {
	remaining := 0
	if c.cfg.MaxRequestsPerConn > 0 {
		remaining = c.cfg.MaxRequestsPerConn - c.requestCount
	} else {
		remaining = 1 // unlimited: any positive value keeps the gate open
	}
	return http11.KeepAliveDecision{
		RequestIsHTTP11:   req.IsHTTP11(),
		RequestWantsClose: req.WantsClose(),
		ServerKeepAlive:   true,
		RemainingQuota:    remaining,
		KeepAliveTimeout:  int(c.cfg.KeepaliveTimeout / time.Second),
	}
}

// write enqueues and flushes wire bytes, tracking pending-byte accounting
// for back-pressure instrumentation even though, in this goroutine-per-
// connection model, the flush happens synchronously before Serve resumes
// reading (see the architecture note above).
func (c *Conn) write(wire []byte) error {
	chunk := buffer.NewChunk(wire)
	c.writeQueue.Push(chunk)
	defer c.writeQueue.PopFront()

	for !chunk.Done() {
		n, err := c.transport.Write(chunk.Remaining())
		if n > 0 {
			chunk.Advance(n)
			c.writeQueue.ChargeWritten(n)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// writeBodyFile sends body via the zero-copy sendfile path when the
// transport is a plain net.Conn (staticfile.WriteBody falls back to an
// ordinary Write for anything else, including a *tls.Conn). Queued and
// charged the same way c.write accounts for an ordinary write so
// PendingWriteBytes stays meaningful during a large static transfer.
func (c *Conn) writeBodyFile(path string, body []byte) error {
	nc, ok := c.transport.(net.Conn)
	if !ok {
		return c.write(body)
	}

	chunk := buffer.NewChunk(body)
	c.writeQueue.Push(chunk)
	defer c.writeQueue.PopFront()

	err := staticfile.WriteBody(nc, path, body)
	if err == nil {
		chunk.Advance(len(body))
		c.writeQueue.ChargeWritten(len(body))
	}
	return err
}

func (c *Conn) writeParseError(err error) {
	resp := http11.NewResponse()
	http11.WriteJSONError(resp, http11.StatusFor(err), "bad request", err.Error())
	decision := http11.KeepAliveDecision{ServerKeepAlive: false}
	_ = c.write(resp.Build(decision))
}

// PendingWriteBytes reports the write queue depth. Nothing reads it to pause
// reading: writes are synchronous, so Serve never reads while one is pending.
func (c *Conn) PendingWriteBytes() int64 { return c.writeQueue.Pending() }

// Close transitions the connection to Closing then Closed, idempotently.
// It does not wait for or flush a write in progress: Serve's own deferred
// close runs after its writes have returned, but a Close from another
// goroutine (such as Server.Stop) closes the transport under any write
// still running. CloseAbort also drops the queue's contents.
func (c *Conn) Close(reason CloseReason) error {
	var closeErr error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.setState(Closing)
		if reason == CloseAbort {
			c.writeQueue.Drop()
		}
		closeErr = c.transport.Close()
		c.setState(Closed)
	})
	return closeErr
}
