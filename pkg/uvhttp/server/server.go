// Package server implements the Server/Acceptor of spec.md §4.9: the
// listening socket, router, rate limiter, cache-backed static responder,
// WebSocket handler registry, and the live connection set, grounded on
// shockwave/pkg/shockwave/server/server.go's BaseServer (connection
// tracking, shutdown coordination, Stats) reworked from its single
// net/http-style Serve loop into the goroutine-per-connection model
// SPEC_FULL.md §1 calls for.
package server

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/yourusername/uvhttp/pkg/uvhttp/cache"
	"github.com/yourusername/uvhttp/pkg/uvhttp/conn"
	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
	"github.com/yourusername/uvhttp/pkg/uvhttp/ratelimit"
	"github.com/yourusername/uvhttp/pkg/uvhttp/router"
	"github.com/yourusername/uvhttp/pkg/uvhttp/sockettune"
	"github.com/yourusername/uvhttp/pkg/uvhttp/staticfile"
	"github.com/yourusername/uvhttp/pkg/uvhttp/websocket"
)

// connHandle is a generation-tagged reference to a live connection, per
// spec.md §9's recommended replacement for the source's raw
// Connection<->Server pointer cycle: the table indexes slots by id, and each
// handle records the generation it was issued under. The generation is
// stored but not compared anywhere.
type connHandle struct {
	id         uint64
	generation uint64
	c          *conn.Conn
}

// Server owns the listening socket, configuration, router, rate limiter,
// static cache, WebSocket registry, and the table of live connections.
type Server struct {
	cfg Config

	router      *router.Router
	rateLimiter *ratelimit.Limiter
	static      *staticfile.Responder

	wsMu       sync.RWMutex
	wsHandlers map[string]WSHandlerTable

	wsConnMu sync.RWMutex
	wsConns  map[string]map[*websocket.Conn]struct{}

	listener  net.Listener
	accepting atomic.Bool
	stopped   atomic.Bool

	connMu     sync.Mutex
	conns      map[uint64]*connHandle
	nextID     atomic.Uint64
	generation atomic.Uint64
	active     atomic.Int64

	wg     sync.WaitGroup
	logger *logrus.Entry

	metrics         *metrics
	lastCacheHits   int64
	lastCacheMisses int64
}

// New returns a Server with an empty router and no rate limiter, cache, or
// WebSocket routes configured. logger may be nil, in which case a
// logrus.StandardLogger entry is used.
func New(logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Server{
		cfg:        DefaultConfig(),
		router:     router.New(),
		wsHandlers: make(map[string]WSHandlerTable),
		wsConns:    make(map[string]map[*websocket.Conn]struct{}),
		conns:      make(map[uint64]*connHandle),
		logger:     logger,
	}
}

// Configure validates and installs cfg, per server_configure. Must be
// called before Listen.
func (s *Server) Configure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

// EnableRateLimit installs a per-IP fixed-window rate limiter, per
// server_enable_rate_limit. Calling it again replaces the previous limiter.
func (s *Server) EnableRateLimit(maxRequests int, window time.Duration) {
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	s.rateLimiter = ratelimit.New(maxRequests, window)
}

// AddRateLimitWhitelist exempts ipOrCIDR from rate limiting, per
// server_add_rate_limit_whitelist. EnableRateLimit must be called first.
func (s *Server) AddRateLimitWhitelist(ipOrCIDR string) error {
	if s.rateLimiter == nil {
		return fmt.Errorf("server: rate limiting not enabled")
	}
	return s.rateLimiter.AddWhitelist(ipOrCIDR)
}

// EnableStaticFiles installs a cache-backed static file responder rooted
// at dir, serving it as the fallback for any request no route matches.
func (s *Server) EnableStaticFiles(dir string, maxCacheBytes int64, maxCacheEntries int, ttl time.Duration) {
	s.static = staticfile.New(dir, maxCacheBytes, maxCacheEntries, ttl)
}

// StaticCache exposes the static responder's cache for Stats/Prewarm
// callers; nil if EnableStaticFiles was never called.
func (s *Server) StaticCache() *cache.Cache {
	if s.static == nil {
		return nil
	}
	return s.static.Cache
}

// Listen binds and begins listening on host:port, per server_listen.
func (s *Server) Listen(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	// net.ListenConfig has no backlog knob (it relies on the OS default via
	// listen(2)); Backlog is accepted for config-surface parity with
	// spec.md §6 but has no effect on this platform.
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", addr, err)
	}
	s.listener = ln
	s.accepting.Store(true)
	return nil
}

// ServeListener installs a caller-supplied listener instead of binding one
// via Listen, letting a caller hand the server a TLS-terminated listener
// (e.g. tls.NewListener wrapping a net.Listener with an *tls.Config) when
// cfg.EnableTLS is set. Per spec.md's Non-goals, uvhttp treats TLS as an
// opaque stream capability and never terminates it itself.
func (s *Server) ServeListener(ln net.Listener) error {
	s.listener = ln
	s.accepting.Store(true)
	return nil
}

// Run blocks accepting connections until Stop is called, per server_run.
// Connection admission follows spec.md §4.9: once active connections reach
// max_connections, a newly accepted socket is closed immediately rather
// than left in the kernel accept queue.
func (s *Server) Run() error {
	if s.listener == nil {
		return fmt.Errorf("server: Listen must be called before Run")
	}
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			if s.stopped.Load() {
				return nil
			}
			return err
		}

		if int(s.active.Load()) >= s.cfg.MaxConnections {
			raw.Close()
			if s.metrics != nil {
				s.metrics.connectionsRejected.Inc()
			}
			continue
		}

		if s.metrics != nil {
			s.metrics.connectionsAccepted.Inc()
			s.reportCacheStats()
		}

		s.wg.Add(1)
		go s.handleConn(raw)
	}
}

// Stop refuses new connections and gracefully closes every live one, per
// server_stop. It returns once all connection goroutines have exited.
func (s *Server) Stop() error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	s.accepting.Store(false)
	if s.listener != nil {
		s.listener.Close()
	}

	s.connMu.Lock()
	handles := make([]*connHandle, 0, len(s.conns))
	for _, h := range s.conns {
		handles = append(handles, h)
	}
	s.connMu.Unlock()

	for _, h := range handles {
		h.c.Close(conn.CloseGraceful)
	}

	s.wg.Wait()
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	return nil
}

// Free releases Server resources, per server_free. Precondition: Stop has
// already completed.
func (s *Server) Free() error {
	if !s.stopped.Load() {
		return fmt.Errorf("server: Free called before Stop")
	}
	s.connMu.Lock()
	s.conns = nil
	s.connMu.Unlock()
	return nil
}

// ActiveConnections returns the current live connection count.
func (s *Server) ActiveConnections() int64 { return s.active.Load() }

// registerWSConn adds wsConn to the live set for prefix, so Broadcast can
// reach it later. Paired with unregisterWSConn in runWebSocket's defer.
func (s *Server) registerWSConn(prefix string, wsConn *websocket.Conn) {
	s.wsConnMu.Lock()
	defer s.wsConnMu.Unlock()
	set := s.wsConns[prefix]
	if set == nil {
		set = make(map[*websocket.Conn]struct{})
		s.wsConns[prefix] = set
	}
	set[wsConn] = struct{}{}
}

func (s *Server) unregisterWSConn(prefix string, wsConn *websocket.Conn) {
	s.wsConnMu.Lock()
	defer s.wsConnMu.Unlock()
	set := s.wsConns[prefix]
	if set == nil {
		return
	}
	delete(set, wsConn)
	if len(set) == 0 {
		delete(s.wsConns, prefix)
	}
}

// Broadcast sends payload as opcode to every WebSocket connection currently
// registered under the WS prefix named by path, per spec.md §6's
// ws_broadcast(server, path, bytes, len). A send failure on one connection
// does not stop the fan-out to the rest; the first error encountered is
// returned once every connection has been tried.
func (s *Server) Broadcast(path string, opcode byte, payload []byte) error {
	s.wsConnMu.RLock()
	set := s.wsConns[path]
	targets := make([]*websocket.Conn, 0, len(set))
	for c := range set {
		targets = append(targets, c)
	}
	s.wsConnMu.RUnlock()

	var firstErr error
	for _, c := range targets {
		if err := c.Send(opcode, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (s *Server) handleConn(raw net.Conn) {
	defer s.wg.Done()

	if err := sockettune.Apply(raw, sockettune.DefaultConfig()); err != nil {
		s.logger.WithError(err).Debug("socket tuning failed")
	}

	id := s.nextID.Add(1)
	gen := s.generation.Add(1)

	var activeTable *WSHandlerTable
	var activeName string

	handler := func(req *http11.Request) *http11.Response {
		resp, table, name := s.dispatch(req)
		if resp.Status == 101 && table != nil {
			activeTable, activeName = table, name
		}
		return resp
	}

	var upgrader conn.Upgrader = func(transport conn.Transport, br *bufio.Reader, req *http11.Request) error {
		if activeTable == nil {
			return nil
		}
		return s.runWebSocket(transport, br, req, activeTable, activeName)
	}

	connCfg := conn.Config{
		ReadBufferSize:     s.cfg.ReadBufferSize,
		MaxRequestsPerConn: s.cfg.MaxRequestsPerConnection,
		KeepaliveTimeout:   s.cfg.KeepaliveTimeout,
		RequestTimeout:     s.cfg.RequestTimeout,
		Limits: http11.Limits{
			MaxURLSize:     s.cfg.MaxURLSize,
			MaxBodySize:    s.cfg.MaxBodySize,
			MaxHeaders:     s.cfg.MaxHeaderCount,
			MaxHeaderBytes: s.cfg.MaxHeaderSize,
		},
		OnPanic: func(remoteAddr string, recovered any, stack []byte) {
			s.logger.WithField("remote", remoteAddr).
				WithField("panic", recovered).
				WithField("stack", string(stack)).
				Error("recovered from handler panic")
		},
	}

	c := conn.New(raw, connCfg, handler, upgrader)
	handle := &connHandle{id: id, generation: gen, c: c}

	s.connMu.Lock()
	s.conns[id] = handle
	s.connMu.Unlock()
	s.active.Add(1)

	defer func() {
		s.connMu.Lock()
		delete(s.conns, id)
		s.connMu.Unlock()
		s.active.Add(-1)
	}()

	if err := c.Serve(); err != nil {
		s.logger.WithError(err).WithField("remote", raw.RemoteAddr().String()).Debug("connection closed with error")
	}
}
