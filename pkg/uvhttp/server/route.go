package server

import (
	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
	"github.com/yourusername/uvhttp/pkg/uvhttp/router"
	"github.com/yourusername/uvhttp/pkg/uvhttp/websocket"
)

// RouteHandler is the handler type HTTP routes are registered with; params
// carries the path captures the router extracted for this match.
type RouteHandler func(req *http11.Request, params []router.Param) *http11.Response

// WSHandlerTable is the on_connect/on_message/on_close/on_error vtable
// spec.md §4.9's register_ws_handler installs under a URL path prefix.
type WSHandlerTable struct {
	OnConnect func(conn *websocket.Conn, req *http11.Request)
	OnError   func(conn *websocket.Conn, err error)
	websocket.Handlers

	// Auth gates the upgrade per spec.md §4.8; nil means no auth.
	Auth *websocket.AuthPolicy

	// MaxMessagePayload bounds a reassembled message; 0 uses the package
	// default.
	MaxMessagePayload int64
}

// RegisterRoute installs handler for (path, method), per
// server_register_route.
func (s *Server) RegisterRoute(path string, method router.Method, handler RouteHandler) {
	s.router.AddRoute(path, method, handler)
}

// RegisterWS installs table under pathPrefix, per server_register_ws.
// Lookup at upgrade time picks the longest registered prefix that matches
// the request path.
func (s *Server) RegisterWS(pathPrefix string, table WSHandlerTable) {
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	s.wsHandlers[pathPrefix] = table
}

// findWS returns the longest registered WebSocket prefix matching path.
func (s *Server) findWS(path string) (WSHandlerTable, string, bool) {
	s.wsMu.RLock()
	defer s.wsMu.RUnlock()

	var bestPrefix string
	var best WSHandlerTable
	found := false
	for prefix, table := range s.wsHandlers {
		if len(path) < len(prefix) || path[:len(prefix)] != prefix {
			continue
		}
		if !found || len(prefix) > len(bestPrefix) {
			bestPrefix, best, found = prefix, table, true
		}
	}
	return best, bestPrefix, found
}
