package server

import (
	"time"

	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
	"github.com/yourusername/uvhttp/pkg/uvhttp/router"
	"github.com/yourusername/uvhttp/pkg/uvhttp/websocket"
)

// dispatch wraps dispatchInner with the structured per-request log entry
// bolt/middleware/logger.go produces (method, path, status, duration),
// adapted from a middleware's before/after hook into a single wrapping
// call since uvhttp has no middleware chain to hang a Logger() onto.
// Emitted at Debug so it stays quiet at the server's default log level.
func (s *Server) dispatch(req *http11.Request) (*http11.Response, *WSHandlerTable, string) {
	start := time.Now()
	resp, table, name := s.dispatchInner(req)
	s.logger.WithFields(map[string]any{
		"method":      string(req.Method),
		"path":        req.Path(),
		"status":      resp.Status,
		"duration_ms": float64(time.Since(start).Microseconds()) / 1000.0,
	}).Debug("request handled")
	return resp, table, name
}

// dispatchInner is the per-request decision tree: rate limit, path
// validity, WebSocket upgrade detection and auth, HTTP routing, and the
// static-file fallback. It returns the response to send and, when the
// response is a successful 101, the handler table the connection should
// hand frame processing to afterward.
func (s *Server) dispatchInner(req *http11.Request) (*http11.Response, *WSHandlerTable, string) {
	if s.metrics != nil {
		s.metrics.requestsServed.Inc()
	}

	if s.rateLimiter != nil {
		if !s.rateLimiter.Allow(req.ClientIP()) {
			if s.metrics != nil {
				s.metrics.rateLimitRejections.Inc()
			}
			resp := http11.NewResponse()
			http11.WriteJSONError(resp, 429, "rate limit exceeded", "")
			return resp, nil, ""
		}
	}

	if !req.ValidPath() {
		resp := http11.NewResponse()
		http11.WriteJSONError(resp, 400, "invalid path", "")
		return resp, nil, ""
	}

	if req.Header.Get("Upgrade") != "" {
		if resp, table, name, handled := s.dispatchUpgrade(req); handled {
			return resp, table, name
		}
	}

	match := s.router.Find(router.Method(string(req.Method)), req.Path())
	if match == nil {
		if resp, ok := s.dispatchStatic(req); ok {
			return resp, nil, ""
		}
		resp := http11.NewResponse()
		http11.WriteJSONError(resp, 404, "no route matches", req.Path())
		return resp, nil, ""
	}

	handler, ok := match.Handler.(RouteHandler)
	if !ok {
		resp := http11.NewResponse()
		http11.WriteJSONError(resp, 500, "route registered with wrong handler type", "")
		return resp, nil, ""
	}
	return handler(req, match.Params[:match.NParams]), nil, ""
}

// dispatchUpgrade evaluates an Upgrade: websocket request against the
// longest matching registered prefix. handled is false when no WS handler
// covers this path, letting dispatch fall through to ordinary routing.
func (s *Server) dispatchUpgrade(req *http11.Request) (resp *http11.Response, table *WSHandlerTable, name string, handled bool) {
	t, prefix, ok := s.findWS(req.Path())
	if !ok {
		return nil, nil, "", false
	}

	resp = http11.NewResponse()

	if t.Auth != nil {
		reason := t.Auth.Decide(req.ClientIP(), req.QueryParam)
		if reason != websocket.Success {
			status := websocket.FailureStatus(reason)
			if t.Auth.SendFailedResponse {
				msg := t.Auth.FailedMessage
				if msg == "" {
					msg = "websocket upgrade rejected"
				}
				http11.WriteJSONError(resp, status, msg, "")
			} else {
				resp.SetStatus(status)
			}
			return resp, nil, "", true
		}
	}

	hh := websocket.HandshakeHeaders{
		Upgrade:    req.Header.Get("Upgrade"),
		Connection: req.Header.Get("Connection"),
		Version:    req.Header.Get("Sec-WebSocket-Version"),
		Key:        req.Header.Get("Sec-WebSocket-Key"),
	}
	if err := websocket.ValidateHandshake(hh); err != nil {
		http11.WriteJSONError(resp, 400, "invalid websocket handshake", err.Error())
		return resp, nil, "", true
	}

	resp.SetStatus(101)
	resp.SetHeader("Upgrade", "websocket")
	resp.SetHeader("Connection", "Upgrade")
	resp.SetHeader("Sec-WebSocket-Accept", websocket.AcceptKey(hh.Key))

	tableCopy := t
	return resp, &tableCopy, prefix, true
}

// dispatchStatic attempts to serve a static file when the server has a
// Responder configured and no route matched.
func (s *Server) dispatchStatic(req *http11.Request) (*http11.Response, bool) {
	if s.static == nil {
		return nil, false
	}
	resp := http11.NewResponse()
	ifNoneMatch := req.Header.Get("If-None-Match")
	ifModifiedSince := req.Header.Get("If-Modified-Since")
	if err := s.static.Serve(req.Path(), ifNoneMatch, ifModifiedSince, resp); err != nil {
		return nil, false
	}
	if resp.Status == 404 {
		return nil, false
	}
	return resp, true
}
