package http11

import (
	"net"
	"strings"
)

// Method enumerates the methods spec.md §3 lists for a Request.
type Method string

const (
	MethodGET     Method = "GET"
	MethodPOST    Method = "POST"
	MethodPUT     Method = "PUT"
	MethodDELETE  Method = "DELETE"
	MethodHEAD    Method = "HEAD"
	MethodOPTIONS Method = "OPTIONS"
	MethodPATCH   Method = "PATCH"
	MethodANY     Method = "ANY"
)

var validMethods = map[Method]bool{
	MethodGET: true, MethodPOST: true, MethodPUT: true, MethodDELETE: true,
	MethodHEAD: true, MethodOPTIONS: true, MethodPATCH: true,
}

// Limits bounds a Request's acceptable sizes, configured by the server.
// MaxHeaders caps the number of header lines (spec.md §3, "typical 64");
// MaxHeaderBytes caps the length of any single header line (spec.md §6's
// max_header_size, "per-header cap") and, by extension, the header block
// as a whole (MaxHeaders * MaxHeaderBytes).
type Limits struct {
	MaxURLSize     int
	MaxBodySize    int64
	MaxHeaders     int
	MaxHeaderBytes int
}

// DefaultLimits matches the recommended defaults of spec.md §4.9/§6.
func DefaultLimits() Limits {
	return Limits{MaxURLSize: 8 * 1024, MaxBodySize: 1 << 20, MaxHeaders: 64, MaxHeaderBytes: 8 * 1024}
}

// Request is one fully-parsed HTTP/1.1 request.
type Request struct {
	Method  Method
	RawURL  string
	Proto   string
	Header  *Header
	Body    []byte
	RemoteAddr string

	parsingComplete bool

	path      string
	query     string
	derived   bool
}

// Validate checks the structural invariants spec.md §3 requires before the
// Request reaches a handler: method recognized, URL within budget, header
// count within budget. Called by the parser adapter at headers-complete.
func (r *Request) Validate(limits Limits) error {
	if !validMethods[r.Method] {
		return ErrInvalidMethod
	}
	if len(r.RawURL) > limits.MaxURLSize {
		return ErrURITooLong
	}
	if r.Header.Len() > limits.MaxHeaders {
		return ErrTooManyHeaders
	}
	if cl := r.Header.Get("Content-Length"); cl != "" {
		n, err := parseNonNegativeInt(cl)
		if err != nil {
			return ErrInvalidContentLen
		}
		if n > limits.MaxBodySize {
			return ErrBodyTooLarge
		}
	}
	return nil
}

func parseNonNegativeInt(s string) (int64, error) {
	var n int64
	if s == "" {
		return 0, ErrInvalidContentLen
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < '0' || c > '9' {
			return 0, ErrInvalidContentLen
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}

// derive computes Path and Query lazily, once, memoized. It does not
// validate the path; ValidPath does that separately.
func (r *Request) derive() {
	if r.derived {
		return
	}
	r.derived = true

	raw := r.RawURL
	if idx := strings.IndexByte(raw, '?'); idx >= 0 {
		r.path = raw[:idx]
		r.query = raw[idx+1:]
	} else {
		r.path = raw
		r.query = ""
	}
}

// Path returns the URL path portion, memoized after the first call.
func (r *Request) Path() string {
	r.derive()
	return r.path
}

// QueryString returns the raw query string (without leading '?').
func (r *Request) QueryString() string {
	r.derive()
	return r.query
}

// ValidPath reports whether the derived path is free of traversal, NUL,
// and the disallowed character set from spec.md §4.2.
func (r *Request) ValidPath() bool {
	p := r.Path()
	if strings.Contains(p, "..") {
		return false
	}
	for i := 0; i < len(p); i++ {
		switch p[i] {
		case 0, '<', '>', ':', '"', '|', '*':
			return false
		}
	}
	return true
}

// QueryParam performs a linear &/=-delimited scan over the query string.
func (r *Request) QueryParam(name string) (string, bool) {
	q := r.QueryString()
	for q != "" {
		var pair string
		if idx := strings.IndexByte(q, '&'); idx >= 0 {
			pair, q = q[:idx], q[idx+1:]
		} else {
			pair, q = q, ""
		}
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		if k == name {
			return v, true
		}
	}
	return "", false
}

// ClientIP prefers the first X-Forwarded-For value, then RemoteAddr, then
// the loopback default, per spec.md §4.2.
func (r *Request) ClientIP() string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return "127.0.0.1"
}

// IsHTTP11 reports whether the request's declared protocol is HTTP/1.1.
func (r *Request) IsHTTP11() bool {
	return r.Proto == "HTTP/1.1"
}

// WantsClose reports whether the request explicitly asked for
// Connection: close.
func (r *Request) WantsClose() bool {
	return r.Header.HasToken("Connection", "close")
}
