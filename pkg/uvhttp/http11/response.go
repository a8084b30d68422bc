package http11

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

var reasonPhrases = map[int]string{
	200: "OK", 201: "Created", 204: "No Content",
	400: "Bad Request", 401: "Unauthorized", 403: "Forbidden", 404: "Not Found",
	405: "Method Not Allowed", 413: "Payload Too Large", 429: "Too Many Requests",
	500: "Internal Server Error", 501: "Not Implemented", 502: "Bad Gateway",
	503: "Service Unavailable", 431: "Request Header Fields Too Large",
	414: "URI Too Long", 304: "Not Modified", 101: "Switching Protocols",
}

func reasonPhrase(code int) string {
	if r, ok := reasonPhrases[code]; ok {
		return r
	}
	return "Unknown"
}

// KeepAliveDecision carries the inputs the builder needs to decide the
// Connection header and emit Keep-Alive accounting, per spec.md §4.4.
type KeepAliveDecision struct {
	RequestIsHTTP11  bool
	RequestWantsClose bool
	ServerKeepAlive  bool
	RemainingQuota   int
	KeepAliveTimeout int // seconds
}

// KeepAlive evaluates the three-part rule from spec.md §4.4.
func (d KeepAliveDecision) KeepAlive() bool {
	return d.RequestIsHTTP11 && !d.RequestWantsClose && d.ServerKeepAlive && d.RemainingQuota > 0
}

// Response is assembled by a handler and serialized to wire bytes by Send.
type Response struct {
	Status int
	Header *Header
	Body   []byte

	// BodyFilePath, when non-empty, names a file on disk holding the same
	// bytes as Body; a caller that owns the raw connection (pkg/uvhttp/conn)
	// may write the headers normally and then send this file's contents via
	// a zero-copy sendfile path instead of writing Body (see
	// pkg/uvhttp/staticfile.WriteBody). Only staticfile.Responder sets this,
	// for bodies at or above its sendfile threshold; WriteBody writes Body
	// instead when the connection is not a plain TCP socket (e.g. TLS).
	BodyFilePath string

	sent     bool
	closing  bool // set by the connection when it has already begun closing
	keepAlive bool
}

// NewResponse returns a Response defaulting to 200 OK with no body.
func NewResponse() *Response {
	return &Response{Status: 200, Header: NewHeader()}
}

// SetStatus sets the response status code.
func (r *Response) SetStatus(code int) { r.Status = code }

// SetHeader sets a response header, validating it the same way request
// headers are validated (no CR/LF).
func (r *Response) SetHeader(name, value string) error {
	return r.Header.Set(name, value)
}

// SetBody sets the response body bytes (binary-safe).
func (r *Response) SetBody(body []byte) { r.Body = body }

// MarkClosing records that the owning Connection has begun closing; a
// subsequent Send becomes a silent discard per spec.md §5 cancellation
// policy.
func (r *Response) MarkClosing() { r.closing = true }

// Sent reports whether Send has already produced bytes.
func (r *Response) Sent() bool { return r.sent }

// Build serializes the response to wire bytes without any I/O side
// effects — the "build-for-test" variant spec.md §4.4 calls for.
func (r *Response) Build(decision KeepAliveDecision) []byte {
	var b strings.Builder
	b.Grow(256 + len(r.Body))

	fmt.Fprintf(&b, "HTTP/1.1 %d %s\r\n", r.Status, reasonPhrase(r.Status))

	// A 101 response is a protocol handoff, not a keep-alive-eligible HTTP
	// reply: Content-Length/Content-Type don't apply, and the handler's own
	// Upgrade/Connection: Upgrade headers must survive untouched.
	if r.Status == 101 {
		r.keepAlive = false
		r.Header.Each(func(name, value string) {
			fmt.Fprintf(&b, "%s: %s\r\n", name, value)
		})
		b.WriteString("\r\n")
		out := make([]byte, 0, b.Len()+len(r.Body))
		out = append(out, b.String()...)
		out = append(out, r.Body...)
		return out
	}

	keepAlive := decision.KeepAlive()
	r.keepAlive = keepAlive

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "text/plain"
	}

	r.Header.Each(func(name, value string) {
		switch strings.ToLower(name) {
		case "content-length", "content-type", "connection", "keep-alive":
			return
		}
		fmt.Fprintf(&b, "%s: %s\r\n", name, value)
	})

	fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	fmt.Fprintf(&b, "Content-Type: %s\r\n", contentType)

	if keepAlive {
		b.WriteString("Connection: keep-alive\r\n")
		fmt.Fprintf(&b, "Keep-Alive: timeout=%d, max=%d\r\n", decision.KeepAliveTimeout, decision.RemainingQuota)
	} else {
		b.WriteString("Connection: close\r\n")
	}

	b.WriteString("\r\n")
	out := make([]byte, 0, b.Len()+len(r.Body))
	out = append(out, b.String()...)
	out = append(out, r.Body...)
	return out
}

// BuildHeader serializes only the status line and headers, for a caller
// that will write the body separately (the static-file sendfile path).
func (r *Response) BuildHeader(decision KeepAliveDecision) []byte {
	full := r.Build(decision)
	return full[:len(full)-len(r.Body)]
}

// Send finalizes the response: idempotent (a second call writes nothing
// and returns true), and a no-op discard once the connection is closing.
// It always returns true. writeFn receives the wire bytes to enqueue, unless the
// connection has begun closing, or unless this Response was already sent.
func (r *Response) Send(decision KeepAliveDecision, writeFn func([]byte)) bool {
	if r.sent {
		return true
	}
	r.sent = true
	if r.closing {
		return true
	}
	writeFn(r.Build(decision))
	return true
}

// KeepAliveResult reports the decision made by the most recent Build/Send,
// used by the connection state machine to decide Reading vs Closing.
func (r *Response) KeepAliveResult() bool { return r.keepAlive }

// errorBody is the shape of spec.md §7's JSON error body.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// WriteJSONError sets status, a JSON content type, and the
// {"error":{"code":N,"message":"…","details":"…"}} body from spec.md §7.
func WriteJSONError(resp *Response, code int, message, details string) {
	resp.SetStatus(code)
	resp.SetHeader("Content-Type", "application/json")
	body, err := json.Marshal(errorBody{Error: errorDetail{Code: code, Message: message, Details: details}})
	if err != nil {
		body = []byte(`{"error":{"code":` + strconv.Itoa(code) + `,"message":"internal error"}}`)
	}
	resp.SetBody(body)
}
