package server

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"encoding/binary"
	"io"
	"net"
	"net/textproto"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/yourusername/uvhttp/pkg/uvhttp/http11"
	"github.com/yourusername/uvhttp/pkg/uvhttp/router"
	"github.com/yourusername/uvhttp/pkg/uvhttp/websocket"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	s := New(nil)
	s.RegisterRoute("/hello", router.MethodGET, func(req *http11.Request, params []router.Param) *http11.Response {
		resp := http11.NewResponse()
		resp.SetBody([]byte("world"))
		return resp
	})
	if err := s.Listen("127.0.0.1", 0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := s.listener.Addr().String()
	go s.Run()
	t.Cleanup(func() { s.Stop() })
	return s, addr
}

func doGet(t *testing.T, addr, path string) (status int, body string) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(2 * time.Second))

	req := "GET " + path + " HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write: %v", err)
	}

	tp := textproto.NewReader(bufio.NewReader(conn))
	statusLine, err := tp.ReadLine()
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	parts := strings.SplitN(statusLine, " ", 3)
	if len(parts) < 2 {
		t.Fatalf("malformed status line %q", statusLine)
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		t.Fatalf("parse status code from %q: %v", statusLine, err)
	}

	if _, err := tp.ReadMIMEHeader(); err != nil {
		t.Fatalf("read headers: %v", err)
	}

	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, rerr := tp.R.Read(buf)
		sb.Write(buf[:n])
		if rerr != nil {
			break
		}
	}
	return code, sb.String()
}

func TestServeHelloRoute(t *testing.T) {
	_, addr := startTestServer(t)
	status, body := doGet(t, addr, "/hello")
	if status != 200 {
		t.Fatalf("status = %d, want 200", status)
	}
	if body != "world" {
		t.Fatalf("body = %q, want %q", body, "world")
	}
}

func TestServe404ForUnknownRoute(t *testing.T) {
	_, addr := startTestServer(t)
	status, body := doGet(t, addr, "/nope")
	if status != 404 {
		t.Fatalf("status = %d, want 404", status)
	}
	if !strings.Contains(body, `"error"`) {
		t.Fatalf("expected JSON error body, got %q", body)
	}
}

func TestRateLimitRejectsOverQuota(t *testing.T) {
	s, addr := startTestServer(t)
	s.EnableRateLimit(1, time.Minute)

	status1, _ := doGet(t, addr, "/hello")
	if status1 != 200 {
		t.Fatalf("first request status = %d, want 200", status1)
	}
	status2, _ := doGet(t, addr, "/hello")
	if status2 != 429 {
		t.Fatalf("second request status = %d, want 429", status2)
	}
}

func TestAdmissionRejectsOverMaxConnections(t *testing.T) {
	s := New(nil)
	cfg := DefaultConfig()
	cfg.MaxConnections = 1
	if err := s.Configure(cfg); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	s.RegisterRoute("/hello", router.MethodGET, func(req *http11.Request, params []router.Param) *http11.Response {
		time.Sleep(200 * time.Millisecond)
		resp := http11.NewResponse()
		resp.SetBody([]byte("world"))
		return resp
	})
	if err := s.Listen("127.0.0.1", 0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := s.listener.Addr().String()
	go s.Run()
	defer s.Stop()

	slow, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer slow.Close()
	slow.Write([]byte("GET /hello HTTP/1.1\r\nHost: test\r\nConnection: close\r\n\r\n"))

	time.Sleep(50 * time.Millisecond) // let the first connection register as active

	second, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer second.Close()
	second.SetReadDeadline(time.Now().Add(time.Second))
	buf := make([]byte, 16)
	n, _ := second.Read(buf)
	if n != 0 {
		t.Fatalf("expected the second connection to be closed immediately, got %d bytes", n)
	}
}

// wsHandshake performs the client side of the RFC 6455 upgrade over conn
// and asserts the server answered with a matching Sec-WebSocket-Accept.
func wsHandshake(t *testing.T, conn net.Conn, path string) {
	t.Helper()
	key := base64.StdEncoding.EncodeToString([]byte("0123456789012345"))
	req := "GET " + path + " HTTP/1.1\r\n" +
		"Host: test\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"Sec-WebSocket-Key: " + key + "\r\n\r\n"
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	tp := textproto.NewReader(bufio.NewReader(conn))
	statusLine, err := tp.ReadLine()
	if err != nil {
		t.Fatalf("read status line: %v", err)
	}
	if !strings.Contains(statusLine, "101") {
		t.Fatalf("status line = %q, want 101", statusLine)
	}
	header, err := tp.ReadMIMEHeader()
	if err != nil {
		t.Fatalf("read headers: %v", err)
	}
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11"))
	want := base64.StdEncoding.EncodeToString(h.Sum(nil))
	if got := header.Get("Sec-Websocket-Accept"); got != want {
		t.Fatalf("Sec-WebSocket-Accept = %q, want %q", got, want)
	}
}

// readServerFrame decodes one unmasked server-to-client frame (the shape
// websocket.WriteFrame always produces) directly off conn, since
// websocket.ReadFrame only accepts masked client frames.
func readServerFrame(t *testing.T, conn net.Conn) (opcode byte, payload []byte) {
	t.Helper()
	var hdr [2]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		t.Fatalf("read frame header: %v", err)
	}
	opcode = hdr[0] & 0x0F
	length := uint64(hdr[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(conn, ext[:]); err != nil {
			t.Fatalf("read ext16: %v", err)
		}
		length = uint64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(conn, ext[:]); err != nil {
			t.Fatalf("read ext64: %v", err)
		}
		length = binary.BigEndian.Uint64(ext[:])
	}
	payload = make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(conn, payload); err != nil {
			t.Fatalf("read payload: %v", err)
		}
	}
	return opcode, payload
}

func TestBroadcastReachesEveryRegisteredConnection(t *testing.T) {
	s := New(nil)
	s.RegisterWS("/ws", WSHandlerTable{})
	if err := s.Listen("127.0.0.1", 0); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	addr := s.listener.Addr().String()
	go s.Run()
	t.Cleanup(func() { s.Stop() })

	var clients []net.Conn
	for i := 0; i < 2; i++ {
		c, err := net.DialTimeout("tcp", addr, 2*time.Second)
		if err != nil {
			t.Fatalf("dial: %v", err)
		}
		c.SetDeadline(time.Now().Add(2 * time.Second))
		t.Cleanup(func() { c.Close() })
		wsHandshake(t, c, "/ws")
		clients = append(clients, c)
	}

	// Give runWebSocket's registration a moment to land before broadcasting.
	time.Sleep(50 * time.Millisecond)

	if err := s.Broadcast("/ws", websocket.OpcodeText, []byte("hello all")); err != nil {
		t.Fatalf("Broadcast: %v", err)
	}

	for i, c := range clients {
		opcode, payload := readServerFrame(t, c)
		if opcode != websocket.OpcodeText {
			t.Fatalf("client %d opcode = %x, want text", i, opcode)
		}
		if string(payload) != "hello all" {
			t.Fatalf("client %d payload = %q", i, payload)
		}
	}
}

func TestBroadcastToUnknownPrefixIsNoop(t *testing.T) {
	s := New(nil)
	if err := s.Broadcast("/nowhere", websocket.OpcodeText, []byte("x")); err != nil {
		t.Fatalf("Broadcast on an empty registry should not error, got %v", err)
	}
}
