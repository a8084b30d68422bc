package websocket

import (
	"bytes"
	"testing"
)

func TestAcceptKeyRFC6455Example(t *testing.T) {
	got := AcceptKey("dGhlIHNhbXBsZSBub25jZQ==")
	want := "s3pPLMBiTxaQ9kYGzzhZRbK+xOo="
	if got != want {
		t.Fatalf("AcceptKey = %q, want %q", got, want)
	}
}

func TestValidateHandshakeHappyPath(t *testing.T) {
	h := HandshakeHeaders{Upgrade: "websocket", Connection: "Upgrade", Version: "13", Key: "dGhlIHNhbXBsZSBub25jZQ=="}
	if err := ValidateHandshake(h); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateHandshakeRejectsBadVersion(t *testing.T) {
	h := HandshakeHeaders{Upgrade: "websocket", Connection: "Upgrade", Version: "8", Key: "dGhlIHNhbXBsZSBub25jZQ=="}
	if err := ValidateHandshake(h); err != ErrBadVersion {
		t.Fatalf("err = %v, want ErrBadVersion", err)
	}
}

// maskedFrame builds a client->server masked frame the way a conformant
// client would, for use as test input to ReadFrame.
func maskedFrame(fin bool, opcode byte, payload []byte) []byte {
	var buf bytes.Buffer
	b0 := opcode
	if fin {
		b0 |= finBit
	}
	buf.WriteByte(b0)

	n := len(payload)
	switch {
	case n < 126:
		buf.WriteByte(byte(n) | maskBit)
	default:
		buf.WriteByte(126 | maskBit)
		buf.WriteByte(byte(n >> 8))
		buf.WriteByte(byte(n))
	}

	maskKey := [4]byte{0x01, 0x02, 0x03, 0x04}
	buf.Write(maskKey[:])
	masked := make([]byte, n)
	for i, b := range payload {
		masked[i] = b ^ maskKey[i%4]
	}
	buf.Write(masked)
	return buf.Bytes()
}

func TestReadFrameEchoScenario(t *testing.T) {
	raw := maskedFrame(true, OpcodeText, []byte("hi"))
	f, err := ReadFrame(bytes.NewReader(raw), 0)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if string(f.Payload) != "hi" {
		t.Fatalf("Payload = %q, want hi", f.Payload)
	}

	var out bytes.Buffer
	if err := WriteFrame(&out, true, OpcodeText, f.Payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	echoed, err := parseServerFrame(out.Bytes())
	if err != nil {
		t.Fatalf("parsing echoed frame: %v", err)
	}
	if echoed.Masked {
		t.Fatalf("server frame must not be masked")
	}
	if string(echoed.Payload) != "hi" {
		t.Fatalf("echoed payload = %q", echoed.Payload)
	}
}

// parseServerFrame parses an unmasked (server-originated) frame for
// assertions, bypassing ReadFrame's server-side mask requirement.
func parseServerFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	f.Fin = raw[0]&finBit != 0
	f.Opcode = raw[0] & opcodeMask
	f.Masked = raw[1]&maskBit != 0
	length := int(raw[1] & lengthMask)
	offset := 2
	if length == 126 {
		length = int(raw[2])<<8 | int(raw[3])
		offset = 4
	}
	f.Payload = raw[offset : offset+length]
	return f, nil
}

func TestUnmaskedClientFrameRejected(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(finBit | OpcodeText)
	buf.WriteByte(2) // no mask bit
	buf.WriteString("hi")
	if _, err := ReadFrame(&buf, 0); err != ErrUnmaskedClientFrame {
		t.Fatalf("err = %v, want ErrUnmaskedClientFrame", err)
	}
}

func TestControlFrameOver125BytesRejected(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 126)
	raw := maskedFrame(true, OpcodePing, payload)
	if _, err := ReadFrame(bytes.NewReader(raw), 0); err != ErrControlFrameTooBig {
		t.Fatalf("err = %v, want ErrControlFrameTooBig", err)
	}
}

func TestControlFrameAt125BytesAccepted(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 125)
	raw := maskedFrame(true, OpcodePing, payload)
	if _, err := ReadFrame(bytes.NewReader(raw), 0); err != nil {
		t.Fatalf("unexpected error at boundary: %v", err)
	}
}

func TestFragmentedMessageReassembly(t *testing.T) {
	r := NewReassembler(0)
	var delivered []byte
	h := &Handlers{OnMessage: func(_ *Conn, _ byte, payload []byte) { delivered = append([]byte{}, payload...) }}

	f1 := &Frame{Fin: false, Opcode: OpcodeText, Payload: []byte("hel")}
	f2 := &Frame{Fin: true, Opcode: OpcodeContinuation, Payload: []byte("lo")}

	if err := r.Feed(f1, h, nil); err != nil {
		t.Fatalf("feed f1: %v", err)
	}
	if delivered != nil {
		t.Fatalf("message should not be delivered before FIN")
	}
	if err := r.Feed(f2, h, nil); err != nil {
		t.Fatalf("feed f2: %v", err)
	}
	if string(delivered) != "hello" {
		t.Fatalf("delivered = %q, want hello", delivered)
	}
}

func TestContinuationWithoutActiveMessageErrors(t *testing.T) {
	r := NewReassembler(0)
	f := &Frame{Fin: true, Opcode: OpcodeContinuation, Payload: []byte("x")}
	if err := r.Feed(f, nil, nil); err != ErrUnexpectedContinuation {
		t.Fatalf("err = %v, want ErrUnexpectedContinuation", err)
	}
}

func TestNonContinuationMidFragmentationErrors(t *testing.T) {
	r := NewReassembler(0)
	f1 := &Frame{Fin: false, Opcode: OpcodeText, Payload: []byte("a")}
	f2 := &Frame{Fin: false, Opcode: OpcodeText, Payload: []byte("b")}
	if err := r.Feed(f1, nil, nil); err != nil {
		t.Fatalf("feed f1: %v", err)
	}
	if err := r.Feed(f2, nil, nil); err != ErrExpectedContinuation {
		t.Fatalf("err = %v, want ErrExpectedContinuation", err)
	}
}

func TestInvalidUTF8TextRejected(t *testing.T) {
	r := NewReassembler(0)
	f := &Frame{Fin: true, Opcode: OpcodeText, Payload: []byte{0xff, 0xfe}}
	if err := r.Feed(f, nil, nil); err != ErrInvalidUTF8 {
		t.Fatalf("err = %v, want ErrInvalidUTF8", err)
	}
}

func TestAuthPolicyOrderingBlacklistFirst(t *testing.T) {
	p := &AuthPolicy{EnableIPBlacklist: true, Blacklist: []string{"1.2.3.4"}, EnableIPWhitelist: true, Whitelist: []string{"9.9.9.9"}}
	reason := p.Decide("1.2.3.4", func(string) (string, bool) { return "", false })
	if reason != IPBlocked {
		t.Fatalf("reason = %v, want IPBlocked", reason)
	}
}

func TestAuthPolicyTokenMissing(t *testing.T) {
	p := &AuthPolicy{EnableTokenAuth: true, Validator: func(string) error { return nil }}
	reason := p.Decide("1.2.3.4", func(string) (string, bool) { return "", false })
	if reason != NoToken {
		t.Fatalf("reason = %v, want NoToken", reason)
	}
}

func TestAuthPolicyNoValidatorIsInternalError(t *testing.T) {
	p := &AuthPolicy{EnableTokenAuth: true}
	reason := p.Decide("1.2.3.4", func(string) (string, bool) { return "tok", true })
	if reason != InternalError {
		t.Fatalf("reason = %v, want InternalError", reason)
	}
}

func TestAuthPolicySuccess(t *testing.T) {
	p := &AuthPolicy{}
	reason := p.Decide("1.2.3.4", func(string) (string, bool) { return "", false })
	if reason != Success {
		t.Fatalf("reason = %v, want Success", reason)
	}
}
