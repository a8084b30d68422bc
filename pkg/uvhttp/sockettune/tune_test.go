package sockettune

import (
	"net"
	"testing"
)

func TestApplyOnNonTCPConnIsNoop(t *testing.T) {
	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	if err := Apply(c1, DefaultConfig()); err != nil {
		t.Fatalf("Apply on a non-TCP conn should be a no-op, got error: %v", err)
	}
}

func TestApplyOnTCPConn(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if err := Apply(conn, DefaultConfig()); err != nil {
			t.Errorf("Apply: %v", err)
		}
	}()

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()
	<-done
}
