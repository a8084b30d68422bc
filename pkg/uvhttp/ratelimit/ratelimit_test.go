package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinWindow(t *testing.T) {
	l := New(3, time.Minute)
	defer l.Stop()

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.5") {
			t.Fatalf("request %d should be admitted", i)
		}
	}
	if l.Allow("10.0.0.5") {
		t.Fatalf("4th request should be rejected")
	}
}

func TestWhitelistBypassesCounting(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	if err := l.AddWhitelist("10.0.0.5"); err != nil {
		t.Fatalf("AddWhitelist: %v", err)
	}
	for i := 0; i < 10; i++ {
		if !l.Allow("10.0.0.5") {
			t.Fatalf("whitelisted client rejected on request %d", i)
		}
	}
}

func TestCIDRWhitelist(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	if err := l.AddWhitelist("10.0.0.0/24"); err != nil {
		t.Fatalf("AddWhitelist: %v", err)
	}
	if !l.Whitelisted("10.0.0.42") {
		t.Fatalf("expected 10.0.0.42 to match 10.0.0.0/24")
	}
	if l.Whitelisted("10.0.1.1") {
		t.Fatalf("expected 10.0.1.1 to NOT match 10.0.0.0/24")
	}
}

func TestResetRestoresQuota(t *testing.T) {
	l := New(2, time.Minute)
	defer l.Stop()

	l.Allow("1.2.3.4")
	l.Allow("1.2.3.4")
	if l.Allow("1.2.3.4") {
		t.Fatalf("expected rejection before reset")
	}
	l.Reset("1.2.3.4")
	for i := 0; i < 2; i++ {
		if !l.Allow("1.2.3.4") {
			t.Fatalf("expected admission %d after reset", i)
		}
	}
}

func TestWindowResetsOverTime(t *testing.T) {
	l := New(1, 10*time.Millisecond)
	defer l.Stop()

	if !l.Allow("9.9.9.9") {
		t.Fatalf("first request should be admitted")
	}
	if l.Allow("9.9.9.9") {
		t.Fatalf("second request within window should be rejected")
	}
	time.Sleep(20 * time.Millisecond)
	if !l.Allow("9.9.9.9") {
		t.Fatalf("request after window reset should be admitted")
	}
}

func TestStatusReportsRemaining(t *testing.T) {
	l := New(5, time.Minute)
	defer l.Stop()

	l.Allow("5.5.5.5")
	l.Allow("5.5.5.5")
	remaining, _ := l.Status("5.5.5.5")
	if remaining != 3 {
		t.Fatalf("remaining = %d, want 3", remaining)
	}
}

func TestClearAll(t *testing.T) {
	l := New(1, time.Minute)
	defer l.Stop()

	l.Allow("a")
	l.Allow("b")
	l.ClearAll()
	if !l.Allow("a") || !l.Allow("b") {
		t.Fatalf("expected both clients admitted after ClearAll")
	}
}
