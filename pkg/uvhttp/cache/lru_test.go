package cache

import (
	"testing"
	"time"
)

func entry(key string, size int64) *Entry {
	return &Entry{Key: key, Value: make([]byte, size), Size: size}
}

func TestPutGetRoundTrip(t *testing.T) {
	c := New(0, 0, 0)
	c.Put(entry("a", 10))
	e, ok := c.Get("a", nil)
	if !ok || e.Key != "a" {
		t.Fatalf("expected hit for key a")
	}
}

func TestByteBudgetEviction(t *testing.T) {
	c := New(25, 0, 0)
	c.Put(entry("a", 10))
	c.Put(entry("b", 10))
	c.Put(entry("c", 10)) // should evict "a" (LRU tail)

	if _, ok := c.Get("a", nil); ok {
		t.Fatalf("expected a to be evicted")
	}
	if _, ok := c.Get("b", nil); !ok {
		t.Fatalf("expected b to survive")
	}
	if c.TotalBytes() > 25 {
		t.Fatalf("TotalBytes() = %d, want <= 25", c.TotalBytes())
	}
}

func TestEntryCountEviction(t *testing.T) {
	c := New(0, 2, 0)
	c.Put(entry("a", 1))
	c.Put(entry("b", 1))
	c.Put(entry("c", 1))
	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(0, 0, 10*time.Millisecond)
	c.Put(entry("a", 1))
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get("a", nil); ok {
		t.Fatalf("expected entry to be expired")
	}
}

func TestStaleFuncInvalidatesEntry(t *testing.T) {
	c := New(0, 0, 0)
	c.Put(entry("a", 1))
	stale := func(e *Entry) bool { return true }
	if _, ok := c.Get("a", stale); ok {
		t.Fatalf("expected stale entry to be treated as a miss")
	}
	if _, ok := c.Get("a", nil); ok {
		t.Fatalf("stale entry should have been removed from the cache")
	}
}

func TestLRUOrderingMovesOnAccess(t *testing.T) {
	c := New(0, 2, 0)
	c.Put(entry("a", 1))
	c.Put(entry("b", 1))
	c.Get("a", nil) // touch a, making b the LRU tail
	c.Put(entry("c", 1))

	if _, ok := c.Get("b", nil); ok {
		t.Fatalf("expected b (least recently used) to be evicted")
	}
	if _, ok := c.Get("a", nil); !ok {
		t.Fatalf("expected a (recently touched) to survive")
	}
}
