package store

import (
	"testing"
	"time"
)

func TestSetGetDelete(t *testing.T) {
	c := New(10)
	now := time.Now()

	c.Set("k1", "v1", 0, now)
	v, ok := c.Get("k1", now)
	if !ok || v != "v1" {
		t.Fatalf("expected k1=v1, got %q ok=%v", v, ok)
	}

	c.Delete("k1")
	if _, ok := c.Get("k1", now); ok {
		t.Fatalf("expected k1 absent after delete")
	}
}

func TestClear(t *testing.T) {
	c := New(10)
	now := time.Now()
	c.Set("a", "1", 0, now)
	c.Set("b", "2", 0, now)
	c.Clear()
	if c.Size() != 0 {
		t.Fatalf("expected empty cache after clear, got size %d", c.Size())
	}
}

func TestTTLExpiry(t *testing.T) {
	c := New(10)
	now := time.Now()
	c.Set("k", "v", 10*time.Millisecond, now)

	if _, ok := c.Get("k", now); !ok {
		t.Fatalf("expected k present before expiry")
	}
	later := now.Add(20 * time.Millisecond)
	if _, ok := c.Get("k", later); ok {
		t.Fatalf("expected k absent after TTL expiry")
	}
	if c.Size() != 0 {
		t.Fatalf("expected expired entry removed from cache, size=%d", c.Size())
	}
}

// TestLRUDeterminism is end-to-end scenario S6: maxSize=2, apply
// set(a,1), set(b,2), set(c,3) in order; afterward exactly {b,c} remain.
func TestLRUDeterminism(t *testing.T) {
	c := New(2)
	t0 := time.Now()

	c.Set("a", "1", 0, t0)
	c.Set("b", "2", 0, t0.Add(time.Millisecond))
	c.Set("c", "3", 0, t0.Add(2*time.Millisecond))

	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
	if _, ok := c.Get("a", t0); ok {
		t.Fatalf("expected a evicted")
	}
	if v, ok := c.Get("b", t0); !ok || v != "2" {
		t.Fatalf("expected b=2 present, got %q ok=%v", v, ok)
	}
	if v, ok := c.Get("c", t0); !ok || v != "3" {
		t.Fatalf("expected c=3 present, got %q ok=%v", v, ok)
	}
}

// TestLRUTieBreakLexicographic verifies that when two entries share the
// same lastAccessAt (e.g. both only ever set, never read), eviction picks
// the lexicographically smallest key, so replicas agree byte-for-byte.
func TestLRUTieBreakLexicographic(t *testing.T) {
	c := New(2)
	same := time.Now()

	c.Set("z", "1", 0, same)
	c.Set("a", "2", 0, same)
	// both entries now have identical lastAccessAt; inserting a third
	// should evict "a" (lexicographically smallest) over "z".
	c.Set("m", "3", 0, same)

	if _, ok := c.Get("a", same); ok {
		t.Fatalf("expected lexicographically smallest key 'a' to be evicted on tie")
	}
	if _, ok := c.Get("z", same); !ok {
		t.Fatalf("expected 'z' to survive eviction tie-break")
	}
}

func TestSetOverCapacityOnExistingKeyDoesNotEvict(t *testing.T) {
	c := New(1)
	now := time.Now()
	c.Set("k", "v1", 0, now)
	c.Set("k", "v2", 0, now.Add(time.Millisecond))
	if c.Size() != 1 {
		t.Fatalf("expected size to remain 1, got %d", c.Size())
	}
	if v, _ := c.Get("k", now); v != "v2" {
		t.Fatalf("expected overwritten value v2, got %q", v)
	}
}
