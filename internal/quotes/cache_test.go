package quotes

import (
	"testing"
	"time"
)

func TestCacheFreshness(t *testing.T) {
	c := NewCache()
	ttl := 200 * time.Millisecond

	c.Put(map[string]Record{"NSE:NIFTY 50": {LastPrice: 10}}, ttl)

	rec, hit := c.Get("NSE:NIFTY 50", ttl)
	if !hit {
		t.Fatal("expected immediate hit")
	}
	if rec.LastPrice != 10 {
		t.Errorf("LastPrice = %v, want 10", rec.LastPrice)
	}

	time.Sleep(250 * time.Millisecond)
	if _, hit := c.Get("NSE:NIFTY 50", ttl); hit {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestCacheDisabledByNonPositiveTTL(t *testing.T) {
	c := NewCache()

	c.Put(map[string]Record{"X": {LastPrice: 1}}, 0)
	if _, hit := c.Get("X", 0); hit {
		t.Error("ttl=0 must force a miss")
	}
	if meta := c.SnapshotMeta(); meta.Size != 0 {
		t.Errorf("Put with ttl=0 stored %d entries", meta.Size)
	}

	// A negative ttl on Get treats a valid entry as absent too.
	c.Put(map[string]Record{"Y": {LastPrice: 2}}, time.Second)
	if _, hit := c.Get("Y", -1); hit {
		t.Error("negative ttl must force a miss")
	}
}

func TestCachePutSkipsEmptyKeys(t *testing.T) {
	c := NewCache()
	c.Put(map[string]Record{"": {LastPrice: 1}, "OK": {LastPrice: 2}}, time.Second)

	if meta := c.SnapshotMeta(); meta.Size != 1 {
		t.Errorf("size = %d, want 1", meta.Size)
	}
	if _, hit := c.Get("OK", time.Second); !hit {
		t.Error("valid entry missing")
	}
}

func TestCacheMetaCounters(t *testing.T) {
	c := NewCache()
	ttl := time.Second

	c.Put(map[string]Record{"A": {LastPrice: 1}}, ttl)
	c.Get("A", ttl) // hit
	c.Get("B", ttl) // miss
	c.Get("A", ttl) // hit

	meta := c.SnapshotMeta()
	if meta.Hits != 2 || meta.Misses != 1 {
		t.Errorf("hits/misses = %d/%d, want 2/1", meta.Hits, meta.Misses)
	}
	if meta.Size != 1 {
		t.Errorf("size = %d, want 1", meta.Size)
	}
}

func TestCacheLazyEviction(t *testing.T) {
	c := NewCache()
	c.Put(map[string]Record{"A": {LastPrice: 1}}, 50*time.Millisecond)

	time.Sleep(80 * time.Millisecond)
	if _, hit := c.Get("A", 50*time.Millisecond); hit {
		t.Fatal("stale entry served")
	}
	// Entry stays in the table until overwritten; expiry is lazy.
	if meta := c.SnapshotMeta(); meta.Size != 1 {
		t.Errorf("size = %d, want 1 (no background sweep)", meta.Size)
	}
}
