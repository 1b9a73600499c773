package quotes

import (
	"context"
	"testing"
	"time"
)

func TestLimiterBurstThenRefillWait(t *testing.T) {
	l := NewLimiter(2, 2, 5, time.Second)
	ctx := context.Background()

	start := time.Now()
	if err := l.Acquire(ctx, 1, false); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}
	if err := l.Acquire(ctx, 1, false); err != nil {
		t.Fatalf("second Acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("burst acquires took %v, want near-immediate", elapsed)
	}

	// Third token must wait roughly 1/qps.
	start = time.Now()
	if err := l.Acquire(ctx, 1, false); err != nil {
		t.Fatalf("third Acquire: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 350*time.Millisecond || elapsed > 800*time.Millisecond {
		t.Errorf("third Acquire waited %v, want ~500ms", elapsed)
	}
}

func TestLimiterCooldown(t *testing.T) {
	l := NewLimiter(100, 100, 2, time.Second)

	l.RecordRateLimitError()
	if l.CooldownActive() {
		t.Fatal("cooldown active after one failure, threshold is 2")
	}
	l.RecordRateLimitError()
	if !l.CooldownActive() {
		t.Fatal("cooldown not active after reaching threshold")
	}

	// Acquire blocks for most of the cooldown window.
	start := time.Now()
	if err := l.Acquire(context.Background(), 1, false); err != nil {
		t.Fatalf("Acquire during cooldown: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 800*time.Millisecond {
		t.Errorf("Acquire returned after %v, want >= 800ms", elapsed)
	}

	// Success after natural expiry clears the sticky window.
	l.RecordSuccess()
	if l.CooldownActive() {
		t.Error("cooldown still active after success post-expiry")
	}
}

func TestLimiterCooldownFastFail(t *testing.T) {
	l := NewLimiter(100, 100, 1, time.Second)
	l.RecordRateLimitError()

	start := time.Now()
	err := l.Acquire(context.Background(), 1, true)
	if err == nil {
		t.Fatal("fast-fail Acquire succeeded during cooldown")
	}
	if kind := Classify(err); kind != KindRateLimited {
		t.Errorf("fast-fail error classified as %s, want %s", kind, KindRateLimited)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("fast-fail blocked for %v", elapsed)
	}
}

func TestLimiterSuccessDoesNotTruncateActiveCooldown(t *testing.T) {
	l := NewLimiter(100, 100, 1, 500*time.Millisecond)
	l.RecordRateLimitError()
	if !l.CooldownActive() {
		t.Fatal("expected active cooldown")
	}

	l.RecordSuccess()
	if !l.CooldownActive() {
		t.Error("RecordSuccess truncated an active cooldown")
	}

	time.Sleep(600 * time.Millisecond)
	l.RecordSuccess()
	if l.CooldownActive() {
		t.Error("cooldown should have elapsed")
	}
}

func TestLimiterAcquireHonorsCancellation(t *testing.T) {
	l := NewLimiter(1, 1, 5, time.Second)
	if err := l.Acquire(context.Background(), 1, false); err != nil {
		t.Fatalf("priming Acquire: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := l.Acquire(ctx, 1, false); err == nil {
		t.Fatal("Acquire succeeded despite cancelled context")
	}
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Errorf("cancelled Acquire took %v", elapsed)
	}
}
