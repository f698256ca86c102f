package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLimiterAllowsUpToMax(t *testing.T) {
	l := newMemoryLimiter(time.Minute, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if !l.Allow(ctx, "k1") {
			t.Fatalf("Allow() returned false on attempt %d, want true", i+1)
		}
	}
	if l.Allow(ctx, "k1") {
		t.Error("Allow() returned true on 4th attempt, want false")
	}
}

func TestMemoryLimiterExpiresOldHits(t *testing.T) {
	l := newMemoryLimiter(20*time.Millisecond, 1)
	ctx := context.Background()

	if !l.Allow(ctx, "k1") {
		t.Fatal("first Allow() should succeed")
	}
	if l.Allow(ctx, "k1") {
		t.Fatal("second Allow() within window should be suppressed")
	}

	time.Sleep(30 * time.Millisecond)
	if !l.Allow(ctx, "k1") {
		t.Error("Allow() after window expiry should succeed again")
	}
}

func TestMemoryLimiterTracksKeysIndependently(t *testing.T) {
	l := newMemoryLimiter(time.Minute, 1)
	ctx := context.Background()

	if !l.Allow(ctx, "a") {
		t.Error("expected first hit for key a to be allowed")
	}
	if !l.Allow(ctx, "b") {
		t.Error("expected first hit for key b to be allowed")
	}
}

func TestNewFallsBackToMemoryLimiterWhenNoAddr(t *testing.T) {
	l := New("", "", 0, time.Minute, 5)
	if _, ok := l.(*memoryLimiter); !ok {
		t.Errorf("New with empty addr = %T, want *memoryLimiter", l)
	}
}
