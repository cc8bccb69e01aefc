// Copyright 2025 James Ross
package scheduler

import (
	"testing"
	"time"
)

func TestGroupConsumeTokensRefillsOverTime(t *testing.T) {
	now := time.Now().UTC()
	g := NewGroup(GroupSpec{MaxTokens: 2, RefillRate: 1}, now)

	if !g.ConsumeTokens(2, now) {
		t.Fatal("expected first consume of full bucket to succeed")
	}
	if g.ConsumeTokens(1, now) {
		t.Fatal("expected consume against an empty bucket to fail")
	}
	if !g.ConsumeTokens(1, now.Add(2*time.Second)) {
		t.Fatal("expected bucket to have refilled after 2s at refill_rate=1")
	}
}

func TestGroupDefaults(t *testing.T) {
	g := NewGroup(GroupSpec{}, time.Now().UTC())
	if g.MaxTokens != 10 || g.RefillRate != 1.0 {
		t.Fatalf("unexpected defaults: %+v", g)
	}
	if g.MaxPopRate != defaultMaxPopRate {
		t.Fatalf("expected effectively unbounded max pop rate, got %v", g.MaxPopRate)
	}
}

func TestGroupMaxPopRateGuard(t *testing.T) {
	now := time.Now().UTC()
	g := NewGroup(GroupSpec{MaxTokens: 100, RefillRate: 100, MaxPopRate: 10}, now)
	if !g.ConsumeTokens(1, now) {
		t.Fatal("first pop should be allowed regardless of rate")
	}
	if g.ConsumeTokens(1, now.Add(time.Millisecond)) {
		t.Fatal("expected max pop rate guard to reject a too-fast second pop")
	}
}

func TestGroupDefaultAllowsTwoPopsAtSameInstant(t *testing.T) {
	now := time.Now().UTC()
	g := NewGroup(GroupSpec{}, now)
	if !g.ConsumeTokens(1, now) {
		t.Fatal("expected first pop to succeed")
	}
	if !g.ConsumeTokens(1, now) {
		t.Fatal("expected a second pop observed at the identical instant to succeed against the default (effectively unbounded) max pop rate, limited only by token availability")
	}
}
