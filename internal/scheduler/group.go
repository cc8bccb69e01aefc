// Copyright 2025 James Ross
package scheduler

import (
	"time"

	"github.com/google/uuid"
)

// GroupSpec configures a rate-limited group of items.
type GroupSpec struct {
	Name        string
	MaxTokens   float64
	RefillRate  float64
	MaxPopRate  float64
}

// Group is a token-bucket rate limiter shared by every item assigned to it.
type Group struct {
	ID         string
	Name       string
	MaxTokens  float64
	RefillRate float64
	MaxPopRate float64

	tokens         float64
	lastRefillTime time.Time
	lastPop        time.Time
}

const defaultMaxPopRate = 1e9 // effectively unbounded, per the original's ItemGroup default

// NewGroup constructs a Group, defaulting to the original's ItemGroupSpec
// values (max_tokens=10, refill_rate=1.0) where unset.
func NewGroup(spec GroupSpec, now time.Time) *Group {
	g := &Group{
		ID:             uuid.NewString(),
		Name:           spec.Name,
		MaxTokens:      10,
		RefillRate:     1.0,
		MaxPopRate:     defaultMaxPopRate,
		lastRefillTime: now,
		lastPop:        time.Time{}, // zero value, matching datetime.min
	}
	if spec.MaxTokens != 0 {
		g.MaxTokens = spec.MaxTokens
	}
	if spec.RefillRate != 0 {
		g.RefillRate = spec.RefillRate
	}
	if spec.MaxPopRate != 0 {
		g.MaxPopRate = spec.MaxPopRate
	}
	g.tokens = g.MaxTokens
	return g
}

// refill tops the bucket up based on elapsed time since the last refill.
func (g *Group) refill(now time.Time) {
	elapsed := now.Sub(g.lastRefillTime).Seconds()
	if elapsed < 0 {
		elapsed = 0
	}
	g.tokens += elapsed * g.RefillRate
	if g.tokens > g.MaxTokens {
		g.tokens = g.MaxTokens
	}
	g.lastRefillTime = now
}

// ConsumeTokens attempts to withdraw quantity tokens, subject to both the
// bucket's balance and the max-pop-rate guard. On success it records now as
// the last pop time so the guard is meaningful on the following call.
func (g *Group) ConsumeTokens(quantity int, now time.Time) bool {
	g.refill(now)

	elapsed := now.Sub(g.lastPop).Seconds()
	if elapsed > 0 {
		rate := 1 / elapsed
		if rate >= g.MaxPopRate {
			return false
		}
	}
	// First pop, or two pops observed at the same instant: there is no
	// meaningful rate to compare against MaxPopRate, so fall back to token
	// availability alone rather than forcing a rejection.

	if g.tokens < float64(quantity) {
		return false
	}
	g.tokens -= float64(quantity)
	g.lastPop = now
	return true
}
