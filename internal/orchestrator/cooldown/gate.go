// Package cooldown debounces detections of one sustained event.
package cooldown

import (
	"sync"
	"time"
)

// Gate suppresses triggers for a fixed period after each accepted one.
type Gate struct {
	mu       sync.Mutex
	period   time.Duration
	now      func() time.Time
	lastTime time.Time
}

// New creates a gate with the given quiet period.
func New(period time.Duration, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{period: period, now: now}
}

// Active reports whether the gate is still in its quiet period.
func (g *Gate) Active() bool {
	return g.Remaining() > 0
}

// Remaining returns how long the quiet period still runs.
func (g *Gate) Remaining() time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.lastTime.IsZero() {
		return 0
	}
	return max(0, g.period-g.now().Sub(g.lastTime))
}

// Trigger starts a new quiet period if none is running and reports whether
// it did.
func (g *Gate) Trigger() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if !g.lastTime.IsZero() && now.Sub(g.lastTime) < g.period {
		return false
	}
	g.lastTime = now
	return true
}

// Reset ends any quiet period.
func (g *Gate) Reset() {
	g.mu.Lock()
	g.lastTime = time.Time{}
	g.mu.Unlock()
}
