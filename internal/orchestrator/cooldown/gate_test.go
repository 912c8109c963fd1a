package cooldown

import (
	"testing"
	"time"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGateInitiallyOpen(t *testing.T) {
	g := New(5*time.Second, nil)
	if g.Active() {
		t.Error("new gate should not be active")
	}
	if g.Remaining() != 0 {
		t.Errorf("Remaining = %v, want 0", g.Remaining())
	}
}

func TestGateCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	g := New(5*time.Second, clock.now)

	if !g.Trigger() {
		t.Fatal("first trigger should succeed")
	}
	if g.Trigger() {
		t.Error("immediate second trigger should be suppressed")
	}

	clock.advance(4 * time.Second)
	if !g.Active() || g.Remaining() != time.Second {
		t.Errorf("after 4s active=%v remaining=%v, want true 1s", g.Active(), g.Remaining())
	}
	if g.Trigger() {
		t.Error("trigger inside cooldown should be suppressed")
	}

	clock.advance(time.Second)
	if g.Active() {
		t.Error("gate should reopen after the period")
	}
	if !g.Trigger() {
		t.Error("trigger after cooldown should succeed")
	}
}

func TestGateReset(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	g := New(time.Minute, clock.now)
	g.Trigger()
	g.Reset()
	if g.Active() {
		t.Error("gate should be open after Reset")
	}
	if !g.Trigger() {
		t.Error("trigger after Reset should succeed")
	}
}
