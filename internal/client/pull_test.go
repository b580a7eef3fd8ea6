package client

import (
	"math"
	"testing"

	"minigames/internal/session"
)

func TestPullStrengthBuildsAndCaps(t *testing.T) {
	sess := newFakeSession("alice")
	c := NewPullController(sess, PullOptions{})

	for i := 0; i < 60; i++ {
		c.Frame(true)
	}
	if got := c.Strength(); got != MaxPullStrength {
		t.Fatalf("strength after 60 pull frames = %v, want capped at %v", got, MaxPullStrength)
	}
	if self := sess.selfSnapshot(); !self.IsPulling || self.PullStrength != MaxPullStrength {
		t.Fatalf("presence = %+v", self)
	}
}

func TestPullStrengthDecaysWhenReleased(t *testing.T) {
	sess := newFakeSession("alice")
	c := NewPullController(sess, PullOptions{})

	for i := 0; i < 10; i++ {
		c.Frame(true)
	}
	held := c.Strength()

	c.Frame(false)
	if got := c.Strength(); math.Abs(got-(held-DefaultPullDecay)) > 1e-9 {
		t.Fatalf("strength after one release frame = %v, want %v", got, held-DefaultPullDecay)
	}

	for i := 0; i < 100; i++ {
		c.Frame(false)
	}
	if got := c.Strength(); got != 0 {
		t.Fatalf("strength never decayed to zero, got %v", got)
	}
}

func TestPullBroadcastsIntentsOnTransitions(t *testing.T) {
	sess := newFakeSession("alice")
	c := NewPullController(sess, PullOptions{})

	c.Frame(true)
	c.Frame(true)
	c.Frame(false)
	c.Frame(false)
	c.Frame(true)

	var got []string
	for _, ev := range sess.broadcastEvents() {
		if ev == session.WirePlayerPulling || ev == session.WirePlayerReleased {
			got = append(got, ev)
		}
	}
	want := []string{session.WirePlayerPulling, session.WirePlayerReleased, session.WirePlayerPulling}
	if len(got) != len(want) {
		t.Fatalf("intent broadcasts = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("intent broadcasts = %v, want %v", got, want)
		}
	}

	sess.mu.Lock()
	payload := sess.broadcasts[0].payload.(session.PullPayload)
	sess.mu.Unlock()
	if payload.PlayerID != "alice" || !payload.IsPulling {
		t.Fatalf("pull intent payload = %+v", payload)
	}
}
