package host

import (
	"io"
	"log"
	"math/rand"
	"sync"
	"testing"
	"time"

	"minigames/internal/domain"
	"minigames/internal/session"
)

type broadcastRecord struct {
	event   string
	payload any
}

// recordingSession captures everything a loop broadcasts and serves a fixed
// player list.
type recordingSession struct {
	mu      sync.Mutex
	players []domain.Player
	events  []broadcastRecord
}

func (s *recordingSession) Broadcast(event string, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, broadcastRecord{event: event, payload: payload})
}

func (s *recordingSession) Players() []domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Player(nil), s.players...)
}

func (s *recordingSession) setPlayers(players ...domain.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.players = players
}

func (s *recordingSession) records(event string) []broadcastRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []broadcastRecord
	for _, r := range s.events {
		if r.event == event {
			out = append(out, r)
		}
	}
	return out
}

func (s *recordingSession) states() []session.GameStatePayload {
	var out []session.GameStatePayload
	for _, r := range s.records(session.WireGameStateChanged) {
		out = append(out, r.payload.(session.GameStatePayload))
	}
	return out
}

func (s *recordingSession) lastState(t *testing.T) session.GameStatePayload {
	t.Helper()
	states := s.states()
	if len(states) == 0 {
		t.Fatal("no game_state_changed broadcasts recorded")
	}
	return states[len(states)-1]
}

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newRedLightLoop(sess Session, clock Clock, cfg RedLightConfig) *RedLightLoop {
	return NewRedLightLoop(sess, RedLightOptions{
		Clock:  clock,
		Logger: quietLogger(),
		Rand:   rand.New(rand.NewSource(1)),
		Config: cfg,
	})
}

func TestRedLightStartSequence(t *testing.T) {
	sess := &recordingSession{}
	clock := newFakeClock()
	loop := newRedLightLoop(sess, clock, DefaultRedLightConfig())

	loop.Start()
	states := sess.states()
	if len(states) != 1 || states[0].GameState != domain.PhaseCountdown {
		t.Fatalf("expected a single countdown broadcast, got %+v", states)
	}
	if *states[0].TimeLeft != 60 || *states[0].Countdown != 3 {
		t.Fatalf("countdown snapshot = %+v", states[0])
	}

	clock.Advance(3 * time.Second)
	last := sess.lastState(t)
	if last.GameState != domain.PhasePlaying || *last.TimeLeft != 60 || last.LightState != domain.LightGreen {
		t.Fatalf("playing snapshot = %+v", last)
	}
}

func TestRedLightWallClockRecomputation(t *testing.T) {
	sess := &recordingSession{}
	clock := newFakeClock()
	cfg := DefaultRedLightConfig()
	cfg.Duration = 50 * time.Second
	loop := newRedLightLoop(sess, clock, cfg)

	loop.Start()
	clock.Advance(3 * time.Second)

	// Ten seconds pass with no timer firing, as if the process was
	// suspended. The overdue one-second tick must then report time derived
	// from the wall clock, not one nominal interval.
	clock.Stall(10 * time.Second)
	clock.Advance(0)

	last := sess.lastState(t)
	if last.GameState != domain.PhasePlaying {
		t.Fatalf("phase after stall = %v", last.GameState)
	}
	if *last.TimeLeft != 40 {
		t.Fatalf("timeLeft after 10s stall = %d, want 40", *last.TimeLeft)
	}
}

func TestRedLightEndToEnd(t *testing.T) {
	sess := &recordingSession{}
	sess.setPlayers(
		domain.Player{ID: "finisher", Z: 30},
		domain.Player{ID: "straggler", Z: 5},
		domain.Player{ID: "cheater", Z: 40, IsEliminated: true},
	)
	clock := newFakeClock()
	cfg := DefaultRedLightConfig()
	cfg.Duration = 50 * time.Second
	loop := newRedLightLoop(sess, clock, cfg)

	loop.Start()
	clock.Advance(3 * time.Second)
	clock.Advance(50 * time.Second)

	last := sess.lastState(t)
	if last.GameState != domain.PhaseEnded {
		t.Fatalf("terminal phase = %v, want ended", last.GameState)
	}
	if *last.TimeLeft != 0 || last.Ended == nil || !*last.Ended {
		t.Fatalf("terminal snapshot = %+v", last)
	}
	if len(last.Winners) != 1 || last.Winners[0] != "finisher" {
		t.Fatalf("winners = %v, want [finisher]", last.Winners)
	}
	if loop.Running() {
		t.Fatal("loop still running after expiry")
	}

	// Nothing further may fire once the round is over.
	n := len(sess.states())
	clock.Advance(30 * time.Second)
	if len(sess.states()) != n {
		t.Fatal("broadcasts emitted after the round ended")
	}
}

func TestRedLightLightFlipsDuringPlay(t *testing.T) {
	sess := &recordingSession{}
	clock := newFakeClock()
	loop := newRedLightLoop(sess, clock, DefaultRedLightConfig())

	loop.Start()
	clock.Advance(3 * time.Second)
	clock.Advance(20 * time.Second)

	sawRed := false
	sawGreenAfterRed := false
	for _, state := range sess.states() {
		if state.GameState != domain.PhasePlaying {
			continue
		}
		if state.LightState == domain.LightRed {
			sawRed = true
		} else if sawRed && state.LightState == domain.LightGreen {
			sawGreenAfterRed = true
		}
	}
	if !sawRed || !sawGreenAfterRed {
		t.Fatalf("light never cycled red and back, sawRed=%v sawGreenAfterRed=%v", sawRed, sawGreenAfterRed)
	}
}

func TestRedLightResetInvalidatesInFlightCallbacks(t *testing.T) {
	sess := &recordingSession{}
	clock := newFakeClock()
	loop := newRedLightLoop(sess, clock, DefaultRedLightConfig())

	loop.Start()
	clock.Advance(3 * time.Second)
	loop.Reset()

	resets := sess.records(session.WireGameReset)
	if len(resets) != 1 {
		t.Fatalf("game_reset broadcasts = %d, want 1", len(resets))
	}
	payload := resets[0].payload.(session.GameResetPayload)
	if payload.GameState != domain.PhaseWaiting || !payload.ResetPlayers {
		t.Fatalf("reset payload = %+v", payload)
	}

	n := len(sess.states())
	clock.Advance(120 * time.Second)
	if len(sess.states()) != n {
		t.Fatal("stale loop callbacks broadcast after reset")
	}
}

func TestRedLightStartWhileRunningIsNoop(t *testing.T) {
	sess := &recordingSession{}
	clock := newFakeClock()
	loop := newRedLightLoop(sess, clock, DefaultRedLightConfig())

	loop.Start()
	n := len(sess.states())
	loop.Start()
	if len(sess.states()) != n {
		t.Fatal("second Start broadcast a new countdown")
	}
}
