// Package client holds the per-avatar logic every participant runs locally:
// throttled position reporting, the self-enforced red-light elimination
// rule, and tug-of-war pull input.
package client

import (
	"sync"
	"time"

	"minigames/internal/domain"
	"minigames/internal/session"
)

// Session is the slice of the room session the client components need.
type Session interface {
	SelfID() string
	UpdatePresence(mutate func(*domain.Player))
	Broadcast(event string, payload any)
	On(t session.EventType, fn func(session.Event)) func()
}

// DefaultPositionInterval is the steady-state presence emission cadence.
const DefaultPositionInterval = 100 * time.Millisecond

// Reporter turns raw per-frame positions into presence updates. Transitions
// of the movement flag are emitted immediately so elimination detection is
// never delayed by the throttle; steady movement is emitted at most once
// per interval. The reporter also runs the local red-light rule and
// self-eliminates when it fires.
type Reporter struct {
	sess     Session
	interval time.Duration
	now      func() time.Time

	mu         sync.Mutex
	detector   *domain.MovementDetector
	rule       *domain.RedLightRule
	light      domain.LightState
	phase      domain.Phase
	lastSent   time.Time
	lastMoving bool
	eliminated bool
	off        []func()
}

// ReporterOptions tune a Reporter. Zero values select defaults.
type ReporterOptions struct {
	Interval    time.Duration
	MoveEpsilon float64
	Grace       time.Duration
	Sustain     time.Duration
	// Now supplies timestamps for light transitions observed off broadcast
	// receipt; frame timestamps come from the Observe caller.
	Now func() time.Time
}

// NewReporter builds a Reporter and subscribes it to game-state broadcasts
// so it can track the light. Close releases the subscriptions.
func NewReporter(sess Session, opts ReporterOptions) *Reporter {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultPositionInterval
	}
	epsilon := opts.MoveEpsilon
	if epsilon == 0 {
		epsilon = domain.DefaultMoveEpsilon
	}
	grace := opts.Grace
	if grace == 0 {
		grace = domain.DefaultRedGrace
	}
	sustain := opts.Sustain
	if sustain == 0 {
		sustain = domain.DefaultRedSustain
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	r := &Reporter{
		sess:     sess,
		interval: interval,
		now:      now,
		detector: domain.NewMovementDetector(epsilon),
		rule:     &domain.RedLightRule{Grace: grace, Sustain: sustain},
		light:    domain.LightGreen,
		phase:    domain.PhaseWaiting,
	}
	r.off = append(r.off, sess.On(session.EventGameStateChanged, r.onGameState))
	r.off = append(r.off, sess.On(session.EventGameReset, func(session.Event) { r.ResetRound() }))
	return r
}

// Close removes the reporter's session subscriptions.
func (r *Reporter) Close() {
	for _, off := range r.off {
		off()
	}
	r.off = nil
}

func (r *Reporter) onGameState(ev session.Event) {
	payload, ok := ev.Payload.(session.GameStatePayload)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if payload.GameState != "" {
		r.phase = payload.GameState
	}
	if payload.LightState != "" && payload.LightState != r.light {
		r.light = payload.LightState
		r.rule.LightChanged(r.light, r.now())
	}
}

// Observe processes one rendered frame of the local avatar. It returns
// whether the frame counted as movement.
func (r *Reporter) Observe(x, z float64, now time.Time) bool {
	r.mu.Lock()
	moving := r.detector.Observe(x, z)
	if r.eliminated {
		moving = false
	}

	fireElimination := false
	if r.phase == domain.PhasePlaying && !r.eliminated {
		if r.rule.Observe(r.light, moving, now) {
			r.eliminated = true
			fireElimination = true
			moving = false
		}
	}

	transition := moving != r.lastMoving
	due := r.lastSent.IsZero() || now.Sub(r.lastSent) >= r.interval
	emit := transition || due
	if emit {
		r.lastSent = now
	}
	r.lastMoving = moving
	r.mu.Unlock()

	if fireElimination {
		r.selfEliminate()
	}
	if emit {
		r.sess.UpdatePresence(func(p *domain.Player) {
			p.X = x
			p.Z = z
			p.IsMoving = moving
		})
	}
	return moving
}

// Eliminated reports whether the local avatar has been knocked out this
// round.
func (r *Reporter) Eliminated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.eliminated
}

// ResetRound clears per-round state so the avatar can play again.
func (r *Reporter) ResetRound() {
	r.mu.Lock()
	r.detector.Reset()
	r.rule.Reset()
	r.eliminated = false
	r.lastMoving = false
	r.lastSent = time.Time{}
	r.mu.Unlock()
}

func (r *Reporter) selfEliminate() {
	r.sess.UpdatePresence(func(p *domain.Player) {
		p.IsEliminated = true
		p.IsMoving = false
	})
	r.sess.Broadcast(session.WirePlayerEliminated, session.EliminatedPayload{
		PlayerID: r.sess.SelfID(),
	})
}
