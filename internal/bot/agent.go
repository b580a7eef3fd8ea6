// Package bot fills rooms with computer-driven players. An Agent attaches
// to a session exactly like a human client: it reports positions through
// the same Reporter, obeys the same elimination rule, and pulls the rope
// through the same controller.
package bot

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"minigames/internal/client"
	"minigames/internal/domain"
	"minigames/internal/session"
)

// Config tunes an Agent. Zero values select defaults.
type Config struct {
	Game domain.GameType
	// Reaction is how long the agent keeps obeying the previous light
	// after a flip. Slow agents get eliminated by their own reporter.
	Reaction time.Duration
	// Speed is forward progress in units per second during green light.
	Speed         float64
	FrameInterval time.Duration
	// PullBurst and PullRest bound the tug-of-war pull/rest cycle.
	PullBurst time.Duration
	PullRest  time.Duration
	Rand      *rand.Rand
	// Now supplies timestamps for events observed off broadcast receipt.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.Game == "" {
		c.Game = domain.GameRedLightGreenLight
	}
	if c.Reaction == 0 {
		c.Reaction = 250 * time.Millisecond
	}
	if c.Speed == 0 {
		c.Speed = 3
	}
	if c.FrameInterval == 0 {
		c.FrameInterval = 50 * time.Millisecond
	}
	if c.PullBurst == 0 {
		c.PullBurst = 2 * time.Second
	}
	if c.PullRest == 0 {
		c.PullRest = time.Second
	}
	if c.Rand == nil {
		c.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Agent plays one avatar.
type Agent struct {
	sess     client.Session
	reporter *client.Reporter
	pull     *client.PullController
	cfg      Config

	mu             sync.Mutex
	phase          domain.Phase
	light          domain.LightState
	prevLight      domain.LightState
	lightChangedAt time.Time
	x              float64
	z              float64
	lastFrame      time.Time
	pulling        bool
	phaseUntil     time.Time
	off            []func()
}

// New builds an agent bound to the session.
func New(sess client.Session, cfg Config) *Agent {
	cfg = cfg.withDefaults()
	a := &Agent{
		sess:      sess,
		reporter:  client.NewReporter(sess, client.ReporterOptions{Now: cfg.Now}),
		pull:      client.NewPullController(sess, client.PullOptions{}),
		cfg:       cfg,
		phase:     domain.PhaseWaiting,
		light:     domain.LightGreen,
		prevLight: domain.LightGreen,
	}
	a.off = append(a.off, sess.On(session.EventGameStateChanged, a.onGameState))
	a.off = append(a.off, sess.On(session.EventGameReset, func(session.Event) { a.reset() }))
	return a
}

// Close detaches the agent from the session.
func (a *Agent) Close() {
	for _, off := range a.off {
		off()
	}
	a.off = nil
	a.reporter.Close()
}

// Run drives frames until the context ends.
func (a *Agent) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.FrameInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.frame(now)
		}
	}
}

func (a *Agent) onGameState(ev session.Event) {
	payload, ok := ev.Payload.(session.GameStatePayload)
	if !ok {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if payload.GameState != "" {
		a.phase = payload.GameState
	}
	if payload.LightState != "" && payload.LightState != a.light {
		a.prevLight = a.light
		a.light = payload.LightState
		a.lightChangedAt = a.cfg.Now()
	}
}

func (a *Agent) reset() {
	a.mu.Lock()
	a.phase = domain.PhaseWaiting
	a.light = domain.LightGreen
	a.prevLight = domain.LightGreen
	a.z = 0
	a.pulling = false
	a.phaseUntil = time.Time{}
	a.mu.Unlock()
	a.reporter.ResetRound()
	a.pull.ResetRound()
}

// frame advances one simulated frame at now.
func (a *Agent) frame(now time.Time) {
	if a.cfg.Game == domain.GameTugOfWar {
		a.tugFrame(now)
		return
	}
	a.redLightFrame(now)
}

// effectiveLightLocked is the light the agent believes in: for Reaction
// after a flip it still acts on the previous value.
func (a *Agent) effectiveLightLocked(now time.Time) domain.LightState {
	if !a.lightChangedAt.IsZero() && now.Sub(a.lightChangedAt) < a.cfg.Reaction {
		return a.prevLight
	}
	return a.light
}

func (a *Agent) redLightFrame(now time.Time) {
	a.mu.Lock()
	dt := a.cfg.FrameInterval
	if !a.lastFrame.IsZero() {
		dt = now.Sub(a.lastFrame)
	}
	a.lastFrame = now

	run := a.phase == domain.PhasePlaying &&
		a.effectiveLightLocked(now) == domain.LightGreen &&
		!a.reporter.Eliminated()
	if run {
		a.z += a.cfg.Speed * dt.Seconds()
	}
	x, z := a.x, a.z
	a.mu.Unlock()

	a.reporter.Observe(x, z, now)
}

func (a *Agent) tugFrame(now time.Time) {
	a.mu.Lock()
	if a.phase != domain.PhasePlaying {
		a.pulling = false
		a.phaseUntil = time.Time{}
	} else if a.phaseUntil.IsZero() || now.After(a.phaseUntil) {
		// Alternate pull bursts and rests, each jittered up to its
		// configured bound.
		a.pulling = !a.pulling
		span := a.cfg.PullRest
		if a.pulling {
			span = a.cfg.PullBurst
		}
		jitter := time.Duration(a.cfg.Rand.Int63n(int64(span)/2 + 1))
		a.phaseUntil = now.Add(span/2 + jitter)
	}
	pulling := a.pulling && a.phase == domain.PhasePlaying
	a.mu.Unlock()

	a.pull.Frame(pulling)
}
