// Package host runs the game loops that only the authoritative room host
// executes. Every broadcast a loop emits is a full snapshot of the fields
// the host owns, so a peer that drops one message resynchronizes on the
// next.
package host

import (
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"minigames/internal/domain"
	"minigames/internal/session"
)

// Session is the slice of the room session the loops need.
type Session interface {
	Broadcast(event string, payload any)
	Players() []domain.Player
}

// RedLightConfig carries the red-light/green-light tunables.
type RedLightConfig struct {
	Duration   time.Duration
	Countdown  int
	StartDelay time.Duration
	DwellMin   time.Duration
	DwellMax   time.Duration
	Tick       time.Duration
	FinishZ    float64
}

// DefaultRedLightConfig mirrors the shipped round parameters.
func DefaultRedLightConfig() RedLightConfig {
	return RedLightConfig{
		Duration:   60 * time.Second,
		Countdown:  3,
		StartDelay: 3 * time.Second,
		DwellMin:   3 * time.Second,
		DwellMax:   5 * time.Second,
		Tick:       time.Second,
		FinishZ:    25,
	}
}

// RedLightLoop drives a red-light/green-light round. Remaining time is
// always recomputed from the wall clock against the recorded round start,
// never accumulated tick by tick, so a stalled process self-corrects on its
// next firing.
type RedLightLoop struct {
	session Session
	clock   Clock
	logger  *log.Logger
	rng     *rand.Rand
	cfg     RedLightConfig

	mu         sync.Mutex
	generation uint64
	running    bool
	light      domain.LightState
	startedAt  time.Time
	timers     []Timer
}

// RedLightOptions inject collaborators; zero values select defaults.
type RedLightOptions struct {
	Clock  Clock
	Logger *log.Logger
	Rand   *rand.Rand
	Config RedLightConfig
}

// NewRedLightLoop builds a stopped loop bound to the session.
func NewRedLightLoop(sess Session, opts RedLightOptions) *RedLightLoop {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	cfg := opts.Config
	if cfg.Duration == 0 {
		cfg = DefaultRedLightConfig()
	}
	return &RedLightLoop{
		session: sess,
		clock:   clock,
		logger:  logger,
		rng:     rng,
		cfg:     cfg,
	}
}

// Start begins a round: countdown broadcast, fixed start delay, then the
// playing phase with its light-cycle and timer sub-loops. Starting a running
// loop is a no-op.
func (l *RedLightLoop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.generation++
	gen := l.generation
	l.running = true
	l.light = domain.LightGreen
	l.mu.Unlock()

	l.logger.Printf("host: red-light round starting, duration %s", l.cfg.Duration)
	l.session.Broadcast(session.WireGameStateChanged, session.GameStatePayload{
		GameState:  domain.PhaseCountdown,
		LightState: domain.LightGreen,
		TimeLeft:   session.Int(l.durationSeconds()),
		Countdown:  session.Int(l.cfg.Countdown),
	})
	l.schedule(gen, l.cfg.StartDelay, func() { l.beginPlaying(gen) })
}

// Stop cancels all timers and invalidates in-flight callbacks without
// broadcasting anything.
func (l *RedLightLoop) Stop() {
	l.mu.Lock()
	l.generation++
	l.running = false
	l.stopTimersLocked()
	l.mu.Unlock()
}

// Reset stops the loop and returns the room to waiting, asking every client
// to clear its per-round player state.
func (l *RedLightLoop) Reset() {
	l.Stop()
	l.session.Broadcast(session.WireGameReset, session.GameResetPayload{
		GameState:    domain.PhaseWaiting,
		TimeLeft:     l.durationSeconds(),
		ResetPlayers: true,
	})
}

// Running reports whether a round is in progress.
func (l *RedLightLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *RedLightLoop) durationSeconds() int {
	return int(l.cfg.Duration / time.Second)
}

// schedule arms a timer whose callback no-ops once the generation moves on.
func (l *RedLightLoop) schedule(gen uint64, d time.Duration, fn func()) {
	l.mu.Lock()
	if !l.running || l.generation != gen {
		l.mu.Unlock()
		return
	}
	timer := l.clock.AfterFunc(d, func() {
		if l.stale(gen) {
			return
		}
		fn()
	})
	l.timers = append(l.timers, timer)
	l.mu.Unlock()
}

func (l *RedLightLoop) stale(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generation != gen || !l.running
}

func (l *RedLightLoop) stopTimersLocked() {
	for _, timer := range l.timers {
		timer.Stop()
	}
	l.timers = nil
}

func (l *RedLightLoop) beginPlaying(gen uint64) {
	l.mu.Lock()
	if l.generation != gen || !l.running {
		l.mu.Unlock()
		return
	}
	l.startedAt = l.clock.Now()
	l.light = domain.LightGreen
	l.mu.Unlock()

	l.session.Broadcast(session.WireGameStateChanged, session.GameStatePayload{
		GameState:  domain.PhasePlaying,
		LightState: domain.LightGreen,
		TimeLeft:   session.Int(l.durationSeconds()),
	})
	l.scheduleFlip(gen)
	l.schedule(gen, l.cfg.Tick, func() { l.tick(gen) })
}

func (l *RedLightLoop) scheduleFlip(gen uint64) {
	l.mu.Lock()
	span := l.cfg.DwellMax - l.cfg.DwellMin
	dwell := l.cfg.DwellMin
	if span > 0 {
		dwell += time.Duration(l.rng.Int63n(int64(span)))
	}
	l.mu.Unlock()
	l.schedule(gen, dwell, func() { l.flip(gen) })
}

func (l *RedLightLoop) flip(gen uint64) {
	l.mu.Lock()
	if l.generation != gen || !l.running {
		l.mu.Unlock()
		return
	}
	l.light = l.light.Toggle()
	light := l.light
	remaining := l.remainingLocked()
	l.mu.Unlock()

	if remaining <= 0 {
		l.finish(gen)
		return
	}
	l.session.Broadcast(session.WireGameStateChanged, session.GameStatePayload{
		GameState:  domain.PhasePlaying,
		LightState: light,
		TimeLeft:   session.Int(ceilSeconds(remaining)),
	})
	l.scheduleFlip(gen)
}

func (l *RedLightLoop) tick(gen uint64) {
	l.mu.Lock()
	if l.generation != gen || !l.running {
		l.mu.Unlock()
		return
	}
	light := l.light
	remaining := l.remainingLocked()
	l.mu.Unlock()

	if remaining <= 0 {
		l.finish(gen)
		return
	}
	l.session.Broadcast(session.WireGameStateChanged, session.GameStatePayload{
		GameState:  domain.PhasePlaying,
		LightState: light,
		TimeLeft:   session.Int(ceilSeconds(remaining)),
	})
	l.schedule(gen, l.cfg.Tick, func() { l.tick(gen) })
}

func (l *RedLightLoop) finish(gen uint64) {
	l.mu.Lock()
	if l.generation != gen || !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.generation++
	l.stopTimersLocked()
	light := l.light
	l.mu.Unlock()

	winners := domain.FinishWinners(l.session.Players(), l.cfg.FinishZ)
	l.logger.Printf("host: red-light round over, %d winner(s)", len(winners))
	l.session.Broadcast(session.WireGameStateChanged, session.GameStatePayload{
		GameState:  domain.PhaseEnded,
		LightState: light,
		TimeLeft:   session.Int(0),
		Winners:    winners,
		Ended:      session.Bool(true),
	})
}

// remainingLocked derives time left from the wall clock. Callers hold l.mu.
func (l *RedLightLoop) remainingLocked() time.Duration {
	return l.cfg.Duration - l.clock.Now().Sub(l.startedAt)
}

func ceilSeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
