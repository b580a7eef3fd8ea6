package host

import (
	"log"
	"sync"
	"time"

	"minigames/internal/domain"
	"minigames/internal/session"
)

// TugOfWarConfig carries the tug-of-war tunables.
type TugOfWarConfig struct {
	Duration      time.Duration
	Countdown     int
	Tick          time.Duration
	RopeThreshold float64
	PitThreshold  float64
}

// DefaultTugOfWarConfig mirrors the shipped round parameters.
func DefaultTugOfWarConfig() TugOfWarConfig {
	return TugOfWarConfig{
		Duration:      30 * time.Second,
		Countdown:     3,
		Tick:          time.Second,
		RopeThreshold: 0.3,
		PitThreshold:  1.0,
	}
}

// TugOfWarLoop drives a tug-of-war round. Unlike the red-light loop the
// timer decrements per host-local tick; every tick is broadcast, so peers
// track the host's count rather than their own clocks.
type TugOfWarLoop struct {
	session Session
	clock   Clock
	logger  *log.Logger
	cfg     TugOfWarConfig

	mu         sync.Mutex
	generation uint64
	running    bool
	countdown  int
	timeLeft   int
	rope       domain.RopePosition
	timers     []Timer
}

// TugOfWarOptions inject collaborators; zero values select defaults.
type TugOfWarOptions struct {
	Clock  Clock
	Logger *log.Logger
	Config TugOfWarConfig
}

// NewTugOfWarLoop builds a stopped loop bound to the session.
func NewTugOfWarLoop(sess Session, opts TugOfWarOptions) *TugOfWarLoop {
	clock := opts.Clock
	if clock == nil {
		clock = RealClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	cfg := opts.Config
	if cfg.Duration == 0 {
		cfg = DefaultTugOfWarConfig()
	}
	return &TugOfWarLoop{
		session: sess,
		clock:   clock,
		logger:  logger,
		cfg:     cfg,
	}
}

// Start resets the round and begins the countdown. Every client is told to
// clear its per-round pull state first, then receives the full starting
// snapshot. Starting a running loop is a no-op.
func (l *TugOfWarLoop) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.generation++
	gen := l.generation
	l.running = true
	l.countdown = l.cfg.Countdown
	l.timeLeft = int(l.cfg.Duration / time.Second)
	l.rope = domain.RopeCenter
	timeLeft := l.timeLeft
	countdown := l.countdown
	l.mu.Unlock()

	l.logger.Printf("host: tug-of-war round starting, duration %s", l.cfg.Duration)
	l.session.Broadcast(session.WireGameReset, session.GameResetPayload{
		GameState:    domain.PhaseWaiting,
		TimeLeft:     timeLeft,
		ResetPlayers: true,
	})
	l.session.Broadcast(session.WireGameStateChanged, session.GameStatePayload{
		GameState:    domain.PhaseCountdown,
		TimeLeft:     session.Int(timeLeft),
		Countdown:    session.Int(countdown),
		RopePosition: domain.RopeCenter,
	})
	l.schedule(gen, l.cfg.Tick, func() { l.countdownTick(gen) })
}

// Stop cancels all timers and invalidates in-flight callbacks.
func (l *TugOfWarLoop) Stop() {
	l.mu.Lock()
	l.generation++
	l.running = false
	l.stopTimersLocked()
	l.mu.Unlock()
}

// Reset stops the loop and returns the room to waiting, asking every client
// to clear its per-round pull state.
func (l *TugOfWarLoop) Reset() {
	l.Stop()
	l.session.Broadcast(session.WireGameReset, session.GameResetPayload{
		GameState:    domain.PhaseWaiting,
		TimeLeft:     int(l.cfg.Duration / time.Second),
		ResetPlayers: true,
	})
}

// Running reports whether a round is in progress.
func (l *TugOfWarLoop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

func (l *TugOfWarLoop) schedule(gen uint64, d time.Duration, fn func()) {
	l.mu.Lock()
	if !l.running || l.generation != gen {
		l.mu.Unlock()
		return
	}
	timer := l.clock.AfterFunc(d, func() {
		l.mu.Lock()
		stale := l.generation != gen || !l.running
		l.mu.Unlock()
		if stale {
			return
		}
		fn()
	})
	l.timers = append(l.timers, timer)
	l.mu.Unlock()
}

func (l *TugOfWarLoop) stopTimersLocked() {
	for _, timer := range l.timers {
		timer.Stop()
	}
	l.timers = nil
}

func (l *TugOfWarLoop) countdownTick(gen uint64) {
	l.mu.Lock()
	if l.generation != gen || !l.running {
		l.mu.Unlock()
		return
	}
	l.countdown--
	countdown := l.countdown
	timeLeft := l.timeLeft
	l.mu.Unlock()

	if countdown > 0 {
		l.session.Broadcast(session.WireTugCountdownUpdate, session.TugCountdownPayload{Countdown: countdown})
		l.schedule(gen, l.cfg.Tick, func() { l.countdownTick(gen) })
		return
	}

	l.session.Broadcast(session.WireTugCountdownUpdate, session.TugCountdownPayload{Countdown: 0})
	l.session.Broadcast(session.WireGameStateChanged, session.GameStatePayload{
		GameState:    domain.PhasePlaying,
		TimeLeft:     session.Int(timeLeft),
		RopePosition: domain.RopeCenter,
	})
	l.schedule(gen, l.cfg.Tick, func() { l.tick(gen) })
}

// tick is the once-per-second aggregation step while playing: recompute the
// rope from everyone's latest lane positions, check the pit win, then count
// the timer down.
func (l *TugOfWarLoop) tick(gen uint64) {
	players := l.session.Players()

	l.mu.Lock()
	if l.generation != gen || !l.running {
		l.mu.Unlock()
		return
	}
	l.timeLeft--
	timeLeft := l.timeLeft
	rope := domain.RopeFromPlayers(players, l.cfg.RopeThreshold)
	ropeChanged := rope != l.rope
	l.rope = rope
	l.mu.Unlock()

	if ropeChanged {
		l.session.Broadcast(session.WireRopeChanged, session.RopePayload{RopePosition: rope})
	}

	if winners := domain.PitWinners(players, l.cfg.PitThreshold); winners != nil {
		l.finish(gen, winners, rope)
		return
	}

	l.session.Broadcast(session.WireTugTimeUpdate, session.TugTimePayload{
		TimeLeft:  timeLeft,
		GameState: domain.PhasePlaying,
	})

	if timeLeft <= 0 {
		l.finish(gen, domain.TimeoutWinners(players, rope), rope)
		return
	}
	l.schedule(gen, l.cfg.Tick, func() { l.tick(gen) })
}

// finish broadcasts the terminal snapshot. A nil winners slice means a true
// tie; the round still ends.
func (l *TugOfWarLoop) finish(gen uint64, winners []string, rope domain.RopePosition) {
	l.mu.Lock()
	if l.generation != gen || !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.generation++
	l.stopTimersLocked()
	l.mu.Unlock()

	l.logger.Printf("host: tug-of-war round over, %d winner(s)", len(winners))
	l.session.Broadcast(session.WireGameStateChanged, session.GameStatePayload{
		GameState:    domain.PhaseWon,
		TimeLeft:     session.Int(0),
		Winners:      winners,
		Ended:        session.Bool(true),
		RopePosition: rope,
	})
}
