// Package app wires one player's participation in one room: session
// membership, the local avatar components, and the host loops that engage
// when this client holds authority.
package app

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"minigames/internal/client"
	"minigames/internal/config"
	"minigames/internal/domain"
	"minigames/internal/host"
	"minigames/internal/realtime"
	"minigames/internal/session"
)

var (
	ErrNotHost   = errors.New("client is not the room host")
	ErrNotJoined = errors.New("no room joined")
)

// Service is the top-level facade used by cmd/minigame and the bot runner.
type Service struct {
	cfg    *config.Config
	logger *log.Logger
	rng    *rand.Rand

	sess     *session.Manager
	reporter *client.Reporter
	pull     *client.PullController
	redLight *host.RedLightLoop
	tug      *host.TugOfWarLoop

	game   domain.GameType
	joined bool
}

// NewService builds the full client stack over the given channel factory.
func NewService(factory realtime.Factory, cfg *config.Config, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	sess := session.NewManager(factory, session.Options{
		SettleDelay: cfg.SettleDelay,
		Logger:      logger,
	})
	s := &Service{
		cfg:    cfg,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		sess:   sess,
		game:   domain.GameRedLightGreenLight,
	}
	s.reporter = client.NewReporter(sess, client.ReporterOptions{
		Interval:    cfg.PositionInterval,
		MoveEpsilon: cfg.MoveEpsilon,
		Grace:       cfg.RedGrace,
		Sustain:     cfg.RedSustain,
	})
	s.pull = client.NewPullController(sess, client.PullOptions{
		Increase: cfg.PullIncrease,
		Decay:    cfg.PullDecay,
	})
	s.redLight = host.NewRedLightLoop(sess, host.RedLightOptions{
		Logger: logger,
		Config: host.RedLightConfig{
			Duration:   cfg.RedLightDuration,
			Countdown:  cfg.CountdownSeconds,
			StartDelay: cfg.StartDelay,
			DwellMin:   cfg.LightDwellMin,
			DwellMax:   cfg.LightDwellMax,
			Tick:       time.Second,
			FinishZ:    cfg.FinishZ,
		},
	})
	s.tug = host.NewTugOfWarLoop(sess, host.TugOfWarOptions{
		Logger: logger,
		Config: host.TugOfWarConfig{
			Duration:      cfg.TugDuration,
			Countdown:     cfg.CountdownSeconds,
			Tick:          cfg.TugTick,
			RopeThreshold: cfg.RopeThreshold,
			PitThreshold:  cfg.CenterPitThreshold,
		},
	})
	return s
}

// Join enters the room under a fresh player identity. For tug-of-war the
// player is dealt onto the emptier rope side.
func (s *Service) Join(ctx context.Context, code, name string, game domain.GameType, isCreator bool) error {
	if game == "" {
		game = domain.GameRedLightGreenLight
	}
	self := domain.Player{
		ID:   uuid.NewString(),
		Name: name,
	}
	if game == domain.GameTugOfWar {
		self.Lane = s.dealLane()
	}
	if err := s.sess.Join(ctx, code, self, isCreator); err != nil {
		return err
	}
	s.game = game
	s.joined = true
	s.sess.BootstrapHost()
	return nil
}

// dealLane places a new tug player mid-lane on the side with fewer players.
func (s *Service) dealLane() float64 {
	left, right := domain.SplitSides(s.sess.Players())
	lane := s.cfg.LaneBoundary / 2
	if len(left) < len(right) {
		return -lane
	}
	if len(right) < len(left) {
		return lane
	}
	if s.rng.Intn(2) == 0 {
		return -lane
	}
	return lane
}

// Leave releases this caller's reference on the room.
func (s *Service) Leave() {
	if !s.joined {
		return
	}
	s.redLight.Stop()
	s.tug.Stop()
	s.sess.Leave()
	s.joined = false
}

// Close tears down everything, including event subscriptions.
func (s *Service) Close() {
	s.Leave()
	s.reporter.Close()
}

// StartGame begins a round of the joined game. Only the host may start.
func (s *Service) StartGame() error {
	if !s.joined {
		return ErrNotJoined
	}
	if !s.sess.IsHost() {
		return ErrNotHost
	}
	switch s.game {
	case domain.GameTugOfWar:
		s.tug.Start()
	default:
		s.redLight.Start()
	}
	return nil
}

// ResetGame returns the room to waiting. Only the host may reset.
func (s *Service) ResetGame() error {
	if !s.joined {
		return ErrNotJoined
	}
	if !s.sess.IsHost() {
		return ErrNotHost
	}
	switch s.game {
	case domain.GameTugOfWar:
		s.tug.Reset()
	default:
		s.redLight.Reset()
	}
	return nil
}

// ObserveFrame feeds one rendered frame of the local avatar.
func (s *Service) ObserveFrame(x, z float64) bool {
	return s.reporter.Observe(x, z, time.Now())
}

// PullFrame feeds one frame of tug input.
func (s *Service) PullFrame(pulling bool) {
	s.pull.Frame(pulling)
}

// Session exposes the underlying room session.
func (s *Service) Session() *session.Manager { return s.sess }

// Game returns the joined game type.
func (s *Service) Game() domain.GameType { return s.game }

// Eliminated reports whether the local avatar is out this round.
func (s *Service) Eliminated() bool { return s.reporter.Eliminated() }
