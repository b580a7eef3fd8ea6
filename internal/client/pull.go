package client

import (
	"sync"

	"minigames/internal/domain"
	"minigames/internal/session"
)

// Pull strength tunables.
const (
	DefaultPullIncrease = 0.02
	DefaultPullDecay    = 0.01
	MaxPullStrength     = 1.0
)

// PullController owns the local avatar's tug-of-war input. Strength builds
// while the rope is held and decays when released; grab and release are
// broadcast as intents and the current strength is mirrored into presence
// so the host's aggregation always sees the latest value.
type PullController struct {
	sess     Session
	increase float64
	decay    float64

	mu       sync.Mutex
	pulling  bool
	strength float64
}

// PullOptions tune a PullController. Zero values select defaults.
type PullOptions struct {
	Increase float64
	Decay    float64
}

// NewPullController builds a controller bound to the session.
func NewPullController(sess Session, opts PullOptions) *PullController {
	increase := opts.Increase
	if increase == 0 {
		increase = DefaultPullIncrease
	}
	decay := opts.Decay
	if decay == 0 {
		decay = DefaultPullDecay
	}
	return &PullController{sess: sess, increase: increase, decay: decay}
}

// Frame advances one rendered frame with the current input state: strength
// climbs while held and decays while released, and hold/release transitions
// are broadcast as intents.
func (c *PullController) Frame(pulling bool) {
	c.mu.Lock()
	wasPulling := c.pulling
	c.pulling = pulling

	before := c.strength
	if pulling {
		c.strength += c.increase
		if c.strength > MaxPullStrength {
			c.strength = MaxPullStrength
		}
	} else if c.strength > 0 {
		c.strength -= c.decay
		if c.strength < 0 {
			c.strength = 0
		}
	}
	strength := c.strength
	changed := strength != before
	c.mu.Unlock()

	if pulling != wasPulling {
		event := session.WirePlayerReleased
		if pulling {
			event = session.WirePlayerPulling
		}
		c.sess.Broadcast(event, session.PullPayload{
			PlayerID:     c.sess.SelfID(),
			IsPulling:    pulling,
			PullStrength: strength,
		})
	}
	if changed || pulling != wasPulling {
		c.sess.UpdatePresence(func(p *domain.Player) {
			p.IsPulling = pulling
			p.PullStrength = strength
		})
	}
}

// Strength returns the current pull strength in [0, 1].
func (c *PullController) Strength() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strength
}

// Pulling reports whether the rope is currently held.
func (c *PullController) Pulling() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pulling
}

// ResetRound drops all pull state for a fresh round.
func (c *PullController) ResetRound() {
	c.mu.Lock()
	c.pulling = false
	c.strength = 0
	c.mu.Unlock()
}
