package domain

import "time"

// Default movement and elimination tunables.
const (
	// DefaultMoveEpsilon is the squared per-frame displacement above which
	// a frame counts as movement.
	DefaultMoveEpsilon = 1e-4
	// DefaultRedGrace is the stop-moving allowance after a red flip.
	DefaultRedGrace = 300 * time.Millisecond
	// DefaultRedSustain is how long continuous movement past the grace
	// window is tolerated before elimination.
	DefaultRedSustain = 100 * time.Millisecond
)

// MovementDetector classifies per-frame movement from planar displacement.
// The squared-distance comparison avoids false positives from floating
// point jitter while the avatar is idle.
type MovementDetector struct {
	epsilonSq float64
	hasPrev   bool
	prevX     float64
	prevZ     float64
}

// NewMovementDetector builds a detector with the given squared displacement
// threshold per frame.
func NewMovementDetector(epsilonSq float64) *MovementDetector {
	return &MovementDetector{epsilonSq: epsilonSq}
}

// Observe records a frame's position and reports whether the avatar moved
// since the previous frame. The first frame never counts as movement.
func (d *MovementDetector) Observe(x, z float64) bool {
	if !d.hasPrev {
		d.hasPrev = true
		d.prevX, d.prevZ = x, z
		return false
	}
	dx := x - d.prevX
	dz := z - d.prevZ
	d.prevX, d.prevZ = x, z
	return dx*dx+dz*dz > d.epsilonSq
}

// Reset forgets the previous frame, so the next observation is a baseline.
func (d *MovementDetector) Reset() {
	d.hasPrev = false
}

// RedLightRule accumulates movement during red light and decides local
// elimination. After the light turns red the player has a grace window to
// stop; past it, movement sustained for longer than the sustain threshold
// eliminates. The accumulator drops to zero the moment the light turns
// green or the player stops moving.
type RedLightRule struct {
	Grace   time.Duration
	Sustain time.Duration

	redSince   time.Time
	movingFor  time.Duration
	lastFrame  time.Time
	wasMoving  bool
	eliminated bool
}

// LightChanged must be called on every light transition.
func (r *RedLightRule) LightChanged(light LightState, now time.Time) {
	if light == LightRed {
		r.redSince = now
	} else {
		r.redSince = time.Time{}
	}
	r.movingFor = 0
	r.wasMoving = false
	r.lastFrame = now
}

// Observe feeds one frame's movement flag and reports whether elimination
// fires on this frame. Once fired it stays latched until Reset. Sustain
// only counts movement that is continuous across frames, so an isolated
// moving frame can never eliminate on its own.
func (r *RedLightRule) Observe(light LightState, moving bool, now time.Time) bool {
	prevFrame := r.lastFrame
	prevMoving := r.wasMoving
	r.lastFrame = now
	r.wasMoving = moving

	if r.eliminated {
		return false
	}
	if light != LightRed || r.redSince.IsZero() || !moving {
		r.movingFor = 0
		return false
	}
	if now.Sub(r.redSince) < r.Grace {
		// Inside the grace window movement is forgiven; the sustain
		// accumulator starts only once the window has elapsed.
		r.movingFor = 0
		return false
	}
	if !prevMoving || prevFrame.IsZero() {
		return false
	}

	r.movingFor += now.Sub(prevFrame)
	if r.movingFor > r.Sustain {
		r.eliminated = true
		return true
	}
	return false
}

// Eliminated reports whether the rule has latched an elimination.
func (r *RedLightRule) Eliminated() bool {
	return r.eliminated
}

// Reset clears the latch and the accumulator for a new round.
func (r *RedLightRule) Reset() {
	r.redSince = time.Time{}
	r.movingFor = 0
	r.lastFrame = time.Time{}
	r.eliminated = false
}
