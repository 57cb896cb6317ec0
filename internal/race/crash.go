package race

import "slipstream/internal/shared/types"

// Phase enumerates the crash recovery cycle.
type Phase int

const (
	PhaseNormal Phase = iota
	PhaseCrashed
	PhaseRecovering
)

func (p Phase) String() string {
	switch p {
	case PhaseCrashed:
		return "crashed"
	case PhaseRecovering:
		return "recovering"
	default:
		return "normal"
	}
}

// DefaultRecoveryDuration is the respawn delay after a hard impact, seconds.
const DefaultRecoveryDuration = 2.0

// CrashState gates control input while a car recovers from a hard impact.
// Owned by the car entity; transitions only happen here.
type CrashState struct {
	Phase     Phase
	Timer     float64 // seconds remaining in Crashed
	SafePos   types.Vec2
	SafeAngle float64

	recovery float64
}

// NewCrashState starts in Normal with the spawn pose as the safe pose.
func NewCrashState(pos types.Vec2, angle float64) CrashState {
	return CrashState{
		SafePos:   pos,
		SafeAngle: angle,
		recovery:  DefaultRecoveryDuration,
	}
}

// Crash enters Crashed and restarts the full recovery timer, regardless of
// any prior recovery progress.
func (c *CrashState) Crash() {
	c.Phase = PhaseCrashed
	c.Timer = c.recovery
}

// RecordSafePose stores the latest pre-impact pose used for respawns. Poses
// seen while crashed or recovering are not safe and are ignored.
func (c *CrashState) RecordSafePose(pos types.Vec2, angle float64) {
	if c.Phase == PhaseNormal {
		c.SafePos = pos
		c.SafeAngle = angle
	}
}

// Tick advances the state machine. Crashed counts the timer down; Recovering
// lasts exactly one tick, a grace period so residual contact cannot
// immediately re-trigger a crash before control returns.
func (c *CrashState) Tick(dt float64) {
	switch c.Phase {
	case PhaseCrashed:
		c.Timer -= dt
		if c.Timer <= 0 {
			c.Timer = 0
			c.Phase = PhaseRecovering
		}
	case PhaseRecovering:
		c.Phase = PhaseNormal
	}
}

// ControlsLocked reports whether driver input must be treated as zero.
func (c *CrashState) ControlsLocked() bool {
	return c.Phase != PhaseNormal
}
