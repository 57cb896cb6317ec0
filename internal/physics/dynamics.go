package physics

import (
	"math"

	"slipstream/internal/shared/types"
)

const (
	inputDeadzone = 0.01
	minMoveSpeed  = 0.1

	// Braking is stronger than driving, matching real pedal feel.
	brakeBoost = 1.5
)

// Controls are the normalized pedal/wheel values for one car for one tick.
type Controls struct {
	Throttle float64 // -1..1, reverse to forward
	Steering float64 // -1..1, left to right
	Brake    float64 // 0..1
}

// Clamp forces all control values into their valid ranges.
func (c Controls) Clamp() Controls {
	return Controls{
		Throttle: clamp(c.Throttle, -1, 1),
		Steering: clamp(c.Steering, -1, 1),
		Brake:    clamp(c.Brake, 0, 1),
	}
}

// ApplyControls computes the tick's drive, steering, braking and drag
// contributions and hands them to the body as a single force/torque
// application. Deterministic: identical state and inputs always produce the
// identical application.
func ApplyControls(body Body, p Profile, c Controls, dt float64) {
	c = c.Clamp()

	vel := body.Velocity()
	speed := math.Hypot(vel.X, vel.Y)
	heading := body.Angle()
	fwdX, fwdY := math.Cos(heading), math.Sin(heading)

	var force types.Vec2
	var torque float64

	if math.Abs(c.Throttle) > inputDeadzone {
		drive := c.Throttle * p.MaxDriveForce
		force.X += fwdX * drive
		force.Y += fwdY * drive
	}

	// Torque applies even at standstill so a car can pivot in place.
	if math.Abs(c.Steering) > inputDeadzone {
		torque += c.Steering * p.MaxSteerTorque * p.SteerEffectiveness(speed)
	}

	// Brake opposes current velocity. It sums with throttle rather than
	// overriding it, so pedal overlap behaves like real pedals.
	if c.Brake > inputDeadzone && speed > minMoveSpeed {
		mag := c.Brake * p.MaxDriveForce * brakeBoost
		force.X -= vel.X / speed * mag
		force.Y -= vel.Y / speed * mag
	}

	// Air and rolling resistance, scaled with speed.
	if speed > minMoveSpeed {
		force.X -= vel.X * p.LinearDamping * speed
		force.Y -= vel.Y * p.LinearDamping * speed
	}

	if w := body.AngularVelocity(); math.Abs(w) > inputDeadzone {
		torque -= w * p.AngularDamping
	}

	_ = dt // forces are integrated by the solver step
	body.ApplyForce(force, torque)
}

// ForwardSpeed is the velocity component along the body's heading.
// Negative values mean the car is reversing.
func ForwardSpeed(body Body) float64 {
	vel := body.Velocity()
	heading := body.Angle()
	return vel.X*math.Cos(heading) + vel.Y*math.Sin(heading)
}

// LateralSpeed is the velocity component perpendicular to the heading.
func LateralSpeed(body Body) float64 {
	vel := body.Velocity()
	heading := body.Angle()
	return vel.X*-math.Sin(heading) + vel.Y*math.Cos(heading)
}

// Sliding reports whether lateral speed exceeds the profile's slide
// threshold. Pure query, consumed by HUD and AI.
func Sliding(body Body, p Profile) bool {
	return math.Abs(LateralSpeed(body)) > p.SlideThreshold
}

func clamp(v, minV, maxV float64) float64 {
	if v < minV {
		return minV
	}
	if v > maxV {
		return maxV
	}
	return v
}
