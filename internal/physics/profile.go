package physics

import (
	"fmt"
	"math"
)

// momentScale reduces box inertia so cars rotate responsively.
const momentScale = 0.1

// Profile is an immutable tuning record governing force magnitudes and
// handling for one car. Replace wholesale to retune, never mutate in place.
type Profile struct {
	Name string

	// Body
	Mass   float64 // kg
	Width  float64 // collision box extents, world units
	Height float64

	// Forces
	Friction       float64 // tire friction coefficient
	MaxDriveForce  float64
	MaxSteerTorque float64

	// Damping
	LinearDamping  float64
	AngularDamping float64

	// Speed-dependent handling
	HighSpeedThreshold  float64 // speed where steering starts to degrade
	HandlingDegradation float64 // attenuation slope above the threshold
	SteerFloor          float64 // effectiveness never drops below this

	// Classification thresholds
	SlideThreshold float64 // lateral speed above which the car is sliding
	CrashThreshold float64 // minimum impulse magnitude forcing a crash

	Elasticity float64 // bounciness in collisions
}

// Arcade is the responsive, forgiving tuning.
func Arcade() Profile {
	return Profile{
		Name:                "arcade",
		Mass:                800,
		Width:               40,
		Height:              20,
		Friction:            0.9,
		MaxDriveForce:       50000,
		MaxSteerTorque:      400000,
		LinearDamping:       0.02,
		AngularDamping:      0.005,
		HighSpeedThreshold:  400,
		HandlingDegradation: 0.3,
		SteerFloor:          0.4,
		SlideThreshold:      50,
		CrashThreshold:      300,
		Elasticity:          0.4,
	}
}

// Realistic is the heavier tuning that gets genuinely hard to hold at speed.
func Realistic() Profile {
	return Profile{
		Name:                "realistic",
		Mass:                1200,
		Width:               40,
		Height:              20,
		Friction:            0.6,
		MaxDriveForce:       35000,
		MaxSteerTorque:      250000,
		LinearDamping:       0.01,
		AngularDamping:      0.01,
		HighSpeedThreshold:  300,
		HandlingDegradation: 0.7,
		SteerFloor:          0.1,
		SlideThreshold:      50,
		CrashThreshold:      300,
		Elasticity:          0.2,
	}
}

// ByName resolves a canonical profile.
func ByName(name string) (Profile, error) {
	switch name {
	case "arcade":
		return Arcade(), nil
	case "realistic":
		return Realistic(), nil
	default:
		return Profile{}, fmt.Errorf("physics: unknown profile %q", name)
	}
}

// Validate rejects profiles that would destabilize the solver.
func (p Profile) Validate() error {
	positive := map[string]float64{
		"mass":                 p.Mass,
		"width":                p.Width,
		"height":               p.Height,
		"friction":             p.Friction,
		"max_drive_force":      p.MaxDriveForce,
		"max_steer_torque":     p.MaxSteerTorque,
		"high_speed_threshold": p.HighSpeedThreshold,
		"slide_threshold":      p.SlideThreshold,
		"crash_threshold":      p.CrashThreshold,
	}
	for name, v := range positive {
		if v <= 0 || !finite(v) {
			return fmt.Errorf("physics: profile %s must be a positive finite value, got %v", name, v)
		}
	}
	nonNegative := map[string]float64{
		"linear_damping":       p.LinearDamping,
		"angular_damping":      p.AngularDamping,
		"handling_degradation": p.HandlingDegradation,
		"elasticity":           p.Elasticity,
	}
	for name, v := range nonNegative {
		if v < 0 || !finite(v) {
			return fmt.Errorf("physics: profile %s must be a non-negative finite value, got %v", name, v)
		}
	}
	if p.SteerFloor <= 0 || p.SteerFloor > 1 || !finite(p.SteerFloor) {
		return fmt.Errorf("physics: profile steer_floor must be in (0,1], got %v", p.SteerFloor)
	}
	return nil
}

// Moment returns the rotational inertia for the car's collision box.
func (p Profile) Moment() float64 {
	return p.Mass * (p.Width*p.Width + p.Height*p.Height) / 12.0 * momentScale
}

// degradationSpan is the speed range over which full degradation is reached.
const degradationSpan = 200.0

// SteerEffectiveness returns the deterministic steering attenuation factor
// for a given speed: 1.0 at or below the threshold, falling linearly with
// excess speed and clamped at the profile floor.
func (p Profile) SteerEffectiveness(speed float64) float64 {
	if speed <= p.HighSpeedThreshold {
		return 1.0
	}
	excess := speed - p.HighSpeedThreshold
	f := 1.0 - (excess/degradationSpan)*p.HandlingDegradation
	if f < p.SteerFloor {
		f = p.SteerFloor
	}
	return f
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
