package physics

import "slipstream/internal/shared/types"

// Body is one dynamic rigid body, owned exclusively by one car.
type Body interface {
	Position() types.Vec2
	Angle() float64
	Velocity() types.Vec2
	AngularVelocity() float64

	SetPose(pos types.Vec2, angle float64)
	SetVelocity(vel types.Vec2, angular float64)

	// ApplyForce sets the accumulated force and torque for the next step.
	// The simulation calls this exactly once per body per tick.
	ApplyForce(force types.Vec2, torque float64)

	// Retune retunes mass, inertia and shape material after a profile switch.
	// Kinematic state is not touched.
	Retune(p Profile)
}

// Contact is one collision event reported by a solver step. A and B identify
// the participating bodies; static boundaries report the empty string.
type Contact struct {
	A       string
	B       string
	Point   types.Vec2
	Normal  types.Vec2
	Impulse float64
}

// Solver is the narrow contract the simulation core requires from a 2D
// rigid-body world. Implementations own collision response; the core only
// observes the contacts a step produced.
type Solver interface {
	AddCar(id string, pos types.Vec2, angle float64, p Profile) (Body, error)
	RemoveCar(id string)
	AddWall(a, b types.Vec2, friction, elasticity float64)

	// Step advances the world by a fixed time delta.
	Step(dt float64)

	// DrainContacts returns the contacts generated by the most recent step
	// and clears the buffer.
	DrainContacts() []Contact
}
