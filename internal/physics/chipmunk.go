package physics

import (
	"fmt"

	"github.com/jakecoffman/cp"

	"slipstream/internal/shared/types"
)

const (
	collisionTypeCar  cp.CollisionType = 1
	collisionTypeWall cp.CollisionType = 2

	wallRadius      = 1.0
	solverIterations = 10
)

type chipmunkBody struct {
	body  *cp.Body
	shape *cp.Shape
}

func (b *chipmunkBody) Position() types.Vec2 {
	v := b.body.Position()
	return types.Vec2{X: v.X, Y: v.Y}
}

func (b *chipmunkBody) Angle() float64 {
	return b.body.Angle()
}

func (b *chipmunkBody) Velocity() types.Vec2 {
	v := b.body.Velocity()
	return types.Vec2{X: v.X, Y: v.Y}
}

func (b *chipmunkBody) AngularVelocity() float64 {
	return b.body.AngularVelocity()
}

func (b *chipmunkBody) SetPose(pos types.Vec2, angle float64) {
	b.body.SetPosition(cp.Vector{X: pos.X, Y: pos.Y})
	b.body.SetAngle(angle)
}

func (b *chipmunkBody) SetVelocity(vel types.Vec2, angular float64) {
	b.body.SetVelocity(vel.X, vel.Y)
	b.body.SetAngularVelocity(angular)
}

func (b *chipmunkBody) ApplyForce(force types.Vec2, torque float64) {
	b.body.SetForce(cp.Vector{X: force.X, Y: force.Y})
	b.body.SetTorque(torque)
}

func (b *chipmunkBody) Retune(p Profile) {
	b.body.SetMass(p.Mass)
	b.body.SetMoment(p.Moment())
	b.shape.SetFriction(p.Friction)
	b.shape.SetElasticity(p.Elasticity)
}

// ChipmunkSolver implements Solver on a Chipmunk2D space. Top-down view, so
// the space carries no gravity; drag comes from the dynamics model instead.
type ChipmunkSolver struct {
	space    *cp.Space
	bodies   map[string]*chipmunkBody
	contacts []Contact
}

// NewChipmunkSolver creates an empty simulation world.
func NewChipmunkSolver() *ChipmunkSolver {
	space := cp.NewSpace()
	space.Iterations = solverIterations
	space.SetGravity(cp.Vector{})

	s := &ChipmunkSolver{
		space:  space,
		bodies: make(map[string]*chipmunkBody),
	}

	carCar := space.NewCollisionHandler(collisionTypeCar, collisionTypeCar)
	carCar.PostSolveFunc = s.recordContact
	carWall := space.NewCollisionHandler(collisionTypeCar, collisionTypeWall)
	carWall.PostSolveFunc = s.recordContact
	return s
}

func (s *ChipmunkSolver) recordContact(arb *cp.Arbiter, _ *cp.Space, _ interface{}) {
	shapeA, shapeB := arb.Shapes()
	set := arb.ContactPointSet()

	var point types.Vec2
	if set.Count > 0 {
		point = types.Vec2{X: set.Points[0].PointA.X, Y: set.Points[0].PointA.Y}
	}

	s.contacts = append(s.contacts, Contact{
		A:       shapeID(shapeA),
		B:       shapeID(shapeB),
		Point:   point,
		Normal:  types.Vec2{X: set.Normal.X, Y: set.Normal.Y},
		Impulse: arb.TotalImpulse().Length(),
	})
}

func shapeID(shape *cp.Shape) string {
	if id, ok := shape.UserData.(string); ok {
		return id
	}
	return ""
}

// AddCar creates a dynamic box body for one car.
func (s *ChipmunkSolver) AddCar(id string, pos types.Vec2, angle float64, p Profile) (Body, error) {
	if _, ok := s.bodies[id]; ok {
		return nil, fmt.Errorf("solver: body %q already exists", id)
	}

	body := s.space.AddBody(cp.NewBody(p.Mass, p.Moment()))
	body.SetPosition(cp.Vector{X: pos.X, Y: pos.Y})
	body.SetAngle(angle)

	shape := s.space.AddShape(cp.NewBox(body, p.Width, p.Height, 0))
	shape.SetFriction(p.Friction)
	shape.SetElasticity(p.Elasticity)
	shape.SetCollisionType(collisionTypeCar)
	shape.UserData = id

	cb := &chipmunkBody{body: body, shape: shape}
	s.bodies[id] = cb
	return cb, nil
}

// RemoveCar releases the car's body and shape from the world.
func (s *ChipmunkSolver) RemoveCar(id string) {
	cb, ok := s.bodies[id]
	if !ok {
		return
	}
	s.space.RemoveShape(cb.shape)
	s.space.RemoveBody(cb.body)
	delete(s.bodies, id)
}

// AddWall attaches a static boundary segment to the world.
func (s *ChipmunkSolver) AddWall(a, b types.Vec2, friction, elasticity float64) {
	seg := cp.NewSegment(s.space.StaticBody,
		cp.Vector{X: a.X, Y: a.Y},
		cp.Vector{X: b.X, Y: b.Y},
		wallRadius)
	shape := s.space.AddShape(seg)
	shape.SetFriction(friction)
	shape.SetElasticity(elasticity)
	shape.SetCollisionType(collisionTypeWall)
}

// Step advances the space by dt seconds.
func (s *ChipmunkSolver) Step(dt float64) {
	s.space.Step(dt)
}

// DrainContacts hands back the contacts of the last step.
func (s *ChipmunkSolver) DrainContacts() []Contact {
	out := s.contacts
	s.contacts = nil
	return out
}
