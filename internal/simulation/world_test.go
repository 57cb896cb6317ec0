package simulation

import (
	"fmt"
	"math"
	"testing"

	"slipstream/internal/shared/logger"

	"slipstream/internal/physics"
	"slipstream/internal/race"
	"slipstream/internal/shared/types"
)

// fakeBody integrates forces with plain Euler steps so world tests stay
// independent of the real solver.
type fakeBody struct {
	pos     types.Vec2
	angle   float64
	vel     types.Vec2
	angular float64

	force  types.Vec2
	torque float64
	mass   float64
	moment float64
}

func (b *fakeBody) Position() types.Vec2     { return b.pos }
func (b *fakeBody) Angle() float64           { return b.angle }
func (b *fakeBody) Velocity() types.Vec2     { return b.vel }
func (b *fakeBody) AngularVelocity() float64 { return b.angular }

func (b *fakeBody) SetPose(pos types.Vec2, angle float64) {
	b.pos = pos
	b.angle = angle
}

func (b *fakeBody) SetVelocity(vel types.Vec2, angular float64) {
	b.vel = vel
	b.angular = angular
}

func (b *fakeBody) ApplyForce(force types.Vec2, torque float64) {
	b.force = force
	b.torque = torque
}

func (b *fakeBody) Retune(p physics.Profile) {
	b.mass = p.Mass
	b.moment = p.Moment()
}

type fakeSolver struct {
	bodies map[string]*fakeBody
	walls  int
	queued []physics.Contact
}

func newFakeSolver() *fakeSolver {
	return &fakeSolver{bodies: make(map[string]*fakeBody)}
}

func (s *fakeSolver) AddCar(id string, pos types.Vec2, angle float64, p physics.Profile) (physics.Body, error) {
	if _, ok := s.bodies[id]; ok {
		return nil, fmt.Errorf("fake solver: body %q already exists", id)
	}
	b := &fakeBody{pos: pos, angle: angle, mass: p.Mass, moment: p.Moment()}
	s.bodies[id] = b
	return b, nil
}

func (s *fakeSolver) RemoveCar(id string) {
	delete(s.bodies, id)
}

func (s *fakeSolver) AddWall(a, b types.Vec2, friction, elasticity float64) {
	s.walls++
}

func (s *fakeSolver) Step(dt float64) {
	for _, b := range s.bodies {
		b.vel.X += b.force.X / b.mass * dt
		b.vel.Y += b.force.Y / b.mass * dt
		b.angular += b.torque / b.moment * dt
		b.pos.X += b.vel.X * dt
		b.pos.Y += b.vel.Y * dt
		b.angle += b.angular * dt
		b.force = types.Vec2{}
		b.torque = 0
	}
}

func (s *fakeSolver) DrainContacts() []physics.Contact {
	out := s.queued
	s.queued = nil
	return out
}

func (s *fakeSolver) inject(c physics.Contact) {
	s.queued = append(s.queued, c)
}

// flatCircuit is three wide vertical gates at x=0 (start/finish), x=100
// and x=200, with no walls.
func flatCircuit() race.Track {
	return race.Track{
		Name:    "flat-circuit",
		Surface: race.SurfaceAsphalt,
		Checkpoints: []race.Checkpoint{
			{Index: 0, A: types.Vec2{X: 0, Y: -200}, B: types.Vec2{X: 0, Y: 200}, StartFinish: true},
			{Index: 1, A: types.Vec2{X: 100, Y: -200}, B: types.Vec2{X: 100, Y: 200}},
			{Index: 2, A: types.Vec2{X: 200, Y: -200}, B: types.Vec2{X: 200, Y: 200}},
		},
	}
}

func newFakeWorld(t *testing.T, spawns ...CarSpawn) (*World, *fakeSolver) {
	t.Helper()
	fs := newFakeSolver()
	w, err := NewWorld("race_test", flatCircuit(), 2, physics.Arcade(), fs, spawns, logger.Nop())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w, fs
}

func spawnAt(id string, x, y float64) CarSpawn {
	return CarSpawn{CarID: id, Position: types.Vec2{X: x, Y: y}}
}

const tickDT = 1.0 / 60

func TestThrottleAcceleratesFromRest(t *testing.T) {
	w, _ := newFakeWorld(t, spawnAt("p1", -300, 0))
	w.ApplyControls(types.Controls{CarID: "p1", Throttle: 1})

	for i := 0; i < 60; i++ {
		w.Tick(tickDT)
	}

	snap := w.Snapshot().Cars["p1"]
	maxGain := physics.Arcade().MaxDriveForce / physics.Arcade().Mass // per second
	if snap.Speed <= 0 {
		t.Fatal("expected the car to accelerate under full throttle")
	}
	if snap.Speed > maxGain {
		t.Fatalf("speed %f exceeds one second of full drive force (%f)", snap.Speed, maxGain)
	}
	if snap.ForwardSpeed <= 0 {
		t.Fatalf("expected forward motion, got forward speed %f", snap.ForwardSpeed)
	}
	if snap.TopSpeed < snap.Speed {
		t.Fatalf("top speed %f below current speed %f", snap.TopSpeed, snap.Speed)
	}
}

func TestTickDeterminism(t *testing.T) {
	run := func() types.Vec2 {
		w, _ := newFakeWorld(t, spawnAt("p1", -300, 0))
		w.ApplyControls(types.Controls{CarID: "p1", Throttle: 0.8, Steering: 0.3})
		for i := 0; i < 120; i++ {
			w.Tick(tickDT)
		}
		return w.Snapshot().Cars["p1"].Position
	}

	a, b := run(), run()
	if a != b {
		t.Fatalf("identical runs diverged: %+v vs %+v", a, b)
	}
}

func TestCrashAtThresholdIsInclusive(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -300, 0))
	fs.bodies["p1"].vel = types.Vec2{X: 100}

	threshold := physics.Arcade().CrashThreshold
	fs.inject(physics.Contact{A: "p1", Impulse: threshold})
	w.Tick(tickDT)

	state := w.Snapshot()
	snap := state.Cars["p1"]
	if snap.CrashPhase != "crashed" {
		t.Fatalf("impulse equal to the threshold must crash, got phase %q", snap.CrashPhase)
	}
	if snap.Speed != 0 {
		t.Fatalf("crashed car must stop dead, got speed %f", snap.Speed)
	}
	if snap.RespawnIn != race.DefaultRecoveryDuration {
		t.Fatalf("expected full recovery timer, got %f", snap.RespawnIn)
	}

	var sawImpact, sawCrash bool
	for _, ev := range state.Events {
		switch ev.Type {
		case "impact":
			sawImpact = true
		case "crash":
			sawCrash = true
		}
	}
	if !sawImpact || !sawCrash {
		t.Fatalf("expected impact and crash events, got %+v", state.Events)
	}
}

func TestImpactBelowThresholdDoesNotCrash(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -300, 0))

	fs.inject(physics.Contact{A: "p1", Impulse: physics.Arcade().CrashThreshold - 0.01})
	w.Tick(tickDT)

	state := w.Snapshot()
	if state.Cars["p1"].CrashPhase != "normal" {
		t.Fatalf("sub-threshold impact must not crash, got %q", state.Cars["p1"].CrashPhase)
	}
	for _, ev := range state.Events {
		if ev.Type == "crash" {
			t.Fatal("unexpected crash event")
		}
		if ev.Type == "impact" && ev.Severity != physics.Arcade().CrashThreshold-0.01 {
			t.Fatalf("impact event severity mismatch: %f", ev.Severity)
		}
	}
}

func TestCrashedCarIgnoresInputUntilRecovered(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -300, 0))
	fs.inject(physics.Contact{A: "p1", Impulse: 1000})
	w.Tick(tickDT)
	w.ApplyControls(types.Controls{CarID: "p1", Throttle: 1})

	// Four half-second ticks exhaust the two second timer; the last one
	// lands the car in the one-tick recovering grace period.
	for i := 0; i < 4; i++ {
		w.Tick(0.5)
		if speed := w.Snapshot().Cars["p1"].Speed; speed != 0 {
			t.Fatalf("tick %d: crashed car moved at speed %f", i, speed)
		}
	}
	snap := w.Snapshot().Cars["p1"]
	if snap.CrashPhase != "recovering" {
		t.Fatalf("expected recovering after timer expiry, got %q", snap.CrashPhase)
	}

	// Back to normal: buffered throttle takes effect.
	w.Tick(0.5)
	snap = w.Snapshot().Cars["p1"]
	if snap.CrashPhase != "normal" {
		t.Fatalf("expected normal after recovery, got %q", snap.CrashPhase)
	}
	if snap.Speed <= 0 {
		t.Fatal("expected throttle to apply once control returns")
	}
}

func TestNonFiniteKinematicsRecovered(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -300, 0))
	w.Tick(tickDT)

	fs.bodies["p1"].vel = types.Vec2{X: math.NaN(), Y: math.NaN()}
	w.Tick(tickDT)

	snap := w.Snapshot().Cars["p1"]
	if snap.CrashPhase != "crashed" {
		t.Fatalf("fault recovery must crash the car, got %q", snap.CrashPhase)
	}
	if math.IsNaN(snap.Position.X) || math.IsNaN(snap.Position.Y) {
		t.Fatalf("position still non-finite: %+v", snap.Position)
	}
	if snap.Position != (types.Vec2{X: -300, Y: 0}) {
		t.Fatalf("expected reset to safe pose, got %+v", snap.Position)
	}
	if snap.Speed != 0 {
		t.Fatalf("expected zero velocity after reset, got %f", snap.Speed)
	}

	// The race keeps running for everyone.
	w.Tick(tickDT)
}

func TestLapProgressionAndEvents(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -50, 0))
	body := fs.bodies["p1"]
	body.vel = types.Vec2{X: 100}

	var lapEvents int
	runUntil := func(cond func() bool) {
		for i := 0; i < 200 && !cond(); i++ {
			w.Tick(0.1)
			for _, ev := range w.Snapshot().Events {
				if ev.Type == "lap_completed" {
					lapEvents++
				}
			}
		}
	}

	// Outbound: arm at the start gate, then collect gates 1 and 2.
	runUntil(func() bool { return body.pos.X > 250 })
	snap := w.Snapshot().Cars["p1"]
	if snap.Lap != 0 {
		t.Fatalf("no lap should complete on the outbound leg, got %d", snap.Lap)
	}
	if snap.NextCheckpoint != 0 {
		t.Fatalf("expected the start gate next after the last checkpoint, got %d", snap.NextCheckpoint)
	}

	// Return through the start gate completes the lap. The intermediate
	// gates are crossed out of order on the way and give no extra credit.
	body.vel = types.Vec2{X: -100}
	runUntil(func() bool { return body.pos.X < -50 })
	snap = w.Snapshot().Cars["p1"]
	if snap.Lap != 1 {
		t.Fatalf("expected one completed lap, got %d", snap.Lap)
	}
	if lapEvents != 1 {
		t.Fatalf("expected exactly one lap_completed event, got %d", lapEvents)
	}
	if snap.BestLapTime == nil {
		t.Fatal("expected a best lap after lap completion")
	}

	// Snapshots own their best-lap pointer.
	tainted := w.Snapshot()
	*tainted.Cars["p1"].BestLapTime = -1
	if best := *w.Snapshot().Cars["p1"].BestLapTime; best <= 0 {
		t.Fatalf("snapshot mutation leaked into the world: %f", best)
	}
}

func TestStandingsRankProgress(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -50, 0), spawnAt("p2", -50, 60))
	fs.bodies["p1"].vel = types.Vec2{X: 100}

	// Two seconds at 100 u/s: past the start gate and gate 1.
	for i := 0; i < 20; i++ {
		w.Tick(0.1)
	}

	standings := w.Standings()
	if len(standings) != 2 {
		t.Fatalf("expected two standings rows, got %d", len(standings))
	}
	if standings[0].CarID != "p1" || standings[0].Rank != 1 {
		t.Fatalf("expected p1 leading, got %+v", standings[0])
	}
	if standings[1].CarID != "p2" || standings[1].Rank != 2 {
		t.Fatalf("expected p2 second, got %+v", standings[1])
	}
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	w, _ := newFakeWorld(t, spawnAt("p1", -300, 0))
	w.Tick(tickDT)

	snap := w.Snapshot()
	car := snap.Cars["p1"]
	car.Lap = 42
	snap.Cars["p1"] = car
	delete(snap.Cars, "p1")
	if len(snap.Standings) > 0 {
		snap.Standings[0].Rank = 99
	}

	fresh := w.Snapshot()
	if fresh.Cars["p1"].Lap != 0 {
		t.Fatalf("car mutation leaked into the world: lap %d", fresh.Cars["p1"].Lap)
	}
	if len(fresh.Cars) != 1 {
		t.Fatal("car map mutation leaked into the world")
	}
	if fresh.Standings[0].Rank != 1 {
		t.Fatal("standings mutation leaked into the world")
	}
}

func TestSwitchProfile(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -300, 0))
	body := fs.bodies["p1"]
	body.vel = types.Vec2{X: 40, Y: 5}
	body.angle = 0.3

	if err := w.SwitchProfile("p1", physics.Realistic()); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if body.vel != (types.Vec2{X: 40, Y: 5}) || body.angle != 0.3 {
		t.Fatal("profile switch must not touch kinematics")
	}
	if body.mass != physics.Realistic().Mass {
		t.Fatalf("expected retuned mass, got %f", body.mass)
	}

	bad := physics.Realistic()
	bad.Mass = 0
	if err := w.SwitchProfile("p1", bad); err == nil {
		t.Fatal("expected invalid profile rejection")
	}
	if body.mass != physics.Realistic().Mass {
		t.Fatal("rejected profile must leave the previous tuning active")
	}

	if err := w.SwitchProfile("ghost", physics.Arcade()); err == nil {
		t.Fatal("expected unknown car rejection")
	}
}

func TestStuckAdvisory(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -300, 0))

	for i := 0; i < 7; i++ {
		w.Tick(0.5)
	}
	if !w.Snapshot().Cars["p1"].Stuck {
		t.Fatal("expected stuck advisory after prolonged standstill")
	}

	fs.bodies["p1"].vel = types.Vec2{X: 50}
	w.Tick(0.5)
	if w.Snapshot().Cars["p1"].Stuck {
		t.Fatal("moving car must clear the stuck advisory")
	}
}

func TestEnsureCarAndRemove(t *testing.T) {
	w, fs := newFakeWorld(t)
	if w.CarCount() != 0 {
		t.Fatalf("expected empty world, got %d cars", w.CarCount())
	}

	if err := w.EnsureCar("p1", "Alex"); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if err := w.EnsureCar("p1", ""); err != nil {
		t.Fatalf("ensure must be idempotent: %v", err)
	}
	if w.CarCount() != 1 {
		t.Fatalf("expected one car, got %d", w.CarCount())
	}
	if _, ok := fs.bodies["p1"]; !ok {
		t.Fatal("expected a solver body for the joined car")
	}

	// Input for unknown cars is dropped without effect.
	w.ApplyControls(types.Controls{CarID: "ghost", Throttle: 1})
	w.Tick(tickDT)

	w.RemoveCar("p1")
	w.RemoveCar("p1") // idempotent
	if w.CarCount() != 0 {
		t.Fatalf("expected empty world after remove, got %d", w.CarCount())
	}
	if _, ok := fs.bodies["p1"]; ok {
		t.Fatal("expected the solver body to be released")
	}
}

func TestRestartResetsRaceState(t *testing.T) {
	w, fs := newFakeWorld(t, spawnAt("p1", -300, 0))
	fs.bodies["p1"].vel = types.Vec2{X: 100}
	for i := 0; i < 20; i++ {
		w.Tick(0.1)
	}
	fs.inject(physics.Contact{A: "p1", Impulse: 1000})
	w.Tick(0.1)

	w.Restart()

	state := w.Snapshot()
	snap := state.Cars["p1"]
	if snap.Position != (types.Vec2{X: -300, Y: 0}) {
		t.Fatalf("expected the car back on its grid slot, got %+v", snap.Position)
	}
	if snap.Speed != 0 || snap.CrashPhase != "normal" {
		t.Fatalf("expected a clean car after restart, got speed %f phase %q", snap.Speed, snap.CrashPhase)
	}
	if snap.Lap != 0 || snap.RaceTime != 0 || snap.NextCheckpoint != 0 {
		t.Fatalf("expected fresh progress, got %+v", snap)
	}
	if len(state.Events) != 1 || state.Events[0].Type != "restart" {
		t.Fatalf("expected a restart event, got %+v", state.Events)
	}
}

func TestWallsForwardedToSolver(t *testing.T) {
	fs := newFakeSolver()
	track := race.DefaultTrack()
	_, err := NewWorld("race_walls", track, 3, physics.Arcade(), fs, nil, logger.Nop())
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	if fs.walls != len(track.Walls) {
		t.Fatalf("expected %d walls in the solver, got %d", len(track.Walls), fs.walls)
	}
}

// Full-stack scenario on the real solver: acceleration from the grid stays
// bounded and repeatable.
func TestWorldOnRigidBodySolver(t *testing.T) {
	run := func() (types.Vec2, float64) {
		w, err := NewWorld("race_rigid", race.DefaultTrack(), 3, physics.Arcade(),
			physics.NewChipmunkSolver(), nil, logger.Nop())
		if err != nil {
			t.Fatalf("world: %v", err)
		}
		if err := w.EnsureCar("p1", "solo"); err != nil {
			t.Fatalf("ensure: %v", err)
		}
		w.ApplyControls(types.Controls{CarID: "p1", Throttle: 1})
		for i := 0; i < 60; i++ {
			w.Tick(tickDT)
		}
		snap := w.Snapshot().Cars["p1"]
		return snap.Position, snap.Speed
	}

	posA, speedA := run()
	posB, speedB := run()

	if speedA <= 0 {
		t.Fatal("expected acceleration under full throttle")
	}
	maxGain := physics.Arcade().MaxDriveForce / physics.Arcade().Mass
	if speedA > maxGain {
		t.Fatalf("speed %f exceeds one second of full drive force (%f)", speedA, maxGain)
	}
	if posA != posB || speedA != speedB {
		t.Fatalf("identical runs diverged: %+v/%f vs %+v/%f", posA, speedA, posB, speedB)
	}
}
