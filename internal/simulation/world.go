package simulation

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"slipstream/internal/physics"
	"slipstream/internal/race"
	"slipstream/internal/shared/types"
)

const (
	wallElasticity = 0.3

	// Starting grid geometry: staggered two-wide rows behind the line.
	gridRowSpacing = 60.0
	gridLaneOffset = 25.0

	// Stuck advisory: near-zero speed for this long, outside crash recovery.
	DefaultStuckSpeed = 5.0
	DefaultStuckAfter = 3.0
)

// CarSpawn defines initial car details at race creation.
type CarSpawn struct {
	CarID       string
	DisplayName string
	IsBot       bool
	Position    types.Vec2
	Angle       float64
}

type carEntity struct {
	id          string
	displayName string
	isBot       bool

	body     physics.Body
	profile  physics.Profile
	crash    race.CrashState
	progress race.Progress

	spawnPos   types.Vec2
	spawnAngle float64

	lastPos  types.Vec2
	topSpeed float64
	distance float64
	stuckFor float64
}

// World is the authoritative race simulation state. All mutation happens
// under one mutex in the fixed-timestep tick sequence; cars are added and
// removed only between ticks through the same mutex.
type World struct {
	mu  sync.RWMutex
	log zerolog.Logger

	raceID    string
	track     race.Track
	createdAt time.Time

	solver    physics.Solver
	sequencer *race.Sequencer
	resolver  *race.Resolver
	profile   physics.Profile // default profile for joining cars

	stuckSpeed float64
	stuckAfter float64

	tick      uint64
	cars      map[string]*carEntity
	input     map[string]types.Controls
	events    []types.RaceEvent
	standings []types.Standing
}

// NewWorld builds the race session: boundary walls in the solver world and
// one body per spawned car.
func NewWorld(raceID string, track race.Track, totalLaps int, profile physics.Profile,
	solver physics.Solver, spawns []CarSpawn, log zerolog.Logger) (*World, error) {

	sequencer, err := race.NewSequencer(track, totalLaps)
	if err != nil {
		return nil, err
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}

	for _, wall := range track.Walls {
		solver.AddWall(wall.A, wall.B, track.Surface.Friction(), wallElasticity)
	}

	w := &World{
		log:        log,
		raceID:     raceID,
		track:      track,
		createdAt:  time.Now().UTC(),
		solver:     solver,
		sequencer:  sequencer,
		resolver:   race.NewResolver(log),
		profile:    profile,
		stuckSpeed: DefaultStuckSpeed,
		stuckAfter: DefaultStuckAfter,
		cars:       make(map[string]*carEntity),
		input:      make(map[string]types.Controls),
	}

	for _, sp := range spawns {
		if _, err := w.addCar(sp); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Subscribe registers an impact listener with the collision resolver.
// Listeners run synchronously inside Tick, in registration order.
func (w *World) Subscribe(l race.ImpactListener) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resolver.Subscribe(l)
}

func (w *World) addCar(sp CarSpawn) (*carEntity, error) {
	if sp.CarID == "" {
		return nil, fmt.Errorf("simulation: spawn without car id")
	}
	if _, ok := w.cars[sp.CarID]; ok {
		return nil, fmt.Errorf("simulation: car %q already in race", sp.CarID)
	}

	body, err := w.solver.AddCar(sp.CarID, sp.Position, sp.Angle, w.profile)
	if err != nil {
		return nil, err
	}

	car := &carEntity{
		id:          sp.CarID,
		displayName: sp.DisplayName,
		isBot:       sp.IsBot,
		body:        body,
		profile:     w.profile,
		crash:       race.NewCrashState(sp.Position, sp.Angle),
		progress:    race.NewProgress(),
		spawnPos:    sp.Position,
		spawnAngle:  sp.Angle,
		lastPos:     sp.Position,
	}
	w.cars[sp.CarID] = car
	return car, nil
}

// EnsureCar inserts a car if not present, placing it on the next open grid
// slot behind the start line.
func (w *World) EnsureCar(carID, displayName string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if car, ok := w.cars[carID]; ok {
		if displayName != "" {
			car.displayName = displayName
		}
		return nil
	}

	pos, angle := GridSlot(w.track, len(w.cars))
	_, err := w.addCar(CarSpawn{
		CarID:       carID,
		DisplayName: displayName,
		Position:    pos,
		Angle:       angle,
	})
	return err
}

// RemoveCar releases the car's body and race state.
func (w *World) RemoveCar(carID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.cars[carID]; !ok {
		return
	}
	w.solver.RemoveCar(carID)
	delete(w.cars, carID)
	delete(w.input, carID)
}

// GridSlot lays out staggered two-wide grid rows behind the start line.
func GridSlot(track race.Track, slot int) (types.Vec2, float64) {
	start, heading := track.StartPose()
	fwdX, fwdY := math.Cos(heading), math.Sin(heading)
	rightX, rightY := -math.Sin(heading), math.Cos(heading)

	row := float64(slot/2 + 1)
	side := gridLaneOffset
	if slot%2 == 0 {
		side = -gridLaneOffset
	}

	return types.Vec2{
		X: start.X - fwdX*gridRowSpacing*row + rightX*side,
		Y: start.Y - fwdY*gridRowSpacing*row + rightY*side,
	}, heading
}

// ApplyControls stores the latest control input for a car. The values take
// effect at the next tick.
func (w *World) ApplyControls(in types.Controls) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.cars[in.CarID]; !ok {
		return
	}
	w.input[in.CarID] = in
}

// SwitchProfile replaces a car's active physics profile. Kinematics are
// untouched; only future force computation changes. Invalid profiles are
// rejected and the previous profile stays active.
func (w *World) SwitchProfile(carID string, p physics.Profile) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	car, ok := w.cars[carID]
	if !ok {
		return fmt.Errorf("simulation: unknown car %q", carID)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	car.profile = p
	car.body.Retune(p)
	w.log.Info().Str("car", carID).Str("profile", p.Name).Msg("physics profile switched")
	return nil
}

// Tick advances the race by dt seconds: crash timers, control forces, one
// solver step, collision classification, fault recovery, checkpoint and lap
// evaluation, then standings. Strictly in that order, all cars per phase.
func (w *World) Tick(dt float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.tick++
	w.events = w.events[:0]
	now := time.Now().UTC().UnixMilli()

	// Crash state machine advances first so control gating below sees the
	// post-transition phase. Recovering lasts exactly one tick.
	for _, car := range w.cars {
		car.crash.Tick(dt)
	}

	// Buffered inputs become one force/torque application per car.
	for id, car := range w.cars {
		in := w.input[id]
		controls := physics.Controls{
			Throttle: in.Throttle,
			Steering: in.Steering,
			Brake:    in.Brake,
		}
		if car.crash.ControlsLocked() || car.progress.Finished {
			controls = physics.Controls{}
		}
		car.crash.RecordSafePose(car.body.Position(), car.body.Angle())
		physics.ApplyControls(car.body, car.profile, controls, dt)
	}

	w.solver.Step(dt)

	// Classify contacts; qualifying impacts crash the car.
	impacts := w.resolver.Resolve(w.solver.DrainContacts(), w.knownCar)
	for _, imp := range impacts {
		car := w.cars[imp.CarID]
		w.events = append(w.events, types.RaceEvent{
			Type:       "impact",
			CarID:      imp.CarID,
			Severity:   imp.Severity,
			Point:      imp.Point,
			Normal:     imp.Normal,
			OccurredMS: now,
		})
		if imp.Severity >= car.profile.CrashThreshold && car.crash.Phase == race.PhaseNormal {
			w.crashCar(car, now)
		}
	}

	// Solver faults are recovered in place, per car, and never stop the race.
	for _, car := range w.cars {
		if kinematicsFinite(car.body) {
			continue
		}
		w.log.Warn().Str("car", car.id).Msg("non-finite kinematics, resetting to safe pose")
		car.body.SetPose(car.crash.SafePos, car.crash.SafeAngle)
		car.body.SetVelocity(types.Vec2{}, 0)
		w.crashCar(car, now)
	}

	// Checkpoint and lap evaluation on the swept path since last tick.
	for _, car := range w.cars {
		cur := car.body.Position()
		res := w.sequencer.Advance(&car.progress, car.lastPos, cur, dt)
		if res.LapCompleted {
			w.events = append(w.events, types.RaceEvent{
				Type:       "lap_completed",
				CarID:      car.id,
				Lap:        car.progress.Lap,
				LapTime:    res.LapTime,
				OccurredMS: now,
			})
		}
		if res.RaceFinished {
			w.events = append(w.events, types.RaceEvent{
				Type:       "race_finished",
				CarID:      car.id,
				Lap:        car.progress.Lap,
				OccurredMS: now,
			})
		}

		speed := hypot(car.body.Velocity())
		if speed > car.topSpeed {
			car.topSpeed = speed
		}
		car.distance += dist(car.lastPos, cur)
		car.lastPos = cur

		if car.crash.Phase == race.PhaseNormal && !car.progress.Finished && speed < w.stuckSpeed {
			car.stuckFor += dt
		} else {
			car.stuckFor = 0
		}
	}

	w.standings = w.computeStandings()
}

func (w *World) crashCar(car *carEntity, now int64) {
	car.body.SetVelocity(types.Vec2{}, 0)
	car.crash.Crash()
	w.events = append(w.events, types.RaceEvent{
		Type:       "crash",
		CarID:      car.id,
		OccurredMS: now,
	})
}

func (w *World) knownCar(id string) bool {
	_, ok := w.cars[id]
	return ok
}

func (w *World) computeStandings() []types.Standing {
	entries := make([]race.StandingEntry, 0, len(w.cars))
	for id, car := range w.cars {
		entries = append(entries, race.StandingEntry{CarID: id, Progress: car.progress})
	}
	return race.ComputeStandings(entries)
}

// Restart resets every car to its grid slot with fresh race state.
func (w *World) Restart() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now().UTC().UnixMilli()
	for _, car := range w.cars {
		car.body.SetPose(car.spawnPos, car.spawnAngle)
		car.body.SetVelocity(types.Vec2{}, 0)
		car.crash = race.NewCrashState(car.spawnPos, car.spawnAngle)
		car.progress = race.NewProgress()
		car.lastPos = car.spawnPos
		car.topSpeed = 0
		car.distance = 0
		car.stuckFor = 0
	}
	w.events = append(w.events[:0], types.RaceEvent{Type: "restart", OccurredMS: now})
	w.standings = w.computeStandings()
}

// Snapshot returns a deep copy of the race state for safe replication.
func (w *World) Snapshot() types.RaceState {
	w.mu.RLock()
	defer w.mu.RUnlock()

	cars := make(map[string]types.CarSnapshot, len(w.cars))
	for id, car := range w.cars {
		cars[id] = w.snapshotCar(car)
	}

	standings := make([]types.Standing, len(w.standings))
	copy(standings, w.standings)

	events := make([]types.RaceEvent, len(w.events))
	copy(events, w.events)

	return types.RaceState{
		RaceID:    w.raceID,
		TrackName: w.track.Name,
		Tick:      w.tick,
		TotalLaps: w.sequencer.TotalLaps(),
		CreatedAt: w.createdAt,
		Cars:      cars,
		Standings: standings,
		Events:    events,
	}
}

func (w *World) snapshotCar(car *carEntity) types.CarSnapshot {
	vel := car.body.Velocity()
	snap := types.CarSnapshot{
		CarID:            car.id,
		DisplayName:      car.displayName,
		IsBot:            car.isBot,
		Position:         car.body.Position(),
		Velocity:         vel,
		Angle:            car.body.Angle(),
		Speed:            hypot(vel),
		ForwardSpeed:     physics.ForwardSpeed(car.body),
		Sliding:          physics.Sliding(car.body, car.profile),
		CrashPhase:       car.crash.Phase.String(),
		Stuck:            car.stuckFor >= w.stuckAfter,
		Lap:              car.progress.Lap,
		NextCheckpoint:   car.progress.NextCheckpoint,
		LapTime:          car.progress.LapTime,
		RaceTime:         car.progress.RaceTime,
		Finished:         car.progress.Finished,
		TopSpeed:         car.topSpeed,
		DistanceTraveled: car.distance,
	}
	if car.crash.Phase == race.PhaseCrashed {
		snap.RespawnIn = car.crash.Timer
	}
	if car.progress.HasBest {
		best := car.progress.BestLap
		snap.BestLapTime = &best
	}
	return snap
}

// Standings returns a copy of the current race order.
func (w *World) Standings() []types.Standing {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]types.Standing, len(w.standings))
	copy(out, w.standings)
	return out
}

// CarCount returns the number of cars in the race.
func (w *World) CarCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.cars)
}

func kinematicsFinite(b physics.Body) bool {
	pos := b.Position()
	vel := b.Velocity()
	for _, v := range [6]float64{pos.X, pos.Y, vel.X, vel.Y, b.Angle(), b.AngularVelocity()} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func hypot(v types.Vec2) float64 {
	return math.Hypot(v.X, v.Y)
}

func dist(a, b types.Vec2) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
