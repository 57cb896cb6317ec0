package race

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"

	"slipstream/internal/shared/types"
)

// Surface identifies the material of a track. The closed set keeps invalid
// surface kinds unrepresentable.
type Surface int

const (
	SurfaceAsphalt Surface = iota
	SurfaceDirt
	SurfaceGrass
)

var surfaceNames = map[Surface]string{
	SurfaceAsphalt: "asphalt",
	SurfaceDirt:    "dirt",
	SurfaceGrass:   "grass",
}

func (s Surface) String() string {
	if name, ok := surfaceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("surface(%d)", int(s))
}

// Friction returns the boundary friction coefficient for the surface.
func (s Surface) Friction() float64 {
	switch s {
	case SurfaceDirt:
		return 0.6
	case SurfaceGrass:
		return 0.45
	default:
		return 0.9
	}
}

// ParseSurface resolves a surface name from a track definition.
func ParseSurface(name string) (Surface, error) {
	for s, n := range surfaceNames {
		if n == name {
			return s, nil
		}
	}
	return 0, fmt.Errorf("track: unknown surface %q", name)
}

func (s Surface) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Surface) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseSurface(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Checkpoint is one gate of the ordered lap sequence: a 2D line segment a
// car's swept path must cross.
type Checkpoint struct {
	Index       int        `json:"index"`
	A           types.Vec2 `json:"a"`
	B           types.Vec2 `json:"b"`
	StartFinish bool       `json:"start_finish"`
}

// Wall is one static boundary segment.
type Wall struct {
	A types.Vec2 `json:"a"`
	B types.Vec2 `json:"b"`
}

// Track is an ordered checkpoint sequence plus boundary geometry, produced by
// the editor collaborator and immutable after load.
type Track struct {
	Name        string       `json:"name"`
	Surface     Surface      `json:"surface"`
	Checkpoints []Checkpoint `json:"checkpoints"`
	Walls       []Wall       `json:"walls"`
}

var (
	ErrNoCheckpoints = errors.New("track: no checkpoints")
	ErrStartFinish   = errors.New("track: exactly one start/finish checkpoint required at index 0")
)

// Validate rejects tracks no race may start on.
func (t Track) Validate() error {
	if len(t.Checkpoints) == 0 {
		return ErrNoCheckpoints
	}
	starts := 0
	for i, c := range t.Checkpoints {
		if c.Index != i {
			return fmt.Errorf("track: checkpoint at position %d has index %d", i, c.Index)
		}
		if c.A == c.B {
			return fmt.Errorf("track: checkpoint %d is degenerate", i)
		}
		if c.StartFinish {
			starts++
		}
	}
	if starts != 1 || !t.Checkpoints[0].StartFinish {
		return ErrStartFinish
	}
	return nil
}

// LoadTrack reads a JSON track definition from disk.
func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, fmt.Errorf("track: read %s: %w", path, err)
	}
	var t Track
	if err := json.Unmarshal(data, &t); err != nil {
		return Track{}, fmt.Errorf("track: parse %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return Track{}, err
	}
	return t, nil
}

// StartPose returns the midpoint of the start/finish gate and the racing
// heading, perpendicular to the gate segment.
func (t Track) StartPose() (types.Vec2, float64) {
	gate := t.Checkpoints[0]
	mid := types.Vec2{X: (gate.A.X + gate.B.X) / 2, Y: (gate.A.Y + gate.B.Y) / 2}
	heading := math.Atan2(-(gate.B.X - gate.A.X), gate.B.Y-gate.A.Y)
	return mid, heading
}

// DefaultTrack is a rectangular four-checkpoint circuit used when no track
// file is configured.
func DefaultTrack() Track {
	return Track{
		Name:    "oval-proving-ground",
		Surface: SurfaceAsphalt,
		Checkpoints: []Checkpoint{
			{Index: 0, A: types.Vec2{X: 400, Y: 100}, B: types.Vec2{X: 400, Y: 260}, StartFinish: true},
			{Index: 1, A: types.Vec2{X: 700, Y: 260}, B: types.Vec2{X: 700, Y: 420}},
			{Index: 2, A: types.Vec2{X: 400, Y: 420}, B: types.Vec2{X: 400, Y: 580}},
			{Index: 3, A: types.Vec2{X: 100, Y: 260}, B: types.Vec2{X: 100, Y: 420}},
		},
		Walls: []Wall{
			{A: types.Vec2{X: 20, Y: 20}, B: types.Vec2{X: 780, Y: 20}},
			{A: types.Vec2{X: 780, Y: 20}, B: types.Vec2{X: 780, Y: 660}},
			{A: types.Vec2{X: 780, Y: 660}, B: types.Vec2{X: 20, Y: 660}},
			{A: types.Vec2{X: 20, Y: 660}, B: types.Vec2{X: 20, Y: 20}},
			{A: types.Vec2{X: 220, Y: 200}, B: types.Vec2{X: 580, Y: 200}},
			{A: types.Vec2{X: 580, Y: 200}, B: types.Vec2{X: 580, Y: 480}},
			{A: types.Vec2{X: 580, Y: 480}, B: types.Vec2{X: 220, Y: 480}},
			{A: types.Vec2{X: 220, Y: 480}, B: types.Vec2{X: 220, Y: 200}},
		},
	}
}
