package race

import (
	"fmt"

	"slipstream/internal/shared/types"
)

// Progress tracks one car's advance through the checkpoint order. Mutated
// only by the Sequencer; reset wholesale on race restart.
type Progress struct {
	NextCheckpoint int
	Lap            int
	LapTime        float64
	BestLap        float64
	HasBest        bool
	RaceTime       float64
	Finished       bool

	// started flips when the car first crosses the start/finish gate, which
	// arms lap timing instead of completing a lap.
	started bool
}

// NewProgress returns fresh lap state: the first expected gate is the
// start/finish checkpoint.
func NewProgress() Progress {
	return Progress{}
}

// AdvanceResult reports what a tick of checkpoint evaluation changed.
type AdvanceResult struct {
	LapCompleted bool
	LapTime      float64 // elapsed time of the completed lap
	RaceFinished bool
}

// Sequencer validates checkpoint order and counts laps. Crossing any gate
// other than the expected one has no effect, so checkpoints cannot be
// skipped or crossed backward for credit.
type Sequencer struct {
	track     Track
	totalLaps int
}

// NewSequencer builds a sequencer for a validated track.
func NewSequencer(track Track, totalLaps int) (*Sequencer, error) {
	if err := track.Validate(); err != nil {
		return nil, err
	}
	if totalLaps <= 0 {
		return nil, fmt.Errorf("race: total laps must be positive, got %d", totalLaps)
	}
	return &Sequencer{track: track, totalLaps: totalLaps}, nil
}

// TotalLaps returns the configured race distance.
func (s *Sequencer) TotalLaps() int {
	return s.totalLaps
}

// Advance accumulates timers and tests the car's swept path prev->cur against
// the expected gate only. The swept test keeps fast cars from stepping over a
// gate between two position samples.
func (s *Sequencer) Advance(p *Progress, prev, cur types.Vec2, dt float64) AdvanceResult {
	if p.Finished {
		return AdvanceResult{}
	}

	p.RaceTime += dt
	if p.started {
		p.LapTime += dt
	}

	gate := s.track.Checkpoints[p.NextCheckpoint]
	if !segmentsCross(prev, cur, gate.A, gate.B) {
		return AdvanceResult{}
	}

	if gate.StartFinish {
		if !p.started {
			// First crossing arms the lap clock.
			p.started = true
			p.LapTime = 0
			p.NextCheckpoint = s.wrap(1)
			return AdvanceResult{}
		}

		lapTime := p.LapTime
		p.Lap++
		if !p.HasBest || lapTime < p.BestLap {
			p.BestLap = lapTime
			p.HasBest = true
		}
		p.LapTime = 0
		p.NextCheckpoint = s.wrap(1)

		res := AdvanceResult{LapCompleted: true, LapTime: lapTime}
		if p.Lap >= s.totalLaps {
			p.Finished = true
			res.RaceFinished = true
		}
		return res
	}

	p.NextCheckpoint = s.wrap(p.NextCheckpoint + 1)
	return AdvanceResult{}
}

func (s *Sequencer) wrap(i int) int {
	return i % len(s.track.Checkpoints)
}
