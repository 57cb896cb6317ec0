package race

import (
	"sort"

	"slipstream/internal/shared/types"
)

// StandingEntry pairs a car with its progress for ranking.
type StandingEntry struct {
	CarID    string
	Progress Progress
}

// ComputeStandings orders cars by race progress: lap count descending, next
// expected checkpoint descending as a within-lap proxy, total race time
// ascending, then car identifier. The identifier tiebreak guarantees a total
// order, so no two cars ever share a rank.
func ComputeStandings(entries []StandingEntry) []types.Standing {
	sorted := make([]StandingEntry, len(entries))
	copy(sorted, entries)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.Progress.Lap != b.Progress.Lap {
			return a.Progress.Lap > b.Progress.Lap
		}
		if a.Progress.NextCheckpoint != b.Progress.NextCheckpoint {
			return a.Progress.NextCheckpoint > b.Progress.NextCheckpoint
		}
		if a.Progress.RaceTime != b.Progress.RaceTime {
			return a.Progress.RaceTime < b.Progress.RaceTime
		}
		return a.CarID < b.CarID
	})

	out := make([]types.Standing, len(sorted))
	for i, e := range sorted {
		out[i] = types.Standing{
			Rank:           i + 1,
			CarID:          e.CarID,
			Lap:            e.Progress.Lap,
			NextCheckpoint: e.Progress.NextCheckpoint,
			RaceTime:       e.Progress.RaceTime,
			Finished:       e.Progress.Finished,
		}
	}
	return out
}
