package grid

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"slipstream/internal/race"
	"slipstream/internal/simulation"
)

// Entry is one registered race participant.
type Entry struct {
	EntryID     string
	CarID       string
	DisplayName string
	SeedTime    float64 // best qualifying lap in seconds, 0 when unknown
	IsBot       bool
	JoinedAt    time.Time
}

// Roster collects race entries and forms the starting grid. Seeded entries
// line up ahead of unseeded ones; join order breaks ties.
type Roster struct {
	mu      sync.Mutex
	entries []*Entry
}

func NewRoster() *Roster {
	return &Roster{}
}

// Join registers a car for the race. A car identifier is generated when the
// caller does not bring one.
func (r *Roster) Join(carID, displayName string, seedTime float64, isBot bool) Entry {
	if carID == "" {
		carID = "car_" + uuid.NewString()[:8]
	}
	e := &Entry{
		EntryID:     uuid.NewString(),
		CarID:       carID,
		DisplayName: displayName,
		SeedTime:    seedTime,
		IsBot:       isBot,
		JoinedAt:    time.Now().UTC(),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	return *e
}

// Leave withdraws an entry before the start.
func (r *Roster) Leave(entryID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.EntryID == entryID {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of registered entries.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Spawns orders the grid and lays entries out on staggered slots behind the
// track's start line, pole position first.
func (r *Roster) Spawns(track race.Track) []simulation.CarSpawn {
	r.mu.Lock()
	ordered := make([]*Entry, len(r.entries))
	copy(ordered, r.entries)
	r.mu.Unlock()

	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		switch {
		case a.SeedTime > 0 && b.SeedTime > 0 && a.SeedTime != b.SeedTime:
			return a.SeedTime < b.SeedTime
		case (a.SeedTime > 0) != (b.SeedTime > 0):
			return a.SeedTime > 0
		default:
			return a.JoinedAt.Before(b.JoinedAt)
		}
	})

	spawns := make([]simulation.CarSpawn, len(ordered))
	for i, e := range ordered {
		pos, angle := simulation.GridSlot(track, i)
		spawns[i] = simulation.CarSpawn{
			CarID:       e.CarID,
			DisplayName: e.DisplayName,
			IsBot:       e.IsBot,
			Position:    pos,
			Angle:       angle,
		}
	}
	return spawns
}
