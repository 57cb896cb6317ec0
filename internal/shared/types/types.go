package types

import "time"

// Vec2 represents a position or vector in world space.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Controls is the per-tick normalized control input for one car.
// Out-of-range values are clamped by the simulation, never rejected.
type Controls struct {
	CarID    string  `json:"car_id"`
	Sequence uint64  `json:"sequence"`
	Throttle float64 `json:"throttle"` // -1..1
	Steering float64 `json:"steering"` // -1..1
	Brake    float64 `json:"brake"`    // 0..1
	ClientMS int64   `json:"client_ms"`
}

// CarSnapshot is the authoritative replicated state for one car.
// Consumers read it; mutating a snapshot never touches the world.
type CarSnapshot struct {
	CarID       string `json:"car_id"`
	DisplayName string `json:"display_name"`
	IsBot       bool   `json:"is_bot"`

	Position     Vec2    `json:"position"`
	Velocity     Vec2    `json:"velocity"`
	Angle        float64 `json:"angle"` // radians
	Speed        float64 `json:"speed"`
	ForwardSpeed float64 `json:"forward_speed"`
	Sliding      bool    `json:"sliding"`

	CrashPhase string  `json:"crash_phase"` // normal|crashed|recovering
	RespawnIn  float64 `json:"respawn_in,omitempty"`
	Stuck      bool    `json:"stuck,omitempty"`

	Lap            int      `json:"lap"`
	NextCheckpoint int      `json:"next_checkpoint"`
	LapTime        float64  `json:"lap_time"`
	BestLapTime    *float64 `json:"best_lap_time,omitempty"`
	RaceTime       float64  `json:"race_time"`
	Finished       bool     `json:"finished"`

	TopSpeed         float64 `json:"top_speed"`
	DistanceTraveled float64 `json:"distance_traveled"`
}

// Standing is one row of the live race order.
type Standing struct {
	Rank           int     `json:"rank"`
	CarID          string  `json:"car_id"`
	Lap            int     `json:"lap"`
	NextCheckpoint int     `json:"next_checkpoint"`
	RaceTime       float64 `json:"race_time"`
	Finished       bool    `json:"finished"`
}

// RaceEvent tracks state changes worth UI/audio feedback.
type RaceEvent struct {
	Type       string  `json:"type"` // impact|crash|lap_completed|race_finished
	CarID      string  `json:"car_id,omitempty"`
	Lap        int     `json:"lap,omitempty"`
	LapTime    float64 `json:"lap_time,omitempty"`
	Severity   float64 `json:"severity,omitempty"`
	Point      Vec2    `json:"point"`
	Normal     Vec2    `json:"normal"`
	OccurredMS int64   `json:"occurred_ms"`
}

// RaceState is replicated to all clients.
type RaceState struct {
	RaceID    string                 `json:"race_id"`
	TrackName string                 `json:"track_name"`
	Tick      uint64                 `json:"tick"`
	TotalLaps int                    `json:"total_laps"`
	CreatedAt time.Time              `json:"created_at"`
	Cars      map[string]CarSnapshot `json:"cars"`
	Standings []Standing             `json:"standings"`
	Events    []RaceEvent            `json:"events"`
}

// ClientEnvelope is sent from client to server.
type ClientEnvelope struct {
	Type  string    `json:"type"` // hello|input|ping
	Input *Controls `json:"input,omitempty"`
}

// ServerEnvelope is sent from server to client.
type ServerEnvelope struct {
	Type     string     `json:"type"` // welcome|state|pong|error
	Tick     uint64     `json:"tick,omitempty"`
	State    *RaceState `json:"state,omitempty"`
	ServerMS int64      `json:"server_ms,omitempty"`
	Message  string     `json:"message,omitempty"`
	AckSeq   uint64     `json:"ack_seq,omitempty"`
}
