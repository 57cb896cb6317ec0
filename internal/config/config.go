package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds runtime settings for the race server.
type Config struct {
	ListenAddr   string
	RaceID       string
	TrackFile    string
	TotalLaps    int
	TickRate     int
	SnapshotRate int
	PhysicsModel string // arcade|realistic
}

// Load reads configuration from an optional YAML file and RACE_* environment
// variables, falling back to defaults suitable for local play.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetDefault("listen_addr", ":9003")
	v.SetDefault("race_id", "")
	v.SetDefault("track_file", "")
	v.SetDefault("total_laps", 3)
	v.SetDefault("tick_rate", 60)
	v.SetDefault("snapshot_rate", 30)
	v.SetDefault("physics_model", "arcade")

	v.SetEnvPrefix("RACE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := Config{
		ListenAddr:   v.GetString("listen_addr"),
		RaceID:       v.GetString("race_id"),
		TrackFile:    v.GetString("track_file"),
		TotalLaps:    v.GetInt("total_laps"),
		TickRate:     v.GetInt("tick_rate"),
		SnapshotRate: v.GetInt("snapshot_rate"),
		PhysicsModel: v.GetString("physics_model"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.TotalLaps <= 0 {
		return fmt.Errorf("config: total_laps must be positive, got %d", c.TotalLaps)
	}
	if c.TickRate <= 0 {
		return fmt.Errorf("config: tick_rate must be positive, got %d", c.TickRate)
	}
	if c.SnapshotRate <= 0 || c.SnapshotRate > c.TickRate {
		return fmt.Errorf("config: snapshot_rate must be in 1..tick_rate, got %d", c.SnapshotRate)
	}
	switch c.PhysicsModel {
	case "arcade", "realistic":
	default:
		return fmt.Errorf("config: unknown physics_model %q", c.PhysicsModel)
	}
	return nil
}
