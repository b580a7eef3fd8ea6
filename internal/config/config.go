// Package config centralizes every gameplay and transport tunable. Values
// come from defaults, an optional config file, and MINIGAMES_* environment
// variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// Relay is the address cmd/relayd listens on and clients dial.
	RelayAddr string `mapstructure:"relay_addr"`
	RelayURL  string `mapstructure:"relay_url"`

	RedLightDuration time.Duration `mapstructure:"red_light_duration"`
	CountdownSeconds int           `mapstructure:"countdown_seconds"`
	StartDelay       time.Duration `mapstructure:"start_delay"`
	LightDwellMin    time.Duration `mapstructure:"light_dwell_min"`
	LightDwellMax    time.Duration `mapstructure:"light_dwell_max"`
	FinishZ          float64       `mapstructure:"finish_z"`

	MoveEpsilon      float64       `mapstructure:"move_epsilon"`
	RedGrace         time.Duration `mapstructure:"red_grace"`
	RedSustain       time.Duration `mapstructure:"red_sustain"`
	PositionInterval time.Duration `mapstructure:"position_interval"`
	SettleDelay      time.Duration `mapstructure:"settle_delay"`

	TugDuration  time.Duration `mapstructure:"tug_duration"`
	TugTick      time.Duration `mapstructure:"tug_tick"`
	PullIncrease float64       `mapstructure:"pull_increase"`
	PullDecay    float64       `mapstructure:"pull_decay"`

	RopeThreshold      float64 `mapstructure:"rope_threshold"`
	CenterPitThreshold float64 `mapstructure:"center_pit_threshold"`
	LaneBoundary       float64 `mapstructure:"lane_boundary"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("relay_addr", ":8090")
	v.SetDefault("relay_url", "ws://localhost:8090/realtime")

	v.SetDefault("red_light_duration", "60s")
	v.SetDefault("countdown_seconds", 3)
	v.SetDefault("start_delay", "3s")
	v.SetDefault("light_dwell_min", "3s")
	v.SetDefault("light_dwell_max", "5s")
	v.SetDefault("finish_z", 25.0)

	v.SetDefault("move_epsilon", 1e-4)
	v.SetDefault("red_grace", "300ms")
	v.SetDefault("red_sustain", "100ms")
	v.SetDefault("position_interval", "100ms")
	v.SetDefault("settle_delay", "200ms")

	v.SetDefault("tug_duration", "30s")
	v.SetDefault("tug_tick", "1s")
	v.SetDefault("pull_increase", 0.02)
	v.SetDefault("pull_decay", 0.01)

	v.SetDefault("rope_threshold", 0.3)
	v.SetDefault("center_pit_threshold", 1.0)
	v.SetDefault("lane_boundary", 8.0)
}

// Load resolves the configuration. path may name a config file; empty means
// defaults and environment only. A missing file at an explicit path is an
// error, any other read failure too.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("MINIGAMES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.LightDwellMax < c.LightDwellMin {
		return errors.New("config: light_dwell_max below light_dwell_min")
	}
	if c.RedLightDuration <= 0 || c.TugDuration <= 0 {
		return errors.New("config: round durations must be positive")
	}
	if c.RopeThreshold < 0 || c.CenterPitThreshold < 0 {
		return errors.New("config: rope thresholds must be non-negative")
	}
	if c.LaneBoundary <= 0 {
		return errors.New("config: lane_boundary must be positive")
	}
	return nil
}
