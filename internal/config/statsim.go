package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// StatSim holds all configuration for the statsim tool.
type StatSim struct {
	Run `yaml:",inline"`

	// Temporary modifiers attached before the run
	Buffs []Buff `yaml:"buffs"`
}

// Run holds the scalar settings; each can be overridden by a STATSIM_* variable.
type Run struct {
	LogLevel string `yaml:"log_level" env:"STATSIM_LOG_LEVEL"` // debug, info, warn, error

	// Definitions
	DataDir string `yaml:"data_dir" env:"STATSIM_DATA_DIR"`
	Config  string `yaml:"config"   env:"STATSIM_CONFIG"` // config name to instantiate

	Upgrades int     `yaml:"upgrades" env:"STATSIM_UPGRADES"` // 0 upgrades to max grade
	Budget   float64 `yaml:"budget"   env:"STATSIM_BUDGET"`   // 0 disables upgrade costs
	Watch    bool    `yaml:"watch"    env:"STATSIM_WATCH"`    // reload definitions on SIGHUP after the run
}

// Buff is a source-tagged additive modifier attached by statsim.
type Buff struct {
	Stat   string  `yaml:"stat"`
	Value  float64 `yaml:"value"`
	Source string  `yaml:"source"`
}

// DefaultStatSim returns StatSim config with sensible defaults.
func DefaultStatSim() StatSim {
	return StatSim{
		Run: Run{
			LogLevel: "info",
			DataDir:  "config/stats",
			Config:   "basic_turret",
		},
	}
}

// LoadStatSim loads statsim config from a YAML file, then applies STATSIM_*
// environment overrides. If the file doesn't exist, defaults are used.
func LoadStatSim(path string) (StatSim, error) {
	cfg := DefaultStatSim()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := env.Parse(&cfg.Run); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
