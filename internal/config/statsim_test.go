package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadStatSim_MissingFile(t *testing.T) {
	cfg, err := LoadStatSim(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultStatSim(), cfg)
}

func TestLoadStatSim_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statsim.yaml")
	content := `log_level: debug
data_dir: defs
config: stone_wall
upgrades: 3
budget: 1500
buffs:
  - {stat: armor, value: 2, source: "buff:shield"}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadStatSim(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "defs", cfg.DataDir)
	assert.Equal(t, "stone_wall", cfg.Config)
	assert.Equal(t, 3, cfg.Upgrades)
	assert.Equal(t, 1500.0, cfg.Budget)
	require.Len(t, cfg.Buffs, 1)
	assert.Equal(t, Buff{Stat: "armor", Value: 2, Source: "buff:shield"}, cfg.Buffs[0])
}

func TestLoadStatSim_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "statsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("config: stone_wall\nupgrades: 3\n"), 0o644))

	t.Setenv("STATSIM_CONFIG", "elite_turret")
	t.Setenv("STATSIM_LOG_LEVEL", "warn")

	cfg, err := LoadStatSim(path)
	require.NoError(t, err)

	assert.Equal(t, "elite_turret", cfg.Config, "env wins over file")
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Upgrades, "unset env keeps file value")
	assert.Equal(t, "config/stats", cfg.DataDir, "unset env keeps default")
}

func TestLoadStatSim_Errors(t *testing.T) {
	dir := t.TempDir()

	broken := filepath.Join(dir, "broken.yaml")
	require.NoError(t, os.WriteFile(broken, []byte("upgrades: [1\n"), 0o644))
	_, err := LoadStatSim(broken)
	assert.ErrorContains(t, err, "parsing config")

	t.Setenv("STATSIM_UPGRADES", "many")
	_, err = LoadStatSim(filepath.Join(dir, "absent.yaml"))
	assert.ErrorContains(t, err, "parse env")
}
