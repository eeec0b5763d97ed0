package progression

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gradestats/internal/curve"
	"github.com/udisondev/gradestats/internal/stat"
)

// recordingTarget captures rule side effects.
type recordingTarget struct {
	attached []*stat.Modifier
	stats    []string
	swapped  []*Config
	free     []int32
	failStat string
}

func (r *recordingTarget) AttachModifier(statName string, m *stat.Modifier) error {
	if statName == r.failStat {
		return fmt.Errorf("attach %q: %w", statName, ErrUnknownStat)
	}
	r.stats = append(r.stats, statName)
	r.attached = append(r.attached, m)
	return nil
}

func (r *recordingTarget) SetConfig(cfg *Config) error {
	r.swapped = append(r.swapped, cfg)
	return nil
}

func (r *recordingTarget) GrantFreeGrades(n int32) {
	r.free = append(r.free, n)
}

func damageConfig() *Config {
	return NewConfig("turret", "basic", 10).
		SetEntry("damage", Entry{Base: 10, Growth: curve.Linear(1, 2)}).
		SetEntry("fire_rate", Entry{Base: 2, Growth: curve.Constant(1)})
}

func TestTrigger_Eligible_Repeating(t *testing.T) {
	t.Parallel()

	tr := Every(2, 3)
	for _, g := range []int32{2, 5, 8, 11, 29} {
		assert.True(t, tr.Eligible(g), "grade %d", g)
	}
	for _, g := range []int32{0, 1, 3, 4, 6, 7, 9, 10} {
		assert.False(t, tr.Eligible(g), "grade %d", g)
	}
}

func TestTrigger_Eligible_Once(t *testing.T) {
	t.Parallel()

	tr := Once(4)
	assert.False(t, tr.Eligible(3))
	assert.True(t, tr.Eligible(4))
	assert.False(t, tr.Eligible(5))
	assert.False(t, tr.Eligible(8))
}

func TestTrigger_Eligible_RepeatMax(t *testing.T) {
	t.Parallel()

	tr := Trigger{Start: 1, RepeatEvery: 2, RepeatMax: 3}

	var fired []int32
	for g := int32(0); g <= 20; g++ {
		if tr.Eligible(g) {
			fired = append(fired, g)
		}
	}
	assert.Equal(t, []int32{1, 3, 5}, fired)
}

func TestTrigger_Validate(t *testing.T) {
	t.Parallel()

	assert.NoError(t, Every(0, 1).Validate())
	assert.ErrorIs(t, Trigger{Start: -1}.Validate(), ErrInvalidTrigger)
	assert.ErrorIs(t, Trigger{RepeatEvery: -2}.Validate(), ErrInvalidTrigger)
	assert.ErrorIs(t, Trigger{RepeatMax: -2}.Validate(), ErrInvalidTrigger)
}

func TestEntry_Value(t *testing.T) {
	t.Parallel()

	e := Entry{Base: 10, Growth: curve.Linear(1, 2)}

	assert.InDelta(t, 15.0, e.Value(5, 10), 1e-9)
	assert.InDelta(t, 10.0, e.Value(0, 10), 1e-9)
	assert.InDelta(t, 20.0, e.Value(10, 10), 1e-9)
	assert.Equal(t, 10.0, e.Value(5, 0), "zero max grade returns unscaled base")

	var noKeys Entry
	noKeys.Base = 10
	assert.Equal(t, 0.0, noKeys.Value(3, 10), "empty curve is a zero multiplier")
}

func TestConfig_Entries(t *testing.T) {
	t.Parallel()

	c := damageConfig()
	assert.Equal(t, []string{"damage", "fire_rate"}, c.Names())

	c.SetEntry("damage", Entry{Base: 20, Growth: curve.Constant(1)})
	assert.Equal(t, []string{"damage", "fire_rate"}, c.Names(), "replacing keeps order")
	assert.Equal(t, 20.0, c.BaseValue("damage", 3))
	assert.Equal(t, 0.0, c.BaseValue("range", 3))

	_, ok := c.Entry("range")
	assert.False(t, ok)
}

func TestConfig_UpgradeCost(t *testing.T) {
	t.Parallel()

	c := damageConfig()
	assert.Equal(t, 0.0, c.UpgradeCostAt(3))

	c.SetUpgradeCost(Entry{Base: 100, Growth: curve.Linear(1, 3)})
	assert.InDelta(t, 200.0, c.UpgradeCostAt(5), 1e-9)
}

func TestConfig_ApplyUpgrade(t *testing.T) {
	t.Parallel()

	elite := NewConfig("turret", "elite", 10)
	payload := stat.Add(5)

	c := damageConfig().
		AddRule(ApplyModifier(Every(2, 3), "damage", payload)).
		AddRule(SwapConfig(Once(5), elite)).
		AddRule(GrantFreeGrade(Once(5), 2))

	target := &recordingTarget{}
	require.NoError(t, c.ApplyUpgrade(3, target))
	assert.Empty(t, target.attached)

	require.NoError(t, c.ApplyUpgrade(2, target))
	require.NoError(t, c.ApplyUpgrade(5, target))

	require.Len(t, target.attached, 2)
	assert.Equal(t, []string{"damage", "damage"}, target.stats)
	assert.NotSame(t, payload, target.attached[0], "payload is a template")
	assert.NotSame(t, target.attached[0], target.attached[1])
	assert.Equal(t, 5.0, target.attached[1].Parameter())

	assert.Equal(t, []*Config{elite}, target.swapped)
	assert.Equal(t, []int32{2}, target.free)
}

func TestConfig_ApplyUpgrade_ContinuesAfterError(t *testing.T) {
	t.Parallel()

	c := damageConfig().
		AddRule(ApplyModifier(Once(1), "damage", stat.Add(1))).
		AddRule(ApplyModifier(Once(1), "fire_rate", stat.Add(1)))

	target := &recordingTarget{failStat: "damage"}
	err := c.ApplyUpgrade(1, target)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStat))
	assert.Equal(t, []string{"fire_rate"}, target.stats)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		c := damageConfig().
			AddRule(ApplyModifier(Once(1), "damage", stat.GradeScaled(stat.Add(0), 2))).
			AddRule(GrantFreeGrade(Once(2), 1))
		assert.NoError(t, c.Validate())
	})

	tests := []struct {
		name    string
		cfg     func() *Config
		wantErr error
	}{
		{"zero max grade", func() *Config {
			return NewConfig("turret", "x", 0).SetEntry("damage", Entry{Base: 1, Growth: curve.Constant(1)})
		}, ErrDivisionByZero},
		{"missing growth key", func() *Config {
			return damageConfig().SetEntry("range", Entry{Base: 3})
		}, ErrMissingGrowthKey},
		{"grade scaled zero divisor", func() *Config {
			return damageConfig().AddRule(ApplyModifier(Once(1), "damage", stat.GradeScaled(stat.Add(0), 0)))
		}, ErrDivisionByZero},
		{"rule on unknown stat", func() *Config {
			return damageConfig().AddRule(ApplyModifier(Once(1), "armor", stat.Add(1)))
		}, ErrUnknownStat},
		{"bad trigger", func() *Config {
			return damageConfig().AddRule(GrantFreeGrade(Trigger{Start: -1}, 1))
		}, ErrInvalidTrigger},
		{"zero free grades", func() *Config {
			return damageConfig().AddRule(GrantFreeGrade(Once(1), 0))
		}, ErrInvalidRule},
		{"swap to other kind", func() *Config {
			return damageConfig().AddRule(SwapConfig(Once(1), NewConfig("wall", "stone", 5)))
		}, ErrInvalidRule},
		{"bad cost curve", func() *Config {
			return damageConfig().SetUpgradeCost(Entry{Base: 10})
		}, ErrMissingGrowthKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg().Validate()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_Update(t *testing.T) {
	t.Parallel()

	c := damageConfig()
	var notified []*Config
	c.Changed().Subscribe(func(cfg *Config) { notified = append(notified, cfg) })

	next := NewConfig("ignored", "ignored", 20).
		SetEntry("damage", Entry{Base: 50, Growth: curve.Constant(1)}).
		AddRule(GrantFreeGrade(Once(1), 1)).
		SetUpgradeCost(Entry{Base: 5, Growth: curve.Constant(1)})

	c.Update(next)

	require.Len(t, notified, 1)
	assert.Same(t, c, notified[0])
	assert.Equal(t, "turret", c.Kind(), "kind is kept")
	assert.Equal(t, "basic", c.Name())
	assert.Equal(t, int32(20), c.MaxGrade())
	assert.Equal(t, []string{"damage"}, c.Names())
	assert.Equal(t, 50.0, c.BaseValue("damage", 1))
	assert.Len(t, c.Rules(), 1)
	assert.Equal(t, 5.0, c.UpgradeCostAt(1))

	c.NotifyChanged()
	assert.Len(t, notified, 2)
}

func TestRuleKind_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "apply_modifier", RuleApplyModifier.String())
	assert.Equal(t, "swap_config", RuleSwapConfig.String())
	assert.Equal(t, "free_grades", RuleGrantFreeGrade.String())
	assert.Equal(t, "RuleKind(9)", RuleKind(9).String())
}
