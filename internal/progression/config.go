// Package progression holds the static progression data of an entity kind:
// base stat entries, the maximum grade, and the upgrade rules that mutate a
// host's modifier chain as its grade advances.
package progression

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/udisondev/gradestats/internal/signal"
	"github.com/udisondev/gradestats/internal/stat"
)

var (
	ErrDivisionByZero   = errors.New("division by zero")
	ErrMissingGrowthKey = errors.New("growth curve has no keys")
	ErrInvalidTrigger   = errors.New("invalid rule trigger")
	ErrInvalidRule      = errors.New("invalid rule")
	ErrUnknownStat      = errors.New("unknown stat")
)

// Target is the host side of rule application.
type Target interface {
	AttachModifier(statName string, m *stat.Modifier) error
	SetConfig(cfg *Config) error
	GrantFreeGrades(n int32)
}

// Config is the static definition for an entity kind.
//
// Kind identifies the host specialization the config can be bound to; hosts
// refuse configs of another kind. Config data is treated as immutable by
// hosts; authored changes go through Update, which notifies bound hosts.
type Config struct {
	kind     string
	name     string
	maxGrade int32

	entries map[string]Entry
	names   []string
	rules   []Rule
	cost    *Entry

	changed *signal.Signal[*Config]
}

// NewConfig creates an empty config.
func NewConfig(kind, name string, maxGrade int32) *Config {
	return &Config{
		kind:     kind,
		name:     name,
		maxGrade: maxGrade,
		entries:  make(map[string]Entry),
		changed:  signal.New[*Config]("config:" + name),
	}
}

func (c *Config) Kind() string    { return c.kind }
func (c *Config) Name() string    { return c.name }
func (c *Config) MaxGrade() int32 { return c.maxGrade }

// SetEntry adds or replaces the base entry for a stat.
func (c *Config) SetEntry(statName string, e Entry) *Config {
	if _, ok := c.entries[statName]; !ok {
		c.names = append(c.names, statName)
	}
	c.entries[statName] = e
	return c
}

// Entry returns the base entry for a stat.
func (c *Config) Entry(statName string) (Entry, bool) {
	e, ok := c.entries[statName]
	return e, ok
}

// Names returns stat names in declaration order.
func (c *Config) Names() []string {
	return slices.Clone(c.names)
}

// BaseValue returns the grade-dependent base value of a stat, 0 if the stat
// has no entry.
func (c *Config) BaseValue(statName string, grade int32) float64 {
	e, ok := c.entries[statName]
	if !ok {
		return 0
	}
	return e.Value(grade, c.maxGrade)
}

// AddRule appends a rule. Rules apply in declaration order.
func (c *Config) AddRule(r Rule) *Config {
	c.rules = append(c.rules, r)
	return c
}

// Rules returns a copy of the rule list.
func (c *Config) Rules() []Rule {
	return slices.Clone(c.rules)
}

// SetUpgradeCost sets the cost curve of normal grade advances.
func (c *Config) SetUpgradeCost(e Entry) *Config {
	c.cost = &e
	return c
}

// UpgradeCostAt returns the cost of advancing to grade. 0 without a cost entry.
func (c *Config) UpgradeCostAt(grade int32) float64 {
	if c.cost == nil {
		return 0
	}
	return c.cost.Value(grade, c.maxGrade)
}

// Changed returns the signal emitted after Update.
func (c *Config) Changed() *signal.Signal[*Config] { return c.changed }

// Update replaces the authored data of c with that of from, keeping c's
// identity and subscribers, then emits Changed. Kind and name are kept.
func (c *Config) Update(from *Config) {
	c.maxGrade = from.maxGrade
	c.entries = make(map[string]Entry, len(from.entries))
	for k, v := range from.entries {
		c.entries[k] = v
	}
	c.names = slices.Clone(from.names)
	c.rules = slices.Clone(from.rules)
	c.cost = nil
	if from.cost != nil {
		cost := *from.cost
		c.cost = &cost
	}

	slog.Debug("stats config updated", "config", c.name, "kind", c.kind)
	c.changed.Emit(c)
}

// NotifyChanged emits Changed without modifying data.
func (c *Config) NotifyChanged() {
	c.changed.Emit(c)
}

// Validate reports configuration errors: a zero max grade, entries without
// growth keys, malformed rules and zero grade-scaled divisors.
func (c *Config) Validate() error {
	var errs []error
	if c.maxGrade <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_grade %d", ErrDivisionByZero, c.maxGrade))
	}
	for _, name := range c.names {
		if c.entries[name].Growth.Len() == 0 {
			errs = append(errs, fmt.Errorf("stat %q: %w", name, ErrMissingGrowthKey))
		}
	}
	if c.cost != nil && c.cost.Growth.Len() == 0 {
		errs = append(errs, fmt.Errorf("upgrade cost: %w", ErrMissingGrowthKey))
	}
	for i, r := range c.rules {
		if err := r.validate(c); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s): %w", i, r.kind, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config %q: %w", c.name, err)
	}
	return nil
}

// ApplyUpgrade applies every rule eligible at grade to target, in declaration
// order. The rule list is snapshotted first, so a SwapConfig rule does not
// change which rules run for this grade. A failing rule does not stop the
// remaining ones; all failures are returned joined.
func (c *Config) ApplyUpgrade(grade int32, target Target) error {
	rules := c.rules

	var errs []error
	for i, r := range rules {
		if !r.Eligible(grade) {
			continue
		}

		slog.Debug("applying upgrade rule",
			"config", c.name,
			"rule", i,
			"kind", r.kind,
			"grade", grade)

		if err := r.apply(target); err != nil {
			errs = append(errs, fmt.Errorf("rule %d (%s) at grade %d: %w", i, r.kind, grade, err))
		}
	}
	return errors.Join(errs...)
}
