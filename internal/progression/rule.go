package progression

import (
	"fmt"

	"github.com/udisondev/gradestats/internal/stat"
)

// RuleKind is the closed set of upgrade rule variants.
type RuleKind uint8

const (
	RuleApplyModifier RuleKind = iota // attach a modifier to a named stat
	RuleSwapConfig                    // replace the host's config
	RuleGrantFreeGrade                // advance the host by extra grades at no cost
)

func (k RuleKind) String() string {
	switch k {
	case RuleApplyModifier:
		return "apply_modifier"
	case RuleSwapConfig:
		return "swap_config"
	case RuleGrantFreeGrade:
		return "free_grades"
	default:
		return fmt.Sprintf("RuleKind(%d)", k)
	}
}

// Trigger decides at which grades a rule fires.
//
// A rule fires at Start. With RepeatEvery > 0 it fires again every RepeatEvery
// grades after Start; RepeatMax > 0 caps the total number of firings
// (including the one at Start).
type Trigger struct {
	Start       int32 `yaml:"start"`
	RepeatEvery int32 `yaml:"every"`
	RepeatMax   int32 `yaml:"max"`
}

// Once returns a trigger firing only at grade.
func Once(grade int32) Trigger {
	return Trigger{Start: grade}
}

// Every returns a trigger firing at start and every interval grades after it.
func Every(start, interval int32) Trigger {
	return Trigger{Start: start, RepeatEvery: interval}
}

// Eligible reports whether the trigger fires at grade. Pure function of grade:
// the firing index (grade-Start)/RepeatEvery stands in for a stored counter.
func (t Trigger) Eligible(grade int32) bool {
	if grade < t.Start {
		return false
	}
	if t.RepeatEvery <= 0 {
		return grade == t.Start
	}

	offset := grade - t.Start
	if offset%t.RepeatEvery != 0 {
		return false
	}
	return t.RepeatMax <= 0 || offset/t.RepeatEvery < t.RepeatMax
}

// Validate reports malformed trigger parameters.
func (t Trigger) Validate() error {
	if t.Start < 0 || t.RepeatEvery < 0 || t.RepeatMax < 0 {
		return fmt.Errorf("%w: start=%d every=%d max=%d",
			ErrInvalidTrigger, t.Start, t.RepeatEvery, t.RepeatMax)
	}
	return nil
}

// Rule is an upgrade rule: a trigger plus one variant payload.
type Rule struct {
	Trigger

	kind     RuleKind
	stat     string
	modifier *stat.Modifier
	config   *Config
	grades   int32
}

// ApplyModifier returns a rule attaching a copy of m to statName each time it fires.
func ApplyModifier(t Trigger, statName string, m *stat.Modifier) Rule {
	return Rule{Trigger: t, kind: RuleApplyModifier, stat: statName, modifier: m}
}

// SwapConfig returns a rule replacing the host's config with cfg.
func SwapConfig(t Trigger, cfg *Config) Rule {
	return Rule{Trigger: t, kind: RuleSwapConfig, config: cfg}
}

// GrantFreeGrade returns a rule advancing the host by n extra grades.
func GrantFreeGrade(t Trigger, n int32) Rule {
	return Rule{Trigger: t, kind: RuleGrantFreeGrade, grades: n}
}

func (r Rule) Kind() RuleKind           { return r.kind }
func (r Rule) Stat() string             { return r.stat }
func (r Rule) Modifier() *stat.Modifier { return r.modifier }
func (r Rule) Config() *Config          { return r.config }
func (r Rule) Grades() int32            { return r.grades }

// apply executes the rule payload against target.
func (r Rule) apply(target Target) error {
	switch r.kind {
	case RuleApplyModifier:
		return target.AttachModifier(r.stat, r.modifier.Clone())
	case RuleSwapConfig:
		return target.SetConfig(r.config)
	case RuleGrantFreeGrade:
		target.GrantFreeGrades(r.grades)
		return nil
	default:
		panic(fmt.Sprintf("progression: unhandled rule kind %v", r.kind))
	}
}

// validate checks the rule against the config declaring it.
func (r Rule) validate(c *Config) error {
	if err := r.Trigger.Validate(); err != nil {
		return err
	}

	switch r.kind {
	case RuleApplyModifier:
		if r.modifier == nil {
			return fmt.Errorf("%w: apply_modifier without modifier", ErrInvalidRule)
		}
		if _, ok := c.entries[r.stat]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownStat, r.stat)
		}
		return validateModifier(r.modifier)
	case RuleSwapConfig:
		if r.config == nil {
			return fmt.Errorf("%w: swap_config without config", ErrInvalidRule)
		}
		if r.config.Kind() != c.Kind() {
			return fmt.Errorf("%w: swap to %q (kind %q) from kind %q",
				ErrInvalidRule, r.config.Name(), r.config.Kind(), c.Kind())
		}
	case RuleGrantFreeGrade:
		if r.grades <= 0 {
			return fmt.Errorf("%w: free_grades must be positive, got %d", ErrInvalidRule, r.grades)
		}
	}
	return nil
}

func validateModifier(m *stat.Modifier) error {
	if m.Kind() != stat.KindGradeScaled {
		return nil
	}
	if m.Divisor() == 0 {
		return fmt.Errorf("%w: grade_scaled divisor", ErrDivisionByZero)
	}
	return validateModifier(m.Inner())
}
