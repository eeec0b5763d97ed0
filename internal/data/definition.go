package data

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/gradestats/internal/progression"
	"github.com/udisondev/gradestats/internal/stat"
)

var (
	ErrInvalidDefinition = errors.New("invalid stats definition")
	ErrDuplicateConfig   = errors.New("duplicate config name")
	ErrUnknownConfig     = errors.New("unknown config")
)

// configDef is one YAML document describing a stats config.
//
//	kind: turret
//	name: basic_turret
//	max_grade: 10
//	upgrade_cost: {base: 100, growth: [{at: 0, value: 1}, {at: 1, value: 5}]}
//	stats:
//	  - {name: damage, base: 10, growth: [{at: 0, value: 1}, {at: 1, value: 2}]}
//	rules:
//	  - {start: 2, every: 3, apply_modifier: {stat: damage, kind: add, value: 5}}
//	  - {start: 5, swap_config: elite_turret}
//	  - {start: 4, free_grades: 1}
type configDef struct {
	Kind        string             `yaml:"kind"`
	Name        string             `yaml:"name"`
	MaxGrade    int32              `yaml:"max_grade"`
	UpgradeCost *progression.Entry `yaml:"upgrade_cost"`
	Stats       []statDef          `yaml:"stats"`
	Rules       []ruleDef          `yaml:"rules"`

	source string
}

type statDef struct {
	Name              string `yaml:"name"`
	progression.Entry `yaml:",inline"`
}

type ruleDef struct {
	progression.Trigger `yaml:",inline"`

	ApplyModifier *modifierDef `yaml:"apply_modifier"`
	SwapConfig    string       `yaml:"swap_config"`
	FreeGrades    int32        `yaml:"free_grades"`
}

type modifierDef struct {
	Stat     string       `yaml:"stat"`
	Kind     string       `yaml:"kind"`
	Value    float64      `yaml:"value"`
	Priority int32        `yaml:"priority"`
	Min      float64      `yaml:"min"`
	Max      float64      `yaml:"max"`
	Divisor  float64      `yaml:"divisor"`
	Source   string       `yaml:"source"`
	Inner    *modifierDef `yaml:"inner"`
}

// parse decodes every YAML document of r. source names r in errors.
func parse(r io.Reader, source string) ([]configDef, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var defs []configDef
	for {
		var def configDef
		err := dec.Decode(&def)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", source, err)
		}
		if def.Name == "" || def.Kind == "" {
			return nil, fmt.Errorf("%w: %s: document %d needs kind and name",
				ErrInvalidDefinition, source, len(defs))
		}
		def.source = source
		defs = append(defs, def)
	}
	return defs, nil
}

// newConfig builds the config without rules; rules need every config of the
// set to exist first.
func (d *configDef) newConfig() *progression.Config {
	cfg := progression.NewConfig(d.Kind, d.Name, d.MaxGrade)
	for _, s := range d.Stats {
		cfg.SetEntry(s.Name, s.Entry)
	}
	if d.UpgradeCost != nil {
		cfg.SetUpgradeCost(*d.UpgradeCost)
	}
	return cfg
}

// addRules appends d's rules to cfg, resolving swap targets through lookup.
func (d *configDef) addRules(cfg *progression.Config, lookup func(string) *progression.Config) error {
	for i, r := range d.Rules {
		rule, err := r.build(lookup)
		if err != nil {
			return fmt.Errorf("%s: config %q rule %d: %w", d.source, d.Name, i, err)
		}
		cfg.AddRule(rule)
	}
	return nil
}

func (r ruleDef) build(lookup func(string) *progression.Config) (progression.Rule, error) {
	set := 0
	if r.ApplyModifier != nil {
		set++
	}
	if r.SwapConfig != "" {
		set++
	}
	if r.FreeGrades != 0 {
		set++
	}
	if set != 1 {
		return progression.Rule{}, fmt.Errorf("%w: rule needs exactly one of apply_modifier, swap_config, free_grades",
			ErrInvalidDefinition)
	}

	switch {
	case r.ApplyModifier != nil:
		if r.ApplyModifier.Stat == "" {
			return progression.Rule{}, fmt.Errorf("%w: apply_modifier without stat", ErrInvalidDefinition)
		}
		m, err := r.ApplyModifier.build()
		if err != nil {
			return progression.Rule{}, err
		}
		return progression.ApplyModifier(r.Trigger, r.ApplyModifier.Stat, m), nil
	case r.SwapConfig != "":
		target := lookup(r.SwapConfig)
		if target == nil {
			return progression.Rule{}, fmt.Errorf("%w: %q", ErrUnknownConfig, r.SwapConfig)
		}
		return progression.SwapConfig(r.Trigger, target), nil
	default:
		return progression.GrantFreeGrade(r.Trigger, r.FreeGrades), nil
	}
}

func (m *modifierDef) build() (*stat.Modifier, error) {
	kind, err := stat.ParseKind(m.Kind)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}

	var mod *stat.Modifier
	switch kind {
	case stat.KindAdd:
		mod = stat.Add(m.Value)
	case stat.KindMultiplySum:
		mod = stat.MultiplySum(m.Value)
	case stat.KindResetToBase:
		mod = stat.ResetToBase()
	case stat.KindResetToSumBeforeMultipliers:
		mod = stat.ResetToSumBeforeMultipliers()
	case stat.KindSetToValue:
		mod = stat.SetToValue(m.Value)
	case stat.KindAddPercent:
		mod = stat.AddPercent(m.Value)
	case stat.KindClamp:
		mod = stat.Clamp(m.Min, m.Max)
	case stat.KindGradeScaled:
		if m.Inner == nil {
			return nil, fmt.Errorf("%w: grade_scaled without inner", ErrInvalidDefinition)
		}
		inner, err := m.Inner.build()
		if err != nil {
			return nil, err
		}
		// GradeScaled inherits priority and source from inner unless set here
		if m.Priority != 0 {
			inner.WithPriority(m.Priority)
		}
		if m.Source != "" {
			inner.WithSource(m.Source)
		}
		return stat.GradeScaled(inner, m.Divisor), nil
	default:
		return nil, fmt.Errorf("%w: unsupported modifier kind %v", ErrInvalidDefinition, kind)
	}

	return mod.WithPriority(m.Priority).WithSource(m.Source), nil
}
