// Package stat computes derived numeric attributes from a base value and an
// ordered chain of modifiers.
//
// Evaluation runs in two phases over the priority-sorted modifier list:
//  1. additive: every non-multiplicative modifier folds into the running value;
//  2. multiplicative: every multiplicative modifier runs against the running
//     value, the base value and the additive total snapshotted after phase 1.
//
// Priority orders modifiers within a phase only; an additive modifier always
// runs before a multiplicative one regardless of priority.
package stat

import (
	"log/slog"
	"slices"
	"sort"

	"github.com/udisondev/gradestats/internal/signal"
)

// BaseSource yields the stat's current base value.
type BaseSource func() float64

// GradeChange is emitted by a Host when its grade advances.
type GradeChange struct {
	Before int32
	After  int32
	Free   bool // advanced by a free grade grant, no cost paid
}

// Host is the entity side a Stat is bound to.
// Grade-scaled modifiers read the grade and listen for its changes.
type Host interface {
	Grade() int32
	GradeChanged() *signal.Signal[GradeChange]
}

// Change describes a recalculated stat value.
type Change struct {
	Stat   string
	Before float64
	After  float64
	Delta  float64
}

// Stat owns a base value source and an ordered list of modifiers.
//
// Not safe for concurrent use: the owning host serializes all calls.
type Stat struct {
	name      string
	base      BaseSource
	host      Host
	modifiers []*Modifier

	value       float64
	valid       bool
	calculating bool

	changed *signal.Signal[Change]
}

// New creates a stat. host may be nil for stats not bound to an entity;
// grade-scaled modifiers on such a stat keep their last parameter.
func New(name string, base BaseSource, host Host) *Stat {
	return &Stat{
		name:    name,
		base:    base,
		host:    host,
		changed: signal.New[Change]("stat:" + name),
	}
}

// Name returns the stat name.
func (s *Stat) Name() string { return s.name }

// Changed returns the signal emitted after a calculation changes the value.
func (s *Stat) Changed() *signal.Signal[Change] { return s.changed }

// SetBaseSource rebinds the base value source and invalidates the cache.
func (s *Stat) SetBaseSource(base BaseSource) {
	s.base = base
	s.valid = false
}

// BaseValue returns the current base value, 0 if no source is bound.
func (s *Stat) BaseValue() float64 {
	if s.base == nil {
		return 0
	}
	return s.base()
}

// Valid reports whether the cached value reflects the current modifiers.
func (s *Stat) Valid() bool { return s.valid }

// Value returns the cached value, calculating it first if invalid.
func (s *Stat) Value() float64 {
	if !s.valid {
		return s.Calculate()
	}
	return s.value
}

// Calculate evaluates the modifier chain and caches the result.
//
// Changed is emitted on the first calculation and whenever the result differs
// from the cached value. A Calculate issued while this stat is already
// calculating returns the cached value unchanged.
func (s *Stat) Calculate() float64 {
	if s.calculating {
		return s.value
	}
	s.calculating = true

	before, wasValid := s.value, s.valid
	base := s.BaseValue()

	current := base
	for _, m := range s.modifiers {
		if !m.IsMultiplicative() {
			current = m.Calculate(current, base, current)
		}
	}

	sum := current
	for _, m := range s.modifiers {
		if m.IsMultiplicative() {
			current = m.Calculate(current, base, sum)
		}
	}

	s.value = current
	s.valid = true
	s.calculating = false

	if !wasValid || before != current {
		s.changed.Emit(Change{
			Stat:   s.name,
			Before: before,
			After:  current,
			Delta:  current - before,
		})
	}
	return current
}

// AddModifier attaches m in priority order, after existing modifiers of equal
// priority. Returns false if m is already attached here (no-op) or owned by
// another stat.
func (s *Stat) AddModifier(m *Modifier) bool {
	if m == nil || m.owner == s {
		return false
	}
	if m.owner != nil {
		slog.Warn("modifier already attached to another stat",
			"stat", s.name,
			"owner", m.owner.name,
			"kind", m.kind)
		return false
	}

	i := sort.Search(len(s.modifiers), func(i int) bool {
		return s.modifiers[i].priority > m.priority
	})
	s.modifiers = slices.Insert(s.modifiers, i, m)
	s.valid = false
	m.onAdd(s)
	return true
}

// RemoveModifier detaches m. Returns false if m is not attached here.
func (s *Stat) RemoveModifier(m *Modifier) bool {
	i := slices.Index(s.modifiers, m)
	if i < 0 {
		return false
	}
	s.modifiers = slices.Delete(s.modifiers, i, i+1)
	s.valid = false
	m.onRemove()
	return true
}

// RemoveBySource detaches every modifier tagged with source.
// Returns the number of removed modifiers.
func (s *Stat) RemoveBySource(source string) int {
	removed := 0
	n := 0
	for _, m := range s.modifiers {
		if m.source == source {
			m.onRemove()
			removed++
			continue
		}
		s.modifiers[n] = m
		n++
	}
	clear(s.modifiers[n:])
	s.modifiers = s.modifiers[:n]
	if removed > 0 {
		s.valid = false
	}
	return removed
}

// Clear detaches all modifiers.
func (s *Stat) Clear() {
	for _, m := range s.modifiers {
		m.onRemove()
	}
	s.modifiers = nil
	s.valid = false
}

// HasModifier reports whether m is attached to this stat.
func (s *Stat) HasModifier(m *Modifier) bool {
	return m != nil && m.owner == s
}

// ModifierCount returns the number of attached modifiers.
func (s *Stat) ModifierCount() int {
	return len(s.modifiers)
}

// Modifiers returns a copy of the attached modifiers in evaluation order.
func (s *Stat) Modifiers() []*Modifier {
	return slices.Clone(s.modifiers)
}
