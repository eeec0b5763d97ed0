package stat

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/udisondev/gradestats/internal/signal"
)

// Kind is the closed set of modifier variants.
type Kind uint8

const (
	KindAdd                         Kind = iota // current + parameter
	KindMultiplySum                             // current * parameter
	KindResetToBase                             // base
	KindResetToSumBeforeMultipliers             // sum of the additive phase
	KindSetToValue                              // parameter
	KindAddPercent                              // current + base*parameter
	KindClamp                                   // clamp(current, min, max)
	KindGradeScaled                             // inner with parameter = grade/divisor

	kindCount
)

var kindNames = [kindCount]string{
	KindAdd:                         "add",
	KindMultiplySum:                 "multiply_sum",
	KindResetToBase:                 "reset_to_base",
	KindResetToSumBeforeMultipliers: "reset_to_sum",
	KindSetToValue:                  "set_to_value",
	KindAddPercent:                  "add_percent",
	KindClamp:                       "clamp",
	KindGradeScaled:                 "grade_scaled",
}

// multiplicative decides the evaluation phase of each variant. Reset, set and
// clamp are placed in the second phase so they observe the folded additive sum.
var multiplicative = [kindCount]bool{
	KindAdd:                         false,
	KindMultiplySum:                 true,
	KindResetToBase:                 true,
	KindResetToSumBeforeMultipliers: false,
	KindSetToValue:                  true,
	KindAddPercent:                  true,
	KindClamp:                       true,
}

func (k Kind) String() string {
	if k >= kindCount {
		return fmt.Sprintf("Kind(%d)", k)
	}
	return kindNames[k]
}

// ParseKind returns the Kind for its authored name (see Kind.String).
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return Kind(k), nil
		}
	}
	return 0, fmt.Errorf("unknown modifier kind %q", s)
}

// Modifier is a single value transformation attached to at most one Stat.
//
// Priority, source and bounds are fixed before attachment; a Modifier is
// owned by the Stat it is attached to until it is removed.
type Modifier struct {
	kind      Kind
	parameter float64
	priority  int32
	min       float64
	max       float64
	source    string

	// KindGradeScaled only
	inner   *Modifier
	divisor float64

	owner    *Stat
	host     Host
	gradeSub signal.Subscription
}

// Add returns a modifier adding v to the running value.
func Add(v float64) *Modifier {
	return &Modifier{kind: KindAdd, parameter: v}
}

// MultiplySum returns a modifier multiplying the running value by factor.
func MultiplySum(factor float64) *Modifier {
	return &Modifier{kind: KindMultiplySum, parameter: factor}
}

// ResetToBase returns a modifier replacing the running value with the base value.
func ResetToBase() *Modifier {
	return &Modifier{kind: KindResetToBase}
}

// ResetToSumBeforeMultipliers returns a modifier replacing the running value
// with the additive phase total.
func ResetToSumBeforeMultipliers() *Modifier {
	return &Modifier{kind: KindResetToSumBeforeMultipliers}
}

// SetToValue returns a modifier replacing the running value with v.
func SetToValue(v float64) *Modifier {
	return &Modifier{kind: KindSetToValue, parameter: v}
}

// AddPercent returns a modifier adding base*fraction to the running value.
// fraction 0.2 means +20% of base.
func AddPercent(fraction float64) *Modifier {
	return &Modifier{kind: KindAddPercent, parameter: fraction}
}

// Clamp returns a modifier bounding the running value to [min, max].
func Clamp(min, max float64) *Modifier {
	return &Modifier{kind: KindClamp, min: min, max: max}
}

// GradeScaled wraps inner so that its parameter tracks hostGrade/divisor.
// The phase and priority of inner are inherited.
// A zero divisor makes the modifier a pass-through. A nil inner is an Add.
func GradeScaled(inner *Modifier, divisor float64) *Modifier {
	if inner == nil {
		inner = Add(0)
	}
	return &Modifier{
		kind:     KindGradeScaled,
		priority: inner.priority,
		source:   inner.source,
		inner:    inner.Clone(),
		divisor:  divisor,
	}
}

// WithPriority sets the ordering priority. Ignored once attached.
func (m *Modifier) WithPriority(p int32) *Modifier {
	if m.owner != nil {
		slog.Warn("modifier priority change ignored: already attached",
			"kind", m.kind, "stat", m.owner.name)
		return m
	}
	m.priority = p
	return m
}

// WithSource tags the modifier with its origin (buff ID, rule, item).
func (m *Modifier) WithSource(source string) *Modifier {
	m.source = source
	return m
}

// WithBounds sets min/max. Only KindClamp reads them.
func (m *Modifier) WithBounds(min, max float64) *Modifier {
	m.min, m.max = min, max
	return m
}

// Clone returns an unattached copy.
func (m *Modifier) Clone() *Modifier {
	c := &Modifier{
		kind:      m.kind,
		parameter: m.parameter,
		priority:  m.priority,
		min:       m.min,
		max:       m.max,
		source:    m.source,
		divisor:   m.divisor,
	}
	if m.inner != nil {
		c.inner = m.inner.Clone()
	}
	return c
}

func (m *Modifier) Kind() Kind         { return m.kind }
func (m *Modifier) Parameter() float64 { return m.parameter }
func (m *Modifier) Priority() int32    { return m.priority }
func (m *Modifier) Min() float64       { return m.min }
func (m *Modifier) Max() float64       { return m.max }
func (m *Modifier) Source() string     { return m.source }
func (m *Modifier) Divisor() float64   { return m.divisor }
func (m *Modifier) Inner() *Modifier   { return m.inner }
func (m *Modifier) Attached() bool     { return m.owner != nil }
func (m *Modifier) Owner() *Stat       { return m.owner }

// IsMultiplicative reports whether the modifier runs in the second phase.
func (m *Modifier) IsMultiplicative() bool {
	if m.kind == KindGradeScaled {
		return m.inner.IsMultiplicative()
	}
	return multiplicative[m.kind]
}

// Calculate applies the modifier to the running value.
// base is the stat's base value, sum is the additive phase total
// (equal to current during the additive phase).
func (m *Modifier) Calculate(current, base, sum float64) float64 {
	switch m.kind {
	case KindAdd:
		return current + m.parameter
	case KindMultiplySum:
		return current * m.parameter
	case KindResetToBase:
		return base
	case KindResetToSumBeforeMultipliers:
		return sum
	case KindSetToValue:
		return m.parameter
	case KindAddPercent:
		return current + base*m.parameter
	case KindClamp:
		return math.Min(math.Max(current, m.min), m.max)
	case KindGradeScaled:
		if m.divisor == 0 {
			return current
		}
		m.refresh()
		return m.inner.Calculate(current, base, sum)
	default:
		panic(fmt.Sprintf("stat: unhandled modifier kind %v", m.kind))
	}
}

// refresh recomputes the scaled parameter from the bound host's grade.
func (m *Modifier) refresh() {
	if m.host == nil || m.divisor == 0 {
		return
	}
	m.parameter = float64(m.host.Grade()) / m.divisor
	m.inner.parameter = m.parameter
}

func (m *Modifier) onAdd(s *Stat) {
	m.owner = s
	m.host = s.host
	if m.kind != KindGradeScaled {
		return
	}

	if m.divisor == 0 {
		slog.Warn("grade scaled modifier has zero divisor, treated as no-op",
			"stat", s.name, "inner", m.inner.kind)
		return
	}
	if m.host == nil {
		return
	}

	m.refresh()
	m.gradeSub = m.host.GradeChanged().Subscribe(func(GradeChange) {
		m.refresh()
		if m.owner != nil {
			m.owner.Calculate()
		}
	})
}

func (m *Modifier) onRemove() {
	if m.gradeSub != 0 && m.host != nil {
		m.host.GradeChanged().Unsubscribe(m.gradeSub)
	}
	m.gradeSub = 0
	m.owner = nil
	m.host = nil
}
