// Package curve implements growth curves: piecewise-linear maps from a
// normalized progression fraction to a stat multiplier.
package curve

import (
	"fmt"
	"math"
	"slices"

	"gopkg.in/yaml.v3"
)

// Key is a single authored point of a curve.
type Key struct {
	Fraction   float64 `yaml:"at"`
	Multiplier float64 `yaml:"value"`
}

// Curve is an immutable piecewise-linear curve. Keys are kept sorted by Fraction.
// The zero value has no keys and evaluates to 0.
type Curve struct {
	keys []Key
}

// New builds a curve from keys in any order.
func New(keys ...Key) Curve {
	sorted := slices.Clone(keys)
	slices.SortStableFunc(sorted, func(a, b Key) int {
		switch {
		case a.Fraction < b.Fraction:
			return -1
		case a.Fraction > b.Fraction:
			return 1
		default:
			return 0
		}
	})
	return Curve{keys: sorted}
}

// Linear returns a two-key curve from (0, from) to (1, to).
func Linear(from, to float64) Curve {
	return New(Key{0, from}, Key{1, to})
}

// Constant returns a curve that evaluates to m everywhere.
func Constant(m float64) Curve {
	return New(Key{0, m})
}

// Keys returns a copy of the curve's key points.
func (c Curve) Keys() []Key {
	return slices.Clone(c.keys)
}

// Len returns the number of key points.
func (c Curve) Len() int {
	return len(c.keys)
}

// Evaluate returns the multiplier at fraction.
//
// Fractions outside [first key, last key] are clamped to the end keys (no
// extrapolation). A curve without keys evaluates to 0. NaN evaluates as the
// first key.
func (c Curve) Evaluate(fraction float64) float64 {
	n := len(c.keys)
	if n == 0 {
		return 0
	}

	first, last := c.keys[0], c.keys[n-1]
	if math.IsNaN(fraction) || fraction <= first.Fraction {
		return first.Multiplier
	}
	if fraction >= last.Fraction {
		return last.Multiplier
	}

	// first key with Fraction > fraction; bounded to [1, n-1] by the checks above
	i, _ := slices.BinarySearchFunc(c.keys, fraction, func(k Key, f float64) int {
		if k.Fraction <= f {
			return -1
		}
		return 1
	})
	lo, hi := c.keys[i-1], c.keys[i]
	t := (fraction - lo.Fraction) / (hi.Fraction - lo.Fraction)
	return lo.Multiplier + (hi.Multiplier-lo.Multiplier)*t
}

// UnmarshalYAML accepts either a list of {at, value} keys or a scalar constant.
func (c *Curve) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var m float64
		if err := node.Decode(&m); err != nil {
			return fmt.Errorf("curve constant: %w", err)
		}
		*c = Constant(m)
		return nil
	}

	var keys []Key
	if err := node.Decode(&keys); err != nil {
		return fmt.Errorf("curve keys: %w", err)
	}
	*c = New(keys...)
	return nil
}
