package progression

import "github.com/udisondev/gradestats/internal/curve"

// Entry is an authored base stat: a base magnitude scaled by a growth curve
// over the normalized grade.
type Entry struct {
	Base   float64     `yaml:"base"`
	Growth curve.Curve `yaml:"growth"`
}

// Value returns Base * Growth(grade/maxGrade).
// With maxGrade <= 0 there is no progression domain and the unscaled Base is returned.
func (e Entry) Value(grade, maxGrade int32) float64 {
	if maxGrade <= 0 {
		return e.Base
	}
	return e.Base * e.Growth.Evaluate(float64(grade)/float64(maxGrade))
}
