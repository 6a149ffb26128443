// Package sweep runs the fusion filter over a grid of variance pairs and
// ranks the results. It replaces hand-tuning the two variances.
package sweep

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxValues bounds how many values one range may expand to.
const MaxValues = 10000

// RangeSpec defines a floating-point parameter range for sweeping.
type RangeSpec struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// ParseRangeSpec parses a "min:max:step" string into a RangeSpec.
func ParseRangeSpec(s string) (RangeSpec, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return RangeSpec{}, fmt.Errorf("invalid range format %q: expected min:max:step", s)
	}

	var vals [3]float64
	for i, name := range []string{"min", "max", "step"} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[i]), 64)
		if err != nil {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: %w", name, parts[i], err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return RangeSpec{}, fmt.Errorf("invalid %s value %q: must be finite", name, parts[i])
		}
		vals[i] = v
	}

	if vals[2] <= 0 {
		return RangeSpec{}, fmt.Errorf("step must be positive, got %g", vals[2])
	}
	return RangeSpec{Min: vals[0], Max: vals[1], Step: vals[2]}, nil
}

// String formats the range back into "min:max:step".
func (r RangeSpec) String() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return f(r.Min) + ":" + f(r.Max) + ":" + f(r.Step)
}

// Count returns how many values Values would produce.
func (r RangeSpec) Count() int {
	if r.Step <= 0 || r.Min > r.Max {
		return 0
	}
	// Tolerate the step not dividing the span exactly in binary.
	return int(math.Floor((r.Max-r.Min)/r.Step+1e-9)) + 1
}

// Values expands the range, min and max inclusive. Each value is computed
// as min + i·step so error does not accumulate across the range. It returns
// nil for empty ranges and ranges with more than MaxValues values.
func (r RangeSpec) Values() []float64 {
	n := r.Count()
	if n <= 0 || n > MaxValues {
		return nil
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = r.Min + float64(i)*r.Step
	}
	out[n-1] = math.Min(out[n-1], r.Max)
	return out
}

// Limit returns a coarsened copy of r whose expansion has at most n
// values, keeping Min and widening Step. Limit(1) collapses the range to
// Min; n < 1 means no limit.
func (r RangeSpec) Limit(n int) RangeSpec {
	if n < 1 || r.Count() <= n {
		return r
	}
	if n == 1 {
		return RangeSpec{Min: r.Min, Max: r.Min, Step: r.Step}
	}
	out := r
	out.Step = (r.Max - r.Min) / float64(n-1)
	return out
}

// ParseCSVFloat64s parses a comma-separated list of float64 values.
// Returns nil, nil for empty input strings.
func ParseCSVFloat64s(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseValues accepts either a "min:max:step" range or a comma-separated
// list of values.
func ParseValues(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	if strings.Contains(s, ":") {
		spec, err := ParseRangeSpec(s)
		if err != nil {
			return nil, err
		}
		if n := spec.Count(); n > MaxValues {
			return nil, fmt.Errorf("range %q expands to %d values, limit is %d", s, n, MaxValues)
		}
		return spec.Values(), nil
	}
	return ParseCSVFloat64s(s)
}
