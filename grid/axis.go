// Package grid consolidates raw per-combination simulation records into
// dense, axis-ordered arrays and validates that the sweep forms a
// complete regular grid.
package grid

import (
	"github.com/charlab/chardb/numeric"
)

// AxisKind tags the role of a sweep dimension.
type AxisKind uint8

const (
	// KindEnvironment is the simulation environment (corner) axis.
	KindEnvironment AxisKind = iota
	// KindDiscrete is an axis restricted to an enumerated value set.
	KindDiscrete
	// KindContinuous is an evenly spaced axis that supports
	// interpolation.
	KindContinuous
)

func (k AxisKind) String() string {
	switch k {
	case KindEnvironment:
		return "environment"
	case KindDiscrete:
		return "discrete"
	default:
		return "continuous"
	}
}

// Axis is a named sweep dimension with an ordered sequence of unique
// values. Environment and discrete axes are unordered sets that become
// ordered for indexing; continuous axes must form a regular grid.
type Axis struct {
	Name   string
	Kind   AxisKind
	Values []numeric.Value
}

// Len returns the number of values along the axis.
func (a Axis) Len() int { return len(a.Values) }

// Start returns the first coordinate of a continuous axis.
func (a Axis) Start() float64 { return a.Values[0].Float() }

// Step returns the grid spacing of a continuous axis. A single-point
// axis has step zero.
func (a Axis) Step() float64 {
	if len(a.Values) < 2 {
		return 0
	}
	return a.Values[1].Float() - a.Values[0].Float()
}

// Floats returns the axis values as a float64 slice. Only meaningful
// for numeric axes.
func (a Axis) Floats() []float64 {
	out := make([]float64, len(a.Values))
	for i, v := range a.Values {
		out[i] = v.Float()
	}
	return out
}

// ContinuousAxis builds a continuous axis from a linspace description:
// count evenly spaced points from start to stop inclusive.
func ContinuousAxis(name string, start, stop float64, count int) Axis {
	values := make([]numeric.Value, count)
	if count == 1 {
		values[0] = numeric.F(start)
	} else {
		step := (stop - start) / float64(count-1)
		for i := range values {
			values[i] = numeric.F(start + float64(i)*step)
		}
	}
	return Axis{Name: name, Kind: KindContinuous, Values: values}
}

// Record is one raw simulation outcome: a coordinate per
// environment/discrete axis plus one dense sub-array per output name
// spanning all continuous axes in sweep order.
type Record struct {
	Coords  map[string]numeric.Value
	Outputs map[string]*DenseArray
}
