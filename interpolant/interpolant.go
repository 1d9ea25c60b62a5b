// Package interpolant provides differentiable functions that
// reconstruct output values between the grid points of a regular
// continuous sweep.
package interpolant

// Func is a differentiable scalar function over the continuous sweep
// axes.
type Func interface {
	// NumDim returns the number of input dimensions.
	NumDim() int

	// Eval evaluates the function at x, which must have NumDim
	// entries.
	Eval(x []float64) float64

	// Gradient stores the partial derivatives at x into dst and
	// returns it. If dst is nil a new slice is allocated.
	Gradient(dst, x []float64) []float64
}

// Vector stitches one interpolant per simulation environment into a
// single vector-valued callable for downstream optimization.
type Vector struct {
	funcs []Func
}

// NewVector builds a vector function from per-environment interpolants.
// All elements must share the same input dimensionality.
func NewVector(funcs []Func) *Vector {
	return &Vector{funcs: funcs}
}

// Len returns the number of environments.
func (v *Vector) Len() int { return len(v.funcs) }

// NumDim returns the input dimensionality.
func (v *Vector) NumDim() int {
	if len(v.funcs) == 0 {
		return 0
	}
	return v.funcs[0].NumDim()
}

// At returns the interpolant for environment index i.
func (v *Vector) At(i int) Func { return v.funcs[i] }

// Eval evaluates every environment's function at the same point.
func (v *Vector) Eval(x []float64) []float64 {
	out := make([]float64, len(v.funcs))
	for i, f := range v.funcs {
		out[i] = f.Eval(x)
	}
	return out
}

// Gradients returns the per-environment gradients at x as rows.
func (v *Vector) Gradients(x []float64) [][]float64 {
	out := make([][]float64, len(v.funcs))
	for i, f := range v.funcs {
		out[i] = f.Gradient(nil, x)
	}
	return out
}
