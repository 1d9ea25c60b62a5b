package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlab/chardb/interpolant"
)

// quadFunc is a differentiable stand-in for a grid interpolant:
// (x - center)^2.
type quadFunc struct{ center float64 }

func (q quadFunc) NumDim() int { return 1 }

func (q quadFunc) Eval(x []float64) float64 {
	d := x[0] - q.center
	return d * d
}

func (q quadFunc) Gradient(dst, x []float64) []float64 {
	if dst == nil {
		dst = make([]float64, 1)
	}
	dst[0] = 2 * (x[0] - q.center)
	return dst
}

func TestNewStrategy(t *testing.T) {
	for _, method := range []string{"", "lbfgs", "bfgs", "cg", "neldermead"} {
		s, err := New("gonum", method)
		require.NoError(t, err, method)
		assert.NotNil(t, s)
	}

	_, err := New("gonum", "simplex")
	assert.Error(t, err)
	_, err = New("nlopt", "lbfgs")
	assert.Error(t, err)
}

func TestSolveBoundedQuadratic(t *testing.T) {
	s, err := New("gonum", "lbfgs")
	require.NoError(t, err)

	p := &Problem{
		Objective: "ids",
		NumEnv:    1,
		Inputs: []Input{
			{Name: "vgs", Dim: 1, Lower: 0, Upper: 1},
		},
		Funcs: []FuncDef{
			{Name: "ids", Funcs: []interpolant.Func{quadFunc{center: 0.3}}, Inputs: []string{"vgs"}},
		},
	}
	values, err := s.Solve(p)
	require.NoError(t, err)
	assert.InDelta(t, 0.3, values["vgs"][0], 1e-3)
	assert.InDelta(t, 0.0, values["ids"][0], 1e-5)
}

func TestSolveActiveBound(t *testing.T) {
	// unconstrained minimum at 2 lies outside [0, 1]; the solution
	// must press against the upper bound
	s, err := New("gonum", "lbfgs")
	require.NoError(t, err)

	p := &Problem{
		Objective: "ids",
		NumEnv:    1,
		Inputs: []Input{
			{Name: "vgs", Dim: 1, Lower: 0, Upper: 1},
		},
		Funcs: []FuncDef{
			{Name: "ids", Funcs: []interpolant.Func{quadFunc{center: 2}}, Inputs: []string{"vgs"}},
		},
	}
	values, err := s.Solve(p)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, values["vgs"][0], 1e-2)
}

func TestSolveEqualityConstraint(t *testing.T) {
	// minimize x^2 + y^2 subject to x + y = 1: solution x = y = 1/2
	s, err := New("gonum", "lbfgs")
	require.NoError(t, err)

	p := &Problem{
		Objective: "obj",
		NumEnv:    1,
		Inputs: []Input{
			{Name: "x", Dim: 1, Lower: -2, Upper: 2},
			{Name: "y", Dim: 1, Lower: -2, Upper: 2},
		},
		Defines: []Define{
			{Name: "s", Expr: "x + y", Dim: 1},
			{Name: "obj", Expr: "x * x + y * y", Dim: 1},
		},
		Constraints: map[string]Bound{
			"s": {Equals: Ptr(1)},
		},
	}
	values, err := s.Solve(p)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, values["x"][0], 1e-3)
	assert.InDelta(t, 0.5, values["y"][0], 1e-3)
	assert.InDelta(t, 1.0, values["s"][0], 1e-3)
}

func TestSolveAllInputsFixed(t *testing.T) {
	s, err := New("gonum", "")
	require.NoError(t, err)

	p := &Problem{
		Objective: "ids",
		NumEnv:    1,
		Inputs: []Input{
			{Name: "vgs", Dim: 1, Fixed: []float64{0.8}},
		},
		Funcs: []FuncDef{
			{Name: "ids", Funcs: []interpolant.Func{quadFunc{center: 0.3}}, Inputs: []string{"vgs"}},
		},
	}
	values, err := s.Solve(p)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.8}, values["vgs"])
	assert.InDelta(t, 0.25, values["ids"][0], 1e-12)
}

func TestSolveVectorObjectiveRejected(t *testing.T) {
	s, err := New("gonum", "lbfgs")
	require.NoError(t, err)

	p := &Problem{
		Objective: "ids",
		NumEnv:    2,
		Inputs: []Input{
			{Name: "vgs", Dim: 2, Lower: 0, Upper: 1},
		},
		Funcs: []FuncDef{
			{Name: "ids", Funcs: []interpolant.Func{quadFunc{center: 0.2}, quadFunc{center: 0.7}}, Inputs: []string{"vgs"}},
		},
	}
	_, err = s.Solve(p)
	assert.Error(t, err)
}

func TestSolveVectorConstraintAcrossEnvironments(t *testing.T) {
	// a per-environment input driven to a different optimum in each
	// environment by an equality constraint on the function vector
	s, err := New("gonum", "lbfgs")
	require.NoError(t, err)

	p := &Problem{
		Objective: "obj",
		NumEnv:    2,
		Inputs: []Input{
			{Name: "vgs", Dim: 2, Lower: 0, Upper: 1},
		},
		Funcs: []FuncDef{
			{Name: "ids", Funcs: []interpolant.Func{quadFunc{center: 0.2}, quadFunc{center: 0.7}}, Inputs: []string{"vgs"}},
		},
		Defines: []Define{
			{Name: "obj", Expr: "0", Dim: 1},
		},
		Constraints: map[string]Bound{
			"ids": {Equals: Ptr(0)},
		},
	}
	values, err := s.Solve(p)
	require.NoError(t, err)
	require.Len(t, values["vgs"], 2)
	assert.InDelta(t, 0.2, values["vgs"][0], 1e-2)
	assert.InDelta(t, 0.7, values["vgs"][1], 1e-2)
}

func TestSolveInfeasibleConstraint(t *testing.T) {
	s, err := New("gonum", "lbfgs")
	require.NoError(t, err)

	p := &Problem{
		Objective: "obj",
		NumEnv:    1,
		Inputs: []Input{
			{Name: "x", Dim: 1, Lower: 0, Upper: 1},
		},
		Defines: []Define{
			{Name: "obj", Expr: "x * x", Dim: 1},
		},
		Constraints: map[string]Bound{
			// x cannot reach 5 inside [0, 1]
			"x": {Equals: Ptr(5)},
		},
	}
	_, err = s.Solve(p)
	assert.Error(t, err)
}
