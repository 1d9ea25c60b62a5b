package interpolant

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// buildGrid tabulates f over a regular 2D grid and returns the
// interpolant for the requested method.
func buildGrid(t *testing.T, method string, nx, ny int, f func(x, y float64) float64) Func {
	t.Helper()
	scales := []Scale{{Start: 0, Step: 0.5}, {Start: -1, Step: 0.25}}
	data := make([]float64, nx*ny)
	for i := 0; i < nx; i++ {
		for j := 0; j < ny; j++ {
			x := scales[0].Start + float64(i)*scales[0].Step
			y := scales[1].Start + float64(j)*scales[1].Step
			data[i*ny+j] = f(x, y)
		}
	}
	fn, err := NewGrid(scales, []int{nx, ny}, data, method)
	require.NoError(t, err)
	return fn
}

func TestGridReproducesNodes(t *testing.T) {
	f := func(x, y float64) float64 { return x*x + 3*y }
	for _, method := range []string{MethodLinear, MethodSpline} {
		fn := buildGrid(t, method, 6, 5, f)
		for i := 0; i < 6; i++ {
			for j := 0; j < 5; j++ {
				x := float64(i) * 0.5
				y := -1 + float64(j)*0.25
				assert.InDelta(t, f(x, y), fn.Eval([]float64{x, y}), 1e-12,
					"%s at node (%d,%d)", method, i, j)
			}
		}
	}
}

func TestGridLinearExactness(t *testing.T) {
	// both methods reproduce affine data exactly away from the boundary
	f := func(x, y float64) float64 { return 2*x - 0.5*y + 1 }
	for _, method := range []string{MethodLinear, MethodSpline} {
		fn := buildGrid(t, method, 6, 6, f)
		pts := [][2]float64{{0.7, -0.6}, {1.3, 0.1}, {1.95, -0.2}}
		for _, p := range pts {
			assert.InDelta(t, f(p[0], p[1]), fn.Eval([]float64{p[0], p[1]}), 1e-10, method)
		}
	}
}

func TestGridGradientMatchesFiniteDifference(t *testing.T) {
	f := func(x, y float64) float64 { return x*x*y + 2*y }
	for _, method := range []string{MethodLinear, MethodSpline} {
		fn := buildGrid(t, method, 8, 8, f)
		x := []float64{1.23, -0.37}
		grad := fn.Gradient(nil, x)
		require.Len(t, grad, 2)

		const h = 1e-6
		for d := 0; d < 2; d++ {
			hi := append([]float64(nil), x...)
			lo := append([]float64(nil), x...)
			hi[d] += h
			lo[d] -= h
			fd := (fn.Eval(hi) - fn.Eval(lo)) / (2 * h)
			assert.InDelta(t, fd, grad[d], 1e-5, "%s d/dx%d", method, d)
		}
	}
}

func TestGridClampsOutsideRange(t *testing.T) {
	fn := buildGrid(t, MethodLinear, 4, 4, func(x, y float64) float64 { return x + y })
	inside := fn.Eval([]float64{0, -1})
	outside := fn.Eval([]float64{-10, -5})
	assert.Equal(t, inside, outside)
}

func TestGridSplineShortAxisFallsBackToLinear(t *testing.T) {
	// a 2-point axis cannot hold a cubic stencil; the spline degrades
	// to linear weights there
	scales := []Scale{{Start: 0, Step: 1}}
	fn, err := NewGrid(scales, []int{2}, []float64{1, 3}, MethodSpline)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, fn.Eval([]float64{0.5}), 1e-12)
	assert.InDelta(t, 2.0, fn.Gradient(nil, []float64{0.5})[0], 1e-12)
}

func TestGridSinglePointAxis(t *testing.T) {
	scales := []Scale{{Start: 0.5, Step: 0}, {Start: 0, Step: 1}}
	fn, err := NewGrid(scales, []int{1, 3}, []float64{0, 1, 4}, MethodLinear)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, fn.Eval([]float64{0.5, 0.5}), 1e-12)
	assert.InDelta(t, 0.0, fn.Gradient(nil, []float64{0.5, 0.5})[0], 1e-12)
}

func TestNewGridRejectsBadInput(t *testing.T) {
	_, err := NewGrid([]Scale{{0, 1}}, []int{2, 2}, make([]float64, 4), MethodLinear)
	assert.Error(t, err)

	_, err = NewGrid([]Scale{{0, 1}}, []int{3}, make([]float64, 4), MethodLinear)
	assert.Error(t, err)

	_, err = NewGrid([]Scale{{0, 1}}, []int{4}, make([]float64, 4), "cubic-hermite")
	assert.Error(t, err)
}

func TestVector(t *testing.T) {
	f1 := buildGrid(t, MethodLinear, 4, 4, func(x, y float64) float64 { return x })
	f2 := buildGrid(t, MethodLinear, 4, 4, func(x, y float64) float64 { return y })
	v := NewVector([]Func{f1, f2})
	assert.Equal(t, 2, v.Len())
	assert.Equal(t, 2, v.NumDim())

	out := v.Eval([]float64{1.0, -0.5})
	assert.InDelta(t, 1.0, out[0], 1e-12)
	assert.InDelta(t, -0.5, out[1], 1e-12)

	grads := v.Gradients([]float64{1.0, -0.5})
	assert.InDelta(t, 1.0, grads[0][0], 1e-12)
	assert.InDelta(t, 1.0, grads[1][1], 1e-12)
}
