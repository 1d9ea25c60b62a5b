package interpolant

import (
	"fmt"
	"math"
)

// Interpolation method names accepted by NewGrid.
const (
	MethodLinear = "linear"
	MethodSpline = "spline"
)

// Scale describes one continuous axis of a regular grid as (start,
// step).
type Scale struct {
	Start float64
	Step  float64
}

// gridFunc is the shared state of the regular-grid interpolants: a
// row-major data block with one Scale per dimension.
type gridFunc struct {
	scales []Scale
	shape  []int
	stride []int
	data   []float64
}

// NewGrid builds a differentiable interpolant over a regular grid. data
// is row-major with the given shape; scales gives each axis's start and
// step. method is MethodLinear (multilinear) or MethodSpline (cubic
// convolution).
func NewGrid(scales []Scale, shape []int, data []float64, method string) (Func, error) {
	if len(scales) != len(shape) {
		return nil, fmt.Errorf("interpolant: %d scales for %d dimensions", len(scales), len(shape))
	}
	n := 1
	for i, s := range shape {
		if s < 1 {
			return nil, fmt.Errorf("interpolant: dimension %d has size %d", i, s)
		}
		if s > 1 && scales[i].Step <= 0 {
			return nil, fmt.Errorf("interpolant: dimension %d has non-positive step %g", i, scales[i].Step)
		}
		n *= s
	}
	if n != len(data) {
		return nil, fmt.Errorf("interpolant: data length %d does not match shape %v", len(data), shape)
	}

	stride := make([]int, len(shape))
	s := 1
	for i := len(shape) - 1; i >= 0; i-- {
		stride[i] = s
		s *= shape[i]
	}
	g := gridFunc{
		scales: append([]Scale(nil), scales...),
		shape:  append([]int(nil), shape...),
		stride: stride,
		data:   data,
	}

	switch method {
	case MethodLinear:
		return &multilinear{g}, nil
	case MethodSpline:
		return &cubicSpline{g}, nil
	default:
		return nil, fmt.Errorf("interpolant: unknown method %q", method)
	}
}

func (g *gridFunc) NumDim() int { return len(g.shape) }

// fractional maps x along dimension d to grid coordinates, clamped to
// the grid extent.
func (g *gridFunc) fractional(d int, x float64) float64 {
	if g.shape[d] == 1 {
		return 0
	}
	t := (x - g.scales[d].Start) / g.scales[d].Step
	if t < 0 {
		return 0
	}
	if max := float64(g.shape[d] - 1); t > max {
		return max
	}
	return t
}

func (g *gridFunc) clampIndex(d, i int) int {
	if i < 0 {
		return 0
	}
	if i >= g.shape[d] {
		return g.shape[d] - 1
	}
	return i
}

// multilinear interpolates linearly along every axis.
type multilinear struct {
	gridFunc
}

func (m *multilinear) Eval(x []float64) float64 {
	v, _ := m.eval(x, -1)
	return v
}

func (m *multilinear) Gradient(dst, x []float64) []float64 {
	if dst == nil {
		dst = make([]float64, m.NumDim())
	}
	for d := range dst {
		_, dv := m.eval(x, d)
		dst[d] = dv
	}
	return dst
}

// eval computes the interpolated value and, when grad >= 0, the partial
// derivative along that dimension. The corner loop walks all 2^m cell
// corners via bitmask.
func (m *multilinear) eval(x []float64, grad int) (float64, float64) {
	ndim := m.NumDim()
	base := make([]int, ndim)
	frac := make([]float64, ndim)
	for d := 0; d < ndim; d++ {
		t := m.fractional(d, x[d])
		i := int(math.Floor(t))
		if i > m.shape[d]-2 {
			i = m.shape[d] - 2
		}
		if i < 0 {
			i = 0
		}
		base[d] = i
		frac[d] = t - float64(i)
	}

	var value, deriv float64
	for mask := 0; mask < 1<<uint(ndim); mask++ {
		w := 1.0
		dw := 1.0
		offset := 0
		skip := false
		for d := 0; d < ndim; d++ {
			hi := mask&(1<<uint(d)) != 0
			idx := base[d]
			if hi {
				if m.shape[d] == 1 {
					skip = true
					break
				}
				idx++
			}
			offset += m.clampIndex(d, idx) * m.stride[d]

			var wd, dwd float64
			if m.shape[d] == 1 {
				wd, dwd = 1, 0
			} else if hi {
				wd, dwd = frac[d], 1/m.scales[d].Step
			} else {
				wd, dwd = 1-frac[d], -1/m.scales[d].Step
			}
			w *= wd
			if d == grad {
				dw *= dwd
			} else {
				dw *= wd
			}
		}
		if skip {
			continue
		}
		value += w * m.data[offset]
		deriv += dw * m.data[offset]
	}
	return value, deriv
}

// cubicSpline interpolates with the cubic convolution kernel (a = -1/2)
// along every axis, giving a C1 interpolant that reproduces the grid
// values exactly and linear data exactly away from the boundary.
type cubicSpline struct {
	gridFunc
}

const splineA = -0.5

func splineWeight(s float64) float64 {
	s = math.Abs(s)
	switch {
	case s < 1:
		return (splineA+2)*s*s*s - (splineA+3)*s*s + 1
	case s < 2:
		return splineA * (s*s*s - 5*s*s + 8*s - 4)
	default:
		return 0
	}
}

func splineWeightDeriv(s float64) float64 {
	sign := 1.0
	if s < 0 {
		sign = -1.0
		s = -s
	}
	switch {
	case s < 1:
		return sign * (3*(splineA+2)*s*s - 2*(splineA+3)*s)
	case s < 2:
		return sign * splineA * (3*s*s - 10*s + 8)
	default:
		return 0
	}
}

func (c *cubicSpline) Eval(x []float64) float64 {
	v, _ := c.eval(x, -1)
	return v
}

func (c *cubicSpline) Gradient(dst, x []float64) []float64 {
	if dst == nil {
		dst = make([]float64, c.NumDim())
	}
	for d := range dst {
		_, dv := c.eval(x, d)
		dst[d] = dv
	}
	return dst
}

func (c *cubicSpline) eval(x []float64, grad int) (float64, float64) {
	ndim := c.NumDim()

	// per-dimension 4-point stencils and weights
	type stencil struct {
		idx [4]int
		w   [4]float64
		dw  [4]float64
		n   int
	}
	stencils := make([]stencil, ndim)
	for d := 0; d < ndim; d++ {
		t := c.fractional(d, x[d])
		if c.shape[d] == 1 {
			stencils[d] = stencil{idx: [4]int{0}, w: [4]float64{1}, n: 1}
			continue
		}
		if c.shape[d] < 4 {
			// too few points for a cubic stencil; fall back to the
			// linear weights on this axis
			i := int(math.Floor(t))
			if i > c.shape[d]-2 {
				i = c.shape[d] - 2
			}
			f := t - float64(i)
			inv := 1 / c.scales[d].Step
			stencils[d] = stencil{
				idx: [4]int{i, i + 1},
				w:   [4]float64{1 - f, f},
				dw:  [4]float64{-inv, inv},
				n:   2,
			}
			continue
		}
		base := int(math.Floor(t))
		if base > c.shape[d]-2 {
			base = c.shape[d] - 2
		}
		st := stencil{n: 4}
		inv := 1 / c.scales[d].Step
		for j := 0; j < 4; j++ {
			node := base - 1 + j
			s := t - float64(node)
			st.idx[j] = c.clampIndex(d, node)
			st.w[j] = splineWeight(s)
			st.dw[j] = splineWeightDeriv(s) * inv
		}
		stencils[d] = st
	}

	// tensor-product accumulation over all stencil corners
	var value, deriv float64
	counters := make([]int, ndim)
	for {
		w := 1.0
		dw := 1.0
		offset := 0
		for d := 0; d < ndim; d++ {
			j := counters[d]
			offset += stencils[d].idx[j] * c.stride[d]
			w *= stencils[d].w[j]
			if d == grad {
				dw *= stencils[d].dw[j]
			} else {
				dw *= stencils[d].w[j]
			}
		}
		value += w * c.data[offset]
		deriv += dw * c.data[offset]

		d := ndim - 1
		for d >= 0 {
			counters[d]++
			if counters[d] < stencils[d].n {
				break
			}
			counters[d] = 0
			d--
		}
		if d < 0 {
			break
		}
	}
	return value, deriv
}
