package solver

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/optimize"
)

// gonumStrategy drives gonum's optimize package. Bound constraints on
// design variables are enforced with a smooth logistic reparameterization
// and constraints on derived variables with an exterior quadratic
// penalty, since gonum's local methods are unconstrained.
type gonumStrategy struct {
	method   optimize.Method
	useGrad  bool
	penalty0 float64
	rounds   int
	tol      float64
}

func newGonumStrategy(method string) (Strategy, error) {
	s := &gonumStrategy{penalty0: 1e3, rounds: 4, tol: 1e-6}
	switch strings.ToLower(method) {
	case "lbfgs", "":
		s.method = &optimize.LBFGS{}
		s.useGrad = true
	case "bfgs":
		s.method = &optimize.BFGS{}
		s.useGrad = true
	case "cg":
		s.method = &optimize.CG{}
		s.useGrad = true
	case "neldermead":
		s.method = &optimize.NelderMead{}
	default:
		return nil, fmt.Errorf("solver: unknown gonum method %q", method)
	}
	return s, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

func (s *gonumStrategy) Solve(p *Problem) (map[string][]float64, error) {
	free, _, n := p.freeLayout()

	if n == 0 {
		vars, err := p.evaluate(nil)
		if err != nil {
			return nil, err
		}
		return collect(vars), nil
	}

	lo := make([]float64, n)
	hi := make([]float64, n)
	pos := 0
	for _, in := range free {
		for i := 0; i < in.Dim; i++ {
			lo[pos] = in.Lower
			hi[pos] = in.Upper
			pos++
		}
	}

	toX := func(z []float64) ([]float64, []float64) {
		x := make([]float64, n)
		dxdz := make([]float64, n)
		for i := range z {
			sg := sigmoid(z[i])
			x[i] = lo[i] + (hi[i]-lo[i])*sg
			dxdz[i] = (hi[i] - lo[i]) * sg * (1 - sg)
		}
		return x, dxdz
	}

	z := make([]float64, n) // sigmoid(0) = 1/2: start at the box midpoint
	mu := s.penalty0
	var evalErr error

	for round := 0; round < s.rounds; round++ {
		objective := func(zv []float64) (float64, []float64) {
			x, dxdz := toX(zv)
			vars, err := p.evaluate(x)
			if err != nil {
				evalErr = err
				return math.Inf(1), nil
			}
			obj, ok := vars[p.Objective]
			if !ok {
				evalErr = fmt.Errorf("solver: objective %q is not a problem variable", p.Objective)
				return math.Inf(1), nil
			}
			if obj.dim() != 1 {
				evalErr = fmt.Errorf("solver: objective %q has dimension %d, must be scalar", p.Objective, obj.dim())
				return math.Inf(1), nil
			}

			f := obj.v[0]
			gx := make([]float64, n)
			if obj.g[0] != nil {
				copy(gx, obj.g[0])
			}

			for name, b := range p.Constraints {
				node, ok := vars[name]
				if !ok {
					evalErr = fmt.Errorf("solver: constrained variable %q is not a problem variable", name)
					return math.Inf(1), nil
				}
				for i := 0; i < node.dim(); i++ {
					v := node.v[i]
					var d, dd float64
					switch {
					case b.Equals != nil:
						d = v - *b.Equals
						dd = 2 * d
					case b.Lower != nil && v < *b.Lower:
						d = *b.Lower - v
						dd = -2 * d
					case b.Upper != nil && v > *b.Upper:
						d = v - *b.Upper
						dd = 2 * d
					default:
						continue
					}
					f += mu * d * d
					if row := node.g[i]; row != nil {
						for j, gj := range row {
							gx[j] += mu * dd * gj
						}
					}
				}
			}

			gz := make([]float64, n)
			for i := range gz {
				gz[i] = gx[i] * dxdz[i]
			}
			return f, gz
		}

		prob := optimize.Problem{
			Func: func(zv []float64) float64 {
				f, _ := objective(zv)
				return f
			},
		}
		if s.useGrad {
			prob.Grad = func(grad, zv []float64) {
				_, g := objective(zv)
				if g == nil {
					for i := range grad {
						grad[i] = 0
					}
					return
				}
				copy(grad, g)
			}
		}

		result, err := optimize.Minimize(prob, z, nil, s.method)
		if evalErr != nil {
			return nil, evalErr
		}
		if err != nil {
			return nil, fmt.Errorf("solver: gonum minimize: %w", err)
		}
		z = result.X

		x, _ := toX(z)
		vars, err := p.evaluate(x)
		if err != nil {
			return nil, err
		}
		if s.maxViolation(p, vars) <= s.tol {
			return collect(vars), nil
		}
		mu *= 50
	}

	x, _ := toX(z)
	vars, err := p.evaluate(x)
	if err != nil {
		return nil, err
	}
	if viol := s.maxViolation(p, vars); viol > s.tol {
		return nil, fmt.Errorf("solver: constraints violated by %g after %d penalty rounds", viol, s.rounds)
	}
	return collect(vars), nil
}

func (s *gonumStrategy) maxViolation(p *Problem, vars map[string]value) float64 {
	worst := 0.0
	for name, b := range p.Constraints {
		node, ok := vars[name]
		if !ok {
			continue
		}
		for _, v := range node.v {
			switch {
			case b.Equals != nil:
				worst = math.Max(worst, math.Abs(v-*b.Equals))
			case b.Lower != nil && v < *b.Lower:
				worst = math.Max(worst, *b.Lower-v)
			case b.Upper != nil && v > *b.Upper:
				worst = math.Max(worst, v-*b.Upper)
			}
		}
	}
	return worst
}

func collect(vars map[string]value) map[string][]float64 {
	out := make(map[string][]float64, len(vars))
	for name, v := range vars {
		out[name] = append([]float64(nil), v.v...)
	}
	return out
}
