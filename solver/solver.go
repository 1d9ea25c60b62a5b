// Package solver assembles typed differentiable function graphs from
// characterization interpolants and hands them to an external
// optimization strategy. The engine's responsibility ends at producing
// correct, well-typed functions and bounds; iteration and convergence
// belong to the strategy.
package solver

import (
	"fmt"

	"github.com/charlab/chardb/interpolant"
)

// Bound constrains a variable from below, above, or to an exact value.
type Bound struct {
	Lower  *float64
	Upper  *float64
	Equals *float64
}

// Ptr is a convenience for building bounds literals.
func Ptr(v float64) *float64 { return &v }

// Input is one problem input. Dim is 1 for scalar inputs and the
// environment count for inputs that vary across environments. A
// non-nil Fixed holds the input constant; otherwise the input is a
// design variable bounded by [Lower, Upper].
type Input struct {
	Name  string
	Dim   int
	Lower float64
	Upper float64
	Fixed []float64
}

// FuncDef binds an output name to its per-environment interpolants.
// Inputs lists the continuous parameter names in the interpolants'
// argument order.
type FuncDef struct {
	Name   string
	Funcs  []interpolant.Func
	Inputs []string
}

// Define declares a derived variable computed from existing variables
// by a Go arithmetic expression, with the declared result
// dimensionality. Defines are evaluated in order, so later expressions
// may reference earlier ones.
type Define struct {
	Name string
	Expr string
	Dim  int
}

// Problem is the assembled typed function graph: inputs with bounds,
// interpolant-backed functions, derived-variable definitions, the
// objective name, and constraints on non-input variables.
type Problem struct {
	Objective   string
	Inputs      []Input
	Funcs       []FuncDef
	Defines     []Define
	Constraints map[string]Bound
	NumEnv      int
}

// Strategy solves an assembled problem, returning the value of every
// variable (inputs, function outputs and defined variables) at the
// solution.
type Strategy interface {
	Solve(p *Problem) (map[string][]float64, error)
}

// New selects a strategy by backend and method name at construction
// time; the engine never branches on backend identity elsewhere.
func New(backend, method string) (Strategy, error) {
	switch backend {
	case "gonum", "":
		return newGonumStrategy(method)
	default:
		return nil, fmt.Errorf("solver: unknown optimization backend %q", backend)
	}
}

// value is a vector-valued graph node with forward-mode partials with
// respect to the flattened free-variable vector. A nil gradient row
// means zero.
type value struct {
	v []float64
	g [][]float64
}

func (a value) dim() int { return len(a.v) }

// freeLayout returns the free inputs and the offset of each in the
// flattened design vector.
func (p *Problem) freeLayout() ([]Input, map[string]int, int) {
	var free []Input
	offsets := make(map[string]int)
	n := 0
	for _, in := range p.Inputs {
		if in.Fixed != nil {
			continue
		}
		free = append(free, in)
		offsets[in.Name] = n
		n += in.Dim
	}
	return free, offsets, n
}

// evaluate computes every variable in the graph at the free-variable
// vector x, with gradients.
func (p *Problem) evaluate(x []float64) (map[string]value, error) {
	_, offsets, nFree := p.freeLayout()
	if len(x) != nFree {
		return nil, fmt.Errorf("solver: design vector has %d entries, expected %d", len(x), nFree)
	}

	vars := make(map[string]value, len(p.Inputs)+len(p.Funcs)+len(p.Defines))

	for _, in := range p.Inputs {
		val := value{v: make([]float64, in.Dim), g: make([][]float64, in.Dim)}
		if in.Fixed != nil {
			copy(val.v, in.Fixed)
		} else {
			off := offsets[in.Name]
			for i := 0; i < in.Dim; i++ {
				val.v[i] = x[off+i]
				row := make([]float64, nFree)
				row[off+i] = 1
				val.g[i] = row
			}
		}
		vars[in.Name] = val
	}

	for _, fd := range p.Funcs {
		out, err := p.applyFunc(fd, vars, nFree)
		if err != nil {
			return nil, err
		}
		vars[fd.Name] = out
	}

	for _, def := range p.Defines {
		node, err := parseExpr(def.Expr)
		if err != nil {
			return nil, err
		}
		out, err := node.eval(vars, nFree)
		if err != nil {
			return nil, fmt.Errorf("solver: define %q: %w", def.Name, err)
		}
		if def.Dim > 0 && out.dim() != def.Dim {
			out, err = broadcast(out, def.Dim)
			if err != nil {
				return nil, fmt.Errorf("solver: define %q: %w", def.Name, err)
			}
		}
		vars[def.Name] = out
	}

	return vars, nil
}

// applyFunc evaluates one interpolant-backed function per environment
// and chains its gradient through the input nodes.
func (p *Problem) applyFunc(fd FuncDef, vars map[string]value, nFree int) (value, error) {
	if len(fd.Funcs) != p.NumEnv {
		return value{}, fmt.Errorf("solver: function %q has %d interpolants for %d environments",
			fd.Name, len(fd.Funcs), p.NumEnv)
	}
	out := value{v: make([]float64, p.NumEnv), g: make([][]float64, p.NumEnv)}
	arg := make([]float64, len(fd.Inputs))
	for e := 0; e < p.NumEnv; e++ {
		inVals := make([]value, len(fd.Inputs))
		for k, name := range fd.Inputs {
			iv, ok := vars[name]
			if !ok {
				return value{}, fmt.Errorf("solver: function %q input %q is undefined", fd.Name, name)
			}
			inVals[k] = iv
			arg[k] = componentAt(iv, e)
		}
		out.v[e] = fd.Funcs[e].Eval(arg)
		grad := fd.Funcs[e].Gradient(nil, arg)
		row := make([]float64, nFree)
		for k, iv := range inVals {
			srcRow := gradRowAt(iv, e)
			if srcRow == nil {
				continue
			}
			for j, gj := range srcRow {
				row[j] += grad[k] * gj
			}
		}
		out.g[e] = row
	}
	return out, nil
}

// componentAt reads element e of a node, broadcasting scalars.
func componentAt(v value, e int) float64 {
	if v.dim() == 1 {
		return v.v[0]
	}
	return v.v[e]
}

func gradRowAt(v value, e int) []float64 {
	if v.dim() == 1 {
		return v.g[0]
	}
	return v.g[e]
}

// broadcast widens a scalar node to dim entries.
func broadcast(v value, dim int) (value, error) {
	if v.dim() == dim {
		return v, nil
	}
	if v.dim() != 1 {
		return value{}, fmt.Errorf("cannot broadcast dimension %d to %d", v.dim(), dim)
	}
	out := value{v: make([]float64, dim), g: make([][]float64, dim)}
	for i := 0; i < dim; i++ {
		out.v[i] = v.v[0]
		out.g[i] = v.g[0]
	}
	return out, nil
}
