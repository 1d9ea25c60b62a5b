package chardb

import (
	"github.com/charlab/chardb/interpolant"
	"github.com/charlab/chardb/numeric"
	"github.com/charlab/chardb/solver"
)

// MinimizeSpec describes an optimization request: the objective output
// to minimize, derived-variable definitions, constraints, the partition
// of inputs into scalar versus vector-across-environment, and known
// parameter values.
type MinimizeSpec struct {
	// Objective is the scalar variable to minimize.
	Objective string

	// Defines declares derived variables from expressions over
	// existing variables. Defining "vgs = vds" forces two inputs
	// equal.
	Defines []solver.Define

	// Constraints bound variables by name. A constraint on an input
	// tightens its bounds (or fixes it, for Equals); a constraint on
	// any other variable is handed to the strategy.
	Constraints map[string]solver.Bound

	// VectorParams marks inputs that may differ across environments.
	VectorParams map[string]bool

	// Bindings supplies known parameter values, discrete and
	// continuous; the registry is the fallback.
	Bindings map[string]numeric.Value
}

// MinimizeResult is the solved variable assignment merged with the
// fixed discrete inputs it was solved under.
type MinimizeResult struct {
	// Discrete holds the discrete coordinates the problem was fixed
	// at.
	Discrete map[string]numeric.Value

	// Values holds every solved variable: inputs, outputs and defined
	// variables. Scalars have one entry; vector variables have one
	// entry per active environment.
	Values map[string][]float64
}

// Minimize finds the continuous operating point that minimizes the
// objective, subject to the given definitions and constraints. The
// function graph reuses the instance's interpolant cache; solver
// iteration and convergence are the injected strategy's concern.
func (d *Database) Minimize(spec MinimizeSpec) (*MinimizeResult, error) {
	idx, err := d.funcIndex(spec.Bindings)
	if err != nil {
		return nil, err
	}
	numEnv := len(d.envs)

	prob := &solver.Problem{
		Objective:   spec.Objective,
		Defines:     spec.Defines,
		Constraints: make(map[string]solver.Bound),
		NumEnv:      numEnv,
	}

	contNames := make([]string, len(d.contAxes))
	for i, ax := range d.contAxes {
		contNames[i] = ax.Name
	}

	// inputs: one per continuous parameter, bounded by the observed
	// axis range; known values and equality constraints fix them
	for _, ax := range d.contAxes {
		in := solver.Input{
			Name:  ax.Name,
			Dim:   1,
			Lower: ax.Values[0].Float(),
			Upper: ax.Values[ax.Len()-1].Float(),
		}
		if spec.VectorParams[ax.Name] {
			in.Dim = numEnv
		}

		val, bound := spec.Bindings[ax.Name]
		if !bound {
			val, bound = d.params[ax.Name]
		}
		if b, ok := spec.Constraints[ax.Name]; ok {
			switch {
			case b.Equals != nil:
				in.Fixed = fill(*b.Equals, in.Dim)
			default:
				if b.Lower != nil && *b.Lower > in.Lower {
					in.Lower = *b.Lower
				}
				if b.Upper != nil && *b.Upper < in.Upper {
					in.Upper = *b.Upper
				}
			}
		}
		if in.Fixed == nil && bound {
			if val.Kind() != numeric.KindFloat {
				return nil, &OutOfRangeError{Name: ax.Name, Value: val}
			}
			in.Fixed = fill(val.Float(), in.Dim)
		}
		prob.Inputs = append(prob.Inputs, in)
	}

	// every primary and derived output joins the graph as a
	// vector-across-environment function
	for name := range d.funcs {
		funcs := make([]interpolant.Func, numEnv)
		for i, env := range d.envs {
			eidx, err := d.envIndex(env)
			if err != nil {
				return nil, err
			}
			idx[0] = eidx
			f, err := d.interpolantAt(name, idx)
			if err != nil {
				return nil, err
			}
			funcs[i] = f
		}
		prob.Funcs = append(prob.Funcs, solver.FuncDef{
			Name:   name,
			Funcs:  funcs,
			Inputs: contNames,
		})
	}

	// constraints on non-input variables pass through to the strategy
	for name, b := range spec.Constraints {
		if _, isInput := d.continuousAxis(name); isInput {
			continue
		}
		prob.Constraints[name] = b
	}

	strategy, err := solver.New(d.cfg.optBackend, d.cfg.optMethod)
	if err != nil {
		return nil, err
	}
	values, err := strategy.Solve(prob)
	if err != nil {
		return nil, err
	}

	discrete := make(map[string]numeric.Value, len(d.discreteAxes))
	for _, ax := range d.discreteAxes {
		val, ok := spec.Bindings[ax.Name]
		if !ok {
			val = d.params[ax.Name]
		}
		discrete[ax.Name] = val
	}
	return &MinimizeResult{Discrete: discrete, Values: values}, nil
}

func fill(v float64, dim int) []float64 {
	out := make([]float64, dim)
	for i := range out {
		out[i] = v
	}
	return out
}
