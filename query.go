package chardb

import (
	"github.com/charlab/chardb/numeric"
)

// Query evaluates every primary and derived output at a fully specified
// point: the given environment, discrete coordinates and continuous
// values from bindings, with the parameter registry as fallback. A
// missing continuous value is UnsetParameterError. The result includes
// an echo of every discrete and continuous input actually used.
func (d *Database) Query(env string, bindings map[string]numeric.Value) (map[string]numeric.Value, error) {
	if d.metrics != nil {
		d.metrics.Queries.Inc()
	}

	arg, used, err := d.funcArg(bindings)
	if err != nil {
		return nil, err
	}
	idx, err := d.funcIndex(bindings)
	if err != nil {
		return nil, err
	}
	eidx, err := d.envIndex(env)
	if err != nil {
		return nil, err
	}
	idx[0] = eidx

	results := make(map[string]numeric.Value)
	for name := range d.funcs {
		f, err := d.interpolantAt(name, idx)
		if err != nil {
			return nil, err
		}
		results[name] = numeric.F(f.Eval(arg))
	}

	// echo the inputs the evaluation used
	for _, ax := range d.discreteAxes {
		val, ok := bindings[ax.Name]
		if !ok {
			val = d.params[ax.Name]
		}
		results[ax.Name] = val
	}
	for name, val := range used {
		results[name] = val
	}
	return results, nil
}

// funcArg assembles the interpolation argument vector from bindings and
// the registry, returning the continuous values actually used.
func (d *Database) funcArg(bindings map[string]numeric.Value) ([]float64, map[string]numeric.Value, error) {
	arg := make([]float64, len(d.contAxes))
	used := make(map[string]numeric.Value, len(d.contAxes))
	for i, ax := range d.contAxes {
		val, ok := bindings[ax.Name]
		if !ok {
			val, ok = d.params[ax.Name]
		}
		if !ok {
			return nil, nil, &UnsetParameterError{Name: ax.Name}
		}
		if val.Kind() != numeric.KindFloat {
			return nil, nil, &OutOfRangeError{Name: ax.Name, Value: val}
		}
		arg[i] = val.Float()
		used[ax.Name] = val
	}
	return arg, used, nil
}

// FuncSweepParams returns the continuous parameter names and their
// observed [min, max] ranges, in interpolation argument order.
func (d *Database) FuncSweepParams() ([]string, [][2]float64) {
	names := make([]string, len(d.contAxes))
	ranges := make([][2]float64, len(d.contAxes))
	for i, ax := range d.contAxes {
		names[i] = ax.Name
		ranges[i] = [2]float64{ax.Values[0].Float(), ax.Values[ax.Len()-1].Float()}
	}
	return names, ranges
}
