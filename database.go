// Package chardb implements a parametric characterization database: it
// consolidates raw per-combination simulation records into dense
// axis-ordered arrays, maintains an on-disk post-processed cache, and
// lazily builds memoized differentiable interpolants that serve point
// queries and supply typed functions to an external optimizer.
package chardb

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/charlab/chardb/config"
	"github.com/charlab/chardb/container"
	"github.com/charlab/chardb/grid"
	"github.com/charlab/chardb/interpolant"
	"github.com/charlab/chardb/metrics"
	"github.com/charlab/chardb/numeric"
)

// Config configures a Database instance. Zero tunables fall back to the
// environment-variable defaults from the config package.
type Config struct {
	// RootDir is the root characterization data directory.
	RootDir string

	// Constants is the fixed context the data must match.
	Constants numeric.Constants

	// DiscreteParams lists the discrete parameter names, in the order
	// they should appear in the canonical axis order.
	DiscreteParams []string

	// InitParams holds initial parameter bindings; omit a name to
	// leave it unset.
	InitParams map[string]numeric.Value

	// Environments restricts the environments considered by Function
	// and Minimize. Empty means every environment in the data.
	Environments []string

	// ForceRebuild skips the cache artifact and rebuilds from raw
	// data.
	ForceRebuild bool

	// RTol and ATol are the comparison tolerances (zero = default).
	RTol float64
	ATol float64

	// Method is the interpolation method ("linear" or "spline";
	// empty = default).
	Method string

	// OptBackend and OptMethod select the optimization strategy
	// (empty = default).
	OptBackend string
	OptMethod  string

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// settings are the runtime-tunable configuration values.
type settings struct {
	rtol       float64
	atol       float64
	method     string
	optBackend string
	optMethod  string
}

// Database is a queryable characterization database instance. It owns
// its dense arrays, interpolant cache and parameter registry
// exclusively; instances share no mutable state. All operations are
// synchronous, and lazy interpolant construction is not safe for
// concurrent first access to the same key.
type Database struct {
	ds      Dataset
	logger  *zap.Logger
	metrics *metrics.Metrics

	constants numeric.Constants
	axes      []grid.Axis
	data      map[string]*grid.DenseArray

	envAxis      grid.Axis
	discreteAxes []grid.Axis
	contAxes     []grid.Axis

	envs   []string
	params map[string]numeric.Value
	cfg    settings

	// lazy interpolant table: per output, one slot per
	// (environment, discrete...) cell, nil until built
	funcs     map[string][]interpolant.Func
	funcDims  []int
	numBuilds int
}

// New constructs a database for the given dataset, loading the cache
// artifact when present and otherwise rebuilding it from raw data. A
// validation failure aborts construction entirely.
func New(ds Dataset, cfg Config) (*Database, error) {
	defaults, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("chardb: load defaults: %w", err)
	}
	st := settings{
		rtol:       cfg.RTol,
		atol:       cfg.ATol,
		method:     cfg.Method,
		optBackend: cfg.OptBackend,
		optMethod:  cfg.OptMethod,
	}
	if st.rtol == 0 {
		st.rtol = defaults.RTol
	}
	if st.atol == 0 {
		st.atol = defaults.ATol
	}
	if st.method == "" {
		st.method = defaults.Method
	}
	if st.optBackend == "" {
		st.optBackend = defaults.OptBackend
	}
	if st.optMethod == "" {
		st.optMethod = defaults.OptMethod
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("chardb")

	discrete := make([]string, 0, len(cfg.DiscreteParams))
	for _, name := range cfg.DiscreteParams {
		if name != grid.EnvAxisName {
			discrete = append(discrete, name)
		}
	}

	store := container.NewStore(st.rtol, st.atol, logger, cfg.Metrics)
	axes, arrays, fileConstants, err := store.LoadOrBuild(
		ds.SimFile(cfg.RootDir, cfg.Constants),
		ds.CacheFile(cfg.RootDir, cfg.Constants),
		cfg.Constants,
		discrete,
		ds.PostProcess,
		cfg.ForceRebuild,
	)
	if err != nil {
		return nil, err
	}

	d := &Database{
		ds:        ds,
		logger:    logger,
		metrics:   cfg.Metrics,
		constants: fileConstants,
		axes:      axes,
		data:      arrays,
		params:    make(map[string]numeric.Value),
		cfg:       st,
	}

	d.envAxis = axes[0]
	d.discreteAxes = axes[1 : 1+len(discrete)]
	d.contAxes = axes[1+len(discrete):]

	if len(cfg.Environments) > 0 {
		if err := d.SetEnvironments(cfg.Environments); err != nil {
			return nil, err
		}
	} else {
		for _, v := range d.envAxis.Values {
			d.envs = append(d.envs, v.Text())
		}
	}

	for name, v := range cfg.InitParams {
		if err := d.SetParam(name, v); err != nil {
			return nil, err
		}
	}

	d.funcDims = make([]int, 1+len(d.discreteAxes))
	d.funcDims[0] = d.envAxis.Len()
	cells := d.envAxis.Len()
	for i, ax := range d.discreteAxes {
		d.funcDims[i+1] = ax.Len()
		cells *= ax.Len()
	}

	d.funcs = make(map[string][]interpolant.Func)
	for name := range d.data {
		d.funcs[name] = make([]interpolant.Func, cells)
	}
	for _, name := range ds.DerivedOutputs() {
		d.funcs[name] = make([]interpolant.Func, cells)
	}

	logger.Info("database ready",
		zap.Int("outputs", len(d.data)),
		zap.Int("derived", len(ds.DerivedOutputs())),
		zap.Int("environments", d.envAxis.Len()),
		zap.Int("discrete_axes", len(d.discreteAxes)),
		zap.Int("continuous_axes", len(d.contAxes)),
	)
	return d, nil
}

// Constants returns the constants stored alongside the data.
func (d *Database) Constants() numeric.Constants { return d.constants.Clone() }

// Outputs returns the primary output names, sorted.
func (d *Database) Outputs() []string {
	names := make([]string, 0, len(d.data))
	for name := range d.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Environments returns the active environment view.
func (d *Database) Environments() []string {
	return append([]string(nil), d.envs...)
}

// SetEnvironments replaces the active environment view. Every name
// must exist on the environment axis.
func (d *Database) SetEnvironments(envs []string) error {
	for _, env := range envs {
		if _, err := d.envIndex(env); err != nil {
			return err
		}
	}
	d.envs = append([]string(nil), envs...)
	return nil
}

// Param returns the current binding of a parameter; ok is false when
// the parameter is unset.
func (d *Database) Param(name string) (v numeric.Value, ok bool, err error) {
	if !d.isParam(name) {
		return numeric.Value{}, false, &UnknownParameterError{Name: name}
	}
	v, ok = d.params[name]
	return v, ok, nil
}

// SetParam binds a parameter. Discrete values must be tolerance-members
// of the axis's value set; continuous values must lie within the axis's
// observed [min, max].
func (d *Database) SetParam(name string, v numeric.Value) error {
	if ax, ok := d.discreteAxis(name); ok {
		if !numeric.Contains(ax.Values, v, d.cfg.rtol, d.cfg.atol) {
			return &OutOfRangeError{Name: name, Value: v}
		}
		d.params[name] = v
		return nil
	}
	if ax, ok := d.continuousAxis(name); ok {
		if v.Kind() != numeric.KindFloat {
			return &OutOfRangeError{Name: name, Value: v}
		}
		lo := ax.Values[0].Float()
		hi := ax.Values[ax.Len()-1].Float()
		if v.Float() < lo || v.Float() > hi {
			return &OutOfRangeError{Name: name, Value: v}
		}
		d.params[name] = v
		return nil
	}
	return &UnknownParameterError{Name: name}
}

// UnsetParam clears a parameter binding. Unsetting is always legal for
// known parameters.
func (d *Database) UnsetParam(name string) error {
	if !d.isParam(name) {
		return &UnknownParameterError{Name: name}
	}
	delete(d.params, name)
	return nil
}

// Configuration tunable names.
const (
	ConfigRTol       = "rtol"
	ConfigATol       = "atol"
	ConfigMethod     = "method"
	ConfigOptBackend = "opt_backend"
	ConfigOptMethod  = "opt_method"
)

// ConfigValue returns a tunable's current value.
func (d *Database) ConfigValue(name string) (interface{}, error) {
	switch name {
	case ConfigRTol:
		return d.cfg.rtol, nil
	case ConfigATol:
		return d.cfg.atol, nil
	case ConfigMethod:
		return d.cfg.method, nil
	case ConfigOptBackend:
		return d.cfg.optBackend, nil
	case ConfigOptMethod:
		return d.cfg.optMethod, nil
	default:
		return nil, &UnknownParameterError{Name: name}
	}
}

// SetConfigValue sets a tunable. Note that interpolants already built
// keep the method they were built with.
func (d *Database) SetConfigValue(name string, v interface{}) error {
	switch name {
	case ConfigRTol, ConfigATol:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("chardb: configuration %q requires a float64", name)
		}
		if name == ConfigRTol {
			d.cfg.rtol = f
		} else {
			d.cfg.atol = f
		}
	case ConfigMethod, ConfigOptBackend, ConfigOptMethod:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("chardb: configuration %q requires a string", name)
		}
		switch name {
		case ConfigMethod:
			d.cfg.method = s
		case ConfigOptBackend:
			d.cfg.optBackend = s
		default:
			d.cfg.optMethod = s
		}
	default:
		return &UnknownParameterError{Name: name}
	}
	return nil
}

func (d *Database) isParam(name string) bool {
	if _, ok := d.discreteAxis(name); ok {
		return true
	}
	_, ok := d.continuousAxis(name)
	return ok
}

func (d *Database) discreteAxis(name string) (grid.Axis, bool) {
	for _, ax := range d.discreteAxes {
		if ax.Name == name {
			return ax, true
		}
	}
	return grid.Axis{}, false
}

func (d *Database) continuousAxis(name string) (grid.Axis, bool) {
	for _, ax := range d.contAxes {
		if ax.Name == name {
			return ax, true
		}
	}
	return grid.Axis{}, false
}

func (d *Database) envIndex(env string) (int, error) {
	want := numeric.NormalizeText(env)
	for i, v := range d.envAxis.Values {
		if v.Text() == want {
			return i, nil
		}
	}
	return 0, &OutOfRangeError{Name: grid.EnvAxisName, Value: numeric.S(env)}
}

// funcIndex resolves the discrete coordinates (from bindings, falling
// back to the registry) into the interpolant-table index. The
// environment slot is left at zero for the caller to fill.
func (d *Database) funcIndex(bindings map[string]numeric.Value) ([]int, error) {
	idx := make([]int, 1+len(d.discreteAxes))
	for i, ax := range d.discreteAxes {
		val, ok := bindings[ax.Name]
		if !ok {
			val, ok = d.params[ax.Name]
		}
		if !ok {
			return nil, &UnsetParameterError{Name: ax.Name}
		}
		pos := numeric.IndexIn(ax.Values, val, d.cfg.rtol, d.cfg.atol)
		if pos < 0 {
			return nil, &OutOfRangeError{Name: ax.Name, Value: val}
		}
		idx[i+1] = pos
	}
	return idx, nil
}

func (d *Database) flatIndex(idx []int) int {
	flat := 0
	for i, v := range idx {
		flat = flat*d.funcDims[i] + v
	}
	return flat
}

// interpolantAt returns the memoized interpolant for (output name,
// discrete index tuple), building it on first access. Primary outputs
// interpolate the dense-array slice at the index over the continuous
// axes; derived outputs resolve every primary interpolant at the same
// index and invoke the dataset's combinator once, caching all of its
// results.
func (d *Database) interpolantAt(name string, idx []int) (interpolant.Func, error) {
	table, ok := d.funcs[name]
	if !ok {
		return nil, &UnknownParameterError{Name: name}
	}
	flat := d.flatIndex(idx)
	if f := table[flat]; f != nil {
		return f, nil
	}

	if arr, primary := d.data[name]; primary {
		scales := make([]interpolant.Scale, len(d.contAxes))
		shape := make([]int, len(d.contAxes))
		for i, ax := range d.contAxes {
			scales[i] = interpolant.Scale{Start: ax.Start(), Step: ax.Step()}
			shape[i] = ax.Len()
		}
		f, err := interpolant.NewGrid(scales, shape, arr.LeadingBlock(idx...), d.cfg.method)
		if err != nil {
			return nil, fmt.Errorf("chardb: build interpolant for %q: %w", name, err)
		}
		table[flat] = f
		d.noteBuild(name, idx)
		return f, nil
	}

	// derived output: resolve the primaries, invoke the combinator
	// once, and cache every derived output it produced
	core := make(map[string]interpolant.Func, len(d.data))
	for pn := range d.data {
		pf, err := d.interpolantAt(pn, idx)
		if err != nil {
			return nil, err
		}
		core[pn] = pf
	}
	derived, err := d.ds.ComputeDerived(core)
	if err != nil {
		return nil, fmt.Errorf("chardb: derive %q: %w", name, err)
	}
	for dn, df := range derived {
		dt, ok := d.funcs[dn]
		if !ok {
			return nil, fmt.Errorf("chardb: combinator produced undeclared output %q", dn)
		}
		if dt[flat] == nil {
			dt[flat] = df
			d.noteBuild(dn, idx)
		}
	}
	if table[flat] == nil {
		return nil, fmt.Errorf("chardb: combinator did not produce declared output %q", name)
	}
	return table[flat], nil
}

func (d *Database) noteBuild(name string, idx []int) {
	d.numBuilds++
	if d.metrics != nil {
		d.metrics.InterpolantBuilds.WithLabelValues(name).Inc()
	}
	d.logger.Debug("built interpolant",
		zap.String("output", name),
		zap.Ints("index", idx),
	)
}

// InterpolantBuilds reports how many interpolants have been built so
// far; each (output, index) key builds at most once.
func (d *Database) InterpolantBuilds() int { return d.numBuilds }

// Function returns the named output as a vector-valued differentiable
// function across the active environments, one interpolant per
// environment stitched into a single callable.
func (d *Database) Function(name string, bindings map[string]numeric.Value) (*interpolant.Vector, error) {
	idx, err := d.funcIndex(bindings)
	if err != nil {
		return nil, err
	}
	funcs := make([]interpolant.Func, len(d.envs))
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
	return interpolant.NewVector(funcs), nil
}

// ScalarFunction returns the named output's differentiable function for
// a single environment. env may be empty only when exactly one
// environment is active.
func (d *Database) ScalarFunction(name, env string, bindings map[string]numeric.Value) (interpolant.Func, error) {
	if env == "" {
		if len(d.envs) != 1 {
			return nil, fmt.Errorf("chardb: more than one environment is active; specify one")
		}
		env = d.envs[0]
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
	return d.interpolantAt(name, idx)
}
