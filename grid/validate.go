package grid

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/charlab/chardb/numeric"
)

// EnvAxisName is the reserved name of the environment (corner) axis.
const EnvAxisName = "env"

// Validator checks that a set of raw records forms a complete Cartesian
// sweep whose swept attributes lie on regular grids.
type Validator struct {
	RTol   float64
	ATol   float64
	Logger *zap.Logger
}

// NewValidator returns a validator with the given tolerances. A nil
// logger is replaced by a no-op logger.
func NewValidator(rtol, atol float64, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{RTol: rtol, ATol: atol, Logger: logger.Named("validator")}
}

// Validate verifies the record set and returns the discovered
// environment/discrete attribute axes, sorted by attribute name with
// deduplicated, sorted value sequences.
//
// Checks, in order: the set is non-empty; no two records share a
// coordinate tuple (duplicate records are InconsistentDataError); the
// record count equals the Cartesian product of the attribute value-set
// sizes (IncompleteSweepError otherwise); every declared discrete axis
// occurs as an attribute; every attribute axis that is neither the
// environment nor declared discrete lies on a regular grid.
func (v *Validator) Validate(records []Record, discrete []string) ([]Axis, error) {
	if len(records) == 0 {
		return nil, Inconsistentf("no records in sweep")
	}

	// Collect the value set of every attribute across all records.
	table := make(map[string][]numeric.Value)
	for _, rec := range records {
		for name, val := range rec.Coords {
			if !numeric.Contains(table[name], val, v.RTol, v.ATol) {
				table[name] = append(table[name], val)
			}
		}
	}

	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)

	axes := make([]Axis, len(names))
	for i, name := range names {
		values := sortValues(table[name])
		axes[i] = Axis{Name: name, Kind: v.kindOf(name, discrete), Values: values}
	}

	if err := v.checkDuplicates(records, axes); err != nil {
		return nil, err
	}

	expected := 1
	for _, ax := range axes {
		expected *= ax.Len()
	}
	if expected != len(records) {
		return nil, &IncompleteSweepError{Expected: expected, Actual: len(records)}
	}

	for _, name := range discrete {
		if _, ok := table[name]; !ok {
			return nil, Inconsistentf("declared discrete axis %q not found in records", name)
		}
	}

	for _, ax := range axes {
		if ax.Kind != KindContinuous {
			continue
		}
		if err := v.checkRegular(ax); err != nil {
			return nil, err
		}
	}

	v.Logger.Debug("sweep validated",
		zap.Int("records", len(records)),
		zap.Int("axes", len(axes)),
	)

	return axes, nil
}

func (v *Validator) kindOf(name string, discrete []string) AxisKind {
	if name == EnvAxisName {
		return KindEnvironment
	}
	for _, d := range discrete {
		if d == name {
			return KindDiscrete
		}
	}
	return KindContinuous
}

// checkDuplicates fails when two records carry the same coordinate
// tuple. This runs before the count check so a duplicated record is
// reported as inconsistent data, not as an incomplete sweep.
func (v *Validator) checkDuplicates(records []Record, axes []Axis) error {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		key := v.coordKey(rec, axes)
		if _, ok := seen[key]; ok {
			return Inconsistentf("duplicate record at sweep point %s", key)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (v *Validator) coordKey(rec Record, axes []Axis) string {
	var b strings.Builder
	for _, ax := range axes {
		val, ok := rec.Coords[ax.Name]
		if !ok {
			b.WriteString(ax.Name + "=?;")
			continue
		}
		idx := numeric.IndexIn(ax.Values, val, v.RTol, v.ATol)
		b.WriteString(ax.Name)
		b.WriteByte('=')
		b.WriteString(ax.Values[idx].String())
		b.WriteByte(';')
	}
	return b.String()
}

// CheckRegularGrid verifies that values form an evenly spaced sequence
// between their endpoints, within tolerance.
func (v *Validator) CheckRegularGrid(name string, values []float64) error {
	n := len(values)
	if n < 2 {
		return nil
	}
	step := (values[n-1] - values[0]) / float64(n-1)
	for i, got := range values {
		want := values[0] + float64(i)*step
		if !numeric.Close(got, want, v.RTol, v.ATol) {
			return Inconsistentf("axis %q is not a regular grid: values[%d] = %g, expected %g",
				name, i, got, want)
		}
	}
	return nil
}

func (v *Validator) checkRegular(ax Axis) error {
	for _, val := range ax.Values {
		if val.Kind() != numeric.KindFloat {
			return Inconsistentf("axis %q has non-numeric value %q on a gridded axis", ax.Name, val.Text())
		}
	}
	return v.CheckRegularGrid(ax.Name, ax.Floats())
}

func sortValues(values []numeric.Value) []numeric.Value {
	out := append([]numeric.Value(nil), values...)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Kind() != b.Kind() {
			return a.Kind() < b.Kind()
		}
		if a.Kind() == numeric.KindString {
			return a.Text() < b.Text()
		}
		return a.Float() < b.Float()
	})
	return out
}
