package grid

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlab/chardb/numeric"
)

func TestAssembleRoundTrip(t *testing.T) {
	envs := []string{"tt", "ff"}
	vbs := []float64{0.0, 0.5}
	vgs := []float64{0, 0.25, 0.5, 0.75, 1}
	records := sweepRecords(t, envs, vbs, vgs)

	v := NewValidator(numeric.DefaultRTol, numeric.DefaultATol, nil)
	attrAxes, err := v.Validate(records, []string{"vb"})
	require.NoError(t, err)

	a := NewAssembler(numeric.DefaultRTol, numeric.DefaultATol, nil)
	arrays, axes, err := a.Assemble(records, attrAxes, []Axis{ContinuousAxis("vgs", 0, 1, len(vgs))})
	require.NoError(t, err)

	require.Len(t, axes, 3)
	assert.Equal(t, []string{EnvAxisName, "vb", "vgs"}, []string{axes[0].Name, axes[1].Name, axes[2].Name})

	ids := arrays["ids"]
	require.NotNil(t, ids)
	assert.Equal(t, []int{2, 2, 5}, ids.Shape())

	// every stored value must match its source record bit for bit
	for ei := range envs {
		for bi, vb := range vbs {
			for gi, v := range vgs {
				want := float64(ei+1)*v + vb
				assert.Equal(t, want, ids.At(ei, bi, gi))
			}
		}
	}
}

func TestAssembleOverlappingWrite(t *testing.T) {
	records := sweepRecords(t, []string{"tt"}, []float64{0.0}, []float64{0, 1})
	records = append(records, records[0])

	a := NewAssembler(numeric.DefaultRTol, numeric.DefaultATol, nil)
	attrAxes := []Axis{
		{Name: EnvAxisName, Kind: KindEnvironment, Values: []numeric.Value{numeric.S("tt")}},
		{Name: "vb", Kind: KindDiscrete, Values: []numeric.Value{numeric.F(0.0)}},
	}
	_, _, err := a.Assemble(records, attrAxes, []Axis{ContinuousAxis("vgs", 0, 1, 2)})
	var inconsistent *InconsistentDataError
	require.ErrorAs(t, err, &inconsistent)
}

func TestAssembleSubArraySizeMismatch(t *testing.T) {
	records := sweepRecords(t, []string{"tt"}, []float64{0.0}, []float64{0, 0.5, 1})

	a := NewAssembler(numeric.DefaultRTol, numeric.DefaultATol, nil)
	attrAxes := []Axis{
		{Name: EnvAxisName, Kind: KindEnvironment, Values: []numeric.Value{numeric.S("tt")}},
		{Name: "vb", Kind: KindDiscrete, Values: []numeric.Value{numeric.F(0.0)}},
	}
	// continuous grid declared with 2 points, record carries 3
	_, _, err := a.Assemble(records, attrAxes, []Axis{ContinuousAxis("vgs", 0, 1, 2)})
	var inconsistent *InconsistentDataError
	require.ErrorAs(t, err, &inconsistent)
}

func TestAssembleToleratesCoordinateJitter(t *testing.T) {
	records := sweepRecords(t, []string{"tt"}, []float64{0.5}, []float64{0, 1})
	records[0].Coords["vb"] = numeric.F(0.5 * (1 + 1e-9))

	v := NewValidator(numeric.DefaultRTol, numeric.DefaultATol, nil)
	attrAxes, err := v.Validate(records, []string{"vb"})
	require.NoError(t, err)

	a := NewAssembler(numeric.DefaultRTol, numeric.DefaultATol, nil)
	_, _, err = a.Assemble(records, attrAxes, []Axis{ContinuousAxis("vgs", 0, 1, 2)})
	assert.NoError(t, err)
}
