package container

import (
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlab/chardb/grid"
	"github.com/charlab/chardb/metrics"
	"github.com/charlab/chardb/numeric"
)

var (
	testConstants = numeric.Constants{
		"w":           numeric.F(1e-6),
		"corner_file": numeric.S("mos.lib"),
	}
	testEnvs = []string{"tt", "ff"}
	testVBs  = []float64{0.0, 0.5}
	testVGS  = Span{Start: 0, Stop: 1, Count: 5}
)

// idsAt is the synthetic characterization output recorded by writeSim.
func idsAt(env string, vb, vgs float64) float64 {
	scale := 1.0
	if env == "ff" {
		scale = 2.0
	}
	return scale*vgs + vb
}

// writeSim populates a complete raw container at path.
func writeSim(t *testing.T, path string) {
	t.Helper()
	rec := NewRecorder(path, numeric.DefaultRTol, numeric.DefaultATol, nil)
	require.NoError(t, rec.Ensure(testConstants, []string{"vgs"}, map[string]Span{"vgs": testVGS}))

	step := (testVGS.Stop - testVGS.Start) / float64(testVGS.Count-1)
	for _, env := range testEnvs {
		for _, vb := range testVBs {
			data := make([]float64, testVGS.Count)
			for i := range data {
				data[i] = idsAt(env, vb, testVGS.Start+float64(i)*step)
			}
			arr, err := grid.FromData(data, testVGS.Count)
			require.NoError(t, err)
			require.NoError(t, rec.Append(env,
				map[string]numeric.Value{"vb": numeric.F(vb)},
				map[string]*grid.DenseArray{"ids": arr}))
		}
	}
}

func TestRecorderRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	writeSim(t, path)

	raw, err := ReadRaw(path, nil)
	require.NoError(t, err)

	assert.True(t, raw.Constants.Equal(testConstants, numeric.DefaultRTol, numeric.DefaultATol))
	assert.Equal(t, []string{"vgs"}, raw.SweepOrder)
	assert.Equal(t, testVGS, raw.Spans["vgs"])
	require.Len(t, raw.Records, len(testEnvs)*len(testVBs))

	for _, rec := range raw.Records {
		env := rec.Coords[grid.EnvAxisName].Text()
		vb := rec.Coords["vb"].Float()
		arr := rec.Outputs["ids"]
		require.NotNil(t, arr)
		require.Equal(t, testVGS.Count, arr.Size())
		step := (testVGS.Stop - testVGS.Start) / float64(testVGS.Count-1)
		for i, got := range arr.Data() {
			assert.Equal(t, idsAt(env, vb, testVGS.Start+float64(i)*step), got)
		}
	}
}

func TestReadRawMissing(t *testing.T) {
	_, err := ReadRaw(filepath.Join(t.TempDir(), "nope.db"), nil)
	var missing *MissingSourceError
	require.ErrorAs(t, err, &missing)
}

func TestRecorderEnsureVerifies(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	writeSim(t, path)

	rec := NewRecorder(path, numeric.DefaultRTol, numeric.DefaultATol, nil)
	assert.NoError(t, rec.Ensure(testConstants, []string{"vgs"}, map[string]Span{"vgs": testVGS}))

	other := numeric.Constants{"w": numeric.F(2e-6), "corner_file": numeric.S("mos.lib")}
	err := rec.Ensure(other, []string{"vgs"}, map[string]Span{"vgs": testVGS})
	var inconsistent *grid.InconsistentDataError
	require.ErrorAs(t, err, &inconsistent)

	err = rec.Ensure(testConstants, []string{"vgs"}, map[string]Span{"vgs": {Start: 0, Stop: 1, Count: 7}})
	require.ErrorAs(t, err, &inconsistent)
}

func TestRecorderRejectsReservedAttr(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	rec := NewRecorder(path, numeric.DefaultRTol, numeric.DefaultATol, nil)
	require.NoError(t, rec.Ensure(nil, []string{"vgs"}, map[string]Span{"vgs": testVGS}))

	arr, err := grid.FromData(make([]float64, testVGS.Count), testVGS.Count)
	require.NoError(t, err)
	err = rec.Append("tt",
		map[string]numeric.Value{"sweep_params": numeric.F(1)},
		map[string]*grid.DenseArray{"ids": arr})
	var inconsistent *grid.InconsistentDataError
	require.ErrorAs(t, err, &inconsistent)
}

func TestRecorderMissingCombos(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.db")
	rec := NewRecorder(path, numeric.DefaultRTol, numeric.DefaultATol, nil)
	require.NoError(t, rec.Ensure(nil, []string{"vgs"}, map[string]Span{"vgs": testVGS}))

	arr, err := grid.FromData(make([]float64, testVGS.Count), testVGS.Count)
	require.NoError(t, err)
	require.NoError(t, rec.Append("tt",
		map[string]numeric.Value{"vb": numeric.F(0.0)},
		map[string]*grid.DenseArray{"ids": arr}))

	missing, err := rec.MissingCombos(
		map[string][]numeric.Value{"vb": {numeric.F(0.0), numeric.F(0.5)}},
		[]string{"tt", "ff"})
	require.NoError(t, err)
	require.Len(t, missing, 3)
	for _, combo := range missing {
		recorded := combo.Env == "tt" &&
			numeric.Equal(combo.Attrs["vb"], numeric.F(0.0), numeric.DefaultRTol, numeric.DefaultATol)
		assert.False(t, recorded, "combo %s vb=%s already recorded", combo.Env, combo.Attrs["vb"])
	}
}

func TestStoreLoadOrBuild(t *testing.T) {
	dir := t.TempDir()
	simPath := filepath.Join(dir, "sim.db")
	cachePath := filepath.Join(dir, "cache.db")
	writeSim(t, simPath)

	m := metrics.New(prometheus.NewRegistry())
	store := NewStore(numeric.DefaultRTol, numeric.DefaultATol, nil, m)

	axes, arrays, fileConstants, err := store.LoadOrBuild(simPath, cachePath, testConstants, []string{"vb"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheBuilds))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.CacheHits))
	assert.True(t, fileConstants.Equal(testConstants, numeric.DefaultRTol, numeric.DefaultATol))

	require.Len(t, axes, 3)
	assert.Equal(t, grid.EnvAxisName, axes[0].Name)
	assert.Equal(t, "vb", axes[1].Name)
	assert.Equal(t, "vgs", axes[2].Name)

	ids := arrays["ids"]
	require.NotNil(t, ids)
	assert.Equal(t, []int{2, 2, 5}, ids.Shape())
	for ei, env := range []string{axes[0].Values[0].Text(), axes[0].Values[1].Text()} {
		for bi, vb := range axes[1].Floats() {
			for gi, vgs := range axes[2].Floats() {
				assert.Equal(t, idsAt(env, vb, vgs), ids.At(ei, bi, gi))
			}
		}
	}

	// second construction must come from the cache, bit for bit
	axes2, arrays2, _, err := store.LoadOrBuild(simPath, cachePath, testConstants, []string{"vb"}, nil, false)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheBuilds))
	require.Len(t, axes2, 3)
	assert.Equal(t, ids.Data(), arrays2["ids"].Data())

	// force skips the artifact and rebuilds
	_, _, _, err = store.LoadOrBuild(simPath, cachePath, testConstants, []string{"vb"}, nil, true)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheBuilds))
}

func TestStorePostProcess(t *testing.T) {
	dir := t.TempDir()
	simPath := filepath.Join(dir, "sim.db")
	cachePath := filepath.Join(dir, "cache.db")
	writeSim(t, simPath)

	post := func(arrays map[string]*grid.DenseArray, axes []grid.Axis, constants numeric.Constants) (map[string]*grid.DenseArray, error) {
		doubled := arrays["ids"].Clone()
		for i, v := range arrays["ids"].Data() {
			doubled.Data()[i] = 2 * v
		}
		arrays["ids2"] = doubled
		return arrays, nil
	}

	store := NewStore(numeric.DefaultRTol, numeric.DefaultATol, nil, nil)
	_, arrays, _, err := store.LoadOrBuild(simPath, cachePath, testConstants, []string{"vb"}, post, false)
	require.NoError(t, err)
	require.NotNil(t, arrays["ids2"])

	// the post-processed output survives a cache round trip
	_, arrays2, _, err := store.LoadOrBuild(simPath, cachePath, testConstants, []string{"vb"}, nil, false)
	require.NoError(t, err)
	require.NotNil(t, arrays2["ids2"])
	assert.Equal(t, arrays["ids2"].Data(), arrays2["ids2"].Data())
}

func TestStoreCacheConstantsMismatch(t *testing.T) {
	dir := t.TempDir()
	simPath := filepath.Join(dir, "sim.db")
	cachePath := filepath.Join(dir, "cache.db")
	writeSim(t, simPath)

	store := NewStore(numeric.DefaultRTol, numeric.DefaultATol, nil, nil)
	_, _, _, err := store.LoadOrBuild(simPath, cachePath, testConstants, []string{"vb"}, nil, false)
	require.NoError(t, err)

	other := numeric.Constants{"w": numeric.F(3e-6)}
	_, _, _, err = store.Load(cachePath, other)
	var inconsistent *grid.InconsistentDataError
	require.ErrorAs(t, err, &inconsistent)
}

func TestStoreBuildConstantsMismatch(t *testing.T) {
	dir := t.TempDir()
	simPath := filepath.Join(dir, "sim.db")
	writeSim(t, simPath)

	store := NewStore(numeric.DefaultRTol, numeric.DefaultATol, nil, nil)
	other := numeric.Constants{"w": numeric.F(3e-6)}
	_, _, _, err := store.LoadOrBuild(simPath, filepath.Join(dir, "cache.db"), other, []string{"vb"}, nil, false)
	var inconsistent *grid.InconsistentDataError
	require.ErrorAs(t, err, &inconsistent)
}

func TestValueCodec(t *testing.T) {
	for _, v := range []numeric.Value{numeric.F(1.5), numeric.F(-1e-18), numeric.S("tt")} {
		kind, num, str := encodeValue(v)
		got, err := decodeValue(kind, num, str)
		require.NoError(t, err)
		assert.True(t, numeric.Equal(v, got, 0, 0))
	}

	_, err := decodeValue("x", 0, "")
	assert.Error(t, err)

	data := []float64{0, -1.5, 1e300, 3}
	decoded, err := decodeFloats(encodeFloats(data))
	require.NoError(t, err)
	assert.Equal(t, data, decoded)

	_, err = decodeFloats([]byte{1, 2, 3})
	assert.Error(t, err)

	shape, err := decodeShape(encodeShape([]int{2, 3, 5}))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3, 5}, shape)
}
