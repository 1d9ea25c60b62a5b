package container

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/charlab/chardb/grid"
	"github.com/charlab/chardb/metrics"
	"github.com/charlab/chardb/numeric"
)

// PostProcess transforms freshly assembled dense arrays before they are
// cached, for example computing small-signal quantities from raw
// currents. Axes are in storage order at this point. A nil PostProcess
// caches the assembled arrays unchanged.
type PostProcess func(arrays map[string]*grid.DenseArray, axes []grid.Axis, constants numeric.Constants) (map[string]*grid.DenseArray, error)

// Store persists and loads the consolidated dense arrays plus axis
// metadata, and decides cache-hit versus rebuild-from-raw.
//
// Cache writes are not transactional from the filesystem's perspective:
// a crash mid-write can leave a corrupt partial artifact. A later load
// detects this through the constants-match check and reports
// InconsistentDataError; it never falls back silently.
type Store struct {
	RTol    float64
	ATol    float64
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// NewStore returns a cache store with the given tolerances. Logger and
// metrics may be nil.
func NewStore(rtol, atol float64, logger *zap.Logger, m *metrics.Metrics) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{RTol: rtol, ATol: atol, Logger: logger.Named("cache"), Metrics: m}
}

const cacheSchema = `
CREATE TABLE constants (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	num  REAL NOT NULL,
	str  TEXT NOT NULL
);
CREATE TABLE axes (
	pos  INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL
);
CREATE TABLE axis_values (
	axis_pos INTEGER NOT NULL REFERENCES axes(pos),
	idx      INTEGER NOT NULL,
	kind     TEXT NOT NULL,
	num      REAL NOT NULL,
	str      TEXT NOT NULL
);
CREATE TABLE outputs (
	name  TEXT PRIMARY KEY,
	shape TEXT NOT NULL,
	data  BLOB NOT NULL
);
`

// LoadOrBuild returns the canonical axes and dense arrays for the given
// constants, loading the cache artifact when one exists (unless force
// is set) and otherwise rebuilding from the raw container and
// persisting a fresh artifact before returning.
func (s *Store) LoadOrBuild(simPath, cachePath string, constants numeric.Constants, discrete []string, post PostProcess, force bool) ([]grid.Axis, map[string]*grid.DenseArray, numeric.Constants, error) {
	if !force {
		if _, err := os.Stat(cachePath); err == nil {
			axes, arrays, fileConstants, err := s.Load(cachePath, constants)
			if err != nil {
				return nil, nil, nil, err
			}
			// cached axes are canonical already; zero swaps expected
			if _, err := grid.Canonicalize(axes, arrays, discrete, s.Logger); err != nil {
				return nil, nil, nil, err
			}
			if s.Metrics != nil {
				s.Metrics.CacheHits.Inc()
			}
			s.Logger.Debug("cache hit", zap.String("path", cachePath))
			return axes, arrays, fileConstants, nil
		}
	}

	start := time.Now()
	axes, arrays, fileConstants, err := s.build(simPath, constants, discrete, post)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := s.Save(cachePath, fileConstants, axes, arrays); err != nil {
		return nil, nil, nil, err
	}
	if s.Metrics != nil {
		s.Metrics.CacheBuilds.Inc()
		s.Metrics.BuildSeconds.Observe(time.Since(start).Seconds())
	}
	s.Logger.Info("rebuilt cache from raw data",
		zap.String("sim", simPath),
		zap.String("cache", cachePath),
		zap.Duration("elapsed", time.Since(start)),
	)
	return axes, arrays, fileConstants, nil
}

func (s *Store) build(simPath string, constants numeric.Constants, discrete []string, post PostProcess) ([]grid.Axis, map[string]*grid.DenseArray, numeric.Constants, error) {
	raw, err := ReadRaw(simPath, s.Logger)
	if err != nil {
		return nil, nil, nil, err
	}

	// every requested constant must match the container, within
	// tolerance; the container may carry more
	for name, want := range constants {
		got, ok := raw.Constants[name]
		if !ok || !numeric.Equal(got, want, s.RTol, s.ATol) {
			return nil, nil, nil, grid.Inconsistentf("raw container constant %q = %s, requested %s", name, got, want)
		}
	}

	validator := grid.NewValidator(s.RTol, s.ATol, s.Logger)
	attrAxes, err := validator.Validate(raw.Records, discrete)
	if err != nil {
		return nil, nil, nil, err
	}

	assembler := grid.NewAssembler(s.RTol, s.ATol, s.Logger)
	arrays, axes, err := assembler.Assemble(raw.Records, attrAxes, raw.ContinuousAxes())
	if err != nil {
		return nil, nil, nil, err
	}

	if post != nil {
		arrays, err = post(arrays, axes, raw.Constants)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("container: post-process: %w", err)
		}
	}

	if _, err := grid.Canonicalize(axes, arrays, discrete, s.Logger); err != nil {
		return nil, nil, nil, err
	}

	return axes, arrays, raw.Constants, nil
}

// Load reads a cache artifact and verifies its stored constants equal
// the requested constants. A mismatch is treated as cache corruption
// and reported as InconsistentDataError.
func (s *Store) Load(path string, want numeric.Constants) ([]grid.Axis, map[string]*grid.DenseArray, numeric.Constants, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("container: open cache %s: %w", path, err)
	}
	defer db.Close()

	constants := make(numeric.Constants)
	if err := readConstants(db, constants); err != nil {
		return nil, nil, nil, grid.Inconsistentf("cache %s is unreadable: %v", path, err)
	}
	for name, v := range want {
		got, ok := constants[name]
		if !ok || !numeric.Equal(got, v, s.RTol, s.ATol) {
			return nil, nil, nil, grid.Inconsistentf("cache %s constant %q = %s, requested %s", path, name, got, v)
		}
	}

	axes, err := s.loadAxes(db, path)
	if err != nil {
		return nil, nil, nil, err
	}
	arrays, err := s.loadOutputs(db, path)
	if err != nil {
		return nil, nil, nil, err
	}
	return axes, arrays, constants, nil
}

func (s *Store) loadAxes(db *sql.DB, path string) ([]grid.Axis, error) {
	rows, err := db.Query(`SELECT pos, name, kind FROM axes ORDER BY pos`)
	if err != nil {
		return nil, grid.Inconsistentf("cache %s has no axis metadata: %v", path, err)
	}
	type axisRow struct {
		pos  int
		axis grid.Axis
	}
	var metas []axisRow
	for rows.Next() {
		var pos int
		var name, kindStr string
		if err := rows.Scan(&pos, &name, &kindStr); err != nil {
			rows.Close()
			return nil, fmt.Errorf("container: scan axis: %w", err)
		}
		kind, err := parseAxisKind(kindStr)
		if err != nil {
			rows.Close()
			return nil, err
		}
		metas = append(metas, axisRow{pos: pos, axis: grid.Axis{Name: name, Kind: kind}})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	axes := make([]grid.Axis, len(metas))
	for i, meta := range metas {
		vrows, err := db.Query(`SELECT kind, num, str FROM axis_values WHERE axis_pos = ? ORDER BY idx`, meta.pos)
		if err != nil {
			return nil, fmt.Errorf("container: read axis %q values: %w", meta.axis.Name, err)
		}
		for vrows.Next() {
			var kind, str string
			var num float64
			if err := vrows.Scan(&kind, &num, &str); err != nil {
				vrows.Close()
				return nil, fmt.Errorf("container: scan axis value: %w", err)
			}
			v, err := decodeValue(kind, num, str)
			if err != nil {
				vrows.Close()
				return nil, err
			}
			meta.axis.Values = append(meta.axis.Values, v)
		}
		if err := vrows.Err(); err != nil {
			vrows.Close()
			return nil, err
		}
		vrows.Close()
		axes[i] = meta.axis
	}
	return axes, nil
}

func (s *Store) loadOutputs(db *sql.DB, path string) (map[string]*grid.DenseArray, error) {
	rows, err := db.Query(`SELECT name, shape, data FROM outputs`)
	if err != nil {
		return nil, grid.Inconsistentf("cache %s has no output data: %v", path, err)
	}
	defer rows.Close()

	arrays := make(map[string]*grid.DenseArray)
	for rows.Next() {
		var name, shapeStr string
		var blob []byte
		if err := rows.Scan(&name, &shapeStr, &blob); err != nil {
			return nil, fmt.Errorf("container: scan output: %w", err)
		}
		shape, err := decodeShape(shapeStr)
		if err != nil {
			return nil, err
		}
		data, err := decodeFloats(blob)
		if err != nil {
			return nil, err
		}
		arr, err := grid.FromData(data, shape...)
		if err != nil {
			return nil, grid.Inconsistentf("cache %s output %q: %v", path, name, err)
		}
		arrays[name] = arr
	}
	return arrays, rows.Err()
}

// Save persists axes and dense arrays as a new cache artifact,
// replacing any previous artifact at the path.
func (s *Store) Save(path string, constants numeric.Constants, axes []grid.Axis, arrays map[string]*grid.DenseArray) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("container: create cache directory: %w", err)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("container: remove stale cache: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("container: create cache %s: %w", path, err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("container: begin cache write: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(cacheSchema); err != nil {
		return fmt.Errorf("container: create cache schema: %w", err)
	}

	for name, v := range constants {
		kind, num, str := encodeValue(v)
		if _, err := tx.Exec(`INSERT INTO constants (name, kind, num, str) VALUES (?, ?, ?, ?)`,
			name, kind, num, str); err != nil {
			return fmt.Errorf("container: write cache constant %q: %w", name, err)
		}
	}
	for pos, ax := range axes {
		if _, err := tx.Exec(`INSERT INTO axes (pos, name, kind) VALUES (?, ?, ?)`,
			pos, ax.Name, ax.Kind.String()); err != nil {
			return fmt.Errorf("container: write axis %q: %w", ax.Name, err)
		}
		for i, v := range ax.Values {
			kind, num, str := encodeValue(v)
			if _, err := tx.Exec(`INSERT INTO axis_values (axis_pos, idx, kind, num, str) VALUES (?, ?, ?, ?, ?)`,
				pos, i, kind, num, str); err != nil {
				return fmt.Errorf("container: write axis %q value %d: %w", ax.Name, i, err)
			}
		}
	}
	for name, arr := range arrays {
		if _, err := tx.Exec(`INSERT INTO outputs (name, shape, data) VALUES (?, ?, ?)`,
			name, encodeShape(arr.Shape()), encodeFloats(arr.Data())); err != nil {
			return fmt.Errorf("container: write output %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("container: commit cache write: %w", err)
	}
	return nil
}

func parseAxisKind(s string) (grid.AxisKind, error) {
	switch s {
	case "environment":
		return grid.KindEnvironment, nil
	case "discrete":
		return grid.KindDiscrete, nil
	case "continuous":
		return grid.KindContinuous, nil
	default:
		return 0, fmt.Errorf("container: unknown axis kind %q", s)
	}
}
