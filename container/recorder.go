package container

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/charlab/chardb/grid"
	"github.com/charlab/chardb/numeric"
)

// reservedAttr is the set of attribute names owned by the container
// layout itself; a producer attribute with one of these names collides
// with the layout and is rejected.
var reservedAttr = map[string]struct{}{
	grid.EnvAxisName: {},
	"sweep_params":   {},
}

// Recorder writes raw data containers on behalf of a simulation driver.
// It never overwrites existing data: appending to an existing container
// first verifies that its constants and sweep parameters match.
type Recorder struct {
	path   string
	rtol   float64
	atol   float64
	logger *zap.Logger
}

// NewRecorder returns a recorder for the container at path.
func NewRecorder(path string, rtol, atol float64, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{path: path, rtol: rtol, atol: atol, logger: logger.Named("recorder")}
}

const rawSchema = `
CREATE TABLE IF NOT EXISTS constants (
	name TEXT PRIMARY KEY,
	kind TEXT NOT NULL,
	num  REAL NOT NULL,
	str  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sweep_params (
	pos   INTEGER PRIMARY KEY,
	name  TEXT NOT NULL UNIQUE,
	start REAL NOT NULL,
	stop  REAL NOT NULL,
	count INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS sweep_groups (
	id INTEGER PRIMARY KEY AUTOINCREMENT
);
CREATE TABLE IF NOT EXISTS group_attrs (
	group_id INTEGER NOT NULL REFERENCES sweep_groups(id),
	name     TEXT NOT NULL,
	kind     TEXT NOT NULL,
	num      REAL NOT NULL,
	str      TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS group_data (
	group_id INTEGER NOT NULL REFERENCES sweep_groups(id),
	output   TEXT NOT NULL,
	shape    TEXT NOT NULL,
	data     BLOB NOT NULL
);
`

// Ensure creates the container with the given constants and sweep
// parameters if it does not exist, or verifies an existing container is
// consistent with them. A mismatch is InconsistentDataError.
func (r *Recorder) Ensure(constants numeric.Constants, sweepOrder []string, spans map[string]Span) error {
	if _, err := os.Stat(r.path); err == nil {
		return r.verify(constants, sweepOrder, spans)
	}

	if dir := filepath.Dir(r.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("container: create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", r.path)
	if err != nil {
		return fmt.Errorf("container: create raw container %s: %w", r.path, err)
	}
	defer db.Close()

	if _, err := db.Exec(rawSchema); err != nil {
		return fmt.Errorf("container: create schema: %w", err)
	}

	for name, v := range constants {
		kind, num, str := encodeValue(v)
		if _, err := db.Exec(`INSERT INTO constants (name, kind, num, str) VALUES (?, ?, ?, ?)`,
			name, kind, num, str); err != nil {
			return fmt.Errorf("container: write constant %q: %w", name, err)
		}
	}
	for pos, name := range sweepOrder {
		sp, ok := spans[name]
		if !ok {
			return grid.Inconsistentf("sweep parameter %q has no span", name)
		}
		if _, err := db.Exec(`INSERT INTO sweep_params (pos, name, start, stop, count) VALUES (?, ?, ?, ?, ?)`,
			pos, name, sp.Start, sp.Stop, sp.Count); err != nil {
			return fmt.Errorf("container: write sweep param %q: %w", name, err)
		}
	}

	r.logger.Info("created raw container", zap.String("path", r.path))
	return nil
}

func (r *Recorder) verify(constants numeric.Constants, sweepOrder []string, spans map[string]Span) error {
	raw, err := ReadRaw(r.path, r.logger)
	if err != nil {
		return err
	}
	for name, want := range constants {
		got, ok := raw.Constants[name]
		if !ok || !numeric.Equal(got, want, r.rtol, r.atol) {
			return grid.Inconsistentf("container %s constant %q = %s, requested %s", r.path, name, got, want)
		}
	}
	if len(sweepOrder) != len(raw.SweepOrder) {
		return grid.Inconsistentf("container %s has %d sweep parameters, requested %d",
			r.path, len(raw.SweepOrder), len(sweepOrder))
	}
	for i, name := range sweepOrder {
		if raw.SweepOrder[i] != name {
			return grid.Inconsistentf("container %s sweep parameter %d is %q, requested %q",
				r.path, i, raw.SweepOrder[i], name)
		}
		got, want := raw.Spans[name], spans[name]
		if got.Count != want.Count ||
			!numeric.Close(got.Start, want.Start, r.rtol, r.atol) ||
			!numeric.Close(got.Stop, want.Stop, r.rtol, r.atol) {
			return grid.Inconsistentf("container %s sweep parameter %q span mismatch", r.path, name)
		}
	}
	return nil
}

// Append records one sweep point: the environment name, one attribute
// per discrete axis, and one dataset per output spanning the continuous
// grid. Attribute names reserved by the container layout are rejected.
func (r *Recorder) Append(env string, attrs map[string]numeric.Value, outputs map[string]*grid.DenseArray) error {
	for name := range attrs {
		if _, reserved := reservedAttr[name]; reserved {
			return grid.Inconsistentf("attribute name %q is reserved by the container layout", name)
		}
	}

	db, err := sql.Open("sqlite", r.path)
	if err != nil {
		return fmt.Errorf("container: open raw container %s: %w", r.path, err)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("container: begin append: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`INSERT INTO sweep_groups DEFAULT VALUES`)
	if err != nil {
		return fmt.Errorf("container: insert sweep group: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("container: sweep group id: %w", err)
	}

	writeAttr := func(name string, v numeric.Value) error {
		kind, num, str := encodeValue(v)
		_, err := tx.Exec(`INSERT INTO group_attrs (group_id, name, kind, num, str) VALUES (?, ?, ?, ?, ?)`,
			id, name, kind, num, str)
		return err
	}

	if err := writeAttr(grid.EnvAxisName, numeric.S(env)); err != nil {
		return fmt.Errorf("container: write env attr: %w", err)
	}
	for name, v := range attrs {
		if err := writeAttr(name, v); err != nil {
			return fmt.Errorf("container: write attr %q: %w", name, err)
		}
	}

	for output, arr := range outputs {
		if _, err := tx.Exec(`INSERT INTO group_data (group_id, output, shape, data) VALUES (?, ?, ?, ?)`,
			id, output, encodeShape(arr.Shape()), encodeFloats(arr.Data())); err != nil {
			return fmt.Errorf("container: write output %q: %w", output, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("container: commit append: %w", err)
	}
	return nil
}

// Combo is one environment/attribute combination that is absent from
// the container.
type Combo struct {
	Env   string
	Attrs map[string]numeric.Value
}

// MissingCombos returns the (attribute combination, environment) pairs
// that are not yet recorded in the container, in deterministic order
// (sorted attribute names, given value order). A driver uses this to
// resume an interrupted characterization run without re-simulating.
func (r *Recorder) MissingCombos(attrValues map[string][]numeric.Value, envs []string) ([]Combo, error) {
	raw, err := ReadRaw(r.path, r.logger)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(attrValues))
	for name := range attrValues {
		names = append(names, name)
	}
	sort.Strings(names)

	var missing []Combo
	combo := make([]int, len(names))
	for {
		attrs := make(map[string]numeric.Value, len(names))
		for i, name := range names {
			attrs[name] = attrValues[name][combo[i]]
		}
		for _, env := range envs {
			if !r.hasCombo(raw, env, attrs) {
				missing = append(missing, Combo{Env: env, Attrs: attrs})
			}
		}
		if !nextCombo(combo, names, attrValues) {
			break
		}
	}
	return missing, nil
}

func (r *Recorder) hasCombo(raw *RawData, env string, attrs map[string]numeric.Value) bool {
	for _, rec := range raw.Records {
		got, ok := rec.Coords[grid.EnvAxisName]
		if !ok || got.Text() != numeric.NormalizeText(env) {
			continue
		}
		match := true
		for name, want := range attrs {
			v, ok := rec.Coords[name]
			if !ok || !numeric.Equal(v, want, r.rtol, r.atol) {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}

func nextCombo(combo []int, names []string, attrValues map[string][]numeric.Value) bool {
	for i := len(combo) - 1; i >= 0; i-- {
		combo[i]++
		if combo[i] < len(attrValues[names[i]]) {
			return true
		}
		combo[i] = 0
	}
	return false
}
