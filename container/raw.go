// Package container implements the on-disk containers of the
// characterization database: the producer-supplied raw data container
// and the engine-owned post-processed cache. Both are SQLite files.
//
// Raw container layout:
//
//	constants(name, kind, num, str)          -- one scalar per name
//	sweep_params(pos, name, start, stop, count)
//	                                         -- continuous grid per name
//	                                            is linspace(start, stop, count)
//	sweep_groups(id)                         -- one row per sweep point
//	group_attrs(group_id, name, kind, num, str)
//	                                         -- coordinate per axis, incl. "env"
//	group_data(group_id, output, shape, data)
//	                                         -- row-major little-endian float64
package container

import (
	"database/sql"
	"fmt"
	"os"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/charlab/chardb/grid"
	"github.com/charlab/chardb/numeric"
)

// Span describes one continuous sweep parameter as a (start, stop,
// count) triple; the grid is count evenly spaced points inclusive of
// both endpoints.
type Span struct {
	Start float64
	Stop  float64
	Count int
}

// RawData is the decoded content of a raw data container.
type RawData struct {
	Constants  numeric.Constants
	SweepOrder []string
	Spans      map[string]Span
	Records    []grid.Record
}

// ContinuousAxes returns the continuous sweep axes in declaration
// order.
func (r *RawData) ContinuousAxes() []grid.Axis {
	axes := make([]grid.Axis, len(r.SweepOrder))
	for i, name := range r.SweepOrder {
		sp := r.Spans[name]
		axes[i] = grid.ContinuousAxis(name, sp.Start, sp.Stop, sp.Count)
	}
	return axes
}

// ReadRaw loads a raw data container. A missing file is reported as
// MissingSourceError.
func ReadRaw(path string, logger *zap.Logger) (*RawData, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &MissingSourceError{Path: path}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("container: open raw container %s: %w", path, err)
	}
	defer db.Close()

	raw := &RawData{
		Constants: make(numeric.Constants),
		Spans:     make(map[string]Span),
	}

	if err := readConstants(db, raw.Constants); err != nil {
		return nil, err
	}
	if err := readSweepParams(db, raw); err != nil {
		return nil, err
	}
	if err := readGroups(db, raw); err != nil {
		return nil, err
	}

	logger.Named("container").Debug("raw container loaded",
		zap.String("path", path),
		zap.Int("records", len(raw.Records)),
		zap.Strings("sweep_order", raw.SweepOrder),
	)
	return raw, nil
}

func readConstants(db *sql.DB, out numeric.Constants) error {
	rows, err := db.Query(`SELECT name, kind, num, str FROM constants`)
	if err != nil {
		return fmt.Errorf("container: read constants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name, kind, str string
		var num float64
		if err := rows.Scan(&name, &kind, &num, &str); err != nil {
			return fmt.Errorf("container: scan constant: %w", err)
		}
		v, err := decodeValue(kind, num, str)
		if err != nil {
			return err
		}
		out[name] = v
	}
	return rows.Err()
}

func readSweepParams(db *sql.DB, raw *RawData) error {
	rows, err := db.Query(`SELECT name, start, stop, count FROM sweep_params ORDER BY pos`)
	if err != nil {
		return fmt.Errorf("container: read sweep params: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var sp Span
		if err := rows.Scan(&name, &sp.Start, &sp.Stop, &sp.Count); err != nil {
			return fmt.Errorf("container: scan sweep param: %w", err)
		}
		raw.SweepOrder = append(raw.SweepOrder, name)
		raw.Spans[name] = sp
	}
	return rows.Err()
}

func readGroups(db *sql.DB, raw *RawData) error {
	ids := []int64{}
	rows, err := db.Query(`SELECT id FROM sweep_groups ORDER BY id`)
	if err != nil {
		return fmt.Errorf("container: read sweep groups: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("container: scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	for _, id := range ids {
		rec, err := readGroup(db, id)
		if err != nil {
			return err
		}
		raw.Records = append(raw.Records, rec)
	}
	return nil
}

func readGroup(db *sql.DB, id int64) (grid.Record, error) {
	rec := grid.Record{
		Coords:  make(map[string]numeric.Value),
		Outputs: make(map[string]*grid.DenseArray),
	}

	rows, err := db.Query(`SELECT name, kind, num, str FROM group_attrs WHERE group_id = ?`, id)
	if err != nil {
		return rec, fmt.Errorf("container: read group %d attrs: %w", id, err)
	}
	for rows.Next() {
		var name, kind, str string
		var num float64
		if err := rows.Scan(&name, &kind, &num, &str); err != nil {
			rows.Close()
			return rec, fmt.Errorf("container: scan group attr: %w", err)
		}
		v, err := decodeValue(kind, num, str)
		if err != nil {
			rows.Close()
			return rec, err
		}
		rec.Coords[name] = v
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return rec, err
	}
	rows.Close()

	drows, err := db.Query(`SELECT output, shape, data FROM group_data WHERE group_id = ?`, id)
	if err != nil {
		return rec, fmt.Errorf("container: read group %d data: %w", id, err)
	}
	defer drows.Close()
	for drows.Next() {
		var output, shapeStr string
		var blob []byte
		if err := drows.Scan(&output, &shapeStr, &blob); err != nil {
			return rec, fmt.Errorf("container: scan group dataset: %w", err)
		}
		shape, err := decodeShape(shapeStr)
		if err != nil {
			return rec, err
		}
		data, err := decodeFloats(blob)
		if err != nil {
			return rec, err
		}
		arr, err := grid.FromData(data, shape...)
		if err != nil {
			return rec, fmt.Errorf("container: output %q in group %d: %w", output, id, err)
		}
		rec.Outputs[output] = arr
	}
	return rec, drows.Err()
}
