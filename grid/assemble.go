package grid

import (
	"go.uber.org/zap"

	"github.com/charlab/chardb/numeric"
)

// Assembler scatter-writes validated records into one dense array per
// output name, indexed along the attribute axes followed by the
// continuous sweep axes.
type Assembler struct {
	RTol   float64
	ATol   float64
	Logger *zap.Logger
}

// NewAssembler returns an assembler with the given tolerances. A nil
// logger is replaced by a no-op logger.
func NewAssembler(rtol, atol float64, logger *zap.Logger) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{RTol: rtol, ATol: atol, Logger: logger.Named("assembler")}
}

// Assemble consolidates records into dense arrays. attrAxes are the
// environment/discrete attribute axes from the validator; contAxes are
// the continuous sweep axes in declaration order. The returned axis
// list describes every array dimension, attribute axes first.
//
// The record set is assumed validated: writes are disjoint by
// construction. An overlapping write is a defect and reported as
// InconsistentDataError rather than silently overwritten.
func (a *Assembler) Assemble(records []Record, attrAxes, contAxes []Axis) (map[string]*DenseArray, []Axis, error) {
	axes := make([]Axis, 0, len(attrAxes)+len(contAxes))
	axes = append(axes, attrAxes...)
	axes = append(axes, contAxes...)

	shape := make([]int, len(axes))
	for i, ax := range axes {
		shape[i] = ax.Len()
	}

	attrShape := shape[:len(attrAxes)]
	cells := 1
	for _, s := range attrShape {
		cells *= s
	}
	contSize := 1
	for _, s := range shape[len(attrAxes):] {
		contSize *= s
	}

	arrays := make(map[string]*DenseArray)
	written := make(map[string]map[int]struct{})

	idx := make([]int, len(attrAxes))
	for _, rec := range records {
		flat, err := a.cellIndex(rec, attrAxes, idx)
		if err != nil {
			return nil, nil, err
		}
		for output, sub := range rec.Outputs {
			if sub.Size() != contSize {
				return nil, nil, Inconsistentf("output %q sub-array has %d values, continuous grid has %d",
					output, sub.Size(), contSize)
			}
			arr, ok := arrays[output]
			if !ok {
				arr = NewDenseArray(shape...)
				arrays[output] = arr
				written[output] = make(map[int]struct{}, cells)
			}
			if _, dup := written[output][flat]; dup {
				return nil, nil, Inconsistentf("overlapping write for output %q at sweep cell %v", output, idx)
			}
			written[output][flat] = struct{}{}
			copy(arr.LeadingBlock(idx...), sub.Data())
		}
	}

	// every output must cover every sweep cell
	for output, cellSet := range written {
		if len(cellSet) != cells {
			return nil, nil, Inconsistentf("output %q covers %d of %d sweep cells", output, len(cellSet), cells)
		}
	}

	a.Logger.Debug("assembled dense arrays",
		zap.Int("outputs", len(arrays)),
		zap.Ints("shape", shape),
	)

	return arrays, axes, nil
}

// cellIndex resolves the record's position along each attribute axis by
// tolerance-based membership lookup, filling idx and returning the flat
// cell number.
func (a *Assembler) cellIndex(rec Record, attrAxes []Axis, idx []int) (int, error) {
	flat := 0
	for i, ax := range attrAxes {
		val, ok := rec.Coords[ax.Name]
		if !ok {
			return 0, Inconsistentf("record missing coordinate for axis %q", ax.Name)
		}
		pos := numeric.IndexIn(ax.Values, val, a.RTol, a.ATol)
		if pos < 0 {
			return 0, Inconsistentf("record coordinate %s for axis %q not in axis values", val, ax.Name)
		}
		idx[i] = pos
		flat = flat*ax.Len() + pos
	}
	return flat, nil
}
