package grid

import "fmt"

// IncompleteSweepError reports that the number of raw records does not
// equal the Cartesian product of the environment/discrete axis sizes.
type IncompleteSweepError struct {
	Expected int
	Actual   int
}

func (e *IncompleteSweepError) Error() string {
	return fmt.Sprintf("sweep is incomplete: expected %d records for a complete Cartesian sweep, got %d",
		e.Expected, e.Actual)
}

// InconsistentDataError reports data that violates the database's
// structural invariants: an irregular continuous grid, a constants
// mismatch between cache and request, a duplicate or overlapping write
// during assembly, or a reserved attribute name collision.
type InconsistentDataError struct {
	Reason string
}

func (e *InconsistentDataError) Error() string {
	return "inconsistent characterization data: " + e.Reason
}

// Inconsistentf builds an InconsistentDataError with a formatted reason.
func Inconsistentf(format string, args ...interface{}) *InconsistentDataError {
	return &InconsistentDataError{Reason: fmt.Sprintf(format, args...)}
}
