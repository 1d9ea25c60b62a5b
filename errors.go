package chardb

import (
	"fmt"

	"github.com/charlab/chardb/numeric"
)

// UnknownParameterError reports a get/set on a name that is neither a
// discrete nor a continuous parameter (or, for configuration access, an
// unknown tunable).
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter %q", e.Name)
}

// OutOfRangeError reports a discrete value absent from its axis's value
// set or a continuous value outside the axis's observed bounds.
type OutOfRangeError struct {
	Name  string
	Value numeric.Value
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("value %s out of range for parameter %q", e.Value, e.Name)
}

// UnsetParameterError reports a query or function request that needs a
// parameter value which was neither supplied nor bound in the registry.
type UnsetParameterError struct {
	Name string
}

func (e *UnsetParameterError) Error() string {
	return fmt.Sprintf("parameter %q value not specified", e.Name)
}
