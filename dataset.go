package chardb

import (
	"github.com/charlab/chardb/grid"
	"github.com/charlab/chardb/interpolant"
	"github.com/charlab/chardb/numeric"
)

// Dataset is the capability interface a concrete characterization
// variant implements: where its containers live, how raw data is
// post-processed, and which derived outputs it defines. A Dataset is
// selected at construction; the engine never branches on its identity.
type Dataset interface {
	// SimFile returns the raw data container path for the given
	// constants, relative to or joined with the root directory.
	SimFile(root string, constants numeric.Constants) string

	// CacheFile returns the post-processed cache artifact path for the
	// given constants.
	CacheFile(root string, constants numeric.Constants) string

	// PostProcess transforms freshly assembled dense arrays before
	// caching. Axes are in storage order. Returning the input map
	// unchanged is legal.
	PostProcess(arrays map[string]*grid.DenseArray, axes []grid.Axis, constants numeric.Constants) (map[string]*grid.DenseArray, error)

	// DerivedOutputs lists the output names computed from primary
	// interpolants rather than stored data.
	DerivedOutputs() []string

	// ComputeDerived maps the primary interpolants at one discrete
	// index to the derived interpolants at the same index. It is
	// invoked at most once per discrete index; every output it
	// returns is cached.
	ComputeDerived(core map[string]interpolant.Func) (map[string]interpolant.Func, error)
}
