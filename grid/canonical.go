package grid

import (
	"go.uber.org/zap"
)

// Canonicalize reorders axes in place to the canonical order
// [environment, discrete parameters in the given order, continuous
// parameters in their current relative order], swapping the matching
// dimensions of every dense array so contents stay consistent with
// their labels.
//
// It returns the number of swaps performed. Canonicalizing an already
// canonical axis list performs zero swaps.
func Canonicalize(axes []Axis, arrays map[string]*DenseArray, discrete []string, logger *zap.Logger) (int, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	target := append([]string{EnvAxisName}, discrete...)
	if len(target) > len(axes) {
		return 0, Inconsistentf("%d leading axes required but only %d axes present", len(target), len(axes))
	}

	swaps := 0
	for pos, want := range target {
		if axes[pos].Name == want {
			continue
		}
		found := -1
		for j := pos + 1; j < len(axes); j++ {
			if axes[j].Name == want {
				found = j
				break
			}
		}
		if found < 0 {
			return swaps, Inconsistentf("axis %q not found during canonicalization", want)
		}
		axes[pos], axes[found] = axes[found], axes[pos]
		for _, arr := range arrays {
			arr.SwapAxes(pos, found)
		}
		swaps++
	}

	if swaps > 0 {
		logger.Debug("canonicalized axis order", zap.Int("swaps", swaps))
	}
	return swaps, nil
}
