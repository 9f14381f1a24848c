// Package triangle provides the seam for the independent chart-pattern
// subsystem spec.md §4.2/§9 describes only by its outputs: whether an
// active triangle contains a price, its borders, and its directional
// bias. Detection logic itself is out of scope for this core; NoopProvider
// ships as the default so the level engine's bonus/penalty computation
// has a concrete implementation to call instead of a hardcoded zero.
package triangle

import "levelcore/internal/model"

// NoopProvider always reports no active triangle.
type NoopProvider struct{}

// New returns the no-op triangle provider.
func New() NoopProvider { return NoopProvider{} }

func (NoopProvider) ActiveTriangle(symbol string, tf model.Timeframe, price float64) (model.Triangle, bool) {
	return model.Triangle{}, false
}
