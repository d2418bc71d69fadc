package query

import "github.com/INLOpen/obsbase/core"

// SelectObservedFois returns the distinct FoI ids among filter's selected
// series that have a non-empty phenomenon-time intersection (§4.4
// "selectObservedFois").
func (e *Engine) SelectObservedFois(filter core.ObservationFilter) ([]uint64, error) {
	descriptors, err := e.planSeries(filter)
	if err != nil {
		return nil, err
	}

	now := e.now()
	seen := make(map[uint64]bool)
	var out []uint64
	for _, desc := range descriptors {
		if desc.FoiID == 0 {
			continue
		}
		lower, upper, ok, err := e.seriesCountBounds(desc, filter, now)
		if err != nil {
			return nil, err
		}
		if !ok || upper.Before(lower) {
			continue
		}
		if !seen[desc.FoiID] {
			seen[desc.FoiID] = true
			out = append(out, desc.FoiID)
		}
	}
	return out, nil
}
