package query

import (
	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/obsstore"
)

// planSeries resolves filter to the smallest driving set of series (§4.4
// planning table), honoring the safety caps: a candidate-id explosion
// before any scan starts, and the total selected-series count after.
func (e *Engine) planSeries(filter core.ObservationFilter) ([]seriesDescriptor, error) {
	out, err := e.planSeriesCandidates(filter)
	if err != nil {
		return nil, err
	}
	return filterLatestResultOnly(out, filter), nil
}

// planSeriesCandidates resolves filter to its driving set of series before
// the latestResultOnly narrowing planSeries applies on top.
func (e *Engine) planSeriesCandidates(filter core.ObservationFilter) ([]seriesDescriptor, error) {
	cap := filter.EffectiveMaxSeries()
	joinCap := cap * core.MaxSeriesCapMultiplier

	hasStream := len(filter.StreamFilter) > 0
	hasFoi := len(filter.FoiFilter) > 0

	switch {
	case !hasStream && !hasFoi:
		return e.planFullScan(cap)
	case hasStream && !hasFoi:
		if len(filter.StreamFilter) > joinCap {
			return nil, core.ErrTooBroad
		}
		return e.planByStreams(filter.StreamFilter, cap)
	case !hasStream && hasFoi:
		if len(filter.FoiFilter) > joinCap {
			return nil, core.ErrTooBroad
		}
		return e.planByFois(filter.FoiFilter, nil, cap)
	default:
		if len(filter.FoiFilter) > joinCap {
			return nil, core.ErrTooBroad
		}
		streamSet := make(map[uint64]bool, len(filter.StreamFilter))
		for _, id := range filter.StreamFilter {
			streamSet[id] = true
		}
		return e.planByFois(filter.FoiFilter, streamSet, cap)
	}
}

// filterLatestResultOnly implements the latestResultOnly special case: when
// the query asks for resultTime=latestTime, an explicit-resultTime series
// (a model run) only survives if it carries the maximum resultTime among
// its (streamId, foiId) peers. Implicit-resultTime series (resultTime ==
// phenomenonTime, desc.ResultTime is core.NegInfinity) are left alone —
// each already resolves to its own latest observation via the per-series
// floor probe at core.PosInfinity.
func filterLatestResultOnly(descriptors []seriesDescriptor, filter core.ObservationFilter) []seriesDescriptor {
	if filter.ResultTime.Kind != core.TemporalLatestTime {
		return descriptors
	}

	type groupKey struct {
		streamID uint64
		foiID    uint64
	}
	latest := make(map[groupKey]core.Instant)
	for _, d := range descriptors {
		if d.ResultTime.IsNegInfinity() {
			continue
		}
		k := groupKey{d.StreamID, d.FoiID}
		if cur, ok := latest[k]; !ok || cur.Before(d.ResultTime) {
			latest[k] = d.ResultTime
		}
	}

	out := make([]seriesDescriptor, 0, len(descriptors))
	for _, d := range descriptors {
		if d.ResultTime.IsNegInfinity() || d.ResultTime.Equal(latest[groupKey{d.StreamID, d.FoiID}]) {
			out = append(out, d)
		}
	}
	return out
}

func (e *Engine) planFullScan(cap int) ([]seriesDescriptor, error) {
	cur, err := e.obs.AllSeries()
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []seriesDescriptor
	for cur.Next() {
		k, v, _, _ := cur.At()
		streamID, foiID, resultTime, seriesID, err := obsstore.DecodeSeriesByStreamEntry(k, v)
		if err != nil {
			return nil, err
		}
		out = append(out, seriesDescriptor{streamID, foiID, seriesID, resultTime})
		if len(out) > cap {
			return nil, core.ErrTooBroad
		}
	}
	return out, cur.Error()
}

func (e *Engine) planByStreams(streamIDs []uint64, cap int) ([]seriesDescriptor, error) {
	var out []seriesDescriptor
	for _, streamID := range streamIDs {
		if err := e.collectByStream(streamID, cap, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (e *Engine) collectByStream(streamID uint64, cap int, out *[]seriesDescriptor) error {
	cur, err := e.obs.SeriesByStreamRange(streamID)
	if err != nil {
		return err
	}
	defer cur.Close()

	for cur.Next() {
		k, v, _, _ := cur.At()
		sID, foiID, resultTime, seriesID, err := obsstore.DecodeSeriesByStreamEntry(k, v)
		if err != nil {
			return err
		}
		*out = append(*out, seriesDescriptor{sID, foiID, seriesID, resultTime})
		if len(*out) > cap {
			return core.ErrTooBroad
		}
	}
	return cur.Error()
}

func (e *Engine) planByFois(foiIDs []uint64, streamSet map[uint64]bool, cap int) ([]seriesDescriptor, error) {
	var out []seriesDescriptor
	for _, foiID := range foiIDs {
		cur, err := e.obs.SeriesByFoiRange(foiID)
		if err != nil {
			return nil, err
		}
		for cur.Next() {
			k, v, _, _ := cur.At()
			fID, streamID, resultTime, seriesID, err := obsstore.DecodeSeriesByFoiEntry(k, v)
			if err != nil {
				cur.Close()
				return nil, err
			}
			if streamSet != nil && !streamSet[streamID] {
				continue
			}
			out = append(out, seriesDescriptor{streamID, fID, seriesID, resultTime})
			if len(out) > cap {
				cur.Close()
				return nil, core.ErrTooBroad
			}
		}
		if err := cur.Error(); err != nil {
			cur.Close()
			return nil, err
		}
		cur.Close()
	}
	return out, nil
}
