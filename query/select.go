package query

import (
	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/obsstore"
)

// Select resolves filter to its matching observations, merged in
// phenomenonTime order (§4.4).
func (e *Engine) Select(filter core.ObservationFilter) ([]*core.Observation, error) {
	entries, err := e.SelectEntries(filter)
	if err != nil {
		return nil, err
	}
	out := make([]*core.Observation, len(entries))
	for i, ent := range entries {
		out[i] = ent.Obs
	}
	return out, nil
}

// SelectKeys is Select, returning each result's opaque id instead of the
// decoded observation.
func (e *Engine) SelectKeys(filter core.ObservationFilter) ([][]byte, error) {
	entries, err := e.SelectEntries(filter)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(entries))
	for i, ent := range entries {
		out[i] = ent.OpaqueID
	}
	return out, nil
}

// SelectEntries is Select's full form: each matching observation paired
// with the opaque id it was read from, so a caller never needs a second
// lookup to get both.
func (e *Engine) SelectEntries(filter core.ObservationFilter) ([]Entry, error) {
	if len(filter.InternalIDs) > 0 {
		return e.selectByInternalIDs(filter)
	}

	descriptors, err := e.planSeries(filter)
	if err != nil {
		return nil, err
	}

	now := e.now()
	perSeries := make([][]Entry, 0, len(descriptors))
	for _, desc := range descriptors {
		entries, err := e.seriesObservations(desc, filter, now)
		if err != nil {
			return nil, err
		}
		entries, err = applyPostFilters(entries, filter)
		if err != nil {
			return nil, err
		}
		if len(entries) > 0 {
			perSeries = append(perSeries, entries)
		}
	}

	merged := mergeEntries(perSeries)
	if filter.Limit > 0 && len(merged) > filter.Limit {
		merged = merged[:filter.Limit]
	}
	return merged, nil
}

func (e *Engine) selectByInternalIDs(filter core.ObservationFilter) ([]Entry, error) {
	var out []Entry
	for _, id := range filter.InternalIDs {
		obs, found, err := e.obs.Get(id)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		matched, err := matchPostFilters(obs, filter)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, Entry{OpaqueID: id, Obs: obs})
		}
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

// seriesObservations resolves one series' matching observations per §4.4's
// "per-series obs streams" rule.
func (e *Engine) seriesObservations(desc seriesDescriptor, filter core.ObservationFilter, now core.Instant) ([]Entry, error) {
	if desc.ResultTime.IsNegInfinity() {
		switch filter.ResultTime.Kind {
		case core.TemporalCurrentTime:
			return e.floorProbe(desc.SeriesID, now)
		case core.TemporalLatestTime:
			return e.floorProbe(desc.SeriesID, core.PosInfinity)
		default:
			pBegin, pEnd := resolveRange(filter.PhenomenonTime, now)
			rBegin, rEnd := resolveRange(filter.ResultTime, now)
			begin := maxInstant(pBegin, rBegin)
			end := minInstant(pEnd, rEnd)
			return e.scanRange(desc.SeriesID, begin, end)
		}
	}

	if !matchesResultTime(desc.ResultTime, filter.ResultTime, now) {
		return nil, nil
	}
	begin, end := resolveRange(filter.PhenomenonTime, now)
	return e.scanRange(desc.SeriesID, begin, end)
}

func (e *Engine) floorProbe(seriesID uint64, at core.Instant) ([]Entry, error) {
	key, found, err := e.obs.RecordFloorKey(core.EncodeRecordKey(seriesID, at))
	if err != nil || !found {
		return nil, err
	}
	sID, _, err := core.DecodeRecordKey(key)
	if err != nil || sID != seriesID {
		return nil, nil
	}
	obs, found, err := e.obs.Get(key)
	if err != nil || !found {
		return nil, err
	}
	return []Entry{{OpaqueID: key, Obs: obs}}, nil
}

func (e *Engine) scanRange(seriesID uint64, begin, end core.Instant) ([]Entry, error) {
	cur, err := e.obs.ObsRangeBySeries(seriesID, begin, end, core.Ascending)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []Entry
	for cur.Next() {
		k, v, _, _ := cur.At()
		obs, err := obsstore.DecodeRecord(k, v)
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{OpaqueID: append([]byte(nil), k...), Obs: obs})
	}
	return out, cur.Error()
}

// resolveRange converts a TemporalFilter into the half-open [begin, end)
// range scanRange/ObsRangeBySeries expect.
func resolveRange(tf core.TemporalFilter, now core.Instant) (begin, end core.Instant) {
	switch tf.Kind {
	case core.TemporalRange:
		return tf.Begin, tf.End
	case core.TemporalAt:
		return tf.At, tf.At.Next()
	case core.TemporalCurrentTime:
		return core.NegInfinity, now.Next()
	default: // TemporalAllTimes, TemporalLatestTime
		return core.NegInfinity, core.PosInfinity
	}
}

// matchesResultTime checks a series' single fixed resultTime (the
// explicit, non-(-inf) case) against the query's ResultTime filter.
// TemporalLatestTime always returns true here: filterLatestResultOnly has
// already narrowed the candidate series to the one with the max
// resultTime per (streamId, foiId), so any survivor qualifies.
func matchesResultTime(point core.Instant, tf core.TemporalFilter, now core.Instant) bool {
	switch tf.Kind {
	case core.TemporalRange:
		return !point.Before(tf.Begin) && point.Before(tf.End)
	case core.TemporalAt:
		return point.Equal(tf.At)
	case core.TemporalCurrentTime:
		return !now.Before(point)
	default: // TemporalAllTimes, TemporalLatestTime
		return true
	}
}

func maxInstant(a, b core.Instant) core.Instant {
	if a.Before(b) {
		return b
	}
	return a
}

func minInstant(a, b core.Instant) core.Instant {
	if a.Before(b) {
		return a
	}
	return b
}

func applyPostFilters(entries []Entry, filter core.ObservationFilter) ([]Entry, error) {
	if filter.ValuePredicate == nil && filter.PhenomenonLocation == nil {
		return entries, nil
	}
	out := make([]Entry, 0, len(entries))
	for _, ent := range entries {
		matched, err := matchPostFilters(ent.Obs, filter)
		if err != nil {
			return nil, err
		}
		if matched {
			out = append(out, ent)
		}
	}
	return out, nil
}

func matchPostFilters(obs *core.Observation, filter core.ObservationFilter) (bool, error) {
	if filter.ValuePredicate != nil {
		ok, err := filter.ValuePredicate(obs.Result)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	if filter.PhenomenonLocation != nil {
		ok, err := filter.PhenomenonLocation(obs.SamplingGeometry)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
