package query

import "github.com/INLOpen/obsbase/core"

// CountMatchingEntries counts filter's matching observations (§4.4
// "countMatchingEntries"). With no active post-filter it sums each
// selected series' rank-arithmetic count without decoding a single
// record; otherwise it falls back to a full Select and counts the result.
func (e *Engine) CountMatchingEntries(filter core.ObservationFilter) (int64, error) {
	if filter.ValuePredicate != nil || filter.PhenomenonLocation != nil || len(filter.InternalIDs) > 0 {
		obs, err := e.Select(filter)
		if err != nil {
			return 0, err
		}
		return int64(len(obs)), nil
	}

	descriptors, err := e.planSeries(filter)
	if err != nil {
		return 0, err
	}

	now := e.now()
	var total int64
	for _, desc := range descriptors {
		lower, upper, ok, err := e.seriesCountBounds(desc, filter, now)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		n, err := e.obs.RangeCount(desc.SeriesID, lower, upper)
		if err != nil {
			return 0, err
		}
		total += n
	}
	if filter.Limit > 0 && total > int64(filter.Limit) {
		total = int64(filter.Limit)
	}
	return total, nil
}

// SeriesBounds resolves desc's closed [lower, upper] phenomenon-time
// bounds under filter, intersected with desc's real recorded extent — the
// same bound resolution CountMatchingEntries uses internally. Exported for
// the statistics engine, which needs the identical intersected range to
// report ObsStats' phenomenon/result time fields and to seed its histogram
// bin walk.
func (e *Engine) SeriesBounds(desc SeriesDescriptor, filter core.ObservationFilter) (lower, upper core.Instant, ok bool, err error) {
	return e.seriesCountBounds(desc, filter, e.now())
}

// seriesCountBounds mirrors seriesObservations' range resolution but
// produces closed [lower, upper] bounds for RangeCount's floor/ceiling
// rank arithmetic instead of a half-open scan range, narrowed to desc's
// actual recorded phenomenon-time extent (getObsSeriesPhenomenonTimeRange's
// role in the original). ok is false when the series cannot possibly
// match: an explicit resultTime outside the filter's ResultTime window, a
// series with no live records at all, or a filter range that doesn't
// intersect the series' real data.
func (e *Engine) seriesCountBounds(desc seriesDescriptor, filter core.ObservationFilter, now core.Instant) (lower, upper core.Instant, ok bool, err error) {
	if desc.ResultTime.IsNegInfinity() {
		switch filter.ResultTime.Kind {
		case core.TemporalCurrentTime:
			lower, upper = core.NegInfinity, now
		case core.TemporalLatestTime:
			lower, upper = core.NegInfinity, core.PosInfinity
		default:
			pLower, pUpper := closedRange(filter.PhenomenonTime, now)
			rLower, rUpper := closedRange(filter.ResultTime, now)
			lower, upper = maxInstant(pLower, rLower), minInstant(pUpper, rUpper)
		}
	} else {
		if !matchesResultTime(desc.ResultTime, filter.ResultTime, now) {
			return core.Instant{}, core.Instant{}, false, nil
		}
		lower, upper = closedRange(filter.PhenomenonTime, now)
	}

	return e.clampToSeriesExtent(desc.SeriesID, lower, upper)
}

// clampToSeriesExtent narrows [lower, upper] to desc's real recorded
// phenomenon-time range, per the original's histogram-range fallback: a
// filter's requested window is never reported wider than the data actually
// spans, and a series whose real extent doesn't intersect the requested
// window is dropped rather than reported with an empty or infinite range.
func (e *Engine) clampToSeriesExtent(seriesID uint64, lower, upper core.Instant) (core.Instant, core.Instant, bool, error) {
	first, last, found, err := e.obs.SeriesPhenomenonExtent(seriesID)
	if err != nil {
		return core.Instant{}, core.Instant{}, false, err
	}
	if !found {
		return core.Instant{}, core.Instant{}, false, nil
	}
	lower = maxInstant(lower, first)
	upper = minInstant(upper, last)
	if upper.Before(lower) {
		return core.Instant{}, core.Instant{}, false, nil
	}
	return lower, upper, true, nil
}

// closedRange is resolveRange's inclusive-bound counterpart, for the
// rank-arithmetic formula which wants an actual upper instant to floor
// against rather than an exclusive scan endpoint.
func closedRange(tf core.TemporalFilter, now core.Instant) (lower, upper core.Instant) {
	switch tf.Kind {
	case core.TemporalRange:
		return tf.Begin, tf.End.Prev()
	case core.TemporalAt:
		return tf.At, tf.At
	case core.TemporalCurrentTime:
		return core.NegInfinity, now
	default: // TemporalAllTimes, TemporalLatestTime
		return core.NegInfinity, core.PosInfinity
	}
}
