package stats

import (
	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/query"
)

// GetStatistics computes one core.ObsStats row per selected series (or per
// (streamId, resultTime) bucket when q.AggregateFois is set) (§4.5).
func (e *Engine) GetStatistics(q core.StatsQuery) ([]core.ObsStats, error) {
	descriptors, err := e.query.PlanSeries(q.Filter)
	if err != nil {
		return nil, err
	}

	rows := make([]core.ObsStats, 0, len(descriptors))
	for _, desc := range descriptors {
		row, matched, err := e.seriesStats(desc, q)
		if err != nil {
			return nil, err
		}
		if matched {
			rows = append(rows, row)
		}
	}

	if !q.AggregateFois {
		return rows, nil
	}
	return aggregateByStreamAndResultTime(rows)
}

// seriesStats computes desc's ObsStats row. matched is false when desc
// has no phenomenon-time intersection with q.Filter (no-op row, omitted
// from the result set).
func (e *Engine) seriesStats(desc query.SeriesDescriptor, q core.StatsQuery) (core.ObsStats, bool, error) {
	lower, upper, ok, err := e.query.SeriesBounds(desc, q.Filter)
	if err != nil {
		return core.ObsStats{}, false, err
	}
	if !ok || upper.Before(lower) {
		return core.ObsStats{}, false, nil
	}

	resultBegin, resultEnd := lower, upper
	if !desc.ResultTime.IsNegInfinity() {
		resultBegin, resultEnd = desc.ResultTime, desc.ResultTime
	}

	total, err := e.obs.RangeCount(desc.SeriesID, lower, upper)
	if err != nil {
		return core.ObsStats{}, false, err
	}

	row := core.ObsStats{
		StreamID:            desc.StreamID,
		FoiID:                desc.FoiID,
		PhenomenonTimeBegin: lower,
		PhenomenonTimeEnd:   upper,
		ResultTimeBegin:     resultBegin,
		ResultTimeEnd:       resultEnd,
		TotalObsCount:       total,
	}

	if q.WithHistogram {
		bins, binWidth, err := e.histogram(desc.SeriesID, lower, upper, q.HistogramBinWidthSeconds)
		if err != nil {
			return core.ObsStats{}, false, err
		}
		row.BinWidthSeconds = binWidth
		row.ObsCountByTime = bins
	}
	return row, true, nil
}

// aggregateByStreamAndResultTime sums per-foi rows into one bucket per
// (streamId, resultTime), per §4.5's aggregateFois mode.
func aggregateByStreamAndResultTime(rows []core.ObsStats) ([]core.ObsStats, error) {
	type key struct {
		streamID uint64
		resultAt int64 // ResultTimeBegin.UnixNano(), a stable grouping proxy
	}
	groups := make(map[key]*core.ObsStats)
	order := make([]key, 0)

	for _, r := range rows {
		k := key{streamID: r.StreamID, resultAt: r.ResultTimeBegin.UnixNano()}
		g, found := groups[k]
		if !found {
			merged := r
			merged.FoiID = 0
			groups[k] = &merged
			order = append(order, k)
			continue
		}
		if len(g.ObsCountByTime) > 0 && len(r.ObsCountByTime) > 0 && g.BinWidthSeconds != r.BinWidthSeconds {
			return nil, core.ErrMixedBinWidth
		}
		g.TotalObsCount += r.TotalObsCount
		g.PhenomenonTimeBegin = minInstant(g.PhenomenonTimeBegin, r.PhenomenonTimeBegin)
		g.PhenomenonTimeEnd = maxInstant(g.PhenomenonTimeEnd, r.PhenomenonTimeEnd)
		g.ObsCountByTime = sumBins(g.ObsCountByTime, r.ObsCountByTime)
	}

	out := make([]core.ObsStats, 0, len(order))
	for _, k := range order {
		out = append(out, *groups[k])
	}
	return out, nil
}

func sumBins(a, b []core.HistogramBin) []core.HistogramBin {
	if len(a) == 0 {
		return b
	}
	if len(b) == 0 {
		return a
	}
	out := make([]core.HistogramBin, len(a))
	for i := range a {
		out[i] = a[i]
		if i < len(b) {
			out[i].Count += b[i].Count
		}
	}
	return out
}

func minInstant(a, b core.Instant) core.Instant {
	if a.Before(b) {
		return a
	}
	return b
}

func maxInstant(a, b core.Instant) core.Instant {
	if a.Before(b) {
		return b
	}
	return a
}
