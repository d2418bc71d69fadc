package stats

import (
	"github.com/INLOpen/obsbase/core"
)

// histogram computes seriesID's obsCountByTime bins over [lower, upper]
// (§4.5). binWidthSeconds, if positive, fixes the bin width; otherwise one
// is auto-chosen from the curated ladder.
func (e *Engine) histogram(seriesID uint64, lower, upper core.Instant, binWidthSeconds int64) ([]core.HistogramBin, int64, error) {
	durationSeconds := upper.Seconds() - lower.Seconds()
	width := binWidthSeconds
	if width <= 0 {
		width = chooseBinWidth(durationSeconds)
	}
	if width <= 0 {
		width = 1
	}

	n := (durationSeconds + width - 1) / width
	if n < 1 {
		n = 1
	}

	bins := make([]core.HistogramBin, 0, n)
	binStart := lower
	for i := int64(0); i < n; i++ {
		binEnd := core.NewInstant(binStart.Seconds()+width, binStart.Nanos())
		if !binEnd.Before(upper) {
			binEnd = upper
		}

		// binCount's k2 = floor(countEnd) formula treats countEnd as an
		// exclusive bound, so a record sitting exactly on it is excluded —
		// correct for an interior bin boundary shared with the next bin,
		// but upper itself is inclusive (seriesCountBounds/closedRange's
		// closed-range contract), so the last bin must count one past it
		// or the record on that boundary is silently dropped.
		countEnd := binEnd
		if i == n-1 {
			countEnd = binEnd.Next()
		}

		count, err := e.binCount(seriesID, binStart, countEnd)
		if err != nil {
			return nil, 0, err
		}
		bins = append(bins, core.HistogramBin{BinStart: binStart, BinEnd: binEnd, Count: count})
		binStart = binEnd
	}
	return bins, width, nil
}

// binCount implements §4.5's per-bin rank-arithmetic probe:
// k1 = ceiling(ObsRecords[(seriesId, binStart)]),
// k2 = floor(ObsRecords[(seriesId, binEnd)]);
// count = rank(k2) - rank(k1) + (k2.timestamp == binEnd ? 0 : 1), or 0 if
// either probe misses or lands in a different series. binEnd is treated as
// an exclusive bound; histogram passes the true closed upper bound's
// successor for the final bin so the boundary record is still counted.
func (e *Engine) binCount(seriesID uint64, binStart, binEnd core.Instant) (int64, error) {
	k1, found, err := e.obs.RecordCeilingKey(core.EncodeRecordKey(seriesID, binStart))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	if sID, _, derr := core.DecodeRecordKey(k1); derr != nil || sID != seriesID {
		return 0, nil
	}

	k2, found, err := e.obs.RecordFloorKey(core.EncodeRecordKey(seriesID, binEnd))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	sID2, ts2, err := core.DecodeRecordKey(k2)
	if err != nil || sID2 != seriesID {
		return 0, nil
	}

	rank1, err := e.obs.RecordRankOf(k1)
	if err != nil {
		return 0, err
	}
	rank2, err := e.obs.RecordRankOf(k2)
	if err != nil {
		return 0, err
	}
	count := rank2 - rank1
	if !ts2.Equal(binEnd) {
		count++
	}
	if count < 0 {
		count = 0
	}
	return count, nil
}
