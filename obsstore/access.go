// access.go exposes the read-only primitives the query and stats packages
// build their planner/executor and histogram engine on top of, so neither
// package needs to open a pagedmap.Map directly: obsstore keeps sole
// ownership of the three indexes (spec §2 item 4).
package obsstore

import (
	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/iterator"
)

// SeriesByStreamRange returns an ascending cursor over every SeriesByStream
// entry for streamID (the prefix (streamId, *) of spec §4.4's "by stream"
// planning rule). The caller must Close it.
func (s *Store) SeriesByStreamRange(streamID uint64) (iterator.Interface, error) {
	prefix := core.StreamFoiPrefix(streamID)
	return s.seriesByStream.RangeCursor(prefix, core.PrefixUpperBound(prefix), core.Ascending)
}

// SeriesByFoiRange returns an ascending cursor over every SeriesByFoi entry
// for foiID (the prefix (foiId, *) of spec §4.4's "by foi" planning rule).
// The caller must Close it.
func (s *Store) SeriesByFoiRange(foiID uint64) (iterator.Interface, error) {
	prefix := core.FoiStreamPrefix(foiID)
	return s.seriesByFoi.RangeCursor(prefix, core.PrefixUpperBound(prefix), core.Ascending)
}

// AllSeries returns an ascending cursor over the whole SeriesByStream
// table, for planning rules with neither a stream nor a foi filter (spec
// §4.4: "none | none" resolves to every series).
func (s *Store) AllSeries() (iterator.Interface, error) {
	return s.seriesByStream.RangeCursor(nil, nil, core.Ascending)
}

// DecodeSeriesByStreamEntry decodes one SeriesByStream (key, value) pair,
// as produced by SeriesByStreamRange/AllSeries.
func DecodeSeriesByStreamEntry(key, value []byte) (streamID, foiID uint64, resultTime core.Instant, seriesID uint64, err error) {
	streamID, foiID, resultTime, err = core.DecodeSeriesKey(key)
	if err != nil {
		return 0, 0, core.Instant{}, 0, err
	}
	seriesID, err = decodeUint64(value)
	return streamID, foiID, resultTime, seriesID, err
}

// DecodeSeriesByFoiEntry decodes one SeriesByFoi (key, value) pair, as
// produced by SeriesByFoiRange.
func DecodeSeriesByFoiEntry(key, value []byte) (foiID, streamID uint64, resultTime core.Instant, seriesID uint64, err error) {
	foiID, streamID, resultTime, err = core.DecodeSeriesByFoiKey(key)
	if err != nil {
		return 0, 0, core.Instant{}, 0, err
	}
	seriesID, err = decodeUint64(value)
	return foiID, streamID, resultTime, seriesID, err
}

// ObsRangeBySeries returns a cursor over seriesID's ObsRecords entries
// whose phenomenonTime falls in [begin, end) (end exclusive; use
// core.PosInfinity for an open upper bound), in the requested order. The
// caller must Close it.
func (s *Store) ObsRangeBySeries(seriesID uint64, begin, end core.Instant, order core.SortOrder) (iterator.Interface, error) {
	startKey := core.EncodeRecordKey(seriesID, begin)
	endKey := core.EncodeRecordKey(seriesID, end)
	return s.obsRecords.RangeCursor(startKey, endKey, order)
}

// DecodeRecord decodes one ObsRecords (key, value) pair into an
// Observation, for callers iterating ObsRangeBySeries directly instead of
// round-tripping through an opaque id.
func DecodeRecord(key, value []byte) (*core.Observation, error) {
	_, phenomenonTime, err := core.DecodeRecordKey(key)
	if err != nil {
		return nil, err
	}
	return decodeRecord(phenomenonTime, value)
}

// RecordRankOf returns the number of live ObsRecords entries strictly less
// than key (core.EncodeRecordKey(seriesId, at)), the rank-arithmetic
// primitive the statistics engine's histogram is built on (§4.5). It is
// pagedmap's RankOf, an O(n) cursor count.
func (s *Store) RecordRankOf(key []byte) (int64, error) {
	return s.obsRecords.RankOf(key)
}

// RecordFloorKey returns the greatest live ObsRecords key <= key.
func (s *Store) RecordFloorKey(key []byte) ([]byte, bool, error) {
	return s.obsRecords.FloorKey(key)
}

// RecordCeilingKey returns the smallest live ObsRecords key >= key.
func (s *Store) RecordCeilingKey(key []byte) ([]byte, bool, error) {
	return s.obsRecords.CeilingKey(key)
}

// SeriesPhenomenonExtent returns seriesID's real first and last live
// phenomenonTime, via a ceiling probe at the series prefix's low end and a
// floor probe at its high end. found is false for a series with no live
// records (fully compacted/deleted).
func (s *Store) SeriesPhenomenonExtent(seriesID uint64) (first, last core.Instant, found bool, err error) {
	prefix := core.SeriesPrefix(seriesID)

	firstKey, ok, err := s.obsRecords.CeilingKey(prefix)
	if err != nil || !ok {
		return core.Instant{}, core.Instant{}, false, err
	}
	sID, ts, err := core.DecodeRecordKey(firstKey)
	if err != nil || sID != seriesID {
		return core.Instant{}, core.Instant{}, false, err
	}
	first = ts

	lastKey, ok, err := s.obsRecords.FloorKey(core.PrefixUpperBound(prefix))
	if err != nil || !ok {
		return core.Instant{}, core.Instant{}, false, err
	}
	sID2, ts2, err := core.DecodeRecordKey(lastKey)
	if err != nil || sID2 != seriesID {
		return core.Instant{}, core.Instant{}, false, err
	}
	last = ts2

	return first, last, true, nil
}

// RangeCount returns the number of seriesID's ObsRecords entries whose
// phenomenonTime falls in the closed interval [lower, upper], via the
// rank-arithmetic formula both the query planner's countMatchingEntries
// and the statistics engine's histogram binning rely on (spec §4.4, §4.5):
// count = rank(floor(upper)) - rank(ceiling(lower)) + 1, or 0 if either
// probe misses or lands outside seriesID's own key range.
func (s *Store) RangeCount(seriesID uint64, lower, upper core.Instant) (int64, error) {
	floorKey, found, err := s.RecordFloorKey(core.EncodeRecordKey(seriesID, upper))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	if sID, _, derr := core.DecodeRecordKey(floorKey); derr != nil || sID != seriesID {
		return 0, nil
	}

	ceilKey, found, err := s.RecordCeilingKey(core.EncodeRecordKey(seriesID, lower))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}
	if sID, _, derr := core.DecodeRecordKey(ceilKey); derr != nil || sID != seriesID {
		return 0, nil
	}

	rankUpper, err := s.RecordRankOf(floorKey)
	if err != nil {
		return 0, err
	}
	rankLower, err := s.RecordRankOf(ceilKey)
	if err != nil {
		return 0, err
	}
	if rankUpper < rankLower {
		return 0, nil
	}
	return rankUpper - rankLower + 1, nil
}
