package obsstore

import (
	"fmt"

	"github.com/INLOpen/obsbase/core"
)

// getOrCreateSeries implements spec §4.3 step 3: compute-if-absent on
// SeriesByStream[(streamId, foiId, resultTime)], assigning a fresh
// seriesId = max(existing seriesId)+1 on miss and inserting into both
// SeriesByStream and SeriesByFoi. created reports whether a new series
// was actually inserted, so the caller can roll it back if the following
// ObsRecords write fails.
func (s *Store) getOrCreateSeries(streamID, foiID uint64, resultTime core.Instant) (seriesID uint64, created bool, err error) {
	seriesKey := core.EncodeSeriesKey(streamID, foiID, resultTime)

	if v, found, err := s.seriesByStream.Get(seriesKey); err != nil {
		return 0, false, err
	} else if found {
		id, err := decodeUint64(v)
		return id, false, err
	}

	seriesID, err = s.nextSeriesID()
	if err != nil {
		return 0, false, err
	}
	idBytes := encodeUint64(seriesID)

	if err := s.seriesByStream.Put(seriesKey, idBytes); err != nil {
		return 0, false, fmt.Errorf("obsstore: put seriesByStream: %w", err)
	}
	foiKey := core.EncodeSeriesByFoiKey(foiID, streamID, resultTime)
	if err := s.seriesByFoi.Put(foiKey, idBytes); err != nil {
		return 0, false, fmt.Errorf("obsstore: put seriesByFoi: %w", err)
	}
	return seriesID, true, nil
}

// undoSeries removes a series entry this call just created, used to roll
// back step 3 when the following ObsRecords write (step 4) fails (spec
// §4.3 step 5: "the whole transaction rolls the engine back").
func (s *Store) undoSeries(streamID, foiID uint64, resultTime core.Instant) error {
	if err := s.seriesByStream.Remove(core.EncodeSeriesKey(streamID, foiID, resultTime)); err != nil {
		return err
	}
	return s.seriesByFoi.Remove(core.EncodeSeriesByFoiKey(foiID, streamID, resultTime))
}

// nextSeriesID implements spec §3's invariant literally: "seriesId values
// are unique across the store and monotonically assigned from
// max(seriesId)+1 on empty-or-full scan." There is no side counter,
// deliberately: a full scan of SeriesByStream's values is the source of
// truth, so the assignment stays correct even if SeriesByStream is ever
// edited out of band (e.g. restored from backup). This runs once per
// newly observed (streamId, foiId, resultTime) triple, not per
// observation, so its O(n) cost is amortized across a series' lifetime.
func (s *Store) nextSeriesID() (uint64, error) {
	cur, err := s.seriesByStream.RangeCursor(nil, nil, core.Ascending)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	var max uint64
	for cur.Next() {
		_, v, _, _ := cur.At()
		id, err := decodeUint64(v)
		if err != nil {
			return 0, err
		}
		if id > max {
			max = id
		}
	}
	if err := cur.Error(); err != nil {
		return 0, err
	}
	return max + 1, nil
}

// RemoveStream cascades a stream removal (spec §4.3 "Cascading removal"):
// walks SeriesByStream over the prefix (streamId, *), and for each series
// removes every ObsRecords entry under (seriesId, *) plus the
// SeriesByStream/SeriesByFoi entries themselves. It does not touch the
// stream's registry entry; registry.Store.Remove deletes that, and
// RemoveStream does not call it.
func (s *Store) RemoveStream(streamID uint64) error {
	type seriesEntry struct {
		key        []byte
		seriesID   uint64
		foiID      uint64
		resultTime core.Instant
	}

	prefix := core.StreamFoiPrefix(streamID)
	upper := core.PrefixUpperBound(prefix)

	cur, err := s.seriesByStream.RangeCursor(prefix, upper, core.Ascending)
	if err != nil {
		return err
	}
	var entries []seriesEntry
	for cur.Next() {
		k, v, _, _ := cur.At()
		_, foiID, resultTime, decErr := core.DecodeSeriesKey(k)
		if decErr != nil {
			cur.Close()
			return decErr
		}
		seriesID, decErr := decodeUint64(v)
		if decErr != nil {
			cur.Close()
			return decErr
		}
		entries = append(entries, seriesEntry{
			key:        append([]byte(nil), k...),
			seriesID:   seriesID,
			foiID:      foiID,
			resultTime: resultTime,
		})
	}
	if err := cur.Error(); err != nil {
		cur.Close()
		return err
	}
	cur.Close()

	for _, e := range entries {
		if err := s.removeSeriesRecords(e.seriesID); err != nil {
			return err
		}
		if err := s.seriesByStream.Remove(e.key); err != nil {
			return err
		}
		foiKey := core.EncodeSeriesByFoiKey(e.foiID, streamID, e.resultTime)
		if err := s.seriesByFoi.Remove(foiKey); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) removeSeriesRecords(seriesID uint64) error {
	prefix := core.SeriesPrefix(seriesID)
	upper := core.PrefixUpperBound(prefix)

	cur, err := s.obsRecords.RangeCursor(prefix, upper, core.Ascending)
	if err != nil {
		return err
	}
	defer cur.Close()

	var keys [][]byte
	for cur.Next() {
		k, _, _, _ := cur.At()
		keys = append(keys, append([]byte(nil), k...))
	}
	if err := cur.Error(); err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.obsRecords.Remove(k); err != nil {
			return err
		}
	}
	return nil
}
