package obsstore

import "github.com/INLOpen/obsbase/core"

// Compact walks every SeriesByStream entry and removes the ones with no
// remaining ObsRecords, plus their SeriesByFoi counterpart (§9 "Series GC
// timing": a series row outlives its last record removal by design —
// Remove never touches the series index — so this is the only path that
// ever reclaims one, and it only runs when a caller asks for it).
func (s *Store) Compact() (removed int64, err error) {
	cur, err := s.seriesByStream.RangeCursor(nil, nil, core.Ascending)
	if err != nil {
		return 0, err
	}

	type orphan struct {
		key        []byte
		foiID      uint64
		resultTime core.Instant
		streamID   uint64
	}
	var candidates []orphan
	for cur.Next() {
		k, v, _, _ := cur.At()
		streamID, foiID, resultTime, seriesID, decErr := DecodeSeriesByStreamEntry(k, v)
		if decErr != nil {
			cur.Close()
			return removed, decErr
		}
		empty, emptyErr := s.seriesIsEmpty(seriesID)
		if emptyErr != nil {
			cur.Close()
			return removed, emptyErr
		}
		if empty {
			candidates = append(candidates, orphan{
				key:        append([]byte(nil), k...),
				foiID:      foiID,
				resultTime: resultTime,
				streamID:   streamID,
			})
		}
	}
	if cerr := cur.Error(); cerr != nil {
		cur.Close()
		return removed, cerr
	}
	cur.Close()

	for _, o := range candidates {
		if err := s.seriesByStream.Remove(o.key); err != nil {
			return removed, err
		}
		foiKey := core.EncodeSeriesByFoiKey(o.foiID, o.streamID, o.resultTime)
		if err := s.seriesByFoi.Remove(foiKey); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func (s *Store) seriesIsEmpty(seriesID uint64) (bool, error) {
	prefix := core.SeriesPrefix(seriesID)
	cur, err := s.obsRecords.RangeCursor(prefix, core.PrefixUpperBound(prefix), core.Ascending)
	if err != nil {
		return false, err
	}
	defer cur.Close()
	return !cur.Next(), cur.Error()
}
