package registry

import (
	"github.com/INLOpen/obsbase/core"
)

// StreamFilter narrows Store.List. A zero-value StreamFilter matches every
// registered stream.
type StreamFilter struct {
	SystemID *uint64
	State    *core.StreamState
}

func (f StreamFilter) matches(si core.StreamInfo) bool {
	if f.SystemID != nil && si.SystemID != *f.SystemID {
		return false
	}
	if f.State != nil && si.State != *f.State {
		return false
	}
	return true
}

// GetOrCreateStream resolves the stream for (systemId, outputName,
// validTimeStart), creating it on first use (spec §4.2). Re-registering an
// identical (systemId, outputName, validTimeStart, structure) is
// idempotent: the existing streamId is returned unchanged. structure and
// encoding are only consulted on first creation.
func (s *Store) GetOrCreateStream(systemID uint64, outputName string, validTimeStart core.Instant, structure []core.RecordField, encoding string) (uint64, error) {
	lookupKey := streamLookupKey(systemID, outputName, validTimeStart)
	if existing, found, err := s.streamLookup.Get(lookupKey); err != nil {
		return 0, err
	} else if found {
		id, err := decodeIDKey(existing)
		return id, err
	}

	id, err := s.allocateStreamID(systemID, outputName, validTimeStart)
	if err != nil {
		return 0, err
	}

	si := core.StreamInfo{
		StreamID:       id,
		SystemID:       systemID,
		OutputName:     outputName,
		ValidTimeStart: validTimeStart,
		Structure:      structure,
		Encoding:       encoding,
		State:          core.StreamStateLive,
	}
	enc, err := encodeStreamInfo(si)
	if err != nil {
		return 0, err
	}
	if err := s.streams.Put(idKey(id), enc); err != nil {
		return 0, err
	}
	if err := s.streamLookup.Put(lookupKey, idKey(id)); err != nil {
		return 0, err
	}
	return id, nil
}

// allocateStreamID mints a fresh, currently-unused streamId using the
// store's configured strategy.
func (s *Store) allocateStreamID(systemID uint64, outputName string, validTimeStart core.Instant) (uint64, error) {
	switch s.opts.IDStrategy {
	case UidHash:
		candidate := uidHashSeed(systemID, outputName, validTimeStart)
		for {
			used, err := s.streams.ContainsKey(idKey(candidate))
			if err != nil {
				return 0, err
			}
			if !used {
				return candidate, nil
			}
			candidate++
		}
	default:
		return nextSequentialID(s.streams)
	}
}

// Get looks up a stream by its internal id.
func (s *Store) Get(streamID uint64) (core.StreamInfo, bool, error) {
	v, found, err := s.streams.Get(idKey(streamID))
	if err != nil || !found {
		return core.StreamInfo{}, found, err
	}
	si, err := decodeStreamInfo(v)
	return si, true, err
}

// Lookup resolves the streamId registered for the exact
// (systemId, outputName, validTimeStart) triple.
func (s *Store) Lookup(systemID uint64, outputName string, validTimeStart core.Instant) (uint64, bool, error) {
	v, found, err := s.streamLookup.Get(streamLookupKey(systemID, outputName, validTimeStart))
	if err != nil || !found {
		return 0, found, err
	}
	id, err := decodeIDKey(v)
	return id, true, err
}

// LookupCurrent resolves "the stream for this system+output right now":
// the live (non-retired) stream with the greatest validTimeStart
// (SPEC_FULL SUPPLEMENTED FEATURES #3, mirroring sensorhub-core's
// IProcedureObsDatabase "current version" behavior). If the
// highest-validTimeStart version has been retired, older live versions
// are considered in descending validTimeStart order; if none are live,
// LookupCurrent reports not-found.
func (s *Store) LookupCurrent(systemID uint64, outputName string) (core.StreamInfo, bool, error) {
	prefix := streamLookupPrefix(systemID, outputName)
	upper := core.PrefixUpperBound(prefix)

	cur, err := s.streamLookup.RangeCursor(prefix, upper, core.Descending)
	if err != nil {
		return core.StreamInfo{}, false, err
	}
	defer cur.Close()

	for cur.Next() {
		_, value, _, _ := cur.At()
		id, err := decodeIDKey(value)
		if err != nil {
			return core.StreamInfo{}, false, err
		}
		si, found, err := s.Get(id)
		if err != nil {
			return core.StreamInfo{}, false, err
		}
		if found && si.State == core.StreamStateLive {
			return si, true, nil
		}
	}
	if err := cur.Error(); err != nil {
		return core.StreamInfo{}, false, err
	}
	return core.StreamInfo{}, false, nil
}

// List returns every registered stream matching filter, in ascending
// streamId order.
func (s *Store) List(filter StreamFilter) ([]core.StreamInfo, error) {
	cur, err := s.streams.RangeCursor(nil, nil, core.Ascending)
	if err != nil {
		return nil, err
	}
	defer cur.Close()

	var out []core.StreamInfo
	for cur.Next() {
		_, value, _, _ := cur.At()
		si, err := decodeStreamInfo(value)
		if err != nil {
			return nil, err
		}
		if filter.matches(si) {
			out = append(out, si)
		}
	}
	return out, cur.Error()
}

// Remove deletes a stream's registry entry (both the streams table row and
// its streamLookup index entry). It does not touch the observation
// indexes; obsstore.Store.RemoveStream clears SeriesByStream/SeriesByFoi/
// ObsRecords for a stream and does not call Remove.
func (s *Store) Remove(streamID uint64) error {
	si, found, err := s.Get(streamID)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	if err := s.streamLookup.Remove(streamLookupKey(si.SystemID, si.OutputName, si.ValidTimeStart)); err != nil {
		return err
	}
	return s.streams.Remove(idKey(streamID))
}

// Retire marks a stream's valid-time range closed (spec §4.6 state
// machine: Live -> Retired). A retired stream is still queryable but
// rejects further writes (core.ErrStreamRetired).
func (s *Store) Retire(streamID uint64) error {
	si, found, err := s.Get(streamID)
	if err != nil {
		return err
	}
	if !found {
		return core.ErrUnknownStream
	}
	si.State = core.StreamStateRetired
	enc, err := encodeStreamInfo(si)
	if err != nil {
		return err
	}
	return s.streams.Put(idKey(streamID), enc)
}
