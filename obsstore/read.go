package obsstore

import "github.com/INLOpen/obsbase/core"

// Get decodes the observation named by opaqueId (spec §4.3 "Reading by
// primary key"). A malformed opaqueId is reported as not-found rather than
// an error, so it never aborts a query that references it.
func (s *Store) Get(opaqueID []byte) (*core.Observation, bool, error) {
	seriesID, phenomenonTime, err := core.DecodeOpaqueID(opaqueID)
	if err != nil {
		return nil, false, nil
	}
	value, found, err := s.obsRecords.Get(core.EncodeRecordKey(seriesID, phenomenonTime))
	if err != nil || !found {
		return nil, found, err
	}
	obs, err := decodeRecord(phenomenonTime, value)
	if err != nil {
		return nil, false, err
	}
	return obs, true, nil
}

// ContainsKey reports whether opaqueId names a live observation. A
// malformed opaqueId reports false, not an error.
func (s *Store) ContainsKey(opaqueID []byte) (bool, error) {
	seriesID, phenomenonTime, err := core.DecodeOpaqueID(opaqueID)
	if err != nil {
		return false, nil
	}
	return s.obsRecords.ContainsKey(core.EncodeRecordKey(seriesID, phenomenonTime))
}
