package obsstore

import (
	"fmt"

	"github.com/INLOpen/obsbase/core"
)

// validateWrite enforces spec §4.3 step 1's UnknownStream precondition
// plus SPEC_FULL SUPPLEMENTED FEATURES #2's FoI back-reference check,
// and rejects writes to a retired stream (§4.6 state machine).
func (s *Store) validateWrite(obs *core.Observation) error {
	stream, found, err := s.registry.Get(obs.StreamID)
	if err != nil {
		return err
	}
	if !found {
		return core.ErrUnknownStream
	}
	if stream.State == core.StreamStateRetired {
		return core.ErrStreamRetired
	}
	if obs.FoiID != 0 {
		ok, err := s.registry.FoiExists(obs.FoiID)
		if err != nil {
			return err
		}
		if !ok {
			return core.ErrUnknownFoi
		}
	}
	return nil
}

// Add writes a new observation and returns its opaque public id (spec
// §4.3 "Writing an observation", §6 ObsStore.add).
func (s *Store) Add(obs *core.Observation) ([]byte, error) {
	if err := s.validateWrite(obs); err != nil {
		return nil, err
	}

	indexResultTime := obs.ResultTime
	if obs.IsResultTimeImplicit() {
		indexResultTime = core.NegInfinity
	}

	seriesID, created, err := s.getOrCreateSeries(obs.StreamID, obs.FoiID, indexResultTime)
	if err != nil {
		return nil, err
	}

	key := core.EncodeRecordKey(seriesID, obs.PhenomenonTime)
	value, err := encodeRecord(obs)
	if err != nil {
		if created {
			s.undoSeries(obs.StreamID, obs.FoiID, indexResultTime)
		}
		return nil, err
	}
	if err := s.obsRecords.Put(key, value); err != nil {
		if created {
			s.undoSeries(obs.StreamID, obs.FoiID, indexResultTime)
		}
		return nil, fmt.Errorf("obsstore: put record: %w", err)
	}
	return key, nil
}

// Put fully replaces the observation named by opaqueId (§6 ObsStore.put;
// §3 "immutable after insert; replaceable by full put"). It validates obs
// exactly like Add, but does not reconcile obs's streamId/foiId/resultTime
// against the series opaqueId's seriesId was originally created under:
// callers are expected to Put with the same (streamId, foiId, resultTime)
// that produced the series, not reassign a record to a different one.
func (s *Store) Put(opaqueID []byte, obs *core.Observation) error {
	seriesID, phenomenonTime, err := core.DecodeOpaqueID(opaqueID)
	if err != nil {
		return core.ErrInvalidKey
	}
	if err := s.validateWrite(obs); err != nil {
		return err
	}
	obs.PhenomenonTime = phenomenonTime

	value, err := encodeRecord(obs)
	if err != nil {
		return err
	}
	return s.obsRecords.Put(core.EncodeRecordKey(seriesID, phenomenonTime), value)
}

// Remove deletes the record named by opaqueId without touching its series
// entry (spec §4.3 "Removal"). A malformed opaqueId is a silent no-op,
// mirroring the "never found" treatment on the read path.
func (s *Store) Remove(opaqueID []byte) error {
	seriesID, phenomenonTime, err := core.DecodeOpaqueID(opaqueID)
	if err != nil {
		return nil
	}
	return s.obsRecords.Remove(core.EncodeRecordKey(seriesID, phenomenonTime))
}
