package engine

import (
	"context"

	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/hooks"
	"github.com/INLOpen/obsbase/query"
)

// ObsStore is the public read/write API over obs_store named in spec §6
// ("On ObsStore: get(opaqueId), containsKey(opaqueId), size, numRecords,
// selectEntries(filter), selectKeys(filter), selectResults(filter),
// selectObservedFois(filter), countMatchingEntries(filter),
// getStatistics(statsQuery), add(obs) -> opaqueId, put(opaqueId, obs),
// remove(opaqueId), clear"). It is a thin façade over obsstore/query/
// stats that adds hook firing and write-gate serialization; it carries
// no state of its own.
type ObsStore struct {
	engine   *Engine
	gateHeld bool
}

func (s *ObsStore) withWrite(fn func() error) error {
	if s.gateHeld {
		return fn()
	}
	s.engine.gate.Lock()
	defer s.engine.gate.Unlock()
	return fn()
}

// Get returns the observation named by opaqueId.
func (s *ObsStore) Get(opaqueID []byte) (*core.Observation, bool, error) {
	return s.engine.obs.Get(opaqueID)
}

// ContainsKey reports whether opaqueId names a live observation.
func (s *ObsStore) ContainsKey(opaqueID []byte) (bool, error) {
	return s.engine.obs.ContainsKey(opaqueID)
}

// NumRecords returns the total number of live ObsRecords entries.
func (s *ObsStore) NumRecords() (int64, error) {
	return s.engine.obs.NumRecords()
}

// Size is an alias of NumRecords (spec §6; see obsstore.Store.Size's own
// doc comment for why this store keeps no separate byte counter).
func (s *ObsStore) Size() (int64, error) {
	return s.engine.obs.Size()
}

// SelectEntries runs filter through the query planner/executor and
// returns the matching observations in phenomenon-time order.
func (s *ObsStore) SelectEntries(filter core.ObservationFilter) ([]*core.Observation, error) {
	entries, err := s.runQuery(filter, func() ([]query.Entry, error) {
		return s.engine.query.SelectEntries(filter)
	})
	if err != nil {
		return nil, err
	}
	out := make([]*core.Observation, len(entries))
	for i, ent := range entries {
		out[i] = ent.Obs
	}
	return out, nil
}

// SelectKeys is SelectEntries, returning each result's opaque id instead
// of the full observation.
func (s *ObsStore) SelectKeys(filter core.ObservationFilter) ([][]byte, error) {
	entries, err := s.runQuery(filter, func() ([]query.Entry, error) {
		return s.engine.query.SelectEntries(filter)
	})
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(entries))
	for i, ent := range entries {
		keys[i] = ent.OpaqueID
	}
	return keys, nil
}

// SelectResults is SelectEntries, returning each result's decoded field
// values instead of the full observation.
func (s *ObsStore) SelectResults(filter core.ObservationFilter) ([]core.FieldValues, error) {
	entries, err := s.runQuery(filter, func() ([]query.Entry, error) {
		return s.engine.query.SelectEntries(filter)
	})
	if err != nil {
		return nil, err
	}
	results := make([]core.FieldValues, len(entries))
	for i, ent := range entries {
		results[i] = ent.Obs.Result
	}
	return results, nil
}

// SelectObservedFois returns the distinct feature-of-interest ids
// touched by filter.
func (s *ObsStore) SelectObservedFois(filter core.ObservationFilter) ([]uint64, error) {
	return s.engine.query.SelectObservedFois(filter)
}

// CountMatchingEntries counts filter's matching observations without
// necessarily decoding them (§4.4's rank-arithmetic fast path).
func (s *ObsStore) CountMatchingEntries(filter core.ObservationFilter) (int64, error) {
	return s.engine.query.CountMatchingEntries(filter)
}

// GetStatistics computes one ObsStats row per selected series (§4.5).
func (s *ObsStore) GetStatistics(q core.StatsQuery) ([]core.ObsStats, error) {
	return s.engine.stats.GetStatistics(q)
}

// Add writes a new observation and returns its opaque public id.
func (s *ObsStore) Add(obs *core.Observation) (opaqueID []byte, err error) {
	err = s.withWrite(func() error {
		if hookErr := s.engine.hook.Trigger(context.Background(), hooks.NewPreAddObservationEvent(hooks.PreAddObservationPayload{Obs: obs})); hookErr != nil {
			return hookErr
		}
		id, addErr := s.engine.obs.Add(obs)
		opaqueID = id
		s.engine.hook.Trigger(context.Background(), hooks.NewPostAddObservationEvent(hooks.PostAddObservationPayload{
			Obs: *obs, OpaqueID: id, Error: addErr,
		}))
		return addErr
	})
	return opaqueID, err
}

// Put replaces the observation named by opaqueId in place.
func (s *ObsStore) Put(opaqueID []byte, obs *core.Observation) error {
	return s.withWrite(func() error {
		if err := s.engine.hook.Trigger(context.Background(), hooks.NewPrePutObservationEvent(hooks.PrePutObservationPayload{OpaqueID: opaqueID, Obs: obs})); err != nil {
			return err
		}
		err := s.engine.obs.Put(opaqueID, obs)
		s.engine.hook.Trigger(context.Background(), hooks.NewPostPutObservationEvent(hooks.PostPutObservationPayload{
			OpaqueID: opaqueID, Obs: *obs, Error: err,
		}))
		return err
	})
}

// Remove deletes the observation named by opaqueId. The series index
// survives (spec §4.3; explicit Compact reclaims it).
func (s *ObsStore) Remove(opaqueID []byte) error {
	return s.withWrite(func() error {
		return s.engine.obs.Remove(opaqueID)
	})
}

// Clear removes every observation and series index entry.
func (s *ObsStore) Clear() error {
	return s.withWrite(func() error {
		if err := s.engine.hook.Trigger(context.Background(), hooks.NewPreClearEvent()); err != nil {
			return err
		}
		err := s.engine.obs.Clear()
		s.engine.hook.Trigger(context.Background(), hooks.NewPostClearEvent(err))
		return err
	})
}

// Compact runs the explicit series-GC pass (spec's recorded Open
// Question decision: "explicit compaction only, never on remove").
func (s *ObsStore) Compact() (removed int64, err error) {
	err = s.withWrite(func() error {
		if hookErr := s.engine.hook.Trigger(context.Background(), hooks.NewPreCompactEvent()); hookErr != nil {
			return hookErr
		}
		n, compactErr := s.engine.obs.Compact()
		removed = n
		s.engine.hook.Trigger(context.Background(), hooks.NewPostCompactEvent(hooks.CompactPayload{
			SeriesRemoved: int(n), Error: compactErr,
		}))
		return compactErr
	})
	return removed, err
}

func (s *ObsStore) runQuery(filter core.ObservationFilter, fn func() ([]query.Entry, error)) ([]query.Entry, error) {
	f := filter
	if err := s.engine.hook.Trigger(context.Background(), hooks.NewPreQueryEvent(hooks.PreQueryPayload{Filter: &f})); err != nil {
		return nil, err
	}
	entries, err := fn()
	s.engine.hook.Trigger(context.Background(), hooks.NewPostQueryEvent(hooks.PostQueryPayload{Filter: f, Error: err}))
	return entries, err
}
