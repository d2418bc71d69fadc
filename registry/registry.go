// Package registry implements the data-stream registry (spec §4.2): the
// catalog of Systems, FeaturesOfInterest and DataStreams that the
// observation indexes are keyed against. Each catalog is one pagedmap.Map
// instance, the same primitive the obsstore package layers its three
// correlated indexes on top of.
package registry

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/pagedmap"
)

// IDStrategy selects how Store.GetOrCreateStream mints new stream ids.
type IDStrategy = core.StreamIDStrategy

const (
	Sequential = core.StreamIDSequential
	UidHash    = core.StreamIDUidHash
)

// Options configures a Store.
type Options struct {
	Dir         string
	IDStrategy  IDStrategy
	MapOptions  pagedmap.Options // shared across the sub-tables; Dir is overridden per table
	Logger      *slog.Logger
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Store is the systems/FoIs/streams registry (spec §4.2, §6
// getStreams()/getFoiStore()). Each table is a pagedmap.Map rooted under a
// subdirectory of Options.Dir.
type Store struct {
	opts Options
	log  *slog.Logger

	systems       *pagedmap.Map // u64(internalId) -> gob(core.System)
	systemsByUID  *pagedmap.Map // uid string -> u64(internalId)
	fois          *pagedmap.Map // u64(internalId) -> gob(core.FeatureOfInterest)
	foisByUID     *pagedmap.Map // uid string -> u64(internalId)
	streams       *pagedmap.Map // u64(streamId) -> gob(core.StreamInfo)
	streamLookup  *pagedmap.Map // u64(systemId)||len(outputName)||outputName||instant(validTimeStart) -> u64(streamId)
}

// Open opens or creates the registry rooted at opts.Dir, one subdirectory
// per table.
func Open(opts Options) (*Store, error) {
	opts.setDefaults()

	open := func(name string) (*pagedmap.Map, error) {
		mopts := opts.MapOptions
		mopts.Dir = filepath.Join(opts.Dir, name)
		if mopts.Logger == nil {
			mopts.Logger = opts.Logger
		}
		m, err := pagedmap.Open(mopts)
		if err != nil {
			return nil, fmt.Errorf("registry: open %s: %w", name, err)
		}
		return m, nil
	}

	systems, err := open("systems")
	if err != nil {
		return nil, err
	}
	systemsByUID, err := open("systems_by_uid")
	if err != nil {
		return nil, err
	}
	fois, err := open("fois")
	if err != nil {
		return nil, err
	}
	foisByUID, err := open("fois_by_uid")
	if err != nil {
		return nil, err
	}
	streams, err := open("streams")
	if err != nil {
		return nil, err
	}
	streamLookup, err := open("stream_lookup")
	if err != nil {
		return nil, err
	}

	s := &Store{
		opts:         opts,
		log:          opts.Logger,
		systems:      systems,
		systemsByUID: systemsByUID,
		fois:         fois,
		foisByUID:    foisByUID,
		streams:      streams,
		streamLookup: streamLookup,
	}
	s.log.Info("registry opened", "dir", opts.Dir, "idStrategy", opts.IDStrategy.String())
	return s, nil
}

// Close closes every underlying table. The first error encountered is
// returned after every table has had a chance to close.
func (s *Store) Close() error {
	var firstErr error
	for _, m := range []*pagedmap.Map{s.systems, s.systemsByUID, s.fois, s.foisByUID, s.streams, s.streamLookup} {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CommitAll fsyncs every underlying table's WAL, for the engine's
// commit() call (spec §6: "previously-acknowledged writes survive
// process loss" once this returns).
func (s *Store) CommitAll() error {
	var firstErr error
	for _, m := range []*pagedmap.Map{s.systems, s.systemsByUID, s.fois, s.foisByUID, s.streams, s.streamLookup} {
		if err := m.Commit(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
