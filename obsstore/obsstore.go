// Package obsstore implements the three correlated observation indexes
// (spec §4.3, "the heart"): ObsRecords (primary), SeriesByStream (series
// lookup by (streamId, foiId, resultTime)) and SeriesByFoi (the inverted
// lookup). Each index is one pagedmap.Map; obsstore is the only package
// that opens all three together and keeps them in lockstep.
package obsstore

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/INLOpen/obsbase/pagedmap"
	"github.com/INLOpen/obsbase/registry"
)

// Options configures a Store.
type Options struct {
	Dir        string
	MapOptions pagedmap.Options // shared template; Dir is overridden per table
	Logger     *slog.Logger

	// Registry validates streamId/foiId back-references on every write
	// (spec §4.3 step 1; SPEC_FULL SUPPLEMENTED FEATURES #2). Required.
	Registry *registry.Store
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Store owns the ObsRecords/SeriesByStream/SeriesByFoi indexes.
type Store struct {
	opts     Options
	log      *slog.Logger
	registry *registry.Store

	obsRecords    *pagedmap.Map
	seriesByStream *pagedmap.Map
	seriesByFoi    *pagedmap.Map
}

// Open opens or creates the observation store rooted at opts.Dir.
func Open(opts Options) (*Store, error) {
	opts.setDefaults()
	if opts.Registry == nil {
		return nil, fmt.Errorf("obsstore: Registry is required")
	}

	open := func(name string) (*pagedmap.Map, error) {
		mopts := opts.MapOptions
		mopts.Dir = filepath.Join(opts.Dir, name)
		if mopts.Logger == nil {
			mopts.Logger = opts.Logger
		}
		m, err := pagedmap.Open(mopts)
		if err != nil {
			return nil, fmt.Errorf("obsstore: open %s: %w", name, err)
		}
		return m, nil
	}

	obsRecords, err := open("obs_records")
	if err != nil {
		return nil, err
	}
	seriesByStream, err := open("series_by_stream")
	if err != nil {
		return nil, err
	}
	seriesByFoi, err := open("series_by_foi")
	if err != nil {
		return nil, err
	}

	s := &Store{
		opts:           opts,
		log:            opts.Logger,
		registry:       opts.Registry,
		obsRecords:     obsRecords,
		seriesByStream: seriesByStream,
		seriesByFoi:    seriesByFoi,
	}
	return s, nil
}

// Close closes all three indexes. The first error encountered is returned
// after every index has had a chance to close.
func (s *Store) Close() error {
	var firstErr error
	for _, m := range []*pagedmap.Map{s.obsRecords, s.seriesByStream, s.seriesByFoi} {
		if err := m.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// CommitAll fsyncs all three indexes' WALs, for the engine's commit()
// call (spec §6).
func (s *Store) CommitAll() error {
	var firstErr error
	for _, m := range []*pagedmap.Map{s.obsRecords, s.seriesByStream, s.seriesByFoi} {
		if err := m.Commit(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Clear empties all three indexes (§6 ObsStore.clear).
func (s *Store) Clear() error {
	if err := s.obsRecords.Clear(); err != nil {
		return err
	}
	if err := s.seriesByStream.Clear(); err != nil {
		return err
	}
	return s.seriesByFoi.Clear()
}

// NumRecords returns the total number of live observation records in the
// store (§6 ObsStore.numRecords).
func (s *Store) NumRecords() (int64, error) {
	return s.obsRecords.RankOf(nil)
}

// Size is equivalent to NumRecords: this store keeps no separate
// tombstone-inclusive byte-size counter, so §6's `size` and `numRecords`
// report the same live-entry count.
func (s *Store) Size() (int64, error) {
	return s.NumRecords()
}
