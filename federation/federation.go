// Package federation implements spec §4.7's federation shim: the same
// read API as a single store, fanned out over an ordered set of backing
// engines and merged by phenomenon time. One backing store, at most, is
// writable; the rest are read-only views.
package federation

import (
	"context"
	"errors"
	"fmt"

	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/engine"
	"golang.org/x/sync/errgroup"
)

// ErrNoWritableStore is returned by a mutating call when no backing
// store was configured writable.
var ErrNoWritableStore = errors.New("federation: no writable backing store")

// ErrMultipleWritableStores rejects a Config naming more than one
// writable store; the gate model (§4.6) assumes a single writer target.
var ErrMultipleWritableStores = errors.New("federation: more than one writable backing store")

// BackingStore names one engine participating in the federation and the
// set of streamIds it locally serves. StreamIDs is the pre-resolved
// dispatch map spec §4.7 calls for: a filter's StreamFilter is narrowed
// to this store's own ids before the store is ever queried.
type BackingStore struct {
	Name      string
	Engine    *engine.Engine
	StreamIDs []uint64
	Writable  bool
}

// Federation is the merged read/write view over its backing stores.
type Federation struct {
	stores   []BackingStore
	writable *BackingStore
}

// New builds a Federation. Exactly zero or one backing store may be
// writable.
func New(stores []BackingStore) (*Federation, error) {
	f := &Federation{stores: stores}
	for i := range stores {
		if stores[i].Writable {
			if f.writable != nil {
				return nil, ErrMultipleWritableStores
			}
			f.writable = &stores[i]
		}
	}
	return f, nil
}

// dispatch narrows filter to bs's own streamIds, intersected with any
// StreamFilter the caller already set. Returns ok=false when bs has
// nothing to contribute (the caller's StreamFilter excludes every id
// bs serves).
func (bs *BackingStore) dispatch(filter core.ObservationFilter) (core.ObservationFilter, bool) {
	if len(filter.StreamFilter) == 0 {
		narrowed := filter
		narrowed.StreamFilter = bs.StreamIDs
		return narrowed, len(bs.StreamIDs) > 0
	}

	local := make(map[uint64]bool, len(bs.StreamIDs))
	for _, id := range bs.StreamIDs {
		local[id] = true
	}
	var ids []uint64
	for _, id := range filter.StreamFilter {
		if local[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return core.ObservationFilter{}, false
	}
	narrowed := filter
	narrowed.StreamFilter = ids
	return narrowed, true
}

// Select runs filter across every backing store concurrently and
// returns the phenomenon-time-ordered merge of their results (§4.7).
func (f *Federation) Select(ctx context.Context, filter core.ObservationFilter) ([]*core.Observation, error) {
	perStore := make([][]*core.Observation, len(f.stores))

	g, _ := errgroup.WithContext(ctx)
	for i := range f.stores {
		i := i
		narrowed, ok := f.stores[i].dispatch(filter)
		if !ok {
			continue
		}
		g.Go(func() error {
			obsStore, err := f.stores[i].Engine.GetObservationStore()
			if err != nil {
				return fmt.Errorf("federation: %s: %w", f.stores[i].Name, err)
			}
			results, err := obsStore.SelectEntries(narrowed)
			if err != nil {
				return fmt.Errorf("federation: %s: %w", f.stores[i].Name, err)
			}
			perStore[i] = results
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeByPhenomenonTime(perStore)
	if filter.Limit > 0 && len(merged) > filter.Limit {
		merged = merged[:filter.Limit]
	}
	return merged, nil
}

// CountMatchingEntries sums each backing store's own count under its
// narrowed dispatch filter.
func (f *Federation) CountMatchingEntries(ctx context.Context, filter core.ObservationFilter) (int64, error) {
	counts := make([]int64, len(f.stores))

	g, _ := errgroup.WithContext(ctx)
	for i := range f.stores {
		i := i
		narrowed, ok := f.stores[i].dispatch(filter)
		if !ok {
			continue
		}
		g.Go(func() error {
			obsStore, err := f.stores[i].Engine.GetObservationStore()
			if err != nil {
				return fmt.Errorf("federation: %s: %w", f.stores[i].Name, err)
			}
			n, err := obsStore.CountMatchingEntries(narrowed)
			if err != nil {
				return fmt.Errorf("federation: %s: %w", f.stores[i].Name, err)
			}
			counts[i] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for _, n := range counts {
		total += n
	}
	if filter.Limit > 0 && total > int64(filter.Limit) {
		total = int64(filter.Limit)
	}
	return total, nil
}

// SelectObservedFois unions the distinct FoI ids each backing store
// reports under its narrowed dispatch filter.
func (f *Federation) SelectObservedFois(ctx context.Context, filter core.ObservationFilter) ([]uint64, error) {
	perStore := make([][]uint64, len(f.stores))

	g, _ := errgroup.WithContext(ctx)
	for i := range f.stores {
		i := i
		narrowed, ok := f.stores[i].dispatch(filter)
		if !ok {
			continue
		}
		g.Go(func() error {
			obsStore, err := f.stores[i].Engine.GetObservationStore()
			if err != nil {
				return fmt.Errorf("federation: %s: %w", f.stores[i].Name, err)
			}
			fois, err := obsStore.SelectObservedFois(narrowed)
			if err != nil {
				return fmt.Errorf("federation: %s: %w", f.stores[i].Name, err)
			}
			perStore[i] = fois
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[uint64]bool)
	var out []uint64
	for _, fois := range perStore {
		for _, id := range fois {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, nil
}

// WritableStore returns the public write API over the single writable
// backing store (§4.7 "writes target the single writable store").
func (f *Federation) WritableStore() (*engine.ObsStore, error) {
	if f.writable == nil {
		return nil, ErrNoWritableStore
	}
	return f.writable.Engine.GetObservationStore()
}
