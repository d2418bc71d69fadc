// Package engine wires the registry, obsstore, query and stats packages
// into the module lifecycle named in spec §4.6/§6: start/stop/commit,
// the single-writer transaction gate, and the public read/write API
// surface a host embeds this module through.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/hooks"
	"github.com/INLOpen/obsbase/obsstore"
	"github.com/INLOpen/obsbase/pagedmap"
	"github.com/INLOpen/obsbase/query"
	"github.com/INLOpen/obsbase/registry"
	"github.com/INLOpen/obsbase/stats"
	"github.com/INLOpen/obsbase/utils"
)

var (
	// ErrEngineClosed is returned by every operation attempted before
	// Start or after Stop.
	ErrEngineClosed = errors.New("engine: not started")
	// ErrEngineAlreadyStarted is returned by a second Start call.
	ErrEngineAlreadyStarted = errors.New("engine: already started")
	// ErrInvalidStoragePath is returned by Start when StoragePath escapes
	// its own root via a "..", or is empty.
	ErrInvalidStoragePath = errors.New("engine: invalid storage path")
)

// Options configures an Engine. Field names mirror spec §6's
// "Configuration options" list.
type Options struct {
	StoragePath            string
	MemoryCacheKB           int
	AutoCommitBufferBytes   int64
	UseCompression          bool
	StreamIDStrategy        core.StreamIDStrategy
	DatabaseID              int
	IndexObsLocation        bool

	Logger      *slog.Logger
	Clock       utils.Clock
	HookManager hooks.HookManager
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = utils.SystemClock{}
	}
	if o.HookManager == nil {
		o.HookManager = hooks.NewHookManager(o.Logger.With("component", "HookManager"))
	}
	if o.MemoryCacheKB <= 0 {
		o.MemoryCacheKB = 1024 // pagedmap's own default cache entry count
	}
	if o.AutoCommitBufferBytes <= 0 {
		o.AutoCommitBufferBytes = 4 * 1024 * 1024
	}
}

// Engine is the top-level handle a host starts, queries, writes through,
// and stops. It owns the registry and obsstore sub-stores and the
// single-writer gate serializing every mutating call across both.
type Engine struct {
	opts Options
	log  *slog.Logger
	hook hooks.HookManager

	isStarted atomic.Bool

	registry *registry.Store
	obs      *obsstore.Store
	query    *query.Engine
	stats    *stats.Engine

	gate *writeGate
}

// New constructs an Engine in the not-yet-started state. Start must be
// called before any other method.
func New(opts Options) *Engine {
	opts.setDefaults()
	return &Engine{
		opts: opts,
		log:  opts.Logger,
		hook: opts.HookManager,
		gate: newWriteGate(),
	}
}

// Start validates StoragePath, opens the registry and obsstore
// sub-stores rooted under it, and wires the query/stats engines on top
// (spec §6 "start(config)"). Calling Start twice returns
// ErrEngineAlreadyStarted without touching the already-open stores.
func (e *Engine) Start() error {
	if err := e.hook.Trigger(context.Background(), hooks.NewPreStartEngineEvent()); err != nil {
		return fmt.Errorf("engine: start cancelled by pre-hook: %w", err)
	}
	if !e.isStarted.CompareAndSwap(false, true) {
		return ErrEngineAlreadyStarted
	}

	root, err := validateStoragePath(e.opts.StoragePath)
	if err != nil {
		e.isStarted.Store(false)
		return err
	}

	mapOpts := pagedmap.Options{
		MemtableSizeThreshold: e.opts.AutoCommitBufferBytes,
		Clock:                 e.opts.Clock,
		Logger:                e.log,
	}
	if e.opts.UseCompression {
		mapOpts.Compression = "snappy"
	} else {
		mapOpts.Compression = "none"
	}

	reg, err := registry.Open(registry.Options{
		Dir:        filepath.Join(root, "proc_store"),
		IDStrategy: e.opts.StreamIDStrategy,
		MapOptions: mapOpts,
		Logger:     e.log.With("component", "registry"),
	})
	if err != nil {
		e.isStarted.Store(false)
		return fmt.Errorf("%w: open registry: %v", core.ErrStorageUnavailable, err)
	}

	obs, err := obsstore.Open(obsstore.Options{
		Dir:        filepath.Join(root, "obs_store"),
		MapOptions: mapOpts,
		Logger:     e.log.With("component", "obsstore"),
		Registry:   reg,
	})
	if err != nil {
		reg.Close()
		e.isStarted.Store(false)
		return fmt.Errorf("%w: open obsstore: %v", core.ErrStorageUnavailable, err)
	}

	e.registry = reg
	e.obs = obs
	e.query = query.New(query.Options{ObsStore: obs, Logger: e.log.With("component", "query"), Clock: e.opts.Clock})
	e.stats = stats.New(stats.Options{ObsStore: obs, Logger: e.log.With("component", "stats"), Clock: e.opts.Clock})

	e.log.Info("engine started", "storage_path", root, "database_id", e.opts.DatabaseID)
	e.hook.Trigger(context.Background(), hooks.NewPostStartEngineEvent())
	return nil
}

// Stop closes the obsstore and registry sub-stores; it does not take or
// release the write gate. Idempotent: calling Stop on a non-started engine is a
// no-op (spec §6 "stop(): ... idempotent").
func (e *Engine) Stop() error {
	if !e.isStarted.Load() {
		return nil
	}
	if err := e.hook.Trigger(context.Background(), hooks.NewPreCloseEngineEvent()); err != nil {
		return fmt.Errorf("engine: close cancelled by pre-hook: %w", err)
	}

	var closeErr error
	if e.obs != nil {
		closeErr = errors.Join(closeErr, e.obs.Close())
	}
	if e.registry != nil {
		closeErr = errors.Join(closeErr, e.registry.Close())
	}
	e.hook.Stop()
	e.isStarted.Store(false)

	if closeErr != nil {
		return fmt.Errorf("engine: errors during stop: %w", closeErr)
	}
	e.hook.Trigger(context.Background(), hooks.NewPostCloseEngineEvent())
	e.log.Info("engine stopped")
	return nil
}

func (e *Engine) checkStarted() error {
	if !e.isStarted.Load() {
		return ErrEngineClosed
	}
	return nil
}

// GetStreams returns the stream/system catalog (spec §6 "getStreams()").
func (e *Engine) GetStreams() (*registry.Store, error) {
	if err := e.checkStarted(); err != nil {
		return nil, err
	}
	return e.registry, nil
}

// GetFoiStore returns the feature-of-interest catalog (spec §6
// "getFoiStore()"). Streams and FoIs share one on-disk registry in this
// module (see DESIGN.md's `## engine` section); the two accessors are
// kept separate to match the three-sub-store shape §6 names.
func (e *Engine) GetFoiStore() (*registry.Store, error) {
	return e.GetStreams()
}

// GetObservationStore returns the public read/write API over obs_store
// (spec §6 "getObservationStore()").
func (e *Engine) GetObservationStore() (*ObsStore, error) {
	if err := e.checkStarted(); err != nil {
		return nil, err
	}
	return &ObsStore{engine: e}, nil
}

// Commit requests a durable flush of both sub-stores (spec §6
// "commit()"): after it returns, every write acknowledged so far
// survives process loss.
func (e *Engine) Commit() error {
	if err := e.checkStarted(); err != nil {
		return err
	}
	e.gate.Lock()
	defer e.gate.Unlock()
	return e.commitLocked()
}

func (e *Engine) commitLocked() error {
	var err error
	err = errors.Join(err, e.obs.CommitAll())
	err = errors.Join(err, e.registry.CommitAll())
	return err
}

func validateStoragePath(path string) (string, error) {
	if path == "" {
		return "", ErrInvalidStoragePath
	}
	clean := filepath.Clean(path)
	if strings.HasPrefix(clean, "..") || strings.Contains(clean, string(filepath.Separator)+"..") {
		return "", ErrInvalidStoragePath
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidStoragePath, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return "", fmt.Errorf("%w: create storage path: %v", core.ErrStorageUnavailable, err)
	}
	return abs, nil
}
