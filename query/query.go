// Package query implements the observation query planner and executor
// (spec §4.4): resolving an ObservationFilter to the smallest driving set
// of series, pulling each series' matching observations, merging them in
// phenomenonTime order, and applying post-filters and the result limit.
package query

import (
	"log/slog"

	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/obsstore"
	"github.com/INLOpen/obsbase/utils"
)

// Options configures an Engine.
type Options struct {
	ObsStore *obsstore.Store
	Logger   *slog.Logger

	// Clock resolves "now" for currentTime/latestTime temporal filters.
	// Defaults to the real wall clock.
	Clock utils.Clock
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = utils.SystemClock{}
	}
}

// Engine answers Select/CountMatchingEntries/SelectObservedFois queries
// against an obsstore.Store. It holds no storage of its own.
type Engine struct {
	opts Options
	log  *slog.Logger
	obs  *obsstore.Store
}

// New builds a query Engine over obs.
func New(opts Options) *Engine {
	opts.setDefaults()
	return &Engine{opts: opts, log: opts.Logger, obs: opts.ObsStore}
}

// seriesDescriptor names one selected series: its identity triple plus the
// resultTime actually stored in SeriesByStream (possibly core.NegInfinity,
// meaning "result-time == phenomenon-time" for every record in it).
type seriesDescriptor struct {
	StreamID   uint64
	FoiID      uint64
	SeriesID   uint64
	ResultTime core.Instant
}

// SeriesDescriptor is seriesDescriptor exported for the statistics
// engine, which plans series the same way the query executor does and
// should not re-derive the planning table independently.
type SeriesDescriptor = seriesDescriptor

// PlanSeries resolves filter to its driving set of series (§4.4), without
// pulling any observation data. Exported for the statistics engine.
func (e *Engine) PlanSeries(filter core.ObservationFilter) ([]SeriesDescriptor, error) {
	return e.planSeries(filter)
}

func (e *Engine) now() core.Instant {
	t := e.opts.Clock.Now()
	return core.NewInstant(t.Unix(), int32(t.Nanosecond()))
}
