// Package stats implements the statistics and histogram engine (spec
// §4.5): getStatistics, the auto bin-width ladder, and the aggregated-
// across-foi summarization mode. It is built directly on obsstore's
// rank-arithmetic primitives, so each bin costs a fixed number of
// floor/ceiling/rank probes rather than a decode of every record; each
// rank probe is pagedmap's O(n) cursor count.
package stats

import (
	"log/slog"

	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/obsstore"
	"github.com/INLOpen/obsbase/query"
	"github.com/INLOpen/obsbase/utils"
)

// binLadder is the curated set of bin widths, in seconds, the auto-width
// chooser picks from (§4.5).
var binLadder = []int64{
	1, 5, 10, 20, 30, 60, 120, 300, 600, 900, 1200, 1800,
	3600, 7200, 14400, 21600, 28800, 43200,
	86400, 172800, 345600, 604800, 1209600, 2592000,
	5184000, 7776000, 10368000, 15552000, 31536000,
}

// Options configures an Engine.
type Options struct {
	ObsStore *obsstore.Store
	Logger   *slog.Logger
	Clock    utils.Clock
}

func (o *Options) setDefaults() {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Clock == nil {
		o.Clock = utils.SystemClock{}
	}
}

// Engine answers getStatistics queries. It shares the query package's
// planner rather than re-resolving filters into series on its own.
type Engine struct {
	opts  Options
	log   *slog.Logger
	obs   *obsstore.Store
	query *query.Engine
}

// New builds a statistics Engine over obs.
func New(opts Options) *Engine {
	opts.setDefaults()
	qe := query.New(query.Options{ObsStore: opts.ObsStore, Logger: opts.Logger, Clock: opts.Clock})
	return &Engine{opts: opts, log: opts.Logger, obs: opts.ObsStore, query: qe}
}

// chooseBinWidth picks the ladder value nearest to durationSeconds/200,
// clamped to the ladder's bounds (§4.5, target ~100-200 bins).
func chooseBinWidth(durationSeconds int64) int64 {
	if durationSeconds <= 0 {
		return binLadder[0]
	}
	target := durationSeconds / 200
	if target < binLadder[0] {
		return binLadder[0]
	}
	last := binLadder[len(binLadder)-1]
	if target >= last {
		return last
	}
	best := binLadder[0]
	bestDiff := abs64(target - best)
	for _, w := range binLadder[1:] {
		if d := abs64(target - w); d < bestDiff {
			best, bestDiff = w, d
		}
	}
	return best
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
