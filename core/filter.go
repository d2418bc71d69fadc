package core

// SortOrder controls the direction an iterator walks its key range.
type SortOrder int

const (
	Ascending SortOrder = iota
	Descending
)

// TemporalFilterKind selects one of the variants a TemporalFilter may take
// (§4.4, §9 design note: a small variant set rather than a class hierarchy).
type TemporalFilterKind int

const (
	// TemporalAllTimes matches every instant; no range narrowing.
	TemporalAllTimes TemporalFilterKind = iota
	// TemporalCurrentTime matches the record at or immediately before the
	// wall-clock instant the query executes.
	TemporalCurrentTime
	// TemporalLatestTime matches the single most-recent record.
	TemporalLatestTime
	// TemporalRange matches a closed-open [Begin, End) range.
	TemporalRange
	// TemporalAt matches the single instant exactly at At.
	TemporalAt
)

// TemporalFilter narrows a query by phenomenon or result time (§4.4).
type TemporalFilter struct {
	Kind  TemporalFilterKind
	Begin Instant // TemporalRange
	End   Instant // TemporalRange
	At    Instant // TemporalAt
}

// AllTimes returns a filter matching every instant.
func AllTimes() TemporalFilter { return TemporalFilter{Kind: TemporalAllTimes} }

// CurrentTime returns a filter matching the most recent record at or
// before "now".
func CurrentTime() TemporalFilter { return TemporalFilter{Kind: TemporalCurrentTime} }

// LatestTime returns a filter matching the single most recent record.
func LatestTime() TemporalFilter { return TemporalFilter{Kind: TemporalLatestTime} }

// TimeRange returns a filter matching the closed-open range [begin, end).
func TimeRange(begin, end Instant) TemporalFilter {
	return TemporalFilter{Kind: TemporalRange, Begin: begin, End: end}
}

// TimeAt returns a filter matching exactly the given instant.
func TimeAt(at Instant) TemporalFilter {
	return TemporalFilter{Kind: TemporalAt, At: at}
}

// IsUnbounded reports whether the filter places no constraint on the
// matched time.
func (f TemporalFilter) IsUnbounded() bool { return f.Kind == TemporalAllTimes }

// ValuePredicate is evaluated against a decoded observation's result
// datablock as a post-filter (§4.4); a predicate error terminates the
// result stream with that error rather than being swallowed.
type ValuePredicate func(result FieldValues) (bool, error)

// PhenomenonLocationPredicate is evaluated against an observation's
// optional sampling geometry as a post-filter.
type PhenomenonLocationPredicate func(samplingGeometry []byte) (bool, error)

// ObservationFilter is the declarative shape the query planner translates
// into per-series range scans (§4.4). A zero-value ObservationFilter
// matches every observation in the store, subject to the default safety
// cap on selected series.
type ObservationFilter struct {
	// InternalIDs, if non-empty, short-circuits planning: each id is
	// decoded and direct-get, with ValuePredicate applied post-hoc.
	InternalIDs [][]byte

	StreamFilter []uint64 // nil/empty = no constraint
	FoiFilter    []uint64 // nil/empty = no constraint

	PhenomenonTime TemporalFilter
	ResultTime     TemporalFilter

	ValuePredicate      ValuePredicate
	PhenomenonLocation  PhenomenonLocationPredicate

	// Limit caps the number of results after the merge. 0 means unlimited.
	Limit int

	// MaxSeries overrides the planner's default series cap (10,000) when
	// positive.
	MaxSeries int
}

// DefaultMaxSeries is the planner's default cap on the number of series a
// single query may drive (§4.4).
const DefaultMaxSeries = 10_000

// MaxSeriesCapMultiplier bounds how many candidate stream ids a join
// resolution may produce before ErrTooBroad is raised, relative to the
// effective series cap.
const MaxSeriesCapMultiplier = 100

// EffectiveMaxSeries returns f.MaxSeries if set, else DefaultMaxSeries.
func (f ObservationFilter) EffectiveMaxSeries() int {
	if f.MaxSeries > 0 {
		return f.MaxSeries
	}
	return DefaultMaxSeries
}

// StatsQuery parameterizes the statistics & histogram engine (§4.5).
type StatsQuery struct {
	Filter ObservationFilter

	// HistogramBinWidthSeconds, if positive, fixes the histogram bin width.
	// If zero, a width is auto-chosen from the bin ladder.
	HistogramBinWidthSeconds int64

	// WithHistogram requests the optional obsCountByTime histogram be
	// computed at all; without it only range/count summaries are returned.
	WithHistogram bool

	// AggregateFois sums per-foi stats into one bucket per (streamId,
	// resultTime) instead of one row per (streamId, foiId, resultTime).
	AggregateFois bool
}

// HistogramBin is one bucket of an ObsStats.ObsCountByTime histogram.
type HistogramBin struct {
	BinStart Instant
	BinEnd   Instant
	Count    int64
}

// ObsStats is one row of getStatistics' output, one per selected series (or
// per (streamId, resultTime) bucket when AggregateFois is set) (§4.5).
type ObsStats struct {
	StreamID uint64
	FoiID    uint64 // 0 when AggregateFois collapsed multiple fois

	PhenomenonTimeBegin Instant
	PhenomenonTimeEnd   Instant
	ResultTimeBegin     Instant
	ResultTimeEnd       Instant

	TotalObsCount int64

	// BinWidthSeconds is the width actually used to produce ObsCountByTime;
	// meaningless when ObsCountByTime is empty.
	BinWidthSeconds int64
	ObsCountByTime  []HistogramBin
}
