package core

// StreamIDStrategy selects how the registry assigns streamIds to newly
// registered data streams (§4.2). Immutable for the lifetime of a store.
type StreamIDStrategy byte

const (
	// StreamIDSequential assigns monotonically increasing ids starting at 1,
	// taken from lastKey+1 of the stream map.
	StreamIDSequential StreamIDStrategy = iota
	// StreamIDUidHash assigns a deterministic 48-bit id: the 64-bit xxhash
	// of systemId||outputName||validTimeStart truncated to its low 48 bits,
	// with upward probing on collision. No 128-bit hash is used.
	StreamIDUidHash
)

func (s StreamIDStrategy) String() string {
	switch s {
	case StreamIDSequential:
		return "sequential"
	case StreamIDUidHash:
		return "uidHash"
	default:
		return "unknown"
	}
}

// StreamState is the lifecycle state of a DataStream (§4.6 state machine):
// Absent -> Live (first add) -> Retired (valid-time closed) -> Deleted (cascade remove).
type StreamState byte

const (
	StreamStateLive StreamState = iota
	StreamStateRetired
)

func (s StreamState) String() string {
	switch s {
	case StreamStateLive:
		return "live"
	case StreamStateRetired:
		return "retired"
	default:
		return "unknown"
	}
}

// System is a registered sensor/actuator platform (§3).
type System struct {
	InternalID      uint64
	UID             string // globally unique string id
	ValidTimeStart  Instant
	Name            string
	Description     string
	ParentGroupID   uint64 // 0 = none
	OutputNames     []string
	ControlInputs   []string
}

// FeatureOfInterest is the real-world thing an observation is about (§3).
type FeatureOfInterest struct {
	InternalID     uint64
	UID            string
	ValidTimeStart Instant
	Geometry       []byte // optional, opaque
	Metadata       string
}

// RecordField describes one scalar/record/vector component of a stream's
// record structure (§9 "dynamic typing of records" design note): a tagged
// tree of scalars and composites whose serialization is delegated to the
// encoding descriptor and is opaque to the storage layer.
type RecordField struct {
	Name          string
	Type          PointTypeValue
	ObservableURI string
	Unit          string
	Children      []RecordField // non-empty for composite/vector fields
}

// StreamInfo describes a registered DataStream (§3, §4.2).
type StreamInfo struct {
	StreamID       uint64
	SystemID       uint64
	OutputName     string
	ValidTimeStart Instant
	Structure      []RecordField
	Encoding       string // opaque encoding descriptor name, e.g. "json", "swe-binary"
	State          StreamState
}

// SeriesInfo is one row of the statistics engine's per-series output and
// also the decoded form of a SeriesByStream/SeriesByFoi entry (§4.3, §4.5).
// Series are an implementation detail exposed only via statistics rows and
// cascading-delete bookkeeping (GLOSSARY "Series").
type SeriesInfo struct {
	SeriesID   uint64
	StreamID   uint64
	FoiID      uint64
	ResultTime Instant // the stored, possibly-normalized value (may be NegInfinity)
}
