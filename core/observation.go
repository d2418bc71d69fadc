package core

import "fmt"

// Observation is the canonical in-memory representation of a single
// observation record: a result datablock keyed by the composite
// (seriesId, phenomenonTime), carrying enough denormalized identity
// (StreamID, FoiID) to validate and reindex it without a second lookup.
//
// ResultTime holds the real, un-normalized result time as given by the
// caller. A series' stored resultTime is normalized to NegInfinity when
// ResultTime equals PhenomenonTime (the common sensor case, per §3); that
// normalization is the write path's concern, not this type's.
type Observation struct {
	StreamID       uint64
	FoiID          uint64 // 0 means "no feature of interest"
	PhenomenonTime Instant
	ResultTime     Instant
	Result         FieldValues

	// SamplingGeometry is an optional, opaque encoding of the point/area the
	// observation samples. The storage layer never interprets it; geometric
	// indexing is out of scope (§1) and this field is carried for callers
	// that opt into the indexObsLocation config flag at a higher layer.
	SamplingGeometry []byte
}

// NewObservation builds an Observation, defaulting ResultTime to
// PhenomenonTime (the common sensor case) when the caller gives no
// explicit result time.
func NewObservation(streamID uint64, phenomenonTime Instant, result FieldValues) (*Observation, error) {
	if streamID == 0 {
		return nil, &ValidationError{Message: "streamId must be non-zero", Field: "streamId"}
	}
	return &Observation{
		StreamID:       streamID,
		PhenomenonTime: phenomenonTime,
		ResultTime:     phenomenonTime,
		Result:         result,
	}, nil
}

// WithFoi sets the denormalized FoiID and returns the observation for
// chaining.
func (o *Observation) WithFoi(foiID uint64) *Observation {
	o.FoiID = foiID
	return o
}

// WithResultTime overrides ResultTime (e.g. for a model-run observation
// whose result time differs from when the phenomenon occurred).
func (o *Observation) WithResultTime(resultTime Instant) *Observation {
	o.ResultTime = resultTime
	return o
}

// IsResultTimeImplicit reports whether ResultTime equals PhenomenonTime,
// the case normalized to NegInfinity when indexed (§3, §4.3 step 1).
func (o *Observation) IsResultTimeImplicit() bool {
	return o.ResultTime.Equal(o.PhenomenonTime)
}

func (o *Observation) String() string {
	return fmt.Sprintf("Observation{stream=%d foi=%d phenomenonTime=%s resultTime=%s}",
		o.StreamID, o.FoiID, o.PhenomenonTime, o.ResultTime)
}
