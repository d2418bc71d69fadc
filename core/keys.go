package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// Instants are encoded as a fixed 12-byte form so they sort correctly under
// unsigned lexicographic byte order: 8 bytes big-endian seconds-since-epoch
// biased by 2^63 (so negative seconds still sort below positive ones),
// followed by 4 bytes big-endian nanos-of-second. The sentinels NegInfinity
// and PosInfinity encode as all-zero and all-one byte sequences and compare
// below/above any real instant.
const InstantSize = 12

// seriesKeySize is u64(streamId) || u64(foiId) || instant(resultTime).
const seriesKeySize = 8 + 8 + InstantSize

// recordKeySize is u64(seriesId) || instant(phenomenonTime).
const recordKeySize = 8 + InstantSize

const instantBias uint64 = 1 << 63

// NegInfinity and PosInfinity are sentinel instants used when a series has
// no explicit result-time bound, or a query asks for "latest"/"current".
var (
	NegInfinity = Instant{seconds: math.MinInt64, nanos: 0, infinite: -1}
	PosInfinity = Instant{seconds: math.MaxInt64, nanos: 0, infinite: 1}
)

// Instant is a phenomenon or result timestamp with nanosecond precision.
type Instant struct {
	seconds  int64
	nanos    int32
	infinite int8 // 0 = finite, -1 = -inf, +1 = +inf
}

// GobEncode implements gob.GobEncoder. Instant's fields are unexported, so
// without this the registry's gob-encoded records would silently lose
// every ValidTimeStart/ResultTime on a round trip.
func (i Instant) GobEncode() ([]byte, error) {
	return EncodeInstant(i), nil
}

// GobDecode implements gob.GobDecoder, the inverse of GobEncode.
func (i *Instant) GobDecode(data []byte) error {
	decoded, err := DecodeInstant(data)
	if err != nil {
		return err
	}
	*i = decoded
	return nil
}

// NewInstant builds a finite Instant from seconds-since-epoch and a
// nanosecond-of-second offset.
func NewInstant(seconds int64, nanos int32) Instant {
	return Instant{seconds: seconds, nanos: nanos}
}

// IsNegInfinity reports whether i is the -infinity sentinel.
func (i Instant) IsNegInfinity() bool { return i.infinite < 0 }

// IsPosInfinity reports whether i is the +infinity sentinel.
func (i Instant) IsPosInfinity() bool { return i.infinite > 0 }

// Seconds returns the seconds-since-epoch component. Meaningless for the
// infinite sentinels.
func (i Instant) Seconds() int64 { return i.seconds }

// Nanos returns the nanosecond-of-second component.
func (i Instant) Nanos() int32 { return i.nanos }

// Equal reports whether two instants denote the same point (including both
// being the same sentinel).
func (i Instant) Equal(other Instant) bool {
	return i.infinite == other.infinite && i.seconds == other.seconds && i.nanos == other.nanos
}

// Before reports whether i sorts strictly before other.
func (i Instant) Before(other Instant) bool {
	return bytes.Compare(EncodeInstant(i), EncodeInstant(other)) < 0
}

// Next returns the smallest instant that sorts strictly after i, for
// turning an inclusive point or bound into a half-open range endpoint
// (§4.4's temporal filter resolution). The infinite sentinels have no
// representable successor and are returned unchanged.
func (i Instant) Next() Instant {
	if i.infinite != 0 {
		return i
	}
	nanos := i.nanos + 1
	secs := i.seconds
	if nanos >= 1_000_000_000 {
		nanos = 0
		secs++
	}
	return Instant{seconds: secs, nanos: nanos}
}

// Prev returns the greatest instant that sorts strictly before i, the
// inverse of Next. The infinite sentinels have no representable
// predecessor and are returned unchanged.
func (i Instant) Prev() Instant {
	if i.infinite != 0 {
		return i
	}
	nanos := i.nanos - 1
	secs := i.seconds
	if nanos < 0 {
		nanos = 999_999_999
		secs--
	}
	return Instant{seconds: secs, nanos: nanos}
}

// UnixNano returns a coarse nanosecond-since-epoch proxy for i, clamped to
// the int64 range for the infinite sentinels. It is only meaningful for
// comparisons and range-tombstone arithmetic, not for display.
func (i Instant) UnixNano() int64 {
	switch {
	case i.IsNegInfinity():
		return math.MinInt64
	case i.IsPosInfinity():
		return math.MaxInt64
	}
	return i.seconds*int64(time.Second) + int64(i.nanos)
}

func (i Instant) String() string {
	switch {
	case i.IsNegInfinity():
		return "-inf"
	case i.IsPosInfinity():
		return "+inf"
	default:
		return fmt.Sprintf("%ds%dns", i.seconds, i.nanos)
	}
}

// EncodeInstant writes the fixed 12-byte encoding of i.
func EncodeInstant(i Instant) []byte {
	buf := make([]byte, InstantSize)
	EncodeInstantTo(buf, i)
	return buf
}

// EncodeInstantTo writes the fixed 12-byte encoding of i into dst, which
// must be at least InstantSize bytes long.
func EncodeInstantTo(dst []byte, i Instant) {
	switch {
	case i.IsNegInfinity():
		for j := 0; j < InstantSize; j++ {
			dst[j] = 0x00
		}
		return
	case i.IsPosInfinity():
		for j := 0; j < InstantSize; j++ {
			dst[j] = 0xff
		}
		return
	}
	biased := uint64(i.seconds) + instantBias
	binary.BigEndian.PutUint64(dst[0:8], biased)
	binary.BigEndian.PutUint32(dst[8:12], uint32(i.nanos))
}

// DecodeInstant reads a fixed 12-byte instant encoding produced by
// EncodeInstant. It recognizes the all-zero and all-one sentinels.
func DecodeInstant(b []byte) (Instant, error) {
	if len(b) < InstantSize {
		return Instant{}, fmt.Errorf("core: short instant encoding: %d bytes", len(b))
	}
	if isAllBytes(b[:InstantSize], 0x00) {
		return NegInfinity, nil
	}
	if isAllBytes(b[:InstantSize], 0xff) {
		return PosInfinity, nil
	}
	biased := binary.BigEndian.Uint64(b[0:8])
	seconds := int64(biased - instantBias)
	nanos := int32(binary.BigEndian.Uint32(b[8:12]))
	return Instant{seconds: seconds, nanos: nanos}, nil
}

func isAllBytes(b []byte, v byte) bool {
	for _, c := range b {
		if c != v {
			return false
		}
	}
	return true
}

// EncodeRecordKey builds the ObsRecords primary key:
// u64(seriesId) || instant(phenomenonTime). A fixed-width seriesId prefix
// (rather than a varint) keeps the whole keyspace byte-sortable across
// series, which the paged map relies on for its floorKey/ceilingKey/
// rangeCursor operations over the entire store, not just within one series.
func EncodeRecordKey(seriesID uint64, phenomenonTime Instant) []byte {
	out := make([]byte, recordKeySize)
	binary.BigEndian.PutUint64(out[0:8], seriesID)
	EncodeInstantTo(out[8:], phenomenonTime)
	return out
}

// DecodeRecordKey splits a record key back into its seriesId and
// phenomenonTime components.
func DecodeRecordKey(key []byte) (seriesID uint64, phenomenonTime Instant, err error) {
	if len(key) != recordKeySize {
		return 0, Instant{}, fmt.Errorf("core: malformed record key: %d bytes", len(key))
	}
	seriesID = binary.BigEndian.Uint64(key[0:8])
	phenomenonTime, err = DecodeInstant(key[8:])
	if err != nil {
		return 0, Instant{}, err
	}
	return seriesID, phenomenonTime, nil
}

// SeriesPrefix returns the u64(seriesId) prefix shared by every record key
// belonging to that series, for use as a range-scan lower/upper bound.
func SeriesPrefix(seriesID uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, seriesID)
	return out
}

// EncodeSeriesKey builds the SeriesByStream key:
// u64(streamId) || u64(foiId) || instant(resultTime).
func EncodeSeriesKey(streamID, foiID uint64, resultTime Instant) []byte {
	out := make([]byte, seriesKeySize)
	binary.BigEndian.PutUint64(out[0:8], streamID)
	binary.BigEndian.PutUint64(out[8:16], foiID)
	EncodeInstantTo(out[16:], resultTime)
	return out
}

// DecodeSeriesKey splits a SeriesByStream key into streamId, foiId and
// resultTime.
func DecodeSeriesKey(key []byte) (streamID, foiID uint64, resultTime Instant, err error) {
	if len(key) != seriesKeySize {
		return 0, 0, Instant{}, fmt.Errorf("core: malformed series key: %d bytes", len(key))
	}
	streamID = binary.BigEndian.Uint64(key[0:8])
	foiID = binary.BigEndian.Uint64(key[8:16])
	resultTime, err = DecodeInstant(key[16:])
	if err != nil {
		return 0, 0, Instant{}, err
	}
	return streamID, foiID, resultTime, nil
}

// EncodeSeriesByFoiKey builds the SeriesByFoi inverted key:
// u64(foiId) || u64(streamId) || instant(resultTime).
func EncodeSeriesByFoiKey(foiID, streamID uint64, resultTime Instant) []byte {
	out := make([]byte, seriesKeySize)
	binary.BigEndian.PutUint64(out[0:8], foiID)
	binary.BigEndian.PutUint64(out[8:16], streamID)
	EncodeInstantTo(out[16:], resultTime)
	return out
}

// DecodeSeriesByFoiKey splits a SeriesByFoi key into foiId, streamId and
// resultTime.
func DecodeSeriesByFoiKey(key []byte) (foiID, streamID uint64, resultTime Instant, err error) {
	if len(key) != seriesKeySize {
		return 0, 0, Instant{}, fmt.Errorf("core: malformed series-by-foi key: %d bytes", len(key))
	}
	foiID = binary.BigEndian.Uint64(key[0:8])
	streamID = binary.BigEndian.Uint64(key[8:16])
	resultTime, err = DecodeInstant(key[16:])
	if err != nil {
		return 0, 0, Instant{}, err
	}
	return foiID, streamID, resultTime, nil
}

// StreamFoiPrefix returns the u64(streamId) prefix shared by every
// SeriesByStream entry for that stream, for cascading-delete range scans.
func StreamFoiPrefix(streamID uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, streamID)
	return out
}

// FoiStreamPrefix returns the u64(foiId) prefix shared by every SeriesByFoi
// entry for that feature of interest.
func FoiStreamPrefix(foiID uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, foiID)
	return out
}

// EncodeOpaqueID builds the caller-visible observation identifier. It is
// bit-identical to EncodeRecordKey: u64(seriesId) || instant(phenomenonTime).
func EncodeOpaqueID(seriesID uint64, phenomenonTime Instant) []byte {
	return EncodeRecordKey(seriesID, phenomenonTime)
}

// DecodeOpaqueID decodes a caller-supplied identifier. A malformed id is
// reported via ErrInvalidKey so callers can treat it as not-found rather
// than aborting a query.
func DecodeOpaqueID(id []byte) (seriesID uint64, phenomenonTime Instant, err error) {
	seriesID, phenomenonTime, err = DecodeRecordKey(id)
	if err != nil {
		return 0, Instant{}, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return seriesID, phenomenonTime, nil
}

// PrefixUpperBound returns the smallest key that sorts strictly after every
// key having prefix, for use as the exclusive endKey of a range scan that
// should cover exactly that prefix. It returns nil (meaning "no upper
// bound") if prefix is empty or consists entirely of 0xff bytes.
func PrefixUpperBound(prefix []byte) []byte {
	out := append([]byte(nil), prefix...)
	for i := len(out) - 1; i >= 0; i-- {
		if out[i] != 0xff {
			out[i]++
			return out[:i+1]
		}
	}
	return nil
}
