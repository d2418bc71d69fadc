package obsstore

import (
	"encoding/binary"
	"fmt"

	"github.com/INLOpen/obsbase/core"
)

// encodeRecord builds the ObsRecords value for obs. Layout: instant(real,
// un-normalized resultTime) || u64(streamId) || u64(foiId) ||
// u32(len(samplingGeometry)) || samplingGeometry || FieldValues.Encode().
// streamId is denormalized here the same way spec.md denormalizes foiId
// "for validation" (§3 Observation row): a primary-key Get must return a
// complete Observation without a second lookup into SeriesByStream.
func encodeRecord(obs *core.Observation) ([]byte, error) {
	fieldsBytes, err := obs.Result.Encode()
	if err != nil {
		return nil, fmt.Errorf("obsstore: encode result fields: %w", err)
	}
	out := make([]byte, 0, core.InstantSize+8+8+4+len(obs.SamplingGeometry)+len(fieldsBytes))
	out = append(out, core.EncodeInstant(obs.ResultTime)...)
	out = append(out, encodeUint64(obs.StreamID)...)
	out = append(out, encodeUint64(obs.FoiID)...)
	out = append(out, encodeUint32(uint32(len(obs.SamplingGeometry)))...)
	out = append(out, obs.SamplingGeometry...)
	out = append(out, fieldsBytes...)
	return out, nil
}

// decodeRecord is the inverse of encodeRecord. phenomenonTime comes from
// the ObsRecords key, not the value.
//
// SPEC_FULL SUPPLEMENTED FEATURES #1: if the decoded resultTime is the
// NegInfinity sentinel (never produced by encodeRecord itself, which
// always stores the real resultTime per spec §4.3 step 4, but possible
// for a record written by another tool or an earlier format), the
// returned Observation's ResultTime is set equal to PhenomenonTime rather
// than surfacing the sentinel to callers.
func decodeRecord(phenomenonTime core.Instant, data []byte) (*core.Observation, error) {
	const minLen = core.InstantSize + 8 + 8 + 4
	if len(data) < minLen {
		return nil, fmt.Errorf("obsstore: short record: %d bytes", len(data))
	}
	resultTime, err := core.DecodeInstant(data[:core.InstantSize])
	if err != nil {
		return nil, err
	}
	off := core.InstantSize
	streamID := binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	foiID := binary.BigEndian.Uint64(data[off : off+8])
	off += 8
	geomLen := binary.BigEndian.Uint32(data[off : off+4])
	off += 4
	if off+int(geomLen) > len(data) {
		return nil, fmt.Errorf("obsstore: malformed record: geometry length out of range")
	}
	var geom []byte
	if geomLen > 0 {
		geom = append([]byte(nil), data[off:off+int(geomLen)]...)
	}
	off += int(geomLen)

	fields, err := core.DecodeFieldsFromBytes(data[off:])
	if err != nil {
		return nil, fmt.Errorf("obsstore: decode result fields: %w", err)
	}

	if resultTime.IsNegInfinity() {
		resultTime = phenomenonTime
	}

	return &core.Observation{
		StreamID:         streamID,
		FoiID:            foiID,
		PhenomenonTime:   phenomenonTime,
		ResultTime:       resultTime,
		Result:           fields,
		SamplingGeometry: geom,
	}, nil
}

func encodeUint64(v uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, v)
	return out
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("obsstore: malformed u64 value: %d bytes", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

func encodeUint32(v uint32) []byte {
	out := make([]byte, 4)
	binary.BigEndian.PutUint32(out, v)
	return out
}
