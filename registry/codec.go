package registry

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"

	"github.com/INLOpen/obsbase/core"
)

func encodeGob(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("registry: encode: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGob(data []byte, v interface{}) error {
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(v); err != nil {
		return fmt.Errorf("registry: decode: %w", err)
	}
	return nil
}

func encodeSystem(s core.System) ([]byte, error)             { return encodeGob(s) }
func decodeSystem(b []byte) (core.System, error) {
	var s core.System
	err := decodeGob(b, &s)
	return s, err
}

func encodeFoi(f core.FeatureOfInterest) ([]byte, error) { return encodeGob(f) }
func decodeFoi(b []byte) (core.FeatureOfInterest, error) {
	var f core.FeatureOfInterest
	err := decodeGob(b, &f)
	return f, err
}

func encodeStreamInfo(si core.StreamInfo) ([]byte, error) { return encodeGob(si) }
func decodeStreamInfo(b []byte) (core.StreamInfo, error) {
	var si core.StreamInfo
	err := decodeGob(b, &si)
	return si, err
}

func idKey(id uint64) []byte {
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, id)
	return out
}

func decodeIDKey(key []byte) (uint64, error) {
	if len(key) != 8 {
		return 0, fmt.Errorf("registry: malformed id key: %d bytes", len(key))
	}
	return binary.BigEndian.Uint64(key), nil
}

func uidKey(uid string) []byte { return []byte(uid) }

// streamLookupPrefix builds the u64(systemId)||u16(len(outputName))||outputName
// prefix shared by every valid-time version of one (systemId, outputName)
// stream, so the prefix alone can be range-scanned to find the live,
// highest-validTimeStart version (SPEC_FULL "current version" resolution).
func streamLookupPrefix(systemID uint64, outputName string) []byte {
	out := make([]byte, 8+2+len(outputName))
	binary.BigEndian.PutUint64(out[0:8], systemID)
	binary.BigEndian.PutUint16(out[8:10], uint16(len(outputName)))
	copy(out[10:], outputName)
	return out
}

func streamLookupKey(systemID uint64, outputName string, validTimeStart core.Instant) []byte {
	prefix := streamLookupPrefix(systemID, outputName)
	out := make([]byte, len(prefix)+core.InstantSize)
	copy(out, prefix)
	core.EncodeInstantTo(out[len(prefix):], validTimeStart)
	return out
}
