package registry

import (
	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/pagedmap"
	"github.com/cespare/xxhash/v2"
)

// nextSequentialID returns max(existing key)+1 over m's keyspace,
// interpreting every key as a big-endian u64, or 1 if m is empty (spec
// §4.2 "Sequential: ... taken from lastKey+1 of the stream map").
func nextSequentialID(m *pagedmap.Map) (uint64, error) {
	cur, err := m.RangeCursor(nil, nil, core.Descending)
	if err != nil {
		return 0, err
	}
	defer cur.Close()
	if !cur.Next() {
		if err := cur.Error(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	key, _, _, _ := cur.At()
	last, err := decodeIDKey(key)
	if err != nil {
		return 0, err
	}
	return last + 1, nil
}

// uidHashSeed derives spec §4.2's "deterministic hash" stream id: a
// non-cryptographic hash of systemId||outputName||validTimeStart,
// truncated and collision-probed upward by the caller. The spec names a
// 128-bit hash (e.g. MurmurHash3-128) truncated to 48 bits; this module
// instead hashes with the 64-bit github.com/cespare/xxhash/v2 (the hash
// dependency actually available in the retrieved pack, see DESIGN.md) and
// truncates that to the low 48 bits, which preserves the spec's
// collision-probing contract without changing any on-disk key shape (ids
// are still plain uint64 stream ids).
func uidHashSeed(systemID uint64, outputName string, validTimeStart core.Instant) uint64 {
	buf := make([]byte, 8+len(outputName)+core.InstantSize)
	idKeyInto(buf[0:8], systemID)
	copy(buf[8:8+len(outputName)], outputName)
	core.EncodeInstantTo(buf[8+len(outputName):], validTimeStart)
	h := xxhash.Sum64(buf)
	const mask48 = (uint64(1) << 48) - 1
	id := h & mask48
	if id == 0 {
		id = 1
	}
	return id
}

func idKeyInto(dst []byte, v uint64) {
	dst[0] = byte(v >> 56)
	dst[1] = byte(v >> 48)
	dst[2] = byte(v >> 40)
	dst[3] = byte(v >> 32)
	dst[4] = byte(v >> 24)
	dst[5] = byte(v >> 16)
	dst[6] = byte(v >> 8)
	dst[7] = byte(v)
}
