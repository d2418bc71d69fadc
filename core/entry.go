package core

import (
	"encoding/binary"
	"fmt"
)

// EntryType defines the type of an entry in the WAL or a paged-map segment.
type EntryType byte

const (
	// EntryTypeDelete is a tombstone for a single record key (remove(publicId)).
	EntryTypeDelete EntryType = 'D'
	// EntryTypeDeleteSeries is a tombstone for an entire series. No
	// ObsStore operation emits it: a stream delete removes each record with
	// a single-key EntryTypeDelete.
	EntryTypeDeleteSeries EntryType = 'S'
	// EntryTypePutEvent is a single add/put of an observation record.
	EntryTypePutEvent EntryType = 'E'
	// EntryTypePutBatch is a group of entries applied atomically under one
	// executeTransaction call (§4.6).
	EntryTypePutBatch EntryType = 'B'
	// EntryTypeDeleteRange is a tombstone for a time range within a series.
	// Not reachable from any ObsStore operation in this spec; retained as a
	// format-level entry type because the WAL/memtable/sstable layers treat
	// entry types opaquely.
	EntryTypeDeleteRange EntryType = 'R'
)

// EncodeRangeTombstoneValue encodes the start and end timestamps for a range tombstone.
func EncodeRangeTombstoneValue(startTime, endTime int64) []byte {
	buf := make([]byte, 16)
	binary.BigEndian.PutUint64(buf[0:8], uint64(startTime))
	binary.BigEndian.PutUint64(buf[8:16], uint64(endTime))
	return buf
}

// DecodeRangeTombstoneValue decodes the start and end timestamps from a range tombstone value.
func DecodeRangeTombstoneValue(value []byte) (startTime, endTime int64, err error) {
	if len(value) != 16 {
		return 0, 0, fmt.Errorf("invalid range tombstone value length: got %d, want 16", len(value))
	}
	startTime = int64(binary.BigEndian.Uint64(value[0:8]))
	endTime = int64(binary.BigEndian.Uint64(value[8:16]))
	return startTime, endTime, nil
}
