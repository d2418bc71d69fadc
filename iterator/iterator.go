// Package iterator defines the cursor contract every storage layer
// (memtable, sstable, pagedmap, obsstore) returns range scans through.
package iterator

import "github.com/INLOpen/obsbase/core"

// Interface defines a common interface for all iterators in the system.
type Interface interface {
	Next() bool
	// At returns the current key, value, entry type, and sequence number.
	// The returned slices are only valid until the next call to Next().
	At() ([]byte, []byte, core.EntryType, uint64)
	Error() error
	Close() error
}
