// Package pagedmap implements the module's sole storage primitive: a
// rank-augmented ordered byte-key map backed by a memtable, a
// write-ahead log, and a flat (non-leveled) run of immutable SSTables.
// Every higher-level index (registry tables, ObsRecords, SeriesByStream,
// SeriesByFoi) is one pagedmap.Map instance; nothing in this module
// talks to memtable/wal/sstable directly except this package.
package pagedmap

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/INLOpen/obsbase/cache"
	"github.com/INLOpen/obsbase/compressors"
	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/iterator"
	"github.com/INLOpen/obsbase/memtable"
	"github.com/INLOpen/obsbase/sstable"
	"github.com/INLOpen/obsbase/utils"
	"github.com/INLOpen/obsbase/wal"

	"go.opentelemetry.io/otel/trace"

	"log/slog"
)

// Options configures a Map's underlying memtable/WAL/SSTable stack.
type Options struct {
	Dir                   string
	MemtableSizeThreshold int64
	Clock                 utils.Clock

	WALSyncMode       wal.WALSyncMode
	WALMaxSegmentSize int64

	BlockCache        cache.Interface
	BlockSizeBytes    int
	BloomFilterFPRate float64
	Compression       string // "none", "snappy", "lz4", "zstd"

	Logger *slog.Logger
	Tracer trace.Tracer
}

func (o *Options) setDefaults() {
	if o.MemtableSizeThreshold <= 0 {
		o.MemtableSizeThreshold = 4 * 1024 * 1024
	}
	if o.Clock == nil {
		o.Clock = utils.SystemClock{}
	}
	if o.WALSyncMode == "" {
		o.WALSyncMode = wal.SyncInterval
	}
	if o.BlockCache == nil {
		o.BlockCache = cache.NewLRUCache(1024, nil, nil, nil)
	}
	if o.BlockSizeBytes <= 0 {
		o.BlockSizeBytes = 8 * 1024
	}
	if o.BloomFilterFPRate <= 0 {
		o.BloomFilterFPRate = 0.01
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

func resolveCompressor(name string) core.Compressor {
	switch strings.ToLower(name) {
	case "lz4":
		return compressors.NewLz4Compressor()
	case "zstd":
		return compressors.NewZstdCompressor()
	case "snappy", "":
		return compressors.NewSnappyCompressor()
	default:
		return &compressors.NoCompressionCompressor{}
	}
}

// Map is an ordered byte-key store: memtable for recent writes, a WAL for
// crash durability, and a flat run of immutable SSTables produced by
// synchronous flushes. There is no leveled compaction; the only reclaiming
// pass is the caller-driven Compact (see the obsstore package).
type Map struct {
	mu sync.RWMutex

	dir        string
	opts       Options
	compressor core.Compressor

	mutable  *memtable.Memtable
	sstables []*sstable.SSTable // ordered oldest-first; newest is queried first

	wal wal.WALInterface

	seq       uint64 // last allocated sequence/pointID, bumped by every Put/Remove
	nextSSTID uint64
}

const seqFileName = "NEXTSEQ"

// Open opens (or creates) a Map rooted at opts.Dir, replaying its WAL and
// loading any existing SSTables.
func Open(opts Options) (*Map, error) {
	opts.setDefaults()
	if opts.Dir == "" {
		return nil, fmt.Errorf("pagedmap: Dir is required")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, fmt.Errorf("pagedmap: create dir: %w", err)
	}

	compressor := resolveCompressor(opts.Compression)

	w, recovered, err := wal.Open(wal.Options{
		Dir:            filepath.Join(opts.Dir, "wal"),
		SyncMode:       opts.WALSyncMode,
		MaxSegmentSize: opts.WALMaxSegmentSize,
		Logger:         opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("pagedmap: open wal: %w", err)
	}

	m := &Map{
		dir:        opts.Dir,
		opts:       opts,
		compressor: compressor,
		mutable:    memtable.NewMemtable(opts.MemtableSizeThreshold, opts.Clock),
		wal:        w,
	}

	sstFiles, err := discoverSSTableFiles(opts.Dir)
	if err != nil {
		w.Close()
		return nil, err
	}
	for _, f := range sstFiles {
		sst, err := sstable.LoadSSTable(sstable.LoadSSTableOptions{
			FilePath:   f.path,
			ID:         f.id,
			BlockCache: opts.BlockCache,
			Tracer:     opts.Tracer,
			Logger:     opts.Logger,
		})
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("pagedmap: load sstable %s: %w", f.path, err)
		}
		m.sstables = append(m.sstables, sst)
		if f.id >= m.nextSSTID {
			m.nextSSTID = f.id + 1
		}
	}

	m.seq = readSeqFile(opts.Dir)
	for _, e := range recovered {
		if e.SeqNum > m.seq {
			m.seq = e.SeqNum
		}
		if err := m.mutable.Put(e.Key, e.Value, e.EntryType, e.SeqNum); err != nil {
			w.Close()
			return nil, fmt.Errorf("pagedmap: replay wal entry: %w", err)
		}
	}

	return m, nil
}

type sstFileRef struct {
	id   uint64
	path string
}

func discoverSSTableFiles(dir string) ([]sstFileRef, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("pagedmap: read dir: %w", err)
	}
	var out []sstFileRef
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sst") {
			continue
		}
		idStr := strings.TrimSuffix(e.Name(), ".sst")
		id, err := strconv.ParseUint(idStr, 10, 64)
		if err != nil {
			continue
		}
		out = append(out, sstFileRef{id: id, path: filepath.Join(dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out, nil
}

func readSeqFile(dir string) uint64 {
	b, err := os.ReadFile(filepath.Join(dir, seqFileName))
	if err != nil {
		return 0
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func writeSeqFile(dir string, v uint64) error {
	tmp := filepath.Join(dir, seqFileName+".tmp")
	final := filepath.Join(dir, seqFileName)
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(v, 10)), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// Close flushes the active memtable if non-empty, persists the sequence
// counter, and releases the WAL and every loaded SSTable.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.mutable.Len() > 0 {
		if err := m.flushLocked(); err != nil {
			return err
		}
	}
	if err := writeSeqFile(m.dir, m.seq); err != nil {
		return err
	}
	var firstErr error
	for _, sst := range m.sstables {
		if err := sst.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := m.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Clear discards every key in the map: it closes and deletes the WAL and
// every SSTable, then starts over with a fresh empty memtable, without
// requiring the caller to re-Open at a new directory. Used by the
// observation store's clear() operation (§6 ObsStore.clear) to reset one
// table in place.
func (m *Map) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.wal.Close(); err != nil {
		return fmt.Errorf("pagedmap: close wal: %w", err)
	}
	for _, sst := range m.sstables {
		if err := sst.Close(); err != nil {
			return fmt.Errorf("pagedmap: close sstable: %w", err)
		}
	}

	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return fmt.Errorf("pagedmap: read dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(m.dir, e.Name())); err != nil {
			return fmt.Errorf("pagedmap: remove %s: %w", e.Name(), err)
		}
	}

	w, _, err := wal.Open(wal.Options{
		Dir:            filepath.Join(m.dir, "wal"),
		SyncMode:       m.opts.WALSyncMode,
		MaxSegmentSize: m.opts.WALMaxSegmentSize,
		Logger:         m.opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("pagedmap: reopen wal: %w", err)
	}

	m.wal = w
	m.sstables = nil
	m.nextSSTID = 0
	m.seq = 0
	m.mutable = memtable.NewMemtable(m.opts.MemtableSizeThreshold, m.opts.Clock)
	return nil
}

// Commit fsyncs the WAL, making every applied Put/Remove since the last
// commit durable. It does not, by itself, flush the memtable.
func (m *Map) Commit() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.wal.Sync()
}

// Put inserts or overwrites key with value.
func (m *Map) Put(key, value []byte) error {
	return m.apply(key, value, core.EntryTypePutEvent)
}

// Remove writes a tombstone for key. A subsequent Get/rangeCursor no
// longer surfaces it, even though the old version still occupies space
// in the SSTables already written; no pass rewrites them.
func (m *Map) Remove(key []byte) error {
	return m.apply(key, nil, core.EntryTypeDelete)
}

func (m *Map) apply(key, value []byte, et core.EntryType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seq := atomic.AddUint64(&m.seq, 1)
	if err := m.wal.Append(core.WALEntry{EntryType: et, Key: key, Value: value, SeqNum: seq}); err != nil {
		return fmt.Errorf("pagedmap: wal append: %w", err)
	}
	if err := m.mutable.Put(key, value, et, seq); err != nil {
		return fmt.Errorf("pagedmap: memtable put: %w", err)
	}
	if m.mutable.IsFull() {
		return m.flushLocked()
	}
	return nil
}

// flushLocked writes the current mutable memtable to a new SSTable and
// starts a fresh one. Unlike the multi-level engine this module is
// adapted from, there is no background flush goroutine or immutable
// memtable queue: the write that crosses the size threshold pays for its
// own flush, synchronously, under m.mu.
func (m *Map) flushLocked() error {
	id := m.nextSSTID
	m.nextSSTID++

	writer, err := sstable.NewSSTableWriter(core.SSTableWriterOptions{
		DataDir:                      m.dir,
		ID:                           id,
		EstimatedKeys:                uint64(m.mutable.Len()),
		BloomFilterFalsePositiveRate: m.opts.BloomFilterFPRate,
		BlockSize:                    m.opts.BlockSizeBytes,
		Tracer:                       m.opts.Tracer,
		Compressor:                   m.compressor,
		Logger:                       m.opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("pagedmap: new sstable writer: %w", err)
	}

	if err := m.mutable.FlushToSSTable(writer); err != nil {
		writer.Abort()
		return fmt.Errorf("pagedmap: flush to sstable: %w", err)
	}
	if err := writer.Finish(); err != nil {
		return fmt.Errorf("pagedmap: finish sstable: %w", err)
	}

	sst, err := sstable.LoadSSTable(sstable.LoadSSTableOptions{
		FilePath:   writer.FilePath(),
		ID:         id,
		BlockCache: m.opts.BlockCache,
		Tracer:     m.opts.Tracer,
		Logger:     m.opts.Logger,
	})
	if err != nil {
		return fmt.Errorf("pagedmap: load flushed sstable: %w", err)
	}

	m.sstables = append(m.sstables, sst)
	m.mutable = memtable.NewMemtable(m.opts.MemtableSizeThreshold, m.opts.Clock)

	if err := writeSeqFile(m.dir, m.seq); err != nil {
		return fmt.Errorf("pagedmap: persist sequence: %w", err)
	}
	if rotateErr := m.wal.Rotate(); rotateErr != nil {
		return fmt.Errorf("pagedmap: rotate wal: %w", rotateErr)
	}
	if active := m.wal.ActiveSegmentIndex(); active > 0 {
		if err := m.wal.Purge(active - 1); err != nil {
			m.opts.Logger.Warn("pagedmap: wal purge after flush failed", "error", err)
		}
	}
	return nil
}

// Get returns the value stored for key, or found=false if it is absent or
// tombstoned. The newest SSTable is searched first, then older ones, since
// a later Put shadows an earlier one.
func (m *Map) Get(key []byte) (value []byte, found bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if v, et, ok := m.mutable.Get(key); ok {
		if et == core.EntryTypeDelete {
			return nil, false, nil
		}
		return v, true, nil
	}

	for i := len(m.sstables) - 1; i >= 0; i-- {
		v, et, err := m.sstables[i].Get(key)
		if err == nil {
			if et == core.EntryTypeDelete {
				return nil, false, nil
			}
			return v, true, nil
		}
		if err != sstable.ErrNotFound {
			return nil, false, err
		}
	}
	return nil, false, nil
}

// ContainsKey reports whether key has a live (non-tombstoned) value.
func (m *Map) ContainsKey(key []byte) (bool, error) {
	_, found, err := m.Get(key)
	return found, err
}

// FloorKey returns the greatest key <= key, or found=false if none exists.
// Like RankOf, this walks a descending rangeCursor from the top rather than
// consulting a dedicated order-statistics index.
func (m *Map) FloorKey(key []byte) (floor []byte, found bool, err error) {
	cur, err := m.RangeCursor(nil, nil, core.Descending)
	if err != nil {
		return nil, false, err
	}
	defer cur.Close()

	// rangeCursor has no upper-inclusive bound primitive, so walk down from
	// the top until the first key <= the probe.
	for cur.Next() {
		k, _, _, _ := cur.At()
		if bytes.Compare(k, key) <= 0 {
			out := make([]byte, len(k))
			copy(out, k)
			return out, true, nil
		}
	}
	return nil, false, cur.Error()
}

// CeilingKey returns the smallest key >= key, or found=false if none exists.
func (m *Map) CeilingKey(key []byte) (ceil []byte, found bool, err error) {
	cur, err := m.RangeCursor(key, nil, core.Ascending)
	if err != nil {
		return nil, false, err
	}
	defer cur.Close()

	if cur.Next() {
		k, _, _, _ := cur.At()
		out := make([]byte, len(k))
		copy(out, k)
		return out, true, nil
	}
	return nil, false, cur.Error()
}

// RangeCursor returns a lazily-pulled, point-tombstone-aware iterator over
// every live key in [startKey, endKey) (startKey inclusive, endKey
// exclusive; either bound may be nil for open-ended), in the requested
// order. The caller must Close it.
func (m *Map) RangeCursor(startKey, endKey []byte, order core.SortOrder) (iterator.Interface, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	iters := make([]iterator.Interface, 0, len(m.sstables)+1)
	iters = append(iters, m.mutable.NewIterator(startKey, endKey, order))
	for _, sst := range m.sstables {
		it, err := sst.NewIterator(startKey, endKey, nil, order)
		if err != nil {
			for _, prev := range iters {
				prev.Close()
			}
			return nil, fmt.Errorf("pagedmap: sstable iterator: %w", err)
		}
		iters = append(iters, it)
	}
	return newMergeIterator(iters, order), nil
}

// RankOf returns the number of live keys strictly less than key. It is an
// O(n) cursor walk rather than a true order-statistics structure: this
// module keeps no separate rank index, so counting is the rangeCursor's
// distinct-key count up to key. Acceptable for the bounded,
// per-series/per-table scans this store's query and stats layers perform;
// not meant for rank queries over the whole keyspace of a large table.
func (m *Map) RankOf(key []byte) (int64, error) {
	cur, err := m.RangeCursor(nil, key, core.Ascending)
	if err != nil {
		return 0, err
	}
	defer cur.Close()

	var n int64
	for cur.Next() {
		n++
	}
	return n, cur.Error()
}
