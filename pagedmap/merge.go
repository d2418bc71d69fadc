package pagedmap

import (
	"bytes"
	"container/heap"

	"github.com/INLOpen/obsbase/core"
	"github.com/INLOpen/obsbase/iterator"
)

// mergeIterator k-way merges the memtable iterator and every SSTable
// iterator into one ordered, deduplicated view: for each distinct key the
// entry with the highest sequence number wins, and a winning point
// tombstone (core.EntryTypeDelete) is skipped rather than surfaced. obsstore
// removes a record (or cascades a stream/series removal) by writing a point
// delete per affected key, so this point-tombstone skip is the only
// filtering pagedmap needs to do; it has no notion of series or time
// ranges — only byte keys.
type mergeIterator struct {
	h         *mergeHeap
	all       []iterator.Interface // every source iterator, for Close; h only holds the not-yet-exhausted ones
	curKey    []byte
	curValue  []byte
	curType   core.EntryType
	curSeqNum uint64
	err       error
}

type mergeItem struct {
	it     iterator.Interface
	key    []byte
	value  []byte
	etype  core.EntryType
	seqNum uint64
}

type mergeHeap struct {
	items []*mergeItem
	order core.SortOrder
}

func (h *mergeHeap) Len() int { return len(h.items) }
func (h *mergeHeap) Less(i, j int) bool {
	a, b := h.items[i], h.items[j]
	cmp := bytes.Compare(a.key, b.key)
	if cmp != 0 {
		if h.order == core.Descending {
			return cmp > 0
		}
		return cmp < 0
	}
	return a.seqNum > b.seqNum
}
func (h *mergeHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *mergeHeap) Push(x interface{}) { h.items = append(h.items, x.(*mergeItem)) }
func (h *mergeHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	h.items = old[:n-1]
	return item
}

func newMergeIterator(iters []iterator.Interface, order core.SortOrder) *mergeIterator {
	h := &mergeHeap{items: make([]*mergeItem, 0, len(iters)), order: order}
	m := &mergeIterator{h: h, all: iters}
	for _, it := range iters {
		if it.Next() {
			h.items = append(h.items, newMergeItem(it))
		} else if err := it.Error(); err != nil {
			m.err = err
		}
	}
	heap.Init(h)
	return m
}

func newMergeItem(it iterator.Interface) *mergeItem {
	key, value, et, seq := it.At()
	keyCopy := append([]byte(nil), key...)
	valueCopy := append([]byte(nil), value...)
	return &mergeItem{it: it, key: keyCopy, value: valueCopy, etype: et, seqNum: seq}
}

// next pops the smallest (per order) key off the heap, advancing its
// source iterator and every other iterator that shared the same key, and
// returns the entry with the highest sequence number for that key.
func (m *mergeIterator) next() (*mergeItem, error) {
	if m.h.Len() == 0 {
		return nil, nil
	}
	top := heap.Pop(m.h).(*mergeItem)
	if top.it.Next() {
		heap.Push(m.h, newMergeItem(top.it))
	} else if err := top.it.Error(); err != nil {
		return nil, err
	}

	for m.h.Len() > 0 && bytes.Equal(m.h.items[0].key, top.key) {
		dup := heap.Pop(m.h).(*mergeItem)
		if dup.it.Next() {
			heap.Push(m.h, newMergeItem(dup.it))
		} else if err := dup.it.Error(); err != nil {
			return nil, err
		}
	}
	return top, nil
}

func (m *mergeIterator) Next() bool {
	if m.err != nil {
		return false
	}
	for {
		item, err := m.next()
		if err != nil {
			m.err = err
			return false
		}
		if item == nil {
			m.curKey, m.curValue = nil, nil
			return false
		}
		if item.etype == core.EntryTypeDelete {
			continue // point tombstone: newest version of this key is a removal
		}
		m.curKey, m.curValue, m.curType, m.curSeqNum = item.key, item.value, item.etype, item.seqNum
		return true
	}
}

func (m *mergeIterator) At() ([]byte, []byte, core.EntryType, uint64) {
	return m.curKey, m.curValue, m.curType, m.curSeqNum
}

func (m *mergeIterator) Error() error { return m.err }

func (m *mergeIterator) Close() error {
	var firstErr error
	for _, it := range m.all {
		if err := it.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	m.h.items = nil
	return firstErr
}

var _ iterator.Interface = (*mergeIterator)(nil)
