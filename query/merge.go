package query

import (
	"container/heap"

	"github.com/INLOpen/obsbase/core"
)

// Entry pairs a decoded observation with the opaque id it was read from.
// The executor carries entries end to end so SelectKeys/SelectResults
// never need a second lookup to recover the id a decoded observation
// came from.
type Entry struct {
	OpaqueID []byte
	Obs      *core.Observation
}

// mergeSource is one series' already phenomenonTime-ordered entry slice,
// positioned at its next unconsumed element.
type mergeSource struct {
	items []Entry
	pos   int
}

// mergeHeap is a container/heap over the current head of each source,
// ordered by phenomenonTime then the (streamId, foiId) tie-break (§4.4:
// "the merge must be stable"). Grounded on the same heap-based k-way merge
// pagedmap's memtable/SSTable iterator merge uses (pagedmap/merge.go), adapted to
// compare decoded observations instead of raw encoded keys.
type mergeHeap []*mergeSource

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	a := h[i].items[h[i].pos].Obs
	b := h[j].items[h[j].pos].Obs
	if !a.PhenomenonTime.Equal(b.PhenomenonTime) {
		return a.PhenomenonTime.Before(b.PhenomenonTime)
	}
	if a.StreamID != b.StreamID {
		return a.StreamID < b.StreamID
	}
	return a.FoiID < b.FoiID
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x interface{}) { *h = append(*h, x.(*mergeSource)) }

func (h *mergeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// mergeEntries k-way merges per-series entry slices (each already
// phenomenonTime-ascending) into one phenomenonTime-ordered stream.
func mergeEntries(perSeries [][]Entry) []Entry {
	h := make(mergeHeap, 0, len(perSeries))
	for _, items := range perSeries {
		if len(items) > 0 {
			h = append(h, &mergeSource{items: items})
		}
	}
	heap.Init(&h)

	var out []Entry
	for h.Len() > 0 {
		top := h[0]
		out = append(out, top.items[top.pos])
		top.pos++
		if top.pos >= len(top.items) {
			heap.Pop(&h)
		} else {
			heap.Fix(&h, 0)
		}
	}
	return out
}
