package federation

import (
	"container/heap"

	"github.com/INLOpen/obsbase/core"
)

// mergeSource is one backing store's already phenomenonTime-ordered
// result slice, positioned at its next unconsumed element.
type mergeSource struct {
	items []*core.Observation
	pos   int
}

// mergeHeap orders backing-store results the same way query/merge.go
// orders per-series results intra-store: phenomenonTime, then
// (streamId, foiId) as a stable tie-break.
type mergeHeap []*mergeSource

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	a := h[i].items[h[i].pos]
	b := h[j].items[h[j].pos]
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

// mergeByPhenomenonTime k-way merges each backing store's result slice
// into one phenomenonTime-ordered stream.
func mergeByPhenomenonTime(perStore [][]*core.Observation) []*core.Observation {
	h := make(mergeHeap, 0, len(perStore))
	for _, items := range perStore {
		if len(items) > 0 {
			h = append(h, &mergeSource{items: items})
		}
	}
	heap.Init(&h)

	var out []*core.Observation
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
