package eventqueue

import "container/heap"

// item wraps an Event for storage in the heap, carrying any priority boost
// applied since it was enqueued (spec.md §4.D priority-boost).
type item struct {
	event        Event
	boostedPrio  Priority
	boostApplied bool
	index        int
}

func (it *item) effectivePriority() Priority {
	if it.boostApplied {
		return it.boostedPrio
	}
	return it.event.Priority
}

// itemHeap implements container/heap.Interface, ordering by
// (effective priority ascending, created_at ascending) — spec.md §4.D.
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	pi, pj := h[i].effectivePriority(), h[j].effectivePriority()
	if pi != pj {
		return pi < pj
	}
	return h[i].event.CreatedAt.Before(h[j].event.CreatedAt)
}

func (h itemHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *itemHeap) Push(x any) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

var _ heap.Interface = (*itemHeap)(nil)
