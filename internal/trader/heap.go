package trader

import "container/heap"

// decisionHeap is a bounded min-heap over decision desirability: once at
// capacity, a new candidate evicts the current minimum only when it scores
// higher, keeping the K best seen so far.
type decisionHeap struct {
	items []decision
	cap   int
}

func newDecisionHeap(k int) *decisionHeap {
	return &decisionHeap{items: make([]decision, 0, k), cap: k}
}

func (h *decisionHeap) Len() int           { return len(h.items) }
func (h *decisionHeap) Less(i, j int) bool { return h.items[i].desirability < h.items[j].desirability }
func (h *decisionHeap) Swap(i, j int)      { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *decisionHeap) Push(x any)         { h.items = append(h.items, x.(decision)) }

func (h *decisionHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// offer considers a candidate for the top-K set.
func (h *decisionHeap) offer(d decision) {
	if len(h.items) < h.cap {
		heap.Push(h, d)
		return
	}
	if d.desirability > h.items[0].desirability {
		h.items[0] = d
		heap.Fix(h, 0)
	}
}

// drain returns the retained decisions in heap order (unsorted).
func (h *decisionHeap) drain() []decision {
	out := h.items
	h.items = nil
	return out
}
