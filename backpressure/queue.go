package backpressure

import "container/heap"

// queueItem is one heap slot: a queued request plus its reply channel, its
// heap index (maintained by container/heap, -1 once removed), a monotonic
// sequence number that breaks priority ties in FIFO order, and the stop
// functions for its queue-timeout and cancellation watchers.
type queueItem struct {
	req      Request
	reply    chan Outcome
	index    int
	seq      uint64
	stopTimer    func() bool
	stopCancel   func() bool
}

// priorityHeap is a container/heap.Interface ordering by RequestPriority
// descending, then by sequence number ascending (FIFO within a priority).
type priorityHeap []*queueItem

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].req.Priority != h[j].req.Priority {
		return h[i].req.Priority > h[j].req.Priority
	}
	return h[i].seq < h[j].seq
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	item := x.(*queueItem)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*priorityHeap)(nil)
