package playback

// entry is one buffer waiting on the [Timeline]. The seq field keeps buffers
// that share a start frame in arrival order.
type entry struct {
	start   int64 // first frame on the timeline
	samples []float32
	seq     uint64
}

// end returns the frame just past the last sample of e.
func (e *entry) end() int64 { return e.start + int64(len(e.samples)) }

// bufferHeap implements [container/heap.Interface] as a min-heap ordered by
// start frame, with FIFO tie-breaking on seq.
type bufferHeap []*entry

func (h bufferHeap) Len() int { return len(h) }

func (h bufferHeap) Less(i, j int) bool {
	if h[i].start != h[j].start {
		return h[i].start < h[j].start
	}
	return h[i].seq < h[j].seq
}

func (h bufferHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

// Push appends x to the heap. Called by [container/heap.Push]; callers must
// not invoke this directly.
func (h *bufferHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

// Pop removes and returns the last element. Called by [container/heap.Pop];
// callers must not invoke this directly.
func (h *bufferHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
