package graph

import (
	"container/heap"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
	"sync/atomic"
)

// WorkItem is a schedulable unit of work in the sequential/streaming
// executor's frontier. It carries the node's input state snapshot plus
// provenance (ParentNodeID, EdgeIndex) used to compute a deterministic
// OrderKey, so the frontier dequeues work in a stable order regardless of
// goroutine completion order.
type WorkItem struct {
	StepID       int
	OrderKey     uint64
	NodeID       string
	State        State
	Attempt      int
	ParentNodeID string
	EdgeIndex    int
}

// ComputeOrderKey derives a deterministic sort key from the parent node
// id and edge index: SHA-256(parentNodeID || edgeIndex), first 8 bytes as
// a big-endian uint64. Same inputs always produce the same key, which is
// what makes Frontier's dequeue order replay-stable.
func ComputeOrderKey(parentNodeID string, edgeIndex int) uint64 {
	h := sha256.New()
	h.Write([]byte(parentNodeID))
	edgeBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(edgeBytes, uint32(edgeIndex))
	h.Write(edgeBytes)
	return binary.BigEndian.Uint64(h.Sum(nil)[:8])
}

type workHeap []WorkItem

func (h workHeap) Len() int            { return len(h) }
func (h workHeap) Less(i, j int) bool  { return h[i].OrderKey < h[j].OrderKey }
func (h workHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *workHeap) Push(x interface{}) { *h = append(*h, x.(WorkItem)) }
func (h *workHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[0 : n-1]
	return item
}

// Frontier combines a priority heap (ordered by OrderKey) with a buffered
// channel bounding queue depth, giving deterministic dequeue order plus
// natural backpressure when producers outrun consumers.
type Frontier struct {
	heap     workHeap
	queue    chan WorkItem
	capacity int
	mu       sync.Mutex

	totalEnqueued      atomic.Int64
	totalDequeued      atomic.Int64
	backpressureEvents atomic.Int32
	peakQueueDepth     atomic.Int32
}

func NewFrontier(capacity int) *Frontier {
	f := &Frontier{
		heap:     make(workHeap, 0),
		queue:    make(chan WorkItem, capacity),
		capacity: capacity,
	}
	heap.Init(&f.heap)
	return f
}

// Enqueue adds an item to the heap then blocks sending on the bounded
// channel until space is available or ctx is done — the blocking send is
// the backpressure mechanism.
func (f *Frontier) Enqueue(ctx context.Context, item WorkItem) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	f.mu.Lock()
	heap.Push(&f.heap, item)
	depth := int32(f.heap.Len())
	f.mu.Unlock()

	for {
		oldPeak := f.peakQueueDepth.Load()
		if depth <= oldPeak || f.peakQueueDepth.CompareAndSwap(oldPeak, depth) {
			break
		}
	}
	if depth >= int32(f.capacity) {
		f.backpressureEvents.Add(1)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case f.queue <- item:
		f.totalEnqueued.Add(1)
		return nil
	}
}

// Dequeue blocks until an item is available on the channel, then pops the
// minimum-OrderKey item from the heap.
func (f *Frontier) Dequeue(ctx context.Context) (WorkItem, error) {
	var zero WorkItem
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-f.queue:
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.heap.Len() == 0 {
			return zero, ErrNoProgress
		}
		item := heap.Pop(&f.heap).(WorkItem)
		f.totalDequeued.Add(1)
		return item, nil
	}
}

func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.heap.Len()
}

// SchedulerMetrics is a point-in-time snapshot of frontier activity.
type SchedulerMetrics struct {
	QueueDepth         int32
	QueueCapacity      int32
	TotalEnqueued      int64
	TotalDequeued      int64
	BackpressureEvents int32
	PeakQueueDepth     int32
}

func (f *Frontier) Metrics() SchedulerMetrics {
	f.mu.Lock()
	depth := int32(f.heap.Len())
	f.mu.Unlock()

	return SchedulerMetrics{
		QueueDepth:         depth,
		QueueCapacity:      int32(f.capacity),
		TotalEnqueued:      f.totalEnqueued.Load(),
		TotalDequeued:      f.totalDequeued.Load(),
		BackpressureEvents: f.backpressureEvents.Load(),
		PeakQueueDepth:     f.peakQueueDepth.Load(),
	}
}
