package queue

import (
	"container/heap"
	"fmt"
	"sync"
	"time"
)

// jobHeap is a priority queue ordered by Priority (descending) then
// AvailableAt (ascending), implementing container/heap.Interface.
type jobHeap []*Job

func (h jobHeap) Len() int { return len(h) }
func (h jobHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].AvailableAt.Before(h[j].AvailableAt)
}
func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *jobHeap) Push(x interface{}) {
	*h = append(*h, x.(*Job))
}
func (h *jobHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// MemoryQueue is an in-process, priority-ordered job queue. A job
// whose AvailableAt is still in the future (a retry backoff) is left
// in the heap until Dequeue is called again; Dequeue returns an error
// rather than blocking when nothing is ready; worker.go polls and
// sleeps between attempts.
type MemoryQueue struct {
	mu   sync.Mutex
	heap jobHeap
}

// NewMemoryQueue builds an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	q := &MemoryQueue{}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds a job to the queue.
func (q *MemoryQueue) Enqueue(job *Job) error {
	if job == nil {
		return fmt.Errorf("queue: cannot enqueue nil job")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	heap.Push(&q.heap, job)
	return nil
}

// Dequeue removes and returns the highest-priority job whose
// AvailableAt has passed. Returns an error if none is ready.
func (q *MemoryQueue) Dequeue() (*Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	for i, job := range q.heap {
		if job.AvailableAt.After(now) {
			continue
		}
		heap.Remove(&q.heap, i)
		return job, nil
	}
	return nil, fmt.Errorf("queue: no ready job")
}

// Size returns the number of jobs currently queued, ready or not.
func (q *MemoryQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}
