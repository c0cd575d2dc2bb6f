package service

import (
	"container/heap"

	"github.com/hypecasthq/hypecast/internal/models"
)

// postQueue is a min-heap over ScheduledTime. It is a working set over the
// status database, not the source of truth: it does not survive restarts
// and is rebuilt from the store. Callers synchronize access.
type postQueue struct {
	items postHeap
}

func newPostQueue() *postQueue {
	q := &postQueue{}
	heap.Init(&q.items)
	return q
}

func (q *postQueue) Push(post *models.Post) {
	heap.Push(&q.items, post)
}

// Peek returns the earliest post without removing it, or nil when empty.
func (q *postQueue) Peek() *models.Post {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// Pop removes and returns the earliest post, or nil when empty.
func (q *postQueue) Pop() *models.Post {
	if len(q.items) == 0 {
		return nil
	}
	return heap.Pop(&q.items).(*models.Post)
}

func (q *postQueue) Len() int {
	return len(q.items)
}

func (q *postQueue) Clear() {
	q.items = q.items[:0]
}

type postHeap []*models.Post

func (h postHeap) Len() int { return len(h) }

func (h postHeap) Less(i, j int) bool {
	return h[i].ScheduledTime.Before(h[j].ScheduledTime)
}

func (h postHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *postHeap) Push(x interface{}) {
	*h = append(*h, x.(*models.Post))
}

func (h *postHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
