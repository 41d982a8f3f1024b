// Package queue implements the priority-ordered waiting line for
// escalations that could not be assigned immediately.
package queue

import (
	"container/heap"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bridgedesk/bridgedesk/internal/config"
	"github.com/bridgedesk/bridgedesk/internal/routing"
)

// ErrCapacityExceeded is returned when the queue is full. Surfaced to the
// caller; never retried automatically.
var ErrCapacityExceeded = errors.New("escalation queue capacity exceeded")

// Item is one queued escalation.
type Item struct {
	ConversationID string              `json:"conversation_id"`
	Priority       float64             `json:"priority"`
	Requirement    routing.Requirement `json:"requirement"`
	EnqueuedAt     time.Time           `json:"enqueued_at"`

	seq uint64 // arrival order, breaks ties within equal priority
}

// Admission describes where a conversation landed in the queue.
type Admission struct {
	Position      int           `json:"position"` // 1-based
	QueueLength   int           `json:"queue_length"`
	EstimatedWait time.Duration `json:"estimated_wait"`
}

// Queue is a bounded priority queue: higher priority first, FIFO within
// equal priority.
type Queue struct {
	mu    sync.Mutex
	cfg   config.QueueConfig
	items itemHeap
	seq   uint64
}

// New creates an empty queue.
func New(cfg config.QueueConfig) *Queue {
	return &Queue{cfg: cfg}
}

// Push enqueues an escalation and reports its position and estimated
// wait. Returns ErrCapacityExceeded when the queue is full; already
// queued conversations are unaffected.
func (q *Queue) Push(item Item) (Admission, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.cfg.MaxSize {
		return Admission{}, ErrCapacityExceeded
	}

	q.seq++
	item.seq = q.seq
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	heap.Push(&q.items, item)

	pos := q.positionLocked(item)
	return Admission{
		Position:      pos,
		QueueLength:   len(q.items),
		EstimatedWait: time.Duration(pos) * q.cfg.AvgHandleTime,
	}, nil
}

// Pop dequeues the highest-priority escalation.
func (q *Queue) Pop() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return Item{}, false
	}
	return heap.Pop(&q.items).(Item), true
}

// Remove drops a queued conversation (e.g. closed while waiting).
// Reports whether it was present.
func (q *Queue) Remove(conversationID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, it := range q.items {
		if it.ConversationID == conversationID {
			heap.Remove(&q.items, i)
			return true
		}
	}
	return false
}

// Len returns the number of queued escalations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns queued items in dequeue order.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, len(q.items))
	copy(out, q.items)
	sort.Slice(out, func(i, j int) bool { return out[i].before(out[j]) })
	return out
}

// positionLocked counts items that would dequeue before item, plus one.
func (q *Queue) positionLocked(item Item) int {
	pos := 1
	for _, it := range q.items {
		if it.seq != item.seq && it.before(item) {
			pos++
		}
	}
	return pos
}

func (a Item) before(b Item) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.seq < b.seq
}

// itemHeap implements heap.Interface ordered by (priority desc, seq asc).
type itemHeap []Item

func (h itemHeap) Len() int           { return len(h) }
func (h itemHeap) Less(i, j int) bool { return h[i].before(h[j]) }
func (h itemHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *itemHeap) Push(x any)        { *h = append(*h, x.(Item)) }
func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	*h = old[:n-1]
	return it
}
