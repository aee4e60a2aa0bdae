package sim

import (
	"container/heap"
	"sync"
)

// EventQueue are a queue of event ordered by the time of events.
type EventQueue interface {
	Push(evt Event)
	Pop() Event
	Len() int
	Peek() Event
}

// EventQueueImpl provides a thread safe event queue.
type EventQueueImpl struct {
	sync.Mutex
	events eventHeap
}

// NewEventQueue creates and returns a newly created EventQueue.
func NewEventQueue() *EventQueueImpl {
	q := new(EventQueueImpl)
	q.events = eventHeap{entries: make([]heapEntry, 0)}
	heap.Init(&q.events)

	return q
}

// Push adds an event to the event queue.
func (q *EventQueueImpl) Push(evt Event) {
	q.Lock()
	q.events.seq++
	heap.Push(&q.events, heapEntry{evt: evt, seq: q.events.seq})
	q.Unlock()
}

// Pop returns the next earliest event.
func (q *EventQueueImpl) Pop() Event {
	q.Lock()
	e := heap.Pop(&q.events).(heapEntry)
	q.Unlock()

	return e.evt
}

// Len returns the number of event in the queue.
func (q *EventQueueImpl) Len() int {
	q.Lock()
	l := q.events.Len()
	q.Unlock()

	return l
}

// Peek returns the event in front of the queue without removing it from the
// queue.
func (q *EventQueueImpl) Peek() Event {
	q.Lock()
	evt := q.events.entries[0].evt
	q.Unlock()

	return evt
}

// Same-time events pop in the order they were pushed.
type heapEntry struct {
	evt Event
	seq uint64
}

type eventHeap struct {
	entries []heapEntry
	seq     uint64
}

func (h eventHeap) Len() int {
	return len(h.entries)
}

func (h eventHeap) Less(i, j int) bool {
	ti, tj := h.entries[i].evt.Time(), h.entries[j].evt.Time()
	if ti != tj {
		return ti < tj
	}

	return h.entries[i].seq < h.entries[j].seq
}

func (h eventHeap) Swap(i, j int) {
	h.entries[i], h.entries[j] = h.entries[j], h.entries[i]
}

func (h *eventHeap) Push(x interface{}) {
	h.entries = append(h.entries, x.(heapEntry))
}

func (h *eventHeap) Pop() interface{} {
	old := h.entries
	n := len(old)
	entry := old[n-1]
	h.entries = old[0 : n-1]

	return entry
}
