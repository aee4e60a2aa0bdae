package tracing

import (
	"sort"
	"sync"
)

// CountTracer counts started and completed tasks per kind.
type CountTracer struct {
	filter TaskFilter
	lock   sync.Mutex

	inflight  map[string]string
	started   map[string]uint64
	completed map[string]uint64
}

// NewCountTracer creates a new CountTracer.
func NewCountTracer(filter TaskFilter) *CountTracer {
	return &CountTracer{
		filter:    filter,
		inflight:  make(map[string]string),
		started:   make(map[string]uint64),
		completed: make(map[string]uint64),
	}
}

// Kinds returns the task kinds seen so far, sorted.
func (t *CountTracer) Kinds() []string {
	t.lock.Lock()
	defer t.lock.Unlock()

	kinds := make([]string, 0, len(t.started))
	for k := range t.started {
		kinds = append(kinds, k)
	}

	sort.Strings(kinds)

	return kinds
}

// Started returns the number of started tasks of a kind.
func (t *CountTracer) Started(kind string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.started[kind]
}

// Completed returns the number of completed tasks of a kind.
func (t *CountTracer) Completed(kind string) uint64 {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.completed[kind]
}

// StartTask counts the task start.
func (t *CountTracer) StartTask(task Task) {
	if t.filter != nil && !t.filter(task) {
		return
	}

	t.lock.Lock()
	t.inflight[task.ID] = task.Kind
	t.started[task.Kind]++
	t.lock.Unlock()
}

// StepTask does nothing.
func (t *CountTracer) StepTask(_ Task) {}

// EndTask counts the task completion.
func (t *CountTracer) EndTask(task Task) {
	t.lock.Lock()
	defer t.lock.Unlock()

	kind, ok := t.inflight[task.ID]
	if !ok {
		return
	}

	t.completed[kind]++
	delete(t.inflight, task.ID)
}
