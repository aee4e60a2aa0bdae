// Package reqqueue implements the per-lane request window. The window is a
// ring buffer whose slots carry a used bit and a valid bit. Invalidated
// entries stay used, as holes, until the next commit after they become
// visible, so that a head read during a tick is never withdrawn by a
// decision made in the same tick.
package reqqueue

import (
	"log"
	"math/bits"
)

// MaxDepth is the largest supported queue depth.
const MaxDepth = 64

// Slot is one position of the queue window.
type Slot struct {
	Entry
	Valid bool
}

// Queue is a bounded request window of one lane.
type Queue struct {
	name        string
	depth       int
	passThrough bool

	slots []Entry
	head  int
	used  uint64
	valid uint64

	popPending bool
	invalidate uint64
	pushes     []Entry
}

// New creates a queue. With passThrough set, an entry pushed into an empty
// queue is visible at the head in the same tick.
func New(name string, depth int, passThrough bool) *Queue {
	if depth < 1 || depth > MaxDepth {
		log.Panicf("queue %s: depth %d out of range [1, %d]",
			name, depth, MaxDepth)
	}

	return &Queue{
		name:        name,
		depth:       depth,
		passThrough: passThrough,
		slots:       make([]Entry, depth),
	}
}

// Name returns the name of the queue.
func (q *Queue) Name() string {
	return q.name
}

// Depth returns the capacity of the queue.
func (q *Queue) Depth() int {
	return q.depth
}

// Len returns the number of used slots, holes included.
func (q *Queue) Len() int {
	return bits.OnesCount64(q.used)
}

// NumValid returns the number of live entries.
func (q *Queue) NumValid() int {
	return bits.OnesCount64(q.valid)
}

func (q *Queue) phys(logical int) int {
	return (q.head + logical) % q.depth
}

func (q *Queue) isUsed(logical int) bool {
	return q.used&(1<<uint(q.phys(logical))) != 0
}

func (q *Queue) isValid(logical int) bool {
	return q.valid&(1<<uint(q.phys(logical))) != 0
}

func (q *Queue) set(logical int, e Entry, valid bool) {
	p := q.phys(logical)
	q.slots[p] = e
	q.used |= 1 << uint(p)

	if valid {
		q.valid |= 1 << uint(p)
	} else {
		q.valid &^= 1 << uint(p)
	}
}

func (q *Queue) clear(logical int) {
	p := q.phys(logical)
	q.slots[p] = Entry{}
	q.used &^= 1 << uint(p)
	q.valid &^= 1 << uint(p)
}

// CanPush tells if another entry can be pushed in this tick.
func (q *Queue) CanPush() bool {
	return q.Len()+len(q.pushes) < q.depth
}

// Push appends an entry at the tail. The entry becomes visible at the next
// commit, or immediately in pass-through mode when the queue is empty.
func (q *Queue) Push(e Entry) {
	if !q.CanPush() {
		log.Panicf("queue %s is full", q.name)
	}

	if q.passThrough && q.used == 0 && len(q.pushes) == 0 {
		q.set(0, e, true)
		return
	}

	q.pushes = append(q.pushes, e)
}

// Head returns the entry at the logical head and whether it is valid.
func (q *Queue) Head() (Entry, bool) {
	if !q.isUsed(0) {
		return Entry{}, false
	}

	return q.slots[q.head], q.isValid(0)
}

// Window returns every used slot in logical order.
func (q *Queue) Window() []Slot {
	n := q.Len()
	window := make([]Slot, n)

	for i := 0; i < n; i++ {
		window[i] = Slot{Entry: q.slots[q.phys(i)], Valid: q.isValid(i)}
	}

	return window
}

// Pop consumes the valid head. The entry leaves the queue at commit.
func (q *Queue) Pop() Entry {
	e, valid := q.Head()
	if !valid {
		log.Panicf("queue %s: popping an invalid head", q.name)
	}

	if q.popPending {
		log.Panicf("queue %s: popping twice in one tick", q.name)
	}

	q.popPending = true

	return e
}

// Invalidate marks window positions, given as a bitmask over logical
// positions, as consumed elsewhere. The entries turn into holes at commit.
func (q *Queue) Invalidate(mask uint64) {
	q.invalidate |= mask
}

// Commit applies the pop, the invalidations, and the pushes of this tick.
// It returns true if the queue state changed.
func (q *Queue) Commit() bool {
	q.intentsMustBeConsistent()

	changed := q.compact()

	for _, e := range q.pushes {
		q.set(q.Len(), e, true)
		changed = true
	}

	q.pushes = q.pushes[:0]
	q.popPending = false
	q.invalidate = 0

	return changed
}

func (q *Queue) intentsMustBeConsistent() {
	if q.popPending && q.invalidate&1 != 0 {
		log.Panicf("queue %s: head is both popped and invalidated", q.name)
	}

	for i := 0; i < MaxDepth; i++ {
		if q.invalidate&(1<<uint(i)) == 0 {
			continue
		}

		if i >= q.depth || !q.isUsed(i) || !q.isValid(i) {
			log.Panicf("queue %s: invalidating position %d, "+
				"which is not valid", q.name, i)
		}
	}
}

// compact drops the popped head and the holes that were already visible.
// Leading drops advance the head; later holes are closed by shifting the
// entries behind them toward the head. Newly invalidated entries stay as
// holes.
func (q *Queue) compact() bool {
	n := q.Len()
	lead := 0

	for lead < n && ((lead == 0 && q.popPending) || !q.isValid(lead)) {
		q.clear(lead)
		lead++
	}

	q.head = q.phys(lead)
	n -= lead
	invalidate := q.invalidate >> uint(lead)
	changed := lead > 0

	w := 0

	for i := 0; i < n; i++ {
		if !q.isValid(i) {
			changed = true
			continue
		}

		valid := invalidate&(1<<uint(i)) == 0
		if !valid {
			changed = true
		}

		if w != i || !valid {
			q.set(w, q.slots[q.phys(i)], valid)
		}

		w++
	}

	for i := w; i < n; i++ {
		q.clear(i)
	}

	return changed
}
