// Package inflight tracks merged transactions that wait for downstream
// responses.
package inflight

import (
	"log"

	"github.com/sarchlab/lanecoalescer/mem"
)

// Slot records one lane request folded into a merged transaction.
type Slot struct {
	Valid      bool
	SrcID      string
	ByteOffset uint64
	SizeLog2   uint8
	Req        mem.AccessReq
}

// Size returns the byte size of the slot request.
func (s Slot) Size() uint64 {
	return 1 << s.SizeLog2
}

// Entry is a merged transaction. Slots is indexed by lane, then by the
// position of the request in the lane's contribution.
type Entry struct {
	TxnID int
	Req   mem.AccessReq
	Slots [][]Slot
}

// NumValidSlots counts the lane requests folded into the entry.
func (e *Entry) NumValidSlots() int {
	n := 0

	for _, lane := range e.Slots {
		for _, s := range lane {
			if s.Valid {
				n++
			}
		}
	}

	return n
}

// Table holds at most one entry per transaction ID. Changes take effect at
// Commit.
type Table struct {
	entries []*Entry

	pendingInsert *Entry
	lookedUp      int
	hasLookup     bool
}

// NewTable creates a table with IDs in [0, capacity).
func NewTable(capacity int) *Table {
	if capacity <= 0 {
		log.Panicf("inflight table capacity must be positive, got %d",
			capacity)
	}

	return &Table{
		entries: make([]*Entry, capacity),
	}
}

// Capacity returns the number of transaction IDs.
func (t *Table) Capacity() int {
	return len(t.entries)
}

// Len returns the number of committed entries.
func (t *Table) Len() int {
	n := 0

	for _, e := range t.entries {
		if e != nil {
			n++
		}
	}

	return n
}

// Full tells if every ID is taken.
func (t *Table) Full() bool {
	return t.Len() == len(t.entries)
}

// Occupied tells if an ID is taken by a committed entry or by an insert
// pending this tick.
func (t *Table) Occupied(id int) bool {
	t.idMustBeInRange(id)

	if t.pendingInsert != nil && t.pendingInsert.TxnID == id {
		return true
	}

	return t.entries[id] != nil
}

// Insert schedules an entry under its TxnID.
func (t *Table) Insert(e *Entry) {
	id := e.TxnID
	t.idMustBeInRange(id)

	if t.pendingInsert != nil {
		log.Panicf("inflight table: second insert in one tick (id %d)", id)
	}

	if t.entries[id] != nil {
		log.Panicf("inflight table: id %d is occupied", id)
	}

	if t.hasLookup && t.lookedUp == id {
		log.Panicf("inflight table: id %d inserted and looked up in one tick",
			id)
	}

	t.pendingInsert = e
}

// Peek returns the committed entry of an ID without consuming it.
func (t *Table) Peek(id int) (*Entry, bool) {
	t.idMustBeInRange(id)

	e := t.entries[id]

	return e, e != nil
}

// Lookup returns the entry of an ID and schedules its removal. A consumed
// or absent ID reports false.
func (t *Table) Lookup(id int) (*Entry, bool) {
	t.idMustBeInRange(id)

	if t.hasLookup {
		log.Panicf("inflight table: second lookup in one tick (id %d)", id)
	}

	if t.pendingInsert != nil && t.pendingInsert.TxnID == id {
		log.Panicf("inflight table: id %d inserted and looked up in one tick",
			id)
	}

	e := t.entries[id]
	if e == nil {
		return nil, false
	}

	t.hasLookup = true
	t.lookedUp = id

	return e, true
}

// Commit applies the removal and the insert of the tick.
func (t *Table) Commit() {
	if t.hasLookup {
		t.entries[t.lookedUp] = nil
		t.hasLookup = false
	}

	if t.pendingInsert != nil {
		t.entries[t.pendingInsert.TxnID] = t.pendingInsert
		t.pendingInsert = nil
	}
}

func (t *Table) idMustBeInRange(id int) {
	if id < 0 || id >= len(t.entries) {
		log.Panicf("inflight table: id %d out of range [0, %d)",
			id, len(t.entries))
	}
}

// Sequencer hands out transaction IDs in order, wrapping at the table
// capacity.
type Sequencer struct {
	next     int
	capacity int
}

// NewSequencer creates a sequencer for IDs in [0, capacity).
func NewSequencer(capacity int) *Sequencer {
	return &Sequencer{capacity: capacity}
}

// Peek returns the next ID without taking it.
func (s *Sequencer) Peek() int {
	return s.next
}

// Next takes the next ID.
func (s *Sequencer) Next() int {
	id := s.next

	s.next++
	if s.next == s.capacity {
		s.next = 0
	}

	return id
}
