package sim

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type namedEvent struct {
	EventBase
	label string
}

func newNamedEvent(t VTimeInSec, label string) *namedEvent {
	e := &namedEvent{label: label}
	e.EventBase = *NewEventBase(t, nil)

	return e
}

var _ = Describe("EventQueue", func() {
	var q EventQueue

	BeforeEach(func() {
		q = NewEventQueue()
	})

	It("should pop events in time order", func() {
		q.Push(newNamedEvent(3, "c"))
		q.Push(newNamedEvent(1, "a"))
		q.Push(newNamedEvent(2, "b"))

		Expect(q.Len()).To(Equal(3))
		Expect(q.Peek().(*namedEvent).label).To(Equal("a"))
		Expect(q.Pop().(*namedEvent).label).To(Equal("a"))
		Expect(q.Pop().(*namedEvent).label).To(Equal("b"))
		Expect(q.Pop().(*namedEvent).label).To(Equal("c"))
		Expect(q.Len()).To(Equal(0))
	})

	It("should keep insertion order among same-time events", func() {
		for _, l := range []string{"x", "y", "z"} {
			q.Push(newNamedEvent(5, l))
		}

		Expect(q.Pop().(*namedEvent).label).To(Equal("x"))
		Expect(q.Pop().(*namedEvent).label).To(Equal("y"))
		Expect(q.Pop().(*namedEvent).label).To(Equal("z"))
	})
})
