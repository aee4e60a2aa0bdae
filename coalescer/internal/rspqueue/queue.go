// Package rspqueue holds the responses of one lane until they can be sent
// back to the lane.
package rspqueue

import (
	"log"

	"github.com/sarchlab/lanecoalescer/sim"
)

type item struct {
	seq uint64
	msg sim.Msg
}

// Queue has one bounded FIFO per port and returns responses in the order
// they were pushed across all ports.
type Queue struct {
	name      string
	portDepth int
	ports     [][]item
	nextSeq   uint64
}

// New creates a queue with numPorts ports of portDepth entries each.
func New(name string, numPorts, portDepth int) *Queue {
	if numPorts <= 0 || portDepth <= 0 {
		log.Panicf("%s: invalid response queue shape %d x %d",
			name, numPorts, portDepth)
	}

	return &Queue{
		name:      name,
		portDepth: portDepth,
		ports:     make([][]item, numPorts),
	}
}

// Name returns the name of the queue.
func (q *Queue) Name() string {
	return q.name
}

// NumPorts returns the number of ports.
func (q *Queue) NumPorts() int {
	return len(q.ports)
}

// Len returns the number of queued responses.
func (q *Queue) Len() int {
	n := 0
	for _, p := range q.ports {
		n += len(p)
	}

	return n
}

// CanPush tells if a port has space.
func (q *Queue) CanPush(port int) bool {
	q.portMustExist(port)
	return len(q.ports[port]) < q.portDepth
}

// Push appends a response to a port.
func (q *Queue) Push(port int, msg sim.Msg) {
	if !q.CanPush(port) {
		log.Panicf("%s: port %d is full", q.name, port)
	}

	q.ports[port] = append(q.ports[port], item{seq: q.nextSeq, msg: msg})
	q.nextSeq++
}

// Peek returns the oldest response, or nil if the queue is empty.
func (q *Queue) Peek() sim.Msg {
	port := q.oldestPort()
	if port < 0 {
		return nil
	}

	return q.ports[port][0].msg
}

// Pop removes and returns the oldest response, or nil if the queue is
// empty.
func (q *Queue) Pop() sim.Msg {
	port := q.oldestPort()
	if port < 0 {
		return nil
	}

	msg := q.ports[port][0].msg
	q.ports[port][0] = item{}
	q.ports[port] = q.ports[port][1:]

	return msg
}

func (q *Queue) oldestPort() int {
	oldest := -1

	for i, p := range q.ports {
		if len(p) == 0 {
			continue
		}

		if oldest < 0 || p[0].seq < q.ports[oldest][0].seq {
			oldest = i
		}
	}

	return oldest
}

func (q *Queue) portMustExist(port int) {
	if port < 0 || port >= len(q.ports) {
		log.Panicf("%s: port %d out of range [0, %d)",
			q.name, port, len(q.ports))
	}
}
