// Package coalescer provides a component that merges memory requests from
// several lanes into fewer, larger memory transactions and splits the
// responses back to the lanes.
package coalescer

import (
	"github.com/sarchlab/lanecoalescer/coalescer/internal/inflight"
	"github.com/sarchlab/lanecoalescer/coalescer/internal/matching"
	"github.com/sarchlab/lanecoalescer/coalescer/internal/reqqueue"
	"github.com/sarchlab/lanecoalescer/coalescer/internal/rspqueue"
	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/sim"
)

// Stats counts the traffic that went through a coalescer.
type Stats struct {
	LaneReqs        uint64
	LaneRsps        uint64
	MergedTxns      uint64
	MergedReqs      uint64
	PassThroughReqs uint64
}

type lane struct {
	index    int
	topPort  sim.Port
	reqQueue *reqqueue.Queue
	rspQueue *rspqueue.Queue

	// waited counts the cycles the current head has been ready without
	// being merged.
	waited int
}

// passThroughRoute remembers where the response to a forwarded request
// goes. req is the lane request and out is the copy sent to memory.
type passThroughRoute struct {
	lane int
	req  mem.AccessReq
	out  mem.AccessReq
}

// Comp is a coalescer.
type Comp struct {
	*sim.TickingComponent
	sim.MiddlewareHolder

	AddressToPortMapper mem.AddressToPortMapper
	Stats               Stats

	lanes      []*lane
	bottomPort sim.Port

	matcher   matching.MultiMatcher
	table     *inflight.Table
	sequencer *inflight.Sequencer

	maxWaitCycles       int
	nextPassThroughLane int
	nextPassThroughID   int
	passThroughRoutes   map[string]passThroughRoute

	mw *middleware
}

// Tick updates the coalescer state.
func (c *Comp) Tick() bool {
	return c.MiddlewareHolder.Tick()
}

// NumLanes returns the number of lanes.
func (c *Comp) NumLanes() int {
	return len(c.lanes)
}

// TopPort returns the port that connects to a lane.
func (c *Comp) TopPort(lane int) sim.Port {
	return c.lanes[lane].topPort
}

// BottomPort returns the port that connects to memory.
func (c *Comp) BottomPort() sim.Port {
	return c.bottomPort
}

// NumInflight returns the number of merged transactions waiting for memory.
func (c *Comp) NumInflight() int {
	return c.table.Len()
}

// NumPassThrough returns the number of forwarded lane requests waiting for
// memory.
func (c *Comp) NumPassThrough() int {
	return len(c.passThroughRoutes)
}

// NumQueued returns the number of requests buffered in the lane queues.
func (c *Comp) NumQueued() int {
	n := 0
	for _, l := range c.lanes {
		n += l.reqQueue.Len()
	}

	return n
}
