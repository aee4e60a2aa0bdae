package coalescer

import (
	"log"

	"github.com/sarchlab/lanecoalescer/coalescer/internal/inflight"
	"github.com/sarchlab/lanecoalescer/coalescer/internal/matching"
	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/sim"
	"github.com/sarchlab/lanecoalescer/tracing"
)

// coalesce issues at most one merged transaction, forwards the lane heads
// that were not merged and have waited long enough, and ages the rest.
func (m *middleware) coalesce() bool {
	consumed := make([]bool, len(m.lanes))
	madeProgress := false

	madeProgress = m.merge(consumed) || madeProgress
	madeProgress = m.passThrough(consumed) || madeProgress
	madeProgress = m.age(consumed) || madeProgress

	return madeProgress
}

func (m *middleware) snapshot() []matching.LaneWindow {
	windows := make([]matching.LaneWindow, len(m.lanes))

	for i, l := range m.lanes {
		slots := l.reqQueue.Window()
		window := make(matching.LaneWindow, len(slots))

		for j, s := range slots {
			window[j] = matching.Request{
				Valid:    s.Valid,
				Write:    s.Write,
				Address:  s.Address,
				SizeLog2: s.SizeLog2,
			}

			if w, ok := s.Req.(*mem.WriteReq); ok {
				window[j].Mask = w.DirtyMask
			}
		}

		windows[i] = window
	}

	return windows
}

func (m *middleware) merge(consumed []bool) bool {
	if m.table.Occupied(m.sequencer.Peek()) {
		return false
	}

	if !m.bottomPort.CanSend() {
		return false
	}

	windows := m.snapshot()

	d := m.matcher.Decide(windows)
	if !d.Found {
		return false
	}

	entry := m.buildEntry(d)

	if m.bottomPort.Send(entry.Req) != nil {
		log.Panicf("%s: cannot send after CanSend", m.Name())
	}

	m.table.Insert(entry)
	m.sequencer.Next()

	for i, l := range m.lanes {
		if d.Taken[i] == 0 {
			continue
		}

		l.reqQueue.Invalidate(d.InvalidationMask(i))
		consumed[i] = true
	}

	m.traceMerge(entry)
	m.Stats.MergedTxns++
	m.Stats.MergedReqs += uint64(d.NumReqs)

	return true
}

func (m *middleware) buildEntry(d matching.Decision) *inflight.Entry {
	entry := &inflight.Entry{
		TxnID: m.sequencer.Peek(),
		Slots: make([][]inflight.Slot, len(m.lanes)),
	}

	for i, l := range m.lanes {
		window := l.reqQueue.Window()

		for j := 0; j < d.Taken[i]; j++ {
			e := window[j].Entry
			entry.Slots[i] = append(entry.Slots[i], inflight.Slot{
				Valid:      true,
				SrcID:      e.Req.Meta().ID,
				ByteOffset: e.Address - d.Base,
				SizeLog2:   e.SizeLog2,
				Req:        e.Req,
			})
		}
	}

	blockSize := uint64(1) << d.Granularity
	dst := m.AddressToPortMapper.Find(d.Base)

	var req mem.AccessReq
	if d.Write {
		data, mask := m.packWrites(entry, blockSize)
		req = mem.WriteReqBuilder{}.
			WithSrc(m.bottomPort.AsRemote()).
			WithDst(dst).
			WithAddress(d.Base).
			WithData(data).
			WithDirtyMask(mask).
			Build()
	} else {
		req = mem.ReadReqBuilder{}.
			WithSrc(m.bottomPort.AsRemote()).
			WithDst(dst).
			WithAddress(d.Base).
			WithByteSize(blockSize).
			Build()
	}

	req.Meta().ID = txnReqID(m.Name(), entry.TxnID)
	entry.Req = req

	return entry
}

func (m *middleware) packWrites(
	entry *inflight.Entry,
	blockSize uint64,
) ([]byte, []bool) {
	data := make([]byte, blockSize)
	mask := make([]bool, blockSize)

	for _, slots := range entry.Slots {
		for _, s := range slots {
			w := s.Req.(*mem.WriteReq)

			if err := PackChunk(data, s.ByteOffset, w.Data); err != nil {
				log.Panicf("%s: cannot pack write %s: %v",
					m.Name(), w.ID, err)
			}

			for i := range w.Data {
				if w.IsDirty(i) {
					mask[s.ByteOffset+uint64(i)] = true
				}
			}
		}
	}

	return data, mask
}

func (m *middleware) traceMerge(entry *inflight.Entry) {
	taskID := coalesceTaskID(entry.Req)

	tracing.StartTask(taskID, "", m.Comp, "coalesce",
		reqKind(entry.Req), entry)

	for i, slots := range entry.Slots {
		for _, s := range slots {
			laneTask := laneTaskID(m.Name(), m.lanes[i], s.Req)
			tracing.AddTaskStep(laneTask, m.Comp, "coalesced")
		}
	}

	tracing.TraceReqInitiate(entry.Req, m.Comp, taskID)
}

func coalesceTaskID(req sim.Msg) string {
	return req.Meta().ID + "_coalesce"
}

func passThroughTaskID(req sim.Msg) string {
	return req.Meta().ID + "_pass_through"
}

func reqKind(req mem.AccessReq) string {
	if _, ok := req.(*mem.WriteReq); ok {
		return "write"
	}

	return "read"
}

// passThrough forwards unmerged lane heads to memory under their own IDs.
// Lanes are visited round-robin.
func (m *middleware) passThrough(consumed []bool) bool {
	madeProgress := false
	n := len(m.lanes)
	start := m.nextPassThroughLane

	for k := 0; k < n; k++ {
		i := (start + k) % n
		l := m.lanes[i]

		if consumed[i] || l.waited < m.maxWaitCycles {
			continue
		}

		e, valid := l.reqQueue.Head()
		if !valid {
			continue
		}

		if !m.bottomPort.CanSend() {
			break
		}

		m.forward(l, e.Req)
		l.reqQueue.Pop()
		consumed[i] = true
		m.nextPassThroughLane = (i + 1) % n
		madeProgress = true
	}

	return madeProgress
}

func (m *middleware) forward(l *lane, req mem.AccessReq) {
	out := m.downstreamCopy(req)
	out.Meta().ID = passReqID(m.Name(), m.nextPassThroughID)
	m.nextPassThroughID++

	if m.bottomPort.Send(out) != nil {
		log.Panicf("%s: cannot send after CanSend", m.Name())
	}

	m.passThroughRoutes[out.Meta().ID] = passThroughRoute{
		lane: l.index,
		req:  req,
		out:  out,
	}

	taskID := passThroughTaskID(out)
	tracing.StartTask(taskID, laneTaskID(m.Name(), l, req), m.Comp,
		"pass_through", reqKind(req), req)
	tracing.TraceReqInitiate(out, m.Comp, taskID)

	m.Stats.PassThroughReqs++
}

// downstreamCopy readdresses a lane request to memory. The caller assigns
// the downstream ID.
func (m *middleware) downstreamCopy(req mem.AccessReq) mem.AccessReq {
	switch r := req.(type) {
	case *mem.ReadReq:
		c := *r
		c.Src = m.bottomPort.AsRemote()
		c.Dst = m.AddressToPortMapper.Find(r.Address)

		return &c
	case *mem.WriteReq:
		c := *r
		c.Src = m.bottomPort.AsRemote()
		c.Dst = m.AddressToPortMapper.Find(r.Address)

		return &c
	default:
		log.Panicf("%s: cannot forward request of type %T", m.Name(), req)
	}

	return nil
}

// age counts the cycles that ready heads spend waiting for partners.
func (m *middleware) age(consumed []bool) bool {
	madeProgress := false

	for i, l := range m.lanes {
		_, valid := l.reqQueue.Head()
		if consumed[i] || !valid {
			l.waited = 0
			continue
		}

		if l.waited < m.maxWaitCycles {
			l.waited++
			madeProgress = true
		}
	}

	return madeProgress
}
