package coalescer

import (
	"log"
	"reflect"

	"github.com/sarchlab/lanecoalescer/coalescer/internal/inflight"
	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/sim"
	"github.com/sarchlab/lanecoalescer/tracing"
)

// passThroughPort is the response queue port for forwarded requests. Slot k
// of a merged transaction uses port 1+k.
const passThroughPort = 0

// uncoalesce takes responses from memory and turns them into lane
// responses. At most one merged transaction is split per cycle.
func (m *middleware) uncoalesce() bool {
	madeProgress := false
	split := false

	for {
		msg := m.bottomPort.PeekIncoming()
		if msg == nil {
			break
		}

		rsp, ok := msg.(mem.AccessRsp)
		if !ok {
			log.Panicf("%s: cannot handle message of type %s",
				m.Name(), reflect.TypeOf(msg))
		}

		if route, found := m.passThroughRoutes[rsp.GetRspTo()]; found {
			if !m.returnPassThrough(route, rsp) {
				break
			}

			madeProgress = true

			continue
		}

		if split || !m.split(rsp) {
			break
		}

		split = true
		madeProgress = true
	}

	return madeProgress
}

func (m *middleware) returnPassThrough(
	route passThroughRoute,
	rsp mem.AccessRsp,
) bool {
	l := m.lanes[route.lane]
	if !l.rspQueue.CanPush(passThroughPort) {
		return false
	}

	m.bottomPort.RetrieveIncoming()

	var data []byte
	if r, ok := rsp.(*mem.DataReadyRsp); ok {
		data = r.Data
	}

	l.rspQueue.Push(passThroughPort,
		m.laneRsp(l, route.req, data, rsp.IsFailed()))
	delete(m.passThroughRoutes, route.out.Meta().ID)

	tracing.TraceReqFinalize(route.out, m.Comp)
	tracing.EndTask(passThroughTaskID(route.out), m.Comp)
	tracing.EndTask(laneTaskID(m.Name(), l, route.req), m.Comp)

	return true
}

// split distributes the response of a merged transaction to the lanes. It
// returns false and leaves the response in the port if a lane cannot take
// its part.
func (m *middleware) split(rsp mem.AccessRsp) bool {
	id, err := parseTxnReqID(m.Name(), rsp.GetRspTo())
	if err != nil {
		log.Panicf("%s: response to unknown request: %v", m.Name(), err)
	}

	if id < 0 || id >= m.table.Capacity() {
		log.Panicf("%s: transaction %d is out of range", m.Name(), id)
	}

	entry, found := m.table.Peek(id)
	if !found {
		log.Panicf("%s: transaction %d is not inflight", m.Name(), id)
	}

	if !m.rspQueuesHaveSpace(entry) {
		return false
	}

	entry, _ = m.table.Lookup(id)
	m.bottomPort.RetrieveIncoming()

	data := m.mergedData(entry, rsp)

	for laneIndex, slots := range entry.Slots {
		l := m.lanes[laneIndex]

		for k, s := range slots {
			if !s.Valid {
				continue
			}

			var chunk []byte
			if data != nil {
				chunk, err = SliceChunk(data, s.ByteOffset, s.Size())
				if err != nil {
					log.Panicf("%s: cannot slice response of %s: %v",
						m.Name(), s.SrcID, err)
				}
			}

			l.rspQueue.Push(1+k, m.laneRsp(l, s.Req, chunk, rsp.IsFailed()))
			tracing.EndTask(laneTaskID(m.Name(), l, s.Req), m.Comp)
		}
	}

	tracing.TraceReqFinalize(entry.Req, m.Comp)
	tracing.EndTask(coalesceTaskID(entry.Req), m.Comp)

	return true
}

func (m *middleware) rspQueuesHaveSpace(entry *inflight.Entry) bool {
	for laneIndex, slots := range entry.Slots {
		for k, s := range slots {
			if s.Valid && !m.lanes[laneIndex].rspQueue.CanPush(1+k) {
				return false
			}
		}
	}

	return true
}

// mergedData returns the payload of a merged read, or nil for a write. The
// response kind must match the transaction kind.
func (m *middleware) mergedData(
	entry *inflight.Entry,
	rsp mem.AccessRsp,
) []byte {
	switch entry.Req.(type) {
	case *mem.ReadReq:
		r, ok := rsp.(*mem.DataReadyRsp)
		if !ok {
			log.Panicf("%s: read %s answered with %s",
				m.Name(), entry.Req.Meta().ID, reflect.TypeOf(rsp))
		}

		return r.Data
	default:
		if _, ok := rsp.(*mem.WriteDoneRsp); !ok {
			log.Panicf("%s: write %s answered with %s",
				m.Name(), entry.Req.Meta().ID, reflect.TypeOf(rsp))
		}

		return nil
	}
}

// laneRsp builds the response to a lane request.
func (m *middleware) laneRsp(
	l *lane,
	req mem.AccessReq,
	data []byte,
	failed bool,
) sim.Msg {
	switch req.(type) {
	case *mem.ReadReq:
		return mem.DataReadyRspBuilder{}.
			WithSrc(l.topPort.AsRemote()).
			WithDst(req.Meta().Src).
			WithRspTo(req.Meta().ID).
			WithData(data).
			WithFailed(failed).
			Build()
	default:
		return mem.WriteDoneRspBuilder{}.
			WithSrc(l.topPort.AsRemote()).
			WithDst(req.Meta().Src).
			WithRspTo(req.Meta().ID).
			WithFailed(failed).
			Build()
	}
}
