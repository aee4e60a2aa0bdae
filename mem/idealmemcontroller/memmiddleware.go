package idealmemcontroller

import (
	"log"
	"reflect"

	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/sim"
	"github.com/sarchlab/lanecoalescer/tracing"
)

type memMiddleware struct {
	*Comp
}

func (m *memMiddleware) Tick() bool {
	madeProgress := false

	madeProgress = m.takeNewReqs() || madeProgress
	madeProgress = m.handleInflightMemReqs() || madeProgress

	return madeProgress
}

func (m *memMiddleware) takeNewReqs() (madeProgress bool) {
	for i := 0; i < m.width; i++ {
		msg := m.topPort.RetrieveIncoming()
		if msg == nil {
			break
		}

		m.inflightBuffer = append(m.inflightBuffer, msg)
		madeProgress = true
	}

	return madeProgress
}

func (m *memMiddleware) handleInflightMemReqs() bool {
	madeProgress := false

	for i := 0; i < m.width; i++ {
		if len(m.inflightBuffer) == 0 {
			break
		}

		msg := m.inflightBuffer[0]
		m.inflightBuffer = m.inflightBuffer[1:]

		tracing.TraceReqReceive(msg, m.Comp)

		switch msg := msg.(type) {
		case *mem.ReadReq:
			m.scheduleRespond(newReadRespondEvent(m.respondTime(), m.Comp, msg))
		case *mem.WriteReq:
			m.scheduleRespond(newWriteRespondEvent(m.respondTime(), m.Comp, msg))
		default:
			log.Panicf("cannot handle request of type %s", reflect.TypeOf(msg))
		}

		madeProgress = true
	}

	return madeProgress
}

func (m *memMiddleware) respondTime() sim.VTimeInSec {
	return m.Freq.NCyclesLater(m.Latency, m.CurrentTime())
}

func (m *memMiddleware) scheduleRespond(e sim.Event) {
	m.Engine.Schedule(e)
}

func (m *memMiddleware) handleReadRespondEvent(e *readRespondEvent) error {
	req := e.req

	data, err := m.Storage.Read(req.Address, req.AccessByteSize)
	failed := err != nil

	if failed {
		data = make([]byte, req.AccessByteSize)
	}

	rsp := mem.DataReadyRspBuilder{}.
		WithSrc(m.topPort.AsRemote()).
		WithDst(req.Src).
		WithRspTo(req.ID).
		WithData(data).
		WithFailed(failed).
		Build()

	if m.topPort.Send(rsp) != nil {
		retry := newReadRespondEvent(m.Freq.NextTick(e.Time()), m.Comp, req)
		m.Engine.Schedule(retry)

		return nil
	}

	tracing.TraceReqComplete(req, m.Comp)
	m.TickLater()

	return nil
}

func (m *memMiddleware) handleWriteRespondEvent(e *writeRespondEvent) error {
	req := e.req

	if !m.topPort.CanSend() {
		retry := newWriteRespondEvent(m.Freq.NextTick(e.Time()), m.Comp, req)
		m.Engine.Schedule(retry)

		return nil
	}

	err := m.Storage.Write(req.Address, req.Data, req.DirtyMask)

	rsp := mem.WriteDoneRspBuilder{}.
		WithSrc(m.topPort.AsRemote()).
		WithDst(req.Src).
		WithRspTo(req.ID).
		WithFailed(err != nil).
		Build()

	if m.topPort.Send(rsp) != nil {
		log.Panicf("%s cannot send after CanSend", m.Name())
	}

	tracing.TraceReqComplete(req, m.Comp)
	m.TickLater()

	return nil
}
