package coalescer

import (
	"log"
	"reflect"

	"github.com/sarchlab/lanecoalescer/coalescer/internal/reqqueue"
	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/tracing"
)

// ingest moves at most one request per lane from the top ports into the
// lane queues.
func (m *middleware) ingest() bool {
	madeProgress := false

	for _, l := range m.lanes {
		if !l.reqQueue.CanPush() {
			continue
		}

		msg := l.topPort.PeekIncoming()
		if msg == nil {
			continue
		}

		req, ok := msg.(mem.AccessReq)
		if !ok {
			log.Panicf("%s: cannot handle message of type %s",
				m.Name(), reflect.TypeOf(msg))
		}

		entry, err := reqqueue.NewEntry(req)
		if err != nil {
			log.Panicf("%s: %v", m.Name(), err)
		}

		l.reqQueue.Push(entry)
		l.topPort.RetrieveIncoming()

		tracing.StartTask(laneTaskID(m.Name(), l, req),
			req.Meta().ID+"_req_out", m.Comp,
			"req_in", reflect.TypeOf(req).String(), req)
		m.Stats.LaneReqs++

		madeProgress = true
	}

	return madeProgress
}
