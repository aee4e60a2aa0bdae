package coalescer

type middleware struct {
	*Comp
}

// Tick runs the stages back to front, so that every stage observes the
// state at the start of the cycle, and then commits the intents of the
// cycle.
func (m *middleware) Tick() bool {
	madeProgress := false

	madeProgress = m.respond() || madeProgress
	madeProgress = m.uncoalesce() || madeProgress
	madeProgress = m.ingest() || madeProgress
	madeProgress = m.coalesce() || madeProgress
	madeProgress = m.commit() || madeProgress

	return madeProgress
}

func (m *middleware) commit() bool {
	changed := false

	for _, l := range m.lanes {
		changed = l.reqQueue.Commit() || changed
	}

	m.table.Commit()

	return changed
}

func (m *middleware) respond() bool {
	madeProgress := false

	for _, l := range m.lanes {
		rsp := l.rspQueue.Peek()
		if rsp == nil {
			continue
		}

		if l.topPort.Send(rsp) != nil {
			continue
		}

		l.rspQueue.Pop()
		m.Stats.LaneRsps++
		madeProgress = true
	}

	return madeProgress
}
