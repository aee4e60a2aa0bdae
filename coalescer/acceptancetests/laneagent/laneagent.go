// Package laneagent provides a lane traffic generator that checks every
// response it receives.
package laneagent

import (
	"bytes"
	"fmt"
	"log"
	"math/rand"
	"reflect"

	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/sim"
)

// Pattern selects how an agent picks addresses.
type Pattern int

// Address patterns.
const (
	// Strided makes lane i of request n access word n*NumLanes+i, so that
	// the lanes of one round fall into the same blocks.
	Strided Pattern = iota

	// Random picks words owned by the lane at random.
	Random
)

// ParsePattern converts "strided" or "random" to a Pattern.
func ParsePattern(s string) (Pattern, error) {
	switch s {
	case "strided":
		return Strided, nil
	case "random":
		return Random, nil
	default:
		return 0, fmt.Errorf("unknown address pattern %q", s)
	}
}

// An Agent issues the requests of one lane. A lane only touches the words w
// where w % NumLanes == Lane, so it always knows the value it should read
// back.
type Agent struct {
	*sim.TickingComponent

	LowModule  sim.RemotePort
	Lane       int
	NumLanes   int
	WordSize   uint64
	MaxAddress uint64
	Pattern    Pattern

	ReadLeft  int
	WriteLeft int

	KnownValues   map[uint64][]byte
	PendingReads  map[string]*mem.ReadReq
	PendingWrites map[string]*mem.WriteReq

	Completed  int
	Failed     int
	Mismatches int

	rng      *rand.Rand
	round    uint64
	lanePort sim.Port
}

// Tick updates the states of the agent and issues new read and write
// requests.
func (a *Agent) Tick() bool {
	madeProgress := false

	madeProgress = a.processRsp() || madeProgress

	if a.ReadLeft == 0 && a.WriteLeft == 0 {
		return madeProgress
	}

	if a.shouldRead() {
		madeProgress = a.doRead() || madeProgress
	} else {
		madeProgress = a.doWrite() || madeProgress
	}

	return madeProgress
}

// Done tells if every request is sent and answered.
func (a *Agent) Done() bool {
	return a.ReadLeft == 0 && a.WriteLeft == 0 &&
		len(a.PendingReads) == 0 && len(a.PendingWrites) == 0
}

func (a *Agent) processRsp() bool {
	msg := a.lanePort.RetrieveIncoming()
	if msg == nil {
		return false
	}

	a.Completed++

	switch msg := msg.(type) {
	case *mem.WriteDoneRsp:
		if _, found := a.PendingWrites[msg.RespondTo]; !found {
			log.Panicf("%s: unexpected write response to %s",
				a.Name(), msg.RespondTo)
		}

		delete(a.PendingWrites, msg.RespondTo)
		a.countFailure(msg.Failed)
	case *mem.DataReadyRsp:
		req, found := a.PendingReads[msg.RespondTo]
		if !found {
			log.Panicf("%s: unexpected read response to %s",
				a.Name(), msg.RespondTo)
		}

		delete(a.PendingReads, msg.RespondTo)
		a.countFailure(msg.Failed)
		a.checkReadResult(req, msg)
	default:
		log.Panicf("cannot process message of type %s", reflect.TypeOf(msg))
	}

	return true
}

func (a *Agent) countFailure(failed bool) {
	if failed {
		a.Failed++
	}
}

func (a *Agent) checkReadResult(req *mem.ReadReq, rsp *mem.DataReadyRsp) {
	if rsp.Failed {
		return
	}

	want, written := a.KnownValues[req.Address]
	if !written {
		want = make([]byte, req.AccessByteSize)
	}

	if !bytes.Equal(want, rsp.Data) {
		a.Mismatches++
		log.Printf("%s: read 0x%X got %v, want %v",
			a.Name(), req.Address, rsp.Data, want)
	}
}

func (a *Agent) shouldRead() bool {
	if a.ReadLeft == 0 {
		return false
	}

	if a.WriteLeft == 0 {
		return true
	}

	return a.rng.Float64() > 0.5
}

func (a *Agent) nextAddress() uint64 {
	numWords := a.MaxAddress / a.WordSize
	laneWords := numWords / uint64(a.NumLanes)

	var n uint64
	if a.Pattern == Strided {
		n = a.round % laneWords
		a.round++
	} else {
		n = a.rng.Uint64() % laneWords
	}

	word := n*uint64(a.NumLanes) + uint64(a.Lane)

	return word * a.WordSize
}

func (a *Agent) isAddressPending(addr uint64) bool {
	for _, r := range a.PendingReads {
		if r.Address == addr {
			return true
		}
	}

	for _, w := range a.PendingWrites {
		if w.Address == addr {
			return true
		}
	}

	return false
}

func (a *Agent) doRead() bool {
	address := a.nextAddress()
	if a.isAddressPending(address) {
		return false
	}

	req := mem.ReadReqBuilder{}.
		WithSrc(a.lanePort.AsRemote()).
		WithDst(a.LowModule).
		WithAddress(address).
		WithByteSize(a.WordSize).
		Build()

	if a.lanePort.Send(req) != nil {
		return false
	}

	a.PendingReads[req.ID] = req
	a.ReadLeft--

	return true
}

func (a *Agent) doWrite() bool {
	address := a.nextAddress()
	if a.isAddressPending(address) {
		return false
	}

	data := make([]byte, a.WordSize)
	a.rng.Read(data)

	req := mem.WriteReqBuilder{}.
		WithSrc(a.lanePort.AsRemote()).
		WithDst(a.LowModule).
		WithAddress(address).
		WithData(data).
		Build()

	if a.lanePort.Send(req) != nil {
		return false
	}

	a.PendingWrites[req.ID] = req
	a.KnownValues[address] = data
	a.WriteLeft--

	return true
}
