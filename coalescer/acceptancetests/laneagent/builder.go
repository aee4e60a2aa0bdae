package laneagent

import (
	"math/rand"

	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/sim"
)

// Builder can build lane agents.
type Builder struct {
	engine     sim.Engine
	freq       sim.Freq
	numLanes   int
	wordSize   uint64
	maxAddress uint64
	pattern    Pattern
	readLeft   int
	writeLeft  int
	seed       int64
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:       1 * sim.GHz,
		numLanes:   4,
		wordSize:   4,
		maxAddress: 1 * mem.MB,
		readLeft:   1000,
		writeLeft:  1000,
		seed:       1,
	}
}

// WithEngine sets the engine that the agent uses.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the agent.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithNumLanes sets the number of lanes that share the address space.
func (b Builder) WithNumLanes(n int) Builder {
	b.numLanes = n
	return b
}

// WithWordSize sets the size of every access.
func (b Builder) WithWordSize(size uint64) Builder {
	b.wordSize = size
	return b
}

// WithMaxAddress sets the end of the address range to use.
func (b Builder) WithMaxAddress(addr uint64) Builder {
	b.maxAddress = addr
	return b
}

// WithPattern sets how addresses are picked.
func (b Builder) WithPattern(p Pattern) Builder {
	b.pattern = p
	return b
}

// WithReadLeft sets the number of reads to issue.
func (b Builder) WithReadLeft(n int) Builder {
	b.readLeft = n
	return b
}

// WithWriteLeft sets the number of writes to issue.
func (b Builder) WithWriteLeft(n int) Builder {
	b.writeLeft = n
	return b
}

// WithSeed sets the random seed. Every lane derives its own stream from it.
func (b Builder) WithSeed(seed int64) Builder {
	b.seed = seed
	return b
}

// Build creates the agent of a lane.
func (b Builder) Build(name string, lane int) *Agent {
	a := &Agent{
		Lane:          lane,
		NumLanes:      b.numLanes,
		WordSize:      b.wordSize,
		MaxAddress:    b.maxAddress,
		Pattern:       b.pattern,
		ReadLeft:      b.readLeft,
		WriteLeft:     b.writeLeft,
		KnownValues:   make(map[uint64][]byte),
		PendingReads:  make(map[string]*mem.ReadReq),
		PendingWrites: make(map[string]*mem.WriteReq),
		rng:           rand.New(rand.NewSource(b.seed + int64(lane))),
	}

	a.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, a)

	a.lanePort = sim.NewPort(a, 4, 4, name+".LanePort")
	a.AddPort("Lane", a.lanePort)

	return a
}
