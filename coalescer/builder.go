package coalescer

import (
	"errors"
	"fmt"
	"log"

	"github.com/sarchlab/lanecoalescer/coalescer/internal/inflight"
	"github.com/sarchlab/lanecoalescer/coalescer/internal/matching"
	"github.com/sarchlab/lanecoalescer/coalescer/internal/reqqueue"
	"github.com/sarchlab/lanecoalescer/coalescer/internal/rspqueue"
	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/sim"
)

// ErrInvalidConfig is wrapped by every configuration error.
var ErrInvalidConfig = errors.New("invalid coalescer configuration")

const (
	maxLanes       = 64
	maxGranularity = 16
	maxTxnIDWidth  = 24
)

// Builder can build coalescers.
type Builder struct {
	engine              sim.Engine
	freq                sim.Freq
	numLanes            int
	queueDepth          int
	granularities       []uint8
	tieBreak            TieBreak
	inflightCapacity    int
	maxReqsPerLane      int
	minMerge            int
	txnIDWidth          int
	maxWaitCycles       int
	passThroughQueue    bool
	portBufferSize      int
	rspPortDepth        int
	lowModule           sim.RemotePort
	addressToPortMapper mem.AddressToPortMapper
}

// MakeBuilder creates a builder with default parameters.
func MakeBuilder() Builder {
	return Builder{
		freq:             1 * sim.GHz,
		numLanes:         4,
		queueDepth:       8,
		granularities:    []uint8{6},
		tieBreak:         PreferCoarsest,
		inflightCapacity: 16,
		maxReqsPerLane:   1,
		minMerge:         2,
		txnIDWidth:       8,
		portBufferSize:   4,
		rspPortDepth:     4,
	}
}

// WithEngine sets the engine that the coalescer uses.
func (b Builder) WithEngine(engine sim.Engine) Builder {
	b.engine = engine
	return b
}

// WithFreq sets the frequency of the coalescer.
func (b Builder) WithFreq(freq sim.Freq) Builder {
	b.freq = freq
	return b
}

// WithNumLanes sets the number of lanes.
func (b Builder) WithNumLanes(n int) Builder {
	b.numLanes = n
	return b
}

// WithQueueDepth sets the number of requests each lane can buffer.
func (b Builder) WithQueueDepth(depth int) Builder {
	b.queueDepth = depth
	return b
}

// WithGranularities sets the merge block sizes, given as log2 of bytes.
func (b Builder) WithGranularities(log2Sizes ...uint8) Builder {
	b.granularities = append([]uint8(nil), log2Sizes...)
	return b
}

// WithTieBreak sets which granularity wins when several merge the same
// number of requests. The coarsest one wins by default.
func (b Builder) WithTieBreak(t TieBreak) Builder {
	b.tieBreak = t
	return b
}

// WithInflightCapacity sets the number of merged transactions that can wait
// for memory at the same time.
func (b Builder) WithInflightCapacity(n int) Builder {
	b.inflightCapacity = n
	return b
}

// WithMaxReqsPerLane sets how many requests one lane can contribute to a
// single merged transaction.
func (b Builder) WithMaxReqsPerLane(n int) Builder {
	b.maxReqsPerLane = n
	return b
}

// WithMinMerge sets the smallest number of requests worth merging.
func (b Builder) WithMinMerge(n int) Builder {
	b.minMerge = n
	return b
}

// WithTxnIDWidth sets the number of bits of a transaction ID.
func (b Builder) WithTxnIDWidth(bits int) Builder {
	b.txnIDWidth = bits
	return b
}

// WithMaxWaitCycles sets how many cycles a lane head waits for partners
// before it is sent to memory alone.
func (b Builder) WithMaxWaitCycles(cycles int) Builder {
	b.maxWaitCycles = cycles
	return b
}

// WithPassThroughQueue makes a request pushed into an empty lane queue
// visible in the same cycle.
func (b Builder) WithPassThroughQueue(enabled bool) Builder {
	b.passThroughQueue = enabled
	return b
}

// WithPortBufferSize sets the buffer size of every port.
func (b Builder) WithPortBufferSize(n int) Builder {
	b.portBufferSize = n
	return b
}

// WithRspPortDepth sets the depth of each port of a lane response queue.
func (b Builder) WithRspPortDepth(n int) Builder {
	b.rspPortDepth = n
	return b
}

// WithLowModule sets the port that receives every downstream transaction.
func (b Builder) WithLowModule(port sim.RemotePort) Builder {
	b.lowModule = port
	return b
}

// WithAddressToPortMapper sets how downstream transactions find their
// memory module. It overrides WithLowModule.
func (b Builder) WithAddressToPortMapper(m mem.AddressToPortMapper) Builder {
	b.addressToPortMapper = m
	return b
}

// Validate reports the first configuration error.
func (b Builder) Validate() error {
	if b.engine == nil {
		return invalid("engine is not set")
	}

	if b.freq <= 0 {
		return invalid("frequency %v must be positive", b.freq)
	}

	if b.numLanes < 1 || b.numLanes > maxLanes {
		return invalid("number of lanes %d is out of [1, %d]",
			b.numLanes, maxLanes)
	}

	if b.queueDepth < 1 || b.queueDepth > reqqueue.MaxDepth {
		return invalid("queue depth %d is out of [1, %d]",
			b.queueDepth, reqqueue.MaxDepth)
	}

	if err := b.validateGranularities(); err != nil {
		return err
	}

	if b.maxReqsPerLane < 1 || b.maxReqsPerLane > b.queueDepth {
		return invalid("requests per lane %d is out of [1, %d]",
			b.maxReqsPerLane, b.queueDepth)
	}

	if b.minMerge < 2 {
		return invalid("minimum merge %d must be at least 2", b.minMerge)
	}

	if err := b.validateInflight(); err != nil {
		return err
	}

	if b.maxWaitCycles < 0 {
		return invalid("max wait cycles %d must not be negative",
			b.maxWaitCycles)
	}

	if b.portBufferSize < 1 || b.rspPortDepth < 1 {
		return invalid("port buffer size %d and response port depth %d "+
			"must be positive", b.portBufferSize, b.rspPortDepth)
	}

	return b.validateMapper()
}

func (b Builder) validateGranularities() error {
	if len(b.granularities) == 0 {
		return invalid("no granularity is given")
	}

	seen := make(map[uint8]bool)

	for _, g := range b.granularities {
		if g > maxGranularity {
			return invalid("granularity 2^%d is larger than 2^%d",
				g, maxGranularity)
		}

		if seen[g] {
			return invalid("granularity 2^%d is given twice", g)
		}

		seen[g] = true
	}

	return nil
}

func (b Builder) validateInflight() error {
	if b.txnIDWidth < 1 || b.txnIDWidth > maxTxnIDWidth {
		return invalid("transaction ID width %d is out of [1, %d]",
			b.txnIDWidth, maxTxnIDWidth)
	}

	if b.inflightCapacity < 1 || b.inflightCapacity > 1<<b.txnIDWidth {
		return invalid("inflight capacity %d is out of [1, %d]",
			b.inflightCapacity, 1<<b.txnIDWidth)
	}

	return nil
}

func (b Builder) validateMapper() error {
	interleaved, ok := b.addressToPortMapper.(*mem.InterleavedAddressPortMapper)
	if !ok {
		return nil
	}

	if len(interleaved.LowModules) == 0 {
		return invalid("interleaved mapper has no low module")
	}

	block := uint64(1) << b.maxGranularity()
	if interleaved.InterleavingSize < block ||
		interleaved.InterleavingSize%block != 0 {
		return invalid("interleaving size %d splits %d-byte blocks",
			interleaved.InterleavingSize, block)
	}

	return nil
}

func (b Builder) maxGranularity() uint8 {
	var g uint8

	for _, x := range b.granularities {
		if x > g {
			g = x
		}
	}

	return g
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Build creates a coalescer. It panics if the configuration is invalid.
func (b Builder) Build(name string) *Comp {
	if err := b.Validate(); err != nil {
		log.Panic(err)
	}

	c := &Comp{
		maxWaitCycles:     b.maxWaitCycles,
		passThroughRoutes: make(map[string]passThroughRoute),
	}
	c.TickingComponent = sim.NewTickingComponent(name, b.engine, b.freq, c)

	c.matcher = matching.NewMultiMatcher(
		b.granularities, b.maxReqsPerLane, b.minMerge, b.tieBreak)
	c.table = inflight.NewTable(b.inflightCapacity)
	c.sequencer = inflight.NewSequencer(b.inflightCapacity)

	c.AddressToPortMapper = b.addressToPortMapper
	if c.AddressToPortMapper == nil {
		c.AddressToPortMapper = &mem.SinglePortMapper{Port: b.lowModule}
	}

	b.createLanes(c)

	c.bottomPort = sim.NewPort(c, b.portBufferSize, b.portBufferSize,
		name+".Bottom")
	c.AddPort("Bottom", c.bottomPort)

	c.mw = &middleware{Comp: c}
	c.AddMiddleware(c.mw)

	return c
}

func (b Builder) createLanes(c *Comp) {
	name := c.Name()

	for i := 0; i < b.numLanes; i++ {
		laneName := sim.BuildNameWithIndex(name, "Lane", i)

		top := sim.NewPort(c, b.portBufferSize, b.portBufferSize,
			sim.BuildNameWithIndex(name, "Top", i))
		c.AddPort(fmt.Sprintf("Top[%d]", i), top)

		c.lanes = append(c.lanes, &lane{
			index:   i,
			topPort: top,
			reqQueue: reqqueue.New(laneName+".ReqQueue",
				b.queueDepth, b.passThroughQueue),
			rspQueue: rspqueue.New(laneName+".RspQueue",
				1+b.maxReqsPerLane, b.rspPortDepth),
		})
	}
}

// TieBreak selects among granularities that merge the same number of
// requests.
type TieBreak = matching.TieBreak

// Tie-break policies.
const (
	PreferCoarsest = matching.PreferCoarsest
	PreferFinest   = matching.PreferFinest
)

// ParseTieBreak converts "finest" or "coarsest" to a TieBreak.
func ParseTieBreak(s string) (TieBreak, error) {
	return matching.ParseTieBreak(s)
}
