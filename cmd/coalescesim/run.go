package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sarchlab/lanecoalescer/coalescer"
	"github.com/sarchlab/lanecoalescer/coalescer/acceptancetests/laneagent"
	"github.com/sarchlab/lanecoalescer/mem"
	"github.com/sarchlab/lanecoalescer/mem/idealmemcontroller"
	"github.com/sarchlab/lanecoalescer/sim"
	"github.com/sarchlab/lanecoalescer/sim/directconnection"
	"github.com/sarchlab/lanecoalescer/tracing"
	"github.com/spf13/cobra"
)

// envFlags lists the flags whose defaults can come from the environment.
var envFlags = []string{
	"lanes", "queue-depth", "granularities", "tie-break", "inflight",
	"reqs-per-lane", "txn-id-width", "max-wait", "pass-through-queue",
	"port-buffer", "rsp-depth", "memories", "interleave", "latency",
	"pattern", "reads", "writes", "word-size", "max-address", "seed",
	"trace-db", "verbose", "dump-state", "host-report", "parallel-ids",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a coalescing simulation.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := readRunConfig(cmd)
		if err != nil {
			return err
		}

		return runSimulation(cfg)
	},
}

func init() {
	f := runCmd.Flags()

	f.Int("lanes", 4, "Number of lanes")
	f.Int("queue-depth", 8, "Requests buffered per lane")
	f.UintSlice("granularities", []uint{6}, "Merge block sizes as log2 bytes")
	f.String("tie-break", "coarsest", "Granularity tie-break, finest or coarsest")
	f.Int("inflight", 16, "Merged transactions waiting for memory")
	f.Int("reqs-per-lane", 1, "Requests one lane can add to a merge")
	f.Int("txn-id-width", 8, "Bits of a transaction ID")
	f.Int("max-wait", 0, "Cycles a lane head waits for partners")
	f.Bool("pass-through-queue", false, "Expose new requests in the same cycle")
	f.Int("port-buffer", 4, "Buffer size of the coalescer ports")
	f.Int("rsp-depth", 4, "Depth of each lane response queue port")
	f.Int("memories", 1, "Number of interleaved memory controllers")
	f.Uint64("interleave", 4096, "Interleaving size of the memories in bytes")
	f.Int("latency", 100, "Memory latency in cycles")
	f.String("pattern", "strided", "Lane address pattern, strided or random")
	f.Int("reads", 1000, "Reads issued per lane")
	f.Int("writes", 1000, "Writes issued per lane")
	f.Uint64("word-size", 4, "Bytes per lane access")
	f.Uint64("max-address", 1*mem.MB, "End of the address range")
	f.Int64("seed", 1, "Random seed")
	f.String("trace-db", "", "Record tasks into this SQLite database")
	f.Bool("verbose", false, "Log every event and memory-side message")
	f.String("dump-state", "", "Write the final coalescer state as JSON")
	f.Bool("host-report", false, "Report CPU and memory of this process")
	f.Bool("parallel-ids", false, "Generate globally unique xid message IDs")

	rootCmd.AddCommand(runCmd)
}

type runConfig struct {
	coalescer coalescer.Builder
	agent     laneagent.Builder

	numLanes    int
	memories    int
	interleave  uint64
	latency     int
	maxAddress  uint64
	traceDB     string
	verbose     bool
	dumpState   string
	hostReport  bool
	parallelIDs bool
}

func readRunConfig(cmd *cobra.Command) (runConfig, error) {
	f := cmd.Flags()
	cfg := runConfig{}

	cfg.numLanes, _ = f.GetInt("lanes")
	cfg.memories, _ = f.GetInt("memories")
	cfg.interleave, _ = f.GetUint64("interleave")
	cfg.latency, _ = f.GetInt("latency")
	cfg.maxAddress, _ = f.GetUint64("max-address")
	cfg.traceDB, _ = f.GetString("trace-db")
	cfg.verbose, _ = f.GetBool("verbose")
	cfg.dumpState, _ = f.GetString("dump-state")
	cfg.hostReport, _ = f.GetBool("host-report")
	cfg.parallelIDs, _ = f.GetBool("parallel-ids")

	if cfg.memories < 1 {
		return cfg, fmt.Errorf("need at least one memory, got %d", cfg.memories)
	}

	tieBreakName, _ := f.GetString("tie-break")

	tieBreak, err := coalescer.ParseTieBreak(tieBreakName)
	if err != nil {
		return cfg, err
	}

	patternName, _ := f.GetString("pattern")

	pattern, err := laneagent.ParsePattern(patternName)
	if err != nil {
		return cfg, err
	}

	granularities, _ := f.GetUintSlice("granularities")
	log2Sizes := make([]uint8, 0, len(granularities))

	for _, g := range granularities {
		if g > 255 {
			return cfg, fmt.Errorf("granularity %d is too large", g)
		}

		log2Sizes = append(log2Sizes, uint8(g))
	}

	queueDepth, _ := f.GetInt("queue-depth")
	inflight, _ := f.GetInt("inflight")
	reqsPerLane, _ := f.GetInt("reqs-per-lane")
	txnIDWidth, _ := f.GetInt("txn-id-width")
	maxWait, _ := f.GetInt("max-wait")
	passThroughQueue, _ := f.GetBool("pass-through-queue")
	portBuffer, _ := f.GetInt("port-buffer")
	rspDepth, _ := f.GetInt("rsp-depth")

	cfg.coalescer = coalescer.MakeBuilder().
		WithNumLanes(cfg.numLanes).
		WithQueueDepth(queueDepth).
		WithGranularities(log2Sizes...).
		WithTieBreak(tieBreak).
		WithInflightCapacity(inflight).
		WithMaxReqsPerLane(reqsPerLane).
		WithTxnIDWidth(txnIDWidth).
		WithMaxWaitCycles(maxWait).
		WithPassThroughQueue(passThroughQueue).
		WithPortBufferSize(portBuffer).
		WithRspPortDepth(rspDepth)

	reads, _ := f.GetInt("reads")
	writes, _ := f.GetInt("writes")
	wordSize, _ := f.GetUint64("word-size")
	seed, _ := f.GetInt64("seed")

	cfg.agent = laneagent.MakeBuilder().
		WithNumLanes(cfg.numLanes).
		WithWordSize(wordSize).
		WithMaxAddress(cfg.maxAddress).
		WithPattern(pattern).
		WithReadLeft(reads).
		WithWriteLeft(writes).
		WithSeed(seed)

	return cfg, nil
}

type platform struct {
	engine    *sim.SerialEngine
	coalescer *coalescer.Comp
	memories  []*idealmemcontroller.Comp
	agents    []*laneagent.Agent
}

func buildPlatform(cfg runConfig) (*platform, error) {
	engine := sim.NewSerialEngine()
	p := &platform{engine: engine}

	storage := mem.NewStorage(cfg.maxAddress)
	bottom := directconnection.MakeBuilder().
		WithEngine(engine).
		Build("BottomConn")

	var memPorts []sim.RemotePort

	for i := 0; i < cfg.memories; i++ {
		m := idealmemcontroller.MakeBuilder().
			WithEngine(engine).
			WithLatency(cfg.latency).
			WithStorage(storage).
			Build(sim.BuildNameWithIndex("", "Mem", i))
		bottom.PlugIn(m.GetPortByName("Top"))

		p.memories = append(p.memories, m)
		memPorts = append(memPorts, m.GetPortByName("Top").AsRemote())
	}

	b := cfg.coalescer.
		WithEngine(engine).
		WithAddressToPortMapper(
			mem.NewInterleavedAddressPortMapper(cfg.interleave, memPorts...))
	if err := b.Validate(); err != nil {
		return nil, err
	}

	p.coalescer = b.Build("Coalescer")
	bottom.PlugIn(p.coalescer.BottomPort())

	top := directconnection.MakeBuilder().
		WithEngine(engine).
		Build("TopConn")
	agentBuilder := cfg.agent.WithEngine(engine)

	for i := 0; i < cfg.numLanes; i++ {
		a := agentBuilder.Build(sim.BuildNameWithIndex("", "Agent", i), i)
		a.LowModule = p.coalescer.TopPort(i).AsRemote()
		top.PlugIn(a.GetPortByName("Lane"))
		top.PlugIn(p.coalescer.TopPort(i))

		p.agents = append(p.agents, a)
	}

	return p, nil
}

func runSimulation(cfg runConfig) error {
	if cfg.parallelIDs {
		sim.UseParallelIDGenerator()
	}

	p, err := buildPlatform(cfg)
	if err != nil {
		return err
	}

	if cfg.verbose {
		logger := log.New(os.Stderr, "", 0)
		p.engine.AcceptHook(sim.NewEventLogger(logger))
		p.coalescer.BottomPort().AcceptHook(
			sim.NewPortMsgLogger(logger, p.engine))
	}

	latency := tracing.NewAverageTimeTracer(p.engine,
		tracing.KindFilter("req_in"))
	counts := tracing.NewCountTracer(nil)
	tracing.CollectTrace(p.coalescer, latency)
	tracing.CollectTrace(p.coalescer, counts)

	if cfg.traceDB != "" {
		db := tracing.NewSQLiteTracer(p.engine, cfg.traceDB)
		db.Init()
		tracing.CollectTrace(p.coalescer, db)
		log.Printf("recording tasks into %s", db.Filename())
	}

	for _, a := range p.agents {
		a.TickLater()
	}

	if err := p.engine.Run(); err != nil {
		return err
	}

	p.engine.Finished()

	if err := checkAgents(p.agents); err != nil {
		return err
	}

	printReport(os.Stdout, p, latency, counts)

	if cfg.dumpState != "" {
		if err := dumpState(cfg.dumpState, p.coalescer); err != nil {
			return err
		}
	}

	if cfg.hostReport {
		return printHostReport(os.Stdout)
	}

	return nil
}

func checkAgents(agents []*laneagent.Agent) error {
	for _, a := range agents {
		if !a.Done() {
			return fmt.Errorf("%s did not finish: %d reads and %d writes "+
				"pending", a.Name(), len(a.PendingReads), len(a.PendingWrites))
		}

		if a.Mismatches > 0 {
			return fmt.Errorf("%s read %d wrong values", a.Name(), a.Mismatches)
		}
	}

	return nil
}
