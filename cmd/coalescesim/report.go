package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/sarchlab/lanecoalescer/coalescer"
	"github.com/sarchlab/lanecoalescer/tracing"
	"github.com/shirou/gopsutil/process"
	"github.com/syifan/goseth"
)

func printReport(
	w io.Writer,
	p *platform,
	latency *tracing.AverageTimeTracer,
	counts *tracing.CountTracer,
) {
	s := p.coalescer.Stats

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "simulated time\t%.9f s\n", float64(p.engine.CurrentTime()))
	fmt.Fprintf(tw, "lane requests\t%d\n", s.LaneReqs)
	fmt.Fprintf(tw, "lane responses\t%d\n", s.LaneRsps)
	fmt.Fprintf(tw, "merged transactions\t%d\n", s.MergedTxns)
	fmt.Fprintf(tw, "merged requests\t%d\n", s.MergedReqs)
	fmt.Fprintf(tw, "pass-through requests\t%d\n", s.PassThroughReqs)

	if s.MergedTxns > 0 {
		fmt.Fprintf(tw, "requests per merge\t%.2f\n",
			float64(s.MergedReqs)/float64(s.MergedTxns))
	}

	if downstream := s.MergedTxns + s.PassThroughReqs; downstream > 0 {
		fmt.Fprintf(tw, "downstream reduction\t%.2fx\n",
			float64(s.LaneReqs)/float64(downstream))
	}

	fmt.Fprintf(tw, "average lane latency\t%.3f ns\n",
		float64(latency.AverageTime())*1e9)

	for _, kind := range counts.Kinds() {
		fmt.Fprintf(tw, "%s tasks\t%d started, %d completed\n",
			kind, counts.Started(kind), counts.Completed(kind))
	}

	tw.Flush()
}

// dumpState writes the exported state of the coalescer into a JSON file.
func dumpState(path string, c *coalescer.Comp) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	serializer := goseth.NewSerializer()
	serializer.SetRoot(c)
	serializer.SetMaxDepth(1)

	return serializer.Serialize(f)
}

func printHostReport(w io.Writer) error {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	cpuPercent, err := proc.CPUPercent()
	if err != nil {
		return err
	}

	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "host cpu\t%.1f%%\n", cpuPercent)
	fmt.Fprintf(w, "host rss\t%d bytes\n", memInfo.RSS)

	return nil
}
