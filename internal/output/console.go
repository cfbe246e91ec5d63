package output

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/adred-codev/pubsubbench/internal/aggregator"
)

// ConsoleOutput prints one tabular line per AnalysisResult, grounded
// on the teacher's Config.Print()-style human-readable stdout
// formatting (ws/config.go).
type ConsoleOutput struct {
	mu          sync.Mutex
	w           io.Writer
	rowsToSkip  int
	rowsEmitted int
	headerShown bool
}

// NewConsole returns a ConsoleOutput writing to os.Stdout, skipping
// the first rowsToSkip results (spec.md §6 rows_to_ignore).
func NewConsole(rowsToSkip int) *ConsoleOutput {
	return &ConsoleOutput{w: os.Stdout, rowsToSkip: rowsToSkip}
}

var _ Output = (*ConsoleOutput)(nil)

func (c *ConsoleOutput) Publish(r aggregator.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rowsEmitted++
	if c.rowsEmitted <= c.rowsToSkip {
		return nil
	}

	if !c.headerShown {
		fmt.Fprintf(c.w, "%10s %10s %10s %10s %10s %12s %10s %10s %10s %10s %10s %8s %6s\n",
			"elapsed_s", "window_ns", "sent", "received", "lost", "bytes_recv",
			"lat_n", "lat_mean_ns", "lat_min_ns", "lat_max_ns", "lat_stddev_ns", "cpu_pct", "cores")
		c.headerShown = true
	}

	fmt.Fprintf(c.w, "%10.1f %10d %10d %10d %10d %12d %10d %10.0f %10.0f %10.0f %10.0f %8.1f %6d\n",
		r.ExperimentElapsed.Seconds(),
		r.WindowElapsed.Nanoseconds(),
		r.NumSent,
		r.NumReceived,
		r.NumLost,
		r.SumDataReceived,
		r.Latency.Count(),
		r.Latency.Mean(),
		latencyMinOrZero(r.Latency),
		latencyMaxOrZero(r.Latency),
		r.Latency.StdDev(),
		r.CPU.UsagePercent,
		r.CPU.Cores,
	)
	return nil
}
