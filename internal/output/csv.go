package output

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"sync"

	"github.com/adred-codev/pubsubbench/internal/aggregator"
)

var csvHeader = []string{
	"elapsed_seconds", "window_ns", "num_sent", "num_received", "num_lost",
	"sum_data_received", "latency_count", "latency_mean_ns", "latency_min_ns",
	"latency_max_ns", "latency_stddev_ns", "cpu_usage_percent", "cpu_cores",
}

// CSVOutput appends one row per AnalysisResult to a CSV file
// (spec.md §6 outputs: "csv:<path>").
type CSVOutput struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer

	rowsToSkip  int
	rowsEmitted int
}

// NewCSV creates (or truncates) path and writes the header row.
func NewCSV(path string, rowsToSkip int) (*CSVOutput, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("output: create csv %s: %w", path, err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(csvHeader); err != nil {
		f.Close()
		return nil, fmt.Errorf("output: write csv header: %w", err)
	}
	w.Flush()
	return &CSVOutput{file: f, writer: w, rowsToSkip: rowsToSkip}, nil
}

var _ Output = (*CSVOutput)(nil)

func (c *CSVOutput) Publish(r aggregator.AnalysisResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.rowsEmitted++
	if c.rowsEmitted <= c.rowsToSkip {
		return nil
	}

	row := []string{
		strconv.FormatFloat(r.ExperimentElapsed.Seconds(), 'f', 3, 64),
		strconv.FormatInt(r.WindowElapsed.Nanoseconds(), 10),
		strconv.FormatUint(r.NumSent, 10),
		strconv.FormatUint(r.NumReceived, 10),
		strconv.FormatUint(r.NumLost, 10),
		strconv.FormatUint(r.SumDataReceived, 10),
		strconv.FormatUint(r.Latency.Count(), 10),
		strconv.FormatFloat(r.Latency.Mean(), 'f', 2, 64),
		strconv.FormatFloat(latencyMinOrZero(r.Latency), 'f', 2, 64),
		strconv.FormatFloat(latencyMaxOrZero(r.Latency), 'f', 2, 64),
		strconv.FormatFloat(r.Latency.StdDev(), 'f', 2, 64),
		strconv.FormatFloat(r.CPU.UsagePercent, 'f', 2, 64),
		strconv.Itoa(r.CPU.Cores),
	}
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("output: write csv row: %w", err)
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVOutput) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writer.Flush()
	return c.file.Close()
}
