package output

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/adred-codev/pubsubbench/internal/aggregator"
)

// jsonRow is the serialized shape of one AnalysisResult; stats.Tracker
// is flattened to the fields a consumer actually needs rather than
// exposing internal Welford accumulator state.
type jsonRow struct {
	ElapsedSeconds  float64 `json:"elapsed_seconds"`
	WindowNs        int64   `json:"window_ns"`
	NumSent         uint64  `json:"num_sent"`
	NumReceived     uint64  `json:"num_received"`
	NumLost         uint64  `json:"num_lost"`
	SumDataReceived uint64  `json:"sum_data_received"`
	LatencyCount    uint64  `json:"latency_count"`
	LatencyMeanNs   float64 `json:"latency_mean_ns"`
	LatencyMinNs    float64 `json:"latency_min_ns"`
	LatencyMaxNs    float64 `json:"latency_max_ns"`
	LatencyStdDevNs float64 `json:"latency_stddev_ns"`
	CPUUsagePercent float64 `json:"cpu_usage_percent"`
	CPUCores        int     `json:"cpu_cores"`
}

// JSONOutput appends one JSON object per line to a file (spec.md §6
// outputs: "json:<path>").
type JSONOutput struct {
	mu          sync.Mutex
	file        *os.File
	enc         *json.Encoder
	rowsToSkip  int
	rowsEmitted int
}

// NewJSON creates (or truncates) path for newline-delimited JSON
// output.
func NewJSON(path string, rowsToSkip int) (*JSONOutput, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("output: create json %s: %w", path, err)
	}
	return &JSONOutput{file: f, enc: json.NewEncoder(f), rowsToSkip: rowsToSkip}, nil
}

var _ Output = (*JSONOutput)(nil)

func (j *JSONOutput) Publish(r aggregator.AnalysisResult) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.rowsEmitted++
	if j.rowsEmitted <= j.rowsToSkip {
		return nil
	}

	row := jsonRow{
		ElapsedSeconds:  r.ExperimentElapsed.Seconds(),
		WindowNs:        r.WindowElapsed.Nanoseconds(),
		NumSent:         r.NumSent,
		NumReceived:     r.NumReceived,
		NumLost:         r.NumLost,
		SumDataReceived: r.SumDataReceived,
		LatencyCount:    r.Latency.Count(),
		LatencyMeanNs:   r.Latency.Mean(),
		LatencyMinNs:    latencyMinOrZero(r.Latency),
		LatencyMaxNs:    latencyMaxOrZero(r.Latency),
		LatencyStdDevNs: r.Latency.StdDev(),
		CPUUsagePercent: r.CPU.UsagePercent,
		CPUCores:        r.CPU.Cores,
	}
	if err := j.enc.Encode(row); err != nil {
		return fmt.Errorf("output: encode json row: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (j *JSONOutput) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
