package output

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adred-codev/pubsubbench/internal/aggregator"
	"github.com/adred-codev/pubsubbench/internal/event"
	"github.com/adred-codev/pubsubbench/internal/stats"
)

func sampleResult() aggregator.AnalysisResult {
	lat := stats.New()
	lat.Add(100)
	lat.Add(200)
	return aggregator.AnalysisResult{
		ExperimentElapsed: 2 * time.Second,
		WindowElapsed:     time.Second,
		NumSent:           10,
		NumReceived:       9,
		NumLost:           1,
		SumDataReceived:   9 * 64,
		Latency:           lat,
		CPU:               event.CPUInfo{Cores: 4, UsagePercent: 12.5},
	}
}

func TestConsoleOutputSkipsConfiguredRows(t *testing.T) {
	var buf bytes.Buffer
	c := &ConsoleOutput{w: &buf, rowsToSkip: 1}

	if err := c.Publish(sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected first row to be skipped, got output: %q", buf.String())
	}

	if err := c.Publish(sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected second row to be printed")
	}
	if !strings.Contains(buf.String(), "elapsed_s") {
		t.Fatalf("expected header row, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "cores") {
		t.Fatalf("expected cpu_cores column in header, got %q", buf.String())
	}
}

func TestCSVOutputWritesHeaderAndRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	c, err := NewCSV(path, 0)
	if err != nil {
		t.Fatalf("NewCSV: %v", err)
	}
	if err := c.Publish(sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 data row, got %d lines: %q", len(lines), string(data))
	}
	if !strings.HasPrefix(lines[0], "elapsed_seconds,") {
		t.Fatalf("expected CSV header row, got %q", lines[0])
	}
	for _, want := range []string{"window_ns", "latency_count", "latency_min_ns", "latency_stddev_ns", "cpu_cores"} {
		if !strings.Contains(lines[0], want) {
			t.Fatalf("expected CSV header to contain %q, got %q", want, lines[0])
		}
	}
}

func TestJSONOutputEncodesOneObjectPerLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	j, err := NewJSON(path, 0)
	if err != nil {
		t.Fatalf("NewJSON: %v", err)
	}
	if err := j.Publish(sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var row jsonRow
	if err := json.Unmarshal(data, &row); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if row.NumSent != 10 || row.NumLost != 1 {
		t.Fatalf("unexpected decoded row: %+v", row)
	}
	if row.WindowNs != time.Second.Nanoseconds() {
		t.Fatalf("expected window_ns=%d, got %d", time.Second.Nanoseconds(), row.WindowNs)
	}
	if row.LatencyCount != 2 {
		t.Fatalf("expected latency_count=2, got %d", row.LatencyCount)
	}
	if row.LatencyMinNs != 100 {
		t.Fatalf("expected latency_min_ns=100, got %v", row.LatencyMinNs)
	}
	if row.LatencyStdDevNs <= 0 {
		t.Fatalf("expected positive latency_stddev_ns, got %v", row.LatencyStdDevNs)
	}
	if row.CPUCores != 4 {
		t.Fatalf("expected cpu_cores=4, got %d", row.CPUCores)
	}
}

// TestJSONOutputHandlesEmptyWindow covers a window with zero latency
// samples (e.g. the first tick of a run, or a tick where every
// subscriber is idle): stats.Tracker.Min/Max read +/-Inf in that state,
// and encoding/json.Marshal rejects a +/-Inf float outright.
func TestJSONOutputHandlesEmptyWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	j, err := NewJSON(path, 0)
	if err != nil {
		t.Fatalf("NewJSON: %v", err)
	}

	empty := sampleResult()
	empty.Latency = stats.New()

	if err := j.Publish(empty); err != nil {
		t.Fatalf("Publish of an empty-latency window must not error, got: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var row jsonRow
	if err := json.Unmarshal(data, &row); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if row.LatencyMinNs != 0 || row.LatencyMaxNs != 0 {
		t.Fatalf("expected latency_min_ns/latency_max_ns to read 0 for an empty window, got min=%v max=%v",
			row.LatencyMinNs, row.LatencyMaxNs)
	}
}

func TestPrometheusOutputSetsGauges(t *testing.T) {
	p, reg := NewPrometheus()
	if err := p.Publish(sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, f := range families {
		found[f.GetName()] = true
	}
	for _, want := range []string{
		"pubsubbench_window_ns", "pubsubbench_num_sent", "pubsubbench_num_received", "pubsubbench_num_lost",
		"pubsubbench_bytes_received", "pubsubbench_latency_count", "pubsubbench_latency_mean_ns",
		"pubsubbench_latency_min_ns", "pubsubbench_latency_max_ns", "pubsubbench_latency_stddev_ns",
		"pubsubbench_cpu_usage_percent", "pubsubbench_cpu_cores",
	} {
		if !found[want] {
			t.Errorf("expected metric %s to be registered", want)
		}
	}
}
