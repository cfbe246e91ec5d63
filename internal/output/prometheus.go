package output

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/adred-codev/pubsubbench/internal/aggregator"
)

// PrometheusOutput exposes each AnalysisResult as a set of gauges,
// generalizing the teacher's ws_* metric family (ws/metrics.go) to
// pubsubbench_*. Unlike the counters the teacher registers for
// monotonically increasing totals, these are gauges: each tick
// reports that window's values, not a running total, matching
// AnalysisResult's per-second-window semantics.
type PrometheusOutput struct {
	registry *prometheus.Registry

	windowNs        prometheus.Gauge
	numSent         prometheus.Gauge
	numReceived     prometheus.Gauge
	numLost         prometheus.Gauge
	sumDataReceived prometheus.Gauge
	latencyCount    prometheus.Gauge
	latencyMeanNs   prometheus.Gauge
	latencyMinNs    prometheus.Gauge
	latencyMaxNs    prometheus.Gauge
	latencyStdDevNs prometheus.Gauge
	cpuUsagePercent prometheus.Gauge
	cpuCores        prometheus.Gauge
}

// NewPrometheus registers the harness's metric family on a fresh
// registry (not the global default, so multiple harness instances in
// one process don't collide) and returns it alongside the Output.
func NewPrometheus() (*PrometheusOutput, *prometheus.Registry) {
	reg := prometheus.NewRegistry()

	p := &PrometheusOutput{
		registry: reg,
		windowNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_window_ns", Help: "Wall-clock duration of the current reporting window, nanoseconds.",
		}),
		numSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_num_sent", Help: "Messages sent in the current reporting window.",
		}),
		numReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_num_received", Help: "Messages received in the current reporting window.",
		}),
		numLost: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_num_lost", Help: "Messages lost in the current reporting window.",
		}),
		sumDataReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_bytes_received", Help: "Payload bytes received in the current reporting window.",
		}),
		latencyCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_latency_count", Help: "Number of latency samples folded into the current reporting window.",
		}),
		latencyMeanNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_latency_mean_ns", Help: "Mean end-to-end latency in the current reporting window, nanoseconds.",
		}),
		latencyMinNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_latency_min_ns", Help: "Min end-to-end latency in the current reporting window, nanoseconds.",
		}),
		latencyMaxNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_latency_max_ns", Help: "Max end-to-end latency in the current reporting window, nanoseconds.",
		}),
		latencyStdDevNs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_latency_stddev_ns", Help: "Standard deviation of end-to-end latency in the current reporting window, nanoseconds.",
		}),
		cpuUsagePercent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_cpu_usage_percent", Help: "Process CPU utilization at the last SystemMeasured sample.",
		}),
		cpuCores: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pubsubbench_cpu_cores", Help: "Logical CPU cores available, at the last SystemMeasured sample.",
		}),
	}

	reg.MustRegister(
		p.windowNs, p.numSent, p.numReceived, p.numLost, p.sumDataReceived,
		p.latencyCount, p.latencyMeanNs, p.latencyMinNs, p.latencyMaxNs, p.latencyStdDevNs,
		p.cpuUsagePercent, p.cpuCores,
	)
	return p, reg
}

var _ Output = (*PrometheusOutput)(nil)

func (p *PrometheusOutput) Publish(r aggregator.AnalysisResult) error {
	p.windowNs.Set(float64(r.WindowElapsed.Nanoseconds()))
	p.numSent.Set(float64(r.NumSent))
	p.numReceived.Set(float64(r.NumReceived))
	p.numLost.Set(float64(r.NumLost))
	p.sumDataReceived.Set(float64(r.SumDataReceived))
	p.latencyCount.Set(float64(r.Latency.Count()))
	p.latencyMeanNs.Set(r.Latency.Mean())
	p.latencyMinNs.Set(latencyMinOrZero(r.Latency))
	p.latencyMaxNs.Set(latencyMaxOrZero(r.Latency))
	p.latencyStdDevNs.Set(r.Latency.StdDev())
	p.cpuUsagePercent.Set(r.CPU.UsagePercent)
	p.cpuCores.Set(float64(r.CPU.Cores))
	return nil
}
