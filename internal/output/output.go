// Package output implements the Output trait and its console/CSV/JSON
// (spec.md §6 "outputs") and Prometheus (SPEC_FULL.md §3) backends,
// each receiving one AnalysisResult per reporter tick.
package output

import (
	"github.com/adred-codev/pubsubbench/internal/aggregator"
	"github.com/adred-codev/pubsubbench/internal/stats"
)

// Output receives one AnalysisResult per reporter tick (spec.md "Output
// (trait) + impls"). Implementations must not block the aggregator's
// reporter goroutine for long; slow sinks should buffer internally.
type Output = aggregator.Output

// latencyMinOrZero reports 0 instead of stats.Tracker's +Inf sentinel
// when a window folded in no latency sample at all (spec.md §6's
// latency_min has no natural zero value otherwise).
func latencyMinOrZero(t *stats.Tracker) float64 {
	if t.Count() == 0 {
		return 0
	}
	return t.Min()
}

// latencyMaxOrZero reports 0 instead of stats.Tracker's -Inf sentinel
// when a window folded in no latency sample at all. Without this,
// encoding/json.Marshal rejects the +/-Inf float outright (json.go's
// Publish would return an error for every empty window), and
// Prometheus gauges would read -Inf for a perfectly normal tick.
func latencyMaxOrZero(t *stats.Tracker) float64 {
	if t.Count() == 0 {
		return 0
	}
	return t.Max()
}
