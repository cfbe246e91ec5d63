// Package sysmetrics samples per-process CPU and memory usage for the
// SystemMeasured event, grounded on the teacher's
// internal/single/core.collectMetrics and internal/single/platform
// container-aware CPU reading.
package sysmetrics

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/adred-codev/pubsubbench/internal/event"
)

// Tracker samples the current process's CPU percentage and resident
// set size once per call to Sample. It is not safe for concurrent use;
// AnalyzeRunner's 1 Hz loop is the only caller.
type Tracker struct {
	proc  *process.Process
	cores int
}

// New constructs a Tracker bound to the current process. If the
// process handle cannot be obtained (sandboxed environments without
// /proc access), Sample degrades to returning zeroed CPU/memory
// figures rather than erroring — system metrics are best-effort, not
// required for the harness's correctness.
func New() (*Tracker, error) {
	cores := availableCores()
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &Tracker{cores: cores}, nil
	}
	return &Tracker{proc: proc, cores: cores}, nil
}

// Sample returns the process's current CPU usage percentage (of one
// core; may exceed 100 on multi-core machines) and current resident
// set size in KiB (stored in ResourceUsage.MaxRSSKB), packaged as the
// event payload types.
func (t *Tracker) Sample() (event.CPUInfo, event.ResourceUsage) {
	cpu := event.CPUInfo{Cores: t.cores}
	ru := event.ResourceUsage{}

	if t.proc == nil {
		return cpu, ru
	}

	if pct, err := t.proc.CPUPercent(); err == nil {
		cpu.UsagePercent = pct
	}
	if times, err := t.proc.Times(); err == nil {
		ru.UTimeNs = int64(times.User * 1e9)
		ru.STimeNs = int64(times.System * 1e9)
	}
	if mem, err := t.proc.MemoryInfo(); err == nil {
		ru.MaxRSSKB = int64(mem.RSS / 1024)
	}

	return cpu, ru
}

func availableCores() int {
	if n, ok := cgroupCoreQuota(); ok {
		return n
	}
	return runtime.NumCPU()
}
