// Package allocguard gives DataRunner's steady-state hot path a way to
// detect that it has started allocating again after warmup — the Go
// stand-in for the native platform's malloc-interposition hook
// (spec.md §6, reinterpreted: Go exposes no allocation hook, so this
// samples runtime.MemStats instead).
package allocguard

import "runtime"

// Guard tracks heap growth across a steady-state loop. Arm it once
// warmup iterations have passed; each subsequent Check call reports
// whether the loop body allocated since the last Check.
type Guard struct {
	armed    bool
	lastHeap uint64
}

// New returns a disarmed Guard. Call Arm once the caller's warmup
// period (spec.md: the first loop iteration, which always allocates
// for JIT/lazy-init reasons on the native platform and is generalized
// here to "first iteration") has elapsed.
func New() *Guard { return &Guard{} }

// Arm records the cumulative bytes allocated so far
// (runtime.MemStats.TotalAlloc) as the steady-state baseline and
// enables Check.
func (g *Guard) Arm() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	g.armed = true
	g.lastHeap = m.TotalAlloc
}

// Check returns the bytes allocated since the last Arm/Check call, and
// whether the guard is armed. An unarmed Guard always reports (0,
// false) so callers can skip the warmup iteration without a branch.
func (g *Guard) Check() (grown uint64, armed bool) {
	if !g.armed {
		return 0, false
	}
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	grown = m.TotalAlloc - g.lastHeap
	g.lastHeap = m.TotalAlloc
	return grown, true
}
