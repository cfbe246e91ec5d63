package sysmetrics

import "testing"

func TestQuotaToCores(t *testing.T) {
	cases := []struct {
		quota, period int64
		want          int
	}{
		{100000, 100000, 1},
		{150000, 100000, 2}, // 1.5 cores rounds up
		{400000, 100000, 4},
		{0, 100000, 0},
		{100000, 0, 0},
	}
	for _, c := range cases {
		if got := quotaToCores(c.quota, c.period); got != c.want {
			t.Errorf("quotaToCores(%d,%d) = %d, want %d", c.quota, c.period, got, c.want)
		}
	}
}

func TestNewTrackerSampleDoesNotPanic(t *testing.T) {
	tr, err := New()
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	cpu, ru := tr.Sample()
	if cpu.Cores <= 0 {
		t.Fatalf("expected positive core count, got %d", cpu.Cores)
	}
	_ = ru
}
