package domain

import (
	"testing"
	"time"
)

func TestComputeCompletionMetrics(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	end := start.Add(30 * time.Minute)

	m := ComputeCompletionMetrics(start, end, 50, 80)
	if m.Duration != int64(30*time.Minute/time.Millisecond) {
		t.Fatalf("duration = %d", m.Duration)
	}
	if m.UPH != 100 {
		t.Fatalf("uph = %v, want 100", m.UPH)
	}
	if m.Efficiency != 125 {
		t.Fatalf("efficiency = %v, want 125", m.Efficiency)
	}
}

func TestComputeCompletionMetricsZeroInterval(t *testing.T) {
	at := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	m := ComputeCompletionMetrics(at, at, 50, 80)
	if m.Duration != 0 || m.UPH != 0 || m.Efficiency != 0 {
		t.Fatalf("zero interval should derive nothing, got %+v", m)
	}

	// An end before the start must not produce negative rates either.
	m = ComputeCompletionMetrics(at, at.Add(-time.Minute), 50, 80)
	if m.UPH != 0 || m.Efficiency != 0 {
		t.Fatalf("negative interval should derive nothing, got %+v", m)
	}
}

func TestComputeCompletionMetricsZeroQuota(t *testing.T) {
	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	m := ComputeCompletionMetrics(start, start.Add(time.Hour), 60, 0)
	if m.UPH != 60 {
		t.Fatalf("uph = %v, want 60", m.UPH)
	}
	if m.Efficiency != 0 {
		t.Fatalf("efficiency without a quota = %v, want 0", m.Efficiency)
	}
}

func TestClampPercent(t *testing.T) {
	cases := []struct{ in, want float64 }{
		{-5, 0},
		{0, 0},
		{42.5, 42.5},
		{100, 100},
		{180, 100},
	}
	for _, tc := range cases {
		if got := ClampPercent(tc.in); got != tc.want {
			t.Errorf("ClampPercent(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestBatchProgressOf(t *testing.T) {
	p := BatchProgressOf(Batch{ActualUnits: 250, ExpectedUnits: 1000})
	if p.Percentage != 25 {
		t.Fatalf("percentage = %v, want 25", p.Percentage)
	}

	p = BatchProgressOf(Batch{ActualUnits: 1500, ExpectedUnits: 1000})
	if p.Percentage != 100 {
		t.Fatalf("overproduction should clamp to 100, got %v", p.Percentage)
	}

	p = BatchProgressOf(Batch{ActualUnits: 10, ExpectedUnits: 0})
	if p.Percentage != 0 {
		t.Fatalf("zero expected should report 0, got %v", p.Percentage)
	}
	if p.Produced != 10 {
		t.Fatalf("produced = %d, want 10", p.Produced)
	}
}

func TestCompareSyncOrder(t *testing.T) {
	if got := CompareSyncOrder(1, "a", 2, "a"); got != -1 {
		t.Fatalf("lower lamport should order first, got %d", got)
	}
	if got := CompareSyncOrder(2, "a", 1, "z"); got != 1 {
		t.Fatalf("lamport dominates device ID, got %d", got)
	}
	if got := CompareSyncOrder(5, "device-a", 5, "device-b"); got != -1 {
		t.Fatalf("ties break on device ID, got %d", got)
	}
	if got := CompareSyncOrder(5, "same", 5, "same"); got != 0 {
		t.Fatalf("identical stamps should compare equal, got %d", got)
	}
}
