package domain

import (
	"math"
	"time"
)

// CompletionMetrics holds the derived fields of a completion.
type CompletionMetrics struct {
	Duration   int64   // milliseconds
	UPH        float64 // units per hour
	Efficiency float64 // percentage vs quota, rounded to the nearest integer
}

// ComputeCompletionMetrics derives duration, UPH, and efficiency from a
// completion's interval, quantity, and the owning task's quota. A
// non-positive interval yields zero UPH, and a non-positive quota yields
// zero efficiency, so the derivation never divides by zero.
func ComputeCompletionMetrics(start, end time.Time, quantity int, quota float64) CompletionMetrics {
	m := CompletionMetrics{Duration: end.Sub(start).Milliseconds()}
	hours := float64(m.Duration) / float64(time.Hour.Milliseconds())
	if hours > 0 {
		m.UPH = float64(quantity) / hours
	}
	if quota > 0 {
		m.Efficiency = math.Round(m.UPH / quota * 100)
	}
	return m
}

// ClampPercent clamps a percentage into [0, 100].
func ClampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// Progress summarises how far a batch has advanced toward its target.
type Progress struct {
	Produced   int     `json:"produced"`
	Expected   int     `json:"expected"`
	Percentage float64 `json:"percentage"`
}

// BatchProgressOf computes clamped progress for a batch. A zero expected
// count reports zero percent rather than dividing by zero.
func BatchProgressOf(b Batch) Progress {
	p := Progress{Produced: b.ActualUnits, Expected: b.ExpectedUnits}
	if b.ExpectedUnits > 0 {
		p.Percentage = ClampPercent(float64(b.ActualUnits) / float64(b.ExpectedUnits) * 100)
	}
	return p
}
