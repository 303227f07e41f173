package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds motion statistics for a window of steps.
type WindowStats struct {
	Cycle       int     `csv:"cycle"`
	WindowStart int     `csv:"-"`
	WindowEnd   int     `csv:"window_end"`
	Time        float64 `csv:"time"`

	// Events during window
	Crossings   int `csv:"crossings"`
	Diagnostics int `csv:"diagnostics"`

	// Per-step displacement of every particle during the window
	StepMean float64 `csv:"step_mean"`
	StepStd  float64 `csv:"step_std"`
	StepP10  float64 `csv:"step_p10"`
	StepP50  float64 `csv:"step_p50"`
	StepP90  float64 `csv:"step_p90"`

	// Displacement from the cycle's initial configuration, at window end
	MSD            float64 `csv:"msd"`
	DiffusivityEst float64 `csv:"diffusivity_est"` // MSD / 4t
}

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDistribution calculates the mean, population standard deviation
// and percentiles of values.
func ComputeDistribution(values []float64) (mean, std, p10, p50, p90 float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}
	mean, std = stat.PopMeanStdDev(values, nil)

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	p10 = Percentile(sorted, 0.10)
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)

	return mean, std, p10, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("cycle", s.Cycle),
		slog.Int("window_start", s.WindowStart),
		slog.Int("window_end", s.WindowEnd),
		slog.Float64("time", s.Time),
		slog.Int("crossings", s.Crossings),
		slog.Int("diagnostics", s.Diagnostics),
		slog.Float64("step_mean", s.StepMean),
		slog.Float64("step_p50", s.StepP50),
		slog.Float64("step_p90", s.StepP90),
		slog.Float64("msd", s.MSD),
		slog.Float64("diffusivity_est", s.DiffusivityEst),
	)
}
