package telemetry

import "gonum.org/v1/gonum/spatial/r3"

// Collector accumulates per-step motion within windows of steps and
// produces WindowStats. Displacements are chord lengths in the
// embedding, so on curved meshes the MSD saturates at long times.
type Collector struct {
	window int

	cycle       int
	windowStart int
	origin      []r3.Vec

	// Current window
	steps       []float64
	crossings   int
	diagnostics int
}

// NewCollector creates a collector flushing every window steps.
// window <= 0 disables flushing.
func NewCollector(window int) *Collector {
	return &Collector{window: window}
}

// StartCycle resets the collector for a cycle that is at step with the
// given displacement origin. origin is copied.
func (c *Collector) StartCycle(cycle, step int, origin []r3.Vec) {
	c.cycle = cycle
	c.windowStart = step
	c.origin = append(c.origin[:0], origin...)
	c.steps = c.steps[:0]
	c.crossings = 0
	c.diagnostics = 0
}

// Origin returns the displacement origin of the current cycle.
func (c *Collector) Origin() []r3.Vec {
	return c.origin
}

// RecordStep records the displacement of every particle in one step.
func (c *Collector) RecordStep(displacements []float64, crossings int) {
	if c.window <= 0 {
		return
	}
	c.steps = append(c.steps, displacements...)
	c.crossings += crossings
}

// RecordDiagnostic counts one diagnostic.
func (c *Collector) RecordDiagnostic() {
	c.diagnostics++
}

// ShouldFlush returns true if a full window has passed at step.
func (c *Collector) ShouldFlush(step int) bool {
	return c.window > 0 && step-c.windowStart >= c.window
}

// Flush produces a WindowStats for the window ending at step and resets
// the window counters. positions are the current embedded positions in
// particle order; t is the elapsed time of the cycle.
func (c *Collector) Flush(step int, t float64, positions []r3.Vec) WindowStats {
	mean, std, p10, p50, p90 := ComputeDistribution(c.steps)

	var msd float64
	for i, p := range positions {
		d := r3.Sub(p, c.origin[i])
		msd += r3.Dot(d, d)
	}
	if len(positions) > 0 {
		msd /= float64(len(positions))
	}
	var dEst float64
	if t > 0 {
		dEst = msd / (4 * t)
	}

	stats := WindowStats{
		Cycle:       c.cycle,
		WindowStart: c.windowStart,
		WindowEnd:   step,
		Time:        t,

		Crossings:   c.crossings,
		Diagnostics: c.diagnostics,

		StepMean: mean,
		StepStd:  std,
		StepP10:  p10,
		StepP50:  p50,
		StepP90:  p90,

		MSD:            msd,
		DiffusivityEst: dEst,
	}

	// Reset for next window
	c.windowStart = step
	c.steps = c.steps[:0]
	c.crossings = 0
	c.diagnostics = 0

	return stats
}
