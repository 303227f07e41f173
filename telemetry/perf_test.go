package telemetry

import (
	"log/slog"
	"testing"
	"time"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseForces)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(PhaseTransport)
		time.Sleep(200 * time.Microsecond)
		pc.EndStep()
	}

	stats := pc.Stats()

	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration")
	}
	if _, ok := stats.PhaseAvg[PhaseForces]; !ok {
		t.Error("expected forces phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseTransport]; !ok {
		t.Error("expected transport phase to be tracked")
	}
	if _, ok := stats.PhaseAvg[PhaseOutput]; ok {
		t.Error("output phase was never started")
	}
}

func TestPerfCollector_RollingWindow(t *testing.T) {
	pc := NewPerfCollector(5)

	for i := 0; i < 10; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseVelocity)
		time.Sleep(10 * time.Microsecond)
		pc.EndStep()
	}

	if pc.sampleCount != 5 {
		t.Errorf("sampleCount = %d, want 5", pc.sampleCount)
	}

	stats := pc.Stats()
	if stats.AvgStepDuration <= 0 {
		t.Error("expected positive average step duration after window filled")
	}
	if stats.StepsPerSecond <= 0 {
		t.Error("expected positive steps per second")
	}
	if stats.MinStepDuration > stats.AvgStepDuration || stats.AvgStepDuration > stats.MaxStepDuration {
		t.Errorf("min/avg/max out of order: %v %v %v",
			stats.MinStepDuration, stats.AvgStepDuration, stats.MaxStepDuration)
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	for i := 0; i < 5; i++ {
		pc.StartStep()
		pc.StartPhase(PhaseOutput)
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase(PhaseForces)
		time.Sleep(2 * time.Millisecond)
		pc.EndStep()
	}

	stats := pc.Stats()
	outPct := stats.PhasePct[PhaseOutput]
	forcesPct := stats.PhasePct[PhaseForces]

	if forcesPct <= outPct {
		t.Errorf("expected forces phase (%v%%) > output phase (%v%%)", forcesPct, outPct)
	}
	if total := outPct + forcesPct; total > 100.5 {
		t.Errorf("phase percentages sum to %v%%", total)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()

	if stats.AvgStepDuration != 0 {
		t.Error("expected zero average for empty collector")
	}
	if stats.PhaseAvg == nil || stats.PhasePct == nil {
		t.Error("expected initialized maps")
	}
}

func TestPerfStats_ToCSV(t *testing.T) {
	s := PerfStats{
		AvgStepDuration: 1500 * time.Microsecond,
		StepsPerSecond:  666.6,
		PhasePct:        map[string]float64{PhaseForces: 80, PhaseTransport: 15},
	}

	row := s.ToCSV(2, 300)

	if row.Cycle != 2 || row.WindowEnd != 300 {
		t.Errorf("cycle/window = %d/%d", row.Cycle, row.WindowEnd)
	}
	if row.AvgStepUS != 1500 {
		t.Errorf("AvgStepUS = %d, want 1500", row.AvgStepUS)
	}
	if row.ForcesPct != 80 || row.TransportPct != 15 || row.OutputPct != 0 {
		t.Errorf("unexpected phase columns: %+v", row)
	}
}

func TestPerfStats_LogValue(t *testing.T) {
	s := PerfStats{
		AvgStepDuration: time.Millisecond,
		PhasePct:        map[string]float64{PhaseForces: 42.37, PhaseOutput: 0.01},
	}

	v := s.LogValue()
	if v.Kind() != slog.KindGroup {
		t.Fatalf("kind = %v, want group", v.Kind())
	}

	got := map[string]slog.Value{}
	for _, a := range v.Group() {
		got[a.Key] = a.Value
	}
	if got["avg_step_us"].Int64() != 1000 {
		t.Errorf("avg_step_us = %v", got["avg_step_us"])
	}
	if got["forces_pct"].Float64() != 42.3 {
		t.Errorf("forces_pct = %v", got["forces_pct"])
	}
	if _, ok := got["output_pct"]; ok {
		t.Error("negligible phases should be omitted")
	}
}
