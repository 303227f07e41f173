package telemetry

import "log/slog"

// Diagnostic kinds raised outside transport.
const (
	KindOverlap         = "overlap"
	KindInitialTooClose = "initial_too_close"
	KindMeshMismatch    = "mesh_mismatch"
)

// Diagnostic is one recorded anomaly. Transport violations use the
// violation kind names; Other holds the second particle of a pair or the
// edge of a mesh mismatch, and -1 otherwise.
type Diagnostic struct {
	Cycle    int     `csv:"cycle"`
	Step     int     `csv:"step"`
	Particle int     `csv:"particle"`
	Other    int     `csv:"other"`
	Kind     string  `csv:"kind"`
	Face     int     `csv:"face"`
	Local0   float64 `csv:"local0"`
	Local1   float64 `csv:"local1"`
	Value    float64 `csv:"value"` // pair distance, remaining time budget or mismatch error
}

// LogValue implements slog.LogValuer for structured logging.
func (d Diagnostic) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int("cycle", d.Cycle),
		slog.Int("step", d.Step),
		slog.Int("particle", d.Particle),
		slog.String("kind", d.Kind),
	}
	if d.Other >= 0 {
		attrs = append(attrs, slog.Int("other", d.Other))
	}
	if d.Face >= 0 {
		attrs = append(attrs,
			slog.Int("face", d.Face),
			slog.Float64("local0", d.Local0),
			slog.Float64("local1", d.Local1),
		)
	}
	attrs = append(attrs, slog.Float64("value", d.Value))
	return slog.GroupValue(attrs...)
}

// DiagnosticCounts tallies diagnostics by kind.
type DiagnosticCounts map[string]int

// Add counts d.
func (c DiagnosticCounts) Add(d Diagnostic) {
	c[d.Kind]++
}

// Total returns the number of diagnostics counted.
func (c DiagnosticCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}

// LogValue implements slog.LogValuer for structured logging.
func (c DiagnosticCounts) LogValue() slog.Value {
	attrs := make([]slog.Attr, 0, len(c))
	for k, v := range c {
		attrs = append(attrs, slog.Int(k, v))
	}
	return slog.GroupValue(attrs...)
}
