package telemetry

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// TrajectoryRecord is one particle line of a trajectory frame. The
// column order matches the initial configuration format, so any frame
// can be used to restart a run.
type TrajectoryRecord struct {
	Index  int     `csv:"index"`
	Local0 float64 `csv:"local0"`
	Local1 float64 `csv:"local1"`
	Face   int     `csv:"face"`
	X      float64 `csv:"x"`
	Y      float64 `csv:"y"`
	Z      float64 `csv:"z"`
	Time   float64 `csv:"time"`
}

// TrajectoryWriter appends tab separated frames, without a header, to a
// per-cycle stream.
type TrajectoryWriter struct {
	out    *gocsv.SafeCSVWriter
	closer io.Closer
	frames int
}

// NewTrajectoryWriter wraps w. If w is an io.Closer, Close closes it.
func NewTrajectoryWriter(w io.Writer) *TrajectoryWriter {
	cw := csv.NewWriter(w)
	cw.Comma = '\t'
	tw := &TrajectoryWriter{out: gocsv.NewSafeCSVWriter(cw)}
	if c, ok := w.(io.Closer); ok {
		tw.closer = c
	}
	return tw
}

// WriteFrame appends one line per record and flushes.
func (tw *TrajectoryWriter) WriteFrame(frame []TrajectoryRecord) error {
	if tw == nil {
		return nil
	}
	if err := gocsv.MarshalCSVWithoutHeaders(frame, tw.out); err != nil {
		return fmt.Errorf("writing trajectory frame %d: %w", tw.frames, err)
	}
	tw.frames++
	return nil
}

// Frames returns the number of frames written.
func (tw *TrajectoryWriter) Frames() int {
	if tw == nil {
		return 0
	}
	return tw.frames
}

// Close flushes and closes the underlying stream.
func (tw *TrajectoryWriter) Close() error {
	if tw == nil {
		return nil
	}
	tw.out.Flush()
	if err := tw.out.Error(); err != nil {
		return fmt.Errorf("flushing trajectory: %w", err)
	}
	if tw.closer != nil {
		return tw.closer.Close()
	}
	return nil
}
