package mesh

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Mismatch describes an interior edge whose transition maps do not
// invert each other.
type Mismatch struct {
	Face, Edge  int
	VectorError float64 // |v - back(forward(v))|, worst of the two chart axes
	PointError  float64 // round trip of the edge midpoint
	EmbedError  float64 // distance between the midpoint embedded from both sides
}

// Report summarizes a transition-map round-trip check.
type Report struct {
	Edges          int
	BoundaryEdges  int
	MaxVectorError float64
	MaxPointError  float64
	MaxEmbedError  float64
	Mismatches     []Mismatch
}

// OK reports whether no edge exceeded the tolerance.
func (r Report) OK() bool { return len(r.Mismatches) == 0 }

// edgeMidpoints are the chart midpoints of edges 0, 1 and 2.
var edgeMidpoints = [3]r2.Vec{{X: 0.5, Y: 0}, {X: 0.5, Y: 0.5}, {X: 0, Y: 0.5}}

// Verify carries unit vectors and edge midpoints across every interior
// edge and back again, recording edges whose error exceeds tol.
func (m *Mesh) Verify(tol float64) Report {
	var rep Report
	var vecErrs, ptErrs, embErrs []float64

	for f := range m.Faces {
		for e := 0; e < 3; e++ {
			g := m.Neighbor(f, e)
			if g == NoNeighbor {
				rep.BoundaryEdges++
				continue
			}
			rep.Edges++
			r := m.ReverseEdge(f, e)

			mm := Mismatch{Face: f, Edge: e}
			for _, v := range []r2.Vec{{X: 1}, {Y: 1}} {
				back := m.TransitionVector(g, r, m.TransitionVector(f, e, v))
				if d := r2.Norm(r2.Sub(back, v)); d > mm.VectorError {
					mm.VectorError = d
				}
			}

			q := edgeMidpoints[e]
			p := m.TransitionPoint(f, e, q)
			mm.PointError = r2.Norm(r2.Sub(m.TransitionPoint(g, r, p), q))
			mm.EmbedError = r3.Norm(r3.Sub(m.Embed(g, p), m.Embed(f, q)))

			vecErrs = append(vecErrs, mm.VectorError)
			ptErrs = append(ptErrs, mm.PointError)
			embErrs = append(embErrs, mm.EmbedError)

			if mm.VectorError > tol || mm.PointError > tol || mm.EmbedError > tol {
				rep.Mismatches = append(rep.Mismatches, mm)
			}
		}
	}

	if rep.Edges > 0 {
		rep.MaxVectorError = floats.Max(vecErrs)
		rep.MaxPointError = floats.Max(ptErrs)
		rep.MaxEmbedError = floats.Max(embErrs)
	}
	return rep
}
