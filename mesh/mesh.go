// Package mesh provides the triangulated surface particles move on.
//
// Every face carries its own 2-D chart: a local coordinate q maps to
// v0 + q.X*(v1-v0) + q.Y*(v2-v0), and the face is the region q.X >= 0,
// q.Y >= 0, q.X+q.Y <= 1. Edge e of a face runs from vertex e to vertex
// (e+1)%3, so edge 0 is the q.Y = 0 side, edge 1 the q.X+q.Y = 1 side and
// edge 2 the q.X = 0 side. Crossing an edge is handled with precomputed
// transition maps rather than any global parameterization.
package mesh

import (
	"errors"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Tolerance is the slack allowed by the in-triangle test.
const Tolerance = 1e-8

// NoNeighbor marks an edge on the mesh boundary.
const NoNeighbor = -1

var (
	ErrDegenerateFace = errors.New("mesh: degenerate face")
	ErrNonManifold    = errors.New("mesh: edge shared by more than two faces")
	ErrBadIndex       = errors.New("mesh: vertex index out of range")
)

// Mat2 is a row-major 2x2 matrix acting on chart vectors.
type Mat2 [2][2]float64

// Apply returns m*v.
func (m Mat2) Apply(v r2.Vec) r2.Vec {
	return r2.Vec{
		X: m[0][0]*v.X + m[0][1]*v.Y,
		Y: m[1][0]*v.X + m[1][1]*v.Y,
	}
}

// Affine2 maps chart points: q' = M*q + Offset.
type Affine2 struct {
	M      Mat2
	Offset r2.Vec
}

// Apply returns the image of q.
func (a Affine2) Apply(q r2.Vec) r2.Vec {
	return r2.Add(a.M.Apply(q), a.Offset)
}

// Edge holds the adjacency and transition maps across one side of a face.
type Edge struct {
	Neighbor int // face on the other side, NoNeighbor on a boundary
	Reverse  int // index of this edge as seen from Neighbor

	Vector Mat2    // tangent vectors, this chart -> neighbor chart
	Point  Affine2 // points on the shared edge, this chart -> neighbor chart
}

// Face is one triangle with its chart.
type Face struct {
	V      [3]int
	Origin r3.Vec    // vertex 0
	Basis  [2]r3.Vec // v1-v0, v2-v0
	Normal r3.Vec    // unit normal, (v1-v0)x(v2-v0) orientation
	Area   float64

	// Jacobian rows of the global->local map (BᵀB)⁻¹Bᵀ, B = [Basis0 Basis1].
	Jacobian [2]r3.Vec

	Edges [3]Edge
}

// Mesh is an arena of faces sharing a vertex pool.
type Mesh struct {
	Vertices []r3.Vec
	Faces    []Face
}

// NumFaces returns the number of faces.
func (m *Mesh) NumFaces() int { return len(m.Faces) }

// Normal returns the unit normal of face f.
func (m *Mesh) Normal(f int) r3.Vec { return m.Faces[f].Normal }

// LocalVector expresses a tangent vector of face f in the face's chart.
// Any normal component is discarded by the projection.
func (m *Mesh) LocalVector(f int, v r3.Vec) r2.Vec {
	j := &m.Faces[f].Jacobian
	return r2.Vec{X: r3.Dot(j[0], v), Y: r3.Dot(j[1], v)}
}

// GlobalVector lifts a chart vector of face f back into 3-D.
func (m *Mesh) GlobalVector(f int, v r2.Vec) r3.Vec {
	b := &m.Faces[f].Basis
	return r3.Add(r3.Scale(v.X, b[0]), r3.Scale(v.Y, b[1]))
}

// Embed returns the 3-D position of chart point q on face f.
func (m *Mesh) Embed(f int, q r2.Vec) r3.Vec {
	return r3.Add(m.Faces[f].Origin, m.GlobalVector(f, q))
}

// Chart returns the chart coordinate of a 3-D point projected onto the
// plane of face f.
func (m *Mesh) Chart(f int, p r3.Vec) r2.Vec {
	return m.LocalVector(f, r3.Sub(p, m.Faces[f].Origin))
}

// InTriangle reports whether q lies in the closed reference triangle.
func (m *Mesh) InTriangle(q r2.Vec) bool { return InTriangle(q) }

// InTriangle reports whether q lies in the closed reference triangle,
// up to Tolerance.
func InTriangle(q r2.Vec) bool {
	return q.X >= -Tolerance && q.Y >= -Tolerance && q.X+q.Y <= 1+Tolerance
}

// Neighbor returns the face across edge e of face f, or NoNeighbor.
func (m *Mesh) Neighbor(f, e int) int { return m.Faces[f].Edges[e].Neighbor }

// ReverseEdge returns the index of edge e of face f as seen from its
// neighbor.
func (m *Mesh) ReverseEdge(f, e int) int { return m.Faces[f].Edges[e].Reverse }

// TransitionVector carries a chart vector of face f across edge e.
func (m *Mesh) TransitionVector(f, e int, v r2.Vec) r2.Vec {
	return m.Faces[f].Edges[e].Vector.Apply(v)
}

// TransitionPoint carries a chart point lying on edge e of face f into
// the neighbor's chart.
func (m *Mesh) TransitionPoint(f, e int, q r2.Vec) r2.Vec {
	return m.Faces[f].Edges[e].Point.Apply(q)
}

// Centroid returns the chart coordinate of a face centroid.
func Centroid() r2.Vec { return r2.Vec{X: 1.0 / 3, Y: 1.0 / 3} }
