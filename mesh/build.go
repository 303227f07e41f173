package mesh

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// minArea is the smallest face area accepted as non-degenerate.
const minArea = 1e-14

// New builds a mesh from a vertex pool and triangle index triples,
// precomputing charts, adjacency and transition maps.
func New(vertices []r3.Vec, triangles [][3]int) (*Mesh, error) {
	m := &Mesh{
		Vertices: vertices,
		Faces:    make([]Face, len(triangles)),
	}

	for i, tri := range triangles {
		for _, v := range tri {
			if v < 0 || v >= len(vertices) {
				return nil, fmt.Errorf("face %d references vertex %d of %d: %w", i, v, len(vertices), ErrBadIndex)
			}
		}
		face, err := newFace(vertices, tri)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", i, err)
		}
		m.Faces[i] = face
	}

	if err := m.link(); err != nil {
		return nil, err
	}
	return m, nil
}

func newFace(vertices []r3.Vec, tri [3]int) (Face, error) {
	v0, v1, v2 := vertices[tri[0]], vertices[tri[1]], vertices[tri[2]]
	e0 := r3.Sub(v1, v0)
	e1 := r3.Sub(v2, v0)

	n := r3.Cross(e0, e1)
	area := 0.5 * r3.Norm(n)
	if area < minArea {
		return Face{}, ErrDegenerateFace
	}

	// J = (BᵀB)⁻¹Bᵀ maps tangent vectors to chart components.
	b := mat.NewDense(3, 2, []float64{
		e0.X, e1.X,
		e0.Y, e1.Y,
		e0.Z, e1.Z,
	})
	var metric, inv, jac mat.Dense
	metric.Mul(b.T(), b)
	if err := inv.Inverse(&metric); err != nil {
		return Face{}, fmt.Errorf("inverting metric: %v: %w", err, ErrDegenerateFace)
	}
	jac.Mul(&inv, b.T())

	return Face{
		V:      tri,
		Origin: v0,
		Basis:  [2]r3.Vec{e0, e1},
		Normal: r3.Unit(n),
		Area:   area,
		Jacobian: [2]r3.Vec{
			{X: jac.At(0, 0), Y: jac.At(0, 1), Z: jac.At(0, 2)},
			{X: jac.At(1, 0), Y: jac.At(1, 1), Z: jac.At(1, 2)},
		},
	}, nil
}

type edgeKey struct{ a, b int }

func keyOf(a, b int) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a, b}
}

type halfEdge struct{ face, edge int }

// link fills in adjacency and transition maps for every edge.
func (m *Mesh) link() error {
	shared := make(map[edgeKey][]halfEdge, 3*len(m.Faces)/2)
	for f := range m.Faces {
		for e := 0; e < 3; e++ {
			a, b := m.edgeVertices(f, e)
			k := keyOf(a, b)
			shared[k] = append(shared[k], halfEdge{f, e})
			m.Faces[f].Edges[e] = Edge{Neighbor: NoNeighbor, Reverse: NoNeighbor}
		}
	}

	for k, hs := range shared {
		switch len(hs) {
		case 1:
			// boundary
		case 2:
			m.connect(hs[0], hs[1])
			m.connect(hs[1], hs[0])
		default:
			return fmt.Errorf("edge %d-%d has %d faces: %w", k.a, k.b, len(hs), ErrNonManifold)
		}
	}
	return nil
}

func (m *Mesh) edgeVertices(f, e int) (int, int) {
	v := m.Faces[f].V
	return v[e], v[(e+1)%3]
}

// connect computes the maps carrying face from.face across its edge into
// face to.face.
func (m *Mesh) connect(from, to halfEdge) {
	src := &m.Faces[from.face]
	dst := &m.Faces[to.face]

	a, b := m.edgeVertices(from.face, from.edge)
	pa, pb := m.Vertices[a], m.Vertices[b]
	axis := r3.Unit(r3.Sub(pb, pa))

	// Unfold about the shared edge: the direction leaving src across the
	// edge must become the direction entering dst.
	out := r3.Scale(-1, inward(src, from.edge, pa, axis))
	in := inward(dst, to.edge, pa, axis)
	angle := math.Atan2(r3.Dot(axis, r3.Cross(out, in)), r3.Dot(out, in))
	rot := r3.NewRotation(angle, axis)

	var vec, pt Mat2
	for k := 0; k < 2; k++ {
		w := rot.Rotate(src.Basis[k])
		vec[0][k] = r3.Dot(dst.Jacobian[0], w)
		vec[1][k] = r3.Dot(dst.Jacobian[1], w)

		pt[0][k] = r3.Dot(dst.Jacobian[0], src.Basis[k])
		pt[1][k] = r3.Dot(dst.Jacobian[1], src.Basis[k])
	}
	shift := r3.Sub(src.Origin, dst.Origin)

	src.Edges[from.edge] = Edge{
		Neighbor: to.face,
		Reverse:  to.edge,
		Vector:   vec,
		Point: Affine2{
			M:      pt,
			Offset: m.LocalVector(to.face, shift),
		},
	}
}

// inward returns the unit in-plane direction perpendicular to edge e of
// face f pointing into the face.
func inward(f *Face, e int, onEdge, axis r3.Vec) r3.Vec {
	opp := f.Origin
	switch e {
	case 0:
		opp = r3.Add(f.Origin, f.Basis[1])
	case 1:
		// vertex 0
	case 2:
		opp = r3.Add(f.Origin, f.Basis[0])
	}
	d := r3.Sub(opp, onEdge)
	d = r3.Sub(d, r3.Scale(r3.Dot(d, axis), axis))
	return r3.Unit(d)
}
