// Package systems contains the per-step algorithms of the integrator:
// pairwise forces, the stochastic velocity update and transport along
// the surface.
package systems

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/manifold/components"
)

// Particle is the working copy of one particle's state for a step.
type Particle struct {
	Surface components.Surface
	Pos     r3.Vec
	Vel     r3.Vec
	Force   r3.Vec
}

// Geometry is the surface the transport walks over. *mesh.Mesh
// satisfies it.
type Geometry interface {
	Normal(face int) r3.Vec
	LocalVector(face int, v r3.Vec) r2.Vec
	Embed(face int, q r2.Vec) r3.Vec
	InTriangle(q r2.Vec) bool
	Neighbor(face, edge int) int
	TransitionVector(face, edge int, v r2.Vec) r2.Vec
	TransitionPoint(face, edge int, q r2.Vec) r2.Vec
}

// Executor runs fn over [0, n) split into disjoint chunks, returning once
// every chunk is done.
type Executor interface {
	Run(n int, fn func(start, end int))
}

// Serial is an Executor that runs everything on the calling goroutine.
type Serial struct{}

// Run implements Executor.
func (Serial) Run(n int, fn func(start, end int)) {
	if n > 0 {
		fn(0, n)
	}
}
