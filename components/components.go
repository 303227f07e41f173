// Package components defines ECS components for the simulation.
package components

import (
	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
)

// Tag identifies a particle by its position in the initial configuration.
type Tag struct {
	Index int
}

// Surface is a particle's position state: a chart coordinate on a face.
// Local is only meaningful together with Face.
type Surface struct {
	Face  int
	Local r2.Vec
}

// Position is the 3-D embedding of Surface, recomputed after transport.
type Position struct {
	R r3.Vec
}

// Kinematics holds the per-step velocity and force accumulator.
type Kinematics struct {
	Vel   r3.Vec
	Force r3.Vec
}
