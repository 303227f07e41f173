package sim

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/manifold/components"
	"github.com/pthm-cable/manifold/mesh"
)

// placeStream selects the PCG stream used for random placement.
const placeStream = 0x2545f4914f6cdd1d

// ErrCrowded is returned when Place cannot fit the requested particles.
var ErrCrowded = errors.New("no room for particle")

// Place scatters n particles uniformly by area over m by random
// sequential addition: candidates closer than minSep to an accepted
// particle are redrawn, up to maxTries times per particle.
func Place(m *mesh.Mesh, n int, minSep float64, seed uint64, maxTries int) ([]components.Surface, error) {
	if m.NumFaces() == 0 {
		return nil, errors.New("mesh has no faces")
	}

	src := rand.NewPCG(seed, placeStream)
	areas := make([]float64, m.NumFaces())
	for f := range m.Faces {
		areas[f] = m.Faces[f].Area
	}
	faces := distuv.NewCategorical(areas, src)
	unit := distuv.Uniform{Min: 0, Max: 1, Src: src}

	out := make([]components.Surface, 0, n)
	pos := make([]r3.Vec, 0, n)
	for i := 0; i < n; i++ {
		placed := false
		for try := 0; try < maxTries && !placed; try++ {
			f := int(faces.Rand())
			// fold the unit square onto the triangle
			q := r2.Vec{X: unit.Rand(), Y: unit.Rand()}
			if q.X+q.Y > 1 {
				q = r2.Vec{X: 1 - q.X, Y: 1 - q.Y}
			}
			p := m.Embed(f, q)

			ok := true
			for _, other := range pos {
				if r3.Norm(r3.Sub(p, other)) < minSep {
					ok = false
					break
				}
			}
			if ok {
				out = append(out, components.Surface{Face: f, Local: q})
				pos = append(pos, p)
				placed = true
			}
		}
		if !placed {
			return out, fmt.Errorf("%w: particle %d after %d tries", ErrCrowded, i, maxTries)
		}
	}
	return out, nil
}
