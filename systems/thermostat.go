package systems

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat/distuv"
)

// noiseStream selects the PCG stream for thermal noise so it never
// shares a sequence with other seeded sources.
const noiseStream = 0x9e3779b97f4a7c15

// Thermostat turns forces into overdamped velocities with Brownian noise.
// Draws happen in particle index order, X then Y then Z, once per step,
// so runs are reproducible for a fixed seed.
type Thermostat struct {
	diffusivity float64
	dt          float64
	random      bool
	pcg         *rand.PCG
	noise       distuv.Normal
}

// NewThermostat creates a thermostat. diffusivity doubles as the
// mobility: the drift velocity is diffusivity * force.
func NewThermostat(diffusivity, dt float64, random bool, seed uint64) *Thermostat {
	pcg := rand.NewPCG(seed, noiseStream)
	return &Thermostat{
		diffusivity: diffusivity,
		dt:          dt,
		random:      random,
		pcg:         pcg,
		noise:       distuv.Normal{Mu: 0, Sigma: 1, Src: pcg},
	}
}

// State returns the noise generator state.
func (t *Thermostat) State() ([]byte, error) {
	return t.pcg.MarshalBinary()
}

// SetState restores a state returned by State, so the noise sequence
// continues where it left off.
func (t *Thermostat) SetState(b []byte) error {
	return t.pcg.UnmarshalBinary(b)
}

// Amplitude returns the standard deviation of each noise velocity
// component, sqrt(2D/dt).
func (t *Thermostat) Amplitude() float64 {
	return math.Sqrt(2 * t.diffusivity / t.dt)
}

// Update overwrites every particle's velocity from its force.
func (t *Thermostat) Update(ps []Particle) {
	amp := t.Amplitude()
	for i := range ps {
		v := r3.Scale(t.diffusivity, ps[i].Force)
		if t.random {
			v.X += amp * t.noise.Rand()
			v.Y += amp * t.noise.Rand()
			v.Z += amp * t.noise.Rand()
		}
		ps[i].Vel = v
	}
}
