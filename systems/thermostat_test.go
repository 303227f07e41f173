package systems

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
	"gonum.org/v1/gonum/stat"
)

func TestThermostatDriftOnly(t *testing.T) {
	th := NewThermostat(0.25, 1e-3, false, 1)
	ps := []Particle{
		{Force: r3.Vec{X: 4, Y: -2, Z: 1}},
		{},
	}
	th.Update(ps)
	assert.Equal(t, r3.Vec{X: 1, Y: -0.5, Z: 0.25}, ps[0].Vel)
	assert.Equal(t, r3.Vec{}, ps[1].Vel, "no force, no noise: no drift")
}

func TestThermostatDeterministic(t *testing.T) {
	run := func(seed uint64) []Particle {
		th := NewThermostat(0.2, 1e-4, true, seed)
		ps := make([]Particle, 5)
		for step := 0; step < 3; step++ {
			th.Update(ps)
		}
		return ps
	}

	a, b := run(42), run(42)
	for i := range a {
		assert.Equal(t, a[i].Vel, b[i].Vel, "particle %d", i)
	}

	c := run(43)
	assert.NotEqual(t, a[0].Vel, c[0].Vel)
}

func TestThermostatState(t *testing.T) {
	a := NewThermostat(0.2, 1e-4, true, 9)
	ps := make([]Particle, 3)
	a.Update(ps)
	state, err := a.State()
	require.NoError(t, err)

	a.Update(ps)
	want := append([]Particle(nil), ps...)

	b := NewThermostat(0.2, 1e-4, true, 1)
	require.NoError(t, b.SetState(state))
	got := make([]Particle, 3)
	b.Update(got)
	assert.Equal(t, want, got)
}

func TestThermostatNoiseAmplitude(t *testing.T) {
	const d, dt = 0.5, 0.01
	th := NewThermostat(d, dt, true, 7)
	assert.InDelta(t, 10.0, th.Amplitude(), 1e-12)

	ps := make([]Particle, 1000)
	var xs []float64
	for step := 0; step < 20; step++ {
		th.Update(ps)
		for _, p := range ps {
			xs = append(xs, p.Vel.X, p.Vel.Y, p.Vel.Z)
		}
	}

	mean, variance := stat.MeanVariance(xs, nil)
	want := 2 * d / dt
	assert.InDelta(t, 0, mean, 5*math.Sqrt(want/float64(len(xs))))
	assert.InDelta(t, want, variance, 0.03*want)
}
