package systems

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"
)

func testForceParams() ForceParams {
	return ForceParams{
		Bpp:             2.29,
		Kappa:           10,
		Cutoff:          2.5,
		OverlapDistance: 2.0,
		OverlapClamp:    2.06,
		FieldAxis:       r3.Vec{Z: -1},
	}
}

// goroutineExec splits the range into k chunks run concurrently.
type goroutineExec struct{ k int }

func (g goroutineExec) Run(n int, fn func(start, end int)) {
	var wg sync.WaitGroup
	size := (n + g.k - 1) / g.k
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(start, end)
		}()
	}
	wg.Wait()
}

func TestPairForce(t *testing.T) {
	p := testForceParams()
	tests := []struct {
		name    string
		dist    float64
		wantMag float64
		overlap bool
	}{
		{"inside cutoff", 2.2, p.Bpp * p.Kappa * math.Exp(-p.Kappa*0.2), false},
		{"at contact", 2.0, p.Bpp * p.Kappa, false},
		{"exactly at cutoff", 2.5, 0, false},
		{"beyond cutoff", 4.0, 0, false},
		{"overlap is clamped", 1.0, p.Bpp * p.Kappa * math.Exp(-p.Kappa*0.06), true},
		{"coincident", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ri := r3.Vec{X: 1, Y: 2, Z: 3}
			rj := r3.Add(ri, r3.Vec{X: tt.dist})
			res := PairForce(p, ri, rj)

			assert.Equal(t, tt.overlap, res.Overlap)
			assert.InDelta(t, tt.dist, res.Dist, 1e-12)
			assert.InDelta(t, tt.wantMag, r3.Norm(res.Force), 1e-9*math.Max(1, tt.wantMag))
			assert.False(t, math.IsNaN(res.Force.X))
			if tt.wantMag > 0 {
				assert.Less(t, res.Force.X, 0.0, "pushes i away from j")
			}
		})
	}
}

func TestForceEngineNewtonThirdLaw(t *testing.T) {
	p := testForceParams()
	e := NewForceEngine(p, nil)
	ps := []Particle{
		{Pos: r3.Vec{}},
		{Pos: r3.Vec{X: 2.1}},
	}
	overlaps := e.Compute(ps)
	assert.Empty(t, overlaps)
	require.NotZero(t, ps[0].Force.X)
	assert.Equal(t, ps[0].Force, r3.Scale(-1, ps[1].Force), "exact negation")
	assert.Equal(t, ps[0].Force, e.Pair(1, 0).Force)
}

func TestForceEngineNetForceIsField(t *testing.T) {
	p := testForceParams()
	p.FieldStrength = 0.5
	e := NewForceEngine(p, nil)
	ps := []Particle{
		{Pos: r3.Vec{}},
		{Pos: r3.Vec{X: 2.1}},
		{Pos: r3.Vec{X: 1, Y: 1.9}},
		{Pos: r3.Vec{X: 10}},
	}
	e.Compute(ps)

	var sum r3.Vec
	for _, q := range ps {
		sum = r3.Add(sum, q.Force)
	}
	assert.InDelta(t, 0, sum.X, 1e-12)
	assert.InDelta(t, 0, sum.Y, 1e-12)
	assert.InDelta(t, -0.5*float64(len(ps)), sum.Z, 1e-12)

	// the isolated particle only feels the field
	assert.Equal(t, r3.Vec{Z: -0.5}, ps[3].Force)
}

func TestForceEngineResetsAccumulators(t *testing.T) {
	e := NewForceEngine(testForceParams(), nil)
	ps := []Particle{
		{Pos: r3.Vec{}, Force: r3.Vec{X: 100}},
		{Pos: r3.Vec{X: 50}, Force: r3.Vec{Y: -3}},
	}
	e.Compute(ps)
	assert.Equal(t, r3.Vec{}, ps[0].Force)
	assert.Equal(t, r3.Vec{}, ps[1].Force)
}

func TestForceEngineReportsOverlaps(t *testing.T) {
	e := NewForceEngine(testForceParams(), nil)
	ps := []Particle{
		{Pos: r3.Vec{}},
		{Pos: r3.Vec{X: 5}},
		{Pos: r3.Vec{X: 1.5}},
	}
	overlaps := e.Compute(ps)
	require.Len(t, overlaps, 1)
	assert.Equal(t, Overlap{I: 0, J: 2, Dist: 1.5}, overlaps[0])
	for _, q := range ps {
		assert.False(t, math.IsNaN(r3.Norm(q.Force)) || math.IsInf(r3.Norm(q.Force), 0))
	}
}

// Pair-indexed storage makes the result independent of how the pair
// evaluation is split across goroutines.
func TestForceEngineParallelMatchesSerial(t *testing.T) {
	p := testForceParams()
	p.Cutoff = 6
	p.Kappa = 1
	ps := make([]Particle, 97)
	for i := range ps {
		fi := float64(i)
		ps[i].Pos = r3.Vec{X: 3 * math.Cos(fi), Y: 3 * math.Sin(1.7*fi), Z: 0.1 * fi}
	}
	serial := append([]Particle(nil), ps...)
	NewForceEngine(p, Serial{}).Compute(serial)

	for _, k := range []int{2, 3, 8, 200} {
		par := append([]Particle(nil), ps...)
		NewForceEngine(p, goroutineExec{k}).Compute(par)
		for i := range par {
			require.Equal(t, serial[i].Force, par[i].Force, "k=%d particle %d", k, i)
		}
	}
}

func TestPairIndex(t *testing.T) {
	n := 6
	k := 0
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			if got := pairIndex(i, j, n); got != k {
				t.Errorf("pairIndex(%d, %d) = %d, want %d", i, j, got, k)
			}
			k++
		}
	}
}

// The cell list only skips pairs that contribute nothing.
func TestForceEngineCellListMatchesAllPairs(t *testing.T) {
	p := testForceParams()
	p.FieldStrength = 0.5
	ps := make([]Particle, 300)
	for i := range ps {
		fi := float64(i)
		// a loose shell of radius 20 with some close pairs
		ps[i].Pos = r3.Scale(20, r3.Unit(r3.Vec{X: math.Cos(fi), Y: math.Sin(2.3 * fi), Z: math.Cos(0.7*fi) - 0.5}))
	}

	all := append([]Particle(nil), ps...)
	ea := NewForceEngine(p, nil)
	ea.cellMin = len(ps) + 1
	wantOverlaps := ea.Compute(all)

	cells := append([]Particle(nil), ps...)
	ec := NewForceEngine(p, goroutineExec{4})
	require.LessOrEqual(t, ec.cellMin, len(ps))
	gotOverlaps := ec.Compute(cells)

	assert.Equal(t, wantOverlaps, gotOverlaps)
	for i := range all {
		require.Equal(t, all[i].Force, cells[i].Force, "particle %d", i)
	}
	assert.Less(t, len(ec.cand), len(ps)*(len(ps)-1)/2)

	for _, pair := range [][2]int{{0, 1}, {7, 3}, {100, 250}} {
		want, got := ea.Pair(pair[0], pair[1]), ec.Pair(pair[0], pair[1])
		assert.Equal(t, want.Force, got.Force)
		assert.InDelta(t, want.Dist, got.Dist, 1e-12)
	}
}
