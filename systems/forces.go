package systems

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// ContactDistance is the separation of two touching particles, in radii.
const ContactDistance = 2.0

// ForceParams configures the pair interaction and the external field.
// Distances are in particle radii.
type ForceParams struct {
	Bpp             float64 // interaction strength
	Kappa           float64 // inverse decay length
	Cutoff          float64 // pairs at or beyond this separation do not interact
	OverlapDistance float64 // separations below this are reported as overlaps
	OverlapClamp    float64 // separation used in place of an overlapping one
	FieldStrength   float64
	FieldAxis       r3.Vec // unit direction of the field force
}

// PairResult is the outcome of one pair evaluation.
type PairResult struct {
	Force   r3.Vec  // force on the first particle; the second gets -Force
	Dist    float64 // true separation, before any clamping
	Overlap bool
}

// Overlap records a pair found closer than OverlapDistance.
type Overlap struct {
	I, J int
	Dist float64
}

// PairForce returns the repulsive force on the particle at ri from the one
// at rj. Overlapping pairs are evaluated at OverlapClamp so the result
// stays finite.
func PairForce(p ForceParams, ri, rj r3.Vec) PairResult {
	sep := r3.Sub(rj, ri)
	d := r3.Norm(sep)
	res := PairResult{Dist: d}

	if d < p.OverlapDistance {
		res.Overlap = true
		d = p.OverlapClamp
	}
	if d >= p.Cutoff || res.Dist == 0 {
		return res
	}

	mag := -p.Bpp * p.Kappa * math.Exp(-p.Kappa*(d-ContactDistance))
	res.Force = r3.Scale(mag/res.Dist, sep)
	return res
}

// CellListMin is the particle count from which candidate pairs come from
// a cell list instead of all pairs.
const CellListMin = 256

// ForceEngine accumulates pair and field forces over the whole particle
// set. Pair results go to pair-indexed storage so the evaluation can be
// spread over an Executor while the reduction stays in a fixed order.
// Large systems evaluate only the pairs a cell list reports; the skipped
// pairs contribute nothing, so the result is the same.
type ForceEngine struct {
	params ForceParams
	exec   Executor
	pairs  []PairResult
	n      int

	cellMin   int
	useCells  bool
	cells     *CellList
	cand      []PairRef // candidate pairs when useCells is set
	positions []r3.Vec
}

// NewForceEngine creates a force engine. A nil exec runs serially.
func NewForceEngine(p ForceParams, exec Executor) *ForceEngine {
	if exec == nil {
		exec = Serial{}
	}
	return &ForceEngine{
		params:  p,
		exec:    exec,
		cellMin: CellListMin,
		cells:   NewCellList(math.Max(p.Cutoff, p.OverlapDistance)),
	}
}

// Params returns the engine's parameters.
func (e *ForceEngine) Params() ForceParams { return e.params }

// pairIndex maps i < j to a slot in the upper triangle.
func pairIndex(i, j, n int) int {
	return i*n - i*(i+1)/2 + (j - i - 1)
}

// Compute resets every force accumulator and refills it. It returns the
// overlapping pairs in (i, j) order.
func (e *ForceEngine) Compute(ps []Particle) []Overlap {
	n := len(ps)
	e.n = n
	e.useCells = n >= e.cellMin
	if e.useCells {
		return e.computeCells(ps)
	}
	npairs := n * (n - 1) / 2
	if cap(e.pairs) < npairs {
		e.pairs = make([]PairResult, npairs)
	}
	e.pairs = e.pairs[:npairs]

	p := e.params
	e.exec.Run(n, func(start, end int) {
		for i := start; i < end; i++ {
			k := pairIndex(i, i+1, n)
			for j := i + 1; j < n; j++ {
				e.pairs[k] = PairForce(p, ps[i].Pos, ps[j].Pos)
				k++
			}
		}
	})

	for i := range ps {
		ps[i].Force = r3.Vec{}
	}

	var overlaps []Overlap
	k := 0
	for i := 0; i < n-1; i++ {
		for j := i + 1; j < n; j++ {
			pr := &e.pairs[k]
			k++
			if pr.Overlap {
				overlaps = append(overlaps, Overlap{I: i, J: j, Dist: pr.Dist})
			}
			ps[i].Force = r3.Add(ps[i].Force, pr.Force)
			ps[j].Force = r3.Sub(ps[j].Force, pr.Force)
		}
	}

	e.addField(ps)
	return overlaps
}

func (e *ForceEngine) computeCells(ps []Particle) []Overlap {
	e.positions = e.positions[:0]
	for i := range ps {
		e.positions = append(e.positions, ps[i].Pos)
	}
	e.cells.Build(e.positions)
	e.cand = e.cells.Pairs(e.cand[:0], e.positions)

	if cap(e.pairs) < len(e.cand) {
		e.pairs = make([]PairResult, len(e.cand))
	}
	e.pairs = e.pairs[:len(e.cand)]

	p := e.params
	e.exec.Run(len(e.cand), func(start, end int) {
		for k := start; k < end; k++ {
			c := e.cand[k]
			e.pairs[k] = PairForce(p, ps[c.I].Pos, ps[c.J].Pos)
		}
	})

	for i := range ps {
		ps[i].Force = r3.Vec{}
	}

	var overlaps []Overlap
	for k, c := range e.cand {
		pr := &e.pairs[k]
		if pr.Force == (r3.Vec{}) && !pr.Overlap {
			continue
		}
		if pr.Overlap {
			overlaps = append(overlaps, Overlap{I: c.I, J: c.J, Dist: pr.Dist})
		}
		ps[c.I].Force = r3.Add(ps[c.I].Force, pr.Force)
		ps[c.J].Force = r3.Sub(ps[c.J].Force, pr.Force)
	}

	e.addField(ps)
	return overlaps
}

func (e *ForceEngine) addField(ps []Particle) {
	field := r3.Scale(e.params.FieldStrength, e.params.FieldAxis)
	for i := range ps {
		ps[i].Force = r3.Add(ps[i].Force, field)
	}
}

// Pair returns the last computed result for i < j. Pairs the cell list
// skipped report a zero result with their distance.
func (e *ForceEngine) Pair(i, j int) PairResult {
	if i > j {
		i, j = j, i
	}
	if !e.useCells {
		return e.pairs[pairIndex(i, j, e.n)]
	}
	k, ok := slices.BinarySearchFunc(e.cand, PairRef{I: i, J: j}, func(a, b PairRef) int {
		if a.I != b.I {
			return a.I - b.I
		}
		return a.J - b.J
	})
	if !ok {
		return PairResult{Dist: r3.Norm(r3.Sub(e.positions[j], e.positions[i]))}
	}
	return e.pairs[k]
}
