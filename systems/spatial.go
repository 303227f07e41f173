package systems

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/r3"
)

// maxCellsPerAxis bounds the grid size; sparse systems get larger cells.
const maxCellsPerAxis = 64

// PairRef names a candidate pair, I < J.
type PairRef struct {
	I, J int
}

// CellList bins particles into cubic cells at least one interaction range
// wide, so every interacting pair lies in the same or adjacent cells.
type CellList struct {
	cellRange float64
	cellSize  float64
	origin    r3.Vec
	dims      [3]int
	cells     [][]int // particle indices per cell
	scratch   []int
}

// NewCellList creates a cell list for pairs closer than cellRange.
func NewCellList(cellRange float64) *CellList {
	return &CellList{cellRange: cellRange}
}

// Build bins the positions, resizing the grid to their bounding box.
func (g *CellList) Build(pos []r3.Vec) {
	if len(pos) == 0 {
		g.dims = [3]int{}
		g.cells = g.cells[:0]
		return
	}

	lo, hi := pos[0], pos[0]
	for _, p := range pos[1:] {
		lo = r3.Vec{X: math.Min(lo.X, p.X), Y: math.Min(lo.Y, p.Y), Z: math.Min(lo.Z, p.Z)}
		hi = r3.Vec{X: math.Max(hi.X, p.X), Y: math.Max(hi.Y, p.Y), Z: math.Max(hi.Z, p.Z)}
	}
	ext := r3.Sub(hi, lo)
	size := math.Max(g.cellRange, math.Max(ext.X, math.Max(ext.Y, ext.Z))/maxCellsPerAxis)

	g.origin = lo
	g.cellSize = size
	g.dims = [3]int{int(ext.X/size) + 1, int(ext.Y/size) + 1, int(ext.Z/size) + 1}

	n := g.dims[0] * g.dims[1] * g.dims[2]
	if cap(g.cells) < n {
		g.cells = make([][]int, n)
	}
	g.cells = g.cells[:n]
	g.Clear()

	for i, p := range pos {
		idx := g.cellIndex(g.coords(p))
		g.cells[idx] = append(g.cells[idx], i)
	}
}

// Clear removes all particles from the grid.
func (g *CellList) Clear() {
	for i := range g.cells {
		g.cells[i] = g.cells[i][:0]
	}
}

// Pairs appends every pair in the same or adjacent cells to dst, ordered
// by I then J. Build must have been called with the same positions.
func (g *CellList) Pairs(dst []PairRef, pos []r3.Vec) []PairRef {
	for i, p := range pos {
		c := g.coords(p)
		g.scratch = g.scratch[:0]
		for dx := -1; dx <= 1; dx++ {
			for dy := -1; dy <= 1; dy++ {
				for dz := -1; dz <= 1; dz++ {
					nc := [3]int{c[0] + dx, c[1] + dy, c[2] + dz}
					if !g.inside(nc) {
						continue
					}
					for _, j := range g.cells[g.cellIndex(nc)] {
						if j > i {
							g.scratch = append(g.scratch, j)
						}
					}
				}
			}
		}
		slices.Sort(g.scratch)
		for _, j := range g.scratch {
			dst = append(dst, PairRef{I: i, J: j})
		}
	}
	return dst
}

func (g *CellList) coords(p r3.Vec) [3]int {
	d := r3.Sub(p, g.origin)
	c := [3]int{int(d.X / g.cellSize), int(d.Y / g.cellSize), int(d.Z / g.cellSize)}

	// Clamp to valid range
	for k := range c {
		if c[k] < 0 {
			c[k] = 0
		} else if c[k] >= g.dims[k] {
			c[k] = g.dims[k] - 1
		}
	}
	return c
}

func (g *CellList) inside(c [3]int) bool {
	for k := range c {
		if c[k] < 0 || c[k] >= g.dims[k] {
			return false
		}
	}
	return true
}

// cellIndex returns the flat index of cell coordinates.
func (g *CellList) cellIndex(c [3]int) int {
	return (c[2]*g.dims[1]+c[1])*g.dims[0] + c[0]
}
