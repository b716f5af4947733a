/*Package cellgrid implements grainflow's neighbor index: a linked-cell
lattice over the simulation domain and a Verlet pair list built by
walking each cell's neighbor stencil.

Grid generalizes the teacher's geom.Grid (phil-mansfield-gotetra,
geom/grid.go) from a fixed 3-axis lattice to a runtime-dimension one: the
same Idx/Coords/pMod row-major indexing idiom, generalized from
[3]int to []int so it serves the engine's 1/2/3-D domains uniformly.
*/
package cellgrid

// Grid maps D-dimensional integer cell coordinates to a flat index and
// back, row-major, the way geom.Grid does for a fixed 3 dimensions.
type Grid struct {
	dim     int
	width   []int
	strides []int
	volume  int
}

// NewGrid builds a Grid of the given per-dimension cell counts.
func NewGrid(width []int) *Grid {
	g := &Grid{dim: len(width), width: append([]int(nil), width...)}
	g.strides = make([]int, g.dim)
	stride := 1
	for d := 0; d < g.dim; d++ {
		g.strides[d] = stride
		stride *= g.width[d]
	}
	g.volume = stride
	return g
}

func (g *Grid) Dim() int      { return g.dim }
func (g *Grid) Volume() int   { return g.volume }
func (g *Grid) Width(d int) int { return g.width[d] }

// Idx returns the flat cell index for a set of cell coordinates. Callers
// are responsible for wrapping or clamping coords first (via Wrap or
// BoundsCheck); Idx itself does no bounds handling, mirroring
// geom.Grid.Idx.
func (g *Grid) Idx(coords []int) int {
	idx := 0
	for d := 0; d < g.dim; d++ {
		idx += coords[d] * g.strides[d]
	}
	return idx
}

// Coords writes the cell coordinates corresponding to a flat index into
// out, which must have length Dim().
func (g *Grid) Coords(idx int, out []int) {
	for d := g.dim - 1; d >= 0; d-- {
		out[d] = idx / g.strides[d]
		idx -= out[d] * g.strides[d]
	}
}

// BoundsCheck reports whether coords lies within [0, width) on every
// axis.
func (g *Grid) BoundsCheck(coords []int) bool {
	for d := 0; d < g.dim; d++ {
		if coords[d] < 0 || coords[d] >= g.width[d] {
			return false
		}
	}
	return true
}

// Wrap reduces coords modulo width on every axis for which periodic[d]
// is true, leaving the rest untouched (callers clamp those separately).
func (g *Grid) Wrap(coords []int, periodic []bool) {
	for d := 0; d < g.dim; d++ {
		if periodic[d] {
			coords[d] = pMod(coords[d], g.width[d])
		}
	}
}

// pMod computes the positive modulo x % y, generalizing geom.Grid's
// package-level pMod helper (used there for periodic image lookups).
func pMod(x, y int) int {
	m := x % y
	if m < 0 {
		m += y
	}
	return m
}
