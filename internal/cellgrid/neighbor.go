package cellgrid

import (
	"math"

	"github.com/phil-mansfield/grainflow/internal/errs"
)

// PositionSource is the narrow read interface the neighbor index needs
// from a particle store: how many particles there are (owned plus any
// halo/ghost copies already folded in) and each one's position.
type PositionSource interface {
	Len() int
	Position(i int, out []float64) // out has length Dim()
}

// offset is one displacement (in cells) used when walking a cell's
// neighbor stencil.
type offset []int

// Index is a linked-cell neighbor index: particles are bucketed into a
// Grid of cells sized so that the interaction cutoff (plus a skin
// margin) spans at most one cell, and candidate pairs are found by
// walking each cell against only the "lower half" of its Moore
// neighborhood (the 3x3.../2x2... stencil keeping only one of each
// (+offset,-offset) pair), so every unordered pair is visited exactly
// once. This halves the work of the naive approach in
// andewx-dieselsph's GetNeighborGrid (other_examples/, which visits all
// 7 face neighbors per particle and so visits each pair twice), and the
// cell-index arithmetic itself generalizes geom.Grid (see grid.go).
//
// A periodic axis narrow enough that its +1/-1 stencil offsets wrap
// back onto a cell other than the one they started from (width <= 2)
// is degenerate for this scheme: both ends of the wrap would otherwise
// visit the same pair. NewIndex collapses any periodic axis sized to 2
// cells down to 1 so the only remaining degenerate case is width 1,
// which Pairs handles by skipping every stencil offset that is nonzero
// along such an axis: the offset wraps back onto the cell the
// zero-offset stencil entry along that axis already covers. See
// DESIGN.md's Open Question decisions for why this
// resolution was chosen over always forcing a single global cell.
type Index struct {
	dim      int
	bounds   []Range
	periodic []bool
	cutoff   float64
	skin     float64

	grid     *Grid
	cellSize []float64
	buckets  [][]int32

	halfStencil []offset

	lastBuildX   [][]float64
	maxMotionSq  float64
	motionFactor float64
}

// Range is a [Lo, Hi) domain extent along one axis.
type Range struct{ Lo, Hi float64 }

// NewIndex builds a neighbor index over the given domain. cutoff is the
// longest interaction range the kernel dispatcher will query; skin is
// the extra margin (spec.md's rebuild-trigger "skin") that lets the
// index go several steps between rebuilds. motionFactor scales the
// trigger threshold (motion_factor * skin_depth, per spec.md §4.2),
// following GFlowSim's sectorization.hpp rebuild-trigger shape.
func NewIndex(bounds []Range, periodic []bool, cutoff, skin, motionFactor float64) *Index {
	dim := len(bounds)
	cellSize := make([]float64, dim)
	width := make([]int, dim)
	span := cutoff + skin
	// A non-positive span (no kernel registers an interaction, spec.md
	// §8 scenario 1) can't size cells by division; fall back to one cell
	// per axis, spanning the whole domain, rather than computing
	// extent/0.
	for d := 0; d < dim; d++ {
		extent := bounds[d].Hi - bounds[d].Lo
		n := 1
		if span > 0 {
			n = int(extent / span)
			if n < 1 {
				n = 1
			}
		}
		// A periodic axis with exactly two cells is degenerate: its +1
		// and -1 stencil directions both wrap to the same single
		// neighbor cell, so a pair split across them would be found
		// from both ends (spec.md §9's two-sector problem). Collapse to
		// one cell, same as the width-1 case Pairs already has to
		// handle for any periodic axis this coarse.
		if periodic[d] && n == 2 {
			n = 1
		}
		width[d] = n
		cellSize[d] = extent / float64(n)
	}
	idx := &Index{
		dim:          dim,
		bounds:       append([]Range(nil), bounds...),
		periodic:     append([]bool(nil), periodic...),
		cutoff:       cutoff,
		skin:         skin,
		grid:         NewGrid(width),
		cellSize:     cellSize,
		motionFactor: motionFactor,
	}
	idx.halfStencil = buildHalfStencil(dim)
	return idx
}

// buildHalfStencil enumerates the offsets {-1,0,1}^dim, keeping only
// those in canonical "lower half" order (the all-zero self cell, plus
// exactly one of every {offset, -offset} pair) so a pair of cells is
// visited from exactly one side.
func buildHalfStencil(dim int) []offset {
	var all []offset
	cur := make([]int, dim)
	var rec func(d int)
	rec = func(d int) {
		if d == dim {
			cp := append(offset(nil), cur...)
			all = append(all, cp)
			return
		}
		for v := -1; v <= 1; v++ {
			cur[d] = v
			rec(d + 1)
		}
	}
	rec(0)

	seen := make(map[string]bool)
	var out []offset
	for _, o := range all {
		if isZero(o) {
			out = append(out, o)
			continue
		}
		key := offsetKey(o)
		negKey := offsetKey(negate(o))
		if seen[key] || seen[negKey] {
			continue
		}
		seen[key] = true
		out = append(out, o)
	}
	return out
}

func isZero(o offset) bool {
	for _, v := range o {
		if v != 0 {
			return false
		}
	}
	return true
}

func negate(o offset) offset {
	n := make(offset, len(o))
	for i, v := range o {
		n[i] = -v
	}
	return n
}

func offsetKey(o offset) string {
	b := make([]byte, len(o))
	for i, v := range o {
		b[i] = byte(v + 1) // -1,0,1 -> 0,1,2
	}
	return string(b)
}

// cellOf returns the cell coordinates (clamped to the grid) containing
// position x.
func (idx *Index) cellOf(x []float64, out []int) {
	for d := 0; d < idx.dim; d++ {
		rel := x[d] - idx.bounds[d].Lo
		c := int(rel / idx.cellSize[d])
		if c < 0 {
			c = 0
		}
		if c >= idx.grid.Width(d) {
			c = idx.grid.Width(d) - 1
		}
		out[d] = c
	}
}

// Build rebuckets every particle in src into cells and resets the
// rebuild-trigger baseline.
func (idx *Index) Build(src PositionSource) error {
	n := src.Len()
	buckets := make([][]int32, idx.grid.Volume())
	coords := make([]int, idx.dim)
	x := make([]float64, idx.dim)

	for i := 0; i < n; i++ {
		src.Position(i, x)
		idx.cellOf(x, coords)
		c := idx.grid.Idx(coords)
		if c < 0 || c >= len(buckets) {
			return errs.Internal(errs.CellOverflow,
				"particle %d mapped to cell %d outside grid volume %d", i, c, len(buckets))
		}
		buckets[c] = append(buckets[c], int32(i))
	}
	idx.buckets = buckets

	idx.lastBuildX = make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, idx.dim)
		src.Position(i, row)
		idx.lastBuildX[i] = row
	}
	idx.maxMotionSq = 0
	return nil
}

// Pairs calls visit once for every unordered pair of particle indices
// (i, j), i != j, whose cells are within the half-stencil of one
// another (so every candidate within cutoff+skin is reported exactly
// once; the caller applies the exact distance cut).
func (idx *Index) Pairs(visit func(i, j int)) {
	coords := make([]int, idx.dim)
	neighborCoords := make([]int, idx.dim)
	volume := idx.grid.Volume()

	for cell := 0; cell < volume; cell++ {
		bucket := idx.buckets[cell]
		if len(bucket) == 0 {
			continue
		}
		idx.grid.Coords(cell, coords)

		for _, o := range idx.halfStencil {
			ok := true
			for d := 0; d < idx.dim; d++ {
				neighborCoords[d] = coords[d] + o[d]
				if idx.periodic[d] {
					// On a periodic axis one cell wide, a nonzero offset
					// aliases the zero offset along it; skip it so no
					// pair is visited twice.
					if o[d] != 0 && idx.grid.Width(d) == 1 {
						ok = false
						break
					}
					neighborCoords[d] = pMod(neighborCoords[d], idx.grid.Width(d))
				} else if neighborCoords[d] < 0 || neighborCoords[d] >= idx.grid.Width(d) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
			other := idx.grid.Idx(neighborCoords)

			if isZero(o) {
				for a := 0; a < len(bucket); a++ {
					for b := a + 1; b < len(bucket); b++ {
						visit(int(bucket[a]), int(bucket[b]))
					}
				}
				continue
			}
			if other == cell {
				// Defensive: offsets that would wrap back onto this cell
				// along a one-cell periodic axis were skipped above, and
				// the isZero pass already visited every pair within this
				// cell, so never emit self-pairs or re-visit pairs here.
				continue
			}
			otherBucket := idx.buckets[other]
			if len(otherBucket) == 0 {
				continue
			}
			for _, a := range bucket {
				for _, b := range otherBucket {
					visit(int(a), int(b))
				}
			}
		}
	}
}

// RecordMotion tells the index a particle's squared displacement from
// its position at the last Build is distSq, for use by NeedsRebuild.
// Callers call this once per owned particle each pre-force phase; only
// the largest value seen matters.
func (idx *Index) RecordMotion(distSq float64) {
	if distSq > idx.maxMotionSq {
		idx.maxMotionSq = distSq
	}
}

// TrackMotion measures, for each of the first n particles in src,
// the squared displacement from their position at the last Build and
// folds it into the rebuild-trigger estimate via RecordMotion. Indices
// beyond what the last Build snapshot covered (e.g. particles added
// since) are skipped; a topology change like that should instead force
// a rebuild through the caller's own bookkeeping (spec.md's
// store.needs_remake), not through this motion estimate.
func (idx *Index) TrackMotion(src PositionSource, n int) {
	x := make([]float64, idx.dim)
	for i := 0; i < n && i < len(idx.lastBuildX); i++ {
		src.Position(i, x)
		var distSq float64
		for d := 0; d < idx.dim; d++ {
			diff := x[d] - idx.lastBuildX[i][d]
			distSq += diff * diff
		}
		idx.RecordMotion(distSq)
	}
}

// NeedsRebuild reports whether the index is stale, per spec.md §4.2's
// rebuild criterion: max_motion := 2 * max_i|displacement_i| (factor 2
// because two opposing maximal movers close twice as fast), rebuild
// when max_motion >= motion_factor * skin_depth.
func (idx *Index) NeedsRebuild() bool {
	maxMotion := 2 * math.Sqrt(idx.maxMotionSq)
	return maxMotion >= idx.motionFactor*idx.skin
}
