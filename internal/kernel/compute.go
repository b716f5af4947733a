package kernel

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/phil-mansfield/grainflow/internal/errs"
	"github.com/phil-mansfield/grainflow/internal/particle"
)

// Bounds describes the domain extent and periodicity used to
// minimum-image a pair's displacement before it reaches a Kernel,
// mirroring GFlowSim's getDisplacement(x[id1], x[id2], ..., bounds,
// boundaryConditions) (original_source/GFlowSim4/src/hard_sphere.cpp).
type Bounds struct {
	Lo, Hi   []float64
	Periodic []bool
}

func (b Bounds) minimumImage(dx []float64) {
	for d := range dx {
		if !b.Periodic[d] {
			continue
		}
		L := b.Hi[d] - b.Lo[d]
		for dx[d] > L/2 {
			dx[d] -= L
		}
		for dx[d] < -L/2 {
			dx[d] += L
		}
	}
}

// lane is one worker's private scratch state: a result/force buffer,
// accumulated potential and virial, and a force-delta table indexed by
// local particle index. Generalizes the teacher's per-worker scratch
// buffer checked out under a mutex (go/read_guppy.go's
// worker/getWorker/finishWorker), here pre-allocated once per lane
// instead of pooled, since lane count is fixed per Compute call.
type lane struct {
	forceDelta []float64 // dim * capacity, flattened per-particle accumulation
	potential  float64
	virial     float64
}

// pairIdx is one candidate interaction discovered by the neighbor index,
// named by local particle index.
type pairIdx struct{ i, j int32 }

// Report summarizes one Compute pass, for the orchestrator's energy
// bookkeeping and any observer modifier.
type Report struct {
	Potential float64
	Virial    float64
}

// NeighborIndex is the narrow read interface Compute needs from a
// cellgrid.Index, kept here (rather than importing cellgrid directly)
// so kernel does not need to know about cell lattices at all.
type NeighborIndex interface {
	Pairs(visit func(i, j int))
}

// Compute evaluates every candidate pair the neighbor index reports,
// partitioning the materialized pair list into contiguous chunks
// processed concurrently by an errgroup.Group -- "SIMD lanes" over
// contiguous pair-list slices, per spec.md §5 -- with each lane
// accumulating into a private force buffer to avoid write races on
// shared particles, folded back with a fixed left-to-right order so
// repeated runs are bit-reproducible. Potential/virial are reduced with
// gonum/floats.Sum over the per-lane totals for the same reason.
func Compute(store *particle.Store, idx NeighborIndex, d *Dispatcher, bounds Bounds, lanes int) (Report, error) {
	if lanes < 1 {
		lanes = 1
	}

	var pairs []pairIdx
	idx.Pairs(func(i, j int) {
		ti, tj := store.Type(i), store.Type(j)
		if ti < 0 || tj < 0 {
			return // tombstoned slot still resident in a stale bucket
		}
		if !d.Interacts(ti, tj) {
			return
		}
		pairs = append(pairs, pairIdx{int32(i), int32(j)})
	})
	if len(pairs) == 0 {
		return Report{}, nil
	}

	dim := store.Dim()
	n := store.Size()
	laneBufs := make([]*lane, lanes)
	for l := range laneBufs {
		laneBufs[l] = &lane{forceDelta: make([]float64, n*dim)}
	}

	chunk := (len(pairs) + lanes - 1) / lanes
	g, _ := errgroup.WithContext(context.Background())
	for l := 0; l < lanes; l++ {
		l := l
		start := l * chunk
		if start >= len(pairs) {
			continue
		}
		end := start + chunk
		if end > len(pairs) {
			end = len(pairs)
		}
		g.Go(func() error {
			return evaluateChunk(store, d, bounds, pairs[start:end], laneBufs[l], dim)
		})
	}
	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	// Fold back in a fixed lane order for determinism.
	buf := make([]float64, dim)
	potentials := make([]float64, lanes)
	virials := make([]float64, lanes)
	for l, lb := range laneBufs {
		potentials[l] = lb.potential
		virials[l] = lb.virial
		for i := 0; i < n; i++ {
			base := i * dim
			nonzero := false
			for d := 0; d < dim; d++ {
				buf[d] = lb.forceDelta[base+d]
				if buf[d] != 0 {
					nonzero = true
				}
			}
			if nonzero {
				store.AddF(i, buf)
			}
		}
	}

	return Report{
		Potential: floats.Sum(potentials),
		Virial:    floats.Sum(virials),
	}, nil
}

func evaluateChunk(store *particle.Store, d *Dispatcher, bounds Bounds, chunk []pairIdx, lb *lane, dim int) error {
	xi := make([]float64, dim)
	xj := make([]float64, dim)
	vi := make([]float64, dim)
	vj := make([]float64, dim)
	dx := make([]float64, dim)
	force := make([]float64, dim)
	result := &Result{ForceOnI: force}

	for _, pr := range chunk {
		i, j := int(pr.i), int(pr.j)
		ti, tj := store.Type(i), store.Type(j)
		k := d.KernelFor(ti, tj)
		if k == nil {
			continue
		}
		store.X(i, xi)
		store.X(j, xj)
		for dd := 0; dd < dim; dd++ {
			dx[dd] = xi[dd] - xj[dd]
		}
		bounds.minimumImage(dx)

		var distSq float64
		for dd := 0; dd < dim; dd++ {
			distSq += dx[dd] * dx[dd]
		}
		store.V(i, vi)
		store.V(j, vj)

		p := Pair{
			Dim:    dim,
			Dx:     dx,
			Dist:   math.Sqrt(distSq),
			SigmaI: store.Sigma(i),
			SigmaJ: store.Sigma(j),
			VI:     vi,
			VJ:     vj,
		}
		if p.Dist <= 0 {
			return errs.Internal(errs.NanValue, "zero-distance pair (%d,%d)", i, j)
		}
		k.Evaluate(p, result)

		base := i * dim
		baseJ := j * dim
		for dd := 0; dd < dim; dd++ {
			lb.forceDelta[base+dd] += force[dd]
			lb.forceDelta[baseJ+dd] -= force[dd]
		}
		lb.potential += result.Potential
		lb.virial += result.Virial
	}
	return nil
}
