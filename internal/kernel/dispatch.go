package kernel

import "github.com/phil-mansfield/grainflow/internal/errs"

// Dispatcher holds the does_interact/kernel type-pair matrices from
// spec.md §5: for each unordered pair of particle types, whether they
// interact at all, and if so which Kernel governs them.
type Dispatcher struct {
	ntypes    int
	interacts [][]bool
	kernels   [][]Kernel
}

// NewDispatcher returns a Dispatcher with no registered interactions for
// ntypes particle types.
func NewDispatcher(ntypes int) *Dispatcher {
	interacts := make([][]bool, ntypes)
	kernels := make([][]Kernel, ntypes)
	for i := range interacts {
		interacts[i] = make([]bool, ntypes)
		kernels[i] = make([]Kernel, ntypes)
	}
	return &Dispatcher{ntypes: ntypes, interacts: interacts, kernels: kernels}
}

// Register assigns k to the unordered pair (ti, tj), symmetrically.
func (d *Dispatcher) Register(ti, tj int, k Kernel) error {
	if ti < 0 || ti >= d.ntypes || tj < 0 || tj >= d.ntypes {
		return errs.Internal(errs.BadArgument,
			"Register: type pair (%d,%d) out of range for ntypes=%d", ti, tj, d.ntypes)
	}
	d.interacts[ti][tj] = true
	d.interacts[tj][ti] = true
	d.kernels[ti][tj] = k
	d.kernels[tj][ti] = k
	return nil
}

// Interacts reports whether particles of types ti and tj interact at
// all.
func (d *Dispatcher) Interacts(ti, tj int) bool { return d.interacts[ti][tj] }

// KernelFor returns the kernel governing types (ti, tj), or nil if they
// do not interact.
func (d *Dispatcher) KernelFor(ti, tj int) Kernel { return d.kernels[ti][tj] }

// MaxCutoff returns the largest cutoff distance over every registered
// pair, given each type's representative radius (used to size the
// neighbor index's cell width); radiusOf is typically the largest
// Template.Sigma among particles of that type.
func (d *Dispatcher) MaxCutoff(radiusOf func(typ int) float64) float64 {
	var max float64
	for i := 0; i < d.ntypes; i++ {
		for j := i; j < d.ntypes; j++ {
			k := d.kernels[i][j]
			if k == nil {
				continue
			}
			c := k.Cutoff(radiusOf(i), radiusOf(j))
			if c > max {
				max = c
			}
		}
	}
	return max
}
