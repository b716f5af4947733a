/*Package body implements grainflow's optional rigid-body correction step
(spec.md §4.5's `bodies.correct`): a set of particle indices constrained
to move as one rigid whole. This has no counterpart in the teacher
(`phil-mansfield/guppy` has no rigid-body notion); it is new, grounded on
the angular degrees of freedom (`omega`, `torque`, `invII`) the original
engine already carries per-particle (original_source/GFlowSim/Particle.h)
but which spec.md's distillation does not wire into a concrete component.

The per-step correction recomputes each body's center-of-mass velocity
and angular velocity from its constituent particles' current velocities,
then overwrites those velocities with the rigid-consistent ones (v_com +
omega x r), damping out any constraint drift introduced by the
force/integration phases since the last correction. For 3 dimensions the
angular velocity is recovered from the inertia tensor with a small
gonum/mat linear solve (I * omega = L); 2 dimensions use the scalar
reduction of the same equation directly, since a 2x2 "rotation" only has
one degree of freedom and a 1x1 solve is not worth going through mat for.
*/
package body

import (
	"gonum.org/v1/gonum/mat"

	"github.com/phil-mansfield/grainflow/internal/errs"
	"github.com/phil-mansfield/grainflow/internal/particle"
)

// Body is one rigid collection of particle local indices. Indices must
// stay valid for the duration of a single orchestrator step; callers
// that keep a Body across steps are responsible for remapping it after
// any particle.Store compaction (DoParticleRemoval/SortBy).
type Body struct {
	Indices []int
}

// Correct enforces rigidity on every body: it computes each body's
// center-of-mass velocity and angular velocity from the particles'
// current velocities and positions, then resets every constituent
// particle's velocity to the rigid-consistent value. Only dim 2 and 3
// are supported; other dimensions return a BadDimension error (an empty
// bodies list is a no-op in any dimension and returns nil), since
// general-D rigid rotation is a bivector quantity with no single
// "angular velocity vector" interpretation worth the complexity for a
// feature already outside spec scope.
func Correct(s *particle.Store, bodies []Body) error {
	dim := s.Dim()
	if dim != 2 && dim != 3 {
		if len(bodies) == 0 {
			return nil
		}
		return errs.Internal(errs.BadDimension,
			"body.Correct: rigid-body correction only supports dim 2 or 3, got %d", dim)
	}
	for _, b := range bodies {
		if len(b.Indices) < 2 {
			continue
		}
		if dim == 2 {
			correct2D(s, b)
		} else {
			if err := correct3D(s, b); err != nil {
				return err
			}
		}
	}
	return nil
}

func bodyMassAndCOM(s *particle.Store, b Body, dim int) (mass float64, com []float64) {
	com = make([]float64, dim)
	x := make([]float64, dim)
	for _, i := range b.Indices {
		m := massOf(s, i)
		s.X(i, x)
		mass += m
		for d := 0; d < dim; d++ {
			com[d] += m * x[d]
		}
	}
	if mass > 0 {
		for d := 0; d < dim; d++ {
			com[d] /= mass
		}
	}
	return mass, com
}

func massOf(s *particle.Store, i int) float64 {
	im := s.InvMass(i)
	if im <= 0 {
		return 0
	}
	return 1 / im
}

func correct2D(s *particle.Store, b Body) {
	dim := 2
	mass, com := bodyMassAndCOM(s, b, dim)
	if mass <= 0 {
		return
	}

	x := make([]float64, dim)
	v := make([]float64, dim)
	var vCom [2]float64
	var inertia, angMom float64
	r := make([]float64, dim)

	for _, i := range b.Indices {
		m := massOf(s, i)
		s.V(i, v)
		vCom[0] += m * v[0]
		vCom[1] += m * v[1]
	}
	vCom[0] /= mass
	vCom[1] /= mass

	for _, i := range b.Indices {
		m := massOf(s, i)
		s.X(i, x)
		s.V(i, v)
		r[0], r[1] = x[0]-com[0], x[1]-com[1]
		relV0, relV1 := v[0]-vCom[0], v[1]-vCom[1]
		inertia += m * (r[0]*r[0] + r[1]*r[1])
		angMom += m * (r[0]*relV1 - r[1]*relV0)
	}
	if inertia <= 0 {
		return
	}
	omega := angMom / inertia

	for _, i := range b.Indices {
		s.X(i, x)
		r[0], r[1] = x[0]-com[0], x[1]-com[1]
		newV := []float64{vCom[0] - omega*r[1], vCom[1] + omega*r[0]}
		s.SetV(i, newV)
	}
}

func correct3D(s *particle.Store, b Body) error {
	dim := 3
	mass, com := bodyMassAndCOM(s, b, dim)
	if mass <= 0 {
		return nil
	}

	x := make([]float64, dim)
	v := make([]float64, dim)
	var vCom [3]float64
	for _, i := range b.Indices {
		m := massOf(s, i)
		s.V(i, v)
		for d := 0; d < dim; d++ {
			vCom[d] += m * v[d]
		}
	}
	for d := 0; d < dim; d++ {
		vCom[d] /= mass
	}

	I := mat.NewDense(3, 3, nil)
	L := mat.NewVecDense(3, nil)
	r := make([]float64, dim)

	for _, i := range b.Indices {
		m := massOf(s, i)
		s.X(i, x)
		s.V(i, v)
		for d := 0; d < dim; d++ {
			r[d] = x[d] - com[d]
		}
		relV := [3]float64{v[0] - vCom[0], v[1] - vCom[1], v[2] - vCom[2]}

		rSq := r[0]*r[0] + r[1]*r[1] + r[2]*r[2]
		for a := 0; a < 3; a++ {
			for bIdx := 0; bIdx < 3; bIdx++ {
				delta := 0.0
				if a == bIdx {
					delta = 1
				}
				I.Set(a, bIdx, I.At(a, bIdx)+m*(rSq*delta-r[a]*r[bIdx]))
			}
		}

		cross := [3]float64{
			r[1]*relV[2] - r[2]*relV[1],
			r[2]*relV[0] - r[0]*relV[2],
			r[0]*relV[1] - r[1]*relV[0],
		}
		for d := 0; d < 3; d++ {
			L.SetVec(d, L.AtVec(d)+m*cross[d])
		}
	}

	var omega mat.VecDense
	if err := omega.SolveVec(I, L); err != nil {
		// A degenerate (collinear) body has a singular inertia tensor
		// about one axis; leave velocities untouched rather than fail
		// the whole step over an underdetermined rotation.
		return nil
	}

	for _, i := range b.Indices {
		s.X(i, x)
		for d := 0; d < dim; d++ {
			r[d] = x[d] - com[d]
		}
		om := [3]float64{omega.AtVec(0), omega.AtVec(1), omega.AtVec(2)}
		newV := []float64{
			vCom[0] + om[1]*r[2] - om[2]*r[1],
			vCom[1] + om[2]*r[0] - om[0]*r[2],
			vCom[2] + om[0]*r[1] - om[1]*r[0],
		}
		s.SetV(i, newV)
	}
	return nil
}
