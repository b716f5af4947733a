/*Package integrate implements grainflow's time integrator: Velocity-Verlet
and overdamped half-kick/drift rules, and the adaptive time-step
controller from spec.md §4.4.
*/
package integrate

import (
	"math"

	"github.com/phil-mansfield/grainflow/internal/errs"
	"github.com/phil-mansfield/grainflow/internal/particle"
)

// Kind selects the stepping rule.
type Kind int

const (
	VelocityVerlet Kind = iota
	Overdamped
)

// Config holds an integrator's fixed parameters (spec.md §4.4).
type Config struct {
	Kind Kind

	Dt    float64
	MinDt float64
	MaxDt float64

	// Gamma is the mobility coefficient used by Overdamped (x += gamma *
	// im * f * dt); unused by VelocityVerlet.
	Gamma float64

	// Adaptive enables the step-size controller below.
	Adaptive    bool
	StepDelay   int // recompute candidate Δt every StepDelay steps
	TargetSteps float64
	LChar       float64 // characteristic length, the mean radius at run start
}

// Integrator advances a particle.Store's velocities and positions
// through one step's half-kicks/drift, per spec.md §4.4/§4.5's phase
// sequence (PreForces does the first half-kick + drift for
// Velocity-Verlet; PostForces does the second half-kick, or the entire
// overdamped update).
type Integrator struct {
	cfg   Config
	dt    float64
	steps int
}

// New returns an Integrator with its starting Δt taken from cfg.Dt (or,
// if Dt is unset and Adaptive is on, cfg.MaxDt as a conservative
// starting point).
func New(cfg Config) *Integrator {
	dt := cfg.Dt
	if dt <= 0 && cfg.Adaptive {
		dt = cfg.MaxDt
	}
	return &Integrator{cfg: cfg, dt: dt}
}

// Dt returns the integrator's current time step.
func (it *Integrator) Dt() float64 { return it.dt }

// PreForces applies Velocity-Verlet's first half-kick and drift
// (v += dt/2 * im * f; x += dt * v). Overdamped has no pre-forces work:
// its whole update happens post-forces, once the new force is known.
func (it *Integrator) PreForces(s *particle.Store) {
	if it.cfg.Kind != VelocityVerlet {
		return
	}
	dim := s.Dim()
	f := make([]float64, dim)
	v := make([]float64, dim)
	x := make([]float64, dim)
	half := it.dt / 2
	for i := 0; i < s.Number(); i++ {
		s.F(i, f)
		s.V(i, v)
		im := s.InvMass(i)
		for d := 0; d < dim; d++ {
			v[d] += half * im * f[d]
		}
		s.SetV(i, v)

		s.X(i, x)
		for d := 0; d < dim; d++ {
			x[d] += it.dt * v[d]
		}
		s.SetX(i, x)
	}
}

// PostForces applies Velocity-Verlet's second half-kick, or the entire
// overdamped drift (x += gamma * im * f * dt) now that the step's force
// is known.
func (it *Integrator) PostForces(s *particle.Store) {
	dim := s.Dim()
	f := make([]float64, dim)
	switch it.cfg.Kind {
	case VelocityVerlet:
		v := make([]float64, dim)
		half := it.dt / 2
		for i := 0; i < s.Number(); i++ {
			s.F(i, f)
			s.V(i, v)
			im := s.InvMass(i)
			for d := 0; d < dim; d++ {
				v[d] += half * im * f[d]
			}
			s.SetV(i, v)
		}
	case Overdamped:
		x := make([]float64, dim)
		for i := 0; i < s.Number(); i++ {
			s.F(i, f)
			s.X(i, x)
			im := s.InvMass(i)
			for d := 0; d < dim; d++ {
				x[d] += it.cfg.Gamma * im * f[d] * it.dt
			}
			s.SetX(i, x)
		}
	}
}

// AdvanceStepCount marks that one full step has elapsed, for
// StepDelay-gated recomputation of the adaptive Δt.
func (it *Integrator) AdvanceStepCount() { it.steps++ }

// MaybeAdapt recomputes Δt from the current velocity/force extrema every
// StepDelay steps, per spec.md §4.4. globalMin, if non-nil, is called
// with the locally-candidate Δt and must return the cross-node minimum
// (the single-node default is the identity function); this is the
// integrator's half of the §5 cross-node reduction point.
func (it *Integrator) MaybeAdapt(s *particle.Store, globalMin func(float64) float64) error {
	if !it.cfg.Adaptive {
		return nil
	}
	delay := it.cfg.StepDelay
	if delay < 1 {
		delay = 1
	}
	if it.steps%delay != 0 {
		return nil
	}

	dim := s.Dim()
	sqrtD := math.Sqrt(float64(dim))
	v := make([]float64, dim)
	f := make([]float64, dim)

	var vMax, aMax float64
	for i := 0; i < s.Number(); i++ {
		s.V(i, v)
		speed := norm(v, dim) * sqrtD
		if speed > vMax || math.IsNaN(speed) {
			vMax = speed
		}
		s.F(i, f)
		im := s.InvMass(i)
		accel := norm(f, dim) * im * sqrtD
		if accel > aMax || math.IsNaN(accel) {
			aMax = accel
		}
	}
	if math.IsNaN(vMax) || math.IsNaN(aMax) {
		return errs.Internal(errs.NanValue, "adaptive time-step controller observed NaN (v_max=%g a_max=%g)", vMax, aMax)
	}

	lChar := it.cfg.LChar
	if lChar <= 0 {
		lChar = 1
	}
	target := it.cfg.TargetSteps
	if target <= 0 {
		target = 1
	}

	var dtV, dtA = math.Inf(1), math.Inf(1)
	if vMax > 0 {
		dtV = lChar / (vMax * target)
	}
	if aMax > 0 {
		dtA = 10 * math.Sqrt(lChar) / (aMax * target)
	}
	dtC := math.Min(dtV, dtA)
	if math.IsInf(dtC, 1) {
		return nil // no motion and no forces yet; keep the current Δt
	}

	var next float64
	if dtC < it.dt {
		next = dtC
	} else {
		next = 0.9*it.dt + 0.1*dtC
	}
	if it.cfg.MinDt > 0 && next < it.cfg.MinDt {
		next = it.cfg.MinDt
	}
	if it.cfg.MaxDt > 0 && next > it.cfg.MaxDt {
		next = it.cfg.MaxDt
	}
	if globalMin != nil {
		next = globalMin(next)
	}
	it.dt = next
	return nil
}

func norm(v []float64, dim int) float64 {
	var s float64
	for d := 0; d < dim; d++ {
		s += v[d] * v[d]
	}
	return math.Sqrt(s)
}
