package integrate

import (
	"math"
	"testing"

	"github.com/phil-mansfield/grainflow/internal/particle"
)

func TestVelocityVerletConservesEnergyOnHarmonicPair(t *testing.T) {
	s := particle.New(1, particle.SOA, 4)
	s.AddParticle([]float64{0}, []float64{0}, 0.5, 1, 0, 1)
	s.AddParticle([]float64{1}, []float64{0}, 0.5, 1, 0, 1)

	const k = 4.0
	it := New(Config{Kind: VelocityVerlet, Dt: 1e-4})

	energy := func() float64 {
		var x0, x1 [1]float64
		var v0, v1 [1]float64
		s.X(0, x0[:])
		s.X(1, x1[:])
		s.V(0, v0[:])
		s.V(1, v1[:])
		r := x1[0] - x0[0]
		pe := 0.5 * k * r * r
		ke := 0.5*v0[0]*v0[0] + 0.5*v1[0]*v1[0]
		return pe + ke
	}
	applyForce := func() {
		var x0, x1 [1]float64
		s.X(0, x0[:])
		s.X(1, x1[:])
		r := x1[0] - x0[0]
		f := k * r
		s.SetF(0, []float64{f})
		s.SetF(1, []float64{-f})
	}

	applyForce()
	e0 := energy()
	for step := 0; step < 2000; step++ {
		it.PreForces(s)
		applyForce()
		it.PostForces(s)
	}
	e1 := energy()
	if math.Abs(e1-e0) > 1e-3 {
		t.Fatalf("energy drifted from %g to %g over 2000 steps", e0, e1)
	}
}

func TestOverdampedMovesTowardForce(t *testing.T) {
	s := particle.New(1, particle.SOA, 4)
	s.AddParticle([]float64{0}, []float64{0}, 0.5, 1, 0, 1)
	s.SetF(0, []float64{2})

	it := New(Config{Kind: Overdamped, Dt: 0.1, Gamma: 1})
	it.PostForces(s)

	var x [1]float64
	s.X(0, x[:])
	if x[0] <= 0 {
		t.Fatalf("overdamped particle did not move toward the force: x=%v", x)
	}
}

func TestMaybeAdaptShrinksOnHighSpeed(t *testing.T) {
	s := particle.New(1, particle.SOA, 4)
	s.AddParticle([]float64{0}, []float64{100}, 0.5, 1, 0, 1)

	it := New(Config{
		Kind: VelocityVerlet, Dt: 1.0, MinDt: 1e-6, MaxDt: 1.0,
		Adaptive: true, StepDelay: 1, TargetSteps: 10, LChar: 1,
	})
	if err := it.MaybeAdapt(s, nil); err != nil {
		t.Fatalf("MaybeAdapt: %v", err)
	}
	if it.Dt() >= 1.0 {
		t.Fatalf("Dt did not shrink under high speed: %g", it.Dt())
	}
}

func TestMaybeAdaptNaNIsFatal(t *testing.T) {
	s := particle.New(1, particle.SOA, 4)
	s.AddParticle([]float64{0}, []float64{math.NaN()}, 0.5, 1, 0, 1)

	it := New(Config{Kind: VelocityVerlet, Dt: 0.01, Adaptive: true, StepDelay: 1, TargetSteps: 1, LChar: 1})
	if err := it.MaybeAdapt(s, nil); err == nil {
		t.Fatalf("expected NaN error from MaybeAdapt")
	}
}

func TestMaybeAdaptRespectsGlobalMin(t *testing.T) {
	s := particle.New(1, particle.SOA, 4)
	s.AddParticle([]float64{0}, []float64{1}, 0.5, 1, 0, 1)

	it := New(Config{
		Kind: VelocityVerlet, Dt: 1.0, MinDt: 1e-6, MaxDt: 1.0,
		Adaptive: true, StepDelay: 1, TargetSteps: 1, LChar: 1,
	})
	called := false
	it.MaybeAdapt(s, func(local float64) float64 {
		called = true
		return local / 2
	})
	if !called {
		t.Fatalf("globalMin hook was not invoked")
	}
}
