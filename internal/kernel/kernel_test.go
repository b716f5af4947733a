package kernel

import (
	"math"
	"testing"

	"github.com/phil-mansfield/grainflow/internal/particle"
)

func TestHardSphereOnlyRepelsOnOverlap(t *testing.T) {
	k := HardSphere{Repulsion: 10}
	out := &Result{ForceOnI: make([]float64, 2)}

	k.Evaluate(Pair{Dim: 2, Dx: []float64{0.5, 0}, Dist: 0.5, SigmaI: 1, SigmaJ: 1}, out)
	if out.ForceOnI[0] <= 0 {
		t.Fatalf("expected repulsive (+x) force under overlap, got %v", out.ForceOnI)
	}

	k.Evaluate(Pair{Dim: 2, Dx: []float64{3, 0}, Dist: 3, SigmaI: 1, SigmaJ: 1}, out)
	if out.ForceOnI[0] != 0 || out.Potential != 0 {
		t.Fatalf("expected zero force/energy beyond contact, got %v / %g", out.ForceOnI, out.Potential)
	}
}

func TestHardSphereDissipativeDampsApproachVelocity(t *testing.T) {
	k := HardSphereDissipative{Repulsion: 0, Dissipation: 1}
	out := &Result{ForceOnI: make([]float64, 2)}
	// particles approaching along x: i moving -x, j moving +x relative
	// closing speed along the outward normal (pointing from j to i, +x).
	k.Evaluate(Pair{
		Dim: 2, Dx: []float64{0.5, 0}, Dist: 0.5, SigmaI: 1, SigmaJ: 1,
		VI: []float64{-1, 0}, VJ: []float64{1, 0},
	}, out)
	if out.ForceOnI[0] <= 0 {
		t.Fatalf("expected damping to oppose i's closing velocity (-x) with a +x force, got %v", out.ForceOnI)
	}
}

func TestShiftedLJVanishesAtCutoff(t *testing.T) {
	k := ShiftedLJ{Epsilon: 1, CutoffRatio: 2.5}
	out := &Result{ForceOnI: make([]float64, 2)}
	cutoff := k.Cutoff(0.5, 0.5)

	k.Evaluate(Pair{Dim: 2, Dx: []float64{cutoff - 1e-6, 0}, Dist: cutoff - 1e-6, SigmaI: 0.5, SigmaJ: 0.5}, out)
	if math.Abs(out.Potential) > 1e-3 {
		t.Fatalf("potential at cutoff = %g, want ~0", out.Potential)
	}

	k.Evaluate(Pair{Dim: 2, Dx: []float64{cutoff + 1, 0}, Dist: cutoff + 1, SigmaI: 0.5, SigmaJ: 0.5}, out)
	if out.Potential != 0 || out.ForceOnI[0] != 0 {
		t.Fatalf("expected exactly zero beyond cutoff, got %g / %v", out.Potential, out.ForceOnI)
	}
}

func TestShiftedLJAttractiveAtModerateRange(t *testing.T) {
	k := ShiftedLJ{Epsilon: 1, CutoffRatio: 2.5}
	out := &Result{ForceOnI: make([]float64, 2)}
	sigma := 0.5
	// Near minimum (r = 2^(1/6) sigma) the force should be small; further
	// out (but still inside cutoff) the net force is attractive (-x, pulling
	// i toward j).
	r := sigma * 2.0
	k.Evaluate(Pair{Dim: 2, Dx: []float64{r, 0}, Dist: r, SigmaI: sigma, SigmaJ: sigma}, out)
	if out.ForceOnI[0] >= 0 {
		t.Fatalf("expected attractive (-x) force at r=%g, got %v", r, out.ForceOnI)
	}
}

func TestDispatcherRegisterIsSymmetric(t *testing.T) {
	d := NewDispatcher(2)
	k := HardSphere{Repulsion: 1}
	if err := d.Register(0, 1, k); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !d.Interacts(0, 1) || !d.Interacts(1, 0) {
		t.Fatalf("Register did not register both orderings")
	}
	if d.Interacts(0, 0) {
		t.Fatalf("unrelated pair reported as interacting")
	}
}

func TestDispatcherMaxCutoff(t *testing.T) {
	d := NewDispatcher(2)
	d.Register(0, 1, HardSphere{Repulsion: 1})
	got := d.MaxCutoff(func(typ int) float64 { return 1.0 })
	if got != 2.0 {
		t.Fatalf("MaxCutoff = %g, want 2.0", got)
	}
}

type listIndex struct{ pairs [][2]int }

func (l listIndex) Pairs(visit func(i, j int)) {
	for _, p := range l.pairs {
		visit(p[0], p[1])
	}
}

func TestComputeAppliesEqualAndOppositeForces(t *testing.T) {
	s := particle.New(2, particle.SOA, 4)
	s.AddParticle([]float64{0, 0}, []float64{0, 0}, 0.5, 1, 0, 1)
	s.AddParticle([]float64{0.5, 0}, []float64{0, 0}, 0.5, 1, 0, 1)

	d := NewDispatcher(1)
	if err := d.Register(0, 0, HardSphere{Repulsion: 10}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	idx := listIndex{pairs: [][2]int{{0, 1}}}
	bounds := Bounds{Lo: []float64{0, 0}, Hi: []float64{10, 10}, Periodic: []bool{false, false}}

	report, err := Compute(s, idx, d, bounds, 4)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if report.Potential <= 0 {
		t.Fatalf("Potential = %g, want > 0 for overlapping pair", report.Potential)
	}

	var f0, f1 [2]float64
	s.F(0, f0[:])
	s.F(1, f1[:])
	for d := 0; d < 2; d++ {
		if math.Abs(f0[d]+f1[d]) > 1e-9 {
			t.Fatalf("forces not equal and opposite: f0=%v f1=%v", f0, f1)
		}
	}
	if f0[0] >= 0 {
		t.Fatalf("particle 0 should be pushed in -x, got %v", f0)
	}
}
