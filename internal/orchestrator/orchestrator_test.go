package orchestrator

import (
	"testing"

	"github.com/phil-mansfield/grainflow/internal/cellgrid"
	"github.com/phil-mansfield/grainflow/internal/config"
	"github.com/phil-mansfield/grainflow/internal/integrate"
	"github.com/phil-mansfield/grainflow/internal/kernel"
	"github.com/phil-mansfield/grainflow/internal/particle"
)

func newTestOrchestrator(t *testing.T, boundary config.BoundaryKind) (*Orchestrator, *particle.Store) {
	t.Helper()
	store := particle.New(1, particle.SOA, 8)
	if _, err := store.AddParticle([]float64{0.2}, []float64{0}, 0.5, 1.0, 0, 1); err != nil {
		t.Fatalf("AddParticle: %v", err)
	}
	if _, err := store.AddParticle([]float64{0.9}, []float64{0}, 0.5, 1.0, 0, 1); err != nil {
		t.Fatalf("AddParticle: %v", err)
	}

	idx := cellgrid.NewIndex([]cellgrid.Range{{Lo: 0, Hi: 1}}, []bool{boundary == config.BoundaryWrap}, 1.0, 0.5, 1.0)

	disp := kernel.NewDispatcher(1)
	if err := disp.Register(0, 0, kernel.HardSphere{Repulsion: 10}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	integ := integrate.New(integrate.Config{Kind: integrate.VelocityVerlet, Dt: 1e-3, MaxDt: 1e-3, MinDt: 1e-3})

	o := New(Config{
		Store:         store,
		Index:         idx,
		Dispatcher:    disp,
		Integrator:    integ,
		Lanes:         1,
		Bounds:        []cellgrid.Range{{Lo: 0, Hi: 1}},
		BoundaryKinds: []config.BoundaryKind{boundary},
		Params:        BoundaryParams{RepulseK: 50, RepulseGamma: 1},
	})
	return o, store
}

func TestStepAdvancesClockAndBuildsNeighbors(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.BoundaryOpen)
	rep, err := o.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if rep.Iterations != 1 {
		t.Fatalf("Iterations = %d, want 1", rep.Iterations)
	}
	if rep.Elapsed <= 0 {
		t.Fatalf("Elapsed did not advance")
	}
	if !rep.Rebuilt {
		t.Fatalf("first step should rebuild the neighbor index")
	}
}

func TestStepAppliesReflectBoundary(t *testing.T) {
	o, store := newTestOrchestrator(t, config.BoundaryReflect)
	// Push particle 0 out past the lower face; the next Step should
	// mirror it back inside and flip its velocity.
	store.SetX(0, []float64{-0.1})
	store.SetV(0, []float64{-1.0})

	if _, err := o.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}

	x := make([]float64, 1)
	v := make([]float64, 1)
	store.X(0, x)
	store.V(0, v)
	if x[0] < 0 {
		t.Fatalf("particle 0 still outside lower bound: x=%v", x)
	}
	if v[0] <= 0 {
		t.Fatalf("reflected particle should have a positive (inward) velocity, got %v", v)
	}
}

func TestStepFoldsInteractionForces(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.BoundaryOpen)
	rep, err := o.Step()
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	// The two overlapping particles (sigma 0.5 each, separated by 0.7)
	// should generate a positive hard-sphere potential.
	if rep.Potential <= 0 {
		t.Fatalf("expected positive overlap potential, got %v", rep.Potential)
	}
}

func TestRunStopsAtRequestedTime(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.BoundaryOpen)
	steps := 0
	if err := o.Run(5e-3, func(Report) { steps++ }); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if steps < 4 || steps > 6 {
		t.Fatalf("Run executed %d steps, want ~5", steps)
	}
	if o.Elapsed() < 5e-3 {
		t.Fatalf("Elapsed = %v, want >= 5e-3", o.Elapsed())
	}
}

type haltingObserver struct{ afterSteps, seen int }

func (h *haltingObserver) PostStep() {
	h.seen++
}

func TestModifierCapabilitiesAreOptional(t *testing.T) {
	o, _ := newTestOrchestrator(t, config.BoundaryOpen)
	obs := &haltingObserver{}
	o.observers = append(o.observers, obs)
	if _, err := o.Step(); err != nil {
		t.Fatalf("Step: %v", err)
	}
	if obs.seen != 1 {
		t.Fatalf("PostStep hook fired %d times, want 1", obs.seen)
	}
}
