package modifier

import "testing"

import "github.com/phil-mansfield/grainflow/internal/particle"

func newStore(t *testing.T) *particle.Store {
	t.Helper()
	s := particle.New(1, particle.SOA, 4)
	if _, err := s.AddParticle([]float64{0.5}, []float64{0}, 0.1, 1.0, 0, 1); err != nil {
		t.Fatalf("AddParticle: %v", err)
	}
	return s
}

func TestFlowPushesTowardTargetProfile(t *testing.T) {
	s := newStore(t)
	m := &Flow{Store: s, Lo: 0, Hi: 1, Drag: 1}
	m.PreForces()
	f := make([]float64, 1)
	s.F(0, f)
	// At the domain center, target velocity is 1 and actual velocity is
	// 0, so drag should push the force in the positive direction.
	if f[0] <= 0 {
		t.Fatalf("Flow force = %v, want positive push toward target velocity", f)
	}
}

func TestConstantAccelerationScalesByMass(t *testing.T) {
	s := newStore(t)
	m := &ConstantAcceleration{Store: s, Accel: []float64{2}}
	m.PostForces()
	f := make([]float64, 1)
	s.F(0, f)
	if f[0] != 2 { // invMass == 1 here, so force == accel
		t.Fatalf("force = %v, want 2", f)
	}
}

func TestLinearVelocityDampingOpposesVelocity(t *testing.T) {
	s := newStore(t)
	s.SetV(0, []float64{3})
	m := &LinearVelocityDamping{Store: s, Gamma: 0.5}
	m.PostForces()
	f := make([]float64, 1)
	s.F(0, f)
	if f[0] >= 0 {
		t.Fatalf("damping force = %v, want negative (opposing positive velocity)", f)
	}
}

func TestVelocityLimiterClampsSpeed(t *testing.T) {
	s := newStore(t)
	s.SetV(0, []float64{10})
	m := &VelocityLimiter{Store: s, MaxSpeed: 2}
	m.PostStep()
	v := make([]float64, 1)
	s.V(0, v)
	if v[0] != 2 {
		t.Fatalf("v = %v, want clamped to 2", v)
	}
}

func TestDeathMarksOutOfBoundsParticles(t *testing.T) {
	s := newStore(t)
	s.SetX(0, []float64{5})
	m := &Death{Store: s, Bounds: []struct{ Lo, Hi float64 }{{Lo: 0, Hi: 1}}}
	m.PreStep()
	s.DoParticleRemoval()
	if s.Number() != 0 {
		t.Fatalf("Number() = %d, want 0 after removing out-of-bounds particle", s.Number())
	}
}
