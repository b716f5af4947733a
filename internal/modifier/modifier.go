/*Package modifier implements spec.md §4.6's per-step hooks: small,
optional behaviors that plug into the orchestrator's modifier list via
the phase-hook capability set (see internal/orchestrator/hooks.go).
Each modifier here is grounded on one of GFlowSim's modifiers/
(allmodifiers.hpp's include list names Flow, ConstantAcceleration,
LinearVelocityDamping, Death, VelocityLimiter, ...; only flow.cpp
survived the source filter, so Flow's formula is taken directly from
it and the others are built from the same "read state, nudge force or
velocity, write back" shape flow.cpp demonstrates).
*/
package modifier

import (
	"math"

	"github.com/phil-mansfield/grainflow/internal/particle"
)

// Flow pushes particles toward a parabolic target velocity profile
// along dimension 0 (drag proportional to the gap between actual and
// target velocity, scaled by each particle's radius), grounded
// verbatim on GFlowSim's modifiers/flow.cpp Flow::pre_forces.
type Flow struct {
	Store  *particle.Store
	Lo, Hi float64 // domain extent along dimension 0
	Drag   float64
}

func (m *Flow) PreForces() {
	width := m.Hi - m.Lo
	if width <= 0 {
		return
	}
	dim := m.Store.Dim()
	x := make([]float64, dim)
	v := make([]float64, dim)
	f := make([]float64, dim)
	for i := 0; i < m.Store.Number(); i++ {
		m.Store.X(i, x)
		m.Store.V(i, v)
		sigma := m.Store.Sigma(i)
		rel := (x[0] - 0.5*(m.Lo+m.Hi)) / width
		target := 1 - 4*rel*rel
		for k := range f {
			f[k] = 0
		}
		f[0] = m.Drag * (target - v[0]) * sigma
		m.Store.AddF(i, f)
	}
}

// ConstantAcceleration adds a fixed acceleration (e.g. gravity) to
// every movable particle's force, applied as force = mass*accel =
// accel/invMass.
type ConstantAcceleration struct {
	Store *particle.Store
	Accel []float64
}

func (m *ConstantAcceleration) PostForces() {
	dim := m.Store.Dim()
	f := make([]float64, dim)
	for i := 0; i < m.Store.Number(); i++ {
		im := m.Store.InvMass(i)
		if im <= 0 {
			continue
		}
		for d := 0; d < dim; d++ {
			f[d] = m.Accel[d] / im
		}
		m.Store.AddF(i, f)
	}
}

// LinearVelocityDamping subtracts a force proportional to velocity
// (Stokes-like drag) from every particle, every step.
type LinearVelocityDamping struct {
	Store *particle.Store
	Gamma float64
}

func (m *LinearVelocityDamping) PostForces() {
	dim := m.Store.Dim()
	v := make([]float64, dim)
	f := make([]float64, dim)
	for i := 0; i < m.Store.Number(); i++ {
		m.Store.V(i, v)
		for d := 0; d < dim; d++ {
			f[d] = -m.Gamma * v[d]
		}
		m.Store.AddF(i, f)
	}
}

// VelocityLimiter clamps each particle's speed to MaxSpeed, preventing
// a single badly-placed overlap from injecting an unphysical velocity
// spike into the rest of the system.
type VelocityLimiter struct {
	Store    *particle.Store
	MaxSpeed float64
}

func (m *VelocityLimiter) PostStep() {
	if m.MaxSpeed <= 0 {
		return
	}
	dim := m.Store.Dim()
	v := make([]float64, dim)
	for i := 0; i < m.Store.Number(); i++ {
		m.Store.V(i, v)
		var speedSq float64
		for d := 0; d < dim; d++ {
			speedSq += v[d] * v[d]
		}
		if speedSq <= m.MaxSpeed*m.MaxSpeed {
			continue
		}
		scale := m.MaxSpeed / math.Sqrt(speedSq)
		for d := 0; d < dim; d++ {
			v[d] *= scale
		}
		m.Store.SetV(i, v)
	}
}

// Death marks any particle that has drifted past the given bounds
// along any dimension for removal, grounded on GFlowSim's Death
// modifier (allmodifiers.hpp) and wired through the particle store's
// tombstone path (spec.md §3's mark_for_removal).
type Death struct {
	Store  *particle.Store
	Bounds []struct{ Lo, Hi float64 }
}

func (m *Death) PreStep() {
	dim := m.Store.Dim()
	x := make([]float64, dim)
	for i := 0; i < m.Store.Number(); i++ {
		m.Store.X(i, x)
		for d := 0; d < dim && d < len(m.Bounds); d++ {
			if x[d] < m.Bounds[d].Lo || x[d] > m.Bounds[d].Hi {
				m.Store.MarkForRemoval(i)
				break
			}
		}
	}
}
