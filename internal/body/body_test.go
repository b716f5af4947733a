package body

import (
	"math"
	"testing"

	"github.com/phil-mansfield/grainflow/internal/particle"
)

func TestCorrect2DEnforcesRigidRotation(t *testing.T) {
	s := particle.New(2, particle.SOA, 4)
	// Two equal masses on either side of the origin, given velocities
	// consistent with pure rotation about the origin at omega=1.
	s.AddParticle([]float64{1, 0}, []float64{0, 1}, 0.5, 1, 0, 1)
	s.AddParticle([]float64{-1, 0}, []float64{0, -1}, 0.5, 1, 0, 1)

	b := Body{Indices: []int{0, 1}}
	if err := Correct(s, []Body{b}); err != nil {
		t.Fatalf("Correct: %v", err)
	}

	var v0, v1 [2]float64
	s.V(0, v0[:])
	s.V(1, v1[:])
	if math.Abs(v0[1]-1) > 1e-9 || math.Abs(v0[0]) > 1e-9 {
		t.Fatalf("v0 = %v, want ~[0 1] (already-rigid motion preserved)", v0)
	}
	if math.Abs(v1[1]+1) > 1e-9 || math.Abs(v1[0]) > 1e-9 {
		t.Fatalf("v1 = %v, want ~[0 -1]", v1)
	}
}

func TestCorrect2DDampsNonRigidDrift(t *testing.T) {
	s := particle.New(2, particle.SOA, 4)
	s.AddParticle([]float64{1, 0}, []float64{1, 0}, 0.5, 1, 0, 1)
	s.AddParticle([]float64{-1, 0}, []float64{-1, 5}, 0.5, 1, 0, 1) // separating along x: inconsistent with rigidity

	b := Body{Indices: []int{0, 1}}
	if err := Correct(s, []Body{b}); err != nil {
		t.Fatalf("Correct: %v", err)
	}

	var v0, v1 [2]float64
	s.V(0, v0[:])
	s.V(1, v1[:])
	// Corrected velocities must be consistent with a single COM velocity
	// plus a single omega: v0 and v1 should now be antiparallel about the
	// COM velocity's midpoint given symmetric positions.
	comV := [2]float64{(v0[0] + v1[0]) / 2, (v0[1] + v1[1]) / 2}
	if math.Abs(comV[0]) > 1e-9 {
		t.Fatalf("unexpected COM x-velocity: %v", comV)
	}
	if math.Abs(v0[0]) > 1e-9 || math.Abs(v1[0]) > 1e-9 {
		t.Fatalf("non-rigid separating x-velocity survived: v0=%v v1=%v", v0, v1)
	}
}

func TestCorrect3DSolvesInertiaTensor(t *testing.T) {
	s := particle.New(3, particle.SOA, 4)
	s.AddParticle([]float64{1, 0, 0}, []float64{0, 1, 0}, 0.5, 1, 0, 1)
	s.AddParticle([]float64{-1, 0, 0}, []float64{0, -1, 0}, 0.5, 1, 0, 1)
	s.AddParticle([]float64{0, 1, 0}, []float64{-1, 0, 0}, 0.5, 1, 0, 1)
	s.AddParticle([]float64{0, -1, 0}, []float64{1, 0, 0}, 0.5, 1, 0, 1)

	b := Body{Indices: []int{0, 1, 2, 3}}
	if err := Correct(s, []Body{b}); err != nil {
		t.Fatalf("Correct: %v", err)
	}

	var v0 [3]float64
	s.V(0, v0[:])
	if math.Abs(v0[1]-1) > 1e-6 {
		t.Fatalf("v0 = %v, want ~[0 1 0] (rigid rotation about z preserved)", v0)
	}
}

func TestCorrectRejectsUnsupportedDimension(t *testing.T) {
	s := particle.New(1, particle.SOA, 4)
	s.AddParticle([]float64{0}, []float64{0}, 0.5, 1, 0, 1)
	s.AddParticle([]float64{1}, []float64{0}, 0.5, 1, 0, 1)

	b := Body{Indices: []int{0, 1}}
	if err := Correct(s, []Body{b}); err == nil {
		t.Fatalf("expected error for unsupported dimension 1")
	}
}

func TestCorrectIgnoresEmptyBodyList(t *testing.T) {
	s := particle.New(1, particle.SOA, 4)
	if err := Correct(s, nil); err != nil {
		t.Fatalf("Correct with no bodies should be a no-op, got %v", err)
	}
}
