/*Package particle implements the layout-agnostic particle store: spec.md
§3/§4.1's component A. It owns all per-particle state (position, velocity,
force, radius, inverse mass, type, global id, and any user-defined
scalar/vector/integer fields), and provides the lifecycle operations that
the rest of the engine drives the store through: AddParticle,
MarkForRemoval/DoParticleRemoval, SortBy, the halo/ghost lifecycle, and the
request-by-name accessors for optional fields.
*/
package particle

import (
	"fmt"
	"sort"

	"github.com/phil-mansfield/grainflow/internal/errs"
	"github.com/phil-mansfield/grainflow/internal/idmap"
)

// Tombstone is the sentinel type value marking a removed particle slot.
const Tombstone int64 = -1

// Store owns all particle state for one node. Indices in [0, size) are
// partitioned as [0, firstHalo) owned+real, [firstHalo, firstGhost) local
// halo copies, [firstGhost, size) remote ghost copies (spec §3).
type Store struct {
	dim    int
	layout Layout

	capacity, size, number int
	firstHalo, firstGhost  int

	x, v, f      vectorField
	sigma, invM  scalarField
	typ, gid     integerField

	extraVec    map[string]vectorField
	extraScalar map[string]scalarField
	extraInt    map[string]integerField

	ids     *idmap.Map
	nextGID int64

	tombstones map[int]struct{}
	needsRemake bool

	// haloSource[i] gives the owned-region index a halo copy at i was
	// created from, and haloDelta[i] the lattice displacement applied.
	haloSource map[int]int
	haloDelta  map[int][]float64
}

// New returns an empty Store for dim-dimensional particles using the given
// layout, with room for at least capacity particles before its first grow.
func New(dim int, layout Layout, capacity int) *Store {
	if dim <= 0 {
		errs.ReportExternal(errs.New(errs.BadDimension, "", 0,
			"particle store dimension must be positive, got %d", dim))
	}
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		dim:         dim,
		layout:      layout,
		capacity:    capacity,
		x:           newVector(layout, dim, capacity),
		v:           newVector(layout, dim, capacity),
		f:           newVector(layout, dim, capacity),
		sigma:       newScalar(capacity),
		invM:        newScalar(capacity),
		typ:         newInteger(capacity),
		gid:         newInteger(capacity),
		extraVec:    make(map[string]vectorField),
		extraScalar: make(map[string]scalarField),
		extraInt:    make(map[string]integerField),
		ids:         idmap.New(capacity),
		tombstones:  make(map[int]struct{}),
		haloSource:  make(map[int]int),
		haloDelta:   make(map[int][]float64),
	}
}

func (s *Store) Dim() int       { return s.dim }
func (s *Store) Number() int    { return s.number }
func (s *Store) Size() int      { return s.size }
func (s *Store) Capacity() int  { return s.capacity }
func (s *Store) FirstHalo() int  { return s.firstHalo }
func (s *Store) FirstGhost() int { return s.firstGhost }
func (s *Store) NeedsRemake() bool { return s.needsRemake }
func (s *Store) ClearNeedsRemake() { s.needsRemake = false }

// growTo ensures capacity for at least n particles, growing by
// max(32, n - capacity) per spec §4.1's AddParticle contract.
func (s *Store) growTo(n int) {
	if n <= s.capacity {
		return
	}
	delta := n - s.capacity
	if delta < 32 {
		delta = 32
	}
	newCap := s.capacity + delta
	s.x.grow(newCap)
	s.v.grow(newCap)
	s.f.grow(newCap)
	s.sigma.grow(newCap)
	s.invM.grow(newCap)
	s.typ.grow(newCap)
	s.gid.grow(newCap)
	for _, vf := range s.extraVec {
		vf.grow(newCap)
	}
	for _, sf := range s.extraScalar {
		sf.grow(newCap)
	}
	for _, itf := range s.extraInt {
		itf.grow(newCap)
	}
	s.capacity = newCap
}

// AddParticle appends a new owned, real particle at the tail (spec §4.1).
// It always produces a strictly-increasing gid and never invalidates
// existing indices. ntypes is the number of registered types; typ must lie
// in [0, ntypes). Sets the needs-remake flag, since the new particle is in
// no neighbor cell yet.
func (s *Store) AddParticle(x, v []float64, sigma, invMass float64, typ int, ntypes int) (int64, error) {
	if len(x) != s.dim || len(v) != s.dim {
		return 0, errs.New(errs.BadArgument, "", 0,
			"AddParticle: vector of dimension %d, store dimension %d", len(x), s.dim)
	}
	if typ < 0 || typ >= ntypes {
		return 0, errs.New(errs.BadArgument, "", 0,
			"AddParticle: invalid type %d (ntypes=%d)", typ, ntypes)
	}
	if sigma <= 0 {
		return 0, errs.New(errs.BadArgument, "", 0,
			"AddParticle: radius must be > 0, got %g", sigma)
	}

	// Appending goes at s.firstHalo, the start of the (now-pushed-back)
	// halo/ghost suffix, so owned particles stay contiguous at the front.
	i := s.firstHalo
	s.growTo(s.size + 1)
	s.shiftSuffix(i, 1)
	s.remapHaloKeys(1)

	s.x.set(i, x)
	s.v.set(i, v)
	s.f.zero(i)
	s.sigma.set(i, sigma)
	s.invM.set(i, invMass)
	s.typ.set(i, int64(typ))

	g := s.nextGID
	s.nextGID++
	s.gid.set(i, g)
	s.ids.Put(g, i)

	s.number++
	s.firstHalo++
	s.firstGhost++
	s.size++
	s.needsRemake = true

	return g, nil
}

// shiftSuffix moves every particle at index >= at up by n slots, to make
// room for an insertion at the owned/halo boundary. Both the field data
// and the gid map are kept consistent.
func (s *Store) shiftSuffix(at, n int) {
	if at >= s.size {
		return
	}
	for i := s.size - 1; i >= at; i-- {
		s.copySlot(i, i+n)
	}
}

func (s *Store) copySlot(from, to int) {
	if from == to {
		return
	}
	buf := make([]float64, s.dim)
	s.x.get(from, buf)
	s.x.set(to, buf)
	s.v.get(from, buf)
	s.v.set(to, buf)
	s.f.get(from, buf)
	s.f.set(to, buf)
	s.sigma.set(to, s.sigma.get(from))
	s.invM.set(to, s.invM.get(from))
	s.typ.set(to, s.typ.get(from))
	g := s.gid.get(from)
	s.gid.set(to, g)
	if g >= 0 {
		s.ids.Put(g, to)
	}
	for name, vf := range s.extraVec {
		buf2 := make([]float64, vf.dim())
		vf.get(from, buf2)
		vf.set(to, buf2)
		_ = name
	}
	for _, sf := range s.extraScalar {
		sf.set(to, sf.get(from))
	}
	for _, itf := range s.extraInt {
		itf.set(to, itf.get(from))
	}
}

// MarkForRemoval tombstones particle i: sets its type to Tombstone, zeroes
// its velocity and force, erases it from the gid map, and records it for
// the next DoParticleRemoval. Idempotent.
func (s *Store) MarkForRemoval(i int) {
	if i < 0 || i >= s.firstHalo {
		return
	}
	if s.typ.get(i) == Tombstone {
		return
	}
	g := s.gid.get(i)
	if g >= 0 {
		s.ids.Delete(g)
	}
	s.typ.set(i, Tombstone)
	s.v.zero(i)
	s.f.zero(i)
	s.tombstones[i] = struct{}{}
}

// DoParticleRemoval compacts tombstoned slots by swapping in the last
// owned particle, restoring contiguity: number == the post-compaction
// owned/real count, and size shrinks to match. Sets the needs-remake flag.
func (s *Store) DoParticleRemoval() {
	if len(s.tombstones) == 0 {
		return
	}

	oldFirstHalo := s.firstHalo
	last := oldFirstHalo - 1
	for idx := range s.tombstones {
		if idx > last {
			// Already consumed by an earlier swap in this pass.
			continue
		}
		for last > idx && s.typ.get(last) == Tombstone {
			last--
		}
		if last <= idx {
			// idx is itself the last tombstone in the owned region:
			// everything from idx up is being dropped.
			last = idx - 1
			continue
		}
		s.swapOwned(idx, last)
		last--
	}

	newOwned := last + 1
	removed := oldFirstHalo - newOwned
	if removed <= 0 {
		s.tombstones = make(map[int]struct{})
		return
	}

	// Everything past newOwned up to the old owned boundary is now
	// garbage; shift the halo/ghost suffix down to close the gap.
	s.shiftSuffixDown(oldFirstHalo, newOwned, s.size)
	s.remapHaloKeys(-removed)
	s.firstHalo = newOwned
	s.firstGhost -= removed
	s.size -= removed
	s.number = newOwned

	s.tombstones = make(map[int]struct{})
	s.needsRemake = true
}

func (s *Store) swapOwned(i, j int) {
	buf := make([]float64, s.dim)
	s.x.get(i, buf)
	bufj := make([]float64, s.dim)
	s.x.get(j, bufj)
	s.x.set(i, bufj)
	s.x.set(j, buf)

	s.v.get(i, buf)
	s.v.get(j, bufj)
	s.v.set(i, bufj)
	s.v.set(j, buf)

	s.f.get(i, buf)
	s.f.get(j, bufj)
	s.f.set(i, bufj)
	s.f.set(j, buf)

	si, sj := s.sigma.get(i), s.sigma.get(j)
	s.sigma.set(i, sj)
	s.sigma.set(j, si)

	mi, mj := s.invM.get(i), s.invM.get(j)
	s.invM.set(i, mj)
	s.invM.set(j, mi)

	ti, tj := s.typ.get(i), s.typ.get(j)
	s.typ.set(i, tj)
	s.typ.set(j, ti)

	gi, gj := s.gid.get(i), s.gid.get(j)
	s.gid.set(i, gj)
	s.gid.set(j, gi)
	if gj >= 0 {
		s.ids.Put(gj, i)
	}
	if gi >= 0 {
		s.ids.Put(gi, j)
	}

	for _, vf := range s.extraVec {
		b1 := make([]float64, vf.dim())
		b2 := make([]float64, vf.dim())
		vf.get(i, b1)
		vf.get(j, b2)
		vf.set(i, b2)
		vf.set(j, b1)
	}
	for _, sf := range s.extraScalar {
		a, b := sf.get(i), sf.get(j)
		sf.set(i, b)
		sf.set(j, a)
	}
	for _, itf := range s.extraInt {
		a, b := itf.get(i), itf.get(j)
		itf.set(i, b)
		itf.set(j, a)
	}
}

// remapHaloKeys shifts every key in haloSource/haloDelta by delta, keeping
// the halo bookkeeping consistent with a uniform index shift of the
// halo/ghost suffix (an AddParticle insertion before it, or a compaction
// pass closing a gap below it).
func (s *Store) remapHaloKeys(delta int) {
	if len(s.haloSource) == 0 {
		return
	}
	newSource := make(map[int]int, len(s.haloSource))
	newDelta := make(map[int][]float64, len(s.haloDelta))
	for k, v := range s.haloSource {
		newSource[k+delta] = v
	}
	for k, v := range s.haloDelta {
		newDelta[k+delta] = v
	}
	s.haloSource = newSource
	s.haloDelta = newDelta
}

// shiftSuffixDown moves the half-open range [oldStart, end) down to start
// at newStart, used after compaction closes a gap left by removed owned
// particles.
func (s *Store) shiftSuffixDown(oldStart, newStart, end int) {
	if oldStart >= end {
		return
	}
	shift := oldStart - newStart
	for i := oldStart; i < end; i++ {
		s.copySlot(i, i-shift)
	}
}

// GetLocalID returns the current local index for a global id.
func (s *Store) GetLocalID(gid int64) (int, bool) {
	return s.ids.Get(gid)
}

// SortBy reorders owned particles by a scalar projection of position (e.g.
// a coordinate), moving every field coherently and keeping the gid map
// consistent. Stable ordering is not required, matching spec §4.1.
func (s *Store) SortBy(key func(x []float64) float64) {
	idx := make([]int, s.number)
	keys := make([]float64, s.number)
	buf := make([]float64, s.dim)
	for i := 0; i < s.number; i++ {
		idx[i] = i
		s.x.get(i, buf)
		keys[i] = key(buf)
	}
	sort.Slice(idx, func(a, b int) bool { return keys[idx[a]] < keys[idx[b]] })

	s.permuteOwned(idx)
}

// permuteOwned reorders the owned region according to perm (perm[newIdx] =
// oldIdx) by tracking, for each original index, which slot currently holds
// it, and swapping particles into place one target slot at a time.
func (s *Store) permuteOwned(perm []int) {
	owner := make([]int, len(perm))
	for i := range owner {
		owner[i] = i
	}
	locOf := make([]int, len(perm))
	for i, o := range owner {
		locOf[o] = i
	}
	for target := 0; target < len(perm); target++ {
		want := perm[target]
		cur := locOf[want]
		if cur == target {
			continue
		}
		s.swapOwned(target, cur)
		atTarget := owner[target]
		owner[target], owner[cur] = owner[cur], atTarget
		locOf[owner[target]] = target
		locOf[owner[cur]] = cur
	}
}

// RequestVectorData creates a user-defined vector field of the given
// dimension (zero-filled) if absent. It returns nothing; the field is
// addressed by name.
func (s *Store) RequestVectorData(name string, dim int) {
	if _, ok := s.extraVec[name]; ok {
		return
	}
	s.extraVec[name] = newVector(s.layout, dim, s.capacity)
}

// RequestScalarData creates a user-defined scalar field if absent.
func (s *Store) RequestScalarData(name string) {
	if _, ok := s.extraScalar[name]; ok {
		return
	}
	s.extraScalar[name] = newScalar(s.capacity)
}

// RequestIntegerData creates a user-defined integer field if absent.
func (s *Store) RequestIntegerData(name string) {
	if _, ok := s.extraInt[name]; ok {
		return
	}
	s.extraInt[name] = newInteger(s.capacity)
}

// Core accessors. Each Get writes into out (len == Dim()) to keep loads
// contiguous under both layouts without forcing an allocation per call.

func (s *Store) X(i int, out []float64)    { s.x.get(i, out) }
func (s *Store) V(i int, out []float64)    { s.v.get(i, out) }
func (s *Store) F(i int, out []float64)    { s.f.get(i, out) }
func (s *Store) SetX(i int, v []float64)   { s.x.set(i, v) }
func (s *Store) SetV(i int, v []float64)   { s.v.set(i, v) }
func (s *Store) SetF(i int, v []float64)   { s.f.set(i, v) }
func (s *Store) AddF(i int, delta []float64) { s.f.add(i, delta) }
func (s *Store) Sigma(i int) float64       { return s.sigma.get(i) }
func (s *Store) InvMass(i int) float64     { return s.invM.get(i) }
func (s *Store) Type(i int) int            { return int(s.typ.get(i)) }
func (s *Store) GID(i int) int64           { return s.gid.get(i) }

// ClearForces zeroes the force array for every owned, halo, and ghost
// particle, ahead of a new force-computation phase.
func (s *Store) ClearForces() {
	for i := 0; i < s.size; i++ {
		s.f.zero(i)
	}
}

// CreateHaloOf appends a halo copy of src displaced by delta: x[src]+delta,
// v[src], f[src], same scalar data by value, same type, gid = -1. Returns
// the new halo's local index (>= FirstHalo()).
func (s *Store) CreateHaloOf(src int, delta []float64) int {
	if len(delta) != s.dim {
		errs.ReportInternal(errs.Internal(errs.BadArgument,
			"CreateHaloOf: delta dimension %d != store dimension %d", len(delta), s.dim))
	}
	i := s.firstGhost
	s.growTo(s.size + 1)
	s.shiftSuffix(i, 1)

	buf := make([]float64, s.dim)
	s.x.get(src, buf)
	shifted := make([]float64, s.dim)
	for k := range shifted {
		shifted[k] = buf[k] + delta[k]
	}
	s.x.set(i, shifted)

	vbuf := make([]float64, s.dim)
	s.v.get(src, vbuf)
	s.v.set(i, vbuf)
	s.f.get(src, vbuf)
	s.f.set(i, vbuf)
	s.sigma.set(i, s.sigma.get(src))
	s.invM.set(i, s.invM.get(src))
	s.typ.set(i, s.typ.get(src))
	s.gid.set(i, -1)

	s.haloSource[i] = src
	s.haloDelta[i] = delta

	s.firstGhost++
	s.size++
	return i
}

// RemoveHaloAndGhostParticles clears the halo/ghost suffix, shrinking the
// size back to the owned region.
func (s *Store) RemoveHaloAndGhostParticles() {
	s.firstHalo = s.number
	s.firstGhost = s.number
	s.size = s.number
	s.haloSource = make(map[int]int)
	s.haloDelta = make(map[int][]float64)
}

// UpdateHaloParticles folds each halo's accumulated force back into its
// primary and zeroes the halo's own force, satisfying the invariant that
// halo forces feed back to primaries exactly once per step, before the
// integrator's post-force half-kick (spec §4.1, §4.5, §9).
func (s *Store) UpdateHaloParticles() {
	buf := make([]float64, s.dim)
	for i := s.firstHalo; i < s.firstGhost; i++ {
		src, ok := s.haloSource[i]
		if !ok {
			continue
		}
		s.f.get(i, buf)
		s.f.add(src, buf)
		s.f.zero(i)
	}
}

// WrapPositions folds owned and halo positions into [min, max) along each
// dimension flagged wrap[d], and is applied once per neighbor-index
// rebuild (spec §4.2's "handled once at rebuild").
func (s *Store) WrapPositions(min, max []float64, wrap []bool) {
	buf := make([]float64, s.dim)
	for i := 0; i < s.firstGhost; i++ {
		s.x.get(i, buf)
		changed := false
		for d := 0; d < s.dim; d++ {
			if !wrap[d] {
				continue
			}
			L := max[d] - min[d]
			for buf[d] < min[d] {
				buf[d] += L
				changed = true
			}
			for buf[d] >= max[d] {
				buf[d] -= L
				changed = true
			}
		}
		if changed {
			s.x.set(i, buf)
		}
	}
}

// String returns a short diagnostic summary, useful in run_summary.txt.
func (s *Store) String() string {
	return fmt.Sprintf("particle.Store{dim=%d number=%d size=%d capacity=%d}",
		s.dim, s.number, s.size, s.capacity)
}
