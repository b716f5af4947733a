package orchestrator

import (
	"github.com/phil-mansfield/grainflow/internal/body"
	"github.com/phil-mansfield/grainflow/internal/cellgrid"
	"github.com/phil-mansfield/grainflow/internal/config"
	"github.com/phil-mansfield/grainflow/internal/errs"
	"github.com/phil-mansfield/grainflow/internal/integrate"
	"github.com/phil-mansfield/grainflow/internal/kernel"
	"github.com/phil-mansfield/grainflow/internal/particle"
	"github.com/phil-mansfield/grainflow/internal/topology"
)

// storePositions adapts particle.Store to cellgrid.PositionSource,
// including halo/ghost copies (indices past Number()) so cross-boundary
// pairs are found the same way owned pairs are.
type storePositions struct{ s *particle.Store }

func (p storePositions) Len() int                       { return p.s.Size() }
func (p storePositions) Position(i int, out []float64)  { p.s.X(i, out) }

// Report summarizes one call to Step, for the writer and CLI to log.
type Report struct {
	Iterations     int
	Elapsed        float64
	Total          float64
	Potential      float64
	Virial         float64
	BoundaryForce  float64
	BoundaryEnergy float64
	Rebuilt        bool
}

// Orchestrator drives the fixed master-loop phase sequence of spec.md
// §4.5 over a particle.Store, generalizing guppy's single-purpose
// simulation driver into a scenario-configurable pipeline: neighbor
// index, interaction dispatcher, integrator, optional rigid-body
// correction, per-dimension boundary conditions, and modifier/observer
// hook lists, all synchronized across nodes through a topology.Topology.
type Orchestrator struct {
	store            *particle.Store
	index            *cellgrid.Index
	dispatcher       *kernel.Dispatcher
	bondedDispatcher *kernel.Dispatcher // optional; nil if scenario has no bonded grid
	integrator       *integrate.Integrator
	bodies           []body.Body
	top              topology.Topology
	lanes            int

	bounds        []cellgrid.Range
	boundaryKinds []config.BoundaryKind
	params        BoundaryParams

	modifiers []interface{}
	observers []interface{}

	boundaryForce  float64
	boundaryEnergy float64

	elapsed float64
	total   float64
	iter    int
	running bool
}

// Config collects everything Orchestrator needs to drive a simulation.
type Config struct {
	Store            *particle.Store
	Index            *cellgrid.Index
	Dispatcher       *kernel.Dispatcher
	BondedDispatcher *kernel.Dispatcher
	Integrator       *integrate.Integrator
	Bodies           []body.Body
	Topology         topology.Topology
	Lanes            int
	Bounds           []cellgrid.Range
	BoundaryKinds    []config.BoundaryKind
	Params           BoundaryParams
	Modifiers        []interface{}
	Observers        []interface{}
}

// New builds an Orchestrator. Topology defaults to topology.SingleNode{}
// and Lanes to 1 when left zero.
func New(cfg Config) *Orchestrator {
	top := cfg.Topology
	if top == nil {
		top = topology.SingleNode{}
	}
	lanes := cfg.Lanes
	if lanes < 1 {
		lanes = 1
	}
	return &Orchestrator{
		store:            cfg.Store,
		index:            cfg.Index,
		dispatcher:       cfg.Dispatcher,
		bondedDispatcher: cfg.BondedDispatcher,
		integrator:       cfg.Integrator,
		bodies:           cfg.Bodies,
		top:              top,
		lanes:            lanes,
		bounds:           cfg.Bounds,
		boundaryKinds:    cfg.BoundaryKinds,
		params:           cfg.Params,
		modifiers:        cfg.Modifiers,
		observers:        cfg.Observers,
		running:          true,
	}
}

func (o *Orchestrator) Elapsed() float64 { return o.elapsed }
func (o *Orchestrator) Iterations() int  { return o.iter }
func (o *Orchestrator) Running() bool    { return o.running }

// Run advances the simulation until the requested wall-of-sim-time has
// elapsed or a modifier/observer sets running to false (via Stop),
// returning one Report per step via stepFn if non-nil. stepFn may be
// nil when only the final state matters.
func (o *Orchestrator) Run(requestedTime float64, stepFn func(Report)) error {
	for o.running && o.elapsed < requestedTime {
		rep, err := o.Step()
		if err != nil {
			return err
		}
		if stepFn != nil {
			stepFn(rep)
		}
	}
	return nil
}

// Stop ends the next Run loop early, for a modifier/observer that
// detects a terminal condition (e.g. all particles escaped, a target
// reached).
func (o *Orchestrator) Stop() { o.running = false }

// Step runs exactly one pass of spec.md §4.5's fixed master-loop phase
// sequence. The phase order is load-bearing: forces must be cleared
// before boundary/interaction accumulate into them, halo forces must be
// folded back before the integrator's post-force half-kick touches
// them, and the loss-of-precision check must run before the elapsed/
// total counters are used again.
func (o *Orchestrator) Step() (Report, error) {
	o.boundaryForce = 0
	o.boundaryEnergy = 0

	firePreStep(o.modifiers)
	firePreStep(o.observers)

	firePreExchange(o.modifiers)
	firePreExchange(o.observers)
	// Compaction belongs at the exchange boundary: anything a modifier
	// marked for removal during pre_step/pre_exchange is dropped before
	// the neighbor index or integrator see this step's particle set.
	o.store.DoParticleRemoval()

	// integrator.pre_forces: first half-kick + drift (Velocity-Verlet)
	// or a no-op (Overdamped).
	firePreForces(o.modifiers)
	o.integrator.PreForces(o.store)
	firePreForces(o.observers)

	rebuilt, err := o.neighborPreForces()
	if err != nil {
		return Report{}, err
	}

	o.store.ClearForces()

	o.applyBoundaries()

	dim := o.store.Dim()
	kbounds := kernel.Bounds{Lo: make([]float64, dim), Hi: make([]float64, dim), Periodic: make([]bool, dim)}
	for d := 0; d < dim; d++ {
		kbounds.Lo[d] = o.bounds[d].Lo
		kbounds.Hi[d] = o.bounds[d].Hi
		kbounds.Periodic[d] = o.boundaryKinds[d] == config.BoundaryWrap
	}

	rep, err := kernel.Compute(o.store, o.index, o.dispatcher, kbounds, o.lanes)
	if err != nil {
		return Report{}, err
	}
	if o.bondedDispatcher != nil {
		bondedRep, err := kernel.Compute(o.store, o.index, o.bondedDispatcher, kbounds, o.lanes)
		if err != nil {
			return Report{}, err
		}
		rep.Potential += bondedRep.Potential
		rep.Virial += bondedRep.Virial
	}

	if len(o.bodies) > 0 {
		if err := body.Correct(o.store, o.bodies); err != nil {
			return Report{}, err
		}
	}

	o.modifiers = dropRetired(o.modifiers)

	firePostForces(o.modifiers)

	o.store.UpdateHaloParticles()

	o.integrator.PostForces(o.store)

	firePostForces(o.observers)

	firePostStep(o.modifiers)
	o.integrator.AdvanceStepCount()
	if err := o.integrator.MaybeAdapt(o.store, o.top.MinFloat64); err != nil {
		return Report{}, err
	}
	firePostStep(o.observers)

	o.iter++
	dt := o.integrator.Dt()
	o.elapsed += dt
	newTotal := o.total + dt
	if newTotal == o.total {
		return Report{}, errs.Internal(errs.LossOfPrecision,
			"total simulated time %g did not advance by dt %g: precision exhausted", o.total, dt)
	}
	o.total = newTotal

	o.store.ClearNeedsRemake()

	running := int64(0)
	if o.running {
		running = 1
	}
	o.running = o.top.SumInt64(running) == int64(o.top.Size())

	return Report{
		Iterations:     o.iter,
		Elapsed:        o.elapsed,
		Total:          o.total,
		Potential:      rep.Potential,
		Virial:         rep.Virial,
		BoundaryForce:  o.boundaryForce,
		BoundaryEnergy: o.boundaryEnergy,
		Rebuilt:        rebuilt,
	}, nil
}

// neighborPreForces implements the neighbor index's pre_forces hook:
// estimate motion since the last rebuild, rebuild if spec.md §4.2's
// criterion trips or the store's topology changed underneath it
// (particle removal, a fresh Fill), and apply Wrap boundaries at the
// rebuild boundary rather than every step.
func (o *Orchestrator) neighborPreForces() (bool, error) {
	o.index.TrackMotion(storePositions{o.store}, o.store.Number())

	if !o.index.NeedsRebuild() && !o.store.NeedsRemake() {
		return false, nil
	}

	dim := o.store.Dim()
	min := make([]float64, dim)
	max := make([]float64, dim)
	wrap := make([]bool, dim)
	for d := 0; d < dim; d++ {
		min[d] = o.bounds[d].Lo
		max[d] = o.bounds[d].Hi
		wrap[d] = o.boundaryKinds[d] == config.BoundaryWrap
	}
	o.store.WrapPositions(min, max, wrap)

	if err := o.index.Build(storePositions{o.store}); err != nil {
		return false, err
	}
	return true, nil
}
