/*Package builder wires a parsed config.Scenario into a running
particle.Store plus orchestrator.Orchestrator, generalizing guppy.go's
top-level "read input, build the pipeline" wiring (guppy reads one
geometry snapshot and builds a plotting pipeline from it; this package
reads a scenario description and builds a live simulation from it).
*/
package builder

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/phil-mansfield/grainflow/internal/cellgrid"
	"github.com/phil-mansfield/grainflow/internal/config"
	"github.com/phil-mansfield/grainflow/internal/errs"
	"github.com/phil-mansfield/grainflow/internal/integrate"
	"github.com/phil-mansfield/grainflow/internal/kernel"
	"github.com/phil-mansfield/grainflow/internal/modifier"
	"github.com/phil-mansfield/grainflow/internal/orchestrator"
	"github.com/phil-mansfield/grainflow/internal/particle"
	"github.com/phil-mansfield/grainflow/internal/randstate"
	"github.com/phil-mansfield/grainflow/internal/topology"
)

// defaultSkinRatio and defaultMotionFactor fix the neighbor index's
// rebuild margin; no scenario entry overrides them. A skin of
// 0.5*cutoff mirrors GFlowSim4's default
// sector skin depth (its sectorization.hpp sizes the skin as a fraction
// of cutoff rather than an absolute length).
const (
	defaultSkinRatio    = 0.5
	defaultMotionFactor = 0.9
)

// Result is everything Build assembles from a scenario: the particle
// store (for writer/observer access) and the orchestrator ready to Run.
type Result struct {
	Store        *particle.Store
	Orchestrator *orchestrator.Orchestrator
}

// Build constructs a full simulation from a parsed scenario. top may be
// nil (defaults to topology.SingleNode{}).
func Build(s *config.Scenario, top topology.Topology) (*Result, error) {
	if top == nil {
		top = topology.SingleNode{}
	}

	store := particle.New(s.Dimensions, particle.SOA, estimateCapacity(s))

	templates := make(map[string]config.Template, len(s.Templates))
	for _, t := range s.Templates {
		templates[t.Name] = t
	}

	if err := fillParticles(store, s, templates); err != nil {
		return nil, err
	}

	dispatcher := kernel.NewDispatcher(s.NTypes)
	if err := registerForceGrid(dispatcher, s); err != nil {
		return nil, err
	}

	// A scenario that registers no kernel with a positive cutoff is a
	// valid, spec-mandated configuration (spec.md §8 scenario 1: a lone
	// particle drifting under no forces at all), not a configuration
	// error. cellgrid.NewIndex treats a non-positive cutoff+skin span as
	// "one cell per axis" on its own, so the index still buckets
	// particles correctly; Pairs just never has more than one bucket to
	// walk, which is consistent with there being no interactions to find.
	radiusOf := templateRadiusByType(s.Templates)
	cutoff := dispatcher.MaxCutoff(radiusOf)
	skin := cutoff * defaultSkinRatio

	bounds := make([]cellgrid.Range, s.Dimensions)
	periodic := make([]bool, s.Dimensions)
	for d := 0; d < s.Dimensions; d++ {
		bounds[d] = cellgrid.Range{Lo: s.Bounds[d].Lo, Hi: s.Bounds[d].Hi}
		periodic[d] = s.Boundary[d] == config.BoundaryWrap
	}
	index := cellgrid.NewIndex(bounds, periodic, cutoff, skin, defaultMotionFactor)

	integ, err := buildIntegrator(s, store)
	if err != nil {
		return nil, err
	}

	mods, err := buildModifiers(store, s, bounds)
	if err != nil {
		return nil, err
	}

	orc := orchestrator.New(orchestrator.Config{
		Store:         store,
		Index:         index,
		Dispatcher:    dispatcher,
		Integrator:    integ,
		Topology:      top,
		Lanes:         1,
		Bounds:        bounds,
		BoundaryKinds: s.Boundary,
		Params: orchestrator.BoundaryParams{
			RepulseK:         100,
			RepulseGamma:     1,
			CenterAttraction: 0,
		},
		Modifiers: mods,
	})

	return &Result{Store: store, Orchestrator: orc}, nil
}

func estimateCapacity(s *config.Scenario) int {
	total := 0
	for _, f := range s.Fills {
		total += f.Number
	}
	if total < 16 {
		total = 16
	}
	return total + total/4 // headroom for halo/ghost copies
}

func templateRadiusByType(templates []config.Template) func(typ int) float64 {
	byType := make(map[int]float64)
	for _, t := range templates {
		if t.Sigma > byType[t.Type] {
			byType[t.Type] = t.Sigma
		}
	}
	return func(typ int) float64 { return byType[typ] }
}

// registerForceGrid maps each scenario Force-grid row's kernel name to a
// kernel.Kernel implementation and registers it on the dispatcher.
func registerForceGrid(d *kernel.Dispatcher, s *config.Scenario) error {
	for _, entry := range s.ForceGrid {
		k, err := buildKernel(s.File, entry)
		if err != nil {
			return err
		}
		if err := d.Register(entry.TypeI, entry.TypeJ, k); err != nil {
			return err
		}
	}
	return nil
}

func buildKernel(file string, entry config.ForceEntry) (kernel.Kernel, error) {
	switch strings.ToLower(entry.Kernel) {
	case "hardsphere":
		return kernel.HardSphere{Repulsion: entry.Params["Repulsion"]}, nil
	case "hardspheredissipative":
		return kernel.HardSphereDissipative{
			Repulsion:   entry.Params["Repulsion"],
			Dissipation: entry.Params["Dissipation"],
		}, nil
	case "shiftedlj", "lennardjones":
		return kernel.ShiftedLJ{
			Epsilon:     entry.Params["Epsilon"],
			CutoffRatio: entry.Params["CutoffRatio"],
		}, nil
	default:
		return nil, errs.New(errs.BadArgument, file, entry.Line,
			"unrecognized Force-grid kernel %q", entry.Kernel)
	}
}

func buildIntegrator(s *config.Scenario, store *particle.Store) (*integrate.Integrator, error) {
	var kind integrate.Kind
	switch strings.ToLower(s.Integrator.Kind) {
	case "velocityverlet", "verlet", "vv":
		kind = integrate.VelocityVerlet
	case "overdamped":
		kind = integrate.Overdamped
	default:
		return nil, errs.New(errs.BadArgument, s.File, s.Integrator.Line,
			"unrecognized Integrator kind %q", s.Integrator.Kind)
	}
	// LChar is the mean particle radius of the freshly filled store.
	lChar := 1.0
	if n := store.Number(); n > 0 {
		var sum float64
		for i := 0; i < n; i++ {
			sum += store.Sigma(i)
		}
		if sum > 0 {
			lChar = sum / float64(n)
		}
	}
	minDt := s.Integrator.Dt / 100
	if minDt <= 0 {
		minDt = s.Integrator.DtMax / 100
	}
	return integrate.New(integrate.Config{
		Kind:        kind,
		Dt:          s.Integrator.Dt,
		MinDt:       minDt,
		MaxDt:       s.Integrator.DtMax,
		Gamma:       s.Integrator.Gamma,
		Adaptive:    s.Integrator.Adaptive,
		StepDelay:   20,
		TargetSteps: 10,
		LChar:       lChar,
	}), nil
}

// buildModifiers turns each scenario Modifier entry into the concrete
// internal/modifier implementation it names.
func buildModifiers(store *particle.Store, s *config.Scenario, bounds []cellgrid.Range) ([]interface{}, error) {
	var mods []interface{}
	for _, m := range s.Modifiers {
		switch strings.ToLower(m.Name) {
		case "flow":
			mods = append(mods, &modifier.Flow{
				Store: store,
				Lo:    bounds[0].Lo,
				Hi:    bounds[0].Hi,
				Drag:  m.Params["Drag"],
			})
		case "constantacceleration", "gravity":
			accel := make([]float64, s.Dimensions)
			for d := 0; d < s.Dimensions; d++ {
				accel[d] = m.Params[fmt.Sprintf("Accel%d", d)]
			}
			mods = append(mods, &modifier.ConstantAcceleration{Store: store, Accel: accel})
		case "lineardamping", "drag":
			mods = append(mods, &modifier.LinearVelocityDamping{Store: store, Gamma: m.Params["Gamma"]})
		case "velocitylimiter":
			mods = append(mods, &modifier.VelocityLimiter{Store: store, MaxSpeed: m.Params["MaxSpeed"]})
		case "death":
			deathBounds := make([]struct{ Lo, Hi float64 }, len(bounds))
			for d, b := range bounds {
				deathBounds[d] = struct{ Lo, Hi float64 }{Lo: b.Lo, Hi: b.Hi}
			}
			mods = append(mods, &modifier.Death{Store: store, Bounds: deathBounds})
		default:
			return nil, errs.New(errs.BadArgument, s.File, m.Line, "unrecognized Modifier %q", m.Name)
		}
	}
	return mods, nil
}

// fillParticles runs every scenario Fill generator, appending particles
// to store via rejection sampling for Fill:Circle and direct uniform
// draws for Fill:Area, per spec.md §6 (up to 50 placement attempts per
// particle before giving up on a given slot).
func fillParticles(store *particle.Store, s *config.Scenario, templates map[string]config.Template) error {
	for _, f := range s.Fills {
		tmpl, ok := templates[f.Template]
		if !ok {
			return errs.New(errs.BadStructure, s.File, f.Line, "Fill references unknown Template %q", f.Template)
		}
		rng := rngFor(f)
		area := f.Area
		if len(area) == 0 {
			area = s.Bounds
		}

		for n := 0; n < f.Number; n++ {
			x, ok := placeParticle(rng, f, area)
			if !ok {
				return errs.New(errs.BadStructure, s.File, f.Line,
					"Fill could not place particle %d of %d after 50 attempts", n, f.Number)
			}
			v := make([]float64, s.Dimensions)
			invMass := 0.0
			if tmpl.Mass > 0 {
				invMass = 1 / tmpl.Mass
			}
			if _, err := store.AddParticle(x, v, tmpl.Sigma, invMass, tmpl.Type, s.NTypes); err != nil {
				return err
			}
		}
	}
	return nil
}

func rngFor(f config.Fill) *rand.Rand {
	if f.Seed != 0 {
		return rand.New(rand.NewSource(f.Seed))
	}
	return randstate.Global()
}

// placeParticle draws a uniform point from area (Fill:Area) or rejection
// samples within f.Radius of f.Center (Fill:Circle), up to 50 attempts.
func placeParticle(rng *rand.Rand, f config.Fill, area []config.Range) ([]float64, bool) {
	dim := len(area)
	x := make([]float64, dim)
	if f.Kind == config.FillArea {
		for d := 0; d < dim; d++ {
			x[d] = area[d].Lo + rng.Float64()*(area[d].Hi-area[d].Lo)
		}
		return x, true
	}

	for attempt := 0; attempt < 50; attempt++ {
		var normSq float64
		for d := 0; d < dim; d++ {
			u := 2*rng.Float64() - 1
			x[d] = u
			normSq += u * u
		}
		if normSq > 1 {
			continue
		}
		for d := 0; d < dim; d++ {
			x[d] = x[d] * f.Radius
			if d < len(f.Center) {
				x[d] += f.Center[d]
			}
		}
		return x, true
	}
	return nil, false
}
