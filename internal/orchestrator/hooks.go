/*Package orchestrator implements grainflow's step orchestrator (spec.md
§4.5): the fixed master-loop phase sequence, boundary-condition
application, and the modifier/observer hook lists every other subsystem
plugs into.
*/
package orchestrator

// The phase-hook capability set from spec.md §9: "Subsystems are
// variants of a Phase-hook capability set: {pre_integrate, pre_step,
// pre_exchange, pre_forces, post_forces, post_step, post_integrate}; an
// implementation provides exactly those it needs." Modifiers and
// observers are plain interface{} values checked against these narrow
// interfaces rather than forced to satisfy one monolithic interface, so
// a modifier that only cares about post_step need not stub out the
// rest -- the re-expression of the original's "multiple inheritance of
// Base" as per-capability interfaces rather than a shared base class.

type preStepper interface{ PreStep() }
type preExchanger interface{ PreExchange() }
type preForcer interface{ PreForces() }
type postForcer interface{ PostForces() }
type postStepper interface{ PostStep() }

// dropMarker lets a modifier retire itself (and, implicitly, request
// particle removal it has already staged via store.MarkForRemoval)
// during the "modifiers.drop_marked" phase.
type dropMarker interface{ DropMarked() bool }

func firePreStep(hooks []interface{}) {
	for _, h := range hooks {
		if x, ok := h.(preStepper); ok {
			x.PreStep()
		}
	}
}

func firePreExchange(hooks []interface{}) {
	for _, h := range hooks {
		if x, ok := h.(preExchanger); ok {
			x.PreExchange()
		}
	}
}

func firePreForces(hooks []interface{}) {
	for _, h := range hooks {
		if x, ok := h.(preForcer); ok {
			x.PreForces()
		}
	}
}

func firePostForces(hooks []interface{}) {
	for _, h := range hooks {
		if x, ok := h.(postForcer); ok {
			x.PostForces()
		}
	}
}

func firePostStep(hooks []interface{}) {
	for _, h := range hooks {
		if x, ok := h.(postStepper); ok {
			x.PostStep()
		}
	}
}

// dropRetired removes from hooks every modifier whose DropMarked
// returns true, preserving order, per spec.md §4.5's
// "modifiers.drop_marked # modifiers may retire".
func dropRetired(hooks []interface{}) []interface{} {
	out := hooks[:0]
	for _, h := range hooks {
		if x, ok := h.(dropMarker); ok && x.DropMarked() {
			continue
		}
		out = append(out, h)
	}
	return out
}
