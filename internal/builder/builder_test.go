package builder

import (
	"testing"

	"github.com/phil-mansfield/grainflow/internal/config"
)

const sampleScenario = `
Dimensions: 2;
Bounds: {
	:0,10;
	:0,10;
};
Boundary: {
	:wrap;
	:wrap;
};
NTypes: 1;

Template: Grain {
	Sigma: 0.3;
	Mass: 1.0;
	Type: 0;
};

Fill: Area {
	Template: Grain;
	Number: 20;
	Seed: 7;
};

Force-grid: {
	:0,0,HardSphere{
		Repulsion: 50;
	};
};

Integrator: VelocityVerlet {
	Dt: 0.001;
	DtMax: 0.001;
};
`

func TestBuildAssemblesRunnableSimulation(t *testing.T) {
	scenario, err := config.Load("sample.scenario", sampleScenario)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	result, err := Build(scenario, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.Store.Number() != 20 {
		t.Fatalf("Number() = %d, want 20", result.Store.Number())
	}

	for i := 0; i < 5; i++ {
		if _, err := result.Orchestrator.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
	if result.Orchestrator.Iterations() != 5 {
		t.Fatalf("Iterations() = %d, want 5", result.Orchestrator.Iterations())
	}
}

// TestBuildAllowsNoInteractions covers spec.md §8 scenario 1: a lone
// particle drifting under no forces at all is a valid configuration,
// not a BadStructure error, even though no Force-grid entry registers a
// positive cutoff.
func TestBuildAllowsNoInteractions(t *testing.T) {
	noForces := `
Dimensions: 2;
Bounds: {
	:0,10;
	:0,10;
};
Boundary: {
	:wrap;
	:wrap;
};
NTypes: 1;

Template: Grain {
	Sigma: 0.3;
	Mass: 1.0;
	Type: 0;
};

Fill: Area {
	Template: Grain;
	Number: 1;
	Seed: 3;
};

Integrator: VelocityVerlet {
	Dt: 0.001;
	DtMax: 0.001;
};
`
	scenario, err := config.Load("no_forces.scenario", noForces)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	result, err := Build(scenario, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if result.Store.Number() != 1 {
		t.Fatalf("Number() = %d, want 1", result.Store.Number())
	}
	for i := 0; i < 5; i++ {
		if _, err := result.Orchestrator.Step(); err != nil {
			t.Fatalf("Step %d: %v", i, err)
		}
	}
}

func TestBuildRejectsUnknownKernel(t *testing.T) {
	bad := `
Dimensions: 1;
Bounds: { :0,1; };
Boundary: { :wrap; };
NTypes: 1;
Template: G { Sigma: 0.1; Mass: 1.0; Type: 0; };
Fill: Area { Template: G; Number: 1; };
Force-grid: { :0,0,NotAKernel{}; };
Integrator: VelocityVerlet { Dt: 0.01; DtMax: 0.01; };
`
	scenario, err := config.Load("bad.scenario", bad)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := Build(scenario, nil); err == nil {
		t.Fatalf("expected an error for an unrecognized kernel")
	}
}
