/*Command simulator is grainflow's CLI entry point, generalizing guppy.go's
top-level "parse arguments, dispatch to a mode" main into spec.md §6's
single run mode: load a scenario, build a simulation from it, relax it,
run it to completion, and write its output directory.
*/
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/phil-mansfield/grainflow/internal/builder"
	"github.com/phil-mansfield/grainflow/internal/config"
	"github.com/phil-mansfield/grainflow/internal/errs"
	"github.com/phil-mansfield/grainflow/internal/orchestrator"
	"github.com/phil-mansfield/grainflow/internal/randstate"
	"github.com/phil-mansfield/grainflow/internal/writer"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	fs := flag.NewFlagSet("simulator", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a scenario file")
	requestedTime := fs.Float64("time", 0, "simulated time to run for")
	outDir := fs.String("out", "out", "output directory")
	fps := fs.Float64("fps", 30, "output frames per unit simulated time")
	compress := fs.Bool("compress", false, "zstd-compress per-frame output")
	seed := fs.Int64("seed", 0, "PRNG seed (0 seeds from wall time)")
	if err := fs.Parse(argv); err != nil {
		return 1
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "simulator: --config is required")
		return 1
	}

	if *seed != 0 {
		randstate.Seed(*seed)
	} else {
		randstate.Seed(time.Now().UnixNano())
	}
	defer randstate.Destroy()

	src, err := os.ReadFile(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		return 1
	}

	scenario, err := config.Load(*configPath, string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		return errs.ExitCode(err)
	}

	result, err := builder.Build(scenario, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		return errs.ExitCode(err)
	}

	if err := builder.Relax(result, scenario); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		return errs.ExitCode(err)
	}

	w, err := writer.New(*outDir, *compress)
	if err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
		return errs.ExitCode(err)
	}
	w.Log("grainflow simulator")
	w.Log("config: %s", *configPath)

	bounds := make([][2]float64, len(scenario.Bounds))
	for d, b := range scenario.Bounds {
		bounds[d] = [2]float64{b.Lo, b.Hi}
	}
	if err := w.WriteInfo(scenario.Dimensions, bounds, scenario.Integrator.Kind, scenario.Integrator.Dt); err != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
	}

	frameInterval := 1.0
	if *fps > 0 {
		frameInterval = 1.0 / *fps
	}
	nextFrame := 0.0
	frame := 0

	writeAllFrames := func(rep orchestrator.Report) {
		if rep.Elapsed < nextFrame {
			return
		}
		for _, t := range scenario.Templates {
			if err := w.WriteFrame(t.Name, frame, result.Store, rep.Elapsed); err != nil {
				fmt.Fprintf(os.Stderr, "simulator: %v\n", err)
			}
		}
		frame++
		nextFrame += frameInterval
	}

	runErr := result.Orchestrator.Run(*requestedTime, writeAllFrames)

	summary := writer.SummaryFields{
		Iterations:   result.Orchestrator.Iterations(),
		Elapsed:      result.Orchestrator.Elapsed(),
		NumParticles: result.Store.Number(),
	}
	if closeErr := w.Close(summary); closeErr != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", closeErr)
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "simulator: %v\n", runErr)
		return errs.ExitCode(runErr)
	}
	if w.Failed() {
		return 3
	}
	return 0
}
