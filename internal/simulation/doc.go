// Package simulation drives a network through a configured number of
// propagation steps and reports per-step metrics.
//
// A Scenario bundles everything needed to build a network from scratch
// (size, topology, coefficients, source, initial perturbation) together
// with the execution settings (partitioning policy, worker count, loop
// variant, reduction strategy). The Runner builds a fresh network from the
// Scenario, emits the step-0 initial condition, then advances the network
// one step at a time, handing a Snapshot to the Sink after every commit.
//
// Usage:
//
//	sc := simulation.DefaultScenario()
//	sc.Steps = 500
//	summary, err := simulation.NewRunner().Run(ctx, sc, sink)
//	if err != nil {
//	    return err
//	}
//	fmt.Println(summary.FinalEnergy)
package simulation
