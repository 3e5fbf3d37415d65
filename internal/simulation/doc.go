// Package simulation runs the full capsule pipeline for one parameter set:
// capsule source → field solver → activation evaluator per recorded time →
// an immutable SimulationRun holding only the (time, activation_radius)
// series.
//
// Runs share no mutable state, so any number may execute concurrently.
// Partial series are never returned: on failure Run returns a nil run.
//
// The Assert* helpers check the physical properties every run must
// satisfy and are shared by the package tests of callers:
//
//	func TestCapsuleScenario(t *testing.T) {
//	    run, err := simulation.Run(ctx, models.DefaultParameters())
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    simulation.AssertRadiusBounded(t, run)
//	    simulation.AssertRisesThenFalls(t, run)
//	}
package simulation
