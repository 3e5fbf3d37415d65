package sweep

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/rbdc/internal/logging"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/simulation"
	"github.com/nvandessel/rbdc/internal/telemetry"
)

// Result is one entry of a sweep, in sweep order. Exactly one of Run and
// Err is set.
type Result struct {
	Index  int
	Params models.ParameterSet
	Run    *models.SimulationRun
	Err    error
}

// Summary holds every entry of a completed sweep.
type Summary struct {
	Results []Result
	Elapsed time.Duration
}

// Failed returns the entries whose run failed, in sweep order.
func (s *Summary) Failed() []Result {
	var failed []Result
	for _, r := range s.Results {
		if r.Err != nil {
			failed = append(failed, r)
		}
	}
	return failed
}

// Records returns the export rows of every successful run, grouped by
// parameter set in sweep order then ascending time.
func (s *Summary) Records() []models.ResultRecord {
	var records []models.ResultRecord
	for _, r := range s.Results {
		if r.Run != nil {
			records = append(records, r.Run.Records()...)
		}
	}
	return records
}

// Driver runs sweeps. The zero value is usable.
type Driver struct {
	// Workers bounds concurrent runs; zero uses the config's value, then
	// GOMAXPROCS.
	Workers   int
	Logger    *slog.Logger
	RunLogger *logging.RunLogger

	// Progress, when set, is called after each run completes. It may be
	// called concurrently.
	Progress func(done, total int)
}

// Run expands cfg and executes one independent run per parameter set.
// Configuration errors abort before any run starts. A failed run is
// recorded in its entry and does not stop the others; only cancellation
// of ctx is returned alongside the summary.
func (d *Driver) Run(ctx context.Context, cfg Config) (*Summary, error) {
	sets, err := cfg.Expand()
	if err != nil {
		return nil, err
	}
	logger := d.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	workers := d.Workers
	if workers <= 0 {
		workers = cfg.Workers
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	ctx, span := telemetry.Tracer().Start(ctx, "sweep.Run", trace.WithAttributes(
		attribute.Int("rbdc.sweep.runs", len(sets)),
		attribute.Int("rbdc.sweep.workers", workers),
	))
	defer span.End()

	logger.Info("sweep started", "runs", len(sets), "workers", workers)
	start := time.Now()

	results := make([]Result, len(sets))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(workers)
	for i, p := range sets {
		g.Go(func() error {
			res := Result{Index: i, Params: p}
			run, err := simulation.Run(ctx, p,
				simulation.WithLogger(logger),
				simulation.WithRunLogger(d.RunLogger))
			if err != nil {
				res.Err = &models.RunError{Params: p, Err: err}
			} else {
				res.Run = run
			}
			results[i] = res

			n := int(done.Add(1))
			if d.Progress != nil {
				d.Progress(n, len(sets))
			}
			return nil
		})
	}
	// Failures are kept on each Result; tasks never return an error.
	g.Wait()

	summary := &Summary{Results: results, Elapsed: time.Since(start)}
	failed := len(summary.Failed())
	span.SetAttributes(attribute.Int("rbdc.sweep.failed", failed))
	logger.Info("sweep finished", "runs", len(sets), "failed", failed, "elapsed", summary.Elapsed)

	return summary, ctx.Err()
}
