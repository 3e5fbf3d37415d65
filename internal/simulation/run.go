package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nvandessel/rbdc/internal/activation"
	"github.com/nvandessel/rbdc/internal/logging"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/solver"
	"github.com/nvandessel/rbdc/internal/source"
	"github.com/nvandessel/rbdc/internal/telemetry"
)

// monotonicTolerance is the relative rise allowed between neighbouring
// cells before a profile is reported as non-monotonic.
const monotonicTolerance = 1e-9

// Option configures a single Run.
type Option func(*options)

type options struct {
	observer solver.Observer
	logger   *slog.Logger
	runLog   *logging.RunLogger
}

// WithObserver receives every recorded field snapshot after it has been
// evaluated. The snapshot must not be retained beyond its values copy.
func WithObserver(obs solver.Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithLogger sets the operational logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRunLogger records run events to a JSONL trace.
func WithRunLogger(rl *logging.RunLogger) Option {
	return func(o *options) { o.runLog = rl }
}

// Run executes one parameter set end to end.
func Run(ctx context.Context, p models.ParameterSet, opts ...Option) (*models.SimulationRun, error) {
	o := options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(&o)
	}

	p = p.WithDefaults()
	ctx, span := telemetry.Tracer().Start(ctx, "simulation.Run", trace.WithAttributes(
		attribute.Float64("rbdc.dose", p.Dose),
		attribute.Float64("rbdc.decay_rate", p.DecayRate),
		attribute.Float64("rbdc.diffusion_coefficient", p.DiffusionCoefficient),
		attribute.Float64("rbdc.activation_threshold", p.ActivationThreshold),
		attribute.Int("rbdc.dimensions", p.Dimensions),
		attribute.String("rbdc.geometry", string(p.Geometry)),
	))
	defer span.End()

	run, err := execute(ctx, p, o)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, models.Kind(err))
		o.logger.Debug("run failed", "params", p.String(), "kind", models.Kind(err), "error", err)
		o.runLog.Failed(p.Key(), models.Kind(err), err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("rbdc.max_radius", run.MaxRadius()),
		attribute.Int("rbdc.steps", run.Steps),
		attribute.Bool("rbdc.domain_undersized", run.DomainUndersized),
	)
	for _, w := range run.Warnings {
		o.logger.Warn(w, "params", p.String())
	}
	o.logger.Debug("run finished",
		"params", p.String(),
		"samples", len(run.Series),
		"steps", run.Steps,
		"time_step", run.TimeStep,
		"max_radius", run.MaxRadius())
	o.runLog.Finished(logging.RunEvent{
		Key:              p.Key(),
		Samples:          len(run.Series),
		Steps:            run.Steps,
		MaxRadius:        run.MaxRadius(),
		DomainUndersized: run.DomainUndersized,
		FinalMass:        run.FinalMass,
		ReleasedMass:     run.ReleasedMass,
	})
	return run, nil
}

func execute(ctx context.Context, p models.ParameterSet, o options) (*models.SimulationRun, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	capsule, err := source.New(p.Source())
	if err != nil {
		return nil, err
	}
	s, err := solver.New(p, capsule)
	if err != nil {
		return nil, err
	}

	grid := s.Grid()
	// A cartesian grid reaches half a cell past grid_extent; radii are
	// reported within the configured domain.
	extent := min(grid.Extent(), p.GridExtent)
	threshold := float64(p.Threshold())

	run := &models.SimulationRun{
		Params:   p,
		Series:   make([]models.Sample, 0, len(s.RecordTimes())),
		TimeStep: s.TimeStep(),
	}
	var saturatedAt, nonMonotonicAt float64 = -1, -1

	err = s.Run(ctx, func(snap solver.Snapshot) error {
		res := activation.Evaluate(activation.Profile{
			Radii:  snap.Radii,
			Values: snap.Values,
			Extent: extent,
		}, threshold)

		run.Series = append(run.Series, models.Sample{Time: snap.Time, Radius: res.Radius})
		run.PeakConcentration = max(run.PeakConcentration, res.Peak)
		run.FinalMass = snap.Mass
		run.ReleasedMass = snap.Released
		if res.Saturated && saturatedAt < 0 {
			saturatedAt = snap.Time
		}
		if nonMonotonicAt < 0 && !activation.IsMonotonic(snap.Values, monotonicTolerance) {
			nonMonotonicAt = snap.Time
		}

		o.logger.Log(ctx, logging.LevelTrace, "sample",
			"t", snap.Time,
			"radius", res.Radius,
			"peak", res.Peak,
			"mass", snap.Mass)

		if o.observer != nil {
			return o.observer(snap)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	run.Steps = s.Steps()
	if saturatedAt >= 0 {
		run.DomainUndersized = true
		run.Warnings = append(run.Warnings, fmt.Sprintf(
			"domain possibly undersized: concentration at the grid edge (r=%g) reached the threshold at t=%g", extent, saturatedAt))
	}
	if nonMonotonicAt >= 0 {
		run.Warnings = append(run.Warnings, fmt.Sprintf(
			"concentration profile not radially monotonic at t=%g", nonMonotonicAt))
	}
	return run, nil
}
