// Package solver advances the chemoattractant concentration field under
//
//	∂C/∂t = D·∇²C − λ·C + S(t)·δ(source)
//
// using a conservative finite-volume discretization of the SpatialGrid.
// Explicit (forward Euler) stepping is the default and is guarded by the
// stability bound dt ≤ 1/(2·D·ndims/dx² + λ); backward Euler is available on
// radial grids. Every step is checked for non-finite values.
//
// A Solver owns its ConcentrationField exclusively and is not safe for
// concurrent use; independent runs use independent solvers.
package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/source"
)

// Field is the ConcentrationField: one value per grid cell, tagged with the
// simulation time it represents.
type Field struct {
	Time   float64
	Values []float64
}

// Snapshot is the read-only view handed to an Observer at each recorded
// time. Values is a private copy of the radial profile; Radii is shared and
// must not be modified.
type Snapshot struct {
	Index    int
	Time     float64
	Radii    []float64
	Values   []float64
	Mass     float64
	Released float64
}

// Observer receives a snapshot at every recorded time. Returning an error
// aborts the run with that error.
type Observer func(Snapshot) error

// geometry is the discretization-specific part of the solver.
type geometry interface {
	// explicitStep writes the forward Euler update of cur into next.
	explicitStep(cur, next []float64, h float64)
	// implicitStep solves the backward Euler update of cur into next.
	implicitStep(cur, next []float64, h float64) error
	// sourceCell is the index receiving the capsule emission.
	sourceCell() int
	// cellVolume returns the volume of cell i.
	cellVolume(i int) float64
	// mass returns Σ C·V.
	mass(values []float64) float64
	// profile copies the radial profile of values into dst.
	profile(values, dst []float64)
}

// Solver integrates one run's field.
type Solver struct {
	grid     models.SpatialGrid
	diff     models.DiffusionParameters
	capsule  *source.Capsule
	scheme   constants.Scheme
	geom     geometry
	dt       float64
	duration float64
	interval float64

	field Field
	next  []float64
	radii []float64
	steps int
}

// New builds a solver for a validated parameter set. It returns a
// ValidationError for bad input and an InstabilityError when a configured
// explicit timestep violates the stability bound.
func New(p models.ParameterSet, capsule *source.Capsule) (*Solver, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if capsule == nil {
		c, err := source.New(p.Source())
		if err != nil {
			return nil, err
		}
		capsule = c
	}

	grid := p.Grid()
	diff := p.Diffusion()
	dt, err := chooseTimeStep(p, grid, diff)
	if err != nil {
		return nil, err
	}

	s := &Solver{
		grid:     grid,
		diff:     diff,
		capsule:  capsule,
		scheme:   p.Scheme,
		dt:       dt,
		duration: p.Duration,
		interval: p.RecordInterval,
		radii:    grid.ProfileRadii(),
	}

	switch grid.Geometry {
	case constants.GeometryCartesian:
		s.geom = newCartesian(grid, diff)
	default:
		s.geom = newRadial(grid, diff)
	}

	s.field = Field{Values: make([]float64, grid.TotalCells())}
	s.next = make([]float64, grid.TotalCells())
	return s, nil
}

// chooseTimeStep applies the configured timestep or derives one.
func chooseTimeStep(p models.ParameterSet, grid models.SpatialGrid, diff models.DiffusionParameters) (float64, error) {
	bound := grid.StableTimeStep(diff)

	if p.TimeStep > 0 {
		if p.Scheme == constants.SchemeExplicit && p.TimeStep > bound {
			return 0, &models.InstabilityError{
				Reason: fmt.Sprintf("time_step %g exceeds the explicit stability bound %g = 1/(2·D·ndims/dx² + λ)", p.TimeStep, bound),
			}
		}
		return p.TimeStep, nil
	}

	if p.Scheme == constants.SchemeImplicit {
		return p.RecordInterval / constants.ImplicitStepsPerRecord, nil
	}
	return math.Min(constants.StabilitySafetyFactor*bound, p.RecordInterval), nil
}

// TimeStep returns the internal step upper bound in use.
func (s *Solver) TimeStep() float64 { return s.dt }

// Steps returns the number of steps taken so far.
func (s *Solver) Steps() int { return s.steps }

// Grid returns the spatial domain.
func (s *Solver) Grid() models.SpatialGrid { return s.grid }

// Time returns the current simulation time.
func (s *Solver) Time() float64 { return s.field.Time }

// Mass returns Σ C·V over the grid at the current time.
func (s *Solver) Mass() float64 { return s.geom.mass(s.field.Values) }

// Profile returns a copy of the current radial profile.
func (s *Solver) Profile() []float64 {
	out := make([]float64, len(s.radii))
	s.geom.profile(s.field.Values, out)
	return out
}

// RecordTimes returns the times at which Run emits snapshots: every
// record interval from 0, plus the duration itself when it is not a
// multiple of the interval.
func (s *Solver) RecordTimes() []float64 {
	return recordTimes(s.duration, s.interval)
}

func recordTimes(duration, interval float64) []float64 {
	n := int(math.Floor(duration/interval + 1e-9))
	times := make([]float64, 0, n+2)
	for k := 0; k <= n; k++ {
		times = append(times, float64(k)*interval)
	}
	last := times[len(times)-1]
	if duration-last > 1e-9*interval {
		times = append(times, duration)
	}
	return times
}

// Run integrates from t=0 to the configured duration, calling obs at every
// record time. Each record interval is split into equal substeps no longer
// than the timestep, so samples land exactly on record times.
// On error the field state is undefined and the run must be discarded.
func (s *Solver) Run(ctx context.Context, obs Observer) error {
	times := s.RecordTimes()
	if err := s.record(0, obs); err != nil {
		return err
	}

	prev := 0.0
	for k := 1; k < len(times); k++ {
		target := times[k]
		span := target - prev
		nSub := int(math.Ceil(span/s.dt - 1e-9))
		if nSub < 1 {
			nSub = 1
		}
		h := span / float64(nSub)

		for j := 0; j < nSub; j++ {
			t0 := prev + float64(j)*h
			if err := s.step(t0, h); err != nil {
				return err
			}
			if s.steps%constants.CancelCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return err
				}
			}
		}
		s.field.Time = target
		prev = target

		if err := s.record(k, obs); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// step advances the field from t0 by h.
func (s *Solver) step(t0, h float64) error {
	cur := s.field.Values
	next := s.next

	switch s.scheme {
	case constants.SchemeImplicit:
		src := s.geom.sourceCell()
		emitted := s.capsule.ReleasedBetween(t0, t0+h) / s.geom.cellVolume(src)
		cur[src] += emitted
		if err := s.geom.implicitStep(cur, next, h); err != nil {
			return &models.InstabilityError{Step: s.steps + 1, Time: t0 + h, Reason: err.Error()}
		}
	default:
		s.geom.explicitStep(cur, next, h)
		src := s.geom.sourceCell()
		next[src] += s.capsule.ReleasedBetween(t0, t0+h) / s.geom.cellVolume(src)
	}

	s.steps++
	for i, v := range next {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &models.InstabilityError{
				Step:   s.steps,
				Time:   t0 + h,
				Reason: fmt.Sprintf("non-finite concentration %v in cell %d", v, i),
			}
		}
	}

	s.field.Values, s.next = next, cur
	s.field.Time = t0 + h
	return nil
}

func (s *Solver) record(index int, obs Observer) error {
	if obs == nil {
		return nil
	}
	return obs(Snapshot{
		Index:    index,
		Time:     s.field.Time,
		Radii:    s.radii,
		Values:   s.Profile(),
		Mass:     s.Mass(),
		Released: s.capsule.Released(s.field.Time),
	})
}
