package solver

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
)

// smallParams is a fast run: 20 shells, a few hundred steps.
func smallParams() models.ParameterSet {
	return models.ParameterSet{
		Dose:                 1,
		DecayRate:            1,
		DiffusionCoefficient: 0.05,
		ActivationThreshold:  0.1,
		GridExtent:           1,
		GridResolution:       0.05,
		Dimensions:           3,
		Geometry:             constants.GeometryRadial,
		BoundaryCondition:    constants.BoundaryReflecting,
		Scheme:               constants.SchemeExplicit,
		Duration:             5,
		RecordInterval:       1,
	}
}

func runCollect(t *testing.T, p models.ParameterSet) (*Solver, []Snapshot) {
	t.Helper()
	s, err := New(p, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	var snaps []Snapshot
	err = s.Run(context.Background(), func(snap Snapshot) error {
		snaps = append(snaps, snap)
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return s, snaps
}

func TestNew_RejectsUnstableTimeStep(t *testing.T) {
	p := smallParams()
	p.DiffusionCoefficient = 1
	p.GridResolution = 0.1
	p.TimeStep = 0.01 // bound is 1/600

	_, err := New(p, nil)
	if !errors.Is(err, models.ErrNumericInstability) {
		t.Fatalf("New() error = %v, want numeric instability", err)
	}
	var ie *models.InstabilityError
	if !errors.As(err, &ie) || ie.Step != 0 {
		t.Errorf("New() error = %#v, want InstabilityError at step 0", err)
	}
}

func TestNew_ImplicitAcceptsLargeTimeStep(t *testing.T) {
	p := smallParams()
	p.Scheme = constants.SchemeImplicit
	p.TimeStep = 0.5

	s, err := New(p, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if s.TimeStep() != 0.5 {
		t.Errorf("TimeStep() = %g, want 0.5", s.TimeStep())
	}
}

func TestNew_RejectsInvalidParameters(t *testing.T) {
	p := smallParams()
	p.GridResolution = 0

	_, err := New(p, nil)
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("New() error = %v, want validation error", err)
	}
}

func TestNew_AutomaticTimeStep(t *testing.T) {
	p := smallParams()
	s, err := New(p, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	bound := p.Grid().StableTimeStep(p.Diffusion())
	if s.TimeStep() > bound {
		t.Errorf("TimeStep() = %g exceeds bound %g", s.TimeStep(), bound)
	}
	if s.TimeStep() > p.RecordInterval {
		t.Errorf("TimeStep() = %g exceeds record interval %g", s.TimeStep(), p.RecordInterval)
	}
}

func TestRecordTimes(t *testing.T) {
	tests := []struct {
		name     string
		duration float64
		interval float64
		want     []float64
	}{
		{"exact multiple", 10, 2.5, []float64{0, 2.5, 5, 7.5, 10}},
		{"trailing partial", 10, 3, []float64{0, 3, 6, 9, 10}},
		{"zero duration", 0, 1, []float64{0}},
		{"interval longer than run", 1, 5, []float64{0, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := recordTimes(tt.duration, tt.interval)
			if len(got) != len(tt.want) {
				t.Fatalf("recordTimes() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if math.Abs(got[i]-tt.want[i]) > 1e-12 {
					t.Errorf("recordTimes()[%d] = %g, want %g", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestRun_SamplesLandOnRecordTimes(t *testing.T) {
	_, snaps := runCollect(t, smallParams())
	if len(snaps) != 6 {
		t.Fatalf("got %d snapshots, want 6", len(snaps))
	}
	for i, snap := range snaps {
		if snap.Index != i {
			t.Errorf("snapshot %d has Index %d", i, snap.Index)
		}
		if snap.Time != float64(i) {
			t.Errorf("snapshot %d at t=%g, want %d", i, snap.Time, i)
		}
	}
}

func TestRun_MassBound(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*models.ParameterSet)
		conserve bool
	}{
		{"reflecting 3d", func(p *models.ParameterSet) {}, true},
		{"reflecting 2d", func(p *models.ParameterSet) { p.Dimensions = 2 }, true},
		{"reflecting 1d", func(p *models.ParameterSet) { p.Dimensions = 1 }, true},
		{"reflecting implicit", func(p *models.ParameterSet) { p.Scheme = constants.SchemeImplicit }, true},
		{"reflecting cartesian 2d", func(p *models.ParameterSet) {
			p.Geometry = constants.GeometryCartesian
			p.Dimensions = 2
		}, true},
		{"reaction decay", func(p *models.ParameterSet) { p.ReactionDecayRate = 0.2 }, false},
		{"absorbing", func(p *models.ParameterSet) { p.BoundaryCondition = constants.BoundaryAbsorbing }, false},
		{"absorbing cartesian 1d", func(p *models.ParameterSet) {
			p.Geometry = constants.GeometryCartesian
			p.Dimensions = 1
			p.BoundaryCondition = constants.BoundaryAbsorbing
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := smallParams()
			tt.mutate(&p)
			_, snaps := runCollect(t, p)

			for _, snap := range snaps[1:] {
				if snap.Mass > snap.Released*(1+1e-9) {
					t.Errorf("t=%g: mass %g exceeds released %g", snap.Time, snap.Mass, snap.Released)
				}
			}
			final := snaps[len(snaps)-1]
			if tt.conserve {
				if math.Abs(final.Mass-final.Released) > 1e-9*final.Released {
					t.Errorf("final mass %g, want released %g", final.Mass, final.Released)
				}
			} else if final.Mass >= final.Released {
				t.Errorf("final mass %g, want less than released %g", final.Mass, final.Released)
			}
		})
	}
}

func TestRun_ProfileDecreasesOutward(t *testing.T) {
	for _, dims := range []int{1, 2, 3} {
		p := smallParams()
		p.Dimensions = dims
		_, snaps := runCollect(t, p)

		for _, snap := range snaps {
			for i := 1; i < len(snap.Values); i++ {
				if snap.Values[i] > snap.Values[i-1]*(1+1e-12) {
					t.Errorf("dims=%d t=%g: value rises at cell %d (%g > %g)",
						dims, snap.Time, i, snap.Values[i], snap.Values[i-1])
					break
				}
			}
		}
	}
}

func TestRun_NonNegative(t *testing.T) {
	p := smallParams()
	p.BoundaryCondition = constants.BoundaryAbsorbing
	p.ReactionDecayRate = 0.5
	_, snaps := runCollect(t, p)

	for _, snap := range snaps {
		for i, v := range snap.Values {
			if v < 0 {
				t.Fatalf("t=%g cell %d: negative concentration %g", snap.Time, i, v)
			}
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	_, a := runCollect(t, smallParams())
	_, b := runCollect(t, smallParams())

	for i := range a {
		for j := range a[i].Values {
			if a[i].Values[j] != b[i].Values[j] {
				t.Fatalf("snapshot %d cell %d differs: %v vs %v", i, j, a[i].Values[j], b[i].Values[j])
			}
		}
	}
}

func TestRun_ImplicitAgreesWithExplicit(t *testing.T) {
	explicit := smallParams()
	implicit := smallParams()
	implicit.Scheme = constants.SchemeImplicit
	implicit.TimeStep = 0.002

	_, es := runCollect(t, explicit)
	_, is := runCollect(t, implicit)

	e := es[len(es)-1].Values
	im := is[len(is)-1].Values
	var peak float64
	for _, v := range e {
		peak = math.Max(peak, v)
	}
	for i := range e {
		if diff := math.Abs(e[i] - im[i]); diff > 0.02*peak {
			t.Errorf("cell %d: explicit %g implicit %g differ by more than 2%% of peak", i, e[i], im[i])
		}
	}
}

func TestRun_CartesianProfileMatchesAxis(t *testing.T) {
	p := smallParams()
	p.Geometry = constants.GeometryCartesian
	p.Dimensions = 2
	s, snaps := runCollect(t, p)

	final := snaps[len(snaps)-1]
	if len(final.Radii) != s.Grid().CellsAxis+1 {
		t.Fatalf("profile has %d radii, want %d", len(final.Radii), s.Grid().CellsAxis+1)
	}
	if final.Radii[0] != 0 {
		t.Errorf("first profile radius = %g, want 0 (centre cell)", final.Radii[0])
	}
	if final.Values[0] <= final.Values[1] {
		t.Errorf("centre %g not above neighbour %g", final.Values[0], final.Values[1])
	}
}

func TestRun_DetectsNonFiniteValues(t *testing.T) {
	p := smallParams()
	p.Dose = 1e308
	p.DecayRate = 1e3

	s, err := New(p, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = s.Run(context.Background(), nil)
	if !errors.Is(err, models.ErrNumericInstability) {
		t.Fatalf("Run() error = %v, want numeric instability", err)
	}
	var ie *models.InstabilityError
	if !errors.As(err, &ie) || ie.Step < 1 {
		t.Errorf("Run() error = %#v, want InstabilityError with a step number", err)
	}
}

func TestRun_ObserverErrorAborts(t *testing.T) {
	s, err := New(smallParams(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	stop := errors.New("stop")
	calls := 0
	err = s.Run(context.Background(), func(Snapshot) error {
		calls++
		if calls == 2 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) {
		t.Errorf("Run() error = %v, want %v", err, stop)
	}
	if calls != 2 {
		t.Errorf("observer called %d times, want 2", calls)
	}
}

func TestRun_Canceled(t *testing.T) {
	s, err := New(smallParams(), nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = s.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
