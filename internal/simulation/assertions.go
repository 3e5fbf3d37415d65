package simulation

import (
	"math"
	"testing"

	"github.com/nvandessel/rbdc/internal/activation"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/solver"
)

// AssertRadiusBounded asserts that every recorded radius lies in [0, grid_extent].
func AssertRadiusBounded(t *testing.T, run *models.SimulationRun) {
	t.Helper()
	extent := run.Params.GridExtent
	for _, s := range run.Series {
		if s.Radius < 0 || s.Radius > extent {
			t.Errorf("AssertRadiusBounded: t=%g: radius %g outside [0, %g]", s.Time, s.Radius, extent)
		}
	}
}

// AssertTracksAnalytic asserts that the radius follows the free-space point
// release law within relTol for every sample at or after fromTime where the
// law predicts a positive radius. The release must be near-instant relative
// to fromTime for the comparison to hold.
func AssertTracksAnalytic(t *testing.T, run *models.SimulationRun, relTol, fromTime float64) {
	t.Helper()
	p := run.Params
	compared := 0
	for _, s := range run.Series {
		if s.Time < fromTime {
			continue
		}
		want := activation.AnalyticRadius(p.DiffusionCoefficient, s.Time, p.Dose, p.ActivationThreshold, p.Dimensions)
		if want == 0 {
			continue
		}
		compared++
		if math.Abs(s.Radius-want) > relTol*want {
			t.Errorf("AssertTracksAnalytic: t=%g: radius %.4f, analytic %.4f (tolerance %.0f%%)", s.Time, s.Radius, want, relTol*100)
		}
	}
	if compared == 0 {
		t.Errorf("AssertTracksAnalytic: no samples at or after t=%g with a positive analytic radius", fromTime)
	}
}

// AssertAllZero asserts that the radius is 0 at every recorded time.
func AssertAllZero(t *testing.T, run *models.SimulationRun) {
	t.Helper()
	for _, s := range run.Series {
		if s.Radius != 0 {
			t.Errorf("AssertAllZero: t=%g: radius %g, want 0", s.Time, s.Radius)
		}
	}
}

// AssertRisesThenFalls asserts that the series starts at 0, peaks strictly
// inside the run and ends below its peak.
func AssertRisesThenFalls(t *testing.T, run *models.SimulationRun) {
	t.Helper()
	if len(run.Series) < 3 {
		t.Fatalf("AssertRisesThenFalls: only %d samples", len(run.Series))
	}
	if first := run.Series[0]; first.Radius != 0 {
		t.Errorf("AssertRisesThenFalls: radius at t=%g is %g, want 0", first.Time, first.Radius)
	}
	peak := PeakIndex(run)
	last := len(run.Series) - 1
	if run.Series[peak].Radius <= 0 {
		t.Errorf("AssertRisesThenFalls: radius never rose above 0")
	}
	if peak == 0 || peak == last {
		t.Errorf("AssertRisesThenFalls: peak at sample %d of %d, want an interior peak", peak, last+1)
	}
	if run.Series[last].Radius >= run.Series[peak].Radius {
		t.Errorf("AssertRisesThenFalls: final radius %g not below peak %g", run.Series[last].Radius, run.Series[peak].Radius)
	}
}

// AssertMassBounded asserts that the field never holds more mass than the
// capsule has released, allowing relTol for rounding.
func AssertMassBounded(t *testing.T, snaps []solver.Snapshot, relTol float64) {
	t.Helper()
	for _, s := range snaps {
		if s.Mass > s.Released*(1+relTol) {
			t.Errorf("AssertMassBounded: t=%g: mass %g exceeds released %g", s.Time, s.Mass, s.Released)
		}
	}
}

// AssertSameSeries asserts that two runs produced identical series.
func AssertSameSeries(t *testing.T, a, b *models.SimulationRun) {
	t.Helper()
	if len(a.Series) != len(b.Series) {
		t.Fatalf("AssertSameSeries: lengths differ: %d vs %d", len(a.Series), len(b.Series))
	}
	for i := range a.Series {
		if a.Series[i] != b.Series[i] {
			t.Errorf("AssertSameSeries: sample %d differs: %+v vs %+v", i, a.Series[i], b.Series[i])
		}
	}
}

// PeakIndex returns the index of the largest radius, the first on ties.
func PeakIndex(run *models.SimulationRun) int {
	best := 0
	for i, s := range run.Series {
		if s.Radius > run.Series[best].Radius {
			best = i
		}
	}
	return best
}
