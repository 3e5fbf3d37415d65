package models

import (
	"math"

	"github.com/nvandessel/rbdc/internal/constants"
)

// EmissionProfile names the release law of a capsule.
type EmissionProfile string

// EmissionExponential releases dose·k·exp(-k·t); total release equals the dose.
const EmissionExponential EmissionProfile = "exponential"

// CapsuleSource describes the emitting capsule. The capsule sits at the
// origin of the grid. Immutable per run.
type CapsuleSource struct {
	Dose      float64         `json:"dose"`
	DecayRate float64         `json:"decay_rate"`
	Profile   EmissionProfile `json:"profile"`
}

// DiffusionParameters describes transport and consumption of the chemoattractant.
type DiffusionParameters struct {
	Coefficient float64            `json:"coefficient"`
	DecayRate   float64            `json:"decay_rate"`
	Boundary    constants.Boundary `json:"boundary"`
}

// ActivationThreshold is the concentration at or above which tissue is activated.
type ActivationThreshold float64

// SpatialGrid is an immutable description of the domain.
//
// A radial grid has CellsAxis concentric shells of width Spacing; shell i
// spans [i·dx, (i+1)·dx]. A cartesian grid has 2·CellsAxis+1 cells per axis
// with the source in the centre cell.
type SpatialGrid struct {
	Dimensions int                `json:"dimensions"`
	Geometry   constants.Geometry `json:"geometry"`
	Spacing    float64            `json:"spacing"`
	CellsAxis  int                `json:"cells_axis"`
}

// AxisLength returns the number of cells along one axis.
func (g SpatialGrid) AxisLength() int {
	if g.Geometry == constants.GeometryCartesian {
		return 2*g.CellsAxis + 1
	}
	return g.CellsAxis
}

// TotalCells returns the number of cells the field holds.
func (g SpatialGrid) TotalCells() int {
	if g.Geometry != constants.GeometryCartesian {
		return g.CellsAxis
	}
	n := 1
	for d := 0; d < g.Dimensions; d++ {
		n *= g.AxisLength()
	}
	return n
}

// Extent returns the distance from the source to the outer domain edge.
func (g SpatialGrid) Extent() float64 {
	if g.Geometry == constants.GeometryCartesian {
		return (float64(g.CellsAxis) + 0.5) * g.Spacing
	}
	return float64(g.CellsAxis) * g.Spacing
}

// ProfileRadii returns the distance from the source of each cell on the
// radial profile: shell centres for radial grids, the +x axis for cartesian.
func (g SpatialGrid) ProfileRadii() []float64 {
	radii := make([]float64, g.CellsAxis)
	offset := 0.5
	if g.Geometry == constants.GeometryCartesian {
		radii = make([]float64, g.CellsAxis+1)
		offset = 0
	}
	for i := range radii {
		radii[i] = (float64(i) + offset) * g.Spacing
	}
	return radii
}

// StableTimeStep returns the largest explicit timestep for the given
// transport: dt ≤ 1/(2·D·ndims/dx² + λ). Returns +Inf when nothing limits it.
func (g SpatialGrid) StableTimeStep(d DiffusionParameters) float64 {
	rate := 2*d.Coefficient*float64(g.Dimensions)/(g.Spacing*g.Spacing) + d.DecayRate
	if rate <= 0 {
		return math.Inf(1)
	}
	return 1 / rate
}

// BallVolume returns the volume of a ball of radius r in the given
// dimensionality: 2r, πr², 4/3·πr³.
func BallVolume(r float64, dims int) float64 {
	switch dims {
	case 1:
		return 2 * r
	case 2:
		return math.Pi * r * r
	default:
		return 4.0 / 3.0 * math.Pi * r * r * r
	}
}

// SphereArea returns the surface measure of a sphere of radius r:
// 2 points, 2πr, 4πr².
func SphereArea(r float64, dims int) float64 {
	switch dims {
	case 1:
		return 2
	case 2:
		return 2 * math.Pi * r
	default:
		return 4 * math.Pi * r * r
	}
}
