package solver

import (
	"errors"
	"math"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
	"gonum.org/v1/gonum/floats"
)

// cartesian is a uniform N-D grid of 2·CellsAxis+1 cells per axis with the
// capsule in the centre cell. Axis dims-1 (x) has stride 1; the radial
// profile is read along +x from the centre.
type cartesian struct {
	dims      int
	length    int
	half      int
	strides   []int
	centre    int
	volume    float64
	g         float64
	decay     float64
	absorbing bool
}

func newCartesian(grid models.SpatialGrid, diff models.DiffusionParameters) *cartesian {
	c := &cartesian{
		dims:      grid.Dimensions,
		length:    grid.AxisLength(),
		half:      grid.CellsAxis,
		strides:   make([]int, grid.Dimensions),
		volume:    math.Pow(grid.Spacing, float64(grid.Dimensions)),
		g:         diff.Coefficient / (grid.Spacing * grid.Spacing),
		decay:     diff.DecayRate,
		absorbing: diff.Boundary == constants.BoundaryAbsorbing,
	}
	stride := 1
	for a := c.dims - 1; a >= 0; a-- {
		c.strides[a] = stride
		c.centre += c.half * stride
		stride *= c.length
	}
	return c
}

func (c *cartesian) sourceCell() int          { return c.centre }
func (c *cartesian) cellVolume(int) float64   { return c.volume }
func (c *cartesian) mass(v []float64) float64 { return floats.Sum(v) * c.volume }

func (c *cartesian) profile(values, dst []float64) {
	for k := range dst {
		dst[k] = values[c.centre+k]
	}
}

// explicitStep applies the (2·dims+1)-point stencil. Missing neighbours
// beyond the edge contribute nothing when reflecting and a zero ghost value
// when absorbing.
func (c *cartesian) explicitStep(cur, next []float64, h float64) {
	coord := make([]int, c.dims)
	last := c.length - 1

	for idx := range cur {
		v := cur[idx]
		var lap float64
		for a := 0; a < c.dims; a++ {
			s := c.strides[a]
			if coord[a] > 0 {
				lap += cur[idx-s] - v
			} else if c.absorbing {
				lap -= v
			}
			if coord[a] < last {
				lap += cur[idx+s] - v
			} else if c.absorbing {
				lap -= v
			}
		}
		next[idx] = v + h*(c.g*lap-c.decay*v)

		// Advance the multi-index, x fastest.
		for a := c.dims - 1; a >= 0; a-- {
			coord[a]++
			if coord[a] < c.length {
				break
			}
			coord[a] = 0
		}
	}
}

func (c *cartesian) implicitStep([]float64, []float64, float64) error {
	return errors.New("implicit stepping is not available on cartesian grids")
}
