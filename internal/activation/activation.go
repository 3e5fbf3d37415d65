// Package activation reduces a radial concentration profile to the
// activation radius: the largest r* with C(r) ≥ threshold for all r ≤ r*.
package activation

import (
	"math"

	"github.com/nvandessel/rbdc/internal/models"
)

// Profile is a radial concentration profile ordered outward from the source.
// Extent is the distance to the domain edge; no reported radius exceeds it.
type Profile struct {
	Radii  []float64
	Values []float64
	Extent float64
}

// Result is the outcome of evaluating one profile.
type Result struct {
	// Radius is the activation radius.
	Radius float64
	// Saturated is set when every cell is at or above the threshold; Radius
	// is then the domain extent and the true radius may be larger.
	Saturated bool
	// Peak is the largest concentration on the profile.
	Peak float64
}

// Evaluate scans the profile outward from the source. The radius is 0 when
// the innermost cell is below threshold. Otherwise it is interpolated
// linearly between the last cell at or above threshold and the first cell
// below it.
func Evaluate(p Profile, threshold float64) Result {
	var res Result
	n := min(len(p.Radii), len(p.Values))
	for i := 0; i < n; i++ {
		res.Peak = math.Max(res.Peak, p.Values[i])
	}
	if n == 0 || p.Values[0] < threshold {
		return res
	}

	for i := 1; i < n; i++ {
		if p.Values[i] >= threshold {
			continue
		}
		inner, outer := p.Values[i-1], p.Values[i]
		r0, r1 := p.Radii[i-1], p.Radii[i]
		frac := (inner - threshold) / (inner - outer)
		res.Radius = r0 + frac*(r1-r0)
		if p.Extent > 0 && res.Radius > p.Extent {
			res.Radius = p.Extent
		}
		return res
	}

	res.Saturated = true
	res.Radius = p.Extent
	if res.Radius <= 0 {
		res.Radius = p.Radii[n-1]
	}
	return res
}

// IsMonotonic reports whether values never increase outward, allowing a
// relative tolerance for rounding.
func IsMonotonic(values []float64, tol float64) bool {
	for i := 1; i < len(values); i++ {
		if values[i] > values[i-1]+tol*math.Abs(values[i-1]) {
			return false
		}
	}
	return true
}

// AnalyticRadius is the activation radius of an instantaneous point release
// of mass into free space with no consumption:
//
//	C(r,t) = mass/(4πDt)^(d/2) · exp(−r²/4Dt)
//	r*(t)  = √(4Dt · ln(mass / (threshold·(4πDt)^(d/2))))
//
// It is 0 when the peak concentration is below threshold.
func AnalyticRadius(diffusion, t, mass, threshold float64, dims int) float64 {
	if diffusion <= 0 || t <= 0 || mass <= 0 || threshold <= 0 {
		return 0
	}
	spread := 4 * diffusion * t
	norm := math.Pow(math.Pi*spread, float64(dims)/2)
	ratio := math.Log(mass / (threshold * norm))
	if ratio <= 0 {
		return 0
	}
	return math.Sqrt(spread * ratio)
}

// HillActivation is the fraction of responding cells at concentration c:
// cⁿ/(Kⁿ+cⁿ), with the half-maximal concentration K.
func HillActivation(c, halfMax, n float64) float64 {
	if c <= 0 {
		return 0
	}
	if halfMax <= 0 {
		return 1
	}
	cn := math.Pow(c, n)
	return cn / (math.Pow(halfMax, n) + cn)
}

// TherapeuticVolume is the tissue volume enclosed by the activation radius.
func TherapeuticVolume(radius float64, dims int) float64 {
	if radius <= 0 {
		return 0
	}
	return models.BallVolume(radius, dims)
}
