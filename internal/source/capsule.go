// Package source models the slow-release capsule: a pure function of
// elapsed time giving the instantaneous emission rate and the cumulative
// mass released.
package source

import (
	"math"

	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
)

// Capsule is a validated, stateless emission law.
type Capsule struct {
	dose float64
	k    float64
}

// New validates the source description and returns its emission law.
func New(src models.CapsuleSource) (*Capsule, error) {
	if math.IsNaN(src.Dose) || src.Dose < 0 || math.IsInf(src.Dose, 0) {
		return nil, &models.ValidationError{Field: "dose", Value: src.Dose, Reason: "must be a finite non-negative mass"}
	}
	if math.IsNaN(src.DecayRate) || src.DecayRate <= 0 || math.IsInf(src.DecayRate, 0) {
		return nil, &models.ValidationError{Field: "decay_rate", Value: src.DecayRate, Reason: "must be finite and positive"}
	}
	if src.Profile != "" && src.Profile != models.EmissionExponential {
		return nil, &models.ValidationError{Field: "profile", Value: src.Profile, Reason: "unknown emission profile"}
	}
	return &Capsule{dose: src.Dose, k: src.DecayRate}, nil
}

// Dose returns the total mass released over infinite time.
func (c *Capsule) Dose() float64 { return c.dose }

// Rate returns the emission rate S(t) = dose·k·exp(-k·t). Zero before t=0.
func (c *Capsule) Rate(t float64) float64 {
	if t < 0 {
		return 0
	}
	return c.dose * c.k * math.Exp(-c.k*t)
}

// Released returns the cumulative mass emitted by time t.
func (c *Capsule) Released(t float64) float64 {
	if t <= 0 {
		return 0
	}
	return c.dose * -math.Expm1(-c.k*t)
}

// ReleasedBetween returns the mass emitted in [t0, t1]. The solver uses it
// instead of Rate·dt so the emitted total matches the dose exactly.
func (c *Capsule) ReleasedBetween(t0, t1 float64) float64 {
	if t1 <= t0 {
		return 0
	}
	return c.Released(t1) - c.Released(t0)
}

// HalfLife returns the time for the release rate to halve.
func (c *Capsule) HalfLife() float64 {
	return math.Ln2 / c.k
}

// DoseForRadius rescales a dose so a run that reached currentRadius would
// reach targetRadius instead, using the r ∝ √dose scaling of the point-source
// solution. Returns 0 when currentRadius is not positive.
func DoseForRadius(dose, currentRadius, targetRadius float64) float64 {
	if currentRadius <= 0 || targetRadius < 0 {
		return 0
	}
	ratio := targetRadius / currentRadius
	return dose * ratio * ratio
}

// Patient carries the per-patient factors applied to a tuned dose.
type Patient struct {
	// WBCMultiplier scales the dose with the patient's white cell count
	// relative to a reference count.
	WBCMultiplier float64
	Severity      constants.Severity
}

// Validate checks the patient factors. An empty severity is moderate.
func (pt Patient) Validate() error {
	if math.IsNaN(pt.WBCMultiplier) || math.IsInf(pt.WBCMultiplier, 0) || pt.WBCMultiplier <= 0 {
		return &models.ValidationError{Field: "wbc-multiplier", Value: pt.WBCMultiplier, Reason: "must be finite and positive"}
	}
	if pt.Severity != "" && !pt.Severity.Valid() {
		return &models.ValidationError{Field: "severity", Value: pt.Severity, Reason: "must be mild, moderate or severe"}
	}
	return nil
}

// AdjustDose applies the patient factors to dose.
func (pt Patient) AdjustDose(dose float64) float64 {
	return dose * pt.WBCMultiplier * pt.Severity.Factor()
}

// SafetyLimits bounds a recommended dose and the radius it targets. A zero
// limit is unbounded.
type SafetyLimits struct {
	MaxDose   float64
	MaxRadius float64
}

// Approve reports whether dose and radius lie strictly below their limits.
func (l SafetyLimits) Approve(dose, radius float64) bool {
	if l.MaxDose > 0 && dose >= l.MaxDose {
		return false
	}
	if l.MaxRadius > 0 && radius >= l.MaxRadius {
		return false
	}
	return true
}
