package models

import "time"

// Sample is one recorded point of a run's activation time series.
type Sample struct {
	Time   float64 `json:"time"`
	Radius float64 `json:"activation_radius"`
}

// SimulationRun is the complete, immutable record of one solver invocation:
// the inputs and the derived (time, activation_radius) series. Full field
// snapshots are never retained.
type SimulationRun struct {
	Params ParameterSet `json:"params"`
	Series []Sample     `json:"series"`

	// DomainUndersized is set when every cell reached the threshold at some
	// recorded time; the reported radius was clamped to the domain extent.
	DomainUndersized bool     `json:"domain_undersized"`
	Warnings         []string `json:"warnings,omitempty"`

	// PeakConcentration is the largest source-cell concentration recorded.
	PeakConcentration float64 `json:"peak_concentration"`

	// ReleasedMass is the cumulative emission at the final time.
	ReleasedMass float64 `json:"released_mass"`

	// FinalMass is Σ C·V over the grid at the final time.
	FinalMass float64 `json:"final_mass"`

	TimeStep float64 `json:"time_step"`
	Steps    int     `json:"steps"`
}

// Radii returns the radius column of the series.
func (r *SimulationRun) Radii() []float64 {
	out := make([]float64, len(r.Series))
	for i, s := range r.Series {
		out[i] = s.Radius
	}
	return out
}

// MaxRadius returns the largest recorded activation radius.
func (r *SimulationRun) MaxRadius() float64 {
	var m float64
	for _, s := range r.Series {
		if s.Radius > m {
			m = s.Radius
		}
	}
	return m
}

// ResultRecord is one row of the exported dataset.
type ResultRecord struct {
	Time                 float64 `json:"time"`
	ActivationRadius     float64 `json:"activation_radius"`
	Dose                 float64 `json:"dose"`
	DiffusionCoefficient float64 `json:"diffusion_coefficient"`
	DecayRate            float64 `json:"decay_rate"`
	ActivationThreshold  float64 `json:"activation_threshold"`
}

// Records derives the export rows of a run in ascending time.
func (r *SimulationRun) Records() []ResultRecord {
	out := make([]ResultRecord, len(r.Series))
	for i, s := range r.Series {
		out[i] = ResultRecord{
			Time:                 s.Time,
			ActivationRadius:     s.Radius,
			Dose:                 r.Params.Dose,
			DiffusionCoefficient: r.Params.DiffusionCoefficient,
			DecayRate:            r.Params.DecayRate,
			ActivationThreshold:  r.Params.ActivationThreshold,
		}
	}
	return out
}

// CachedRun is a run as held by a result cache.
type CachedRun struct {
	Key       string         `json:"key"`
	Run       *SimulationRun `json:"run"`
	CreatedAt time.Time      `json:"created_at"`
}
