package mcp

import (
	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/sweep"
)

// ParameterOverrides are optional run options. Unset fields keep the
// server's base parameter set.
type ParameterOverrides struct {
	Dose                 *float64 `json:"dose,omitempty" jsonschema:"total capsule dose"`
	DecayRate            *float64 `json:"decay_rate,omitempty" jsonschema:"capsule degradation rate constant k"`
	DiffusionCoefficient *float64 `json:"diffusion_coefficient,omitempty" jsonschema:"diffusion coefficient D"`
	ReactionDecayRate    *float64 `json:"reaction_decay_rate,omitempty" jsonschema:"first-order chemoattractant decay rate"`
	ActivationThreshold  *float64 `json:"activation_threshold,omitempty" jsonschema:"concentration cutoff for cell activation"`
	GridExtent           *float64 `json:"grid_extent,omitempty" jsonschema:"distance from the source to the domain edge"`
	GridResolution       *float64 `json:"grid_resolution,omitempty" jsonschema:"cell spacing"`
	Dimensions           *int     `json:"dimensions,omitempty" jsonschema:"spatial dimensionality: 1, 2 or 3"`
	Geometry             *string  `json:"geometry,omitempty" jsonschema:"radial or cartesian"`
	BoundaryCondition    *string  `json:"boundary_condition,omitempty" jsonschema:"reflecting or absorbing"`
	Scheme               *string  `json:"scheme,omitempty" jsonschema:"explicit or implicit"`
	TimeStep             *float64 `json:"time_step,omitempty" jsonschema:"solver step; omit for automatic"`
	Duration             *float64 `json:"duration,omitempty" jsonschema:"simulated time span"`
	RecordInterval       *float64 `json:"record_interval,omitempty" jsonschema:"spacing between recorded samples"`
}

// Apply returns base with the set fields replaced.
func (o ParameterOverrides) Apply(base models.ParameterSet) models.ParameterSet {
	p := base
	setF := func(dst *float64, v *float64) {
		if v != nil {
			*dst = *v
		}
	}
	setF(&p.Dose, o.Dose)
	setF(&p.DecayRate, o.DecayRate)
	setF(&p.DiffusionCoefficient, o.DiffusionCoefficient)
	setF(&p.ReactionDecayRate, o.ReactionDecayRate)
	setF(&p.ActivationThreshold, o.ActivationThreshold)
	setF(&p.GridExtent, o.GridExtent)
	setF(&p.GridResolution, o.GridResolution)
	setF(&p.TimeStep, o.TimeStep)
	setF(&p.Duration, o.Duration)
	setF(&p.RecordInterval, o.RecordInterval)
	if o.Dimensions != nil {
		p.Dimensions = *o.Dimensions
	}
	if o.Geometry != nil {
		p.Geometry = constants.Geometry(*o.Geometry)
	}
	if o.BoundaryCondition != nil {
		p.BoundaryCondition = constants.Boundary(*o.BoundaryCondition)
	}
	if o.Scheme != nil {
		p.Scheme = constants.Scheme(*o.Scheme)
	}
	return p
}

// auditParams returns the set fields for the audit log.
func (o ParameterOverrides) auditParams() map[string]any {
	params := make(map[string]any)
	add := func(name string, set bool, v any) {
		if set {
			params[name] = v
		}
	}
	add("dose", o.Dose != nil, deref(o.Dose))
	add("decay_rate", o.DecayRate != nil, deref(o.DecayRate))
	add("diffusion_coefficient", o.DiffusionCoefficient != nil, deref(o.DiffusionCoefficient))
	add("reaction_decay_rate", o.ReactionDecayRate != nil, deref(o.ReactionDecayRate))
	add("activation_threshold", o.ActivationThreshold != nil, deref(o.ActivationThreshold))
	add("grid_extent", o.GridExtent != nil, deref(o.GridExtent))
	add("grid_resolution", o.GridResolution != nil, deref(o.GridResolution))
	add("time_step", o.TimeStep != nil, deref(o.TimeStep))
	add("duration", o.Duration != nil, deref(o.Duration))
	add("record_interval", o.RecordInterval != nil, deref(o.RecordInterval))
	add("dimensions", o.Dimensions != nil, deref(o.Dimensions))
	add("geometry", o.Geometry != nil, deref(o.Geometry))
	add("boundary_condition", o.BoundaryCondition != nil, deref(o.BoundaryCondition))
	add("scheme", o.Scheme != nil, deref(o.Scheme))
	return params
}

func deref[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// RBDCQueryInput defines the input for the rbdc_query tool.
type RBDCQueryInput = ParameterOverrides

// RBDCQueryOutput defines the output for the rbdc_query tool.
type RBDCQueryOutput struct {
	Params           models.ParameterSet `json:"params" jsonschema:"parameter set the series was produced from"`
	Series           []models.Sample     `json:"series" jsonschema:"activation radius at each recorded time"`
	Source           string              `json:"source" jsonschema:"dataset, cache or computed"`
	MaxRadius        float64             `json:"max_radius" jsonschema:"largest activation radius in the series"`
	DomainUndersized bool                `json:"domain_undersized,omitempty" jsonschema:"set when the radius was clamped to the domain extent"`
	Warnings         []string            `json:"warnings,omitempty" jsonschema:"diagnostics raised by the run"`
}

// RBDCDefaultsInput defines the input for the rbdc_defaults tool.
type RBDCDefaultsInput struct{}

// RBDCDefaultsOutput defines the output for the rbdc_defaults tool.
type RBDCDefaultsOutput struct {
	Params     models.ParameterSet `json:"params" jsonschema:"base parameter set queries start from"`
	Parameters []string            `json:"parameters" jsonschema:"every recognized option name"`
	Numeric    []string            `json:"numeric" jsonschema:"options a sweep range may vary"`
}

// RBDCSweepInput defines the input for the rbdc_sweep tool.
type RBDCSweepInput struct {
	Base       ParameterOverrides `json:"base,omitempty" jsonschema:"overrides of the server's base parameter set"`
	Runs       []sweep.Overrides  `json:"runs,omitempty" jsonschema:"explicit parameter sets as option-name to value maps"`
	Ranges     []sweep.Range      `json:"ranges,omitempty" jsonschema:"swept options combined by cartesian product; last varies fastest"`
	Workers    int                `json:"workers,omitempty" jsonschema:"concurrent runs; 0 uses the server default"`
	OutputPath string             `json:"output_path" jsonschema:"CSV file to write; must lie in the allowed output directory"`
}

// RBDCSweepOutput defines the output for the rbdc_sweep tool.
type RBDCSweepOutput struct {
	Path     string        `json:"path" jsonschema:"dataset file written"`
	Runs     int           `json:"runs" jsonschema:"parameter sets in the sweep"`
	Records  int           `json:"records" jsonschema:"rows written"`
	Failed   int           `json:"failed" jsonschema:"runs that failed"`
	Failures []FailureItem `json:"failures,omitempty" jsonschema:"each failed run with its error"`
	Message  string        `json:"message" jsonschema:"human-readable summary"`
}

// FailureItem describes one failed sweep run.
type FailureItem struct {
	Index  int    `json:"index"`
	Params string `json:"params"`
	Kind   string `json:"kind"`
	Error  string `json:"error"`
}
