// Package models defines the core data types of the capsule field engine:
// parameter sets, the derived immutable views each component consumes,
// simulation runs, exported records, and the error taxonomy.
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/nvandessel/rbdc/internal/constants"
)

// ParameterSet enumerates every recognized run option. Each entry of a sweep
// fully determines one SimulationRun.
type ParameterSet struct {
	// Dose is the total mass the capsule releases over infinite time.
	Dose float64 `json:"dose" yaml:"dose" toml:"dose"`

	// DecayRate is the capsule degradation constant k.
	DecayRate float64 `json:"decay_rate" yaml:"decay_rate" toml:"decay_rate"`

	// DiffusionCoefficient is D.
	DiffusionCoefficient float64 `json:"diffusion_coefficient" yaml:"diffusion_coefficient" toml:"diffusion_coefficient"`

	// ReactionDecayRate is λ, first-order consumption of the chemoattractant.
	ReactionDecayRate float64 `json:"reaction_decay_rate" yaml:"reaction_decay_rate" toml:"reaction_decay_rate"`

	// ActivationThreshold is the cutoff concentration.
	ActivationThreshold float64 `json:"activation_threshold" yaml:"activation_threshold" toml:"activation_threshold"`

	// GridExtent is the distance from the source to the domain edge.
	GridExtent float64 `json:"grid_extent" yaml:"grid_extent" toml:"grid_extent"`

	// GridResolution is the cell spacing.
	GridResolution float64 `json:"grid_resolution" yaml:"grid_resolution" toml:"grid_resolution"`

	// Dimensions is the spatial dimensionality (1, 2 or 3).
	Dimensions int `json:"dimensions" yaml:"dimensions" toml:"dimensions"`

	Geometry          constants.Geometry `json:"geometry" yaml:"geometry" toml:"geometry"`
	BoundaryCondition constants.Boundary `json:"boundary_condition" yaml:"boundary_condition" toml:"boundary_condition"`
	Scheme            constants.Scheme   `json:"scheme" yaml:"scheme" toml:"scheme"`

	// TimeStep is the internal solver step. Zero selects it automatically.
	TimeStep float64 `json:"time_step" yaml:"time_step" toml:"time_step"`

	// Duration is the simulated time span.
	Duration float64 `json:"duration" yaml:"duration" toml:"duration"`

	// RecordInterval is the spacing between recorded samples.
	RecordInterval float64 `json:"record_interval" yaml:"record_interval" toml:"record_interval"`
}

// DefaultParameters returns the built-in parameter set.
// The boundary is absorbing so the canonical series rises and then decays
// back to zero once the capsule is spent.
func DefaultParameters() ParameterSet {
	return ParameterSet{
		Dose:                 constants.DefaultDose,
		DecayRate:            constants.DefaultDecayRate,
		DiffusionCoefficient: constants.DefaultDiffusionCoefficient,
		ReactionDecayRate:    constants.DefaultReactionDecayRate,
		ActivationThreshold:  constants.DefaultActivationThreshold,
		GridExtent:           constants.DefaultGridExtent,
		GridResolution:       constants.DefaultGridResolution,
		Dimensions:           constants.DefaultDimensions,
		Geometry:             constants.GeometryRadial,
		BoundaryCondition:    constants.BoundaryAbsorbing,
		Scheme:               constants.SchemeExplicit,
		Duration:             constants.DefaultDuration,
		RecordInterval:       constants.DefaultRecordInterval,
	}
}

// WithDefaults fills unset enumerations and dimensionality.
// Numeric options are never defaulted here: zero is a meaningful value.
func (p ParameterSet) WithDefaults() ParameterSet {
	if p.Dimensions == 0 {
		p.Dimensions = constants.DefaultDimensions
	}
	if p.Geometry == "" {
		p.Geometry = constants.GeometryRadial
	}
	if p.BoundaryCondition == "" {
		p.BoundaryCondition = constants.BoundaryReflecting
	}
	if p.Scheme == "" {
		p.Scheme = constants.SchemeExplicit
	}
	return p
}

// Limits on the discretization size accepted by Validate.
const (
	minCellsPerAxis = 2
	maxTotalCells   = 5_000_000
	maxRecords      = 1_000_000

	// cellFitTolerance is the relative slack allowed when grid_extent is
	// divided into whole cells of grid_resolution.
	cellFitTolerance = 1e-9
)

// Validate checks every option before a run starts. Unset enumerations are
// defaulted first. All violations are reported, joined; each is a *ValidationError.
func (p ParameterSet) Validate() error {
	p = p.WithDefaults()
	var errs []error
	add := func(field string, value any, reason string) {
		errs = append(errs, &ValidationError{Field: field, Value: value, Reason: reason})
	}

	nonNegative := []struct {
		field string
		value float64
	}{
		{"dose", p.Dose},
		{"decay_rate", p.DecayRate},
		{"diffusion_coefficient", p.DiffusionCoefficient},
		{"reaction_decay_rate", p.ReactionDecayRate},
		{"activation_threshold", p.ActivationThreshold},
		{"grid_extent", p.GridExtent},
		{"grid_resolution", p.GridResolution},
		{"time_step", p.TimeStep},
		{"duration", p.Duration},
		{"record_interval", p.RecordInterval},
	}
	for _, nn := range nonNegative {
		switch {
		case math.IsNaN(nn.value) || math.IsInf(nn.value, 0):
			add(nn.field, nn.value, "must be finite")
		case nn.value < 0:
			add(nn.field, nn.value, "must be non-negative")
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	if p.DecayRate == 0 {
		add("decay_rate", p.DecayRate, "must be positive")
	}
	if p.ActivationThreshold == 0 {
		add("activation_threshold", p.ActivationThreshold, "must be positive: a zero cutoff activates the whole domain")
	}
	if p.GridExtent == 0 {
		add("grid_extent", p.GridExtent, "must be positive")
	}
	if p.GridResolution == 0 {
		add("grid_resolution", p.GridResolution, "must be positive")
	}
	if p.RecordInterval == 0 {
		add("record_interval", p.RecordInterval, "must be positive")
	}

	if p.Dimensions < 1 || p.Dimensions > 3 {
		add("dimensions", p.Dimensions, "must be 1, 2 or 3")
	}
	if !p.Geometry.Valid() {
		add("geometry", p.Geometry, "must be radial or cartesian")
	}
	if !p.BoundaryCondition.Valid() {
		add("boundary_condition", p.BoundaryCondition, "must be reflecting or absorbing")
	}
	if !p.Scheme.Valid() {
		add("scheme", p.Scheme, "must be explicit or implicit")
	}
	if p.Scheme == constants.SchemeImplicit && p.Geometry == constants.GeometryCartesian {
		add("scheme", p.Scheme, "implicit stepping is only supported on radial grids")
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	perAxis := p.GridExtent / p.GridResolution
	if perAxis < minCellsPerAxis {
		add("grid_resolution", p.GridResolution, fmt.Sprintf("must leave at least %d cells across grid_extent", minCellsPerAxis))
	} else if math.Abs(perAxis-math.Round(perAxis)) > cellFitTolerance*perAxis {
		add("grid_resolution", p.GridResolution, fmt.Sprintf("must divide grid_extent %g into whole cells, got %.6g", p.GridExtent, perAxis))
	} else if total := p.Grid().TotalCells(); total > maxTotalCells {
		add("grid_resolution", p.GridResolution, fmt.Sprintf("grid has %d cells, limit is %d", total, maxTotalCells))
	}
	if p.Duration/p.RecordInterval > maxRecords {
		add("record_interval", p.RecordInterval, fmt.Sprintf("more than %d records requested", maxRecords))
	}

	return errors.Join(errs...)
}

// Source returns the capsule view of the parameters.
func (p ParameterSet) Source() CapsuleSource {
	return CapsuleSource{
		Dose:      p.Dose,
		DecayRate: p.DecayRate,
		Profile:   EmissionExponential,
	}
}

// Diffusion returns the transport view of the parameters.
func (p ParameterSet) Diffusion() DiffusionParameters {
	p = p.WithDefaults()
	return DiffusionParameters{
		Coefficient: p.DiffusionCoefficient,
		DecayRate:   p.ReactionDecayRate,
		Boundary:    p.BoundaryCondition,
	}
}

// Grid returns the spatial domain described by the parameters.
func (p ParameterSet) Grid() SpatialGrid {
	p = p.WithDefaults()
	n := int(math.Round(p.GridExtent / p.GridResolution))
	return SpatialGrid{
		Dimensions: p.Dimensions,
		Geometry:   p.Geometry,
		Spacing:    p.GridResolution,
		CellsAxis:  n,
	}
}

// Threshold returns the activation cutoff.
func (p ParameterSet) Threshold() ActivationThreshold {
	return ActivationThreshold(p.ActivationThreshold)
}

// Key returns a stable content hash of the parameter set, used to cache runs.
// Two sets that differ only in unset enumerations hash identically.
func (p ParameterSet) Key() string {
	p = p.WithDefaults()
	h := sha256.New()
	for _, name := range ParameterNames() {
		v, _ := p.Get(name)
		fmt.Fprintf(h, "%s=%s;", name, v)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// String renders the parameters that identify a run in reports.
func (p ParameterSet) String() string {
	return fmt.Sprintf("dose=%g decay_rate=%g diffusion_coefficient=%g reaction_decay_rate=%g activation_threshold=%g grid_extent=%g grid_resolution=%g",
		p.Dose, p.DecayRate, p.DiffusionCoefficient, p.ReactionDecayRate, p.ActivationThreshold, p.GridExtent, p.GridResolution)
}

// numericFields maps option names to their float fields.
func (p *ParameterSet) numericFields() map[string]*float64 {
	return map[string]*float64{
		"dose":                  &p.Dose,
		"decay_rate":            &p.DecayRate,
		"diffusion_coefficient": &p.DiffusionCoefficient,
		"reaction_decay_rate":   &p.ReactionDecayRate,
		"activation_threshold":  &p.ActivationThreshold,
		"grid_extent":           &p.GridExtent,
		"grid_resolution":       &p.GridResolution,
		"time_step":             &p.TimeStep,
		"duration":              &p.Duration,
		"record_interval":       &p.RecordInterval,
	}
}

// NumericParameterNames lists the options that accept numeric values, sorted.
func NumericParameterNames() []string {
	var p ParameterSet
	names := make([]string, 0, 11)
	for name := range p.numericFields() {
		names = append(names, name)
	}
	names = append(names, "dimensions")
	sort.Strings(names)
	return names
}

// ParameterNames lists every recognized option, sorted.
func ParameterNames() []string {
	names := append(NumericParameterNames(), "geometry", "boundary_condition", "scheme")
	sort.Strings(names)
	return names
}

// SetNumber assigns a numeric option by name.
func (p *ParameterSet) SetNumber(name string, v float64) error {
	if name == "dimensions" {
		if v != math.Trunc(v) {
			return &ValidationError{Field: name, Value: v, Reason: "must be an integer"}
		}
		p.Dimensions = int(v)
		return nil
	}
	field, ok := p.numericFields()[name]
	if !ok {
		return &ValidationError{Field: name, Value: v, Reason: "unknown numeric parameter"}
	}
	*field = v
	return nil
}

// Set assigns any option by name from its textual form.
func (p *ParameterSet) Set(name, raw string) error {
	raw = strings.TrimSpace(raw)
	switch name {
	case "geometry":
		p.Geometry = constants.Geometry(raw)
		return nil
	case "boundary_condition":
		p.BoundaryCondition = constants.Boundary(raw)
		return nil
	case "scheme":
		p.Scheme = constants.Scheme(raw)
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return &ValidationError{Field: name, Value: raw, Reason: "not a number"}
	}
	return p.SetNumber(name, v)
}

// Get returns the textual value of an option by name.
func (p ParameterSet) Get(name string) (string, error) {
	switch name {
	case "geometry":
		return string(p.Geometry), nil
	case "boundary_condition":
		return string(p.BoundaryCondition), nil
	case "scheme":
		return string(p.Scheme), nil
	case "dimensions":
		return strconv.Itoa(p.Dimensions), nil
	}
	field, ok := p.numericFields()[name]
	if !ok {
		return "", &ValidationError{Field: name, Reason: "unknown parameter"}
	}
	return strconv.FormatFloat(*field, 'g', -1, 64), nil
}
