// Package sweep expands a parameter sweep configuration into ordered
// parameter sets and runs them as independent tasks.
package sweep

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/nvandessel/rbdc/internal/config"
	"github.com/nvandessel/rbdc/internal/constants"
	"github.com/nvandessel/rbdc/internal/models"
)

// Config is a ParameterSweepConfig. Exactly one of Runs or Ranges may be
// set; with neither, the sweep is the base parameter set alone.
type Config struct {
	// Base supplies every option a run or range does not set.
	Base models.ParameterSet `json:"base" yaml:"base" toml:"base"`

	// Runs is an explicit list of parameter sets, each given as overrides
	// of Base.
	Runs []Overrides `json:"runs,omitempty" yaml:"runs,omitempty" toml:"runs,omitempty"`

	// Ranges are combined by cartesian product in declared order; the last
	// range varies fastest.
	Ranges []Range `json:"ranges,omitempty" yaml:"ranges,omitempty" toml:"ranges,omitempty"`

	// Workers bounds concurrent runs. Zero means GOMAXPROCS.
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" toml:"workers,omitempty"`
}

// Overrides maps option names to values: numbers for numeric options,
// strings for enumerations.
type Overrides map[string]any

// Range is one swept numeric option: either explicit Values, or the
// arithmetic sequence Start, Start+Step, … up to End inclusive.
type Range struct {
	Name   string    `json:"name" yaml:"name" toml:"name"`
	Values []float64 `json:"values,omitempty" yaml:"values,omitempty" toml:"values,omitempty"`
	Start  float64   `json:"start,omitempty" yaml:"start,omitempty" toml:"start,omitempty"`
	End    float64   `json:"end,omitempty" yaml:"end,omitempty" toml:"end,omitempty"`
	Step   float64   `json:"step,omitempty" yaml:"step,omitempty" toml:"step,omitempty"`
}

// LoadConfig reads a sweep file (YAML, TOML or JSON). An omitted base
// defaults to base.
func LoadConfig(path string, base models.ParameterSet) (Config, error) {
	cfg := Config{Base: base}
	if err := config.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Apply returns p with the overrides applied in name order.
func (o Overrides) Apply(p models.ParameterSet) (models.ParameterSet, error) {
	known := models.ParameterNames()
	names := make([]string, 0, len(o))
	for name := range o {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if !slices.Contains(known, name) {
			return p, &models.ValidationError{Field: name, Reason: "unknown parameter"}
		}
		var err error
		switch v := o[name].(type) {
		case float64:
			err = p.SetNumber(name, v)
		case int:
			err = p.SetNumber(name, float64(v))
		case int64:
			err = p.SetNumber(name, float64(v))
		case string:
			err = p.Set(name, v)
		default:
			err = &models.ValidationError{Field: name, Value: v, Reason: fmt.Sprintf("unsupported value type %T", v)}
		}
		if err != nil {
			return p, err
		}
	}
	return p, nil
}

// Expand returns the range's values.
func (r Range) Expand() ([]float64, error) {
	if len(r.Values) > 0 {
		return slices.Clone(r.Values), nil
	}
	if !(r.Step > 0) || math.IsInf(r.Step, 0) {
		return nil, &models.ValidationError{Field: "ranges." + r.Name + ".step", Value: r.Step, Reason: "must be positive when no values are listed"}
	}
	if r.End < r.Start {
		return nil, &models.ValidationError{Field: "ranges." + r.Name + ".end", Value: r.End, Reason: fmt.Sprintf("must not be below start %g", r.Start)}
	}
	span := (r.End - r.Start) / r.Step
	if span+1 > constants.MaxSweepRuns {
		return nil, &models.ValidationError{Field: "ranges." + r.Name, Reason: fmt.Sprintf("expands to more than %d values", constants.MaxSweepRuns)}
	}
	n := int(math.Floor(span+1e-9)) + 1
	values := make([]float64, n)
	for k := range values {
		// Multiply rather than accumulate so values do not drift.
		values[k] = r.Start + float64(k)*r.Step
	}
	return values, nil
}

// Expand returns the ordered parameter sets of the sweep. Configuration
// errors are returned before any set is produced; a set that is itself
// invalid is still returned so its run can fail on its own.
func (c Config) Expand() ([]models.ParameterSet, error) {
	if c.Workers < 0 {
		return nil, &models.ValidationError{Field: "workers", Value: c.Workers, Reason: "must be non-negative"}
	}
	if len(c.Runs) > 0 && len(c.Ranges) > 0 {
		return nil, &models.ValidationError{Field: "runs", Reason: "runs and ranges are mutually exclusive"}
	}

	switch {
	case len(c.Runs) > 0:
		if len(c.Runs) > constants.MaxSweepRuns {
			return nil, &models.ValidationError{Field: "runs", Reason: fmt.Sprintf("more than %d runs", constants.MaxSweepRuns)}
		}
		sets := make([]models.ParameterSet, len(c.Runs))
		for i, o := range c.Runs {
			p, err := o.Apply(c.Base)
			if err != nil {
				return nil, fmt.Errorf("runs[%d]: %w", i, err)
			}
			sets[i] = p
		}
		return sets, nil

	case len(c.Ranges) > 0:
		return c.expandRanges()

	default:
		return []models.ParameterSet{c.Base}, nil
	}
}

func (c Config) expandRanges() ([]models.ParameterSet, error) {
	numeric := models.NumericParameterNames()
	seen := make(map[string]bool, len(c.Ranges))
	values := make([][]float64, len(c.Ranges))
	total := 1

	for i, r := range c.Ranges {
		if !slices.Contains(numeric, r.Name) {
			return nil, &models.ValidationError{Field: "ranges", Value: r.Name, Reason: "not a numeric parameter"}
		}
		if seen[r.Name] {
			return nil, &models.ValidationError{Field: "ranges", Value: r.Name, Reason: "parameter swept twice"}
		}
		seen[r.Name] = true

		vals, err := r.Expand()
		if err != nil {
			return nil, err
		}
		values[i] = vals
		total *= len(vals)
		if total > constants.MaxSweepRuns {
			return nil, &models.ValidationError{Field: "ranges", Reason: fmt.Sprintf("sweep expands to more than %d runs", constants.MaxSweepRuns)}
		}
	}

	sets := make([]models.ParameterSet, total)
	for i := range sets {
		sets[i] = c.Base
	}
	repeat := 1
	for dim := len(c.Ranges) - 1; dim >= 0; dim-- {
		vals := values[dim]
		for i := range sets {
			if err := sets[i].SetNumber(c.Ranges[dim].Name, vals[(i/repeat)%len(vals)]); err != nil {
				return nil, err
			}
		}
		repeat *= len(vals)
	}
	return sets, nil
}
