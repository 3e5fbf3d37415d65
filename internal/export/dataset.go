package export

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/nvandessel/rbdc/internal/models"
)

// Key identifies one parameter set within a dataset: the four parameters
// the dataset records.
type Key struct {
	Dose                 float64
	DiffusionCoefficient float64
	DecayRate            float64
	ActivationThreshold  float64
}

// KeyOf returns the dataset key of a parameter set.
func KeyOf(p models.ParameterSet) Key {
	return Key{
		Dose:                 p.Dose,
		DiffusionCoefficient: p.DiffusionCoefficient,
		DecayRate:            p.DecayRate,
		ActivationThreshold:  p.ActivationThreshold,
	}
}

// canonical rounds k to the precision the dataset stores, so a key built
// from a parameter set matches the same set read back from a file.
func (k Key) canonical() Key {
	round := func(v float64) float64 {
		r, err := strconv.ParseFloat(FormatFloat(v), 64)
		if err != nil {
			return v
		}
		return r
	}
	return Key{
		Dose:                 round(k.Dose),
		DiffusionCoefficient: round(k.DiffusionCoefficient),
		DecayRate:            round(k.DecayRate),
		ActivationThreshold:  round(k.ActivationThreshold),
	}
}

// String renders the key the way reports print parameter sets.
func (k Key) String() string {
	return fmt.Sprintf("dose=%g diffusion_coefficient=%g decay_rate=%g activation_threshold=%g",
		k.Dose, k.DiffusionCoefficient, k.DecayRate, k.ActivationThreshold)
}

// Dataset is an indexed, read-only set of exported series.
type Dataset struct {
	series    map[Key][]models.Sample
	ambiguous map[Key]bool
	order     []Key
}

// Index groups records by parameter set. Each group is sorted by time.
// A key that repeats a time belongs to runs that differ only in parameters
// the dataset does not record; such keys are kept in Keys but never match
// a Lookup.
func Index(records []models.ResultRecord) *Dataset {
	d := &Dataset{
		series:    make(map[Key][]models.Sample),
		ambiguous: make(map[Key]bool),
	}
	for _, r := range records {
		k := Key{
			Dose:                 r.Dose,
			DiffusionCoefficient: r.DiffusionCoefficient,
			DecayRate:            r.DecayRate,
			ActivationThreshold:  r.ActivationThreshold,
		}.canonical()
		if _, ok := d.series[k]; !ok {
			d.order = append(d.order, k)
		}
		d.series[k] = append(d.series[k], models.Sample{Time: r.Time, Radius: r.ActivationRadius})
	}
	for _, k := range d.order {
		s := d.series[k]
		sort.SliceStable(s, func(i, j int) bool { return s[i].Time < s[j].Time })
		for i := 1; i < len(s); i++ {
			if s[i].Time == s[i-1].Time {
				d.ambiguous[k] = true
				break
			}
		}
	}
	return d
}

// LoadDataset reads and indexes a dataset file.
func LoadDataset(path string) (*Dataset, error) {
	records, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Index(records), nil
}

// Lookup returns a copy of the series recorded for k.
func (d *Dataset) Lookup(k Key) ([]models.Sample, bool) {
	if d == nil {
		return nil, false
	}
	k = k.canonical()
	s, ok := d.series[k]
	if !ok || d.ambiguous[k] {
		return nil, false
	}
	out := make([]models.Sample, len(s))
	copy(out, s)
	return out, true
}

// Keys returns the dataset's parameter sets in first-seen order.
func (d *Dataset) Keys() []Key {
	if d == nil {
		return nil
	}
	out := make([]Key, len(d.order))
	copy(out, d.order)
	return out
}

// Len returns the number of parameter sets.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.order)
}
