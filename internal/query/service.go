// Package query answers "what is the activation-radius series for this
// parameter set?" from an exported dataset, the run cache, or a fresh
// computation, in that order.
package query

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/nvandessel/rbdc/internal/export"
	"github.com/nvandessel/rbdc/internal/logging"
	"github.com/nvandessel/rbdc/internal/models"
	"github.com/nvandessel/rbdc/internal/simulation"
	"github.com/nvandessel/rbdc/internal/store"
)

// Where a response came from.
const (
	SourceDataset  = "dataset"
	SourceCache    = "cache"
	SourceComputed = "computed"
)

// Response is the answer to one query: the inputs and the derived series.
// Field state is never exposed.
type Response struct {
	Params           models.ParameterSet `json:"params"`
	Series           []models.Sample     `json:"series"`
	Source           string              `json:"source"`
	DomainUndersized bool                `json:"domain_undersized,omitempty"`
	Warnings         []string            `json:"warnings,omitempty"`
}

// Service resolves queries. It is safe for concurrent use; concurrent
// queries for the same parameter set share one computation.
type Service struct {
	base      models.ParameterSet
	dataset   *export.Dataset
	cache     store.RunStore
	logger    *slog.Logger
	runLogger *logging.RunLogger
	group     singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithDataset consults d before the cache. Dataset series only answer
// queries whose unrecorded options equal the service's base.
func WithDataset(d *export.Dataset) Option {
	return func(s *Service) { s.dataset = d }
}

// WithCache stores computed runs in c. Without it an in-memory cache is used.
func WithCache(c store.RunStore) Option {
	return func(s *Service) { s.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithRunLogger records each computed run.
func WithRunLogger(rl *logging.RunLogger) Option {
	return func(s *Service) { s.runLogger = rl }
}

// NewService creates a Service whose dataset was produced from base.
func NewService(base models.ParameterSet, opts ...Option) *Service {
	s := &Service{base: base.WithDefaults()}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = store.NewInMemoryRunStore()
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Base returns the parameter set queries are resolved against.
func (s *Service) Base() models.ParameterSet {
	return s.base
}

// Query returns the series for p.
func (s *Service) Query(ctx context.Context, p models.ParameterSet) (*Response, error) {
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if series, ok := s.fromDataset(p); ok {
		s.logger.Debug("query answered from dataset", "params", p.String())
		return &Response{Params: p, Series: series, Source: SourceDataset}, nil
	}

	key := p.Key()
	cached, err := s.cache.Get(ctx, key)
	if err != nil {
		// A broken cache only costs a recomputation.
		s.logger.Warn("run cache read failed", "error", err)
	} else if cached != nil {
		s.logger.Debug("query answered from cache", "key", key)
		return newResponse(cached.Run, SourceCache), nil
	}

	for {
		ch := s.group.DoChan(key, func() (any, error) {
			return s.compute(ctx, p)
		})
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The computation belonged to a caller that gave up; ours is
				// still wanted, so start another.
				if isCanceled(res.Err) && ctx.Err() == nil {
					continue
				}
				return nil, res.Err
			}
			return newResponse(res.Val.(*models.SimulationRun), SourceComputed), nil
		}
	}
}

func (s *Service) compute(ctx context.Context, p models.ParameterSet) (*models.SimulationRun, error) {
	run, err := simulation.Run(ctx, p,
		simulation.WithLogger(s.logger),
		simulation.WithRunLogger(s.runLogger))
	if err != nil {
		return nil, err
	}
	if err := s.cache.Put(ctx, run); err != nil {
		s.logger.Warn("run cache write failed", "error", err)
	}
	return run, nil
}

// fromDataset answers p from the dataset when every option the dataset
// does not record matches the base.
func (s *Service) fromDataset(p models.ParameterSet) ([]models.Sample, bool) {
	if s.dataset == nil {
		return nil, false
	}
	others := p
	others.Dose = s.base.Dose
	others.DiffusionCoefficient = s.base.DiffusionCoefficient
	others.DecayRate = s.base.DecayRate
	others.ActivationThreshold = s.base.ActivationThreshold
	if others != s.base {
		return nil, false
	}
	return s.dataset.Lookup(export.KeyOf(p))
}

func newResponse(run *models.SimulationRun, source string) *Response {
	series := make([]models.Sample, len(run.Series))
	copy(series, run.Series)
	return &Response{
		Params:           run.Params,
		Series:           series,
		Source:           source,
		DomainUndersized: run.DomainUndersized,
		Warnings:         run.Warnings,
	}
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
