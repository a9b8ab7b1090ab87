package chart

import (
	"context"
	"fmt"
	"time"

	"amr-charts/internal/benchmark"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/merge"
	"amr-charts/internal/metrics"
	"amr-charts/internal/postprocess"
	"amr-charts/internal/result"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Options tune an Engine. Zero values select the defaults.
type Options struct {
	Parallelism               int
	IgnoreSingleSeriesFailure bool
	Benchmarks                energy.AnnualUsageBenchmarkService
	Metrics                   *metrics.Metrics
}

// Engine resolves chart configurations and runs them against schools.
type Engine struct {
	registry *chartconfig.Registry
	injector *benchmark.Injector
	opts     Options
}

// New creates an Engine over a loaded registry.
func New(registry *chartconfig.Registry, opts Options) *Engine {
	if opts.Benchmarks == nil {
		opts.Benchmarks = benchmark.NewService(nil)
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = merge.DefaultParallelism
	}
	return &Engine{registry: registry, injector: benchmark.NewInjector(opts.Benchmarks), opts: opts}
}

// Registry returns the chart definitions the engine resolves against.
func (e *Engine) Registry() *chartconfig.Registry {
	return e.registry
}

// Request names a chart, optional overrides and the schools to chart. The first school is the target:
// benchmarks and legend placeholders refer to it.
type Request struct {
	Chart     string
	Overrides map[string]any
	Schools   []*energy.School
	// RequestID is generated when empty.
	RequestID string
}

// GetConfig returns the fully resolved configuration of a chart without running it.
func (e *Engine) GetConfig(name string, overrides map[string]any) (*chartconfig.ReportConfig, error) {
	cfg, err := e.registry.Resolve(name, overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("chart %s: %w", name, err)
	}
	return cfg, nil
}

// Run resolves the chart and executes it.
func (e *Engine) Run(ctx context.Context, req Request) (*result.ResultSet, error) {
	cfg, err := e.GetConfig(req.Chart, req.Overrides)
	if err != nil {
		e.opts.Metrics.ChartRun(req.Chart, 0, 0, err)
		return nil, err
	}
	return e.RunConfig(ctx, cfg, req.Schools, req.RequestID)
}

// RunConfig executes an already resolved configuration: merge, benchmark injection, then post-processing.
func (e *Engine) RunConfig(ctx context.Context, cfg *chartconfig.ReportConfig, schools []*energy.School, requestID string) (set *result.ResultSet, err error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	start := time.Now()
	defer func() {
		series, periods := 0, 0
		if set != nil {
			series, periods = len(set.Keys), len(set.Metadata.Periods)
		}
		e.opts.Metrics.ChartRun(cfg.Name, time.Since(start), series, err)
		ev := log.Info()
		if err != nil {
			ev = log.Error().Err(err)
		}
		ev.Str("request_id", requestID).
			Str("chart", cfg.Name).
			Int("schools", len(schools)).
			Int("periods", periods).
			Int("series", series).
			Dur("duration", time.Since(start)).
			Msg("Chart run")
	}()

	// 1. Aggregate and merge every (school, period) branch
	scaling := cfg.Scaling()
	out, err := merge.Run(ctx, merge.Request{
		Config:                    cfg,
		Schools:                   schools,
		Parallelism:               e.opts.Parallelism,
		IgnoreSingleSeriesFailure: e.opts.IgnoreSingleSeriesFailure,
		Transform: func(school *energy.School, set *result.ResultSet) error {
			return postprocess.ScaleFor(set, scaling, school)
		},
		OnBranch: func(school, period string, err error) {
			if err != nil {
				e.opts.Metrics.BranchFailed(cfg.Name)
			}
		},
	})
	if err != nil {
		return nil, err
	}
	set = out.Set
	target := schools[0]

	// 2. Reference schools
	if cfg.Benchmark != nil {
		if set, err = e.injector.Inject(set, target, &out.Config); err != nil {
			return nil, fmt.Errorf("chart %s: %w", cfg.Name, err)
		}
	}

	// 3. Output transforms
	if set, err = postprocess.Run(set, &out.Config, target); err != nil {
		return nil, fmt.Errorf("chart %s: %w", cfg.Name, err)
	}
	set.Metadata.RequestID = requestID
	if err = set.Validate(); err != nil {
		return nil, fmt.Errorf("chart %s: %w", cfg.Name, err)
	}
	return set, nil
}
