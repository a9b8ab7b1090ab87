package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"amr-charts/internal/aggregate"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/heating"
	"amr-charts/internal/period"
	"amr-charts/internal/result"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism bounds concurrent branches when the request does not.
const DefaultParallelism = 4

// Request is a chart over one or more schools and periods.
type Request struct {
	Config  *chartconfig.ReportConfig
	Schools []*energy.School
	// Parallelism bounds the number of branches aggregated at once.
	Parallelism int
	// IgnoreSingleSeriesFailure is the default partial-failure tolerance; the chart's own setting wins.
	IgnoreSingleSeriesFailure bool
	// Transform, if set, is applied to each successful branch before merging. Its error fails the branch.
	Transform func(school *energy.School, set *result.ResultSet) error
	// OnBranch, if set, is called once per finished branch with its error (nil on success).
	OnBranch func(school, period string, err error)
}

// Output is the merged result and the configuration it was produced with.
type Output struct {
	Set *result.ResultSet
	// Config has its dynamic x-axis fixed.
	Config  chartconfig.ReportConfig
	Range   energy.DateRange
	Periods []period.Period
}

type branch struct {
	school *energy.School
	period period.Period
	res    *aggregate.Result
	err    error
}

// Run fans out one aggregation per (school, period) and merges the results in request order.
func Run(ctx context.Context, req Request) (*Output, error) {
	cfg := *req.Config
	tolerant := req.IgnoreSingleSeriesFailure
	if cfg.IgnoreSingleSeriesFailure != nil {
		tolerant = *cfg.IgnoreSingleSeriesFailure
	}
	if len(req.Schools) == 0 {
		return nil, &energy.InvalidConfigError{Field: "schools", Reason: "at least one school is required"}
	}

	// 1. Combined date range across schools
	var failures []result.Failure
	var errs *multierror.Error
	schools, avail, err := combinedRange(&cfg, req.Schools, tolerant, func(s *energy.School, err error) {
		log.Warn().Err(err).Str("chart", cfg.Name).Str("school", s.Name).Msg("Dropping school")
		failures = append(failures, result.Failure{School: s.Name, Error: err.Error()})
		errs = multierror.Append(errs, err)
		if req.OnBranch != nil {
			req.OnBranch(s.Name, "", err)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(schools) == 0 {
		return nil, &energy.AllSeriesFailedError{Chart: cfg.Name, Err: errs.ErrorOrNil()}
	}
	if cfg.Target != nil && cfg.Target.ExtendChartIntoFuture {
		avail.Horizon = academicYearEnd(avail.Data.End)
	}
	cfg = cfg.WithDataSpan(avail.Data.Days())

	// 2. Resolve periods, most recent first
	var periods []period.Period
	for _, spec := range cfg.Timescales() {
		p, err := period.Resolve(spec, avail)
		if err != nil {
			if !tolerant || !errors.Is(err, energy.ErrDataAvailability) {
				return nil, fmt.Errorf("timescale %s: %w", spec, err)
			}
			log.Warn().Err(err).Str("chart", cfg.Name).Str("timescale", spec.String()).Msg("Dropping timescale")
			failures = append(failures, result.Failure{Period: spec.String(), Error: err.Error()})
			errs = multierror.Append(errs, err)
			continue
		}
		periods = append(periods, p)
	}
	sort.SliceStable(periods, func(i, j int) bool { return periods[i].End.After(periods[j].End) })

	var branches []*branch
	for _, p := range periods {
		for _, s := range schools {
			branches = append(branches, &branch{school: s, period: p})
		}
	}

	// 3. Fan out; every branch writes only its own slot
	caches := make(map[*energy.School]energy.HeatingModels, len(schools))
	for _, s := range schools {
		caches[s] = heating.NewCache(s)
	}
	limit := req.Parallelism
	if limit <= 0 {
		limit = DefaultParallelism
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, b := range branches {
		g.Go(func() error {
			b.res, b.err = aggregate.Run(gctx, aggregate.Request{Config: &cfg, School: b.school, Period: b.period, Heating: caches[b.school]})
			if b.err == nil && req.Transform != nil {
				b.err = req.Transform(b.school, b.res.Set)
			}
			if req.OnBranch != nil {
				req.OnBranch(b.school.Name, b.period.Label, b.err)
			}
			if b.err == nil {
				return nil
			}
			b.err = fmt.Errorf("school %s, period %s: %w", b.school.Name, b.period.Label, b.err)
			if tolerant && errors.Is(b.err, energy.ErrDataAvailability) {
				return nil
			}
			return b.err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// 4. Recombine by request order
	var results []*aggregate.Result
	for _, b := range branches {
		if b.err != nil {
			log.Warn().Err(b.err).Str("chart", cfg.Name).Str("school", b.school.Name).Str("period", b.period.Label).Msg("Dropping series")
			failures = append(failures, result.Failure{School: b.school.Name, Period: b.period.Label, Error: b.err.Error()})
			errs = multierror.Append(errs, b.err)
			continue
		}
		results = append(results, b.res)
	}
	if len(results) == 0 {
		if errs == nil {
			errs = multierror.Append(errs, &energy.NotEnoughDataError{What: "no periods to chart", Range: avail.Data})
		}
		return nil, &energy.AllSeriesFailedError{Chart: cfg.Name, Err: errs.ErrorOrNil()}
	}

	sortResults(results, cfg.SortBy)
	set := mergeResults(&cfg, results)
	set.Metadata.Failures = failures
	return &Output{Set: set, Config: cfg, Range: avail.Data, Periods: periods}, nil
}

// combinedRange intersects the data ranges of the selected meters of every school and returns the
// schools that take part. When tolerant, a school without data is reported to drop and left out of
// the range.
func combinedRange(cfg *chartconfig.ReportConfig, schools []*energy.School, tolerant bool, drop func(*energy.School, error)) ([]*energy.School, period.Availability, error) {
	var r energy.DateRange
	kept := make([]*energy.School, 0, len(schools))
	for _, s := range schools {
		meters, err := aggregate.SelectMeters(s, cfg.MeterDefinition, cfg.Filter.Fuel)
		if err != nil {
			err = fmt.Errorf("school %s: %w", s.Name, err)
			if tolerant && errors.Is(err, energy.ErrDataAvailability) {
				drop(s, err)
				continue
			}
			return nil, period.Availability{}, err
		}
		sr := aggregate.DataRange(meters)
		if len(kept) == 0 {
			r = sr
			kept = append(kept, s)
			continue
		}
		var ok bool
		if r, ok = r.Intersect(sr); !ok {
			return nil, period.Availability{}, &energy.NotEnoughDataError{What: "schools have no overlapping meter data"}
		}
		kept = append(kept, s)
	}
	return kept, period.Availability{Data: r}, nil
}

// academicYearEnd is 31 August of the academic year containing t.
func academicYearEnd(t time.Time) time.Time {
	y := t.Year()
	if t.Month() >= time.September {
		y++
	}
	return energy.Date(y, time.August, 31)
}

// sortResults orders results by the configured keys; equal keys keep request order.
func sortResults(results []*aggregate.Result, keys []chartconfig.SortKey) {
	if len(keys) == 0 {
		return
	}
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		for _, k := range keys {
			var c int
			switch k.Field {
			case "school":
				c = strings.Compare(a.School.Name, b.School.Name)
			case "time":
				c = a.Period.Start.Compare(b.Period.Start)
			}
			if k.Desc {
				c = -c
			}
			if c != 0 {
				return c < 0
			}
		}
		return false
	})
}
