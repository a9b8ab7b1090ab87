package aggregate

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"amr-charts/internal/bucket"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/heating"
	"amr-charts/internal/period"
	"amr-charts/internal/result"
	"amr-charts/internal/series"
	"amr-charts/internal/units"

	"github.com/qmuntal/stateless"
	"github.com/rs/zerolog/log"
)

// Lifecycle states and triggers.
const (
	StateConfiguring  = "configuring"
	StateBucketing    = "bucketing"
	StateAccumulating = "accumulating"
	StateComplete     = "complete"

	triggerBucket     = "bucket"
	triggerAccumulate = "accumulate"
	triggerComplete   = "complete"
)

// Y2 series names.
const (
	Y2DegreeDays  = "Degree Days"
	Y2Temperature = "Temperature"
)

// Request is one (school, period) branch of a chart.
type Request struct {
	Config *chartconfig.ReportConfig
	School *energy.School
	Period period.Period
	// Heating fits models on demand; required by heating breakdowns, heating filters and temperature adjustment.
	Heating energy.HeatingModels
}

// Result is the output of one branch.
type Result struct {
	School *energy.School
	Period period.Period
	Set    *result.ResultSet
}

// Aggregator accumulates one branch. It is single use and not safe for concurrent use.
type Aggregator struct {
	req     Request
	machine *stateless.StateMachine

	mode     bucket.Mode
	unit     units.Unit
	convert  units.Converter
	meters   []energy.Meter
	dayTypes []series.DayClass
	sctx     *series.Context
	plan     *series.Plan
	bucketer *bucket.Bucketer
	out      *result.ResultSet

	counted map[countKey]time.Time
	lastDay map[string]time.Time
	y2Count []int

	// generalOnly disables the intraday fast path.
	generalOnly bool
}

type countKey struct {
	key string
	idx int
}

// New creates an aggregator in the configuring state.
func New(req Request) *Aggregator {
	a := &Aggregator{req: req}
	a.machine = stateless.NewStateMachine(StateConfiguring)
	a.machine.Configure(StateConfiguring).
		Permit(triggerBucket, StateBucketing)
	a.machine.Configure(StateBucketing).
		OnEntry(func(context.Context, ...any) error { return a.allocate() }).
		Permit(triggerAccumulate, StateAccumulating)
	a.machine.Configure(StateAccumulating).
		OnEntry(func(ctx context.Context, _ ...any) error { return a.accumulate(ctx) }).
		Permit(triggerComplete, StateComplete)
	a.machine.Configure(StateComplete).
		OnEntry(func(context.Context, ...any) error { return a.finish() })
	return a
}

// State returns the current lifecycle state.
func (a *Aggregator) State() string {
	return a.machine.MustState().(string)
}

// Run drives the aggregator through its lifecycle.
func Run(ctx context.Context, req Request) (*Result, error) {
	return New(req).Run(ctx)
}

// Run validates the request, allocates the buckets and accumulates every date of the period.
func (a *Aggregator) Run(ctx context.Context) (*Result, error) {
	if err := a.configure(); err != nil {
		return nil, err
	}
	for _, trigger := range []string{triggerBucket, triggerAccumulate, triggerComplete} {
		if err := a.machine.FireCtx(ctx, trigger); err != nil {
			return nil, err
		}
	}
	return &Result{School: a.req.School, Period: a.req.Period, Set: a.out}, nil
}

// configure validates configuration and data availability.
func (a *Aggregator) configure() error {
	cfg, school, p := a.req.Config, a.req.School, a.req.Period
	mode, err := cfg.Mode()
	if err != nil {
		return err
	}
	a.mode = mode
	a.unit = cfg.Units()
	a.convert = units.NewConverter(school.Tariffs)
	for _, d := range cfg.Filter.DayType {
		c, err := series.ParseDayClass(d)
		if err != nil {
			return err
		}
		a.dayTypes = append(a.dayTypes, c)
	}
	if a.needsHeating() && a.req.Heating == nil {
		a.req.Heating = heating.NewCache(school)
	}

	a.meters, err = SelectMeters(school, cfg.MeterDefinition, cfg.Filter.Fuel)
	if err != nil {
		return err
	}

	// 1. At least one date of the period must have readings
	valid := 0
	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		if p.HasData(d) && a.anyData(d) {
			valid++
		}
	}
	if valid == 0 {
		return &energy.NotEnoughDataError{What: fmt.Sprintf("no readings for %s in %s", school.Name, p.Label), Range: p.Range()}
	}

	// 2. Fix the series keys before anything is accumulated
	asOf := p.End
	if !p.DataEnd.IsZero() && p.DataEnd.Before(asOf) {
		asOf = p.DataEnd
	}
	a.sctx = &series.Context{
		School:  school,
		Meters:  a.meters,
		Range:   p.Range(),
		AsOf:    asOf,
		Unit:    a.unit,
		Convert: a.convert,
		Heating: a.req.Heating,
	}
	a.plan, err = series.Resolve(cfg.Breakdowns(), a.sctx)
	return err
}

func (a *Aggregator) needsHeating() bool {
	f := a.req.Config.Filter
	if f.Heating != nil || len(f.ModelType) > 0 || a.req.Config.AdjustByTemperature != nil {
		return true
	}
	for _, tag := range a.req.Config.Breakdowns() {
		if series.NeedsHeatingModel(tag) {
			return true
		}
	}
	return false
}

func (a *Aggregator) anyData(date time.Time) bool {
	for _, m := range a.meters {
		if m.DataRange().Contains(date) {
			return true
		}
	}
	return false
}

// allocate builds the buckets and the null-filled series for every declared key.
func (a *Aggregator) allocate() error {
	b, err := bucket.New(a.mode, a.req.Period)
	if err != nil {
		return err
	}
	a.bucketer = b
	a.out = result.New(b.Labels(), a.plan.Keys())
	a.out.XAxisRanges = b.Ranges()
	a.counted = make(map[countKey]time.Time)
	a.lastDay = make(map[string]time.Time)

	switch a.req.Config.Y2Axis {
	case chartconfig.Y2DegreeDays:
		a.out.Y2Axis = map[string]result.Series{Y2DegreeDays: result.NullSeries(b.Len())}
	case chartconfig.Y2Temperature:
		a.out.Y2Axis = map[string]result.Series{Y2Temperature: result.NullSeries(b.Len())}
		a.y2Count = make([]int, b.Len())
	}
	return nil
}

// accumulate walks every date of the period.
func (a *Aggregator) accumulate(ctx context.Context) error {
	p := a.req.Period
	fast := !a.generalOnly && a.mode == bucket.Intraday && a.plan.IsNone() && a.req.Config.AdjustByTemperature == nil

	for d := p.Start; !d.After(p.End); d = d.AddDate(0, 0, 1) {
		if err := ctx.Err(); err != nil {
			return err
		}
		// dates after the last reading stay null
		if !p.HasData(d) {
			continue
		}
		if err := a.addY2(d); err != nil {
			return err
		}
		// 1. Day-level pre-filter, before any reading is fetched
		if !a.dayTypeAllowed(d) {
			continue
		}
		for _, m := range a.meters {
			if !m.DataRange().Contains(d) {
				continue
			}
			ok, err := a.heatingAllowed(m, d)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			// 2. Fetch, convert and add
			if fast {
				err = a.addIntradayDay(m, d)
			} else {
				err = a.addDay(m, d)
			}
			if err != nil {
				return fmt.Errorf("%s on %s: %w", m.Name(), d.Format(time.DateOnly), err)
			}
		}
	}
	return nil
}

func (a *Aggregator) dayTypeAllowed(date time.Time) bool {
	if len(a.dayTypes) == 0 {
		return true
	}
	return slices.Contains(a.dayTypes, series.ClassifyDay(a.req.School.Holidays, date))
}

func (a *Aggregator) heatingAllowed(m energy.Meter, date time.Time) (bool, error) {
	f := a.req.Config.Filter
	if f.Heating == nil && len(f.ModelType) == 0 {
		return true, nil
	}
	model, err := a.req.Heating.Model(m, a.sctx.AsOf)
	if err != nil {
		return false, err
	}
	if f.Heating != nil {
		on, err := model.HeatingOn(date)
		if err != nil {
			return false, err
		}
		if on != *f.Heating {
			return false, nil
		}
	}
	if len(f.ModelType) > 0 {
		mt, err := model.ModelType(date)
		if err != nil {
			return false, err
		}
		return slices.Contains(f.ModelType, mt), nil
	}
	return true, nil
}

// addIntradayDay sums the converted 48-slot vector straight into the single series.
func (a *Aggregator) addIntradayDay(m energy.Meter, date time.Time) error {
	priced, err := a.priced(m, date, false)
	if errors.Is(err, energy.ErrDataAvailability) {
		return nil
	}
	if err != nil {
		return err
	}
	values := priced[""]
	key := series.Energy
	s, ok := a.out.Series[key]
	if !ok {
		return fmt.Errorf("series %q was not declared", key)
	}
	for slot, v := range values {
		s[slot] = s[slot].Add(result.Some(v))
		a.count(key, slot, date)
	}
	a.countDay(key, date)
	return nil
}

// addDay decomposes one meter's day into branches and adds each one.
func (a *Aggregator) addDay(m energy.Meter, date time.Time) error {
	mctx := *a.sctx
	mctx.Meters = []energy.Meter{m}
	branches, err := a.plan.Branches(&mctx, date)
	if err != nil {
		return err
	}

	type pricedKey struct {
		meter      string
		components bool
	}
	cache := map[pricedKey]map[string]energy.HalfHourly{}
	for _, b := range branches {
		if b.Derive != nil {
			if err := a.addDerived(b, date); err != nil {
				return err
			}
			continue
		}
		pk := pricedKey{meter: b.Meter.ID(), components: b.CostComponents}
		values, ok := cache[pk]
		if !ok {
			values, err = a.priced(b.Meter, date, b.CostComponents)
			if errors.Is(err, energy.ErrDataAvailability) {
				// a physical meter with a shorter history than its fuel aggregate
				continue
			}
			if err != nil {
				return err
			}
			cache[pk] = values
		}
		for name, v := range values {
			key := b.Key()
			if b.CostComponents {
				key = series.JoinKey(append(append([]string(nil), b.Parts...), name))
			}
			if err := a.add(key, date, v.Masked(b.Mask), b.Mask); err != nil {
				return err
			}
		}
	}
	return nil
}

// addDerived computes a model or demand series from the day's readings and converts it like a reading.
func (a *Aggregator) addDerived(b series.Branch, date time.Time) error {
	kwh, err := a.reading(b.Meter, date)
	if errors.Is(err, energy.ErrDataAvailability) {
		return nil
	}
	if err != nil {
		return err
	}
	derived, err := b.Derive(date, kwh)
	if errors.Is(err, energy.ErrDataAvailability) {
		// no temperature for the day
		return nil
	}
	if err != nil {
		return err
	}
	v, err := a.convert.Convert(a.unit, b.Meter.ID(), b.Meter.Fuel(), date, derived)
	if err != nil {
		return err
	}
	return a.add(b.Key(), date, v.Masked(b.Mask), b.Mask)
}

// priced converts a whole day before any branch mask applies, so daily charges are spread once.
// Costs of a combined meter are summed from its physical meters so each keeps its own tariff.
// Without components the single entry has an empty name.
func (a *Aggregator) priced(m energy.Meter, date time.Time, components bool) (map[string]energy.HalfHourly, error) {
	parts := []energy.Meter{m}
	if c, ok := m.(energy.Composite); ok && a.unit.IsCost() {
		parts = c.Parts()
	}

	out := map[string]energy.HalfHourly{}
	found := false
	for _, p := range parts {
		kwh, err := a.reading(p, date)
		if errors.Is(err, energy.ErrDataAvailability) && len(parts) > 1 {
			continue
		}
		if err != nil {
			return nil, err
		}
		found = true

		converted := map[string]energy.HalfHourly{}
		if components {
			if converted, err = a.convert.Components(a.unit, p.ID(), p.Fuel(), date, kwh); err != nil {
				return nil, err
			}
		} else {
			v, err := a.convert.Convert(a.unit, p.ID(), p.Fuel(), date, kwh)
			if err != nil {
				return nil, err
			}
			converted[""] = v
		}
		for name, v := range converted {
			acc := out[name]
			for i := range v {
				acc[i] += v[i]
			}
			out[name] = acc
		}
	}
	if !found {
		return nil, &energy.NotEnoughDataError{What: fmt.Sprintf("no reading for %s on %s", m.Name(), date.Format(time.DateOnly))}
	}
	return out, nil
}

// reading fetches a day, adjusted to the reference temperature when configured.
func (a *Aggregator) reading(m energy.Meter, date time.Time) (energy.HalfHourly, error) {
	kwh, err := m.KWh(date)
	if err != nil {
		return kwh, err
	}
	ref := a.req.Config.AdjustByTemperature
	if ref == nil || !m.Fuel().IsHeat() {
		return kwh, nil
	}
	model, err := a.req.Heating.Model(m, a.sctx.AsOf)
	if err != nil {
		return kwh, err
	}
	on, err := model.HeatingOn(date)
	if err != nil || !on {
		return kwh, err
	}
	temps := a.req.School.Temperatures
	if temps == nil {
		return kwh, &energy.NotEnoughDataError{What: fmt.Sprintf("no temperatures for %s", a.req.School.Name)}
	}
	actual, err := temps.AverageTemperature(date)
	if err != nil {
		return kwh, err
	}
	return units.TemperatureAdjust(model, date, actual, *ref, kwh)
}

// add accumulates masked values into their buckets with null-safe addition.
func (a *Aggregator) add(key string, date time.Time, values energy.HalfHourly, mask energy.SlotMask) error {
	s, ok := a.out.Series[key]
	if !ok {
		return fmt.Errorf("series %q was not declared", key)
	}
	if !mask.Any() {
		return nil
	}

	if a.mode.PerHalfHour() {
		for slot, v := range values {
			if !mask[slot] {
				continue
			}
			idx, err := a.bucketer.Index(date, slot)
			if err != nil {
				return err
			}
			s[idx] = s[idx].Add(result.Some(v))
			a.count(key, idx, date)
		}
		a.countDay(key, date)
		return nil
	}

	idx, err := a.bucketer.Index(date, 0)
	if errors.Is(err, bucket.ErrNotBucketed) {
		return nil
	}
	if err != nil {
		return err
	}
	s[idx] = s[idx].Add(result.Some(values.Sum()))
	a.count(key, idx, date)
	a.countDay(key, date)
	return nil
}

// count records one sample per (key, bucket, date): a day for day-level buckets, a slot for half-hour ones.
func (a *Aggregator) count(key string, idx int, date time.Time) {
	ck := countKey{key: key, idx: idx}
	if last, ok := a.counted[ck]; ok && last.Equal(date) {
		return
	}
	a.counted[ck] = date
	a.out.Counts[key][idx]++
}

func (a *Aggregator) countDay(key string, date time.Time) {
	if last, ok := a.lastDay[key]; ok && last.Equal(date) {
		return
	}
	a.lastDay[key] = date
	a.out.SeriesDays[key]++
}

// addY2 adds the day's degree days or temperature to its bucket. Missing temperatures leave the bucket alone.
func (a *Aggregator) addY2(date time.Time) error {
	if a.out.Y2Axis == nil || a.mode.PerHalfHour() {
		return nil
	}
	temps := a.req.School.Temperatures
	if temps == nil || !temps.DataRange().Contains(date) {
		return nil
	}
	idx, err := a.bucketer.Index(date, 0)
	if errors.Is(err, bucket.ErrNotBucketed) {
		return nil
	}
	if err != nil {
		return err
	}
	switch a.req.Config.Y2Axis {
	case chartconfig.Y2DegreeDays:
		dd, err := temps.DegreeDays(date, heating.BaseTemperature)
		if err != nil {
			return nil
		}
		s := a.out.Y2Axis[Y2DegreeDays]
		s[idx] = s[idx].Add(result.Some(dd))
	case chartconfig.Y2Temperature:
		t, err := temps.AverageTemperature(date)
		if err != nil {
			return nil
		}
		s := a.out.Y2Axis[Y2Temperature]
		s[idx] = s[idx].Add(result.Some(t))
		a.y2Count[idx]++
	}
	return nil
}

// finish turns temperature sums into means and fills the metadata.
func (a *Aggregator) finish() error {
	if s, ok := a.out.Y2Axis[Y2Temperature]; ok {
		for i, n := range a.y2Count {
			if n > 0 {
				s[i] = s[i].Scale(1 / float64(n))
			}
		}
	}

	cfg, p := a.req.Config, a.req.Period
	a.out.Metadata = result.Metadata{
		Chart:     cfg.Name,
		Title:     cfg.Title,
		ChartType: cfg.ChartType,
		XAxisMode: string(a.mode),
		Units:     string(a.unit),
		Scaling:   cfg.Scaling(),
		Schools:   []string{a.req.School.Name},
		Periods: []result.PeriodInfo{{
			Label:      p.Label,
			Start:      p.Start,
			End:        p.End,
			DaysOfData: p.DataDays(),
			Partial:    p.Partial,
		}},
	}
	log.Debug().Str("school", a.req.School.Name).Str("period", p.Label).Str("mode", string(a.mode)).
		Int("buckets", a.bucketer.Len()).Int("series", len(a.out.Keys)).Msg("Aggregated series")
	return a.out.Validate()
}
