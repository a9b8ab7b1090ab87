package series

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"amr-charts/internal/energy"
	"amr-charts/internal/units"

	"github.com/samber/lo"
)

// Context is what strategies need to know about one (school, period) branch.
type Context struct {
	School  *energy.School
	Meters  []energy.Meter
	Range   energy.DateRange
	AsOf    time.Time
	Unit    units.Unit
	Convert units.Converter
	Heating energy.HeatingModels
}

// Branch is one decomposition path for a single date.
type Branch struct {
	Parts []string
	Meter energy.Meter
	Mask  energy.SlotMask
	// CostComponents defers the final split until the day has been priced.
	CostComponents bool
	// Derive, if set, computes the branch's kWh from the day's readings in place of the readings.
	Derive func(date time.Time, kwh energy.HalfHourly) (energy.HalfHourly, error)
}

// Key joins the branch parts into a series name.
func (b Branch) Key() string {
	return JoinKey(b.Parts)
}

// JoinKey names a composite series, e.g. "electricity: Weekend".
func JoinKey(parts []string) string {
	if len(parts) == 0 {
		return Energy
	}
	return strings.Join(parts, ": ")
}

func (b Branch) with(part string, meter energy.Meter, mask energy.SlotMask) Branch {
	parts := make([]string, len(b.Parts), len(b.Parts)+1)
	copy(parts, b.Parts)
	return Branch{Parts: append(parts, part), Meter: meter, Mask: mask, CostComponents: b.CostComponents}
}

// Strategy is one breakdown dimension.
type Strategy interface {
	Name() string
	// Keys lists the series names the dimension can produce over ctx.Range.
	Keys(ctx *Context) ([]string, error)
	// Split refines a branch for one date.
	Split(ctx *Context, date time.Time, b Branch) ([]Branch, error)
}

type noneStrategy struct{}

func (noneStrategy) Name() string { return "none" }

func (noneStrategy) Keys(*Context) ([]string, error) { return nil, nil }

func (noneStrategy) Split(_ *Context, _ time.Time, b Branch) ([]Branch, error) {
	return []Branch{b}, nil
}

type fuelStrategy struct{}

func (fuelStrategy) Name() string { return "fuel" }

func (fuelStrategy) Keys(ctx *Context) ([]string, error) {
	present := lo.SliceToMap(ctx.Meters, func(m energy.Meter) (energy.FuelType, bool) { return m.Fuel(), true })
	var keys []string
	for _, f := range energy.Fuels {
		if present[f] {
			keys = append(keys, string(f))
		}
	}
	return keys, nil
}

func (fuelStrategy) Split(_ *Context, _ time.Time, b Branch) ([]Branch, error) {
	return []Branch{b.with(string(b.Meter.Fuel()), b.Meter, b.Mask)}, nil
}

type dayTypeStrategy struct{}

func (dayTypeStrategy) Name() string { return "daytype" }

func (dayTypeStrategy) Keys(ctx *Context) ([]string, error) {
	return DayTypeKeys(ctx.School), nil
}

func (dayTypeStrategy) Split(ctx *Context, date time.Time, b Branch) ([]Branch, error) {
	masks := DayTypeMasks(ctx.School, date)
	var out []Branch
	for _, key := range DayTypeKeys(ctx.School) {
		mask, ok := masks[key]
		if !ok {
			continue
		}
		if m := mask.And(b.Mask); m.Any() {
			out = append(out, b.with(key, b.Meter, m))
		}
	}
	return out, nil
}

type heatingStrategy struct{}

func (heatingStrategy) Name() string { return "heating" }

func (heatingStrategy) Keys(*Context) ([]string, error) {
	return []string{HeatingDay, NonHeatingDay}, nil
}

func (heatingStrategy) Split(ctx *Context, date time.Time, b Branch) ([]Branch, error) {
	model, err := heatingModel(ctx, b.Meter)
	if err != nil {
		return nil, err
	}
	on, err := model.HeatingOn(date)
	if err != nil {
		return nil, err
	}
	if on {
		return []Branch{b.with(HeatingDay, b.Meter, b.Mask)}, nil
	}
	return []Branch{b.with(NonHeatingDay, b.Meter, b.Mask)}, nil
}

type modelTypeStrategy struct{}

func (modelTypeStrategy) Name() string { return "model_type" }

func (modelTypeStrategy) Keys(ctx *Context) ([]string, error) {
	var keys []string
	for _, m := range ctx.Meters {
		model, err := heatingModel(ctx, m)
		if err != nil {
			return nil, err
		}
		keys = append(keys, model.ModelTypes()...)
	}
	return lo.Uniq(keys), nil
}

func (modelTypeStrategy) Split(ctx *Context, date time.Time, b Branch) ([]Branch, error) {
	model, err := heatingModel(ctx, b.Meter)
	if err != nil {
		return nil, err
	}
	mt, err := model.ModelType(date)
	if err != nil {
		return nil, err
	}
	return []Branch{b.with(mt, b.Meter, b.Mask)}, nil
}

func heatingModel(ctx *Context, meter energy.Meter) (energy.HeatingModel, error) {
	if ctx.Heating == nil {
		return nil, &energy.InvalidConfigError{Field: "series_breakdown", Reason: "heating breakdowns need a heating model source"}
	}
	return ctx.Heating.Model(meter, ctx.AsOf)
}

type meterStrategy struct{}

func (meterStrategy) Name() string { return "meter" }

func (meterStrategy) Keys(ctx *Context) ([]string, error) {
	var keys []string
	for _, m := range ctx.Meters {
		for _, physical := range underlying(ctx, m) {
			keys = append(keys, physical.Name())
		}
	}
	return lo.Uniq(keys), nil
}

func (meterStrategy) Split(ctx *Context, _ time.Time, b Branch) ([]Branch, error) {
	var out []Branch
	for _, physical := range underlying(ctx, b.Meter) {
		out = append(out, b.with(physical.Name(), physical, b.Mask))
	}
	return out, nil
}

// underlying expands a combined fuel meter into the school's real meters of that fuel.
func underlying(ctx *Context, m energy.Meter) []energy.Meter {
	all := ctx.School.Meters.Meters()
	if lo.ContainsBy(all, func(r energy.Meter) bool { return r.ID() == m.ID() }) {
		return []energy.Meter{m}
	}
	physical := lo.Filter(all, func(r energy.Meter, _ int) bool { return r.Fuel() == m.Fuel() })
	sort.SliceStable(physical, func(i, j int) bool { return physical[i].Name() < physical[j].Name() })
	return physical
}

type submeterStrategy struct{}

func (submeterStrategy) Name() string { return "submeter" }

func (submeterStrategy) Keys(ctx *Context) ([]string, error) {
	var keys []string
	for _, m := range ctx.Meters {
		subs := m.Submeters()
		if len(subs) == 0 {
			keys = append(keys, MainsConsume)
		}
		for _, s := range subs {
			keys = append(keys, s.Name())
		}
	}
	return lo.Uniq(keys), nil
}

func (submeterStrategy) Split(_ *Context, _ time.Time, b Branch) ([]Branch, error) {
	subs := b.Meter.Submeters()
	if len(subs) == 0 {
		return []Branch{b.with(MainsConsume, b.Meter, b.Mask)}, nil
	}
	out := make([]Branch, 0, len(subs))
	for _, s := range subs {
		out = append(out, b.with(s.Name(), s, b.Mask))
	}
	return out, nil
}

type costComponentStrategy struct{}

func (costComponentStrategy) Name() string { return "accounting_cost" }

func (costComponentStrategy) Keys(ctx *Context) ([]string, error) {
	if !ctx.Unit.IsCost() {
		return nil, &energy.InvalidConfigError{Field: "series_breakdown", Reason: fmt.Sprintf("accounting_cost breakdown needs a cost unit, got %q", ctx.Unit)}
	}
	var keys []string
	for _, m := range ctx.Meters {
		priced := []energy.Meter{m}
		if c, ok := m.(energy.Composite); ok {
			priced = c.Parts()
		}
		for _, p := range priced {
			keys = append(keys, ctx.Convert.ComponentNames(ctx.Unit, p.ID(), p.Fuel(), ctx.Range)...)
		}
	}
	return lo.Uniq(keys), nil
}

func (costComponentStrategy) Split(_ *Context, _ time.Time, b Branch) ([]Branch, error) {
	b.CostComponents = true
	return []Branch{b}, nil
}
