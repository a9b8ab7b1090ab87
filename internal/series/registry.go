package series

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"amr-charts/internal/energy"

	"github.com/samber/lo"
)

var registry = map[string]Strategy{
	"none":            noneStrategy{},
	"fuel":            fuelStrategy{},
	"daytype":         dayTypeStrategy{},
	"heating":         heatingStrategy{},
	"model_type":      modelTypeStrategy{},
	"meter":           meterStrategy{},
	"submeter":        submeterStrategy{},
	"accounting_cost": costComponentStrategy{},
	"heating_daytype": heatingDayTypeStrategy{},
	"baseload":        baseloadStrategy{},
	"peak_kw":         peakStrategy{},
	"cusum":           cusumStrategy{},
	"predictedheat":   predictedHeatStrategy{},
	"hotwater":        hotWaterStrategy{},
}

var aliases = map[string]string{
	"day_type":        "daytype",
	"modeltype":       "model_type",
	"cost_components": "accounting_cost",
	"tariff":          "accounting_cost",
	"predicted_heat":  "predictedheat",
	"hot_water":       "hotwater",
	"peak":            "peak_kw",
}

// Lookup returns the registered strategy for a breakdown tag.
func Lookup(tag string) (Strategy, error) {
	name := strings.ToLower(strings.TrimSpace(tag))
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	s, ok := registry[name]
	if !ok {
		return nil, &energy.BadBreakdownError{Dimension: tag}
	}
	return s, nil
}

// Names lists the registered dimensions.
func Names() []string {
	names := lo.Keys(registry)
	sort.Strings(names)
	return names
}

// Plan is a resolved breakdown: the ordered dimensions and the declared series keys.
type Plan struct {
	dims []Strategy
	keys []string
}

// Resolve validates the tags and crosses the per-dimension keys into composite series names.
func Resolve(tags []string, ctx *Context) (*Plan, error) {
	p := &Plan{}
	for i, tag := range tags {
		s, err := Lookup(tag)
		if err != nil {
			return nil, err
		}
		if s.Name() == "none" {
			continue
		}
		if s.Name() == "accounting_cost" && i != len(tags)-1 {
			return nil, &energy.InvalidConfigError{Field: "series_breakdown", Reason: "accounting_cost must be the last dimension"}
		}
		p.dims = append(p.dims, s)
	}
	for _, s := range p.dims {
		if derived[s.Name()] && len(p.dims) > 1 {
			return nil, &energy.InvalidConfigError{Field: "series_breakdown", Reason: fmt.Sprintf("%s cannot be combined with other dimensions", s.Name())}
		}
	}

	// 1. Cross the dimensions in order
	keys := [][]string{nil}
	for _, s := range p.dims {
		dimKeys, err := s.Keys(ctx)
		if err != nil {
			return nil, fmt.Errorf("breakdown %s: %w", s.Name(), err)
		}
		var crossed [][]string
		for _, prefix := range keys {
			for _, k := range dimKeys {
				crossed = append(crossed, append(append([]string(nil), prefix...), k))
			}
		}
		keys = crossed
	}

	// 2. De-duplicate, keeping first appearance
	p.keys = lo.Uniq(lo.Map(keys, func(parts []string, _ int) string { return JoinKey(parts) }))
	return p, nil
}

// Keys returns the declared series names in order.
func (p *Plan) Keys() []string {
	return append([]string(nil), p.keys...)
}

// IsNone reports whether the plan has a single undivided series.
func (p *Plan) IsNone() bool {
	return len(p.dims) == 0
}

// Branches decomposes one date for every selected meter.
func (p *Plan) Branches(ctx *Context, date time.Time) ([]Branch, error) {
	branches := make([]Branch, 0, len(ctx.Meters))
	for _, m := range ctx.Meters {
		branches = append(branches, Branch{Meter: m, Mask: energy.AllSlots})
	}
	for _, s := range p.dims {
		var next []Branch
		for _, b := range branches {
			split, err := s.Split(ctx, date, b)
			if err != nil {
				return nil, fmt.Errorf("breakdown %s on %s: %w", s.Name(), date.Format(time.DateOnly), err)
			}
			next = append(next, split...)
		}
		branches = next
	}
	return branches, nil
}
