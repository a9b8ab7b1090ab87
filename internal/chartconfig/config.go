package chartconfig

import (
	"fmt"
	"strings"

	"amr-charts/internal/bucket"
	"amr-charts/internal/energy"
	"amr-charts/internal/period"
	"amr-charts/internal/series"
	"amr-charts/internal/units"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// DynamicXAxis is the x_axis value that defers the bucket mode until the data span is known.
const DynamicXAxis = "dynamic"

// ReportConfig is one fully resolved chart definition. It carries no inheritance once returned by a Registry.
type ReportConfig struct {
	Name         string `yaml:"name"`
	Title        string `yaml:"title,omitempty"`
	InheritsFrom string `yaml:"inherits_from,omitempty"`
	ChartType    string `yaml:"chart1_type,omitempty"`
	ChartSubtype string `yaml:"chart1_subtype,omitempty"`

	XAxis           string        `yaml:"x_axis"`
	DynamicXAxis    []DynamicRule `yaml:"dynamic_x_axis,omitempty"`
	SeriesBreakdown Breakdown     `yaml:"series_breakdown,omitempty"`
	Timescale       period.Specs  `yaml:"timescale,omitempty"`
	MeterDefinition string        `yaml:"meter_definition,omitempty"`
	YAxisUnits      string        `yaml:"yaxis_units,omitempty"`
	YAxisScaling    string        `yaml:"yaxis_scaling,omitempty"`
	Y2Axis          string        `yaml:"y2_axis,omitempty"`
	Filter          Filter        `yaml:"filter,omitempty"`
	Benchmark       *Benchmark    `yaml:"benchmark,omitempty"`
	Target          *Target       `yaml:"target,omitempty"`
	SortBy          []SortKey     `yaml:"sort_by,omitempty"`

	IgnoreSingleSeriesFailure *bool    `yaml:"ignore_single_series_failure,omitempty"`
	AdjustByTemperature       *float64 `yaml:"adjust_by_temperature,omitempty"`

	NullifyTrailingZeros bool       `yaml:"nullify_trailing_zeros,omitempty"`
	Cumulative           bool       `yaml:"cumulative,omitempty"`
	ReverseXAxis         bool       `yaml:"reverse_xaxis,omitempty"`
	XAxisReformat        string     `yaml:"x_axis_reformat,omitempty"`
	ReplaceSeriesLabel   [][]string `yaml:"replace_series_label,omitempty"`
	HumanizeLegend       bool       `yaml:"humanize_legend,omitempty"`
	AddDayCountToLegend  bool       `yaml:"add_day_count_to_legend,omitempty"`
}

// DynamicRule picks XAxis when the combined data span is at most MaxDays.
type DynamicRule struct {
	MaxDays int    `yaml:"max_days"`
	XAxis   string `yaml:"x_axis"`
}

// DefaultDynamicRules apply when a dynamic chart declares no rules of its own.
var DefaultDynamicRules = []DynamicRule{
	{MaxDays: 14, XAxis: string(bucket.Day)},
	{MaxDays: 120, XAxis: string(bucket.Week)},
	{MaxDays: 0, XAxis: string(bucket.Month)},
}

// Benchmark enables the exemplar/benchmark injector.
type Benchmark struct {
	CalculationTypes []string `yaml:"calculation_types,omitempty"`
}

// Comparisons returns the reference schools to inject, in order.
func (b *Benchmark) Comparisons() []energy.Comparison {
	if b == nil {
		return nil
	}
	if len(b.CalculationTypes) == 0 {
		return []energy.Comparison{energy.Exemplar, energy.Benchmark}
	}
	return lo.Map(b.CalculationTypes, func(s string, _ int) energy.Comparison { return energy.Comparison(s) })
}

// Target configures target-tracking charts.
type Target struct {
	ExtendChartIntoFuture bool `yaml:"extend_chart_into_future,omitempty"`
}

// Breakdown is the series_breakdown value: a single tag or a list.
type Breakdown []string

func (b *Breakdown) UnmarshalYAML(node *yaml.Node) error {
	var tags []string
	if node.Kind == yaml.SequenceNode {
		if err := node.Decode(&tags); err != nil {
			return err
		}
	} else {
		var one string
		if err := node.Decode(&one); err != nil {
			return err
		}
		tags = []string{one}
	}
	*b = tags
	return nil
}

// Filter restricts which days and meters contribute. Empty fields do not filter.
type Filter struct {
	Fuel      []string `yaml:"fuel,omitempty"`
	DayType   []string `yaml:"daytype,omitempty"`
	Heating   *bool    `yaml:"heating,omitempty"`
	ModelType []string `yaml:"model_type,omitempty"`
}

// IsZero lets yaml omit an empty filter.
func (f Filter) IsZero() bool {
	return len(f.Fuel) == 0 && len(f.DayType) == 0 && f.Heating == nil && len(f.ModelType) == 0
}

// UnmarshalYAML accepts scalars or lists for each dimension and rejects unknown dimensions.
func (f *Filter) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return &energy.MalformedFilterError{Dimension: "filter", Value: node.Value}
	}
	var out Filter
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i].Value, node.Content[i+1]
		var err error
		switch strings.ToLower(key) {
		case "fuel":
			out.Fuel, err = stringList(val)
		case "daytype", "day_type":
			out.DayType, err = stringList(val)
		case "model_type":
			out.ModelType, err = stringList(val)
		case "heating":
			var on bool
			err = val.Decode(&on)
			out.Heating = &on
		default:
			return &energy.MalformedFilterError{Dimension: key}
		}
		if err != nil {
			return &energy.MalformedFilterError{Dimension: key, Value: val.Value}
		}
	}
	*f = out
	return nil
}

func stringList(node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.SequenceNode {
		var list []string
		err := node.Decode(&list)
		return list, err
	}
	var one string
	err := node.Decode(&one)
	return []string{one}, err
}

// SortKey orders merged results by school name or period start.
type SortKey struct {
	Field string
	Desc  bool
}

// UnmarshalYAML reads `{school: asc}` or `{time: desc}`.
func (k *SortKey) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return &energy.InvalidConfigError{Field: "sort_by", Reason: "expected {school|time: asc|desc}"}
	}
	field, dir := strings.ToLower(node.Content[0].Value), strings.ToLower(node.Content[1].Value)
	if field != "school" && field != "time" {
		return &energy.InvalidConfigError{Field: "sort_by", Reason: fmt.Sprintf("unknown sort field %q", field)}
	}
	if dir != "asc" && dir != "desc" {
		return &energy.InvalidConfigError{Field: "sort_by", Reason: fmt.Sprintf("unknown sort direction %q", dir)}
	}
	*k = SortKey{Field: field, Desc: dir == "desc"}
	return nil
}

func (k SortKey) MarshalYAML() (any, error) {
	dir := "asc"
	if k.Desc {
		dir = "desc"
	}
	return map[string]string{k.Field: dir}, nil
}

// Scaling factors applied by the post-processor.
const (
	ScalingNone         = "none"
	ScalingPerPupil     = "per_pupil"
	ScalingPerFloorArea = "per_floor_area"
	ScalingPer200Pupils = "per_200_pupils"
	ScalingPer1000      = "per_1000_pupils"
)

// Y2 axis series.
const (
	Y2DegreeDays  = "degreedays"
	Y2Temperature = "temperature"
)

// Meter selections.
const (
	MetersAll            = "all"
	MetersAllElectricity = "allelectricity"
	MetersAllHeat        = "allheat"
	MetersStorageHeaters = "storage_heaters"
	MetersSolarPV        = "solar_pv"
)

// Units returns the parsed y-axis unit, kWh by default.
func (c *ReportConfig) Units() units.Unit {
	if c.YAxisUnits == "" {
		return units.KWh
	}
	u, _ := units.Parse(c.YAxisUnits)
	return u
}

// Breakdowns returns the breakdown tags, `none` by default.
func (c *ReportConfig) Breakdowns() []string {
	if len(c.SeriesBreakdown) == 0 {
		return []string{"none"}
	}
	return c.SeriesBreakdown
}

// Timescales returns the requested periods, the latest year-to-date by default.
func (c *ReportConfig) Timescales() period.Specs {
	if len(c.Timescale) == 0 {
		return period.Specs{{Kind: period.UpToAYear}}
	}
	return c.Timescale
}

// Scaling returns the y-axis scaling, `none` by default.
func (c *ReportConfig) Scaling() string {
	if c.YAxisScaling == "" {
		return ScalingNone
	}
	return c.YAxisScaling
}

// IsDynamic reports whether the x-axis mode depends on the data span.
func (c *ReportConfig) IsDynamic() bool {
	return strings.EqualFold(c.XAxis, DynamicXAxis)
}

// Mode returns the bucket mode of a non-dynamic chart.
func (c *ReportConfig) Mode() (bucket.Mode, error) {
	if c.IsDynamic() {
		return "", &energy.InvalidConfigError{Field: "x_axis", Reason: "dynamic x-axis has not been resolved"}
	}
	return bucket.ParseMode(c.XAxis)
}

// Validate checks every field that can be checked without school data.
func (c *ReportConfig) Validate() error {
	if c.InheritsFrom != "" {
		return &energy.InvalidConfigError{Field: "inherits_from", Reason: "configuration has not been flattened"}
	}
	if c.IsDynamic() {
		rules := c.DynamicXAxis
		if len(rules) == 0 {
			rules = DefaultDynamicRules
		}
		for _, r := range rules {
			if _, err := bucket.ParseMode(r.XAxis); err != nil {
				return err
			}
		}
	} else if _, err := c.Mode(); err != nil {
		return err
	}
	for _, tag := range c.Breakdowns() {
		if _, err := series.Lookup(tag); err != nil {
			return err
		}
	}
	for _, ts := range c.Timescale {
		if err := ts.Validate(); err != nil {
			return err
		}
	}
	if c.YAxisUnits != "" {
		if _, err := units.Parse(c.YAxisUnits); err != nil {
			return err
		}
	}
	switch c.Scaling() {
	case ScalingNone, ScalingPerPupil, ScalingPerFloorArea, ScalingPer200Pupils, ScalingPer1000:
	default:
		return &energy.InvalidConfigError{Field: "yaxis_scaling", Reason: fmt.Sprintf("unknown scaling %q", c.YAxisScaling)}
	}
	switch c.Y2Axis {
	case "", Y2DegreeDays, Y2Temperature:
	default:
		return &energy.InvalidConfigError{Field: "y2_axis", Reason: fmt.Sprintf("unknown y2 axis %q", c.Y2Axis)}
	}
	for _, f := range c.Filter.Fuel {
		if _, err := energy.ParseFuel(f); err != nil {
			return &energy.MalformedFilterError{Dimension: "fuel", Value: f}
		}
	}
	for _, d := range c.Filter.DayType {
		if _, err := series.ParseDayClass(d); err != nil {
			return err
		}
	}
	for _, pair := range c.ReplaceSeriesLabel {
		if len(pair) != 2 {
			return &energy.InvalidConfigError{Field: "replace_series_label", Reason: "each rule is [from, to]"}
		}
	}
	if c.Benchmark != nil {
		if c.Units() == units.KW {
			return &energy.InvalidConfigError{Field: "benchmark", Reason: "annual reference figures have no kw equivalent"}
		}
		for _, ct := range c.Benchmark.Comparisons() {
			if ct != energy.Benchmark && ct != energy.Exemplar {
				return &energy.InvalidConfigError{Field: "benchmark.calculation_types", Reason: fmt.Sprintf("unknown comparison %q", ct)}
			}
		}
	}
	return nil
}

// WithDataSpan returns a copy whose dynamic x-axis is fixed for a combined range of days.
// Non-dynamic configurations are returned unchanged.
func (c ReportConfig) WithDataSpan(days int) ReportConfig {
	if !c.IsDynamic() {
		return c
	}
	rules := c.DynamicXAxis
	if len(rules) == 0 {
		rules = DefaultDynamicRules
	}
	c.XAxis = rules[len(rules)-1].XAxis
	for _, r := range rules {
		if r.MaxDays <= 0 || days <= r.MaxDays {
			c.XAxis = r.XAxis
			break
		}
	}
	c.DynamicXAxis = nil
	return c
}
