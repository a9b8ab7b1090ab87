package mcp

import (
	"context"
	"fmt"

	"amr-charts/internal/chart"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/result"
	"amr-charts/internal/visuals"

	"github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type ListChartsInput struct{}

type GetChartConfigInput struct {
	Chart     string         `json:"chart" jsonschema:"Name of a registered chart"`
	Overrides map[string]any `json:"overrides,omitempty" jsonschema:"Configuration keys applied on top of the resolved chart, e.g. {\"x_axis\": \"week\"}"`
}

type RunChartInput struct {
	Chart     string         `json:"chart" jsonschema:"Name of a registered chart"`
	Schools   []string       `json:"schools" jsonschema:"School ids from the data folder. The first school is the target for benchmarks and legend names"`
	Overrides map[string]any `json:"overrides,omitempty" jsonschema:"Configuration keys applied on top of the resolved chart"`
}

// ChartSummary is one list_charts entry.
type ChartSummary struct {
	Name   string   `json:"name"`
	Title  string   `json:"title,omitempty"`
	XAxis  string   `json:"x_axis"`
	Units  string   `json:"units"`
	Series []string `json:"series_breakdown"`
}

// Response is the envelope every tool returns as text.
type Response struct {
	Data     any      `json:"data"`
	Guidance []string `json:"guidance,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Mermaid  string   `json:"mermaid,omitempty"`
}

func (s *Server) registerTools() error {
	names := s.engine.Registry().Names()

	configSchema, err := chartSchema[GetChartConfigInput](names)
	if err != nil {
		return err
	}
	runSchema, err := chartSchema[RunChartInput](names)
	if err != nil {
		return err
	}

	sdk.AddTool(s.sdk, &sdk.Tool{
		Name:        "list_charts",
		Description: "List every registered chart with its x-axis, units and series breakdown. Call this first to pick a chart name.",
	}, s.handleListCharts)
	sdk.AddTool(s.sdk, &sdk.Tool{
		Name: "get_chart_config",
		Description: "Return the fully resolved configuration of a chart (inheritance flattened, overrides applied) as YAML. " +
			"Use it to check what run_chart will do before running it.",
		InputSchema: configSchema,
	}, s.handleGetChartConfig)
	sdk.AddTool(s.sdk, &sdk.Tool{
		Name: "run_chart",
		Description: "Aggregate school meter data into a chart-ready result: x-axis labels, named series and per-bucket counts. " +
			"Values are null where there was no data, never zero.",
		InputSchema: runSchema,
	}, s.handleRunChart)
	return nil
}

// chartSchema infers T's input schema and restricts its chart property to the registered names.
func chartSchema[T any](names []string) (*jsonschema.Schema, error) {
	schema, err := jsonschema.For[T](nil)
	if err != nil {
		return nil, fmt.Errorf("input schema: %w", err)
	}
	if p, ok := schema.Properties["chart"]; ok {
		p.Enum = lo.ToAnySlice(names)
	}
	return schema, nil
}

func (s *Server) handleListCharts(ctx context.Context, req *sdk.CallToolRequest, in ListChartsInput) (*sdk.CallToolResult, any, error) {
	var charts []ChartSummary
	var warnings []string
	for _, name := range s.engine.Registry().Names() {
		cfg, err := s.engine.GetConfig(name, nil)
		if err != nil {
			log.Warn().Err(err).Str("chart", name).Msg("Skipping chart that does not resolve")
			warnings = append(warnings, err.Error())
			continue
		}
		charts = append(charts, ChartSummary{
			Name:   name,
			Title:  cfg.Title,
			XAxis:  cfg.XAxis,
			Units:  string(cfg.Units()),
			Series: cfg.Breakdowns(),
		})
	}
	return textResult(Response{Data: charts, Warnings: warnings})
}

func (s *Server) handleGetChartConfig(ctx context.Context, req *sdk.CallToolRequest, in GetChartConfigInput) (*sdk.CallToolResult, any, error) {
	cfg, err := s.engine.GetConfig(in.Chart, in.Overrides)
	if err != nil {
		return nil, nil, err
	}
	out, err := chartconfig.Marshal(cfg)
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: string(out)}}}, nil, nil
}

func (s *Server) handleRunChart(ctx context.Context, req *sdk.CallToolRequest, in RunChartInput) (*sdk.CallToolResult, any, error) {
	if len(in.Schools) == 0 {
		return nil, nil, fmt.Errorf("at least one school id is required; available schools: %s", s.schoolList())
	}
	schools, err := s.catalog.Schools(in.Schools)
	if err != nil {
		return nil, nil, err
	}
	set, err := s.engine.Run(ctx, chart.Request{Chart: in.Chart, Overrides: in.Overrides, Schools: schools})
	if err != nil {
		return nil, nil, err
	}

	resp := Response{Data: set, Guidance: guidance(set)}
	for _, f := range set.Metadata.Failures {
		resp.Warnings = append(resp.Warnings, fmt.Sprintf("dropped %s %s: %s", f.School, f.Period, f.Error))
	}
	if s.opts.Mermaid {
		resp.Mermaid = visuals.GenerateChart(set)
	}
	return textResult(resp)
}

func (s *Server) schoolList() string {
	ids, err := s.catalog.IDs()
	if err != nil || len(ids) == 0 {
		return "none found in " + s.catalog.Dir()
	}
	return fmt.Sprint(ids)
}

func guidance(set *result.ResultSet) []string {
	var out []string
	for _, p := range set.Metadata.Periods {
		if p.Partial {
			out = append(out, fmt.Sprintf("%s covers only %d days of data; compare its totals with care.", p.Label, p.DaysOfData))
		}
	}
	if len(set.Metadata.Failures) > 0 {
		out = append(out, "Some schools or periods had no usable data and were left out of the chart.")
	}
	return out
}

func textResult(resp Response) (*sdk.CallToolResult, any, error) {
	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return nil, nil, err
	}
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: string(out)}}}, nil, nil
}
