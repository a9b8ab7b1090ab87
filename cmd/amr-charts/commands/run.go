package commands

import (
	"fmt"
	"os"
	"strings"

	"amr-charts/internal/chart"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/visuals"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	runSchools []string
	runSets    []string
	runFormat  string
	configSets []string
)

var runCmd = &cobra.Command{
	Use:   "run <chart>",
	Short: "Run a chart and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseOverrides(runSets)
		if err != nil {
			return err
		}
		if len(runSchools) == 0 {
			return fmt.Errorf("at least one --school is required")
		}
		engine, catalog, err := bootstrap(nil)
		if err != nil {
			return err
		}
		schools, err := catalog.Schools(runSchools)
		if err != nil {
			return err
		}
		set, err := engine.Run(cmd.Context(), chart.Request{Chart: args[0], Overrides: overrides, Schools: schools})
		if err != nil {
			return err
		}

		switch runFormat {
		case "mermaid":
			fmt.Fprintln(os.Stdout, visuals.GenerateChart(set))
			fmt.Fprint(os.Stdout, visuals.Legend(set))
			return nil
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(set)
		default:
			return fmt.Errorf("unknown format %q (json or mermaid)", runFormat)
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config <chart>",
	Short: "Print the resolved configuration of a chart as YAML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides, err := parseOverrides(configSets)
		if err != nil {
			return err
		}
		engine, _, err := bootstrap(nil)
		if err != nil {
			return err
		}
		resolved, err := engine.GetConfig(args[0], overrides)
		if err != nil {
			return err
		}
		out, err := chartconfig.Marshal(resolved)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	},
}

var chartsCmd = &cobra.Command{
	Use:   "charts",
	Short: "List the registered chart names",
	RunE: func(cmd *cobra.Command, args []string) error {
		engine, _, err := bootstrap(nil)
		if err != nil {
			return err
		}
		for _, name := range engine.Registry().Names() {
			fmt.Fprintln(os.Stdout, name)
		}
		return nil
	},
}

// parseOverrides turns key=value pairs into configuration overrides, parsing each value as YAML.
func parseOverrides(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		key, raw, ok := strings.Cut(p, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("override %q: expected key=value", p)
		}
		var v any
		if err := yaml.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
		out[key] = v
	}
	return out, nil
}

func init() {
	runCmd.Flags().StringArrayVarP(&runSchools, "school", "s", nil, "school id (repeatable); the first is the target school")
	runCmd.Flags().StringArrayVar(&runSets, "set", nil, "configuration override key=value (repeatable)")
	runCmd.Flags().StringVarP(&runFormat, "format", "f", "json", "output format: json or mermaid")
	configCmd.Flags().StringArrayVar(&configSets, "set", nil, "configuration override key=value (repeatable)")
}
