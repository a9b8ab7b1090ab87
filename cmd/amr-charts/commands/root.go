package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"amr-charts/internal/amr"
	"amr-charts/internal/chart"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/config"
	"amr-charts/internal/logging"
	"amr-charts/internal/mcp"
	"amr-charts/internal/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version, Commit, and BuildDate are set at build time via ldflags.
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"

	verbose bool
	cfg     *config.AppConfig
)

var rootCmd = &cobra.Command{
	Use:   "amr-charts",
	Short: "AMR-Charts turns school smart-meter data into chart-ready series",
	Long: `Aggregates half-hourly school meter readings into named, bucketed series for charts:
daily and weekly usage, school day versus holiday splits, costs, CO2, heating models and benchmarks.
Without a subcommand it serves the charts as MCP tools over stdio.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(verbose)

		// Load configuration
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}

		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Str("buildDate", BuildDate).
			Str("dataPath", cfg.DataPath).
			Msg("AMR-Charts starting")
		return nil
	},
	RunE: serve,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the charts as MCP tools over stdio (default)",
	RunE:  serve,
}

func serve(cmd *cobra.Command, args []string) error {
	engine, catalog, err := bootstrap(nil)
	if err != nil {
		return err
	}
	server, err := mcp.NewServer(engine, catalog, mcp.Options{Version: Version, Mermaid: cfg.EnableMermaidCharts})
	if err != nil {
		return err
	}
	return server.Run(cmd.Context())
}

// bootstrap loads the chart registry and opens the data folder.
func bootstrap(m *metrics.Metrics) (*chart.Engine, *amr.Catalog, error) {
	registry, err := chartconfig.LoadDefault(cfg.MaxInheritanceDepth, cfg.ChartRegistry)
	if err != nil {
		return nil, nil, err
	}
	engine := chart.New(registry, chart.Options{
		Parallelism:               cfg.AggregationParallelism,
		IgnoreSingleSeriesFailure: cfg.IgnoreSingleSeriesFailure,
		Metrics:                   m,
	})
	return engine, amr.NewCatalog(cfg.DataPath), nil
}

func newMetrics() *metrics.Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return metrics.New(reg)
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.AddCommand(serveCmd, httpCmd, runCmd, configCmd, chartsCmd)
}
