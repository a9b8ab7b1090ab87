package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"amr-charts/internal/httpapi"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var httpAddr string

var httpCmd = &cobra.Command{
	Use:   "http",
	Short: "Serve the chart API over HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		m := newMetrics()
		engine, catalog, err := bootstrap(m)
		if err != nil {
			return err
		}
		addr := cfg.HTTPAddr
		if httpAddr != "" {
			addr = httpAddr
		}
		srv := &http.Server{
			Addr:              addr,
			Handler:           httpapi.New(engine, catalog, m, cfg.EnableMermaidCharts).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			log.Info().Str("addr", addr).Msg("HTTP server listening")
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-cmd.Context().Done():
		}

		log.Info().Msg("Shutting down HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	},
}

func init() {
	httpCmd.Flags().StringVar(&httpAddr, "addr", "", "listen address (default HTTP_ADDR or :8085)")
}
