package mcp

import (
	"context"

	"amr-charts/internal/amr"
	"amr-charts/internal/chart"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"
)

// Options configure the MCP surface.
type Options struct {
	Version string
	// Mermaid adds an xychart-beta rendering to run_chart results.
	Mermaid bool
}

// Server exposes the chart engine as MCP tools.
type Server struct {
	engine  *chart.Engine
	catalog *amr.Catalog
	opts    Options
	sdk     *sdk.Server
}

// NewServer creates the server and registers its tools.
func NewServer(engine *chart.Engine, catalog *amr.Catalog, opts Options) (*Server, error) {
	if opts.Version == "" {
		opts.Version = "dev"
	}
	s := &Server{
		engine:  engine,
		catalog: catalog,
		opts:    opts,
		sdk:     sdk.NewServer(&sdk.Implementation{Name: "amr-charts", Version: opts.Version}, nil),
	}
	if err := s.registerTools(); err != nil {
		return nil, err
	}
	return s, nil
}

// Run serves over stdio until the client disconnects or ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	log.Info().Int("charts", len(s.engine.Registry().Names())).Msg("MCP server starting stdio loop")
	return s.sdk.Run(ctx, &sdk.StdioTransport{})
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t sdk.Transport) (*sdk.ServerSession, error) {
	return s.sdk.Connect(ctx, t, nil)
}
