package httpapi

import (
	"net/http"

	"amr-charts/internal/amr"
	"amr-charts/internal/chart"
	"amr-charts/internal/metrics"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

// API serves the chart engine over HTTP.
type API struct {
	engine  *chart.Engine
	catalog *amr.Catalog
	metrics *metrics.Metrics
	mermaid bool
}

// New creates the API. m may be nil.
func New(engine *chart.Engine, catalog *amr.Catalog, m *metrics.Metrics, mermaid bool) *API {
	return &API{engine: engine, catalog: catalog, metrics: m, mermaid: mermaid}
}

// Router returns the routes without access logging.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", healthHandler).Methods("GET")
	r.Handle("/metrics", a.metrics.Handler()).Methods("GET")
	r.Handle("/charts", a.metrics.WrapHandler("/charts", http.HandlerFunc(a.listCharts))).Methods("GET")
	r.Handle("/charts/{name}", a.metrics.WrapHandler("/charts/{name}", http.HandlerFunc(a.getChart))).Methods("GET")
	r.Handle("/charts/{name}/run", a.metrics.WrapHandler("/charts/{name}/run", http.HandlerFunc(a.runChart))).Methods("POST")
	r.Handle("/schools", a.metrics.WrapHandler("/schools", http.HandlerFunc(a.listSchools))).Methods("GET")

	return r
}

// Handler wraps the router with panic recovery and access logging.
func (a *API) Handler() http.Handler {
	recovered := handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(a.Router())
	return handlers.LoggingHandler(log.Logger, recovered)
}
