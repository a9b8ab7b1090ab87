package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"amr-charts/internal/amr"
	"amr-charts/internal/chart"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/visuals"

	"github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// RunRequest is the body of POST /charts/{name}/run.
type RunRequest struct {
	Schools   []string       `json:"schools"`
	Overrides map[string]any `json:"overrides,omitempty"`
}

type chartEntry struct {
	Name  string `json:"name"`
	Title string `json:"title,omitempty"`
	XAxis string `json:"x_axis"`
	Units string `json:"units"`
}

type errorBody struct {
	Error string `json:"error"`
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (a *API) listCharts(w http.ResponseWriter, _ *http.Request) {
	var out []chartEntry
	for _, name := range a.engine.Registry().Names() {
		cfg, err := a.engine.GetConfig(name, nil)
		if err != nil {
			log.Warn().Err(err).Str("chart", name).Msg("Skipping chart that does not resolve")
			continue
		}
		out = append(out, chartEntry{Name: name, Title: cfg.Title, XAxis: cfg.XAxis, Units: string(cfg.Units())})
	}
	writeJSON(w, http.StatusOK, out)
}

// getChart returns the resolved configuration as YAML. Query parameters are applied as overrides,
// each value parsed as a YAML scalar so ?cumulative=true is a bool.
func (a *API) getChart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var overrides map[string]any
	for k, v := range r.URL.Query() {
		if overrides == nil {
			overrides = make(map[string]any)
		}
		var val any
		if err := yaml.Unmarshal([]byte(v[len(v)-1]), &val); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("override %s: %v", k, err)})
			return
		}
		overrides[k] = val
	}
	cfg, err := a.engine.GetConfig(name, overrides)
	if err != nil {
		writeError(w, err)
		return
	}
	out, err := chartconfig.Marshal(cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	w.Write(out)
}

// runChart executes a chart. With ?format=mermaid the result is rendered as a Mermaid block instead of JSON.
func (a *API) runChart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid request body: %v", err)})
		return
	}
	if len(req.Schools) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "at least one school id is required"})
		return
	}
	schools, err := a.catalog.Schools(req.Schools)
	if err != nil {
		writeError(w, err)
		return
	}
	set, err := a.engine.Run(r.Context(), chart.Request{
		Chart:     name,
		Overrides: req.Overrides,
		Schools:   schools,
		RequestID: r.Header.Get("X-Request-ID"),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Request-ID", set.Metadata.RequestID)
	if a.mermaid && r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/markdown")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(visuals.GenerateChart(set)))
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (a *API) listSchools(w http.ResponseWriter, _ *http.Request) {
	ids, err := a.catalog.IDs()
	if err != nil {
		writeError(w, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, ids)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorBody{Error: err.Error()})
}

func statusFor(err error) int {
	var unknownChart *energy.UnknownConfigError
	var unknownSchool *amr.UnknownSchoolError
	switch {
	case errors.As(err, &unknownChart), errors.As(err, &unknownSchool):
		return http.StatusNotFound
	case errors.Is(err, energy.ErrConfig):
		return http.StatusBadRequest
	case errors.Is(err, energy.ErrDataAvailability):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
