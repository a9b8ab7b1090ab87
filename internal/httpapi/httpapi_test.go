package httpapi

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"amr-charts/internal/amr"
	"amr-charts/internal/chart"
	"amr-charts/internal/chartconfig"
	"amr-charts/internal/energy"
	"amr-charts/internal/metrics"

	"github.com/goccy/go-json"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
)

const testCharts = `
daily:
  title: Daily electricity
  x_axis: day
  series_breakdown: none
  timescale: all
  meter_definition: allelectricity
daily_gas:
  inherits_from: daily
  meter_definition: allheat
`

func newTestAPI(t *testing.T, mermaid bool) (*API, http.Handler) {
	t.Helper()
	dir := t.TempDir()
	d := amr.Descriptor{ID: "oak", Name: "Oak Primary", Type: "primary", Pupils: 100, FloorArea: 500,
		Meters: []amr.MeterInfo{{ID: "e1", Name: "Main", Fuel: "electricity"}}}
	if err := amr.WriteDescriptor(dir, d); err != nil {
		t.Fatalf("WriteDescriptor failed: %v", err)
	}
	var readings []amr.Reading
	for i := 0; i < 2; i++ {
		kwh := make([]float64, energy.SlotsPerDay)
		for s := range kwh {
			kwh[s] = 1
		}
		readings = append(readings, amr.Reading{MeterID: "e1", Date: energy.Date(2024, 5, 1+i).Format(time.DateOnly), KWh: kwh})
	}
	store := amr.NewStore()
	if err := store.Append("oak", readings); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Save(dir, "oak"); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reg := chartconfig.NewRegistry(0)
	if err := reg.Load(strings.NewReader(testCharts)); err != nil {
		t.Fatalf("loading charts: %v", err)
	}
	m := metrics.New(prometheus.NewRegistry())
	a := New(chart.New(reg, chart.Options{Metrics: m}), amr.NewCatalog(dir), m, mermaid)
	return a, a.Handler()
}

func serve(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, bytes.NewReader([]byte(body))))
	return rec
}

func TestHealth(t *testing.T) {
	_, h := newTestAPI(t, false)
	rec := serve(h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || rec.Body.String() != `{"status":"ok"}` {
		t.Errorf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestListChartsAndSchools(t *testing.T) {
	_, h := newTestAPI(t, false)

	rec := serve(h, http.MethodGet, "/charts", "")
	var charts []chartEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &charts); err != nil {
		t.Fatalf("bad body %q: %v", rec.Body.String(), err)
	}
	want := []chartEntry{
		{Name: "daily", Title: "Daily electricity", XAxis: "day", Units: "kwh"},
		{Name: "daily_gas", Title: "Daily electricity", XAxis: "day", Units: "kwh"},
	}
	if diff := cmp.Diff(want, charts); diff != "" {
		t.Errorf("charts mismatch (-want +got):\n%s", diff)
	}

	rec = serve(h, http.MethodGet, "/schools", "")
	if strings.TrimSpace(rec.Body.String()) != `["oak"]` {
		t.Errorf("schools = %q", rec.Body.String())
	}
}

func TestGetChart(t *testing.T) {
	_, h := newTestAPI(t, false)
	tests := []struct {
		target     string
		wantStatus int
		wantBody   string
	}{
		{"/charts/daily?x_axis=week&cumulative=true", http.StatusOK, "cumulative: true"},
		{"/charts/missing", http.StatusNotFound, "unknown chart configuration"},
		{"/charts/daily?yaxis_scaling=per_classroom", http.StatusBadRequest, "unknown scaling"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			rec := serve(h, http.MethodGet, tt.target, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %q does not contain %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestRunChart(t *testing.T) {
	_, h := newTestAPI(t, true)

	rec := serve(h, http.MethodPost, "/charts/daily/run", `{"schools":["oak"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var got struct {
		XAxis  []string             `json:"x_axis"`
		Series map[string][]float64 `json:"series"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("bad body: %v", err)
	}
	if diff := cmp.Diff(map[string][]float64{"Energy": {48, 48}}, got.Series); diff != "" {
		t.Errorf("series mismatch (-want +got):\n%s", diff)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}

	rec = serve(h, http.MethodPost, "/charts/daily/run?format=mermaid", `{"schools":["oak"]}`)
	if !strings.HasPrefix(rec.Body.String(), "```mermaid") {
		t.Errorf("expected a mermaid block, got %q", rec.Body.String())
	}
}

func TestRunChartErrors(t *testing.T) {
	_, h := newTestAPI(t, false)
	tests := []struct {
		name       string
		target     string
		body       string
		wantStatus int
	}{
		{"bad body", "/charts/daily/run", `{`, http.StatusBadRequest},
		{"no schools", "/charts/daily/run", `{"schools":[]}`, http.StatusBadRequest},
		{"unknown school", "/charts/daily/run", `{"schools":["ash"]}`, http.StatusNotFound},
		{"unknown chart", "/charts/missing/run", `{"schools":["oak"]}`, http.StatusNotFound},
		{"no gas meter", "/charts/daily_gas/run", `{"schools":["oak"]}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, http.MethodPost, tt.target, tt.body)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, h := newTestAPI(t, false)
	serve(h, http.MethodGet, "/charts", "")
	rec := serve(h, http.MethodGet, "/metrics", "")
	if !strings.Contains(rec.Body.String(), `amr_http_requests_total{route="/charts",status="200"} 1`) {
		t.Errorf("metrics missing request count:\n%s", rec.Body.String())
	}
}
