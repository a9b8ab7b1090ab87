package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/joho/godotenv"
)

func TestGodotenvQuoting(t *testing.T) {
	content := `CHART_REGISTRY='charts with "quotes".yaml'`
	path := filepath.Join(t.TempDir(), ".env.test")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	env, err := godotenv.Read(path)
	if err != nil {
		t.Fatalf("Error reading env: %v", err)
	}

	expected := `charts with "quotes".yaml`
	if env["CHART_REGISTRY"] != expected {
		t.Errorf("Expected %s, got %s", expected, env["CHART_REGISTRY"])
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	registry := filepath.Join(dir, "charts.yaml")
	if err := os.WriteFile(registry, []byte("{}\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATA_PATH", dir)
	t.Setenv("LOGS_FOLDER", "")
	os.Unsetenv("LOGS_FOLDER")
	t.Setenv("CHART_REGISTRY", registry)
	t.Setenv("AGGREGATION_PARALLELISM", "3")
	t.Setenv("MAX_INHERITANCE_DEPTH", "")
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("ENABLE_MERMAID_CHARTS", "true")
	t.Setenv("IGNORE_SINGLE_SERIES_FAILURE", "not-a-bool")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := &AppConfig{
		DataPath:               dir,
		LogDir:                 filepath.Join(dir, "logs"),
		ChartRegistry:          registry,
		MaxInheritanceDepth:    20,
		AggregationParallelism: 3,
		HTTPAddr:               "127.0.0.1:9000",
		EnableMermaidCharts:    true,
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"non-numeric parallelism", "AGGREGATION_PARALLELISM", "many"},
		{"zero depth", "MAX_INHERITANCE_DEPTH", "0"},
		{"missing registry", "CHART_REGISTRY", "/does/not/exist.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DATA_PATH", t.TempDir())
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected an error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
