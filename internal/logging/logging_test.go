package logging

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func TestDir(t *testing.T) {
	tests := []struct {
		name    string
		logs    string
		data    string
		exePath string
		want    string
	}{
		{"explicit folder", "/var/log/amr", "/data", "/opt/amr/amr-charts", "/var/log/amr"},
		{"under data path", "", "/data", "/opt/amr/amr-charts", filepath.Join("/data", "logs")},
		{"next to binary", "", "", "/opt/amr/amr-charts", filepath.Join("/opt/amr", "logs")},
		{"working directory", "", "", "", "logs"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("LOGS_FOLDER", tt.logs)
			t.Setenv("DATA_PATH", tt.data)
			if got := Dir(tt.exePath); got != tt.want {
				t.Errorf("Dir() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNew_WritesEverySink(t *testing.T) {
	var a, b bytes.Buffer
	l := New(&a, &b)
	l.Info().Str("chart", "daily").Msg("Chart run")
	for _, buf := range []*bytes.Buffer{&a, &b} {
		if !strings.Contains(buf.String(), `"chart":"daily"`) || !strings.Contains(buf.String(), `"time"`) {
			t.Errorf("unexpected log line %q", buf.String())
		}
	}
}
