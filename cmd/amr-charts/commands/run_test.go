package commands

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseOverrides(t *testing.T) {
	got, err := parseOverrides([]string{"x_axis=week", "cumulative=true", "timescale=[{year: 0}, {year: -1}]", "title=a=b"})
	if err != nil {
		t.Fatalf("parseOverrides failed: %v", err)
	}
	want := map[string]any{
		"x_axis":     "week",
		"cumulative": true,
		"timescale":  []any{map[string]any{"year": 0}, map[string]any{"year": -1}},
		"title":      "a=b",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("overrides mismatch (-want +got):\n%s", diff)
	}

	if got, err := parseOverrides(nil); got != nil || err != nil {
		t.Errorf("expected nil overrides, got %v %v", got, err)
	}
	for _, bad := range []string{"novalue", "=week", "x_axis=[unclosed"} {
		if _, err := parseOverrides([]string{bad}); err == nil {
			t.Errorf("expected an error for %q", bad)
		}
	}
}
