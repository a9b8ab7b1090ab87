package visuals

import (
	"fmt"
	"math"
	"strings"

	"amr-charts/internal/result"
)

// maxPoints is roughly where Mermaid's xychart starts overlapping labels.
const maxPoints = 60

// GenerateChart renders a result as a Mermaid xychart-beta block. Column charts draw each series as bars,
// everything else as lines; null buckets are drawn as zero. Returns "" for an empty result.
func GenerateChart(set *result.ResultSet) string {
	if set == nil || set.Len() == 0 || len(set.Keys) == 0 {
		return ""
	}

	// Subsample points if the chart is too wide, always keeping the last bucket
	step := 1
	if set.Len() > maxPoints {
		step = int(math.Ceil(float64(set.Len()) / maxPoints))
	}
	var idx []int
	for i := range set.XAxis {
		if i%step == 0 || i == set.Len()-1 {
			idx = append(idx, i)
		}
	}

	labels := make([]string, 0, len(idx))
	for _, i := range idx {
		labels = append(labels, quote(set.XAxis[i]))
	}

	mark := "line"
	if set.Metadata.ChartType == "column" || set.Metadata.ChartType == "bar" {
		mark = "bar"
	}

	maxY := 0.0
	lines := make([]string, 0, len(set.Keys))
	for _, k := range set.Keys {
		s := set.Series[k]
		values := make([]string, 0, len(idx))
		for _, i := range idx {
			v := s[i].Or(0)
			if v > maxY {
				maxY = v
			}
			values = append(values, fmt.Sprintf("%.2f", v))
		}
		lines = append(lines, fmt.Sprintf("    %s [%s]\n", mark, strings.Join(values, ", ")))
	}

	title := set.Metadata.Title
	if title == "" {
		title = set.Metadata.Chart
	}

	var sb strings.Builder
	sb.WriteString("```mermaid\n")
	sb.WriteString("xychart-beta\n")
	sb.WriteString(fmt.Sprintf("    title %s\n", quote(title)))
	sb.WriteString(fmt.Sprintf("    x-axis [%s]\n", strings.Join(labels, ", ")))
	sb.WriteString(fmt.Sprintf("    y-axis %s 0 --> %d\n", quote(set.Metadata.Units), int(math.Ceil(math.Max(1, maxY*1.1)))))
	for _, l := range lines {
		sb.WriteString(l)
	}
	sb.WriteString("```")
	return sb.String()
}

// Legend lists the series in draw order; xychart-beta has no legend of its own.
func Legend(set *result.ResultSet) string {
	if set == nil || len(set.Keys) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, k := range set.Keys {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, k))
	}
	return sb.String()
}

func quote(s string) string {
	return "\"" + strings.ReplaceAll(s, "\"", "'") + "\""
}
