package result

import (
	"fmt"
	"time"

	"amr-charts/internal/energy"
)

// PeriodInfo describes one period that contributed to a result.
type PeriodInfo struct {
	Label      string    `json:"label"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	DaysOfData int       `json:"days_of_data"`
	Partial    bool      `json:"partial"`
}

// Failure records a dropped (school, period) branch.
type Failure struct {
	School string `json:"school"`
	Period string `json:"period"`
	Error  string `json:"error"`
}

// Metadata carries the provenance of a ResultSet.
type Metadata struct {
	RequestID string       `json:"request_id,omitempty"`
	Chart     string       `json:"chart"`
	Title     string       `json:"title,omitempty"`
	ChartType string       `json:"chart_type,omitempty"`
	XAxisMode string       `json:"x_axis_mode"`
	Units     string       `json:"units"`
	Scaling   string       `json:"scaling,omitempty"`
	Schools   []string     `json:"schools"`
	Periods   []PeriodInfo `json:"periods"`
	Failures  []Failure    `json:"failures,omitempty"`
}

// ResultSet is the chart-ready output. Keys fixes the series order.
type ResultSet struct {
	XAxis       []string           `json:"x_axis"`
	XAxisRanges []energy.DateRange `json:"x_axis_ranges,omitempty"`
	Keys        []string           `json:"series_names"`
	Series      map[string]Series  `json:"series"`
	Counts      map[string][]int   `json:"series_counts"`
	SeriesDays  map[string]int     `json:"series_days,omitempty"`
	Y2Axis      map[string]Series  `json:"y2_axis,omitempty"`
	Metadata    Metadata           `json:"metadata"`
}

// New allocates a ResultSet with null series for every declared key.
func New(xAxis []string, keys []string) *ResultSet {
	rs := &ResultSet{
		XAxis:      xAxis,
		Keys:       append([]string(nil), keys...),
		Series:     make(map[string]Series, len(keys)),
		Counts:     make(map[string][]int, len(keys)),
		SeriesDays: make(map[string]int, len(keys)),
	}
	for _, k := range keys {
		rs.Series[k] = NullSeries(len(xAxis))
		rs.Counts[k] = make([]int, len(xAxis))
	}
	return rs
}

// Len returns the number of buckets.
func (rs *ResultSet) Len() int {
	return len(rs.XAxis)
}

// Clone deep-copies the ResultSet so transforms never alias their input.
func (rs *ResultSet) Clone() *ResultSet {
	out := &ResultSet{
		XAxis:       append([]string(nil), rs.XAxis...),
		XAxisRanges: append([]energy.DateRange(nil), rs.XAxisRanges...),
		Keys:        append([]string(nil), rs.Keys...),
		Series:      make(map[string]Series, len(rs.Series)),
		Counts:      make(map[string][]int, len(rs.Counts)),
		SeriesDays:  make(map[string]int, len(rs.SeriesDays)),
		Metadata:    rs.Metadata,
	}
	for k, s := range rs.Series {
		out.Series[k] = s.Clone()
	}
	for k, c := range rs.Counts {
		out.Counts[k] = append([]int(nil), c...)
	}
	for k, d := range rs.SeriesDays {
		out.SeriesDays[k] = d
	}
	if rs.Y2Axis != nil {
		out.Y2Axis = make(map[string]Series, len(rs.Y2Axis))
		for k, s := range rs.Y2Axis {
			out.Y2Axis[k] = s.Clone()
		}
	}
	out.Metadata.Schools = append([]string(nil), rs.Metadata.Schools...)
	out.Metadata.Periods = append([]PeriodInfo(nil), rs.Metadata.Periods...)
	out.Metadata.Failures = append([]Failure(nil), rs.Metadata.Failures...)
	return out
}

// Validate checks shape consistency and rejects NaN or Inf values.
func (rs *ResultSet) Validate() error {
	n := len(rs.XAxis)
	if len(rs.Keys) != len(rs.Series) {
		return fmt.Errorf("series key list (%d) does not match series map (%d)", len(rs.Keys), len(rs.Series))
	}
	for _, k := range rs.Keys {
		s, ok := rs.Series[k]
		if !ok {
			return fmt.Errorf("series %q declared but missing", k)
		}
		if len(s) != n {
			return fmt.Errorf("series %q has %d buckets, x-axis has %d", k, len(s), n)
		}
		for i, v := range s {
			if !v.Finite() {
				return fmt.Errorf("series %q bucket %d is not finite: %w", k, i, energy.ErrCalculation)
			}
		}
	}
	for k, s := range rs.Y2Axis {
		if len(s) != n {
			return fmt.Errorf("y2 series %q has %d buckets, x-axis has %d", k, len(s), n)
		}
	}
	return nil
}
