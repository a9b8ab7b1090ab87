package period

import (
	"fmt"
	"strings"
	"time"

	"amr-charts/internal/energy"

	"gopkg.in/yaml.v3"
)

// Kind names a timescale family.
type Kind string

const (
	Year         Kind = "year"
	UpToAYear    Kind = "up_to_a_year"
	AcademicYear Kind = "academicyear"
	Month        Kind = "month"
	Week         Kind = "week"
	Day          Kind = "day"
	DateRange    Kind = "daterange"
	All          Kind = "all"
)

var kinds = map[string]Kind{
	"year":          Year,
	"up_to_a_year":  UpToAYear,
	"academicyear":  AcademicYear,
	"academic_year": AcademicYear,
	"month":         Month,
	"week":          Week,
	"day":           Day,
	"daterange":     DateRange,
	"all":           All,
	"none":          All,
}

// Spec is one requested timescale, e.g. {year: -1}. Offsets count back from the latest period.
type Spec struct {
	Kind   Kind
	Offset int
	From   time.Time
	To     time.Time
}

// ParseKind resolves a timescale name or alias.
func ParseKind(s string) (Kind, error) {
	k, ok := kinds[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", &energy.InvalidConfigError{Field: "timescale", Reason: fmt.Sprintf("unknown timescale %q", s)}
	}
	return k, nil
}

// String renders the spec in its YAML short form.
func (s Spec) String() string {
	switch s.Kind {
	case DateRange:
		return fmt.Sprintf("daterange:%s..%s", s.From.Format(time.DateOnly), s.To.Format(time.DateOnly))
	case All:
		return string(All)
	}
	return fmt.Sprintf("%s:%d", s.Kind, s.Offset)
}

// Validate checks offsets and explicit ranges.
func (s Spec) Validate() error {
	if s.Offset > 0 {
		return &energy.InvalidConfigError{Field: "timescale", Reason: fmt.Sprintf("%s offset %d is in the future", s.Kind, s.Offset)}
	}
	if s.Kind == DateRange && (s.From.IsZero() || s.To.Before(s.From)) {
		return &energy.InvalidConfigError{Field: "timescale", Reason: "daterange needs from <= to"}
	}
	return nil
}

// UnmarshalYAML accepts `year`, `{year: -1}` and `{daterange: [2024-01-01, 2024-03-31]}`.
func (s *Spec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		k, err := ParseKind(node.Value)
		if err != nil {
			return err
		}
		*s = Spec{Kind: k}
		return s.Validate()
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return &energy.InvalidConfigError{Field: "timescale", Reason: "expected exactly one timescale per entry"}
		}
		k, err := ParseKind(node.Content[0].Value)
		if err != nil {
			return err
		}
		out := Spec{Kind: k}
		if k == DateRange {
			var dates []string
			if err := node.Content[1].Decode(&dates); err != nil || len(dates) != 2 {
				return &energy.InvalidConfigError{Field: "timescale", Reason: "daterange expects [from, to]"}
			}
			if out.From, err = time.Parse(time.DateOnly, dates[0]); err != nil {
				return &energy.InvalidConfigError{Field: "timescale", Reason: err.Error()}
			}
			if out.To, err = time.Parse(time.DateOnly, dates[1]); err != nil {
				return &energy.InvalidConfigError{Field: "timescale", Reason: err.Error()}
			}
		} else if err := node.Content[1].Decode(&out.Offset); err != nil {
			return &energy.InvalidConfigError{Field: "timescale", Reason: fmt.Sprintf("%s offset: %v", k, err)}
		}
		*s = out
		return s.Validate()
	}
	return &energy.InvalidConfigError{Field: "timescale", Reason: "expected a name or a {name: offset} map"}
}

// MarshalYAML writes the mapping form so the output decodes back to the same Spec.
func (s Spec) MarshalYAML() (any, error) {
	switch s.Kind {
	case All:
		return string(All), nil
	case DateRange:
		return map[string][]string{string(DateRange): {s.From.Format(time.DateOnly), s.To.Format(time.DateOnly)}}, nil
	}
	return map[string]int{string(s.Kind): s.Offset}, nil
}

// Specs is a timescale list; a single entry may be written without a sequence.
type Specs []Spec

func (ss *Specs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		var list []Spec
		if err := node.Decode(&list); err != nil {
			return err
		}
		*ss = list
		return nil
	}
	var one Spec
	if err := node.Decode(&one); err != nil {
		return err
	}
	*ss = Specs{one}
	return nil
}

// Comparable reports whether every spec is a year-long timescale, which allows month alignment.
func (ss Specs) Comparable() bool {
	if len(ss) < 2 {
		return false
	}
	for _, s := range ss {
		if s.Kind != Year && s.Kind != UpToAYear && s.Kind != AcademicYear {
			return false
		}
	}
	return true
}
