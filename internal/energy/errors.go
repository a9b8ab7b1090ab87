package energy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Error categories. Every concrete error below unwraps to exactly one of them.
var (
	// ErrConfig is always fatal for the request.
	ErrConfig = errors.New("configuration error")
	// ErrDataAvailability may be tolerated per branch when partial failure is allowed.
	ErrDataAvailability = errors.New("data availability error")
	// ErrCalculation replaces silent NaN or Inf results.
	ErrCalculation = errors.New("calculation error")
)

// ConfigTooDeepError is returned when an inheritance chain exceeds the depth bound or loops.
type ConfigTooDeepError struct {
	Name  string
	Chain []string
	Limit int
}

func (e *ConfigTooDeepError) Error() string {
	return fmt.Sprintf("chart %q inheritance deeper than %d levels (%s)", e.Name, e.Limit, strings.Join(e.Chain, " -> "))
}

func (e *ConfigTooDeepError) Unwrap() error { return ErrConfig }

// UnknownConfigError names a chart or parent that is not registered.
type UnknownConfigError struct {
	Name string
}

func (e *UnknownConfigError) Error() string {
	return fmt.Sprintf("unknown chart configuration %q", e.Name)
}

func (e *UnknownConfigError) Unwrap() error { return ErrConfig }

// BadBreakdownError names an unregistered series breakdown dimension.
type BadBreakdownError struct {
	Dimension string
}

func (e *BadBreakdownError) Error() string {
	return fmt.Sprintf("unknown series breakdown %q", e.Dimension)
}

func (e *BadBreakdownError) Unwrap() error { return ErrConfig }

// MalformedFilterError reports a filter on an unknown dimension or with an unknown value.
type MalformedFilterError struct {
	Dimension string
	Value     string
}

func (e *MalformedFilterError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("unknown filter dimension %q", e.Dimension)
	}
	return fmt.Sprintf("filter %s: unknown value %q", e.Dimension, e.Value)
}

func (e *MalformedFilterError) Unwrap() error { return ErrConfig }

// InvalidConfigError reports any other malformed configuration value.
type InvalidConfigError struct {
	Field  string
	Reason string
}

func (e *InvalidConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *InvalidConfigError) Unwrap() error { return ErrConfig }

// NotEnoughDataError is returned when a meter or period has no usable readings.
type NotEnoughDataError struct {
	What  string
	Range DateRange
}

func (e *NotEnoughDataError) Error() string {
	if e.Range.Start.IsZero() {
		return fmt.Sprintf("not enough data: %s", e.What)
	}
	return fmt.Sprintf("not enough data: %s (%s to %s)", e.What,
		e.Range.Start.Format(time.DateOnly), e.Range.End.Format(time.DateOnly))
}

func (e *NotEnoughDataError) Unwrap() error { return ErrDataAvailability }

// AllSeriesFailedError is returned when no (school, period) branch produced a result.
type AllSeriesFailedError struct {
	Chart string
	Err   error
}

func (e *AllSeriesFailedError) Error() string {
	return fmt.Sprintf("chart %q: every series failed: %v", e.Chart, e.Err)
}

// Is lets callers match both the category and the branch causes.
func (e *AllSeriesFailedError) Is(target error) bool {
	return target == ErrDataAvailability
}

func (e *AllSeriesFailedError) Unwrap() error { return e.Err }

// ZeroDenominatorError is returned instead of dividing by zero.
type ZeroDenominatorError struct {
	Quantity string
}

func (e *ZeroDenominatorError) Error() string {
	return fmt.Sprintf("cannot divide by zero %s", e.Quantity)
}

func (e *ZeroDenominatorError) Unwrap() error { return ErrCalculation }

// DegenerateModelError is returned when a regression cannot be fitted.
type DegenerateModelError struct {
	MeterID string
	Reason  string
}

func (e *DegenerateModelError) Error() string {
	return fmt.Sprintf("heating model for meter %s: %s", e.MeterID, e.Reason)
}

func (e *DegenerateModelError) Unwrap() error { return ErrCalculation }
