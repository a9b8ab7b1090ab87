package result

import (
	"math"
	"strconv"
)

// Value is a nullable chart number. The zero Value is null.
type Value struct {
	v     float64
	valid bool
}

// Null is the absent value.
var Null = Value{}

// Some wraps a number.
func Some(v float64) Value {
	return Value{v: v, valid: true}
}

// Get returns the number and whether it is present.
func (v Value) Get() (float64, bool) {
	return v.v, v.valid
}

// IsNull reports whether the value is absent.
func (v Value) IsNull() bool {
	return !v.valid
}

// Or returns the number, or def when null.
func (v Value) Or(def float64) float64 {
	if !v.valid {
		return def
	}
	return v.v
}

// Equal reports whether both values are null or hold the same number.
func (v Value) Equal(o Value) bool {
	return v.valid == o.valid && (!v.valid || v.v == o.v)
}

// Add is null-safe: null+null=null, null+x=x, x+y=x+y.
func (v Value) Add(o Value) Value {
	switch {
	case !v.valid:
		return o
	case !o.valid:
		return v
	default:
		return Some(v.v + o.v)
	}
}

// Scale multiplies a present value; null stays null.
func (v Value) Scale(f float64) Value {
	if !v.valid {
		return v
	}
	return Some(v.v * f)
}

// Finite reports whether the value is null or a finite number.
func (v Value) Finite() bool {
	return !v.valid || (!math.IsNaN(v.v) && !math.IsInf(v.v, 0))
}

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, v.v, 'f', -1, 64), nil
}

func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Null
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*v = Some(f)
	return nil
}

// Series is one ordered, bucket-aligned sequence of values.
type Series []Value

// NullSeries allocates n null buckets.
func NullSeries(n int) Series {
	return make(Series, n)
}

// Total sums the present values; the bool is false when every bucket is null.
func (s Series) Total() (float64, bool) {
	total, any := 0.0, false
	for _, v := range s {
		if f, ok := v.Get(); ok {
			total += f
			any = true
		}
	}
	return total, any
}

// Clone returns an independent copy.
func (s Series) Clone() Series {
	out := make(Series, len(s))
	copy(out, s)
	return out
}

// Floats maps null to def; used by renderers only.
func (s Series) Floats(def float64) []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = v.Or(def)
	}
	return out
}
