package money

import "math"

// Value mirrors the gateway's fixed-point money representation: whole
// currency units plus a fraction scaled to nanos (1e-9 of a unit).
type Value struct {
	Units int64
	Nano  int32
}

// Float converts the fixed-point value to a currency amount rounded to
// 2 decimal places. Nano is assumed to be in [0, 1e9).
func (v Value) Float() float64 {
	return Round2(float64(v.Units) + float64(v.Nano)/1e9)
}

// IsZero reports whether the value carries no amount at all, which is how
// the gateway represents an absent price.
func (v Value) IsZero() bool {
	return v.Units == 0 && v.Nano == 0
}

// FromFloat converts a currency amount into the fixed-point wire form.
// Only used for limit-order prices, which are always positive.
func FromFloat(f float64) Value {
	units := math.Floor(f)
	nano := math.Round((f - units) * 1e9)
	return Value{Units: int64(units), Nano: int32(nano)}
}

// Round2 rounds to 2 decimal places, half away from zero.
func Round2(f float64) float64 {
	return math.Round(f*100) / 100
}
