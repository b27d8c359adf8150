package model

import (
	"fmt"
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// Number wraps a decimal.Decimal with a fixed display precision, the way the
// original kelp model.Number wraps a float64. It is used by the exchange
// adapters and strategies; internal/balance works on decimal.Decimal directly.
// Precision is only applied when a Number is rendered for display or handed
// to an exchange API that wants a float.
type Number struct {
	value     decimal.Decimal
	Precision int8
}

// numberConstants holds commonly used Number singletons.
type numberConstants struct {
	Zero *Number
	One  *Number
}

// NumberConstants exposes Zero and One the way model.NumberConstants.Zero is
// referenced throughout the strategy plugins.
var NumberConstants = numberConstants{
	Zero: &Number{value: decimal.Zero, Precision: 8},
	One:  &Number{value: decimal.NewFromInt(1), Precision: 8},
}

// NumberFromFloat makes a Number from a float64; the value is not rounded, precision is only stored for display.
func NumberFromFloat(f float64, precision int8) *Number {
	return &Number{value: decimal.NewFromFloat(f), Precision: precision}
}

// NumberFromDecimal makes a Number directly from a decimal.Decimal, without any float conversion.
func NumberFromDecimal(d decimal.Decimal, precision int8) *Number {
	return &Number{value: d, Precision: precision}
}

// MustNumberFromString parses a string into a Number, panicking on failure (mirrors teacher usage in doModifyOffer).
func MustNumberFromString(s string, precision int8) *Number {
	d, e := decimal.NewFromString(s)
	if e != nil {
		panic(fmt.Sprintf("could not parse '%s' into a Number: %s", s, e))
	}
	return &Number{value: d, Precision: precision}
}

// NumberFromString parses a string into a Number, returning an error on failure.
func NumberFromString(s string, precision int8) (*Number, error) {
	d, e := decimal.NewFromString(s)
	if e != nil {
		return nil, fmt.Errorf("could not parse '%s' into a Number: %s", s, e)
	}
	return &Number{value: d, Precision: precision}, nil
}

// AsFloat converts the Number to a float64, for display or for exchange APIs that require one.
func (n *Number) AsFloat() float64 {
	f, _ := n.value.Float64()
	return f
}

// AsDecimal exposes the underlying decimal.Decimal for callers that need full precision arithmetic.
func (n *Number) AsDecimal() decimal.Decimal {
	return n.value
}

// AsString renders the Number at its display precision.
func (n *Number) AsString() string {
	return n.value.StringFixed(int32(n.Precision))
}

// AsRawString renders the Number at full internal precision, with no rounding.
func (n *Number) AsRawString() string {
	return n.value.String()
}

// String is the Stringer method.
func (n *Number) String() string {
	return n.AsString()
}

// Add returns a new Number, the sum of n and other, at n's precision.
func (n *Number) Add(other Number) *Number {
	return &Number{value: n.value.Add(other.value), Precision: n.Precision}
}

// Subtract returns a new Number, n minus other, at n's precision.
func (n *Number) Subtract(other Number) *Number {
	return &Number{value: n.value.Sub(other.value), Precision: n.Precision}
}

// Multiply returns a new Number, n times other, at n's precision.
func (n *Number) Multiply(other Number) *Number {
	return &Number{value: n.value.Mul(other.value), Precision: n.Precision}
}

// Divide returns a new Number, n divided by other, at n's precision. Panics on division by zero, matching the fatal-on-programmer-error posture used elsewhere in BRM.
func (n *Number) Divide(other Number) *Number {
	if other.value.IsZero() {
		panic("division by zero in model.Number.Divide")
	}
	return &Number{value: n.value.DivRound(other.value, 28), Precision: n.Precision}
}

// Scale multiplies by a plain float64 factor (e.g. 0.5, 1+spread), matching the teacher's Number.Scale usage.
func (n *Number) Scale(factor float64) *Number {
	return &Number{value: n.value.Mul(decimal.NewFromFloat(factor)), Precision: n.Precision}
}

// Negate returns -n.
func (n *Number) Negate() *Number {
	return &Number{value: n.value.Neg(), Precision: n.Precision}
}

// Abs returns |n|.
func (n *Number) Abs() *Number {
	return &Number{value: n.value.Abs(), Precision: n.Precision}
}

// IsZero reports whether n is exactly zero.
func (n *Number) IsZero() bool {
	return n.value.IsZero()
}

// IsPositive reports whether n is strictly greater than zero.
func (n *Number) IsPositive() bool {
	return n.value.IsPositive()
}

// IsNegative reports whether n is strictly less than zero.
func (n *Number) IsNegative() bool {
	return n.value.IsNegative()
}

// GreaterThan reports whether n > other.
func (n *Number) GreaterThan(other Number) bool {
	return n.value.GreaterThan(other.value)
}

// GreaterThanOrEqual reports whether n >= other.
func (n *Number) GreaterThanOrEqual(other Number) bool {
	return n.value.GreaterThanOrEqual(other.value)
}

// LessThan reports whether n < other.
func (n *Number) LessThan(other Number) bool {
	return n.value.LessThan(other.value)
}

// LessThanOrEqual reports whether n <= other.
func (n *Number) LessThanOrEqual(other Number) bool {
	return n.value.LessThanOrEqual(other.value)
}

// Equals reports exact equality of the underlying decimal value.
func (n *Number) Equals(other Number) bool {
	return n.value.Equal(other.value)
}

// EqualsPrecisionNormalized reports whether n and other are within epsilon of each other, comparing as floats
// the way the teacher's doModifyOffer does for order-change detection.
func (n *Number) EqualsPrecisionNormalized(other Number, epsilon float64) bool {
	return math.Abs(n.AsFloat()-other.AsFloat()) < epsilon
}

// InvertNumber returns 1/n at the same precision, used when flipping a buy-quoted price to a sell-quoted one.
func InvertNumber(n *Number) *Number {
	return &Number{value: decimal.NewFromInt(1).DivRound(n.value, 28), Precision: n.Precision}
}

// NumberByCappingPrecision snaps n to the given tick precision using round-half-away-from-zero,
// matching spec.md's rounding rule for display-facing amounts.
func NumberByCappingPrecision(n *Number, precision int8) *Number {
	return &Number{value: n.value.Round(int32(precision)), Precision: precision}
}

// RoundToTick snaps a raw decimal to the nearest multiple of tick using round-half-away-from-zero.
// tick is expressed as a decimal value (e.g. 0.00000001) rather than a precision digit count,
// for symbols whose tick size isn't a clean power of ten.
func RoundToTick(value decimal.Decimal, tick decimal.Decimal) decimal.Decimal {
	if tick.IsZero() {
		return value
	}
	units := value.DivRound(tick, 0)
	return units.Mul(tick)
}

// ParseInt8 is a small helper used by config-loading code that stores precision as a string.
func ParseInt8(s string) (int8, error) {
	i, e := strconv.ParseInt(s, 10, 8)
	if e != nil {
		return 0, e
	}
	return int8(i), nil
}
