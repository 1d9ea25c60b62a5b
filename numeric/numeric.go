// Package numeric provides the scalar value model shared by the
// characterization database: string-or-float values, tolerance-based
// comparison, and text normalization for attributes that round-trip
// through storage.
package numeric

import (
	"fmt"
	"math"
	"strings"
)

// Default comparison tolerances. Constants, sweep attributes and axis
// values are compared with these unless the caller overrides them.
const (
	DefaultRTol = 1e-5
	DefaultATol = 1e-18
)

// Kind discriminates the two scalar representations a Value can hold.
type Kind uint8

const (
	KindFloat Kind = iota
	KindString
)

func (k Kind) String() string {
	if k == KindString {
		return "string"
	}
	return "float"
}

// Value is a scalar that is either a float64 or a string. Sweep
// attributes, constants and axis values all use this representation so
// that environment names and numeric coordinates share one code path.
type Value struct {
	kind Kind
	num  float64
	str  string
}

// F returns a float-valued Value.
func F(v float64) Value { return Value{kind: KindFloat, num: v} }

// S returns a string-valued Value. The text is normalized on
// construction so comparisons are storage-encoding independent.
func S(v string) Value { return Value{kind: KindString, str: NormalizeText(v)} }

// Kind reports whether the value holds a float or a string.
func (v Value) Kind() Kind { return v.kind }

// Float returns the numeric payload. It is only meaningful when
// Kind() == KindFloat.
func (v Value) Float() float64 { return v.num }

// Text returns the string payload. It is only meaningful when
// Kind() == KindString.
func (v Value) Text() string { return v.str }

func (v Value) String() string {
	if v.kind == KindString {
		return v.str
	}
	return fmt.Sprintf("%g", v.num)
}

// Close reports whether two floats are equal within relative tolerance
// rtol and absolute tolerance atol.
func Close(a, b, rtol, atol float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return false
	}
	return math.Abs(a-b) <= atol+rtol*math.Abs(b)
}

// Equal reports whether two values are equal: exact equality for
// strings, tolerance equality for floats. Values of different kinds are
// never equal.
func Equal(a, b Value, rtol, atol float64) bool {
	if a.kind != b.kind {
		return false
	}
	if a.kind == KindString {
		return a.str == b.str
	}
	return Close(a.num, b.num, rtol, atol)
}

// IndexIn returns the index of v in list under tolerance comparison, or
// -1 if absent. Linear scan: axis cardinalities are small.
func IndexIn(list []Value, v Value, rtol, atol float64) int {
	for i, t := range list {
		if Equal(t, v, rtol, atol) {
			return i
		}
	}
	return -1
}

// Contains reports whether v appears in list under tolerance comparison.
func Contains(list []Value, v Value, rtol, atol float64) bool {
	return IndexIn(list, v, rtol, atol) >= 0
}

// NormalizeText strips byte-order marks, NUL padding and surrounding
// whitespace so that text attributes compare stably regardless of how
// the storage layer encoded them.
func NormalizeText(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.Trim(s, "\x00")
	return strings.TrimSpace(s)
}

// NormalizeBytes decodes raw attribute bytes into normalized text.
func NormalizeBytes(b []byte) string {
	return NormalizeText(string(b))
}

// Constants is the fixed context of a sweep: a mapping from name to
// scalar value (for example device geometry).
type Constants map[string]Value

// Equal reports whether two constants maps hold the same names with
// equal values under tolerance comparison.
func (c Constants) Equal(other Constants, rtol, atol float64) bool {
	if len(c) != len(other) {
		return false
	}
	for name, v := range c {
		ov, ok := other[name]
		if !ok || !Equal(v, ov, rtol, atol) {
			return false
		}
	}
	return true
}

// Clone returns a copy of the constants map.
func (c Constants) Clone() Constants {
	out := make(Constants, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
