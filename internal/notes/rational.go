package notes

import "fmt"

// Rational is an exact beat fraction used for quantized positions and
// durations. Values are always stored normalized: the denominator is positive,
// the sign lives in the numerator, and zero is 0/1.
type Rational struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// NewRational normalizes num/den. A zero denominator is treated as 1.
func NewRational(num, den int64) Rational {
	if den == 0 {
		den = 1
	}
	if den < 0 {
		num, den = -num, -den
	}
	if num == 0 {
		return Rational{Num: 0, Den: 1}
	}
	g := gcd(num, den)
	return Rational{Num: num / g, Den: den / g}
}

// Add returns r + other.
func (r Rational) Add(other Rational) Rational {
	r, other = r.normalized(), other.normalized()
	return NewRational(r.Num*other.Den+other.Num*r.Den, r.Den*other.Den)
}

// Sub returns r - other.
func (r Rational) Sub(other Rational) Rational {
	r, other = r.normalized(), other.normalized()
	return NewRational(r.Num*other.Den-other.Num*r.Den, r.Den*other.Den)
}

// Cmp returns -1, 0, or 1 as r is less than, equal to, or greater than other.
func (r Rational) Cmp(other Rational) int {
	r, other = r.normalized(), other.normalized()
	lhs := r.Num * other.Den
	rhs := other.Num * r.Den
	switch {
	case lhs < rhs:
		return -1
	case lhs > rhs:
		return 1
	default:
		return 0
	}
}

// Float64 returns the approximate decimal value.
func (r Rational) Float64() float64 {
	r = r.normalized()
	return float64(r.Num) / float64(r.Den)
}

// IsZero reports whether the value is exactly zero.
func (r Rational) IsZero() bool {
	return r.Num == 0
}

// String renders "num/den", or just "num" for whole values.
func (r Rational) String() string {
	r = r.normalized()
	if r.Den == 1 {
		return fmt.Sprintf("%d", r.Num)
	}
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// normalized guards against zero-valued structs decoded from JSON, where the
// denominator arrives as 0 instead of 1.
func (r Rational) normalized() Rational {
	if r.Den == 0 {
		return NewRational(r.Num, 1)
	}
	if r.Den < 0 {
		return NewRational(r.Num, r.Den)
	}
	return r
}

func gcd(a, b int64) int64 {
	if a < 0 {
		a = -a
	}
	if b < 0 {
		b = -b
	}
	for b != 0 {
		a, b = b, a%b
	}
	if a == 0 {
		return 1
	}
	return a
}
