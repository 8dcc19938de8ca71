package notes

import "testing"

func TestNewRationalNormalizes(t *testing.T) {
	cases := []struct {
		num, den     int64
		wantNum      int64
		wantDen      int64
		wantRendered string
	}{
		{6, 8, 3, 4, "3/4"},
		{4, 2, 2, 1, "2"},
		{0, 5, 0, 1, "0"},
		{3, -4, -3, 4, "-3/4"},
		{-2, -8, 1, 4, "1/4"},
		{7, 0, 7, 1, "7"},
	}
	for _, tc := range cases {
		got := NewRational(tc.num, tc.den)
		if got.Num != tc.wantNum || got.Den != tc.wantDen {
			t.Fatalf("NewRational(%d, %d) = %d/%d, expected %d/%d", tc.num, tc.den, got.Num, got.Den, tc.wantNum, tc.wantDen)
		}
		if got.String() != tc.wantRendered {
			t.Fatalf("NewRational(%d, %d).String() = %q, expected %q", tc.num, tc.den, got.String(), tc.wantRendered)
		}
	}
}

func TestRationalArithmetic(t *testing.T) {
	sum := NewRational(1, 4).Add(NewRational(1, 6))
	if sum != NewRational(5, 12) {
		t.Fatalf("1/4 + 1/6 = %s, expected 5/12", sum)
	}
	diff := NewRational(3, 2).Sub(NewRational(1, 2))
	if diff != NewRational(1, 1) {
		t.Fatalf("3/2 - 1/2 = %s, expected 1", diff)
	}
}

func TestRationalCmpOrdersValues(t *testing.T) {
	if NewRational(1, 3).Cmp(NewRational(1, 2)) != -1 {
		t.Fatal("expected 1/3 < 1/2")
	}
	if NewRational(2, 4).Cmp(NewRational(1, 2)) != 0 {
		t.Fatal("expected 2/4 == 1/2")
	}
	if NewRational(5, 4).Cmp(NewRational(1, 1)) != 1 {
		t.Fatal("expected 5/4 > 1")
	}
}

func TestRationalZeroValueBehavesAsZero(t *testing.T) {
	var r Rational
	if !r.IsZero() {
		t.Fatal("expected zero value to report IsZero")
	}
	if got := r.Add(NewRational(1, 2)); got != NewRational(1, 2) {
		t.Fatalf("zero value + 1/2 = %s, expected 1/2", got)
	}
	if r.Float64() != 0 {
		t.Fatalf("zero value Float64 = %v, expected 0", r.Float64())
	}
}
