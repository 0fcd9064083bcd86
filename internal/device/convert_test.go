package device

import (
	"math"
	"testing"
)

func fptr(v float64) *float64 { return &v }

func TestCelsiusToFahrenheit(t *testing.T) {
	cases := []struct {
		name string
		in   *float64
		want *float64
	}{
		{"nil propagates", nil, nil},
		{"freezing point", fptr(0), fptr(32.0)},
		{"six degrees", fptr(6), fptr(42.8)},
		{"cooling setpoint", fptr(24.0), fptr(75.2)},
		{"room temperature", fptr(23.0), fptr(73.4)},
		{"negative", fptr(-20), fptr(-4.0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CelsiusToFahrenheit(tc.in)
			if (got == nil) != (tc.want == nil) {
				t.Fatalf("CelsiusToFahrenheit(%v) = %v, want %v", tc.in, got, tc.want)
			}
			if got != nil && *got != *tc.want {
				t.Fatalf("CelsiusToFahrenheit(%v) = %v, want %v", *tc.in, *got, *tc.want)
			}
		})
	}
}

func TestFahrenheitToCelsius_NilPropagates(t *testing.T) {
	if got := FahrenheitToCelsius(nil); got != nil {
		t.Fatalf("FahrenheitToCelsius(nil) = %v, want nil", *got)
	}
}

// Converting C -> F -> C must recover the input within the rounding
// tolerance across a representative range.
func TestConversionRoundTrip(t *testing.T) {
	for c := -20.0; c <= 40.0; c += 0.1 {
		c := RoundTenth(c)
		back := FahrenheitToCelsius(CelsiusToFahrenheit(&c))
		if back == nil {
			t.Fatalf("round trip of %v produced nil", c)
		}
		if math.Abs(*back-c) > 0.1 {
			t.Fatalf("round trip of %v = %v, drift beyond 0.1", c, *back)
		}
	}
}

func TestRoundTenth_HalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{0.05, 0.1},
		{-0.05, -0.1},
		{0.25, 0.3},
		{1.04, 1.0},
		{1.06, 1.1},
	}
	for _, tc := range cases {
		if got := RoundTenth(tc.in); got != tc.want {
			t.Fatalf("RoundTenth(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
