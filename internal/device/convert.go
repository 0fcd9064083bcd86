package device

import "math"

// Conversions round to one decimal place, half away from zero
// (math.Round semantics). The same rounding applies everywhere a
// temperature is produced so repeated conversions stay stable.

// RoundTenth rounds to one decimal, half away from zero.
func RoundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

// CelsiusToFahrenheit converts, propagating nil for absent values.
func CelsiusToFahrenheit(c *float64) *float64 {
	if c == nil {
		return nil
	}
	f := RoundTenth(*c*9/5 + 32)
	return &f
}

// FahrenheitToCelsius converts, propagating nil for absent values.
func FahrenheitToCelsius(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := RoundTenth((*f - 32) * 5 / 9)
	return &c
}
