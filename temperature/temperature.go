// Package temperature converts between the temperature scales the
// supported thermometers report in.
package temperature

import (
	"fmt"
	"math"

	"github.com/sigrokproject/goacq/datafeed"
)

type (
	// Celsius is a temperature in C
	Celsius float64

	// Kelvin is a temperature in K
	Kelvin float64

	// Fahrenheit is a temperature in deg F
	Fahrenheit float64
)

// C2F converts a temp in Celsius to Fahrenheit
func C2F(c Celsius) Fahrenheit {
	return Fahrenheit(c*9/5 + 32)
}

// C2K converts a temp in Celsius to Kelvin
func C2K(c Celsius) Kelvin {
	return Kelvin(c + 273.15)
}

// K2C converts a temp in Kelvin to Celsius
func K2C(k Kelvin) Celsius {
	return Celsius(k - 273.15)
}

// F2C converts a temp in Fahrenheit to Celcius
func F2C(f Fahrenheit) Celsius {
	return Celsius((f - 32) * 5 / 9)
}

// F2K converts a temp in Fahrenheit to Kelvin
func F2K(f Fahrenheit) Kelvin {
	c := F2C(f)
	return C2K(c)
}

// K2F converts a temp in Kelvin to Fahrenheit
func K2F(k Kelvin) Fahrenheit {
	return C2F(K2C(k))
}

// toCelsius normalizes value in unit onto the Celsius scale.
func toCelsius(value float64, unit datafeed.Unit) (Celsius, error) {
	switch unit {
	case datafeed.Celsius:
		return Celsius(value), nil
	case datafeed.Fahrenheit:
		return F2C(Fahrenheit(value)), nil
	case datafeed.Kelvin:
		return K2C(Kelvin(value)), nil
	}
	return 0, fmt.Errorf("temperature: %v is not a temperature unit", unit)
}

// ConvertRecord rescales a temperature record onto the scale of to.
// Records of other quantities pass through untouched; an open-probe
// infinity stays infinite on every scale.
func ConvertRecord(r datafeed.Record, to datafeed.Unit) (datafeed.Record, error) {
	if r.Quantity != datafeed.Temperature || r.Unit == to {
		return r, nil
	}
	if math.IsInf(r.Value, 0) || math.IsNaN(r.Value) {
		r.Unit = to
		return r, nil
	}
	c, err := toCelsius(r.Value, r.Unit)
	if err != nil {
		return r, err
	}
	switch to {
	case datafeed.Celsius:
		r.Value = float64(c)
	case datafeed.Fahrenheit:
		r.Value = float64(C2F(c))
	case datafeed.Kelvin:
		r.Value = float64(C2K(c))
	default:
		return r, fmt.Errorf("temperature: %v is not a temperature unit", to)
	}
	r.Unit = to
	return r, nil
}

// ParseUnit maps the wire names of the temperature scales to units.
func ParseUnit(s string) (datafeed.Unit, bool) {
	switch s {
	case "degC", "C", "celsius":
		return datafeed.Celsius, true
	case "degF", "F", "fahrenheit":
		return datafeed.Fahrenheit, true
	case "K", "kelvin":
		return datafeed.Kelvin, true
	}
	return datafeed.Unitless, false
}
