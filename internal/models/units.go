package models

import (
	"fmt"
	"strings"
)

// UnitSystem selects the measurement convention for requests and rendering.
type UnitSystem int

const (
	Metric UnitSystem = iota
	Imperial
)

// Token is the provider query value for the unit system.
func (u UnitSystem) Token() string {
	if u == Imperial {
		return "imperial"
	}
	return "metric"
}

// TemperatureSuffix is the glyph appended to rendered temperatures.
func (u UnitSystem) TemperatureSuffix() string {
	if u == Imperial {
		return "F"
	}
	return "C"
}

// WindSpeedUnit is the provider unit for wind speed in this system.
func (u UnitSystem) WindSpeedUnit() string {
	if u == Imperial {
		return "mph"
	}
	return "m/s"
}

func (u UnitSystem) String() string {
	return u.Token()
}

// MarshalText encodes the unit system as its query token.
func (u UnitSystem) MarshalText() ([]byte, error) {
	return []byte(u.Token()), nil
}

// UnmarshalText accepts "metric" or "imperial" (case-insensitive).
func (u *UnitSystem) UnmarshalText(b []byte) error {
	parsed, err := ParseUnitSystem(string(b))
	if err != nil {
		return err
	}
	*u = parsed
	return nil
}

// ParseUnitSystem parses a unit token. Empty input is Metric.
func ParseUnitSystem(s string) (UnitSystem, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "metric":
		return Metric, nil
	case "imperial":
		return Imperial, nil
	default:
		return Metric, fmt.Errorf("unknown unit system %q", s)
	}
}
