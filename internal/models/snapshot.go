package models

import "time"

// WeatherSnapshot is one current-conditions observation. It is rendered and dropped,
// never stored.
type WeatherSnapshot struct {
	Name        string    `json:"name"`
	Country     string    `json:"country"`
	Description string    `json:"description"`
	IconCode    string    `json:"iconCode,omitempty"`
	Temperature float64   `json:"temperature"`
	FeelsLike   float64   `json:"feelsLike"`
	Humidity    int       `json:"humidity"`
	WindSpeed   float64   `json:"windSpeed"`
	Cloudiness  int       `json:"cloudiness"`
	ObservedAt  time.Time `json:"observedAt"`
}

// SessionState is the part of a widget session that outlives a single request.
type SessionState struct {
	Location *Location `json:"location,omitempty"`
	Units    UnitSystem `json:"units"`
	// Version increases with every change so a late write of an older state can be dropped.
	Version uint64 `json:"version,omitempty"`
}
