package models

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Place is a single geocoding match.
type Place struct {
	Name    string  `json:"name"`
	Country string  `json:"country"`
	State   string  `json:"state,omitempty"`
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
}

// Coordinates returns the place position.
func (p Place) Coordinates() Coordinates {
	return Coordinates{Latitude: p.Lat, Longitude: p.Lon}
}

// DisplayName composes "name, country", dropping empty parts.
func (p Place) DisplayName() string {
	return JoinDisplayName(p.Name, p.Country)
}

// Location is the last-resolved place held by a widget session.
// SourceCityQuery is empty when the location came from device geolocation.
type Location struct {
	DisplayName     string  `json:"displayName"`
	City            string  `json:"city,omitempty"`
	Latitude        float64 `json:"latitude"`
	Longitude       float64 `json:"longitude"`
	SourceCityQuery string  `json:"sourceCityQuery,omitempty"`
}

// Coordinates returns the location position.
func (l Location) Coordinates() Coordinates {
	return Coordinates{Latitude: l.Latitude, Longitude: l.Longitude}
}

// JoinDisplayName joins a place name and country code as "name, country".
func JoinDisplayName(name, country string) string {
	switch {
	case name == "":
		return country
	case country == "":
		return name
	default:
		return name + ", " + country
	}
}
